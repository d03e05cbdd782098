// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package auth

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type loginCounter map[string]int

func (c loginCounter) IncLogin(result string) { c[result]++ }

func newTestStore(t *testing.T, opts ...Option) (*Store, *clockwork.FakeClock, string) {
	t.Helper()
	fc := clockwork.NewFakeClockAt(time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC))
	path := filepath.Join(t.TempDir(), "users.json")
	opts = append([]Option{WithClock(fc), WithBcryptCost(bcrypt.MinCost)}, opts...)
	s, err := NewStore(path, opts...)
	require.NoError(t, err)
	return s, fc, path
}

func TestStore_LoginLogout(t *testing.T) {
	rec := loginCounter{}
	s, _, _ := newTestStore(t, WithRecorder(rec))
	_, err := s.AddUser("guard1", "Dana W.", "4821", false)
	require.NoError(t, err)

	var events []bool
	s.Subscribe(func(a bool) { events = append(events, a) })

	sess, err := s.Login(context.Background(), "Guard1", "4821", "")
	require.NoError(t, err)
	assert.Equal(t, "guard1", sess.User)
	assert.Equal(t, "Dana W.", sess.DisplayName)
	assert.True(t, s.IsAuthenticated())
	assert.Equal(t, "guard1", s.User())

	s.Logout()
	s.Logout()
	assert.False(t, s.IsAuthenticated())
	assert.Empty(t, s.User())
	assert.Equal(t, []bool{true, false}, events)
	assert.Equal(t, 1, rec["success"])
}

func TestStore_WrongPINAndUnknownUser(t *testing.T) {
	s, _, _ := newTestStore(t)
	_, err := s.AddUser("guard1", "", "4821", false)
	require.NoError(t, err)

	_, err = s.Login(context.Background(), "guard1", "0000", "")
	require.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = s.Login(context.Background(), "nobody", "4821", "")
	require.ErrorIs(t, err, ErrInvalidCredentials)
	assert.False(t, s.IsAuthenticated())
}

func TestStore_LockoutAfterRepeatedFailures(t *testing.T) {
	s, fc, _ := newTestStore(t, WithLockout(3, 10*time.Minute))
	_, err := s.AddUser("guard1", "", "4821", false)
	require.NoError(t, err)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err = s.Login(ctx, "guard1", "1111", "")
		require.ErrorIs(t, err, ErrInvalidCredentials)
	}
	_, err = s.Login(ctx, "guard1", "1111", "")
	require.ErrorIs(t, err, ErrLockedOut)

	// Even the right PIN is refused while locked.
	_, err = s.Login(ctx, "guard1", "4821", "")
	require.ErrorIs(t, err, ErrLockedOut)

	fc.Advance(10*time.Minute + time.Second)
	_, err = s.Login(ctx, "guard1", "4821", "")
	require.NoError(t, err)
}

func TestStore_TOTP(t *testing.T) {
	s, fc, _ := newTestStore(t)
	url, err := s.AddUser("guard2", "", "123456", true)
	require.NoError(t, err)
	key, err := otp.NewKeyFromURL(url)
	require.NoError(t, err)
	assert.Equal(t, Issuer, key.Issuer())

	ctx := context.Background()
	_, err = s.Login(ctx, "guard2", "123456", "")
	require.ErrorIs(t, err, ErrTOTPRequired)

	_, err = s.Login(ctx, "guard2", "123456", "000000")
	require.ErrorIs(t, err, ErrInvalidTOTP)

	code, err := totp.GenerateCode(key.Secret(), fc.Now())
	require.NoError(t, err)
	_, err = s.Login(ctx, "guard2", "123456", code)
	require.NoError(t, err)
}

func TestStore_RequireTOTP(t *testing.T) {
	s, _, _ := newTestStore(t, WithRequireTOTP(true))
	_, err := s.AddUser("guard1", "", "4821", false)
	require.NoError(t, err)

	_, err = s.Login(context.Background(), "guard1", "4821", "")
	require.ErrorIs(t, err, ErrTOTPRequired)
}

func TestStore_PersistsUsers(t *testing.T) {
	s, fc, path := newTestStore(t)
	_, err := s.AddUser("guard1", "Dana", "4821", false)
	require.NoError(t, err)
	_, err = s.AddUser("guard1", "", "9999", false)
	require.ErrorIs(t, err, ErrUserExists)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	reopened, err := NewStore(path, WithClock(fc), WithBcryptCost(bcrypt.MinCost))
	require.NoError(t, err)
	users := reopened.Users()
	require.Len(t, users, 1)
	assert.Equal(t, "Dana", users[0].DisplayName)
	_, err = reopened.Login(context.Background(), "guard1", "4821", "")
	require.NoError(t, err)

	require.NoError(t, reopened.RemoveUser("guard1"))
	require.ErrorIs(t, reopened.RemoveUser("guard1"), ErrUserNotFound)
}

func TestStore_Validation(t *testing.T) {
	s, _, _ := newTestStore(t)
	_, err := s.AddUser("", "", "4821", false)
	require.ErrorIs(t, err, ErrInvalidName)
	_, err = s.AddUser("bad name", "", "4821", false)
	require.ErrorIs(t, err, ErrInvalidName)
	_, err = s.AddUser("guard", "", "12", false)
	require.ErrorIs(t, err, ErrInvalidPIN)
	_, err = s.AddUser("guard", "", "12ab", false)
	require.ErrorIs(t, err, ErrInvalidPIN)
}

func TestStore_CorruptUsersFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "users.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0600))
	_, err := NewStore(path, WithBcryptCost(bcrypt.MinCost))
	require.Error(t, err)
}

func TestStore_UnsubscribeStopsEvents(t *testing.T) {
	s, _, _ := newTestStore(t)
	_, err := s.AddUser("guard1", "", "4821", false)
	require.NoError(t, err)

	calls := 0
	unsubscribe := s.Subscribe(func(bool) { calls++ })
	unsubscribe()

	_, err = s.Login(context.Background(), "guard1", "4821", "")
	require.NoError(t, err)
	assert.Zero(t, calls)
}

func TestLockout_FailuresExpire(t *testing.T) {
	fc := clockwork.NewFakeClock()
	l := NewLockout(fc, 2, time.Minute)

	assert.False(t, l.RecordFailure("a"))
	fc.Advance(2 * time.Minute)
	// The first failure is outside the window.
	assert.False(t, l.RecordFailure("a"))
	assert.True(t, l.RecordFailure("a"))
	assert.True(t, l.Locked("a"))
	assert.InDelta(t, time.Minute.Seconds(), l.Remaining("a").Seconds(), 1)

	l.RecordSuccess("a")
	assert.False(t, l.Locked("a"))
}
