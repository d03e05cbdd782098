// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package visitors

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T, opts ...Option) (*Store, *clockwork.FakeClock) {
	t.Helper()
	fc := clockwork.NewFakeClockAt(time.Date(2025, 4, 1, 7, 0, 0, 0, time.UTC))
	s, err := Open(filepath.Join(t.TempDir(), "visitors.db"), append([]Option{WithClock(fc)}, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s, fc
}

func TestStore_RecordVisitUpsertsVisitor(t *testing.T) {
	s, fc := openTestStore(t)
	ctx := context.Background()

	v, err := s.RecordVisit(ctx, CheckIn{Plate: "ab-12 cd", Name: "Dana Whitfield", Company: "Acme", Purpose: "Delivery", Operator: "guard1"})
	require.NoError(t, err)
	assert.NotEmpty(t, v.ID)
	assert.Equal(t, "AB-12 CD", v.Plate)

	fc.Advance(time.Hour)
	_, err = s.RecordVisit(ctx, CheckIn{Plate: "AB12CD", Name: "Dana Whitfield", Company: "Acme Ltd"})
	require.NoError(t, err)

	got, err := s.Get(ctx, "ab 12 cd")
	require.NoError(t, err)
	assert.Equal(t, 2, got.Visits)
	assert.Equal(t, "Acme Ltd", got.Company)
	assert.True(t, got.LastSeen.Equal(fc.Now()))

	visitors, visits, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, visitors)
	assert.Equal(t, 2, visits)
}

func TestStore_RecordVisitValidation(t *testing.T) {
	s, _ := openTestStore(t)
	_, err := s.RecordVisit(context.Background(), CheckIn{Plate: " - ", Name: "X"})
	require.ErrorIs(t, err, ErrInvalidPlate)
	_, err = s.RecordVisit(context.Background(), CheckIn{Plate: "ABC1", Name: "  "})
	require.ErrorIs(t, err, ErrInvalidName)

	_, err = s.Get(context.Background(), "ABC1")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestStore_SearchByPlateAndName(t *testing.T) {
	s, fc := openTestStore(t)
	ctx := context.Background()
	for _, in := range []CheckIn{
		{Plate: "ABC123", Name: "Dana Whitfield"},
		{Plate: "ABD999", Name: "José Álvarez"},
		{Plate: "XYZ100", Name: "Abby Stone"},
	} {
		_, err := s.RecordVisit(ctx, in)
		require.NoError(t, err)
		fc.Advance(time.Minute)
	}

	res, err := s.Search(ctx, "ab")
	require.NoError(t, err)
	require.Len(t, res, 3)
	// Most recent first.
	assert.Equal(t, "XYZ100", res[0].Plate)
	assert.Equal(t, "ABD999", res[1].Plate)

	res, err = s.Search(ctx, "abc")
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, "ABC123", res[0].Plate)

	// Accent-insensitive name match on any word.
	res, err = s.Search(ctx, "alva")
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, "ABD999", res[0].Plate)

	res, err = s.Search(ctx, "%")
	require.NoError(t, err)
	assert.Empty(t, res)
}

func TestStore_SearchLimit(t *testing.T) {
	s, fc := openTestStore(t, WithSearchLimit(3))
	ctx := context.Background()
	for i := 0; i < 10; i++ {
		_, err := s.RecordVisit(ctx, CheckIn{Plate: fmt.Sprintf("KL%03d", i), Name: "Driver"})
		require.NoError(t, err)
		fc.Advance(time.Second)
	}

	res, err := s.Search(ctx, "kl")
	require.NoError(t, err)
	require.Len(t, res, 3)
	assert.Equal(t, "KL009", res[0].Plate)
}

func TestStore_Recent(t *testing.T) {
	s, fc := openTestStore(t)
	ctx := context.Background()
	for i := 0; i < 4; i++ {
		_, err := s.RecordVisit(ctx, CheckIn{Plate: fmt.Sprintf("R%d", i), Name: "Driver", Purpose: "p"})
		require.NoError(t, err)
		fc.Advance(time.Second)
	}

	recent, err := s.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "R3", recent[0].Plate)
	assert.Equal(t, "R2", recent[1].Plate)
}

func TestStore_SnapshotTo(t *testing.T) {
	s, _ := openTestStore(t)
	ctx := context.Background()
	_, err := s.RecordVisit(ctx, CheckIn{Plate: "SNAP1", Name: "Driver"})
	require.NoError(t, err)

	dest := filepath.Join(t.TempDir(), "snapshot.db")
	require.NoError(t, s.SnapshotTo(ctx, dest))
	// A second snapshot replaces the first.
	require.NoError(t, s.SnapshotTo(ctx, dest))

	copyStore, err := Open(dest)
	require.NoError(t, err)
	defer copyStore.Close()
	got, err := copyStore.Get(ctx, "SNAP1")
	require.NoError(t, err)
	assert.Equal(t, "Driver", got.Name)
}

func TestKeys(t *testing.T) {
	assert.Equal(t, "AB12CD", PlateKey(" ab-12 cd "))
	assert.Equal(t, "AB12", PlateKey("ＡＢ１２"))
	assert.Equal(t, "jose alvarez", NameKey("  José   Álvarez "))
	assert.Equal(t, `a\%b\_c\\`, escapeLike(`a%b_c\`))
}
