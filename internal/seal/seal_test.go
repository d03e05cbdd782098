// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package seal

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSealer(t *testing.T) *Sealer {
	t.Helper()
	s, err := NewSealer(bytes.Repeat([]byte{7}, KeySize))
	require.NoError(t, err)
	return s
}

func TestSealer_ArmoredRoundTrip(t *testing.T) {
	s := testSealer(t)
	plain := []byte("visitor log snapshot")

	armored, err := s.SealArmored(plain)
	require.NoError(t, err)
	assert.True(t, IsArmored(armored))
	assert.NotContains(t, string(armored), "visitor")

	got, err := s.OpenArmored(armored)
	require.NoError(t, err)
	assert.Equal(t, plain, got)
}

func TestSealer_NoncesDiffer(t *testing.T) {
	s := testSealer(t)
	a, err := s.Seal([]byte("same"))
	require.NoError(t, err)
	b, err := s.Seal([]byte("same"))
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestSealer_RejectsTampering(t *testing.T) {
	s := testSealer(t)
	ct, err := s.Seal([]byte("payload"))
	require.NoError(t, err)

	ct[len(ct)-1] ^= 0xff
	_, err = s.Open(ct)
	require.ErrorIs(t, err, ErrDecryptionFailed)

	_, err = s.Open([]byte("short"))
	require.ErrorIs(t, err, ErrInvalidCiphertext)

	_, err = s.OpenArmored([]byte("plain text"))
	require.ErrorIs(t, err, ErrInvalidCiphertext)
}

func TestSealer_WrongKey(t *testing.T) {
	s := testSealer(t)
	other, err := NewSealer(bytes.Repeat([]byte{9}, KeySize))
	require.NoError(t, err)

	armored, err := s.SealArmored([]byte("payload"))
	require.NoError(t, err)
	_, err = other.OpenArmored(armored)
	require.ErrorIs(t, err, ErrDecryptionFailed)
}

func TestNewSealer_KeySize(t *testing.T) {
	_, err := NewSealer([]byte("too short"))
	require.Error(t, err)
}

func TestLoadOrCreate_RandomKeyIsStable(t *testing.T) {
	dir := t.TempDir()

	first, err := LoadOrCreate(dir, "")
	require.NoError(t, err)
	info, err := os.Stat(filepath.Join(dir, KeyFileName))
	require.NoError(t, err)
	assert.Equal(t, int64(KeySize), info.Size())

	armored, err := first.SealArmored([]byte("payload"))
	require.NoError(t, err)

	second, err := LoadOrCreate(dir, "")
	require.NoError(t, err)
	got, err := second.OpenArmored(armored)
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), got)
}

func TestLoadOrCreate_Passphrase(t *testing.T) {
	if testing.Short() {
		t.Skip("PBKDF2 derivation is slow")
	}
	dir := t.TempDir()

	first, err := LoadOrCreate(dir, "correct horse")
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(dir, SaltFileName))
	require.NoError(t, err)

	armored, err := first.SealArmored([]byte("payload"))
	require.NoError(t, err)

	same, err := LoadOrCreate(dir, "correct horse")
	require.NoError(t, err)
	_, err = same.OpenArmored(armored)
	require.NoError(t, err)

	wrong, err := LoadOrCreate(dir, "battery staple")
	require.NoError(t, err)
	_, err = wrong.OpenArmored(armored)
	require.ErrorIs(t, err, ErrDecryptionFailed)
}

func TestLoadOrCreate_CorruptKeyFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, KeyFileName), []byte("nope"), 0600))

	_, err := LoadOrCreate(dir, "")
	require.Error(t, err)
}
