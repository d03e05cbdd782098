// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_UpdatePersistsAndPublishes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	s := NewStore(testConfig(t), path)

	var got []*Config
	unsubscribe := s.Subscribe(func(c *Config) { got = append(got, c) })

	require.NoError(t, s.Update(func(c *Config) { c.Backup.Enabled = false }))
	require.Len(t, got, 1)
	assert.False(t, got[0].Backup.Enabled)
	assert.False(t, s.Snapshot().Backup.Enabled)

	onDisk, err := LoadFromPath(path)
	require.NoError(t, err)
	assert.False(t, onDisk.Backup.Enabled)

	// Subscribers get their own copy.
	got[0].Backup.Retention = 99
	assert.Equal(t, 5, s.Snapshot().Backup.Retention)

	unsubscribe()
	unsubscribe()
	require.NoError(t, s.Update(func(c *Config) { c.Backup.Enabled = true }))
	assert.Len(t, got, 1)
}

func TestStore_InvalidUpdateIsRejected(t *testing.T) {
	s := NewStore(testConfig(t), "")
	published := 0
	s.Subscribe(func(*Config) { published++ })

	err := s.Update(func(c *Config) { c.Backup.Retention = 0 })
	require.Error(t, err)
	assert.Equal(t, 5, s.Snapshot().Backup.Retention)
	assert.Zero(t, published)
}

func TestStore_MarkBackupCompleted(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	s := NewStore(testConfig(t), path)
	at := time.Date(2025, 6, 1, 12, 0, 0, 500, time.Local)

	require.NoError(t, s.MarkBackupCompleted(at))

	st := s.BackupSettings()
	assert.True(t, st.LastBackupAt.Equal(at.Truncate(time.Second)))

	onDisk, err := LoadFromPath(path)
	require.NoError(t, err)
	assert.True(t, onDisk.Backup.LastBackupAt.Equal(at.Truncate(time.Second)))
}

func TestStore_ConcurrentAccess(t *testing.T) {
	s := NewStore(testConfig(t), "")
	var published atomic.Int32
	s.Subscribe(func(*Config) { published.Add(1) })

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func(n int) {
			defer wg.Done()
			_ = s.Update(func(c *Config) { c.Backup.Retention = n%10 + 1 })
		}(i)
		go func() {
			defer wg.Done()
			cfg := s.Snapshot()
			assert.NotNil(t, cfg)
			_ = s.BackupSettings()
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(50), published.Load())
}

func TestWatcher_ReloadsEditedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	cfg := testConfig(t)
	require.NoError(t, SaveTOML(cfg, path))

	s := NewStore(cfg, path)
	changes := make(chan *Config, 4)
	s.Subscribe(func(c *Config) { changes <- c })

	w, err := NewWatcher(s, WithDebounce(20*time.Millisecond))
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))
	defer w.Stop()

	edited := cfg.Clone()
	edited.Backup.Interval = Duration(2 * time.Hour)
	require.NoError(t, SaveTOML(edited, path))

	select {
	case c := <-changes:
		assert.Equal(t, 2*time.Hour, c.Backup.Interval.D())
	case <-time.After(5 * time.Second):
		t.Fatal("reload was not published")
	}
	assert.Equal(t, 2*time.Hour, s.Snapshot().Backup.Interval.D())
}

func TestWatcher_KeepsSettingsOnInvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	cfg := testConfig(t)
	require.NoError(t, SaveTOML(cfg, path))

	s := NewStore(cfg, path)
	var published atomic.Int32
	s.Subscribe(func(*Config) { published.Add(1) })

	w, err := NewWatcher(s, WithDebounce(10*time.Millisecond))
	require.NoError(t, err)
	require.NoError(t, w.Start(context.Background()))
	defer w.Stop()

	require.NoError(t, os.WriteFile(path, []byte("[backup]\nretention = 0\ninterval = \"1s\"\n"), 0600))

	require.Never(t, func() bool { return published.Load() > 0 }, 300*time.Millisecond, 10*time.Millisecond)
	assert.Equal(t, 24*time.Hour, s.Snapshot().Backup.Interval.D())
}

func TestWatcher_RequiresFileBackedStore(t *testing.T) {
	_, err := NewWatcher(NewStore(nil, ""))
	require.Error(t, err)
}

func TestWatcher_StopIsIdempotent(t *testing.T) {
	s := NewStore(testConfig(t), filepath.Join(t.TempDir(), "config.toml"))
	w, err := NewWatcher(s)
	require.NoError(t, err)
	require.NoError(t, w.Start(context.Background()))
	require.NoError(t, w.Stop())
	require.NoError(t, w.Stop())
}

func TestSameConfig(t *testing.T) {
	a := Default()
	b := Default()
	at := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	a.Backup.LastBackupAt = at
	b.Backup.LastBackupAt = at.In(time.FixedZone("X", 3600))
	assert.True(t, sameConfig(a, b))

	b.Backup.Retention = 6
	assert.False(t, sameConfig(a, b))
}
