// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"fmt"
	"sync"
	"time"

	"github.com/jeranaias/gatelog/internal/backup"
)

// Store is the thread-safe runtime holder of the active configuration.
// Every accepted change is published to subscribers with a private copy.
type Store struct {
	mu   sync.RWMutex
	cfg  *Config
	path string

	subMu  sync.Mutex
	subs   map[int]func(*Config)
	nextID int
}

// NewStore wraps cfg. When path is non-empty, Update persists to it.
func NewStore(cfg *Config, path string) *Store {
	if cfg == nil {
		cfg = Default()
		cfg.SetDefaults()
	}
	return &Store{
		cfg:  cfg.Clone(),
		path: path,
		subs: make(map[int]func(*Config)),
	}
}

// Path returns the backing file, or "" for an in-memory store.
func (s *Store) Path() string {
	return s.path
}

// Snapshot returns a copy of the current configuration.
func (s *Store) Snapshot() *Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg.Clone()
}

// Update applies fn to a copy, validates it, saves it and publishes it.
// The active configuration is unchanged if any step fails.
func (s *Store) Update(fn func(*Config)) error {
	s.mu.Lock()
	next := s.cfg.Clone()
	fn(next)
	if err := next.Validate(); err != nil {
		s.mu.Unlock()
		return fmt.Errorf("invalid config: %w", err)
	}
	if s.path != "" {
		if err := SaveTOML(next, s.path); err != nil {
			s.mu.Unlock()
			return err
		}
	}
	s.cfg = next
	s.mu.Unlock()

	s.publish(next)
	return nil
}

// Replace installs a configuration loaded elsewhere (a file reload)
// without writing it back.
func (s *Store) Replace(cfg *Config) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	next := cfg.Clone()
	s.mu.Lock()
	s.cfg = next
	s.mu.Unlock()

	s.publish(next)
	return nil
}

// Subscribe registers fn for future changes and returns its cancel func.
func (s *Store) Subscribe(fn func(*Config)) (unsubscribe func()) {
	s.subMu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	s.subMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.subMu.Lock()
			delete(s.subs, id)
			s.subMu.Unlock()
		})
	}
}

func (s *Store) publish(cfg *Config) {
	s.subMu.Lock()
	fns := make([]func(*Config), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.subMu.Unlock()

	for _, fn := range fns {
		fn(cfg.Clone())
	}
}

// BackupSettings implements backup.SettingsSource.
func (s *Store) BackupSettings() backup.Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg.BackupSettings()
}

// MarkBackupCompleted records a successful backup and persists it.
func (s *Store) MarkBackupCompleted(at time.Time) error {
	return s.Update(func(c *Config) {
		c.Backup.LastBackupAt = at.UTC().Truncate(time.Second)
	})
}

var _ backup.SettingsSource = (*Store)(nil)
