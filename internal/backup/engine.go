// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package backup provides encrypted backups of the kiosk visitor log and the
// scheduler that takes them automatically.
//
// This implements:
//   - Engine: snapshot, checksum, encrypt and store backups with metadata
//   - Retention cleanup that keeps the newest N backups
//   - Verification and restoration with integrity checks
//   - Scheduler: periodic due-check with at-most-one backup in flight
package backup

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/jeranaias/gatelog/internal/clock"
	"github.com/jeranaias/gatelog/internal/seal"
	"github.com/jeranaias/gatelog/internal/util"
)

// =============================================================================
// CONSTANTS
// =============================================================================

const (
	// FileExt is the extension of encrypted backup files.
	FileExt = ".backup"

	// MetadataExt is the extension of backup metadata files.
	MetadataExt = ".meta"

	// DefaultRetention is the number of backups kept by default.
	DefaultRetention = 5

	// FormatVersion is written into every metadata file.
	FormatVersion = "1"
)

// Kind records what started a backup.
type Kind string

const (
	KindAuto   Kind = "auto"
	KindManual Kind = "manual"
)

var (
	// ErrNotFound is returned for an unknown backup ID.
	ErrNotFound = errors.New("backup not found")

	// ErrChecksumMismatch is returned when a decrypted backup fails its
	// integrity check.
	ErrChecksumMismatch = errors.New("backup integrity check failed: checksum mismatch")
)

// =============================================================================
// BACKUP STRUCTURES
// =============================================================================

// Backup describes a stored backup.
type Backup struct {
	ID        string    `json:"id"`
	Kind      Kind      `json:"kind"`
	CreatedAt time.Time `json:"created_at"`
	Size      int64     `json:"size"`     // encrypted size
	Checksum  string    `json:"checksum"` // SHA-256 of the plaintext snapshot
	Path      string    `json:"path"`
}

// Metadata is stored next to each encrypted backup.
type Metadata struct {
	ID            string    `json:"id"`
	Kind          Kind      `json:"kind"`
	CreatedAt     time.Time `json:"created_at"`
	OriginalSize  int64     `json:"original_size"`
	EncryptedSize int64     `json:"encrypted_size"`
	Checksum      string    `json:"checksum"`
	Version       string    `json:"version"`
}

// CleanupResult reports a retention cleanup.
type CleanupResult struct {
	Deleted int      `json:"deleted"`
	Kept    int      `json:"kept"`
	IDs     []string `json:"ids,omitempty"`
}

// Source produces a consistent snapshot of the data to back up.
type Source interface {
	SnapshotTo(ctx context.Context, path string) error
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context, path string) error

// SnapshotTo calls f.
func (f SourceFunc) SnapshotTo(ctx context.Context, path string) error { return f(ctx, path) }

// =============================================================================
// ENGINE
// =============================================================================

// Engine creates, lists, verifies, restores and prunes encrypted backups in a
// single directory.
type Engine struct {
	dir    string
	source Source
	sealer *seal.Sealer
	clock  clockwork.Clock
	logger *slog.Logger

	mu sync.Mutex
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithEngineClock sets the clock used for backup timestamps.
func WithEngineClock(c clockwork.Clock) EngineOption {
	return func(e *Engine) { e.clock = c }
}

// WithEngineLogger sets the engine logger.
func WithEngineLogger(l *slog.Logger) EngineOption {
	return func(e *Engine) { e.logger = l }
}

// NewEngine creates an engine storing backups in dir.
func NewEngine(dir string, source Source, sealer *seal.Sealer, opts ...EngineOption) (*Engine, error) {
	if source == nil {
		return nil, errors.New("backup engine requires a source")
	}
	if sealer == nil {
		return nil, errors.New("backup engine requires a sealer")
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create backup directory: %w", err)
	}

	e := &Engine{dir: dir, source: source, sealer: sealer}
	for _, opt := range opts {
		opt(e)
	}
	e.clock = clock.OrReal(e.clock)
	if e.logger == nil {
		e.logger = slog.Default()
	}
	return e, nil
}

// Dir returns the backup directory.
func (e *Engine) Dir() string {
	return e.dir
}

// CreateBackup snapshots the source, encrypts it and stores it with metadata.
func (e *Engine) CreateBackup(ctx context.Context, kind Kind) (*Backup, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.clock.Now()
	id := fmt.Sprintf("%s_%s_%s", kind, now.UTC().Format("20060102_150405"), uuid.NewString()[:8])

	snapshot := filepath.Join(e.dir, "."+id+".snapshot")
	defer os.Remove(snapshot)
	if err := e.source.SnapshotTo(ctx, snapshot); err != nil {
		return nil, fmt.Errorf("failed to snapshot data: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	plaintext, err := os.ReadFile(snapshot)
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}
	checksum := checksumOf(plaintext)

	armored, err := e.sealer.SealArmored(plaintext)
	seal.ZeroBytes(plaintext)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt backup: %w", err)
	}

	path := e.backupPath(id)
	if err := util.AtomicWriteFileWithDir(path, armored, 0600, 0700); err != nil {
		return nil, fmt.Errorf("failed to write backup: %w", err)
	}

	meta := &Metadata{
		ID:            id,
		Kind:          kind,
		CreatedAt:     now,
		OriginalSize:  int64(len(plaintext)),
		EncryptedSize: int64(len(armored)),
		Checksum:      checksum,
		Version:       FormatVersion,
	}
	if err := e.saveMetadata(meta); err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("failed to save metadata: %w", err)
	}

	e.logger.Info("backup event",
		"backup_event", "BACKUP_CREATED",
		"backup_id", id,
		"kind", string(kind),
		"size", meta.EncryptedSize)

	return &Backup{
		ID:        id,
		Kind:      kind,
		CreatedAt: now,
		Size:      meta.EncryptedSize,
		Checksum:  checksum,
		Path:      path,
	}, nil
}

// ListBackups returns all backups, newest first. Entries with unreadable
// metadata or a missing backup file are skipped.
func (e *Engine) ListBackups() ([]*Backup, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.listLocked()
}

// Latest returns the newest backup, or nil when there is none.
func (e *Engine) Latest() (*Backup, error) {
	backups, err := e.ListBackups()
	if err != nil || len(backups) == 0 {
		return nil, err
	}
	return backups[0], nil
}

// CleanOldBackups deletes the oldest backups beyond retain.
func (e *Engine) CleanOldBackups(ctx context.Context, retain int) (CleanupResult, error) {
	if retain < 1 {
		return CleanupResult{}, fmt.Errorf("retention must be at least 1, got %d", retain)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	backups, err := e.listLocked()
	if err != nil {
		return CleanupResult{}, err
	}
	if len(backups) <= retain {
		return CleanupResult{Kept: len(backups)}, nil
	}

	result := CleanupResult{Kept: retain}
	for _, b := range backups[retain:] {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if err := e.deleteLocked(b.ID); err != nil {
			return result, err
		}
		result.Deleted++
		result.IDs = append(result.IDs, b.ID)
		e.logger.Info("backup event",
			"backup_event", "BACKUP_RETENTION_DELETE",
			"backup_id", b.ID,
			"reason", "max_backups_exceeded")
	}
	return result, nil
}

// DeleteBackup removes a backup and its metadata.
func (e *Engine) DeleteBackup(id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, err := e.loadMetadata(id); err != nil {
		return err
	}
	return e.deleteLocked(id)
}

// Verify decrypts a backup and checks its checksum.
func (e *Engine) Verify(id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	plaintext, err := e.openLocked(id)
	if err != nil {
		return err
	}
	seal.ZeroBytes(plaintext)

	e.logger.Info("backup event", "backup_event", "BACKUP_VERIFIED", "backup_id", id)
	return nil
}

// Restore decrypts a verified backup to dest.
func (e *Engine) Restore(id, dest string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	plaintext, err := e.openLocked(id)
	if err != nil {
		return err
	}
	defer seal.ZeroBytes(plaintext)

	if err := util.AtomicWriteFileWithDir(dest, plaintext, 0600, 0700); err != nil {
		return fmt.Errorf("failed to write restored data: %w", err)
	}

	e.logger.Info("backup event",
		"backup_event", "BACKUP_RESTORED",
		"backup_id", id,
		"dest", dest)
	return nil
}

// =============================================================================
// INTERNALS
// =============================================================================

func (e *Engine) backupPath(id string) string {
	return filepath.Join(e.dir, id+FileExt)
}

func (e *Engine) metadataPath(id string) string {
	return filepath.Join(e.dir, id+MetadataExt)
}

func (e *Engine) listLocked() ([]*Backup, error) {
	entries, err := os.ReadDir(e.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read backup directory: %w", err)
	}

	var backups []*Backup
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, MetadataExt) {
			continue
		}
		meta, err := e.loadMetadata(strings.TrimSuffix(name, MetadataExt))
		if err != nil {
			continue
		}
		path := e.backupPath(meta.ID)
		info, err := os.Stat(path)
		if err != nil {
			continue
		}
		backups = append(backups, &Backup{
			ID:        meta.ID,
			Kind:      meta.Kind,
			CreatedAt: meta.CreatedAt,
			Size:      info.Size(),
			Checksum:  meta.Checksum,
			Path:      path,
		})
	}

	sort.Slice(backups, func(i, j int) bool {
		if backups[i].CreatedAt.Equal(backups[j].CreatedAt) {
			return backups[i].ID > backups[j].ID
		}
		return backups[i].CreatedAt.After(backups[j].CreatedAt)
	})
	return backups, nil
}

func (e *Engine) openLocked(id string) ([]byte, error) {
	meta, err := e.loadMetadata(id)
	if err != nil {
		return nil, err
	}
	armored, err := os.ReadFile(e.backupPath(id))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to read backup: %w", err)
	}
	plaintext, err := e.sealer.OpenArmored(armored)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt backup: %w", err)
	}
	if checksumOf(plaintext) != meta.Checksum {
		seal.ZeroBytes(plaintext)
		return nil, ErrChecksumMismatch
	}
	return plaintext, nil
}

func (e *Engine) deleteLocked(id string) error {
	for _, path := range []string{e.backupPath(id), e.metadataPath(id)} {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to delete %s: %w", filepath.Base(path), err)
		}
	}
	return nil
}

func (e *Engine) saveMetadata(meta *Metadata) error {
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return err
	}
	return util.AtomicWriteFile(e.metadataPath(meta.ID), data, 0600)
}

func (e *Engine) loadMetadata(id string) (*Metadata, error) {
	if id == "" || strings.ContainsAny(id, `/\`) || strings.Contains(id, "..") {
		return nil, fmt.Errorf("%w: invalid id %q", ErrNotFound, id)
	}
	data, err := os.ReadFile(e.metadataPath(id))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, err
	}
	var meta Metadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("invalid metadata for %s: %w", id, err)
	}
	return &meta, nil
}

func checksumOf(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
