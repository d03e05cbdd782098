// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package visitors stores the gate visitor log in SQLite and answers the
// plate autocomplete queries.
package visitors

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/jeranaias/gatelog/internal/clock"
)

// DefaultSearchLimit is the number of suggestions returned by Search.
const DefaultSearchLimit = 8

var (
	ErrNotFound      = errors.New("visitor not found")
	ErrInvalidPlate  = errors.New("plate is required")
	ErrInvalidName   = errors.New("visitor name is required")
	ErrDatabaseError = errors.New("database error")
)

// Visitor is a known vehicle and its driver.
type Visitor struct {
	Plate    string
	Name     string
	Company  string
	Host     string
	LastSeen time.Time
	Visits   int
}

// Visit is one check-in.
type Visit struct {
	ID          string
	Plate       string
	Purpose     string
	Host        string
	Operator    string
	CheckedInAt time.Time
}

// CheckIn is the form data for RecordVisit.
type CheckIn struct {
	Plate    string
	Name     string
	Company  string
	Host     string
	Purpose  string
	Operator string
}

// Option configures a Store.
type Option func(*Store)

// WithClock sets the clock used for check-in timestamps.
func WithClock(c clockwork.Clock) Option {
	return func(s *Store) { s.clock = c }
}

// WithSearchLimit sets the maximum number of suggestions.
func WithSearchLimit(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.limit = n
		}
	}
}

// Store is the SQLite-backed visitor log.
type Store struct {
	db    *sql.DB
	path  string
	clock clockwork.Clock
	limit int
}

// Open opens or creates the database at path.
func Open(path string, opts ...Option) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one writer at a time.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}
	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	if _, err := db.Exec(InitMetadata); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	s := &Store{db: db, path: path, limit: DefaultSearchLimit}
	for _, opt := range opts {
		opt(s)
	}
	s.clock = clock.OrReal(s.clock)
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file.
func (s *Store) Path() string {
	return s.path
}

// =============================================================================
// WRITES
// =============================================================================

// RecordVisit logs a check-in and creates or refreshes the visitor.
func (s *Store) RecordVisit(ctx context.Context, in CheckIn) (Visit, error) {
	plate := strings.TrimSpace(in.Plate)
	key := PlateKey(plate)
	if key == "" {
		return Visit{}, ErrInvalidPlate
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return Visit{}, ErrInvalidName
	}

	now := s.clock.Now()
	v := Visit{
		ID:          uuid.NewString(),
		Plate:       strings.ToUpper(plate),
		Purpose:     strings.TrimSpace(in.Purpose),
		Host:        strings.TrimSpace(in.Host),
		Operator:    in.Operator,
		CheckedInAt: now,
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Visit{}, fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO visitors (plate_key, plate, name, name_key, company, host, last_seen, visits)
		VALUES (?, ?, ?, ?, ?, ?, ?, 1)
		ON CONFLICT(plate_key) DO UPDATE SET
			plate = excluded.plate,
			name = excluded.name,
			name_key = excluded.name_key,
			company = excluded.company,
			host = excluded.host,
			last_seen = excluded.last_seen,
			visits = visits + 1`,
		key, v.Plate, name, NameKey(name), strings.TrimSpace(in.Company), v.Host, now.UnixMilli())
	if err != nil {
		return Visit{}, fmt.Errorf("failed to upsert visitor: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO visits (id, plate_key, purpose, host, operator, checked_in_at) VALUES (?, ?, ?, ?, ?, ?)`,
		v.ID, key, v.Purpose, v.Host, v.Operator, now.UnixMilli())
	if err != nil {
		return Visit{}, fmt.Errorf("failed to insert visit: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return Visit{}, fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}
	return v, nil
}

// =============================================================================
// QUERIES
// =============================================================================

// Search returns visitors whose plate starts with partial, or whose name
// has a word starting with partial, most recently seen first.
func (s *Store) Search(ctx context.Context, partial string) ([]Visitor, error) {
	plate := escapeLike(PlateKey(partial))
	name := escapeLike(NameKey(partial))
	if plate == "" && name == "" {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT plate, name, company, host, last_seen, visits
		FROM visitors
		WHERE (? != '' AND plate_key LIKE ? || '%' ESCAPE '\')
		   OR (? != '' AND (name_key LIKE ? || '%' ESCAPE '\' OR name_key LIKE '% ' || ? || '%' ESCAPE '\'))
		ORDER BY last_seen DESC
		LIMIT ?`,
		plate, plate, name, name, name, s.limit)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}
	defer rows.Close()
	return scanVisitors(rows)
}

// Get returns the visitor for plate.
func (s *Store) Get(ctx context.Context, plate string) (Visitor, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT plate, name, company, host, last_seen, visits
		FROM visitors WHERE plate_key = ?`, PlateKey(plate))
	if err != nil {
		return Visitor{}, fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}
	defer rows.Close()
	list, err := scanVisitors(rows)
	if err != nil {
		return Visitor{}, err
	}
	if len(list) == 0 {
		return Visitor{}, fmt.Errorf("%w: %s", ErrNotFound, plate)
	}
	return list[0], nil
}

// Recent returns the n most recent check-ins.
func (s *Store) Recent(ctx context.Context, n int) ([]Visit, error) {
	if n <= 0 {
		n = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT v.id, r.plate, v.purpose, v.host, v.operator, v.checked_in_at
		FROM visits v JOIN visitors r ON r.plate_key = v.plate_key
		ORDER BY v.checked_in_at DESC, v.rowid DESC
		LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}
	defer rows.Close()

	var out []Visit
	for rows.Next() {
		var v Visit
		var at int64
		if err := rows.Scan(&v.ID, &v.Plate, &v.Purpose, &v.Host, &v.Operator, &at); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDatabaseError, err)
		}
		v.CheckedInAt = time.UnixMilli(at)
		out = append(out, v)
	}
	return out, rows.Err()
}

// Count returns the number of known visitors and logged visits.
func (s *Store) Count(ctx context.Context) (visitors, visits int, err error) {
	err = s.db.QueryRowContext(ctx,
		`SELECT (SELECT COUNT(*) FROM visitors), (SELECT COUNT(*) FROM visits)`).Scan(&visitors, &visits)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}
	return visitors, visits, nil
}

func scanVisitors(rows *sql.Rows) ([]Visitor, error) {
	var out []Visitor
	for rows.Next() {
		var v Visitor
		var seen int64
		if err := rows.Scan(&v.Plate, &v.Name, &v.Company, &v.Host, &seen, &v.Visits); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDatabaseError, err)
		}
		v.LastSeen = time.UnixMilli(seen)
		out = append(out, v)
	}
	return out, rows.Err()
}

// =============================================================================
// BACKUP SOURCE
// =============================================================================

// SnapshotTo writes a consistent copy of the database to path.
func (s *Store) SnapshotTo(ctx context.Context, path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to clear snapshot path: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `VACUUM INTO ?`, path); err != nil {
		return fmt.Errorf("failed to snapshot database: %w", err)
	}
	return nil
}

// =============================================================================
// NORMALISATION
// =============================================================================

// PlateKey normalises a licence plate: compatibility-folded, upper case,
// letters and digits only.
func PlateKey(plate string) string {
	plate = norm.NFKC.String(plate)
	var b strings.Builder
	for _, r := range plate {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(unicode.ToUpper(r))
		}
	}
	return b.String()
}

// NameKey normalises a person's name: accents removed, lower case, single
// spaces.
func NameKey(name string) string {
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, name)
	if err != nil {
		folded = name
	}
	return strings.Join(strings.Fields(strings.ToLower(folded)), " ")
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
