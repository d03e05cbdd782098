// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package visitors

const (
	// SchemaVersion tracks the database schema version for migrations
	SchemaVersion = 1
)

// Schema creates the visitor log tables.
const Schema = `
CREATE TABLE IF NOT EXISTS metadata (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL
) WITHOUT ROWID;

-- One row per known vehicle; plate_key is the normalised plate.
CREATE TABLE IF NOT EXISTS visitors (
    plate_key TEXT PRIMARY KEY,
    plate TEXT NOT NULL,
    name TEXT NOT NULL,
    name_key TEXT NOT NULL,
    company TEXT NOT NULL DEFAULT '',
    host TEXT NOT NULL DEFAULT '',
    last_seen INTEGER NOT NULL, -- Unix milliseconds
    visits INTEGER NOT NULL DEFAULT 0
) WITHOUT ROWID;

CREATE INDEX IF NOT EXISTS idx_visitors_name_key ON visitors(name_key);
CREATE INDEX IF NOT EXISTS idx_visitors_last_seen ON visitors(last_seen);

-- Every check-in.
CREATE TABLE IF NOT EXISTS visits (
    id TEXT PRIMARY KEY,
    plate_key TEXT NOT NULL,
    purpose TEXT NOT NULL DEFAULT '',
    host TEXT NOT NULL DEFAULT '',
    operator TEXT NOT NULL DEFAULT '',
    checked_in_at INTEGER NOT NULL, -- Unix milliseconds
    FOREIGN KEY(plate_key) REFERENCES visitors(plate_key) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_visits_checked_in_at ON visits(checked_in_at);
CREATE INDEX IF NOT EXISTS idx_visits_plate_key ON visits(plate_key);
`

// InitMetadata records the schema version on first open.
const InitMetadata = `
INSERT OR IGNORE INTO metadata (key, value) VALUES ('schema_version', '1');
`
