// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading and runtime management for
// gatelog.
//
// Configuration is read from TOML with defaults, environment overrides and
// validation.
//
// # Configuration Precedence
//
//   - Environment variables (GATELOG_*), optionally loaded from .env
//   - ~/.gatelog/config.toml (or --config)
//   - Built-in defaults
//
// # Runtime Changes
//
// A Store holds the active configuration. Update validates, saves and
// publishes a change; a Watcher reloads the file when it is edited on disk
// and publishes through the same Store:
//
//	store := config.NewStore(cfg, path)
//	unsubscribe := store.Subscribe(func(c *config.Config) {
//	    scheduler.Apply(c.BackupSettings())
//	})
//	defer unsubscribe()
//
// Durations are written as strings ("3h", "5m", "300ms").
package config
