// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli implements the gatelog command line.
//
// The default command starts the kiosk TUI. The remaining commands are
// maintenance tools that run against the same config and data directory:
//
//	gatelog                      start the kiosk (same as "gatelog run")
//	gatelog backup create        take an encrypted backup and apply retention
//	gatelog backup list          list backups, newest first
//	gatelog backup restore <id>  decrypt a backup to a file
//	gatelog user add <name>      add an operator (prompts for the PIN)
//	gatelog visitors search <q>  query the visitor log
//	gatelog config set <k> <v>   change one setting
//
// List commands accept --json and write a JSONResponse envelope.
package cli
