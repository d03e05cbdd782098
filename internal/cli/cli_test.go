// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/jeranaias/gatelog/internal/config"
	"github.com/jeranaias/gatelog/internal/visitors"
)

type scriptedPrompter struct {
	answers []string
	asked   []string
	closed  int
}

func (p *scriptedPrompter) next(prompt string) (string, error) {
	p.asked = append(p.asked, prompt)
	if len(p.answers) == 0 {
		return "", ErrAborted
	}
	a := p.answers[0]
	p.answers = p.answers[1:]
	return a, nil
}

func (p *scriptedPrompter) Line(prompt string) (string, error)   { return p.next(prompt) }
func (p *scriptedPrompter) Secret(prompt string) (string, error) { return p.next(prompt) }
func (p *scriptedPrompter) Close() error {
	p.closed++
	return nil
}

type cliHarness struct {
	dir     string
	cfgPath string
	prompts *scriptedPrompter
}

func newCLIHarness(t *testing.T) *cliHarness {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.DataDir = dir
	cfg.Backup.Enabled = false
	cfg.Backup.Retention = 2
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, config.SaveTOML(cfg, path))
	return &cliHarness{dir: dir, cfgPath: path, prompts: &scriptedPrompter{}}
}

func (h *cliHarness) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	g := &Global{
		Out:         &out,
		Err:         &errOut,
		NewPrompter: func() (Prompter, error) { return h.prompts, nil },
		BcryptCost:  bcrypt.MinCost,
	}
	defer g.Close()
	err := Execute(append([]string{"-c", h.cfgPath}, args...), g)
	return out.String(), err
}

func (h *cliHarness) mustRun(t *testing.T, args ...string) string {
	t.Helper()
	out, err := h.run(t, args...)
	require.NoError(t, err, "gatelog %s", strings.Join(args, " "))
	return out
}

func decodeData(t *testing.T, out string, data any) {
	t.Helper()
	var resp struct {
		Success bool            `json:"success"`
		Data    json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.True(t, resp.Success)
	require.NoError(t, json.Unmarshal(resp.Data, data))
}

// =============================================================================
// CONFIG
// =============================================================================

func TestConfig_SetGet(t *testing.T) {
	h := newCLIHarness(t)

	h.mustRun(t, "config", "set", "session.warning_window", "45s")
	assert.Equal(t, "45s\n", h.mustRun(t, "config", "get", "session.warning_window"))

	_, err := h.run(t, "config", "set", "session.warning_window", "soon")
	require.Error(t, err)

	// A warning window longer than the timeout fails validation and is not saved.
	_, err = h.run(t, "config", "set", "session.warning_window", "10h")
	require.Error(t, err)
	assert.Equal(t, "45s\n", h.mustRun(t, "config", "get", "session.warning_window"))

	_, err = h.run(t, "config", "set", "backup.last_backup_at", "2025-01-01T00:00:00Z")
	require.Error(t, err)
	_, err = h.run(t, "config", "get", "no.such.key")
	require.Error(t, err)
}

func TestConfig_InitRefusesToOverwrite(t *testing.T) {
	h := newCLIHarness(t)
	_, err := h.run(t, "config", "init")
	require.Error(t, err)

	h.mustRun(t, "config", "init", "--force")
	cfg := config.Default()
	require.NoError(t, config.LoadTOML(cfg, h.cfgPath))
	assert.Empty(t, cfg.DataDir)
}

func TestConfig_ShowRedactsPassphrase(t *testing.T) {
	h := newCLIHarness(t)
	h.mustRun(t, "config", "set", "backup.passphrase", "correct horse")

	out := h.mustRun(t, "config", "show")
	assert.NotContains(t, out, "correct horse")
	assert.Contains(t, out, "[REDACTED]")
	assert.Equal(t, "[REDACTED]\n", h.mustRun(t, "config", "get", "backup.passphrase"))
}

func TestConfig_PathAndKeys(t *testing.T) {
	h := newCLIHarness(t)
	assert.Equal(t, h.cfgPath+"\n", h.mustRun(t, "config", "path"))
	assert.Contains(t, h.mustRun(t, "config", "keys"), "backup.interval\n")
}

// =============================================================================
// USERS
// =============================================================================

func TestUser_AddListRemove(t *testing.T) {
	h := newCLIHarness(t)
	h.prompts.answers = []string{"4821", "4821"}

	out := h.mustRun(t, "user", "add", "guard1", "--display", "Dana")
	assert.Contains(t, out, "Operator guard1 added")
	assert.Equal(t, []string{"PIN: ", "Repeat PIN: "}, h.prompts.asked)
	assert.Equal(t, 1, h.prompts.closed)

	var users []struct {
		Name        string
		DisplayName string
	}
	decodeData(t, h.mustRun(t, "user", "list", "--json"), &users)
	require.Len(t, users, 1)
	assert.Equal(t, "Dana", users[0].DisplayName)

	h.prompts.answers = []string{"n"}
	assert.Contains(t, h.mustRun(t, "user", "remove", "guard1"), "cancelled")

	h.mustRun(t, "user", "remove", "guard1", "-y")
	assert.Contains(t, h.mustRun(t, "user", "list"), "No operators")
}

func TestUser_AddWithTOTPPrintsKey(t *testing.T) {
	h := newCLIHarness(t)
	h.prompts.answers = []string{"123456", "123456"}
	out := h.mustRun(t, "user", "add", "guard2", "--totp")
	assert.Contains(t, out, "otpauth://totp/")
}

func TestUser_AddRejectsMismatchedPIN(t *testing.T) {
	h := newCLIHarness(t)
	h.prompts.answers = []string{"4821", "4822"}
	_, err := h.run(t, "user", "add", "guard1")
	require.ErrorContains(t, err, "do not match")

	h.prompts.answers = nil
	_, err = h.run(t, "user", "add", "guard1")
	require.ErrorIs(t, err, ErrAborted)
}

// =============================================================================
// BACKUPS
// =============================================================================

type backupJSON struct {
	ID   string `json:"id"`
	Kind string `json:"kind"`
	Path string `json:"path"`
}

func (h *cliHarness) createBackup(t *testing.T) backupJSON {
	t.Helper()
	var out struct {
		Backup backupJSON `json:"backup"`
	}
	decodeData(t, h.mustRun(t, "backup", "create", "--json"), &out)
	require.NotEmpty(t, out.Backup.ID)
	return out.Backup
}

func TestBackup_CreateListVerifyRestore(t *testing.T) {
	h := newCLIHarness(t)
	b := h.createBackup(t)
	assert.Equal(t, "manual", b.Kind)
	assert.FileExists(t, b.Path)

	var list []backupJSON
	decodeData(t, h.mustRun(t, "backup", "list", "--json"), &list)
	require.Len(t, list, 1)
	assert.Equal(t, b.ID, list[0].ID)

	assert.Contains(t, h.mustRun(t, "backup", "verify", b.ID), "verified")

	h.mustRun(t, "backup", "restore", b.ID)
	assert.FileExists(t, filepath.Join(h.dir, "restored", b.ID+".db"))

	dest := filepath.Join(t.TempDir(), "copy.db")
	h.mustRun(t, "backup", "restore", b.ID, "-o", dest)
	assert.FileExists(t, dest)

	_, err := h.run(t, "backup", "verify", "missing")
	require.Error(t, err)
}

func TestBackup_CreateAppliesRetention(t *testing.T) {
	h := newCLIHarness(t)
	for i := 0; i < 3; i++ {
		h.createBackup(t)
	}
	var list []backupJSON
	decodeData(t, h.mustRun(t, "backup", "list", "--json"), &list)
	assert.Len(t, list, 2)

	var res struct {
		Deleted int `json:"deleted"`
		Kept    int `json:"kept"`
	}
	decodeData(t, h.mustRun(t, "backup", "clean", "--retain", "1", "--json"), &res)
	assert.Equal(t, 1, res.Deleted)
	assert.Equal(t, 1, res.Kept)
}

func TestBackup_ReplaceRestoresLiveDatabase(t *testing.T) {
	h := newCLIHarness(t)
	seedVisitor(t, h.dir, "KEEP1")
	b := h.createBackup(t)
	seedVisitor(t, h.dir, "LATER1")

	h.prompts.answers = []string{"yes"}
	out := h.mustRun(t, "backup", "restore", b.ID, "--replace")
	assert.Contains(t, out, "replaced")

	db, err := visitors.Open(filepath.Join(h.dir, "visitors.db"))
	require.NoError(t, err)
	defer db.Close()
	_, err = db.Get(context.Background(), "KEEP1")
	require.NoError(t, err)
	_, err = db.Get(context.Background(), "LATER1")
	require.ErrorIs(t, err, visitors.ErrNotFound)
}

func TestBackup_DeleteAndStatus(t *testing.T) {
	h := newCLIHarness(t)
	b := h.createBackup(t)

	out := h.mustRun(t, "backup", "status")
	assert.Contains(t, out, "disabled")
	assert.Contains(t, out, "never")

	h.mustRun(t, "backup", "delete", b.ID, "-y")
	assert.NoFileExists(t, b.Path)
	assert.Contains(t, h.mustRun(t, "backup", "list"), "No backups")
}

// =============================================================================
// VISITORS
// =============================================================================

func seedVisitor(t *testing.T, dir, plate string) {
	t.Helper()
	db, err := visitors.Open(filepath.Join(dir, "visitors.db"))
	require.NoError(t, err)
	defer db.Close()
	_, err = db.RecordVisit(context.Background(), visitors.CheckIn{Plate: plate, Name: "Driver " + plate, Purpose: "Delivery", Operator: "guard1"})
	require.NoError(t, err)
}

func TestVisitors_SearchRecentStats(t *testing.T) {
	h := newCLIHarness(t)
	seedVisitor(t, h.dir, "AB12CD")
	seedVisitor(t, h.dir, "XY99ZZ")

	var found []struct{ Plate string }
	decodeData(t, h.mustRun(t, "visitors", "search", "ab", "--json"), &found)
	require.Len(t, found, 1)
	assert.Equal(t, "AB12CD", found[0].Plate)

	assert.Contains(t, h.mustRun(t, "visitors", "search", "qq"), "No visitors match")
	assert.Contains(t, h.mustRun(t, "visitors", "recent", "-n", "1"), "XY99ZZ")

	var stats map[string]int
	decodeData(t, h.mustRun(t, "visitors", "stats", "--json"), &stats)
	assert.Equal(t, 2, stats["visitors"])
	assert.Equal(t, 2, stats["visits"])
}

// =============================================================================
// HELPERS
// =============================================================================

func TestConfirm(t *testing.T) {
	for answer, want := range map[string]bool{"y": true, " YES ": true, "n": false, "": false, "sure": false} {
		ok, err := confirm(&scriptedPrompter{answers: []string{answer}}, "Go?")
		require.NoError(t, err)
		assert.Equal(t, want, ok, answer)
	}
}

func TestFormatBytes(t *testing.T) {
	assert.Equal(t, "512 B", formatBytes(512))
	assert.Equal(t, "1.5 KB", formatBytes(1536))
	assert.Equal(t, "2.0 MB", formatBytes(2<<20))
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, "DEBUG", parseLevel("debug").String())
	assert.Equal(t, "WARN", parseLevel("warn").String())
	assert.Equal(t, "INFO", parseLevel("bogus").String())
}

func TestLogToFile(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default()
	cfg.DataDir = dir
	g := &Global{}
	require.NoError(t, g.logToFile(cfg))
	g.Logger.Info("hello")
	require.NoError(t, g.Close())

	data, err := os.ReadFile(filepath.Join(dir, "gatelog.log"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "msg=hello")
}

func TestTTYRequiredError(t *testing.T) {
	err := &TTYRequiredError{Operation: "start the kiosk", Stdout: true}
	assert.Equal(t, "stdout is not a terminal; cannot start the kiosk", err.Error())
}
