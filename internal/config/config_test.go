// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) *Config {
	t.Helper()
	cfg := Default()
	cfg.DataDir = t.TempDir()
	cfg.SetDefaults()
	return cfg
}

func TestConfig_Default(t *testing.T) {
	cfg := testConfig(t)

	assert.Equal(t, 3*time.Hour, cfg.Session.InactivityTimeout.D())
	assert.Equal(t, 5*time.Minute, cfg.Session.WarningWindow.D())
	assert.True(t, cfg.Backup.Enabled)
	assert.Equal(t, 5, cfg.Backup.Retention)
	assert.Equal(t, filepath.Join(cfg.DataDir, "backups"), cfg.Backup.Dir)
	assert.Equal(t, filepath.Join(cfg.DataDir, "users.json"), cfg.Auth.UsersFile)
	assert.Equal(t, 300*time.Millisecond, cfg.Search.SearchDelay.D())
	require.NoError(t, cfg.Validate())
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		field  string
	}{
		{"warning longer than inactivity", func(c *Config) { c.Session.WarningWindow = c.Session.InactivityTimeout }, "session"},
		{"warning too short", func(c *Config) { c.Session.WarningWindow = Duration(time.Second) }, "session"},
		{"interval too short", func(c *Config) { c.Backup.Interval = Duration(time.Second) }, "backup.interval"},
		{"retention zero", func(c *Config) { c.Backup.Retention = 0 }, "backup.retention"},
		{"retention too large", func(c *Config) { c.Backup.Retention = MaxRetention + 1 }, "backup.retention"},
		{"no login attempts", func(c *Config) { c.Auth.MaxLoginAttempts = 0 }, "auth.max_login_attempts"},
		{"grace below search delay", func(c *Config) { c.Search.Grace = Duration(time.Millisecond) }, "search.grace"},
		{"metrics without address", func(c *Config) { c.Metrics.Enabled = true; c.Metrics.ListenAddr = "" }, "metrics.listen_addr"},
		{"bad log level", func(c *Config) { c.Log.Level = "verbose" }, "log.level"},
		{"bad theme", func(c *Config) { c.UI.Theme = "neon" }, "ui.theme"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(t)
			tt.modify(cfg)

			err := cfg.Validate()
			require.Error(t, err)
			var verrs ValidateErrors
			require.True(t, errors.As(err, &verrs))
			require.Len(t, verrs, 1)
			assert.Equal(t, tt.field, verrs[0].Field)
		})
	}
}

func TestConfig_SaveLoadRoundTrip(t *testing.T) {
	cfg := testConfig(t)
	cfg.Session.InactivityTimeout = Duration(90 * time.Minute)
	cfg.Backup.Interval = Duration(6 * time.Hour)
	cfg.Backup.LastBackupAt = time.Date(2025, 3, 1, 8, 30, 0, 0, time.UTC)
	cfg.UI.SiteName = "North Gate"

	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, SaveTOML(cfg, path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `inactivity_timeout = "1h30m0s"`)

	loaded, err := LoadFromPath(path)
	require.NoError(t, err)
	assert.Equal(t, 90*time.Minute, loaded.Session.InactivityTimeout.D())
	assert.Equal(t, 6*time.Hour, loaded.Backup.Interval.D())
	assert.True(t, cfg.Backup.LastBackupAt.Equal(loaded.Backup.LastBackupAt))
	assert.Equal(t, "North Gate", loaded.UI.SiteName)
}

func TestConfig_NeverBackedUpOmitsTimestamp(t *testing.T) {
	cfg := testConfig(t)
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, SaveTOML(cfg, path))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "last_backup_at")

	loaded, err := LoadFromPath(path)
	require.NoError(t, err)
	assert.True(t, loaded.Backup.LastBackupAt.IsZero())
}

func TestConfig_PartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := "data_dir = \"" + filepath.ToSlash(t.TempDir()) + "\"\n\n[backup]\nenabled = false\ninterval = \"12h\"\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := LoadFromPath(path)
	require.NoError(t, err)
	assert.False(t, cfg.Backup.Enabled)
	assert.Equal(t, 12*time.Hour, cfg.Backup.Interval.D())
	assert.Equal(t, 5, cfg.Backup.Retention)
	assert.Equal(t, 3*time.Hour, cfg.Session.InactivityTimeout.D())

	// Permissions are tightened on load.
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
}

func TestConfig_LoadRejectsInvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("[session]\nwarning_window = \"soon\"\n"), 0600))
	_, err := LoadFromPath(path)
	require.Error(t, err)

	require.NoError(t, os.WriteFile(path, []byte("[backup]\nretention = -1\n"), 0600))
	_, err = LoadFromPath(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "backup.retention")
}

func TestConfig_LoadMissingFileUsesDefaults(t *testing.T) {
	t.Setenv("GATELOG_DATA_DIR", t.TempDir())
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	require.NoError(t, err)
	assert.Equal(t, CurrentVersion, cfg.Version)
}

func TestConfig_ApplyEnvOverrides(t *testing.T) {
	t.Setenv("GATELOG_INACTIVITY_TIMEOUT", "45m")
	t.Setenv("GATELOG_WARNING_WINDOW", "2m")
	t.Setenv("GATELOG_BACKUP_ENABLED", "false")
	t.Setenv("GATELOG_BACKUP_RETENTION", "9")
	t.Setenv("GATELOG_BACKUP_PASSPHRASE", "correct horse")
	t.Setenv("GATELOG_METRICS_ADDR", ":9999")
	t.Setenv("GATELOG_BACKUP_INTERVAL", "not-a-duration")

	cfg := testConfig(t)
	cfg.ApplyEnvOverrides()

	assert.Equal(t, 45*time.Minute, cfg.Session.InactivityTimeout.D())
	assert.Equal(t, 2*time.Minute, cfg.Session.WarningWindow.D())
	assert.False(t, cfg.Backup.Enabled)
	assert.Equal(t, 9, cfg.Backup.Retention)
	assert.Equal(t, "correct horse", cfg.Backup.Passphrase)
	assert.True(t, cfg.Metrics.Enabled)
	assert.Equal(t, ":9999", cfg.Metrics.ListenAddr)
	// Invalid values are ignored.
	assert.Equal(t, 24*time.Hour, cfg.Backup.Interval.D())
}

func TestLoadEnvFiles(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envPath, []byte("GATELOG_TEST_ENV_FILE=from-file\n"), 0600))
	t.Cleanup(func() { os.Unsetenv("GATELOG_TEST_ENV_FILE") })

	require.NoError(t, LoadEnvFiles(filepath.Join(dir, "missing.env"), envPath))
	assert.Equal(t, "from-file", os.Getenv("GATELOG_TEST_ENV_FILE"))
}

func TestConfig_GetSet(t *testing.T) {
	cfg := testConfig(t)

	v, err := cfg.Get("session.warning_window")
	require.NoError(t, err)
	assert.Equal(t, Duration(5*time.Minute), v)

	require.NoError(t, cfg.Set("session.warning_window", "2m"))
	assert.Equal(t, 2*time.Minute, cfg.Session.WarningWindow.D())

	require.NoError(t, cfg.Set("backup.retention", "7"))
	assert.Equal(t, 7, cfg.Backup.Retention)

	require.NoError(t, cfg.Set("backup.enabled", "no"))
	assert.False(t, cfg.Backup.Enabled)

	require.NoError(t, cfg.Set("ui.site-name", "East Gate"))
	assert.Equal(t, "East Gate", cfg.UI.SiteName)

	_, err = cfg.Get("backup.nope")
	require.Error(t, err)
	require.Error(t, cfg.Set("backup.retention", "many"))
	require.Error(t, cfg.Set("version.major", "2"))
}

func TestAllKeys(t *testing.T) {
	keys := AllKeys()
	assert.Contains(t, keys, "session.inactivity_timeout")
	assert.Contains(t, keys, "backup.last_backup_at")
	assert.Contains(t, keys, "search.grace")
	assert.NotContains(t, keys, "backup")

	cfg := testConfig(t)
	for _, k := range keys {
		_, err := cfg.Get(k)
		assert.NoError(t, err, k)
	}
}

func TestConfig_StringRedactsPassphrase(t *testing.T) {
	cfg := testConfig(t)
	cfg.Backup.Passphrase = "hunter2"

	out := cfg.String()
	assert.NotContains(t, out, "hunter2")
	assert.Contains(t, out, "[REDACTED]")
	assert.Equal(t, "hunter2", cfg.Backup.Passphrase)
}

func TestConfig_DerivedSettings(t *testing.T) {
	cfg := testConfig(t)
	at := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	cfg.Backup.LastBackupAt = at

	st := cfg.BackupSettings()
	assert.True(t, st.Enabled)
	assert.Equal(t, 24*time.Hour, st.Interval)
	assert.Equal(t, at, st.LastBackupAt)

	to := cfg.SessionTimeouts()
	assert.Equal(t, 3*time.Hour, to.Inactivity)

	ac := cfg.AutofillConfig()
	assert.Equal(t, 350*time.Millisecond, ac.Grace)
}
