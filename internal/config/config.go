// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"

	"github.com/jeranaias/gatelog/internal/autofill"
	"github.com/jeranaias/gatelog/internal/backup"
	"github.com/jeranaias/gatelog/internal/session"
	"github.com/jeranaias/gatelog/internal/util"
)

// CurrentVersion is written to new config files.
const CurrentVersion = "1"

// Limits enforced by Validate.
const (
	MinBackupInterval = time.Minute
	MaxRetention      = 1000
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Duration is a time.Duration that reads and writes as "3h", "5m30s".
type Duration time.Duration

// D returns the value as a time.Duration.
func (d Duration) D() time.Duration { return time.Duration(d) }

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", text, err)
	}
	*d = Duration(parsed)
	return nil
}

// Config represents the complete gatelog configuration.
type Config struct {
	Version string `toml:"version"`

	// DataDir holds the visitor database, users file and key material.
	DataDir string `toml:"data_dir"`

	Session SessionConfig `toml:"session"`
	Backup  BackupConfig  `toml:"backup"`
	Auth    AuthConfig    `toml:"auth"`
	Search  SearchConfig  `toml:"search"`
	Metrics MetricsConfig `toml:"metrics"`
	UI      UIConfig      `toml:"ui"`
	Log     LogConfig     `toml:"log"`
}

// SessionConfig controls the idle watchdog and warning countdown.
type SessionConfig struct {
	InactivityTimeout Duration `toml:"inactivity_timeout"`
	WarningWindow     Duration `toml:"warning_window"`
}

// BackupConfig controls scheduled backups.
type BackupConfig struct {
	Enabled   bool     `toml:"enabled"`
	Interval  Duration `toml:"interval"`
	Retention int      `toml:"retention"`

	// Dir defaults to <data_dir>/backups.
	Dir string `toml:"dir"`

	// Passphrase derives the backup key. Empty uses a random key file.
	Passphrase string `toml:"passphrase,omitempty"`

	// PollInterval overrides the derived due-check period.
	PollInterval Duration `toml:"poll_interval,omitempty"`

	// LastBackupAt is maintained by the scheduler.
	LastBackupAt time.Time `toml:"last_backup_at,omitempty"`
}

// AuthConfig controls operator sign-in.
type AuthConfig struct {
	MaxLoginAttempts int      `toml:"max_login_attempts"`
	LockoutDuration  Duration `toml:"lockout_duration"`
	RequireTOTP      bool     `toml:"require_totp"`

	// UsersFile defaults to <data_dir>/users.json.
	UsersFile string `toml:"users_file"`
}

// SearchConfig controls the autocomplete field timings.
type SearchConfig struct {
	SearchDelay    Duration `toml:"search_delay"`
	PropagateDelay Duration `toml:"propagate_delay"`
	Grace          Duration `toml:"grace"`
	Timeout        Duration `toml:"timeout"`
	MinQueryLen    int      `toml:"min_query_len"`
	MaxResults     int      `toml:"max_results"`
}

// MetricsConfig controls the optional Prometheus listener.
type MetricsConfig struct {
	Enabled    bool   `toml:"enabled"`
	ListenAddr string `toml:"listen_addr"`
}

// UIConfig contains terminal presentation settings.
type UIConfig struct {
	SiteName string `toml:"site_name"`

	// Notice is markdown shown on the login screen.
	Notice string `toml:"notice"`
	Theme  string `toml:"theme"`
}

// LogConfig controls the slog handler installed by main.
type LogConfig struct {
	Level string `toml:"level"`

	// File receives logs while the TUI owns the terminal.
	File string `toml:"file"`
}

// =============================================================================
// DEFAULTS
// =============================================================================

// Default returns a configuration with the kiosk defaults.
func Default() *Config {
	timeouts := session.DefaultTimeouts()
	search := autofill.DefaultConfig()
	return &Config{
		Version: CurrentVersion,
		Session: SessionConfig{
			InactivityTimeout: Duration(timeouts.Inactivity),
			WarningWindow:     Duration(timeouts.Warning),
		},
		Backup: BackupConfig{
			Enabled:   true,
			Interval:  Duration(24 * time.Hour),
			Retention: backup.DefaultRetention,
		},
		Auth: AuthConfig{
			MaxLoginAttempts: 5,
			LockoutDuration:  Duration(15 * time.Minute),
		},
		Search: SearchConfig{
			SearchDelay:    Duration(search.SearchDelay),
			PropagateDelay: Duration(search.PropagateDelay),
			Grace:          Duration(search.Grace),
			Timeout:        Duration(search.SearchTimeout),
			MinQueryLen:    search.MinQueryLen,
			MaxResults:     8,
		},
		Metrics: MetricsConfig{
			ListenAddr: "127.0.0.1:9464",
		},
		UI: UIConfig{
			SiteName: "Front Gate",
			Notice:   "Authorised personnel only. All visits are logged.",
			Theme:    "dark",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// SetDefaults fills zero values with defaults and resolves derived paths.
func (c *Config) SetDefaults() {
	d := Default()

	if c.Version == "" {
		c.Version = d.Version
	}
	if c.DataDir == "" {
		if dir, err := ConfigDir(); err == nil {
			c.DataDir = dir
		}
	}

	if c.Session.InactivityTimeout == 0 {
		c.Session.InactivityTimeout = d.Session.InactivityTimeout
	}
	if c.Session.WarningWindow == 0 {
		c.Session.WarningWindow = d.Session.WarningWindow
	}

	if c.Backup.Interval == 0 {
		c.Backup.Interval = d.Backup.Interval
	}
	if c.Backup.Retention == 0 {
		c.Backup.Retention = d.Backup.Retention
	}
	if c.Backup.Dir == "" && c.DataDir != "" {
		c.Backup.Dir = filepath.Join(c.DataDir, "backups")
	}

	if c.Auth.MaxLoginAttempts == 0 {
		c.Auth.MaxLoginAttempts = d.Auth.MaxLoginAttempts
	}
	if c.Auth.LockoutDuration == 0 {
		c.Auth.LockoutDuration = d.Auth.LockoutDuration
	}
	if c.Auth.UsersFile == "" && c.DataDir != "" {
		c.Auth.UsersFile = filepath.Join(c.DataDir, "users.json")
	}

	if c.Search.SearchDelay == 0 {
		c.Search.SearchDelay = d.Search.SearchDelay
	}
	if c.Search.PropagateDelay == 0 {
		c.Search.PropagateDelay = d.Search.PropagateDelay
	}
	if c.Search.Grace == 0 {
		c.Search.Grace = d.Search.Grace
	}
	if c.Search.Timeout == 0 {
		c.Search.Timeout = d.Search.Timeout
	}
	if c.Search.MinQueryLen == 0 {
		c.Search.MinQueryLen = d.Search.MinQueryLen
	}
	if c.Search.MaxResults == 0 {
		c.Search.MaxResults = d.Search.MaxResults
	}

	if c.Metrics.ListenAddr == "" {
		c.Metrics.ListenAddr = d.Metrics.ListenAddr
	}
	if c.UI.SiteName == "" {
		c.UI.SiteName = d.UI.SiteName
	}
	if c.UI.Theme == "" {
		c.UI.Theme = d.UI.Theme
	}
	if c.Log.Level == "" {
		c.Log.Level = d.Log.Level
	}
}

// =============================================================================
// PATHS
// =============================================================================

// ConfigDir returns the gatelog home directory (~/.gatelog).
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".gatelog"), nil
}

// ConfigPath returns the default config file path.
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// ensureSecurePermissions tightens a config file to 0600.
func ensureSecurePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if mode := info.Mode().Perm(); mode != 0600 {
		if err := os.Chmod(path, 0600); err != nil {
			return fmt.Errorf("failed to fix insecure permissions (was %o): %w", mode, err)
		}
	}
	return nil
}

// =============================================================================
// LOAD / SAVE
// =============================================================================

// LoadEnvFiles loads KEY=value files into the process environment.
// Missing files are ignored; existing variables are not overwritten.
func LoadEnvFiles(paths ...string) error {
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("failed to load env file %s: %w", p, err)
		}
	}
	return nil
}

// Load reads path (or the default path when empty). A missing file yields
// the defaults. Environment overrides are applied last.
func Load(path string) (*Config, error) {
	if path == "" {
		p, err := ConfigPath()
		if err != nil {
			return nil, err
		}
		path = p
	}

	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		cfg := Default()
		cfg.ApplyEnvOverrides()
		cfg.SetDefaults()
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("invalid config: %w", err)
		}
		return cfg, nil
	}
	return LoadFromPath(path)
}

// LoadFromPath loads a specific file with full validation.
func LoadFromPath(path string) (*Config, error) {
	cfg := Default()
	if err := LoadTOML(cfg, path); err != nil {
		return nil, fmt.Errorf("failed to load config from %s: %w", path, err)
	}
	cfg.ApplyEnvOverrides()
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// LoadTOML decodes path over cfg.
func LoadTOML(cfg *Config, path string) error {
	if err := ensureSecurePermissions(path); err != nil {
		slog.Warn("could not ensure secure permissions", "path", path, "error", err)
	}

	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return fmt.Errorf("failed to decode TOML file: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		slog.Warn("unknown config keys ignored", "path", path, "keys", fmt.Sprint(undecoded))
	}
	return nil
}

// SaveTOML writes cfg to path with 0600 permissions.
func SaveTOML(cfg *Config, path string) error {
	var buf bytes.Buffer
	buf.WriteString("# gatelog configuration file\n")
	buf.WriteString("# Durations use Go syntax: \"3h\", \"5m\", \"300ms\".\n\n")

	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := util.AtomicWriteFileWithDir(path, buf.Bytes(), 0600, 0700); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateErrors is a collection of validation errors.
type ValidateErrors []ValidationError

func (e ValidateErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	msgs := make([]string, 0, len(e))
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// Validate checks the configuration and returns ValidateErrors on failure.
func (c *Config) Validate() error {
	var errs ValidateErrors
	add := func(field, format string, args ...any) {
		errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	if err := c.SessionTimeouts().Validate(); err != nil {
		add("session", "%v", err)
	}

	if c.Backup.Interval.D() < MinBackupInterval {
		add("backup.interval", "must be at least %s", MinBackupInterval)
	}
	if c.Backup.Retention < 1 || c.Backup.Retention > MaxRetention {
		add("backup.retention", "must be between 1 and %d, got %d", MaxRetention, c.Backup.Retention)
	}
	if c.Backup.PollInterval < 0 {
		add("backup.poll_interval", "must not be negative")
	}

	if c.Auth.MaxLoginAttempts < 1 {
		add("auth.max_login_attempts", "must be at least 1")
	}
	if c.Auth.LockoutDuration < 0 {
		add("auth.lockout_duration", "must not be negative")
	}

	if c.Search.SearchDelay <= 0 {
		add("search.search_delay", "must be positive")
	}
	if c.Search.PropagateDelay <= 0 {
		add("search.propagate_delay", "must be positive")
	}
	if c.Search.Grace < c.Search.SearchDelay {
		add("search.grace", "must be at least search_delay (%s)", c.Search.SearchDelay.D())
	}
	if c.Search.MaxResults < 1 {
		add("search.max_results", "must be at least 1")
	}

	if c.Metrics.Enabled && c.Metrics.ListenAddr == "" {
		add("metrics.listen_addr", "required when metrics are enabled")
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		add("log.level", "invalid level '%s', must be one of: debug, info, warn, error", c.Log.Level)
	}
	switch c.UI.Theme {
	case "dark", "light":
	default:
		add("ui.theme", "invalid theme '%s', must be dark or light", c.UI.Theme)
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// ApplyEnvOverrides applies environment variable overrides to the config.
//
// Supported environment variables:
//   - GATELOG_DATA_DIR: overrides data_dir
//   - GATELOG_INACTIVITY_TIMEOUT: overrides session.inactivity_timeout
//   - GATELOG_WARNING_WINDOW: overrides session.warning_window
//   - GATELOG_BACKUP_ENABLED: "1" or "true" enables scheduled backups
//   - GATELOG_BACKUP_INTERVAL: overrides backup.interval
//   - GATELOG_BACKUP_RETENTION: overrides backup.retention
//   - GATELOG_BACKUP_PASSPHRASE: overrides backup.passphrase
//   - GATELOG_METRICS_ADDR: enables metrics on the given address
//   - GATELOG_LOG_LEVEL: overrides log.level
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("GATELOG_DATA_DIR"); v != "" {
		c.DataDir = v
	}
	envDuration("GATELOG_INACTIVITY_TIMEOUT", &c.Session.InactivityTimeout)
	envDuration("GATELOG_WARNING_WINDOW", &c.Session.WarningWindow)

	if v := os.Getenv("GATELOG_BACKUP_ENABLED"); v != "" {
		c.Backup.Enabled = parseBool(v)
	}
	envDuration("GATELOG_BACKUP_INTERVAL", &c.Backup.Interval)
	if v := os.Getenv("GATELOG_BACKUP_RETENTION"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Backup.Retention = n
		} else {
			slog.Warn("ignoring invalid environment override", "var", "GATELOG_BACKUP_RETENTION", "error", err)
		}
	}
	if v := os.Getenv("GATELOG_BACKUP_PASSPHRASE"); v != "" {
		c.Backup.Passphrase = v
	}

	if v := os.Getenv("GATELOG_METRICS_ADDR"); v != "" {
		c.Metrics.Enabled = true
		c.Metrics.ListenAddr = v
	}
	if v := os.Getenv("GATELOG_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
}

func envDuration(name string, dst *Duration) {
	v := os.Getenv(name)
	if v == "" {
		return
	}
	if err := dst.UnmarshalText([]byte(v)); err != nil {
		slog.Warn("ignoring invalid environment override", "var", name, "error", err)
	}
}

func parseBool(v string) bool {
	v = strings.ToLower(strings.TrimSpace(v))
	return v == "1" || v == "true" || v == "yes"
}

// =============================================================================
// DERIVED SETTINGS
// =============================================================================

// SessionTimeouts returns the idle watchdog settings.
func (c *Config) SessionTimeouts() session.Timeouts {
	return session.Timeouts{
		Inactivity: c.Session.InactivityTimeout.D(),
		Warning:    c.Session.WarningWindow.D(),
	}
}

// BackupSettings returns the scheduler's view of the backup section.
func (c *Config) BackupSettings() backup.Settings {
	return backup.Settings{
		Enabled:      c.Backup.Enabled,
		Interval:     c.Backup.Interval.D(),
		Retention:    c.Backup.Retention,
		LastBackupAt: c.Backup.LastBackupAt,
	}
}

// AutofillConfig returns the search field timings.
func (c *Config) AutofillConfig() autofill.Config {
	return autofill.Config{
		SearchDelay:    c.Search.SearchDelay.D(),
		PropagateDelay: c.Search.PropagateDelay.D(),
		Grace:          c.Search.Grace.D(),
		SearchTimeout:  c.Search.Timeout.D(),
		MinQueryLen:    c.Search.MinQueryLen,
	}
}

// =============================================================================
// GET/SET HELPERS (DOT NOTATION)
// =============================================================================

// Get retrieves a value using dot notation (e.g., "session.warning_window").
func (c *Config) Get(key string) (any, error) {
	field, err := c.lookup(key)
	if err != nil {
		return nil, err
	}
	return field.Interface(), nil
}

// Set assigns a value using dot notation. String values are parsed into
// the field's type.
func (c *Config) Set(key string, value any) error {
	field, err := c.lookup(key)
	if err != nil {
		return err
	}
	if !field.CanSet() {
		return fmt.Errorf("cannot set field: %s", key)
	}
	return setFieldValue(field, value)
}

func (c *Config) lookup(key string) (reflect.Value, error) {
	if key == "" {
		return reflect.Value{}, errors.New("empty key")
	}
	parts := strings.Split(key, ".")
	v := reflect.ValueOf(c).Elem()
	for i, part := range parts {
		field := fieldByTag(v, part)
		if !field.IsValid() {
			return reflect.Value{}, fmt.Errorf("unknown field: %s", strings.Join(parts[:i+1], "."))
		}
		if i == len(parts)-1 {
			return field, nil
		}
		if field.Kind() != reflect.Struct || field.Type() == reflect.TypeOf(time.Time{}) {
			return reflect.Value{}, fmt.Errorf("field '%s' is not a section", strings.Join(parts[:i+1], "."))
		}
		v = field
	}
	return reflect.Value{}, fmt.Errorf("invalid key: %s", key)
}

// fieldByTag finds a struct field by its toml tag name.
func fieldByTag(v reflect.Value, name string) reflect.Value {
	name = strings.ReplaceAll(strings.ToLower(name), "-", "_")
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		tag, _, _ := strings.Cut(t.Field(i).Tag.Get("toml"), ",")
		if tag == name {
			return v.Field(i)
		}
	}
	return reflect.Value{}
}

func setFieldValue(field reflect.Value, value any) error {
	if s, ok := value.(string); ok {
		if u, ok := field.Addr().Interface().(interface{ UnmarshalText([]byte) error }); ok {
			return u.UnmarshalText([]byte(s))
		}
		switch field.Kind() {
		case reflect.String:
			field.SetString(s)
			return nil
		case reflect.Int, reflect.Int64:
			n, err := strconv.ParseInt(s, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid integer value: %v", err)
			}
			field.SetInt(n)
			return nil
		case reflect.Bool:
			field.SetBool(parseBool(s))
			return nil
		}
	}

	val := reflect.ValueOf(value)
	if !val.IsValid() {
		return fmt.Errorf("cannot assign nil to %s", field.Type())
	}
	if val.Type().AssignableTo(field.Type()) {
		field.Set(val)
		return nil
	}
	if val.Type().ConvertibleTo(field.Type()) {
		field.Set(val.Convert(field.Type()))
		return nil
	}
	return fmt.Errorf("cannot assign %T to %s", value, field.Type())
}

// AllKeys returns every settable key in dot notation.
func AllKeys() []string {
	var keys []string
	var walk func(t reflect.Type, prefix string)
	walk = func(t reflect.Type, prefix string) {
		for i := 0; i < t.NumField(); i++ {
			f := t.Field(i)
			tag, _, _ := strings.Cut(f.Tag.Get("toml"), ",")
			if tag == "" || tag == "-" {
				continue
			}
			if f.Type.Kind() == reflect.Struct && f.Type != reflect.TypeOf(time.Time{}) {
				walk(f.Type, prefix+tag+".")
				continue
			}
			keys = append(keys, prefix+tag)
		}
	}
	walk(reflect.TypeOf(Config{}), "")
	return keys
}

// =============================================================================
// COPY / DISPLAY
// =============================================================================

// Clone returns a copy of the configuration. Config holds no reference
// types, so a value copy is deep.
func (c *Config) Clone() *Config {
	clone := *c
	return &clone
}

// String renders the config as TOML with the backup passphrase redacted.
func (c *Config) String() string {
	safe := c.Clone()
	if safe.Backup.Passphrase != "" {
		safe.Backup.Passphrase = "[REDACTED]"
	}
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(safe); err != nil {
		return fmt.Sprintf("config: %v", err)
	}
	return buf.String()
}
