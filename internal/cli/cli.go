// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/alecthomas/kong"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/jeranaias/gatelog/internal/config"
	"github.com/jeranaias/gatelog/internal/kiosk"
	"github.com/jeranaias/gatelog/internal/metrics"
)

// Version information, set by main.
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// Global holds state shared by every command.
type Global struct {
	Out    io.Writer
	Err    io.Writer
	Logger *slog.Logger

	// NewPrompter opens the interactive prompter.
	NewPrompter func() (Prompter, error)

	// NewRecorder builds the metrics recorder for the kiosk.
	NewRecorder func() *metrics.Recorder

	// BcryptCost overrides the PIN hashing cost.
	BcryptCost int

	verbose bool
	logFile *os.File
}

// NewGlobal returns the production globals: stdio, liner prompts and a
// fresh Prometheus registry.
func NewGlobal() *Global {
	return &Global{
		Out:    os.Stdout,
		Err:    os.Stderr,
		Logger: slog.Default(),
		NewPrompter: func() (Prompter, error) {
			if err := RequiresTTY("prompt for input"); err != nil {
				return nil, err
			}
			return NewLinerPrompter(), nil
		},
		NewRecorder: func() *metrics.Recorder {
			return metrics.NewRecorder(prometheus.NewRegistry())
		},
	}
}

// Close releases the log file, if any.
func (g *Global) Close() error {
	if g.logFile == nil {
		return nil
	}
	err := g.logFile.Close()
	g.logFile = nil
	return err
}

// CLI is the command tree.
type CLI struct {
	Config  string           `short:"c" help:"Configuration file path (default ~/.gatelog/config.toml)" type:"path"`
	EnvFile []string         `name:"env-file" help:"KEY=value files loaded before the config" default:".env"`
	Verbose bool             `short:"v" help:"Enable debug logging"`
	Version kong.VersionFlag `name:"version" help:"Show version and exit"`

	Run      RunCmd      `cmd:"" default:"1" help:"Start the gate kiosk"`
	Backup   BackupCmd   `cmd:"" help:"Manage encrypted backups"`
	User     UserCmd     `cmd:"" help:"Manage operators"`
	Visitors VisitorsCmd `cmd:"" help:"Query the visitor log"`
	Cfg      ConfigCmd   `cmd:"" name:"config" help:"Show or change configuration"`
}

// AfterApply runs after flag parsing and sets up logging to stderr.
func (c *CLI) AfterApply(g *Global) error {
	if err := config.LoadEnvFiles(c.EnvFile...); err != nil {
		return err
	}
	g.verbose = c.Verbose
	level := slog.LevelInfo
	if c.Verbose {
		level = slog.LevelDebug
	}
	g.Logger = slog.New(slog.NewTextHandler(g.Err, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(g.Logger)
	return nil
}

// Execute parses args and runs the selected command.
func Execute(args []string, g *Global) error {
	var root CLI
	parser, err := kong.New(&root,
		kong.Name("gatelog"),
		kong.Description("Visitor gate kiosk with operator sessions and encrypted backups."),
		kong.UsageOnError(),
		kong.Writers(g.Out, g.Err),
		kong.Vars{"version": fmt.Sprintf("gatelog %s (%s, built %s)", Version, GitCommit, BuildDate)},
		kong.Bind(g, &root),
	)
	if err != nil {
		return err
	}
	ctx, err := parser.Parse(args)
	if err != nil {
		return err
	}
	return ctx.Run()
}

// =============================================================================
// SHARED COMMAND HELPERS
// =============================================================================

func (c *CLI) configPath() (string, error) {
	if c.Config != "" {
		return c.Config, nil
	}
	return config.ConfigPath()
}

// loadStore loads the effective configuration: file, environment and
// defaults.
func (c *CLI) loadStore() (*config.Store, error) {
	path, err := c.configPath()
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	return config.NewStore(cfg, path), nil
}

// openApp builds the kiosk without starting it.
func (c *CLI) openApp(g *Global, store *config.Store, watch bool, rec *metrics.Recorder) (*kiosk.App, error) {
	return kiosk.New(kiosk.Options{
		Logger:     g.Logger,
		Store:      store,
		Watch:      watch,
		Metrics:    rec,
		BcryptCost: g.BcryptCost,
	})
}

// logToFile moves logging off the terminal for the TUI.
func (g *Global) logToFile(cfg *config.Config) error {
	path := cfg.Log.File
	if path == "" {
		path = filepath.Join(cfg.DataDir, "gatelog.log")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}

	level := parseLevel(cfg.Log.Level)
	if g.verbose {
		level = slog.LevelDebug
	}
	g.Close()
	g.logFile = f
	g.Logger = slog.New(slog.NewTextHandler(f, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(g.Logger)
	return nil
}

func parseLevel(s string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(s))); err != nil {
		return slog.LevelInfo
	}
	return level
}

// prompter opens the interactive prompter.
func (g *Global) prompter() (Prompter, error) {
	if g.NewPrompter == nil {
		return nil, errors.New("interactive input not available")
	}
	return g.NewPrompter()
}
