// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/jeranaias/gatelog/internal/metrics"
	"github.com/jeranaias/gatelog/internal/ui/gate"
)

// RunCmd starts the kiosk TUI.
type RunCmd struct {
	NoWatch bool `name:"no-watch" help:"Do not reload the config file when it changes"`
}

func (r *RunCmd) Run(g *Global, root *CLI) error {
	if err := RequiresStdoutTTY("start the kiosk"); err != nil {
		return err
	}
	store, err := root.loadStore()
	if err != nil {
		return err
	}
	cfg := store.Snapshot()
	if err := g.logToFile(cfg); err != nil {
		return err
	}
	defer g.Close()

	var rec *metrics.Recorder
	if cfg.Metrics.Enabled && g.NewRecorder != nil {
		rec = g.NewRecorder()
	}
	app, err := root.openApp(g, store, !r.NoWatch, rec)
	if err != nil {
		return err
	}
	defer app.Close()
	if err := app.Start(); err != nil {
		return err
	}
	g.Logger.Info("kiosk started", "config", store.Path(), "data_dir", cfg.DataDir)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return gate.Run(ctx, app, gate.Options{
		SiteName: cfg.UI.SiteName,
		Notice:   cfg.UI.Notice,
		Theme:    cfg.UI.Theme,
		Logger:   g.Logger,
	})
}
