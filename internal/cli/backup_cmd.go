// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jeranaias/gatelog/internal/backup"
	"github.com/jeranaias/gatelog/internal/config"
	"github.com/jeranaias/gatelog/internal/kiosk"
	"github.com/jeranaias/gatelog/internal/util"
)

// BackupCmd groups the backup subcommands.
type BackupCmd struct {
	Create  BackupCreateCmd  `cmd:"" help:"Create a backup now and apply retention"`
	List    BackupListCmd    `cmd:"" default:"1" aliases:"ls" help:"List backups, newest first"`
	Status  BackupStatusCmd  `cmd:"" help:"Show the backup schedule"`
	Verify  BackupVerifyCmd  `cmd:"" help:"Decrypt a backup and check its checksum"`
	Restore BackupRestoreCmd `cmd:"" help:"Restore a backup"`
	Delete  BackupDeleteCmd  `cmd:"" aliases:"rm" help:"Delete a backup"`
	Clean   BackupCleanCmd   `cmd:"" help:"Delete backups beyond the retention count"`
}

// withApp opens the kiosk stores for a one-shot command.
func withApp(g *Global, root *CLI, fn func(*kiosk.App, *config.Config) error) error {
	store, err := root.loadStore()
	if err != nil {
		return err
	}
	app, err := root.openApp(g, store, false, nil)
	if err != nil {
		return err
	}
	defer app.Close()
	return fn(app, store.Snapshot())
}

// =============================================================================
// CREATE / LIST / STATUS
// =============================================================================

type BackupCreateCmd struct {
	JSON bool `name:"json" help:"Output JSON"`
}

type createOutput struct {
	Backup  *backup.Backup       `json:"backup"`
	Cleanup backup.CleanupResult `json:"cleanup"`
}

func (c *BackupCreateCmd) Run(g *Global, root *CLI) error {
	return withApp(g, root, func(app *kiosk.App, cfg *config.Config) error {
		ctx := context.Background()
		b, err := app.Engine().CreateBackup(ctx, backup.KindManual)
		if err != nil {
			return fmt.Errorf("backup failed: %w", err)
		}
		cleanup, err := app.Engine().CleanOldBackups(ctx, cfg.Backup.Retention)
		if err != nil {
			g.Logger.Warn("retention cleanup failed", "error", err)
		}

		if c.JSON {
			return NewJSONResponse("backup create", createOutput{Backup: b, Cleanup: cleanup}).Write(g.Out)
		}
		printSuccess(g.Out, "Backup created: %s", b.ID)
		printField(g.Out, "Size", formatBytes(b.Size))
		printField(g.Out, "Location", b.Path)
		if cleanup.Deleted > 0 {
			printField(g.Out, "Removed", fmt.Sprintf("%d old backup(s)", cleanup.Deleted))
		}
		return nil
	})
}

type BackupListCmd struct {
	JSON bool `name:"json" help:"Output JSON"`
}

func (c *BackupListCmd) Run(g *Global, root *CLI) error {
	return withApp(g, root, func(app *kiosk.App, _ *config.Config) error {
		backups, err := app.Engine().ListBackups()
		if err != nil {
			return err
		}
		if c.JSON {
			return NewJSONResponse("backup list", backups).Write(g.Out)
		}
		if len(backups) == 0 {
			fmt.Fprintln(g.Out, "No backups found.")
			return nil
		}
		fmt.Fprintln(g.Out, TitleStyle.Render("Backups"))
		for _, b := range backups {
			fmt.Fprintf(g.Out, "%s  %s  %s  %s\n",
				util.PadRight(b.ID, 40),
				util.PadRight(string(b.Kind), 7),
				b.CreatedAt.Local().Format("2006-01-02 15:04"),
				DimStyle.Render(formatBytes(b.Size)))
		}
		return nil
	})
}

type BackupStatusCmd struct {
	JSON bool `name:"json" help:"Output JSON"`
}

type statusOutput struct {
	Enabled      bool      `json:"enabled"`
	Interval     string    `json:"interval"`
	Retention    int       `json:"retention"`
	Dir          string    `json:"dir"`
	LastBackupAt time.Time `json:"last_backup_at,omitzero"`
	NextDue      time.Time `json:"next_due,omitzero"`
	Count        int       `json:"count"`
}

func (c *BackupStatusCmd) Run(g *Global, root *CLI) error {
	return withApp(g, root, func(app *kiosk.App, cfg *config.Config) error {
		backups, err := app.Engine().ListBackups()
		if err != nil {
			return err
		}
		out := statusOutput{
			Enabled:      cfg.Backup.Enabled,
			Interval:     cfg.Backup.Interval.D().String(),
			Retention:    cfg.Backup.Retention,
			Dir:          app.Engine().Dir(),
			LastBackupAt: cfg.Backup.LastBackupAt,
			Count:        len(backups),
		}
		if out.Enabled && !out.LastBackupAt.IsZero() {
			out.NextDue = out.LastBackupAt.Add(cfg.Backup.Interval.D())
		}

		if c.JSON {
			return NewJSONResponse("backup status", out).Write(g.Out)
		}
		fmt.Fprintln(g.Out, TitleStyle.Render("Backup Status"))
		enabled := "disabled"
		if out.Enabled {
			enabled = "every " + out.Interval
		}
		printField(g.Out, "Schedule", enabled)
		printField(g.Out, "Retention", out.Retention)
		printField(g.Out, "Directory", out.Dir)
		printField(g.Out, "Backups", out.Count)
		if out.LastBackupAt.IsZero() {
			printField(g.Out, "Last backup", "never")
		} else {
			printField(g.Out, "Last backup", out.LastBackupAt.Local().Format(time.RFC1123))
		}
		if !out.NextDue.IsZero() {
			printField(g.Out, "Next due", out.NextDue.Local().Format(time.RFC1123))
		}
		return nil
	})
}

// =============================================================================
// VERIFY / RESTORE / DELETE / CLEAN
// =============================================================================

type BackupVerifyCmd struct {
	ID string `arg:"" help:"Backup ID"`
}

func (c *BackupVerifyCmd) Run(g *Global, root *CLI) error {
	return withApp(g, root, func(app *kiosk.App, _ *config.Config) error {
		if err := app.Engine().Verify(c.ID); err != nil {
			return fmt.Errorf("backup %s failed verification: %w", c.ID, err)
		}
		printSuccess(g.Out, "Backup %s verified", c.ID)
		return nil
	})
}

type BackupRestoreCmd struct {
	ID      string `arg:"" help:"Backup ID"`
	Output  string `short:"o" type:"path" help:"Write the restored database here (default <data_dir>/restored/<id>.db)"`
	Replace bool   `help:"Replace the live visitor database. The kiosk must be stopped."`
	Yes     bool   `short:"y" help:"Do not ask for confirmation"`
}

func (c *BackupRestoreCmd) Run(g *Global, root *CLI) error {
	if c.Replace && c.Output != "" {
		return errors.New("--replace and --output are mutually exclusive")
	}
	return withApp(g, root, func(app *kiosk.App, cfg *config.Config) error {
		engine := app.Engine()
		if err := engine.Verify(c.ID); err != nil {
			return fmt.Errorf("backup %s failed verification: %w", c.ID, err)
		}

		if !c.Replace {
			dest := c.Output
			if dest == "" {
				dest = filepath.Join(cfg.DataDir, "restored", c.ID+".db")
			}
			if err := engine.Restore(c.ID, dest); err != nil {
				return err
			}
			printSuccess(g.Out, "Backup %s restored to %s", c.ID, dest)
			return nil
		}

		live := filepath.Join(cfg.DataDir, "visitors.db")
		if !c.Yes {
			p, err := g.prompter()
			if err != nil {
				return err
			}
			ok, err := confirm(p, fmt.Sprintf("Replace %s with backup %s?", live, c.ID))
			p.Close()
			if err != nil {
				return err
			}
			if !ok {
				printWarning(g.Out, "Restore cancelled")
				return nil
			}
		}

		// Release the database before overwriting it.
		if err := app.Close(); err != nil {
			return err
		}
		if err := engine.Restore(c.ID, live); err != nil {
			return err
		}
		for _, suffix := range []string{"-wal", "-shm"} {
			if err := os.Remove(live + suffix); err != nil && !errors.Is(err, os.ErrNotExist) {
				return fmt.Errorf("failed to remove stale journal: %w", err)
			}
		}
		printSuccess(g.Out, "Visitor database replaced with backup %s", c.ID)
		return nil
	})
}

type BackupDeleteCmd struct {
	ID  string `arg:"" help:"Backup ID"`
	Yes bool   `short:"y" help:"Do not ask for confirmation"`
}

func (c *BackupDeleteCmd) Run(g *Global, root *CLI) error {
	if !c.Yes {
		p, err := g.prompter()
		if err != nil {
			return err
		}
		ok, err := confirm(p, fmt.Sprintf("Delete backup %s?", c.ID))
		p.Close()
		if err != nil {
			return err
		}
		if !ok {
			printWarning(g.Out, "Delete cancelled")
			return nil
		}
	}
	return withApp(g, root, func(app *kiosk.App, _ *config.Config) error {
		if err := app.Engine().DeleteBackup(c.ID); err != nil {
			return err
		}
		printSuccess(g.Out, "Backup %s deleted", c.ID)
		return nil
	})
}

type BackupCleanCmd struct {
	Retain int  `help:"Backups to keep (default backup.retention)"`
	JSON   bool `name:"json" help:"Output JSON"`
}

func (c *BackupCleanCmd) Run(g *Global, root *CLI) error {
	return withApp(g, root, func(app *kiosk.App, cfg *config.Config) error {
		retain := c.Retain
		if retain == 0 {
			retain = cfg.Backup.Retention
		}
		res, err := app.Engine().CleanOldBackups(context.Background(), retain)
		if err != nil {
			return err
		}
		if c.JSON {
			return NewJSONResponse("backup clean", res).Write(g.Out)
		}
		printSuccess(g.Out, "Kept %d, deleted %d", res.Kept, res.Deleted)
		return nil
	})
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(n)/float64(div), "KMGTPE"[exp])
}
