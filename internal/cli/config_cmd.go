// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/jeranaias/gatelog/internal/config"
)

// ConfigCmd groups the configuration subcommands.
type ConfigCmd struct {
	Show ConfigShowCmd `cmd:"" default:"1" help:"Print the effective configuration"`
	Path ConfigPathCmd `cmd:"" help:"Print the config file path"`
	Init ConfigInitCmd `cmd:"" help:"Write a config file with the defaults"`
	Get  ConfigGetCmd  `cmd:"" help:"Print one setting"`
	Set  ConfigSetCmd  `cmd:"" help:"Change one setting in the config file"`
	Keys ConfigKeysCmd `cmd:"" help:"List every setting key"`
}

type ConfigShowCmd struct{}

func (c *ConfigShowCmd) Run(g *Global, root *CLI) error {
	store, err := root.loadStore()
	if err != nil {
		return err
	}
	fmt.Fprint(g.Out, store.Snapshot().String())
	return nil
}

type ConfigPathCmd struct{}

func (c *ConfigPathCmd) Run(g *Global, root *CLI) error {
	path, err := root.configPath()
	if err != nil {
		return err
	}
	fmt.Fprintln(g.Out, path)
	return nil
}

type ConfigInitCmd struct {
	Force bool `help:"Overwrite an existing config file"`
}

func (c *ConfigInitCmd) Run(g *Global, root *CLI) error {
	path, err := root.configPath()
	if err != nil {
		return err
	}
	if _, err := os.Stat(path); err == nil && !c.Force {
		return fmt.Errorf("%s already exists; use --force to overwrite", path)
	}
	if err := config.SaveTOML(config.Default(), path); err != nil {
		return err
	}
	printSuccess(g.Out, "Wrote %s", path)
	return nil
}

type ConfigGetCmd struct {
	Key string `arg:"" help:"Dotted key, e.g. session.warning_window"`
}

func (c *ConfigGetCmd) Run(g *Global, root *CLI) error {
	store, err := root.loadStore()
	if err != nil {
		return err
	}
	v, err := store.Snapshot().Get(c.Key)
	if err != nil {
		return err
	}
	if c.Key == "backup.passphrase" && v != "" {
		v = "[REDACTED]"
	}
	if d, ok := v.(config.Duration); ok {
		v = d.D()
	}
	fmt.Fprintln(g.Out, v)
	return nil
}

type ConfigSetCmd struct {
	Key   string `arg:"" help:"Dotted key, e.g. backup.interval"`
	Value string `arg:"" help:"New value"`
}

// Run edits the file contents only, so environment overrides and derived
// defaults are not written back.
func (c *ConfigSetCmd) Run(g *Global, root *CLI) error {
	if strings.EqualFold(c.Key, "backup.last_backup_at") {
		return errors.New("backup.last_backup_at is maintained by the scheduler")
	}
	path, err := root.configPath()
	if err != nil {
		return err
	}

	cfg := config.Default()
	if _, err := os.Stat(path); err == nil {
		if err := config.LoadTOML(cfg, path); err != nil {
			return err
		}
	}
	if err := cfg.Set(c.Key, c.Value); err != nil {
		return err
	}

	check := cfg.Clone()
	check.SetDefaults()
	if err := check.Validate(); err != nil {
		return fmt.Errorf("invalid value for %s: %w", c.Key, err)
	}
	if err := config.SaveTOML(cfg, path); err != nil {
		return err
	}
	printSuccess(g.Out, "%s updated", c.Key)
	return nil
}

type ConfigKeysCmd struct{}

func (c *ConfigKeysCmd) Run(g *Global, _ *CLI) error {
	for _, k := range config.AllKeys() {
		fmt.Fprintln(g.Out, k)
	}
	return nil
}
