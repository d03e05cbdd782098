// gatelog - Visitor gate kiosk for the terminal.
//
// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later
package main

import (
	"fmt"
	"os"

	"github.com/jeranaias/gatelog/internal/cli"
)

// Version information (set at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

func init() {
	cli.Version = Version
	cli.GitCommit = GitCommit
	cli.BuildDate = BuildDate
}

func main() {
	g := cli.NewGlobal()
	err := cli.Execute(os.Args[1:], g)
	g.Close()
	if err != nil {
		fmt.Fprintln(os.Stderr, cli.ErrorStyle.Render("Error:")+" "+err.Error())
		os.Exit(1)
	}
}
