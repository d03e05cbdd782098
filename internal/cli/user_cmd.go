// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"

	"github.com/jeranaias/gatelog/internal/auth"
	"github.com/jeranaias/gatelog/internal/util"
)

// UserCmd groups the operator management subcommands.
type UserCmd struct {
	Add    UserAddCmd    `cmd:"" help:"Add an operator"`
	List   UserListCmd   `cmd:"" default:"1" aliases:"ls" help:"List operators"`
	Remove UserRemoveCmd `cmd:"" aliases:"rm" help:"Remove an operator"`
}

func (c *CLI) openUsers(g *Global) (*auth.Store, error) {
	store, err := c.loadStore()
	if err != nil {
		return nil, err
	}
	cfg := store.Snapshot()
	opts := []auth.Option{auth.WithLogger(g.Logger), auth.WithRequireTOTP(cfg.Auth.RequireTOTP)}
	if g.BcryptCost > 0 {
		opts = append(opts, auth.WithBcryptCost(g.BcryptCost))
	}
	return auth.NewStore(cfg.Auth.UsersFile, opts...)
}

type UserAddCmd struct {
	Name    string `arg:"" help:"Login name"`
	Display string `short:"d" help:"Name shown in the kiosk header"`
	TOTP    bool   `name:"totp" help:"Require a one-time code at sign-in"`
}

func (c *UserAddCmd) Run(g *Global, root *CLI) error {
	users, err := root.openUsers(g)
	if err != nil {
		return err
	}
	p, err := g.prompter()
	if err != nil {
		return err
	}
	pin, err := readPIN(p)
	p.Close()
	if err != nil {
		return err
	}

	url, err := users.AddUser(c.Name, c.Display, pin, c.TOTP)
	if err != nil {
		return err
	}
	printSuccess(g.Out, "Operator %s added", c.Name)
	if url != "" {
		fmt.Fprintln(g.Out, "Add this key to the operator's authenticator app:")
		fmt.Fprintln(g.Out, ValueStyle.Render(url))
	}
	return nil
}

type UserListCmd struct {
	JSON bool `name:"json" help:"Output JSON"`
}

func (c *UserListCmd) Run(g *Global, root *CLI) error {
	users, err := root.openUsers(g)
	if err != nil {
		return err
	}
	list := users.Users()
	if c.JSON {
		return NewJSONResponse("user list", list).Write(g.Out)
	}
	if len(list) == 0 {
		fmt.Fprintln(g.Out, "No operators. Add one with: gatelog user add <name>")
		return nil
	}
	fmt.Fprintln(g.Out, TitleStyle.Render("Operators"))
	for _, u := range list {
		totp := ""
		if u.TOTP {
			totp = "totp"
		}
		fmt.Fprintf(g.Out, "%s  %s  %s  %s\n",
			util.PadRight(u.Name, 16),
			util.PadRight(u.DisplayName, 24),
			util.PadRight(totp, 4),
			DimStyle.Render(u.CreatedAt.Local().Format("2006-01-02")))
	}
	return nil
}

type UserRemoveCmd struct {
	Name string `arg:"" help:"Login name"`
	Yes  bool   `short:"y" help:"Do not ask for confirmation"`
}

func (c *UserRemoveCmd) Run(g *Global, root *CLI) error {
	users, err := root.openUsers(g)
	if err != nil {
		return err
	}
	if !c.Yes {
		p, err := g.prompter()
		if err != nil {
			return err
		}
		ok, err := confirm(p, fmt.Sprintf("Remove operator %s?", c.Name))
		p.Close()
		if err != nil {
			return err
		}
		if !ok {
			printWarning(g.Out, "Remove cancelled")
			return nil
		}
	}
	if err := users.RemoveUser(c.Name); err != nil {
		return err
	}
	printSuccess(g.Out, "Operator %s removed", c.Name)
	return nil
}
