// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/jeranaias/gatelog/internal/util"
	"github.com/jeranaias/gatelog/internal/visitors"
)

// VisitorsCmd groups the read-only visitor log queries.
type VisitorsCmd struct {
	Search VisitorsSearchCmd `cmd:"" help:"Find visitors by plate or name prefix"`
	Recent VisitorsRecentCmd `cmd:"" default:"1" help:"Show the latest check-ins"`
	Stats  VisitorsStatsCmd  `cmd:"" help:"Count visitors and visits"`
}

func (c *CLI) withVisitors(fn func(*visitors.Store) error) error {
	store, err := c.loadStore()
	if err != nil {
		return err
	}
	cfg := store.Snapshot()
	db, err := visitors.Open(filepath.Join(cfg.DataDir, "visitors.db"),
		visitors.WithSearchLimit(cfg.Search.MaxResults))
	if err != nil {
		return err
	}
	defer db.Close()
	return fn(db)
}

type VisitorsSearchCmd struct {
	Query string `arg:"" help:"Plate or name prefix"`
	JSON  bool   `name:"json" help:"Output JSON"`
}

func (c *VisitorsSearchCmd) Run(g *Global, root *CLI) error {
	return root.withVisitors(func(db *visitors.Store) error {
		found, err := db.Search(context.Background(), c.Query)
		if err != nil {
			return err
		}
		if c.JSON {
			return NewJSONResponse("visitors search", found).Write(g.Out)
		}
		if len(found) == 0 {
			fmt.Fprintf(g.Out, "No visitors match %q.\n", c.Query)
			return nil
		}
		for _, v := range found {
			fmt.Fprintf(g.Out, "%s  %s  %s  %s\n",
				util.PadRight(v.Plate, 12),
				util.PadRight(util.TruncateWidth(v.Name, 24), 24),
				util.PadRight(util.TruncateWidth(v.Company, 20), 20),
				DimStyle.Render(fmt.Sprintf("%d visit(s), last %s", v.Visits, v.LastSeen.Local().Format("2006-01-02"))))
		}
		return nil
	})
}

type VisitorsRecentCmd struct {
	Limit int  `short:"n" default:"20" help:"Number of check-ins"`
	JSON  bool `name:"json" help:"Output JSON"`
}

func (c *VisitorsRecentCmd) Run(g *Global, root *CLI) error {
	return root.withVisitors(func(db *visitors.Store) error {
		visits, err := db.Recent(context.Background(), c.Limit)
		if err != nil {
			return err
		}
		if c.JSON {
			return NewJSONResponse("visitors recent", visits).Write(g.Out)
		}
		if len(visits) == 0 {
			fmt.Fprintln(g.Out, "No check-ins yet.")
			return nil
		}
		for _, v := range visits {
			fmt.Fprintf(g.Out, "%s  %s  %s  %s\n",
				v.CheckedInAt.Local().Format("2006-01-02 15:04"),
				util.PadRight(v.Plate, 12),
				util.PadRight(util.TruncateWidth(v.Purpose, 28), 28),
				DimStyle.Render(v.Operator))
		}
		return nil
	})
}

type VisitorsStatsCmd struct {
	JSON bool `name:"json" help:"Output JSON"`
}

func (c *VisitorsStatsCmd) Run(g *Global, root *CLI) error {
	return root.withVisitors(func(db *visitors.Store) error {
		known, visits, err := db.Count(context.Background())
		if err != nil {
			return err
		}
		if c.JSON {
			return NewJSONResponse("visitors stats", map[string]int{"visitors": known, "visits": visits}).Write(g.Out)
		}
		printField(g.Out, "Visitors", known)
		printField(g.Out, "Visits", visits)
		return nil
	})
}
