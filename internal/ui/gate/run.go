// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package gate

import (
	"context"
	"errors"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/gatelog/internal/kiosk"
)

// Run shows the kiosk screens until the operator quits or ctx is done.
func Run(ctx context.Context, app *kiosk.App, opts Options) error {
	bridge := NewBridge(DefaultBridgeBuffer)
	defer bridge.Close()

	m := NewModel(app, bridge, opts)
	defer m.closeField()

	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	app.SetListener(bridge)
	defer app.SetListener(nil)
	bridge.Attach(p.Send)

	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}
