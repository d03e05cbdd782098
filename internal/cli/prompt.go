// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"errors"
	"strings"

	"github.com/peterh/liner"
)

// ErrAborted is returned when the operator cancels a prompt.
var ErrAborted = errors.New("aborted")

// Prompter reads interactive answers.
type Prompter interface {
	Line(prompt string) (string, error)
	Secret(prompt string) (string, error)
	Close() error
}

// LinerPrompter prompts on the controlling terminal with line editing.
type LinerPrompter struct {
	line *liner.State
}

// NewLinerPrompter puts the terminal into line-editing mode. Close
// restores it.
func NewLinerPrompter() *LinerPrompter {
	line := liner.NewLiner()
	line.SetCtrlCAborts(true)
	return &LinerPrompter{line: line}
}

// Line reads one line of text.
func (p *LinerPrompter) Line(prompt string) (string, error) {
	s, err := p.line.Prompt(prompt)
	return s, mapLinerError(err)
}

// Secret reads a line without echo.
func (p *LinerPrompter) Secret(prompt string) (string, error) {
	s, err := p.line.PasswordPrompt(prompt)
	return s, mapLinerError(err)
}

// Close restores the terminal.
func (p *LinerPrompter) Close() error {
	return p.line.Close()
}

func mapLinerError(err error) error {
	if errors.Is(err, liner.ErrPromptAborted) {
		return ErrAborted
	}
	return err
}

// =============================================================================
// HELPERS
// =============================================================================

// confirm asks a yes/no question. Anything but y or yes is a no.
func confirm(p Prompter, question string) (bool, error) {
	answer, err := p.Line(question + " [y/N]: ")
	if err != nil {
		return false, err
	}
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return true, nil
	}
	return false, nil
}

// readPIN asks for a PIN twice and requires both entries to match.
func readPIN(p Prompter) (string, error) {
	pin, err := p.Secret("PIN: ")
	if err != nil {
		return "", err
	}
	again, err := p.Secret("Repeat PIN: ")
	if err != nil {
		return "", err
	}
	if pin != again {
		return "", errors.New("PINs do not match")
	}
	return pin, nil
}
