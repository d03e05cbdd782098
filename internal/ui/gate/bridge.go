// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package gate

import (
	"sync"
	"sync/atomic"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/gatelog/internal/session"
)

// DefaultBridgeBuffer is the number of messages the Bridge queues.
const DefaultBridgeBuffer = 64

// Bridge forwards events from timer goroutines into the Bubble Tea program.
// Send never blocks; messages are delivered in order by a single pump
// goroutine and dropped when the buffer is full.
type Bridge struct {
	msgs    chan tea.Msg
	done    chan struct{}
	once    sync.Once
	stop    sync.Once
	dropped atomic.Uint64
}

// NewBridge creates an unattached bridge.
func NewBridge(buffer int) *Bridge {
	if buffer <= 0 {
		buffer = DefaultBridgeBuffer
	}
	return &Bridge{
		msgs: make(chan tea.Msg, buffer),
		done: make(chan struct{}),
	}
}

// Attach starts delivering queued messages to send, usually
// (*tea.Program).Send. Only the first call has an effect.
func (b *Bridge) Attach(send func(tea.Msg)) {
	b.once.Do(func() {
		go b.pump(send)
	})
}

// Close stops delivery.
func (b *Bridge) Close() {
	b.stop.Do(func() { close(b.done) })
}

// Send queues msg.
func (b *Bridge) Send(msg tea.Msg) {
	select {
	case <-b.done:
	case b.msgs <- msg:
	default:
		b.dropped.Add(1)
	}
}

// Dropped returns the number of messages lost to a full buffer.
func (b *Bridge) Dropped() uint64 {
	return b.dropped.Load()
}

func (b *Bridge) pump(send func(tea.Msg)) {
	for {
		select {
		case <-b.done:
			return
		case msg := <-b.msgs:
			send(msg)
		}
	}
}

// SessionState implements kiosk.Listener.
func (b *Bridge) SessionState(s session.State) {
	b.Send(SessionStateMsg{State: s})
}

// SessionTick implements kiosk.Listener.
func (b *Bridge) SessionTick(remaining time.Duration) {
	b.Send(SessionTickMsg{Remaining: remaining})
}

// NavigateLogin implements kiosk.Listener.
func (b *Bridge) NavigateLogin() {
	b.Send(NavigateLoginMsg{})
}
