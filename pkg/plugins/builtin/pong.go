// Package builtin holds the protocol plugins every bot instance registers:
// keepalive, CTCP responses, and channel join bookkeeping. They ride the
// same registry and queue as third-party plugins, keeping protocol
// semantics out of the engine core.
package builtin

import (
	"github.com/sipeed/ircclaw/pkg/event"
	"github.com/sipeed/ircclaw/pkg/plugin"
)

// Pong answers server PINGs so connections survive idle periods.
type Pong struct{}

// NewPong returns the keepalive plugin.
func NewPong() *Pong { return &Pong{} }

func (p *Pong) Name() string { return "pong" }

func (p *Pong) Subscriptions() map[string]plugin.Handler {
	return map[string]plugin.Handler{
		"received.ping": plugin.HandlerFunc(p.handlePing),
	}
}

func (p *Pong) handlePing(ev event.Event, q *event.Queue) error {
	q.Push(event.NewServerEvent("PONG", ev.Params()...))
	return nil
}

var _ plugin.Plugin = (*Pong)(nil)
