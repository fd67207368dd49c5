// Package dispatch routes events to registered handlers and drains the
// outbound queue into transport writes.
package dispatch

import (
	"fmt"
	"sync/atomic"

	"github.com/sipeed/ircclaw/pkg/event"
	"github.com/sipeed/ircclaw/pkg/logger"
	"github.com/sipeed/ircclaw/pkg/plugin"
)

const componentDispatch = "dispatch"

// Dispatcher fans one event out to every handler subscribed to its routing
// names. Handlers run synchronously on the caller's goroutine; a handler
// error aborts the remaining handlers and propagates. Nothing here recovers
// panics: a misbehaving plugin halts the cycle, matching the cooperative
// trust model plugins are registered under.
type Dispatcher struct {
	registry *plugin.Registry

	dispatched atomic.Uint64
}

// NewDispatcher returns a dispatcher over the given registry.
func NewDispatcher(reg *plugin.Registry) *Dispatcher {
	return &Dispatcher{registry: reg}
}

// Dispatch emits the event under its two routing names, generic first:
// "<family>.each", then "<family>.<subtype>". Both emissions hand every
// handler the same event and queue references.
func (d *Dispatcher) Dispatch(family string, ev event.Event, q *event.Queue) error {
	d.dispatched.Add(1)
	if err := d.Emit(family+".each", ev, q); err != nil {
		return err
	}
	return d.Emit(family+"."+event.Subtype(ev), ev, q)
}

// Emit invokes every handler registered for the exact routing name, in
// registration order. The first handler error stops the run and is returned
// wrapped with the routing name.
func (d *Dispatcher) Emit(name string, ev event.Event, q *event.Queue) error {
	handlers := d.registry.HandlersFor(name)
	if len(handlers) == 0 {
		return nil
	}
	logger.DebugCF(componentDispatch, "emitting", map[string]interface{}{
		"name":     name,
		"handlers": len(handlers),
	})
	for _, h := range handlers {
		if err := h.HandleEvent(ev, q); err != nil {
			return fmt.Errorf("handler for %q: %w", name, err)
		}
	}
	return nil
}

// Dispatched returns the number of Dispatch calls made so far.
func (d *Dispatcher) Dispatched() uint64 { return d.dispatched.Load() }
