// Package plugin defines the plugin contract and the registry that validates
// and indexes plugin subscriptions, globally or per connection.
package plugin

import (
	"context"

	"github.com/sipeed/ircclaw/pkg/event"
	"github.com/sipeed/ircclaw/pkg/logger"
)

// Handler is one subscription callback. It receives the event being routed
// and the shared outbound queue, and may push response events. ev is nil
// only for the "sending.all" notification, which carries just the queue.
type Handler interface {
	HandleEvent(ev event.Event, q *event.Queue) error
}

// HandlerFunc adapts a plain function to the Handler interface.
type HandlerFunc func(ev event.Event, q *event.Queue) error

func (f HandlerFunc) HandleEvent(ev event.Event, q *event.Queue) error {
	return f(ev, q)
}

// Plugin is a bundle of subscriptions registered as one unit. Name tags log
// output and error messages; Subscriptions maps routing names
// ("received.privmsg", "sending.all", ...) to handlers.
type Plugin interface {
	Name() string
	Subscriptions() map[string]Handler
}

// ---------------------------------------------------------------------------
// Optional capabilities, injected by the registry at registration time
// ---------------------------------------------------------------------------

// Emitter feeds an event into the engine loop from outside it. Handlers run
// on the loop and push to the queue directly; goroutines a plugin spawns
// must go through an Emitter instead so their events serialize with inbound
// traffic.
type Emitter interface {
	Emit(conn event.Conn, ev event.Event)
}

// LoggerCapable plugins receive a component logger bound to their name.
type LoggerCapable interface {
	SetLogger(*logger.Logger)
}

// EmitterCapable plugins receive the shared emission handle.
type EmitterCapable interface {
	SetEmitter(Emitter)
}

// Runner plugins own a background task; the bot runs it for the process
// lifetime and shuts it down by context.
type Runner interface {
	Run(ctx context.Context) error
}
