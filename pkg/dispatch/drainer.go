package dispatch

import (
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/sipeed/ircclaw/pkg/event"
	"github.com/sipeed/ircclaw/pkg/logger"
)

const componentDrain = "drain"

// WriteFunc performs one outbound protocol write. The event's parameters are
// passed positionally; each write validates its own arity.
type WriteFunc func(params ...string) error

// Conn is what the drainer needs from a connection: the identity events are
// bound to, plus the write table outbound commands resolve against. A
// ResolveWrite miss is a wiring mismatch and is never recovered here.
type Conn interface {
	event.Conn
	ResolveWrite(name string) (WriteFunc, error)
}

// Drainer empties the outbound queue for one connection, giving plugins
// their pre-send hooks and committing each event as a transport write.
type Drainer struct {
	dispatcher *Dispatcher

	written atomic.Uint64
}

// NewDrainer returns a drainer emitting through the given dispatcher.
func NewDrainer(d *Dispatcher) *Drainer {
	return &Drainer{dispatcher: d}
}

// Drain flushes the queue to conn in strict FIFO order:
//
//  1. Emit the one-shot "sending.all" notification with a nil event, giving
//     last-chance plugins the queue itself before anything is written.
//  2. While the queue is non-empty: pop the front event, bind it to conn,
//     dispatch "sending.each" and "sending.<subtype>" (observers may push
//     further events, which drain after everything already pending), then
//     resolve the event's write method and invoke it with the parameters.
//
// Emptiness is re-checked after every pop, so work enqueued during the drain
// itself is flushed too. Handler errors, unknown write methods, and write
// failures abort the drain and propagate.
func (dr *Drainer) Drain(conn Conn, q *event.Queue) error {
	if err := dr.dispatcher.Emit("sending.all", nil, q); err != nil {
		return err
	}

	for {
		ev, ok := q.Pop()
		if !ok {
			return nil
		}
		ev.BindConnection(conn)

		if err := dr.dispatcher.Dispatch("sending", ev, q); err != nil {
			return err
		}

		name := WriteName(ev)
		write, err := conn.ResolveWrite(name)
		if err != nil {
			return fmt.Errorf("drain on %s: %w", conn.Name(), err)
		}
		if err := write(ev.Params()...); err != nil {
			return fmt.Errorf("write %s on %s: %w", name, conn.Name(), err)
		}
		dr.written.Add(1)

		logger.DebugCF(componentDrain, "event written", map[string]interface{}{
			"connection": conn.Name(),
			"method":     name,
			"params":     len(ev.Params()),
		})
	}
}

// Written returns the number of events committed as writes so far.
func (dr *Drainer) Written() uint64 { return dr.written.Load() }

// WriteName resolves the transport write-method name for an outbound event.
// Embedded exchanges use their embedded command, with a "_reply" suffix when
// the exchange is a reply; every other variant uses its command.
func WriteName(ev event.Event) string {
	if emb, ok := ev.(*event.EmbeddedEvent); ok {
		name := strings.ToLower(emb.Embedded())
		if emb.IsReply() {
			name += "_reply"
		}
		return name
	}
	return strings.ToLower(ev.Command())
}
