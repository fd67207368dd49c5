package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/sipeed/ircclaw/pkg/bus"
	"github.com/sipeed/ircclaw/pkg/dispatch"
	"github.com/sipeed/ircclaw/pkg/event"
	"github.com/sipeed/ircclaw/pkg/irc"
	"github.com/sipeed/ircclaw/pkg/logger"
	"github.com/sipeed/ircclaw/pkg/plugin"
)

const componentEngine = "engine"

// lifecycleConn is the optional transport surface the engine drives
// registration state through.
type lifecycleConn interface {
	CurrentNick() string
	SetCurrentNick(nick string)
	MarkConnected(nick string)
}

// Emitter is the sanctioned way for code outside the engine goroutine to
// inject an outbound event: the event crosses the bus and is queued and
// drained on the loop, serialized with everything else.
type Emitter struct {
	bus *bus.Bus
}

// NewEmitter returns an emitter feeding the given bus.
func NewEmitter(b *bus.Bus) *Emitter { return &Emitter{bus: b} }

func (e *Emitter) Emit(conn event.Conn, ev event.Event) { e.bus.PushEmit(conn, ev) }

var _ plugin.Emitter = (*Emitter)(nil)

// Engine owns the dispatch loop. One goroutine converts, dispatches, and
// drains one work item at a time; handlers and the queue are only ever
// touched from here.
type Engine struct {
	bus        *bus.Bus
	dispatcher *dispatch.Dispatcher
	drainer    *dispatch.Drainer

	queue    *event.Queue
	messages atomic.Uint64
}

// NewEngine wires the loop over its collaborators.
func NewEngine(b *bus.Bus, d *dispatch.Dispatcher, dr *dispatch.Drainer) *Engine {
	return &Engine{bus: b, dispatcher: d, drainer: dr}
}

// Run consumes work until ctx ends. A handler or write error is fatal: the
// loop stops and the error propagates to the process boundary.
func (e *Engine) Run(ctx context.Context) error {
	logger.InfoC(componentEngine, "dispatch loop started")
	for {
		w, ok := e.bus.Consume(ctx)
		if !ok {
			logger.InfoC(componentEngine, "dispatch loop stopped")
			return nil
		}
		if err := e.process(w); err != nil {
			logger.ErrorCF(componentEngine, "dispatch failed, halting", map[string]interface{}{
				"connection": w.Conn.Name(),
				"error":      err.Error(),
			})
			return err
		}
	}
}

func (e *Engine) process(w bus.Work) error {
	conn, ok := w.Conn.(dispatch.Conn)
	if !ok {
		return fmt.Errorf("engine: connection %q has no write table", w.Conn.Name())
	}
	if e.queue == nil {
		e.queue = event.NewQueue()
	}

	switch w.Kind {
	case bus.KindEmit:
		e.bus.Publish(bus.TapEvent{
			Kind:       "emit",
			Connection: w.Conn.Name(),
			Line:       w.Event.Command() + " " + strings.Join(w.Event.Params(), " "),
		})
		e.queue.Push(w.Event)
		return e.drainer.Drain(conn, e.queue)

	default:
		return e.processLine(conn, w.Line)
	}
}

func (e *Engine) processLine(conn dispatch.Conn, line string) error {
	e.bus.Publish(bus.TapEvent{Kind: "recv", Connection: conn.Name(), Line: line})

	msg, err := irc.ParseMessage(line)
	if err != nil {
		if !errors.Is(err, irc.ErrEmptyMessage) {
			logger.WarnCF(componentEngine, "unparseable line skipped", map[string]interface{}{
				"connection": conn.Name(),
				"error":      err.Error(),
			})
		}
		return nil
	}
	e.messages.Add(1)

	selfNick := ""
	lc, hasLifecycle := conn.(lifecycleConn)
	if hasLifecycle {
		selfNick = lc.CurrentNick()
	}

	ev, family := Convert(msg, selfNick)
	if hasLifecycle {
		trackLifecycle(lc, ev)
	}

	ev.BindConnection(conn)
	if err := e.dispatcher.Dispatch(family, ev, e.queue); err != nil {
		return err
	}
	return e.drainer.Drain(conn, e.queue)
}

// trackLifecycle keeps the connection's registration state in step with the
// wire: the welcome reply confirms registration and carries the accepted
// nick, and an echoed NICK from ourselves records a rename.
func trackLifecycle(lc lifecycleConn, ev event.Event) {
	switch v := ev.(type) {
	case *event.ServerEvent:
		if v.Code() == "001" && len(v.Params()) > 0 {
			lc.MarkConnected(v.Params()[0])
		}
	case *event.PeerEvent:
		if v.Command() == "NICK" && v.Peer().Nick == lc.CurrentNick() && len(v.Params()) > 0 {
			lc.SetCurrentNick(v.Params()[0])
		}
	}
}

// Messages returns the number of inbound protocol messages processed.
func (e *Engine) Messages() uint64 { return e.messages.Load() }
