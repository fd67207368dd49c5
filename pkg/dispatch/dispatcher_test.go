package dispatch

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sipeed/ircclaw/pkg/event"
	"github.com/sipeed/ircclaw/pkg/plugin"
)

// fakeConn records every write resolved and invoked through it. A nil table
// accepts any method; otherwise only listed methods resolve.
type fakeConn struct {
	name   string
	table  map[string]bool
	writes []writeCall
}

type writeCall struct {
	method string
	params []string
}

func (c *fakeConn) Name() string { return c.name }

func (c *fakeConn) ResolveWrite(name string) (WriteFunc, error) {
	if c.table != nil && !c.table[name] {
		return nil, fmt.Errorf("unknown write method %q", name)
	}
	return func(params ...string) error {
		c.writes = append(c.writes, writeCall{method: name, params: params})
		return nil
	}, nil
}

type stubPlugin struct {
	name string
	subs map[string]plugin.Handler
}

func (p *stubPlugin) Name() string                             { return p.name }
func (p *stubPlugin) Subscriptions() map[string]plugin.Handler { return p.subs }

// seen records one handler invocation with the exact references it got.
type seen struct {
	name string
	ev   event.Event
	q    *event.Queue
}

func recorder(log *[]seen, name string) plugin.Handler {
	return plugin.HandlerFunc(func(ev event.Event, q *event.Queue) error {
		*log = append(*log, seen{name: name, ev: ev, q: q})
		return nil
	})
}

func newDispatcher(t *testing.T, plugins ...plugin.Plugin) *Dispatcher {
	t.Helper()
	reg := plugin.NewRegistry()
	for _, p := range plugins {
		_, err := reg.Register(p, plugin.Global())
		require.NoError(t, err)
	}
	return NewDispatcher(reg)
}

func TestDispatchGenericBeforeSpecific(t *testing.T) {
	var log []seen
	d := newDispatcher(t, &stubPlugin{
		name: "order",
		subs: map[string]plugin.Handler{
			"received.each":    recorder(&log, "received.each"),
			"received.privmsg": recorder(&log, "received.privmsg"),
		},
	})

	conn := &fakeConn{name: "libera"}
	ev := event.NewPeerEvent("PRIVMSG", event.Peer{Nick: "dent"}, "#claw", "hi")
	ev.BindConnection(conn)
	q := event.NewQueue()

	require.NoError(t, d.Dispatch("received", ev, q))

	require.Len(t, log, 2)
	assert.Equal(t, "received.each", log[0].name)
	assert.Equal(t, "received.privmsg", log[1].name)

	// Both emissions hand over the identical references.
	for _, s := range log {
		assert.Same(t, ev, s.ev)
		assert.Same(t, q, s.q)
	}
}

func TestDispatchSubtypePerVariant(t *testing.T) {
	tests := []struct {
		name     string
		ev       event.Event
		wantName string
	}{
		{"server numeric", event.NewServerEvent("001", "claw"), "received.001"},
		{"embedded request", event.NewEmbeddedEvent("VERSION", false, "dent"), "received.embedded.version"},
		{"peer command", event.NewPeerEvent("JOIN", event.Peer{Nick: "dent"}, "#claw"), "received.join"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var log []seen
			d := newDispatcher(t, &stubPlugin{
				name: "specific",
				subs: map[string]plugin.Handler{tt.wantName: recorder(&log, tt.wantName)},
			})
			tt.ev.BindConnection(&fakeConn{name: "libera"})
			require.NoError(t, d.Dispatch("received", tt.ev, event.NewQueue()))
			require.Len(t, log, 1)
			assert.Equal(t, tt.wantName, log[0].name)
		})
	}
}

func TestDispatchHandlerErrorAbortsAndPropagates(t *testing.T) {
	boom := errors.New("boom")
	var after int

	d := newDispatcher(t,
		&stubPlugin{name: "bad", subs: map[string]plugin.Handler{
			"received.each": plugin.HandlerFunc(func(event.Event, *event.Queue) error {
				return boom
			}),
		}},
		&stubPlugin{name: "never", subs: map[string]plugin.Handler{
			"received.each": plugin.HandlerFunc(func(event.Event, *event.Queue) error {
				after++
				return nil
			}),
			"received.privmsg": plugin.HandlerFunc(func(event.Event, *event.Queue) error {
				after++
				return nil
			}),
		}},
	)

	ev := event.NewPeerEvent("PRIVMSG", event.Peer{Nick: "dent"}, "#claw", "hi")
	ev.BindConnection(&fakeConn{name: "libera"})

	err := d.Dispatch("received", ev, event.NewQueue())
	require.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "received.each")
	assert.Zero(t, after, "later handlers and the specific emission must not run")
}

func TestDispatchNoHandlersIsNoop(t *testing.T) {
	d := newDispatcher(t)
	ev := event.NewServerEvent("372", "claw", "motd line")
	ev.BindConnection(&fakeConn{name: "libera"})
	require.NoError(t, d.Dispatch("received", ev, event.NewQueue()))
	assert.Equal(t, uint64(1), d.Dispatched())
}
