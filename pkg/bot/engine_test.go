package bot

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sipeed/ircclaw/pkg/bus"
	"github.com/sipeed/ircclaw/pkg/dispatch"
	"github.com/sipeed/ircclaw/pkg/event"
	"github.com/sipeed/ircclaw/pkg/plugin"
)

// fakeWireConn records resolved writes and carries the registration
// lifecycle surface the engine drives.
type fakeWireConn struct {
	name       string
	nick       string
	writes     []string
	marked     []string
	resolveErr error
	writeErr   error
}

func (f *fakeWireConn) Name() string            { return f.name }
func (f *fakeWireConn) CurrentNick() string     { return f.nick }
func (f *fakeWireConn) SetCurrentNick(n string) { f.nick = n }
func (f *fakeWireConn) MarkConnected(n string) {
	f.nick = n
	f.marked = append(f.marked, n)
}

func (f *fakeWireConn) ResolveWrite(name string) (dispatch.WriteFunc, error) {
	if f.resolveErr != nil {
		return nil, f.resolveErr
	}
	return func(params ...string) error {
		if f.writeErr != nil {
			return f.writeErr
		}
		f.writes = append(f.writes, strings.TrimSpace(name+" "+strings.Join(params, " ")))
		return nil
	}, nil
}

var _ dispatch.Conn = (*fakeWireConn)(nil)

type testPlugin struct {
	name string
	subs map[string]plugin.Handler
}

func (p *testPlugin) Name() string                             { return p.name }
func (p *testPlugin) Subscriptions() map[string]plugin.Handler { return p.subs }

func newTestEngine(t *testing.T) (*Engine, *plugin.Registry, *bus.Bus) {
	t.Helper()
	b := bus.New(16)
	t.Cleanup(b.Close)
	reg := plugin.NewRegistry()
	d := dispatch.NewDispatcher(reg)
	return NewEngine(b, d, dispatch.NewDrainer(d)), reg, b
}

func register(t *testing.T, reg *plugin.Registry, name string, subs map[string]plugin.Handler) {
	t.Helper()
	_, err := reg.Register(&testPlugin{name: name, subs: subs}, plugin.Global())
	require.NoError(t, err)
}

func TestEngineDispatchesInboundLine(t *testing.T) {
	e, reg, _ := newTestEngine(t)
	conn := &fakeWireConn{name: "libera", nick: "claw"}

	register(t, reg, "echo", map[string]plugin.Handler{
		"received.privmsg": plugin.HandlerFunc(func(ev event.Event, q *event.Queue) error {
			q.Push(event.NewServerEvent("NOTICE", ev.Params()[0], "heard"))
			return nil
		}),
	})

	err := e.process(bus.Work{Kind: bus.KindLine, Conn: conn, Line: ":dent!a@h PRIVMSG #claw :hello"})
	require.NoError(t, err)

	require.Len(t, conn.writes, 1)
	assert.Equal(t, "notice #claw heard", conn.writes[0])
	assert.Equal(t, uint64(1), e.Messages())
}

func TestEngineEmitPathDrainsQueue(t *testing.T) {
	e, _, _ := newTestEngine(t)
	conn := &fakeWireConn{name: "libera", nick: "claw"}

	err := e.process(bus.Work{
		Kind:  bus.KindEmit,
		Conn:  conn,
		Event: event.NewServerEvent("PRIVMSG", "#claw", "scheduled announcement"),
	})
	require.NoError(t, err)

	require.Len(t, conn.writes, 1)
	assert.Equal(t, "privmsg #claw scheduled announcement", conn.writes[0])
}

func TestEngineTracksRegistrationLifecycle(t *testing.T) {
	e, _, _ := newTestEngine(t)
	conn := &fakeWireConn{name: "libera", nick: "clawbot"}

	err := e.process(bus.Work{Kind: bus.KindLine, Conn: conn, Line: ":irc.libera.chat 001 clawbot :Welcome"})
	require.NoError(t, err)
	assert.Equal(t, []string{"clawbot"}, conn.marked)

	err = e.process(bus.Work{Kind: bus.KindLine, Conn: conn, Line: ":clawbot!u@h NICK :clawbot2"})
	require.NoError(t, err)
	assert.Equal(t, "clawbot2", conn.nick)
}

func TestEngineIgnoresOtherPeersNickChanges(t *testing.T) {
	e, _, _ := newTestEngine(t)
	conn := &fakeWireConn{name: "libera", nick: "claw"}

	err := e.process(bus.Work{Kind: bus.KindLine, Conn: conn, Line: ":dent!a@h NICK :dent2"})
	require.NoError(t, err)
	assert.Equal(t, "claw", conn.nick)
}

func TestEngineHandlerErrorIsFatal(t *testing.T) {
	e, reg, _ := newTestEngine(t)
	conn := &fakeWireConn{name: "libera", nick: "claw"}

	register(t, reg, "broken", map[string]plugin.Handler{
		"received.privmsg": plugin.HandlerFunc(func(ev event.Event, q *event.Queue) error {
			return errors.New("boom")
		}),
	})

	err := e.process(bus.Work{Kind: bus.KindLine, Conn: conn, Line: ":dent!a@h PRIVMSG #claw :hello"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
}

func TestEngineWriteFailureIsFatal(t *testing.T) {
	e, _, _ := newTestEngine(t)
	conn := &fakeWireConn{name: "libera", nick: "claw", writeErr: errors.New("broken pipe")}

	err := e.process(bus.Work{
		Kind:  bus.KindEmit,
		Conn:  conn,
		Event: event.NewServerEvent("PRIVMSG", "#claw", "hi"),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "write privmsg on libera")
}

func TestEngineUnknownWriteMethodIsFatal(t *testing.T) {
	e, _, _ := newTestEngine(t)
	conn := &fakeWireConn{
		name:       "libera",
		nick:       "claw",
		resolveErr: errors.New(`unknown write method "frobnicate"`),
	}

	err := e.process(bus.Work{
		Kind:  bus.KindEmit,
		Conn:  conn,
		Event: event.NewServerEvent("FROBNICATE"),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "drain on libera")
}

func TestEngineSkipsUnparseableLine(t *testing.T) {
	e, _, _ := newTestEngine(t)
	conn := &fakeWireConn{name: "libera", nick: "claw"}

	err := e.process(bus.Work{Kind: bus.KindLine, Conn: conn, Line: ":orphan-prefix"})
	require.NoError(t, err)
	assert.Equal(t, uint64(0), e.Messages())
	assert.Empty(t, conn.writes)
}

func TestEngineIgnoresEmptyLine(t *testing.T) {
	e, _, _ := newTestEngine(t)
	conn := &fakeWireConn{name: "libera", nick: "claw"}

	err := e.process(bus.Work{Kind: bus.KindLine, Conn: conn, Line: "\r\n"})
	require.NoError(t, err)
	assert.Equal(t, uint64(0), e.Messages())
}

func TestEngineRejectsConnWithoutWriteTable(t *testing.T) {
	e, _, _ := newTestEngine(t)

	err := e.process(bus.Work{Kind: bus.KindLine, Conn: bareConn("nameonly"), Line: "PING :x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no write table")
}

type bareConn string

func (b bareConn) Name() string { return string(b) }

func TestEngineRunStopsOnContextCancel(t *testing.T) {
	e, _, _ := newTestEngine(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("engine did not stop on context cancel")
	}
}

func TestEngineRunProcessesPushedWork(t *testing.T) {
	e, reg, b := newTestEngine(t)
	conn := &fakeWireConn{name: "libera", nick: "claw"}

	handled := make(chan string, 1)
	register(t, reg, "probe", map[string]plugin.Handler{
		"received.ping": plugin.HandlerFunc(func(ev event.Event, q *event.Queue) error {
			handled <- ev.Params()[0]
			return nil
		}),
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- e.Run(ctx) }()

	b.PushLine(conn, "PING :probe-token")

	select {
	case got := <-handled:
		assert.Equal(t, "probe-token", got)
	case <-time.After(2 * time.Second):
		t.Fatal("handler never saw the pushed line")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("engine did not stop")
	}
}
