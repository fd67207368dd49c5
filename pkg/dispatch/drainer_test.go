package dispatch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sipeed/ircclaw/pkg/event"
	"github.com/sipeed/ircclaw/pkg/plugin"
)

func TestWriteName(t *testing.T) {
	tests := []struct {
		name string
		ev   event.Event
		want string
	}{
		{"peer command", event.NewPeerEvent("PRIVMSG", event.Peer{}, "#claw", "hi"), "privmsg"},
		{"server command", event.NewServerEvent("NOTICE", "#claw", "hi"), "notice"},
		{"embedded request", event.NewEmbeddedEvent("PING", false, "dent", "1"), "ping"},
		{"embedded reply gets suffix", event.NewEmbeddedEvent("PING", true, "dent", "1"), "ping_reply"},
		{"version reply", event.NewEmbeddedEvent("VERSION", true, "dent", "ircclaw"), "version_reply"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, WriteName(tt.ev))
		})
	}
}

func TestDrainEmptyQueueWritesNothing(t *testing.T) {
	d := newDispatcher(t)
	dr := NewDrainer(d)
	conn := &fakeConn{name: "libera"}
	q := event.NewQueue()

	require.NoError(t, dr.Drain(conn, q))
	assert.Empty(t, conn.writes)
	assert.True(t, q.Empty())
	assert.Zero(t, dr.Written())
}

func TestDrainWritesSingleResponse(t *testing.T) {
	// A global handler answers an inbound PRIVMSG with a NOTICE; the drain
	// must commit exactly one write derived from that command, with the
	// handler's parameters, after binding the event to the connection.
	var boundTo event.Conn
	d := newDispatcher(t,
		&stubPlugin{name: "replier", subs: map[string]plugin.Handler{
			"received.privmsg": plugin.HandlerFunc(func(ev event.Event, q *event.Queue) error {
				q.Push(event.NewServerEvent("NOTICE", "#chan", "hi"))
				return nil
			}),
		}},
		&stubPlugin{name: "observer", subs: map[string]plugin.Handler{
			"sending.each": plugin.HandlerFunc(func(ev event.Event, q *event.Queue) error {
				boundTo = ev.Connection()
				return nil
			}),
		}},
	)
	dr := NewDrainer(d)

	conn := &fakeConn{name: "libera"}
	q := event.NewQueue()

	in := event.NewPeerEvent("PRIVMSG", event.Peer{Nick: "dent"}, "#chan", "hello")
	in.BindConnection(conn)
	require.NoError(t, d.Dispatch("received", in, q))
	require.NoError(t, dr.Drain(conn, q))

	require.Len(t, conn.writes, 1)
	assert.Equal(t, "notice", conn.writes[0].method)
	assert.Equal(t, []string{"#chan", "hi"}, conn.writes[0].params)
	assert.Same(t, conn, boundTo)
	assert.True(t, q.Empty())
	assert.Equal(t, uint64(1), dr.Written())
}

func TestDrainStrictFIFOIncludingDrainTimeEnqueues(t *testing.T) {
	// The sending.each observer pushes a third event while the first is in
	// flight; it must be written after everything already pending.
	d := newDispatcher(t, &stubPlugin{name: "chainer", subs: map[string]plugin.Handler{
		"sending.each": plugin.HandlerFunc(func(ev event.Event, q *event.Queue) error {
			if len(ev.Params()) > 1 && ev.Params()[1] == "one" {
				q.Push(event.NewServerEvent("PRIVMSG", "#claw", "three"))
			}
			return nil
		}),
	}})
	dr := NewDrainer(d)

	conn := &fakeConn{name: "libera"}
	q := event.NewQueue()
	q.Push(event.NewServerEvent("PRIVMSG", "#claw", "one"))
	q.Push(event.NewServerEvent("PRIVMSG", "#claw", "two"))

	require.NoError(t, dr.Drain(conn, q))

	var order []string
	for _, w := range conn.writes {
		order = append(order, w.params[1])
	}
	assert.Equal(t, []string{"one", "two", "three"}, order)
	assert.True(t, q.Empty())
}

func TestDrainSendingAllRunsFirstWithNilEvent(t *testing.T) {
	var log []seen
	d := newDispatcher(t, &stubPlugin{name: "lastchance", subs: map[string]plugin.Handler{
		"sending.all": plugin.HandlerFunc(func(ev event.Event, q *event.Queue) error {
			log = append(log, seen{name: "sending.all", ev: ev, q: q})
			q.Push(event.NewServerEvent("NOTICE", "#claw", "appended"))
			return nil
		}),
		"sending.each": recorder(&log, "sending.each"),
	}})
	dr := NewDrainer(d)

	conn := &fakeConn{name: "libera"}
	q := event.NewQueue()
	q.Push(event.NewServerEvent("PRIVMSG", "#claw", "pending"))

	require.NoError(t, dr.Drain(conn, q))

	// sending.all saw the queue before any pop, with no event attached.
	require.NotEmpty(t, log)
	assert.Equal(t, "sending.all", log[0].name)
	assert.Nil(t, log[0].ev)
	assert.Same(t, q, log[0].q)

	// The event it appended drained after the one already pending.
	require.Len(t, conn.writes, 2)
	assert.Equal(t, []string{"#claw", "pending"}, conn.writes[0].params)
	assert.Equal(t, []string{"#claw", "appended"}, conn.writes[1].params)
}

func TestDrainScopedHandlerSkipsSendingAll(t *testing.T) {
	reg := plugin.NewRegistry()
	conn := &fakeConn{name: "libera"}
	var fired int
	_, err := reg.Register(&stubPlugin{name: "scoped", subs: map[string]plugin.Handler{
		"sending.all": plugin.HandlerFunc(func(event.Event, *event.Queue) error {
			fired++
			return nil
		}),
	}}, plugin.ForConnection(conn))
	require.NoError(t, err)

	dr := NewDrainer(NewDispatcher(reg))
	require.NoError(t, dr.Drain(conn, event.NewQueue()))
	assert.Zero(t, fired, "the nil notification event never passes a scope filter")
}

func TestDrainEmbeddedReplyWriteMethod(t *testing.T) {
	d := newDispatcher(t)
	dr := NewDrainer(d)

	conn := &fakeConn{name: "libera"}
	q := event.NewQueue()
	q.Push(event.NewEmbeddedEvent("VERSION", true, "dent", "ircclaw 1.0"))

	require.NoError(t, dr.Drain(conn, q))

	require.Len(t, conn.writes, 1)
	assert.Equal(t, "version_reply", conn.writes[0].method)
	assert.Equal(t, []string{"dent", "ircclaw 1.0"}, conn.writes[0].params)
}

func TestDrainUnknownWriteMethodIsFatal(t *testing.T) {
	d := newDispatcher(t)
	dr := NewDrainer(d)

	conn := &fakeConn{name: "libera", table: map[string]bool{"privmsg": true}}
	q := event.NewQueue()
	q.Push(event.NewServerEvent("PRIVMSG", "#claw", "ok"))
	q.Push(event.NewServerEvent("FROBNICATE", "#claw"))

	err := dr.Drain(conn, q)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "frobnicate")
	assert.Contains(t, err.Error(), "libera")

	// Everything ahead of the mismatch was already committed.
	require.Len(t, conn.writes, 1)
	assert.Equal(t, "privmsg", conn.writes[0].method)
}

func TestDrainHandlerErrorAbortsBeforeWrite(t *testing.T) {
	d := newDispatcher(t, &stubPlugin{name: "veto", subs: map[string]plugin.Handler{
		"sending.each": plugin.HandlerFunc(func(event.Event, *event.Queue) error {
			return assert.AnError
		}),
	}})
	dr := NewDrainer(d)

	conn := &fakeConn{name: "libera"}
	q := event.NewQueue()
	q.Push(event.NewServerEvent("PRIVMSG", "#claw", "doomed"))

	require.ErrorIs(t, dr.Drain(conn, q), assert.AnError)
	assert.Empty(t, conn.writes)
}
