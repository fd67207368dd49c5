package cron

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sipeed/ircclaw/pkg/event"
)

type fakeConn struct{ name string }

func (c *fakeConn) Name() string { return c.name }

type emitted struct {
	conn event.Conn
	ev   event.Event
}

type fakeEmitter struct{ emits []emitted }

func (e *fakeEmitter) Emit(conn event.Conn, ev event.Event) {
	e.emits = append(e.emits, emitted{conn: conn, ev: ev})
}

func resolver(conns map[string]event.Conn) func(string) event.Conn {
	return func(name string) event.Conn { return conns[name] }
}

func TestNewRejectsBadExpression(t *testing.T) {
	_, err := New([]Schedule{
		{Expr: "not a cron", Connection: "libera", Target: "#claw", Text: "hi"},
	}, resolver(nil))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a cron")
}

func TestNewRejectsIncompleteSchedule(t *testing.T) {
	_, err := New([]Schedule{
		{Expr: "* * * * *", Connection: "libera", Target: "", Text: "hi"},
	}, resolver(nil))
	require.Error(t, err)
}

func TestFireDueEvaluation(t *testing.T) {
	libera := &fakeConn{name: "libera"}
	p, err := New([]Schedule{
		{Expr: "0 9 * * *", Connection: "libera", Target: "#claw", Text: "standup time"},
		{Expr: "*/5 * * * *", Connection: "libera", Target: "#ops", Text: "tick"},
	}, resolver(map[string]event.Conn{"libera": libera}))
	require.NoError(t, err)

	em := &fakeEmitter{}
	p.SetEmitter(em)

	// 09:00 matches both schedules, in declaration order.
	p.fire(time.Date(2026, 8, 21, 9, 0, 0, 0, time.UTC))
	require.Len(t, em.emits, 2)
	assert.Same(t, libera, em.emits[0].conn)
	assert.Equal(t, "PRIVMSG", em.emits[0].ev.Command())
	assert.Equal(t, []string{"#claw", "standup time"}, em.emits[0].ev.Params())
	assert.Equal(t, []string{"#ops", "tick"}, em.emits[1].ev.Params())

	// 09:03 matches neither.
	em.emits = nil
	p.fire(time.Date(2026, 8, 21, 9, 3, 0, 0, time.UTC))
	assert.Empty(t, em.emits)

	// 14:35 matches only the five-minute schedule.
	p.fire(time.Date(2026, 8, 21, 14, 35, 0, 0, time.UTC))
	require.Len(t, em.emits, 1)
	assert.Equal(t, []string{"#ops", "tick"}, em.emits[0].ev.Params())
}

func TestFireSkipsUnknownConnection(t *testing.T) {
	p, err := New([]Schedule{
		{Expr: "* * * * *", Connection: "ghost", Target: "#claw", Text: "hi"},
	}, resolver(map[string]event.Conn{}))
	require.NoError(t, err)

	em := &fakeEmitter{}
	p.SetEmitter(em)

	p.fire(time.Date(2026, 8, 21, 9, 0, 0, 0, time.UTC))
	assert.Empty(t, em.emits)
}

func TestFireWithoutEmitterDoesNotPanic(t *testing.T) {
	libera := &fakeConn{name: "libera"}
	p, err := New([]Schedule{
		{Expr: "* * * * *", Connection: "libera", Target: "#claw", Text: "hi"},
	}, resolver(map[string]event.Conn{"libera": libera}))
	require.NoError(t, err)

	p.fire(time.Date(2026, 8, 21, 9, 0, 0, 0, time.UTC))
}

func TestRunStopsOnCancel(t *testing.T) {
	p, err := New(nil, resolver(nil))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop on cancel")
	}
}
