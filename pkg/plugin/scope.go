package plugin

import "github.com/sipeed/ircclaw/pkg/event"

// Scope selects which connections a registration is visible to: every
// connection (global) or exactly one.
type Scope struct {
	conn event.Conn
}

// Global returns the scope visible to all connections.
func Global() Scope { return Scope{} }

// ForConnection returns a scope bound to one connection.
func ForConnection(c event.Conn) Scope { return Scope{conn: c} }

// IsGlobal reports whether the scope covers all connections.
func (s Scope) IsGlobal() bool { return s.conn == nil }

// Connection returns the bound connection, nil for the global scope.
func (s Scope) Connection() event.Conn { return s.conn }

func (s Scope) String() string {
	if s.conn == nil {
		return "global"
	}
	return s.conn.Name()
}

// ScopedHandler gates a handler behind a connection identity check. It holds
// the target connection and the wrapped handler as plain fields rather than
// closing over them.
type ScopedHandler struct {
	conn event.Conn
	next Handler
}

// ScopeToConnection wraps a handler so it only fires for events bound to
// conn. Events bound elsewhere, and the nil event of the "sending.all"
// notification, pass through as a silent no-op.
func ScopeToConnection(h Handler, conn event.Conn) *ScopedHandler {
	return &ScopedHandler{conn: conn, next: h}
}

func (s *ScopedHandler) HandleEvent(ev event.Event, q *event.Queue) error {
	if ev == nil || ev.Connection() != s.conn {
		return nil
	}
	return s.next.HandleEvent(ev, q)
}

var _ Handler = (*ScopedHandler)(nil)
