package bus

import (
	"time"

	"github.com/sipeed/ircclaw/pkg/event"
)

// Kind discriminates work items on the engine feed.
type Kind int

const (
	// KindLine is a raw inbound line read from a connection.
	KindLine Kind = iota
	// KindEmit is an outbound event injected through the emitter handle.
	KindEmit
)

// Work is one unit for the engine loop: either a raw line to convert and
// dispatch, or an injected event to queue and drain.
type Work struct {
	Kind  Kind
	Conn  event.Conn
	Line  string      // KindLine only
	Event event.Event // KindEmit only
}

// TapEvent is a copy of engine activity flowing to observers (console,
// status API). Used for raw traffic and lifecycle visibility.
type TapEvent struct {
	Kind       string    `json:"kind"`   // e.g. "recv", "send", "emit"
	Connection string    `json:"connection"`
	Line       string    `json:"line,omitempty"`
	At         time.Time `json:"at"`
}
