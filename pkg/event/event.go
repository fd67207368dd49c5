// Package event defines the typed events the engine routes, the subtype
// resolver that turns an event into its routing suffix, and the shared
// outbound queue handlers push responses into.
package event

// Conn identifies the connection an event occurred on. The engine treats it
// as an opaque identity: it never mutates a Conn and compares only interface
// identity, so two connections are the same iff they are the same value.
type Conn interface {
	Name() string
}

// Event is one protocol occurrence, inbound or outbound. Events are
// immutable after construction except for the connection binding, which is
// set exactly once before any handler sees the event.
type Event interface {
	// Command is the protocol command that carried the event (for server
	// replies, the response code).
	Command() string
	// Params are the command parameters in wire order.
	Params() []string
	// Connection is the binding set by BindConnection, nil until then.
	Connection() Conn
	// BindConnection tags the event with the connection it belongs to.
	BindConnection(Conn)
}

// BaseEvent carries the fields common to every variant.
type BaseEvent struct {
	command string
	params  []string
	conn    Conn
}

func newBaseEvent(command string, params []string) BaseEvent {
	return BaseEvent{command: command, params: params}
}

func (e *BaseEvent) Command() string       { return e.command }
func (e *BaseEvent) Params() []string      { return e.params }
func (e *BaseEvent) Connection() Conn      { return e.conn }
func (e *BaseEvent) BindConnection(c Conn) { e.conn = c }

// ---------------------------------------------------------------------------
// Variants
// ---------------------------------------------------------------------------

// Peer is the identity of the user a PeerEvent originated from.
type Peer struct {
	Nick string
	User string
	Host string
}

// String renders the peer as a nick!user@host mask.
func (p Peer) String() string {
	s := p.Nick
	if p.User != "" {
		s += "!" + p.User
	}
	if p.Host != "" {
		s += "@" + p.Host
	}
	return s
}

// PeerEvent is a command sent by another user (PRIVMSG, JOIN, NICK, ...).
type PeerEvent struct {
	BaseEvent
	peer Peer
}

// NewPeerEvent constructs a peer command event.
func NewPeerEvent(command string, peer Peer, params ...string) *PeerEvent {
	return &PeerEvent{BaseEvent: newBaseEvent(command, params), peer: peer}
}

// Peer returns the originating user identity.
func (e *PeerEvent) Peer() Peer { return e.peer }

// ServerEvent is a command or numeric reply sent by the server itself.
type ServerEvent struct {
	BaseEvent
	code string
}

// NewServerEvent constructs a server reply event. The code doubles as the
// command.
func NewServerEvent(code string, params ...string) *ServerEvent {
	return &ServerEvent{BaseEvent: newBaseEvent(code, params), code: code}
}

// Code returns the numeric or textual response code.
func (e *ServerEvent) Code() string { return e.code }

// EmbeddedEvent is a CTCP exchange nested inside a PRIVMSG or NOTICE body.
// Requests ride in PRIVMSG, replies in NOTICE; the carrier command is fixed
// accordingly at construction.
type EmbeddedEvent struct {
	BaseEvent
	embedded string
	reply    bool
}

// NewEmbeddedEvent constructs an embedded exchange event.
func NewEmbeddedEvent(embedded string, reply bool, params ...string) *EmbeddedEvent {
	carrier := "PRIVMSG"
	if reply {
		carrier = "NOTICE"
	}
	return &EmbeddedEvent{
		BaseEvent: newBaseEvent(carrier, params),
		embedded:  embedded,
		reply:     reply,
	}
}

// Embedded returns the embedded-command name (VERSION, PING, ...).
func (e *EmbeddedEvent) Embedded() string { return e.embedded }

// IsReply reports whether the exchange is a reply rather than a request.
func (e *EmbeddedEvent) IsReply() bool { return e.reply }

var (
	_ Event = (*PeerEvent)(nil)
	_ Event = (*ServerEvent)(nil)
	_ Event = (*EmbeddedEvent)(nil)
)
