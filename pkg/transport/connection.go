// Package transport owns the server connections: dialing (TCP, TLS, or an
// IRC-over-WebSocket gateway), the read loop feeding raw lines to the
// engine, and the flood-limited write table outbound events resolve against.
package transport

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sipeed/ircclaw/pkg/config"
	"github.com/sipeed/ircclaw/pkg/dispatch"
	"github.com/sipeed/ircclaw/pkg/event"
	"github.com/sipeed/ircclaw/pkg/logger"
)

const componentTransport = "transport"

// State is the connection lifecycle state.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateRegistering  State = "registering"
	StateConnected    State = "connected"
	StateError        State = "error"
)

// Connection is one configured server connection. It is the identity events
// are bound to and the write surface the drainer resolves against.
type Connection struct {
	cfg    config.ConnectionConfig
	sender *Sender
	flood  *floodLimiter

	dial func(ctx context.Context) (lineStream, error)

	mu          sync.RWMutex
	state       State
	stream      lineStream
	currentNick string
	connectedAt time.Time
	lastError   string
	onWrite     func(line string)

	linesIn    atomic.Uint64
	linesOut   atomic.Uint64
	reconnects atomic.Uint64
}

// New builds a connection from its configuration. Nothing is dialed until
// Run.
func New(cfg config.ConnectionConfig) *Connection {
	c := &Connection{
		cfg:         cfg,
		flood:       newFloodLimiter(cfg.Flood.Burst, time.Duration(cfg.Flood.DelayMS)*time.Millisecond),
		state:       StateDisconnected,
		currentNick: cfg.Nick,
	}
	c.sender = NewSender(c.WriteLine)
	if cfg.WSURL != "" {
		c.dial = func(ctx context.Context) (lineStream, error) {
			return dialWS(ctx, cfg.WSURL)
		}
	} else {
		c.dial = func(ctx context.Context) (lineStream, error) {
			return dialTCP(ctx, cfg.Addr, cfg.TLS)
		}
	}
	return c
}

// Name implements the connection identity events are bound to.
func (c *Connection) Name() string { return c.cfg.Name }

// Config returns the connection's configuration.
func (c *Connection) Config() config.ConnectionConfig { return c.cfg }

// ResolveWrite resolves an outbound write method by name.
func (c *Connection) ResolveWrite(name string) (dispatch.WriteFunc, error) {
	return c.sender.Resolve(name)
}

// Sender exposes the write table, for surfaces that enumerate it.
func (c *Connection) Sender() *Sender { return c.sender }

// CurrentNick returns the nick the connection currently holds.
func (c *Connection) CurrentNick() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.currentNick
}

// SetCurrentNick records a nick change observed on the wire.
func (c *Connection) SetCurrentNick(nick string) {
	c.mu.Lock()
	c.currentNick = nick
	c.mu.Unlock()
}

// State returns the lifecycle state.
func (c *Connection) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// MarkConnected records successful registration with the nick the server
// accepted. Called by the engine when the welcome reply arrives.
func (c *Connection) MarkConnected(nick string) {
	c.mu.Lock()
	c.state = StateConnected
	c.connectedAt = time.Now()
	c.lastError = ""
	if nick != "" {
		c.currentNick = nick
	}
	c.mu.Unlock()
	logger.InfoCF(componentTransport, "registered", map[string]interface{}{
		"connection": c.cfg.Name,
		"nick":       nick,
	})
}

func (c *Connection) markConnecting() {
	c.mu.Lock()
	c.state = StateConnecting
	c.mu.Unlock()
}

func (c *Connection) markRegistering(stream lineStream) {
	c.mu.Lock()
	c.state = StateRegistering
	c.stream = stream
	c.mu.Unlock()
}

func (c *Connection) markDisconnected() {
	c.mu.Lock()
	c.state = StateDisconnected
	c.stream = nil
	c.connectedAt = time.Time{}
	c.mu.Unlock()
}

func (c *Connection) markError(err error) {
	c.mu.Lock()
	c.state = StateError
	c.lastError = err.Error()
	c.mu.Unlock()
}

// SetWriteObserver installs a callback invoked after every successful
// write, with the raw line sent. Install before Run.
func (c *Connection) SetWriteObserver(fn func(line string)) {
	c.mu.Lock()
	c.onWrite = fn
	c.mu.Unlock()
}

// WriteLine sends one raw line, subject to flood control.
func (c *Connection) WriteLine(line string) error {
	c.mu.RLock()
	stream, onWrite := c.stream, c.onWrite
	c.mu.RUnlock()
	if stream == nil {
		return fmt.Errorf("connection %s: not connected", c.cfg.Name)
	}

	c.flood.Wait()
	if err := stream.WriteLine(line); err != nil {
		return fmt.Errorf("connection %s: write: %w", c.cfg.Name, err)
	}
	c.linesOut.Add(1)
	if onWrite != nil {
		onWrite(line)
	}
	return nil
}

// Run dials the server and feeds every inbound line to sink until ctx ends.
// Lost connections are redialed with capped exponential backoff; a nil error
// means the context ended the run.
func (c *Connection) Run(ctx context.Context, sink func(line string)) error {
	const (
		backoffMin = 2 * time.Second
		backoffMax = time.Minute
	)
	backoff := backoffMin

	for {
		start := time.Now()
		err := c.session(ctx, sink)
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			logger.WarnCF(componentTransport, "connection lost", map[string]interface{}{
				"connection": c.cfg.Name,
				"error":      err.Error(),
				"retry_in":   backoff.String(),
			})
		}
		if time.Since(start) > backoffMax {
			backoff = backoffMin
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff):
		}
		c.reconnects.Add(1)
		backoff *= 2
		if backoff > backoffMax {
			backoff = backoffMax
		}
	}
}

// session runs one dial+register+read cycle.
func (c *Connection) session(ctx context.Context, sink func(line string)) error {
	c.markConnecting()
	stream, err := c.dial(ctx)
	if err != nil {
		c.markError(err)
		return err
	}
	c.markRegistering(stream)
	defer c.markDisconnected()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			stream.Close()
		case <-done:
			stream.Close()
		}
	}()

	logger.InfoCF(componentTransport, "connected", map[string]interface{}{
		"connection": c.cfg.Name,
		"addr":       c.Addr(),
	})

	if err := c.register(); err != nil {
		c.markError(err)
		return err
	}

	for {
		line, err := stream.ReadLine()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.markError(err)
			return fmt.Errorf("connection %s: read: %w", c.cfg.Name, err)
		}
		c.linesIn.Add(1)
		sink(line)
	}
}

// register performs the login handshake.
func (c *Connection) register() error {
	if c.cfg.Password != "" {
		if err := c.WriteLine("PASS " + c.cfg.Password); err != nil {
			return err
		}
	}
	if err := c.WriteLine("NICK " + c.cfg.Nick); err != nil {
		return err
	}
	return c.WriteLine(fmt.Sprintf("USER %s 0 * :%s", c.cfg.User, c.cfg.Realname))
}

// Addr returns the dial target, whichever form it takes.
func (c *Connection) Addr() string {
	if c.cfg.WSURL != "" {
		return c.cfg.WSURL
	}
	return c.cfg.Addr
}

// Status is a point-in-time snapshot for observers.
type Status struct {
	Name        string    `json:"name"`
	Addr        string    `json:"addr"`
	State       string    `json:"state"`
	Nick        string    `json:"nick"`
	Channels    []string  `json:"channels"`
	ConnectedAt time.Time `json:"connected_at,omitempty"`
	LinesIn     uint64    `json:"lines_in"`
	LinesOut    uint64    `json:"lines_out"`
	Reconnects  uint64    `json:"reconnects"`
	LastError   string    `json:"last_error,omitempty"`
}

// Status captures the connection's current state and counters.
func (c *Connection) Status() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Status{
		Name:        c.cfg.Name,
		Addr:        c.Addr(),
		State:       string(c.state),
		Nick:        c.currentNick,
		Channels:    c.cfg.Channels,
		ConnectedAt: c.connectedAt,
		LinesIn:     c.linesIn.Load(),
		LinesOut:    c.linesOut.Load(),
		Reconnects:  c.reconnects.Load(),
		LastError:   c.lastError,
	}
}

var (
	_ event.Conn    = (*Connection)(nil)
	_ dispatch.Conn = (*Connection)(nil)
)
