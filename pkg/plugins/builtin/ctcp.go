package builtin

import (
	"time"

	"github.com/sipeed/ircclaw/pkg/event"
	"github.com/sipeed/ircclaw/pkg/logger"
	"github.com/sipeed/ircclaw/pkg/plugin"
)

const ctcpSource = "https://github.com/sipeed/ircclaw"

// CTCP answers the standard embedded queries: VERSION, PING, TIME,
// CLIENTINFO, and SOURCE. Replies to replies are never sent, so two bots
// querying each other cannot loop.
type CTCP struct {
	version string
	log     *logger.Logger
	now     func() time.Time
}

// NewCTCP returns the responder advertising the given version string.
func NewCTCP(version string) *CTCP {
	return &CTCP{version: version, now: time.Now}
}

func (c *CTCP) Name() string { return "ctcp" }

func (c *CTCP) SetLogger(l *logger.Logger) { c.log = l }

func (c *CTCP) Subscriptions() map[string]plugin.Handler {
	return map[string]plugin.Handler{
		"received.embedded.version":    plugin.HandlerFunc(c.handleVersion),
		"received.embedded.ping":       plugin.HandlerFunc(c.handlePing),
		"received.embedded.time":       plugin.HandlerFunc(c.handleTime),
		"received.embedded.clientinfo": plugin.HandlerFunc(c.handleClientInfo),
		"received.embedded.source":     plugin.HandlerFunc(c.handleSource),
	}
}

// request unwraps an inbound embedded query, filtering out replies. The
// first parameter is the peer to answer.
func request(ev event.Event) (target string, args string, ok bool) {
	emb, isEmb := ev.(*event.EmbeddedEvent)
	if !isEmb || emb.IsReply() || len(emb.Params()) == 0 {
		return "", "", false
	}
	target = emb.Params()[0]
	if len(emb.Params()) > 1 {
		args = emb.Params()[1]
	}
	return target, args, true
}

func (c *CTCP) handleVersion(ev event.Event, q *event.Queue) error {
	target, _, ok := request(ev)
	if !ok {
		return nil
	}
	if c.log != nil {
		c.log.DebugF("version query", map[string]interface{}{"from": target})
	}
	q.Push(event.NewEmbeddedEvent("VERSION", true, target, c.version))
	return nil
}

func (c *CTCP) handlePing(ev event.Event, q *event.Queue) error {
	target, token, ok := request(ev)
	if !ok {
		return nil
	}
	q.Push(event.NewEmbeddedEvent("PING", true, target, token))
	return nil
}

func (c *CTCP) handleTime(ev event.Event, q *event.Queue) error {
	target, _, ok := request(ev)
	if !ok {
		return nil
	}
	q.Push(event.NewEmbeddedEvent("TIME", true, target, c.now().Format(time.RFC1123)))
	return nil
}

func (c *CTCP) handleClientInfo(ev event.Event, q *event.Queue) error {
	target, _, ok := request(ev)
	if !ok {
		return nil
	}
	q.Push(event.NewEmbeddedEvent("CLIENTINFO", true, target,
		"ACTION CLIENTINFO PING SOURCE TIME VERSION"))
	return nil
}

func (c *CTCP) handleSource(ev event.Event, q *event.Queue) error {
	target, _, ok := request(ev)
	if !ok {
		return nil
	}
	q.Push(event.NewEmbeddedEvent("SOURCE", true, target, ctcpSource))
	return nil
}

var (
	_ plugin.Plugin        = (*CTCP)(nil)
	_ plugin.LoggerCapable = (*CTCP)(nil)
)
