package builtin

import (
	"strings"

	"github.com/sipeed/ircclaw/pkg/event"
	"github.com/sipeed/ircclaw/pkg/logger"
	"github.com/sipeed/ircclaw/pkg/plugin"
)

// JoinSpec is the per-connection channel list and fallback nick.
type JoinSpec struct {
	Channels []string
	AltNick  string
}

// Autojoin joins the configured channels once registration completes and
// steps to the fallback nick when the configured one is taken.
type Autojoin struct {
	specs    map[string]JoinSpec
	attempts map[string]int
	log      *logger.Logger
}

// NewAutojoin returns the plugin with join specs keyed by connection name.
func NewAutojoin(specs map[string]JoinSpec) *Autojoin {
	return &Autojoin{
		specs:    specs,
		attempts: make(map[string]int),
	}
}

func (a *Autojoin) Name() string { return "autojoin" }

func (a *Autojoin) SetLogger(l *logger.Logger) { a.log = l }

func (a *Autojoin) Subscriptions() map[string]plugin.Handler {
	return map[string]plugin.Handler{
		"received.001": plugin.HandlerFunc(a.handleWelcome),
		"received.433": plugin.HandlerFunc(a.handleNickInUse),
	}
}

func (a *Autojoin) handleWelcome(ev event.Event, q *event.Queue) error {
	spec, ok := a.specs[ev.Connection().Name()]
	if !ok {
		return nil
	}
	delete(a.attempts, ev.Connection().Name())
	for _, channel := range spec.Channels {
		q.Push(event.NewServerEvent("JOIN", channel))
	}
	if a.log != nil && len(spec.Channels) > 0 {
		a.log.InfoF("joining channels", map[string]interface{}{
			"connection": ev.Connection().Name(),
			"channels":   strings.Join(spec.Channels, ","),
		})
	}
	return nil
}

// handleNickInUse walks the fallback ladder: the configured alternate first,
// then underscore-suffixed variants of it.
func (a *Autojoin) handleNickInUse(ev event.Event, q *event.Queue) error {
	name := ev.Connection().Name()
	spec, ok := a.specs[name]
	if !ok || spec.AltNick == "" {
		return nil
	}

	next := spec.AltNick + strings.Repeat("_", a.attempts[name])
	a.attempts[name]++

	if a.log != nil {
		a.log.WarnF("nick in use, trying fallback", map[string]interface{}{
			"connection": name,
			"nick":       next,
		})
	}
	q.Push(event.NewServerEvent("NICK", next))
	return nil
}

var (
	_ plugin.Plugin        = (*Autojoin)(nil)
	_ plugin.LoggerCapable = (*Autojoin)(nil)
)
