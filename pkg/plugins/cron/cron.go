// Package cron announces configured messages into channels on a schedule.
package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/adhocore/gronx"

	"github.com/sipeed/ircclaw/pkg/event"
	"github.com/sipeed/ircclaw/pkg/logger"
	"github.com/sipeed/ircclaw/pkg/plugin"
)

// Schedule is one timed announcement.
type Schedule struct {
	Expr       string // five-field cron expression, gronx macros allowed
	Connection string
	Target     string
	Text       string
}

// Plugin evaluates schedules once per minute and emits due announcements
// through the engine so they serialize with everything else.
type Plugin struct {
	schedules []Schedule
	resolve   func(name string) event.Conn
	emitter   plugin.Emitter
	log       *logger.Logger
	now       func() time.Time
}

// New validates every schedule up front so a bad expression fails startup
// instead of a 3am announcement. resolve maps a connection name to its live
// connection at fire time.
func New(schedules []Schedule, resolve func(name string) event.Conn) (*Plugin, error) {
	gron := gronx.New()
	for _, s := range schedules {
		if !gron.IsValid(s.Expr) {
			return nil, fmt.Errorf("cron: invalid expression %q", s.Expr)
		}
		if s.Connection == "" || s.Target == "" || s.Text == "" {
			return nil, fmt.Errorf("cron: schedule %q needs connection, target and text", s.Expr)
		}
	}
	return &Plugin{
		schedules: schedules,
		resolve:   resolve,
		log:       logger.Component("plugin.cron"),
		now:       time.Now,
	}, nil
}

func (p *Plugin) Name() string { return "cron" }

// Subscriptions is empty. The plugin only produces events.
func (p *Plugin) Subscriptions() map[string]plugin.Handler {
	return map[string]plugin.Handler{}
}

func (p *Plugin) SetEmitter(e plugin.Emitter) { p.emitter = e }

func (p *Plugin) SetLogger(l *logger.Logger) { p.log = l }

// Run ticks on minute boundaries until the context ends.
func (p *Plugin) Run(ctx context.Context) error {
	p.log.InfoF("scheduler started", map[string]interface{}{
		"schedules": len(p.schedules),
	})

	now := p.now()
	next := now.Truncate(time.Minute).Add(time.Minute)
	timer := time.NewTimer(next.Sub(now))
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case at := <-timer.C:
			p.fire(at)
			next = at.Truncate(time.Minute).Add(time.Minute)
			timer.Reset(next.Sub(p.now()))
		}
	}
}

// fire emits every schedule due at the given minute.
func (p *Plugin) fire(at time.Time) {
	gron := gronx.New()
	for _, s := range p.schedules {
		due, err := gron.IsDue(s.Expr, at)
		if err != nil {
			p.log.ErrorF("schedule evaluation failed", map[string]interface{}{
				"expr":  s.Expr,
				"error": err.Error(),
			})
			continue
		}
		if !due {
			continue
		}
		p.announce(s)
	}
}

func (p *Plugin) announce(s Schedule) {
	conn := p.resolve(s.Connection)
	if conn == nil {
		p.log.WarnF("schedule refers to unknown connection", map[string]interface{}{
			"expr":       s.Expr,
			"connection": s.Connection,
		})
		return
	}
	if p.emitter == nil {
		return
	}
	p.log.DebugF("announcing", map[string]interface{}{
		"connection": s.Connection,
		"target":     s.Target,
	})
	p.emitter.Emit(conn, event.NewServerEvent("PRIVMSG", s.Target, s.Text))
}

var (
	_ plugin.Plugin         = (*Plugin)(nil)
	_ plugin.Runner         = (*Plugin)(nil)
	_ plugin.EmitterCapable = (*Plugin)(nil)
	_ plugin.LoggerCapable  = (*Plugin)(nil)
)
