// Package bot assembles and runs the engine: configuration in, a wired set
// of connections, plugins, and loops out.
package bot

import (
	"context"
	"fmt"
	"io"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/sipeed/ircclaw/pkg/api"
	"github.com/sipeed/ircclaw/pkg/bus"
	"github.com/sipeed/ircclaw/pkg/config"
	"github.com/sipeed/ircclaw/pkg/dispatch"
	"github.com/sipeed/ircclaw/pkg/event"
	"github.com/sipeed/ircclaw/pkg/logger"
	"github.com/sipeed/ircclaw/pkg/plugin"
	"github.com/sipeed/ircclaw/pkg/plugins/ai"
	"github.com/sipeed/ircclaw/pkg/plugins/builtin"
	"github.com/sipeed/ircclaw/pkg/plugins/cron"
	"github.com/sipeed/ircclaw/pkg/plugins/luahost"
	"github.com/sipeed/ircclaw/pkg/plugins/seen"
	"github.com/sipeed/ircclaw/pkg/transport"
)

const (
	componentBot = "bot"

	// busSize bounds how far the readers can run ahead of the engine before
	// backpressure kicks in.
	busSize = 256

	defaultSeenDB = "seen.db"
)

// Bot is the composition root. It owns the bus, the registry, the engine,
// the connections, and the plugin set, all wired from one Config.
type Bot struct {
	cfg     *config.Config
	version string

	bus        *bus.Bus
	emitter    *Emitter
	registry   *plugin.Registry
	dispatcher *dispatch.Dispatcher
	drainer    *dispatch.Drainer
	engine     *Engine

	conns map[string]*transport.Connection
	order []string

	apiServer *api.Server
	closers   []io.Closer
}

// New wires a bot from its configuration. All plugin validation happens
// here: a broken plugin, script, or schedule fails construction and nothing
// runs.
func New(cfg *config.Config, version string) (*Bot, error) {
	b := &Bot{
		cfg:     cfg,
		version: version,
		bus:     bus.New(busSize),
		conns:   make(map[string]*transport.Connection),
	}
	b.emitter = NewEmitter(b.bus)
	b.registry = plugin.NewRegistry()
	b.registry.SetEmitter(b.emitter)
	b.dispatcher = dispatch.NewDispatcher(b.registry)
	b.drainer = dispatch.NewDrainer(b.dispatcher)
	b.engine = NewEngine(b.bus, b.dispatcher, b.drainer)

	for _, cc := range cfg.Connections {
		conn := transport.New(cc)
		name := cc.Name
		conn.SetWriteObserver(func(line string) {
			b.bus.Publish(bus.TapEvent{Kind: "send", Connection: name, Line: maskSecrets(line)})
		})
		b.conns[name] = conn
		b.order = append(b.order, name)
	}

	if err := b.registerBuiltins(); err != nil {
		return nil, err
	}
	if err := b.registerConfigured(); err != nil {
		b.closeAll()
		return nil, err
	}

	if cfg.API.Addr != "" {
		b.apiServer = api.NewServer(cfg.API.Addr, cfg.API.Token, b.bus, b)
	}

	logger.InfoCF(componentBot, "wired", map[string]interface{}{
		"connections": len(b.order),
		"plugins":     len(b.registry.Registrations()),
	})
	return b, nil
}

// registerBuiltins installs the protocol plugins every bot carries.
func (b *Bot) registerBuiltins() error {
	joins := make(map[string]builtin.JoinSpec, len(b.cfg.Connections))
	for _, cc := range b.cfg.Connections {
		joins[cc.Name] = builtin.JoinSpec{Channels: cc.Channels, AltNick: cc.AltNick}
	}

	for _, p := range []plugin.Plugin{
		builtin.NewPong(),
		builtin.NewCTCP(b.version),
		builtin.NewAutojoin(joins),
	} {
		if _, err := b.registry.Register(p, plugin.Global()); err != nil {
			return fmt.Errorf("bot: register %s: %w", p.Name(), err)
		}
	}
	return nil
}

// registerConfigured builds the configured plugins and registers each one
// globally, or scoped to every connection whose plugin list names its spec.
func (b *Bot) registerConfigured() error {
	attached := make(map[string][]string)
	specNames := make(map[string]bool, len(b.cfg.Plugins))
	for _, spec := range b.cfg.Plugins {
		specNames[spec.Name] = true
	}
	for _, cc := range b.cfg.Connections {
		for _, name := range cc.Plugins {
			if !specNames[name] {
				return fmt.Errorf("bot: connection %q references unknown plugin %q", cc.Name, name)
			}
			attached[name] = append(attached[name], cc.Name)
		}
	}

	for _, spec := range b.cfg.Plugins {
		plugins, err := b.buildPlugin(spec)
		if err != nil {
			return err
		}
		for _, p := range plugins {
			if err := b.registerScoped(p, attached[spec.Name]); err != nil {
				return err
			}
		}
	}
	return nil
}

func (b *Bot) registerScoped(p plugin.Plugin, connNames []string) error {
	if closer, ok := p.(io.Closer); ok {
		b.closers = append(b.closers, closer)
	}
	if len(connNames) == 0 {
		if _, err := b.registry.Register(p, plugin.Global()); err != nil {
			return fmt.Errorf("bot: register %s: %w", p.Name(), err)
		}
		return nil
	}
	for _, name := range connNames {
		if _, err := b.registry.Register(p, plugin.ForConnection(b.conns[name])); err != nil {
			return fmt.Errorf("bot: register %s on %s: %w", p.Name(), name, err)
		}
	}
	return nil
}

// buildPlugin turns one spec into plugin instances. The lua spec yields one
// plugin per script.
func (b *Bot) buildPlugin(spec config.PluginSpec) ([]plugin.Plugin, error) {
	switch spec.Name {
	case "seen":
		path := spec.DBPath
		if path == "" {
			path = defaultSeenDB
		}
		p, err := seen.New(path)
		if err != nil {
			return nil, fmt.Errorf("bot: %w", err)
		}
		return []plugin.Plugin{p}, nil

	case "lua":
		plugins := make([]plugin.Plugin, 0, len(spec.Scripts))
		for _, script := range spec.Scripts {
			p, err := luahost.Load(script)
			if err != nil {
				return nil, fmt.Errorf("bot: %w", err)
			}
			plugins = append(plugins, p)
		}
		return plugins, nil

	case "cron":
		schedules := make([]cron.Schedule, 0, len(spec.Schedules))
		for _, s := range spec.Schedules {
			if _, ok := b.conns[s.Connection]; !ok {
				return nil, fmt.Errorf("bot: cron schedule %q targets unknown connection %q",
					s.Expr, s.Connection)
			}
			schedules = append(schedules, cron.Schedule{
				Expr:       s.Expr,
				Connection: s.Connection,
				Target:     s.Target,
				Text:       s.Text,
			})
		}
		p, err := cron.New(schedules, b.resolveConn)
		if err != nil {
			return nil, fmt.Errorf("bot: %w", err)
		}
		return []plugin.Plugin{p}, nil

	case "ai":
		p, err := ai.New(ai.Options{
			BaseURL:      spec.BaseURL,
			APIKey:       spec.APIKey,
			Model:        spec.Model,
			SystemPrompt: spec.SystemPrompt,
		})
		if err != nil {
			return nil, fmt.Errorf("bot: %w", err)
		}
		return []plugin.Plugin{p}, nil

	default:
		return nil, fmt.Errorf("bot: unknown plugin %q (known: seen, lua, cron, ai)", spec.Name)
	}
}

func (b *Bot) resolveConn(name string) event.Conn {
	conn, ok := b.conns[name]
	if !ok {
		return nil
	}
	return conn
}

// Run starts every loop under one errgroup and blocks until the context
// ends or a loop fails. A dispatch failure cancels the group and surfaces
// here.
func (b *Bot) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		// Closing the bus on loop exit releases any reader blocked on a full
		// work buffer, so shutdown cannot wedge.
		defer b.bus.Close()
		return b.engine.Run(ctx)
	})

	for _, name := range b.order {
		conn := b.conns[name]
		g.Go(func() error {
			return conn.Run(ctx, func(line string) { b.bus.PushLine(conn, line) })
		})
	}

	for _, r := range b.registry.Runners() {
		r := r
		g.Go(func() error { return r.Run(ctx) })
	}

	if b.apiServer != nil {
		g.Go(func() error { return b.apiServer.Run(ctx) })
	}

	err := g.Wait()
	b.closeAll()
	if err != nil {
		return fmt.Errorf("bot: %w", err)
	}
	return nil
}

func (b *Bot) closeAll() {
	for _, c := range b.closers {
		if err := c.Close(); err != nil {
			logger.WarnCF(componentBot, "close failed", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}
	b.closers = nil
	b.bus.Close()
}

// maskSecrets keeps credentials out of observer surfaces.
func maskSecrets(line string) string {
	if strings.HasPrefix(line, "PASS ") {
		return "PASS ******"
	}
	return line
}

// Connection returns the named connection.
func (b *Bot) Connection(name string) (*transport.Connection, bool) {
	conn, ok := b.conns[name]
	return conn, ok
}

// ConnectionNames returns the connection names in configuration order.
func (b *Bot) ConnectionNames() []string {
	out := make([]string, len(b.order))
	copy(out, b.order)
	return out
}

// Bus exposes the activity bus for observer surfaces.
func (b *Bot) Bus() *bus.Bus { return b.bus }

// ConnectionStatuses implements the status API source.
func (b *Bot) ConnectionStatuses() []transport.Status {
	out := make([]transport.Status, 0, len(b.order))
	for _, name := range b.order {
		out = append(out, b.conns[name].Status())
	}
	return out
}

// Registrations implements the status API source.
func (b *Bot) Registrations() []plugin.Registration {
	return b.registry.Registrations()
}

// EngineStats implements the status API source.
func (b *Bot) EngineStats() api.EngineStats {
	return api.EngineStats{
		Messages:   b.engine.Messages(),
		Dispatched: b.dispatcher.Dispatched(),
		Written:    b.drainer.Written(),
	}
}

var _ api.StatusSource = (*Bot)(nil)
