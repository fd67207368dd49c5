// Package luahost loads Lua scripts as bot plugins. A script declares a
// plugin_name string and a subscriptions table mapping routing names to
// functions; each function receives the event as a table and the outbound
// queue as userdata.
package luahost

import (
	"fmt"

	lua "github.com/yuin/gopher-lua"

	"github.com/sipeed/ircclaw/pkg/event"
	"github.com/sipeed/ircclaw/pkg/logger"
	"github.com/sipeed/ircclaw/pkg/plugin"
)

// Plugin is one loaded script. The Lua state is not goroutine-safe; like the
// queue, all handler invocation happens on the engine loop, and loading
// happens during startup wiring before the loop runs.
type Plugin struct {
	name  string
	path  string
	state *lua.LState
	subs  map[string]plugin.Handler
	log   *logger.Logger
}

// Load executes the script and validates its declarations. Validation
// failures carry the same sentinels the registry uses, so a broken script
// and a broken Go plugin fail startup identically.
func Load(path string) (*Plugin, error) {
	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	openSafeLibraries(L)
	registerQueueType(L)

	p := &Plugin{path: path, state: L, log: logger.Component("plugin.lua")}
	L.SetGlobal("log", logModule(L, p))

	if err := L.DoFile(path); err != nil {
		L.Close()
		return nil, fmt.Errorf("lua script %s: %w", path, err)
	}

	name, ok := L.GetGlobal("plugin_name").(lua.LString)
	if !ok || string(name) == "" {
		L.Close()
		return nil, fmt.Errorf("lua script %s: plugin_name must be a non-empty string", path)
	}
	p.name = string(name)

	subs, err := p.buildSubscriptions()
	if err != nil {
		L.Close()
		return nil, err
	}
	p.subs = subs

	logger.InfoCF("plugin.lua", "script loaded", map[string]interface{}{
		"plugin":        p.name,
		"path":          path,
		"subscriptions": len(subs),
	})
	return p, nil
}

// buildSubscriptions walks the script's subscriptions table and wraps every
// function in a Go handler.
func (p *Plugin) buildSubscriptions() (map[string]plugin.Handler, error) {
	tbl, ok := p.state.GetGlobal("subscriptions").(*lua.LTable)
	if !ok {
		return nil, fmt.Errorf("lua plugin %q: subscriptions is not a mapping: %w",
			p.name, plugin.ErrInvalidSubscriptions)
	}

	subs := make(map[string]plugin.Handler)
	var verr error
	tbl.ForEach(func(k, v lua.LValue) {
		if verr != nil {
			return
		}
		name, ok := k.(lua.LString)
		if !ok {
			verr = fmt.Errorf("lua plugin %q: routing name must be a string: %w",
				p.name, plugin.ErrInvalidHandler)
			return
		}
		if string(name) == "" {
			verr = fmt.Errorf("lua plugin %q: empty routing name: %w",
				p.name, plugin.ErrInvalidHandler)
			return
		}
		fn, ok := v.(*lua.LFunction)
		if !ok {
			verr = fmt.Errorf("lua plugin %q: handler for %q is not invocable: %w",
				p.name, string(name), plugin.ErrInvalidHandler)
			return
		}
		subs[string(name)] = p.handler(string(name), fn)
	})
	if verr != nil {
		return nil, verr
	}
	return subs, nil
}

// handler bridges one subscription function. A lua error() inside the
// function surfaces as a Go error and propagates like any handler failure.
func (p *Plugin) handler(name string, fn *lua.LFunction) plugin.Handler {
	return plugin.HandlerFunc(func(ev event.Event, q *event.Queue) error {
		L := p.state
		L.Push(fn)
		L.Push(eventToTable(L, ev))
		L.Push(queueUserdata(L, q))
		if err := L.PCall(2, 0, nil); err != nil {
			return fmt.Errorf("lua plugin %q: handler %q: %w", p.name, name, err)
		}
		return nil
	})
}

// Name returns the script's declared plugin name.
func (p *Plugin) Name() string { return p.name }

// Path returns the script file the plugin was loaded from.
func (p *Plugin) Path() string { return p.path }

func (p *Plugin) Subscriptions() map[string]plugin.Handler { return p.subs }

func (p *Plugin) SetLogger(l *logger.Logger) { p.log = l }

// Close releases the Lua state.
func (p *Plugin) Close() error {
	p.state.Close()
	return nil
}

var (
	_ plugin.Plugin        = (*Plugin)(nil)
	_ plugin.LoggerCapable = (*Plugin)(nil)
)
