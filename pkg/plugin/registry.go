package plugin

import (
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/sipeed/ircclaw/pkg/logger"
)

const componentRegistry = "registry"

// Validation failures are fatal at startup: nothing from the offending
// plugin registers, and the bot refuses to enter its loop.
var (
	// ErrInvalidSubscriptions marks a plugin whose subscription mapping is
	// missing or not shaped as a mapping.
	ErrInvalidSubscriptions = errors.New("invalid subscription mapping")
	// ErrInvalidHandler marks a subscription with an empty routing name or a
	// handler that cannot be invoked.
	ErrInvalidHandler = errors.New("invalid handler")
)

// registration is one indexed handler with the identity of the plugin and
// registration that produced it.
type registration struct {
	id      string
	plugin  string
	handler Handler
}

// Registration describes one successful Register call, for diagnostics and
// deregistration.
type Registration struct {
	ID     string   `json:"id"`
	Plugin string   `json:"plugin"`
	Scope  string   `json:"scope"` // "global" or the connection name
	Names  []string `json:"names"` // routing names, sorted
}

// Registry validates plugins and indexes their handlers by routing name.
// Handlers for a name fire in registration order; global registrations fire
// before connection-scoped ones. Not goroutine-safe: registration happens
// during startup wiring, lookups happen on the engine loop.
type Registry struct {
	global  map[string][]registration
	scoped  map[string][]registration
	regs    []Registration
	runners []Runner
	emitter Emitter
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		global: make(map[string][]registration),
		scoped: make(map[string][]registration),
	}
}

// SetEmitter installs the emission handle injected into EmitterCapable
// plugins. Must be called before those plugins register.
func (r *Registry) SetEmitter(e Emitter) { r.emitter = e }

// Register validates the plugin and indexes its subscriptions. scope selects
// whether the handlers fire for all connections or only one. Registration is
// all-or-nothing: on any validation error nothing from the plugin is
// indexed. Returns the registration ID on success.
func (r *Registry) Register(p Plugin, scope Scope) (string, error) {
	subs := p.Subscriptions()
	if subs == nil {
		return "", fmt.Errorf("plugin %q: subscription mapping is missing: %w",
			p.Name(), ErrInvalidSubscriptions)
	}

	// Sorted so a broken plugin fails the same way every run.
	names := make([]string, 0, len(subs))
	for name := range subs {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if name == "" {
			return "", fmt.Errorf("plugin %q: empty routing name: %w",
				p.Name(), ErrInvalidHandler)
		}
		if subs[name] == nil {
			return "", fmt.Errorf("plugin %q: handler for %q is not invocable: %w",
				p.Name(), name, ErrInvalidHandler)
		}
	}

	r.inject(p)

	id := uuid.NewString()
	for _, name := range names {
		entry := registration{id: id, plugin: p.Name(), handler: subs[name]}
		if scope.IsGlobal() {
			r.global[name] = append(r.global[name], entry)
		} else {
			entry.handler = ScopeToConnection(entry.handler, scope.Connection())
			r.scoped[name] = append(r.scoped[name], entry)
		}
	}

	if runner, ok := p.(Runner); ok {
		r.runners = append(r.runners, runner)
	}

	r.regs = append(r.regs, Registration{
		ID:     id,
		Plugin: p.Name(),
		Scope:  scope.String(),
		Names:  names,
	})

	logger.InfoCF(componentRegistry, "plugin registered", map[string]interface{}{
		"plugin":        p.Name(),
		"scope":         scope.String(),
		"subscriptions": len(names),
	})
	return id, nil
}

// inject hands optional shared references to plugins that declare the
// matching capability.
func (r *Registry) inject(p Plugin) {
	if lc, ok := p.(LoggerCapable); ok {
		lc.SetLogger(logger.Component("plugin." + p.Name()))
	}
	if ec, ok := p.(EmitterCapable); ok && r.emitter != nil {
		ec.SetEmitter(r.emitter)
	}
}

// Deregister removes every handler indexed under the given registration ID.
// Unknown IDs are a no-op.
func (r *Registry) Deregister(id string) {
	prune := func(index map[string][]registration) {
		for name, entries := range index {
			kept := entries[:0]
			for _, e := range entries {
				if e.id != id {
					kept = append(kept, e)
				}
			}
			if len(kept) == 0 {
				delete(index, name)
			} else {
				index[name] = kept
			}
		}
	}
	prune(r.global)
	prune(r.scoped)

	kept := r.regs[:0]
	for _, reg := range r.regs {
		if reg.ID != id {
			kept = append(kept, reg)
		}
	}
	r.regs = kept
}

// HandlersFor returns the handlers registered for an exact routing name:
// global registrations first, then connection-scoped ones, each group in
// registration order. Scoped entries are already wrapped in their filter.
func (r *Registry) HandlersFor(name string) []Handler {
	global, scoped := r.global[name], r.scoped[name]
	if len(global) == 0 && len(scoped) == 0 {
		return nil
	}
	out := make([]Handler, 0, len(global)+len(scoped))
	for _, e := range global {
		out = append(out, e.handler)
	}
	for _, e := range scoped {
		out = append(out, e.handler)
	}
	return out
}

// Runners returns the registered plugins that own a background task, in
// registration order.
func (r *Registry) Runners() []Runner { return r.runners }

// Registrations returns a snapshot of all successful registrations, in
// registration order.
func (r *Registry) Registrations() []Registration {
	out := make([]Registration, len(r.regs))
	copy(out, r.regs)
	return out
}
