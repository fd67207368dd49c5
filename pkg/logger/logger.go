// Package logger provides component-tagged structured logging for ircclaw.
// Every subsystem logs under a short component name ("engine", "transport",
// "plugin.seen", ...) so a single bot's output stays greppable.
package logger

import (
	"context"
	"log/slog"
	"os"
	"strings"
	"sync"
)

var (
	mu      sync.RWMutex
	level   = new(slog.LevelVar)
	backend = newBackend(os.Stderr, FormatText)
)

// Format selects the output encoding.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

func newBackend(w *os.File, format Format) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	if format == FormatJSON {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// Init configures the global logger. Safe to call once at startup;
// subsequent Set* calls adjust it live.
func Init(levelName string, format Format) {
	mu.Lock()
	defer mu.Unlock()
	level.Set(parseLevel(levelName))
	backend = newBackend(os.Stderr, format)
}

// SetLevel adjusts the minimum level at runtime ("debug", "info", "warn", "error").
func SetLevel(name string) {
	level.Set(parseLevel(name))
}

func parseLevel(name string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func log(lvl slog.Level, component, msg string, fields map[string]interface{}) {
	mu.RLock()
	l := backend
	mu.RUnlock()

	if !l.Enabled(context.Background(), lvl) {
		return
	}

	attrs := make([]any, 0, 2+2*len(fields))
	attrs = append(attrs, "component", component)
	for k, v := range fields {
		attrs = append(attrs, k, v)
	}
	l.Log(context.Background(), lvl, msg, attrs...)
}

// ---------------------------------------------------------------------------
// Component-tagged package-level API
// ---------------------------------------------------------------------------

// DebugC logs a debug message for a component.
func DebugC(component, msg string) { log(slog.LevelDebug, component, msg, nil) }

// DebugCF logs a debug message with structured fields.
func DebugCF(component, msg string, fields map[string]interface{}) {
	log(slog.LevelDebug, component, msg, fields)
}

// InfoC logs an info message for a component.
func InfoC(component, msg string) { log(slog.LevelInfo, component, msg, nil) }

// InfoCF logs an info message with structured fields.
func InfoCF(component, msg string, fields map[string]interface{}) {
	log(slog.LevelInfo, component, msg, fields)
}

// WarnC logs a warning for a component.
func WarnC(component, msg string) { log(slog.LevelWarn, component, msg, nil) }

// WarnCF logs a warning with structured fields.
func WarnCF(component, msg string, fields map[string]interface{}) {
	log(slog.LevelWarn, component, msg, fields)
}

// ErrorC logs an error message for a component.
func ErrorC(component, msg string) { log(slog.LevelError, component, msg, nil) }

// ErrorCF logs an error message with structured fields.
func ErrorCF(component, msg string, fields map[string]interface{}) {
	log(slog.LevelError, component, msg, fields)
}

// ---------------------------------------------------------------------------
// Bound component handle, injectable into plugins
// ---------------------------------------------------------------------------

// Logger is a handle bound to one component name. The plugin registry hands
// these to plugins that declare the logger capability, so third-party code
// logs under its own tag without touching the global API.
type Logger struct {
	component string
}

// Component returns a logger handle bound to the given component name.
func Component(name string) *Logger {
	return &Logger{component: name}
}

// Name returns the bound component name.
func (l *Logger) Name() string { return l.component }

func (l *Logger) Debug(msg string) { DebugC(l.component, msg) }
func (l *Logger) Info(msg string)  { InfoC(l.component, msg) }
func (l *Logger) Warn(msg string)  { WarnC(l.component, msg) }
func (l *Logger) Error(msg string) { ErrorC(l.component, msg) }

func (l *Logger) DebugF(msg string, fields map[string]interface{}) { DebugCF(l.component, msg, fields) }
func (l *Logger) InfoF(msg string, fields map[string]interface{})  { InfoCF(l.component, msg, fields) }
func (l *Logger) WarnF(msg string, fields map[string]interface{})  { WarnCF(l.component, msg, fields) }
func (l *Logger) ErrorF(msg string, fields map[string]interface{}) { ErrorCF(l.component, msg, fields) }
