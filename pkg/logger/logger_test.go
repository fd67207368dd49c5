package logger

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  slog.Level
	}{
		{"debug", "debug", slog.LevelDebug},
		{"info", "info", slog.LevelInfo},
		{"warn", "warn", slog.LevelWarn},
		{"warning alias", "warning", slog.LevelWarn},
		{"error", "error", slog.LevelError},
		{"mixed case", "DeBuG", slog.LevelDebug},
		{"padded", "  info  ", slog.LevelInfo},
		{"unknown defaults to info", "chatty", slog.LevelInfo},
		{"empty defaults to info", "", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, parseLevel(tt.input))
		})
	}
}

func TestComponentHandle(t *testing.T) {
	l := Component("plugin.seen")
	assert.Equal(t, "plugin.seen", l.Name())

	// Logging through a handle must not panic regardless of level.
	SetLevel("error")
	l.Debug("suppressed")
	l.InfoF("suppressed", map[string]interface{}{"k": "v"})
	SetLevel("info")
	l.Info("visible")
}
