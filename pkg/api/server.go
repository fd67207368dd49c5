// Package api serves the status surface: a JSON snapshot of connections,
// registrations, and engine counters, plus a WebSocket stream of live
// activity.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/sipeed/ircclaw/pkg/bus"
	"github.com/sipeed/ircclaw/pkg/logger"
	"github.com/sipeed/ircclaw/pkg/plugin"
	"github.com/sipeed/ircclaw/pkg/transport"
)

const componentAPI = "api"

// EngineStats are the loop counters exposed on the status endpoint.
type EngineStats struct {
	Messages   uint64 `json:"messages"`
	Dispatched uint64 `json:"dispatched"`
	Written    uint64 `json:"written"`
}

// StatusSource is the bot-side surface the server reads. Everything is a
// snapshot; the server never reaches into live state.
type StatusSource interface {
	ConnectionStatuses() []transport.Status
	Registrations() []plugin.Registration
	EngineStats() EngineStats
}

// statusResponse is the GET /api/status document.
type statusResponse struct {
	UptimeSeconds int                   `json:"uptime_seconds"`
	Connections   []transport.Status    `json:"connections"`
	Plugins       []plugin.Registration `json:"plugins"`
	Engine        EngineStats           `json:"engine"`
}

// Server is the optional HTTP status server.
type Server struct {
	addr      string
	token     string
	bus       *bus.Bus
	source    StatusSource
	hub       *WSHub
	startTime time.Time
}

// NewServer wires the status server. Nothing listens until Run. A non-empty
// token puts the surface behind bearer auth.
func NewServer(addr, token string, b *bus.Bus, source StatusSource) *Server {
	s := &Server{
		addr:      addr,
		token:     token,
		bus:       b,
		source:    source,
		startTime: time.Now(),
	}
	s.hub = NewWSHub(func() interface{} { return s.snapshot() })
	return s
}

func (s *Server) snapshot() statusResponse {
	return statusResponse{
		UptimeSeconds: int(time.Since(s.startTime).Seconds()),
		Connections:   s.source.ConnectionStatuses(),
		Plugins:       s.source.Registrations(),
		Engine:        s.source.EngineStats(),
	}
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/health", s.handleHealth)
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/ws", s.hub.HandleWebSocket)
	return authMiddleware(s.token, mux)
}

// Run serves until ctx ends. A listen failure is returned; a context end is
// a clean shutdown.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.addr,
		Handler:      s.routes(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	s.startBackground(ctx)

	logger.InfoCF(componentAPI, "status server starting", map[string]interface{}{
		"addr": s.addr,
	})

	errCh := make(chan error, 1)
	go func() {
		err := srv.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutCtx)
		<-errCh
		return nil
	case err := <-errCh:
		return err
	}
}

// startBackground subscribes to the bus and starts the hub loops. The tap
// subscription happens synchronously so activity published after this call
// is never missed.
func (s *Server) startBackground(ctx context.Context) {
	tap := s.bus.Tap("api")
	go s.hub.Run(ctx)
	go s.forward(ctx, tap)
}

// forward bridges engine activity into the hub.
func (s *Server) forward(ctx context.Context, tap <-chan bus.TapEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-tap:
			if !ok {
				return
			}
			s.hub.Broadcast(ev.Kind, ev)
		}
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, s.snapshot())
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
