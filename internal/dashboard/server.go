// Package dashboard serves the monitoring HTTP API: JSON snapshots of the
// pipeline statistics, a WebSocket feed pushing the same data about once a
// second, Prometheus metrics, and the health endpoints.
package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/coder/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rexvoice/rex/internal/config"
	"github.com/rexvoice/rex/internal/health"
	"github.com/rexvoice/rex/internal/observe"
	"github.com/rexvoice/rex/internal/session"
	"github.com/rexvoice/rex/internal/stats"
)

const (
	// defaultPushInterval is the WebSocket update cadence.
	defaultPushInterval = time.Second

	// writeTimeout bounds a single WebSocket frame write.
	writeTimeout = 5 * time.Second

	shutdownTimeout = 5 * time.Second
)

// update is the payload pushed over the WebSocket feed.
type update struct {
	Stats    stats.Snapshot       `json:"stats"`
	Recent   []stats.Activity     `json:"recent"`
	Commands []stats.PatternCount `json:"commands"`
	Backend  string               `json:"backend"`
}

// Server is the dashboard HTTP server.
type Server struct {
	addr     string
	stats    *stats.Collector
	state    *session.State
	handler  http.Handler
	interval time.Duration
}

// Option is a functional option for configuring a Server.
type Option func(*Server)

// WithPushInterval overrides the WebSocket push cadence. Primarily used in
// tests to avoid waiting out the one-second default.
func WithPushInterval(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.interval = d
		}
	}
}

// New creates a dashboard Server. The metrics parameter may be nil, in which
// case requests are served without the observability middleware.
func New(cfg config.DashboardConfig, sc *stats.Collector, st *session.State, m *observe.Metrics, checkers ...health.Checker) *Server {
	s := &Server{
		addr:     cfg.ListenAddr,
		stats:    sc,
		state:    st,
		interval: defaultPushInterval,
	}

	api := http.NewServeMux()
	api.HandleFunc("GET /api/stats", s.handleStats)
	api.HandleFunc("GET /api/recent", s.handleRecent)
	api.HandleFunc("GET /api/commands", s.handleCommands)
	api.Handle("GET /metrics", promhttp.Handler())
	health.New(checkers...).Register(api)

	var wrapped http.Handler = api
	if m != nil {
		wrapped = observe.Middleware(m)(api)
	}

	// The WebSocket route bypasses the middleware: the connection upgrade
	// hijacks the ResponseWriter, which the status-recording wrapper does
	// not support.
	mux := http.NewServeMux()
	mux.Handle("/", wrapped)
	mux.HandleFunc("GET /ws", s.handleWS)
	s.handler = mux
	return s
}

// Handler returns the assembled route tree. Exposed for tests.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Run serves the dashboard until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("dashboard listening", "addr", s.addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shCtx); err != nil {
			return err
		}
		<-errCh
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, s.stats.Snapshot())
}

func (s *Server) handleRecent(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			http.Error(w, `{"error":"invalid limit"}`, http.StatusBadRequest)
			return
		}
		limit = n
	}
	recent := s.stats.Recent(limit)
	if recent == nil {
		recent = []stats.Activity{}
	}
	writeJSON(w, recent)
}

func (s *Server) handleCommands(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, s.stats.Snapshot().Patterns)
}

// handleWS upgrades to a WebSocket and pushes an update every interval
// until the client disconnects.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		slog.Warn("websocket accept failed", "error", err)
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")

	// CloseRead discards inbound frames and cancels the context when the
	// client goes away.
	ctx := conn.CloseRead(r.Context())

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	// Push immediately so a fresh client does not wait a full interval.
	for {
		if err := s.push(ctx, conn); err != nil {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Server) push(ctx context.Context, conn *websocket.Conn) error {
	snap := s.stats.Snapshot()
	u := update{
		Stats:    snap,
		Recent:   s.stats.Recent(0),
		Commands: snap.Patterns,
		Backend:  s.state.ActiveName(),
	}
	if u.Recent == nil {
		u.Recent = []stats.Activity{}
	}
	data, err := json.Marshal(u)
	if err != nil {
		return err
	}

	wCtx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return conn.Write(wCtx, websocket.MessageText, data)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error":"encode failed"}`, http.StatusInternalServerError)
	}
}
