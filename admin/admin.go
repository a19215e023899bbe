// Package admin serves the operator HTTP surface: Prometheus metrics, a
// health check and the session list.
package admin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cyberinferno/go-gameserver/logger"
	"github.com/cyberinferno/go-gameserver/server"
)

const snapshotTimeout = 2 * time.Second

// GameServer is the part of *server.Server the admin surface reads.
type GameServer interface {
	Running() bool
	MaxPlayers() int
	Sessions(ctx context.Context) ([]server.SessionInfo, error)
	Disconnect(id int)
}

// SessionsResponse is the body of GET /api/sessions.
type SessionsResponse struct {
	MaxPlayers int                  `json:"max_players"`
	Sessions   []server.SessionInfo `json:"sessions"`
}

// NewRouter builds the admin routes.
//
// Parameters:
//   - gs: The game server to report on
//   - gatherer: Source of /metrics; nil uses prometheus.DefaultGatherer
//   - l: Logger for requests
//
// Returns:
//   - The HTTP handler
func NewRouter(gs GameServer, gatherer prometheus.Gatherer, l logger.Logger) http.Handler {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(l))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if !gs.Running() {
			http.Error(w, "not running", http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("ok"))
	})

	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	r.Route("/api/sessions", func(r chi.Router) {
		r.Get("/", listSessions(gs))
		r.Delete("/{id}", kickSession(gs))
	})

	return r
}

func listSessions(gs GameServer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), snapshotTimeout)
		defer cancel()

		sessions, err := gs.Sessions(ctx)
		if err != nil {
			http.Error(w, fmt.Sprintf("session snapshot failed: %v", err), http.StatusServiceUnavailable)
			return
		}

		writeJSON(w, http.StatusOK, SessionsResponse{MaxPlayers: gs.MaxPlayers(), Sessions: sessions})
	}
}

func kickSession(gs GameServer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.Atoi(chi.URLParam(r, "id"))
		if err != nil || id < 1 || id > gs.MaxPlayers() {
			http.Error(w, "invalid session id", http.StatusBadRequest)
			return
		}

		gs.Disconnect(id)
		w.WriteHeader(http.StatusAccepted)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func requestLogger(l logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()

			next.ServeHTTP(ww, r)

			l.Debug("admin request",
				logger.Field{Key: "method", Value: r.Method},
				logger.Field{Key: "path", Value: r.URL.Path},
				logger.Field{Key: "status", Value: ww.Status()},
				logger.Field{Key: "duration_ms", Value: time.Since(start).Milliseconds()},
				logger.Field{Key: "request_id", Value: middleware.GetReqID(r.Context())},
			)
		})
	}
}

// Server runs the admin router on its own listener.
type Server struct {
	addr   string
	http   *http.Server
	logger logger.Logger
}

// NewServer creates an admin server listening on addr.
func NewServer(addr string, handler http.Handler, l logger.Logger) *Server {
	return &Server{
		addr: addr,
		http: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: 5 * time.Second,
		},
		logger: l,
	}
}

// Run serves until ctx ends, then shuts down gracefully.
//
// Returns:
//   - nil after shutdown, or the listen error
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("admin server failed to listen on %s: %w", s.addr, err)
	}

	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.logger.Info("admin server started", logger.Field{Key: "addr", Value: ln.Addr().String()})

	errCh := make(chan error, 1)
	go func() { errCh <- s.http.Serve(ln) }()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.http.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("admin server shutdown: %w", err)
	}

	s.logger.Info("admin server stopped")
	return nil
}
