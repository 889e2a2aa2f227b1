// Package api serves the newsbrief dashboard and its JSON API.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/RobinCoderZhao/newsbrief/internal/newsbrief"
	"github.com/RobinCoderZhao/newsbrief/internal/newsbrief/store"
)

// Runner executes briefing runs.
type Runner interface {
	TryRun(ctx context.Context, req newsbrief.Request) (*newsbrief.Briefing, error)
	Last() *newsbrief.Briefing
}

// History reads archived briefings.
type History interface {
	Latest(ctx context.Context) (*newsbrief.Briefing, error)
	Get(ctx context.Context, id int64) (*newsbrief.Briefing, error)
	List(ctx context.Context, limit int) ([]store.Summary, error)
}

// Server holds the dependencies for the API.
type Server struct {
	runner    Runner
	history   History
	jwtSecret []byte
	logger    *slog.Logger
}

// NewServer creates a new API Server instance. history may be nil, in which
// case only the runner's last briefing is served. An empty jwtSecret
// disables authentication.
func NewServer(runner Runner, history History, jwtSecret string) *Server {
	return &Server{
		runner:    runner,
		history:   history,
		jwtSecret: []byte(jwtSecret),
		logger:    slog.Default(),
	}
}

// Routes returns the configured http.Handler (ServeMux) for the API.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()

	// Dashboard
	mux.HandleFunc("GET /{$}", s.handleDashboard())
	mux.Handle("POST /refresh", s.requireAuthHandler(http.HandlerFunc(s.handleRefresh())))
	mux.HandleFunc("GET /login", s.handleLogin())

	// Briefings
	mux.Handle("POST /api/briefings", s.requireAuthHandler(http.HandlerFunc(s.handleCreateBriefing())))
	mux.HandleFunc("GET /api/briefings/latest", s.handleLatestBriefing())
	mux.HandleFunc("GET /api/briefings/{id}", s.handleGetBriefing())
	mux.HandleFunc("GET /api/briefings", s.handleListBriefings())

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	return s.logRequests(mux)
}

// logRequests logs each request at debug level.
func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.logger.Debug("http request", "method", r.Method, "path", r.URL.Path, "remote", r.RemoteAddr)
		next.ServeHTTP(w, r)
	})
}

// --- Helpers ---

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
