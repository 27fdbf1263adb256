package httpapi

import (
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"

	"github.com/roach88/gridtrace/internal/network"
	"github.com/roach88/gridtrace/internal/workflow"
)

// WorkflowFactory builds a workflow (with its collaborators wired) for a
// new session. The session ID is already assigned.
type WorkflowFactory func(session network.Session) (*workflow.Workflow, error)

// Server serves trace workflow sessions over HTTP.
type Server struct {
	mu       sync.Mutex
	sessions map[string]*workflow.Workflow

	factory WorkflowFactory
	tokens  workflow.TokenGenerator
	configs []network.TraceConfig
	logger  *slog.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithConfigs provides the named trace configurations selectable via
// trace-type requests.
func WithConfigs(configs []network.TraceConfig) Option {
	return func(s *Server) { s.configs = configs }
}

// WithTokens replaces the session ID generator.
func WithTokens(g workflow.TokenGenerator) Option {
	return func(s *Server) { s.tokens = g }
}

// WithLogger replaces the default logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// NewServer creates a Server that builds session workflows through factory.
func NewServer(factory WorkflowFactory, opts ...Option) *Server {
	s := &Server{
		sessions: make(map[string]*workflow.Workflow),
		factory:  factory,
		tokens:   workflow.UUIDv7Generator{},
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Router builds the chi route tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "service": "gridtrace"})
	})

	r.Route("/sessions", func(r chi.Router) {
		r.Post("/", s.handleCreateSession)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", s.handleGetSession)
			r.Delete("/", s.handleDeleteSession)
			r.Post("/begin", s.handleBegin)
			r.Post("/tap", s.handleTap)
			r.Post("/terminal", s.handleSelectTerminal)
			r.Post("/cancel-pending", s.handleCancelPending)
			r.Post("/next", s.handleNext)
			r.Post("/trace-type", s.handleSelectTraceType)
			r.Post("/run", s.handleRun)
			r.Post("/reset", s.handleReset)
		})
	})

	return r
}

// create registers a new session workflow.
func (s *Server) create(user string) (*workflow.Workflow, error) {
	session := network.Session{ID: s.tokens.Generate(), User: user}

	wf, err := s.factory(session)
	if err != nil {
		return nil, fmt.Errorf("create session workflow: %w", err)
	}

	s.mu.Lock()
	s.sessions[session.ID] = wf
	s.mu.Unlock()

	s.logger.Info("session created", "session", session.ID, "user", user)
	return wf, nil
}

// lookup returns the workflow for a session ID.
func (s *Server) lookup(id string) (*workflow.Workflow, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	wf, ok := s.sessions[id]
	return wf, ok
}

// drop removes a session. Returns false if it did not exist.
func (s *Server) drop(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[id]; !ok {
		return false
	}
	delete(s.sessions, id)
	return true
}

// configByName finds a named trace configuration.
func (s *Server) configByName(name string) (network.TraceConfig, bool) {
	for _, cfg := range s.configs {
		if cfg.Name == name {
			return cfg, true
		}
	}
	return network.TraceConfig{}, false
}
