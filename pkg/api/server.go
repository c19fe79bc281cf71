// Package api serves the HTTP control plane used by the portalflow UI:
// workflow CRUD, run start/stop/poll and picker start/stop/poll. Progress
// is polled; there is no push channel.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/odvcencio/portalflow/pkg/execution"
	"github.com/odvcencio/portalflow/pkg/logging"
	"github.com/odvcencio/portalflow/pkg/picker"
	"github.com/odvcencio/portalflow/pkg/workflow"
)

// Workflows is the workflow catalog the server exposes.
type Workflows interface {
	List(ctx context.Context) ([]workflow.Summary, error)
	Templates() []workflow.Summary
	Get(ctx context.Context, id string) (workflow.Workflow, error)
	Save(ctx context.Context, wf workflow.Workflow) (workflow.Workflow, error)
	Delete(ctx context.Context, id string) error
	Draft(id string) (*workflow.Draft, error)
}

// Runs starts and reports workflow runs.
type Runs interface {
	Start(ctx context.Context, wf workflow.Workflow) (string, error)
	Stop() bool
	Current() execution.Run
}

// Picker starts and reports selector picker sessions.
type Picker interface {
	Start(ctx context.Context, url string) (string, error)
	Stop() bool
	Status(since int) picker.Status
}

// ServerConfig configures the API server.
type ServerConfig struct {
	// Address to listen on (default: 127.0.0.1:4477)
	Address string

	Workflows Workflows
	Runs      Runs
	Picker    Picker

	// Health is pinged by /healthz (optional).
	Health workflow.Pinger

	Logger *logging.Logger
}

// Server is the portalflow control plane.
type Server struct {
	workflows  Workflows
	runs       Runs
	picker     Picker
	health     workflow.Pinger
	logger     *logging.Logger
	router     chi.Router
	httpServer *http.Server
}

// NewServer builds the server and its routes.
func NewServer(cfg ServerConfig) *Server {
	if cfg.Address == "" {
		cfg.Address = "127.0.0.1:4477"
	}
	s := &Server{
		workflows: cfg.Workflows,
		runs:      cfg.Runs,
		picker:    cfg.Picker,
		health:    cfg.Health,
		logger:    cfg.Logger,
	}

	router := chi.NewRouter()
	router.Use(middleware.Recoverer)
	router.Use(s.withLogging)
	router.Use(withCORS)

	router.Get("/healthz", s.handleHealthz)
	router.Get("/metrics", handleMetrics)

	router.Route("/api", func(r chi.Router) {
		r.Get("/workflows", s.handleListWorkflows)
		r.Post("/workflows", s.handleSaveWorkflow)
		r.Get("/workflows/{id}", s.handleGetWorkflow)
		r.Delete("/workflows/{id}", s.handleDeleteWorkflow)
		r.Get("/templates", s.handleListTemplates)
		r.Post("/templates/{id}/draft", s.handleDraftTemplate)
		r.Get("/schemas", s.handleSchemas)

		r.Post("/runs", s.handleStartRun)
		r.Get("/runs/current", s.handleCurrentRun)
		r.Post("/runs/current/stop", s.handleStopRun)

		r.Post("/picker", s.handleStartPicker)
		r.Get("/picker", s.handlePickerStatus)
		r.Post("/picker/stop", s.handleStopPicker)
	})
	s.router = router

	s.httpServer = &http.Server{
		Addr:              cfg.Address,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

// Handler returns the routed handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Addr is the configured listen address.
func (s *Server) Addr() string {
	return s.httpServer.Addr
}

// Start serves until Shutdown. It returns nil after a graceful shutdown.
func (s *Server) Start() error {
	_ = s.logger.Info(logging.CategoryServer, "listening", "control plane listening", map[string]any{"addr": s.httpServer.Addr})
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if s.health != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.health.Ping(ctx); err != nil {
			respondJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "reason": err.Error()})
			return
		}
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		_ = s.logger.Debug(logging.CategoryServer, "request", r.Method+" "+r.URL.Path, map[string]any{
			"status":   ww.Status(),
			"duration": time.Since(start).String(),
		})
	})
}

func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
