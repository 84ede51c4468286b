package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/nhannt-dev/crawler-tool/internal/config"
	"github.com/nhannt-dev/crawler-tool/internal/crawler"
	"github.com/nhannt-dev/crawler-tool/internal/dispatcher"
	"github.com/nhannt-dev/crawler-tool/internal/id/snowflake"
	"github.com/nhannt-dev/crawler-tool/internal/metrics"
	"github.com/nhannt-dev/crawler-tool/internal/slug"
)

// Deps collects everything the HTTP layer talks to.
type Deps struct {
	Sites      crawler.SiteStore
	Categories crawler.CategoryStore
	Tasks      crawler.TaskStore
	Dispatcher *dispatcher.Dispatcher
	IDGen      crawler.IDGenerator
	Resolver   *slug.Resolver
	Clock      crawler.Clock
	Cfg        config.Config
	Logger     *zap.Logger
}

// Server wires HTTP handlers to the dispatcher and stores.
type Server struct {
	router     chi.Router
	sites      crawler.SiteStore
	categories crawler.CategoryStore
	tasks      crawler.TaskStore
	dispatcher *dispatcher.Dispatcher
	idGen      crawler.IDGenerator
	resolver   *slug.Resolver
	clock      crawler.Clock
	cfg        config.Config
	logger     *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(deps Deps) (*Server, error) {
	switch {
	case deps.Sites == nil:
		return nil, errors.New("site store is required")
	case deps.Categories == nil:
		return nil, errors.New("category store is required")
	case deps.Tasks == nil:
		return nil, errors.New("task store is required")
	case deps.Dispatcher == nil:
		return nil, errors.New("dispatcher is required")
	case deps.IDGen == nil:
		return nil, errors.New("id generator is required")
	case deps.Resolver == nil:
		return nil, errors.New("slug resolver is required")
	case deps.Clock == nil:
		return nil, errors.New("clock is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		sites:      deps.Sites,
		categories: deps.Categories,
		tasks:      deps.Tasks,
		dispatcher: deps.Dispatcher,
		idGen:      deps.IDGen,
		resolver:   deps.Resolver,
		clock:      deps.Clock,
		cfg:        deps.Cfg,
		logger:     logger,
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(metrics.Middleware)
	r.Use(timeoutMiddleware(60 * time.Second))
	if deps.Cfg.Auth.Enabled {
		r.Use(apiKeyMiddleware(deps.Cfg.Auth.APIKey))
	}

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Route("/sites", func(r chi.Router) {
			r.Post("/", s.createSite)
			r.Get("/", s.listSites)
			r.Route("/{site_id}", func(r chi.Router) {
				r.Get("/", s.getSite)
				r.Patch("/", s.renameSite)
				r.Delete("/", s.deleteSite)
				r.Post("/categories", s.createCategory)
				r.Get("/categories", s.listCategories)
			})
		})
		r.Route("/categories/{category_id}", func(r chi.Router) {
			r.Get("/", s.getCategory)
			r.Patch("/", s.renameCategory)
			r.Delete("/", s.deleteCategory)
		})
		r.Route("/tasks", func(r chi.Router) {
			r.Post("/", s.submitTask)
			r.Route("/{task_id}", func(r chi.Router) {
				r.Get("/", s.getTaskStatus)
				r.Get("/status", s.getTaskStatus)
				r.Get("/result", s.getTaskResult)
				r.Post("/cancel", s.cancelTask)
			})
		})
	})

	s.router = r
	return s, nil
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	// The store list doubles as a readiness probe: it exercises the same
	// backend task handlers depend on.
	if _, err := s.sites.ListSites(r.Context()); err != nil {
		s.writeError(w, http.StatusServiceUnavailable, "store not ready")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// newID issues an identifier and records generator health.
func (s *Server) newID() (string, error) {
	id, err := s.idGen.NewID()
	if err != nil {
		if errors.Is(err, snowflake.ErrClockRegressed) {
			metrics.ObserveClockRegression()
		}
		return "", fmt.Errorf("generate id: %w", err)
	}
	metrics.ObserveIDIssued()
	return id, nil
}

// resolveSlug wraps the resolver with metric accounting.
func (s *Server) resolveSlug(r *http.Request, text string, scope slug.Scope, excludeID string) (string, error) {
	resolved, err := s.resolver.Resolve(r.Context(), text, scope, excludeID)
	if err != nil {
		if errors.Is(err, slug.ErrExhausted) {
			metrics.ObserveSlugExhaustion()
		}
		return "", err
	}
	return resolved, nil
}

// statusForError maps domain failures onto HTTP status codes.
func statusForError(err error) int {
	switch {
	case errors.Is(err, crawler.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, slug.ErrTaken), errors.Is(err, slug.ErrExhausted):
		return http.StatusConflict
	case errors.Is(err, snowflake.ErrClockRegressed):
		return http.StatusServiceUnavailable
	case errors.Is(err, slug.ErrAborted), errors.Is(err, context.DeadlineExceeded):
		return http.StatusRequestTimeout
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeDomainError(w http.ResponseWriter, err error) {
	s.writeError(w, statusForError(err), err.Error())
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("write JSON failed", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}

func valueOrDefault[T any](ptr *T, def T) T {
	if ptr == nil {
		return def
	}
	return *ptr
}
