// Package httpapi exposes the loan document service over HTTP.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/microcosm-cc/bluemonday"
	"go.uber.org/zap"

	"github.com/and161185/loandocs/internal/service"
)

const (
	maxJSONBody = 1 << 20
	// room for multipart headers and the small form fields
	multipartOverhead = 1 << 20
	multipartMemory   = 8 << 20
)

// Deps are the collaborators of the HTTP server.
type Deps struct {
	Auth      service.AuthService
	Orders    service.OrderService
	Materials service.MaterialService
	Artifacts service.ArtifactService
	Collab    service.CollabService

	// Ready reports whether backing stores are reachable.
	Ready func(ctx context.Context) error
	// Metrics serves /metrics when set.
	Metrics  http.Handler
	Observer RequestObserver

	MaxUploadBytes int64
	Log            *zap.Logger
}

// Server wires services into HTTP handlers.
type Server struct {
	auth      service.AuthService
	orders    service.OrderService
	materials service.MaterialService
	artifacts service.ArtifactService
	collab    service.CollabService

	ready     func(ctx context.Context) error
	metrics   http.Handler
	observer  RequestObserver
	maxUpload int64
	policy    *bluemonday.Policy
	log       *zap.Logger
	now       func() time.Time
}

// New constructs the HTTP server with injected services.
func New(d Deps) *Server {
	log := d.Log
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{
		auth:      d.Auth,
		orders:    d.Orders,
		materials: d.Materials,
		artifacts: d.Artifacts,
		collab:    d.Collab,
		ready:     d.Ready,
		metrics:   d.Metrics,
		observer:  d.Observer,
		maxUpload: d.MaxUploadBytes,
		policy:    bluemonday.StrictPolicy(),
		log:       log,
		now:       time.Now,
	}
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(Recover(s.log))
	r.Use(Logging(s.log))
	r.Use(Instrument(s.observer))

	r.Get("/healthz", s.handleHealthz)
	r.Get("/readyz", s.handleReadyz)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics)
	}

	r.Route("/api", func(api chi.Router) {
		api.Post("/auth/login", s.handleLogin)

		// customer side, authorized by the collaboration token in the path
		api.Route("/collab/{token}", func(c chi.Router) {
			c.Use(s.requireCollabToken)
			c.Get("/", s.handleCollabSummary)
			c.Get("/artifacts", s.handleListArtifacts)
			c.Post("/artifacts", s.handleSubmitArtifact)
		})

		api.Group(func(u chi.Router) {
			u.Use(s.requireUser)

			u.Get("/auth/profile", s.handleProfile)
			u.Post("/auth/refresh", s.handleRefresh)

			u.Post("/users", s.handleCreateUser)
			u.Put("/users/{id}/deactivate", s.handleSetUserActive(false))
			u.Put("/users/{id}/activate", s.handleSetUserActive(true))

			u.Get("/orders", s.handleListOrders)
			u.Post("/orders", s.handleCreateOrder)
			u.Get("/orders/{id}", s.handleGetOrder)
			u.Put("/orders/{id}", s.handleUpdateOrder)
			u.Delete("/orders/{id}", s.handleDeleteOrder)
			u.Get("/orders/{id}/artifacts", s.handleListArtifacts)
			u.Post("/orders/{id}/artifacts", s.handleSubmitArtifact)
			u.Post("/orders/{id}/collab", s.handleMintToken)
			u.Get("/orders/{id}/collab", s.handleListTokens)
			u.Delete("/orders/{id}/collab/{tokenID}", s.handleRevokeToken)

			u.Get("/artifacts/{id}", s.handleGetArtifact)
			u.Get("/artifacts/{id}/content", s.handleOpenArtifact)
			u.Delete("/artifacts/{id}", s.handleDeleteArtifact)

			u.Post("/collab/purge", s.handlePurgeTokens)

			u.Get("/materials", s.handleChecklist)
			u.Post("/materials/categories", s.handleCreateCategory)
			u.Put("/materials/categories/{id}", s.handleUpdateCategory)
			u.Delete("/materials/categories/{id}", s.handleDeactivateCategory)
			u.Post("/materials/categories/{id}/items", s.handleCreateItem)
			u.Put("/materials/items/{id}", s.handleUpdateItem)
			u.Delete("/materials/items/{id}", s.handleDeactivateItem)
		})
	})
	return r
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	s.ok(w, http.StatusOK, "ok", nil)
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.ready(ctx); err != nil {
			s.log.Warn("not ready", zap.Error(err))
			writeJSON(w, http.StatusServiceUnavailable, envelope{Code: "unavailable", Message: "not ready"})
			return
		}
	}
	s.ok(w, http.StatusOK, "ready", nil)
}

// clean strips markup from free-form input. The result is HTML-escaped text,
// so encoded markup stays inert.
func (s *Server) clean(v string) string { return s.policy.Sanitize(v) }

func (s *Server) cleanPtr(v *string) *string {
	if v == nil {
		return nil
	}
	c := s.clean(*v)
	return &c
}
