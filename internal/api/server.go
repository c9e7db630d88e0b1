// Package api exposes the evaluation core over HTTP. Read endpoints are
// public; mutating endpoints sit behind bearer authentication.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/rs/zerolog"

	"variantcore/internal/auth"
	"variantcore/internal/experiment"
	"variantcore/internal/feature"
	"variantcore/internal/telemetry"
	"variantcore/internal/tracking"
)

type Server struct {
	evaluator *feature.Evaluator
	engine    *experiment.Engine
	env       string
	auth      *auth.Authenticator
	tracker   tracking.Tracker
	rateLimit int
	log       zerolog.Logger
}

// Options carries the collaborators a Server needs. Tracker may be nil when
// tracking is disabled.
type Options struct {
	Evaluator *feature.Evaluator
	Engine    *experiment.Engine
	Env       string
	Auth      *auth.Authenticator
	Tracker   tracking.Tracker
	RateLimit int
	Log       zerolog.Logger
}

func NewServer(opts Options) *Server {
	return &Server{
		evaluator: opts.Evaluator,
		engine:    opts.Engine,
		env:       opts.Env,
		auth:      opts.Auth,
		tracker:   opts.Tracker,
		rateLimit: opts.RateLimit,
		log:       opts.Log,
	}
}

func (s *Server) track(e tracking.Event) {
	if s.tracker != nil {
		s.tracker(e)
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Recoverer)
	r.Use(middleware.Timeout(5 * time.Second))
	r.Use(telemetry.Middleware)
	if s.rateLimit > 0 {
		r.Use(httprate.LimitByIP(s.rateLimit, time.Minute))
	}

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	// public read surface
	r.Get("/v1/flags", s.handleListFlags)
	r.Get("/v1/flags/{key}", s.handleGetFlag)
	r.Post("/v1/flags/{key}/evaluate", s.handleEvaluateFlag)
	r.Post("/v1/evaluate", s.handleEvaluateAll)
	r.Get("/v1/experiments", s.handleListExperiments)
	r.Get("/v1/experiments/{id}", s.handleGetExperiment)
	r.Post("/v1/experiments/{id}/assign", s.handleAssign)
	r.Get("/v1/assignments", s.handleListAssignments)

	// admin write surface
	r.Group(func(r chi.Router) {
		r.Use(s.auth.RequireAuth)
		r.Post("/v1/flags", s.handleCreateFlag)
		r.Patch("/v1/flags/{key}", s.handlePatchFlag)
		r.Delete("/v1/flags/{key}", s.handleDeleteFlag)
		r.Post("/v1/experiments", s.handleCreateExperiment)
		r.Patch("/v1/experiments/{id}", s.handlePatchExperiment)
		r.Delete("/v1/experiments/{id}", s.handleDeleteExperiment)
		r.Delete("/v1/experiments/{id}/assignments", s.handleRemoveAssignments)
	})

	return r
}
