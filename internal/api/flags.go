package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"variantcore/internal/evalctx"
	"variantcore/internal/feature"
	"variantcore/internal/telemetry"
	"variantcore/internal/tracking"
	"variantcore/internal/validation"
)

type listFlagsResponse struct {
	Flags []feature.Flag `json:"flags"`
	ETag  string         `json:"etag"`
}

// handleListFlags serves the full flag list with an ETag so SDK clients can
// poll cheaply with If-None-Match.
func (s *Server) handleListFlags(w http.ResponseWriter, r *http.Request) {
	flags := s.evaluator.GetAllFlags()
	etag := weakETag(flags)

	if inm := r.Header.Get("If-None-Match"); inm != "" && inm == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	w.Header().Set("ETag", etag)
	writeJSON(w, http.StatusOK, listFlagsResponse{Flags: flags, ETag: etag})
}

func (s *Server) handleGetFlag(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	flag, ok := s.evaluator.GetFlag(key)
	if !ok {
		writeError(w, http.StatusNotFound, "flag not found")
		return
	}
	writeJSON(w, http.StatusOK, flag)
}

// handleEvaluateFlag evaluates one flag against the posted context. An empty
// body evaluates with an empty context.
func (s *Server) handleEvaluateFlag(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")

	ctx, err := decodeContext(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	result := s.evaluator.Evaluate(key, ctx)
	telemetry.FlagEvaluations.WithLabelValues(key, result.Reason).Inc()
	s.track(tracking.Event{
		Type:        tracking.EventFlagEvaluated,
		Environment: s.env,
		Identity:    ctx.Identity(),
		FlagKey:     key,
		Reason:      result.Reason,
		Data:        map[string]any{"enabled": result.Enabled},
	})

	writeJSON(w, http.StatusOK, result)
}

type evaluateAllRequest struct {
	Keys    []string        `json:"keys,omitempty"`
	Context evalctx.Context `json:"context"`
}

type evaluateAllResponse struct {
	Flags       []feature.Evaluation `json:"flags"`
	EvaluatedAt string               `json:"evaluatedAt"`
}

// handleEvaluateAll evaluates every flag, or the requested subset, in one
// round trip.
func (s *Server) handleEvaluateAll(w http.ResponseWriter, r *http.Request) {
	var req evaluateAllRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	results := s.evaluator.EvaluateAll(&req.Context, req.Keys)
	for _, result := range results {
		telemetry.FlagEvaluations.WithLabelValues(result.FlagKey, result.Reason).Inc()
	}

	writeJSON(w, http.StatusOK, evaluateAllResponse{
		Flags:       results,
		EvaluatedAt: time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleCreateFlag(w http.ResponseWriter, r *http.Request) {
	var flag feature.Flag
	if err := json.NewDecoder(r.Body).Decode(&flag); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	flag.Key = strings.TrimSpace(flag.Key)
	if err := validation.ValidateFlag(flag); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.evaluator.AddFlag(flag)
	s.log.Info().Str("flag", flag.Key).Msg("flag created")
	writeJSON(w, http.StatusCreated, flag)
}

func (s *Server) handlePatchFlag(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")

	var patch feature.Update
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if patch.Rollout != nil && (*patch.Rollout < 0 || *patch.Rollout > 100) {
		writeError(w, http.StatusBadRequest, "rollout must be 0..100")
		return
	}

	if !s.evaluator.UpdateFlag(key, patch) {
		writeError(w, http.StatusNotFound, "flag not found")
		return
	}
	flag, _ := s.evaluator.GetFlag(key)
	s.log.Info().Str("flag", key).Msg("flag updated")
	writeJSON(w, http.StatusOK, flag)
}

func (s *Server) handleDeleteFlag(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	if _, ok := s.evaluator.GetFlag(key); !ok {
		writeError(w, http.StatusNotFound, "flag not found")
		return
	}
	s.evaluator.RemoveFlag(key)
	s.log.Info().Str("flag", key).Msg("flag deleted")
	w.WriteHeader(http.StatusNoContent)
}

// decodeContext reads an evaluation context from the request body, treating
// an empty body as an empty context.
func decodeContext(r *http.Request) (*evalctx.Context, error) {
	var ctx evalctx.Context
	if err := json.NewDecoder(r.Body).Decode(&ctx); err != nil {
		if errors.Is(err, io.EOF) {
			return &ctx, nil
		}
		return nil, err
	}
	return &ctx, nil
}
