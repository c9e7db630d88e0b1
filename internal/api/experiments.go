package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"variantcore/internal/assignment"
	"variantcore/internal/experiment"
	"variantcore/internal/telemetry"
	"variantcore/internal/tracking"
	"variantcore/internal/validation"
)

func (s *Server) handleListExperiments(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"experiments": s.engine.GetAllExperiments(),
	})
}

func (s *Server) handleGetExperiment(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	exp, ok := s.engine.GetExperiment(id)
	if !ok {
		writeError(w, http.StatusNotFound, "experiment not found")
		return
	}
	writeJSON(w, http.StatusOK, exp)
}

// handleAssign runs the assignment pipeline for one experiment and context.
func (s *Server) handleAssign(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	ctx, err := decodeContext(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	result := s.engine.AssignVariant(id, ctx)
	telemetry.ExperimentAssignments.WithLabelValues(id, result.Reason).Inc()
	if result.IsParticipant {
		// sticky repeats surface as exposure events
		eventType := tracking.EventExperimentAssigned
		if result.Reason == experiment.ReasonPreviouslyAssigned {
			eventType = tracking.EventExperimentExposure
		}
		s.track(tracking.Event{
			Type:        eventType,
			Environment: s.env,
			Identity:    ctx.Identity(),
			Experiment:  id,
			VariantID:   result.VariantID,
			Reason:      result.Reason,
		})
	}

	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleListAssignments(w http.ResponseWriter, r *http.Request) {
	userID := strings.TrimSpace(r.URL.Query().Get("userId"))
	if userID == "" {
		writeError(w, http.StatusBadRequest, "userId query parameter is required")
		return
	}
	assignments := s.engine.GetUserAssignments(userID)
	if assignments == nil {
		assignments = []assignment.Assignment{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"assignments": assignments})
}

func (s *Server) handleCreateExperiment(w http.ResponseWriter, r *http.Request) {
	var exp experiment.Experiment
	if err := json.NewDecoder(r.Body).Decode(&exp); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	exp.ID = strings.TrimSpace(exp.ID)
	if err := validation.ValidateExperiment(exp); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.engine.AddExperiment(exp)
	s.log.Info().Str("experiment", exp.ID).Msg("experiment created")
	writeJSON(w, http.StatusCreated, exp)
}

func (s *Server) handlePatchExperiment(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var patch experiment.Update
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	if patch.Status != nil {
		if !experiment.KnownStatus(*patch.Status) {
			writeError(w, http.StatusBadRequest, "unknown status")
			return
		}
		current, ok := s.engine.GetExperiment(id)
		if !ok {
			writeError(w, http.StatusNotFound, "experiment not found")
			return
		}
		if current.Status != *patch.Status && !experiment.ValidTransition(current.Status, *patch.Status) {
			writeError(w, http.StatusConflict, "invalid status transition")
			return
		}
	}
	if patch.TrafficAllocation != nil && (*patch.TrafficAllocation < 0 || *patch.TrafficAllocation > 100) {
		writeError(w, http.StatusBadRequest, "trafficAllocation must be 0..100")
		return
	}

	if !s.engine.UpdateExperiment(id, patch) {
		writeError(w, http.StatusNotFound, "experiment not found")
		return
	}
	exp, _ := s.engine.GetExperiment(id)
	s.log.Info().Str("experiment", id).Msg("experiment updated")
	writeJSON(w, http.StatusOK, exp)
}

func (s *Server) handleDeleteExperiment(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, ok := s.engine.GetExperiment(id); !ok {
		writeError(w, http.StatusNotFound, "experiment not found")
		return
	}
	s.engine.RemoveExperiment(id)
	s.log.Info().Str("experiment", id).Msg("experiment deleted")
	w.WriteHeader(http.StatusNoContent)
}

// handleRemoveAssignments clears in-memory assignments for one experiment and
// identity so the identity re-enters bucketing.
func (s *Server) handleRemoveAssignments(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	userID := strings.TrimSpace(r.URL.Query().Get("userId"))
	sessionID := strings.TrimSpace(r.URL.Query().Get("sessionId"))
	if userID == "" && sessionID == "" {
		writeError(w, http.StatusBadRequest, "userId or sessionId query parameter is required")
		return
	}

	removed := s.engine.RemoveAssignment(id, userID, sessionID)
	s.track(tracking.Event{
		Type:        tracking.EventAssignmentsRemoved,
		Environment: s.env,
		Experiment:  id,
		Data:        map[string]any{"removed": removed},
	})
	writeJSON(w, http.StatusOK, map[string]any{"removed": removed})
}
