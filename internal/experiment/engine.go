// Package experiment holds the experiment registry and the engine that
// deterministically assigns identities to variants.
//
// AssignVariant is total: for any experiment id and context it returns a
// reason-bearing Result and never an error. The pipeline order (missing
// experiment, activity window, sticky lookup, targeting, traffic
// allocation, weighted selection, persistence) is part of the contract.
// Sticky assignments bypass targeting and bucketing entirely, so an
// identity's variant never changes even if weights or rules are edited
// after the fact.
package experiment

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"variantcore/internal/assignment"
	"variantcore/internal/bucket"
	"variantcore/internal/condition"
	"variantcore/internal/evalctx"
)

// Engine owns the experiment registry and the sticky assignment map. The
// durable mirror is read once at construction and written through on every
// new assignment; mirror failures are logged and swallowed. All methods are
// safe for concurrent use.
type Engine struct {
	mu          sync.RWMutex
	experiments map[string]Experiment
	assignments map[string]assignment.Assignment // composite key -> assignment
	mirror      assignment.Store
	log         zerolog.Logger
}

// NewEngine builds an engine over the given experiment list, pre-loading
// sticky assignments from the mirror. A nil mirror disables durability.
func NewEngine(ctx context.Context, experiments []Experiment, mirror assignment.Store, log zerolog.Logger) *Engine {
	e := &Engine{
		experiments: make(map[string]Experiment, len(experiments)),
		assignments: make(map[string]assignment.Assignment),
		mirror:      mirror,
		log:         log,
	}
	for _, exp := range experiments {
		e.experiments[exp.ID] = exp
	}

	if mirror != nil {
		loaded, err := mirror.Load(ctx)
		if err != nil {
			// Best-effort: the engine runs on in-memory state alone.
			log.Warn().Err(err).Msg("failed to load assignments from mirror")
		}
		for _, a := range loaded {
			e.assignments[a.Key()] = a
		}
	}
	return e
}

// AssignVariant decides which variant of experimentID, if any, the identity
// in ctx belongs to, persisting the decision on first assignment.
func (e *Engine) AssignVariant(experimentID string, ctx *evalctx.Context) Result {
	e.mu.Lock()
	defer e.mu.Unlock()

	exp, ok := e.experiments[experimentID]
	if !ok {
		return Result{ExperimentID: experimentID, Reason: ReasonNotFound}
	}

	if !isActive(&exp, time.Now()) {
		return Result{ExperimentID: experimentID, Reason: ReasonNotActive}
	}

	if existing, ok := e.findAssignment(experimentID, ctx); ok {
		return Result{
			ExperimentID:  experimentID,
			VariantID:     existing.VariantID,
			IsParticipant: true,
			Reason:        ReasonPreviouslyAssigned,
			Assignment:    &existing,
		}
	}

	if !meetsTargeting(&exp.Targeting, ctx) {
		return Result{ExperimentID: experimentID, Reason: ReasonNotTargeted}
	}

	if !inTrafficAllocation(&exp, ctx) {
		return Result{ExperimentID: experimentID, Reason: ReasonNotAllocated}
	}

	variant, ok := selectVariant(exp.Variants, ctx)
	if !ok {
		return Result{ExperimentID: experimentID, Reason: ReasonNoVariant}
	}

	a := assignment.Assignment{
		ExperimentID: experimentID,
		VariantID:    variant.ID,
		AssignedAt:   time.Now().UTC(),
		UserID:       ctx.UserID(),
		SessionID:    sessionID(ctx),
	}
	e.assignments[a.Key()] = a
	e.persist(a)

	return Result{
		ExperimentID:  experimentID,
		VariantID:     variant.ID,
		IsParticipant: true,
		Reason:        ReasonAssigned,
		Assignment:    &a,
	}
}

// isActive reports whether the experiment enrolls participants right now:
// status running, started, and not past its end date.
func isActive(exp *Experiment, now time.Time) bool {
	if exp.Status != StatusRunning {
		return false
	}
	if exp.StartDate.After(now) {
		return false
	}
	if exp.EndDate != nil && exp.EndDate.Before(now) {
		return false
	}
	return true
}

// findAssignment scans for a live assignment matching this experiment and
// either the user id or the session id of the caller. A user-keyed match
// always wins over a session-keyed one, so an identity that holds both (an
// anonymous session assignment plus a later signed-in one) resolves the same
// way on every call regardless of map order.
func (e *Engine) findAssignment(experimentID string, ctx *evalctx.Context) (assignment.Assignment, bool) {
	userID := ctx.UserID()
	sessID := ctx.SessionID()

	var bySession assignment.Assignment
	var haveSession bool
	for _, a := range e.assignments {
		if a.ExperimentID != experimentID {
			continue
		}
		if userID != "" && a.UserID == userID {
			return a, true
		}
		if sessID != "" && a.SessionID == sessID {
			if !haveSession || preferSessionMatch(a, bySession) {
				bySession, haveSession = a, true
			}
		}
	}
	return bySession, haveSession
}

// preferSessionMatch ranks two session-matched assignments: the record keyed
// by the session itself (no user id) beats one recorded for a signed-in
// user, and ties break on the earlier AssignedAt.
func preferSessionMatch(a, b assignment.Assignment) bool {
	if (a.UserID == "") != (b.UserID == "") {
		return a.UserID == ""
	}
	return a.AssignedAt.Before(b.AssignedAt)
}

// meetsTargeting checks membership lists in order, then all custom
// conditions. A membership check is skipped when the targeting list is
// unspecified or when the context does not carry the attribute at all; the
// source behaves the same way, so an absent attribute never excludes anyone
// from a membership rule.
func meetsTargeting(t *Targeting, ctx *evalctx.Context) bool {
	if t.UserRoles != nil && ctx.User != nil && ctx.User.Role != "" {
		if !containsString(t.UserRoles, ctx.User.Role) {
			return false
		}
	}
	if t.UserSegments != nil && ctx.User != nil && ctx.User.Segment != "" {
		if !containsString(t.UserSegments, ctx.User.Segment) {
			return false
		}
	}
	if t.GeoLocation != nil && ctx.User != nil && ctx.User.Country != "" {
		if !containsString(t.GeoLocation, ctx.User.Country) {
			return false
		}
	}
	if t.DeviceTypes != nil && ctx.Session != nil && ctx.Session.DeviceType != "" {
		if !containsDevice(t.DeviceTypes, ctx.Session.DeviceType) {
			return false
		}
	}
	if t.Browsers != nil && ctx.Session != nil && ctx.Session.Browser != "" {
		if !containsString(t.Browsers, ctx.Session.Browser) {
			return false
		}
	}
	for _, c := range t.CustomConditions {
		actual, _ := ctx.Value(c.Key)
		if !condition.Evaluate(c.Operator, actual, c.Value) {
			return false
		}
	}
	return true
}

// inTrafficAllocation gates enrollment by hashing the experiment id together
// with the identity, so allocation boundaries differ between experiments.
func inTrafficAllocation(exp *Experiment, ctx *evalctx.Context) bool {
	if exp.TrafficAllocation >= 100 {
		return true
	}
	return bucket.Bucket(exp.ID+"-"+ctx.Identity()) < exp.TrafficAllocation
}

// selectVariant buckets the bare identity (not salted with the experiment
// id) and walks the cumulative weights in list order, scaling the bucket
// into [0, totalWeight). Floating error falls back to the last variant.
func selectVariant(variants []Variant, ctx *evalctx.Context) (Variant, bool) {
	if len(variants) == 0 {
		return Variant{}, false
	}

	var totalWeight float64
	for _, v := range variants {
		totalWeight += v.Weight
	}
	if totalWeight <= 0 {
		return Variant{}, false
	}

	target := float64(bucket.Bucket(ctx.Identity())) * totalWeight / 100

	var cumulative float64
	for _, v := range variants {
		cumulative += v.Weight
		if target <= cumulative {
			return v, true
		}
	}
	return variants[len(variants)-1], true
}

func sessionID(ctx *evalctx.Context) string {
	if id := ctx.SessionID(); id != "" {
		return id
	}
	return uuid.NewString()
}

// persist writes through to the durable mirror. Failures are warnings; the
// in-memory decision stands either way.
func (e *Engine) persist(a assignment.Assignment) {
	if e.mirror == nil {
		return
	}
	if err := e.mirror.Append(context.Background(), a); err != nil {
		e.log.Warn().Err(err).
			Str("experiment", a.ExperimentID).
			Str("variant", a.VariantID).
			Msg("failed to persist assignment")
	}
}

func containsString(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

func containsDevice(list []evalctx.DeviceType, v evalctx.DeviceType) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

// AddExperiment registers or replaces an experiment definition.
func (e *Engine) AddExperiment(exp Experiment) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.experiments[exp.ID] = exp
}

// RemoveExperiment drops an experiment definition. Assignments already made
// for it are kept so sticky lookups keep resolving historical data.
func (e *Engine) RemoveExperiment(experimentID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.experiments, experimentID)
}

// UpdateExperiment shallow-merges the patch into an existing experiment.
// Updating an unknown id is a no-op; the returned bool reports whether an
// experiment matched. Existing assignments are deliberately untouched.
func (e *Engine) UpdateExperiment(experimentID string, patch Update) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	exp, ok := e.experiments[experimentID]
	if !ok {
		return false
	}
	if patch.Name != nil {
		exp.Name = *patch.Name
	}
	if patch.Description != nil {
		exp.Description = *patch.Description
	}
	if patch.Status != nil {
		exp.Status = *patch.Status
	}
	if patch.Variants != nil {
		exp.Variants = *patch.Variants
	}
	if patch.Targeting != nil {
		exp.Targeting = *patch.Targeting
	}
	if patch.Metrics != nil {
		exp.Metrics = *patch.Metrics
	}
	if patch.StartDate != nil {
		exp.StartDate = *patch.StartDate
	}
	if patch.EndDate != nil {
		exp.EndDate = patch.EndDate
	}
	if patch.TrafficAllocation != nil {
		exp.TrafficAllocation = *patch.TrafficAllocation
	}
	if patch.Hypothesis != nil {
		exp.Hypothesis = *patch.Hypothesis
	}
	if patch.SuccessCriteria != nil {
		exp.SuccessCriteria = *patch.SuccessCriteria
	}
	e.experiments[experimentID] = exp
	return true
}

// GetExperiment returns a copy of the experiment for id.
func (e *Engine) GetExperiment(experimentID string) (Experiment, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	exp, ok := e.experiments[experimentID]
	return exp, ok
}

// GetAllExperiments returns a snapshot list of all registered experiments.
func (e *Engine) GetAllExperiments() []Experiment {
	e.mu.RLock()
	defer e.mu.RUnlock()
	result := make([]Experiment, 0, len(e.experiments))
	for _, exp := range e.experiments {
		result = append(result, exp)
	}
	return result
}

// GetUserAssignments returns all assignments recorded for userID.
func (e *Engine) GetUserAssignments(userID string) []assignment.Assignment {
	e.mu.RLock()
	defer e.mu.RUnlock()
	var result []assignment.Assignment
	for _, a := range e.assignments {
		if a.UserID == userID {
			result = append(result, a)
		}
	}
	return result
}

// RemoveAssignment deletes matching assignments from the in-memory map.
// The durable mirror is deliberately left untouched: a removed identity
// re-enters bucketing on its next evaluation this process, but the mirror
// keeps the historical record.
func (e *Engine) RemoveAssignment(experimentID, userID, sessionID string) int {
	e.mu.Lock()
	defer e.mu.Unlock()

	var keys []string
	for key, a := range e.assignments {
		if a.ExperimentID != experimentID {
			continue
		}
		if (userID != "" && a.UserID == userID) || (sessionID != "" && a.SessionID == sessionID) {
			keys = append(keys, key)
		}
	}
	for _, key := range keys {
		delete(e.assignments, key)
	}
	return len(keys)
}
