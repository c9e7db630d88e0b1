// Package tracking delivers evaluation and assignment events to an external
// HTTP sink. Events are queued and dispatched by a background worker so that
// the request path never blocks on the sink.
package tracking

import "time"

// Event types emitted by the server.
const (
	EventFlagEvaluated      = "flag.evaluated"
	EventExperimentAssigned = "experiment.assigned"
	EventExperimentExposure = "experiment.exposure"
	EventAssignmentsRemoved = "experiment.assignments_removed"
)

// Tracker consumes tracking events in process. (*Dispatcher).Dispatch is the
// usual implementation; a nil-safe method value works even when tracking is
// disabled.
type Tracker func(Event)

// Event is one tracking payload delivered to the sink.
type Event struct {
	ID          string         `json:"id"`
	Type        string         `json:"event"`
	Timestamp   time.Time      `json:"timestamp"`
	Environment string         `json:"environment"`
	Identity    string         `json:"identity,omitempty"`
	FlagKey     string         `json:"flagKey,omitempty"`
	Experiment  string         `json:"experimentId,omitempty"`
	VariantID   string         `json:"variantId,omitempty"`
	Reason      string         `json:"reason,omitempty"`
	Data        map[string]any `json:"data,omitempty"`
}
