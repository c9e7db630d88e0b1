package experiment

import (
	"time"

	"variantcore/internal/assignment"
	"variantcore/internal/condition"
	"variantcore/internal/evalctx"
)

// Status is the lifecycle state of an experiment. Only running experiments
// inside their date window enroll participants.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusReady     Status = "ready"
	StatusRunning   Status = "running"
	StatusPaused    Status = "paused"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// KnownStatus reports whether s is a valid experiment status.
func KnownStatus(s Status) bool {
	switch s {
	case StatusDraft, StatusReady, StatusRunning, StatusPaused, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// ValidTransition reports whether moving from one status to another follows
// the lifecycle draft -> ready -> running -> {paused, completed, cancelled}.
// Paused experiments may resume or terminate. The engine itself never
// enforces transitions; this is for admin surfaces that want to.
func ValidTransition(from, to Status) bool {
	switch from {
	case StatusDraft:
		return to == StatusReady
	case StatusReady:
		return to == StatusRunning
	case StatusRunning:
		return to == StatusPaused || to == StatusCompleted || to == StatusCancelled
	case StatusPaused:
		return to == StatusRunning || to == StatusCompleted || to == StatusCancelled
	default:
		return false
	}
}

// Variant is one arm of an experiment. Weight is an arbitrary non-negative
// number; the sum of all weights defines the bucketing denominator (weights
// need not sum to 100). Config is an opaque payload delivered to the caller;
// the engine never interprets it.
type Variant struct {
	ID          string         `json:"id" yaml:"id"`
	Name        string         `json:"name" yaml:"name"`
	Weight      float64        `json:"weight" yaml:"weight"`
	Config      map[string]any `json:"config,omitempty" yaml:"config,omitempty"`
	Description string         `json:"description,omitempty" yaml:"description,omitempty"`
}

// Targeting narrows who is eligible for an experiment. Nil membership lists
// are skipped (vacuously true). Custom conditions are combined with AND
// semantics using dotted-path lookup into the context.
type Targeting struct {
	UserRoles        []string              `json:"userRoles,omitempty" yaml:"userRoles,omitempty"`
	UserSegments     []string              `json:"userSegments,omitempty" yaml:"userSegments,omitempty"`
	GeoLocation      []string              `json:"geoLocation,omitempty" yaml:"geoLocation,omitempty"`
	DeviceTypes      []evalctx.DeviceType  `json:"deviceTypes,omitempty" yaml:"deviceTypes,omitempty"`
	Browsers         []string              `json:"browsers,omitempty" yaml:"browsers,omitempty"`
	CustomConditions []condition.Condition `json:"customConditions,omitempty" yaml:"customConditions,omitempty"`
}

// Experiment is a named A/B(/n) test with variants, targeting, and traffic
// controls. Metrics, Hypothesis, and SuccessCriteria are informational only.
type Experiment struct {
	ID                string     `json:"id" yaml:"id"`
	Name              string     `json:"name" yaml:"name"`
	Description       string     `json:"description,omitempty" yaml:"description,omitempty"`
	Status            Status     `json:"status" yaml:"status"`
	Variants          []Variant  `json:"variants" yaml:"variants"`
	Targeting         Targeting  `json:"targeting" yaml:"targeting"`
	Metrics           []string   `json:"metrics,omitempty" yaml:"metrics,omitempty"`
	StartDate         time.Time  `json:"startDate" yaml:"startDate"`
	EndDate           *time.Time `json:"endDate,omitempty" yaml:"endDate,omitempty"`
	TrafficAllocation int        `json:"trafficAllocation" yaml:"trafficAllocation"`
	Hypothesis        string     `json:"hypothesis,omitempty" yaml:"hypothesis,omitempty"`
	SuccessCriteria   string     `json:"successCriteria,omitempty" yaml:"successCriteria,omitempty"`
}

// TotalWeight sums all variant weights.
func (e *Experiment) TotalWeight() float64 {
	var total float64
	for _, v := range e.Variants {
		total += v.Weight
	}
	return total
}

// Variant returns the variant with the given id.
func (e *Experiment) Variant(id string) (Variant, bool) {
	for _, v := range e.Variants {
		if v.ID == id {
			return v, true
		}
	}
	return Variant{}, false
}

// Update is a partial experiment patch applied by Engine.UpdateExperiment.
// Nil fields are left untouched (shallow merge).
type Update struct {
	Name              *string     `json:"name,omitempty"`
	Description       *string     `json:"description,omitempty"`
	Status            *Status     `json:"status,omitempty"`
	Variants          *[]Variant  `json:"variants,omitempty"`
	Targeting         *Targeting  `json:"targeting,omitempty"`
	Metrics           *[]string   `json:"metrics,omitempty"`
	StartDate         *time.Time  `json:"startDate,omitempty"`
	EndDate           *time.Time  `json:"endDate,omitempty"`
	TrafficAllocation *int        `json:"trafficAllocation,omitempty"`
	Hypothesis        *string     `json:"hypothesis,omitempty"`
	SuccessCriteria   *string     `json:"successCriteria,omitempty"`
}

// Result is the structured outcome of AssignVariant. VariantID is empty when
// the identity does not participate; Reason says why.
type Result struct {
	ExperimentID  string                 `json:"experimentId"`
	VariantID     string                 `json:"variantId,omitempty"`
	IsParticipant bool                   `json:"isParticipant"`
	Reason        string                 `json:"reason"`
	Assignment    *assignment.Assignment `json:"assignment,omitempty"`
}

// Reason strings returned by AssignVariant, in pipeline order.
const (
	ReasonNotFound           = "Experiment not found"
	ReasonNotActive          = "Experiment not active"
	ReasonPreviouslyAssigned = "Previously assigned"
	ReasonNotTargeted        = "Does not meet targeting criteria"
	ReasonNotAllocated       = "Not in traffic allocation"
	ReasonNoVariant          = "No variant available"
	ReasonAssigned           = "Successfully assigned"
)
