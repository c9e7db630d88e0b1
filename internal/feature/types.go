package feature

import (
	"time"

	"variantcore/internal/condition"
)

// ConditionType selects which context field a flag condition compares against.
type ConditionType string

const (
	ConditionUserRole    ConditionType = "user_role"
	ConditionUserID      ConditionType = "user_id"
	ConditionEnvironment ConditionType = "environment"
	ConditionDateRange   ConditionType = "date_range"
	ConditionCountry     ConditionType = "country"
)

// KnownConditionType reports whether t is a supported flag condition type.
func KnownConditionType(t ConditionType) bool {
	switch t {
	case ConditionUserRole, ConditionUserID, ConditionEnvironment,
		ConditionDateRange, ConditionCountry:
		return true
	}
	return false
}

// Condition is a typed predicate on a flag. Unlike experiment custom
// conditions it dispatches on Type rather than a free-form context path.
type Condition struct {
	Type     ConditionType      `json:"type" yaml:"type"`
	Operator condition.Operator `json:"operator" yaml:"operator"`
	Value    any                `json:"value" yaml:"value"`
}

// Flag is a named boolean toggle with optional rules and gradual rollout.
// A nil Rollout means 100 (no percentage gating). Expression, when set, is a
// JSON Logic rule evaluated against the flattened context in addition to the
// typed conditions.
type Flag struct {
	Key         string      `json:"key" yaml:"key"`
	Name        string      `json:"name" yaml:"name"`
	Description string      `json:"description,omitempty" yaml:"description,omitempty"`
	Enabled     bool        `json:"enabled" yaml:"enabled"`
	Rollout     *int        `json:"rollout,omitempty" yaml:"rollout,omitempty"`
	Conditions  []Condition `json:"conditions,omitempty" yaml:"conditions,omitempty"`
	Expression  *string     `json:"expression,omitempty" yaml:"expression,omitempty"`
	StartDate   *time.Time  `json:"startDate,omitempty" yaml:"startDate,omitempty"`
	EndDate     *time.Time  `json:"endDate,omitempty" yaml:"endDate,omitempty"`
}

// RolloutPercent returns the effective rollout percentage (100 when unset).
func (f *Flag) RolloutPercent() int {
	if f.Rollout == nil {
		return 100
	}
	return *f.Rollout
}

// Update is a partial flag patch applied by Evaluator.UpdateFlag. Nil fields
// are left untouched (shallow merge).
type Update struct {
	Name        *string      `json:"name,omitempty"`
	Description *string      `json:"description,omitempty"`
	Enabled     *bool        `json:"enabled,omitempty"`
	Rollout     *int         `json:"rollout,omitempty"`
	Conditions  *[]Condition `json:"conditions,omitempty"`
	Expression  *string      `json:"expression,omitempty"`
	StartDate   *time.Time   `json:"startDate,omitempty"`
	EndDate     *time.Time   `json:"endDate,omitempty"`
}

// Evaluation is the structured result of evaluating one flag. Reason is part
// of the public contract: callers branch on it to distinguish failure causes.
type Evaluation struct {
	FlagKey  string         `json:"flagKey"`
	Enabled  bool           `json:"enabled"`
	Reason   string         `json:"reason"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Reason strings returned by Evaluate, in evaluation order.
const (
	ReasonNotFound       = "Flag not found"
	ReasonDisabled       = "Flag is disabled"
	ReasonOutsideDates   = "Outside date range"
	ReasonConditions     = "Conditions not met"
	ReasonExpression     = "Expression not matched"
	ReasonOutsideRollout = "Outside rollout percentage"
	ReasonEnabled        = "All conditions met"
)
