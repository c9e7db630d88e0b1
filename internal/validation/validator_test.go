package validation

import (
	"testing"
	"time"

	"variantcore/internal/condition"
	"variantcore/internal/experiment"
	"variantcore/internal/feature"
)

func validFlag() feature.Flag {
	rollout := 50
	return feature.Flag{
		Key:     "checkout-optimization",
		Name:    "Optimized Checkout",
		Enabled: true,
		Rollout: &rollout,
		Conditions: []feature.Condition{
			{Type: feature.ConditionUserRole, Operator: condition.OpIn, Value: []any{"user", "premium"}},
		},
	}
}

func validExperiment() experiment.Experiment {
	return experiment.Experiment{
		ID:        "checkout-optimization-v1",
		Status:    experiment.StatusRunning,
		StartDate: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		Variants: []experiment.Variant{
			{ID: "control", Weight: 50},
			{ID: "simplified", Weight: 50},
		},
		TrafficAllocation: 80,
	}
}

func TestValidateFlag(t *testing.T) {
	if err := ValidateFlag(validFlag()); err != nil {
		t.Errorf("valid flag rejected: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*feature.Flag)
	}{
		{"empty key", func(f *feature.Flag) { f.Key = "" }},
		{"rollout over 100", func(f *feature.Flag) { r := 101; f.Rollout = &r }},
		{"negative rollout", func(f *feature.Flag) { r := -1; f.Rollout = &r }},
		{"inverted dates", func(f *feature.Flag) {
			start := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
			end := start.Add(-time.Hour)
			f.StartDate, f.EndDate = &start, &end
		}},
		{"unknown condition type", func(f *feature.Flag) {
			f.Conditions = []feature.Condition{{Type: "plan", Operator: condition.OpEquals, Value: "pro"}}
		}},
		{"unknown operator", func(f *feature.Flag) {
			f.Conditions = []feature.Condition{{Type: feature.ConditionUserRole, Operator: "regex", Value: ".*"}}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := validFlag()
			tt.mutate(&f)
			if err := ValidateFlag(f); err == nil {
				t.Error("expected validation error")
			}
		})
	}

	// No rollout at all is valid (treated as 100 downstream).
	f := validFlag()
	f.Rollout = nil
	if err := ValidateFlag(f); err != nil {
		t.Errorf("nil rollout rejected: %v", err)
	}
}

func TestValidateExperiment(t *testing.T) {
	if err := ValidateExperiment(validExperiment()); err != nil {
		t.Errorf("valid experiment rejected: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*experiment.Experiment)
	}{
		{"empty id", func(e *experiment.Experiment) { e.ID = "" }},
		{"unknown status", func(e *experiment.Experiment) { e.Status = "archived" }},
		{"allocation over 100", func(e *experiment.Experiment) { e.TrafficAllocation = 150 }},
		{"no variants", func(e *experiment.Experiment) { e.Variants = nil }},
		{"duplicate variant ids", func(e *experiment.Experiment) {
			e.Variants = []experiment.Variant{{ID: "a", Weight: 1}, {ID: "a", Weight: 1}}
		}},
		{"negative weight", func(e *experiment.Experiment) {
			e.Variants = []experiment.Variant{{ID: "a", Weight: -1}, {ID: "b", Weight: 2}}
		}},
		{"zero total weight", func(e *experiment.Experiment) {
			e.Variants = []experiment.Variant{{ID: "a", Weight: 0}, {ID: "b", Weight: 0}}
		}},
		{"unknown custom operator", func(e *experiment.Experiment) {
			e.Targeting.CustomConditions = []condition.Condition{{Key: "x", Operator: "matches", Value: 1}}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := validExperiment()
			tt.mutate(&e)
			if err := ValidateExperiment(e); err == nil {
				t.Error("expected validation error")
			}
		})
	}

	// Weights that do not sum to 100 are fine; the sum is the denominator.
	e := validExperiment()
	e.Variants = []experiment.Variant{{ID: "a", Weight: 1}, {ID: "b", Weight: 3}}
	if err := ValidateExperiment(e); err != nil {
		t.Errorf("non-100 weight total rejected: %v", err)
	}
}
