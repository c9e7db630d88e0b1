// Package validation checks flag and experiment definitions before they are
// admitted to a registry. It guards configuration shape only; evaluation
// itself stays total and never re-validates.
package validation

import (
	"errors"
	"fmt"

	"variantcore/internal/condition"
	"variantcore/internal/experiment"
	"variantcore/internal/feature"
)

var (
	// ErrKeyRequired is returned when a flag has no key.
	ErrKeyRequired = errors.New("flag key is required")
	// ErrIDRequired is returned when an experiment has no id.
	ErrIDRequired = errors.New("experiment id is required")
	// ErrNoVariants is returned when an experiment defines no variants.
	ErrNoVariants = errors.New("experiment must define at least one variant")
	// ErrZeroTotalWeight is returned when all variant weights are zero.
	ErrZeroTotalWeight = errors.New("variant weights must have a positive total")
)

// ValidateFlag checks a single flag definition.
func ValidateFlag(f feature.Flag) error {
	if f.Key == "" {
		return ErrKeyRequired
	}
	if f.Rollout != nil && (*f.Rollout < 0 || *f.Rollout > 100) {
		return fmt.Errorf("flag %q: rollout must be 0..100, got %d", f.Key, *f.Rollout)
	}
	if f.StartDate != nil && f.EndDate != nil && f.EndDate.Before(*f.StartDate) {
		return fmt.Errorf("flag %q: endDate precedes startDate", f.Key)
	}
	for i, c := range f.Conditions {
		if !feature.KnownConditionType(c.Type) {
			return fmt.Errorf("flag %q: condition %d has unknown type %q", f.Key, i, c.Type)
		}
		if !condition.Known(c.Operator) {
			return fmt.Errorf("flag %q: condition %d has unknown operator %q", f.Key, i, c.Operator)
		}
	}
	return nil
}

// ValidateExperiment checks a single experiment definition. Variant weights
// are arbitrary non-negative numbers: their sum is the bucketing
// denominator, so they deliberately need NOT sum to 100. Only a zero or
// negative total is rejected.
func ValidateExperiment(e experiment.Experiment) error {
	if e.ID == "" {
		return ErrIDRequired
	}
	if !experiment.KnownStatus(e.Status) {
		return fmt.Errorf("experiment %q: unknown status %q", e.ID, e.Status)
	}
	if e.TrafficAllocation < 0 || e.TrafficAllocation > 100 {
		return fmt.Errorf("experiment %q: trafficAllocation must be 0..100, got %d", e.ID, e.TrafficAllocation)
	}
	if e.EndDate != nil && e.EndDate.Before(e.StartDate) {
		return fmt.Errorf("experiment %q: endDate precedes startDate", e.ID)
	}

	if len(e.Variants) == 0 {
		return fmt.Errorf("experiment %q: %w", e.ID, ErrNoVariants)
	}
	seen := make(map[string]bool, len(e.Variants))
	var total float64
	for _, v := range e.Variants {
		if v.ID == "" {
			return fmt.Errorf("experiment %q: variant id cannot be empty", e.ID)
		}
		if seen[v.ID] {
			return fmt.Errorf("experiment %q: duplicate variant id %q", e.ID, v.ID)
		}
		seen[v.ID] = true
		if v.Weight < 0 {
			return fmt.Errorf("experiment %q: variant %q has negative weight", e.ID, v.ID)
		}
		total += v.Weight
	}
	if total <= 0 {
		return fmt.Errorf("experiment %q: %w", e.ID, ErrZeroTotalWeight)
	}

	for i, c := range e.Targeting.CustomConditions {
		if c.Key == "" {
			return fmt.Errorf("experiment %q: custom condition %d has no key", e.ID, i)
		}
		if !condition.Known(c.Operator) {
			return fmt.Errorf("experiment %q: custom condition %d has unknown operator %q", e.ID, i, c.Operator)
		}
	}
	return nil
}
