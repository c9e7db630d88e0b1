// Package condition evaluates single targeting predicates shared by the
// feature-flag evaluator and the experiment engine.
package condition

// Operator represents a comparison operator used in targeting conditions.
type Operator string

// Supported operators (string values for clean JSON/YAML serialization).
const (
	OpEquals      Operator = "equals"
	OpIn          Operator = "in"
	OpNotIn       Operator = "not_in"
	OpGreaterThan Operator = "greater_than"
	OpLessThan    Operator = "less_than"
	OpContains    Operator = "contains"
	OpVersionGT   Operator = "version_gt"
	OpVersionLT   Operator = "version_lt"
)

// Condition represents a single targeting predicate. Key is a dotted path
// into the evaluation context (for example "user.role" or
// "customProperties.cartValue"). When multiple conditions are listed they are
// combined with AND semantics by the caller.
type Condition struct {
	Key      string   `json:"key" yaml:"key"`
	Operator Operator `json:"operator" yaml:"operator"`
	Value    any      `json:"value" yaml:"value"`
}

// Known reports whether op is a supported operator.
func Known(op Operator) bool {
	switch op {
	case OpEquals, OpIn, OpNotIn, OpGreaterThan, OpLessThan, OpContains,
		OpVersionGT, OpVersionLT:
		return true
	}
	return false
}
