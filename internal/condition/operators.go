package condition

import (
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/spf13/cast"
)

// Evaluate runs a single operator against an actual (context-derived) value
// and an expected (rule) value. It is total: malformed inputs and unknown
// operators evaluate to false, never an error.
func Evaluate(op Operator, actual, expected any) bool {
	h, ok := handlers[op]
	if !ok {
		return false
	}
	return h.Check(actual, expected)
}

// Handler evaluates one condition operator.
type Handler interface {
	Check(actual, expected any) bool
}

var handlers = map[Operator]Handler{
	OpEquals:      equalsHandler{},
	OpIn:          inHandler{},
	OpNotIn:       notInHandler{},
	OpGreaterThan: numericCompareHandler{cmp: func(a, b float64) bool { return a > b }},
	OpLessThan:    numericCompareHandler{cmp: func(a, b float64) bool { return a < b }},
	OpContains:    containsHandler{},
	OpVersionGT:   semverCompareHandler{cmp: func(a, b *semver.Version) bool { return a.GreaterThan(b) }},
	OpVersionLT:   semverCompareHandler{cmp: func(a, b *semver.Version) bool { return a.LessThan(b) }},
}

type equalsHandler struct{}

func (equalsHandler) Check(actual, expected any) bool {
	if actual == nil || expected == nil {
		return actual == expected
	}
	if a, ok := actual.(bool); ok {
		e, ok := expected.(bool)
		return ok && a == e
	}
	// Numbers compare numerically regardless of concrete type: YAML decodes
	// to int, JSON to float64, contexts carry either. Strings never compare
	// equal to numbers (strict equality, no cross-kind coercion).
	if isNumber(actual) || isNumber(expected) {
		if !isNumber(actual) || !isNumber(expected) {
			return false
		}
		return cast.ToFloat64(actual) == cast.ToFloat64(expected)
	}
	a, aOK := actual.(string)
	e, eOK := expected.(string)
	return aOK && eOK && a == e
}

func isNumber(v any) bool {
	switch v.(type) {
	case int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return true
	}
	return false
}

type inHandler struct{}

func (inHandler) Check(actual, expected any) bool {
	list, ok := toSlice(expected)
	if !ok {
		return false
	}
	for _, item := range list {
		if (equalsHandler{}).Check(actual, item) {
			return true
		}
	}
	return false
}

type notInHandler struct{}

// Check requires expected to be a list; a non-list expected value means the
// condition is not met, mirroring `in`. It is NOT a blanket negation of `in`.
func (notInHandler) Check(actual, expected any) bool {
	list, ok := toSlice(expected)
	if !ok {
		return false
	}
	for _, item := range list {
		if (equalsHandler{}).Check(actual, item) {
			return false
		}
	}
	return true
}

type numericCompareHandler struct {
	cmp func(a, b float64) bool
}

func (h numericCompareHandler) Check(actual, expected any) bool {
	a, err := cast.ToFloat64E(actual)
	if err != nil {
		return false
	}
	e, err := cast.ToFloat64E(expected)
	if err != nil {
		return false
	}
	return h.cmp(a, e)
}

type containsHandler struct{}

func (containsHandler) Check(actual, expected any) bool {
	a, err := cast.ToStringE(actual)
	if err != nil {
		return false
	}
	e, err := cast.ToStringE(expected)
	if err != nil {
		return false
	}
	return strings.Contains(a, e)
}

type semverCompareHandler struct {
	cmp func(a, b *semver.Version) bool
}

func (h semverCompareHandler) Check(actual, expected any) bool {
	aStr, err := cast.ToStringE(actual)
	if err != nil {
		return false
	}
	eStr, err := cast.ToStringE(expected)
	if err != nil {
		return false
	}
	aVer, err := semver.NewVersion(aStr)
	if err != nil {
		return false
	}
	eVer, err := semver.NewVersion(eStr)
	if err != nil {
		return false
	}
	return h.cmp(aVer, eVer)
}

func toSlice(v any) ([]any, bool) {
	switch values := v.(type) {
	case []any:
		return values, true
	case []string:
		result := make([]any, len(values))
		for i, s := range values {
			result[i] = s
		}
		return result, true
	case []int:
		result := make([]any, len(values))
		for i, n := range values {
			result[i] = n
		}
		return result, true
	case []float64:
		result := make([]any, len(values))
		for i, n := range values {
			result[i] = n
		}
		return result, true
	default:
		return nil, false
	}
}
