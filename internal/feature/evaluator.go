// Package feature holds the feature-flag registry and its evaluator.
//
// Evaluation is deterministic and total: for any flag key and context it
// returns a reason-bearing Evaluation and never an error. The short-circuit
// order (missing flag, kill switch, date window, conditions, expression,
// rollout) is part of the contract: callers rely on the Reason string to
// tell failure causes apart.
package feature

import (
	"bytes"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/diegoholiveira/jsonlogic/v3"
	"github.com/spf13/cast"

	"variantcore/internal/bucket"
	"variantcore/internal/condition"
	"variantcore/internal/evalctx"
)

// Evaluator owns a registry of flags keyed by flag key. All methods are safe
// for concurrent use; evaluation takes only a read lock.
type Evaluator struct {
	mu         sync.RWMutex
	flags      map[string]Flag
	defaultEnv string
}

// NewEvaluator builds an evaluator over the given initial flag list.
// defaultEnv is used for environment conditions when the context carries no
// environment of its own; it replaces the ambient process-environment lookup
// a hosting layer might otherwise reach for.
func NewEvaluator(flags []Flag, defaultEnv string) *Evaluator {
	e := &Evaluator{
		flags:      make(map[string]Flag, len(flags)),
		defaultEnv: defaultEnv,
	}
	for _, f := range flags {
		e.flags[f.Key] = f
	}
	return e
}

// Evaluate decides whether flagKey is enabled for ctx.
func (e *Evaluator) Evaluate(flagKey string, ctx *evalctx.Context) Evaluation {
	e.mu.RLock()
	flag, ok := e.flags[flagKey]
	e.mu.RUnlock()

	if !ok {
		return Evaluation{FlagKey: flagKey, Reason: ReasonNotFound}
	}

	if !flag.Enabled {
		return Evaluation{FlagKey: flagKey, Reason: ReasonDisabled}
	}

	now := currentDate(ctx)
	if !withinDateRange(&flag, now) {
		return Evaluation{FlagKey: flagKey, Reason: ReasonOutsideDates}
	}

	for _, c := range flag.Conditions {
		if !e.evaluateCondition(c, ctx, now) {
			return Evaluation{FlagKey: flagKey, Reason: ReasonConditions}
		}
	}

	if flag.Expression != nil && strings.TrimSpace(*flag.Expression) != "" {
		if !matchesExpression(*flag.Expression, ctx) {
			return Evaluation{FlagKey: flagKey, Reason: ReasonExpression}
		}
	}

	if rollout := flag.RolloutPercent(); rollout < 100 {
		seed := "anonymous"
		if id := ctx.UserID(); id != "" {
			seed = id
		}
		userHash := bucket.Bucket(seed)
		if userHash >= rollout {
			return Evaluation{
				FlagKey: flagKey,
				Reason:  ReasonOutsideRollout,
				Metadata: map[string]any{
					"rollout":  rollout,
					"userHash": userHash,
				},
			}
		}
	}

	return Evaluation{
		FlagKey: flagKey,
		Enabled: true,
		Reason:  ReasonEnabled,
		Metadata: map[string]any{
			"rollout":    flag.RolloutPercent(),
			"conditions": len(flag.Conditions),
		},
	}
}

// EvaluateAll evaluates every registered flag against ctx. When keys is
// non-empty only those flags are evaluated; unknown keys are skipped.
func (e *Evaluator) EvaluateAll(ctx *evalctx.Context, keys []string) []Evaluation {
	if len(keys) > 0 {
		results := make([]Evaluation, 0, len(keys))
		for _, key := range keys {
			e.mu.RLock()
			_, exists := e.flags[key]
			e.mu.RUnlock()
			if exists {
				results = append(results, e.Evaluate(key, ctx))
			}
		}
		return results
	}

	e.mu.RLock()
	all := make([]string, 0, len(e.flags))
	for key := range e.flags {
		all = append(all, key)
	}
	e.mu.RUnlock()

	results := make([]Evaluation, 0, len(all))
	for _, key := range all {
		results = append(results, e.Evaluate(key, ctx))
	}
	return results
}

func (e *Evaluator) evaluateCondition(c Condition, ctx *evalctx.Context, now time.Time) bool {
	switch c.Type {
	case ConditionUserRole:
		return condition.Evaluate(c.Operator, contextString(ctx, func(u *evalctx.User) string { return u.Role }), c.Value)
	case ConditionUserID:
		return condition.Evaluate(c.Operator, contextString(ctx, func(u *evalctx.User) string { return u.ID }), c.Value)
	case ConditionEnvironment:
		env := ctx.Environment
		if env == "" {
			env = e.defaultEnv
		}
		return condition.Evaluate(c.Operator, env, c.Value)
	case ConditionCountry:
		return condition.Evaluate(c.Operator, contextString(ctx, func(u *evalctx.User) string { return u.Country }), c.Value)
	case ConditionDateRange:
		return evaluateDateCondition(c, now)
	default:
		return false
	}
}

// evaluateDateCondition compares the evaluation date against the condition's
// target date using greater_than / less_than semantics. Other operators and
// unparseable targets fail the condition.
func evaluateDateCondition(c Condition, now time.Time) bool {
	raw, err := cast.ToStringE(c.Value)
	if err != nil {
		return false
	}
	target, err := parseDate(raw)
	if err != nil {
		return false
	}
	switch c.Operator {
	case condition.OpGreaterThan:
		return now.After(target)
	case condition.OpLessThan:
		return now.Before(target)
	default:
		return false
	}
}

func parseDate(raw string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", raw)
}

func withinDateRange(f *Flag, now time.Time) bool {
	if f.StartDate != nil && now.Before(*f.StartDate) {
		return false
	}
	if f.EndDate != nil && now.After(*f.EndDate) {
		return false
	}
	return true
}

func currentDate(ctx *evalctx.Context) time.Time {
	if ctx != nil && !ctx.CurrentDate.IsZero() {
		return ctx.CurrentDate
	}
	return time.Now()
}

func contextString(ctx *evalctx.Context, field func(*evalctx.User) string) any {
	if ctx == nil || ctx.User == nil {
		return nil
	}
	if v := field(ctx.User); v != "" {
		return v
	}
	return nil
}

// matchesExpression applies a JSON Logic rule to the flattened context.
// Invalid expressions fail closed.
func matchesExpression(expression string, ctx *evalctx.Context) bool {
	data, err := json.Marshal(ctx.Flatten())
	if err != nil {
		return false
	}

	var out bytes.Buffer
	if err := jsonlogic.Apply(strings.NewReader(expression), bytes.NewReader(data), &out); err != nil {
		return false
	}

	var result any
	if err := json.Unmarshal(out.Bytes(), &result); err != nil {
		return false
	}
	b, ok := result.(bool)
	return ok && b
}

// AddFlag registers or replaces a flag.
func (e *Evaluator) AddFlag(f Flag) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.flags[f.Key] = f
}

// RemoveFlag deletes a flag. Removing an unknown key is a no-op.
func (e *Evaluator) RemoveFlag(flagKey string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.flags, flagKey)
}

// UpdateFlag shallow-merges the patch into an existing flag. Updating an
// unknown key is a no-op; the returned bool reports whether a flag matched.
func (e *Evaluator) UpdateFlag(flagKey string, patch Update) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	f, ok := e.flags[flagKey]
	if !ok {
		return false
	}
	if patch.Name != nil {
		f.Name = *patch.Name
	}
	if patch.Description != nil {
		f.Description = *patch.Description
	}
	if patch.Enabled != nil {
		f.Enabled = *patch.Enabled
	}
	if patch.Rollout != nil {
		f.Rollout = patch.Rollout
	}
	if patch.Conditions != nil {
		f.Conditions = *patch.Conditions
	}
	if patch.Expression != nil {
		f.Expression = patch.Expression
	}
	if patch.StartDate != nil {
		f.StartDate = patch.StartDate
	}
	if patch.EndDate != nil {
		f.EndDate = patch.EndDate
	}
	e.flags[flagKey] = f
	return true
}

// GetFlag returns a copy of the flag for key.
func (e *Evaluator) GetFlag(flagKey string) (Flag, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	f, ok := e.flags[flagKey]
	return f, ok
}

// GetAllFlags returns a snapshot list of all registered flags.
func (e *Evaluator) GetAllFlags() []Flag {
	e.mu.RLock()
	defer e.mu.RUnlock()
	result := make([]Flag, 0, len(e.flags))
	for _, f := range e.flags {
		result = append(result, f)
	}
	return result
}
