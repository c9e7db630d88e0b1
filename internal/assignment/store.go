// Package assignment defines sticky experiment assignments and the durable
// mirror they are written through to. The experiment engine owns the
// in-memory assignment map; the mirror is an injected capability read once
// at engine construction and appended to on every new assignment.
// Persistence is best-effort: mirror failures are warnings, never fatal to
// an evaluation.
package assignment

import (
	"context"
	"time"
)

// Assignment is a persisted variant decision for an identity. At most one
// live assignment exists per (experiment, userId-or-sessionId) pair.
type Assignment struct {
	ExperimentID string    `json:"experimentId"`
	VariantID    string    `json:"variantId"`
	AssignedAt   time.Time `json:"assignedAt"`
	UserID       string    `json:"userId,omitempty"`
	SessionID    string    `json:"sessionId"`
}

// Key returns the composite key the engine indexes assignments under:
// experiment id plus the user id, falling back to the session id.
func (a Assignment) Key() string {
	identity := a.UserID
	if identity == "" {
		identity = a.SessionID
	}
	return a.ExperimentID + "-" + identity
}

// Store is the durable mirror for assignments.
// Implementations must be safe for concurrent use.
type Store interface {
	// Load reads the full assignment list. Called once at engine construction.
	Load(ctx context.Context) ([]Assignment, error)

	// Append adds one assignment to the mirror.
	Append(ctx context.Context, a Assignment) error

	// Close releases any resources held by the store.
	Close() error
}
