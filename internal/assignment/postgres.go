package assignment

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore is a PostgreSQL-backed Store implementation for deployments
// where assignments must survive process restarts across instances.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// Schema is the DDL for the assignments table. Applied out of band.
const Schema = `
CREATE TABLE IF NOT EXISTS assignments (
    experiment_id TEXT        NOT NULL,
    variant_id    TEXT        NOT NULL,
    assigned_at   TIMESTAMPTZ NOT NULL,
    user_id       TEXT        NOT NULL DEFAULT '',
    session_id    TEXT        NOT NULL,
    PRIMARY KEY (experiment_id, user_id, session_id)
);`

// NewPostgresStore creates a PostgreSQL-backed assignment mirror.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Load reads all assignments from the database.
func (p *PostgresStore) Load(ctx context.Context) ([]Assignment, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT experiment_id, variant_id, assigned_at, user_id, session_id FROM assignments`)
	if err != nil {
		return nil, fmt.Errorf("failed to query assignments: %w", err)
	}
	defer rows.Close()

	var assignments []Assignment
	for rows.Next() {
		var a Assignment
		if err := rows.Scan(&a.ExperimentID, &a.VariantID, &a.AssignedAt, &a.UserID, &a.SessionID); err != nil {
			return nil, fmt.Errorf("failed to scan assignment: %w", err)
		}
		assignments = append(assignments, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read assignments: %w", err)
	}
	return assignments, nil
}

// Append inserts one assignment. Conflicting rows are left untouched: the
// first write for an identity wins, matching sticky-assignment semantics.
func (p *PostgresStore) Append(ctx context.Context, a Assignment) error {
	_, err := p.pool.Exec(ctx,
		`INSERT INTO assignments (experiment_id, variant_id, assigned_at, user_id, session_id)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (experiment_id, user_id, session_id) DO NOTHING`,
		a.ExperimentID, a.VariantID, a.AssignedAt, a.UserID, a.SessionID)
	if err != nil {
		return fmt.Errorf("failed to insert assignment: %w", err)
	}
	return nil
}

// Close releases the connection pool.
func (p *PostgresStore) Close() error {
	p.pool.Close()
	return nil
}
