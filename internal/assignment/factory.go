package assignment

import (
	"context"
	"fmt"

	"variantcore/internal/db"
)

// NewStore creates a durable assignment mirror based on the given store type.
// Supported types: "memory", "file", "postgres".
func NewStore(ctx context.Context, storeType, filePath, dbDSN string) (Store, error) {
	switch storeType {
	case "memory":
		return NewMemoryStore(), nil
	case "file":
		return NewFileStore(filePath)
	case "postgres":
		pool, err := db.NewPool(ctx, dbDSN)
		if err != nil {
			return nil, fmt.Errorf("failed to create postgres pool: %w", err)
		}
		return NewPostgresStore(pool), nil
	default:
		return nil, fmt.Errorf("unsupported assignment store type: %s", storeType)
	}
}
