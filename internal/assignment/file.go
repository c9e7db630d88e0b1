package assignment

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// FileStore mirrors assignments to a single JSON file holding the serialized
// assignment list. Append rewrites the whole list, matching the
// read-once-at-init, append-on-write discipline of a browser local-storage
// mirror. Last writer wins per process; there is no reconciliation.
type FileStore struct {
	mu   sync.Mutex
	path string
}

// NewFileStore creates a file-backed store at path. The parent directory is
// created if missing; the file itself is created on first Append.
func NewFileStore(path string) (*FileStore, error) {
	if path == "" {
		return nil, fmt.Errorf("assignment file path is required")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create assignment directory: %w", err)
		}
	}
	return &FileStore{path: path}, nil
}

// Load reads the full assignment list. A missing file is an empty list, not
// an error.
func (f *FileStore) Load(ctx context.Context) ([]Assignment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.readLocked()
}

// Append reads the current list, adds a, and rewrites the file.
func (f *FileStore) Append(ctx context.Context, a Assignment) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	current, err := f.readLocked()
	if err != nil {
		return err
	}
	current = append(current, a)

	data, err := json.Marshal(current)
	if err != nil {
		return fmt.Errorf("failed to marshal assignments: %w", err)
	}
	if err := os.WriteFile(f.path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write assignment file: %w", err)
	}
	return nil
}

// Close is a no-op for FileStore.
func (f *FileStore) Close() error { return nil }

func (f *FileStore) readLocked() ([]Assignment, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return []Assignment{}, nil
		}
		return nil, fmt.Errorf("failed to read assignment file: %w", err)
	}
	if len(data) == 0 {
		return []Assignment{}, nil
	}

	var assignments []Assignment
	if err := json.Unmarshal(data, &assignments); err != nil {
		return nil, fmt.Errorf("failed to parse assignment file: %w", err)
	}
	return assignments, nil
}
