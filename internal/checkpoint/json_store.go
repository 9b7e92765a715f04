package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	json "github.com/goccy/go-json"
)

// JSONSuffix ends the file name of every JSON checkpoint
const JSONSuffix = ".checkpoint.json"

// JSONStore keeps the checkpoint in <dir>/<runkey>.checkpoint.json
type JSONStore struct {
	path string
}

// NewJSONStore creates dir if needed
func NewJSONStore(dir, runKey string) (*JSONStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create checkpoint dir: %w", err)
	}
	return &JSONStore{path: filepath.Join(dir, runKey+JSONSuffix)}, nil
}

// Path returns the checkpoint file location
func (s *JSONStore) Path() string {
	return s.path
}

func (s *JSONStore) Load(ctx context.Context) (*Record, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("read checkpoint: %w", err)
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decode checkpoint %s: %w", s.path, err)
	}
	return &rec, nil
}

// Save writes to a temp file and renames it over the checkpoint so a crash
// never leaves a truncated document.
func (s *JSONStore) Save(ctx context.Context, rec *Record) error {
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("encode checkpoint: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("write checkpoint: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("replace checkpoint: %w", err)
	}
	return nil
}

func (s *JSONStore) Delete(ctx context.Context) error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("delete checkpoint: %w", err)
	}
	return nil
}

func (s *JSONStore) Close() error {
	return nil
}
