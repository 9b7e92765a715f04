// Package checkpoint persists which input files a run has fully converted so
// an interrupted run can resume at whole-file granularity.
package checkpoint

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"time"

	"github.com/dshills/catalogconv/internal/config"
)

var (
	// ErrNotFound is returned by Load when no checkpoint exists for the run
	ErrNotFound = errors.New("checkpoint not found")
	// ErrUnknownBackend is returned for an unsupported backend name
	ErrUnknownBackend = errors.New("unknown checkpoint backend")
)

// Backend names
const (
	BackendJSON   = "json"
	BackendSQLite = "sqlite"
)

// Record is the persisted state of one run
type Record struct {
	RunKey    string    `json:"run_key"`
	InputDir  string    `json:"input_dir"`
	OutputDir string    `json:"output_dir"`
	Completed []string  `json:"completed_files"`
	Processed int64     `json:"processed_records"`
	Written   int64     `json:"written_records"`
	Failed    int64     `json:"failed_records"`
	StartedAt time.Time `json:"started_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Store loads and saves the checkpoint of a single run
type Store interface {
	// Load returns ErrNotFound when nothing was saved
	Load(ctx context.Context) (*Record, error)
	Save(ctx context.Context, rec *Record) error
	Delete(ctx context.Context) error
	Close() error
}

// RunKey identifies a run by its input and output directories
func RunKey(inputDir, outputDir string) string {
	in, err := filepath.Abs(inputDir)
	if err != nil {
		in = inputDir
	}
	out, err := filepath.Abs(outputDir)
	if err != nil {
		out = outputDir
	}
	sum := sha256.Sum256([]byte(in + "|" + out))
	return hex.EncodeToString(sum[:])[:16]
}

// Open returns the configured store for a run
func Open(cfg config.CheckpointConfig, runKey string) (Store, error) {
	switch cfg.Backend {
	case BackendJSON, "":
		return NewJSONStore(cfg.Dir, runKey)
	case BackendSQLite:
		return NewSQLiteStore(filepath.Join(cfg.Dir, SQLiteFile), runKey)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownBackend, cfg.Backend)
	}
}

func (r *Record) clone() *Record {
	c := *r
	c.Completed = append([]string(nil), r.Completed...)
	return &c
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
