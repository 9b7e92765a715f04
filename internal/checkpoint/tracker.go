package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Tracker is the run-wide view of completed files and counters. All methods
// are safe for concurrent use; saves are serialized.
type Tracker struct {
	mu        sync.Mutex
	store     Store
	rec       *Record
	completed map[string]struct{}
	interval  int64
	resumed   bool
	logger    *slog.Logger
}

// NewTracker loads any saved state for the run. A nil store tracks in memory
// only, which is how a run with checkpointing disabled behaves.
func NewTracker(ctx context.Context, store Store, runKey, inputDir, outputDir string, interval int, logger *slog.Logger) (*Tracker, error) {
	if logger == nil {
		logger = slog.Default()
	}

	now := time.Now().UTC()
	t := &Tracker{
		store:     store,
		completed: make(map[string]struct{}),
		interval:  int64(interval),
		logger:    logger,
		rec: &Record{
			RunKey:    runKey,
			InputDir:  inputDir,
			OutputDir: outputDir,
			StartedAt: now,
			UpdatedAt: now,
		},
	}

	if store == nil {
		return t, nil
	}

	rec, err := store.Load(ctx)
	switch {
	case errors.Is(err, ErrNotFound):
		return t, nil
	case err != nil:
		return nil, fmt.Errorf("load checkpoint: %w", err)
	}

	t.rec = rec
	t.resumed = true
	for _, path := range rec.Completed {
		t.completed[path] = struct{}{}
	}
	logger.Info("resuming from checkpoint",
		"run_key", runKey,
		"completed_files", len(rec.Completed),
		"updated_at", rec.UpdatedAt)
	return t, nil
}

// Resumed reports whether saved state was found
func (t *Tracker) Resumed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.resumed
}

// IsComplete reports whether path finished in this or a previous run
func (t *Tracker) IsComplete(path string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.completed[path]
	return ok
}

// Completed returns the completed paths, sorted
func (t *Tracker) Completed() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return sortedKeys(t.completed)
}

// Snapshot returns a copy of the current record
func (t *Tracker) Snapshot() *Record {
	t.mu.Lock()
	defer t.mu.Unlock()
	rec := t.rec.clone()
	rec.Completed = sortedKeys(t.completed)
	return rec
}

// MarkComplete records a fully converted file and persists immediately
func (t *Tracker) MarkComplete(ctx context.Context, path string, written, failed int) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.completed[path] = struct{}{}
	t.rec.Written += int64(written)
	t.rec.Failed += int64(failed)
	return t.saveLocked(ctx)
}

// AddProcessed counts processed records and persists each time the total
// crosses a multiple of the interval.
func (t *Tracker) AddProcessed(ctx context.Context, n int) error {
	if n <= 0 {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	before := t.rec.Processed
	t.rec.Processed += int64(n)
	if t.interval <= 0 || before/t.interval == t.rec.Processed/t.interval {
		return nil
	}
	return t.saveLocked(ctx)
}

// Finish deletes the checkpoint after a fully successful run. Otherwise the
// latest state is saved for the next run to resume from.
func (t *Tracker) Finish(ctx context.Context, success bool) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.store == nil {
		return nil
	}
	if success {
		if err := t.store.Delete(ctx); err != nil {
			return err
		}
		t.logger.Debug("checkpoint removed", "run_key", t.rec.RunKey)
		return nil
	}
	return t.saveLocked(ctx)
}

func (t *Tracker) saveLocked(ctx context.Context) error {
	if t.store == nil {
		return nil
	}
	t.rec.UpdatedAt = time.Now().UTC()
	rec := t.rec.clone()
	rec.Completed = sortedKeys(t.completed)
	if err := t.store.Save(ctx, rec); err != nil {
		return fmt.Errorf("save checkpoint: %w", err)
	}
	return nil
}
