package checkpoint

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/catalogconv/internal/config"
)

func stores(t *testing.T) map[string]Store {
	t.Helper()
	dir := t.TempDir()

	js, err := NewJSONStore(dir, "run1")
	require.NoError(t, err)

	sq, err := NewSQLiteStore(filepath.Join(dir, SQLiteFile), "run1")
	require.NoError(t, err)
	t.Cleanup(func() { _ = sq.Close() })

	return map[string]Store{BackendJSON: js, BackendSQLite: sq}
}

func TestStores_RoundTrip(t *testing.T) {
	ctx := context.Background()
	started := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			_, err := store.Load(ctx)
			assert.ErrorIs(t, err, ErrNotFound)

			rec := &Record{
				RunKey:    "run1",
				InputDir:  "/in",
				OutputDir: "/out",
				Completed: []string{"a.json", "b.json"},
				Processed: 120,
				Written:   118,
				Failed:    2,
				StartedAt: started,
				UpdatedAt: started.Add(time.Minute),
			}
			require.NoError(t, store.Save(ctx, rec))

			got, err := store.Load(ctx)
			require.NoError(t, err)
			assert.Equal(t, rec.Completed, got.Completed)
			assert.Equal(t, int64(120), got.Processed)
			assert.Equal(t, int64(118), got.Written)
			assert.Equal(t, int64(2), got.Failed)
			assert.True(t, rec.StartedAt.Equal(got.StartedAt))

			rec.Completed = append(rec.Completed, "c.json")
			rec.Processed = 200
			require.NoError(t, store.Save(ctx, rec))
			got, err = store.Load(ctx)
			require.NoError(t, err)
			assert.Equal(t, []string{"a.json", "b.json", "c.json"}, got.Completed)
			assert.Equal(t, int64(200), got.Processed)

			require.NoError(t, store.Delete(ctx))
			_, err = store.Load(ctx)
			assert.ErrorIs(t, err, ErrNotFound)
			require.NoError(t, store.Delete(ctx))
		})
	}
}

func TestSQLiteStore_SeparatesRuns(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), SQLiteFile)

	a, err := NewSQLiteStore(path, "a")
	require.NoError(t, err)
	require.NoError(t, a.Save(ctx, &Record{Completed: []string{"x.json"}}))
	require.NoError(t, a.Close())

	b, err := NewSQLiteStore(path, "b")
	require.NoError(t, err)
	defer func() { _ = b.Close() }()
	_, err = b.Load(ctx)
	assert.ErrorIs(t, err, ErrNotFound)

	version, err := SchemaVersion(ctx, b.db)
	require.NoError(t, err)
	assert.Equal(t, CurrentSchemaVersion, version)
}

func TestApplyMigrations_Idempotent(t *testing.T) {
	ctx := context.Background()
	s, err := NewSQLiteStore(":memory:", "k")
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	require.NoError(t, ApplyMigrations(ctx, s.db))
	var n int
	require.NoError(t, s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM schema_version").Scan(&n))
	assert.Equal(t, len(AllMigrations), n)
}

func TestRunKey(t *testing.T) {
	a := RunKey("in", "out")
	assert.Len(t, a, 16)
	assert.Equal(t, a, RunKey("in", "out"))
	assert.NotEqual(t, a, RunKey("in", "out2"))
}

func TestOpen(t *testing.T) {
	dir := t.TempDir()

	s, err := Open(config.CheckpointConfig{Backend: BackendJSON, Dir: dir}, "k")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "k.checkpoint.json"), s.(*JSONStore).Path())

	s, err = Open(config.CheckpointConfig{Backend: BackendSQLite, Dir: dir}, "k")
	require.NoError(t, err)
	require.NoError(t, s.Close())
	_, err = os.Stat(filepath.Join(dir, SQLiteFile))
	assert.NoError(t, err)

	_, err = Open(config.CheckpointConfig{Backend: "redis", Dir: dir}, "k")
	assert.ErrorIs(t, err, ErrUnknownBackend)
}

// countingStore records how many times Save was called
type countingStore struct {
	mu    sync.Mutex
	saves int
	last  *Record
	gone  bool
}

func (c *countingStore) Load(ctx context.Context) (*Record, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.last == nil {
		return nil, ErrNotFound
	}
	return c.last.clone(), nil
}

func (c *countingStore) Save(ctx context.Context, rec *Record) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.saves++
	c.last = rec.clone()
	return nil
}

func (c *countingStore) Delete(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gone = true
	c.last = nil
	return nil
}

func (c *countingStore) Close() error { return nil }

func TestTracker_IntervalSaves(t *testing.T) {
	ctx := context.Background()
	store := &countingStore{}
	tr, err := NewTracker(ctx, store, "k", "in", "out", 100, nil)
	require.NoError(t, err)
	assert.False(t, tr.Resumed())

	require.NoError(t, tr.AddProcessed(ctx, 60))
	assert.Equal(t, 0, store.saves)
	require.NoError(t, tr.AddProcessed(ctx, 60)) // crosses 100
	assert.Equal(t, 1, store.saves)
	require.NoError(t, tr.AddProcessed(ctx, 250)) // crosses 200 and 300 in one step
	assert.Equal(t, 2, store.saves)
	assert.Equal(t, int64(370), store.last.Processed)

	require.NoError(t, tr.MarkComplete(ctx, "a.json", 10, 1))
	assert.Equal(t, 3, store.saves)
	assert.Equal(t, []string{"a.json"}, store.last.Completed)
}

func TestTracker_ResumeAndFinish(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	store, err := NewJSONStore(dir, "k")
	require.NoError(t, err)

	first, err := NewTracker(ctx, store, "k", "in", "out", 10, nil)
	require.NoError(t, err)
	require.NoError(t, first.MarkComplete(ctx, "a.json", 5, 0))
	require.NoError(t, first.Finish(ctx, false))

	second, err := NewTracker(ctx, store, "k", "in", "out", 10, nil)
	require.NoError(t, err)
	assert.True(t, second.Resumed())
	assert.True(t, second.IsComplete("a.json"))
	assert.False(t, second.IsComplete("b.json"))

	require.NoError(t, second.MarkComplete(ctx, "b.json", 3, 0))
	assert.Equal(t, []string{"a.json", "b.json"}, second.Completed())
	assert.Equal(t, int64(8), second.Snapshot().Written)

	require.NoError(t, second.Finish(ctx, true))
	_, err = store.Load(ctx)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestTracker_ConcurrentMarks(t *testing.T) {
	ctx := context.Background()
	store := &countingStore{}
	tr, err := NewTracker(ctx, store, "k", "in", "out", 1, nil)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, tr.AddProcessed(ctx, 1))
			assert.NoError(t, tr.MarkComplete(ctx, filepath.Join("f", string(rune('a'+i))), 1, 0))
		}(i)
	}
	wg.Wait()

	snap := tr.Snapshot()
	assert.Len(t, snap.Completed, 20)
	assert.Equal(t, int64(20), snap.Processed)
	assert.Equal(t, int64(20), snap.Written)
}

func TestTracker_NilStore(t *testing.T) {
	ctx := context.Background()
	tr, err := NewTracker(ctx, nil, "k", "in", "out", 1, nil)
	require.NoError(t, err)
	require.NoError(t, tr.MarkComplete(ctx, "a.json", 1, 0))
	assert.True(t, tr.IsComplete("a.json"))
	require.NoError(t, tr.Finish(ctx, true))
}
