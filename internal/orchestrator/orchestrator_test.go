package orchestrator

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/catalogconv/internal/checkpoint"
	"github.com/dshills/catalogconv/internal/config"
	"github.com/dshills/catalogconv/internal/pipeline"
	"github.com/dshills/catalogconv/internal/writer"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Input.Dir = t.TempDir()
	cfg.Output.Dir = t.TempDir()
	cfg.Checkpoint.Dir = t.TempDir()
	cfg.Processing.RetryDelay = 0
	cfg.Processing.Concurrency = 2
	cfg.Embedding.Dimension = 16
	cfg.Memory.ThresholdMB = 0
	return cfg
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func run(t *testing.T, cfg config.Config) *Report {
	t.Helper()
	o, err := New(cfg, nil)
	require.NoError(t, err)
	defer func() { _ = o.Close() }()

	report, err := o.Run(context.Background())
	require.NoError(t, err)
	return report
}

func fileByPath(t *testing.T, r *Report, path string) *pipeline.FileResult {
	t.Helper()
	for _, f := range r.Files {
		if f.Path == path {
			return f
		}
	}
	t.Fatalf("no result for %s", path)
	return nil
}

func TestDiscover(t *testing.T) {
	cfg := config.Default().Input
	cfg.Dir = t.TempDir()
	out := filepath.Join(cfg.Dir, "out")

	for _, name := range []string{
		"b.json", "a.json", "nested/c.json", "nested/deeper/d.JSON",
		"notes.txt", "a.json.bak", ".hidden.json", "draft.tmp",
		".cache/e.json", "out/report.json",
	} {
		writeFile(t, cfg.Dir, name, "[]")
	}

	files, err := Discover(cfg, Reserved{Dir: out})
	require.NoError(t, err)

	var rel []string
	for _, f := range files {
		r, err := filepath.Rel(cfg.Dir, f)
		require.NoError(t, err)
		rel = append(rel, filepath.ToSlash(r))
	}
	assert.Equal(t, []string{"a.json", "b.json", "nested/c.json"}, rel)
}

func TestDiscover_RunArtifactsInInputDir(t *testing.T) {
	cfg := testConfig(t)
	cfg.Output.Dir = cfg.Input.Dir
	cfg.Checkpoint.Dir = cfg.Input.Dir
	cfg.Input.Include = []string{"*"}

	for _, name := range []string{
		"a.json", "a.jsonl", "a_shard_001.jsonl",
		ReportPrefix + "01JC0000000000000000000000.json",
		"0f3a.checkpoint.json", checkpoint.SQLiteFile, checkpoint.SQLiteFile + "-wal",
		"nested/" + ReportPrefix + "kept.json",
	} {
		writeFile(t, cfg.Input.Dir, name, "[]")
	}

	files, err := Discover(cfg.Input, reservedDirs(cfg)...)
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(cfg.Input.Dir, "a.json"),
		filepath.Join(cfg.Input.Dir, "nested", ReportPrefix+"kept.json"),
	}, files)
}

func TestCheckOutputNames(t *testing.T) {
	tests := []struct {
		name     string
		files    []string
		combined bool
		wantErr  bool
	}{
		{name: "distinct names", files: []string{"a.json", "b.json", "sub/a.json"}, combined: true},
		{name: "input named like combined", files: []string{"combined.json", "other.json"}, combined: true, wantErr: true},
		{name: "input named like a combined shard", files: []string{"combined_shard_002.json"}, combined: true, wantErr: true},
		{name: "combined name free when disabled", files: []string{"combined.json"}},
		{name: "flattened paths collide", files: []string{"a_b.json", "a/b.json"}, wantErr: true},
		{name: "case-only difference", files: []string{"Lamps.json", "lamps.json"}, wantErr: true},
		{name: "input named like a shard of another", files: []string{"x_shard_001.json", "x.json"}, wantErr: true},
		{name: "shard infix without ordinal", files: []string{"x.json", "x_shard_.json", "x_shard_1a.json"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			cfg.Input.Dir = t.TempDir()
			cfg.Output.Combined = tt.combined
			var files []string
			for _, f := range tt.files {
				files = append(files, filepath.Join(cfg.Input.Dir, filepath.FromSlash(f)))
			}

			err := checkOutputNames(cfg, files)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrOutputNameClash)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestDiscover_Fatal(t *testing.T) {
	cfg := config.Default().Input

	cfg.Dir = filepath.Join(t.TempDir(), "missing")
	_, err := Discover(cfg)
	assert.ErrorIs(t, err, ErrInputDirMissing)

	cfg.Dir = writeFile(t, t.TempDir(), "file.json", "[]")
	_, err = Discover(cfg)
	assert.ErrorIs(t, err, ErrInputDirMissing)

	cfg.Dir = t.TempDir()
	writeFile(t, cfg.Dir, "readme.md", "nothing here")
	_, err = Discover(cfg)
	assert.ErrorIs(t, err, ErrNoInputFiles)
}

func TestEligible(t *testing.T) {
	cfg := config.Default().Input
	tests := []struct {
		name string
		want bool
	}{
		{"catalog.json", true},
		{"catalog.json~", false},
		{".catalog.json", false},
		{"catalog.log", false},
		{"catalog.xml", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Eligible(cfg, tt.name))
		})
	}

	cfg.Include = []string{"feed_*.json"}
	assert.True(t, Eligible(cfg, "feed_1.json"))
	assert.False(t, Eligible(cfg, "catalog.json"))
}

func TestRunLock(t *testing.T) {
	var lock RunLock
	require.True(t, lock.TryAcquire())
	assert.True(t, lock.Held())
	assert.False(t, lock.TryAcquire())
	lock.Release()
	assert.False(t, lock.Held())

	var wg sync.WaitGroup
	acquired := make(chan struct{}, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if lock.TryAcquire() {
				acquired <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(acquired)
	assert.Len(t, acquired, 1)
}

func TestMemoryMonitor(t *testing.T) {
	idle := NewMemoryMonitor(config.MemoryConfig{}, nil)
	assert.False(t, idle.Check())
	idle.Start(context.Background())()

	m := NewMemoryMonitor(config.MemoryConfig{ThresholdMB: 1, SampleInterval: time.Millisecond}, nil)
	assert.True(t, m.Check())
	assert.Equal(t, int64(1), m.Triggers())
	assert.Greater(t, m.Peak(), uint64(1<<20))

	stop := m.Start(context.Background())
	time.Sleep(50 * time.Millisecond)
	stop()
	assert.Greater(t, m.Triggers(), int64(1))
}

func TestRun_ConvertsAndReports(t *testing.T) {
	cfg := testConfig(t)
	cfg.Output.ShardSize = 2
	cfg.Output.Combined = true
	writeFile(t, cfg.Input.Dir, "a.json", `{"products":[{"id":"a1","title":"Lamp"},{"id":"a2","title":"Desk"},{"id":"a3","title":"Chair"}]}`)
	writeFile(t, cfg.Input.Dir, "sub/b.json", `[{"name":"Widget","cost":5},{"cost":1}]`)

	report := run(t, cfg)

	assert.False(t, report.Resumed)
	assert.Equal(t, Totals{
		Files:          2,
		Succeeded:      2,
		Records:        5,
		Written:        4,
		Enriched:       4,
		RecordFailures: 1,
		EnrichmentRate: 0.8,
	}, report.Totals)
	assert.True(t, report.Validation.Passed, report.Validation.Errors)
	assert.Empty(t, report.Validation.Warnings)

	a := fileByPath(t, report, "a.json")
	assert.Equal(t, pipeline.StateCompleted, a.State)
	assert.Len(t, a.Outputs, 2)
	b := fileByPath(t, report, "sub/b.json")
	assert.Equal(t, []string{filepath.Join(cfg.Output.Dir, "sub_b_shard_001.jsonl")}, b.Outputs)

	require.NotNil(t, report.Combined)
	assert.Equal(t, 4, report.Combined.Written)
	assert.Len(t, report.Combined.Outputs, 2)
	assert.Equal(t, filepath.Join(cfg.Output.Dir, "combined_shard_001.jsonl"), report.Combined.Outputs[0])

	require.NotEmpty(t, report.Path)
	assert.Equal(t, filepath.Join(cfg.Output.Dir, ReportPrefix+report.RunID+".json"), report.Path)
	saved, err := ReadReport(report.Path)
	require.NoError(t, err)
	assert.Equal(t, report.RunID, saved.RunID)
	assert.Equal(t, report.Totals, saved.Totals)
	assert.Len(t, saved.Files, 2)

	// a clean run leaves no checkpoint behind
	store, err := checkpoint.Open(cfg.Checkpoint, report.RunKey)
	require.NoError(t, err)
	defer func() { _ = store.Close() }()
	_, err = store.Load(context.Background())
	assert.ErrorIs(t, err, checkpoint.ErrNotFound)
}

func TestRun_ResumesFromCheckpoint(t *testing.T) {
	for _, backend := range []string{checkpoint.BackendJSON, checkpoint.BackendSQLite} {
		t.Run(backend, func(t *testing.T) {
			cfg := testConfig(t)
			cfg.Checkpoint.Backend = backend
			cfg.Output.Combined = true

			// a.json would fail if it were parsed again
			writeFile(t, cfg.Input.Dir, "a.json", `{"products":[`)
			writeFile(t, cfg.Input.Dir, "b.json", `[{"title":"Kettle"}]`)
			writeFile(t, cfg.Output.Dir, "a_shard_001.jsonl", "{\"id\":\"old\"}\n{\"id\":\"older\"}\n")

			runKey := checkpoint.RunKey(cfg.Input.Dir, cfg.Output.Dir)
			store, err := checkpoint.Open(cfg.Checkpoint, runKey)
			require.NoError(t, err)
			require.NoError(t, store.Save(context.Background(), &checkpoint.Record{
				RunKey:    runKey,
				InputDir:  cfg.Input.Dir,
				OutputDir: cfg.Output.Dir,
				Completed: []string{"a.json"},
				Written:   2,
				StartedAt: time.Now().UTC(),
				UpdatedAt: time.Now().UTC(),
			}))
			require.NoError(t, store.Close())

			report := run(t, cfg)

			assert.True(t, report.Resumed)
			a := fileByPath(t, report, "a.json")
			assert.Equal(t, pipeline.StateSkipped, a.State)
			assert.Equal(t, 2, a.Written)
			assert.Equal(t, pipeline.StateCompleted, fileByPath(t, report, "b.json").State)

			assert.Equal(t, 1, report.Totals.Skipped)
			assert.Equal(t, 1, report.Totals.Succeeded)
			assert.Equal(t, 0, report.Totals.Failed)
			assert.Equal(t, 1, report.Totals.Records)
			assert.Equal(t, 3, report.Combined.Written)
			assert.True(t, report.Validation.Passed)
			assert.Empty(t, report.Validation.Warnings)

			store, err = checkpoint.Open(cfg.Checkpoint, runKey)
			require.NoError(t, err)
			defer func() { _ = store.Close() }()
			_, err = store.Load(context.Background())
			assert.ErrorIs(t, err, checkpoint.ErrNotFound)
		})
	}
}

func TestRun_FailedFileKeepsCheckpoint(t *testing.T) {
	cfg := testConfig(t)
	good := writeFile(t, cfg.Input.Dir, "good.json", `[{"title":"Kettle"}]`)
	bad := writeFile(t, cfg.Input.Dir, "bad.json", `not json`)

	first := run(t, cfg)
	assert.Equal(t, 1, first.Totals.Failed)
	assert.Equal(t, pipeline.StateFailed, fileByPath(t, first, "bad.json").State)
	assert.NotEmpty(t, fileByPath(t, first, "bad.json").Error)

	store, err := checkpoint.Open(cfg.Checkpoint, first.RunKey)
	require.NoError(t, err)
	rec, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"good.json"}, rec.Completed)
	require.NoError(t, store.Close())

	// fix the broken file and make the finished one unreadable
	require.NoError(t, os.WriteFile(bad, []byte(`[{"title":"Toaster"}]`), 0644))
	require.NoError(t, os.WriteFile(good, []byte(`{`), 0644))

	second := run(t, cfg)
	assert.Equal(t, pipeline.StateSkipped, fileByPath(t, second, "good.json").State)
	assert.Equal(t, pipeline.StateCompleted, fileByPath(t, second, "bad.json").State)
	assert.Equal(t, 0, second.Totals.Failed)
}

func TestRun_FatalErrors(t *testing.T) {
	cfg := testConfig(t)
	cfg.Input.Dir = filepath.Join(cfg.Input.Dir, "missing")
	o, err := New(cfg, nil)
	require.NoError(t, err)
	_, err = o.Run(context.Background())
	assert.ErrorIs(t, err, ErrInputDirMissing)

	cfg = testConfig(t)
	o, err = New(cfg, nil)
	require.NoError(t, err)
	_, err = o.Run(context.Background())
	assert.ErrorIs(t, err, ErrNoInputFiles)

	cfg.Processing.Concurrency = 0
	_, err = New(cfg, nil)
	assert.Error(t, err)
}

func TestRun_CombinedNameClash(t *testing.T) {
	cfg := testConfig(t)
	cfg.Output.Combined = true
	cfg.Output.ShardSize = 0
	writeFile(t, cfg.Input.Dir, cfg.Output.CombinedName+".json", `[{"title":"A"},{"title":"B"},{"title":"C"}]`)
	writeFile(t, cfg.Input.Dir, "other.json", `[{"title":"D"},{"title":"E"},{"title":"F"}]`)

	o, err := New(cfg, nil)
	require.NoError(t, err)
	defer func() { _ = o.Close() }()

	_, err = o.Run(context.Background())
	require.ErrorIs(t, err, ErrOutputNameClash)
	assert.Contains(t, err.Error(), cfg.Output.CombinedName+".json")

	entries, err := os.ReadDir(cfg.Output.Dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "nothing is written before the clash is reported")
}

func TestRun_OutputDirIsInputDir(t *testing.T) {
	cfg := testConfig(t)
	cfg.Output.Dir = cfg.Input.Dir
	writeFile(t, cfg.Input.Dir, "a.json", `[{"title":"Lamp"},{"title":"Desk"}]`)

	first := run(t, cfg)
	require.Len(t, first.Files, 1)
	require.FileExists(t, first.Path)

	second := run(t, cfg)
	require.Len(t, second.Files, 1)
	assert.Equal(t, "a.json", second.Files[0].Path)
	assert.Equal(t, first.Totals.Records, second.Totals.Records)
	assert.Equal(t, 2, second.Totals.Written)
	assert.True(t, second.Validation.Passed, second.Validation.Errors)
}

func TestReport_Validate(t *testing.T) {
	dir := t.TempDir()
	out := writeFile(t, dir, "x_shard_001.jsonl", "{}\n{}\n")

	r := &Report{Files: []*pipeline.FileResult{
		{Path: "x.json", State: pipeline.StateCompleted, Records: 3, Written: 2, Failed: 1, Enriched: 2, Outputs: []string{out}},
	}}
	r.tally()
	r.Validate()
	assert.True(t, r.Validation.Passed)
	assert.Empty(t, r.Validation.Warnings)

	r.Files[0].Enriched = 5
	r.Files[0].Outputs = append(r.Files[0].Outputs, filepath.Join(dir, "gone.jsonl"))
	r.tally()
	r.Validate()
	assert.False(t, r.Validation.Passed)
	assert.Len(t, r.Validation.Errors, 2)
	assert.Len(t, r.Validation.Warnings, 1)

	r.Files[0].Enriched = 1
	r.Files[0].Written = 1
	r.Files[0].Outputs = []string{out}
	r.tally()
	r.Validate()
	assert.False(t, r.Validation.Passed)
	assert.Contains(t, r.Validation.Errors[0], "written 1 != records 3 - failed 1")
	assert.Contains(t, r.Validation.Warnings[0], "outputs hold 2 lines")
}

func TestWriteSummary(t *testing.T) {
	r := &Report{
		RunID:           "01TEST",
		DurationSeconds: 1.5,
		Files: []*pipeline.FileResult{
			{Path: "ok.json", State: pipeline.StateCompleted, Records: 1200, Written: 1200, Enriched: 1200},
			{Path: "bad.json", State: pipeline.StateFailed, Error: "invalid JSON"},
		},
		Validation: Validation{Passed: true, Warnings: []string{"something odd"}},
	}
	r.tally()

	var buf bytes.Buffer
	require.NoError(t, WriteSummary(&buf, r))
	out := buf.String()
	assert.Contains(t, out, "2 total, 1 converted, 1 failed")
	assert.Contains(t, out, "1,200 read")
	assert.Contains(t, out, "(100%)")
	assert.Contains(t, out, "FAILED     bad.json: invalid JSON")
	assert.Contains(t, out, "WARNING    something odd")
}

func TestSkippedFileOutputs(t *testing.T) {
	cfg := testConfig(t)
	cfg.Output.ShardSize = 1
	path := writeFile(t, cfg.Input.Dir, "cat/a.json", `[]`)
	writeFile(t, cfg.Output.Dir, "cat_a_shard_001.jsonl", "{}\n")
	writeFile(t, cfg.Output.Dir, "cat_a_shard_002.jsonl", "{}\n")
	writeFile(t, cfg.Output.Dir, "cat_ab_shard_001.jsonl", "{}\n")

	o, err := New(cfg, nil)
	require.NoError(t, err)
	res := o.skipped("cat/a.json", path)
	assert.Equal(t, pipeline.StateSkipped, res.State)
	assert.Equal(t, 2, res.Written)
	assert.Equal(t, []string{
		writer.ShardPath(cfg.Output.Dir, "cat_a", 1, 0),
		writer.ShardPath(cfg.Output.Dir, "cat_a", 1, 1),
	}, res.Outputs)
}
