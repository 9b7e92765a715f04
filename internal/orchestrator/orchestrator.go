package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/oklog/ulid/v2"
	"golang.org/x/sync/errgroup"

	"github.com/dshills/catalogconv/internal/checkpoint"
	"github.com/dshills/catalogconv/internal/config"
	"github.com/dshills/catalogconv/internal/embedder"
	"github.com/dshills/catalogconv/internal/enrich"
	"github.com/dshills/catalogconv/internal/normalizer"
	"github.com/dshills/catalogconv/internal/parser"
	"github.com/dshills/catalogconv/internal/pipeline"
	"github.com/dshills/catalogconv/internal/textproc"
	"github.com/dshills/catalogconv/internal/writer"
)

// Orchestrator owns the components of one conversion configuration
type Orchestrator struct {
	cfg      config.Config
	embedder embedder.Embedder
	selector *parser.Selector
	norm     *normalizer.Normalizer
	enricher pipeline.Enricher
	logger   *slog.Logger
}

// New validates cfg and builds the parsing, normalizing and enrichment
// components it describes
func New(cfg config.Config, logger *slog.Logger) (*Orchestrator, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var lex *textproc.Lexicon
	if cfg.Text.LexiconPath != "" {
		l, err := textproc.LoadLexicon(cfg.Text.LexiconPath)
		if err != nil {
			return nil, err
		}
		lex = l
	}

	emb, err := embedder.New(cfg.Embedding)
	if err != nil {
		return nil, fmt.Errorf("create embedder: %w", err)
	}

	return &Orchestrator{
		cfg:      cfg,
		embedder: emb,
		selector: parser.NewSelector(cfg.Processing, logger),
		norm:     normalizer.New(cfg.Normalize, logger),
		enricher: enrich.New(emb, textproc.New(cfg.Text, lex), cfg.Text),
		logger:   logger,
	}, nil
}

// Close releases the embedder
func (o *Orchestrator) Close() error {
	return o.embedder.Close()
}

// Selector exposes format detection for callers that only inspect files
func (o *Orchestrator) Selector() *parser.Selector {
	return o.selector
}

// runState is what the workers of one run share
type runState struct {
	tracker  *checkpoint.Tracker
	proc     *pipeline.Processor
	combined *writer.ShardWriter

	mu          sync.Mutex // guards combinedErr and combined ordering
	combinedErr error

	total   int
	done    atomic.Int32
	records atomic.Int64
}

// Run converts every eligible file. Only run-level problems are returned
// as errors; file and record failures are recorded in the report.
func (o *Orchestrator) Run(ctx context.Context) (*Report, error) {
	cfg := o.cfg
	start := time.Now().UTC()

	files, err := Discover(cfg.Input, reservedDirs(cfg)...)
	if err != nil {
		return nil, err
	}
	if err := checkOutputNames(cfg, files); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(cfg.Output.Dir, 0755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	runKey := checkpoint.RunKey(cfg.Input.Dir, cfg.Output.Dir)
	var store checkpoint.Store
	if cfg.Checkpoint.Enabled {
		store, err = checkpoint.Open(cfg.Checkpoint, runKey)
		if err != nil {
			return nil, fmt.Errorf("open checkpoint: %w", err)
		}
		defer func() {
			_ = store.Close()
		}()
	}
	tracker, err := checkpoint.NewTracker(ctx, store, runKey, cfg.Input.Dir, cfg.Output.Dir, cfg.Checkpoint.Interval, o.logger)
	if err != nil {
		return nil, err
	}

	report := &Report{
		RunID:     ulid.Make().String(),
		RunKey:    runKey,
		StartedAt: start,
		Resumed:   tracker.Resumed(),
		Config:    summarize(cfg),
		Files:     make([]*pipeline.FileResult, len(files)),
	}
	logger := o.logger.With("run_id", report.RunID)
	logger.Info("conversion started",
		"input", cfg.Input.Dir,
		"output", cfg.Output.Dir,
		"files", len(files),
		"concurrency", cfg.Processing.Concurrency,
		"streaming", o.selector.StreamingAvailable(),
		"resumed", report.Resumed)

	st := &runState{
		tracker: tracker,
		proc:    pipeline.New(cfg, o.selector, o.norm, o.enricher, logger),
		total:   len(files),
	}
	st.proc.OnProgress(func(ctx context.Context, n int) {
		if err := tracker.AddProcessed(ctx, n); err != nil {
			logger.Warn("checkpoint save failed", "error", err)
		}
	})

	if cfg.Output.Combined {
		st.combined = writer.New(cfg.Output.Dir, cfg.Output.CombinedName, cfg.Output.ShardSize, logger)
		if err := st.combined.Prepare(); err != nil {
			return nil, err
		}
	}

	monitor := NewMemoryMonitor(cfg.Memory, logger)
	stopMonitor := monitor.Start(ctx)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(cfg.Processing.Concurrency, 1))
	for i, path := range files {
		g.Go(func() error {
			report.Files[i] = o.convert(gctx, st, path, logger)
			return nil
		})
	}
	_ = g.Wait()
	stopMonitor()

	if st.combined != nil {
		report.Combined = &CombinedResult{}
		if err := st.combined.Close(); err != nil && st.combinedErr == nil {
			st.combinedErr = err
		}
		report.Combined.Outputs = st.combined.Outputs()
		report.Combined.Written = st.combined.Written()
		if st.combinedErr != nil {
			report.Combined.Error = st.combinedErr.Error()
		}
	}

	report.FinishedAt = time.Now().UTC()
	report.DurationSeconds = report.FinishedAt.Sub(start).Seconds()
	report.Memory = MemorySummary{PeakBytes: monitor.Peak(), Triggers: monitor.Triggers()}
	report.tally()
	report.Validate()
	if err := report.Write(cfg.Output.Dir); err != nil {
		logger.Error("report not written", "error", err)
	}

	// the checkpoint must survive a cancelled run
	finishCtx := context.WithoutCancel(ctx)
	success := report.Totals.Failed == 0 && ctx.Err() == nil
	if err := tracker.Finish(finishCtx, success); err != nil {
		logger.Warn("checkpoint finish failed", "error", err)
	}

	logger.Info("conversion finished",
		"files", report.Totals.Files,
		"failed_files", report.Totals.Failed,
		"skipped_files", report.Totals.Skipped,
		"records", report.Totals.Records,
		"written", report.Totals.Written,
		"validation_passed", report.Validation.Passed,
		"duration", time.Since(start).Round(time.Millisecond))
	return report, nil
}

// convert runs one file, or reports it skipped when an earlier run
// completed it
func (o *Orchestrator) convert(ctx context.Context, st *runState, path string, logger *slog.Logger) *pipeline.FileResult {
	rel := st.proc.RelPath(path)

	var res *pipeline.FileResult
	if st.tracker.IsComplete(rel) {
		res = o.skipped(rel, path)
		logger.Info("file already converted, skipping", "file", rel)
	} else {
		res = st.proc.ProcessFile(ctx, path)
		if res.Succeeded() {
			if err := st.tracker.MarkComplete(ctx, rel, res.Written, res.Failed); err != nil {
				logger.Warn("checkpoint save failed", "file", rel, "error", err)
			}
		}
	}

	if st.combined != nil && res.Succeeded() {
		st.appendCombined(res)
	}

	done := st.done.Add(1)
	records := st.records.Add(int64(res.Records))
	logger.Info("progress",
		"file", rel,
		"state", res.State,
		"done", fmt.Sprintf("%d/%d", done, st.total),
		"records", humanize.Comma(records))
	return res
}

// skipped describes a file completed by an earlier run from what it left
// in the output directory
func (o *Orchestrator) skipped(rel, path string) *pipeline.FileResult {
	res := &pipeline.FileResult{Path: rel, State: pipeline.StateSkipped}
	outputs, err := writer.Existing(o.cfg.Output.Dir, writer.Basename(o.cfg.Input.Dir, path))
	if err != nil {
		res.Error = err.Error()
		return res
	}
	res.Outputs = outputs
	for _, out := range outputs {
		n, err := writer.CountLines(out)
		if err != nil {
			res.Error = err.Error()
			continue
		}
		res.Written += n
	}
	return res
}

// appendCombined copies a finished file's outputs into the combined
// writer. Files are appended whole, one at a time.
func (st *runState) appendCombined(res *pipeline.FileResult) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.combinedErr != nil {
		return
	}
	if _, err := st.combined.AppendFrom(res.Outputs); err != nil {
		st.combinedErr = fmt.Errorf("%s: %w", res.Path, err)
	}
}
