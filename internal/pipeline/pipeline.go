package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/dshills/catalogconv/internal/config"
	"github.com/dshills/catalogconv/internal/normalizer"
	"github.com/dshills/catalogconv/internal/parser"
	"github.com/dshills/catalogconv/internal/retry"
	"github.com/dshills/catalogconv/internal/writer"
	"github.com/dshills/catalogconv/pkg/types"
)

// ErrRecordPanic wraps a panic recovered while processing a record
var ErrRecordPanic = errors.New("record processing panicked")

// State is the lifecycle stage of one input file
type State string

const (
	StateDiscovered      State = "discovered"
	StateParsing         State = "parsing"
	StateBatchProcessing State = "batch_processing"
	StateSharding        State = "sharding"
	StateCompleted       State = "completed"
	StateFailed          State = "failed"
	// StateSkipped marks a file completed by an earlier run
	StateSkipped State = "skipped"
)

// FileResult reports the outcome of one input file
type FileResult struct {
	Path         string          `json:"path"`
	State        State           `json:"state"`
	Format       types.Format    `json:"format,omitempty"`
	Strategy     parser.Strategy `json:"strategy,omitempty"`
	Records      int             `json:"records"`
	Written      int             `json:"written"`
	Enriched     int             `json:"enriched"`
	Failed       int             `json:"failed"`
	EnrichFailed int             `json:"enrich_failed"`
	Skipped      int             `json:"skipped_elements"`
	Outputs      []string        `json:"outputs,omitempty"`
	Duration     time.Duration   `json:"-"`
	Seconds      float64         `json:"duration_seconds"`
	Error        string          `json:"error,omitempty"`
}

// Succeeded reports whether the file was converted, now or by an earlier run
func (r *FileResult) Succeeded() bool {
	return r.State == StateCompleted || r.State == StateSkipped
}

// Enricher adds generated attributes to a product, leaving it untouched on error
type Enricher interface {
	Enrich(ctx context.Context, p *types.Product) error
}

// ProgressFunc is told how many records were just processed
type ProgressFunc func(ctx context.Context, n int)

// Processor runs files through parse, normalize, enrich and write
type Processor struct {
	selector   *parser.Selector
	normalizer *normalizer.Normalizer
	enricher   Enricher
	inputDir   string
	outputDir  string
	batchSize  int
	shardSize  int
	retry      retry.Config
	progress   ProgressFunc
	logger     *slog.Logger
}

// New creates a processor. A nil enricher writes records without generated
// attributes.
func New(cfg config.Config, sel *parser.Selector, norm *normalizer.Normalizer, enr Enricher, logger *slog.Logger) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	batch := cfg.Processing.BatchSize
	if batch <= 0 {
		batch = 1000
	}
	return &Processor{
		selector:   sel,
		normalizer: norm,
		enricher:   enr,
		inputDir:   cfg.Input.Dir,
		outputDir:  cfg.Output.Dir,
		batchSize:  batch,
		shardSize:  cfg.Output.ShardSize,
		retry:      retry.Fixed(cfg.Processing.RetryAttempts, cfg.Processing.RetryDelay),
		logger:     logger,
	}
}

// OnProgress registers fn to be called after each batch
func (p *Processor) OnProgress(fn ProgressFunc) {
	p.progress = fn
}

// RelPath returns path relative to the input directory
func (p *Processor) RelPath(path string) string {
	rel, err := filepath.Rel(p.inputDir, path)
	if err != nil {
		return path
	}
	return filepath.ToSlash(rel)
}

// fileRun carries the per-file state of one ProcessFile call
type fileRun struct {
	*FileResult
	logger *slog.Logger
}

func (f *fileRun) transition(s State) {
	f.logger.Debug("file state", "from", f.State, "to", s)
	f.State = s
}

func (f *fileRun) fail(err error) *FileResult {
	f.Error = err.Error()
	f.transition(StateFailed)
	f.logger.Error("file failed", "state", StateFailed, "error", err)
	return f.FileResult
}

// ProcessFile converts one input file. File-level failures are reported in
// the result, never returned, so a bad file cannot stop the run.
func (p *Processor) ProcessFile(ctx context.Context, path string) *FileResult {
	start := time.Now()
	rel := p.RelPath(path)
	run := &fileRun{
		FileResult: &FileResult{Path: rel, State: StateDiscovered},
		logger:     p.logger.With("file", rel),
	}
	defer func() {
		run.Duration = time.Since(start)
		run.Seconds = run.Duration.Seconds()
	}()

	run.transition(StateParsing)
	res, err := p.selector.Open(path)
	if err != nil {
		return run.fail(err)
	}
	defer func() {
		_ = res.Records.Close()
	}()

	run.Format = res.Format
	run.Strategy = res.Strategy
	mapper := p.normalizer.ForFormat(res.Format)

	w := writer.New(p.outputDir, writer.Basename(p.inputDir, path), p.shardSize, run.logger)
	if err := w.Prepare(); err != nil {
		return run.fail(err)
	}

	run.transition(StateBatchProcessing)
	err = p.processBatches(ctx, run, res.Records, mapper, w)
	run.Skipped = res.Records.Skipped()
	if err != nil {
		_ = w.Close()
		run.Outputs = w.Outputs()
		return run.fail(err)
	}

	if p.shardSize > 0 {
		run.transition(StateSharding)
	}
	if err := w.Close(); err != nil {
		run.Outputs = w.Outputs()
		return run.fail(fmt.Errorf("close output: %w", err))
	}
	run.Outputs = w.Outputs()

	run.transition(StateCompleted)
	run.logger.Info("file converted",
		"format", run.Format,
		"strategy", run.Strategy,
		"records", run.Records,
		"written", run.Written,
		"failed", run.Failed,
		"enrich_failed", run.EnrichFailed,
		"shards", len(run.Outputs))
	return run.FileResult
}

func (p *Processor) processBatches(ctx context.Context, run *fileRun, src parser.Source, mapper *normalizer.Mapper, w *writer.ShardWriter) error {
	batch := make([]map[string]any, 0, p.batchSize)
	index := 0

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		batch = batch[:0]
		var readErr error
		for len(batch) < p.batchSize {
			raw, err := src.Next()
			if err != nil {
				readErr = err
				break
			}
			batch = append(batch, raw)
		}

		if len(batch) > 0 {
			lines := make([][]byte, 0, len(batch))
			for _, raw := range batch {
				ref := normalizer.RecordRef{Source: run.Path, Index: index}
				index++
				run.Records++
				if line, ok := p.processRecord(ctx, run, mapper, raw, ref); ok {
					lines = append(lines, line)
				}
			}
			if err := w.WriteLines(lines); err != nil {
				return err
			}
			run.Written += len(lines)
			if p.progress != nil {
				p.progress(ctx, len(batch))
			}
		}

		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				return nil
			}
			return readErr
		}
	}
}

// processRecord returns the encoded line, or false when the record is dropped
func (p *Processor) processRecord(ctx context.Context, run *fileRun, mapper *normalizer.Mapper, raw map[string]any, ref normalizer.RecordRef) ([]byte, bool) {
	product, err := retry.Do(ctx, p.retry, func() (*types.Product, error) {
		return safeNormalize(mapper, raw, ref)
	})
	if err != nil {
		run.Failed++
		run.logger.Warn("record dropped", "product_id", rawID(raw), "index", ref.Index, "error", err)
		return nil, false
	}

	enriched := false
	if p.enricher != nil {
		err := retry.Run(ctx, p.retry, func() error {
			return safeEnrich(ctx, p.enricher, product)
		})
		if err != nil {
			run.EnrichFailed++
			run.logger.Warn("record not enriched", "product_id", product.ID, "error", err)
		} else {
			enriched = true
		}
	}

	line, err := writer.Encode(product)
	if err != nil {
		run.Failed++
		run.logger.Warn("record not encodable", "product_id", product.ID, "error", err)
		return nil, false
	}
	if enriched {
		run.Enriched++
	}
	return line, true
}

func safeNormalize(m *normalizer.Mapper, raw map[string]any, ref normalizer.RecordRef) (p *types.Product, err error) {
	defer func() {
		if r := recover(); r != nil {
			p = nil
			err = fmt.Errorf("%w: %v", ErrRecordPanic, r)
		}
	}()
	return m.Normalize(raw, ref)
}

func safeEnrich(ctx context.Context, e Enricher, p *types.Product) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrRecordPanic, r)
		}
	}()
	return e.Enrich(ctx, p)
}

// rawID finds something to identify a record that failed normalization
func rawID(raw map[string]any) string {
	for _, k := range []string{"id", "product_id", "productId", "sku"} {
		if v, ok := raw[k]; ok && v != nil {
			return fmt.Sprint(v)
		}
	}
	return ""
}
