package orchestrator

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	json "github.com/goccy/go-json"

	"github.com/dshills/catalogconv/internal/config"
	"github.com/dshills/catalogconv/internal/pipeline"
	"github.com/dshills/catalogconv/internal/writer"
)

// ReportPrefix starts the file name of every run report
const ReportPrefix = "conversion_report_"

// Report is the machine-readable record of one run
type Report struct {
	RunID           string                 `json:"run_id"`
	RunKey          string                 `json:"run_key"`
	StartedAt       time.Time              `json:"started_at"`
	FinishedAt      time.Time              `json:"finished_at"`
	DurationSeconds float64                `json:"duration_seconds"`
	Resumed         bool                   `json:"resumed"`
	Config          ConfigSummary          `json:"config"`
	Files           []*pipeline.FileResult `json:"files"`
	Totals          Totals                 `json:"totals"`
	Combined        *CombinedResult        `json:"combined,omitempty"`
	Memory          MemorySummary          `json:"memory"`
	Validation      Validation             `json:"validation"`

	// Path is where the report was written
	Path string `json:"-"`
}

// ConfigSummary records the knobs that shaped the output
type ConfigSummary struct {
	InputDir          string `json:"input_dir"`
	OutputDir         string `json:"output_dir"`
	BatchSize         int    `json:"batch_size"`
	ShardSize         int    `json:"shard_size"`
	Concurrency       int    `json:"concurrency"`
	RetryAttempts     int    `json:"retry_attempts"`
	Checkpoint        bool   `json:"checkpoint"`
	CheckpointBackend string `json:"checkpoint_backend,omitempty"`
	EmbeddingProvider string `json:"embedding_provider"`
	EmbeddingDim      int    `json:"embedding_dimension"`
	MaxSparseFeatures int    `json:"max_sparse_features"`
	FormatHint        string `json:"format_hint"`
}

// Totals aggregates the per-file results. Record counters cover files
// processed by this run only.
type Totals struct {
	Files          int     `json:"files"`
	Succeeded      int     `json:"succeeded"`
	Failed         int     `json:"failed"`
	Skipped        int     `json:"skipped"`
	Records        int     `json:"records"`
	Written        int     `json:"written"`
	Enriched       int     `json:"enriched"`
	RecordFailures int     `json:"record_failures"`
	EnrichFailures int     `json:"enrich_failures"`
	EnrichmentRate float64 `json:"enrichment_rate"`
}

// CombinedResult describes the optional single-dataset output
type CombinedResult struct {
	Outputs []string `json:"outputs"`
	Written int      `json:"written"`
	Error   string   `json:"error,omitempty"`
}

// MemorySummary reports what the memory monitor saw
type MemorySummary struct {
	PeakBytes uint64 `json:"peak_bytes"`
	Triggers  int64  `json:"threshold_triggers"`
}

// Validation is the outcome of cross-checking the report against the
// files on disk. Errors are invariant violations, warnings are not.
type Validation struct {
	Passed   bool     `json:"passed"`
	Warnings []string `json:"warnings"`
	Errors   []string `json:"errors"`
}

func summarize(cfg config.Config) ConfigSummary {
	s := ConfigSummary{
		InputDir:          cfg.Input.Dir,
		OutputDir:         cfg.Output.Dir,
		BatchSize:         cfg.Processing.BatchSize,
		ShardSize:         cfg.Output.ShardSize,
		Concurrency:       cfg.Processing.Concurrency,
		RetryAttempts:     cfg.Processing.RetryAttempts,
		Checkpoint:        cfg.Checkpoint.Enabled,
		EmbeddingProvider: cfg.Embedding.Provider,
		EmbeddingDim:      cfg.Embedding.Dimension,
		MaxSparseFeatures: cfg.Text.MaxSparseFeatures,
		FormatHint:        cfg.Processing.FormatHint,
	}
	if cfg.Checkpoint.Enabled {
		s.CheckpointBackend = cfg.Checkpoint.Backend
	}
	return s
}

// tally fills Totals from Files
func (r *Report) tally() {
	t := Totals{Files: len(r.Files)}
	for _, f := range r.Files {
		switch f.State {
		case pipeline.StateSkipped:
			t.Skipped++
			continue
		case pipeline.StateCompleted:
			t.Succeeded++
		default:
			t.Failed++
		}
		t.Records += f.Records
		t.Written += f.Written
		t.Enriched += f.Enriched
		t.RecordFailures += f.Failed
		t.EnrichFailures += f.EnrichFailed
	}
	if t.Records > 0 {
		t.EnrichmentRate = float64(t.Enriched) / float64(t.Records)
	}
	r.Totals = t
}

// Validate cross-checks the counters against each other and against the
// output files, replacing any earlier validation result.
func (r *Report) Validate() {
	v := Validation{Warnings: []string{}, Errors: []string{}}
	warn := func(format string, args ...any) {
		v.Warnings = append(v.Warnings, fmt.Sprintf(format, args...))
	}
	fail := func(format string, args ...any) {
		v.Errors = append(v.Errors, fmt.Sprintf(format, args...))
	}

	expectCombined := 0
	for _, f := range r.Files {
		if f.Succeeded() {
			expectCombined += f.Written
		}
		if f.State != pipeline.StateSkipped {
			if f.Enriched > f.Written {
				fail("%s: enriched count %d exceeds written count %d", f.Path, f.Enriched, f.Written)
			}
			if f.State == pipeline.StateCompleted && f.Written != f.Records-f.Failed {
				fail("%s: written %d != records %d - failed %d", f.Path, f.Written, f.Records, f.Failed)
			}
		}

		lines, missing := countOutputs(f.Outputs)
		for _, path := range missing {
			warn("%s: output %s does not exist", f.Path, path)
		}
		if len(missing) == 0 && f.Succeeded() && lines != f.Written {
			warn("%s: outputs hold %d lines, report says %d", f.Path, lines, f.Written)
		}
	}

	if r.Totals.Enriched > r.Totals.Records {
		fail("enriched total %d exceeds record total %d", r.Totals.Enriched, r.Totals.Records)
	}

	if c := r.Combined; c != nil {
		if c.Error != "" {
			warn("combined output incomplete: %s", c.Error)
		}
		lines, missing := countOutputs(c.Outputs)
		for _, path := range missing {
			warn("combined output %s does not exist", path)
		}
		if len(missing) == 0 && lines != expectCombined {
			warn("combined outputs hold %d lines, converted files wrote %d", lines, expectCombined)
		}
	}

	v.Passed = len(v.Errors) == 0
	r.Validation = v
}

// countOutputs sums the lines of the paths that exist and lists the rest
func countOutputs(paths []string) (int, []string) {
	total := 0
	var missing []string
	for _, path := range paths {
		n, err := writer.CountLines(path)
		if err != nil {
			missing = append(missing, path)
			continue
		}
		total += n
	}
	return total, missing
}

// Write stores the report as indented JSON in dir and sets Path
func (r *Report) Write(dir string) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	path := filepath.Join(dir, ReportPrefix+r.RunID+".json")
	if err := os.WriteFile(path, append(data, '\n'), 0644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	r.Path = path
	return nil
}

// ReadReport loads a report written by Write
func ReadReport(path string) (*Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var r Report
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("decode report: %w", err)
	}
	r.Path = path
	return &r, nil
}

// WriteSummary prints the human-readable run summary
func WriteSummary(w io.Writer, r *Report) error {
	t := r.Totals
	var errs []error
	p := func(format string, args ...any) {
		_, err := fmt.Fprintf(w, format, args...)
		errs = append(errs, err)
	}

	p("Conversion %s finished in %s\n", r.RunID, time.Duration(r.DurationSeconds*float64(time.Second)).Round(time.Millisecond))
	p("  Files:     %d total, %d converted, %d failed, %d skipped (already complete)\n",
		t.Files, t.Succeeded, t.Failed, t.Skipped)
	p("  Records:   %s read, %s written, %s dropped\n",
		humanize.Comma(int64(t.Records)), humanize.Comma(int64(t.Written)), humanize.Comma(int64(t.RecordFailures)))
	p("  Enriched:  %s (%s%%), %s passed through unenriched\n",
		humanize.Comma(int64(t.Enriched)), humanize.FtoaWithDigits(t.EnrichmentRate*100, 1),
		humanize.Comma(int64(t.EnrichFailures)))
	if r.Combined != nil {
		p("  Combined:  %s lines in %d file(s)\n", humanize.Comma(int64(r.Combined.Written)), len(r.Combined.Outputs))
	}
	if r.Memory.PeakBytes > 0 {
		p("  Memory:    peak %s\n", humanize.IBytes(r.Memory.PeakBytes))
	}

	for _, f := range r.Files {
		if f.State == pipeline.StateFailed {
			p("  FAILED     %s: %s\n", f.Path, f.Error)
		}
	}
	for _, msg := range r.Validation.Errors {
		p("  ERROR      %s\n", msg)
	}
	for _, msg := range r.Validation.Warnings {
		p("  WARNING    %s\n", msg)
	}
	if r.Path != "" {
		p("  Report:    %s\n", r.Path)
	}
	return errors.Join(errs...)
}
