package parser

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/dshills/catalogconv/internal/config"
	"github.com/dshills/catalogconv/pkg/types"
)

var (
	// ErrInvalidJSON is returned when a file cannot be decoded
	ErrInvalidJSON = errors.New("invalid JSON catalog")
	// ErrUnsupportedShape is returned when the top-level value is not an array or object
	ErrUnsupportedShape = errors.New("unsupported top-level JSON value")
)

// Shape is the structural layout of the top-level JSON value
type Shape string

const (
	ShapeArray   Shape = "array"
	ShapeWrapped Shape = "wrapped"
	ShapeSingle  Shape = "single"
)

// Strategy is how a file's records are decoded
type Strategy string

const (
	StrategyStreaming Strategy = "streaming"
	StrategyWholeFile Strategy = "whole_file"
)

// HintAuto asks the selector to detect the format
const HintAuto = "auto"

// wrapperKeys in priority order
var wrapperKeys = []string{"products", "data", "items"}

// wrapperRank is the priority of key among wrapperKeys, or -1
func wrapperRank(key string) int {
	for i, k := range wrapperKeys {
		if k == key {
			return i
		}
	}
	return -1
}

// Source yields raw product objects in input order
type Source interface {
	// Next returns the next record, or io.EOF when the input is exhausted
	Next() (map[string]any, error)
	// Skipped reports how many non-object array elements were passed over
	Skipped() int
	Close() error
}

// Detection describes a catalog file without its records
type Detection struct {
	Path     string       `json:"path"`
	Size     int64        `json:"size"`
	Format   types.Format `json:"format"`
	Shape    Shape        `json:"shape"`
	Wrapper  string       `json:"wrapper,omitempty"`
	Strategy Strategy     `json:"strategy"`
	Fallback bool         `json:"fallback,omitempty"` // streaming wanted but unavailable
}

// Result is an opened catalog
type Result struct {
	Detection
	Records Source
}

// decoder is what each strategy produces
type decoder interface {
	layout() (Shape, string)
	next() (map[string]any, error)
	skipped() int
}

// streamFunc opens an incremental decoder over r. r is rewound when the
// wrapper array has to be located by a first pass.
type streamFunc func(r io.ReadSeeker) (decoder, error)

// Selector picks a decoding strategy per file and detects its format
type Selector struct {
	threshold int64
	hint      types.Format
	stream    streamFunc
	logger    *slog.Logger
}

// NewSelector creates a selector. The streaming capability is fixed at build
// time and never re-checked per file.
func NewSelector(cfg config.ProcessingConfig, logger *slog.Logger) *Selector {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Selector{
		threshold: cfg.StreamingThreshold,
		stream:    defaultStream,
		logger:    logger,
	}

	hint := strings.ToLower(strings.TrimSpace(cfg.FormatHint))
	if hint != "" && hint != HintAuto {
		if f, ok := types.ParseFormat(hint); ok {
			s.hint = f
		} else {
			logger.Warn("unknown format hint, detecting automatically", "hint", cfg.FormatHint)
		}
	}

	return s
}

// StreamingAvailable reports whether the incremental decoder is compiled in
func (s *Selector) StreamingAvailable() bool {
	return s.stream != nil
}

// Open opens path and prepares its records for iteration. The caller must
// close Result.Records.
func (s *Selector) Open(path string) (*Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}

	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("stat catalog: %w", err)
	}

	det := Detection{
		Path:     path,
		Size:     info.Size(),
		Strategy: StrategyWholeFile,
	}

	if s.threshold > 0 && info.Size() >= s.threshold {
		if s.stream != nil {
			det.Strategy = StrategyStreaming
		} else {
			det.Fallback = true
			s.logger.Warn("streaming decoder unavailable, decoding whole file",
				"file", path, "size", info.Size())
		}
	}

	var dec decoder
	if det.Strategy == StrategyStreaming {
		dec, err = s.stream(f)
	} else {
		dec, err = decodeWhole(f)
	}
	if err != nil {
		_ = f.Close()
		return nil, err
	}

	det.Shape, det.Wrapper = dec.layout()

	src := &records{dec: dec, closer: f}
	first, err := dec.next()
	switch {
	case err == nil:
		src.pending = first
	case errors.Is(err, io.EOF):
		src.done = true
	default:
		_ = f.Close()
		return nil, err
	}

	det.Format = s.hint
	if det.Format == "" {
		det.Format = detectFormat(det.Wrapper, first)
	}

	return &Result{Detection: det, Records: src}, nil
}

// Detect reports the layout of path without iterating its records
func (s *Selector) Detect(path string) (*Detection, error) {
	res, err := s.Open(path)
	if err != nil {
		return nil, err
	}
	_ = res.Records.Close()
	return &res.Detection, nil
}

func detectFormat(wrapper string, first map[string]any) types.Format {
	if wrapper == "products" {
		return types.FormatVertex
	}
	if first != nil {
		if _, ok := first["title"]; ok {
			return types.FormatVertex
		}
		if _, ok := first["categories"]; ok {
			return types.FormatVertex
		}
	}
	return types.FormatGeneric
}

// records replays the record consumed for detection, then drains the decoder
type records struct {
	dec     decoder
	closer  io.Closer
	pending map[string]any
	done    bool
}

func (r *records) Next() (map[string]any, error) {
	if r.pending != nil {
		rec := r.pending
		r.pending = nil
		return rec, nil
	}
	if r.done {
		return nil, io.EOF
	}

	rec, err := r.dec.next()
	if err != nil {
		if errors.Is(err, io.EOF) {
			r.done = true
		}
		return nil, err
	}
	return rec, nil
}

func (r *records) Skipped() int {
	return r.dec.skipped()
}

func (r *records) Close() error {
	r.done = true
	r.pending = nil
	if r.closer == nil {
		return nil
	}
	err := r.closer.Close()
	r.closer = nil
	return err
}
