// Package writer appends newline-delimited JSON records to size-bounded
// shard files.
package writer

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	json "github.com/goccy/go-json"
)

// Ext is the extension of every output file
const Ext = ".jsonl"

const shardInfix = "_shard_"

// ErrClosed is returned when writing to a closed writer
var ErrClosed = errors.New("writer closed")

// ShardPath returns the file holding shard index (0-based) for basename.
// A non-positive shardSize means a single unsharded file.
func ShardPath(dir, basename string, shardSize, index int) string {
	if shardSize <= 0 {
		return filepath.Join(dir, basename+Ext)
	}
	return filepath.Join(dir, fmt.Sprintf("%s%s%03d%s", basename, shardInfix, index+1, Ext))
}

// Basename derives the output basename of an input file relative to root:
// extension dropped, path separators replaced with underscores.
func Basename(root, path string) string {
	rel, err := filepath.Rel(root, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		rel = filepath.Base(path)
	}
	rel = strings.TrimSuffix(rel, filepath.Ext(rel))
	return strings.ReplaceAll(filepath.ToSlash(rel), "/", "_")
}

// ShardParent returns the basename whose shard files include name+Ext,
// when name ends in a shard ordinal
func ShardParent(name string) (string, bool) {
	i := strings.LastIndex(name, shardInfix)
	if i <= 0 {
		return "", false
	}
	ordinal := name[i+len(shardInfix):]
	if ordinal == "" || strings.Trim(ordinal, "0123456789") != "" {
		return "", false
	}
	return name[:i], true
}

// Encode serializes v as one output line without the trailing newline
func Encode(v any) ([]byte, error) {
	return json.Marshal(v)
}

// ShardWriter writes lines for one logical dataset. Shards are opened
// lazily and never reopened once closed. It is safe for concurrent use.
type ShardWriter struct {
	mu        sync.Mutex
	dir       string
	basename  string
	shardSize int
	logger    *slog.Logger

	file    *os.File
	buf     *bufio.Writer
	index   int // index of the open shard, -1 before the first
	lines   int // lines in the open shard
	written int
	outputs []string
	closed  bool
}

// New creates a writer for basename under dir
func New(dir, basename string, shardSize int, logger *slog.Logger) *ShardWriter {
	if logger == nil {
		logger = slog.Default()
	}
	return &ShardWriter{
		dir:       dir,
		basename:  basename,
		shardSize: shardSize,
		logger:    logger,
		index:     -1,
	}
}

// Prepare creates the output directory and removes outputs a previous run
// left for the same basename.
func (w *ShardWriter) Prepare() error {
	if err := os.MkdirAll(w.dir, 0755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	stale, err := Existing(w.dir, w.basename)
	if err != nil {
		return err
	}
	for _, path := range stale {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("remove stale output: %w", err)
		}
	}
	return nil
}

// Existing lists output files in dir belonging to basename
func Existing(dir, basename string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read output dir: %w", err)
	}

	var out []string
	prefix := basename + shardInfix
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() {
			continue
		}
		if name == basename+Ext {
			out = append(out, filepath.Join(dir, name))
			continue
		}
		if strings.HasPrefix(name, prefix) && strings.HasSuffix(name, Ext) {
			ordinal := strings.TrimSuffix(strings.TrimPrefix(name, prefix), Ext)
			if ordinal != "" && strings.Trim(ordinal, "0123456789") == "" {
				out = append(out, filepath.Join(dir, name))
			}
		}
	}
	return out, nil
}

// WriteLine appends one encoded record, rotating to a new shard when the
// open one is full.
func (w *ShardWriter) WriteLine(line []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.writeLocked(line)
}

// WriteLines appends encoded records in order
func (w *ShardWriter) WriteLines(lines [][]byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, line := range lines {
		if err := w.writeLocked(line); err != nil {
			return err
		}
	}
	return nil
}

func (w *ShardWriter) writeLocked(line []byte) error {
	if w.closed {
		return ErrClosed
	}
	if w.file == nil || (w.shardSize > 0 && w.lines >= w.shardSize) {
		if err := w.rotate(); err != nil {
			return err
		}
	}

	line = bytes.TrimRight(line, "\n")
	if _, err := w.buf.Write(line); err != nil {
		return fmt.Errorf("write %s: %w", w.file.Name(), err)
	}
	if err := w.buf.WriteByte('\n'); err != nil {
		return fmt.Errorf("write %s: %w", w.file.Name(), err)
	}
	w.lines++
	w.written++
	return nil
}

func (w *ShardWriter) rotate() error {
	if err := w.closeShard(); err != nil {
		return err
	}

	w.index++
	path := ShardPath(w.dir, w.basename, w.shardSize, w.index)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("open shard: %w", err)
	}

	w.file = f
	w.buf = bufio.NewWriterSize(f, 256*1024)
	w.lines = 0
	w.outputs = append(w.outputs, path)
	w.logger.Debug("opened output shard", "path", path, "shard", w.index+1)
	return nil
}

func (w *ShardWriter) closeShard() error {
	if w.file == nil {
		return nil
	}
	f := w.file
	w.file = nil

	if err := w.buf.Flush(); err != nil {
		_ = f.Close()
		return fmt.Errorf("flush %s: %w", f.Name(), err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return fmt.Errorf("sync %s: %w", f.Name(), err)
	}
	return f.Close()
}

// Flush pushes buffered lines of the open shard to the OS
func (w *ShardWriter) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.buf == nil || w.file == nil {
		return nil
	}
	return w.buf.Flush()
}

// Close flushes and closes the open shard. Further writes fail.
func (w *ShardWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	return w.closeShard()
}

// Written returns the number of lines written across all shards
func (w *ShardWriter) Written() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.written
}

// Outputs returns the shard paths opened so far, in order
func (w *ShardWriter) Outputs() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.outputs...)
}

// AppendFrom copies every line of the files at paths, in order
func (w *ShardWriter) AppendFrom(paths []string) (int, error) {
	n := 0
	for _, path := range paths {
		f, err := os.Open(path)
		if err != nil {
			return n, fmt.Errorf("open %s: %w", path, err)
		}
		r := bufio.NewReaderSize(f, 256*1024)
		for {
			line, err := r.ReadBytes('\n')
			if len(bytes.TrimSpace(line)) > 0 {
				if werr := w.WriteLine(line); werr != nil {
					_ = f.Close()
					return n, werr
				}
				n++
			}
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				_ = f.Close()
				return n, fmt.Errorf("read %s: %w", path, err)
			}
		}
		_ = f.Close()
	}
	return n, nil
}

// CountLines returns the number of non-empty lines in path
func CountLines(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer func() {
		_ = f.Close()
	}()

	r := bufio.NewReaderSize(f, 256*1024)
	n := 0
	for {
		line, err := r.ReadBytes('\n')
		if len(bytes.TrimSpace(line)) > 0 {
			n++
		}
		if errors.Is(err, io.EOF) {
			return n, nil
		}
		if err != nil {
			return n, err
		}
	}
}
