package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	json "github.com/goccy/go-json"

	"github.com/dshills/catalogconv/internal/checkpoint"
	"github.com/dshills/catalogconv/internal/config"
	"github.com/dshills/catalogconv/internal/mcp"
	"github.com/dshills/catalogconv/internal/orchestrator"
	"github.com/dshills/catalogconv/internal/parser"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

// Exit codes
const (
	exitOK    = 0
	exitError = 1
	exitUsage = 2
)

const usage = `usage: catalogconv [command] [flags]

commands:
  convert   convert every catalog in the input directory (default)
  detect    print the detected format of one or more catalog files
  serve     run the MCP tool server on stdio

run "catalogconv <command> -h" for the flags of a command
`

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) > 0 && args[0] == "--version" {
		selector := parser.NewSelector(config.Default().Processing, slog.New(slog.NewTextHandler(io.Discard, nil)))
		fmt.Fprintf(stdout, "catalogconv\n")
		fmt.Fprintf(stdout, "Version: %s\n", version)
		fmt.Fprintf(stdout, "Build Time: %s\n", buildTime)
		fmt.Fprintf(stdout, "Build Mode: %s\n", checkpoint.BuildMode)
		fmt.Fprintf(stdout, "SQLite Driver: %s\n", checkpoint.DriverName)
		fmt.Fprintf(stdout, "Streaming Parser: %v\n", selector.StreamingAvailable())
		return exitOK
	}

	command := "convert"
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		command, args = args[0], args[1:]
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch command {
	case "convert":
		return runConvert(ctx, args, stdout, stderr)
	case "detect":
		return runDetect(args, stdout, stderr)
	case "serve":
		return runServe(ctx, args, stderr)
	case "help":
		fmt.Fprint(stdout, usage)
		return exitOK
	default:
		fmt.Fprintf(stderr, "unknown command %q\n\n%s", command, usage)
		return exitUsage
	}
}

// commonFlags are accepted by every command
type commonFlags struct {
	configPath string
	logLevel   string
	logFormat  string
}

func (c *commonFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&c.configPath, "config", "", "path to a YAML config file (default: ./catalogconv.yaml if present)")
	fs.StringVar(&c.logLevel, "log-level", "", "debug, info, warn or error")
	fs.StringVar(&c.logFormat, "log-format", "", "text or json")
}

// load reads the config file and applies the logging overrides
func (c *commonFlags) load() (*config.Config, error) {
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return nil, err
	}
	if c.logLevel != "" {
		cfg.Log.Level = c.logLevel
	}
	if c.logFormat != "" {
		cfg.Log.Format = c.logFormat
	}
	return cfg, nil
}

func runConvert(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("convert", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var common commonFlags
	common.register(fs)
	input := fs.String("input", "", "input directory of .json catalogs")
	output := fs.String("output", "", "output directory for JSONL shards and the report")
	concurrency := fs.Int("concurrency", 0, "files converted at once")
	batchSize := fs.Int("batch-size", 0, "records per batch")
	shardSize := fs.Int("shard-size", 0, "lines per shard, 0 disables sharding")
	combined := fs.Bool("combined", false, "also write one combined dataset")
	format := fs.String("format", "", "format hint: auto, vertex or generic")
	noCheckpoint := fs.Bool("no-checkpoint", false, "do not resume from or save checkpoints")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}

	cfg, err := common.load()
	if err != nil {
		fmt.Fprintf(stderr, "config: %v\n", err)
		return exitError
	}

	// only flags given on the command line override the config file
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "input":
			cfg.Input.Dir = *input
		case "output":
			cfg.Output.Dir = *output
		case "concurrency":
			cfg.Processing.Concurrency = *concurrency
		case "batch-size":
			cfg.Processing.BatchSize = *batchSize
		case "shard-size":
			cfg.Output.ShardSize = *shardSize
		case "combined":
			cfg.Output.Combined = *combined
		case "format":
			cfg.Processing.FormatHint = *format
		case "no-checkpoint":
			cfg.Checkpoint.Enabled = !*noCheckpoint
		}
	})

	logger := newLogger(cfg.Log, stderr)
	slog.SetDefault(logger)

	orch, err := orchestrator.New(*cfg, logger)
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		return exitError
	}
	defer func() { _ = orch.Close() }()

	report, err := orch.Run(ctx)
	if err != nil {
		switch {
		case errors.Is(err, orchestrator.ErrInputDirMissing), errors.Is(err, orchestrator.ErrNoInputFiles):
			logger.Error("nothing to convert", "input", cfg.Input.Dir, "error", err)
		default:
			logger.Error("conversion aborted", "error", err)
		}
		return exitError
	}

	if err := orchestrator.WriteSummary(stdout, report); err != nil {
		logger.Warn("summary not printed", "error", err)
	}
	if !report.Validation.Passed {
		return exitError
	}
	return exitOK
}

func runDetect(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("detect", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var common commonFlags
	common.register(fs)
	format := fs.String("format", "", "format hint: auto, vertex or generic")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	if fs.NArg() == 0 {
		fmt.Fprintln(stderr, "detect: at least one file is required")
		return exitUsage
	}

	cfg, err := common.load()
	if err != nil {
		fmt.Fprintf(stderr, "config: %v\n", err)
		return exitError
	}
	if *format != "" {
		cfg.Processing.FormatHint = *format
	}
	logger := newLogger(cfg.Log, stderr)
	selector := parser.NewSelector(cfg.Processing, logger)

	code := exitOK
	for _, path := range fs.Args() {
		det, err := selector.Detect(path)
		if err != nil {
			logger.Error("detection failed", "file", path, "error", err)
			code = exitError
			continue
		}
		data, err := json.MarshalIndent(det, "", "  ")
		if err != nil {
			logger.Error("encode detection", "file", path, "error", err)
			code = exitError
			continue
		}
		fmt.Fprintln(stdout, string(data))
	}
	return code
}

func runServe(ctx context.Context, args []string, stderr io.Writer) int {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var common commonFlags
	common.register(fs)
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}

	cfg, err := common.load()
	if err != nil {
		fmt.Fprintf(stderr, "config: %v\n", err)
		return exitError
	}
	// stdout carries the protocol
	logger := newLogger(cfg.Log, stderr)
	slog.SetDefault(logger)

	server, err := mcp.NewServer(*cfg, logger)
	if err != nil {
		logger.Error("failed to create MCP server", "error", err)
		return exitError
	}

	errChan := make(chan error, 1)
	go func() {
		errChan <- server.Serve(ctx)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down", "reason", context.Cause(ctx))
	case err := <-errChan:
		if err != nil {
			logger.Error("server error", "error", err)
			return exitError
		}
	}
	logger.Info("server stopped")
	return exitOK
}

// newLogger builds the process logger; logs always go to w, never stdout
func newLogger(cfg config.LogConfig, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}
	if strings.EqualFold(cfg.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func parseLevel(s string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return slog.LevelInfo
	}
	return level
}
