package mcp

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	json "github.com/goccy/go-json"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/dshills/catalogconv/internal/checkpoint"
	"github.com/dshills/catalogconv/internal/orchestrator"
	"github.com/dshills/catalogconv/internal/parser"
	"github.com/dshills/catalogconv/internal/pipeline"
)

// MCP error codes
const (
	ErrorCodeInvalidParams          = -32602 // Invalid method parameters
	ErrorCodeInternalError          = -32603 // Internal JSON-RPC error
	ErrorCodeNoInputFiles           = -32001 // Input directory holds no eligible files
	ErrorCodeConversionInProgress   = -32002 // Another conversion is already running
	ErrorCodeInvalidCatalog         = -32003 // File is not a catalog the parser accepts
	ErrorCodeCheckpointsUnavailable = -32004 // Checkpointing is disabled
)

// maxReportedFailures caps the failed files listed in a tool response
const maxReportedFailures = 5

// handleConvertCatalog handles the convert_catalog tool invocation
func (s *Server) handleConvertCatalog(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	inputDir, err := requireDir(args, "input_dir", true)
	if err != nil {
		return nil, err
	}
	outputDir, err := requireDir(args, "output_dir", false)
	if err != nil {
		return nil, err
	}

	cfg := s.base
	cfg.Input.Dir = inputDir
	cfg.Output.Dir = outputDir
	cfg.Processing.Concurrency = getIntDefault(args, "concurrency", cfg.Processing.Concurrency)
	cfg.Processing.BatchSize = getIntDefault(args, "batch_size", cfg.Processing.BatchSize)
	cfg.Output.ShardSize = getIntDefault(args, "shard_size", cfg.Output.ShardSize)
	cfg.Output.Combined = getBoolDefault(args, "combined", cfg.Output.Combined)

	if !s.lock.TryAcquire() {
		return nil, newMCPError(ErrorCodeConversionInProgress, "a conversion is already running", nil)
	}
	defer s.lock.Release()

	orch, err := orchestrator.New(cfg, s.logger)
	if err != nil {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid conversion settings", map[string]interface{}{
			"error": err.Error(),
		})
	}
	defer func() { _ = orch.Close() }()

	report, err := orch.Run(ctx)
	switch {
	case errors.Is(err, orchestrator.ErrNoInputFiles):
		return nil, newMCPError(ErrorCodeNoInputFiles, "no eligible input files", map[string]interface{}{
			"param": "input_dir",
			"value": inputDir,
		})
	case errors.Is(err, orchestrator.ErrOutputNameClash):
		return nil, newMCPError(ErrorCodeInvalidParams, "output names clash", map[string]interface{}{
			"error": err.Error(),
		})
	case err != nil:
		return nil, newMCPError(ErrorCodeInternalError, "conversion failed", map[string]interface{}{
			"error": err.Error(),
		})
	}

	response := map[string]interface{}{
		"run_id":           report.RunID,
		"report_path":      report.Path,
		"resumed":          report.Resumed,
		"totals":           report.Totals,
		"validation":       report.Validation,
		"duration_seconds": report.DurationSeconds,
	}
	if report.Combined != nil {
		response["combined"] = report.Combined
	}

	var failures []string
	for _, f := range report.Files {
		if f.State == pipeline.StateFailed {
			failures = append(failures, fmt.Sprintf("%s: %s", f.Path, f.Error))
		}
	}
	if len(failures) > maxReportedFailures {
		response["failure_count"] = len(failures)
		failures = failures[:maxReportedFailures]
	}
	if len(failures) > 0 {
		response["failures"] = failures
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleDetectFormat handles the detect_format tool invocation
func (s *Server) handleDetectFormat(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	path := getStringDefault(args, "path", "")
	if err := validateFile(path); err != nil {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid path", map[string]interface{}{
			"param":  "path",
			"reason": err.Error(),
		})
	}

	det, err := s.selector.Detect(path)
	if err != nil {
		code := ErrorCodeInternalError
		if errors.Is(err, parser.ErrInvalidJSON) || errors.Is(err, parser.ErrUnsupportedShape) {
			code = ErrorCodeInvalidCatalog
		}
		return nil, newMCPError(code, "format detection failed", map[string]interface{}{
			"error": err.Error(),
		})
	}

	response := map[string]interface{}{
		"path":       det.Path,
		"size_bytes": det.Size,
		"format":     det.Format,
		"shape":      det.Shape,
		"strategy":   det.Strategy,
	}
	if det.Wrapper != "" {
		response["wrapper"] = det.Wrapper
	}
	if det.Fallback {
		response["streaming_fallback"] = true
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleGetCheckpoint handles the get_checkpoint tool invocation
func (s *Server) handleGetCheckpoint(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	inputDir, err := requireDir(args, "input_dir", false)
	if err != nil {
		return nil, err
	}
	outputDir, err := requireDir(args, "output_dir", false)
	if err != nil {
		return nil, err
	}

	if !s.base.Checkpoint.Enabled {
		return nil, newMCPError(ErrorCodeCheckpointsUnavailable, "checkpointing is disabled", nil)
	}

	runKey := checkpoint.RunKey(inputDir, outputDir)
	store, err := checkpoint.Open(s.base.Checkpoint, runKey)
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "failed to open checkpoint store", map[string]interface{}{
			"error": err.Error(),
		})
	}
	defer func() { _ = store.Close() }()

	rec, err := store.Load(ctx)
	if errors.Is(err, checkpoint.ErrNotFound) {
		response := map[string]interface{}{
			"run_key":    runKey,
			"checkpoint": "none",
			"message":    "No interrupted conversion recorded. A new run converts every file.",
		}
		return mcp.NewToolResultText(formatJSON(response)), nil
	}
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "failed to load checkpoint", map[string]interface{}{
			"error": err.Error(),
		})
	}

	response := map[string]interface{}{
		"run_key":         runKey,
		"checkpoint":      "present",
		"completed_files": rec.Completed,
		"completed_count": len(rec.Completed),
		"records_seen":    rec.Processed,
		"records_written": rec.Written,
		"records_dropped": rec.Failed,
		"started_at":      rec.StartedAt.Format("2006-01-02T15:04:05Z07:00"),
		"last_updated_at": rec.UpdatedAt.Format("2006-01-02T15:04:05Z07:00"),
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// Helper functions

// newMCPError creates a properly formatted MCP error
func newMCPError(code int, message string, data interface{}) error {
	// MCP errors are returned as regular errors, the framework handles encoding
	return &MCPError{
		Code:    code,
		Message: message,
		Data:    data,
	}
}

// MCPError represents an MCP protocol error
type MCPError struct {
	Code    int
	Message string
	Data    interface{}
}

func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// requireDir reads an absolute directory argument. When mustExist is set
// the directory has to be present and readable.
func requireDir(args map[string]interface{}, key string, mustExist bool) (string, error) {
	path := getStringDefault(args, key, "")
	if path == "" {
		return "", newMCPError(ErrorCodeInvalidParams, key+" parameter is required", map[string]interface{}{
			"param":  key,
			"reason": "missing or empty",
		})
	}

	var err error
	if mustExist {
		err = validateDir(path)
	} else if !filepath.IsAbs(path) {
		err = ErrPathNotAbsolute
	}
	if err != nil {
		return "", newMCPError(ErrorCodeInvalidParams, "invalid "+key, map[string]interface{}{
			"param":  key,
			"reason": err.Error(),
		})
	}
	return filepath.Clean(path), nil
}

// validateDir checks if a directory exists and is accessible
func validateDir(path string) error {
	info, err := statAbs(path)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return ErrNotDirectory
	}

	f, err := os.Open(path)
	if err != nil {
		return ErrPathNotReadable
	}
	_ = f.Close()
	return nil
}

// validateFile checks if a regular file exists
func validateFile(path string) error {
	info, err := statAbs(path)
	if err != nil {
		return err
	}
	if info.IsDir() {
		return ErrIsDirectory
	}
	return nil
}

func statAbs(path string) (os.FileInfo, error) {
	if path == "" {
		return nil, ErrPathRequired
	}
	if !filepath.IsAbs(path) {
		return nil, ErrPathNotAbsolute
	}
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return nil, ErrPathNotFound
	}
	if err != nil {
		return nil, ErrPathNotReadable
	}
	return info, nil
}

// formatJSON formats a map as indented JSON
func formatJSON(data map[string]interface{}) string {
	bytes, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", data)
	}
	return string(bytes)
}

// getBoolDefault extracts a boolean parameter with a default value
func getBoolDefault(args map[string]interface{}, key string, defaultValue bool) bool {
	if val, ok := args[key].(bool); ok {
		return val
	}
	return defaultValue
}

// getIntDefault extracts an integer parameter with a default value
func getIntDefault(args map[string]interface{}, key string, defaultValue int) int {
	if val, ok := args[key].(float64); ok {
		return int(val)
	}
	if val, ok := args[key].(int); ok {
		return val
	}
	return defaultValue
}

// getStringDefault extracts a string parameter with a default value
func getStringDefault(args map[string]interface{}, key string, defaultValue string) string {
	if val, ok := args[key].(string); ok {
		return val
	}
	return defaultValue
}

// Validation helpers

var (
	ErrPathRequired    = errors.New("path is required")
	ErrPathNotAbsolute = errors.New("path must be absolute")
	ErrPathNotFound    = errors.New("path does not exist")
	ErrPathNotReadable = errors.New("path is not readable")
	ErrNotDirectory    = errors.New("path is not a directory")
	ErrIsDirectory     = errors.New("path is a directory, expected a file")
)
