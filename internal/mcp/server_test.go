package mcp

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/catalogconv/internal/checkpoint"
	"github.com/dshills/catalogconv/internal/config"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	cfg := config.Default()
	cfg.Checkpoint.Dir = t.TempDir()
	cfg.Processing.RetryDelay = 0
	cfg.Embedding.Dimension = 16
	cfg.Memory.ThresholdMB = 0

	s, err := NewServer(cfg, nil)
	require.NoError(t, err)
	return s
}

func callRequest(name string, args map[string]interface{}) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	req.Params.Name = name
	req.Params.Arguments = args
	return req
}

func resultJSON(t *testing.T, res *mcp.CallToolResult) map[string]interface{} {
	t.Helper()
	require.NotNil(t, res)
	require.NotEmpty(t, res.Content)
	text, ok := res.Content[0].(mcp.TextContent)
	require.True(t, ok, "expected text content, got %T", res.Content[0])

	var out map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(text.Text), &out))
	return out
}

func requireMCPError(t *testing.T, err error, code int) *MCPError {
	t.Helper()
	require.Error(t, err)
	var mcpErr *MCPError
	require.ErrorAs(t, err, &mcpErr)
	assert.Equal(t, code, mcpErr.Code)
	return mcpErr
}

func writeCatalog(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestServer_Initialization(t *testing.T) {
	s := newTestServer(t)
	assert.NotNil(t, s.mcp, "MCP server should be initialized")
	assert.NotNil(t, s.selector, "Selector should be initialized")
	assert.NotNil(t, s.logger)
}

func TestHandleConvertCatalog(t *testing.T) {
	s := newTestServer(t)
	in := t.TempDir()
	out := filepath.Join(t.TempDir(), "jsonl")
	writeCatalog(t, in, "a.json", `{"products":[{"id":"p1","title":"Red Shirt"},{"id":"p2"}]}`)
	writeCatalog(t, in, "b.json", `[{"name":"Widget","cost":5}]`)

	res, err := s.handleConvertCatalog(context.Background(), callRequest("convert_catalog", map[string]interface{}{
		"input_dir":  in,
		"output_dir": out,
		"shard_size": float64(1),
		"combined":   true,
	}))
	require.NoError(t, err)

	body := resultJSON(t, res)
	totals := body["totals"].(map[string]interface{})
	assert.Equal(t, 2.0, totals["files"])
	assert.Equal(t, 3.0, totals["records"])
	assert.Equal(t, 2.0, totals["written"])
	assert.Equal(t, true, body["validation"].(map[string]interface{})["passed"])
	assert.NotContains(t, body, "failures")

	assert.FileExists(t, body["report_path"].(string))
	assert.FileExists(t, filepath.Join(out, "a_shard_001.jsonl"))
	assert.FileExists(t, filepath.Join(out, "combined_shard_002.jsonl"))
	assert.False(t, s.lock.Held(), "lock must be released after the run")
}

func TestHandleConvertCatalog_Errors(t *testing.T) {
	s := newTestServer(t)
	in := t.TempDir()
	out := t.TempDir()

	tests := []struct {
		name string
		args interface{}
		code int
	}{
		{"arguments not an object", "nope", ErrorCodeInvalidParams},
		{"missing input", map[string]interface{}{"output_dir": out}, ErrorCodeInvalidParams},
		{"relative input", map[string]interface{}{"input_dir": "catalogs", "output_dir": out}, ErrorCodeInvalidParams},
		{"missing input dir", map[string]interface{}{"input_dir": filepath.Join(in, "none"), "output_dir": out}, ErrorCodeInvalidParams},
		{"relative output", map[string]interface{}{"input_dir": in, "output_dir": "out"}, ErrorCodeInvalidParams},
		{"no catalogs", map[string]interface{}{"input_dir": in, "output_dir": out}, ErrorCodeNoInputFiles},
		{"bad override", map[string]interface{}{"input_dir": in, "output_dir": out, "concurrency": float64(0)}, ErrorCodeInvalidParams},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var req mcp.CallToolRequest
			req.Params.Arguments = tt.args
			_, err := s.handleConvertCatalog(context.Background(), req)
			requireMCPError(t, err, tt.code)
		})
	}
}

func TestHandleConvertCatalog_InProgress(t *testing.T) {
	s := newTestServer(t)
	in := t.TempDir()
	writeCatalog(t, in, "a.json", `[{"title":"Lamp"}]`)

	require.True(t, s.lock.TryAcquire())
	defer s.lock.Release()

	_, err := s.handleConvertCatalog(context.Background(), callRequest("convert_catalog", map[string]interface{}{
		"input_dir":  in,
		"output_dir": t.TempDir(),
	}))
	requireMCPError(t, err, ErrorCodeConversionInProgress)
}

func TestHandleDetectFormat(t *testing.T) {
	s := newTestServer(t)
	dir := t.TempDir()
	vertex := writeCatalog(t, dir, "vertex.json", `{"products":[{"id":"p1","title":"Lamp"}]}`)
	generic := writeCatalog(t, dir, "generic.json", `[{"name":"Widget","cost":5}]`)
	broken := writeCatalog(t, dir, "broken.json", `{"products":`)

	res, err := s.handleDetectFormat(context.Background(), callRequest("detect_format", map[string]interface{}{"path": vertex}))
	require.NoError(t, err)
	body := resultJSON(t, res)
	assert.Equal(t, "vertex", body["format"])
	assert.Equal(t, "wrapped", body["shape"])
	assert.Equal(t, "products", body["wrapper"])

	res, err = s.handleDetectFormat(context.Background(), callRequest("detect_format", map[string]interface{}{"path": generic}))
	require.NoError(t, err)
	body = resultJSON(t, res)
	assert.Equal(t, "generic", body["format"])
	assert.Equal(t, "array", body["shape"])
	assert.NotContains(t, body, "wrapper")

	_, err = s.handleDetectFormat(context.Background(), callRequest("detect_format", map[string]interface{}{"path": broken}))
	requireMCPError(t, err, ErrorCodeInvalidCatalog)

	_, err = s.handleDetectFormat(context.Background(), callRequest("detect_format", map[string]interface{}{"path": dir}))
	mcpErr := requireMCPError(t, err, ErrorCodeInvalidParams)
	assert.Equal(t, ErrIsDirectory.Error(), mcpErr.Data.(map[string]interface{})["reason"])

	_, err = s.handleDetectFormat(context.Background(), callRequest("detect_format", map[string]interface{}{}))
	requireMCPError(t, err, ErrorCodeInvalidParams)
}

func TestHandleGetCheckpoint(t *testing.T) {
	s := newTestServer(t)
	in := t.TempDir()
	out := t.TempDir()
	args := map[string]interface{}{"input_dir": in, "output_dir": out}

	res, err := s.handleGetCheckpoint(context.Background(), callRequest("get_checkpoint", args))
	require.NoError(t, err)
	assert.Equal(t, "none", resultJSON(t, res)["checkpoint"])

	runKey := checkpoint.RunKey(in, out)
	store, err := checkpoint.Open(s.base.Checkpoint, runKey)
	require.NoError(t, err)
	now := time.Now().UTC()
	require.NoError(t, store.Save(context.Background(), &checkpoint.Record{
		RunKey:    runKey,
		InputDir:  in,
		OutputDir: out,
		Completed: []string{"a.json", "b.json"},
		Processed: 1500,
		Written:   1490,
		Failed:    10,
		StartedAt: now,
		UpdatedAt: now,
	}))
	require.NoError(t, store.Close())

	res, err = s.handleGetCheckpoint(context.Background(), callRequest("get_checkpoint", args))
	require.NoError(t, err)
	body := resultJSON(t, res)
	assert.Equal(t, "present", body["checkpoint"])
	assert.Equal(t, []interface{}{"a.json", "b.json"}, body["completed_files"])
	assert.Equal(t, 1490.0, body["records_written"])

	s.base.Checkpoint.Enabled = false
	_, err = s.handleGetCheckpoint(context.Background(), callRequest("get_checkpoint", args))
	requireMCPError(t, err, ErrorCodeCheckpointsUnavailable)
}

func TestArgumentHelpers(t *testing.T) {
	args := map[string]interface{}{
		"f":    float64(3),
		"i":    7,
		"b":    true,
		"s":    "x",
		"bad":  "3",
		"zero": float64(0),
	}
	assert.Equal(t, 3, getIntDefault(args, "f", 1))
	assert.Equal(t, 7, getIntDefault(args, "i", 1))
	assert.Equal(t, 1, getIntDefault(args, "bad", 1))
	assert.Equal(t, 0, getIntDefault(args, "zero", 1))
	assert.True(t, getBoolDefault(args, "b", false))
	assert.True(t, getBoolDefault(args, "missing", true))
	assert.Equal(t, "x", getStringDefault(args, "s", ""))
	assert.Equal(t, "d", getStringDefault(args, "missing", "d"))
}
