// Package mcp implements the Model Context Protocol (MCP) server for catalogconv.
//
// The MCP server exposes three tools to assistants and automation:
//   - convert_catalog: Convert a directory of JSON catalogs into JSONL shards
//   - detect_format: Report how a single catalog file would be parsed
//   - get_checkpoint: Show what an interrupted conversion already completed
//
// # Protocol Overview
//
// MCP is a JSON-RPC 2.0 protocol over stdio transport:
//
//	Client → Server: {"method": "tools/call", "params": {...}}
//	Server → Client: {"result": {...}}
//
// The server is started with:
//
//	catalogconv serve -config catalogconv.yaml
//
// Every conversion starts from the configuration the server was started
// with; a tool call only overrides the directories and the few knobs its
// schema lists.
//
// # Tool: convert_catalog
//
//	Request:
//	{
//	  "name": "convert_catalog",
//	  "arguments": {
//	    "input_dir": "/data/catalogs",
//	    "output_dir": "/data/jsonl",
//	    "concurrency": 4,
//	    "shard_size": 10000
//	  }
//	}
//
//	Response:
//	{
//	  "run_id": "01JB6M2Q7RZ4X0K7N3V5T8W9YC",
//	  "report_path": "/data/jsonl/conversion_report_01JB6M2Q7RZ4X0K7N3V5T8W9YC.json",
//	  "totals": {"files": 12, "succeeded": 12, "records": 48210, "written": 48197, ...},
//	  "validation": {"passed": true, "warnings": [], "errors": []}
//	}
//
// Only one conversion runs at a time; a second call while one is running
// fails with code -32002.
//
// # Tool: detect_format
//
//	Request:  {"name": "detect_format", "arguments": {"path": "/data/catalogs/feed.json"}}
//	Response: {"format": "vertex", "shape": "wrapped", "wrapper": "products", "strategy": "whole_file", ...}
//
// # Tool: get_checkpoint
//
//	Request:  {"name": "get_checkpoint", "arguments": {"input_dir": "...", "output_dir": "..."}}
//	Response: {"checkpoint": "present", "completed_files": ["a.json", "b.json"], ...}
//
// "checkpoint": "none" means the next conversion of that directory pair
// starts from scratch.
//
// # Error Handling
//
// Tool failures are returned as *MCPError values:
//   - -32602: Invalid params (missing, relative or nonexistent paths)
//   - -32603: Internal error
//   - -32001: No eligible input files
//   - -32002: Conversion in progress
//   - -32003: File is not a parsable catalog
//   - -32004: Checkpointing disabled
//
// # Logging
//
// The server logs to stderr through slog; stdout is reserved for the
// protocol.
package mcp
