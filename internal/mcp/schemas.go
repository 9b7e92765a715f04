package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
)

// convertCatalogTool returns the tool definition for convert_catalog
func convertCatalogTool() mcp.Tool {
	return mcp.Tool{
		Name:        "convert_catalog",
		Description: "Convert a directory of JSON product catalogs into enriched JSONL shards",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"input_dir": map[string]interface{}{
					"type":        "string",
					"description": "Absolute path to the directory holding the catalog .json files",
				},
				"output_dir": map[string]interface{}{
					"type":        "string",
					"description": "Absolute path to the directory receiving shards and the run report",
				},
				"concurrency": map[string]interface{}{
					"type":        "integer",
					"description": "Number of files converted at once",
					"minimum":     1,
					"maximum":     64,
				},
				"batch_size": map[string]interface{}{
					"type":        "integer",
					"description": "Records pulled from a file per batch",
					"minimum":     1,
				},
				"shard_size": map[string]interface{}{
					"type":        "integer",
					"description": "Lines per output shard, 0 writes one file per input",
					"minimum":     0,
				},
				"combined": map[string]interface{}{
					"type":        "boolean",
					"description": "If true, also write every record into one combined dataset",
					"default":     false,
				},
			},
			Required: []string{"input_dir", "output_dir"},
		},
	}
}

// detectFormatTool returns the tool definition for detect_format
func detectFormatTool() mcp.Tool {
	return mcp.Tool{
		Name:        "detect_format",
		Description: "Report the catalog format, top-level shape and parse strategy of a JSON file",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"path": map[string]interface{}{
					"type":        "string",
					"description": "Absolute path to a catalog .json file",
				},
			},
			Required: []string{"path"},
		},
	}
}

// getCheckpointTool returns the tool definition for get_checkpoint
func getCheckpointTool() mcp.Tool {
	return mcp.Tool{
		Name:        "get_checkpoint",
		Description: "Show which files an interrupted conversion already completed",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"input_dir": map[string]interface{}{
					"type":        "string",
					"description": "Absolute input directory of the conversion",
				},
				"output_dir": map[string]interface{}{
					"type":        "string",
					"description": "Absolute output directory of the conversion",
				},
			},
			Required: []string{"input_dir", "output_dir"},
		},
	}
}
