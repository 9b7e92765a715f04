package mcp

import (
	"context"
	"log/slog"

	"github.com/mark3labs/mcp-go/server"

	"github.com/dshills/catalogconv/internal/config"
	"github.com/dshills/catalogconv/internal/orchestrator"
	"github.com/dshills/catalogconv/internal/parser"
)

const (
	// ServerName is the MCP server name
	ServerName = "catalogconv"
	// ServerVersion is the current server version
	ServerVersion = "1.0.0"
)

// Server wraps the MCP server with application dependencies
type Server struct {
	mcp      *server.MCPServer
	base     config.Config
	selector *parser.Selector
	lock     orchestrator.RunLock
	logger   *slog.Logger
}

// NewServer creates a server whose conversions start from base and only
// override what a tool call supplies
func NewServer(base config.Config, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		mcp:      server.NewMCPServer(ServerName, ServerVersion),
		base:     base,
		selector: parser.NewSelector(base.Processing, logger),
		logger:   logger,
	}

	s.registerTools()
	return s, nil
}

// Serve starts the MCP server on stdio and blocks until shutdown
func (s *Server) Serve(ctx context.Context) error {
	s.logger.Info("mcp server listening on stdio", "name", ServerName, "version", ServerVersion)
	return server.ServeStdio(s.mcp)
}

func (s *Server) registerTools() {
	s.mcp.AddTool(convertCatalogTool(), s.handleConvertCatalog)
	s.mcp.AddTool(detectFormatTool(), s.handleDetectFormat)
	s.mcp.AddTool(getCheckpointTool(), s.handleGetCheckpoint)
}
