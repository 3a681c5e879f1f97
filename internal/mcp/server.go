// Package mcp exposes the orchestrator over the Model Context Protocol.
//
// The server runs on the stdio transport and calls internal packages
// directly; assistants connect to it as a local context provider.
package mcp

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/Big0290/memory-context-manager-v2/internal/cache"
	"github.com/Big0290/memory-context-manager-v2/internal/orchestrator"
	"github.com/Big0290/memory-context-manager-v2/internal/registry"
	"github.com/Big0290/memory-context-manager-v2/internal/source"
)

// Config configures the MCP server.
type Config struct {
	// Name is the server implementation name.
	Name string

	// Version is the server version.
	Version string

	// Logger for structured logging.
	Logger *zap.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Name:    "memctxd",
		Version: "0.1.0",
		Logger:  zap.NewNop(),
	}
}

// Server bridges MCP tool calls to the orchestration engine.
type Server struct {
	mcp       *mcp.Server
	engine    *orchestrator.Engine
	registry  *registry.Registry
	respCache *cache.Cache[orchestrator.Response]
	memory    *source.MemoryStore
	metrics   *Metrics
	logger    *zap.Logger
}

// NewServer creates an MCP server over the given engine. The memory store is
// optional; when nil the memory_record tool is not registered.
func NewServer(
	cfg *Config,
	engine *orchestrator.Engine,
	reg *registry.Registry,
	respCache *cache.Cache[orchestrator.Response],
	memory *source.MemoryStore,
) (*Server, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if engine == nil {
		return nil, fmt.Errorf("engine is required")
	}
	if reg == nil {
		return nil, fmt.Errorf("registry is required")
	}

	s := &Server{
		mcp: mcp.NewServer(
			&mcp.Implementation{Name: cfg.Name, Version: cfg.Version},
			nil,
		),
		engine:    engine,
		registry:  reg,
		respCache: respCache,
		memory:    memory,
		metrics:   NewMetrics(cfg.Logger),
		logger:    cfg.Logger,
	}
	s.registerTools()
	return s, nil
}

// Run serves MCP on the stdio transport until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("starting MCP server on stdio transport")
	if err := s.mcp.Run(ctx, &mcp.StdioTransport{}); err != nil {
		return fmt.Errorf("mcp server: %w", err)
	}
	return nil
}
