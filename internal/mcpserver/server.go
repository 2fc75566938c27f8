// Package mcpserver exposes the print queue and template store to Model
// Context Protocol clients as tools, resources and prompts.
package mcpserver

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/mark3labs/mcp-go/server"

	"github.com/orrn/taskprinter/internal/api/handlers"
	"github.com/orrn/taskprinter/internal/config"
	"github.com/orrn/taskprinter/internal/core"
	"github.com/orrn/taskprinter/internal/db"
)

const (
	Name    = "taskprinter"
	Version = "1.0.0"

	// Path is where the streamable HTTP transport is mounted.
	Path = "/mcp"

	recentJobs = 20
)

// HealthChecker produces the same report as GET /healthz.
type HealthChecker interface {
	Check(ctx context.Context) handlers.HealthResponse
}

type Deps struct {
	Queue     handlers.JobQueue
	Templates *db.TemplateOperations
	Config    core.ConfigSource
	Limits    config.LimitsConfig
	Health    HealthChecker
	Logger    *slog.Logger
}

type Server struct {
	queue     handlers.JobQueue
	templates *db.TemplateOperations
	config    core.ConfigSource
	limits    config.LimitsConfig
	health    HealthChecker
	logger    *slog.Logger

	mcp *server.MCPServer
}

func New(d Deps) *Server {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		queue:     d.Queue,
		templates: d.Templates,
		config:    d.Config,
		limits:    d.Limits,
		health:    d.Health,
		logger:    logger.With("component", "mcp"),
	}

	s.mcp = server.NewMCPServer(Name, Version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
		server.WithPromptCapabilities(false),
		server.WithRecovery(),
	)
	s.registerTools()
	s.registerResources()
	s.registerPrompts()
	return s
}

// MCP returns the underlying protocol server.
func (s *Server) MCP() *server.MCPServer {
	return s.mcp
}

// Handler serves the streamable HTTP transport.
func (s *Server) Handler() http.Handler {
	return server.NewStreamableHTTPServer(s.mcp)
}

// ServeStdio serves one client over stdin and stdout until it disconnects.
func (s *Server) ServeStdio() error {
	s.logger.Info("serving MCP over stdio")
	return server.ServeStdio(s.mcp)
}
