package api

import (
	"log/slog"

	"github.com/gin-gonic/gin"

	"github.com/orrn/taskprinter/internal/api/handlers"
	"github.com/orrn/taskprinter/internal/api/middleware"
	"github.com/orrn/taskprinter/internal/config"
	"github.com/orrn/taskprinter/internal/core"
	"github.com/orrn/taskprinter/internal/db"
	"github.com/orrn/taskprinter/internal/mcpserver"
)

type Dependencies struct {
	Queue     handlers.JobQueue
	Config    core.ConfigSource
	Limits    config.LimitsConfig
	Templates *db.TemplateOperations
	Auth      *middleware.AuthMiddleware
	Pinger    handlers.Pinger
	Renderers core.RendererFactory
	Webhooks  handlers.WebhookTester
	// MCPEnabled mounts the MCP streamable HTTP endpoint at /api/v1/mcp.
	MCPEnabled bool
	Logger     *slog.Logger
}

// NewRouter wires every API route under /api/v1. Health and the auth
// endpoints stay public; everything else goes through RequireAuth.
func NewRouter(d Dependencies) *gin.Engine {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestLogger(logger.With("component", "http")))

	v1 := r.Group("/api/v1")
	printers := handlers.NewPrinterHandler(d.Queue, d.Config, d.Pinger, d.Renderers, logger)
	v1.GET("/healthz", printers.Health)
	middleware.RegisterAuthRoutes(v1, d.Auth)

	protected := v1.Group("", d.Auth.RequireAuth())
	protected.POST("/test-print", printers.TestPrint)
	protected.PUT("/settings/password", d.Auth.ChangePasswordHandler)
	handlers.RegisterJobRoutes(protected, handlers.NewJobHandler(d.Queue, d.Limits))
	handlers.RegisterTemplateRoutes(protected, handlers.NewTemplateHandler(d.Templates, d.Queue, logger))
	handlers.RegisterSettingsRoutes(protected, handlers.NewSettingsHandler(d.Config, logger))
	handlers.RegisterWebhookRoutes(protected, handlers.NewWebhookHandler(d.Webhooks))
	handlers.RegisterUploadRoutes(protected, handlers.NewUploadHandler(d.Config, logger))

	if d.MCPEnabled {
		m := mcpserver.New(mcpserver.Deps{
			Queue:     d.Queue,
			Templates: d.Templates,
			Config:    d.Config,
			Limits:    d.Limits,
			Health:    printers,
			Logger:    logger,
		})
		protected.Any(mcpserver.Path, gin.WrapH(m.Handler()))
	}

	r.GET("/healthz", printers.Health)
	return r
}
