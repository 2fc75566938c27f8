package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/orrn/taskprinter/internal/api"
	"github.com/orrn/taskprinter/internal/api/handlers"
	"github.com/orrn/taskprinter/internal/api/middleware"
	"github.com/orrn/taskprinter/internal/assets"
	"github.com/orrn/taskprinter/internal/config"
	"github.com/orrn/taskprinter/internal/core"
	"github.com/orrn/taskprinter/internal/db"
	"github.com/orrn/taskprinter/internal/escpos"
	"github.com/orrn/taskprinter/internal/logging"
	"github.com/orrn/taskprinter/internal/mcpserver"
	"github.com/orrn/taskprinter/internal/render"
	"github.com/orrn/taskprinter/internal/webhook"
)

const shutdownTimeout = 15 * time.Second

func main() {
	printToken := flag.Bool("token", false, "print a signed API token and exit")
	mcpStdio := flag.Bool("mcp-stdio", false, "serve MCP over stdin and stdout instead of HTTP")
	flag.Parse()

	loadDotEnv()

	if err := run(*printToken, *mcpStdio); err != nil {
		fmt.Fprintf(os.Stderr, "taskprinter: %v\n", err)
		os.Exit(1)
	}
}

func run(printToken, mcpStdio bool) error {
	configPath := config.Path()
	cfg, err := config.LoadWithEnv(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logger := logging.Setup(cfg.Logging)

	conn, err := db.Open(db.Config{Path: cfg.Database.Path})
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer conn.Close()

	auth, err := middleware.NewAuthMiddleware(db.NewSettingsOperations(conn), cfg.Auth)
	if err != nil {
		return fmt.Errorf("init auth: %w", err)
	}
	if printToken {
		token, err := auth.GenerateToken()
		if err != nil {
			return fmt.Errorf("generate token: %w", err)
		}
		fmt.Println(token)
		return nil
	}

	source := func() (*config.Config, error) {
		c, err := config.LoadWithEnv(configPath)
		if err != nil {
			return nil, err
		}
		return c, c.Validate()
	}

	dialer := escpos.NewDialer(logger.With("component", "escpos"))
	connector := core.ConnectorFunc(func(ctx context.Context, pc config.PrinterConfig) (core.Printer, error) {
		c, err := dialer.Connect(ctx, pc)
		if err != nil {
			return nil, err
		}
		return c, nil
	})

	sender := webhook.NewSender(cfg.Webhooks, logger)
	sender.Start()
	defer sender.Stop()

	renderers := newRendererFactory(logger)
	queue := core.NewQueue(core.QueueOptions{
		Size:         cfg.Queue.Size,
		JobsMax:      cfg.Queue.JobsMax,
		ConfigSource: source,
		Connector:    connector,
		Renderers:    renderers,
		Events:       sender,
		Logger:       logger,
	})
	queue.EnsureWorker()

	templates := db.NewTemplateOperations(conn, cfg.Limits)

	if mcpStdio {
		serveErr := mcpserver.New(mcpserver.Deps{
			Queue:     queue,
			Templates: templates,
			Config:    source,
			Limits:    cfg.Limits,
			Health:    handlers.NewPrinterHandler(queue, source, dialer, renderers, logger),
			Logger:    logger,
		}).ServeStdio()

		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := queue.Stop(ctx); err != nil {
			logger.Warn("queue did not drain before timeout", "error", err)
		}
		return serveErr
	}

	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := api.NewRouter(api.Dependencies{
		Queue:      queue,
		Config:     source,
		Limits:     cfg.Limits,
		Templates:  templates,
		Auth:       auth,
		Pinger:     dialer,
		Renderers:  renderers,
		Webhooks:   sender,
		MCPEnabled: cfg.MCP.Enabled,
		Logger:     logger,
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", srv.Addr, "config", configPath,
			"printer_configured", cfg.Printer.Configured(), "auth", cfg.Auth.Enabled, "mcp", cfg.MCP.Enabled)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		logger.Info("shutting down", "signal", sig.String())
	case err, ok := <-serveErr:
		if ok {
			return fmt.Errorf("http server: %w", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Warn("http shutdown", "error", err)
	}
	if err := queue.Stop(ctx); err != nil {
		logger.Warn("queue did not drain before timeout", "error", err)
	}
	return nil
}

// newRendererFactory builds a render engine per job from the layout in
// effect at that time, so font and icon changes apply without a restart.
func newRendererFactory(logger *slog.Logger) core.RendererFactory {
	renderLogger := logger.With("component", "render")
	return func(layout config.LayoutConfig) core.Renderer {
		files, err := assets.ListIconFiles(layout.IconsDir)
		if err != nil {
			renderLogger.Warn("icon listing failed, using placeholders", "dir", layout.IconsDir, "error", err)
		}
		return render.NewEngine(
			layout,
			render.NewTextResolver(layout),
			render.NewEmojiResolver(layout),
			render.NewIconSet(layout.IconsDir, files),
			renderLogger,
		)
	}
}

func loadDotEnv() {
	dir, err := os.Getwd()
	if err != nil {
		return
	}
	for i := 0; i < 5; i++ {
		envPath := filepath.Join(dir, ".env")
		if _, err := os.Stat(envPath); err == nil {
			_ = godotenv.Load(envPath)
			return
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return
		}
		dir = parent
	}
}
