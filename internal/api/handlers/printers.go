package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/orrn/taskprinter/internal/config"
	"github.com/orrn/taskprinter/internal/core"
	"github.com/orrn/taskprinter/internal/render"
)

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// Pinger checks that a printer accepts connections.
type Pinger interface {
	Ping(ctx context.Context, cfg config.PrinterConfig) error
}

type TestPrintRequest struct {
	Printer *config.PrinterConfig `json:"printer"`
}

type PrinterHealth struct {
	Configured bool   `json:"configured"`
	Type       string `json:"type,omitempty"`
	Reachable  bool   `json:"reachable"`
	Error      string `json:"error,omitempty"`
}

// EmojiHealth is the outcome of rendering the configured sample glyph.
type EmojiHealth struct {
	OK       bool   `json:"ok"`
	Sample   string `json:"sample"`
	FontPath string `json:"font_path,omitempty"`
	Error    string `json:"error,omitempty"`
}

type HealthResponse struct {
	Status    string            `json:"status"`
	Reason    string            `json:"reason,omitempty"`
	Worker    core.WorkerStatus `json:"worker"`
	Config    bool              `json:"config_present"`
	Printer   PrinterHealth     `json:"printer"`
	Emoji     *EmojiHealth      `json:"emoji_font,omitempty"`
	CheckedAt time.Time         `json:"checked_at"`
}

const (
	pingTimeout       = 3 * time.Second
	emojiSampleHeight = 64
)

type PrinterHandler struct {
	queue     JobQueue
	config    core.ConfigSource
	pinger    Pinger
	renderers core.RendererFactory
	logger    *slog.Logger
}

// NewPrinterHandler builds the health and test-print handlers. renderers may
// be nil, which skips the emoji check.
func NewPrinterHandler(queue JobQueue, source core.ConfigSource, pinger Pinger, renderers core.RendererFactory, logger *slog.Logger) *PrinterHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &PrinterHandler{
		queue:     queue,
		config:    source,
		pinger:    pinger,
		renderers: renderers,
		logger:    logger,
	}
}

func (h *PrinterHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, h.Check(c.Request.Context()))
}

// Check reports worker liveness, whether a printer is configured and
// answers, and whether the emoji sample renders. Any failure is "degraded"
// and the first one is named in Reason.
func (h *PrinterHandler) Check(ctx context.Context) HealthResponse {
	resp := HealthResponse{
		Status:    "ok",
		Worker:    h.queue.WorkerStatus(),
		CheckedAt: time.Now().UTC(),
	}

	cfg, err := h.config()
	if err != nil {
		h.logger.Warn("health: config unavailable", "error", err)
	}
	if cfg != nil {
		resp.Config = true
		resp.Printer.Configured = cfg.Printer.Configured()
		resp.Printer.Type = cfg.Printer.Type
	}

	if resp.Printer.Configured && h.pinger != nil {
		checkCtx, cancel := context.WithTimeout(ctx, pingTimeout)
		defer cancel()
		if err := h.pinger.Ping(checkCtx, cfg.Printer); err != nil {
			resp.Printer.Error = err.Error()
		} else {
			resp.Printer.Reachable = true
		}
	}

	if cfg != nil && h.renderers != nil {
		resp.Emoji = h.checkEmoji(cfg.Layout)
	}

	switch {
	case !resp.Worker.Alive:
		resp.Reason = "worker_down"
	case !resp.Config:
		resp.Reason = "no_config"
	case !resp.Printer.Configured:
		resp.Reason = "printer_not_configured"
	case !resp.Printer.Reachable:
		resp.Reason = "printer_unreachable"
	case resp.Emoji != nil && !resp.Emoji.OK:
		resp.Reason = "emoji_unavailable"
	}
	if resp.Reason != "" {
		resp.Status = "degraded"
	}
	return resp
}

func (h *PrinterHandler) checkEmoji(layout config.LayoutConfig) *EmojiHealth {
	sample := layout.EmojiHealthSample
	if sample == "" {
		sample = config.Default().Layout.EmojiHealthSample
	}
	eh := &EmojiHealth{Sample: sample, FontPath: layout.EmojiFontPath}

	img, err := h.renderers(layout).EmojiRaster(sample, emojiSampleHeight)
	switch {
	case err != nil:
		eh.Error = err.Error()
	case img == nil || render.InkBounds(img, 128).Empty():
		eh.Error = "sample rendered no ink"
	default:
		eh.OK = true
	}
	if !eh.OK {
		h.logger.Warn("health: emoji sample failed", "sample", sample, "error", eh.Error)
	}
	return eh
}

// TestPrint queues a fixed test receipt, optionally against a printer
// configuration that has not been saved yet.
func (h *PrinterHandler) TestPrint(c *gin.Context) {
	var req TestPrintRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{
				Error:   "invalid_json",
				Message: "Request body must be a JSON object",
			})
			return
		}
	}

	if req.Printer != nil {
		if !req.Printer.Configured() {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "validation_error", Message: "printer type is required"})
			return
		}
		if req.Printer.NetworkPort == 0 {
			req.Printer.NetworkPort = config.Default().Printer.NetworkPort
		}
		if err := req.Printer.Validate(); err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "validation_error", Message: err.Error()})
			return
		}
	}

	id, err := h.queue.EnqueueTest(req.Printer, "test-print")
	if err != nil {
		respondEnqueueError(c, err)
		return
	}
	respondAccepted(c, id)
}
