package handlers

import (
	"log/slog"
	"net/http"
	"path/filepath"
	"sort"

	"github.com/gin-gonic/gin"

	"github.com/orrn/taskprinter/internal/assets"
	"github.com/orrn/taskprinter/internal/config"
	"github.com/orrn/taskprinter/internal/core"
	"github.com/orrn/taskprinter/internal/render"
)

type ServerSettings struct {
	Port         int    `json:"port"`
	DatabasePath string `json:"database_path"`
	ReadTimeout  string `json:"read_timeout"`
	WriteTimeout string `json:"write_timeout"`
}

type PrinterSettings struct {
	Type              string `json:"type"`
	NetworkIP         string `json:"network_ip,omitempty"`
	NetworkPort       int    `json:"network_port,omitempty"`
	DevicePath        string `json:"device_path,omitempty"`
	ConnectionTimeout string `json:"connection_timeout"`
	Configured        bool   `json:"configured"`
}

type WebhookSettings struct {
	Name   string   `json:"name"`
	URL    string   `json:"url"`
	Events []string `json:"events"`
	Signed bool     `json:"signed"`
}

// SettingsResponse is the effective configuration with secrets removed.
type SettingsResponse struct {
	Server      ServerSettings      `json:"server"`
	Printer     PrinterSettings     `json:"printer"`
	Layout      config.LayoutConfig `json:"layout"`
	Limits      config.LimitsConfig `json:"limits"`
	QueueSize   int                 `json:"queue_size"`
	JobsMax     int                 `json:"jobs_max"`
	LogLevel    string              `json:"log_level"`
	LogFormat   string              `json:"log_format"`
	AuthEnabled bool                `json:"auth_enabled"`
	Webhooks    []WebhookSettings   `json:"webhooks"`
}

type IconResponse struct {
	Name string `json:"name"`
	File string `json:"file"`
}

type SettingsHandler struct {
	config core.ConfigSource
	logger *slog.Logger
}

func NewSettingsHandler(source core.ConfigSource, logger *slog.Logger) *SettingsHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &SettingsHandler{config: source, logger: logger}
}

func (h *SettingsHandler) GetSettings(c *gin.Context) {
	cfg, err := h.config()
	if err != nil {
		h.logger.Error("failed to load config", "error", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "config_error", Message: "Failed to load configuration"})
		return
	}
	c.JSON(http.StatusOK, SettingsFromConfig(cfg))
}

func SettingsFromConfig(cfg *config.Config) SettingsResponse {
	resp := SettingsResponse{
		Server: ServerSettings{
			Port:         cfg.Server.Port,
			DatabasePath: cfg.Database.Path,
			ReadTimeout:  cfg.Server.ReadTimeout.String(),
			WriteTimeout: cfg.Server.WriteTimeout.String(),
		},
		Printer: PrinterSettings{
			Type:              cfg.Printer.Type,
			NetworkIP:         cfg.Printer.NetworkIP,
			NetworkPort:       cfg.Printer.NetworkPort,
			DevicePath:        cfg.Printer.DevicePath,
			ConnectionTimeout: cfg.Printer.ConnectionTimeout.String(),
			Configured:        cfg.Printer.Configured(),
		},
		Layout:      cfg.Layout,
		Limits:      cfg.Limits,
		QueueSize:   cfg.Queue.Size,
		JobsMax:     cfg.Queue.JobsMax,
		LogLevel:    cfg.Logging.Level,
		LogFormat:   cfg.Logging.Format,
		AuthEnabled: cfg.Auth.Enabled,
		Webhooks:    []WebhookSettings{},
	}
	for _, ep := range cfg.Webhooks.Endpoints {
		resp.Webhooks = append(resp.Webhooks, webhookSettings(ep))
	}
	return resp
}

// ListIcons returns the icons available for icon flair, by name.
func (h *SettingsHandler) ListIcons(c *gin.Context) {
	cfg, err := h.config()
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "config_error", Message: "Failed to load configuration"})
		return
	}

	files, err := assets.ListIconFiles(cfg.Layout.IconsDir)
	if err != nil {
		h.logger.Warn("failed to list icons", "dir", cfg.Layout.IconsDir, "error", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "icons_error", Message: "Failed to list icons"})
		return
	}

	set := render.NewIconSet(cfg.Layout.IconsDir, files)
	names := set.Names()
	sort.Strings(names)
	icons := []IconResponse{}
	for _, name := range names {
		path, _ := set.Lookup(name)
		icons = append(icons, IconResponse{Name: name, File: filepath.Base(path)})
	}
	c.JSON(http.StatusOK, icons)
}

func RegisterSettingsRoutes(r *gin.RouterGroup, h *SettingsHandler) {
	r.GET("/settings", h.GetSettings)
	r.GET("/icons", h.ListIcons)
}
