package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultPath     = "./config.yaml"
	DefaultBaudRate = 19200
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Printer  PrinterConfig  `yaml:"printer"`
	Layout   LayoutConfig   `yaml:"layout"`
	Queue    QueueConfig    `yaml:"queue"`
	Logging  LoggingConfig  `yaml:"logging"`
	Auth     AuthConfig     `yaml:"auth"`
	Webhooks WebhooksConfig `yaml:"webhooks"`
	Limits   LimitsConfig   `yaml:"limits"`
	Uploads  UploadsConfig  `yaml:"uploads"`
	MCP      MCPConfig      `yaml:"mcp"`
}

type ServerConfig struct {
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// PrinterConfig describes how to reach the receipt printer. An empty Type
// means the printer has not been set up yet.
type PrinterConfig struct {
	Type        string `yaml:"type" json:"type"`
	NetworkIP   string `yaml:"network_ip" json:"network_ip,omitempty"`
	NetworkPort int    `yaml:"network_port" json:"network_port,omitempty"`
	DevicePath  string `yaml:"device_path" json:"device_path,omitempty"`
	// BaudRate applies to serial printers only.
	BaudRate          int           `yaml:"serial_baudrate" json:"serial_baudrate,omitempty"`
	ConnectionTimeout time.Duration `yaml:"connection_timeout" json:"connection_timeout,omitempty"`
}

func (p PrinterConfig) Configured() bool {
	return strings.TrimSpace(p.Type) != ""
}

type LayoutConfig struct {
	ReceiptWidth     int `yaml:"receipt_width" json:"receipt_width"`
	TaskFontSize     int `yaml:"task_font_size" json:"task_font_size"`
	MinFontSize      int `yaml:"min_font_size" json:"min_font_size"`
	MaxFontSize      int `yaml:"max_font_size" json:"max_font_size"`
	LeftMargin       int `yaml:"print_left_margin" json:"print_left_margin"`
	RightMargin      int `yaml:"print_right_margin" json:"print_right_margin"`
	TopMargin        int `yaml:"print_top_margin" json:"print_top_margin"`
	BottomMargin     int `yaml:"print_bottom_margin" json:"print_bottom_margin"`
	TextSafetyMargin int `yaml:"text_safety_margin" json:"text_safety_margin"`
	LineSpacing      int `yaml:"line_spacing" json:"line_spacing"`

	FlairSeparatorWidth int     `yaml:"flair_separator_width" json:"flair_separator_width"`
	FlairSeparatorGap   int     `yaml:"flair_separator_gap" json:"flair_separator_gap"`
	FlairColWidth       int     `yaml:"flair_col_width" json:"flair_col_width"`
	FlairTargetHeight   int     `yaml:"flair_target_height" json:"flair_target_height"`
	FlairIconScaleMax   float64 `yaml:"flair_icon_scale_max" json:"flair_icon_scale_max"`
	// MinTextWidth of 0 means max(180, 45% of the receipt width).
	MinTextWidth int `yaml:"min_text_width" json:"min_text_width"`

	EnableDynamicFontSizing bool         `yaml:"enable_dynamic_font_sizing" json:"enable_dynamic_font_sizing"`
	MaxOverflowChars        int          `yaml:"max_overflow_chars_for_dynamic_sizing" json:"max_overflow_chars_for_dynamic_sizing"`
	Sizing                  SizingConfig `yaml:"sizing" json:"sizing"`

	CutFeedLines    int  `yaml:"cut_feed_lines" json:"cut_feed_lines"`
	TearFeedLines   int  `yaml:"tear_feed_lines" json:"tear_feed_lines"`
	PrintSeparators bool `yaml:"print_separators" json:"print_separators"`

	FontPath            string   `yaml:"font_path" json:"font_path,omitempty"`
	EmojiFontPath       string   `yaml:"emoji_font_path" json:"emoji_font_path,omitempty"`
	FontCandidates      []string `yaml:"font_candidates" json:"font_candidates"`
	EmojiFontCandidates []string `yaml:"emoji_font_candidates" json:"emoji_font_candidates"`
	IconsDir            string   `yaml:"icons_dir" json:"icons_dir,omitempty"`
	EmojiHealthSample   string   `yaml:"emoji_health_sample" json:"emoji_health_sample,omitempty"`

	// Set from TASKPRINTER_FONT_PATH / TASKPRINTER_EMOJI_FONT_PATH only.
	FontOverride      string `yaml:"-" json:"-"`
	EmojiFontOverride string `yaml:"-" json:"-"`
}

// SizingConfig holds the thresholds of the dynamic font size search.
type SizingConfig struct {
	ShortTextChars int `yaml:"short_text_chars" json:"short_text_chars"`
	FineStep       int `yaml:"fine_step" json:"fine_step"`
	CoarseStep     int `yaml:"coarse_step" json:"coarse_step"`
	MaxLines       int `yaml:"max_lines" json:"max_lines"`
	TargetLines    int `yaml:"target_lines" json:"target_lines"`
	ComfortMargin  int `yaml:"comfort_margin" json:"comfort_margin"`
}

type QueueConfig struct {
	Size    int `yaml:"size"`
	JobsMax int `yaml:"jobs_max"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type AuthConfig struct {
	Enabled       bool          `yaml:"enabled"`
	JWTSecret     string        `yaml:"jwt_secret"`
	TokenDuration time.Duration `yaml:"token_duration"`
}

type WebhooksConfig struct {
	Endpoints  []WebhookEndpoint `yaml:"endpoints"`
	Workers    int               `yaml:"workers"`
	MaxRetries int               `yaml:"max_retries"`
	Timeout    time.Duration     `yaml:"timeout"`
}

type WebhookEndpoint struct {
	Name   string   `yaml:"name"`
	URL    string   `yaml:"url"`
	Secret string   `yaml:"secret"`
	Events []string `yaml:"events"`
}

// LimitsConfig bounds what the API accepts in a single submission.
type LimitsConfig struct {
	MaxSections        int   `yaml:"max_sections" json:"max_sections"`
	MaxTasksPerSection int   `yaml:"max_tasks_per_section" json:"max_tasks_per_section"`
	MaxTaskLen         int   `yaml:"max_task_len" json:"max_task_len"`
	MaxCategoryLen     int   `yaml:"max_category_len" json:"max_category_len"`
	MaxTotalChars      int   `yaml:"max_total_chars" json:"max_total_chars"`
	MaxQRLen           int   `yaml:"max_qr_len" json:"max_qr_len"`
	MaxUploadSize      int64 `yaml:"max_upload_size" json:"max_upload_size"`
}

// UploadsConfig is where uploaded flair images are stored. Image flair
// values name files inside Dir.
type UploadsConfig struct {
	Dir string `yaml:"dir"`
}

// MCPConfig controls the Model Context Protocol endpoint served at
// /api/v1/mcp.
type MCPConfig struct {
	Enabled bool `yaml:"enabled"`
}

var defaultFontCandidates = []string{
	"/usr/share/fonts/truetype/dejavu/DejaVuSans.ttf",
	"/usr/share/fonts/truetype/freefont/FreeSans.ttf",
	"/usr/share/fonts/truetype/liberation/LiberationSans-Regular.ttf",
	"/usr/share/fonts/truetype/noto/NotoSans-Regular.ttf",
	"/usr/share/fonts/truetype/msttcorefonts/Arial.ttf",
	"/usr/share/fonts/dejavu/DejaVuSans.ttf",
	"/usr/share/fonts/TTF/DejaVuSans.ttf",
}

var defaultEmojiFontCandidates = []string{
	"/usr/share/fonts/truetype/noto/NotoEmoji-Regular.ttf",
	"/usr/share/fonts/truetype/openmoji/OpenMoji-Black.ttf",
	"/usr/share/fonts/truetype/ancient-scripts/Symbola_hint.ttf",
	"/usr/share/fonts/truetype/noto/NotoColorEmoji.ttf",
	"C:/Windows/Fonts/seguiemj.ttf",
	"/System/Library/Fonts/Apple Color Emoji.ttc",
}

func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         5000,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		Database: DatabaseConfig{
			Path: "./data/taskprinter.db",
		},
		Printer: PrinterConfig{
			NetworkPort:       9100,
			BaudRate:          DefaultBaudRate,
			ConnectionTimeout: 10 * time.Second,
		},
		Layout: LayoutConfig{
			ReceiptWidth:     512,
			TaskFontSize:     72,
			MinFontSize:      32,
			MaxFontSize:      96,
			LeftMargin:       16,
			RightMargin:      16,
			TopMargin:        10,
			BottomMargin:     10,
			TextSafetyMargin: 4,
			LineSpacing:      10,

			FlairSeparatorWidth: 3,
			FlairSeparatorGap:   14,
			FlairColWidth:       256,
			FlairTargetHeight:   256,
			FlairIconScaleMax:   2.0,

			EnableDynamicFontSizing: true,
			MaxOverflowChars:        3,
			Sizing: SizingConfig{
				ShortTextChars: 30,
				FineStep:       2,
				CoarseStep:     4,
				MaxLines:       6,
				TargetLines:    3,
				ComfortMargin:  8,
			},

			CutFeedLines:    2,
			TearFeedLines:   2,
			PrintSeparators: true,

			FontCandidates:      append([]string(nil), defaultFontCandidates...),
			EmojiFontCandidates: append([]string(nil), defaultEmojiFontCandidates...),
			IconsDir:            "./static/icons",
			EmojiHealthSample:   "✅",
		},
		Queue: QueueConfig{
			Size:    1024,
			JobsMax: 200,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Auth: AuthConfig{
			TokenDuration: 24 * time.Hour,
		},
		Webhooks: WebhooksConfig{
			Workers:    2,
			MaxRetries: 3,
			Timeout:    10 * time.Second,
		},
		Limits: LimitsConfig{
			MaxSections:        50,
			MaxTasksPerSection: 50,
			MaxTaskLen:         200,
			MaxCategoryLen:     100,
			MaxTotalChars:      5000,
			MaxQRLen:           512,
			MaxUploadSize:      5 * 1024 * 1024,
		},
		Uploads: UploadsConfig{
			Dir: "./data/uploads",
		},
		MCP: MCPConfig{
			Enabled: true,
		},
	}
}

// Default returns the built-in configuration without reading any file or
// environment variable.
func Default() *Config {
	return defaults()
}

// Load reads the YAML file at configPath over the defaults. A missing file is
// not an error.
func Load(configPath string) (*Config, error) {
	cfg := defaults()

	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return cfg, nil
}

// LoadWithEnv loads the file and then applies TASKPRINTER_* overrides.
func LoadWithEnv(configPath string) (*Config, error) {
	cfg, err := Load(configPath)
	if err != nil {
		return nil, err
	}
	cfg.ApplyEnv()
	return cfg, nil
}

// Path returns the config file location from TASKPRINTER_CONFIG_PATH.
func Path() string {
	if v := os.Getenv("TASKPRINTER_CONFIG_PATH"); v != "" {
		return v
	}
	return DefaultPath
}

func (c *Config) ApplyEnv() {
	if v := os.Getenv("TASKPRINTER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Server.Port = port
		}
	}

	if v := os.Getenv("TASKPRINTER_DB_PATH"); v != "" {
		c.Database.Path = v
	}

	if v := os.Getenv("TASKPRINTER_LOG_LEVEL"); v != "" {
		c.Logging.Level = strings.ToLower(v)
	}

	if v := os.Getenv("TASKPRINTER_LOG_FORMAT"); v != "" {
		c.Logging.Format = strings.ToLower(v)
	}

	if v := os.Getenv("TASKPRINTER_PRINTER_TYPE"); v != "" {
		c.Printer.Type = v
	}

	if v := os.Getenv("TASKPRINTER_PRINTER_IP"); v != "" {
		c.Printer.NetworkIP = v
	}

	if v := os.Getenv("TASKPRINTER_PRINTER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Printer.NetworkPort = port
		}
	}

	if v := os.Getenv("TASKPRINTER_PRINTER_DEVICE"); v != "" {
		c.Printer.DevicePath = v
	}

	if v := os.Getenv("TASKPRINTER_SERIAL_BAUDRATE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Printer.BaudRate = n
		}
	}

	if v := os.Getenv("TASKPRINTER_UPLOADS_DIR"); v != "" {
		c.Uploads.Dir = v
	}

	if v := os.Getenv("TASKPRINTER_MCP_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.MCP.Enabled = b
		}
	}

	if v := os.Getenv("TASKPRINTER_JOBS_MAX"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Queue.JobsMax = n
		}
	}

	if v := os.Getenv("TASKPRINTER_ICONS_DIR"); v != "" {
		c.Layout.IconsDir = v
	}

	if v := os.Getenv("TASKPRINTER_FONT_PATH"); v != "" {
		c.Layout.FontOverride = v
	}

	if v := os.Getenv("TASKPRINTER_EMOJI_FONT_PATH"); v != "" {
		c.Layout.EmojiFontOverride = v
	}

	if v := os.Getenv("TASKPRINTER_AUTH_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Auth.Enabled = b
		}
	}

	if v := os.Getenv("TASKPRINTER_JWT_SECRET"); v != "" {
		c.Auth.JWTSecret = v
	}
}

func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server port must be between 1 and 65535, got %d", c.Server.Port)
	}

	if c.Server.ReadTimeout < 0 || c.Server.WriteTimeout < 0 {
		return fmt.Errorf("server timeouts must be non-negative")
	}

	if c.Database.Path == "" {
		return fmt.Errorf("database path is required")
	}

	if err := c.Printer.Validate(); err != nil {
		return err
	}

	if err := c.Layout.Validate(); err != nil {
		return err
	}

	if c.Queue.Size < 1 {
		return fmt.Errorf("queue size must be at least 1")
	}

	if c.Queue.JobsMax < 1 {
		return fmt.Errorf("jobs max must be at least 1")
	}

	validLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}

	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s (valid: debug, info, warn, error)", c.Logging.Level)
	}

	validFormats := map[string]bool{
		"json": true,
		"text": true,
	}

	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("invalid log format: %s (valid: json, text)", c.Logging.Format)
	}

	if c.Uploads.Dir == "" {
		return fmt.Errorf("uploads dir is required")
	}

	if c.Limits.MaxUploadSize < 1 {
		return fmt.Errorf("max upload size must be positive")
	}

	for _, ep := range c.Webhooks.Endpoints {
		if ep.URL == "" {
			return fmt.Errorf("webhook %q: url is required", ep.Name)
		}
	}

	return nil
}

func (p PrinterConfig) Validate() error {
	switch p.Type {
	case "":
		return nil
	case "network":
		if p.NetworkIP == "" {
			return fmt.Errorf("printer network_ip is required for network printers")
		}
		if p.NetworkPort < 1 || p.NetworkPort > 65535 {
			return fmt.Errorf("printer network_port must be between 1 and 65535, got %d", p.NetworkPort)
		}
	case "usb", "serial", "file":
		if p.DevicePath == "" {
			return fmt.Errorf("printer device_path is required for %s printers", p.Type)
		}
		if p.Type == "serial" && p.BaudRate < 0 {
			return fmt.Errorf("printer serial_baudrate must not be negative, got %d", p.BaudRate)
		}
	default:
		return fmt.Errorf("invalid printer type: %s (valid: network, usb, serial, file)", p.Type)
	}

	if p.ConnectionTimeout < 0 {
		return fmt.Errorf("connection timeout must be non-negative")
	}

	return nil
}

func (l LayoutConfig) Validate() error {
	if l.ReceiptWidth < 64 {
		return fmt.Errorf("receipt width must be at least 64, got %d", l.ReceiptWidth)
	}

	if l.MinFontSize < 1 || l.MaxFontSize < l.MinFontSize {
		return fmt.Errorf("font size range [%d, %d] is invalid", l.MinFontSize, l.MaxFontSize)
	}

	if l.TaskFontSize < 1 {
		return fmt.Errorf("task font size must be positive")
	}

	if l.LeftMargin < 0 || l.RightMargin < 0 || l.TopMargin < 0 || l.BottomMargin < 0 {
		return fmt.Errorf("margins must be non-negative")
	}

	if l.LeftMargin+l.RightMargin >= l.ReceiptWidth {
		return fmt.Errorf("horizontal margins leave no printable width")
	}

	if l.FlairIconScaleMax <= 0 {
		return fmt.Errorf("flair icon scale max must be positive")
	}

	if l.CutFeedLines < 0 || l.TearFeedLines < 0 {
		return fmt.Errorf("feed lines must be non-negative")
	}

	return nil
}

// EffectiveMinTextWidth resolves the zero value of MinTextWidth.
func (l LayoutConfig) EffectiveMinTextWidth() int {
	if l.MinTextWidth > 0 {
		return l.MinTextWidth
	}
	w := l.ReceiptWidth * 45 / 100
	if w < 180 {
		w = 180
	}
	return w
}
