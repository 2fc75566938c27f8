package core

import (
	"context"
	"errors"
	"fmt"
	"image"
	"time"

	"github.com/orrn/taskprinter/internal/config"
	"github.com/orrn/taskprinter/internal/render"
)

type JobKind string

const (
	JobKindTasks JobKind = "tasks"
	JobKindTest  JobKind = "test"
)

type JobStatus string

const (
	JobStatusQueued  JobStatus = "queued"
	JobStatusRunning JobStatus = "running"
	JobStatusSuccess JobStatus = "success"
	JobStatusError   JobStatus = "error"
)

func (s JobStatus) rank() int {
	switch s {
	case JobStatusQueued:
		return 0
	case JobStatusRunning:
		return 1
	case JobStatusSuccess, JobStatusError:
		return 2
	default:
		return -1
	}
}

func (s JobStatus) Terminal() bool {
	return s == JobStatusSuccess || s == JobStatusError
}

type Job struct {
	ID        string       `json:"id"`
	Kind      JobKind      `json:"type"`
	Status    JobStatus    `json:"status"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
	Total     int          `json:"total"`
	Printed   int          `json:"printed"`
	Error     string       `json:"error,omitempty"`
	Options   PrintOptions `json:"options"`
	Origin    string       `json:"origin,omitempty"`

	seq uint64
}

type FlairKind string

const (
	FlairNone  FlairKind = ""
	FlairIcon  FlairKind = "icon"
	FlairImage FlairKind = "image"
	FlairQR    FlairKind = "qr"
	FlairEmoji FlairKind = "emoji"
)

// Flair decorates a task. Value is the icon name, image path, QR payload or
// emoji; Data carries image bytes supplied directly.
type Flair struct {
	Kind  FlairKind `json:"type,omitempty"`
	Value string    `json:"value,omitempty"`
	Data  []byte    `json:"-"`
}

type TaskItem struct {
	Category string           `json:"category"`
	Text     string           `json:"text"`
	Flair    Flair            `json:"flair"`
	Metadata *render.Metadata `json:"metadata,omitempty"`
}

func (t TaskItem) clone() TaskItem {
	c := t
	if t.Flair.Data != nil {
		c.Flair.Data = append([]byte(nil), t.Flair.Data...)
	}
	if t.Metadata != nil {
		m := *t.Metadata
		c.Metadata = &m
	}
	return c
}

const MaxTearDelaySeconds = 60

type PrintOptions struct {
	TearDelaySeconds float64 `json:"tear_delay_seconds,omitempty"`
}

// Normalized clamps the tear delay to [0, 60]. Negative delays mean no
// delay.
func (o PrintOptions) Normalized() PrintOptions {
	switch {
	case o.TearDelaySeconds < 0:
		o.TearDelaySeconds = 0
	case o.TearDelaySeconds > MaxTearDelaySeconds:
		o.TearDelaySeconds = MaxTearDelaySeconds
	}
	return o
}

// TearOff reports whether the job pauses between items instead of cutting.
func (o PrintOptions) TearOff() bool {
	return o.Normalized().TearDelaySeconds > 0
}

func (o PrintOptions) Delay() time.Duration {
	return time.Duration(o.Normalized().TearDelaySeconds * float64(time.Second))
}

var (
	ErrConfigMissing    = errors.New("printer is not configured")
	ErrQueueFull        = errors.New("job queue is full")
	ErrQueueStopped     = errors.New("job queue is stopped")
	ErrTransportConnect = errors.New("transport connect failed")
	ErrFlairRender      = errors.New("flair render failed")
)

type Stage string

const (
	StageConnect Stage = "connect"
	StageRender  Stage = "render"
	StageWrite   Stage = "write"
)

// StageError records which step of a job failed and for which item. Item is
// 1-based and 0 when the failure is not tied to an item.
type StageError struct {
	Stage Stage
	Item  int
	Err   error
}

func (e *StageError) Error() string {
	if e.Item > 0 {
		return fmt.Sprintf("%s failed on item %d: %v", e.Stage, e.Item, e.Err)
	}
	return fmt.Sprintf("%s failed: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// Printer is an open transport session.
type Printer interface {
	WriteRaster(img *image.Gray) error
	WriteText(s string) error
	QR(payload string) error
	Cut() error
	Close() error
}

type Connector interface {
	Connect(ctx context.Context, cfg config.PrinterConfig) (Printer, error)
}

type ConnectorFunc func(ctx context.Context, cfg config.PrinterConfig) (Printer, error)

func (f ConnectorFunc) Connect(ctx context.Context, cfg config.PrinterConfig) (Printer, error) {
	return f(ctx, cfg)
}

// Renderer turns task content into rasters. *render.Engine implements it.
type Renderer interface {
	RenderTextOnly(text string) (*render.Canvas, error)
	RenderTextWithFlair(text string, flair image.Image) (*render.Canvas, error)
	RenderMetadata(m *render.Metadata) (*render.Canvas, error)
	IconRaster(name string) (*image.Gray, error)
	ImageRaster(data []byte, path string) (*image.Gray, error)
	EmojiRaster(glyph string, targetHeight int) (*image.Gray, error)
}

// RendererFactory builds a renderer for the layout in effect for one job.
type RendererFactory func(layout config.LayoutConfig) Renderer

// ConfigSource returns the configuration current at the time of the call.
type ConfigSource func() (*config.Config, error)

type EventSender interface {
	SendJobEvent(event string, job Job) error
}

const (
	EventJobQueued    = "job_queued"
	EventJobStarted   = "job_started"
	EventJobCompleted = "job_completed"
	EventJobFailed    = "job_failed"
)

type WorkerStatus struct {
	Started   bool `json:"worker_started"`
	Alive     bool `json:"worker_alive"`
	QueueSize int  `json:"queue_size"`
}
