package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/orrn/taskprinter/internal/assets"
	"github.com/orrn/taskprinter/internal/config"
	"github.com/orrn/taskprinter/internal/core"
	"github.com/orrn/taskprinter/internal/db"
	"github.com/orrn/taskprinter/internal/render"
)

// JobQueue is the part of core.Queue the HTTP layer uses.
type JobQueue interface {
	EnqueueFrom(items []core.TaskItem, opts core.PrintOptions, origin string) (string, error)
	EnqueueTest(override *config.PrinterConfig, origin string) (string, error)
	GetJob(id string) (core.Job, bool)
	ListJobs() []core.Job
	WorkerStatus() core.WorkerStatus
}

type JobSection struct {
	Category string    `json:"category"`
	Tasks    []db.Task `json:"tasks"`
}

type OptionsRequest struct {
	TearDelaySeconds float64 `json:"tear_delay_seconds"`
}

type SubmitJobRequest struct {
	Sections []JobSection    `json:"sections"`
	Options  *OptionsRequest `json:"options"`
}

type JobLinks struct {
	Self string `json:"self"`
}

type SubmitJobResponse struct {
	ID     string         `json:"id"`
	Status core.JobStatus `json:"status"`
	Links  JobLinks       `json:"links"`
}

type ListJobsResponse struct {
	Jobs  []core.Job `json:"jobs"`
	Total int        `json:"total"`
}

type JobHandler struct {
	queue  JobQueue
	limits config.LimitsConfig
}

func NewJobHandler(queue JobQueue, limits config.LimitsConfig) *JobHandler {
	return &JobHandler{queue: queue, limits: limits}
}

func (h *JobHandler) CreateJob(c *gin.Context) {
	var req SubmitJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_json",
			Message: "Request body must be a JSON object with sections",
		})
		return
	}

	sections := make([]db.Section, len(req.Sections))
	for i, s := range req.Sections {
		sections[i] = db.Section{Subtitle: s.Category, Tasks: s.Tasks}
	}
	if err := db.ValidateSubmission(sections, h.limits); err != nil {
		respondValidation(c, err)
		return
	}
	if err := CheckImageFlair(sections); err != nil {
		respondValidation(c, err)
		return
	}

	var opts core.PrintOptions
	if req.Options != nil {
		opts.TearDelaySeconds = req.Options.TearDelaySeconds
	}

	id, err := h.queue.EnqueueFrom(TaskItems(sections), opts.Normalized(), "api")
	if err != nil {
		respondEnqueueError(c, err)
		return
	}
	respondAccepted(c, id)
}

func (h *JobHandler) ListJobs(c *gin.Context) {
	jobs := h.queue.ListJobs()
	if jobs == nil {
		jobs = []core.Job{}
	}
	if status := c.Query("status"); status != "" {
		filtered := jobs[:0:0]
		for _, j := range jobs {
			if string(j.Status) == status {
				filtered = append(filtered, j)
			}
		}
		jobs = filtered
	}
	c.JSON(http.StatusOK, ListJobsResponse{Jobs: jobs, Total: len(jobs)})
}

func (h *JobHandler) GetJob(c *gin.Context) {
	job, ok := h.queue.GetJob(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error:   "not_found",
			Message: "Job not found",
		})
		return
	}
	c.JSON(http.StatusOK, job)
}

// TaskItems flattens sections into printable items, one per task, with the
// section subtitle as the category. Blank tasks are kept so the job total
// reflects what was submitted.
func TaskItems(sections []db.Section) []core.TaskItem {
	var items []core.TaskItem
	for _, sec := range sections {
		category := strings.TrimSpace(sec.Subtitle)
		for _, t := range sec.Tasks {
			item := core.TaskItem{
				Category: category,
				Text:     strings.TrimSpace(t.Text),
				Flair:    flairFromTask(t),
			}
			if t.Metadata != nil {
				md := &render.Metadata{
					Assigned: t.Metadata.Assigned,
					Due:      t.Metadata.Due,
					Priority: t.Metadata.Priority,
					Assignee: t.Metadata.Assignee,
				}
				if !md.Empty() {
					item.Metadata = md
				}
			}
			items = append(items, item)
		}
	}
	return items
}

func flairFromTask(t db.Task) core.Flair {
	value := strings.TrimSpace(t.FlairValue)
	if value == "" {
		return core.Flair{}
	}
	switch db.NormalizeFlairType(t.FlairType) {
	case "icon":
		return core.Flair{Kind: core.FlairIcon, Value: value}
	case "image":
		return core.Flair{Kind: core.FlairImage, Value: value}
	case "qr":
		return core.Flair{Kind: core.FlairQR, Value: t.FlairValue}
	case "emoji":
		return core.Flair{Kind: core.FlairEmoji, Value: value}
	default:
		return core.Flair{}
	}
}

// CheckImageFlair requires image flair values to name a stored upload.
func CheckImageFlair(sections []db.Section) error {
	for si, sec := range sections {
		for ti, t := range sec.Tasks {
			if db.NormalizeFlairType(t.FlairType) != "image" {
				continue
			}
			err := assets.CheckUploadName(t.FlairValue)
			switch {
			case err == nil:
				continue
			case errors.Is(err, assets.ErrUnsupportedImage):
				return &db.ValidationError{Message: fmt.Sprintf(
					"unsupported image type in section %d task %d, use one of: %s",
					si+1, ti+1, strings.Join(assets.ImageExts, ", "))}
			default:
				return &db.ValidationError{Message: fmt.Sprintf(
					"image in section %d task %d must be the name of an uploaded file",
					si+1, ti+1)}
			}
		}
	}
	return nil
}

func respondValidation(c *gin.Context, err error) {
	var vErr *db.ValidationError
	if errors.As(err, &vErr) {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "validation_error", Message: vErr.Message})
		return
	}
	c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal_error", Message: err.Error()})
}

func respondEnqueueError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, core.ErrQueueFull):
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "queue_full", Message: "The print queue is full, try again later"})
	case errors.Is(err, core.ErrQueueStopped):
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "queue_stopped", Message: "The print queue is shutting down"})
	default:
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "enqueue_failed", Message: err.Error()})
	}
}

func respondAccepted(c *gin.Context, id string) {
	self := "/api/v1/jobs/" + id
	c.Header("Location", self)
	c.JSON(http.StatusAccepted, SubmitJobResponse{
		ID:     id,
		Status: core.JobStatusQueued,
		Links:  JobLinks{Self: self},
	})
}

func RegisterJobRoutes(router *gin.RouterGroup, handler *JobHandler) {
	jobs := router.Group("/jobs")
	{
		jobs.POST("", handler.CreateJob)
		jobs.GET("", handler.ListJobs)
		jobs.GET("/:id", handler.GetJob)
	}
}
