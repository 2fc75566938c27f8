package handlers

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/orrn/taskprinter/internal/core"
	"github.com/orrn/taskprinter/internal/db"
)

type TemplateRequest struct {
	Name     string       `json:"name"`
	Notes    string       `json:"notes"`
	Sections []db.Section `json:"sections"`
}

type DuplicateRequest struct {
	Name string `json:"name"`
}

type TemplatePrintRequest struct {
	Options *OptionsRequest `json:"options"`
}

type TemplatePrintResponse struct {
	JobID  string         `json:"job_id"`
	Status core.JobStatus `json:"status"`
	Links  JobLinks       `json:"links"`
}

type TemplateHandler struct {
	templates *db.TemplateOperations
	queue     JobQueue
	logger    *slog.Logger
}

func NewTemplateHandler(templates *db.TemplateOperations, queue JobQueue, logger *slog.Logger) *TemplateHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &TemplateHandler{
		templates: templates,
		queue:     queue,
		logger:    logger,
	}
}

func (h *TemplateHandler) ListTemplates(c *gin.Context) {
	templates, err := h.templates.ListTemplates(c.Request.Context())
	if err != nil {
		h.logger.Error("failed to list templates", "error", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "database_error", Message: "Failed to list templates"})
		return
	}
	c.JSON(http.StatusOK, templates)
}

func (h *TemplateHandler) CreateTemplate(c *gin.Context) {
	var req TemplateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid_json", Message: "Request body must be a template object"})
		return
	}

	if err := CheckImageFlair(req.Sections); err != nil {
		respondValidation(c, err)
		return
	}

	t := &db.Template{Name: req.Name, Notes: req.Notes, Sections: req.Sections}
	if err := h.templates.CreateTemplate(c.Request.Context(), t); err != nil {
		h.respondWriteError(c, err)
		return
	}

	created, err := h.templates.GetTemplateByID(c.Request.Context(), t.ID)
	if err != nil {
		h.respondReadError(c, err)
		return
	}
	c.Header("Location", fmt.Sprintf("/api/v1/templates/%d", t.ID))
	c.JSON(http.StatusCreated, created)
}

func (h *TemplateHandler) GetTemplate(c *gin.Context) {
	id, ok := parseTemplateID(c)
	if !ok {
		return
	}

	t, err := h.templates.GetTemplateByID(c.Request.Context(), id)
	if err != nil {
		h.respondReadError(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

func (h *TemplateHandler) UpdateTemplate(c *gin.Context) {
	id, ok := parseTemplateID(c)
	if !ok {
		return
	}

	var req TemplateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid_json", Message: "Request body must be a template object"})
		return
	}

	if err := CheckImageFlair(req.Sections); err != nil {
		respondValidation(c, err)
		return
	}

	t := &db.Template{ID: id, Name: req.Name, Notes: req.Notes, Sections: req.Sections}
	if err := h.templates.UpdateTemplate(c.Request.Context(), t); err != nil {
		h.respondWriteError(c, err)
		return
	}

	updated, err := h.templates.GetTemplateByID(c.Request.Context(), id)
	if err != nil {
		h.respondReadError(c, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

func (h *TemplateHandler) DeleteTemplate(c *gin.Context) {
	id, ok := parseTemplateID(c)
	if !ok {
		return
	}

	if err := h.templates.DeleteTemplate(c.Request.Context(), id); err != nil {
		h.respondReadError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *TemplateHandler) DuplicateTemplate(c *gin.Context) {
	id, ok := parseTemplateID(c)
	if !ok {
		return
	}

	var req DuplicateRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid_json", Message: "Request body must be a JSON object"})
			return
		}
	}

	dup, err := h.templates.DuplicateTemplate(c.Request.Context(), id, req.Name)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			h.respondReadError(c, err)
			return
		}
		h.respondWriteError(c, err)
		return
	}

	created, err := h.templates.GetTemplateByID(c.Request.Context(), dup.ID)
	if err != nil {
		h.respondReadError(c, err)
		return
	}
	c.Header("Location", fmt.Sprintf("/api/v1/templates/%d", dup.ID))
	c.JSON(http.StatusCreated, created)
}

// PrintTemplate queues every task of a stored template as one job and
// stamps the template's last_used_at. The body is optional.
func (h *TemplateHandler) PrintTemplate(c *gin.Context) {
	id, ok := parseTemplateID(c)
	if !ok {
		return
	}

	var req TemplatePrintRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
			c.JSON(http.StatusBadRequest, ErrorResponse{
				Error:   "invalid_json",
				Message: "Request body must be a JSON object",
			})
			return
		}
	}
	var opts core.PrintOptions
	if req.Options != nil {
		opts.TearDelaySeconds = req.Options.TearDelaySeconds
	}

	t, err := h.templates.GetTemplateByID(c.Request.Context(), id)
	if err != nil {
		h.respondReadError(c, err)
		return
	}

	items := TaskItems(t.Sections)
	if len(items) == 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "empty_template", Message: "Template has no tasks to print"})
		return
	}

	jobID, err := h.queue.EnqueueFrom(items, opts.Normalized(), fmt.Sprintf("template:%d", id))
	if err != nil {
		respondEnqueueError(c, err)
		return
	}

	if err := h.templates.TouchLastUsed(c.Request.Context(), id); err != nil {
		h.logger.Warn("failed to update template last_used_at", "template_id", id, "error", err)
	}

	self := "/api/v1/jobs/" + jobID
	c.Header("Location", self)
	c.JSON(http.StatusAccepted, TemplatePrintResponse{
		JobID:  jobID,
		Status: core.JobStatusQueued,
		Links:  JobLinks{Self: self},
	})
}

func parseTemplateID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid_id", Message: "Invalid template ID"})
		return 0, false
	}
	return id, true
}

func (h *TemplateHandler) respondReadError(c *gin.Context, err error) {
	if errors.Is(err, db.ErrNotFound) {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "not_found", Message: "Template not found"})
		return
	}
	h.logger.Error("template read failed", "error", err)
	c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "database_error", Message: "Failed to read template"})
}

func (h *TemplateHandler) respondWriteError(c *gin.Context, err error) {
	var vErr *db.ValidationError
	switch {
	case errors.As(err, &vErr):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "validation_error", Message: vErr.Message})
	case errors.Is(err, db.ErrDuplicateName):
		c.JSON(http.StatusConflict, ErrorResponse{Error: "duplicate_name", Message: "A template with this name already exists"})
	case errors.Is(err, db.ErrNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "not_found", Message: "Template not found"})
	default:
		h.logger.Error("template write failed", "error", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "database_error", Message: "Failed to save template"})
	}
}

func RegisterTemplateRoutes(router *gin.RouterGroup, handler *TemplateHandler) {
	templates := router.Group("/templates")
	{
		templates.GET("", handler.ListTemplates)
		templates.POST("", handler.CreateTemplate)
		templates.GET("/:id", handler.GetTemplate)
		templates.PUT("/:id", handler.UpdateTemplate)
		templates.DELETE("/:id", handler.DeleteTemplate)
		templates.POST("/:id/duplicate", handler.DuplicateTemplate)
		templates.POST("/:id/print", handler.PrintTemplate)
	}
}
