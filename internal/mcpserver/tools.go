package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/orrn/taskprinter/internal/api/handlers"
	"github.com/orrn/taskprinter/internal/core"
	"github.com/orrn/taskprinter/internal/db"
)

// JobResult is returned by the tools that queue a print.
type JobResult struct {
	JobID   string         `json:"job_id"`
	Status  core.JobStatus `json:"status"`
	Message string         `json:"message"`
}

type TemplateResult struct {
	TemplateID int64  `json:"template_id"`
	Name       string `json:"name"`
	Message    string `json:"message"`
}

// HealthStatus is the health report in the shape MCP clients receive.
type HealthStatus struct {
	OverallStatus string                `json:"overall_status"`
	Reason        string                `json:"reason,omitempty"`
	Config        ComponentStatus       `json:"config"`
	Worker        WorkerHealth          `json:"worker"`
	Printer       ComponentStatus       `json:"printer"`
	Emoji         *handlers.EmojiHealth `json:"emoji_font,omitempty"`
}

type ComponentStatus struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

type WorkerHealth struct {
	Status    string `json:"status"`
	QueueSize int    `json:"queue_size"`
}

type submitJobArgs struct {
	Sections []handlers.JobSection    `json:"sections"`
	Options  *handlers.OptionsRequest `json:"options"`
}

type templateIDArgs struct {
	TemplateID int64 `json:"template_id"`
}

type createTemplateArgs struct {
	Name     string                `json:"name"`
	Sections []handlers.JobSection `json:"sections"`
	Notes    string                `json:"notes"`
}

type printTemplateArgs struct {
	TemplateID       int64    `json:"template_id"`
	TearDelaySeconds *float64 `json:"tear_delay_seconds"`
}

var taskSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"text":        map[string]any{"type": "string", "description": "Task text"},
		"flair_type":  map[string]any{"type": "string", "enum": []string{"none", "icon", "image", "qr", "emoji"}},
		"flair_value": map[string]any{"type": "string", "description": "Icon name, uploaded image name, QR payload or emoji"},
		"flair_size":  map[string]any{"type": "integer", "description": "Flair height in dots"},
		"metadata": map[string]any{
			"type": "object",
			"properties": map[string]any{
				"assigned": map[string]any{"type": "string"},
				"due":      map[string]any{"type": "string"},
				"priority": map[string]any{"type": "string"},
				"assignee": map[string]any{"type": "string"},
			},
		},
	},
	"required": []string{"text"},
}

var sectionSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"category": map[string]any{"type": "string", "description": "Section heading printed on every task"},
		"tasks":    map[string]any{"type": "array", "items": taskSchema},
	},
	"required": []string{"category", "tasks"},
}

func (s *Server) registerTools() {
	s.mcp.AddTool(mcp.NewTool("submit_job",
		mcp.WithDescription("Print a list of tasks, one receipt per task. Sections carry a category and tasks; each task may have flair and metadata."),
		mcp.WithTitleAnnotation("Submit Print Job"),
		mcp.WithReadOnlyHintAnnotation(false),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithOpenWorldHintAnnotation(true),
		mcp.WithArray("sections", mcp.Required(), mcp.Items(sectionSchema),
			mcp.Description("Sections to print, each with a category and its tasks")),
		mcp.WithObject("options",
			mcp.Description("Print options"),
			mcp.Properties(map[string]any{
				"tear_delay_seconds": map[string]any{"type": "number", "minimum": 0, "maximum": core.MaxTearDelaySeconds},
			})),
	), s.submitJob)

	s.mcp.AddTool(mcp.NewTool("get_job_status",
		mcp.WithDescription("Get the status and progress of a print job"),
		mcp.WithTitleAnnotation("Get Job Status"),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
		mcp.WithString("job_id", mcp.Required(), mcp.Description("ID returned when the job was submitted")),
	), s.getJobStatus)

	s.mcp.AddTool(mcp.NewTool("list_templates",
		mcp.WithDescription("List all saved templates with section and task counts"),
		mcp.WithTitleAnnotation("List Templates"),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
	), s.listTemplates)

	s.mcp.AddTool(mcp.NewTool("get_template",
		mcp.WithDescription("Get a template with all of its sections and tasks"),
		mcp.WithTitleAnnotation("Get Template"),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
		mcp.WithNumber("template_id", mcp.Required(), mcp.Min(1), mcp.Description("Template ID")),
	), s.getTemplate)

	s.mcp.AddTool(mcp.NewTool("create_template",
		mcp.WithDescription("Save a reusable template. Sections use the same format as submit_job."),
		mcp.WithTitleAnnotation("Create Template"),
		mcp.WithReadOnlyHintAnnotation(false),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(false),
		mcp.WithOpenWorldHintAnnotation(false),
		mcp.WithString("name", mcp.Required(), mcp.Description("Unique template name")),
		mcp.WithArray("sections", mcp.Required(), mcp.Items(sectionSchema), mcp.Description("Template sections")),
		mcp.WithString("notes", mcp.Description("Optional notes about the template")),
	), s.createTemplate)

	s.mcp.AddTool(mcp.NewTool("print_template",
		mcp.WithDescription("Print every task of a saved template as one job"),
		mcp.WithTitleAnnotation("Print Template"),
		mcp.WithReadOnlyHintAnnotation(false),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithOpenWorldHintAnnotation(true),
		mcp.WithNumber("template_id", mcp.Required(), mcp.Min(1), mcp.Description("Template ID")),
		mcp.WithNumber("tear_delay_seconds", mcp.Min(0), mcp.Max(core.MaxTearDelaySeconds),
			mcp.Description("Seconds to wait between receipts for tearing off")),
	), s.printTemplate)

	s.mcp.AddTool(mcp.NewTool("get_health_status",
		mcp.WithDescription("Get worker, configuration, printer and emoji font health"),
		mcp.WithTitleAnnotation("Get Health Status"),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(true),
	), s.getHealthStatus)

	s.mcp.AddTool(mcp.NewTool("test_print",
		mcp.WithDescription("Print a test receipt on the configured printer"),
		mcp.WithTitleAnnotation("Test Print"),
		mcp.WithReadOnlyHintAnnotation(false),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(true),
	), s.testPrint)
}

func (s *Server) submitJob(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if err := s.requireConfig(); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var args submitJobArgs
	if err := bindArgs(req, &args); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	sections := dbSections(args.Sections)
	if err := db.ValidateSubmission(sections, s.limits); err != nil {
		return validationResult(err), nil
	}
	if err := handlers.CheckImageFlair(sections); err != nil {
		return validationResult(err), nil
	}
	items := handlers.TaskItems(sections)
	if !hasText(items) {
		return mcp.NewToolResultError("no valid tasks to print"), nil
	}

	var opts core.PrintOptions
	if args.Options != nil {
		opts.TearDelaySeconds = args.Options.TearDelaySeconds
	}
	id, err := s.queue.EnqueueFrom(items, opts.Normalized(), "mcp")
	if err != nil {
		return enqueueResult(err), nil
	}
	return jsonResult(JobResult{JobID: id, Status: core.JobStatusQueued, Message: "Job submitted successfully"})
}

func (s *Server) getJobStatus(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args struct {
		JobID string `json:"job_id"`
	}
	if err := bindArgs(req, &args); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if args.JobID == "" {
		return mcp.NewToolResultError("job_id is required"), nil
	}

	job, ok := s.queue.GetJob(args.JobID)
	if !ok {
		return mcp.NewToolResultError(fmt.Sprintf("job %s not found", args.JobID)), nil
	}
	return jsonResult(job)
}

func (s *Server) listTemplates(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	templates, err := s.templates.ListTemplates(ctx)
	if err != nil {
		s.logger.Error("list templates failed", "error", err)
		return mcp.NewToolResultError("failed to list templates"), nil
	}
	if templates == nil {
		templates = []*db.TemplateSummary{}
	}
	return jsonResult(templates)
}

func (s *Server) getTemplate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args templateIDArgs
	if err := bindArgs(req, &args); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	t, res := s.loadTemplate(ctx, args.TemplateID)
	if res != nil {
		return res, nil
	}
	return jsonResult(t)
}

func (s *Server) createTemplate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args createTemplateArgs
	if err := bindArgs(req, &args); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	sections := dbSections(args.Sections)
	if err := handlers.CheckImageFlair(sections); err != nil {
		return validationResult(err), nil
	}

	t := &db.Template{Name: args.Name, Notes: args.Notes, Sections: sections}
	if err := s.templates.CreateTemplate(ctx, t); err != nil {
		var vErr *db.ValidationError
		switch {
		case errors.As(err, &vErr):
			return validationResult(err), nil
		case errors.Is(err, db.ErrDuplicateName):
			return mcp.NewToolResultError(fmt.Sprintf("a template named %q already exists", args.Name)), nil
		default:
			s.logger.Error("create template failed", "error", err)
			return mcp.NewToolResultError("failed to save template"), nil
		}
	}

	s.logger.Info("template created", "template_id", t.ID, "name", t.Name)
	return jsonResult(TemplateResult{TemplateID: t.ID, Name: t.Name, Message: "Template created successfully"})
}

func (s *Server) printTemplate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if err := s.requireConfig(); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var args printTemplateArgs
	if err := bindArgs(req, &args); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	t, res := s.loadTemplate(ctx, args.TemplateID)
	if res != nil {
		return res, nil
	}

	items := handlers.TaskItems(t.Sections)
	if len(items) == 0 {
		return mcp.NewToolResultError("template has no tasks to print"), nil
	}

	var opts core.PrintOptions
	if args.TearDelaySeconds != nil {
		opts.TearDelaySeconds = *args.TearDelaySeconds
	}
	id, err := s.queue.EnqueueFrom(items, opts.Normalized(), fmt.Sprintf("mcp:template:%d", t.ID))
	if err != nil {
		return enqueueResult(err), nil
	}
	if err := s.templates.TouchLastUsed(ctx, t.ID); err != nil {
		s.logger.Warn("failed to update template last_used_at", "template_id", t.ID, "error", err)
	}
	return jsonResult(JobResult{
		JobID:   id,
		Status:  core.JobStatusQueued,
		Message: fmt.Sprintf("Template %q submitted for printing", t.Name),
	})
}

func (s *Server) getHealthStatus(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(healthStatus(s.health.Check(ctx)))
}

func (s *Server) testPrint(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if err := s.requireConfig(); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	id, err := s.queue.EnqueueTest(nil, "mcp")
	if err != nil {
		return enqueueResult(err), nil
	}
	return jsonResult(JobResult{JobID: id, Status: core.JobStatusQueued, Message: "Test print job submitted successfully"})
}

func (s *Server) requireConfig() error {
	if s.config == nil {
		return nil
	}
	if _, err := s.config(); err != nil {
		s.logger.Warn("config unavailable", "error", err)
		return errors.New("service not configured, complete setup first")
	}
	return nil
}

func (s *Server) loadTemplate(ctx context.Context, id int64) (*db.Template, *mcp.CallToolResult) {
	if id < 1 {
		return nil, mcp.NewToolResultError("template_id must be a positive integer")
	}
	t, err := s.templates.GetTemplateByID(ctx, id)
	switch {
	case errors.Is(err, db.ErrNotFound):
		return nil, mcp.NewToolResultError(fmt.Sprintf("template %d not found", id))
	case err != nil:
		s.logger.Error("get template failed", "template_id", id, "error", err)
		return nil, mcp.NewToolResultError("failed to read template")
	}
	return t, nil
}

func healthStatus(h handlers.HealthResponse) HealthStatus {
	hs := HealthStatus{
		OverallStatus: "healthy",
		Reason:        h.Reason,
		Config:        ComponentStatus{Status: "configured"},
		Worker:        WorkerHealth{Status: "running", QueueSize: h.Worker.QueueSize},
		Printer:       ComponentStatus{Status: "connected", Error: h.Printer.Error},
		Emoji:         h.Emoji,
	}
	if h.Status != "ok" {
		hs.OverallStatus = "degraded"
	}
	if !h.Config || !h.Printer.Configured {
		hs.Config.Status = "not_configured"
	}
	if !h.Worker.Alive {
		hs.Worker.Status = "stopped"
	}
	if !h.Printer.Reachable {
		hs.Printer.Status = "disconnected"
	}
	return hs
}

// bindArgs decodes the tool arguments into v through their JSON form.
func bindArgs(req mcp.CallToolRequest, v any) error {
	raw, err := json.Marshal(req.GetArguments())
	if err != nil {
		return fmt.Errorf("invalid arguments: %w", err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("invalid arguments: %w", err)
	}
	return nil
}

func hasText(items []core.TaskItem) bool {
	for _, it := range items {
		if it.Text != "" {
			return true
		}
	}
	return false
}

func dbSections(in []handlers.JobSection) []db.Section {
	out := make([]db.Section, len(in))
	for i, s := range in {
		out[i] = db.Section{Subtitle: s.Category, Tasks: s.Tasks}
	}
	return out
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	body, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode result: %w", err)
	}
	return mcp.NewToolResultText(string(body)), nil
}

func validationResult(err error) *mcp.CallToolResult {
	var vErr *db.ValidationError
	if errors.As(err, &vErr) {
		return mcp.NewToolResultError("validation failed: " + vErr.Message)
	}
	return mcp.NewToolResultError(err.Error())
}

func enqueueResult(err error) *mcp.CallToolResult {
	switch {
	case errors.Is(err, core.ErrQueueFull):
		return mcp.NewToolResultError("the print queue is full, try again later")
	case errors.Is(err, core.ErrQueueStopped):
		return mcp.NewToolResultError("the print queue is shutting down")
	default:
		return mcp.NewToolResultError("failed to queue job: " + err.Error())
	}
}
