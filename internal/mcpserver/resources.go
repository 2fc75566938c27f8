package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/orrn/taskprinter/internal/api/handlers"
	"github.com/orrn/taskprinter/internal/core"
	"github.com/orrn/taskprinter/internal/db"
)

const (
	uriConfig        = "resource://taskprinter/config"
	uriHealth        = "resource://taskprinter/health"
	uriTemplates     = "resource://taskprinter/templates"
	uriTemplatePre   = "resource://taskprinter/templates/"
	uriRecentJobs    = "resource://taskprinter/jobs/recent"
	uriJobPre        = "resource://taskprinter/jobs/"
	mimeJSON         = "application/json"
	templateTemplate = uriTemplatePre + "{template_id}"
	jobTemplate      = uriJobPre + "{job_id}"
)

var errResourceNotFound = errors.New("resource not found")

// RecentJobs is the body of the jobs/recent resource.
type RecentJobs struct {
	Jobs   []core.Job        `json:"jobs"`
	Total  int               `json:"total"`
	Worker core.WorkerStatus `json:"worker"`
}

func (s *Server) registerResources() {
	s.mcp.AddResource(mcp.NewResource(uriConfig, "Configuration",
		mcp.WithResourceDescription("Current settings without secrets"),
		mcp.WithMIMEType(mimeJSON),
	), s.readConfig)

	s.mcp.AddResource(mcp.NewResource(uriHealth, "Health",
		mcp.WithResourceDescription("Worker, printer and emoji font health"),
		mcp.WithMIMEType(mimeJSON),
	), s.readHealth)

	s.mcp.AddResource(mcp.NewResource(uriTemplates, "Templates",
		mcp.WithResourceDescription("All saved templates with counts"),
		mcp.WithMIMEType(mimeJSON),
	), s.readTemplates)

	s.mcp.AddResource(mcp.NewResource(uriRecentJobs, "Recent jobs",
		mcp.WithResourceDescription("The most recent print jobs, newest first"),
		mcp.WithMIMEType(mimeJSON),
	), s.readRecentJobs)

	s.mcp.AddResourceTemplate(mcp.NewResourceTemplate(templateTemplate, "Template",
		mcp.WithTemplateDescription("A saved template with its sections and tasks"),
		mcp.WithTemplateMIMEType(mimeJSON),
	), s.readTemplate)

	s.mcp.AddResourceTemplate(mcp.NewResourceTemplate(jobTemplate, "Job",
		mcp.WithTemplateDescription("Status and progress of one print job"),
		mcp.WithTemplateMIMEType(mimeJSON),
	), s.readJob)
}

func (s *Server) readConfig(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	cfg, err := s.config()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return jsonContents(req.Params.URI, handlers.SettingsFromConfig(cfg))
}

func (s *Server) readHealth(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return jsonContents(req.Params.URI, s.health.Check(ctx))
}

func (s *Server) readTemplates(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	templates, err := s.templates.ListTemplates(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list templates: %w", err)
	}
	if templates == nil {
		templates = []*db.TemplateSummary{}
	}
	return jsonContents(req.Params.URI, templates)
}

func (s *Server) readRecentJobs(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	jobs := s.queue.ListJobs()
	total := len(jobs)
	if len(jobs) > recentJobs {
		jobs = jobs[:recentJobs]
	}
	if jobs == nil {
		jobs = []core.Job{}
	}
	return jsonContents(req.Params.URI, RecentJobs{Jobs: jobs, Total: total, Worker: s.queue.WorkerStatus()})
}

func (s *Server) readTemplate(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	id, err := strconv.ParseInt(strings.TrimPrefix(req.Params.URI, uriTemplatePre), 10, 64)
	if err != nil || id < 1 {
		return nil, fmt.Errorf("%w: %s", errResourceNotFound, req.Params.URI)
	}
	t, err := s.templates.GetTemplateByID(ctx, id)
	if errors.Is(err, db.ErrNotFound) {
		return nil, fmt.Errorf("%w: template %d", errResourceNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read template %d: %w", id, err)
	}
	return jsonContents(req.Params.URI, t)
}

func (s *Server) readJob(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	id := strings.TrimPrefix(req.Params.URI, uriJobPre)
	job, ok := s.queue.GetJob(id)
	if !ok {
		return nil, fmt.Errorf("%w: job %s", errResourceNotFound, id)
	}
	return jsonContents(req.Params.URI, job)
}

func jsonContents(uri string, v any) ([]mcp.ResourceContents, error) {
	body, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s: %w", uri, err)
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{URI: uri, MIMEType: mimeJSON, Text: string(body)},
	}, nil
}
