package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orrn/taskprinter/internal/api/handlers"
	"github.com/orrn/taskprinter/internal/config"
	"github.com/orrn/taskprinter/internal/core"
	"github.com/orrn/taskprinter/internal/db"
)

type staticHealth struct{ resp handlers.HealthResponse }

func (h staticHealth) Check(context.Context) handlers.HealthResponse { return h.resp }

type testEnv struct {
	srv    *Server
	queue  *core.Queue
	cfgErr error
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	conn, err := db.Open(db.Config{Path: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	cfg := config.Default()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	env := &testEnv{queue: core.NewQueue(core.QueueOptions{Logger: logger})}

	env.srv = New(Deps{
		Queue:     env.queue,
		Templates: db.NewTemplateOperations(conn, cfg.Limits),
		Config: func() (*config.Config, error) {
			if env.cfgErr != nil {
				return nil, env.cfgErr
			}
			return cfg, nil
		},
		Limits: cfg.Limits,
		Health: staticHealth{handlers.HealthResponse{
			Status:  "degraded",
			Reason:  "printer_unreachable",
			Worker:  core.WorkerStatus{Started: true, Alive: true, QueueSize: 3},
			Config:  true,
			Printer: handlers.PrinterHealth{Configured: true, Type: "network", Error: "connection refused"},
		}},
		Logger: logger,
	})
	return env
}

func call(args map[string]any) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	req.Params.Arguments = args
	return req
}

func resultText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	require.NotNil(t, res)
	require.NotEmpty(t, res.Content)
	text, ok := res.Content[0].(mcp.TextContent)
	require.True(t, ok, "content is %T", res.Content[0])
	return text.Text
}

func decodeResult(t *testing.T, res *mcp.CallToolResult, v any) {
	t.Helper()
	require.False(t, res.IsError, resultText(t, res))
	require.NoError(t, json.Unmarshal([]byte(resultText(t, res)), v))
}

func groceries() []any {
	return []any{
		map[string]any{
			"category": "Groceries",
			"tasks": []any{
				map[string]any{"text": "Milk"},
				map[string]any{"text": "Bread", "flair_type": "emoji", "flair_value": "🍞"},
			},
		},
	}
}

func TestToolsAreListed(t *testing.T) {
	env := newTestEnv(t)

	msg := env.srv.MCP().HandleMessage(context.Background(),
		json.RawMessage(`{"jsonrpc":"2.0","id":1,"method":"tools/list"}`))
	body, err := json.Marshal(msg)
	require.NoError(t, err)

	for _, name := range []string{
		"submit_job", "get_job_status", "list_templates", "get_template",
		"create_template", "print_template", "get_health_status", "test_print",
	} {
		assert.Contains(t, string(body), fmt.Sprintf("%q", name))
	}
}

func TestSubmitJob(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	res, err := env.srv.submitJob(ctx, call(map[string]any{
		"sections": groceries(),
		"options":  map[string]any{"tear_delay_seconds": 90.0},
	}))
	require.NoError(t, err)

	var out JobResult
	decodeResult(t, res, &out)
	assert.Equal(t, core.JobStatusQueued, out.Status)
	assert.Equal(t, "Job submitted successfully", out.Message)

	job, ok := env.queue.GetJob(out.JobID)
	require.True(t, ok)
	assert.Equal(t, core.JobKindTasks, job.Kind)
	assert.Equal(t, 2, job.Total)
	assert.Equal(t, "mcp", job.Origin)
	assert.Equal(t, float64(core.MaxTearDelaySeconds), job.Options.TearDelaySeconds)

	res, err = env.srv.getJobStatus(ctx, call(map[string]any{"job_id": out.JobID}))
	require.NoError(t, err)
	var got core.Job
	decodeResult(t, res, &got)
	assert.Equal(t, out.JobID, got.ID)
}

func TestSubmitJobRejections(t *testing.T) {
	tests := []struct {
		name     string
		sections []any
		want     string
	}{
		{"no sections", []any{}, "at least one section"},
		{"only blank tasks", []any{map[string]any{
			"category": "Chores",
			"tasks":    []any{map[string]any{"text": "  "}},
		}}, "no valid tasks"},
		{"host image path", []any{map[string]any{
			"category": "Chores",
			"tasks":    []any{map[string]any{"text": "Logo", "flair_type": "image", "flair_value": "/etc/ssl/logo.png"}},
		}}, "uploaded file"},
		{"bad flair type", []any{map[string]any{
			"category": "Chores",
			"tasks":    []any{map[string]any{"text": "Sweep", "flair_type": "sparkles", "flair_value": "x"}},
		}}, "invalid flair_type"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			res, err := env.srv.submitJob(context.Background(), call(map[string]any{"sections": tt.sections}))
			require.NoError(t, err)
			assert.True(t, res.IsError)
			assert.Contains(t, resultText(t, res), tt.want)
			assert.Empty(t, env.queue.ListJobs())
		})
	}
}

func TestSubmitJobWithoutConfig(t *testing.T) {
	env := newTestEnv(t)
	env.cfgErr = errors.New("printer type is required")

	res, err := env.srv.submitJob(context.Background(), call(map[string]any{"sections": groceries()}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Contains(t, resultText(t, res), "not configured")

	res, err = env.srv.testPrint(context.Background(), call(nil))
	require.NoError(t, err)
	assert.True(t, res.IsError)
}

func TestGetJobStatusUnknown(t *testing.T) {
	env := newTestEnv(t)

	res, err := env.srv.getJobStatus(context.Background(), call(map[string]any{"job_id": "nope"}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Contains(t, resultText(t, res), "not found")
}

func TestTemplateTools(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	res, err := env.srv.createTemplate(ctx, call(map[string]any{
		"name":     "Weekly shop",
		"notes":    "Saturday",
		"sections": groceries(),
	}))
	require.NoError(t, err)
	var created TemplateResult
	decodeResult(t, res, &created)
	require.Positive(t, created.TemplateID)
	assert.Equal(t, "Weekly shop", created.Name)

	res, err = env.srv.createTemplate(ctx, call(map[string]any{"name": "Weekly shop", "sections": groceries()}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Contains(t, resultText(t, res), "already exists")

	res, err = env.srv.listTemplates(ctx, call(nil))
	require.NoError(t, err)
	var list []db.TemplateSummary
	decodeResult(t, res, &list)
	require.Len(t, list, 1)
	assert.Equal(t, 2, list[0].TasksCount)

	res, err = env.srv.getTemplate(ctx, call(map[string]any{"template_id": float64(created.TemplateID)}))
	require.NoError(t, err)
	var tmpl db.Template
	decodeResult(t, res, &tmpl)
	require.Len(t, tmpl.Sections, 1)
	assert.Equal(t, "Groceries", tmpl.Sections[0].Subtitle)
	assert.Nil(t, tmpl.LastUsedAt)

	res, err = env.srv.printTemplate(ctx, call(map[string]any{
		"template_id":        float64(created.TemplateID),
		"tear_delay_seconds": 2.5,
	}))
	require.NoError(t, err)
	var printed JobResult
	decodeResult(t, res, &printed)

	job, ok := env.queue.GetJob(printed.JobID)
	require.True(t, ok)
	assert.Equal(t, fmt.Sprintf("mcp:template:%d", created.TemplateID), job.Origin)
	assert.Equal(t, 2, job.Total)
	assert.Equal(t, 2.5, job.Options.TearDelaySeconds)

	res, err = env.srv.getTemplate(ctx, call(map[string]any{"template_id": float64(created.TemplateID)}))
	require.NoError(t, err)
	decodeResult(t, res, &tmpl)
	assert.NotNil(t, tmpl.LastUsedAt)
}

func TestTemplateToolErrors(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	res, err := env.srv.getTemplate(ctx, call(map[string]any{"template_id": 42.0}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Contains(t, resultText(t, res), "not found")

	res, err = env.srv.printTemplate(ctx, call(map[string]any{"template_id": 0.0}))
	require.NoError(t, err)
	assert.True(t, res.IsError)

	res, err = env.srv.createTemplate(ctx, call(map[string]any{
		"name": "Escape",
		"sections": []any{map[string]any{
			"category": "Art",
			"tasks":    []any{map[string]any{"text": "Logo", "flair_type": "image", "flair_value": "../../logo.png"}},
		}},
	}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Contains(t, resultText(t, res), "uploaded file")
}

func TestHealthAndTestPrint(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	res, err := env.srv.getHealthStatus(ctx, call(nil))
	require.NoError(t, err)
	var hs HealthStatus
	decodeResult(t, res, &hs)
	assert.Equal(t, "degraded", hs.OverallStatus)
	assert.Equal(t, "printer_unreachable", hs.Reason)
	assert.Equal(t, "configured", hs.Config.Status)
	assert.Equal(t, "running", hs.Worker.Status)
	assert.Equal(t, 3, hs.Worker.QueueSize)
	assert.Equal(t, "disconnected", hs.Printer.Status)
	assert.Equal(t, "connection refused", hs.Printer.Error)

	res, err = env.srv.testPrint(ctx, call(nil))
	require.NoError(t, err)
	var out JobResult
	decodeResult(t, res, &out)

	job, ok := env.queue.GetJob(out.JobID)
	require.True(t, ok)
	assert.Equal(t, core.JobKindTest, job.Kind)
	assert.Equal(t, "mcp", job.Origin)
}

func TestResources(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	res, err := env.srv.createTemplate(ctx, call(map[string]any{"name": "Errands", "sections": groceries()}))
	require.NoError(t, err)
	var created TemplateResult
	decodeResult(t, res, &created)

	read := func(fn func(context.Context, mcp.ReadResourceRequest) ([]mcp.ResourceContents, error), uri string) (string, error) {
		var req mcp.ReadResourceRequest
		req.Params.URI = uri
		contents, err := fn(ctx, req)
		if err != nil {
			return "", err
		}
		require.Len(t, contents, 1)
		text, ok := contents[0].(mcp.TextResourceContents)
		require.True(t, ok)
		assert.Equal(t, uri, text.URI)
		assert.Equal(t, mimeJSON, text.MIMEType)
		return text.Text, nil
	}

	body, err := read(env.srv.readTemplate, fmt.Sprintf("%s%d", uriTemplatePre, created.TemplateID))
	require.NoError(t, err)
	assert.Contains(t, body, `"Errands"`)

	_, err = read(env.srv.readTemplate, uriTemplatePre+"999")
	assert.ErrorIs(t, err, errResourceNotFound)
	_, err = read(env.srv.readTemplate, uriTemplatePre+"abc")
	assert.ErrorIs(t, err, errResourceNotFound)

	for i := 0; i < recentJobs+5; i++ {
		_, err := env.queue.EnqueueTest(nil, "test")
		require.NoError(t, err)
	}
	body, err = read(env.srv.readRecentJobs, uriRecentJobs)
	require.NoError(t, err)
	var recent RecentJobs
	require.NoError(t, json.Unmarshal([]byte(body), &recent))
	assert.Len(t, recent.Jobs, recentJobs)
	assert.Equal(t, recentJobs+5, recent.Total)

	body, err = read(env.srv.readJob, uriJobPre+recent.Jobs[0].ID)
	require.NoError(t, err)
	assert.Contains(t, body, recent.Jobs[0].ID)
	_, err = read(env.srv.readJob, uriJobPre+"missing")
	assert.ErrorIs(t, err, errResourceNotFound)

	body, err = read(env.srv.readConfig, uriConfig)
	require.NoError(t, err)
	assert.NotContains(t, body, "jwt_secret")
	assert.Contains(t, body, `"printer"`)

	body, err = read(env.srv.readHealth, uriHealth)
	require.NoError(t, err)
	assert.Contains(t, body, "printer_unreachable")
}

func TestPrompts(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	prompt := func(fn func(context.Context, mcp.GetPromptRequest) (*mcp.GetPromptResult, error), args map[string]string) (string, error) {
		var req mcp.GetPromptRequest
		req.Params.Arguments = args
		res, err := fn(ctx, req)
		if err != nil {
			return "", err
		}
		require.Len(t, res.Messages, 1)
		assert.Equal(t, mcp.RoleUser, res.Messages[0].Role)
		text, ok := res.Messages[0].Content.(mcp.TextContent)
		require.True(t, ok)
		return text.Text, nil
	}

	text, err := prompt(env.srv.createTaskListPrompt, map[string]string{
		"description":   "get ready for the party",
		"max_sections":  "3",
		"include_flair": "true",
	})
	require.NoError(t, err)
	assert.Contains(t, text, "get ready for the party")
	assert.Contains(t, text, "at most 3 sections")
	assert.Contains(t, text, "flair_type")
	assert.NotContains(t, text, "assignee")

	_, err = prompt(env.srv.createTaskListPrompt, map[string]string{})
	assert.Error(t, err)

	text, err = prompt(env.srv.templatePrompt, map[string]string{"description": "opening shift", "template_name": "Open"})
	require.NoError(t, err)
	assert.Contains(t, text, `"Open"`)

	text, err = prompt(env.srv.troubleshootingPrompt, map[string]string{"issue_description": "nothing prints"})
	require.NoError(t, err)
	assert.Contains(t, text, "nothing prints")
	assert.Contains(t, text, "printer_unreachable")
	assert.Contains(t, text, "connection refused")
}

func TestHandlerServesInitialize(t *testing.T) {
	env := newTestEnv(t)

	msg := env.srv.MCP().HandleMessage(context.Background(), json.RawMessage(
		`{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2025-03-26","capabilities":{},"clientInfo":{"name":"test","version":"1"}}}`))
	body, err := json.Marshal(msg)
	require.NoError(t, err)
	assert.Contains(t, string(body), `"name":"taskprinter"`)
	assert.NotNil(t, env.srv.Handler())
}
