package mcpserver

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

func (s *Server) registerPrompts() {
	s.mcp.AddPrompt(mcp.NewPrompt("create_task_list",
		mcp.WithPromptDescription("Turn a plain description into sections and tasks ready for submit_job"),
		mcp.WithArgument("description", mcp.RequiredArgument(), mcp.ArgumentDescription("What needs doing")),
		mcp.WithArgument("max_sections", mcp.ArgumentDescription("Most sections to create, default 5")),
		mcp.WithArgument("max_tasks_per_section", mcp.ArgumentDescription("Most tasks per section, default 10")),
		mcp.WithArgument("include_flair", mcp.ArgumentDescription("true to suggest icons, QR codes or emoji")),
		mcp.WithArgument("include_metadata", mcp.ArgumentDescription("true to add priority, assignee and dates")),
	), s.createTaskListPrompt)

	s.mcp.AddPrompt(mcp.NewPrompt("template_from_description",
		mcp.WithPromptDescription("Design a reusable template for create_template"),
		mcp.WithArgument("description", mcp.RequiredArgument(), mcp.ArgumentDescription("Purpose and structure of the template")),
		mcp.WithArgument("template_name", mcp.RequiredArgument(), mcp.ArgumentDescription("Name for the template")),
	), s.templatePrompt)

	s.mcp.AddPrompt(mcp.NewPrompt("troubleshooting_guide",
		mcp.WithPromptDescription("Walk through diagnosing a printing problem"),
		mcp.WithArgument("issue_description", mcp.RequiredArgument(), mcp.ArgumentDescription("What is going wrong")),
	), s.troubleshootingPrompt)
}

func (s *Server) createTaskListPrompt(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	args := req.Params.Arguments
	description := strings.TrimSpace(args["description"])
	if description == "" {
		return nil, fmt.Errorf("description is required")
	}
	maxSections := intArg(args, "max_sections", 5)
	maxTasks := intArg(args, "max_tasks_per_section", 10)
	withFlair := boolArg(args, "include_flair")
	withMeta := boolArg(args, "include_metadata")

	var b strings.Builder
	b.WriteString("# Task List Creation\n\n")
	b.WriteString("Organize the following into sections for printing on a thermal receipt printer. ")
	b.WriteString("Each task prints as its own receipt with the section category above it.\n\n")
	fmt.Fprintf(&b, "## Description\n%s\n\n", description)
	b.WriteString("## Guidelines\n")
	fmt.Fprintf(&b, "- Create at most %d sections\n", min(maxSections, s.limits.MaxSections))
	fmt.Fprintf(&b, "- Put at most %d tasks in a section\n", min(maxTasks, s.limits.MaxTasksPerSection))
	fmt.Fprintf(&b, "- Keep categories under %d characters and tasks under %d characters\n",
		s.limits.MaxCategoryLen, s.limits.MaxTaskLen)
	b.WriteString("- Write short, actionable tasks that read well on narrow paper\n\n")
	b.WriteString("## Output\nReturn the sections argument for submit_job:\n\n```json\n")
	b.WriteString(`[{"category": "Section name", "tasks": [{"text": "Task"`)
	if withFlair {
		b.WriteString(`, "flair_type": "icon|qr|emoji", "flair_value": "..."`)
	}
	if withMeta {
		b.WriteString(`, "metadata": {"priority": "high|medium|low", "assignee": "name", "due": "YYYY-MM-DD"}`)
	}
	b.WriteString("}]}]\n```\n")
	if withFlair {
		b.WriteString("\nFlair: icon takes a name from the icon list, qr takes a URL or short text, emoji takes a single emoji.\n")
	}

	return mcp.NewGetPromptResult("Structured task list", []mcp.PromptMessage{
		mcp.NewPromptMessage(mcp.RoleUser, mcp.NewTextContent(b.String())),
	}), nil
}

func (s *Server) templatePrompt(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	description := strings.TrimSpace(req.Params.Arguments["description"])
	name := strings.TrimSpace(req.Params.Arguments["template_name"])
	if description == "" || name == "" {
		return nil, fmt.Errorf("description and template_name are required")
	}

	text := fmt.Sprintf(`# Template Design

Create a reusable template named %q.

## Description
%s

## Guidelines
- Group the standard tasks for this kind of list into clear sections
- Leave out details that change every time
- Add notes saying when to use the template

## Output
Call create_template with name %q, notes, and sections in the submit_job format.
`, name, description, name)

	return mcp.NewGetPromptResult("Reusable template", []mcp.PromptMessage{
		mcp.NewPromptMessage(mcp.RoleUser, mcp.NewTextContent(text)),
	}), nil
}

func (s *Server) troubleshootingPrompt(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	issue := strings.TrimSpace(req.Params.Arguments["issue_description"])
	if issue == "" {
		return nil, fmt.Errorf("issue_description is required")
	}
	health := healthStatus(s.health.Check(ctx))

	var b strings.Builder
	b.WriteString("# Task Printer Troubleshooting\n\n")
	fmt.Fprintf(&b, "## Issue\n%s\n\n", issue)
	b.WriteString("## Current Status\n")
	fmt.Fprintf(&b, "- overall: %s", health.OverallStatus)
	if health.Reason != "" {
		fmt.Fprintf(&b, " (%s)", health.Reason)
	}
	fmt.Fprintf(&b, "\n- config: %s\n- worker: %s, %d queued\n- printer: %s",
		health.Config.Status, health.Worker.Status, health.Worker.QueueSize, health.Printer.Status)
	if health.Printer.Error != "" {
		fmt.Fprintf(&b, ", %s", health.Printer.Error)
	}
	b.WriteString("\n\n## Checks\n")
	b.WriteString("- USB and serial: device path exists and the service user can write to it\n")
	b.WriteString("- Serial: baud rate matches the printer\n")
	b.WriteString("- Network: printer IP answers on the configured port, usually 9100\n")
	b.WriteString("- Paper loaded and cover closed\n")
	b.WriteString("- Recent jobs in resource://taskprinter/jobs/recent for error messages\n\n")
	b.WriteString("Use test_print to confirm a fix.\n")

	return mcp.NewGetPromptResult("Troubleshooting steps", []mcp.PromptMessage{
		mcp.NewPromptMessage(mcp.RoleUser, mcp.NewTextContent(b.String())),
	}), nil
}

func intArg(args map[string]string, key string, def int) int {
	n, err := strconv.Atoi(strings.TrimSpace(args[key]))
	if err != nil || n < 1 {
		return def
	}
	return n
}

func boolArg(args map[string]string, key string) bool {
	b, _ := strconv.ParseBool(strings.TrimSpace(args[key]))
	return b
}
