// Package mcpserver exposes the reminder engine as MCP tools over stdio.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"remindd/internal/reconcile"
	"remindd/internal/reminder"
	logx "remindd/pkg/logx"
)

const serverName = "remindd"

// Engine is the part of the reconciliation engine the tools drive.
type Engine interface {
	Create(ctx context.Context, d reminder.Draft) (reminder.Reminder, error)
	Update(ctx context.Context, id string, p reconcile.Patch) (reminder.Reminder, error)
	Delete(ctx context.Context, id string) error
	Snooze(ctx context.Context, id string, d time.Duration) (reminder.Reminder, error)
	Complete(ctx context.Context, id string) (reminder.Reminder, error)
	Dismiss(ctx context.Context, id string) (reminder.Reminder, error)
	List() []reminder.Reminder
	Get(id string) (reminder.Reminder, error)
	Reconcile(ctx context.Context) (reconcile.Report, error)
	Debug(ctx context.Context) (reconcile.DebugInfo, error)
}

// Server is the MCP server for reminder management.
type Server struct {
	mcpServer *server.MCPServer
	engine    Engine
	log       logx.Logger
}

func New(engine Engine, version string, log logx.Logger) *Server {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Server{engine: engine, log: log.With(logx.String("comp", "mcp"))}
	s.mcpServer = server.NewMCPServer(
		serverName,
		version,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
	)
	s.registerTools()
	return s
}

// MCPServer returns the underlying MCP server for serving.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// Serve speaks MCP on in/out until ctx ends or in is closed.
func (s *Server) Serve(ctx context.Context, in io.Reader, out io.Writer) error {
	s.log.Info("mcp serving on stdio")
	err := server.NewStdioServer(s.mcpServer).Listen(ctx, in, out)
	if err != nil && (errors.Is(err, context.Canceled) || errors.Is(err, io.EOF)) {
		return nil
	}
	return err
}

func (s *Server) registerTools() {
	triggerOpts := []mcp.ToolOption{
		mcp.WithString("timezone", mcp.Description("IANA timezone, e.g. Europe/Berlin (default: host zone)")),
		mcp.WithString("repeat", mcp.Description("Repeat rule: interval, daily, weekly, monthly (default: none)")),
		mcp.WithNumber("every", mcp.Description("Repeat multiplier; minutes for interval (default: 1)")),
		mcp.WithString("quiet_start", mcp.Description("Quiet hours start, HH:mm local")),
		mcp.WithString("quiet_end", mcp.Description("Quiet hours end, HH:mm local (exclusive)")),
		mcp.WithString("priority", mcp.Description("Priority: low, normal, high")),
		mcp.WithString("body", mcp.Description("Optional body text")),
		mcp.WithString("target_path", mcp.Description("File path the reminder is about")),
		mcp.WithString("target_query", mcp.Description("Search query the reminder is about")),
	}

	add := append([]mcp.ToolOption{
		mcp.WithDescription("Add a reminder that fires at a local wall-clock time, optionally repeating"),
		mcp.WithString("title", mcp.Required(), mcp.Description("Reminder title")),
		mcp.WithString("at", mcp.Required(), mcp.Description("Local date-time, e.g. 2025-01-15T09:00:00")),
	}, triggerOpts...)
	s.mcpServer.AddTool(mcp.NewTool("add_reminder", add...), s.handleAdd)

	s.mcpServer.AddTool(
		mcp.NewTool("list_reminders",
			mcp.WithDescription("List reminders, optionally filtered by status"),
			mcp.WithString("status", mcp.Description("scheduled, fired, snoozed, done, dismissed, or empty for all")),
		),
		s.handleList,
	)

	s.mcpServer.AddTool(
		mcp.NewTool("get_reminder",
			mcp.WithDescription("Get one reminder by id"),
			mcp.WithString("id", mcp.Required(), mcp.Description("Reminder ID")),
		),
		s.handleGet,
	)

	update := append([]mcp.ToolOption{
		mcp.WithDescription("Update a reminder. Changing the time, timezone, repeat or quiet hours replans it"),
		mcp.WithString("id", mcp.Required(), mcp.Description("Reminder ID")),
		mcp.WithString("title", mcp.Description("New title")),
		mcp.WithString("at", mcp.Description("New local date-time")),
		mcp.WithBoolean("clear_quiet_hours", mcp.Description("Remove quiet hours")),
	}, triggerOpts...)
	s.mcpServer.AddTool(mcp.NewTool("update_reminder", update...), s.handleUpdate)

	s.mcpServer.AddTool(
		mcp.NewTool("snooze_reminder",
			mcp.WithDescription("Snooze a reminder"),
			mcp.WithString("id", mcp.Required(), mcp.Description("Reminder ID")),
			mcp.WithNumber("minutes", mcp.Description("Snooze length in minutes (default: configured snooze)")),
		),
		s.handleSnooze,
	)

	for _, t := range []struct {
		name, desc string
		fn         func(ctx context.Context, id string) (reminder.Reminder, error)
	}{
		{"complete_reminder", "Mark the current occurrence done; repeating reminders move to the next one", s.engine.Complete},
		{"dismiss_reminder", "Dismiss a reminder without completing it", s.engine.Dismiss},
	} {
		s.mcpServer.AddTool(
			mcp.NewTool(t.name,
				mcp.WithDescription(t.desc),
				mcp.WithString("id", mcp.Required(), mcp.Description("Reminder ID")),
			),
			s.byID(t.fn),
		)
	}

	s.mcpServer.AddTool(
		mcp.NewTool("delete_reminder",
			mcp.WithDescription("Delete a reminder permanently"),
			mcp.WithString("id", mcp.Required(), mcp.Description("Reminder ID")),
		),
		s.handleDelete,
	)

	s.mcpServer.AddTool(
		mcp.NewTool("reconcile_now",
			mcp.WithDescription("Run a reconciliation pass and report what changed"),
		),
		s.handleReconcile,
	)

	s.mcpServer.AddTool(
		mcp.NewTool("debug_scheduled",
			mcp.WithDescription("Show reminders alongside the handles the notification backend holds"),
		),
		s.handleDebug,
	)
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	output, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("encode result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(output)), nil
}

func (s *Server) handleAdd(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	title := strings.TrimSpace(req.GetString("title", ""))
	at := strings.TrimSpace(req.GetString("at", ""))
	if title == "" {
		return mcp.NewToolResultError("title is required"), nil
	}
	if at == "" {
		return mcp.NewToolResultError("at is required"), nil
	}
	trig, err := buildTrigger(req, reminder.TimeTrigger{At: at})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	qh, _, err := quietHours(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	r, err := s.engine.Create(ctx, reminder.Draft{
		Title:      title,
		Body:       req.GetString("body", ""),
		Target:     target(req),
		Trigger:    trig,
		Priority:   reminder.ParsePriority(req.GetString("priority", "")),
		QuietHours: qh,
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to add reminder: %v", err)), nil
	}
	return jsonResult(r)
}

func (s *Server) handleList(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	status := reminder.Status(strings.ToLower(strings.TrimSpace(req.GetString("status", ""))))
	if status != "" && !status.Valid() {
		return mcp.NewToolResultError(fmt.Sprintf("unknown status %q", status)), nil
	}
	var out []reminder.Reminder
	for _, r := range s.engine.List() {
		if status == "" || r.Status == status {
			out = append(out, r)
		}
	}
	if len(out) == 0 {
		return mcp.NewToolResultText("No reminders found."), nil
	}
	return jsonResult(out)
}

func (s *Server) handleGet(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	r, err := s.engine.Get(req.GetString("id", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(r)
}

func (s *Server) handleUpdate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := req.GetString("id", "")
	cur, err := s.engine.Get(id)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var p reconcile.Patch
	if v := req.GetString("title", ""); v != "" {
		p.Title = &v
	}
	if v := req.GetString("body", ""); v != "" {
		p.Body = &v
	}
	if v := req.GetString("priority", ""); v != "" {
		pr := reminder.ParsePriority(v)
		p.Priority = &pr
	}
	if t := target(req); t.Path != "" || t.Query != "" {
		p.Target = &t
	}
	if hasAny(req, "at", "timezone", "repeat", "every") {
		base, _ := cur.Trigger.(reminder.TimeTrigger)
		if v := req.GetString("at", ""); v != "" {
			base.At = v
		}
		trig, err := buildTrigger(req, base)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		p.Trigger = trig
	}
	p.ClearQuietHours = req.GetBool("clear_quiet_hours", false)
	if qh, set, err := quietHours(req); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	} else if set {
		p.QuietHours = qh
	}

	r, err := s.engine.Update(ctx, id, p)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to update reminder: %v", err)), nil
	}
	return jsonResult(r)
}

func (s *Server) handleSnooze(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	minutes := req.GetFloat("minutes", 0)
	if minutes < 0 {
		return mcp.NewToolResultError("minutes must be positive"), nil
	}
	r, err := s.engine.Snooze(ctx, req.GetString("id", ""), time.Duration(minutes*float64(time.Minute)))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to snooze reminder: %v", err)), nil
	}
	return jsonResult(r)
}

func (s *Server) byID(fn func(ctx context.Context, id string) (reminder.Reminder, error)) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id := req.GetString("id", "")
		if id == "" {
			return mcp.NewToolResultError("id is required"), nil
		}
		r, err := fn(ctx, id)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return jsonResult(r)
	}
}

func (s *Server) handleDelete(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := req.GetString("id", "")
	if err := s.engine.Delete(ctx, id); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to delete reminder: %v", err)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Reminder %s deleted.", id)), nil
}

func (s *Server) handleReconcile(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	rep, err := s.engine.Reconcile(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("reconcile failed: %v", err)), nil
	}
	return jsonResult(rep)
}

func (s *Server) handleDebug(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	info, err := s.engine.Debug(ctx)
	if err != nil {
		s.log.Warn("debug listing incomplete", logx.Err(err))
	}
	return jsonResult(info)
}
