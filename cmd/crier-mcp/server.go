package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	crier "github.com/matthewjhunter/crier"
	"github.com/matthewjhunter/crier/internal/logging"
	"github.com/matthewjhunter/crier/internal/scheduler"
)

const version = "0.1.0"

// server exposes one tenant's pipeline as MCP tools.
type server struct {
	engine *crier.Engine
	tenant string
	log    logging.Logger
}

func newServer(engine *crier.Engine, tenant string, log logging.Logger) *server {
	return &server{engine: engine, tenant: tenant, log: log}
}

// mcpServer builds the SDK server with every tool registered.
func (s *server) mcpServer() *mcp.Server {
	srv := mcp.NewServer(&mcp.Implementation{Name: "crier", Version: version}, nil)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "queue_list",
		Description: "List content queue items, newest first. Returns id, platform, status, text and schedule.",
	}, s.queueList)
	mcp.AddTool(srv, &mcp.Tool{
		Name:        "queue_add",
		Description: "Queue your own post text as a pending item awaiting approval.",
	}, s.queueAdd)
	mcp.AddTool(srv, &mcp.Tool{
		Name:        "queue_approve",
		Description: "Approve a pending queue item so the next queue flush publishes it.",
	}, s.queueApprove)
	mcp.AddTool(srv, &mcp.Tool{
		Name:        "queue_delete",
		Description: "Delete a queue item. This cannot be undone.",
	}, s.queueDelete)
	mcp.AddTool(srv, &mcp.Tool{
		Name:        "generate",
		Description: "Write one post with the tenant's knowledge and tone, and queue it as pending.",
	}, s.generate)
	mcp.AddTool(srv, &mcp.Tool{
		Name:        "post_now",
		Description: "Publish a queue item or raw text immediately, bypassing approval.",
	}, s.postNow)
	mcp.AddTool(srv, &mcp.Tool{
		Name:        "dashboard",
		Description: "Queue counts, posts today and this week, recent failures and average engagement.",
	}, s.dashboard)
	mcp.AddTool(srv, &mcp.Tool{
		Name:        "eligibility",
		Description: "Whether autonomous posting would publish right now, and why not.",
	}, s.eligibility)
	mcp.AddTool(srv, &mcp.Tool{
		Name:        "performance",
		Description: "Top performing posts and average engagement rate per content type.",
	}, s.performance)
	mcp.AddTool(srv, &mcp.Tool{
		Name:        "knowledge_list",
		Description: "List the facts generated posts are grounded on.",
	}, s.knowledgeList)
	mcp.AddTool(srv, &mcp.Tool{
		Name:        "knowledge_add",
		Description: "Add or replace a knowledge entry keyed by category and key.",
	}, s.knowledgeAdd)
	mcp.AddTool(srv, &mcp.Tool{
		Name:        "tick_run",
		Description: "Run one scheduler tick now: auto_publish, queue_flush or engagement.",
	}, s.tickRun)

	return srv
}

// run serves over stdio until the client disconnects or ctx ends.
func (s *server) run(ctx context.Context) error {
	s.log.WithField("tenant", s.tenant).Info("crier-mcp starting")
	return s.mcpServer().Run(ctx, &mcp.StdioTransport{})
}

func toolError(message string) (*mcp.CallToolResult, any, error) {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: message}},
		IsError: true,
	}, nil, nil
}

// toolJSON returns v as indented JSON text.
func toolJSON(v any) (*mcp.CallToolResult, any, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return toolError(fmt.Sprintf("failed to format result: %v", err))
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(data)}},
	}, nil, nil
}

func toolText(format string, args ...any) (*mcp.CallToolResult, any, error) {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: fmt.Sprintf(format, args...)}},
	}, nil, nil
}

// fail reports engine errors to the client. Only unexpected errors are
// logged.
func (s *server) fail(tool string, err error) (*mcp.CallToolResult, any, error) {
	switch {
	case errors.Is(err, crier.ErrInvalid), errors.Is(err, crier.ErrNotFound), errors.Is(err, crier.ErrConflict),
		errors.Is(err, crier.ErrBlockedContent), errors.Is(err, crier.ErrNearDuplicate):
	default:
		s.log.WithField("tool", tool).WithError(err).Warn("Tool failed")
	}
	return toolError(err.Error())
}

func deref[T any](p *T, def T) T {
	if p == nil {
		return def
	}
	return *p
}

func (s *server) queueList(ctx context.Context, _ *mcp.CallToolRequest, in queueListInput) (*mcp.CallToolResult, any, error) {
	items, err := s.engine.ListQueue(ctx, s.tenant, crier.QueueStatus(deref(in.Status, "")), deref(in.Limit, 20), 0)
	if err != nil {
		return s.fail("queue_list", err)
	}
	return toolJSON(items)
}

func (s *server) queueAdd(ctx context.Context, _ *mcp.CallToolRequest, in queueAddInput) (*mcp.CallToolResult, any, error) {
	req := crier.EnqueueRequest{Platform: in.Platform, Text: in.Text}
	if in.ScheduledFor != nil {
		when, err := time.Parse(time.RFC3339, *in.ScheduledFor)
		if err != nil {
			return toolError("scheduled_for must be an RFC 3339 time")
		}
		req.ScheduledFor = &when
	}
	item, err := s.engine.Enqueue(ctx, s.tenant, req)
	if err != nil {
		return s.fail("queue_add", err)
	}
	return toolJSON(item)
}

func (s *server) queueApprove(ctx context.Context, _ *mcp.CallToolRequest, in queueIDInput) (*mcp.CallToolResult, any, error) {
	if err := s.engine.Approve(ctx, s.tenant, in.ID); err != nil {
		return s.fail("queue_approve", err)
	}
	return toolText("Approved item %d", in.ID)
}

func (s *server) queueDelete(ctx context.Context, _ *mcp.CallToolRequest, in queueIDInput) (*mcp.CallToolResult, any, error) {
	if err := s.engine.DeleteQueueItem(ctx, s.tenant, in.ID); err != nil {
		return s.fail("queue_delete", err)
	}
	return toolText("Deleted item %d", in.ID)
}

func (s *server) generate(ctx context.Context, _ *mcp.CallToolRequest, in generateInput) (*mcp.CallToolResult, any, error) {
	item, err := s.engine.Generate(ctx, s.tenant, crier.GenerateRequest{
		Platform:    in.Platform,
		ContentType: deref(in.ContentType, ""),
		Context:     in.Context,
	})
	if err != nil {
		return s.fail("generate", err)
	}
	return toolJSON(item)
}

func (s *server) postNow(ctx context.Context, _ *mcp.CallToolRequest, in postInput) (*mcp.CallToolResult, any, error) {
	res, err := s.engine.Post(ctx, s.tenant, crier.PostRequest{
		QueueID:  deref(in.QueueID, 0),
		Platform: deref(in.Platform, ""),
		Text:     deref(in.Text, ""),
	})
	if err != nil {
		return s.fail("post_now", err)
	}
	if res.Outcome != scheduler.OutcomePosted {
		return toolError(fmt.Sprintf("publish failed (%s): %s", res.Category, res.Error))
	}
	return toolJSON(res.Posted)
}

func (s *server) dashboard(ctx context.Context, _ *mcp.CallToolRequest, _ emptyInput) (*mcp.CallToolResult, any, error) {
	d, err := s.engine.Dashboard(ctx, s.tenant)
	if err != nil {
		return s.fail("dashboard", err)
	}
	return toolJSON(d)
}

func (s *server) eligibility(ctx context.Context, _ *mcp.CallToolRequest, _ emptyInput) (*mcp.CallToolResult, any, error) {
	el, err := s.engine.Eligibility(ctx, s.tenant)
	if err != nil {
		return s.fail("eligibility", err)
	}
	return toolJSON(el)
}

func (s *server) performance(ctx context.Context, _ *mcp.CallToolRequest, in limitInput) (*mcp.CallToolResult, any, error) {
	rep, err := s.engine.Performance(ctx, s.tenant, deref(in.Limit, 10))
	if err != nil {
		return s.fail("performance", err)
	}
	return toolJSON(rep)
}

func (s *server) knowledgeList(ctx context.Context, _ *mcp.CallToolRequest, in knowledgeListInput) (*mcp.CallToolResult, any, error) {
	entries, err := s.engine.ListKnowledge(ctx, s.tenant, deref(in.ActiveOnly, false))
	if err != nil {
		return s.fail("knowledge_list", err)
	}
	return toolJSON(entries)
}

func (s *server) knowledgeAdd(ctx context.Context, _ *mcp.CallToolRequest, in knowledgeAddInput) (*mcp.CallToolResult, any, error) {
	entry, err := s.engine.AddKnowledge(ctx, crier.KnowledgeEntry{
		TenantID: s.tenant,
		Category: in.Category,
		Key:      in.Key,
		Value:    in.Value,
		Priority: deref(in.Priority, 0),
		Active:   true,
	})
	if err != nil {
		return s.fail("knowledge_add", err)
	}
	return toolJSON(entry)
}

func (s *server) tickRun(ctx context.Context, _ *mcp.CallToolRequest, in tickInput) (*mcp.CallToolResult, any, error) {
	rep, err := s.engine.RunTick(ctx, in.Kind)
	if errors.Is(err, crier.ErrTickSkipped) {
		return toolText("%s tick skipped: another run holds the lease", in.Kind)
	}
	if err != nil {
		return s.fail("tick_run", err)
	}
	return toolJSON(rep)
}
