package mcp

import (
	"context"
	"log/slog"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/hoferino/manda/internal/artifacts"
	"github.com/hoferino/manda/internal/checkpoint"
	"github.com/hoferino/manda/internal/streaming"
	"github.com/hoferino/manda/internal/supervisor"
)

// MandaServerDeps holds the dependencies for creating a MandaServer.
type MandaServerDeps struct {
	Supervisor  *supervisor.Supervisor
	Artifacts   *artifacts.Manager
	Checkpoints checkpoint.Store
	Hub         streaming.EventHub
	Logger      *slog.Logger
}

// MandaServer wraps an MCP server with the due-diligence tool handlers.
type MandaServer struct {
	supervisor  *supervisor.Supervisor
	artifacts   *artifacts.Manager
	checkpoints checkpoint.Store
	hub         streaming.EventHub
	logger      *slog.Logger
	sessions    *SessionRegistry
	notifier    ThreadNotifier
	mcpServer   *server.MCPServer
}

// NewMandaServer creates a new MandaServer with all 5 tools registered.
func NewMandaServer(deps MandaServerDeps) *MandaServer {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}

	s := &MandaServer{
		supervisor:  deps.Supervisor,
		artifacts:   deps.Artifacts,
		checkpoints: deps.Checkpoints,
		hub:         deps.Hub,
		logger:      logger,
		sessions:    NewSessionRegistry(),
	}

	mcpSrv := server.NewMCPServer(
		"manda",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithRecovery(),
		server.WithInstructions("Manda is a conversational due-diligence engine. Use manda.ask to run a question through the specialist pipeline, manda.update_artifact to record deliverable changes, manda.check_navigation to test whether moving to an artifact is coherent, manda.advance_phase to move the document workflow forward, and manda.query to inspect artifacts, the reference graph, or a thread."),
	)

	mcpSrv.AddTools(s.tools()...)
	s.mcpServer = mcpSrv
	s.notifier = NewMCPNotifier(mcpSrv, s.sessions)
	return s
}

// Serve starts the stdio transport and blocks until ctx is cancelled or stdin closes.
func (s *MandaServer) Serve(ctx context.Context) error {
	stdio := server.NewStdioServer(s.mcpServer)
	return stdio.Listen(ctx, os.Stdin, os.Stdout)
}

// MCPServer returns the underlying MCPServer for testing or custom transports.
func (s *MandaServer) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// tools returns the 5 registered MCP tools as ServerTool entries.
func (s *MandaServer) tools() []server.ServerTool {
	return []server.ServerTool{
		{Tool: askTool(), Handler: s.handleAsk},
		{Tool: updateArtifactTool(), Handler: s.handleUpdateArtifact},
		{Tool: checkNavigationTool(), Handler: s.handleCheckNavigation},
		{Tool: advancePhaseTool(), Handler: s.handleAdvancePhase},
		{Tool: queryTool(), Handler: s.handleQuery},
	}
}

// --- Tool definitions ---

func askTool() mcp.Tool {
	return mcp.NewTool("manda.ask",
		mcp.WithDescription("Run a due-diligence question through the specialist pipeline"),
		mcp.WithString("thread_key", mcp.Required(),
			mcp.Description("Encoded thread key (kind:tenant[:user]:conversation)")),
		mcp.WithString("query", mcp.Required(), mcp.Description("The user's question")),
		mcp.WithString("domain",
			mcp.Description("Pre-classified domain; skips the classifier when set together with complexity")),
		mcp.WithString("complexity",
			mcp.Enum("simple", "moderate", "complex"),
			mcp.Description("Pre-classified complexity")),
	)
}

func updateArtifactTool() mcp.Tool {
	return mcp.NewTool("manda.update_artifact",
		mcp.WithDescription("Upsert a deliverable artifact and reconcile its cross-references"),
		mcp.WithString("id", mcp.Required(), mcp.Description("Artifact ID")),
		mcp.WithString("status", mcp.Required(),
			mcp.Enum("not_started", "draft", "in_progress", "complete"),
			mcp.Description("Lifecycle status"),
		),
		mcp.WithString("section_id", mcp.Description("Containing section, empty for a top-level artifact")),
		mcp.WithString("title", mcp.Description("Display title")),
		mcp.WithString("content", mcp.Description("Artifact body")),
		mcp.WithArray("references", mcp.Description("IDs of artifacts this one references")),
	)
}

func checkNavigationTool() mcp.Tool {
	return mcp.NewTool("manda.check_navigation",
		mcp.WithDescription("Check whether navigating to an artifact (or jumping across the ordered list) is coherent"),
		mcp.WithString("target_id", mcp.Description("Artifact to navigate to")),
		mcp.WithNumber("from_index", mcp.Description("Current cursor index for a jump check")),
		mcp.WithNumber("to_index", mcp.Description("Destination cursor index for a jump check")),
		mcp.WithArray("order", mcp.Description("Ordered artifact IDs for the jump check")),
	)
}

func advancePhaseTool() mcp.Tool {
	return mcp.NewTool("manda.advance_phase",
		mcp.WithDescription("Advance the document workflow to the next phase, or jump to a named phase"),
		mcp.WithString("thread_key", mcp.Required(),
			mcp.Description("Encoded thread key owning the workflow")),
		mcp.WithString("target_phase",
			mcp.Enum("persona", "thesis", "outline", "content", "review"),
			mcp.Description("Jump to this phase instead of advancing"),
		),
	)
}

func queryTool() mcp.Tool {
	return mcp.NewTool("manda.query",
		mcp.WithDescription("Query artifacts, the reference graph, or a conversation thread"),
		mcp.WithString("resource", mcp.Required(),
			mcp.Enum("artifacts", "graph", "thread"),
			mcp.Description("Type of resource to query"),
		),
		mcp.WithObject("filter",
			mcp.Description("Filter criteria (status, section_id, artifact_id, depth, thread_key, limit)")),
	)
}
