package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/frontdesk/internal/kb"
	"github.com/kalambet/frontdesk/internal/orchestrator"
	"github.com/kalambet/frontdesk/internal/storage"
)

const pendingResourceURI = "helpdesk://help-requests/pending"

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Orchestrator     *orchestrator.Orchestrator
	ListingThreshold float64
}

// NewMCPServer creates an MCP server with the help desk tools and resources registered.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"frontdesk",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("frontdesk: answer customer questions from the knowledge base or escalate them to a supervisor."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("answer_or_escalate",
			mcp.WithDescription("Answer a customer utterance from small talk or the knowledge base, or escalate it to a supervisor and put the caller on hold."),
			mcp.WithString("utterance", mcp.Description("What the customer said"), mcp.Required()),
			mcp.WithString("conversation_id", mcp.Description("Conversation to append to; a new one is started when omitted")),
		),
		mcpAnswerOrEscalate(deps),
	)

	s.AddTool(
		mcp.NewTool("resolve_help_request",
			mcp.WithDescription("Resolve a pending help request with a supervisor answer. The answer is learned into the knowledge base."),
			mcp.WithString("id", mcp.Description("Help request id"), mcp.Required()),
			mcp.WithString("answer", mcp.Description("Supervisor answer"), mcp.Required()),
			mcp.WithString("supervisor_id", mcp.Description("Who is answering (default supervisor_demo)")),
		),
		mcpResolve(deps),
	)

	s.AddTool(
		mcp.NewTool("search_kb",
			mcp.WithDescription("Rank knowledge base entries by similarity to a question."),
			mcp.WithString("query", mcp.Description("Search query"), mcp.Required()),
			mcp.WithNumber("limit", mcp.Description("Maximum number of results (default 5)")),
			mcp.WithNumber("min_score", mcp.Description("Minimum similarity in [0, 1] (default 0.5)")),
		),
		mcpSearchKB(deps),
	)

	s.AddTool(
		mcp.NewTool("list_help_requests",
			mcp.WithDescription("List help requests newest first."),
			mcp.WithString("status", mcp.Description("pending or resolved; all when omitted")),
		),
		mcpListHelpRequests(deps),
	)

	s.AddResource(
		mcp.NewResource(
			pendingResourceURI,
			"Pending Help Requests",
			mcp.WithResourceDescription("Help requests waiting for a supervisor, as JSON"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourcePending(deps),
	)

	return s
}

func mcpAnswerOrEscalate(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		utterance, err := req.RequireString("utterance")
		if err != nil {
			return mcpError("utterance is required"), nil
		}

		convID := req.GetString("conversation_id", "")
		if convID == "" {
			c, err := deps.Orchestrator.StartConversation(ctx, "")
			if err != nil {
				return mcpError(fmt.Sprintf("failed to start conversation: %v", err)), nil
			}
			convID = c.ID
		}

		out, err := deps.Orchestrator.Handle(ctx, convID, utterance)
		if err != nil {
			return mcpError(fmt.Sprintf("answer failed: %v", err)), nil
		}

		type result struct {
			ConversationID string `json:"conversation_id"`
			AnswerResponse
		}
		return mcpJSON(result{ConversationID: convID, AnswerResponse: answerResponse(out)})
	}
}

func mcpResolve(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := req.RequireString("id")
		if err != nil {
			return mcpError("id is required"), nil
		}
		answer, err := req.RequireString("answer")
		if err != nil {
			return mcpError("answer is required"), nil
		}

		out, err := deps.Orchestrator.Resolve(ctx, id, answer, req.GetString("supervisor_id", ""))
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return mcpError(fmt.Sprintf("help request %s not found", id)), nil
			}
			return mcpError(fmt.Sprintf("resolve failed: %v", err)), nil
		}

		return mcpJSON(ResolveResponse{
			OK:           true,
			Reply:        out.Reply,
			AssistantMsg: refOf(out.AssistantMessage),
			Learned:      out.Learned,
			HelpRequest:  out.HelpRequest,
		})
	}
}

func mcpSearchKB(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query, err := req.RequireString("query")
		if err != nil {
			return mcpError("query is required"), nil
		}

		limit := req.GetInt("limit", defaultSearchLimit)
		if limit <= 0 {
			limit = defaultSearchLimit
		}
		if limit > maxSearchLimit {
			limit = maxSearchLimit
		}
		def := deps.ListingThreshold
		if def <= 0 {
			def = kb.ListingThreshold
		}
		minScore := req.GetFloat("min_score", def)
		if minScore < 0 || minScore > 1 {
			return mcpError("min_score must be within [0, 1]"), nil
		}

		matches, err := deps.Orchestrator.SearchKB(ctx, query, limit, minScore)
		if err != nil {
			return mcpError(fmt.Sprintf("search failed: %v", err)), nil
		}
		if len(matches) == 0 {
			return mcpText("[]"), nil
		}
		return mcpJSON(matches)
	}
}

func mcpListHelpRequests(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		status := storage.Status(req.GetString("status", ""))
		list, err := deps.Orchestrator.Tracker().List(ctx, status)
		if err != nil {
			return mcpError(fmt.Sprintf("list failed: %v", err)), nil
		}
		if len(list) == 0 {
			return mcpText("[]"), nil
		}
		return mcpJSON(list)
	}
}

func mcpResourcePending(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		list, err := deps.Orchestrator.Tracker().List(ctx, storage.StatusPending)
		if err != nil {
			return nil, fmt.Errorf("failed to list pending help requests: %w", err)
		}
		if list == nil {
			list = []storage.HelpRequest{}
		}

		b, err := json.Marshal(list)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal help requests: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func mcpJSON(v any) (*mcp.CallToolResult, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return mcpError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcpText(string(b)), nil
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
