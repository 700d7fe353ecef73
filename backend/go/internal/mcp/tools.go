// Package mcp 把知识库暴露为 MCP 工具。
package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/Farx1/esilvchatbot/backend/go/internal/chat_service/service"
	"github.com/Farx1/esilvchatbot/backend/go/internal/knowledge/orchestrator"
	"github.com/Farx1/esilvchatbot/backend/go/pkg/logger"
)

const defaultSearchLimit = 5

// Tools 持有工具处理函数依赖的组件。
type Tools struct {
	orch      *orchestrator.Orchestrator
	knowledge *service.KnowledgeService
	logger    *logger.Logger
}

func NewTools(orch *orchestrator.Orchestrator, knowledge *service.KnowledgeService, l *logger.Logger) *Tools {
	return &Tools{orch: orch, knowledge: knowledge, logger: l}
}

// NewServer 创建注册了全部知识库工具的 MCP 服务器。
func NewServer(name, version string, t *Tools) *server.MCPServer {
	s := server.NewMCPServer(name, version, server.WithToolCapabilities(false))
	t.Register(s)
	return s
}

// Register 把工具注册到 s。
func (t *Tools) Register(s *server.MCPServer) {
	s.AddTool(mcplib.NewTool("search_knowledge",
		mcplib.WithDescription("Search the ESILV knowledge base by keywords without triggering web verification"),
		mcplib.WithString("query", mcplib.Required(), mcplib.Description("Question or keywords")),
		mcplib.WithNumber("limit", mcplib.Description("Maximum number of facts, default 5")),
	), t.Search)

	s.AddTool(mcplib.NewTool("ask_knowledge",
		mcplib.WithDescription("Answer a question from the knowledge base, verifying stale or sensitive facts against the official website"),
		mcplib.WithString("question", mcplib.Required(), mcplib.Description("The user question")),
	), t.Ask)

	s.AddTool(mcplib.NewTool("find_conflicts",
		mcplib.WithDescription("List stored facts that share keywords with a new text, with a conflict verdict for each"),
		mcplib.WithString("text", mcplib.Required(), mcplib.Description("New information to compare")),
	), t.FindConflicts)

	s.AddTool(mcplib.NewTool("scrape_knowledge",
		mcplib.WithDescription("Fetch fresh information from the official website for a query, optionally saving new results to the knowledge base"),
		mcplib.WithString("query", mcplib.Required(), mcplib.Description("Question or keywords")),
		mcplib.WithBoolean("auto_save", mcplib.Description("Save results that are not already stored, default false")),
	), t.Scrape)

	s.AddTool(mcplib.NewTool("knowledge_stats",
		mcplib.WithDescription("Count facts and average confidence per category"),
	), t.Stats)
}

func (t *Tools) Search(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcplib.NewToolResultError(err.Error()), nil
	}
	limit := req.GetInt("limit", defaultSearchLimit)
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	terms, facts, err := t.orch.Search(ctx, query, limit)
	if err != nil {
		return t.failed("search", err), nil
	}
	return jsonResult(map[string]interface{}{"keywords": terms, "facts": facts})
}

func (t *Tools) Ask(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	question, err := req.RequireString("question")
	if err != nil {
		return mcplib.NewToolResultError(err.Error()), nil
	}
	res, err := t.orch.Answer(ctx, question)
	if err != nil {
		return t.failed("ask", err), nil
	}
	return jsonResult(res)
}

func (t *Tools) FindConflicts(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	text, err := req.RequireString("text")
	if err != nil {
		return mcplib.NewToolResultError(err.Error()), nil
	}
	matches, err := t.knowledge.FindConflicts(ctx, text)
	if err != nil {
		return t.failed("find_conflicts", err), nil
	}
	return jsonResult(map[string]interface{}{"matches": matches})
}

func (t *Tools) Scrape(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcplib.NewToolResultError(err.Error()), nil
	}
	res, err := t.orch.Scrape(ctx, orchestrator.ScrapeRequest{Query: query, AutoSave: req.GetBool("auto_save", false)})
	if err != nil {
		return t.failed("scrape_knowledge", err), nil
	}
	return jsonResult(res)
}

func (t *Tools) Stats(ctx context.Context, _ mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	stats, err := t.knowledge.Stats(ctx)
	if err != nil {
		return t.failed("knowledge_stats", err), nil
	}
	return jsonResult(stats)
}

// failed 把错误作为工具结果返回给调用方，而不是协议错误。
func (t *Tools) failed(tool string, err error) *mcplib.CallToolResult {
	t.logger.WithError(err).WithPayload(map[string]interface{}{"tool": tool}).Error("MCP tool failed")
	return mcplib.NewToolResultError(fmt.Sprintf("%s failed: %v", tool, err))
}

func jsonResult(v interface{}) (*mcplib.CallToolResult, error) {
	body, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal tool result: %w", err)
	}
	return mcplib.NewToolResultText(string(body)), nil
}
