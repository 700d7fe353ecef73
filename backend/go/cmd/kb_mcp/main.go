package main

import (
	"context"
	"flag"
	"log"
	"os"
	"time"

	"github.com/mark3labs/mcp-go/server"

	"github.com/Farx1/esilvchatbot/backend/go/internal/chat_service/service"
	"github.com/Farx1/esilvchatbot/backend/go/internal/config"
	"github.com/Farx1/esilvchatbot/backend/go/internal/knowledge/bootstrap"
	"github.com/Farx1/esilvchatbot/backend/go/internal/mcp"
	"github.com/Farx1/esilvchatbot/backend/go/pkg/logger"
)

// STDIO transport (default)
//go run ./backend/go/cmd/kb_mcp
//
// SSE transport on port 8086
//go run ./backend/go/cmd/kb_mcp -transport=sse -port=8086

func main() {
	configPath := flag.String("config", "backend/go/internal/config/config.yaml", "Path to the YAML configuration")
	transport := flag.String("transport", "stdio", "Transport method: stdio, sse, or httpstream")
	port := flag.String("port", "8086", "Port for HTTP-based transports (sse, httpstream)")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	// stdout 属于 stdio 传输，日志只能写到 stderr
	logger.Init(logger.ParseLevel(cfg.Logger.Level))
	logger.SetOutput(os.Stderr)
	l := logger.New("KnowledgeMCP", "")

	ctx := context.Background()
	kb, err := bootstrap.Open(ctx, cfg, l)
	if err != nil {
		l.WithError(err).Fatal("Failed to open knowledge base")
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := kb.Close(closeCtx); err != nil {
			l.WithError(err).Error("Error closing knowledge base")
		}
	}()

	knowledge := service.NewKnowledgeService(kb.Store, kb.Audit, kb.Extractor, kb.Detector, l)
	s := mcp.NewServer("esilv-knowledge", cfg.App.Version, mcp.NewTools(kb.Orchestrator, knowledge, l))

	switch *transport {
	case "sse":
		l.WithPayload(map[string]interface{}{"port": *port}).Info("Starting knowledge MCP server with SSE transport")
		if err := server.NewSSEServer(s).Start(":" + *port); err != nil {
			l.WithError(err).Error("SSE server error")
		}
	case "httpstream":
		l.WithPayload(map[string]interface{}{"port": *port}).Info("Starting knowledge MCP server with StreamableHTTP transport")
		if err := server.NewStreamableHTTPServer(s).Start(":" + *port); err != nil {
			l.WithError(err).Error("HTTP server error")
		}
	case "stdio":
		l.Info("Starting knowledge MCP server with STDIO transport")
		if err := server.ServeStdio(s); err != nil {
			l.WithError(err).Error("STDIO server error")
		}
	default:
		l.Error("Unknown transport " + *transport + ", use stdio, sse, or httpstream")
	}
}
