// Package mcp exposes the toolbox as Model Context Protocol tools.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/aretw0/tabkeeper/internal/logging"
	"github.com/aretw0/tabkeeper/pkg/ports"
	"github.com/aretw0/tabkeeper/pkg/tools"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

const menuURI = "tabkeeper://menu"

// Invoker is the part of the toolbox the MCP server needs.
type Invoker interface {
	Invoke(ctx context.Context, tool, sessionID string, args map[string]any) tools.Result
}

// Server wraps the toolbox and exposes it as an MCP Server.
type Server struct {
	toolbox   Invoker
	catalog   ports.Catalog
	mcpServer *server.MCPServer
	logger    *slog.Logger
	names     []string
}

// Option configures the Server.
type Option func(*Server)

// WithLogger sets a structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// NewServer creates a new MCP Server instance.
func NewServer(toolbox Invoker, catalog ports.Catalog, version string, opts ...Option) *Server {
	s := &Server{
		toolbox:   toolbox,
		catalog:   catalog,
		mcpServer: server.NewMCPServer("tabkeeper-mcp", version),
		logger:    logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.registerTools()
	s.registerResources()
	return s
}

// ToolNames lists the registered tools.
func (s *Server) ToolNames() []string {
	return append([]string(nil), s.names...)
}

// ServeStdio starts the server on Stdin/Stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// ServeSSE serves MCP over SSE on addr until ctx is cancelled.
func (s *Server) ServeSSE(ctx context.Context, addr, baseURL string) error {
	sseServer := server.NewSSEServer(s.mcpServer, server.WithBaseURL(baseURL))

	mux := http.NewServeMux()
	mux.Handle("/sse", corsMiddleware(sseServer.SSEHandler()))
	mux.Handle("/message", corsMiddleware(sseServer.MessageHandler()))

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Channel to listen for errors coming from the listener.
	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("MCP Server listening (SSE)", "address", addr)
		serverErrors <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		s.logger.Info("Shutdown signal received, stopping MCP server")
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("could not stop server gracefully: %w", err)
		}
		return nil
	}
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Requested-With")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) registerTools() {
	for _, spec := range tools.Specs() {
		s.mcpServer.AddTool(newTool(spec), s.handler(spec.Name))
		s.names = append(s.names, spec.Name)
	}
}

// newTool turns a toolbox spec into an MCP tool definition. Every tool
// except get_menu takes a session_id.
func newTool(spec tools.Spec) mcp.Tool {
	opts := []mcp.ToolOption{mcp.WithDescription(spec.Description)}
	if spec.Name != tools.ToolGetMenu {
		opts = append(opts, mcp.WithString("session_id", mcp.Required(), mcp.Description("Conversation session identifier")))
	}
	for _, p := range spec.Params {
		props := []mcp.PropertyOption{mcp.Description(p.Description)}
		if p.Required {
			props = append(props, mcp.Required())
		}
		switch p.Type {
		case tools.ParamNumber, tools.ParamInteger:
			opts = append(opts, mcp.WithNumber(p.Name, props...))
		case tools.ParamArray:
			props = append(props, mcp.Items(map[string]any{"type": "string"}))
			opts = append(opts, mcp.WithArray(p.Name, props...))
		default:
			opts = append(opts, mcp.WithString(p.Name, props...))
		}
	}
	return mcp.NewTool(spec.Name, opts...)
}

func (s *Server) handler(name string) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := request.GetArguments()
		sessionID, _ := args["session_id"].(string)

		rest := make(map[string]any, len(args))
		for k, v := range args {
			if k != "session_id" {
				rest[k] = v
			}
		}

		res := s.toolbox.Invoke(ctx, name, sessionID, rest)
		payload, err := json.Marshal(res)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("encode failed: %v", err)), nil
		}
		if !res.OK {
			return mcp.NewToolResultError(string(payload)), nil
		}
		return mcp.NewToolResultText(string(payload)), nil
	}
}

func (s *Server) registerResources() {
	s.mcpServer.AddResource(mcp.NewResource(menuURI, "Menu",
		mcp.WithResourceDescription("Items that can be ordered, with prices"),
		mcp.WithMIMEType("application/json"),
	), func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		jsonBytes, err := json.Marshal(s.catalog.Items())
		if err != nil {
			return nil, fmt.Errorf("failed to encode menu: %w", err)
		}
		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      menuURI,
				MIMEType: "application/json",
				Text:     string(jsonBytes),
			},
		}, nil
	})
}
