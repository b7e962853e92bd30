package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/CentralLabFacilities/bonsai-sub000/pkg/domain"
	"github.com/CentralLabFacilities/bonsai-sub000/pkg/ports"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// ChartURI is the resource holding the composed chart.
const ChartURI = "bonsai://chart"

// StatusResponse is returned by every control tool.
type StatusResponse struct {
	Status   domain.MachineStatus `json:"status" jsonschema_description:"Coarse machine status"`
	Active   []string             `json:"active" jsonschema_description:"Active state ids in document order"`
	Possible []string             `json:"possible" jsonschema_description:"Event descriptors accepted by the active states"`
}

// Server exposes an Orchestrator as an MCP server.
type Server struct {
	orch      ports.Orchestrator
	mcpServer *server.MCPServer
	logger    *slog.Logger
}

// NewServer creates a new MCP Server instance.
func NewServer(orch ports.Orchestrator, version string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	s := &Server{
		orch:      orch,
		logger:    logger,
		mcpServer: server.NewMCPServer("bonsai-mcp", strings.TrimSpace(version)),
	}
	s.registerTools()
	s.registerResources()
	return s
}

// MCPServer returns the underlying server.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// ServeStdio starts the server on Stdin/Stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// ServeSSE serves over SSE on addr until ctx is done.
func (s *Server) ServeSSE(ctx context.Context, addr string) error {
	sseServer := server.NewSSEServer(s.mcpServer, server.WithBaseURL("http://"+hostPort(addr)))

	mux := http.NewServeMux()
	mux.Handle("/sse", corsMiddleware(sseServer.SSEHandler()))
	mux.Handle("/message", corsMiddleware(sseServer.MessageHandler()))

	httpServer := &http.Server{Addr: addr, Handler: mux}

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("MCP server listening (SSE)", "address", addr)
		serverErrors <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("could not stop server gracefully: %w", err)
		}
		return nil
	}
}

func hostPort(addr string) string {
	if strings.HasPrefix(addr, ":") {
		return "localhost" + addr
	}
	return addr
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) registerTools() {
	s.mcpServer.AddTool(mcp.NewTool("status",
		mcp.WithDescription("Report the machine status, active states and accepted events."),
		mcp.WithOutputSchema[StatusResponse](),
	), mcp.NewStructuredToolHandler(s.handleStatus))

	control := []struct {
		name string
		desc string
		fn   func(context.Context) error
	}{
		{"start", "Start the loaded state chart from its initial configuration.", s.orch.Start},
		{"stop", "Stop the machine and terminate every running skill.", func(context.Context) error { s.orch.Stop(); return nil }},
		{"pause", "Pause every running skill.", func(context.Context) error { s.orch.Pause(); return nil }},
		{"resume", "Resume paused skills.", func(context.Context) error { s.orch.Resume(); return nil }},
	}
	for _, c := range control {
		s.mcpServer.AddTool(mcp.NewTool(c.name,
			mcp.WithDescription(c.desc),
			mcp.WithOutputSchema[StatusResponse](),
		), mcp.NewStructuredToolHandler(s.controlHandler(c.name, c.fn)))
	}

	s.mcpServer.AddTool(mcp.NewTool("fire_event",
		mcp.WithDescription("Deliver an external event to the running machine."),
		mcp.WithString("event", mcp.Required(), mcp.Description("Event name, e.g. Wait.SUCCESS")),
		mcp.WithOutputSchema[StatusResponse](),
	), mcp.NewStructuredToolHandler(s.handleFireEvent))

	s.mcpServer.AddTool(mcp.NewTool("reload",
		mcp.WithDescription("Reload the chart with the previous source and overrides."),
	), s.handleReload)

	s.mcpServer.AddTool(mcp.NewTool("exceptions",
		mcp.WithDescription("List the most recent skill failures, oldest first."),
	), func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		raw, err := json.Marshal(s.orch.Exceptions())
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText(string(raw)), nil
	})
}

func (s *Server) snapshot() StatusResponse {
	return StatusResponse{
		Status:   s.orch.Status(),
		Active:   s.orch.ActiveStates(),
		Possible: s.orch.PossibleEvents(),
	}
}

func (s *Server) handleStatus(ctx context.Context, request mcp.CallToolRequest, args map[string]any) (StatusResponse, error) {
	return s.snapshot(), nil
}

func (s *Server) controlHandler(name string, fn func(context.Context) error) func(context.Context, mcp.CallToolRequest, map[string]any) (StatusResponse, error) {
	return func(ctx context.Context, request mcp.CallToolRequest, args map[string]any) (StatusResponse, error) {
		if err := fn(ctx); err != nil {
			s.logger.Warn("MCP control failed", "tool", name, "err", err)
			return StatusResponse{}, fmt.Errorf("%s failed: %w", name, err)
		}
		return s.snapshot(), nil
	}
}

func (s *Server) handleFireEvent(ctx context.Context, request mcp.CallToolRequest, args map[string]any) (StatusResponse, error) {
	event, _ := args["event"].(string)
	if event == "" {
		return StatusResponse{}, fmt.Errorf("event is required")
	}
	if _, err := s.orch.FireEvent(ctx, event); err != nil {
		return StatusResponse{}, fmt.Errorf("fire_event failed: %w", err)
	}
	return s.snapshot(), nil
}

func (s *Server) handleReload(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	res := s.orch.Reload(ctx)
	if err := res.Err(); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("reload failed: %v", err)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("reloaded, %d warning(s)", len(res.Validation.Warnings()))), nil
}

func (s *Server) registerResources() {
	s.mcpServer.AddResource(mcp.NewResource(ChartURI, "Composed state chart",
		mcp.WithMIMEType("application/yaml"),
	), s.readChart)
}

func (s *Server) readChart(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	composed := s.orch.Composed()
	if composed == nil {
		return nil, domain.ErrNotLoaded
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      ChartURI,
			MIMEType: "application/yaml",
			Text:     string(composed),
		},
	}, nil
}
