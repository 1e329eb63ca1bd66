package mcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Aman-CERP/amanrag/internal/search"
	"github.com/Aman-CERP/amanrag/internal/workspace"
	"github.com/Aman-CERP/amanrag/pkg/version"
)

// Tool names.
const (
	ToolSemanticSearch = "semantic_search"
	ToolListWorkspaces = "list_workspaces"
)

// Limit bounds for semantic_search.
const (
	DefaultLimit = 5
	MaxLimit     = 100
)

// Searcher is the query surface the tools call.
type Searcher interface {
	Search(ctx context.Context, workspaceID string, req search.QueryRequest) (*search.Payload, error)
	Workspaces() []*workspace.Workspace
}

// Options configures tool defaults.
type Options struct {
	DefaultLimit     int
	MaxLimit         int
	DefaultThreshold float64
	Logger           *slog.Logger
}

// Server is the MCP server. It exposes the query engine to MCP clients.
type Server struct {
	mcp      *mcp.Server
	searcher Searcher
	opts     Options
	logger   *slog.Logger
}

// ToolInfo contains information about a registered tool.
type ToolInfo struct {
	Name        string
	Description string
}

var tools = []ToolInfo{
	{
		Name: ToolSemanticSearch,
		Description: "Hybrid semantic search over one workspace. Combines vector and keyword retrieval, " +
			"re-ranks with the workspace cross-encoder and returns the most relevant chunks.",
	},
	{
		Name:        ToolListWorkspaces,
		Description: "List the workspaces that can be searched, with their engine, metric and languages.",
	},
}

// NewServer creates a new MCP server.
func NewServer(searcher Searcher, opts Options) (*Server, error) {
	if searcher == nil {
		return nil, errors.New("searcher is required")
	}
	if opts.DefaultLimit <= 0 {
		opts.DefaultLimit = DefaultLimit
	}
	if opts.MaxLimit <= 0 || opts.MaxLimit > MaxLimit {
		opts.MaxLimit = MaxLimit
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		searcher: searcher,
		opts:     opts,
		logger:   logger,
	}
	s.mcp = mcp.NewServer(
		&mcp.Implementation{Name: "amanrag", Version: version.Version},
		nil,
	)
	s.registerTools()
	return s, nil
}

// MCPServer returns the underlying SDK server.
func (s *Server) MCPServer() *mcp.Server {
	return s.mcp
}

// ListTools returns the registered tools.
func (s *Server) ListTools() []ToolInfo {
	return tools
}

// CallTool dispatches a tool call by name, outside any transport.
func (s *Server) CallTool(ctx context.Context, name string, args map[string]any) (any, error) {
	switch name {
	case ToolSemanticSearch:
		input := SemanticSearchInput{}
		if v, ok := args["workspace_id"].(string); ok {
			input.WorkspaceID = v
		}
		if v, ok := args["query"].(string); ok {
			input.Query = v
		}
		if v, ok := args["limit"].(float64); ok {
			limit := int(v)
			input.Limit = &limit
		}
		if v, ok := args["threshold"].(float64); ok {
			input.Threshold = &v
		}
		if v, ok := args["full_response"].(bool); ok {
			input.FullResponse = v
		}
		_, out, err := s.semanticSearchHandler(ctx, nil, input)
		return out, err
	case ToolListWorkspaces:
		_, out, err := s.listWorkspacesHandler(ctx, nil, ListWorkspacesInput{})
		return out, err
	default:
		return nil, MapError(fmt.Errorf("%w: %s", ErrToolNotFound, name))
	}
}

func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{Name: tools[0].Name, Description: tools[0].Description}, s.semanticSearchHandler)
	mcp.AddTool(s.mcp, &mcp.Tool{Name: tools[1].Name, Description: tools[1].Description}, s.listWorkspacesHandler)
	s.logger.Debug("mcp_tools_registered", slog.Int("count", len(tools)))
}

// clampLimit applies the default to an absent limit and bounds any given
// value, zero included, to [1, max].
func (s *Server) clampLimit(limit *int) int {
	if limit == nil {
		return min(max(s.opts.DefaultLimit, 1), s.opts.MaxLimit)
	}
	return min(max(*limit, 1), s.opts.MaxLimit)
}

func (s *Server) semanticSearchHandler(ctx context.Context, _ *mcp.CallToolRequest, input SemanticSearchInput) (
	*mcp.CallToolResult,
	SemanticSearchOutput,
	error,
) {
	if strings.TrimSpace(input.WorkspaceID) == "" {
		return nil, SemanticSearchOutput{}, NewInvalidParamsError("workspace_id parameter is required")
	}

	req := search.QueryRequest{
		Query:        input.Query,
		Limit:        s.clampLimit(input.Limit),
		FullResponse: input.FullResponse,
		Threshold:    s.opts.DefaultThreshold,
	}
	if input.Threshold != nil {
		req.Threshold = *input.Threshold
	}

	requestID := uuid.NewString()
	start := time.Now()
	payload, err := s.searcher.Search(ctx, input.WorkspaceID, req)
	if err != nil {
		s.logger.Warn("mcp_search_failed",
			slog.String("request_id", requestID),
			slog.String("workspace_id", input.WorkspaceID),
			slog.String("error", err.Error()))
		return nil, SemanticSearchOutput{}, MapError(err)
	}

	s.logger.Info("mcp_search_complete",
		slog.String("request_id", requestID),
		slog.String("workspace_id", input.WorkspaceID),
		slog.Int("items", len(payload.Items)),
		slog.Duration("duration", time.Since(start)))
	return nil, ToSearchOutput(payload), nil
}

func (s *Server) listWorkspacesHandler(_ context.Context, _ *mcp.CallToolRequest, _ ListWorkspacesInput) (
	*mcp.CallToolResult,
	ListWorkspacesOutput,
	error,
) {
	list := s.searcher.Workspaces()
	out := ListWorkspacesOutput{Workspaces: make([]WorkspaceInfo, 0, len(list))}
	for _, ws := range list {
		out.Workspaces = append(out.Workspaces, WorkspaceInfo{
			WorkspaceID:  ws.ID,
			Name:         ws.Name,
			Engine:       ws.Engine,
			Metric:       ws.Metric,
			HybridSearch: ws.HybridSearch,
			Reranks:      ws.Reranks(),
			Languages:    ws.SupportedLanguages(),
		})
	}
	return nil, out, nil
}

// Serve runs the server on stdio until ctx is done.
func (s *Server) Serve(ctx context.Context) error {
	s.logger.Info("mcp_server_starting", slog.String("transport", "stdio"))
	err := s.mcp.Run(ctx, &mcp.StdioTransport{})
	if err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Error("mcp_server_stopped", slog.String("error", err.Error()))
		return err
	}
	s.logger.Info("mcp_server_stopped")
	return nil
}
