package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/skydoves/firebase-android-ktx/database/memdb"
)

// DatabaseMCPServer wraps an MCP server exposing an in-memory realtime
// database as tools and resources.
type DatabaseMCPServer struct {
	server *mcp.Server
	db     *memdb.DB
	logger *slog.Logger

	watchMu  sync.Mutex
	watchers map[string]*watcher
}

// New creates a DatabaseMCPServer serving db.
func New(db *memdb.DB, version string, logger *slog.Logger) *DatabaseMCPServer {
	s := mcp.NewServer(&mcp.Implementation{
		Name:    "firebase-ktx",
		Version: version,
	}, &mcp.ServerOptions{
		SubscribeHandler:   func(context.Context, *mcp.SubscribeRequest) error { return nil },
		UnsubscribeHandler: func(context.Context, *mcp.UnsubscribeRequest) error { return nil },
	})

	g := &DatabaseMCPServer{
		server:   s,
		db:       db,
		logger:   logger,
		watchers: make(map[string]*watcher),
	}

	g.registerResources()
	g.registerTools()

	return g
}

// Run starts the MCP server on stdio and blocks until done. Active watches
// are stopped before Run returns.
func (g *DatabaseMCPServer) Run(ctx context.Context) error {
	defer g.stopAll()
	return g.server.Run(ctx, &mcp.StdioTransport{})
}

// RunWithTransport starts the MCP server on a custom transport (for testing).
func (g *DatabaseMCPServer) RunWithTransport(ctx context.Context, t mcp.Transport) error {
	_, err := g.server.Connect(ctx, t, nil)
	return err
}

// watching returns the watched paths in order.
func (g *DatabaseMCPServer) watching() []string {
	g.watchMu.Lock()
	defer g.watchMu.Unlock()
	paths := make([]string, 0, len(g.watchers))
	for p := range g.watchers {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// jsonResult marshals v to JSON and returns it as a text CallToolResult.
func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshaling result: %w", err)
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: string(data)},
		},
	}, nil
}

// errorResult returns a CallToolResult with IsError=true.
func errorResult(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: msg},
		},
		IsError: true,
	}
}

// jsonResource marshals v to JSON and wraps it in a ReadResourceResult.
func jsonResource(uri string, v any) (*mcp.ReadResourceResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshaling resource: %w", err)
	}
	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		}},
	}, nil
}
