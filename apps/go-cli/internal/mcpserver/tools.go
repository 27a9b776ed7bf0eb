package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

func (g *DatabaseMCPServer) registerTools() {
	// Read and write tools
	g.server.AddTool(getTool(), g.handleGet)
	g.server.AddTool(setTool(), g.handleSet)
	g.server.AddTool(updateTool(), g.handleUpdate)
	g.server.AddTool(removeTool(), g.handleRemove)
	g.server.AddTool(pushTool(), g.handlePush)

	// Watch tools
	g.server.AddTool(watchTool(), g.handleWatch)
	g.server.AddTool(unwatchTool(), g.handleUnwatch)
}

type pathArgs struct {
	Path string `json:"path"`
}

// parseArgs unmarshals tool arguments into v. Missing arguments leave v
// untouched.
func parseArgs(req *mcp.CallToolRequest, v any) error {
	if len(req.Params.Arguments) == 0 {
		return nil
	}
	if err := json.Unmarshal(req.Params.Arguments, v); err != nil {
		return fmt.Errorf("invalid arguments: %w", err)
	}
	return nil
}

func getTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "get",
		Description: "Read the value stored at a path. An empty path reads the whole database.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"path": {"type": "string", "description": "Slash separated path, e.g. rooms/lobby"}
			}
		}`),
	}
}

func (g *DatabaseMCPServer) handleGet(_ context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args pathArgs
	if err := parseArgs(req, &args); err != nil {
		return errorResult(err.Error()), nil
	}
	snap := g.db.Reference(args.Path).Get()
	return jsonResult(map[string]any{
		"path":   strings.Trim(args.Path, "/"),
		"exists": snap.Exists(),
		"value":  snap.Value(),
	})
}

func setTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "set",
		Description: "Replace the value at a path. A null value removes it.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"path": {"type": "string", "description": "Slash separated path"},
				"value": {"description": "Any JSON value"}
			},
			"required": ["path"]
		}`),
	}
}

func (g *DatabaseMCPServer) handleSet(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args struct {
		Path  string `json:"path"`
		Value any    `json:"value"`
	}
	if err := parseArgs(req, &args); err != nil {
		return errorResult(err.Error()), nil
	}
	if err := g.db.Reference(args.Path).Set(args.Value); err != nil {
		return errorResult(err.Error()), nil
	}
	g.changed(ctx, args.Path)
	return jsonResult(map[string]any{"path": strings.Trim(args.Path, "/")})
}

func updateTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "update",
		Description: "Set several children of a path in one write. Keys may be relative paths.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"path": {"type": "string", "description": "Slash separated path of the parent"},
				"values": {"type": "object", "description": "Child path to value"}
			},
			"required": ["values"]
		}`),
	}
}

func (g *DatabaseMCPServer) handleUpdate(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args struct {
		Path   string         `json:"path"`
		Values map[string]any `json:"values"`
	}
	if err := parseArgs(req, &args); err != nil {
		return errorResult(err.Error()), nil
	}
	if len(args.Values) == 0 {
		return errorResult("values is required"), nil
	}
	if err := g.db.Reference(args.Path).Update(args.Values); err != nil {
		return errorResult(err.Error()), nil
	}
	g.changed(ctx, args.Path)
	return jsonResult(map[string]any{"path": strings.Trim(args.Path, "/"), "updated": len(args.Values)})
}

func removeTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "remove",
		Description: "Delete the value at a path.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"path": {"type": "string", "description": "Slash separated path"}
			},
			"required": ["path"]
		}`),
	}
}

func (g *DatabaseMCPServer) handleRemove(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args pathArgs
	if err := parseArgs(req, &args); err != nil {
		return errorResult(err.Error()), nil
	}
	if strings.Trim(args.Path, "/") == "" {
		return errorResult("path is required"), nil
	}
	if err := g.db.Reference(args.Path).Remove(); err != nil {
		return errorResult(err.Error()), nil
	}
	g.changed(ctx, args.Path)
	return jsonResult(map[string]any{"path": strings.Trim(args.Path, "/"), "removed": true})
}

func pushTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "push",
		Description: "Store a value under a new time-ordered child key of a path. Returns the key.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"path": {"type": "string", "description": "Slash separated path of the list"},
				"value": {"description": "Any JSON value except null"}
			},
			"required": ["path"]
		}`),
	}
}

func (g *DatabaseMCPServer) handlePush(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args struct {
		Path  string `json:"path"`
		Value any    `json:"value"`
	}
	if err := parseArgs(req, &args); err != nil {
		return errorResult(err.Error()), nil
	}
	if args.Value == nil {
		return errorResult("value is required"), nil
	}
	child, err := g.db.Reference(args.Path).Push(args.Value)
	if err != nil {
		return errorResult(err.Error()), nil
	}
	g.changed(ctx, args.Path)
	return jsonResult(map[string]any{"key": child.Key(), "path": child.Path()})
}

// changed notifies subscribers that the tree resource changed.
func (g *DatabaseMCPServer) changed(ctx context.Context, path string) {
	g.logger.Debug("database written", "path", path)
	g.server.ResourceUpdated(ctx, &mcp.ResourceUpdatedNotificationParams{URI: rootURI})
}
