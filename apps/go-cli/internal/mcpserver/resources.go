package mcpserver

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

const (
	statusURI   = "db://status"
	rootURI     = "db://root"
	nodeURIBase = "db://node/"
)

func (g *DatabaseMCPServer) registerResources() {
	g.server.AddResource(&mcp.Resource{
		URI:         statusURI,
		Name:        "Server Status",
		Description: "Paths currently being watched",
		MIMEType:    "application/json",
	}, g.handleStatusResource)

	g.server.AddResource(&mcp.Resource{
		URI:         rootURI,
		Name:        "Database",
		Description: "The whole database tree",
		MIMEType:    "application/json",
	}, g.handleRootResource)

	g.server.AddResourceTemplate(&mcp.ResourceTemplate{
		URITemplate: nodeURIBase + "{+path}",
		Name:        "Database Node",
		Description: "The value stored at a slash separated path",
		MIMEType:    "application/json",
	}, g.handleNodeResource)
}

func (g *DatabaseMCPServer) handleStatusResource(_ context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
	return jsonResource(req.Params.URI, map[string]any{
		"watching": g.watching(),
	})
}

func (g *DatabaseMCPServer) handleRootResource(_ context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
	return jsonResource(req.Params.URI, g.db.Reference("").Get().Value())
}

func (g *DatabaseMCPServer) handleNodeResource(_ context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
	path, err := parseNodeURI(req.Params.URI)
	if err != nil {
		return nil, err
	}
	return jsonResource(req.Params.URI, g.db.Reference(path).Get().Value())
}

// nodeURI returns the resource URI of path.
func nodeURI(path string) string {
	return nodeURIBase + strings.Trim(path, "/")
}

// parseNodeURI parses "db://node/{path}".
func parseNodeURI(rawURI string) (string, error) {
	// db://node/a/b → scheme=db, host=node, path=/a/b
	u, err := url.Parse(rawURI)
	if err != nil {
		return "", fmt.Errorf("invalid URI: %w", err)
	}
	if u.Scheme != "db" || u.Host != "node" {
		return "", fmt.Errorf("invalid node URI: %s", rawURI)
	}
	path := strings.Trim(u.Path, "/")
	if path == "" {
		return "", fmt.Errorf("node URI without path: %s", rawURI)
	}
	return path, nil
}
