package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/skydoves/firebase-android-ktx/database"
)

type record = map[string]any

// watcher is one active subscription forwarded as resource updates.
type watcher struct {
	mode   string
	cancel context.CancelFunc
	done   chan struct{}
}

func watchTool() *mcp.Tool {
	return &mcp.Tool{
		Name: "watch",
		Description: "Start observing a path. Every event arrives as a resource update for db://node/{path} " +
			"with the event in its metadata. Only object values are reported; other values appear as null.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"path": {"type": "string", "description": "Slash separated path"},
				"mode": {"type": "string", "description": "value: every value of the node; children: child events (default)"}
			},
			"required": ["path"]
		}`),
	}
}

func (g *DatabaseMCPServer) handleWatch(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args struct {
		Path string `json:"path"`
		Mode string `json:"mode"`
	}
	if err := parseArgs(req, &args); err != nil {
		return errorResult(err.Error()), nil
	}
	if args.Mode == "" {
		args.Mode = "children"
	}
	if args.Mode != "value" && args.Mode != "children" {
		return errorResult(fmt.Sprintf("unknown mode %q", args.Mode)), nil
	}
	path := strings.Trim(args.Path, "/")

	g.watchMu.Lock()
	if w, ok := g.watchers[path]; ok {
		g.watchMu.Unlock()
		return jsonResult(map[string]any{"watching": path, "mode": w.mode, "message": "already watching"})
	}
	watchCtx, cancel := context.WithCancel(context.Background())
	w := &watcher{mode: args.Mode, cancel: cancel, done: make(chan struct{})}
	g.watchers[path] = w
	g.watchMu.Unlock()

	ref := g.db.Reference(path)
	decode := database.JSONDecoder[record]()
	opts := []database.StreamOption{database.WithLogger(g.logger)}
	if args.Mode == "value" {
		go forward(watchCtx, g, w, path, database.Observe(ref, database.Root, decode, opts...), valueMeta)
	} else {
		go forward(watchCtx, g, w, path, database.ObserveChildren(ref, database.Root, decode, opts...), childMeta)
	}

	g.server.ResourceUpdated(ctx, &mcp.ResourceUpdatedNotificationParams{URI: statusURI})
	return jsonResult(map[string]any{"watching": path, "mode": args.Mode})
}

func unwatchTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "unwatch",
		Description: "Stop observing a path.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"path": {"type": "string", "description": "Path passed to watch"}
			},
			"required": ["path"]
		}`),
	}
}

func (g *DatabaseMCPServer) handleUnwatch(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args pathArgs
	if err := parseArgs(req, &args); err != nil {
		return errorResult(err.Error()), nil
	}
	path := strings.Trim(args.Path, "/")

	g.watchMu.Lock()
	w, ok := g.watchers[path]
	delete(g.watchers, path)
	g.watchMu.Unlock()

	if !ok {
		return jsonResult(map[string]any{"watching": false, "message": "not watching " + path})
	}
	w.cancel()
	<-w.done

	g.server.ResourceUpdated(ctx, &mcp.ResourceUpdatedNotificationParams{URI: statusURI})
	return jsonResult(map[string]any{"watching": false})
}

// stopAll cancels every watch and waits for the forwarders to exit.
func (g *DatabaseMCPServer) stopAll() {
	g.watchMu.Lock()
	watchers := g.watchers
	g.watchers = make(map[string]*watcher)
	g.watchMu.Unlock()

	for _, w := range watchers {
		w.cancel()
		<-w.done
	}
}

// forward sends every event of stream as a resource update for path until
// ctx is done or the subscription ends.
func forward[E any](ctx context.Context, g *DatabaseMCPServer, w *watcher, path string, stream *database.Stream[E], meta func(E) mcp.Meta) {
	defer close(w.done)

	sub := stream.Subscribe(ctx)
	defer sub.Close()

	uri := nodeURI(path)
	for e := range sub.Events() {
		g.server.ResourceUpdated(ctx, &mcp.ResourceUpdatedNotificationParams{
			URI:  uri,
			Meta: meta(e),
		})
	}
	if err := sub.Err(); err != nil {
		g.logger.Error("watch ended", "path", path, "error", err)
	}

	g.watchMu.Lock()
	if g.watchers[path] == w {
		delete(g.watchers, path)
	}
	g.watchMu.Unlock()
}

func valueMeta(res database.Result[record]) mcp.Meta {
	if !res.Ok() {
		return mcp.Meta{"type": "cancelled", "error": res.Err.Error()}
	}
	meta := mcp.Meta{"type": "value", "value": nil}
	if res.Value != nil {
		meta["value"] = *res.Value
	}
	return meta
}

func childMeta(state database.ChildState[record]) mcp.Meta {
	var (
		kind     string
		value    *record
		previous *string
	)
	switch s := state.(type) {
	case database.ChildAdded[record]:
		kind, value, previous = "child_added", s.Value, s.PreviousChildName
	case database.ChildChanged[record]:
		kind, value, previous = "child_changed", s.Value, s.PreviousChildName
	case database.ChildMoved[record]:
		kind, value, previous = "child_moved", s.Value, s.PreviousChildName
	case database.ChildRemoved[record]:
		kind, value = "child_removed", s.Value
	case database.ChildCanceled[record]:
		return mcp.Meta{"type": "cancelled", "error": s.Err.Error()}
	}
	meta := mcp.Meta{"type": kind, "value": nil}
	if value != nil {
		meta["value"] = *value
	}
	if previous != nil {
		meta["previous"] = *previous
	}
	return meta
}
