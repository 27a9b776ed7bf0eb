package cmd

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/skydoves/firebase-android-ktx/database"
	"github.com/skydoves/firebase-android-ktx/database/memdb"
	"github.com/skydoves/firebase-android-ktx/messaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const roomsFixture = `
seed:
  rooms:
    lobby:
      title: Lobby
steps:
  - op: set
    path: rooms/kitchen
    value:
      title: Kitchen
  - op: set
    path: rooms/lobby/title
    value: Main
  - op: remove
    path: rooms/kitchen
`

func writeFixture(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fixture.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func loadTestFixture(t *testing.T, content string) *Fixture {
	t.Helper()
	fx, err := LoadFixture(writeFixture(t, content))
	require.NoError(t, err)
	return fx
}

func watchLines(t *testing.T, fx *Fixture, opts watchOptions) []string {
	t.Helper()
	var buf bytes.Buffer
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, runWatch(ctx, &buf, fx, opts, slog.Default()))
	return strings.Split(strings.TrimSpace(buf.String()), "\n")
}

func TestLoadFixture(t *testing.T) {
	fx := loadTestFixture(t, roomsFixture)
	require.Len(t, fx.Steps, 3)
	assert.Equal(t, "set", fx.Steps[0].Op)
	assert.Equal(t, "rooms/kitchen", fx.Steps[0].Path)
	assert.Contains(t, fx.Seed, "rooms")

	empty, err := LoadFixture("")
	require.NoError(t, err)
	assert.Empty(t, empty.Steps)

	_, err = LoadFixture(writeFixture(t, "steps:\n  - op: explode\n    path: x\n"))
	assert.ErrorContains(t, err, `unknown op "explode"`)

	_, err = LoadFixture(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestWatch_ValueMode(t *testing.T) {
	fx := loadTestFixture(t, roomsFixture+`
  - op: remove
    path: rooms/lobby
`)
	lines := watchLines(t, fx, watchOptions{path: "rooms/lobby", mode: "value"})
	assert.Equal(t, []string{
		`>> value {"title":"Lobby"}`,
		`>> value {"title":"Main"}`,
		`>> value null`,
	}, lines)
}

func TestWatch_OnceMode(t *testing.T) {
	fx := loadTestFixture(t, roomsFixture)
	lines := watchLines(t, fx, watchOptions{path: "rooms/lobby", mode: "once"})
	assert.Equal(t, []string{`>> value {"title":"Lobby"}`}, lines)
}

func TestWatch_ChildrenMode(t *testing.T) {
	fx := loadTestFixture(t, roomsFixture)
	lines := watchLines(t, fx, watchOptions{path: "rooms", mode: "children"})
	assert.Equal(t, []string{
		`>> child_added {"title":"Lobby"}`,
		`>> child_added {"title":"Kitchen"}`,
		`>> child_changed after=kitchen {"title":"Main"}`,
		`>> child_removed {"title":"Kitchen"}`,
	}, lines)
}

func TestWatch_ChildPath(t *testing.T) {
	fx := loadTestFixture(t, roomsFixture)
	lines := watchLines(t, fx, watchOptions{path: "rooms", mode: "once", child: "lobby", decoder: "lenient"})
	assert.Equal(t, []string{`>> value {"title":"Lobby"}`}, lines)
}

func TestWatch_DenyCancelsSubscription(t *testing.T) {
	fx := loadTestFixture(t, `
seed:
  rooms:
    lobby:
      title: Lobby
steps:
  - op: deny
    path: rooms
  - op: set
    path: rooms/lobby/title
    value: Hidden
`)
	lines := watchLines(t, fx, watchOptions{path: "rooms/lobby", mode: "value"})
	require.Len(t, lines, 2)
	assert.Equal(t, `>> value {"title":"Lobby"}`, lines[0])
	assert.True(t, strings.HasPrefix(lines[1], ">> cancelled error=listener cancelled:"), lines[1])
	assert.Contains(t, lines[1], "read denied at /rooms/lobby")
}

func TestWatch_YAMLOutput(t *testing.T) {
	useYAML = true
	t.Cleanup(func() { useYAML = false })

	fx := loadTestFixture(t, roomsFixture)
	var buf bytes.Buffer
	require.NoError(t, runWatch(context.Background(), &buf, fx, watchOptions{path: "rooms/lobby", mode: "once"}, slog.Default()))

	out := buf.String()
	assert.True(t, strings.HasPrefix(out, "---\n"))
	assert.Contains(t, out, "event: value")
	assert.Contains(t, out, "title: Lobby")
}

func TestWatch_InvalidOptions(t *testing.T) {
	var buf bytes.Buffer
	err := runWatch(context.Background(), &buf, &Fixture{}, watchOptions{mode: "sideways"}, slog.Default())
	assert.ErrorContains(t, err, `unknown mode "sideways"`)

	err = runWatch(context.Background(), &buf, &Fixture{}, watchOptions{decoder: "xml"}, slog.Default())
	assert.ErrorContains(t, err, `unknown decoder "xml"`)
}

func TestListenService_StoresAndPrintsMessages(t *testing.T) {
	db := memdb.New()
	defer db.Close()

	var buf bytes.Buffer
	out := &lockedWriter{w: &buf}
	svc := newListenService(db, out, slog.Default())
	wait := watchInbox(svc.Lifecycle().Context(), db, out, slog.Default())

	svc.Create()
	svc.Start()
	svc.MessageReceived(messaging.RemoteMessage{
		MessageID: "0:1/a",
		From:      "sender",
		Data:      map[string]string{"k": "v"},
	})
	svc.DeletedMessages()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, db.Flush(ctx))
	svc.Destroy()
	wait()

	assert.True(t, db.Reference(inboxPath).Child("0:1_a").Get().Exists())
	out.mu.Lock()
	defer out.mu.Unlock()
	text := buf.String()
	assert.Contains(t, text, `>> child_added {"data":{"k":"v"},"from":"sender","message_id":"0:1/a"}`)
	assert.Contains(t, text, ">> deleted_messages")
}

func TestCommandsRegistered(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"watch", "listen", "mcp"} {
		assert.True(t, names[want], "command %s not registered", want)
	}

	mode, err := watchCmd.Flags().GetString("mode")
	require.NoError(t, err)
	assert.Equal(t, "value", mode)
	assert.NotNil(t, listenCmd.Flags().Lookup("access-token"))
	assert.NotNil(t, rootCmd.PersistentFlags().Lookup("fixture"))
}

func TestStartMetrics_ServesStreamMetrics(t *testing.T) {
	m, server := startMetrics("127.0.0.1:0", prometheus.NewRegistry(), slog.Default())
	defer server.Close()

	db := memdb.New()
	defer db.Close()
	var buf bytes.Buffer
	wait := watchInbox(context.Background(), db, &lockedWriter{w: &buf}, slog.Default(), database.WithMetrics(m))
	defer wait()

	rec := httptest.NewRecorder()
	server.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `database_stream_subscriptions_active{kind="child"} 1`)
}
