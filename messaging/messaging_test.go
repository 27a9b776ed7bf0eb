package messaging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skydoves/firebase-android-ktx/lifecycle"
)

func TestParseRemoteMessage(t *testing.T) {
	raw := []byte(`{
		"message_id": "m-1",
		"from": "/topics/news",
		"sent_time": 1700000000000,
		"ttl": 60,
		"data": {"kind": "post", "count": 3, "post": {"id": 7}},
		"notification": {"title": "Hello", "body": "World"}
	}`)

	msg, err := ParseRemoteMessage(raw)
	require.NoError(t, err)
	assert.Equal(t, "m-1", msg.MessageID)
	assert.Equal(t, "/topics/news", msg.From)
	assert.Equal(t, 60, msg.TTL)
	assert.Equal(t, time.UnixMilli(1700000000000), msg.Sent())
	assert.Equal(t, "post", msg.Data["kind"])
	assert.Equal(t, "3", msg.Data["count"])
	require.NotNil(t, msg.Notification)
	assert.Equal(t, "Hello", msg.Notification.Title)

	var post struct {
		ID int `json:"id"`
	}
	require.NoError(t, msg.DecodeData("post", &post))
	assert.Equal(t, 7, post.ID)
	assert.Error(t, msg.DecodeData("missing", &post))
}

func TestParseRemoteMessage_GeneratesID(t *testing.T) {
	msg, err := ParseRemoteMessage([]byte(`{"from":"sender"}`))
	require.NoError(t, err)
	_, err = uuid.Parse(msg.MessageID)
	assert.NoError(t, err)
	assert.Nil(t, msg.Data)
	assert.True(t, msg.Sent().IsZero())
}

func TestParseRemoteMessage_Invalid(t *testing.T) {
	_, err := ParseRemoteMessage([]byte(`not json`))
	assert.Error(t, err)
}

func waitState(t *testing.T, svc *Service, state lifecycle.State) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, svc.Lifecycle().WaitForState(ctx, state))
}

func TestService_LifecycleFollowsHooks(t *testing.T) {
	svc := NewService(WithName("test"))
	assert.Equal(t, lifecycle.Initialized, svc.Lifecycle().CurrentState())

	svc.Create()
	svc.Start()
	svc.Rebind()
	waitState(t, svc, lifecycle.Started)

	ctx := svc.Lifecycle().Context()
	svc.Destroy()
	waitState(t, svc, lifecycle.Destroyed)

	select {
	case <-ctx.Done():
		assert.ErrorIs(t, context.Cause(ctx), lifecycle.ErrDestroyed)
	case <-time.After(2 * time.Second):
		t.Fatal("lifecycle context not cancelled")
	}
}

func TestService_Handlers(t *testing.T) {
	svc := NewService()

	var tokens []string
	var messages []RemoteMessage
	deleted := 0
	svc.OnNewToken(func(token string) { tokens = append(tokens, token) })
	svc.OnMessageReceived(func(msg RemoteMessage) { messages = append(messages, msg) })
	svc.OnDeletedMessages(func() { deleted++ })

	svc.Create()
	svc.NewToken("token-1")
	svc.MessageReceived(RemoteMessage{MessageID: "m-1"})
	svc.DeletedMessages()

	assert.Equal(t, []string{"token-1"}, tokens)
	assert.Equal(t, "token-1", svc.Token())
	require.Len(t, messages, 1)
	assert.Equal(t, "m-1", messages[0].MessageID)
	assert.Equal(t, 1, deleted)

	svc.Destroy()
	waitState(t, svc, lifecycle.Destroyed)

	svc.NewToken("token-2")
	svc.MessageReceived(RemoteMessage{MessageID: "m-2"})
	svc.DeletedMessages()
	assert.Equal(t, []string{"token-1"}, tokens)
	assert.Len(t, messages, 1)
	assert.Equal(t, 1, deleted)
	assert.Equal(t, "token-1", svc.Token())
}

type fakeSource struct {
	token       string
	registerErr error
	listenErr   error
	messages    []RemoteMessage
}

func (s *fakeSource) Register(context.Context) (string, error) {
	return s.token, s.registerErr
}

func (s *fakeSource) Listen(ctx context.Context, sink Sink) error {
	for _, msg := range s.messages {
		sink.MessageReceived(msg)
	}
	if s.listenErr != nil {
		return s.listenErr
	}
	<-ctx.Done()
	return ctx.Err()
}

func TestRun(t *testing.T) {
	svc := NewService()

	var mu sync.Mutex
	var received []string
	launched := make(chan struct{})
	svc.OnNewToken(func(token string) {
		svc.Lifecycle().Launch(func(ctx context.Context) error {
			close(launched)
			<-ctx.Done()
			return nil
		})
	})
	svc.OnMessageReceived(func(msg RemoteMessage) {
		mu.Lock()
		received = append(received, msg.MessageID)
		mu.Unlock()
	})

	ctx, cancel := context.WithCancel(context.Background())
	src := &fakeSource{
		token:    "push-token",
		messages: []RemoteMessage{{MessageID: "a"}, {MessageID: "b"}},
	}

	done := make(chan error, 1)
	go func() { done <- Run(ctx, svc, src) }()

	select {
	case <-launched:
	case <-time.After(2 * time.Second):
		t.Fatal("token handler did not run")
	}
	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(received) == 2
	}, 2*time.Second, time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return")
	}

	waitState(t, svc, lifecycle.Destroyed)
	svc.Lifecycle().Wait()
	assert.Equal(t, "push-token", svc.Token())
	assert.Equal(t, []string{"a", "b"}, received)
}

func TestRun_RegisterError(t *testing.T) {
	svc := NewService()
	errBoom := errors.New("boom")

	err := Run(context.Background(), svc, &fakeSource{registerErr: errBoom})
	assert.ErrorIs(t, err, errBoom)
	waitState(t, svc, lifecycle.Destroyed)
}

func TestRun_ListenError(t *testing.T) {
	svc := NewService()
	errBoom := errors.New("connection lost")

	err := Run(context.Background(), svc, &fakeSource{token: "t", listenErr: errBoom})
	assert.ErrorIs(t, err, errBoom)
	assert.Contains(t, err.Error(), "listening for push messages")
	waitState(t, svc, lifecycle.Destroyed)
}

type recordingSink struct {
	tokens   []string
	messages []RemoteMessage
	deleted  int
}

func (s *recordingSink) NewToken(token string)             { s.tokens = append(s.tokens, token) }
func (s *recordingSink) MessageReceived(msg RemoteMessage) { s.messages = append(s.messages, msg) }
func (s *recordingSink) DeletedMessages()                  { s.deleted++ }

func TestHubReceiver(t *testing.T) {
	sink := &recordingSink{}
	r := &hubReceiver{sink: sink, logger: slog.Default()}

	r.ReceiveMessage(json.RawMessage(`{"message_id":"m-1","data":{"k":"v"}}`))
	r.ReceiveMessage(json.RawMessage(`{broken`))
	r.ReceiveToken("tok")
	r.ReceiveToken("")
	r.ReceiveDeletedMessages()

	require.Len(t, sink.messages, 1)
	assert.Equal(t, "m-1", sink.messages[0].MessageID)
	assert.Equal(t, "v", sink.messages[0].Data["k"])
	assert.Equal(t, []string{"tok"}, sink.tokens)
	assert.Equal(t, 1, sink.deleted)
}

func TestHubSource_Register(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/push/negotiate", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"connectionId":"conn-42"}`))
	}))
	defer srv.Close()

	src := NewHubSource(srv.URL+"/push",
		WithHTTPClient(srv.Client()),
		WithAccessToken(func(context.Context) (string, error) { return "secret", nil }),
	)

	token, err := src.Register(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "conn-42", token)
	assert.Equal(t, "Bearer secret", gotAuth)
}

func TestHubSource_FirstConnectionUsesRegisteredID(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"connectionId":"conn-%d"}`, n)
	}))
	defer srv.Close()

	src := NewHubSource(srv.URL+"/push", WithHTTPClient(srv.Client()))
	sink := &recordingSink{}

	token, err := src.Register(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "conn-1", token)

	neg, headers, err := src.dialTarget(context.Background(), sink)
	require.NoError(t, err)
	u, err := src.wsURL(neg, headers)
	require.NoError(t, err)
	assert.Equal(t, token, u.Query().Get("id"))
	assert.Equal(t, int32(1), calls.Load())
	assert.Empty(t, sink.tokens)

	// A reconnect negotiates again and reports the new ID.
	neg, headers, err = src.dialTarget(context.Background(), sink)
	require.NoError(t, err)
	u, err = src.wsURL(neg, headers)
	require.NoError(t, err)
	assert.Equal(t, "conn-2", u.Query().Get("id"))
	assert.Equal(t, []string{"conn-2"}, sink.tokens)
}

func TestHubSource_RegisterFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := NewHubSource(srv.URL).Register(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "negotiate failed")
}

func TestHubSource_AccessTokenError(t *testing.T) {
	errNoToken := errors.New("no token")
	src := NewHubSource("http://127.0.0.1:1/push",
		WithAccessToken(func(context.Context) (string, error) { return "", errNoToken }))

	_, err := src.Register(context.Background())
	assert.ErrorIs(t, err, errNoToken)
}

func TestHubSource_WebSocketURL(t *testing.T) {
	src := NewHubSource("https://example.com/push")

	headers := http.Header{}
	u, err := src.wsURL(negotiateResponse{ConnectionID: "abc"}, headers)
	require.NoError(t, err)
	assert.Equal(t, "wss://example.com/push?id=abc", u.String())
	assert.Empty(t, headers.Get("Authorization"))

	u, err = src.wsURL(negotiateResponse{URL: "http://relay.example.com/client", AccessToken: "relay"}, headers)
	require.NoError(t, err)
	assert.Equal(t, "ws://relay.example.com/client", u.String())
	assert.Equal(t, "Bearer relay", headers.Get("Authorization"))
}

func TestSlogAdapter(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	a := &slogAdapter{logger: logger}

	require.NoError(t, a.Log())
	require.NoError(t, a.Log("level", "debug", "ts", "now", "state", 1))

	out := buf.String()
	assert.Contains(t, out, "msg=signalr")
	assert.Contains(t, out, "state=1")
	assert.NotContains(t, out, "ts=now")
}
