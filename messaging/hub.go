package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/philippseith/signalr"
)

// HubOption configures HubSource.
type HubOption func(*HubSource)

// WithHubLogger sets a custom logger.
func WithHubLogger(logger *slog.Logger) HubOption {
	return func(h *HubSource) {
		h.logger = logger
	}
}

// WithHTTPClient sets the HTTP client used for negotiation.
func WithHTTPClient(client *http.Client) HubOption {
	return func(h *HubSource) {
		h.httpClient = client
	}
}

// WithAccessToken sets a bearer token factory called before each connection.
func WithAccessToken(factory func(ctx context.Context) (string, error)) HubOption {
	return func(h *HubSource) {
		h.accessToken = factory
	}
}

// HubSource is a Source that receives push events from a SignalR hub.
//
// The hub invokes ReceiveMessage with a JSON push payload, ReceiveToken with a
// refreshed push token and ReceiveDeletedMessages when it dropped pending
// messages.
type HubSource struct {
	hubURL      string
	logger      *slog.Logger
	httpClient  *http.Client
	accessToken func(ctx context.Context) (string, error)

	// mu guards the negotiation Register handed over to the first connect,
	// and the connection ID last reported as the token.
	mu      sync.Mutex
	pending *negotiation
	token   string
}

type negotiation struct {
	response negotiateResponse
	headers  http.Header
}

// NewHubSource creates a HubSource for the hub at hubURL.
func NewHubSource(hubURL string, opts ...HubOption) *HubSource {
	h := &HubSource{
		hubURL:     hubURL,
		logger:     slog.Default(),
		httpClient: http.DefaultClient,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

type negotiateResponse struct {
	ConnectionID string `json:"connectionId"`
	URL          string `json:"url"`
	AccessToken  string `json:"accessToken"`
}

// Register negotiates with the hub and returns the connection ID it assigned,
// which the backend uses to address this client. The first connection opened
// by Listen uses this negotiation, so the returned token addresses it.
func (h *HubSource) Register(ctx context.Context) (string, error) {
	neg, headers, err := h.negotiate(ctx)
	if err != nil {
		return "", err
	}
	if neg.ConnectionID == "" {
		return "", fmt.Errorf("negotiate returned no connectionId")
	}

	h.mu.Lock()
	h.pending = &negotiation{response: neg, headers: headers}
	h.token = neg.ConnectionID
	h.mu.Unlock()
	return neg.ConnectionID, nil
}

// Listen connects to the hub and forwards hub invocations to sink until ctx
// is cancelled.
func (h *HubSource) Listen(ctx context.Context, sink Sink) error {
	receiver := &hubReceiver{sink: sink, logger: h.logger}

	h.logger.Debug("Building SignalR hub", "url", h.hubURL)
	client, err := signalr.NewClient(ctx,
		signalr.WithConnector(func() (signalr.Connection, error) {
			return h.connect(ctx, sink)
		}),
		signalr.WithReceiver(receiver),
		signalr.Logger(&slogAdapter{logger: h.logger}, true),
		signalr.KeepAliveInterval(15*time.Second),
		signalr.TimeoutInterval(30*time.Second),
	)
	if err != nil {
		return fmt.Errorf("creating SignalR client: %w", err)
	}

	client.Start()

	waitCtx, waitCancel := context.WithTimeout(ctx, 30*time.Second)
	defer waitCancel()
	if err := <-client.WaitForState(waitCtx, signalr.ClientConnected); err != nil {
		return fmt.Errorf("waiting for SignalR connection: %w", err)
	}
	h.logger.Debug("SignalR connected")

	<-ctx.Done()
	h.logger.Debug("SignalR disconnected")
	return nil
}

// negotiate performs the SignalR negotiate request and returns its response
// along with the headers to open the WebSocket with.
func (h *HubSource) negotiate(ctx context.Context) (negotiateResponse, http.Header, error) {
	headers := http.Header{}
	if h.accessToken != nil {
		token, err := h.accessToken(ctx)
		if err != nil {
			return negotiateResponse{}, nil, fmt.Errorf("getting access token: %w", err)
		}
		headers.Set("Authorization", "Bearer "+token)
	}

	negotiateURL := h.hubURL + "/negotiate"
	h.logger.Debug("SignalR connector: negotiate", "url", negotiateURL)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, negotiateURL, nil)
	if err != nil {
		return negotiateResponse{}, nil, fmt.Errorf("creating negotiate request: %w", err)
	}
	req.Header = headers.Clone()

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return negotiateResponse{}, nil, fmt.Errorf("negotiate request: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	h.logger.Debug("SignalR connector: negotiate response",
		"status", resp.StatusCode, "body", truncate(string(body), 2000))

	if resp.StatusCode != http.StatusOK {
		return negotiateResponse{}, nil, fmt.Errorf("negotiate failed: %s %s", resp.Status, truncate(string(body), 500))
	}

	var neg negotiateResponse
	if err := json.Unmarshal(body, &neg); err != nil {
		return negotiateResponse{}, nil, fmt.Errorf("parsing negotiate response: %w", err)
	}
	return neg, headers, nil
}

// wsURL returns the WebSocket URL for a negotiate response. A redirect
// response replaces the Authorization header with the token it carries.
func (h *HubSource) wsURL(neg negotiateResponse, headers http.Header) (*url.URL, error) {
	var u *url.URL
	var err error
	if neg.URL != "" && neg.AccessToken != "" {
		u, err = url.Parse(neg.URL)
		if err != nil {
			return nil, fmt.Errorf("parsing redirect URL: %w", err)
		}
		headers.Set("Authorization", "Bearer "+neg.AccessToken)
	} else {
		u, err = url.Parse(h.hubURL)
		if err != nil {
			return nil, fmt.Errorf("parsing hub URL: %w", err)
		}
		q := u.Query()
		q.Set("id", neg.ConnectionID)
		u.RawQuery = q.Encode()
	}

	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	}
	return u, nil
}

// dialTarget returns the negotiation to open the next WebSocket with. The
// negotiation made by Register is used once; reconnects negotiate again and
// report a changed connection ID to sink as a new token.
func (h *HubSource) dialTarget(ctx context.Context, sink Sink) (negotiateResponse, http.Header, error) {
	h.mu.Lock()
	pending := h.pending
	h.pending = nil
	h.mu.Unlock()
	if pending != nil {
		return pending.response, pending.headers, nil
	}

	neg, headers, err := h.negotiate(ctx)
	if err != nil {
		return negotiateResponse{}, nil, err
	}
	if neg.ConnectionID == "" {
		return neg, headers, nil
	}

	h.mu.Lock()
	changed := neg.ConnectionID != h.token
	h.token = neg.ConnectionID
	h.mu.Unlock()
	if changed {
		h.logger.Debug("SignalR connector: connection ID changed", "connectionId", neg.ConnectionID)
		sink.NewToken(neg.ConnectionID)
	}
	return neg, headers, nil
}

func (h *HubSource) connect(ctx context.Context, sink Sink) (signalr.Connection, error) {
	neg, headers, err := h.dialTarget(ctx, sink)
	if err != nil {
		return nil, err
	}
	u, err := h.wsURL(neg, headers)
	if err != nil {
		return nil, err
	}

	connID := neg.ConnectionID
	if connID == "" {
		connID = "redirect"
	}

	h.logger.Debug("SignalR connector: opening WebSocket", "url", u.String())
	conn, err := signalr.NewWebSocketConnection(ctx, u, connID, headers)
	if err != nil {
		return nil, fmt.Errorf("WebSocket dial: %w", err)
	}
	h.logger.Debug("SignalR connector: connected", "connectionId", conn.ConnectionID())
	return conn, nil
}

// hubReceiver implements the receiver interface for the SignalR library.
// Method names match the hub method names exactly.
type hubReceiver struct {
	sink   Sink
	logger *slog.Logger
}

func (r *hubReceiver) ReceiveMessage(raw json.RawMessage) {
	r.logger.Debug("ReceiveMessage raw", "json", truncate(string(raw), 2000))
	msg, err := ParseRemoteMessage(raw)
	if err != nil {
		r.logger.Error("Error parsing ReceiveMessage", "error", err)
		return
	}
	r.sink.MessageReceived(msg)
}

func (r *hubReceiver) ReceiveToken(token string) {
	if token == "" {
		r.logger.Warn("Ignoring empty push token")
		return
	}
	r.sink.NewToken(token)
}

func (r *hubReceiver) ReceiveDeletedMessages() {
	r.sink.DeletedMessages()
}

// slogAdapter adapts slog.Logger to the SignalR library's go-kit/log interface.
// The library emits flat key-value pairs: "level", "debug", "ts", "...".
type slogAdapter struct {
	logger *slog.Logger
}

func (a *slogAdapter) Log(keyVals ...interface{}) error {
	if len(keyVals) == 0 {
		return nil
	}
	var attrs []any
	for i := 0; i+1 < len(keyVals); i += 2 {
		key := fmt.Sprint(keyVals[i])
		if key == "level" || key == "ts" || key == "caller" {
			continue
		}
		attrs = append(attrs, key, keyVals[i+1])
	}
	a.logger.Debug("signalr", attrs...)
	return nil
}
