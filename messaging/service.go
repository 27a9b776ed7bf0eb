package messaging

import (
	"log/slog"
	"sync"

	"github.com/skydoves/firebase-android-ktx/lifecycle"
)

// Option configures Service.
type Option func(*Service)

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithName sets the component name used in log output.
func WithName(name string) Option {
	return func(s *Service) {
		s.name = name
	}
}

// Service is a push messaging service whose lifecycle follows the hooks its
// host calls: Create, Start, Rebind and Destroy. Each hook notifies the
// lifecycle dispatcher before doing anything else.
type Service struct {
	name       string
	logger     *slog.Logger
	dispatcher *lifecycle.Dispatcher

	mu    sync.Mutex
	token string

	onNewToken        func(token string)
	onMessageReceived func(RemoteMessage)
	onDeletedMessages func()
}

// NewService creates a Service in the Initialized state.
func NewService(opts ...Option) *Service {
	s := &Service{
		name:   "messaging",
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.dispatcher = lifecycle.NewDispatcher(lifecycle.WithLogger(s.logger))
	return s
}

// Lifecycle returns the service's lifecycle.
func (s *Service) Lifecycle() *lifecycle.Registry { return s.dispatcher.Lifecycle() }

// Token returns the last push token delivered to the service.
func (s *Service) Token() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}

// OnNewToken registers a callback for push token refreshes.
// Must be called before the service is created.
func (s *Service) OnNewToken(fn func(token string)) { s.onNewToken = fn }

// OnMessageReceived registers a callback for incoming messages.
// Must be called before the service is created.
func (s *Service) OnMessageReceived(fn func(RemoteMessage)) { s.onMessageReceived = fn }

// OnDeletedMessages registers a callback invoked when the push backend
// dropped pending messages. Must be called before the service is created.
func (s *Service) OnDeletedMessages(fn func()) { s.onDeletedMessages = fn }

// Host hooks

// Create is called by the host when the service is created.
func (s *Service) Create() {
	s.dispatcher.NotifyCreate()
	s.logger.Debug("Service created", "service", s.name)
}

// Start is called by the host each time the service is started.
func (s *Service) Start() {
	s.dispatcher.NotifyStart()
	s.logger.Debug("Service started", "service", s.name)
}

// Rebind is called by the host when a client binds to the service again.
func (s *Service) Rebind() {
	s.dispatcher.NotifyBind()
	s.logger.Debug("Service rebound", "service", s.name)
}

// Destroy is called by the host when the service is torn down. Work launched
// in the lifecycle is cancelled.
func (s *Service) Destroy() {
	s.dispatcher.NotifyDestroy()
	s.logger.Debug("Service destroyed", "service", s.name)
}

// Push events

// NewToken delivers a refreshed push token.
func (s *Service) NewToken(token string) {
	if s.destroyed("NewToken") {
		return
	}
	s.mu.Lock()
	s.token = token
	s.mu.Unlock()
	s.logger.Debug("Push token refreshed", "service", s.name, "token_prefix", truncate(token, 20))
	if s.onNewToken != nil {
		s.onNewToken(token)
	}
}

// MessageReceived delivers an incoming message.
func (s *Service) MessageReceived(msg RemoteMessage) {
	if s.destroyed("MessageReceived") {
		return
	}
	s.logger.Debug("Push message received", "service", s.name, "messageId", msg.MessageID, "from", msg.From)
	if s.onMessageReceived != nil {
		s.onMessageReceived(msg)
	}
}

// DeletedMessages reports that the backend dropped pending messages.
func (s *Service) DeletedMessages() {
	if s.destroyed("DeletedMessages") {
		return
	}
	if s.onDeletedMessages != nil {
		s.onDeletedMessages()
	}
}

func (s *Service) destroyed(event string) bool {
	if s.dispatcher.CurrentState() != lifecycle.Destroyed {
		return false
	}
	s.logger.Debug("Dropping push event after destroy", "service", s.name, "event", event)
	return true
}

// truncate returns the first maxLen characters of s, or s itself if shorter.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen]
}
