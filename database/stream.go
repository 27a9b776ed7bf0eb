package database

import (
	"context"
	"iter"
	"log/slog"
	"sync"
)

// DefaultBuffer is the events channel capacity of a subscription.
const DefaultBuffer = 64

// Result is one value notification: a decoded value (nil for a non-map or
// missing node) or the error the store cancelled the listener with.
type Result[T any] struct {
	Value *T
	Err   error
}

// Ok reports whether the notification carried data.
func (r Result[T]) Ok() bool { return r.Err == nil }

// StreamOption configures a Stream.
type StreamOption func(*streamConfig)

type streamConfig struct {
	buffer  int
	logger  *slog.Logger
	metrics *Metrics
}

// WithBuffer sets the events channel capacity. When the buffer is full the
// store's delivery goroutine waits for the consumer.
func WithBuffer(n int) StreamOption {
	return func(c *streamConfig) {
		if n >= 0 {
			c.buffer = n
		}
	}
}

// WithLogger sets a custom logger for listener registration tracing.
func WithLogger(logger *slog.Logger) StreamOption {
	return func(c *streamConfig) {
		c.logger = logger
	}
}

// WithMetrics records subscription activity in m.
func WithMetrics(m *Metrics) StreamOption {
	return func(c *streamConfig) {
		c.metrics = m
	}
}

// registerFunc attaches a listener feeding sub and returns its removal.
type registerFunc[E any] func(sub *Subscription[E]) (remove func())

// Stream is a lazy source of store notifications. Nothing is registered with
// the store until Subscribe is called, and every subscription owns its own
// listener registration.
type Stream[E any] struct {
	kind     string
	config   streamConfig
	register registerFunc[E]
}

func newStream[E any](kind string, register registerFunc[E], opts []StreamOption) *Stream[E] {
	cfg := streamConfig{
		buffer: DefaultBuffer,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Stream[E]{kind: kind, config: cfg, register: register}
}

// Subscribe registers a listener and returns the subscription receiving its
// events. Cancelling ctx has the same effect as calling Close.
func (s *Stream[E]) Subscribe(ctx context.Context) *Subscription[E] {
	sub := &Subscription[E]{
		events:  make(chan E, s.config.buffer),
		done:    make(chan struct{}),
		kind:    s.kind,
		logger:  s.config.logger,
		metrics: s.config.metrics,
	}
	sub.metrics.subscribed(s.kind)

	remove := s.register(sub)
	sub.logger.Debug("Listener registered", "kind", s.kind)
	sub.attach(remove)

	stop := context.AfterFunc(ctx, sub.Close)
	sub.mu.Lock()
	if sub.closed {
		sub.mu.Unlock()
		stop()
		return sub
	}
	sub.stop = stop
	sub.mu.Unlock()
	return sub
}

// All subscribes and yields every event. An error is yielded once, last, when
// the subscription terminates with one. Leaving the loop early closes the
// subscription.
func (s *Stream[E]) All(ctx context.Context) iter.Seq2[E, error] {
	return func(yield func(E, error) bool) {
		sub := s.Subscribe(ctx)
		defer sub.Close()
		for e := range sub.Events() {
			if !yield(e, nil) {
				return
			}
		}
		if err := sub.Err(); err != nil {
			var zero E
			yield(zero, err)
		}
	}
}

// Subscription is one active listener registration.
type Subscription[E any] struct {
	events  chan E
	done    chan struct{}
	kind    string
	logger  *slog.Logger
	metrics *Metrics
	once    sync.Once

	// mu guards sends on events and closing it.
	mu     sync.Mutex
	closed bool
	stop   func() bool

	errMu sync.Mutex
	err   error

	// regMu guards the registration handoff between Subscribe and end.
	regMu   sync.Mutex
	remove  func()
	ended   bool
	removed bool
}

// Events returns the channel of notifications. It is closed when the
// subscription ends; events buffered before that remain readable.
func (s *Subscription[E]) Events() <-chan E { return s.events }

// Done is closed as soon as the subscription starts ending.
func (s *Subscription[E]) Done() <-chan struct{} { return s.done }

// Err returns the error that terminated the subscription, or nil if it was
// closed, cancelled or completed normally.
func (s *Subscription[E]) Err() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.err
}

// Close removes the listener from the store and closes Events. When Close
// returns the registration is gone and no further events are delivered.
// Close is idempotent.
func (s *Subscription[E]) Close() {
	s.end(nil)
}

// emit delivers e to the consumer, waiting while the buffer is full.
// It reports false if the subscription ended first.
func (s *Subscription[E]) emit(e E) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.events <- e:
		s.metrics.delivered(s.kind)
		return true
	case <-s.done:
		return false
	}
}

func (s *Subscription[E]) end(err error) {
	s.once.Do(func() {
		s.errMu.Lock()
		s.err = err
		s.errMu.Unlock()

		// Unblock a pending emit before taking mu.
		close(s.done)

		s.mu.Lock()
		s.closed = true
		close(s.events)
		stop := s.stop
		s.mu.Unlock()

		if stop != nil {
			stop()
		}
		s.release()
		s.metrics.ended(s.kind, err)
		if err != nil {
			s.logger.Debug("Subscription terminated", "kind", s.kind, "error", err)
		}
	})
}

// attach hands the registration's removal to the subscription. If the
// subscription already ended while registering, the listener is removed
// right away.
func (s *Subscription[E]) attach(remove func()) {
	s.regMu.Lock()
	if s.ended {
		s.removed = true
		s.regMu.Unlock()
		remove()
		s.logger.Debug("Listener removed", "kind", s.kind)
		return
	}
	s.remove = remove
	s.regMu.Unlock()
}

func (s *Subscription[E]) release() {
	s.regMu.Lock()
	defer s.regMu.Unlock()
	s.ended = true
	if s.remove == nil || s.removed {
		return
	}
	s.removed = true
	s.remove()
	s.logger.Debug("Listener removed", "kind", s.kind)
}
