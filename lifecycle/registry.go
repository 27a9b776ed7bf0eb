package lifecycle

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
)

// ErrDestroyed is the cause of a Registry context once Destroyed is reached.
var ErrDestroyed = errors.New("lifecycle destroyed")

// Observer is notified synchronously on the dispatcher's worker goroutine as
// each transition executes. Transitions queued after the worker has exited
// are ignored without notifying anyone. Observers must not call back into the
// Dispatcher that drives the Registry.
type Observer interface {
	OnStateChanged(event Event, state State)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(event Event, state State)

// OnStateChanged calls f.
func (f ObserverFunc) OnStateChanged(event Event, state State) { f(event, state) }

// LoggingObserver logs every transition at debug level.
func LoggingObserver(logger *slog.Logger, component string) Observer {
	return ObserverFunc(func(event Event, state State) {
		logger.Debug("Lifecycle event", "component", component, "event", event, "state", state)
	})
}

type observerEntry struct {
	observer Observer
}

// Registry holds the current State of one component and its observers.
// Reads are safe from any goroutine; transitions are applied by the owning
// Dispatcher only.
type Registry struct {
	logger *slog.Logger
	state  atomic.Int32

	mu        sync.Mutex
	observers []*observerEntry
	changed   chan struct{}

	// destroyed is set under mu before ctx is cancelled, so Launch never
	// adds a job once Wait may have started.
	destroyed bool

	ctx    context.Context
	cancel context.CancelCauseFunc
	jobs   sync.WaitGroup
}

func newRegistry(logger *slog.Logger) *Registry {
	ctx, cancel := context.WithCancelCause(context.Background())
	return &Registry{
		logger:  logger,
		changed: make(chan struct{}),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// CurrentState returns the state of the most recently executed transition.
func (r *Registry) CurrentState() State {
	return State(r.state.Load())
}

// AddObserver registers o and returns a function that unregisters it.
func (r *Registry) AddObserver(o Observer) (remove func()) {
	entry := &observerEntry{observer: o}
	r.mu.Lock()
	r.observers = append(r.observers, entry)
	r.mu.Unlock()
	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.observers = slices.DeleteFunc(r.observers, func(e *observerEntry) bool { return e == entry })
	}
}

// WaitForState blocks until the state is target or later, or ctx is done.
func (r *Registry) WaitForState(ctx context.Context, target State) error {
	for {
		r.mu.Lock()
		current, changed := r.CurrentState(), r.changed
		r.mu.Unlock()
		if current.AtLeast(target) {
			return nil
		}
		select {
		case <-changed:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Context returns a context that is cancelled, with cause ErrDestroyed, when
// the component is destroyed.
func (r *Registry) Context() context.Context { return r.ctx }

// Launch runs fn in a new goroutine bound to Context. It reports false, and
// does not run fn, if the component is already destroyed. Errors other than
// the cancellation itself are logged.
func (r *Registry) Launch(fn func(ctx context.Context) error) bool {
	r.mu.Lock()
	if r.destroyed {
		r.mu.Unlock()
		return false
	}
	r.jobs.Add(1)
	r.mu.Unlock()

	go func() {
		defer r.jobs.Done()
		if err := fn(r.ctx); err != nil && !errors.Is(err, context.Canceled) {
			r.logger.Warn("Lifecycle job failed", "error", err)
		}
	}()
	return true
}

// Wait blocks until every goroutine started by Launch has returned.
func (r *Registry) Wait() { r.jobs.Wait() }

// handle applies event. Events that would not advance the state are ignored.
func (r *Registry) handle(event Event) {
	target := event.Target()
	current := r.CurrentState()
	if target <= current {
		if target < current {
			r.logger.Debug("Ignoring lifecycle event", "event", event, "state", current)
		}
		return
	}

	r.mu.Lock()
	r.state.Store(int32(target))
	observers := slices.Clone(r.observers)
	close(r.changed)
	r.changed = make(chan struct{})
	if target == Destroyed {
		r.destroyed = true
	}
	r.mu.Unlock()

	r.logger.Debug("Lifecycle transition", "event", event, "from", current, "to", target)
	for _, e := range observers {
		e.observer.OnStateChanged(event, target)
	}
	if target == Destroyed {
		r.cancel(ErrDestroyed)
	}
}
