package lifecycle

import (
	"log/slog"
	"sync"
)

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLogger sets a custom logger for the dispatcher and its Registry.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Dispatcher) {
		d.logger = logger
	}
}

// dispatchCommand is one queued transition. executed is guarded by the
// dispatcher's execMu; ran is closed once the transition has executed.
type dispatchCommand struct {
	event    Event
	executed bool
	ran      chan struct{}
}

// Dispatcher applies lifecycle transitions for one component.
//
// At most one transition is pending at a time. Queuing a new one first hands
// the pending transition to the worker and waits for it to execute, so
// transitions apply in the order they were queued and never pile up. All
// transitions run on the worker goroutine until it exits; a transition that
// already ran is not run again.
type Dispatcher struct {
	logger   *slog.Logger
	registry *Registry

	// postMu serialises posters; mu guards pending.
	postMu  sync.Mutex
	mu      sync.Mutex
	pending *dispatchCommand

	execMu sync.Mutex
	wake   chan struct{}
	force  chan *dispatchCommand
	done   chan struct{}
}

// NewDispatcher creates a Dispatcher and starts its worker. The worker exits
// once the component is destroyed.
func NewDispatcher(opts ...Option) *Dispatcher {
	d := &Dispatcher{
		logger: slog.Default(),
		wake:   make(chan struct{}, 1),
		force:  make(chan *dispatchCommand),
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.registry = newRegistry(d.logger)
	go d.loop()
	return d
}

// Lifecycle returns the Registry reflecting executed transitions.
func (d *Dispatcher) Lifecycle() *Registry { return d.registry }

// CurrentState is shorthand for Lifecycle().CurrentState().
func (d *Dispatcher) CurrentState() State { return d.registry.CurrentState() }

// Done is closed when the worker has exited after Destroyed.
func (d *Dispatcher) Done() <-chan struct{} { return d.done }

// NotifyCreate must be the first call of the component's create hook.
func (d *Dispatcher) NotifyCreate() {
	d.post(EventCreate)
}

// NotifyBind must be the first call of the component's bind hook.
func (d *Dispatcher) NotifyBind() {
	d.post(EventStart)
}

// NotifyStart must be the first call of the component's start hook.
func (d *Dispatcher) NotifyStart() {
	d.post(EventStart)
}

// NotifyDestroy must be the first call of the component's destroy hook.
// It queues a stop followed by a destroy.
func (d *Dispatcher) NotifyDestroy() {
	d.post(EventStop)
	d.post(EventDestroy)
}

func (d *Dispatcher) post(event Event) {
	d.postMu.Lock()
	defer d.postMu.Unlock()

	d.mu.Lock()
	prev := d.pending
	d.mu.Unlock()
	if prev != nil {
		d.flush(prev)
	}

	d.mu.Lock()
	d.pending = &dispatchCommand{event: event, ran: make(chan struct{})}
	d.mu.Unlock()

	select {
	case d.wake <- struct{}{}:
	default:
	}
}

// flush makes the worker execute cmd and waits for it. Once the worker has
// exited, cmd runs on the calling goroutine.
func (d *Dispatcher) flush(cmd *dispatchCommand) {
	select {
	case d.force <- cmd:
	case <-cmd.ran:
		return
	case <-d.done:
		d.run(cmd)
		return
	}
	<-cmd.ran
}

func (d *Dispatcher) run(cmd *dispatchCommand) {
	d.execMu.Lock()
	defer d.execMu.Unlock()
	if cmd.executed {
		return
	}
	cmd.executed = true
	d.registry.handle(cmd.event)
	close(cmd.ran)
}

func (d *Dispatcher) loop() {
	defer close(d.done)
	for {
		var cmd *dispatchCommand
		select {
		case cmd = <-d.force:
		case <-d.wake:
			d.mu.Lock()
			cmd = d.pending
			d.mu.Unlock()
		}

		if cmd != nil {
			d.run(cmd)
		}
		if d.registry.CurrentState() == Destroyed {
			d.logger.Debug("Lifecycle dispatcher stopped")
			return
		}
	}
}
