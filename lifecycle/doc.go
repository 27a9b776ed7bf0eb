// Package lifecycle turns the discrete lifecycle callbacks of a long-running
// component into an observable, monotonically advancing state machine.
//
// A Dispatcher is owned by exactly one component. The component calls the
// Notify methods first thing in its own create, start, bind and destroy hooks;
// the dispatcher applies the matching transitions in order, exactly once each,
// and observers read the result through the Registry returned by Lifecycle:
//
//	d := lifecycle.NewDispatcher()
//	d.Lifecycle().AddObserver(lifecycle.ObserverFunc(func(e lifecycle.Event, s lifecycle.State) {
//		slog.Debug("lifecycle", "event", e, "state", s)
//	}))
//	d.NotifyCreate()
//	d.NotifyStart()
//	...
//	d.NotifyDestroy()
package lifecycle
