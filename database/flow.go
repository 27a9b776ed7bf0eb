package database

// Observe returns a stream of the value at ref, selected by path and decoded
// with decode, for every change. A store cancellation is delivered as a
// Result carrying the error; the stream itself stays open.
//
// A decode error terminates the subscription: Events is closed and Err
// returns the *DecodeError.
func Observe[T any](ref Reference, path PathFunc, decode Decoder[T], opts ...StreamOption) *Stream[Result[T]] {
	return newStream[Result[T]]("value", func(sub *Subscription[Result[T]]) func() {
		l := &valueListener[T]{sub: sub, path: path, decode: decode}
		ref.AddValueListener(l)
		return func() { ref.RemoveListener(l) }
	}, opts)
}

// ObserveOnce is like Observe but delivers a single notification, value or
// error, after which the subscription completes normally.
func ObserveOnce[T any](ref Reference, path PathFunc, decode Decoder[T], opts ...StreamOption) *Stream[Result[T]] {
	return newStream[Result[T]]("single-value", func(sub *Subscription[Result[T]]) func() {
		l := &valueListener[T]{sub: sub, path: path, decode: decode, single: true}
		ref.AddSingleValueListener(l)
		return func() { ref.RemoveListener(l) }
	}, opts)
}

// ObserveChildren returns a stream of child events at ref, each child
// selected by path and decoded with decode. A store cancellation is
// delivered as ChildCanceled; the store sends nothing after it.
func ObserveChildren[T any](ref Reference, path PathFunc, decode Decoder[T], opts ...StreamOption) *Stream[ChildState[T]] {
	return newStream[ChildState[T]]("child", func(sub *Subscription[ChildState[T]]) func() {
		l := &childListener[T]{sub: sub, path: path, decode: decode}
		ref.AddChildListener(l)
		return func() { ref.RemoveListener(l) }
	}, opts)
}

type valueListener[T any] struct {
	sub    *Subscription[Result[T]]
	path   PathFunc
	decode Decoder[T]
	single bool
}

func (l *valueListener[T]) OnDataChange(snapshot Snapshot) {
	v, err := decodeSnapshot(l.path(snapshot), l.decode)
	if err != nil {
		l.sub.end(err)
		return
	}
	l.sub.emit(Result[T]{Value: v})
	if l.single {
		l.sub.end(nil)
	}
}

func (l *valueListener[T]) OnCancelled(err *DatabaseError) {
	l.sub.emit(Result[T]{Err: err.ToError()})
	if l.single {
		l.sub.end(nil)
	}
}

type childListener[T any] struct {
	sub    *Subscription[ChildState[T]]
	path   PathFunc
	decode Decoder[T]
}

func (l *childListener[T]) value(snapshot Snapshot) (*T, bool) {
	v, err := decodeSnapshot(l.path(snapshot), l.decode)
	if err != nil {
		l.sub.end(err)
		return nil, false
	}
	return v, true
}

func (l *childListener[T]) OnChildAdded(snapshot Snapshot, previousChildName *string) {
	if v, ok := l.value(snapshot); ok {
		l.sub.emit(ChildAdded[T]{Value: v, PreviousChildName: previousChildName})
	}
}

func (l *childListener[T]) OnChildChanged(snapshot Snapshot, previousChildName *string) {
	if v, ok := l.value(snapshot); ok {
		l.sub.emit(ChildChanged[T]{Value: v, PreviousChildName: previousChildName})
	}
}

func (l *childListener[T]) OnChildRemoved(snapshot Snapshot) {
	if v, ok := l.value(snapshot); ok {
		l.sub.emit(ChildRemoved[T]{Value: v})
	}
}

func (l *childListener[T]) OnChildMoved(snapshot Snapshot, previousChildName *string) {
	if v, ok := l.value(snapshot); ok {
		l.sub.emit(ChildMoved[T]{Value: v, PreviousChildName: previousChildName})
	}
}

func (l *childListener[T]) OnCancelled(err *DatabaseError) {
	l.sub.emit(ChildCanceled[T]{Err: err})
}
