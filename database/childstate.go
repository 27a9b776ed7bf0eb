package database

// ChildState is one child-level notification decoded into T.
// It is implemented by ChildAdded, ChildChanged, ChildRemoved, ChildMoved and
// ChildCanceled; use a type switch to tell them apart.
type ChildState[T any] interface {
	childState(*T)
}

// ChildAdded reports a new child at the observed location.
type ChildAdded[T any] struct {
	Value             *T
	PreviousChildName *string
}

// ChildChanged reports that the data of a child changed.
type ChildChanged[T any] struct {
	Value             *T
	PreviousChildName *string
}

// ChildRemoved reports that a child was removed. Value holds the removed data.
type ChildRemoved[T any] struct {
	Value *T
}

// ChildMoved reports that a child changed position in the location's ordering.
type ChildMoved[T any] struct {
	Value             *T
	PreviousChildName *string
}

// ChildCanceled reports that the store revoked the listener, either because
// it failed at the server or because access rules no longer allow the read.
// No further child events follow it.
type ChildCanceled[T any] struct {
	Err *DatabaseError
}

func (ChildAdded[T]) childState(*T)    {}
func (ChildChanged[T]) childState(*T)  {}
func (ChildRemoved[T]) childState(*T)  {}
func (ChildMoved[T]) childState(*T)    {}
func (ChildCanceled[T]) childState(*T) {}
