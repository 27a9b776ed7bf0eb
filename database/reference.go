package database

import (
	"fmt"
)

// Snapshot is a point-in-time view of a node and its descendants.
//
// Value returns nil, a scalar (bool, number, string), a []any or a
// map[string]any. Child never returns nil; a missing node is a Snapshot whose
// Exists reports false.
type Snapshot interface {
	Key() string
	Value() any
	Child(path string) Snapshot
	Exists() bool
}

// Listener is the common part of every listener attached to a Reference.
// Implementations must be comparable; RemoveListener matches by identity.
type Listener interface {
	// OnCancelled is called when the store revokes the listener, for example
	// after a permission change. No further callbacks follow.
	OnCancelled(err *DatabaseError)
}

// ValueListener receives whole-value notifications for a location.
type ValueListener interface {
	Listener
	OnDataChange(snapshot Snapshot)
}

// ChildListener receives child-level notifications for a location.
// previousChildName is nil for the first child in the location's ordering.
type ChildListener interface {
	Listener
	OnChildAdded(snapshot Snapshot, previousChildName *string)
	OnChildChanged(snapshot Snapshot, previousChildName *string)
	OnChildRemoved(snapshot Snapshot)
	OnChildMoved(snapshot Snapshot, previousChildName *string)
}

// Reference is a location in the external store that listeners attach to.
type Reference interface {
	// AddValueListener registers l for every change at this location.
	AddValueListener(l ValueListener)
	// AddSingleValueListener registers l for exactly one notification, after
	// which the store drops it.
	AddSingleValueListener(l ValueListener)
	// AddChildListener registers l for child events at this location.
	AddChildListener(l ChildListener)
	// RemoveListener detaches l. Removing an unknown listener is a no-op.
	RemoveListener(l Listener)
}

// Error codes reported by the store, matching the realtime database client.
const (
	CodeDataStale         = -1
	CodeOperationFailed   = -2
	CodePermissionDenied  = -3
	CodeDisconnected      = -4
	CodeExpiredToken      = -6
	CodeInvalidToken      = -7
	CodeMaxRetries        = -8
	CodeOverriddenBySet   = -9
	CodeUnavailable       = -10
	CodeUserCodeException = -11
	CodeNetworkError      = -24
	CodeWriteCanceled     = -25
	CodeUnknownError      = -999
)

// Sentinels for errors.Is against a *DatabaseError. Only Code is compared.
var (
	ErrPermissionDenied = &DatabaseError{Code: CodePermissionDenied, Message: "Permission denied"}
	ErrDisconnected     = &DatabaseError{Code: CodeDisconnected, Message: "The operation had to be aborted due to a network disconnect"}
	ErrExpiredToken     = &DatabaseError{Code: CodeExpiredToken, Message: "The supplied auth token has expired"}
	ErrUnavailable      = &DatabaseError{Code: CodeUnavailable, Message: "The service is unavailable"}
)

// DatabaseError is a listener failure reported by the store.
type DatabaseError struct {
	Code    int
	Message string
	Details string
}

func (e *DatabaseError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("database error %d: %s (%s)", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("database error %d: %s", e.Code, e.Message)
}

// Is reports whether target is a *DatabaseError with the same code.
func (e *DatabaseError) Is(target error) bool {
	t, ok := target.(*DatabaseError)
	return ok && t.Code == e.Code
}

// ToError converts the store error into the error delivered on value streams.
// The result unwraps to e.
func (e *DatabaseError) ToError() error {
	return fmt.Errorf("listener cancelled: %w", e)
}

// PathFunc selects the node a stream decodes from each delivered snapshot.
type PathFunc func(Snapshot) Snapshot

// Root decodes the delivered snapshot itself.
func Root(s Snapshot) Snapshot { return s }

// ChildPath decodes the child of the delivered snapshot at path.
func ChildPath(path string) PathFunc {
	return func(s Snapshot) Snapshot {
		return s.Child(path)
	}
}
