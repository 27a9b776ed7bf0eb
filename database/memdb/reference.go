package memdb

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/skydoves/firebase-android-ktx/database"
)

// Reference is a location in a DB.
type Reference struct {
	db   *DB
	path string
}

var _ database.Reference = (*Reference)(nil)

// Key returns the last path segment, or "" for the root.
func (r *Reference) Key() string { return keyOf(r.path) }

// Path returns the slash separated location without leading slash.
func (r *Reference) Path() string { return r.path }

// Child returns a reference to path below r.
func (r *Reference) Child(path string) *Reference {
	return &Reference{db: r.db, path: joinPath(r.path, path)}
}

// Get returns the current value at r.
func (r *Reference) Get() database.Snapshot {
	return snapshot{key: r.Key(), value: r.db.get(r.path)}
}

// Set replaces the value at r. A nil value removes it. Values are stored as
// their JSON representation.
func (r *Reference) Set(value any) error {
	v, err := normalize(value)
	if err != nil {
		return fmt.Errorf("set /%s: %w", r.path, err)
	}
	segs := segments(r.path)
	r.db.write(r.path, func(root any) any {
		return setAt(root, segs, v)
	})
	return nil
}

// Update sets several children of r in one write. Keys may be paths.
func (r *Reference) Update(values map[string]any) error {
	type entry struct {
		segs  []string
		value any
	}
	entries := make([]entry, 0, len(values))
	for k, value := range values {
		v, err := normalize(value)
		if err != nil {
			return fmt.Errorf("update /%s: %w", joinPath(r.path, k), err)
		}
		entries = append(entries, entry{segs: segments(joinPath(r.path, k)), value: v})
	}
	r.db.write(r.path, func(root any) any {
		for _, e := range entries {
			root = setAt(root, e.segs, e.value)
		}
		return root
	})
	return nil
}

// Remove deletes the value at r.
func (r *Reference) Remove() error {
	return r.Set(nil)
}

// Push stores value under a new child with a time-ordered unique key and
// returns its reference.
func (r *Reference) Push(value any) (*Reference, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generating push key: %w", err)
	}
	child := r.Child(id.String())
	if err := child.Set(value); err != nil {
		return nil, err
	}
	return child, nil
}

// AddValueListener implements database.Reference.
func (r *Reference) AddValueListener(l database.ValueListener) {
	r.db.addListener(&registration{path: r.path, kind: kindValue, value: l})
}

// AddSingleValueListener implements database.Reference.
func (r *Reference) AddSingleValueListener(l database.ValueListener) {
	r.db.addListener(&registration{path: r.path, kind: kindSingle, value: l})
}

// AddChildListener implements database.Reference.
func (r *Reference) AddChildListener(l database.ChildListener) {
	r.db.addListener(&registration{path: r.path, kind: kindChild, child: l})
}

// RemoveListener implements database.Reference.
func (r *Reference) RemoveListener(l database.Listener) {
	r.db.removeListener(l)
}
