package database

import (
	"strings"
	"sync"
)

// fakeSnapshot navigates plain map values.
type fakeSnapshot struct {
	key   string
	value any
}

func (s fakeSnapshot) Key() string  { return s.key }
func (s fakeSnapshot) Value() any   { return s.value }
func (s fakeSnapshot) Exists() bool { return s.value != nil }

func (s fakeSnapshot) Child(path string) Snapshot {
	cur := s.value
	key := s.key
	for _, seg := range strings.Split(strings.Trim(path, "/"), "/") {
		key = seg
		m, ok := cur.(map[string]any)
		if !ok {
			cur = nil
			continue
		}
		cur = m[seg]
	}
	return fakeSnapshot{key: key, value: cur}
}

// fakeRef records registrations and lets tests fire callbacks synchronously.
type fakeRef struct {
	mu       sync.Mutex
	values   []ValueListener
	singles  []ValueListener
	children []ChildListener
	added    int
	removed  []Listener
}

func (r *fakeRef) AddValueListener(l ValueListener) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.added++
	r.values = append(r.values, l)
}

func (r *fakeRef) AddSingleValueListener(l ValueListener) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.added++
	r.singles = append(r.singles, l)
}

func (r *fakeRef) AddChildListener(l ChildListener) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.added++
	r.children = append(r.children, l)
}

func (r *fakeRef) RemoveListener(l Listener) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removed = append(r.removed, l)
	r.values = without(r.values, l)
	r.singles = without(r.singles, l)
	r.children = without(r.children, l)
}

func without[L Listener](ls []L, target Listener) []L {
	out := ls[:0]
	for _, l := range ls {
		if Listener(l) != target {
			out = append(out, l)
		}
	}
	return out
}

func (r *fakeRef) removedCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.removed)
}

func (r *fakeRef) addedCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.added
}

// valueListeners returns the persistent listeners plus the single-shot ones,
// dropping the latter as the store would after one delivery.
func (r *fakeRef) valueListeners() []ValueListener {
	r.mu.Lock()
	defer r.mu.Unlock()
	ls := append([]ValueListener{}, r.values...)
	ls = append(ls, r.singles...)
	r.singles = nil
	return ls
}

func (r *fakeRef) childListeners() []ChildListener {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]ChildListener{}, r.children...)
}

func (r *fakeRef) fireData(value any) {
	for _, l := range r.valueListeners() {
		l.OnDataChange(fakeSnapshot{key: "root", value: value})
	}
}

func (r *fakeRef) fireCancel(err *DatabaseError) {
	for _, l := range r.valueListeners() {
		l.OnCancelled(err)
	}
	for _, l := range r.childListeners() {
		l.OnCancelled(err)
	}
}
