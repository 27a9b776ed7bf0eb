package memdb

import (
	"context"
	"log/slog"
	"reflect"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/skydoves/firebase-android-ktx/database"
)

// Rule decides whether a path may be read. Listeners on denied paths are
// cancelled with a permission error.
type Rule func(path string) bool

// Deny returns a Rule that refuses reads at each of paths and below them.
func Deny(paths ...string) Rule {
	denied := make([][]string, len(paths))
	for i, p := range paths {
		denied[i] = segments(p)
	}
	return func(path string) bool {
		segs := segments(path)
		for _, d := range denied {
			if len(d) <= len(segs) && slices.Equal(d, segs[:len(d)]) {
				return false
			}
		}
		return true
	}
}

// Option configures DB.
type Option func(*DB)

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(db *DB) {
		db.logger = logger
	}
}

// WithReadRule sets the initial read rule. By default every path is readable.
func WithReadRule(rule Rule) Option {
	return func(db *DB) {
		db.rule = rule
	}
}

type listenerKind int

const (
	kindValue listenerKind = iota
	kindSingle
	kindChild
)

func (k listenerKind) String() string {
	switch k {
	case kindValue:
		return "value"
	case kindSingle:
		return "single-value"
	case kindChild:
		return "child"
	default:
		return "unknown"
	}
}

type registration struct {
	path   string
	kind   listenerKind
	value  database.ValueListener
	child  database.ChildListener
	active atomic.Bool
}

func (r *registration) listener() database.Listener {
	if r.kind == kindChild {
		return r.child
	}
	return r.value
}

// DB is an in-memory realtime store.
type DB struct {
	logger *slog.Logger
	queue  *deliveryQueue

	mu   sync.Mutex
	root any
	rule Rule
	regs []*registration
}

// New creates a DB and starts its delivery goroutine.
func New(opts ...Option) *DB {
	db := &DB{
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(db)
	}
	db.queue = newDeliveryQueue()
	go db.queue.run()
	return db
}

// Close stops listener delivery. Pending notifications are discarded.
func (db *DB) Close() {
	db.queue.close()
}

// Flush blocks until every notification queued so far has been delivered.
func (db *DB) Flush(ctx context.Context) error {
	done := make(chan struct{})
	db.queue.push(func() { close(done) })
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Reference returns a reference to path. An empty path is the root.
func (db *DB) Reference(path string) *Reference {
	return &Reference{db: db, path: joinPath(path)}
}

// SetReadRule replaces the read rule. Listeners whose path is no longer
// readable are cancelled and dropped.
func (db *DB) SetReadRule(rule Rule) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.rule = rule

	kept := db.regs[:0]
	for _, reg := range db.regs {
		if db.readable(reg.path) {
			kept = append(kept, reg)
			continue
		}
		reg.active.Store(false)
		db.logger.Debug("Listener revoked", "path", reg.path, "kind", reg.kind)
		db.cancel(reg.listener(), reg.path)
	}
	clear(db.regs[len(kept):])
	db.regs = kept
}

func (db *DB) readable(path string) bool {
	return db.rule == nil || db.rule(path)
}

// cancel queues a permission failure for l. Callers hold db.mu.
func (db *DB) cancel(l database.Listener, path string) {
	err := &database.DatabaseError{
		Code:    database.CodePermissionDenied,
		Message: database.ErrPermissionDenied.Message,
		Details: "read denied at /" + path,
	}
	db.queue.push(func() { l.OnCancelled(err) })
}

func (db *DB) addListener(reg *registration) {
	db.mu.Lock()
	defer db.mu.Unlock()

	if !db.readable(reg.path) {
		db.logger.Debug("Listener denied", "path", reg.path, "kind", reg.kind)
		db.cancel(reg.listener(), reg.path)
		return
	}

	reg.active.Store(true)
	db.regs = append(db.regs, reg)
	db.logger.Debug("Listener added", "path", reg.path, "kind", reg.kind)

	current := getAt(db.root, segments(reg.path))
	switch reg.kind {
	case kindValue, kindSingle:
		db.queueValue(reg, current)
	case kindChild:
		db.queueChildren(reg, nil, current)
	}
}

func (db *DB) removeListener(l database.Listener) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.dropWhere(func(reg *registration) bool { return reg.listener() == l })
}

// dropWhere deactivates and removes matching registrations. Callers hold db.mu.
func (db *DB) dropWhere(match func(*registration) bool) {
	kept := db.regs[:0]
	for _, reg := range db.regs {
		if match(reg) {
			reg.active.Store(false)
			db.logger.Debug("Listener removed", "path", reg.path, "kind", reg.kind)
			continue
		}
		kept = append(kept, reg)
	}
	clear(db.regs[len(kept):])
	db.regs = kept
}

func (db *DB) get(path string) any {
	db.mu.Lock()
	defer db.mu.Unlock()
	return getAt(db.root, segments(path))
}

// write applies update to the tree and queues the notifications it causes.
func (db *DB) write(path string, update func(root any) any) {
	db.mu.Lock()
	defer db.mu.Unlock()

	old := db.root
	db.root = update(old)
	db.logger.Debug("Write", "path", path)

	for _, reg := range db.regs {
		// Single-shot listeners only ever see the value current at registration.
		if reg.kind == kindSingle || !related(reg.path, path) {
			continue
		}
		segs := segments(reg.path)
		before, after := getAt(old, segs), getAt(db.root, segs)
		if reflect.DeepEqual(before, after) {
			continue
		}
		if reg.kind == kindChild {
			db.queueChildren(reg, before, after)
		} else {
			db.queueValue(reg, after)
		}
	}
}

// queueValue queues a value notification. Single-shot registrations are
// dropped when delivered. Callers hold db.mu.
func (db *DB) queueValue(reg *registration, value any) {
	snap := snapshot{key: keyOf(reg.path), value: value}
	if reg.kind == kindSingle {
		db.queue.push(func() {
			if !reg.active.CompareAndSwap(true, false) {
				return
			}
			db.mu.Lock()
			db.dropWhere(func(r *registration) bool { return r == reg })
			db.mu.Unlock()
			reg.value.OnDataChange(snap)
		})
		return
	}
	db.queue.push(func() {
		if reg.active.Load() {
			reg.value.OnDataChange(snap)
		}
	})
}

// queueChildren queues the child events that turn before into after:
// removals first, then additions and changes in key order. Callers hold db.mu.
func (db *DB) queueChildren(reg *registration, before, after any) {
	oldM, _ := before.(map[string]any)
	newM, _ := after.(map[string]any)

	deliver := func(fn func(l database.ChildListener)) {
		db.queue.push(func() {
			if reg.active.Load() {
				fn(reg.child)
			}
		})
	}

	for _, k := range sortedKeys(before) {
		if _, ok := newM[k]; ok {
			continue
		}
		snap := snapshot{key: k, value: oldM[k]}
		deliver(func(l database.ChildListener) { l.OnChildRemoved(snap) })
	}

	var prev *string
	for _, k := range sortedKeys(after) {
		snap := snapshot{key: k, value: newM[k]}
		prevKey := prev
		old, existed := oldM[k]
		switch {
		case !existed:
			deliver(func(l database.ChildListener) { l.OnChildAdded(snap, prevKey) })
		case !reflect.DeepEqual(old, newM[k]):
			deliver(func(l database.ChildListener) { l.OnChildChanged(snap, prevKey) })
		}
		key := k
		prev = &key
	}
}

// deliveryQueue runs notifications one at a time, in order, on its own
// goroutine. Pushing never blocks.
type deliveryQueue struct {
	mu    sync.Mutex
	items []func()

	wake chan struct{}
	quit chan struct{}
	once sync.Once
}

func newDeliveryQueue() *deliveryQueue {
	return &deliveryQueue{
		wake: make(chan struct{}, 1),
		quit: make(chan struct{}),
	}
}

func (q *deliveryQueue) push(fn func()) {
	q.mu.Lock()
	q.items = append(q.items, fn)
	q.mu.Unlock()
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

func (q *deliveryQueue) run() {
	for {
		q.mu.Lock()
		items := q.items
		q.items = nil
		q.mu.Unlock()

		for _, fn := range items {
			select {
			case <-q.quit:
				return
			default:
			}
			fn()
		}
		if len(items) > 0 {
			continue
		}

		select {
		case <-q.wake:
		case <-q.quit:
			return
		}
	}
}

func (q *deliveryQueue) close() {
	q.once.Do(func() { close(q.quit) })
}
