package memdb

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/skydoves/firebase-android-ktx/database"
)

// segments splits a slash separated path, dropping empty segments.
func segments(path string) []string {
	var out []string
	for _, s := range strings.Split(path, "/") {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

func joinPath(parts ...string) string {
	var segs []string
	for _, p := range parts {
		segs = append(segs, segments(p)...)
	}
	return strings.Join(segs, "/")
}

// related reports whether one path contains the other.
func related(a, b string) bool {
	sa, sb := segments(a), segments(b)
	n := min(len(sa), len(sb))
	for i := 0; i < n; i++ {
		if sa[i] != sb[i] {
			return false
		}
	}
	return true
}

func getAt(node any, segs []string) any {
	for _, s := range segs {
		m, ok := node.(map[string]any)
		if !ok {
			return nil
		}
		node = m[s]
	}
	return node
}

// setAt returns a copy of node with value stored at segs. Maps along the path
// are copied; everything else is shared. A nil value removes the entry and
// maps left empty disappear.
func setAt(node any, segs []string, value any) any {
	if len(segs) == 0 {
		return value
	}
	m, _ := node.(map[string]any)
	cp := make(map[string]any, len(m)+1)
	for k, v := range m {
		cp[k] = v
	}
	child := setAt(cp[segs[0]], segs[1:], value)
	if child == nil {
		delete(cp, segs[0])
	} else {
		cp[segs[0]] = child
	}
	if len(cp) == 0 {
		return nil
	}
	return cp
}

// normalize converts an arbitrary Go value into the store's value model by a
// JSON round trip: maps become map[string]any, integers int64, other numbers
// float64. Null entries and empty maps are dropped.
func normalize(value any) (any, error) {
	if value == nil {
		return nil, nil
	}
	data, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("encoding value: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("decoding value: %w", err)
	}
	return prune(v), nil
}

func prune(v any) any {
	switch t := v.(type) {
	case map[string]any:
		for k, child := range t {
			if p := prune(child); p == nil {
				delete(t, k)
			} else {
				t[k] = p
			}
		}
		if len(t) == 0 {
			return nil
		}
		return t
	case []any:
		if len(t) == 0 {
			return nil
		}
		for i, child := range t {
			t[i] = prune(child)
		}
		return t
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i
		}
		f, _ := t.Float64()
		return f
	default:
		return v
	}
}

func deepCopy(v any) any {
	switch t := v.(type) {
	case map[string]any:
		cp := make(map[string]any, len(t))
		for k, child := range t {
			cp[k] = deepCopy(child)
		}
		return cp
	case []any:
		cp := make([]any, len(t))
		for i, child := range t {
			cp[i] = deepCopy(child)
		}
		return cp
	default:
		return v
	}
}

func sortedKeys(node any) []string {
	m, _ := node.(map[string]any)
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// snapshot is an immutable view of a node. The tree is copy-on-write, so the
// shared value never changes; Value hands out a copy.
type snapshot struct {
	key   string
	value any
}

var _ database.Snapshot = snapshot{}

func (s snapshot) Key() string  { return s.key }
func (s snapshot) Value() any   { return deepCopy(s.value) }
func (s snapshot) Exists() bool { return s.value != nil }

func (s snapshot) Child(path string) database.Snapshot {
	segs := segments(path)
	key := s.key
	if len(segs) > 0 {
		key = segs[len(segs)-1]
	}
	return snapshot{key: key, value: getAt(s.value, segs)}
}

func keyOf(path string) string {
	segs := segments(path)
	if len(segs) == 0 {
		return ""
	}
	return segs[len(segs)-1]
}
