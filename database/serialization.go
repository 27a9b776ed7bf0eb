package database

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
	"gopkg.in/yaml.v3"
)

// Decoder turns the JSON rendering of a snapshot value into T.
type Decoder[T any] func(data string) (T, error)

// DecodeError reports a snapshot value that could not be encoded or decoded.
// It terminates the subscription that produced it.
type DecodeError struct {
	Key string
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decoding snapshot %q: %v", e.Key, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// JSONDecoder decodes with encoding/json. Unknown keys are ignored.
func JSONDecoder[T any]() Decoder[T] {
	return func(data string) (T, error) {
		var v T
		err := json.Unmarshal([]byte(data), &v)
		return v, err
	}
}

// StrictJSONDecoder decodes with encoding/json and rejects unknown keys.
func StrictJSONDecoder[T any]() Decoder[T] {
	return func(data string) (T, error) {
		var v T
		dec := json.NewDecoder(strings.NewReader(data))
		dec.DisallowUnknownFields()
		err := dec.Decode(&v)
		return v, err
	}
}

// LenientJSONDecoder accepts relaxed JSON such as unquoted keys, single
// quoted strings and comments. The parsed document is mapped onto T through
// its json tags. Unknown keys are ignored.
func LenientJSONDecoder[T any]() Decoder[T] {
	return func(data string) (T, error) {
		var v T
		var doc any
		if err := yaml.Unmarshal([]byte(data), &doc); err != nil {
			return v, err
		}
		normalized, err := json.Marshal(doc)
		if err != nil {
			return v, err
		}
		err = json.Unmarshal(normalized, &v)
		return v, err
	}
}

// ProtoJSONDecoder decodes into a fresh message from newMessage using the
// protobuf JSON mapping. Unknown fields are discarded.
func ProtoJSONDecoder[M proto.Message](newMessage func() M) Decoder[M] {
	opts := protojson.UnmarshalOptions{DiscardUnknown: true}
	return func(data string) (M, error) {
		m := newMessage()
		err := opts.Unmarshal([]byte(data), m)
		return m, err
	}
}

// decodeSnapshot applies decode to the JSON rendering of s.
// Values that are not maps decode to nil without calling decode.
func decodeSnapshot[T any](s Snapshot, decode Decoder[T]) (*T, error) {
	if s == nil {
		return nil, nil
	}
	m, ok := s.Value().(map[string]any)
	if !ok {
		return nil, nil
	}
	data, err := EncodeValue(m)
	if err != nil {
		return nil, &DecodeError{Key: s.Key(), Err: err}
	}
	v, err := decode(data)
	if err != nil {
		return nil, &DecodeError{Key: s.Key(), Err: err}
	}
	return &v, nil
}

// EncodeValue renders a map value as compact JSON with sorted keys.
// HTML characters are not escaped and escaped forward slashes are written
// as plain '/'.
func EncodeValue(m map[string]any) (string, error) {
	if m == nil {
		return "", errors.New("nil map")
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(m); err != nil {
		return "", err
	}
	return unescapeSlashes(strings.TrimSuffix(buf.String(), "\n")), nil
}

// unescapeSlashes rewrites every `\/` escape sequence to '/'. A backslash
// that is itself escaped (`\\`) is left alone.
func unescapeSlashes(s string) string {
	if !strings.Contains(s, `\/`) {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if s[i] != '\\' || i+1 >= len(s) {
			b.WriteByte(s[i])
			continue
		}
		if s[i+1] == '/' {
			b.WriteByte('/')
		} else {
			b.WriteByte(s[i])
			b.WriteByte(s[i+1])
		}
		i++
	}
	return b.String()
}
