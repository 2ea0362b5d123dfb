package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Field is an optional value that remembers whether it was supplied at all.
//
//	absent:        Set == false
//	explicit null: Set == true,  Null == true
//	value:         Set == true,  Null == false
//
// Partial updates write only fields with Set == true.
type Field[T any] struct {
	Value T
	Set   bool
	Null  bool
}

// Some returns a present, non-null field.
func Some[T any](v T) Field[T] {
	return Field[T]{Value: v, Set: true}
}

// Nil returns a present field holding an explicit null.
func Nil[T any]() Field[T] {
	return Field[T]{Set: true, Null: true}
}

// Has reports whether the field carries a non-null value.
func (f Field[T]) Has() bool {
	return f.Set && !f.Null
}

// Ptr returns a pointer to the value, or nil when absent or null.
func (f Field[T]) Ptr() *T {
	if !f.Has() {
		return nil
	}
	v := f.Value
	return &v
}

// UnmarshalJSON is only invoked when the key is present in the payload.
func (f *Field[T]) UnmarshalJSON(b []byte) error {
	f.Set = true
	if bytes.Equal(bytes.TrimSpace(b), []byte("null")) {
		f.Null = true
		var zero T
		f.Value = zero
		return nil
	}
	f.Null = false
	if tp, ok := any(&f.Value).(*time.Time); ok {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return fmt.Errorf("timestamp must be a string: %w", err)
		}
		t, err := ParseTimestamp(s)
		if err != nil {
			return err
		}
		*tp = t
		return nil
	}
	return json.Unmarshal(b, &f.Value)
}

// MarshalJSON renders absent and null fields as null.
func (f Field[T]) MarshalJSON() ([]byte, error) {
	if !f.Has() {
		return []byte("null"), nil
	}
	return json.Marshal(f.Value)
}

// DBTimeLayout is the layout timestamps are bound with.
const DBTimeLayout = "2006-01-02 15:04:05"

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	DBTimeLayout,
	"2006-01-02 15:04",
	"2006-01-02",
}

// ParseTimestamp accepts RFC 3339 and the common SQL layouts. Values without
// a zone are taken as UTC. The result is always UTC.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid timestamp %q", s)
}

// FormatDBTime renders t in UTC using DBTimeLayout.
func FormatDBTime(t time.Time) string {
	return t.UTC().Format(DBTimeLayout)
}
