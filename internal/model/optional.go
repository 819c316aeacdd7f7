package model

import "encoding/json"

// Optional distinguishes a field that was left out of a request from one that
// was sent, including one explicitly sent as null.
//
//	{"country": "us"}  → Optional{Set: true, Value: ptr("us")}
//	{"country": null}  → Optional{Set: true, Value: nil}
//	{}                 → Optional{Set: false}
//
// Profile updates only touch fields whose Optional is Set.
type Optional[T any] struct {
	Set   bool
	Value T
}

// Some returns a set Optional holding v.
func Some[T any](v T) Optional[T] {
	return Optional[T]{Set: true, Value: v}
}

// UnmarshalJSON is only called when the key is present, which is what marks
// the field as set.
func (o *Optional[T]) UnmarshalJSON(data []byte) error {
	o.Set = true
	return json.Unmarshal(data, &o.Value)
}

// MarshalJSON writes the value, or null when unset.
func (o Optional[T]) MarshalJSON() ([]byte, error) {
	if !o.Set {
		return []byte("null"), nil
	}
	return json.Marshal(o.Value)
}

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T { return &v }
