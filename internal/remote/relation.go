package remote

import (
	"bytes"
	"encoding/json"
)

// One decodes an embedded relation that the rows API returns as a single
// object, a one-element array, an empty array or null, depending on how the
// foreign key is declared.
type One[T any] struct {
	Value *T
}

// UnmarshalJSON implements json.Unmarshaler.
func (o *One[T]) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	o.Value = nil

	switch {
	case len(data) == 0 || bytes.Equal(data, []byte("null")):
		return nil
	case data[0] == '[':
		var items []T
		if err := json.Unmarshal(data, &items); err != nil {
			return err
		}
		if len(items) > 0 {
			o.Value = &items[0]
		}
		return nil
	default:
		var v T
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		o.Value = &v
		return nil
	}
}

// MarshalJSON implements json.Marshaler.
func (o One[T]) MarshalJSON() ([]byte, error) {
	return json.Marshal(o.Value)
}

// Get returns the related value and whether one was present.
func (o One[T]) Get() (T, bool) {
	if o.Value == nil {
		var zero T
		return zero, false
	}
	return *o.Value, true
}
