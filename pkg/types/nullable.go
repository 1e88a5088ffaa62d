package types

import (
	"bytes"
	"encoding/json"
)

// NullableString tracks whether a string field was present in JSON and,
// if present, whether it was an explicit null.
type NullableString struct {
	Set   bool
	Value *string
}

// UnmarshalJSON implements json.Unmarshaler.
func (n *NullableString) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil
	}

	n.Set = true
	if bytes.Equal(trimmed, []byte("null")) {
		n.Value = nil
		return nil
	}

	var parsed string
	if err := json.Unmarshal(trimmed, &parsed); err != nil {
		return err
	}
	n.Value = &parsed
	return nil
}

// IsNull reports an explicit JSON null.
func (n NullableString) IsNull() bool {
	return n.Set && n.Value == nil
}
