package shape

import (
	"encoding/json"
	"fmt"
)

// MarshalJSON encodes a slice of shapes through their generic field form,
// so the JSON matches the wire schema exactly.
func MarshalJSON(shapes []Shape) ([]byte, error) {
	out := make([]map[string]any, 0, len(shapes))
	for _, s := range shapes {
		out = append(out, s.Fields())
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes a JSON array of shape field maps.
func UnmarshalJSON(raw []byte) ([]Shape, error) {
	var maps []map[string]any
	if err := json.Unmarshal(raw, &maps); err != nil {
		return nil, fmt.Errorf("failed to decode shape list: %w", err)
	}
	out := make([]Shape, 0, len(maps))
	for i, m := range maps {
		s, err := FromFields(m)
		if err != nil {
			return nil, fmt.Errorf("failed to decode shape %d: %w", i, err)
		}
		out = append(out, s)
	}
	return out, nil
}
