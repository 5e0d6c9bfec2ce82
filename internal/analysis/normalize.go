package analysis

import (
	"bytes"
	"encoding/json"
)

// Normalize unwraps the backend's inconsistently nested result payloads.
// Concept analyses in particular arrive as {"analysis": {...}} or
// {"analysis": {"analysis": {...}}}; this runs once when data enters the
// artifact cache so internal code never re-checks nesting. The second
// return is false when the payload normalizes to absent (null or empty).
func Normalize(raw json.RawMessage) (json.RawMessage, bool) {
	current := bytes.TrimSpace(raw)

	for range [2]struct{}{} {
		var envelope map[string]json.RawMessage
		if err := json.Unmarshal(current, &envelope); err != nil {
			break
		}
		inner, ok := envelope["analysis"]
		if !ok {
			break
		}
		trimmed := bytes.TrimSpace(inner)
		// A null envelope value means the analysis is absent.
		if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
			current = trimmed
			break
		}
		if trimmed[0] != '{' {
			break
		}
		current = trimmed
	}

	if isAbsent(current) {
		return nil, false
	}
	return current, true
}

func isAbsent(data []byte) bool {
	switch {
	case len(data) == 0:
		return true
	case bytes.Equal(data, []byte("null")):
		return true
	case bytes.Equal(data, []byte("{}")):
		return true
	case bytes.Equal(data, []byte(`""`)):
		return true
	}
	return false
}
