package model

import "time"

func object(v any) (map[string]any, bool) {
	m, ok := v.(map[string]any)
	return m, ok
}

// stringList accepts an array whose elements are strings or null. Anything
// else rejects the whole field.
func stringList(v any) ([]string, bool) {
	switch t := v.(type) {
	case []string:
		return append([]string(nil), t...), true
	case []any:
		out := make([]string, len(t))
		for i, e := range t {
			switch s := e.(type) {
			case string:
				out[i] = s
			case nil:
			default:
				return nil, false
			}
		}
		return out, true
	}
	return nil, false
}

func timeValue(v any) *time.Time {
	switch t := v.(type) {
	case string:
		parsed, err := time.Parse(time.RFC3339Nano, t)
		if err != nil {
			return nil
		}
		return &parsed
	case time.Time:
		return &t
	}
	return nil
}
