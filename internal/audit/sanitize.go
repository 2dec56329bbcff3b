package audit

import "strings"

// RedactedMarker replaces values whose keys match the denylist.
const RedactedMarker = "[REDACTED]"

// sensitiveKeys is the denylist of detail keys that must never reach
// durable storage. Matching is case-insensitive.
var sensitiveKeys = map[string]struct{}{
	"password":    {},
	"ssn":         {},
	"dob":         {},
	"phonenumber": {},
	"address":     {},
}

// Sanitize returns a copy of details with every denylisted key redacted.
// It recurses through nested map values at any depth, so sensitive keys
// cannot leak through structures passed in whole. Slice elements that
// are maps are recursed as well. The input map is never mutated.
func Sanitize(details map[string]any) map[string]any {
	if details == nil {
		return nil
	}
	out := make(map[string]any, len(details))
	for key, value := range details {
		if _, sensitive := sensitiveKeys[strings.ToLower(key)]; sensitive {
			out[key] = RedactedMarker
			continue
		}
		out[key] = sanitizeValue(value)
	}
	return out
}

func sanitizeValue(value any) any {
	switch v := value.(type) {
	case map[string]any:
		return Sanitize(v)
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = sanitizeValue(item)
		}
		return out
	default:
		return value
	}
}
