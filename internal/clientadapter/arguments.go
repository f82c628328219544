package clientadapter

import (
	"bytes"
	"encoding/json"

	"github.com/tidwall/gjson"
)

// CompactArguments renders a tool input as compact JSON text for the backend.
// Empty or invalid input becomes "{}".
func CompactArguments(raw json.RawMessage) string {
	if len(bytes.TrimSpace(raw)) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return "{}"
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return "{}"
	}
	return buf.String()
}

// ParseArguments parses backend tool arguments into a JSON object.
// Anything that is not a valid JSON object yields an empty object, never an error.
func ParseArguments(arguments string) map[string]any {
	args := map[string]any{}
	if !gjson.Valid(arguments) || !gjson.Parse(arguments).IsObject() {
		return args
	}
	if err := json.Unmarshal([]byte(arguments), &args); err != nil {
		return map[string]any{}
	}
	return args
}
