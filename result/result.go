// Package result renders command results as the text returned by MCP tools.
package result

import (
	"encoding/json"
	"strings"
)

// SuccessPhrase opens every successful tool response.
const SuccessPhrase = "Выполнено."

// Format turns a command result into user-facing text. Strings are appended
// verbatim after the phrase. For objects the first non-blank string among
// stdout, stderr and message is used. Everything else, including nil, numbers
// and arrays, yields the bare phrase. Raw JSON ([]byte or json.RawMessage) is
// decoded first; bytes that are not valid JSON are treated as a string.
func Format(v any) string {
	switch val := v.(type) {
	case nil:
		return SuccessPhrase
	case json.RawMessage:
		return formatRaw(val)
	case []byte:
		return formatRaw(val)
	case string:
		if isBlank(val) {
			return SuccessPhrase
		}
		return SuccessPhrase + " " + val
	case map[string]any:
		if s, ok := nonBlankString(val, "stdout"); ok {
			return SuccessPhrase + " stdout: " + s
		}
		if s, ok := nonBlankString(val, "stderr"); ok {
			return SuccessPhrase + " stderr: " + s
		}
		if s, ok := nonBlankString(val, "message"); ok {
			return SuccessPhrase + " " + s
		}
		return SuccessPhrase
	case map[string]string:
		m := make(map[string]any, len(val))
		for k, s := range val {
			m[k] = s
		}
		return Format(m)
	default:
		return SuccessPhrase
	}
}

func formatRaw(raw []byte) string {
	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return Format(string(raw))
	}
	return Format(decoded)
}

func nonBlankString(m map[string]any, key string) (string, bool) {
	s, ok := m[key].(string)
	if !ok || isBlank(s) {
		return "", false
	}
	return s, true
}

func isBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}
