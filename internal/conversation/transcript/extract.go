package transcript

import (
	"encoding/json"
	"fmt"
	"strings"
)

// turn is one exchange in a conversation message list.
type turn struct {
	Role    string `json:"role"`
	Message string `json:"message"`
}

// Extract pulls a readable transcript out of a raw conversation payload.
// Providers are not consistent about where the transcript lives, so the
// strategies run in order of specificity and the raw payload is the last
// resort. The returned string is never empty for a non-empty payload.
func Extract(payload []byte) string {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(payload, &doc); err != nil {
		// The payload may be a bare message list.
		if text, ok := renderTurnList(payload); ok {
			return text
		}
		return string(payload)
	}

	if raw, ok := doc["transcript"]; ok {
		var text string
		if err := json.Unmarshal(raw, &text); err == nil && strings.TrimSpace(text) != "" {
			return text
		}
		if text, ok := renderTurnList(raw); ok {
			return text
		}
	}

	if raw, ok := doc["analysis"]; ok {
		var analysis struct {
			TranscriptSummary string `json:"transcript_summary"`
		}
		if err := json.Unmarshal(raw, &analysis); err == nil && strings.TrimSpace(analysis.TranscriptSummary) != "" {
			return analysis.TranscriptSummary
		}
	}

	// Any top-level list of {role, message} objects will do.
	for _, raw := range doc {
		if text, ok := renderTurnList(raw); ok {
			return text
		}
	}

	return string(payload)
}

// renderTurnList formats a JSON array of conversation turns as one line per
// turn, prefixed with the speaker role.
func renderTurnList(raw []byte) (string, bool) {
	var turns []turn
	if err := json.Unmarshal(raw, &turns); err != nil || len(turns) == 0 {
		return "", false
	}

	lines := make([]string, 0, len(turns))
	for _, t := range turns {
		if t.Message == "" {
			continue
		}
		if t.Role == "" {
			lines = append(lines, t.Message)
			continue
		}
		lines = append(lines, fmt.Sprintf("%s: %s", t.Role, t.Message))
	}
	if len(lines) == 0 {
		return "", false
	}

	return strings.Join(lines, "\n"), true
}
