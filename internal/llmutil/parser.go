// internal/llmutil/parser.go
package llmutil

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// fencedJSONRegex extracts the body of a markdown code fence. \x60 is a
// backtick, which raw strings cannot hold.
var fencedJSONRegex = regexp.MustCompile("(?s)\x60\x60\x60(?:json|JSON)?\\s*(.*?)\\s*\x60\x60\x60")

// ExtractJSON isolates the JSON document in a model response. It strips
// markdown fences and any chatter around the outermost object or array.
func ExtractJSON(response string) string {
	response = strings.TrimSpace(response)
	if m := fencedJSONRegex.FindStringSubmatch(response); len(m) > 1 {
		response = strings.TrimSpace(m[1])
	}
	if strings.HasPrefix(response, "{") || strings.HasPrefix(response, "[") {
		return response
	}

	if first, last := strings.Index(response, "{"), strings.LastIndex(response, "}"); first != -1 && last > first {
		return response[first : last+1]
	}
	if first, last := strings.Index(response, "["), strings.LastIndex(response, "]"); first != -1 && last > first {
		return response[first : last+1]
	}
	return response
}

// ParseJSONResponse decodes a model response into T, tolerating the usual
// formatting noise around the JSON.
func ParseJSONResponse[T any](response string) (*T, error) {
	raw := ExtractJSON(response)
	if raw == "" {
		return nil, fmt.Errorf("empty LLM response")
	}

	var result T
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal LLM JSON response: %w. Extracted JSON (truncated): %s", err, truncateString(raw, 500))
	}
	return &result, nil
}

func truncateString(s string, maxLen int) string {
	if maxLen <= 0 {
		return ""
	}
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
