package scoring

import (
	"encoding/json"
	"strings"
)

// labelResponse is the JSON object the scoring prompts ask the model to
// emit.
type labelResponse struct {
	Label     *int   `json:"label"`
	Rationale string `json:"rationale"`
}

// parseLabel extracts the score label from model output. Models wrap the
// JSON in prose or markdown fences more often than not, so we look for a
// fenced block first and fall back to the first balanced brace pair.
func parseLabel(text string) (int, bool) {
	blob := extractJSONBlock(text)
	if blob == "" {
		return 0, false
	}

	var resp labelResponse
	if err := json.Unmarshal([]byte(blob), &resp); err != nil || resp.Label == nil {
		return 0, false
	}
	return *resp.Label, true
}

func extractJSONBlock(text string) string {
	if start := strings.Index(text, "```json"); start != -1 {
		start += len("```json")
		if end := strings.Index(text[start:], "```"); end != -1 {
			return strings.TrimSpace(text[start : start+end])
		}
		return ""
	}

	start := strings.IndexByte(text, '{')
	if start == -1 {
		return ""
	}
	depth := 0
	for i := start; i < len(text); i++ {
		switch text[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[start : i+1]
			}
		}
	}
	return ""
}
