package llm

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
)

// ParsedAction is the structured form of an "ACTION: tool(k=v, ...)" line.
type ParsedAction struct {
	Tool       string
	Parameters map[string]any
}

var (
	actionWithParamsPattern = regexp.MustCompile(`(?s)ACTION:\s*(\w+)\((.*?)\)`)
	actionBarePattern       = regexp.MustCompile(`ACTION:\s*(\w+)`)
	actionParamPattern      = regexp.MustCompile(`(\w+)\s*=\s*["']?([^"',)]+)["']?`)
	thoughtPattern          = regexp.MustCompile(`(?s)THOUGHT:\s*(.+?)(?:ACTION:|$)`)
	fencedJSONPattern       = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)```")
	braceJSONPattern        = regexp.MustCompile(`(?s)\{.*\}`)
)

// ParseAction extracts "ACTION: name(k=v, k=v, ...)" from LLM output.
// Values are coerced int first, then float, then kept as strings. A bare
// "ACTION: name" without parens yields no parameters. Returns nil when no
// action is present.
func ParseAction(text string) *ParsedAction {
	if m := actionWithParamsPattern.FindStringSubmatch(text); m != nil {
		action := &ParsedAction{Tool: m[1], Parameters: map[string]any{}}
		for _, param := range actionParamPattern.FindAllStringSubmatch(m[2], -1) {
			action.Parameters[param[1]] = coerceValue(strings.TrimSpace(param[2]))
		}
		return action
	}
	if m := actionBarePattern.FindStringSubmatch(text); m != nil {
		return &ParsedAction{Tool: m[1], Parameters: map[string]any{}}
	}
	return nil
}

// ParseThought extracts the reasoning text between "THOUGHT:" and the
// following "ACTION:" (or end of text).
func ParseThought(text string) string {
	if m := thoughtPattern.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1])
	}
	return ""
}

// ParseJSON recovers a JSON object from LLM output that may be wrapped in
// fenced code blocks or leading prose. Returns an empty map when nothing
// recoverable is present.
func ParseJSON(text string) map[string]any {
	candidate := strings.TrimSpace(text)
	if m := fencedJSONPattern.FindStringSubmatch(candidate); m != nil {
		candidate = strings.TrimSpace(m[1])
	}

	var out map[string]any
	if err := json.Unmarshal([]byte(candidate), &out); err == nil && out != nil {
		return out
	}

	if m := braceJSONPattern.FindString(candidate); m != "" {
		if err := json.Unmarshal([]byte(m), &out); err == nil && out != nil {
			return out
		}
	}
	return map[string]any{}
}

// coerceValue parses int, then float, then falls back to the raw string.
func coerceValue(raw string) any {
	if i, err := strconv.Atoi(raw); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return f
	}
	return raw
}
