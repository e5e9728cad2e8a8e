// Package llmutils holds small helpers for working with LLM text output.
package llmutils

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/tidelark/tidelark/internal/schema"
)

var reThink = regexp.MustCompile(`(?s)<think(?:ing)?>.*?</think(?:ing)?>`)

// Truncate shortens a string to at most n characters, adding "..." if it was truncated.
func Truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// StripThink removes <think>…</think> / <thinking>…</thinking> blocks that
// some models embed, and trims surrounding whitespace. Returns "" when
// nothing but thinking remained.
func StripThink(s string) string {
	return strings.TrimSpace(reThink.ReplaceAllString(s, ""))
}

// StringOrDefault returns s if it's not empty, or def otherwise.
func StringOrDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

// hintKeys is the preference order for picking which argument a tool hint
// shows. Falls back to the lexicographically first string argument.
var hintKeys = []string{"path", "file_path", "command", "query", "url", "name", "message", "content"}

func hintArg(args map[string]any) string {
	for _, k := range hintKeys {
		if s, ok := args[k].(string); ok && s != "" {
			return s
		}
	}
	keys := make([]string, 0, len(args))
	for k := range args {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if s, ok := args[k].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

// ToolHint generates a short hint string for a list of tool calls,
// e.g. `read_file("README.md"), exec`. One string-typed argument is shown,
// capped at 40 characters.
func ToolHint(tcs []schema.ToolCallRequest) string {
	parts := make([]string, 0, len(tcs))
	for _, tc := range tcs {
		val := hintArg(tc.Arguments)
		if val == "" {
			parts = append(parts, tc.Name)
			continue
		}
		if len(val) > 40 {
			val = val[:40] + "…"
		}
		parts = append(parts, fmt.Sprintf("%s(%q)", tc.Name, val))
	}
	return strings.Join(parts, ", ")
}
