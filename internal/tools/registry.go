// Package tools implements the tool registry and the built-in tools the
// agent can call.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/tidelark/tidelark/internal/schema"
)

// Canonical names of the built-in tools.
const (
	ToolExec      = "exec"
	ToolReadFile  = "read_file"
	ToolWriteFile = "write_file"
	ToolEditFile  = "edit_file"
	ToolListDir   = "list_dir"
	ToolWebSearch = "web_search"
	ToolWebFetch  = "web_fetch"
	ToolMessage   = "message"
	ToolSpawn     = "spawn"
	ToolCron      = "cron"
)

// retryHint is appended to every error result fed back to the LLM. Errors
// are reified into the conversation rather than raised so the model can
// recover on the next iteration.
const retryHint = "\n\n[Analyze the error above and try a different approach.]"

// Registry holds a named set of tools and executes them on behalf of the
// agent loop. Registration happens during wiring; Execute is called from
// the inner loop for every tool call the model requests.
type Registry struct {
	tools map[string]schema.Tool
}

// NewRegistry returns a Registry pre-populated with the given tools.
func NewRegistry(ts ...schema.Tool) *Registry {
	r := &Registry{tools: make(map[string]schema.Tool, len(ts))}
	for _, t := range ts {
		r.tools[t.Name()] = t
	}
	return r
}

// Register adds a tool, replacing any existing tool with the same name.
func (r *Registry) Register(t schema.Tool) {
	r.tools[t.Name()] = t
}

// Get returns the tool with the given name, or nil.
func (r *Registry) Get(name string) schema.Tool {
	return r.tools[name]
}

// Names returns the sorted tool names.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Definitions returns all tool definitions in OpenAI function-calling format.
func (r *Registry) Definitions() []map[string]any {
	list := make([]map[string]any, 0, len(r.tools))
	for _, name := range r.Names() {
		t := r.tools[name]
		var params any
		if err := json.Unmarshal(t.Parameters(), &params); err != nil {
			params = map[string]any{"type": "object", "properties": map[string]any{}}
		}
		list = append(list, map[string]any{
			"type": "function",
			"function": map[string]any{
				"name":        t.Name(),
				"description": t.Description(),
				"parameters":  params,
			},
		})
	}
	return list
}

// Execute validates args against the tool's parameter schema and runs it.
// All failures come back as strings beginning with "Error" — never as Go
// errors — with a fixed retry hint appended so the model tries something
// else instead of repeating the same call.
func (r *Registry) Execute(ctx context.Context, name string, args map[string]any) string {
	t := r.tools[name]
	if t == nil {
		return fmt.Sprintf("Error: Tool '%s' not found. Available: %s",
			name, strings.Join(r.Names(), ", "))
	}

	if errs := ValidateParams(t.Parameters(), args); len(errs) > 0 {
		return fmt.Sprintf("Error: Invalid parameters for tool '%s': %s",
			name, strings.Join(errs, "; ")) + retryHint
	}

	result, err := t.Execute(ctx, args)
	if err != nil {
		slog.Warn("tool execution failed", "tool", name, "err", err)
		return fmt.Sprintf("Error executing %s: %v", name, err) + retryHint
	}
	if strings.HasPrefix(result, "Error") {
		return result + retryHint
	}
	return result
}
