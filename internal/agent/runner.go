package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/tidelark/tidelark/internal/schema"
	"github.com/tidelark/tidelark/internal/shared/llmutils"
	"github.com/tidelark/tidelark/internal/tools"
)

// ProgressFunc receives interim output while a turn is running: partial
// assistant text, or a short tool-invocation hint when toolHint is true.
type ProgressFunc func(text string, toolHint bool)

// Runner executes the LLM-tool iteration loop for one turn. It is shared by
// the main agent loop, the system-message handler and subagents; only the
// registry differs.
type Runner struct {
	provider schema.LLMProvider
	registry *tools.Registry
	settings schema.AgentSettings
}

// NewRunner creates a Runner.
func NewRunner(provider schema.LLMProvider, registry *tools.Registry, settings schema.AgentSettings) *Runner {
	return &Runner{provider: provider, registry: registry, settings: settings}
}

// Registry returns the runner's tool registry.
func (r *Runner) Registry() *tools.Registry { return r.registry }

// Run drives the conversation until the model answers without tool calls or
// MaxIter is reached. The returned transcript is the conversation including
// every assistant and tool entry appended during the loop; callers persist
// its tail as the turn record.
func (r *Runner) Run(ctx context.Context, conversation schema.Messages, onProgress ProgressFunc) (final string, transcript schema.Messages, err error) {
	opts := schema.NewChatOptions(r.settings.Model, r.settings.MaxTokens, r.settings.Temperature)

	for i := 0; i < r.settings.MaxIter; i++ {
		resp, err := r.provider.Chat(ctx, conversation, r.registry.Definitions(), opts)
		if err != nil {
			return "", conversation, fmt.Errorf("LLM call: %w", err)
		}

		if !resp.HasToolCalls() {
			content := ""
			if resp.Content != nil {
				content = *resp.Content
			}
			final := llmutils.StripThink(content)
			if final == "" {
				// No tool calls and nothing left after stripping thinking
				// blocks: the model produced no answer. Fall through to the
				// apology rather than returning an empty reply.
				break
			}
			conversation.AddAssistant(&final, nil, nil)
			return final, conversation, nil
		}

		if onProgress != nil {
			if resp.Content != nil {
				if clean := llmutils.StripThink(*resp.Content); clean != "" {
					onProgress(clean, false)
				}
			}
			onProgress(llmutils.ToolHint(resp.ToolCalls), true)
		}

		toolCalls := make([]schema.ToolCall, 0, len(resp.ToolCalls))
		for _, tc := range resp.ToolCalls {
			toolCalls = append(toolCalls, schema.ToolCall{ID: tc.ID, Name: tc.Name, Arguments: tc.Arguments})
		}
		conversation.AddAssistant(resp.Content, toolCalls, resp.ReasoningContent)

		// Execute tool calls in request order; every call gets a result
		// entry so the transcript stays well-formed for the next iteration.
		for _, tc := range resp.ToolCalls {
			argsJSON, _ := json.Marshal(tc.Arguments)
			slog.Info("tool call", "name", tc.Name, "args", llmutils.Truncate(string(argsJSON), 200))

			result := r.registry.Execute(ctx, tc.Name, tc.Arguments)
			conversation.AddToolResult(tc.ID, tc.Name, result)
		}
	}

	apology := fmt.Sprintf(
		"I reached the maximum number of tool call iterations (%d) without completing the task. You can try breaking the task into smaller steps.",
		r.settings.MaxIter)
	conversation.AddAssistant(&apology, nil, nil)
	return apology, conversation, nil
}
