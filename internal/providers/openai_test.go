package providers

import (
	"testing"

	"github.com/tidelark/tidelark/internal/schema"
)

func TestFindByModel(t *testing.T) {
	cases := []struct {
		model string
		want  string
	}{
		{"anthropic/claude-opus-4-5", "anthropic"},
		{"claude-sonnet", "anthropic"},
		{"gpt-4o", "openai"},
		{"deepseek-chat", "deepseek"},
		{"qwen-max", "dashscope"},
		{"kimi-k2", "moonshot"},
		{"unknown-model", ""},
	}
	for _, c := range cases {
		got := ""
		if spec := FindByModel(c.model); spec != nil {
			got = spec.Name
		}
		if got != c.want {
			t.Errorf("FindByModel(%q) = %q, want %q", c.model, got, c.want)
		}
	}
}

func TestFindGateway(t *testing.T) {
	if g := FindGateway("", "sk-or-v1-abc", ""); g == nil || g.Name != "openrouter" {
		t.Errorf("key prefix not detected: %+v", g)
	}
	if g := FindGateway("", "", "https://api.siliconflow.cn/v1"); g == nil || g.Name != "siliconflow" {
		t.Errorf("base keyword not detected: %+v", g)
	}
	if g := FindGateway("vllm", "", ""); g == nil || g.Name != "vllm" {
		t.Errorf("explicit local name not detected: %+v", g)
	}
	if g := FindGateway("anthropic", "sk-ant-x", ""); g != nil {
		t.Errorf("standard provider treated as gateway: %+v", g)
	}
}

func TestResolveModelStripsRoutePrefix(t *testing.T) {
	p := NewOpenAIProvider("key", "https://api.deepseek.com/v1", "deepseek/deepseek-chat", "deepseek", nil)
	if got := p.resolveModel("deepseek/deepseek-chat"); got != "deepseek-chat" {
		t.Errorf("prefix not stripped: %q", got)
	}
	if got := p.resolveModel("deepseek-chat"); got != "deepseek-chat" {
		t.Errorf("bare name changed: %q", got)
	}
}

func TestResolveModelGatewayKeepsPrefix(t *testing.T) {
	p := NewOpenAIProvider("sk-or-v1-abc", "", "anthropic/claude-opus-4-5", "openrouter", nil)
	if got := p.resolveModel("anthropic/claude-opus-4-5"); got != "anthropic/claude-opus-4-5" {
		t.Errorf("gateway model rewritten: %q", got)
	}
	// The gateway's own routing prefix is still removed.
	if got := p.resolveModel("openrouter/anthropic/claude-opus-4-5"); got != "anthropic/claude-opus-4-5" {
		t.Errorf("gateway prefix not stripped: %q", got)
	}
}

func TestRepairJSON(t *testing.T) {
	if args, err := repairJSON(`{"path": "a.txt"}`); err != nil || args["path"] != "a.txt" {
		t.Errorf("valid JSON mishandled: %v %v", args, err)
	}
	if args, err := repairJSON(""); err != nil || len(args) != 0 {
		t.Errorf("empty arguments mishandled: %v %v", args, err)
	}
	// Truncated object, closing brace lost.
	if args, err := repairJSON(`{"a": 1, "b": 2`); err != nil || args["b"] != 2.0 {
		t.Errorf("truncated JSON not repaired: %v %v", args, err)
	}
	// Trailing garbage after a complete object.
	if args, err := repairJSON(`{"path": "x"}garbage`); err != nil || args["path"] != "x" {
		t.Errorf("trailing garbage not trimmed: %v %v", args, err)
	}
	if _, err := repairJSON(`not json at all`); err == nil {
		t.Error("expected error for unrepairable input")
	}
}

func TestParseOpenAIResponse(t *testing.T) {
	raw := []byte(`{
		"choices": [{
			"message": {
				"content": "hello",
				"tool_calls": [{
					"id": "call_1",
					"function": {"name": "exec", "arguments": "{\"command\": \"ls\"}"}
				}]
			},
			"finish_reason": "tool_calls"
		}],
		"usage": {"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15}
	}`)

	resp, err := parseOpenAIResponse(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if resp.Content == nil || *resp.Content != "hello" {
		t.Errorf("content: %v", resp.Content)
	}
	if len(resp.ToolCalls) != 1 || resp.ToolCalls[0].Name != "exec" {
		t.Fatalf("tool calls: %+v", resp.ToolCalls)
	}
	if resp.ToolCalls[0].Arguments["command"] != "ls" {
		t.Errorf("arguments: %v", resp.ToolCalls[0].Arguments)
	}
	if resp.FinishReason != "tool_calls" || resp.Usage["total_tokens"] != 15 {
		t.Errorf("finish=%q usage=%v", resp.FinishReason, resp.Usage)
	}
}

func TestParseAnthropicResponse(t *testing.T) {
	raw := []byte(`{
		"content": [
			{"type": "text", "text": "let me check"},
			{"type": "tool_use", "id": "tu_1", "name": "read_file", "input": {"path": "a.txt"}}
		],
		"stop_reason": "tool_use",
		"usage": {"input_tokens": 8, "output_tokens": 4}
	}`)

	resp, err := parseAnthropicResponse(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if resp.Content == nil || *resp.Content != "let me check" {
		t.Errorf("content: %v", resp.Content)
	}
	if len(resp.ToolCalls) != 1 || resp.ToolCalls[0].Arguments["path"] != "a.txt" {
		t.Errorf("tool calls: %+v", resp.ToolCalls)
	}
	if resp.FinishReason != "tool_calls" {
		t.Errorf("finish reason: %q", resp.FinishReason)
	}
	if resp.Usage["total_tokens"] != 12 {
		t.Errorf("usage: %v", resp.Usage)
	}
}

func TestAnthropicMessagesMergesToolResults(t *testing.T) {
	reply := "running"
	msgs := schema.NewMessages(
		schema.NewSystemMessage("be helpful"),
		schema.NewUserMessage("do two things"),
		schema.NewAssistantMessage(&reply, []schema.ToolCall{
			{ID: "a", Name: "exec"},
			{ID: "b", Name: "exec"},
		}, nil),
		schema.NewToolResultMessage("a", "exec", "one"),
		schema.NewToolResultMessage("b", "exec", "two"),
	)

	system, out := anthropicMessages(msgs)
	if system != "be helpful" {
		t.Errorf("system prompt: %q", system)
	}
	// user, assistant, merged tool-result user
	if len(out) != 3 {
		t.Fatalf("expected 3 wire messages, got %d", len(out))
	}
	results, ok := out[2]["content"].([]any)
	if !ok || len(results) != 2 {
		t.Errorf("tool results not merged: %v", out[2])
	}
}

func TestAnthropicToolsConversion(t *testing.T) {
	tools := []map[string]any{{
		"type": "function",
		"function": map[string]any{
			"name":        "exec",
			"description": "run a command",
			"parameters":  map[string]any{"type": "object"},
		},
	}}
	out := anthropicTools(tools)
	if len(out) != 1 || out[0]["name"] != "exec" {
		t.Fatalf("unexpected conversion: %v", out)
	}
	if _, ok := out[0]["input_schema"]; !ok {
		t.Error("parameters not renamed to input_schema")
	}
}
