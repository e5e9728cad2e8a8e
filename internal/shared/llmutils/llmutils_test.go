package llmutils

import (
	"testing"

	"github.com/tidelark/tidelark/internal/schema"
)

func TestTruncate(t *testing.T) {
	if got := Truncate("hello", 10); got != "hello" {
		t.Errorf("short string changed: %q", got)
	}
	if got := Truncate("hello world", 5); got != "hello..." {
		t.Errorf("unexpected truncation: %q", got)
	}
}

func TestStripThink(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"<think>internal</think>answer", "answer"},
		{"<thinking>a\nb</thinking>  answer  ", "answer"},
		{"no tags here", "no tags here"},
		{"<think>only thinking</think>", ""},
	}
	for _, c := range cases {
		if got := StripThink(c.in); got != c.want {
			t.Errorf("StripThink(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestStringOrDefault(t *testing.T) {
	if got := StringOrDefault("", "fallback"); got != "fallback" {
		t.Errorf("got %q", got)
	}
	if got := StringOrDefault("value", "fallback"); got != "value" {
		t.Errorf("got %q", got)
	}
}

func TestToolHint(t *testing.T) {
	hint := ToolHint([]schema.ToolCallRequest{
		{Name: "read_file", Arguments: map[string]any{"path": "README.md"}},
		{Name: "exec", Arguments: map[string]any{}},
	})
	if hint != `read_file("README.md"), exec` {
		t.Errorf("unexpected hint: %q", hint)
	}
}

func TestToolHintMultiArgDeterministic(t *testing.T) {
	args := map[string]any{
		"working_dir": "/tmp",
		"command":     "ls -la",
		"verbose":     true,
	}
	want := `exec("ls -la")`
	for i := 0; i < 20; i++ {
		hint := ToolHint([]schema.ToolCallRequest{{Name: "exec", Arguments: args}})
		if hint != want {
			t.Fatalf("hint varied or picked the wrong argument: %q", hint)
		}
	}
}

func TestToolHintSortedFallback(t *testing.T) {
	args := map[string]any{"zeta": "last", "alpha": "first"}
	for i := 0; i < 20; i++ {
		hint := ToolHint([]schema.ToolCallRequest{{Name: "custom", Arguments: args}})
		if hint != `custom("first")` {
			t.Fatalf("expected lexicographically first argument, got %q", hint)
		}
	}
}

func TestToolHintLongArgCapped(t *testing.T) {
	long := make([]byte, 60)
	for i := range long {
		long[i] = 'x'
	}
	hint := ToolHint([]schema.ToolCallRequest{
		{Name: "exec", Arguments: map[string]any{"command": string(long)}},
	})
	if len(hint) > 60 {
		t.Errorf("hint not capped: %d chars", len(hint))
	}
}
