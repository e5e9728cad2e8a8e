package agent

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/tidelark/tidelark/internal/schema"
)

func newTestBuilder(t *testing.T) (*ContextBuilder, string) {
	t.Helper()
	ws := t.TempDir()
	mem, err := NewMemoryStore(ws)
	if err != nil {
		t.Fatalf("NewMemoryStore: %v", err)
	}
	return NewContextBuilder(ws, "", mem), ws
}

func TestSystemPromptIdentity(t *testing.T) {
	cb, _ := newTestBuilder(t)
	prompt := cb.BuildSystemPrompt()
	if !strings.Contains(prompt, "You are tidelark") {
		t.Errorf("identity missing: %q", prompt[:80])
	}
	if strings.Contains(prompt, "# Memory") {
		t.Error("memory section present with empty memory")
	}
}

func TestSystemPromptBootstrapFiles(t *testing.T) {
	cb, ws := newTestBuilder(t)
	os.WriteFile(filepath.Join(ws, "AGENTS.md"), []byte("Follow the house rules."), 0o644)
	os.WriteFile(filepath.Join(ws, "SOUL.md"), []byte("Be kind."), 0o644)

	prompt := cb.BuildSystemPrompt()
	if !strings.Contains(prompt, "## AGENTS.md") || !strings.Contains(prompt, "Follow the house rules.") {
		t.Error("AGENTS.md not injected")
	}
	// AGENTS.md must come before SOUL.md.
	if strings.Index(prompt, "## AGENTS.md") > strings.Index(prompt, "## SOUL.md") {
		t.Error("bootstrap files out of order")
	}
}

func TestSystemPromptIncludesMemory(t *testing.T) {
	cb, ws := newTestBuilder(t)
	mem, _ := NewMemoryStore(ws)
	mem.WriteLongTerm("- the user prefers short answers")

	prompt := cb.BuildSystemPrompt()
	if !strings.Contains(prompt, "the user prefers short answers") {
		t.Error("long-term memory not injected")
	}
}

func TestBuildMessagesShape(t *testing.T) {
	cb, _ := newTestBuilder(t)

	history := schema.NewMessages(schema.NewUserMessage("earlier question"))
	msgs := cb.BuildMessages(history, "current question", nil, "telegram", "42")

	if msgs.Len() != 3 {
		t.Fatalf("expected system + history + user, got %d", msgs.Len())
	}
	if msgs.Messages[0].Role != "system" {
		t.Errorf("first message is %q", msgs.Messages[0].Role)
	}
	last := msgs.Messages[2]
	if last.Role != "user" {
		t.Errorf("last message is %q", last.Role)
	}
	content := last.ContentString()
	if !strings.Contains(content, "current question") {
		t.Errorf("user text missing: %q", content)
	}
	if !strings.Contains(content, "Channel: telegram") || !strings.Contains(content, "Chat ID: 42") {
		t.Errorf("runtime context missing: %q", content)
	}
}

func TestBuildMessagesNonImageAttachment(t *testing.T) {
	cb, ws := newTestBuilder(t)
	doc := filepath.Join(ws, "notes.txt")
	os.WriteFile(doc, []byte("notes"), 0o644)

	msgs := cb.BuildMessages(schema.NewMessages(), "see attached", []string{doc}, "cli", "direct")
	content := msgs.Messages[msgs.Len()-1].ContentString()
	if !strings.Contains(content, "[attachment: "+doc+"]") {
		t.Errorf("attachment reference missing: %q", content)
	}
}

func TestWithRuntimeContextEmptyText(t *testing.T) {
	out := withRuntimeContext("", "cli", "direct")
	if !strings.HasPrefix(out, "[Runtime Context]") {
		t.Errorf("unexpected prefix: %q", out)
	}
}
