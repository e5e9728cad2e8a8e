package session

import (
	"os"
	"strings"
	"testing"

	"github.com/tidelark/tidelark/internal/schema"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	st, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return st
}

func TestSaveAndReload(t *testing.T) {
	st := newTestStore(t)

	s := st.GetOrCreate("telegram:42")
	s.Add(schema.NewUserMessage("hello"))
	reply := "hi there"
	s.Add(schema.Message{
		Role:      "assistant",
		Content:   &reply,
		ToolsUsed: []string{"exec"},
		Timestamp: "2026-01-02T03:04:05",
	})
	s.SetLastConsolidated(1)

	if err := st.Save(s); err != nil {
		t.Fatalf("Save: %v", err)
	}

	st.Invalidate("telegram:42")
	loaded := st.GetOrCreate("telegram:42")

	if loaded.Len() != 2 {
		t.Fatalf("expected 2 messages after reload, got %d", loaded.Len())
	}
	if loaded.LastConsolidated() != 1 {
		t.Errorf("cursor not persisted: got %d", loaded.LastConsolidated())
	}
	m := loaded.Messages.Messages[1]
	if m.ContentString() != "hi there" {
		t.Errorf("content mismatch: %q", m.ContentString())
	}
	if len(m.ToolsUsed) != 1 || m.ToolsUsed[0] != "exec" {
		t.Errorf("tools_used not persisted: %v", m.ToolsUsed)
	}
	if m.Timestamp != "2026-01-02T03:04:05" {
		t.Errorf("timestamp not persisted: %q", m.Timestamp)
	}
}

func TestToolCallsRoundTrip(t *testing.T) {
	st := newTestStore(t)

	s := st.GetOrCreate("cli:direct")
	s.Add(schema.NewUserMessage("run it"))
	s.Add(schema.NewAssistantMessage(nil, []schema.ToolCall{
		{ID: "call_1", Name: "exec", Arguments: map[string]any{"command": "ls"}},
	}, nil))
	s.Add(schema.NewToolResultMessage("call_1", "exec", "file.txt"))

	if err := st.Save(s); err != nil {
		t.Fatalf("Save: %v", err)
	}
	st.Invalidate("cli:direct")
	loaded := st.GetOrCreate("cli:direct")

	asst := loaded.Messages.Messages[1]
	if len(asst.ToolCalls) != 1 {
		t.Fatalf("expected 1 tool call, got %d", len(asst.ToolCalls))
	}
	tc := asst.ToolCalls[0]
	if tc.ID != "call_1" || tc.Name != "exec" {
		t.Errorf("tool call mismatch: %+v", tc)
	}
	if tc.Arguments["command"] != "ls" {
		t.Errorf("arguments mismatch: %v", tc.Arguments)
	}
	tool := loaded.Messages.Messages[2]
	if tool.ToolCallID != "call_1" || tool.ToolName != "exec" {
		t.Errorf("tool result mismatch: %+v", tool)
	}
}

func TestCursorClampedOnLoad(t *testing.T) {
	st := newTestStore(t)

	s := st.GetOrCreate("cli:direct")
	s.Add(schema.NewUserMessage("only one"))
	s.SetLastConsolidated(1)
	if err := st.Save(s); err != nil {
		t.Fatalf("Save: %v", err)
	}

	// Corrupt the metadata cursor beyond the message count.
	path := st.sessionPath("cli:direct")
	data, _ := os.ReadFile(path)
	mangled := strings.Replace(string(data), `"last_consolidated":1`, `"last_consolidated":99`, 1)
	os.WriteFile(path, []byte(mangled), 0o644)

	st.Invalidate("cli:direct")
	loaded := st.GetOrCreate("cli:direct")
	if loaded.LastConsolidated() != 1 {
		t.Errorf("expected cursor clamped to message count, got %d", loaded.LastConsolidated())
	}
}

func TestGetOrCreateMissing(t *testing.T) {
	st := newTestStore(t)
	s := st.GetOrCreate("slack:C123")
	if s.Len() != 0 {
		t.Errorf("expected empty new session, got %d messages", s.Len())
	}
	if s.Key != "slack:C123" {
		t.Errorf("unexpected key %q", s.Key)
	}
}

func TestMalformedLinesSkipped(t *testing.T) {
	st := newTestStore(t)

	s := st.GetOrCreate("cli:direct")
	s.Add(schema.NewUserMessage("ok"))
	if err := st.Save(s); err != nil {
		t.Fatalf("Save: %v", err)
	}

	path := st.sessionPath("cli:direct")
	f, _ := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	f.WriteString("{not json\n")
	f.WriteString(`{"role":"user","content":"after"}` + "\n")
	f.Close()

	st.Invalidate("cli:direct")
	loaded := st.GetOrCreate("cli:direct")
	if loaded.Len() != 2 {
		t.Fatalf("expected malformed line skipped, got %d messages", loaded.Len())
	}
}

func TestList(t *testing.T) {
	st := newTestStore(t)
	for _, key := range []string{"cli:direct", "telegram:42"} {
		s := st.GetOrCreate(key)
		s.Add(schema.NewUserMessage("hi"))
		if err := st.Save(s); err != nil {
			t.Fatalf("Save %s: %v", key, err)
		}
	}
	metas := st.List()
	if len(metas) != 2 {
		t.Fatalf("expected 2 sessions, got %d", len(metas))
	}
	keys := map[string]bool{}
	for _, m := range metas {
		keys[m.Key] = true
	}
	if !keys["cli:direct"] || !keys["telegram:42"] {
		t.Errorf("unexpected keys: %v", keys)
	}
}

func TestSafeFilename(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"cli_direct", "cli_direct"},
		{"a/b\\c", "a_b_c"},
		{`x<>:"|?*y`, "x________y"},
		{"con", "_con"},
		{"", "_"},
	}
	for _, c := range cases {
		if got := safeFilename(c.in); got != c.want {
			t.Errorf("safeFilename(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}
