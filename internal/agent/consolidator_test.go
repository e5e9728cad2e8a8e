package agent

import (
	"context"
	"os"
	"strings"
	"testing"

	"github.com/tidelark/tidelark/internal/schema"
	"github.com/tidelark/tidelark/internal/session"
)

type fakeSaver struct {
	saves int
}

func (f *fakeSaver) Save(_ *session.Session) error {
	f.saves++
	return nil
}

func saveMemoryResponse(historyEntry, memoryUpdate string) schema.LLMResponse {
	return schema.LLMResponse{
		ToolCalls: []schema.ToolCallRequest{{
			ID:   "c1",
			Name: "save_memory",
			Arguments: map[string]any{
				"history_entry": historyEntry,
				"memory_update": memoryUpdate,
			},
		}},
		FinishReason: "tool_calls",
	}
}

func newTestConsolidator(t *testing.T, p *fakeProvider, window int) (*Consolidator, *FileMemoryStore, *fakeSaver) {
	t.Helper()
	store, err := NewMemoryStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewMemoryStore: %v", err)
	}
	saver := &fakeSaver{}
	return NewConsolidator(store, saver, p, "fake/model", window), store, saver
}

func sessionWithTurns(key string, turns int) *session.Session {
	s := session.New(key)
	for i := 0; i < turns; i++ {
		s.Add(schema.NewUserMessage("question"))
		reply := "answer"
		s.Add(schema.NewAssistantMessage(&reply, nil, nil))
	}
	return s
}

func TestConsolidateSkipsShortSession(t *testing.T) {
	p := &fakeProvider{responses: []schema.LLMResponse{saveMemoryResponse("x", "y")}}
	c, _, saver := newTestConsolidator(t, p, 50)

	s := sessionWithTurns("cli:direct", 2)
	if err := c.Run(context.Background(), s, false); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if p.calls != 0 {
		t.Error("provider called for a session inside the window")
	}
	if s.LastConsolidated() != 0 || saver.saves != 0 {
		t.Errorf("cursor moved without consolidation: cursor=%d saves=%d", s.LastConsolidated(), saver.saves)
	}
}

func TestConsolidatePartialAdvancesCursor(t *testing.T) {
	p := &fakeProvider{responses: []schema.LLMResponse{
		saveMemoryResponse("talked about the weather", "# Memory\n- user likes sun"),
	}}
	c, store, saver := newTestConsolidator(t, p, 4)

	// 6 messages, window 4: keep 2, consolidate the first 4.
	s := sessionWithTurns("cli:direct", 3)
	if err := c.Run(context.Background(), s, false); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if s.LastConsolidated() != 4 {
		t.Errorf("expected cursor 4, got %d", s.LastConsolidated())
	}
	if saver.saves != 1 {
		t.Errorf("expected 1 save, got %d", saver.saves)
	}
	if got := store.ReadLongTerm(); got != "# Memory\n- user likes sun" {
		t.Errorf("long-term memory not written: %q", got)
	}
	if len(p.lastTools) != 1 {
		t.Fatalf("expected exactly the save_memory tool, got %d", len(p.lastTools))
	}
}

func TestConsolidateArchiveAll(t *testing.T) {
	p := &fakeProvider{responses: []schema.LLMResponse{
		saveMemoryResponse("full archive", "# Memory"),
	}}
	c, _, _ := newTestConsolidator(t, p, 50)

	s := sessionWithTurns("cli:direct", 2)
	if err := c.Run(context.Background(), s, true); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if s.LastConsolidated() != s.Len() {
		t.Errorf("expected cursor at %d, got %d", s.Len(), s.LastConsolidated())
	}
}

func TestConsolidateArchiveAllEmptySpan(t *testing.T) {
	p := &fakeProvider{responses: []schema.LLMResponse{saveMemoryResponse("x", "y")}}
	c, _, _ := newTestConsolidator(t, p, 50)

	s := sessionWithTurns("cli:direct", 1)
	s.SetLastConsolidated(2)
	if err := c.Run(context.Background(), s, true); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if p.calls != 0 {
		t.Error("provider called with nothing past the cursor")
	}
}

func TestConsolidateNoToolCall(t *testing.T) {
	p := &fakeProvider{responses: []schema.LLMResponse{textResponse("I summarized it in prose")}}
	c, _, _ := newTestConsolidator(t, p, 50)

	s := sessionWithTurns("cli:direct", 2)
	err := c.Run(context.Background(), s, true)
	if err == nil || !strings.Contains(err.Error(), "did not call save_memory") {
		t.Errorf("expected save_memory error, got %v", err)
	}
	if s.LastConsolidated() != 0 {
		t.Errorf("cursor moved on failed consolidation: %d", s.LastConsolidated())
	}
}

func TestConsolidateHistoryAppended(t *testing.T) {
	p := &fakeProvider{responses: []schema.LLMResponse{
		saveMemoryResponse("first span", "# Memory"),
		saveMemoryResponse("second span", "# Memory"),
	}}
	c, store, _ := newTestConsolidator(t, p, 50)

	s := sessionWithTurns("cli:direct", 2)
	if err := c.Run(context.Background(), s, true); err != nil {
		t.Fatalf("first Run: %v", err)
	}
	s.Add(schema.NewUserMessage("more"))
	if err := c.Run(context.Background(), s, true); err != nil {
		t.Fatalf("second Run: %v", err)
	}

	data, err := os.ReadFile(store.historyFile)
	if err != nil {
		t.Fatalf("read history: %v", err)
	}
	if got := string(data); got != "first span\n\nsecond span\n\n" {
		t.Errorf("unexpected history log: %q", got)
	}
}

func TestFormatTranscript(t *testing.T) {
	reply := "done it"
	msgs := []schema.Message{
		{Role: "user", Content: "do the thing", Timestamp: "2026-02-12T10:30:00"},
		{Role: "assistant", Content: &reply, ToolsUsed: []string{"exec"}, Timestamp: "2026-02-12T10:31:00"},
		{Role: "assistant", Content: (*string)(nil)}, // pure tool-call turn, skipped
	}
	got := formatTranscript(msgs)
	want := "[2026-02-12T10:30] USER: do the thing\n[2026-02-12T10:31] ASSISTANT [tools: exec]: done it"
	if got != want {
		t.Errorf("formatTranscript:\n got %q\nwant %q", got, want)
	}
}

func TestStringOrJSON(t *testing.T) {
	if got := stringOrJSON("plain"); got != "plain" {
		t.Errorf("got %q", got)
	}
	if got := stringOrJSON(nil); got != "" {
		t.Errorf("got %q", got)
	}
	if got := stringOrJSON(map[string]any{"k": "v"}); got != `{"k":"v"}` {
		t.Errorf("got %q", got)
	}
}
