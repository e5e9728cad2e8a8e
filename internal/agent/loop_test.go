package agent

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/tidelark/tidelark/internal/bus"
	"github.com/tidelark/tidelark/internal/schema"
	"github.com/tidelark/tidelark/internal/session"
	"github.com/tidelark/tidelark/internal/tools"
)

// loopFixture bundles an AgentLoop with the collaborators tests need to
// inspect. chat drives the turn runner; consol drives the consolidator.
type loopFixture struct {
	loop         *AgentLoop
	bus          *bus.MessageBus
	sessions     *session.Store
	memory       *FileMemoryStore
	consolidator *Consolidator
}

func newTestLoop(t *testing.T, chat, consol schema.LLMProvider, settings schema.AgentSettings, mkTools func(b bus.Bus) *tools.Registry) *loopFixture {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	ws := t.TempDir()

	b := bus.NewMessageBus(16)
	reg := tools.NewRegistry()
	if mkTools != nil {
		reg = mkTools(b)
	}

	mem, err := NewMemoryStore(ws)
	if err != nil {
		t.Fatalf("NewMemoryStore: %v", err)
	}
	sessions, err := session.NewStore(ws)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}

	builder := NewContextBuilder(ws, "", mem)
	c := NewConsolidator(mem, sessions, consol, settings.Model, settings.MemoryWindow)
	r := NewRunner(chat, reg, settings)
	sub := NewSubagentManager(b, r, ws)

	return &loopFixture{
		loop:         NewAgentLoop(b, settings, builder, sessions, c, r, sub),
		bus:          b,
		sessions:     sessions,
		memory:       mem,
		consolidator: c,
	}
}

func nextOutbound(t *testing.T, b *bus.MessageBus) bus.OutboundMessage {
	t.Helper()
	out, ok := b.ConsumeOutbound(context.Background(), 200*time.Millisecond)
	if !ok {
		t.Fatal("expected an outbound message")
	}
	return out
}

func inbound(channel, chatID, content string) bus.InboundMessage {
	msg := bus.NewInboundMessage(channel, "user", chatID, content)
	msg.Metadata = map[string]any{"message_id": "m1"}
	return msg
}

func TestLoopPlainTurn(t *testing.T) {
	chat := &fakeProvider{responses: []schema.LLMResponse{textResponse("all good")}}
	f := newTestLoop(t, chat, &fakeProvider{}, testSettings(5), nil)

	f.loop.handleMessage(context.Background(), inbound(bus.ChannelTelegram, "42", "how are you?"))

	out := nextOutbound(t, f.bus)
	if out.Channel != bus.ChannelTelegram || out.ChatID != "42" || out.Content != "all good" {
		t.Errorf("unexpected outbound: %+v", out)
	}
	if out.Metadata["message_id"] != "m1" {
		t.Errorf("inbound metadata not carried over: %v", out.Metadata)
	}
	if f.bus.OutboundSize() != 0 {
		t.Errorf("unexpected extra outbounds: %d", f.bus.OutboundSize())
	}

	// The turn must survive a reload from disk.
	f.sessions.Invalidate("telegram:42")
	sess := f.sessions.GetOrCreate("telegram:42")
	if sess.Len() != 2 {
		t.Fatalf("expected user + assistant persisted, got %d", sess.Len())
	}
	msgs, _ := sess.Snapshot()
	if msgs.Messages[0].Role != "user" || msgs.Messages[1].Role != "assistant" {
		t.Errorf("unexpected roles: %q %q", msgs.Messages[0].Role, msgs.Messages[1].Role)
	}
	if msgs.Messages[1].Timestamp == "" {
		t.Error("timestamp not set on persisted entry")
	}
}

func TestLoopProgressAndHintOrdering(t *testing.T) {
	working := "working on it"
	first := toolCallResponse("c1", "lookup", map[string]any{"query": "tides"})
	first.Content = &working
	chat := &fakeProvider{responses: []schema.LLMResponse{first, textResponse("done")}}

	f := newTestLoop(t, chat, &fakeProvider{}, testSettings(5), func(bus.Bus) *tools.Registry {
		return tools.NewRegistry(&stubTool{name: "lookup", result: "high at noon"})
	})

	f.loop.handleMessage(context.Background(), inbound(bus.ChannelSlack, "C1", "when is high tide?"))

	progress := nextOutbound(t, f.bus)
	if !progress.IsProgress() || progress.Content != "working on it" {
		t.Errorf("expected progress first: %+v", progress)
	}
	hint := nextOutbound(t, f.bus)
	if !hint.IsToolHint() || !strings.Contains(hint.Content, `lookup("tides")`) {
		t.Errorf("expected tool hint second: %+v", hint)
	}
	final := nextOutbound(t, f.bus)
	if final.IsProgress() || final.IsToolHint() || final.Content != "done" {
		t.Errorf("expected plain final last: %+v", final)
	}
}

func TestLoopNewCommand(t *testing.T) {
	consol := &fakeProvider{responses: []schema.LLMResponse{
		saveMemoryResponse("archived the chat", "# Memory\n- likes boats"),
	}}
	f := newTestLoop(t, &fakeProvider{}, consol, testSettings(5), nil)

	sess := f.sessions.GetOrCreate("cli:direct")
	reply := "hello"
	sess.Add(schema.NewUserMessage("hi"))
	sess.Add(schema.NewAssistantMessage(&reply, nil, nil))

	f.loop.handleMessage(context.Background(), inbound(bus.ChannelCLI, "direct", "/new"))

	out := nextOutbound(t, f.bus)
	if out.Content != "New session started." {
		t.Errorf("unexpected reply: %q", out.Content)
	}
	if got := f.sessions.GetOrCreate("cli:direct").Len(); got != 0 {
		t.Errorf("session not cleared: %d messages", got)
	}
	if got := f.memory.ReadLongTerm(); got != "# Memory\n- likes boats" {
		t.Errorf("long-term memory not written: %q", got)
	}
}

func TestLoopNewCommandArchiveFailure(t *testing.T) {
	// A plain-text consolidation answer counts as a failed archive.
	consol := &fakeProvider{responses: []schema.LLMResponse{textResponse("summary in prose")}}
	f := newTestLoop(t, &fakeProvider{}, consol, testSettings(5), nil)

	sess := f.sessions.GetOrCreate("cli:direct")
	reply := "hello"
	sess.Add(schema.NewUserMessage("hi"))
	sess.Add(schema.NewAssistantMessage(&reply, nil, nil))

	f.loop.handleMessage(context.Background(), inbound(bus.ChannelCLI, "direct", "/new"))

	out := nextOutbound(t, f.bus)
	if out.Content != "Memory archival failed, session not cleared. Please try again." {
		t.Errorf("unexpected reply: %q", out.Content)
	}
	if sess.Len() != 2 {
		t.Errorf("session was cleared despite failed archive: %d messages", sess.Len())
	}
	if sess.LastConsolidated() != 0 {
		t.Errorf("cursor moved on failed archive: %d", sess.LastConsolidated())
	}
}

func TestLoopSchedulesBackgroundConsolidation(t *testing.T) {
	chat := &fakeProvider{responses: []schema.LLMResponse{textResponse("ok")}}
	consol := &fakeProvider{responses: []schema.LLMResponse{
		saveMemoryResponse("older span", "# Memory\n- context"),
	}}
	settings := schema.NewAgentSettings("fake/model", 5, 0.7, 1024, 4)
	f := newTestLoop(t, chat, consol, settings, nil)

	sess := f.sessions.GetOrCreate("cli:direct")
	for i := 0; i < 3; i++ {
		reply := "answer"
		sess.Add(schema.NewUserMessage("question"))
		sess.Add(schema.NewAssistantMessage(&reply, nil, nil))
	}

	f.loop.handleMessage(context.Background(), inbound(bus.ChannelCLI, "direct", "one more"))
	nextOutbound(t, f.bus)
	f.consolidator.Wait()

	if consol.calls != 1 {
		t.Errorf("expected exactly one consolidation run, got %d", consol.calls)
	}
	if f.memory.ReadLongTerm() != "# Memory\n- context" {
		t.Errorf("long-term memory not written: %q", f.memory.ReadLongTerm())
	}
	cursor := sess.LastConsolidated()
	if cursor < 4 || cursor > sess.Len() {
		t.Errorf("cursor out of range: %d (len %d)", cursor, sess.Len())
	}
}

func TestLoopMessageToolSuppressesReply(t *testing.T) {
	chat := &fakeProvider{responses: []schema.LLMResponse{
		toolCallResponse("c1", "message", map[string]any{"content": "direct answer"}),
		textResponse("also done"),
	}}
	f := newTestLoop(t, chat, &fakeProvider{}, testSettings(5), func(b bus.Bus) *tools.Registry {
		return tools.NewRegistry(tools.NewMessageTool(b))
	})

	f.loop.handleMessage(context.Background(), inbound(bus.ChannelCLI, "direct", "tell me now"))

	hint := nextOutbound(t, f.bus)
	if !hint.IsToolHint() {
		t.Errorf("expected tool hint first: %+v", hint)
	}
	sent := nextOutbound(t, f.bus)
	if sent.Content != "direct answer" {
		t.Errorf("message tool delivery missing: %+v", sent)
	}
	// The reply already went out through the tool; the REPL still needs an
	// empty outbound to unblock.
	empty := nextOutbound(t, f.bus)
	if empty.Content != "" || empty.Channel != bus.ChannelCLI {
		t.Errorf("expected empty CLI outbound: %+v", empty)
	}
	if f.bus.OutboundSize() != 0 {
		t.Errorf("final text must not be delivered twice: %d extra", f.bus.OutboundSize())
	}
}

func TestLoopMessageToolNonCLIChannelStaysSilent(t *testing.T) {
	chat := &fakeProvider{responses: []schema.LLMResponse{
		toolCallResponse("c1", "message", map[string]any{"content": "direct answer"}),
		textResponse("also done"),
	}}
	f := newTestLoop(t, chat, &fakeProvider{}, testSettings(5), func(b bus.Bus) *tools.Registry {
		return tools.NewRegistry(tools.NewMessageTool(b))
	})

	f.loop.handleMessage(context.Background(), inbound(bus.ChannelTelegram, "42", "tell me now"))

	nextOutbound(t, f.bus) // tool hint
	sent := nextOutbound(t, f.bus)
	if sent.Content != "direct answer" {
		t.Errorf("message tool delivery missing: %+v", sent)
	}
	if f.bus.OutboundSize() != 0 {
		t.Errorf("expected no trailing outbound off CLI, got %d", f.bus.OutboundSize())
	}
}

func TestLoopTruncatesStoredToolResults(t *testing.T) {
	big := strings.Repeat("a", 600)
	chat := &fakeProvider{responses: []schema.LLMResponse{
		toolCallResponse("c1", "bigtool", map[string]any{}),
		textResponse("done"),
	}}
	f := newTestLoop(t, chat, &fakeProvider{}, testSettings(5), func(bus.Bus) *tools.Registry {
		return tools.NewRegistry(&stubTool{name: "bigtool", result: big})
	})

	f.loop.handleMessage(context.Background(), inbound(bus.ChannelCLI, "direct", "fetch it"))

	f.sessions.Invalidate("cli:direct")
	sess := f.sessions.GetOrCreate("cli:direct")
	msgs, _ := sess.Snapshot()

	var toolEntry, asstEntry *schema.Message
	for i := range msgs.Messages {
		m := &msgs.Messages[i]
		if m.Role == "tool" {
			toolEntry = m
		}
		if m.Role == "assistant" && len(m.ToolCalls) > 0 {
			asstEntry = m
		}
	}
	if toolEntry == nil || asstEntry == nil {
		t.Fatalf("tool or assistant entry missing from persisted turn: %d messages", len(msgs.Messages))
	}
	want := big[:500] + "\n... (truncated)"
	if got := toolEntry.ContentString(); got != want {
		t.Errorf("stored tool result not truncated: %d chars, tail %q", len(got), got[len(got)-30:])
	}
	if len(asstEntry.ToolsUsed) != 1 || asstEntry.ToolsUsed[0] != "bigtool" {
		t.Errorf("tools_used not recorded: %v", asstEntry.ToolsUsed)
	}
}

func TestProcessDirectUsesSessionKeyOverride(t *testing.T) {
	chat := &fakeProvider{responses: []schema.LLMResponse{textResponse("scheduled reply")}}
	f := newTestLoop(t, chat, &fakeProvider{}, testSettings(5), nil)

	got := f.loop.ProcessDirect(context.Background(), "run the report", "cron:job-1", bus.ChannelCron, "42")
	if got != "scheduled reply" {
		t.Errorf("unexpected response: %q", got)
	}
	if f.sessions.GetOrCreate("cron:job-1").Len() != 2 {
		t.Error("turn not stored under the overridden session key")
	}
}
