package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/tidelark/tidelark/internal/schema"
	"github.com/tidelark/tidelark/internal/session"
	"github.com/tidelark/tidelark/internal/shared/llmutils"
)

// SessionSaver is the subset of the session store the consolidator needs.
type SessionSaver interface {
	Save(s *session.Session) error
}

// saveMemoryTool is the single tool exposed to the consolidation call. The
// model must answer with exactly this call; a plain-text answer counts as a
// failed run.
var saveMemoryTool = []map[string]any{{
	"type": "function",
	"function": map[string]any{
		"name":        "save_memory",
		"description": "Save consolidated conversation memory: an archive entry for the history log and the updated long-term memory document.",
		"parameters": map[string]any{
			"type": "object",
			"properties": map[string]any{
				"history_entry": map[string]any{
					"type":        "string",
					"description": "Summary of the archived conversation span, to append to the history log",
				},
				"memory_update": map[string]any{
					"type":        "string",
					"description": "The complete updated long-term memory document (full replacement)",
				},
			},
			"required": []string{"history_entry", "memory_update"},
		},
	},
}}

// Consolidator archives old session messages into the memory store via a
// single LLM tool call and advances the session's consolidation cursor.
// Messages are never removed or rewritten; the cursor is the only thing
// that moves.
type Consolidator struct {
	store    *FileMemoryStore
	saver    SessionSaver
	provider schema.LLMProvider
	model    string
	window   int

	mu      sync.Mutex
	locks   map[string]*keyLock
	pending map[string]bool // session keys with a background run in flight
	wg      sync.WaitGroup
}

// keyLock is a refcounted per-session mutex. Refcounting lets the map entry
// be dropped once nobody holds or waits on the lock, so the map does not
// grow with every session key ever seen.
type keyLock struct {
	sync.Mutex
	refs int
}

// NewConsolidator creates a Consolidator. window is the session memory
// window; half of it is kept verbatim on each partial consolidation.
func NewConsolidator(store *FileMemoryStore, saver SessionSaver, provider schema.LLMProvider, model string, window int) *Consolidator {
	return &Consolidator{
		store:    store,
		saver:    saver,
		provider: provider,
		model:    model,
		window:   window,
		locks:    make(map[string]*keyLock),
		pending:  make(map[string]bool),
	}
}

func (c *Consolidator) acquire(key string) *keyLock {
	c.mu.Lock()
	l := c.locks[key]
	if l == nil {
		l = &keyLock{}
		c.locks[key] = l
	}
	l.refs++
	c.mu.Unlock()

	l.Lock()
	return l
}

func (c *Consolidator) release(key string, l *keyLock) {
	l.Unlock()
	c.mu.Lock()
	l.refs--
	if l.refs == 0 {
		delete(c.locks, key)
	}
	c.mu.Unlock()
}

// Run consolidates the session synchronously, serialized per session key.
// archiveAll processes everything past the cursor regardless of window
// (used by /new); otherwise the newest window/2 messages stay untouched.
func (c *Consolidator) Run(ctx context.Context, s *session.Session, archiveAll bool) error {
	l := c.acquire(s.Key)
	defer c.release(s.Key, l)
	return c.consolidate(ctx, s, archiveAll)
}

// Schedule launches a background partial consolidation unless one is
// already in flight for the same session.
func (c *Consolidator) Schedule(s *session.Session) {
	c.mu.Lock()
	if c.pending[s.Key] {
		c.mu.Unlock()
		return
	}
	c.pending[s.Key] = true
	c.mu.Unlock()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer func() {
			c.mu.Lock()
			delete(c.pending, s.Key)
			c.mu.Unlock()
		}()
		if err := c.Run(context.Background(), s, false); err != nil {
			slog.Error("background memory consolidation failed", "session", s.Key, "err", err)
		}
	}()
}

// Wait blocks until all scheduled background consolidations finish.
func (c *Consolidator) Wait() { c.wg.Wait() }

func (c *Consolidator) consolidate(ctx context.Context, s *session.Session, archiveAll bool) error {
	msgs, cursor := s.Snapshot()
	all := msgs.Messages

	var old []schema.Message
	var newCursor int

	if archiveAll {
		old = all[cursor:]
		if len(old) == 0 {
			return nil
		}
		newCursor = len(all)
		slog.Info("memory consolidation (archive all)", "session", s.Key, "messages", len(old))
	} else {
		keep := c.window / 2
		if len(all) <= keep {
			return nil
		}
		end := len(all) - keep
		if end <= cursor {
			return nil
		}
		old = all[cursor:end]
		if len(old) == 0 {
			return nil
		}
		newCursor = end
		slog.Info("memory consolidation", "session", s.Key, "to_consolidate", len(old), "keep", keep)
	}

	current := c.store.ReadLongTerm()
	prompt := fmt.Sprintf(
		"Process this conversation and call the save_memory tool with your consolidation.\n\n"+
			"## Current Long-term Memory\n%s\n\n"+
			"## Conversation to Process\n%s",
		llmutils.StringOrDefault(current, "(empty)"),
		formatTranscript(old),
	)

	messages := schema.NewMessages(
		schema.NewSystemMessage("You are a memory consolidation agent. Call the save_memory tool with your consolidation of the conversation."),
		schema.NewUserMessage(prompt),
	)

	resp, err := c.provider.Chat(ctx, messages, saveMemoryTool,
		schema.NewChatOptions(c.model, 4096, 0.3))
	if err != nil {
		return fmt.Errorf("consolidation LLM call: %w", err)
	}
	if !resp.HasToolCalls() {
		return fmt.Errorf("consolidation: model did not call save_memory")
	}

	args := resp.ToolCalls[0].Arguments
	entry := stringOrJSON(args["history_entry"])
	update := stringOrJSON(args["memory_update"])
	if entry == "" && update == "" {
		return fmt.Errorf("consolidation: save_memory call had no usable arguments")
	}

	if entry != "" {
		if err := c.store.AppendHistory(entry); err != nil {
			return fmt.Errorf("append history: %w", err)
		}
	}
	if update != "" && update != current {
		if err := c.store.WriteLongTerm(update); err != nil {
			return fmt.Errorf("write long-term memory: %w", err)
		}
	}

	// Advance the cursor, never past what newer appends may have added.
	s.SetLastConsolidated(newCursor)
	if err := c.saver.Save(s); err != nil {
		slog.Warn("failed to persist consolidation cursor", "session", s.Key, "err", err)
	}

	slog.Info("memory consolidation done", "session", s.Key, "last_consolidated", newCursor)
	return nil
}

// formatTranscript renders archived messages as labelled lines:
//
//	[2026-02-12T10:30] USER: …
//	[2026-02-12T10:31] ASSISTANT [tools: exec, read_file]: …
//
// Timestamps are the messages' own, truncated to the minute; entries with
// empty text content (pure tool-call turns) are skipped.
func formatTranscript(msgs []schema.Message) string {
	fallback := time.Now().UTC().Format("2006-01-02T15:04")
	var lines []string
	for _, msg := range msgs {
		content := msg.ContentString()
		if content == "" {
			continue
		}
		ts := msg.Timestamp
		if len(ts) >= 16 {
			ts = ts[:16]
		} else {
			ts = fallback
		}
		tools := ""
		if len(msg.ToolsUsed) > 0 {
			tools = " [tools: " + strings.Join(msg.ToolsUsed, ", ") + "]"
		}
		lines = append(lines, fmt.Sprintf("[%s] %s%s: %s", ts, strings.ToUpper(msg.Role), tools, content))
	}
	return strings.Join(lines, "\n")
}

// stringOrJSON renders a tool argument as a string. Models occasionally
// send structured values where a string was asked for; serialize those
// rather than dropping them.
func stringOrJSON(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return ""
		}
		return string(b)
	}
}
