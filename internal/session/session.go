package session

import (
	"sync"
	"time"

	"github.com/tidelark/tidelark/internal/schema"
)

// Session holds one conversation's messages and metadata.
//
// Messages are append-only during normal operation. Consolidation never
// deletes or reorders entries; it only advances lastConsolidated, which
// marks how many leading messages have been archived to memory files.
// Clear (the /new command) is the sole operation that truncates.
type Session struct {
	Key       string
	Messages  schema.Messages
	CreatedAt time.Time
	UpdatedAt time.Time
	Metadata  map[string]any

	lastConsolidated int

	mu sync.Mutex
}

// New constructs an empty session for key.
func New(key string) *Session {
	now := time.Now()
	return &Session{
		Key:       key,
		Messages:  schema.NewMessages(),
		CreatedAt: now,
		UpdatedAt: now,
		Metadata:  map[string]any{},
	}
}

// newLoaded constructs a Session with all fields set, including the cursor.
// Used only by the Store when reading from disk.
func newLoaded(key string, messages schema.Messages, createdAt time.Time, meta map[string]any, lastConsolidated int) *Session {
	if meta == nil {
		meta = map[string]any{}
	}
	s := &Session{
		Key:       key,
		Messages:  messages,
		CreatedAt: createdAt,
		UpdatedAt: time.Now(),
		Metadata:  meta,
	}
	s.lastConsolidated = clampCursor(lastConsolidated, messages.Len())
	return s
}

func clampCursor(n, max int) int {
	if n < 0 {
		return 0
	}
	if n > max {
		return max
	}
	return n
}

// Add appends one message to the session.
func (s *Session) Add(msg schema.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Messages.Messages = append(s.Messages.Messages, msg)
	s.UpdatedAt = time.Now()
}

// Len returns the number of messages in the session.
func (s *Session) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Messages.Len()
}

// Unconsolidated returns the number of messages past the consolidation cursor.
func (s *Session) Unconsolidated() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Messages.Len() - s.lastConsolidated
}

// LastConsolidated returns the consolidation cursor.
func (s *Session) LastConsolidated() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastConsolidated
}

// SetLastConsolidated advances (or resets) the consolidation cursor,
// clamped into [0, len(messages)].
func (s *Session) SetLastConsolidated(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastConsolidated = clampCursor(n, s.Messages.Len())
}

// Snapshot returns an independent copy of the message list together with the
// cursor value at the time of the call. Consolidation works on snapshots so
// a turn appending concurrently cannot shift the slice under it.
func (s *Session) Snapshot() (msgs schema.Messages, lastConsolidated int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Messages.Clone(), s.lastConsolidated
}

// Clear resets messages and the consolidation cursor. Only /new calls this.
func (s *Session) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Messages = schema.NewMessages()
	s.lastConsolidated = 0
	s.UpdatedAt = time.Now()
}

// History returns the LLM-visible window:
//
//  1. messages past the consolidation cursor,
//  2. capped to the last maxMessages entries,
//  3. left-trimmed so the window starts at a "user" entry — a window that
//     opened on a tool or assistant entry would reference tool-call IDs the
//     model cannot see,
//  4. with session-only fields (timestamp, tools_used, reasoning) stripped,
//     leaving only the protocol fields.
//
// Returns empty when no user entry falls inside the window.
func (s *Session) History(maxMessages int) schema.Messages {
	s.mu.Lock()
	defer s.mu.Unlock()

	msgs := s.Messages.Messages[s.lastConsolidated:]
	if maxMessages > 0 && len(msgs) > maxMessages {
		msgs = msgs[len(msgs)-maxMessages:]
	}

	start := -1
	for i, m := range msgs {
		if m.Role == "user" {
			start = i
			break
		}
	}
	if start < 0 {
		return schema.NewMessages()
	}

	out := schema.NewMessages()
	for _, m := range msgs[start:] {
		out.Messages = append(out.Messages, schema.Message{
			Role:       m.Role,
			Content:    m.Content,
			ToolCalls:  m.ToolCalls,
			ToolCallID: m.ToolCallID,
			ToolName:   m.ToolName,
		})
	}
	return out
}
