// Package session manages per-conversation history stored as JSONL files.
//
// File format (one JSON object per line):
//
//	Line 1:  {"_type":"metadata","key":"…","created_at":"…","updated_at":"…",
//	           "metadata":{…},"last_consolidated":N}
//	Line 2+: one message object per line
//
// Messages are append-only; consolidation only advances last_consolidated.
package session

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/tidelark/tidelark/internal/schema"
)

// legacyDirName is checked once per key so sessions written by earlier
// installations are picked up transparently.
const legacyDirName = ".nanobot"

// Store loads and persists sessions as JSONL files under workspace/sessions.
type Store struct {
	sessionsDir string
	legacyDir   string
	cache       sync.Map // key → *Session
}

// NewStore creates a Store rooted at the workspace directory.
// It creates the sessions subdirectory if necessary.
func NewStore(workspace string) (*Store, error) {
	dir := filepath.Join(workspace, "sessions")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create sessions dir: %w", err)
	}

	legacy := ""
	if home, err := os.UserHomeDir(); err == nil {
		legacy = filepath.Join(home, legacyDirName, "sessions")
	}

	return &Store{sessionsDir: dir, legacyDir: legacy}, nil
}

// GetOrCreate returns the cached session for key, loading from disk if
// needed, or creating an empty new one. An unreadable file is treated as a
// missing session rather than an error.
func (st *Store) GetOrCreate(key string) *Session {
	if v, ok := st.cache.Load(key); ok {
		return v.(*Session)
	}

	s := st.load(key)
	if s == nil {
		s = New(key)
	}

	actual, _ := st.cache.LoadOrStore(key, s)
	return actual.(*Session)
}

// Save writes the session to disk atomically (write-then-rename) and
// updates the cache.
func (st *Store) Save(s *Session) error {
	path := st.sessionPath(s.Key)

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false) // preserve non-ASCII literally

	msgs, cursor := s.Snapshot()
	meta := map[string]any{
		"_type":             "metadata",
		"key":               s.Key,
		"created_at":        s.CreatedAt.Format(time.RFC3339),
		"updated_at":        time.Now().Format(time.RFC3339),
		"metadata":          s.Metadata,
		"last_consolidated": cursor,
	}

	if err := enc.Encode(meta); err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}
	for _, msg := range msgs.Messages {
		if err := enc.Encode(messageToWire(msg)); err != nil {
			return fmt.Errorf("encode message: %w", err)
		}
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write session %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replace session %s: %w", path, err)
	}

	st.cache.Store(s.Key, s)
	return nil
}

// Invalidate removes a session from the in-memory cache (used after /new).
// The file on disk is untouched.
func (st *Store) Invalidate(key string) {
	st.cache.Delete(key)
}

// SessionMeta is one entry returned by List.
type SessionMeta struct {
	Key       string
	CreatedAt string
	UpdatedAt string
	Path      string
}

// List returns metadata for all stored sessions, newest-first. Only the
// metadata line of each file is read.
func (st *Store) List() []SessionMeta {
	entries, _ := filepath.Glob(filepath.Join(st.sessionsDir, "*.jsonl"))
	var out []SessionMeta

	for _, path := range entries {
		f, err := os.Open(path)
		if err != nil {
			continue
		}
		scanner := bufio.NewScanner(f)
		if scanner.Scan() {
			var data map[string]any
			if json.Unmarshal(scanner.Bytes(), &data) == nil && data["_type"] == "metadata" {
				key, _ := data["key"].(string)
				if key == "" {
					base := strings.TrimSuffix(filepath.Base(path), ".jsonl")
					key = strings.Replace(base, "_", ":", 1)
				}
				created, _ := data["created_at"].(string)
				updated, _ := data["updated_at"].(string)
				out = append(out, SessionMeta{Key: key, CreatedAt: created, UpdatedAt: updated, Path: path})
			}
		}
		f.Close()
	}

	// RFC3339 sorts lexicographically.
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt > out[j].UpdatedAt })
	return out
}

// ---------------------------------------------------------------------------
// Wire format

// wireMessage is the on-disk JSON representation of a message.
type wireMessage struct {
	Role       string           `json:"role"`
	Content    any              `json:"content"`
	ToolCalls  []map[string]any `json:"tool_calls,omitempty"`
	ToolCallID string           `json:"tool_call_id,omitempty"`
	Name       string           `json:"name,omitempty"`
	ToolsUsed  []string         `json:"tools_used,omitempty"`
	Timestamp  string           `json:"timestamp"`
}

func messageToWire(msg schema.Message) wireMessage {
	w := wireMessage{
		Role:      msg.Role,
		ToolsUsed: msg.ToolsUsed,
		Timestamp: msg.Timestamp,
	}
	if w.Timestamp == "" {
		w.Timestamp = time.Now().Format("2006-01-02T15:04:05")
	}

	switch v := msg.Content.(type) {
	case *string:
		if v != nil {
			w.Content = *v
		}
	default:
		w.Content = msg.Content
	}

	for _, tc := range msg.ToolCalls {
		w.ToolCalls = append(w.ToolCalls, tc.ToWireMap())
	}
	w.ToolCallID = msg.ToolCallID
	w.Name = msg.ToolName
	return w
}

func wireToMessage(data map[string]any) schema.Message {
	role, _ := data["role"].(string)
	content := data["content"]
	if content == nil {
		content = ""
	}

	msg := schema.Message{Role: role, Content: content}

	if tcs, ok := data["tool_calls"].([]any); ok {
		for _, tc := range tcs {
			tcm, ok := tc.(map[string]any)
			if !ok {
				continue
			}
			fn, _ := tcm["function"].(map[string]any)
			id, _ := tcm["id"].(string)
			name, _ := fn["name"].(string)
			msg.ToolCalls = append(msg.ToolCalls, schema.ToolCall{
				ID:        id,
				Name:      name,
				Arguments: schema.ParseArguments(fn["arguments"]),
			})
		}
	}

	if id, ok := data["tool_call_id"].(string); ok {
		msg.ToolCallID = id
	}
	if name, ok := data["name"].(string); ok {
		msg.ToolName = name
	}
	if tu, ok := data["tools_used"].([]any); ok {
		for _, t := range tu {
			if s, ok := t.(string); ok {
				msg.ToolsUsed = append(msg.ToolsUsed, s)
			}
		}
	}
	if ts, ok := data["timestamp"].(string); ok {
		msg.Timestamp = ts
	}
	return msg
}

// ---------------------------------------------------------------------------
// Loading

// sessionPath converts a session key to its JSONL file path:
// safeFilename(key with ":" → "_") + ".jsonl".
func (st *Store) sessionPath(key string) string {
	return filepath.Join(st.sessionsDir, sessionFileName(key))
}

func sessionFileName(key string) string {
	return safeFilename(strings.ReplaceAll(key, ":", "_")) + ".jsonl"
}

// windowsReserved are device names that cannot be used as file stems.
var windowsReserved = map[string]bool{
	"con": true, "prn": true, "aux": true, "nul": true,
	"com1": true, "com2": true, "com3": true, "com4": true,
	"lpt1": true, "lpt2": true, "lpt3": true, "lpt4": true,
}

// safeFilename replaces filesystem-unsafe characters (path separators,
// shell metacharacters, control characters) with underscores and avoids
// reserved device names.
func safeFilename(name string) string {
	const unsafe = `<>:"/\|?*`
	var b strings.Builder
	for _, r := range name {
		if r < 0x20 || strings.ContainsRune(unsafe, r) {
			b.WriteByte('_')
		} else {
			b.WriteRune(r)
		}
	}
	out := strings.TrimSpace(b.String())
	if out == "" || windowsReserved[strings.ToLower(out)] {
		out = "_" + out
	}
	return out
}

// load reads a session from disk, migrating from the legacy directory on a
// primary miss. Returns nil when no file exists or the file is unreadable.
func (st *Store) load(key string) *Session {
	path := st.sessionPath(key)

	f, err := os.Open(path)
	if err != nil {
		if !st.migrateLegacy(key) {
			return nil
		}
		if f, err = os.Open(path); err != nil {
			return nil
		}
	}
	defer f.Close()

	var (
		messages         = schema.NewMessages()
		meta             = map[string]any{}
		createdAt        time.Time
		lastConsolidated int
	)

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 1<<20), 1<<20) // 1 MB per line
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		var data map[string]any
		if err := json.Unmarshal(line, &data); err != nil {
			slog.Warn("skipping malformed session line", "key", key, "err", err)
			continue
		}

		if data["_type"] == "metadata" {
			if m2, ok := data["metadata"].(map[string]any); ok {
				meta = m2
			}
			if ts, ok := data["created_at"].(string); ok {
				if t, err := time.Parse(time.RFC3339, ts); err == nil {
					createdAt = t
				}
			}
			if lc, ok := data["last_consolidated"].(float64); ok {
				lastConsolidated = int(lc)
			}
		} else {
			messages.Messages = append(messages.Messages, wireToMessage(data))
		}
	}

	if err := scanner.Err(); err != nil {
		slog.Warn("error reading session file", "key", key, "err", err)
		return nil
	}

	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	return newLoaded(key, messages, createdAt, meta, lastConsolidated)
}

// migrateLegacy moves a session file from the legacy directory into the
// primary one. Reports whether a file was migrated; failures only log — a
// broken legacy file must never block creating a fresh session.
func (st *Store) migrateLegacy(key string) bool {
	if st.legacyDir == "" {
		return false
	}
	old := filepath.Join(st.legacyDir, sessionFileName(key))
	if _, err := os.Stat(old); err != nil {
		return false
	}
	dst := st.sessionPath(key)
	if err := os.Rename(old, dst); err != nil {
		slog.Warn("legacy session migration failed", "key", key, "err", err)
		return false
	}
	slog.Info("migrated legacy session", "key", key)
	return true
}
