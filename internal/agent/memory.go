// Package agent contains the agent loop and its supporting components:
// context assembly, the two-tier memory store, consolidation, skills and
// subagents.
package agent

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// FileMemoryStore is the two-tier memory under workspace/memory:
// MEMORY.md holds curated long-term facts (read-modify-write whole file),
// HISTORY.md is an append-only log of archived conversation summaries.
type FileMemoryStore struct {
	memoryDir   string
	memoryFile  string
	historyFile string
}

// NewMemoryStore creates a FileMemoryStore rooted at workspace, creating
// the memory/ subdirectory if needed.
func NewMemoryStore(workspace string) (*FileMemoryStore, error) {
	dir := filepath.Join(workspace, "memory")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create memory dir: %w", err)
	}
	return &FileMemoryStore{
		memoryDir:   dir,
		memoryFile:  filepath.Join(dir, "MEMORY.md"),
		historyFile: filepath.Join(dir, "HISTORY.md"),
	}, nil
}

// ReadLongTerm returns the contents of MEMORY.md, or "" if not yet written.
func (m *FileMemoryStore) ReadLongTerm() string {
	data, err := os.ReadFile(m.memoryFile)
	if err != nil {
		return ""
	}
	return string(data)
}

// WriteLongTerm overwrites MEMORY.md with content.
func (m *FileMemoryStore) WriteLongTerm(content string) error {
	return os.WriteFile(m.memoryFile, []byte(content), 0o644)
}

// AppendHistory appends one entry to HISTORY.md, trailing whitespace
// stripped, followed by a blank line.
func (m *FileMemoryStore) AppendHistory(entry string) error {
	f, err := os.OpenFile(m.historyFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open history file: %w", err)
	}
	defer f.Close()

	if _, err := fmt.Fprintf(f, "%s\n\n", strings.TrimRight(entry, " \r\n")); err != nil {
		return fmt.Errorf("append history: %w", err)
	}
	return nil
}

// GetMemoryContext returns the long-term memory formatted for injection
// into the system prompt, or "" when MEMORY.md is empty.
func (m *FileMemoryStore) GetMemoryContext() string {
	lt := m.ReadLongTerm()
	if lt == "" {
		return ""
	}
	return "## Long-term Memory\n" + lt
}
