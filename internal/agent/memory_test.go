package agent

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestMemoryStoreEmpty(t *testing.T) {
	m, err := NewMemoryStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewMemoryStore: %v", err)
	}
	if got := m.ReadLongTerm(); got != "" {
		t.Errorf("expected empty memory, got %q", got)
	}
	if got := m.GetMemoryContext(); got != "" {
		t.Errorf("expected empty context, got %q", got)
	}
}

func TestMemoryStoreCreatesDir(t *testing.T) {
	ws := t.TempDir()
	if _, err := NewMemoryStore(ws); err != nil {
		t.Fatalf("NewMemoryStore: %v", err)
	}
	if _, err := os.Stat(filepath.Join(ws, "memory")); err != nil {
		t.Errorf("memory dir not created: %v", err)
	}
}

func TestWriteAndReadLongTerm(t *testing.T) {
	m, _ := NewMemoryStore(t.TempDir())
	if err := m.WriteLongTerm("# Memory\n- fact"); err != nil {
		t.Fatalf("WriteLongTerm: %v", err)
	}
	if got := m.ReadLongTerm(); got != "# Memory\n- fact" {
		t.Errorf("round trip failed: %q", got)
	}
	ctx := m.GetMemoryContext()
	if !strings.HasPrefix(ctx, "## Long-term Memory\n") || !strings.Contains(ctx, "- fact") {
		t.Errorf("unexpected context: %q", ctx)
	}
}

func TestAppendHistory(t *testing.T) {
	m, _ := NewMemoryStore(t.TempDir())
	if err := m.AppendHistory("first entry  \n"); err != nil {
		t.Fatalf("AppendHistory: %v", err)
	}
	if err := m.AppendHistory("second entry"); err != nil {
		t.Fatalf("AppendHistory: %v", err)
	}
	data, err := os.ReadFile(m.historyFile)
	if err != nil {
		t.Fatalf("read history: %v", err)
	}
	if got := string(data); got != "first entry\n\nsecond entry\n\n" {
		t.Errorf("unexpected history contents: %q", got)
	}
}
