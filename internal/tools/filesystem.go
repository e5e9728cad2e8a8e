package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// fsTool holds the path handling shared by all filesystem tools. Relative
// paths resolve against the workspace; when restrictDir is set, resolved
// paths must stay inside it.
type fsTool struct {
	workspace   string
	restrictDir string
}

func (t fsTool) resolve(path string) (string, error) {
	p := path
	if !filepath.IsAbs(p) && t.workspace != "" {
		p = filepath.Join(t.workspace, p)
	}
	resolved, err := filepath.EvalSymlinks(p)
	if err != nil {
		// Path may not exist yet (writes). Clean is enough then.
		resolved = filepath.Clean(p)
	}
	if t.restrictDir != "" {
		allowed := filepath.Clean(t.restrictDir)
		if resolved != allowed && !strings.HasPrefix(resolved, allowed+string(filepath.Separator)) {
			return "", fmt.Errorf("path %s is outside allowed directory %s", path, t.restrictDir)
		}
	}
	return resolved, nil
}

// ---------------------------------------------------------------------------
// read_file

// ReadFileTool reads a file and returns its contents.
type ReadFileTool struct{ fsTool }

func NewReadFileTool(workspace, restrictDir string) *ReadFileTool {
	return &ReadFileTool{fsTool{workspace, restrictDir}}
}

func (t *ReadFileTool) Name() string        { return ToolReadFile }
func (t *ReadFileTool) Description() string { return "Read the contents of a file at the given path." }
func (t *ReadFileTool) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"path": {
				"type": "string",
				"description": "The file path to read"
			}
		},
		"required": ["path"]
	}`)
}

func (t *ReadFileTool) Execute(_ context.Context, params map[string]any) (string, error) {
	path, _ := params["path"].(string)
	if path == "" {
		return "Error: path is required", nil
	}
	fp, err := t.resolve(path)
	if err != nil {
		return "Error: " + err.Error(), nil
	}
	info, err := os.Stat(fp)
	if err != nil {
		return fmt.Sprintf("Error: File not found: %s", path), nil
	}
	if !info.Mode().IsRegular() {
		return fmt.Sprintf("Error: Not a file: %s", path), nil
	}
	data, err := os.ReadFile(fp)
	if err != nil {
		return fmt.Sprintf("Error reading file: %s", err), nil
	}
	return string(data), nil
}

// ---------------------------------------------------------------------------
// write_file

// WriteFileTool writes content to a file, creating parent directories as
// needed.
type WriteFileTool struct{ fsTool }

func NewWriteFileTool(workspace, restrictDir string) *WriteFileTool {
	return &WriteFileTool{fsTool{workspace, restrictDir}}
}

func (t *WriteFileTool) Name() string { return ToolWriteFile }
func (t *WriteFileTool) Description() string {
	return "Write content to a file at the given path. Creates parent directories if needed."
}
func (t *WriteFileTool) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"path": {
				"type": "string",
				"description": "The file path to write to"
			},
			"content": {
				"type": "string",
				"description": "The content to write"
			}
		},
		"required": ["path", "content"]
	}`)
}

func (t *WriteFileTool) Execute(_ context.Context, params map[string]any) (string, error) {
	path, _ := params["path"].(string)
	content, _ := params["content"].(string)
	if path == "" {
		return "Error: path is required", nil
	}
	fp, err := t.resolve(path)
	if err != nil {
		return "Error: " + err.Error(), nil
	}
	if err := os.MkdirAll(filepath.Dir(fp), 0o755); err != nil {
		return fmt.Sprintf("Error creating directories: %s", err), nil
	}
	if err := os.WriteFile(fp, []byte(content), 0o644); err != nil {
		return fmt.Sprintf("Error writing file: %s", err), nil
	}
	return fmt.Sprintf("Successfully wrote %d bytes to %s", len(content), fp), nil
}

// ---------------------------------------------------------------------------
// edit_file

// EditFileTool replaces old_text with new_text in a file. The old text must
// occur exactly once.
type EditFileTool struct{ fsTool }

func NewEditFileTool(workspace, restrictDir string) *EditFileTool {
	return &EditFileTool{fsTool{workspace, restrictDir}}
}

func (t *EditFileTool) Name() string { return ToolEditFile }
func (t *EditFileTool) Description() string {
	return "Edit a file by replacing old_text with new_text. The old_text must exist exactly in the file."
}
func (t *EditFileTool) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"path": {
				"type": "string",
				"description": "The file path to edit"
			},
			"old_text": {
				"type": "string",
				"description": "The exact text to find and replace"
			},
			"new_text": {
				"type": "string",
				"description": "The text to replace with"
			}
		},
		"required": ["path", "old_text", "new_text"]
	}`)
}

func (t *EditFileTool) Execute(_ context.Context, params map[string]any) (string, error) {
	path, _ := params["path"].(string)
	oldText, _ := params["old_text"].(string)
	newText, _ := params["new_text"].(string)
	if path == "" {
		return "Error: path is required", nil
	}

	fp, err := t.resolve(path)
	if err != nil {
		return "Error: " + err.Error(), nil
	}
	data, err := os.ReadFile(fp)
	if err != nil {
		return fmt.Sprintf("Error: File not found: %s", path), nil
	}
	content := string(data)

	switch strings.Count(content, oldText) {
	case 0:
		return editNotFound(oldText, content, path), nil
	case 1:
	default:
		return fmt.Sprintf("Warning: old_text appears %d times. Please provide more context to make it unique.",
			strings.Count(content, oldText)), nil
	}

	updated := strings.Replace(content, oldText, newText, 1)
	if err := os.WriteFile(fp, []byte(updated), 0o644); err != nil {
		return fmt.Sprintf("Error writing file: %s", err), nil
	}
	return fmt.Sprintf("Successfully edited %s", fp), nil
}

// editNotFound builds a hint when old_text was not found, pointing at the
// most similar region of the file so the model can correct its anchor.
func editNotFound(oldText, content, path string) string {
	oldLines := strings.Split(oldText, "\n")
	fileLines := strings.Split(content, "\n")
	window := len(oldLines)

	bestRatio, bestStart := 0.0, 0
	last := len(fileLines) - window
	if last < 0 {
		last = 0
	}
	for i := 0; i <= last; i++ {
		end := i + window
		if end > len(fileLines) {
			end = len(fileLines)
		}
		if r := overlapRatio(strings.Join(oldLines, "\n"), strings.Join(fileLines[i:end], "\n")); r > bestRatio {
			bestRatio, bestStart = r, i
		}
	}

	if bestRatio <= 0.5 {
		return fmt.Sprintf("Error: old_text not found in %s. No similar text found. Verify the file content.", path)
	}

	end := bestStart + window
	if end > len(fileLines) {
		end = len(fileLines)
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "Error: old_text not found in %s.\nBest match (%.0f%% similar) at line %d:\n",
		path, bestRatio*100, bestStart+1)
	for _, l := range oldLines {
		sb.WriteString("- " + l + "\n")
	}
	for _, l := range fileLines[bestStart:end] {
		sb.WriteString("+ " + l + "\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}

// overlapRatio is a cheap order-independent byte-frequency similarity in
// [0, 1]. Good enough to locate a near-match, no diff library needed.
func overlapRatio(a, b string) float64 {
	if len(a)+len(b) == 0 {
		return 1.0
	}
	var freq [256]int
	for i := 0; i < len(a); i++ {
		freq[a[i]]++
	}
	common := 0
	for i := 0; i < len(b); i++ {
		if freq[b[i]] > 0 {
			common++
			freq[b[i]]--
		}
	}
	return 2.0 * float64(common) / float64(len(a)+len(b))
}

// ---------------------------------------------------------------------------
// list_dir

// ListDirTool lists directory contents, directories first marker style.
type ListDirTool struct{ fsTool }

func NewListDirTool(workspace, restrictDir string) *ListDirTool {
	return &ListDirTool{fsTool{workspace, restrictDir}}
}

func (t *ListDirTool) Name() string        { return ToolListDir }
func (t *ListDirTool) Description() string { return "List the contents of a directory." }
func (t *ListDirTool) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"path": {
				"type": "string",
				"description": "The directory path to list"
			}
		},
		"required": ["path"]
	}`)
}

func (t *ListDirTool) Execute(_ context.Context, params map[string]any) (string, error) {
	path, _ := params["path"].(string)
	if path == "" {
		return "Error: path is required", nil
	}
	dp, err := t.resolve(path)
	if err != nil {
		return "Error: " + err.Error(), nil
	}
	info, err := os.Stat(dp)
	if err != nil {
		return fmt.Sprintf("Error: Directory not found: %s", path), nil
	}
	if !info.IsDir() {
		return fmt.Sprintf("Error: Not a directory: %s", path), nil
	}
	entries, err := os.ReadDir(dp)
	if err != nil {
		return fmt.Sprintf("Error listing directory: %s", err), nil
	}
	if len(entries) == 0 {
		return fmt.Sprintf("Directory %s is empty", path), nil
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	lines := make([]string, 0, len(entries))
	for _, e := range entries {
		marker := "[F] "
		if e.IsDir() {
			marker = "[D] "
		}
		lines = append(lines, marker+e.Name())
	}
	return strings.Join(lines, "\n"), nil
}
