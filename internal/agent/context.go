package agent

import (
	"encoding/base64"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/tidelark/tidelark/internal/schema"
)

// ContextBuilder assembles the system prompt and message list for each LLM
// call. The prompt is rebuilt per turn so memory and skill changes show up
// immediately.
type ContextBuilder struct {
	workspace string
	memory    *FileMemoryStore
	skills    *SkillsLoader
}

// bootstrapFiles are workspace markdown files injected into the system
// prompt when present, in this order.
var bootstrapFiles = []string{"AGENTS.md", "SOUL.md", "USER.md", "TOOLS.md", "IDENTITY.md"}

// NewContextBuilder creates a ContextBuilder for the given workspace.
// builtinSkillsDir may be "" when no bundled skills directory exists.
func NewContextBuilder(workspace, builtinSkillsDir string, memory *FileMemoryStore) *ContextBuilder {
	return &ContextBuilder{
		workspace: workspace,
		memory:    memory,
		skills:    NewSkillsLoader(workspace, builtinSkillsDir),
	}
}

// Skills exposes the loader, used by the status command.
func (cb *ContextBuilder) Skills() *SkillsLoader { return cb.skills }

// BuildSystemPrompt assembles the full system prompt: identity, bootstrap
// files, memory, always-on skills and the skills catalog.
func (cb *ContextBuilder) BuildSystemPrompt() string {
	parts := []string{cb.buildIdentity()}

	if bootstrap := cb.loadBootstrapFiles(); bootstrap != "" {
		parts = append(parts, bootstrap)
	}
	if mem := cb.memory.GetMemoryContext(); mem != "" {
		parts = append(parts, "# Memory\n\n"+mem)
	}
	if always := cb.skills.GetAlwaysSkills(); len(always) > 0 {
		if content := cb.skills.LoadSkillsForContext(always); content != "" {
			parts = append(parts, "# Active Skills\n\n"+content)
		}
	}
	if summary := cb.skills.BuildSkillsSummary(); summary != "" {
		parts = append(parts, `# Skills

The following skills extend your capabilities. To use a skill, read its SKILL.md file using the read_file tool.
Skills with available="false" need dependencies installed first - you can try installing them with apt/brew.

`+summary)
	}

	return strings.Join(parts, "\n\n---\n\n")
}

func (cb *ContextBuilder) buildIdentity() string {
	ws := expandHome(cb.workspace)
	osName := runtime.GOOS
	if osName == "darwin" {
		osName = "macOS"
	}

	return fmt.Sprintf(`# tidelark

You are tidelark, a personal AI assistant.

## Runtime
%s %s, Go %s

## Workspace
Your workspace is at: %s
- Long-term memory: %s/memory/MEMORY.md
- History log: %s/memory/HISTORY.md (grep-searchable)
- Custom skills: %s/skills/{skill-name}/SKILL.md

When remembering something important, write to %s/memory/MEMORY.md
To recall past events, grep %s/memory/HISTORY.md

## Using Tools
- Read a file before writing or editing it; never overwrite content you have not seen.
- Verify that paths exist before acting on them instead of assuming.
- Re-read a file after editing it when you depend on the result.
- Never predict or fabricate tool output; wait for the actual result.
- When a tool call fails, diagnose the error before retrying; do not repeat the same call unchanged.

When responding to direct questions or conversations, reply directly with your text response.
Only use the 'message' tool to reach a specific chat channel or to report progress mid-task.
Always be helpful, accurate, and concise.`,
		osName, runtime.GOARCH, runtime.Version(),
		ws,
		ws, ws, ws,
		ws, ws,
	)
}

func (cb *ContextBuilder) loadBootstrapFiles() string {
	var parts []string
	for _, name := range bootstrapFiles {
		data, err := os.ReadFile(filepath.Join(cb.workspace, name))
		if err != nil {
			continue
		}
		parts = append(parts, fmt.Sprintf("## %s\n\n%s", name, string(data)))
	}
	return strings.Join(parts, "\n\n")
}

// BuildMessages builds the complete message list for one LLM call: system
// prompt, session history, then the current user message with runtime
// context appended.
func (cb *ContextBuilder) BuildMessages(history schema.Messages, currentMessage string, media []string, channel, chatID string) schema.Messages {
	messages := schema.NewMessages()
	messages.AddSystem(cb.BuildSystemPrompt())
	messages.Append(history)
	messages.AddUser(cb.buildUserContent(currentMessage, media, channel, chatID))
	return messages
}

// buildUserContent assembles the user message content, embedding base64
// images when media paths are provided and appending the runtime context.
// Non-image attachments are referenced by path in the text instead.
func (cb *ContextBuilder) buildUserContent(text string, media []string, channel, chatID string) any {
	text = withRuntimeContext(text, channel, chatID)

	var blocks []schema.ContentBlock
	for _, path := range media {
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		mimeType := mime.TypeByExtension(filepath.Ext(path))
		if mimeType == "" || !strings.HasPrefix(mimeType, "image/") {
			text += "\n[attachment: " + path + "]"
			continue
		}
		b64 := base64.StdEncoding.EncodeToString(data)
		blocks = append(blocks, schema.ContentBlock{
			Type:     "image_url",
			ImageURL: map[string]any{"url": fmt.Sprintf("data:%s;base64,%s", mimeType, b64)},
		})
	}

	if len(blocks) == 0 {
		return text
	}
	return append(blocks, schema.ContentBlock{Type: "text", Text: text})
}

// withRuntimeContext appends the per-turn runtime block so the model knows
// the current time and where the conversation is happening.
func withRuntimeContext(text, channel, chatID string) string {
	now := time.Now()
	tz, _ := now.Zone()
	if tz == "" {
		tz = "UTC"
	}
	ctx := fmt.Sprintf("[Runtime Context]\nCurrent Time: %s (%s)",
		now.Format("2006-01-02 15:04 (Monday)"), tz)
	if channel != "" {
		ctx += "\nChannel: " + channel
	}
	if chatID != "" {
		ctx += "\nChat ID: " + chatID
	}
	if text == "" {
		return ctx
	}
	return text + "\n\n" + ctx
}

// expandHome replaces a leading "~" with the user's home directory.
func expandHome(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}
