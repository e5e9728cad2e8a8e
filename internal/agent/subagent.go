package agent

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tidelark/tidelark/internal/bus"
	"github.com/tidelark/tidelark/internal/schema"
	"github.com/tidelark/tidelark/internal/shared/llmutils"
)

// SubagentManager runs background tasks in their own goroutines. Each
// subagent gets a restricted tool set (no message/spawn/cron) and a fresh
// conversation; when it finishes, the result is announced back to the main
// loop as a system message addressed to the originating chat.
type SubagentManager struct {
	bus       bus.Bus
	runner    *Runner // restricted registry
	workspace string

	mu      sync.Mutex
	running map[string]context.CancelFunc
	wg      sync.WaitGroup
}

// NewSubagentManager creates a SubagentManager. runner must carry the
// restricted tool registry.
func NewSubagentManager(b bus.Bus, runner *Runner, workspace string) *SubagentManager {
	return &SubagentManager{
		bus:       b,
		runner:    runner,
		workspace: workspace,
		running:   make(map[string]context.CancelFunc),
	}
}

// Spawn starts a background subagent and returns immediately.
// Implements schema.Spawner.
func (sm *SubagentManager) Spawn(_ context.Context, task, label, originChannel, originChatID string) (string, error) {
	taskID := uuid.NewString()[:8]
	label = llmutils.Truncate(llmutils.StringOrDefault(label, task), 30)

	// Detached from the caller: the spawning turn finishing must not cancel
	// the subagent.
	subctx, cancel := context.WithCancel(context.Background())

	sm.mu.Lock()
	sm.running[taskID] = cancel
	sm.mu.Unlock()

	sm.wg.Add(1)
	go func() {
		defer sm.wg.Done()
		defer func() {
			sm.mu.Lock()
			delete(sm.running, taskID)
			sm.mu.Unlock()
			cancel()
		}()
		sm.runTask(subctx, taskID, task, label, originChannel, originChatID)
	}()

	slog.Info("spawned subagent", "id", taskID, "label", label)
	return fmt.Sprintf("Subagent [%s] started (id: %s). I'll notify you when it completes.", label, taskID), nil
}

// RunningCount returns the number of in-flight subagents.
func (sm *SubagentManager) RunningCount() int {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return len(sm.running)
}

// StopAll cancels every running subagent.
func (sm *SubagentManager) StopAll() {
	sm.mu.Lock()
	for _, cancel := range sm.running {
		cancel()
	}
	sm.mu.Unlock()
}

// Wait blocks until all subagents finish.
func (sm *SubagentManager) Wait() { sm.wg.Wait() }

func (sm *SubagentManager) runTask(ctx context.Context, taskID, task, label, originChannel, originChatID string) {
	slog.Info("subagent starting", "id", taskID, "label", label)

	conversation := schema.NewMessages(
		schema.NewSystemMessage(sm.buildSystemPrompt()),
		schema.NewUserMessage(task),
	)

	status := "completed successfully"
	result, _, err := sm.runner.Run(ctx, conversation, nil)
	if err != nil {
		status = "failed"
		result = "Error: " + err.Error()
		slog.Error("subagent failed", "id", taskID, "err", err)
	} else {
		result = llmutils.StringOrDefault(result, "Task completed but no final response was generated.")
		slog.Info("subagent completed", "id", taskID)
	}

	sm.announce(label, task, result, status, originChannel, originChatID)
}

// announce reports the result to the main loop via the system channel. The
// main agent rephrases it for the user inside the origin conversation.
func (sm *SubagentManager) announce(label, task, result, status, originChannel, originChatID string) {
	content := fmt.Sprintf(`[Subagent '%s' %s]

Task: %s

Result:
%s

Summarize this naturally for the user. Keep it brief (1-2 sentences). Do not mention technical details like "subagent" or task IDs.`,
		label, status, task, result)

	msg := bus.NewInboundMessage(bus.ChannelSystem, "subagent", originChannel+":"+originChatID, content)
	sm.bus.PublishInbound(msg)
}

func (sm *SubagentManager) buildSystemPrompt() string {
	now := time.Now().Format("2006-01-02 15:04 (Monday)")
	tz, _ := time.Now().Zone()
	if tz == "" {
		tz = "UTC"
	}
	ws := expandHome(sm.workspace)
	osName := runtime.GOOS
	if osName == "darwin" {
		osName = "macOS"
	}

	return strings.Join([]string{
		"# Subagent",
		"",
		"## Current Time",
		now + " (" + tz + ")",
		"",
		"You are a subagent spawned by the main agent to complete a specific task.",
		"",
		"## Rules",
		"1. Stay focused - complete only the assigned task, nothing else",
		"2. Your final response will be reported back to the main agent",
		"3. Do not initiate conversations or take on side tasks",
		"4. Be concise but informative in your findings",
		"",
		"## What You Can Do",
		"- Read and write files in the workspace",
		"- Execute shell commands",
		"- Search the web and fetch web pages",
		"",
		"## What You Cannot Do",
		"- Send messages directly to users (no message tool available)",
		"- Spawn other subagents",
		"- Access the main agent's conversation history",
		"",
		"## Workspace",
		"Your workspace is at: " + ws,
		"Skills are available at: " + ws + "/skills/ (read SKILL.md files as needed)",
		"OS: " + osName + " " + runtime.GOARCH,
		"",
		"When you have completed the task, provide a clear summary of your findings or actions.",
	}, "\n")
}
