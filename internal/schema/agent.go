package schema

import "context"

// AgentSettings bundles the per-loop LLM parameters.
type AgentSettings struct {
	Model        string
	MaxIter      int
	Temperature  float64
	MaxTokens    int
	MemoryWindow int
}

func NewAgentSettings(model string, maxIter int, temperature float64, maxTokens, memoryWindow int) AgentSettings {
	return AgentSettings{
		Model:        model,
		MaxIter:      maxIter,
		Temperature:  temperature,
		MaxTokens:    maxTokens,
		MemoryWindow: memoryWindow,
	}
}

// AgentLooper is the engine seen by cron, heartbeat, and subagents.
type AgentLooper interface {
	// ProcessDirect handles a message that bypasses the bus (CLI one-shot,
	// cron, heartbeat) and returns the final text response.
	ProcessDirect(ctx context.Context, content, sessionKey, channel, chatID string) string
	// Run starts the main loop, consuming inbound bus messages until ctx is
	// cancelled.
	Run(ctx context.Context) error
}

// Spawner starts a background subagent task.
type Spawner interface {
	Spawn(ctx context.Context, task, label, originChannel, originChatID string) (string, error)
}
