// Package container wires the core tidelark services using go.uber.org/dig.
package container

import (
	"fmt"
	"path/filepath"

	"go.uber.org/dig"

	"github.com/tidelark/tidelark/internal/agent"
	"github.com/tidelark/tidelark/internal/bus"
	"github.com/tidelark/tidelark/internal/config"
	"github.com/tidelark/tidelark/internal/cron"
	"github.com/tidelark/tidelark/internal/providers"
	"github.com/tidelark/tidelark/internal/schema"
	"github.com/tidelark/tidelark/internal/session"
	"github.com/tidelark/tidelark/internal/tools"
)

// Container holds the resolved core service singletons. Callers use the
// typed getters and never touch dig directly.
type Container struct {
	provider schema.LLMProvider
	msgBus   *bus.MessageBus
	loop     *agent.AgentLoop
	builder  *agent.ContextBuilder
	cronSvc  *cron.Service
}

func (c *Container) Provider() schema.LLMProvider          { return c.provider }
func (c *Container) MessageBus() *bus.MessageBus           { return c.msgBus }
func (c *Container) AgentLoop() *agent.AgentLoop           { return c.loop }
func (c *Container) ContextBuilder() *agent.ContextBuilder { return c.builder }
func (c *Container) CronService() *cron.Service            { return c.cronSvc }

// agentRegistry wraps the full tool registry used by the main agent loop.
type agentRegistry struct{ *tools.Registry }

// subagentRegistry wraps the restricted registry used by subagents. It
// carries no message, spawn, or cron tools: subagents must not message
// users, recurse, or schedule work.
type subagentRegistry struct{ *tools.Registry }

// subagentRunner is the Runner bound to the restricted registry.
type subagentRunner struct{ *agent.Runner }

// New builds and wires all core services from cfg.
func New(cfg *config.Config) (*Container, error) {
	d := dig.New()

	ctors := []any{
		func() *config.Config { return cfg },
		newMessageBus,
		newProvider,
		newSettings,
		newMemoryStore,
		newSessionStore,
		newConsolidator,
		newCronService,
		newSubagentToolRegistry,
		newSubagentRunner,
		newSubagentManager,
		newAgentToolRegistry,
		newRunner,
		newContextBuilder,
		newAgentLoop,
	}
	for _, ctor := range ctors {
		if err := d.Provide(ctor); err != nil {
			return nil, err
		}
	}

	var result *Container
	err := d.Invoke(func(
		provider schema.LLMProvider,
		msgBus *bus.MessageBus,
		loop *agent.AgentLoop,
		builder *agent.ContextBuilder,
		cronSvc *cron.Service,
	) {
		result = &Container{
			provider: provider,
			msgBus:   msgBus,
			loop:     loop,
			builder:  builder,
			cronSvc:  cronSvc,
		}
	})
	return result, err
}

func newMessageBus() *bus.MessageBus {
	return bus.NewMessageBus(100)
}

func newProvider(cfg *config.Config) (schema.LLMProvider, error) {
	model := cfg.Agents.Defaults.Model
	matched := cfg.MatchProvider(model)
	if matched == nil {
		return nil, fmt.Errorf("no API key configured for model %q, edit %s", model, config.ConfigPath())
	}
	return providers.NewOpenAIProvider(
		matched.APIKey,
		matched.APIBase,
		model,
		matched.Spec.Name,
		matched.Extra,
	), nil
}

func newSettings(cfg *config.Config) schema.AgentSettings {
	d := cfg.Agents.Defaults
	return schema.NewAgentSettings(d.Model, d.MaxToolIter, d.Temperature, d.MaxTokens, d.MemoryWindow)
}

func newMemoryStore(cfg *config.Config) (*agent.FileMemoryStore, error) {
	return agent.NewMemoryStore(cfg.WorkspacePath())
}

func newSessionStore(cfg *config.Config) (*session.Store, error) {
	return session.NewStore(cfg.WorkspacePath())
}

func newConsolidator(
	store *agent.FileMemoryStore,
	sessions *session.Store,
	provider schema.LLMProvider,
	cfg *config.Config,
) *agent.Consolidator {
	d := cfg.Agents.Defaults
	return agent.NewConsolidator(store, sessions, provider, d.Model, d.MemoryWindow)
}

func newCronService() *cron.Service {
	return cron.NewService(filepath.Join(config.DataDir(), "cron", "jobs.json"))
}

func newSubagentToolRegistry(cfg *config.Config) subagentRegistry {
	workspace := cfg.WorkspacePath()
	restrictDir := ""
	if cfg.Tools.RestrictToWorkspace {
		restrictDir = workspace
	}
	return subagentRegistry{tools.NewRegistry(
		tools.NewReadFileTool(workspace, restrictDir),
		tools.NewWriteFileTool(workspace, restrictDir),
		tools.NewEditFileTool(workspace, restrictDir),
		tools.NewListDirTool(workspace, restrictDir),
		tools.NewExecTool(workspace, cfg.Tools.Exec.Timeout, cfg.Tools.RestrictToWorkspace),
		tools.NewWebSearchTool(cfg.Tools.Web.Search.APIKey, cfg.Tools.Web.Search.MaxResults),
		tools.NewWebFetchTool(0),
	)}
}

func newSubagentRunner(p schema.LLMProvider, settings schema.AgentSettings, reg subagentRegistry) subagentRunner {
	return subagentRunner{agent.NewRunner(p, reg.Registry, settings)}
}

func newSubagentManager(b *bus.MessageBus, r subagentRunner, cfg *config.Config) *agent.SubagentManager {
	return agent.NewSubagentManager(b, r.Runner, cfg.WorkspacePath())
}

func newAgentToolRegistry(
	cfg *config.Config,
	b *bus.MessageBus,
	subMgr *agent.SubagentManager,
	cronSvc *cron.Service,
) agentRegistry {
	workspace := cfg.WorkspacePath()
	restrictDir := ""
	if cfg.Tools.RestrictToWorkspace {
		restrictDir = workspace
	}
	return agentRegistry{tools.NewRegistry(
		tools.NewReadFileTool(workspace, restrictDir),
		tools.NewWriteFileTool(workspace, restrictDir),
		tools.NewEditFileTool(workspace, restrictDir),
		tools.NewListDirTool(workspace, restrictDir),
		tools.NewExecTool(workspace, cfg.Tools.Exec.Timeout, cfg.Tools.RestrictToWorkspace),
		tools.NewWebSearchTool(cfg.Tools.Web.Search.APIKey, cfg.Tools.Web.Search.MaxResults),
		tools.NewWebFetchTool(0),
		tools.NewMessageTool(b),
		tools.NewSpawnTool(subMgr),
		tools.NewCronTool(cronSvc),
	)}
}

func newRunner(p schema.LLMProvider, reg agentRegistry, settings schema.AgentSettings) *agent.Runner {
	return agent.NewRunner(p, reg.Registry, settings)
}

func newContextBuilder(cfg *config.Config, memory *agent.FileMemoryStore) *agent.ContextBuilder {
	builtinSkills := filepath.Join(config.DataDir(), "skills")
	return agent.NewContextBuilder(cfg.WorkspacePath(), builtinSkills, memory)
}

func newAgentLoop(
	b *bus.MessageBus,
	settings schema.AgentSettings,
	builder *agent.ContextBuilder,
	sessions *session.Store,
	consolidator *agent.Consolidator,
	runner *agent.Runner,
	subagents *agent.SubagentManager,
) *agent.AgentLoop {
	return agent.NewAgentLoop(b, settings, builder, sessions, consolidator, runner, subagents)
}
