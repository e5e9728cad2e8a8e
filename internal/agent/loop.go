package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/tidelark/tidelark/internal/bus"
	"github.com/tidelark/tidelark/internal/schema"
	"github.com/tidelark/tidelark/internal/session"
	"github.com/tidelark/tidelark/internal/shared/llmutils"
	"github.com/tidelark/tidelark/internal/tools"
)

// truncated tool results keep session files small; the live transcript the
// model saw during the turn is not affected.
const maxStoredToolResult = 500

// AgentLoop is the core engine: it consumes inbound bus messages one at a
// time, runs the LLM-tool loop for each, persists the turn, and publishes
// the response.
//
// Messages are processed serially. A slow turn delays the queue rather than
// interleaving two turns in one session; consolidation is the only
// concurrent writer and it only moves the cursor.
type AgentLoop struct {
	bus          bus.Bus
	settings     schema.AgentSettings
	builder      *ContextBuilder
	sessions     *session.Store
	consolidator *Consolidator
	runner       *Runner
	subagents    *SubagentManager
}

// NewAgentLoop wires the loop from its parts.
func NewAgentLoop(
	b bus.Bus,
	settings schema.AgentSettings,
	builder *ContextBuilder,
	sessions *session.Store,
	consolidator *Consolidator,
	runner *Runner,
	subagents *SubagentManager,
) *AgentLoop {
	return &AgentLoop{
		bus:          b,
		settings:     settings,
		builder:      builder,
		sessions:     sessions,
		consolidator: consolidator,
		runner:       runner,
		subagents:    subagents,
	}
}

// Run consumes inbound messages until ctx is cancelled, then waits for
// background work (consolidations, subagents) to drain.
func (l *AgentLoop) Run(ctx context.Context) error {
	slog.Info("agent loop started", "model", l.settings.Model)

	for {
		msg, ok := l.bus.ConsumeInbound(ctx, time.Second)
		if !ok {
			if ctx.Err() != nil {
				slog.Info("agent loop stopping")
				l.subagents.Wait()
				l.consolidator.Wait()
				return ctx.Err()
			}
			continue
		}
		l.handleMessage(ctx, msg)
	}
}

// ProcessDirect handles a message outside the bus (CLI one-shot, cron,
// heartbeat, tests) and returns the final text response.
func (l *AgentLoop) ProcessDirect(ctx context.Context, content, sessionKey, channel, chatID string) string {
	msg := bus.NewInboundMessage(channel, "user", chatID, content)
	msg.SessionKey = sessionKey
	resp := l.processMessage(ctx, msg)
	if resp == nil {
		return ""
	}
	return resp.Content
}

func (l *AgentLoop) handleMessage(ctx context.Context, msg bus.InboundMessage) {
	resp := l.processMessage(ctx, msg)
	if resp != nil {
		l.bus.PublishOutbound(*resp)
		return
	}
	if msg.Channel == bus.ChannelCLI {
		// The REPL blocks until it sees an outbound for its message; send an
		// empty one when the reply already went out through the message tool.
		out := bus.NewOutboundMessage(msg.Channel, msg.ChatID, "")
		out.Metadata = msg.Metadata
		l.bus.PublishOutbound(out)
	}
}

// processMessage runs the whole pipeline for one inbound message. Returns
// nil when no automatic reply should be sent (the message tool already
// answered the originating chat).
func (l *AgentLoop) processMessage(ctx context.Context, msg bus.InboundMessage) *bus.OutboundMessage {
	if msg.Channel == bus.ChannelSystem {
		return l.handleSystemMessage(ctx, msg)
	}

	slog.Info("processing message",
		"channel", msg.Channel, "sender", msg.SenderID, "content", msg.Preview())

	key := msg.EffectiveSessionKey()
	sess := l.sessions.GetOrCreate(key)

	if resp := l.handleSlashCommand(ctx, msg, sess, key); resp != nil {
		return resp
	}

	if sess.Unconsolidated() >= l.settings.MemoryWindow {
		l.consolidator.Schedule(sess)
	}

	msgSent := &atomic.Bool{}
	msgID, _ := msg.Metadata["message_id"].(string)
	tctx := tools.WithTurn(ctx, tools.TurnContext{
		Channel:     msg.Channel,
		ChatID:      msg.ChatID,
		MsgID:       msgID,
		MessageSent: msgSent,
	})

	history := sess.History(l.settings.MemoryWindow)
	conversation := l.builder.BuildMessages(history, msg.Content, msg.Media, msg.Channel, msg.ChatID)
	skip := 1 + history.Len() // system prompt + replayed history

	final, transcript, err := l.runner.Run(tctx, conversation, l.progressFunc(msg))
	if err != nil {
		slog.Error("agent turn failed", "session", key, "err", err)
		final = fmt.Sprintf("Sorry, I encountered an error: %v", err)
		transcript.AddAssistant(&final, nil, nil)
	}
	l.saveTurn(sess, transcript, skip)

	slog.Info("response", "channel", msg.Channel, "session", key, "length", len(final))

	if msgSent.Load() {
		return nil
	}
	out := bus.NewOutboundMessage(msg.Channel, msg.ChatID, final)
	out.Metadata = msg.Metadata
	return &out
}

// handleSystemMessage processes announcements injected by subagents. The
// origin chat is encoded in ChatID as "channel:chat_id"; the model gets one
// summarisation turn and the reply goes to that chat.
func (l *AgentLoop) handleSystemMessage(ctx context.Context, msg bus.InboundMessage) *bus.OutboundMessage {
	channel, chatID, ok := strings.Cut(msg.ChatID, ":")
	if !ok || chatID == "" {
		channel = bus.ChannelCLI
		chatID = msg.ChatID
	}

	slog.Info("processing system message", "sender", msg.SenderID, "origin", channel+":"+chatID)

	key := channel + ":" + chatID
	sess := l.sessions.GetOrCreate(key)

	tctx := tools.WithTurn(ctx, tools.TurnContext{Channel: channel, ChatID: chatID})

	history := sess.History(l.settings.MemoryWindow)
	conversation := l.builder.BuildMessages(history, msg.Content, nil, channel, chatID)
	skip := 1 + history.Len()

	final, transcript, err := l.runner.Run(tctx, conversation, nil)
	if err != nil {
		slog.Error("system message turn failed", "err", err)
		return nil
	}
	final = llmutils.StringOrDefault(final, "Background task completed.")

	// Rewrite the triggering entry so the session shows where it came from.
	if skip < transcript.Len() {
		transcript.Messages[skip].Content = fmt.Sprintf("[System: %s] %s", msg.SenderID, msg.Content)
	}
	l.saveTurn(sess, transcript, skip)

	out := bus.NewOutboundMessage(channel, chatID, final)
	return &out
}

// saveTurn appends the turn's transcript tail (the current user entry plus
// everything the loop produced) to the session and persists it. Reasoning
// content never reaches disk, long tool results are truncated, and each
// assistant entry records the names of the tools it called.
func (l *AgentLoop) saveTurn(sess *session.Session, transcript schema.Messages, skip int) {
	if skip > transcript.Len() {
		skip = transcript.Len()
	}
	now := time.Now().Format("2006-01-02T15:04:05")

	for _, m := range transcript.Messages[skip:] {
		m.ReasoningContent = nil
		m.Timestamp = now

		if m.Role == "tool" {
			if c := m.ContentString(); len(c) > maxStoredToolResult {
				m.Content = c[:maxStoredToolResult] + "\n... (truncated)"
			}
		}
		if m.Role == "assistant" && len(m.ToolCalls) > 0 {
			names := make([]string, 0, len(m.ToolCalls))
			for _, tc := range m.ToolCalls {
				names = append(names, tc.Name)
			}
			m.ToolsUsed = names
		}
		sess.Add(m)
	}

	if err := l.sessions.Save(sess); err != nil {
		slog.Error("failed to save session", "session", sess.Key, "err", err)
	}
}

func (l *AgentLoop) handleSlashCommand(ctx context.Context, msg bus.InboundMessage, sess *session.Session, key string) *bus.OutboundMessage {
	switch strings.TrimSpace(strings.ToLower(msg.Content)) {
	case "/new":
		return l.cmdNew(ctx, msg, sess, key)
	case "/help":
		out := bus.NewOutboundMessage(msg.Channel, msg.ChatID,
			"tidelark commands:\n/new — Start a new conversation\n/help — Show available commands")
		out.Metadata = msg.Metadata
		return &out
	}
	return nil
}

// cmdNew archives the whole session into memory, then clears it. Archival
// runs synchronously and must succeed first: a session is only wiped once
// its contents are safe in the memory files.
func (l *AgentLoop) cmdNew(ctx context.Context, msg bus.InboundMessage, sess *session.Session, key string) *bus.OutboundMessage {
	if err := l.consolidator.Run(ctx, sess, true); err != nil {
		slog.Error("archive on /new failed", "session", key, "err", err)
		out := bus.NewOutboundMessage(msg.Channel, msg.ChatID,
			"Memory archival failed, session not cleared. Please try again.")
		out.Metadata = msg.Metadata
		return &out
	}

	sess.Clear()
	if err := l.sessions.Save(sess); err != nil {
		slog.Warn("failed to persist cleared session", "session", key, "err", err)
	}
	l.sessions.Invalidate(key)

	out := bus.NewOutboundMessage(msg.Channel, msg.ChatID, "New session started.")
	out.Metadata = msg.Metadata
	return &out
}

// progressFunc publishes interim output so channels can show streaming
// progress. Flags ride in metadata; channels that cannot render them drop
// these messages.
func (l *AgentLoop) progressFunc(msg bus.InboundMessage) ProgressFunc {
	return func(text string, toolHint bool) {
		if text == "" {
			return
		}
		meta := make(map[string]any, len(msg.Metadata)+1)
		for k, v := range msg.Metadata {
			meta[k] = v
		}
		if toolHint {
			meta[bus.MetaToolHint] = true
		} else {
			meta[bus.MetaProgress] = true
		}
		out := bus.NewOutboundMessage(msg.Channel, msg.ChatID, text)
		out.Metadata = meta
		l.bus.PublishOutbound(out)
	}
}
