// Package channels implements the chat-platform adapters. Each adapter
// reads platform events, pushes InboundMessages onto the bus, and delivers
// OutboundMessages handed to it by the Manager.
package channels

import (
	"log/slog"
	"strings"

	"github.com/tidelark/tidelark/internal/bus"
)

// Base holds common state and helpers shared by all channels.
type Base struct {
	name      string
	bus       bus.Bus
	allowFrom []string // empty = allow all
}

// NewBase creates a Base with the given channel name, bus, and allowlist.
func NewBase(name string, b bus.Bus, allowFrom []string) Base {
	return Base{name: name, bus: b, allowFrom: allowFrom}
}

// IsAllowed checks whether senderID is on the allowlist. senderID may be
// "id|username" (Telegram) or a plain string.
func (b *Base) IsAllowed(senderID string) bool {
	if len(b.allowFrom) == 0 {
		return true
	}
	for _, allowed := range b.allowFrom {
		if allowed == senderID {
			return true
		}
	}
	if strings.Contains(senderID, "|") {
		for _, part := range strings.Split(senderID, "|") {
			if part == "" {
				continue
			}
			for _, allowed := range b.allowFrom {
				if allowed == part {
					return true
				}
			}
		}
	}
	return false
}

// HandleMessage verifies the sender is allowed, then publishes an
// InboundMessage onto the bus.
func (b *Base) HandleMessage(senderID, chatID, content string, media []string, metadata map[string]any) {
	if !b.IsAllowed(senderID) {
		slog.Warn("access denied", "channel", b.name, "sender", senderID)
		return
	}
	msg := bus.NewInboundMessage(b.name, senderID, chatID, content)
	msg.Media = media
	msg.Metadata = metadata
	b.bus.PublishInbound(msg)
}

// splitMessage splits content into chunks that fit within maxLen, preferring
// newline breaks, then space breaks, then a hard cut.
func splitMessage(content string, maxLen int) []string {
	if len(content) <= maxLen {
		return []string{content}
	}
	var chunks []string
	for len(content) > 0 {
		if len(content) <= maxLen {
			chunks = append(chunks, content)
			break
		}
		cut := content[:maxLen]
		pos := strings.LastIndex(cut, "\n")
		if pos <= 0 {
			pos = strings.LastIndex(cut, " ")
		}
		if pos <= 0 {
			pos = maxLen
		}
		chunks = append(chunks, content[:pos])
		content = strings.TrimLeft(content[pos:], " \t\n")
	}
	return chunks
}
