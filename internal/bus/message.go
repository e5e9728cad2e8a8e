package bus

import "time"

// Channel names used across the core. External adapters register under
// their own names; these constants cover the built-in routes.
const (
	ChannelCLI       = "cli"
	ChannelTelegram  = "telegram"
	ChannelSlack     = "slack"
	ChannelWhatsApp  = "whatsapp"
	ChannelCron      = "cron"
	ChannelHeartbeat = "heartbeat"
	ChannelSystem    = "system"
)

// Reserved metadata keys on OutboundMessage.
const (
	MetaProgress = "_progress"  // interim streaming chunk
	MetaToolHint = "_tool_hint" // short tool-invocation annotation
)

// InboundMessage is a message received from a chat channel.
type InboundMessage struct {
	Channel    string         // "telegram", "slack", "whatsapp", "cli", …
	SenderID   string         // user identifier within the channel
	ChatID     string         // chat / channel / DM identifier
	Content    string         // message text
	Timestamp  time.Time      // when the message was received
	Media      []string       // local file paths of downloaded attachments
	Metadata   map[string]any // channel-specific extras (message_id, username, …)
	SessionKey string         // optional override of the default session key
}

// NewInboundMessage creates an InboundMessage with Timestamp set to now.
func NewInboundMessage(channel, senderID, chatID, content string) InboundMessage {
	return InboundMessage{
		Channel:   channel,
		SenderID:  senderID,
		ChatID:    chatID,
		Content:   content,
		Timestamp: time.Now(),
	}
}

// EffectiveSessionKey returns the key under which this conversation is
// stored: the explicit override when set, else "channel:chat_id".
func (m InboundMessage) EffectiveSessionKey() string {
	if m.SessionKey != "" {
		return m.SessionKey
	}
	return m.Channel + ":" + m.ChatID
}

// Preview returns a short snippet of the message content for logging.
func (m InboundMessage) Preview() string {
	preview := m.Content
	if len(preview) > 80 {
		preview = preview[:80] + "..."
	}
	return preview
}

// OutboundMessage is a response to be sent back through a channel.
type OutboundMessage struct {
	Channel  string         // destination channel name
	ChatID   string         // destination chat / channel / DM identifier
	Content  string         // text to send
	Media    []string       // local file paths to attach (optional)
	Metadata map[string]any // channel-specific hints plus reserved _progress/_tool_hint flags
}

// NewOutboundMessage creates an OutboundMessage.
func NewOutboundMessage(channel, chatID, content string) OutboundMessage {
	return OutboundMessage{Channel: channel, ChatID: chatID, Content: content}
}

// IsProgress reports whether this message carries interim streaming output.
func (m OutboundMessage) IsProgress() bool {
	v, _ := m.Metadata[MetaProgress].(bool)
	return v
}

// IsToolHint reports whether this message is a tool-invocation annotation.
func (m OutboundMessage) IsToolHint() bool {
	v, _ := m.Metadata[MetaToolHint].(bool)
	return v
}
