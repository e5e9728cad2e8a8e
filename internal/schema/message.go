package schema

import "encoding/json"

// ContentBlock is a single block in a multimodal user message
// (e.g. an image_url block alongside a text block).
type ContentBlock struct {
	Type     string         `json:"type"`                // "text" | "image_url"
	Text     string         `json:"text,omitempty"`      // when Type == "text"
	ImageURL map[string]any `json:"image_url,omitempty"` // when Type == "image_url"
}

// ToolCall represents one function call in an assistant message.
type ToolCall struct {
	ID        string
	Name      string
	Arguments map[string]any
}

// ToWireMap serialises a ToolCall into the OpenAI wire-format map.
// Arguments are JSON-encoded into a string with Unicode preserved literally.
func (tc ToolCall) ToWireMap() map[string]any {
	return map[string]any{
		"id":   tc.ID,
		"type": "function",
		"function": map[string]any{
			"name":      tc.Name,
			"arguments": MarshalArguments(tc.Arguments),
		},
	}
}

// MarshalArguments JSON-encodes tool-call arguments without HTML escaping,
// so non-ASCII text survives the session round trip byte-for-byte.
func MarshalArguments(args map[string]any) string {
	if args == nil {
		return "{}"
	}
	b, err := marshalNoEscape(args)
	if err != nil {
		return "{}"
	}
	return string(b)
}

func marshalNoEscape(v any) ([]byte, error) {
	var buf jsonBuffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	b := buf.data
	// Encoder appends a trailing newline.
	if n := len(b); n > 0 && b[n-1] == '\n' {
		b = b[:n-1]
	}
	return b, nil
}

type jsonBuffer struct{ data []byte }

func (b *jsonBuffer) Write(p []byte) (int, error) {
	b.data = append(b.data, p...)
	return len(p), nil
}

// ParseArguments decodes tool-call arguments that may arrive either as a
// mapping or as a JSON-encoded string. Providers are inconsistent here, so
// both shapes are accepted; anything else yields an empty map.
func ParseArguments(raw any) map[string]any {
	switch v := raw.(type) {
	case map[string]any:
		return v
	case string:
		var args map[string]any
		if err := json.Unmarshal([]byte(v), &args); err == nil {
			return args
		}
	case json.RawMessage:
		var args map[string]any
		if err := json.Unmarshal(v, &args); err == nil {
			return args
		}
	}
	return map[string]any{}
}

// Message is one entry in the conversation history.
//
// Role is one of: "system", "user", "assistant", "tool".
//
// Content holds the message text or content blocks:
//   - system / tool: plain string
//   - user: string or []ContentBlock (multimodal)
//   - assistant: *string (may be nil when only tool calls are present)
//
// ToolCalls is populated for assistant messages that invoke tools.
// ToolCallID and ToolName are set for tool-result messages.
// ReasoningContent carries the thinking block from models like DeepSeek-R1;
// it is forwarded verbatim between provider calls and never persisted.
type Message struct {
	Role             string
	Content          any // string | *string | []ContentBlock
	ToolCalls        []ToolCall
	ToolCallID       string   // "tool" role only
	ToolName         string   // "tool" role only
	ReasoningContent *string  // "assistant" role only
	ToolsUsed        []string // session-only: tool names used this turn; not sent to LLM
	Timestamp        string   // session-only: ISO-8601, stamped on persist
}

// ContentString coerces Content to a plain string. Multimodal content
// returns the concatenated text blocks.
func (m Message) ContentString() string {
	switch v := m.Content.(type) {
	case string:
		return v
	case *string:
		if v != nil {
			return *v
		}
	case []ContentBlock:
		var out string
		for _, b := range v {
			if b.Type == "text" {
				out += b.Text
			}
		}
		return out
	}
	return ""
}

func NewSystemMessage(content string) Message {
	return Message{Role: "system", Content: content}
}

func NewUserMessage(content any) Message {
	return Message{Role: "user", Content: content}
}

func NewAssistantMessage(content *string, toolCalls []ToolCall, reasoningContent *string) Message {
	return Message{
		Role:             "assistant",
		Content:          content,
		ToolCalls:        toolCalls,
		ReasoningContent: reasoningContent,
	}
}

func NewToolResultMessage(toolCallID, toolName, result string) Message {
	return Message{
		Role:       "tool",
		Content:    result,
		ToolCallID: toolCallID,
		ToolName:   toolName,
	}
}
