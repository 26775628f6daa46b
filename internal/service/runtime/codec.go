package runtime

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/zjregee/alterchat/internal/models"
)

// hiddenIDPrefix marks messages that clients must not render. It only exists
// on the wire; decoded messages carry VisibilityInternal instead.
const hiddenIDPrefix = "do-not-render-"

type wireToolCall struct {
	ID   string          `json:"id"`
	Name string          `json:"name"`
	Args json.RawMessage `json:"args"`
}

type wireBlock struct {
	Type      string          `json:"type"`
	Text      string          `json:"text,omitempty"`
	ID        string          `json:"id,omitempty"`
	Name      string          `json:"name,omitempty"`
	Input     json.RawMessage `json:"input,omitempty"`
	ToolUseID string          `json:"tool_use_id,omitempty"`
	Content   string          `json:"content,omitempty"`
}

type wireMessage struct {
	ID         string                `json:"id"`
	Type       string                `json:"type"`
	Content    any                   `json:"content"`
	ToolCalls  []wireToolCall        `json:"tool_calls,omitempty"`
	ToolCallID string                `json:"tool_call_id,omitempty"`
	Name       string                `json:"name,omitempty"`
	Usage      *models.UsageMetadata `json:"usage_metadata,omitempty"`
}

func encodeMessages(messages []*models.Message) []wireMessage {
	out := make([]wireMessage, 0, len(messages))
	for _, msg := range messages {
		if msg != nil {
			out = append(out, encodeMessage(msg))
		}
	}
	return out
}

func encodeMessage(msg *models.Message) wireMessage {
	id := msg.ID
	if msg.IsInternal() && !strings.HasPrefix(id, hiddenIDPrefix) {
		id = hiddenIDPrefix + id
	}

	wire := wireMessage{
		ID:         id,
		Type:       string(msg.Role),
		Content:    encodeContent(msg.Content),
		ToolCallID: msg.ToolCallID,
		Name:       msg.Name,
		Usage:      msg.Usage,
	}
	for _, call := range msg.ToolCalls {
		args := call.Args
		if len(args) == 0 {
			args = json.RawMessage("{}")
		}
		wire.ToolCalls = append(wire.ToolCalls, wireToolCall{ID: call.ID, Name: call.Name, Args: args})
	}
	return wire
}

func encodeContent(content models.Content) any {
	if len(content.Blocks) == 0 {
		return content.Text
	}

	blocks := make([]wireBlock, 0, len(content.Blocks))
	for _, block := range content.Blocks {
		switch block.Type {
		case models.ContentBlockText:
			blocks = append(blocks, wireBlock{Type: "text", Text: block.Text})
		case models.ContentBlockToolCall:
			input := block.Args
			if len(input) == 0 {
				input = json.RawMessage("{}")
			}
			blocks = append(blocks, wireBlock{Type: "tool_use", ID: block.ToolCallID, Name: block.ToolName, Input: input})
		case models.ContentBlockToolResult:
			blocks = append(blocks, wireBlock{Type: "tool_result", ToolUseID: block.ToolCallID, Content: block.Text})
		}
	}
	return blocks
}

// DecodeMessages reads a message array. Entries without an id are dropped;
// unknown fields and block types are ignored.
func DecodeMessages(result gjson.Result) []*models.Message {
	if !result.IsArray() {
		return nil
	}

	var messages []*models.Message
	result.ForEach(func(_, value gjson.Result) bool {
		if msg := DecodeMessage(value); msg != nil {
			messages = append(messages, msg)
		}
		return true
	})
	return messages
}

func DecodeMessage(value gjson.Result) *models.Message {
	if !value.IsObject() {
		return nil
	}

	id := value.Get("id").String()
	if id == "" {
		return nil
	}

	msg := &models.Message{
		ID:         id,
		Role:       decodeRole(value.Get("type").String()),
		ToolCallID: value.Get("tool_call_id").String(),
		Name:       value.Get("name").String(),
		Visibility: models.VisibilityRendered,
	}
	if msg.Role == "" {
		msg.Role = decodeRole(value.Get("role").String())
	}
	if msg.Role == "" {
		return nil
	}
	if strings.HasPrefix(id, hiddenIDPrefix) {
		msg.ID = strings.TrimPrefix(id, hiddenIDPrefix)
		msg.Visibility = models.VisibilityInternal
	}

	msg.Content = decodeContent(value.Get("content"))

	value.Get("tool_calls").ForEach(func(_, call gjson.Result) bool {
		if callID := call.Get("id").String(); callID != "" {
			msg.ToolCalls = append(msg.ToolCalls, models.ToolCall{
				ID:   callID,
				Name: call.Get("name").String(),
				Args: rawOrNil(call.Get("args")),
			})
		}
		return true
	})

	if usage := value.Get("usage_metadata"); usage.IsObject() {
		msg.Usage = &models.UsageMetadata{
			InputTokens:  int(usage.Get("input_tokens").Int()),
			OutputTokens: int(usage.Get("output_tokens").Int()),
			TotalTokens:  int(usage.Get("total_tokens").Int()),
		}
	}

	return msg
}

func decodeRole(kind string) models.Role {
	switch strings.ToLower(kind) {
	case "human", "user", "humanmessage", "humanmessagechunk":
		return models.RoleHuman
	case "ai", "assistant", "aimessage", "aimessagechunk":
		return models.RoleAI
	case "tool", "toolmessage", "toolmessagechunk":
		return models.RoleTool
	default:
		return ""
	}
}

func decodeContent(content gjson.Result) models.Content {
	if !content.IsArray() {
		return models.TextContent(content.String())
	}

	var blocks []models.ContentBlock
	content.ForEach(func(_, block gjson.Result) bool {
		if block.Type == gjson.String {
			blocks = append(blocks, models.ContentBlock{Type: models.ContentBlockText, Text: block.String()})
			return true
		}

		switch block.Get("type").String() {
		case "text":
			blocks = append(blocks, models.ContentBlock{Type: models.ContentBlockText, Text: block.Get("text").String()})
		case "tool_use", "tool_call":
			args := block.Get("input")
			if !args.Exists() {
				args = block.Get("args")
			}
			blocks = append(blocks, models.ContentBlock{
				Type:       models.ContentBlockToolCall,
				ToolCallID: block.Get("id").String(),
				ToolName:   block.Get("name").String(),
				Args:       rawOrNil(args),
			})
		case "tool_result":
			blocks = append(blocks, models.ContentBlock{
				Type:       models.ContentBlockToolResult,
				ToolCallID: block.Get("tool_use_id").String(),
				Text:       block.Get("content").String(),
			})
		}
		return true
	})
	return models.Content{Blocks: blocks}
}

// DecodeInterrupt reads the first pending interrupt of a values payload.
func DecodeInterrupt(values gjson.Result) *models.Interrupt {
	interrupts := values.Get("__interrupt__")
	if !interrupts.IsArray() || len(interrupts.Array()) == 0 {
		return nil
	}
	first := interrupts.Array()[0]
	raw := first.Get("value")
	if !raw.Exists() {
		raw = first
	}
	return &models.Interrupt{Value: json.RawMessage(raw.Raw)}
}

// DecodeThread reads a thread object as returned by the agent server.
func DecodeThread(value gjson.Result) *models.Thread {
	id := value.Get("thread_id").String()
	if id == "" {
		return nil
	}
	return &models.Thread{
		ID:        id,
		Values:    models.ThreadValues{Messages: DecodeMessages(value.Get("values.messages"))},
		CreatedAt: decodeTime(value.Get("created_at")),
		UpdatedAt: decodeTime(value.Get("updated_at")),
	}
}

func rawOrNil(value gjson.Result) json.RawMessage {
	if !value.Exists() || value.Raw == "" {
		return nil
	}
	return json.RawMessage(value.Raw)
}

// decodeTime accepts RFC 3339 strings or unix milliseconds.
func decodeTime(value gjson.Result) int64 {
	switch value.Type {
	case gjson.Number:
		return value.Int()
	case gjson.String:
		if t, err := time.Parse(time.RFC3339Nano, value.String()); err == nil {
			return t.UnixMilli()
		}
	}
	return 0
}
