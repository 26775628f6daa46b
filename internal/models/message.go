package models

import (
	"encoding/json"
	"strings"
)

type Role string

const (
	RoleHuman Role = "human"
	RoleAI    Role = "ai"
	RoleTool  Role = "tool"
)

type Visibility string

const (
	VisibilityRendered Visibility = "rendered"
	VisibilityInternal Visibility = "internal"
)

type ContentBlockType string

const (
	ContentBlockText       ContentBlockType = "text"
	ContentBlockToolCall   ContentBlockType = "tool_call"
	ContentBlockToolResult ContentBlockType = "tool_result"
)

type ContentBlock struct {
	Type       ContentBlockType `json:"type"`
	Text       string           `json:"text,omitempty"`
	ToolCallID string           `json:"tool_call_id,omitempty"`
	ToolName   string           `json:"tool_name,omitempty"`
	Args       json.RawMessage  `json:"args,omitempty"`
}

// Content is either plain text or a list of blocks. Blocks win when both are set.
type Content struct {
	Text   string         `json:"text,omitempty"`
	Blocks []ContentBlock `json:"blocks,omitempty"`
}

func TextContent(text string) Content {
	return Content{Text: text}
}

// String flattens the content to the text a user would read.
func (c Content) String() string {
	if len(c.Blocks) == 0 {
		return c.Text
	}

	parts := make([]string, 0, len(c.Blocks))
	for _, block := range c.Blocks {
		if block.Type == ContentBlockText && block.Text != "" {
			parts = append(parts, block.Text)
		}
	}
	return strings.Join(parts, "\n")
}

func (c Content) IsEmpty() bool {
	return strings.TrimSpace(c.String()) == "" && len(c.Blocks) == 0
}

type ToolCall struct {
	ID   string          `json:"id"`
	Name string          `json:"name"`
	Args json.RawMessage `json:"args,omitempty"`
}

type UsageMetadata struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

type Message struct {
	ID         string         `json:"id"`
	Role       Role           `json:"role"`
	Content    Content        `json:"content"`
	ToolCalls  []ToolCall     `json:"tool_calls,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
	Name       string         `json:"name,omitempty"`
	Usage      *UsageMetadata `json:"usage_metadata,omitempty"`
	Visibility Visibility     `json:"visibility,omitempty"`
}

func (m *Message) IsInternal() bool {
	return m.Visibility == VisibilityInternal
}

// ToolCallIDs returns the ids of every tool call the message requests, in
// emission order and without duplicates.
func (m *Message) ToolCallIDs() []string {
	calls := m.AllToolCalls()
	ids := make([]string, 0, len(calls))
	for _, call := range calls {
		ids = append(ids, call.ID)
	}
	return ids
}

// AllToolCalls merges ToolCalls with tool_call content blocks.
func (m *Message) AllToolCalls() []ToolCall {
	if m.Role != RoleAI {
		return nil
	}

	seen := make(map[string]struct{}, len(m.ToolCalls))
	calls := make([]ToolCall, 0, len(m.ToolCalls))
	add := func(call ToolCall) {
		if call.ID == "" {
			return
		}
		if _, ok := seen[call.ID]; ok {
			return
		}
		seen[call.ID] = struct{}{}
		calls = append(calls, call)
	}

	for _, call := range m.ToolCalls {
		add(call)
	}
	for _, block := range m.Content.Blocks {
		if block.Type == ContentBlockToolCall {
			add(ToolCall{ID: block.ToolCallID, Name: block.ToolName, Args: block.Args})
		}
	}

	return calls
}

// AnsweredToolCallID returns the tool call a tool message responds to.
func (m *Message) AnsweredToolCallID() string {
	if m.Role != RoleTool {
		return ""
	}
	if m.ToolCallID != "" {
		return m.ToolCallID
	}
	for _, block := range m.Content.Blocks {
		if block.Type == ContentBlockToolResult && block.ToolCallID != "" {
			return block.ToolCallID
		}
	}
	return ""
}

// HasAssistantContent reports whether an ai message carries text or tool calls.
func (m *Message) HasAssistantContent() bool {
	if m.Role != RoleAI {
		return false
	}
	return strings.TrimSpace(m.Content.String()) != "" || len(m.AllToolCalls()) > 0
}

func (m *Message) Clone() *Message {
	if m == nil {
		return nil
	}

	clone := *m
	if m.Content.Blocks != nil {
		clone.Content.Blocks = append([]ContentBlock(nil), m.Content.Blocks...)
	}
	if m.ToolCalls != nil {
		clone.ToolCalls = append([]ToolCall(nil), m.ToolCalls...)
	}
	if m.Usage != nil {
		usage := *m.Usage
		clone.Usage = &usage
	}
	return &clone
}

func CloneMessages(messages []*Message) []*Message {
	out := make([]*Message, 0, len(messages))
	for _, msg := range messages {
		out = append(out, msg.Clone())
	}
	return out
}

// Checkpoint marks a transcript position: MessageID is the last message kept.
// RuntimeID optionally names the matching checkpoint on the agent runtime.
type Checkpoint struct {
	MessageID string `json:"message_id"`
	RuntimeID string `json:"runtime_id,omitempty"`
}
