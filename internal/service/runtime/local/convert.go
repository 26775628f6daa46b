package local

import (
	"strings"

	"github.com/cloudwego/eino/schema"

	"github.com/zjregee/alterchat/internal/models"
)

func toSchemaMessages(messages []*models.Message) []*schema.Message {
	out := make([]*schema.Message, 0, len(messages))
	for _, msg := range messages {
		if converted := toSchemaMessage(msg); converted != nil {
			out = append(out, converted)
		}
	}
	return out
}

func toSchemaMessage(msg *models.Message) *schema.Message {
	if msg == nil {
		return nil
	}

	switch msg.Role {
	case models.RoleHuman:
		return schema.UserMessage(msg.Content.String())
	case models.RoleAI:
		var calls []schema.ToolCall
		for _, call := range msg.AllToolCalls() {
			args := string(call.Args)
			if args == "" {
				args = "{}"
			}
			calls = append(calls, schema.ToolCall{
				ID:       call.ID,
				Type:     "function",
				Function: schema.FunctionCall{Name: call.Name, Arguments: args},
			})
		}
		return schema.AssistantMessage(msg.Content.String(), calls)
	case models.RoleTool:
		content := msg.Content.String()
		if content == "" {
			content = toolResultText(msg)
		}
		out := schema.ToolMessage(content, msg.AnsweredToolCallID())
		out.ToolName = msg.Name
		return out
	default:
		return nil
	}
}

func toolResultText(msg *models.Message) string {
	parts := make([]string, 0, len(msg.Content.Blocks))
	for _, block := range msg.Content.Blocks {
		if block.Type == models.ContentBlockToolResult && block.Text != "" {
			parts = append(parts, block.Text)
		}
	}
	return strings.Join(parts, "\n")
}

// fromSchemaMessage converts a model answer into an ai message with the given id.
func fromSchemaMessage(id string, msg *schema.Message) *models.Message {
	out := &models.Message{
		ID:         id,
		Role:       models.RoleAI,
		Content:    models.TextContent(msg.Content),
		Visibility: models.VisibilityRendered,
	}
	for _, call := range msg.ToolCalls {
		if call.ID == "" {
			continue
		}
		var args []byte
		if call.Function.Arguments != "" {
			args = []byte(call.Function.Arguments)
		}
		out.ToolCalls = append(out.ToolCalls, models.ToolCall{ID: call.ID, Name: call.Function.Name, Args: args})
	}
	if msg.ResponseMeta != nil && msg.ResponseMeta.Usage != nil {
		usage := msg.ResponseMeta.Usage
		total := usage.TotalTokens
		if total == 0 {
			total = usage.PromptTokens + usage.CompletionTokens
		}
		out.Usage = &models.UsageMetadata{
			InputTokens:  usage.PromptTokens,
			OutputTokens: usage.CompletionTokens,
			TotalTokens:  total,
		}
	}
	return out
}
