package local

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/zjregee/alterchat/internal/models"
)

const summaryPrompt = "Summarize the conversation above in a few sentences. Keep names, numbers and decisions."

// window is the model input chosen by a messages strategy. Summary, when set,
// stands in for the messages that were left out.
type window struct {
	Messages []*models.Message
	Summary  string
}

// selectWindow applies the messages strategy to the transcript. A strategy
// number of zero or less keeps everything.
func selectWindow(ctx context.Context, chatModel model.BaseChatModel, messages []*models.Message, genCtx models.GenerationContext) (window, error) {
	n := genCtx.StrategyNumber
	if n <= 0 || len(messages) == 0 {
		return window{Messages: messages}, nil
	}

	switch genCtx.MessagesStrategy {
	case models.MessagesStrategyDelete, "":
		return window{Messages: dropOrphanToolMessages(lastN(messages, n))}, nil
	case models.MessagesStrategyTrimCount:
		return window{Messages: startOnHuman(lastN(messages, n))}, nil
	case models.MessagesStrategyTrimTokens:
		kept, err := lastWithinTokens(messages, n)
		if err != nil {
			return window{}, err
		}
		return window{Messages: startOnHuman(kept)}, nil
	case models.MessagesStrategySummarize:
		return summarize(ctx, chatModel, messages, n)
	default:
		return window{}, fmt.Errorf("unknown messages strategy: %q", genCtx.MessagesStrategy)
	}
}

func lastN(messages []*models.Message, n int) []*models.Message {
	if n >= len(messages) {
		return messages
	}
	return messages[len(messages)-n:]
}

// dropOrphanToolMessages removes leading tool messages whose call was cut off.
func dropOrphanToolMessages(messages []*models.Message) []*models.Message {
	for len(messages) > 1 && messages[0].Role == models.RoleTool {
		messages = messages[1:]
	}
	return messages
}

// startOnHuman drops leading messages until a human message opens the window.
// The last message is always kept.
func startOnHuman(messages []*models.Message) []*models.Message {
	for i, msg := range messages {
		if msg.Role == models.RoleHuman {
			return messages[i:]
		}
	}
	return dropOrphanToolMessages(lastN(messages, 1))
}

func lastWithinTokens(messages []*models.Message, limit int) ([]*models.Message, error) {
	total := 0
	start := len(messages)
	for i := len(messages) - 1; i >= 0; i -= 1 {
		tokens, err := messageTokens(messages[i])
		if err != nil {
			return nil, fmt.Errorf("failed to count tokens: %w", err)
		}
		if total+tokens > limit && start < len(messages) {
			break
		}
		total += tokens
		start = i
	}
	return messages[start:], nil
}

// summarize keeps the last n messages and condenses the rest with one model
// call.
func summarize(ctx context.Context, chatModel model.BaseChatModel, messages []*models.Message, n int) (window, error) {
	if len(messages) <= n {
		return window{Messages: messages}, nil
	}

	kept := startOnHuman(lastN(messages, n))
	older := messages[:len(messages)-len(kept)]

	input := append(toSchemaMessages(older), schema.UserMessage(summaryPrompt))
	response, err := chatModel.Generate(ctx, input)
	if err != nil {
		return window{}, fmt.Errorf("failed to summarize conversation: %w", err)
	}

	return window{Messages: kept, Summary: strings.TrimSpace(response.Content)}, nil
}
