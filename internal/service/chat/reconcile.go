package chat

import (
	"errors"
	"fmt"

	"github.com/zjregee/alterchat/internal/models"
	"github.com/zjregee/alterchat/internal/utils"
)

const handledToolCallContent = "Successfully handled tool call."

var ErrUnansweredToolCall = errors.New("tool call without response")

// Reconcile returns one internal tool message for every tool call that no
// later tool message answers. Order follows the ai messages and, within each,
// the order its tool calls were emitted.
func Reconcile(messages []*models.Message) []*models.Message {
	var synthesized []*models.Message

	for i, msg := range messages {
		if msg == nil || msg.Role != models.RoleAI {
			continue
		}

		calls := msg.AllToolCalls()
		if len(calls) == 0 {
			continue
		}

		answered := answeredAfter(messages, i)
		for _, call := range calls {
			if _, ok := answered[call.ID]; ok {
				continue
			}
			synthesized = append(synthesized, &models.Message{
				ID:         utils.NewMessageID(),
				Role:       models.RoleTool,
				Content:    models.TextContent(handledToolCallContent),
				ToolCallID: call.ID,
				Name:       call.Name,
				Visibility: models.VisibilityInternal,
			})
		}
	}

	return synthesized
}

// Reconciled is messages followed by whatever Reconcile synthesizes.
func Reconciled(messages []*models.Message) []*models.Message {
	synthesized := Reconcile(messages)
	out := make([]*models.Message, 0, len(messages)+len(synthesized))
	out = append(out, messages...)
	return append(out, synthesized...)
}

// Verify checks that every tool call is answered exactly once by a later tool
// message.
func Verify(messages []*models.Message) error {
	for i, msg := range messages {
		if msg == nil || msg.Role != models.RoleAI {
			continue
		}
		for _, id := range msg.ToolCallIDs() {
			count := 0
			for _, later := range messages[i+1:] {
				if later != nil && later.AnsweredToolCallID() == id {
					count += 1
				}
			}
			if count != 1 {
				return fmt.Errorf("%w: %s answered %d times", ErrUnansweredToolCall, id, count)
			}
		}
	}
	return nil
}

func answeredAfter(messages []*models.Message, index int) map[string]struct{} {
	answered := make(map[string]struct{})
	for _, msg := range messages[index+1:] {
		if msg == nil {
			continue
		}
		if id := msg.AnsweredToolCallID(); id != "" {
			answered[id] = struct{}{}
		}
	}
	return answered
}
