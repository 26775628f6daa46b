package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/zjregee/alterchat/internal/models"
	"github.com/zjregee/alterchat/internal/service/chat"
)

func (a *App) streamContext() context.Context {
	if ctx := a.context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

// SendMessage submits user input. The reply arrives through chat:view events.
func (a *App) SendMessage(input string) error {
	if strings.TrimSpace(input) == "" {
		return fmt.Errorf("user input is required")
	}

	_, err := a.service.Send(a.streamContext(), input)
	return err
}

// RegenerateMessage replays the turn that produced the given ai message.
func (a *App) RegenerateMessage(messageID string) error {
	if messageID == "" {
		return fmt.Errorf("message ID is required")
	}

	_, err := a.service.Regenerate(a.streamContext(), messageID)
	return err
}

func (a *App) StopGeneration() bool {
	return a.service.Stop()
}

func (a *App) GetView() chat.View {
	return presentView(a.service.Controller().View())
}

func (a *App) GetSettings() models.Settings {
	return a.service.Settings()
}

func (a *App) UpdateSettings(settings models.Settings) error {
	return a.service.UpdateSettings(settings)
}

func (a *App) ListModels() []*models.ModelInfo {
	return a.service.ListModels()
}

// presentView spaces mixed Han and Latin text in ai replies. Messages are
// copied before they are touched.
func presentView(view chat.View) chat.View {
	messages := make([]*models.Message, 0, len(view.Messages))
	for _, msg := range view.Messages {
		if msg.Role == models.RoleAI && len(msg.Content.Blocks) == 0 && msg.Content.Text != "" {
			msg = msg.Clone()
			msg.Content.Text = formatThreadMessage(msg.Content.Text)
		}
		messages = append(messages, msg)
	}
	view.Messages = messages
	if view.Error != "" {
		view.Error = formatThreadMessage(view.Error)
	}
	return view
}
