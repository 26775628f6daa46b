package chat

import (
	"github.com/zjregee/alterchat/internal/models"
)

// View is everything a renderer needs to draw the transcript.
type View struct {
	ThreadID string            `json:"thread_id"`
	Messages []*models.Message `json:"messages"`
	State    SessionState      `json:"state"`
	Loading  bool              `json:"loading"`

	FirstTokenReceived     bool `json:"first_token_received"`
	ShowLoadingPlaceholder bool `json:"show_loading_placeholder"`

	Interrupt *models.Interrupt `json:"interrupt,omitempty"`
	// ShowInterruptPlaceholder asks for an interactive assistant entry with no
	// backing message: the run paused before producing any ai or tool message.
	ShowInterruptPlaceholder bool `json:"show_interrupt_placeholder"`

	LastUsage *models.UsageMetadata `json:"last_usage,omitempty"`
	Error     string                `json:"error,omitempty"`
}

func (c *Controller) View() View {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.viewLocked()
}

func (c *Controller) viewLocked() View {
	messages := c.store.Current()

	view := View{
		ThreadID: c.threadID,
		Messages: renderable(messages),
		State:    StateIdle,
		Error:    c.governor.LastError(),
	}

	if c.session != nil {
		view.State = c.session.State()
		view.Loading = !view.State.Terminal()
		view.FirstTokenReceived = c.session.FirstTokenReceived()
	}
	view.ShowLoadingPlaceholder = view.Loading && !view.FirstTokenReceived

	if c.interrupt != nil {
		interrupt := *c.interrupt
		view.Interrupt = &interrupt
		view.ShowInterruptPlaceholder = !hasAIOrToolMessage(messages)
	}

	for i := len(messages) - 1; i >= 0; i -= 1 {
		if messages[i].Role == models.RoleAI {
			view.LastUsage = messages[i].Usage
			break
		}
	}

	return view
}

func (c *Controller) notify() {
	if c.listener == nil {
		return
	}
	c.listener(c.View())
}

func hasAIOrToolMessage(messages []*models.Message) bool {
	for _, msg := range messages {
		if msg.Role == models.RoleAI || msg.Role == models.RoleTool {
			return true
		}
	}
	return false
}
