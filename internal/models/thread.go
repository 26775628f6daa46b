package models

type ThreadValues struct {
	Messages []*Message `json:"messages,omitempty"`
}

type Thread struct {
	ID        string       `json:"thread_id"`
	Values    ThreadValues `json:"values"`
	CreatedAt int64        `json:"created_at"`
	UpdatedAt int64        `json:"updated_at"`
}

// FirstMessageText is what thread lists show in place of a title.
func (t *Thread) FirstMessageText() string {
	for _, msg := range t.Values.Messages {
		if msg == nil || msg.IsInternal() {
			continue
		}
		if text := msg.Content.String(); text != "" {
			return text
		}
	}
	return ""
}

// ThreadInfo is the list entry shown for a thread.
type ThreadInfo struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	CreatedAt int64  `json:"created_at"`
	UpdatedAt int64  `json:"updated_at"`
}
