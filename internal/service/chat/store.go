package chat

import (
	"errors"
	"fmt"
	"sync"

	"github.com/zjregee/alterchat/internal/models"
)

var ErrCheckpointNotFound = errors.New("checkpoint not found")

// Store is the ordered transcript. Duplicate ids are programming errors and
// panic; every accessor hands out copies.
type Store struct {
	mu       sync.RWMutex
	messages []*models.Message
	index    map[string]int
}

func NewStore(messages ...*models.Message) *Store {
	s := &Store{index: make(map[string]int)}
	s.appendLocked(messages)
	return s
}

func (s *Store) Append(messages ...*models.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appendLocked(messages)
}

// Upsert replaces the message with the same id in place or appends it. It
// reports whether the message was new.
func (s *Store) Upsert(msg *models.Message) bool {
	if msg == nil {
		return false
	}
	if msg.ID == "" {
		panic("chat: message without id")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if i, ok := s.index[msg.ID]; ok {
		s.messages[i] = msg.Clone()
		return false
	}
	s.appendLocked([]*models.Message{msg})
	return true
}

// ReplaceFrom drops every message after the checkpoint and appends messages.
func (s *Store) ReplaceFrom(checkpoint models.Checkpoint, messages ...*models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cut := 0
	if checkpoint.MessageID != "" {
		i, ok := s.index[checkpoint.MessageID]
		if !ok {
			return fmt.Errorf("%w: %s", ErrCheckpointNotFound, checkpoint.MessageID)
		}
		cut = i + 1
	}

	for _, msg := range s.messages[cut:] {
		delete(s.index, msg.ID)
	}
	s.messages = s.messages[:cut:cut]
	s.appendLocked(messages)
	return nil
}

// Seed replaces the whole transcript, used when switching threads.
func (s *Store) Seed(messages []*models.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.messages = nil
	s.index = make(map[string]int, len(messages))
	s.appendLocked(messages)
}

func (s *Store) Current() []*models.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return models.CloneMessages(s.messages)
}

// Rendered is the read-side projection shown to users.
func (s *Store) Rendered() []*models.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return renderable(s.messages)
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.messages)
}

func (s *Store) IndexOf(id string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i, ok := s.index[id]; ok {
		return i
	}
	return -1
}

func (s *Store) Get(id string) *models.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i, ok := s.index[id]; ok {
		return s.messages[i].Clone()
	}
	return nil
}

func (s *Store) Last() *models.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.messages) == 0 {
		return nil
	}
	return s.messages[len(s.messages)-1].Clone()
}

func (s *Store) appendLocked(messages []*models.Message) {
	for _, msg := range messages {
		if msg == nil {
			continue
		}
		if msg.ID == "" {
			panic("chat: message without id")
		}
		if _, ok := s.index[msg.ID]; ok {
			panic(fmt.Sprintf("chat: duplicate message id %q", msg.ID))
		}
		s.index[msg.ID] = len(s.messages)
		s.messages = append(s.messages, msg.Clone())
	}
}

func renderable(messages []*models.Message) []*models.Message {
	out := make([]*models.Message, 0, len(messages))
	for _, msg := range messages {
		if msg.IsInternal() {
			continue
		}
		out = append(out, msg.Clone())
	}
	return out
}
