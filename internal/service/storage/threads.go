package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/zjregee/alterchat/internal/models"
)

const threadKeyPrefix = "thread:"

var ErrThreadNotFound = errors.New("thread not found")

// SaveThread writes the thread, stamping CreatedAt on first save and
// UpdatedAt on every save.
func (s *Store) SaveThread(ctx context.Context, thread *models.Thread) error {
	if thread == nil || thread.ID == "" {
		return fmt.Errorf("thread id is required")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	now := time.Now().UnixMilli()
	if thread.CreatedAt == 0 {
		thread.CreatedAt = now
	}
	thread.UpdatedAt = now

	data, err := json.Marshal(thread)
	if err != nil {
		return fmt.Errorf("failed to marshal thread %s: %w", thread.ID, err)
	}
	return s.put([]byte(threadKeyPrefix+thread.ID), data)
}

func (s *Store) GetThread(ctx context.Context, id string) (*models.Thread, error) {
	if id == "" {
		return nil, fmt.Errorf("thread id is required")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	value, err := s.get([]byte(threadKeyPrefix + id))
	if err != nil {
		return nil, err
	}
	if len(value) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrThreadNotFound, id)
	}

	var thread models.Thread
	if err := json.Unmarshal(value, &thread); err != nil {
		return nil, fmt.Errorf("failed to unmarshal thread %s: %w", id, err)
	}
	return &thread, nil
}

// ListThreads returns every thread, most recently updated first.
func (s *Store) ListThreads(ctx context.Context) ([]*models.Thread, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	entries, err := s.scan([]byte(threadKeyPrefix))
	if err != nil {
		return nil, err
	}

	threads := make([]*models.Thread, 0, len(entries))
	for key, value := range entries {
		if len(value) == 0 {
			continue
		}

		var thread models.Thread
		if err := json.Unmarshal(value, &thread); err != nil {
			return nil, fmt.Errorf("failed to unmarshal thread %s: %w", key, err)
		}
		if thread.ID == "" {
			continue
		}
		threads = append(threads, &thread)
	}

	sort.Slice(threads, func(i, j int) bool {
		if threads[i].UpdatedAt != threads[j].UpdatedAt {
			return threads[i].UpdatedAt > threads[j].UpdatedAt
		}
		return threads[i].ID < threads[j].ID
	})
	return threads, nil
}

func (s *Store) DeleteThread(ctx context.Context, id string) error {
	if id == "" {
		return fmt.Errorf("thread id is required")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	existed, err := s.remove([]byte(threadKeyPrefix + id))
	if err != nil {
		return err
	}
	if !existed {
		return fmt.Errorf("%w: %s", ErrThreadNotFound, id)
	}
	return nil
}
