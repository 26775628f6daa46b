package threads

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/zjregee/alterchat/internal/log"
	"github.com/zjregee/alterchat/internal/models"
)

// HistoryService is the external store of persisted threads.
type HistoryService interface {
	ListThreads(ctx context.Context) ([]*models.Thread, error)
	GetThread(ctx context.Context, id string) (*models.Thread, error)
	DeleteThread(ctx context.Context, id string) error
}

type Option func(*Sync)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Sync) {
		s.logger = logger
	}
}

// WithListener is called with the new list whenever it changes.
func WithListener(listener func([]*models.Thread)) Option {
	return func(s *Sync) {
		s.listener = listener
	}
}

// Sync mirrors the thread list of a HistoryService and tracks the selected
// thread. Failed service calls never touch local state.
type Sync struct {
	service  HistoryService
	logger   *slog.Logger
	listener func([]*models.Thread)
	group    singleflight.Group

	mu       sync.RWMutex
	threads  []*models.Thread
	selected string

	// stamp orders fetches and deletes; applied is the stamp of the state
	// currently held in threads.
	stamp   uint64
	applied uint64
}

func NewSync(service HistoryService, opts ...Option) *Sync {
	s := &Sync{service: service}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = log.NewModuleLogger("threads", "sync")
	}
	return s
}

const refreshKey = "threads"

// Refresh reloads the list. Concurrent calls share one request, and each
// caller stops waiting when its own ctx ends.
func (s *Sync) Refresh(ctx context.Context) ([]*models.Thread, error) {
	return s.refresh(ctx, false)
}

func (s *Sync) refresh(ctx context.Context, fresh bool) ([]*models.Thread, error) {
	if fresh {
		s.group.Forget(refreshKey)
	}

	fetchCtx := context.WithoutCancel(ctx)
	ch := s.group.DoChan(refreshKey, func() (any, error) {
		return s.fetch(fetchCtx)
	})

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("failed to list threads: %w", ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			s.logger.Warn("failed to list threads", "error", res.Err)
			return nil, fmt.Errorf("failed to list threads: %w", res.Err)
		}
		s.logger.Debug("threads refreshed", "count", len(res.Val.([]*models.Thread)), "shared", res.Shared)
		return s.Threads(), nil
	}
}

// fetch stores the service list unless a later fetch or a delete has been
// applied since it started.
func (s *Sync) fetch(ctx context.Context) (any, error) {
	s.mu.Lock()
	s.stamp += 1
	stamp := s.stamp
	s.mu.Unlock()

	threads, err := s.service.ListThreads(ctx)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	if applied := s.applied; stamp < applied {
		s.mu.Unlock()
		s.logger.Debug("dropping stale thread list", "stamp", stamp, "applied", applied)
		return threads, nil
	}
	s.applied = stamp
	s.threads = threads
	s.mu.Unlock()

	s.notify()
	return threads, nil
}

// Delete removes the thread remotely first. Only on success is it dropped
// from the local list, the selection cleared if it pointed at it, and the
// list refreshed. Lists fetched before the delete completed are discarded.
func (s *Sync) Delete(ctx context.Context, id string) error {
	if id == "" {
		return fmt.Errorf("thread id is required")
	}

	if err := s.service.DeleteThread(ctx, id); err != nil {
		s.logger.Warn("failed to delete thread", "thread_id", id, "error", err)
		return fmt.Errorf("failed to delete thread %s: %w", id, err)
	}

	s.mu.Lock()
	s.stamp += 1
	s.applied = s.stamp
	kept := make([]*models.Thread, 0, len(s.threads))
	for _, thread := range s.threads {
		if thread.ID != id {
			kept = append(kept, thread)
		}
	}
	s.threads = kept
	if s.selected == id {
		s.selected = ""
	}
	s.mu.Unlock()

	s.logger.Info("thread deleted", "thread_id", id)
	s.notify()

	if _, err := s.refresh(ctx, true); err != nil {
		s.logger.Warn("refresh after delete failed", "thread_id", id, "error", err)
	}
	return nil
}

// Load fetches a thread transcript and selects it.
func (s *Sync) Load(ctx context.Context, id string) (*models.Thread, error) {
	if id == "" {
		return nil, fmt.Errorf("thread id is required")
	}

	thread, err := s.service.GetThread(ctx, id)
	if err != nil {
		s.logger.Warn("failed to load thread", "thread_id", id, "error", err)
		return nil, fmt.Errorf("failed to load thread %s: %w", id, err)
	}

	s.Select(id)
	return thread, nil
}

func (s *Sync) Select(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selected = id
}

func (s *Sync) Selected() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.selected
}

func (s *Sync) Threads() []*models.Thread {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]*models.Thread(nil), s.threads...)
}

func (s *Sync) notify() {
	if s.listener != nil {
		s.listener(s.Threads())
	}
}
