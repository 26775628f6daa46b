package app

import (
	"fmt"

	"github.com/zjregee/alterchat/internal/models"
)

func (a *App) NewThread() {
	a.service.NewThread()
}

func (a *App) ListThreads() []*models.ThreadInfo {
	return a.orderThreadInfos(a.service.Threads().Threads())
}

func (a *App) RefreshThreads() ([]*models.ThreadInfo, error) {
	list, err := a.service.RefreshThreads(a.streamContext())
	if err != nil {
		return nil, err
	}
	return a.orderThreadInfos(list), nil
}

func (a *App) SelectThread(threadID string) error {
	if threadID == "" {
		return fmt.Errorf("thread ID is required")
	}
	return a.service.SelectThread(a.streamContext(), threadID)
}

func (a *App) DeleteThread(threadID string) error {
	if threadID == "" {
		return fmt.Errorf("thread ID is required")
	}
	if err := a.service.DeleteThread(a.streamContext(), threadID); err != nil {
		return err
	}

	a.threadOrderMu.Lock()
	for i, id := range a.threadOrder {
		if id == threadID {
			a.threadOrder = append(a.threadOrder[:i], a.threadOrder[i+1:]...)
			break
		}
	}
	a.threadOrderMu.Unlock()

	return nil
}

func (a *App) ReorderThreads(order []string) error {
	list := a.service.Threads().Threads()
	if len(order) != len(list) {
		return fmt.Errorf("invalid order length: expected %d, got %d", len(list), len(order))
	}

	exists := make(map[string]struct{}, len(list))
	for _, thread := range list {
		exists[thread.ID] = struct{}{}
	}

	seen := make(map[string]bool, len(order))
	for _, id := range order {
		if _, ok := exists[id]; !ok {
			return fmt.Errorf("thread not found: %s", id)
		}
		if seen[id] {
			return fmt.Errorf("duplicate thread ID in order: %s", id)
		}

		seen[id] = true
	}

	a.threadOrderMu.Lock()
	a.threadOrder = append([]string(nil), order...)
	a.threadOrderMu.Unlock()

	return nil
}

func (a *App) orderThreadInfos(list []*models.Thread) []*models.ThreadInfo {
	infos := make([]*models.ThreadInfo, 0, len(list))
	for _, thread := range list {
		infos = append(infos, threadInfo(thread))
	}

	a.threadOrderMu.Lock()
	defer a.threadOrderMu.Unlock()
	a.syncThreadOrder(infos)
	return a.orderedThreads(infos)
}

func threadInfo(thread *models.Thread) *models.ThreadInfo {
	return &models.ThreadInfo{
		ID:        thread.ID,
		Title:     formatThreadTitle(thread.FirstMessageText()),
		CreatedAt: thread.CreatedAt,
		UpdatedAt: thread.UpdatedAt,
	}
}

// syncThreadOrder keeps the user's order for known threads and appends new
// ones in list order.
func (a *App) syncThreadOrder(threads []*models.ThreadInfo) {
	if len(threads) == 0 {
		a.threadOrder = []string{}
		return
	}

	exists := make(map[string]struct{}, len(threads))
	for _, thread := range threads {
		exists[thread.ID] = struct{}{}
	}

	filtered := make([]string, 0, len(a.threadOrder))
	seen := make(map[string]struct{}, len(threads))
	for _, id := range a.threadOrder {
		if _, ok := exists[id]; ok {
			filtered = append(filtered, id)
			seen[id] = struct{}{}
		}
	}

	for _, thread := range threads {
		if _, ok := seen[thread.ID]; !ok {
			filtered = append(filtered, thread.ID)
		}
	}

	a.threadOrder = filtered
}

func (a *App) orderedThreads(threads []*models.ThreadInfo) []*models.ThreadInfo {
	if len(threads) == 0 {
		return []*models.ThreadInfo{}
	}

	byID := make(map[string]*models.ThreadInfo, len(threads))
	for _, thread := range threads {
		byID[thread.ID] = thread
	}

	ordered := make([]*models.ThreadInfo, 0, len(threads))
	for _, id := range a.threadOrder {
		if thread, ok := byID[id]; ok {
			ordered = append(ordered, thread)
		}
	}

	return ordered
}
