package chat

import (
	"context"
	"sync"
)

// Notifier receives user-facing error notifications.
type Notifier interface {
	NotifyError(message string)
}

type NotifierFunc func(message string)

func (f NotifierFunc) NotifyError(message string) {
	f(message)
}

// CancelToken is the abort handle of one stream session.
type CancelToken struct {
	id     uint64
	cancel context.CancelFunc
}

func (t *CancelToken) Cancel() {
	if t != nil && t.cancel != nil {
		t.cancel()
	}
}

// Governor de-duplicates error notifications and owns the single active
// cancellation token.
type Governor struct {
	mu        sync.Mutex
	notifier  Notifier
	lastError string
	hasError  bool
	active    *CancelToken
	nextID    uint64
}

func NewGovernor(notifier Notifier) *Governor {
	return &Governor{notifier: notifier}
}

// Report notifies only when the error message differs from the last one. A
// nil error clears the memory. It reports whether a notification was sent.
func (g *Governor) Report(err error) bool {
	g.mu.Lock()
	if err == nil {
		g.lastError = ""
		g.hasError = false
		g.mu.Unlock()
		return false
	}

	message := err.Error()
	if message == "" || (g.hasError && g.lastError == message) {
		g.mu.Unlock()
		return false
	}
	g.lastError = message
	g.hasError = true
	notifier := g.notifier
	g.mu.Unlock()

	if notifier != nil {
		notifier.NotifyError(message)
	}
	return true
}

func (g *Governor) LastError() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.lastError
}

// Acquire fires the previous token, if any, and returns a new one bound to ctx.
func (g *Governor) Acquire(ctx context.Context) (context.Context, *CancelToken) {
	streamCtx, cancel := context.WithCancel(ctx)

	g.mu.Lock()
	previous := g.active
	g.nextID += 1
	token := &CancelToken{id: g.nextID, cancel: cancel}
	g.active = token
	g.mu.Unlock()

	previous.Cancel()
	return streamCtx, token
}

// Release forgets token if it is still the active one.
func (g *Governor) Release(token *CancelToken) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.active != nil && token != nil && g.active.id == token.id {
		g.active = nil
	}
}

// Stop fires the active token. It reports whether anything was running.
func (g *Governor) Stop() bool {
	g.mu.Lock()
	token := g.active
	g.active = nil
	g.mu.Unlock()

	if token == nil {
		return false
	}
	token.Cancel()
	return true
}
