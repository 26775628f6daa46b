package app

import (
	"context"
	"log/slog"
	"sync"

	"github.com/wailsapp/wails/v2/pkg/runtime"

	"github.com/zjregee/alterchat/internal/config"
	"github.com/zjregee/alterchat/internal/log"
	"github.com/zjregee/alterchat/internal/models"
	"github.com/zjregee/alterchat/internal/service"
	"github.com/zjregee/alterchat/internal/service/chat"
	"github.com/zjregee/alterchat/internal/service/threads"
)

const (
	EventChatView       = "chat:view"
	EventChatError      = "chat:error"
	EventThreadsUpdated = "threads:updated"
)

type emitFunc func(ctx context.Context, eventName string, optionalData ...any)

type App struct {
	ctx           context.Context
	ctxMu         sync.RWMutex
	service       *service.ChatService
	threadOrder   []string
	threadOrderMu sync.RWMutex
	emit          emitFunc
	logger        *slog.Logger
}

func NewApp(cfg *config.Config) (*App, error) {
	return newApp(cfg, runtime.EventsEmit)
}

func newApp(cfg *config.Config, emit emitFunc, opts ...service.Option) (*App, error) {
	a := &App{
		threadOrder: []string{},
		emit:        emit,
		logger:      log.NewModuleLogger("app", "wails"),
	}

	opts = append([]service.Option{
		service.WithChatOptions(
			chat.WithListener(a.onView),
			chat.WithNotifier(chat.NotifierFunc(a.onError)),
		),
		service.WithThreadOptions(threads.WithListener(a.onThreads)),
	}, opts...)

	svc, err := service.NewChatService(cfg, opts...)
	if err != nil {
		return nil, err
	}
	a.service = svc
	return a, nil
}

func (a *App) Startup(ctx context.Context) {
	a.ctxMu.Lock()
	a.ctx = ctx
	a.ctxMu.Unlock()

	go func() {
		if _, err := a.service.RefreshThreads(ctx); err != nil {
			a.logger.Warn("initial thread refresh failed", "error", err)
		}
	}()
}

func (a *App) Shutdown(ctx context.Context) {
	a.service.Stop()
	if err := a.service.Close(); err != nil {
		a.logger.Warn("failed to close storage", "error", err)
	}
}

func (a *App) context() context.Context {
	a.ctxMu.RLock()
	defer a.ctxMu.RUnlock()
	return a.ctx
}

// publish is a no-op until the window has started.
func (a *App) publish(eventName string, data any) {
	ctx := a.context()
	if ctx == nil {
		return
	}
	a.emit(ctx, eventName, data)
}

func (a *App) onView(view chat.View) {
	a.publish(EventChatView, presentView(view))
}

func (a *App) onError(message string) {
	a.publish(EventChatError, map[string]string{
		"type":    "error",
		"content": formatThreadMessage(message),
	})
}

func (a *App) onThreads(list []*models.Thread) {
	a.publish(EventThreadsUpdated, a.orderThreadInfos(list))
}
