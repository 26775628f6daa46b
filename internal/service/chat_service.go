package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/zjregee/alterchat/internal/config"
	"github.com/zjregee/alterchat/internal/log"
	"github.com/zjregee/alterchat/internal/models"
	"github.com/zjregee/alterchat/internal/service/chat"
	"github.com/zjregee/alterchat/internal/service/history"
	"github.com/zjregee/alterchat/internal/service/runtime"
	"github.com/zjregee/alterchat/internal/service/runtime/local"
	"github.com/zjregee/alterchat/internal/service/storage"
	"github.com/zjregee/alterchat/internal/service/threads"
)

const refreshTimeout = 30 * time.Second

type options struct {
	chatOpts   []chat.Option
	threadOpts []threads.Option
	runtime    chat.Runtime
	history    threads.HistoryService
	logger     *slog.Logger
}

type Option func(*options)

// WithChatOptions are passed to the chat controller after the defaults.
func WithChatOptions(opts ...chat.Option) Option {
	return func(o *options) {
		o.chatOpts = append(o.chatOpts, opts...)
	}
}

func WithThreadOptions(opts ...threads.Option) Option {
	return func(o *options) {
		o.threadOpts = append(o.threadOpts, opts...)
	}
}

// WithRuntime replaces the runtime selected by the configuration.
func WithRuntime(rt chat.Runtime) Option {
	return func(o *options) {
		o.runtime = rt
	}
}

// WithHistory replaces the history service selected by the configuration.
func WithHistory(service threads.HistoryService) Option {
	return func(o *options) {
		o.history = service
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// ChatService ties the chat controller to the thread list and the settings
// the next submission will use.
type ChatService struct {
	controller *chat.Controller
	threads    *threads.Sync
	registry   *local.Registry
	store      *storage.Store
	limits     models.Limits
	logger     *slog.Logger

	settingsMu sync.RWMutex
	settings   models.Settings
}

func NewChatService(cfg *config.Config, opts ...Option) (*ChatService, error) {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = log.NewModuleLogger("service", "chat")
	}

	s := &ChatService{
		registry: local.NewRegistry(cfg.Providers),
		limits:   cfg.Limits,
		settings: cfg.Settings,
		logger:   o.logger,
	}

	needStore := (o.runtime == nil && cfg.Runtime.Mode == config.ModeLocal) ||
		(o.history == nil && cfg.History.Mode == config.ModeLocal)
	if needStore {
		store, err := storage.Open(cfg.History.Path)
		if err != nil {
			return nil, err
		}
		s.store = store
	}

	rt := o.runtime
	if rt == nil {
		rt = s.newRuntime(cfg)
	}
	service := o.history
	if service == nil {
		service = s.newHistory(cfg)
	}

	chatOpts := append([]chat.Option{
		chat.WithLimits(cfg.Limits),
		chat.WithThreadListener(s.onThread),
	}, o.chatOpts...)
	s.controller = chat.NewController(rt, chatOpts...)
	s.threads = threads.NewSync(service, o.threadOpts...)

	s.logger.Info("chat service ready",
		"runtime", cfg.Runtime.Mode,
		"history", cfg.History.Mode,
		"model", cfg.Settings.Model,
	)
	return s, nil
}

func (s *ChatService) newRuntime(cfg *config.Config) chat.Runtime {
	if cfg.Runtime.Mode == config.ModeLocal {
		return local.New(s.registry,
			local.WithStore(s.store),
			local.WithStreaming(cfg.Runtime.Streaming()),
		)
	}
	return runtime.NewClient(cfg.Runtime.URL,
		runtime.WithAssistantID(cfg.Runtime.AssistantID),
		runtime.WithStreaming(cfg.Runtime.Streaming()),
		runtime.WithTimeout(cfg.Runtime.Timeout),
	)
}

func (s *ChatService) newHistory(cfg *config.Config) threads.HistoryService {
	if cfg.History.Mode == config.ModeLocal {
		return s.store
	}
	return history.NewClient(cfg.History.URL, history.WithGraphID(cfg.Runtime.AssistantID))
}

func (s *ChatService) Controller() *chat.Controller {
	return s.controller
}

func (s *ChatService) Threads() *threads.Sync {
	return s.threads
}

func (s *ChatService) ListModels() []*models.ModelInfo {
	return s.registry.ListModels()
}

func (s *ChatService) Settings() models.Settings {
	s.settingsMu.RLock()
	defer s.settingsMu.RUnlock()
	return s.settings
}

func (s *ChatService) UpdateSettings(settings models.Settings) error {
	if err := settings.Validate(s.limits); err != nil {
		return fmt.Errorf("%w: %v", chat.ErrInvalidSettings, err)
	}

	s.settingsMu.Lock()
	s.settings = settings
	s.settingsMu.Unlock()
	return nil
}

// Send submits user input with the current settings. ctx bounds the stream.
func (s *ChatService) Send(ctx context.Context, input string) (*chat.Session, error) {
	return s.controller.Submit(ctx, input, s.Settings())
}

// Regenerate replays the turn that produced the given ai message.
func (s *ChatService) Regenerate(ctx context.Context, messageID string) (*chat.Session, error) {
	checkpoint, err := s.controller.CheckpointBefore(messageID)
	if err != nil {
		return nil, err
	}
	return s.controller.Regenerate(ctx, checkpoint, s.Settings())
}

func (s *ChatService) Stop() bool {
	return s.controller.Stop()
}

func (s *ChatService) NewThread() {
	s.controller.Reset()
	s.threads.Select("")
}

// SelectThread loads a persisted thread into the controller.
func (s *ChatService) SelectThread(ctx context.Context, id string) error {
	thread, err := s.threads.Load(ctx, id)
	if err != nil {
		return err
	}
	s.controller.Load(thread.ID, thread.Values.Messages)
	return nil
}

func (s *ChatService) RefreshThreads(ctx context.Context) ([]*models.Thread, error) {
	return s.threads.Refresh(ctx)
}

// DeleteThread deletes a thread and, when it is the open one, starts over.
func (s *ChatService) DeleteThread(ctx context.Context, id string) error {
	if err := s.threads.Delete(ctx, id); err != nil {
		return err
	}
	if s.controller.ThreadID() == id {
		s.controller.Reset()
	}
	return nil
}

func (s *ChatService) Close() error {
	if s.store == nil {
		return nil
	}
	return s.store.Close()
}

// onThread selects a thread the runtime just created and reloads the list so
// it shows up.
func (s *ChatService) onThread(threadID string) {
	s.threads.Select(threadID)

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), refreshTimeout)
		defer cancel()
		if _, err := s.threads.Refresh(ctx); err != nil {
			s.logger.Debug("thread list refresh failed", "thread_id", threadID, "error", err)
		}
	}()
}
