package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/zjregee/alterchat/internal/log"
	"github.com/zjregee/alterchat/internal/models"
	"github.com/zjregee/alterchat/internal/utils"
)

var (
	ErrEmptyInput      = errors.New("input is empty")
	ErrInvalidSettings = errors.New("invalid settings")
)

// Runtime streams the reply of an agent runtime for one request. The channel
// is closed when the run is over; cancelling ctx aborts the transport.
type Runtime interface {
	Stream(ctx context.Context, req *models.RunRequest) (<-chan models.RunEvent, error)
}

type Option func(*Controller)

func WithNotifier(notifier Notifier) Option {
	return func(c *Controller) {
		c.governor = NewGovernor(notifier)
	}
}

func WithLimits(limits models.Limits) Option {
	return func(c *Controller) {
		c.limits = limits
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) {
		c.logger = logger
	}
}

// WithListener registers a callback that receives the view after each change.
func WithListener(listener func(View)) Option {
	return func(c *Controller) {
		c.listener = listener
	}
}

// WithThreadListener is called when the runtime assigns a thread id.
func WithThreadListener(listener func(threadID string)) Option {
	return func(c *Controller) {
		c.onThread = listener
	}
}

// Controller owns one transcript and the stream session feeding it.
type Controller struct {
	runtime  Runtime
	store    *Store
	governor *Governor
	limits   models.Limits
	logger   *slog.Logger
	listener func(View)
	onThread func(string)

	mu        sync.Mutex
	threadID  string
	session   *Session
	interrupt *models.Interrupt
}

func NewController(runtime Runtime, opts ...Option) *Controller {
	c := &Controller{
		runtime: runtime,
		store:   NewStore(),
		limits:  models.DefaultLimits(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.governor == nil {
		c.governor = NewGovernor(nil)
	}
	if c.logger == nil {
		c.logger = log.NewModuleLogger("chat", "controller")
	}
	return c
}

func (c *Controller) Store() *Store {
	return c.store
}

func (c *Controller) Governor() *Governor {
	return c.governor
}

func (c *Controller) ThreadID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.threadID
}

func (c *Controller) Session() *Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

// Submit appends a human message optimistically and streams the reply.
// Transport failures do not fail Submit: they finish the session as errored
// and are reported through the governor, leaving the message in place.
func (c *Controller) Submit(ctx context.Context, input string, settings models.Settings) (*Session, error) {
	if strings.TrimSpace(input) == "" {
		return nil, ErrEmptyInput
	}

	human := &models.Message{
		ID:         utils.NewMessageID(),
		Role:       models.RoleHuman,
		Content:    models.TextContent(input),
		Visibility: models.VisibilityRendered,
	}
	return c.start(ctx, human, nil, settings)
}

// Regenerate truncates the transcript after checkpoint and resubmits it
// without a new human message.
func (c *Controller) Regenerate(ctx context.Context, checkpoint models.Checkpoint, settings models.Settings) (*Session, error) {
	return c.start(ctx, nil, &checkpoint, settings)
}

// CheckpointBefore returns the checkpoint to regenerate the ai message with the
// given id from: the closest human message preceding it.
func (c *Controller) CheckpointBefore(messageID string) (models.Checkpoint, error) {
	messages := c.store.Current()

	index := -1
	for i, msg := range messages {
		if msg.ID == messageID {
			index = i
			break
		}
	}
	if index == -1 {
		return models.Checkpoint{}, fmt.Errorf("%w: %s", ErrCheckpointNotFound, messageID)
	}
	if messages[index].Role == models.RoleHuman {
		return models.Checkpoint{}, fmt.Errorf("cannot regenerate human message %s", messageID)
	}

	for i := index - 1; i >= 0; i -= 1 {
		if messages[i].Role == models.RoleHuman {
			return models.Checkpoint{MessageID: messages[i].ID}, nil
		}
	}
	return models.Checkpoint{}, fmt.Errorf("%w: no human message before %s", ErrCheckpointNotFound, messageID)
}

// Stop aborts the active session. Whatever was merged so far stays.
func (c *Controller) Stop() bool {
	c.mu.Lock()
	session := c.session
	stopped := session != nil && session.finish(StateAborted, context.Canceled)
	c.mu.Unlock()

	c.governor.Stop()
	if stopped {
		c.logger.Info("stream session aborted", "session_id", session.ID())
		c.notify()
	}
	return stopped
}

// Load seeds the transcript from a persisted thread, aborting any stream.
func (c *Controller) Load(threadID string, messages []*models.Message) {
	c.mu.Lock()
	if c.session != nil {
		c.session.finish(StateAborted, context.Canceled)
	}
	c.governor.Stop()
	c.governor.Report(nil)
	c.session = nil
	c.interrupt = nil
	c.threadID = threadID
	c.store.Seed(messages)
	c.mu.Unlock()

	c.notify()
}

// Reset starts an empty, not yet persisted thread.
func (c *Controller) Reset() {
	c.Load("", nil)
}

func (c *Controller) start(ctx context.Context, human *models.Message, checkpoint *models.Checkpoint, settings models.Settings) (*Session, error) {
	if err := settings.Validate(c.limits); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSettings, err)
	}

	c.mu.Lock()

	if checkpoint != nil && checkpoint.MessageID != "" && c.store.IndexOf(checkpoint.MessageID) == -1 {
		c.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrCheckpointNotFound, checkpoint.MessageID)
	}

	if c.session != nil && c.session.finish(StateAborted, context.Canceled) {
		c.logger.Debug("superseding in-flight session", "session_id", c.session.ID())
	}
	// Fires the previous token before the next request can be sent.
	streamCtx, token := c.governor.Acquire(ctx)

	if checkpoint != nil {
		if err := c.store.ReplaceFrom(*checkpoint); err != nil {
			c.session = nil
			c.mu.Unlock()
			c.governor.Release(token)
			token.Cancel()
			c.notify()
			return nil, err
		}
	}

	existing := c.store.Current()
	synthesized := Reconcile(existing)
	newMessages := synthesized
	if human != nil {
		newMessages = append(newMessages, human)
	}

	outbound := make([]*models.Message, 0, len(existing)+len(newMessages))
	outbound = append(outbound, existing...)
	outbound = append(outbound, newMessages...)
	if err := Verify(outbound); err != nil {
		panic(err)
	}

	turnBase := len(existing)
	c.store.Append(newMessages...)

	optimisticIDs := make([]string, 0, len(newMessages))
	for _, msg := range newMessages {
		optimisticIDs = append(optimisticIDs, msg.ID)
	}

	session := newSession(token, turnBase, optimisticIDs)
	session.advance(StateSubmitting)
	c.session = session
	c.interrupt = nil
	c.governor.Report(nil)

	req := &models.RunRequest{
		ThreadID:    c.threadID,
		Messages:    models.CloneMessages(outbound),
		NewMessages: models.CloneMessages(newMessages),
		Context:     settings.Context(),
		Checkpoint:  checkpoint,
	}
	c.mu.Unlock()

	c.logger.Info("submitting run",
		"session_id", session.ID(),
		"thread_id", req.ThreadID,
		"messages", len(req.Messages),
		"model", req.Context.Model,
		"regenerate", checkpoint != nil,
	)
	c.notify()

	events, err := c.runtime.Stream(streamCtx, req)
	if err != nil {
		c.fail(session, err)
		return session, nil
	}

	go c.consume(session, events)
	return session, nil
}

func (c *Controller) fail(session *Session, err error) {
	c.mu.Lock()
	active := c.session == session && session.finish(StateErrored, err)
	c.mu.Unlock()

	c.governor.Release(session.token)
	session.token.Cancel()
	if !active {
		return
	}

	c.logger.Warn("stream session failed", "session_id", session.ID(), "error", err)
	c.governor.Report(err)
	c.notify()
}
