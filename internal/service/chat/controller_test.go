package chat

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zjregee/alterchat/internal/log"
	"github.com/zjregee/alterchat/internal/models"
)

type fakeRuntime struct {
	mu       sync.Mutex
	requests []*models.RunRequest
	contexts []context.Context
	streams  []chan models.RunEvent
	err      error
	onStream func(ctx context.Context, req *models.RunRequest)
}

func (r *fakeRuntime) Stream(ctx context.Context, req *models.RunRequest) (<-chan models.RunEvent, error) {
	if r.onStream != nil {
		r.onStream(ctx, req)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.requests = append(r.requests, req)
	r.contexts = append(r.contexts, ctx)
	if r.err != nil {
		return nil, r.err
	}
	ch := make(chan models.RunEvent)
	r.streams = append(r.streams, ch)
	return ch, nil
}

func (r *fakeRuntime) request(i int) *models.RunRequest {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.requests[i]
}

func (r *fakeRuntime) stream(i int) chan models.RunEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.streams[i]
}

func (r *fakeRuntime) context(i int) context.Context {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.contexts[i]
}

// send blocks until the controller picked the event up. Events are applied in
// order, so a returned send means every earlier event has been merged.
func send(t *testing.T, ch chan models.RunEvent, event models.RunEvent) {
	t.Helper()
	select {
	case ch <- event:
	case <-time.After(2 * time.Second):
		t.Fatalf("event %s was not consumed", event.GetType())
	}
}

// flush makes sure every event sent before it has been fully applied.
func flush(t *testing.T, ch chan models.RunEvent) {
	t.Helper()
	send(t, ch, models.RunMetadata{})
}

func waitDone(t *testing.T, session *Session) {
	t.Helper()
	select {
	case <-session.Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("session %s did not finish", session.ID())
	}
}

func newTestController(rt Runtime, opts ...Option) *Controller {
	opts = append([]Option{WithLogger(log.Discard())}, opts...)
	return NewController(rt, opts...)
}

func testSettings() models.Settings {
	settings := models.DefaultSettings()
	settings.Temperature = 0.7
	settings.MaxTokens = 100
	return settings
}

func TestSubmitHelloScenario(t *testing.T) {
	rt := &fakeRuntime{}
	var threads []string
	c := newTestController(rt, WithThreadListener(func(threadID string) {
		threads = append(threads, threadID)
	}))

	session, err := c.Submit(context.Background(), "Hello", testSettings())
	require.NoError(t, err)

	current := c.Store().Current()
	require.Len(t, current, 1)
	human := current[0]
	assert.Equal(t, models.RoleHuman, human.Role)
	assert.Equal(t, "Hello", human.Content.String())
	assert.Equal(t, []string{human.ID}, session.Pending())

	req := rt.request(0)
	assert.Equal(t, 0.7, req.Context.Temperature)
	assert.Equal(t, 100, req.Context.MaxTokens)
	assert.Equal(t, []string{human.ID}, ids(req.Messages))
	assert.Equal(t, []string{human.ID}, ids(req.NewMessages))
	assert.Nil(t, req.Checkpoint)

	usage := &models.UsageMetadata{InputTokens: 5, OutputTokens: 3, TotalTokens: 8}
	ch := rt.stream(0)
	send(t, ch, models.RunMetadata{ThreadID: "thread-1", RunID: "run-1"})
	send(t, ch, models.RunValues{Messages: []*models.Message{
		textMessage(human.ID, models.RoleHuman, "Hello"),
		{ID: "ai-1", Role: models.RoleAI, Content: models.TextContent("Hi!"), Usage: usage},
	}})
	send(t, ch, models.RunEnd{})
	waitDone(t, session)

	assert.Equal(t, StateComplete, session.State())
	assert.Equal(t, []string{human.ID, "ai-1"}, ids(c.Store().Current()))
	assert.Equal(t, usage, c.Store().Get("ai-1").Usage)
	assert.Empty(t, session.Pending())
	assert.True(t, session.FirstTokenReceived())

	view := c.View()
	assert.Equal(t, "thread-1", view.ThreadID)
	assert.Equal(t, usage, view.LastUsage)
	assert.False(t, view.Loading)
	assert.Equal(t, []string{"thread-1"}, threads)
}

func TestSubmitRejectsBadInput(t *testing.T) {
	rt := &fakeRuntime{}
	c := newTestController(rt)

	_, err := c.Submit(context.Background(), "   ", testSettings())
	require.ErrorIs(t, err, ErrEmptyInput)

	settings := testSettings()
	settings.Temperature = 2.5
	_, err = c.Submit(context.Background(), "hi", settings)
	require.ErrorIs(t, err, ErrInvalidSettings)

	settings = testSettings()
	settings.MaxTokens = 5
	_, err = c.Submit(context.Background(), "hi", settings)
	require.ErrorIs(t, err, ErrInvalidSettings)

	assert.Equal(t, 0, c.Store().Len())
	assert.Empty(t, rt.requests)
}

func TestOptimisticMessageSurvivesTransportFailure(t *testing.T) {
	notifier := &recordingNotifier{}
	rt := &fakeRuntime{err: errors.New("connection refused")}
	c := newTestController(rt, WithNotifier(notifier))

	session, err := c.Submit(context.Background(), "Hello", testSettings())
	require.NoError(t, err)

	assert.Equal(t, StateErrored, session.State())
	assert.EqualError(t, session.Err(), "connection refused")
	require.Equal(t, 1, c.Store().Len())
	assert.Equal(t, "Hello", c.Store().Last().Content.String())
	assert.Equal(t, []string{"connection refused"}, notifier.messages)
	assert.Equal(t, "connection refused", c.View().Error)
}

func TestOptimisticMessageSurvivesRunError(t *testing.T) {
	notifier := &recordingNotifier{}
	rt := &fakeRuntime{}
	c := newTestController(rt, WithNotifier(notifier))

	session, err := c.Submit(context.Background(), "Hello", testSettings())
	require.NoError(t, err)

	send(t, rt.stream(0), models.RunError{Error: "status 500"})
	waitDone(t, session)
	flush(t, rt.stream(0))

	assert.Equal(t, StateErrored, session.State())
	assert.Equal(t, 1, c.Store().Len())
	assert.Equal(t, []string{"status 500"}, notifier.messages)
}

func TestNewSubmissionCancelsPreviousFirst(t *testing.T) {
	rt := &fakeRuntime{}
	var previousCancelled bool
	rt.onStream = func(ctx context.Context, req *models.RunRequest) {
		if len(req.NewMessages) > 0 && req.NewMessages[len(req.NewMessages)-1].Content.String() == "B" {
			previousCancelled = rt.context(0).Err() != nil
		}
	}
	c := newTestController(rt)

	first, err := c.Submit(context.Background(), "A", testSettings())
	require.NoError(t, err)
	second, err := c.Submit(context.Background(), "B", testSettings())
	require.NoError(t, err)

	assert.True(t, previousCancelled)
	assert.Equal(t, StateAborted, first.State())
	assert.Equal(t, c.Session(), second)

	// Late output of A is dropped.
	send(t, rt.stream(0), models.RunMessage{Message: textMessage("ai-a", models.RoleAI, "for A")})
	close(rt.stream(0))
	send(t, rt.stream(1), models.RunMessage{Message: textMessage("ai-b", models.RoleAI, "for B")})
	send(t, rt.stream(1), models.RunEnd{})
	waitDone(t, second)

	assert.Equal(t, StateComplete, second.State())
	messages := c.Store().Current()
	require.Len(t, messages, 3)
	assert.Equal(t, "ai-b", messages[2].ID)
}

func TestStopRetainsPartialContent(t *testing.T) {
	rt := &fakeRuntime{}
	c := newTestController(rt)

	session, err := c.Submit(context.Background(), "Hello", testSettings())
	require.NoError(t, err)

	ch := rt.stream(0)
	send(t, ch, models.RunMessage{Message: textMessage("ai-1", models.RoleAI, "Hel")})
	send(t, ch, models.RunMessage{Message: textMessage("ai-1", models.RoleAI, "Hello")})

	require.True(t, c.Stop())
	assert.Equal(t, StateAborted, session.State())
	assert.ErrorIs(t, rt.context(0).Err(), context.Canceled)

	send(t, ch, models.RunMessage{Message: textMessage("ai-1", models.RoleAI, "Hello there")})
	send(t, ch, models.RunEnd{})
	close(ch)

	assert.Equal(t, "Hello", c.Store().Get("ai-1").Content.String())
	assert.Equal(t, StateAborted, session.State())
	assert.False(t, c.Stop())
}

func TestRegenerateTruncatesToCheckpoint(t *testing.T) {
	rt := &fakeRuntime{}
	c := newTestController(rt)
	c.Load("thread-1", []*models.Message{
		textMessage("h1", models.RoleHuman, "one"),
		textMessage("a1", models.RoleAI, "two"),
		textMessage("h2", models.RoleHuman, "three"),
		textMessage("a2", models.RoleAI, "four"),
	})

	checkpoint, err := c.CheckpointBefore("a2")
	require.NoError(t, err)
	assert.Equal(t, "h2", checkpoint.MessageID)

	session, err := c.Regenerate(context.Background(), checkpoint, testSettings())
	require.NoError(t, err)

	assert.Equal(t, []string{"h1", "a1", "h2"}, ids(c.Store().Current()))
	req := rt.request(0)
	assert.Equal(t, "thread-1", req.ThreadID)
	assert.Equal(t, []string{"h1", "a1", "h2"}, ids(req.Messages))
	assert.Empty(t, req.NewMessages)
	require.NotNil(t, req.Checkpoint)
	assert.Equal(t, "h2", req.Checkpoint.MessageID)

	// The kept ai message of an earlier turn must not count as a new token.
	assert.False(t, session.FirstTokenReceived())
	assert.True(t, c.View().ShowLoadingPlaceholder)

	send(t, rt.stream(0), models.RunMessage{Message: textMessage("a3", models.RoleAI, "FOUR")})
	flush(t, rt.stream(0))
	assert.True(t, session.FirstTokenReceived())
	assert.False(t, c.View().ShowLoadingPlaceholder)
}

func TestRegenerateUnknownCheckpoint(t *testing.T) {
	rt := &fakeRuntime{}
	c := newTestController(rt)
	c.Load("", []*models.Message{textMessage("h1", models.RoleHuman, "one")})

	_, err := c.Regenerate(context.Background(), models.Checkpoint{MessageID: "missing"}, testSettings())
	require.ErrorIs(t, err, ErrCheckpointNotFound)
	assert.Equal(t, 1, c.Store().Len())
	assert.Empty(t, rt.requests)

	_, err = c.CheckpointBefore("h1")
	require.Error(t, err)
}

func TestSubmitReconcilesDanglingToolCalls(t *testing.T) {
	rt := &fakeRuntime{}
	c := newTestController(rt)
	c.Load("thread-1", []*models.Message{
		textMessage("h1", models.RoleHuman, "list files"),
		aiWithToolCalls("a1", "t1"),
	})

	_, err := c.Submit(context.Background(), "next", testSettings())
	require.NoError(t, err)

	req := rt.request(0)
	require.NoError(t, Verify(req.Messages))
	require.Len(t, req.Messages, 4)
	assert.Equal(t, models.RoleTool, req.Messages[2].Role)
	assert.Equal(t, "t1", req.Messages[2].ToolCallID)
	assert.Equal(t, models.RoleHuman, req.Messages[3].Role)
	require.Len(t, req.NewMessages, 2)

	// The synthesized response is stored but never rendered.
	assert.Equal(t, 4, c.Store().Len())
	assert.Equal(t, []string{"h1", "a1", req.Messages[3].ID}, ids(c.View().Messages))

	// An echo from the runtime keeps it internal.
	echo := req.Messages[2].Clone()
	echo.Visibility = models.VisibilityRendered
	send(t, rt.stream(0), models.RunMessage{Message: echo})
	flush(t, rt.stream(0))
	assert.True(t, c.Store().Get(echo.ID).IsInternal())
}

func TestFirstTokenNeedsAssistantContent(t *testing.T) {
	rt := &fakeRuntime{}
	c := newTestController(rt)

	session, err := c.Submit(context.Background(), "Hello", testSettings())
	require.NoError(t, err)
	ch := rt.stream(0)

	send(t, ch, models.RunMessage{Message: textMessage("ai-1", models.RoleAI, "")})
	send(t, ch, models.RunMessage{Message: toolResult("tool-1", "t0")})
	flush(t, ch)
	assert.False(t, session.FirstTokenReceived())
	assert.True(t, c.View().ShowLoadingPlaceholder)

	send(t, ch, models.RunMessage{Message: aiWithToolCalls("ai-2", "t1")})
	flush(t, ch)
	assert.True(t, session.FirstTokenReceived())

	next, err := c.Submit(context.Background(), "again", testSettings())
	require.NoError(t, err)
	assert.False(t, next.FirstTokenReceived())
}

func TestInterruptWithoutMessagesShowsPlaceholder(t *testing.T) {
	rt := &fakeRuntime{}
	c := newTestController(rt)

	_, err := c.Submit(context.Background(), "book a flight", testSettings())
	require.NoError(t, err)
	human := c.Store().Last()

	ch := rt.stream(0)
	send(t, ch, models.RunValues{
		Messages:  []*models.Message{human},
		Interrupt: &models.Interrupt{Value: []byte(`{"question":"which date?"}`)},
	})
	flush(t, ch)

	view := c.View()
	require.NotNil(t, view.Interrupt)
	assert.True(t, view.ShowInterruptPlaceholder)
	assert.Len(t, view.Messages, 1)

	send(t, ch, models.RunMessage{Message: textMessage("ai-1", models.RoleAI, "Which date?")})
	flush(t, ch)
	assert.False(t, c.View().ShowInterruptPlaceholder)
}

func TestListenerReceivesViews(t *testing.T) {
	rt := &fakeRuntime{}
	var (
		mu    sync.Mutex
		views []View
	)
	c := newTestController(rt, WithListener(func(view View) {
		mu.Lock()
		defer mu.Unlock()
		views = append(views, view)
	}))

	session, err := c.Submit(context.Background(), "Hello", testSettings())
	require.NoError(t, err)
	send(t, rt.stream(0), models.RunEnd{})
	waitDone(t, session)
	close(rt.stream(0))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(views) >= 2 && views[len(views)-1].State == StateComplete
	}, time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.True(t, views[0].Loading)
	assert.Len(t, views[0].Messages, 1)
}

func TestLoadAbortsActiveSession(t *testing.T) {
	rt := &fakeRuntime{}
	c := newTestController(rt)

	session, err := c.Submit(context.Background(), "Hello", testSettings())
	require.NoError(t, err)

	c.Load("thread-2", []*models.Message{textMessage("x1", models.RoleHuman, "other")})

	assert.Equal(t, StateAborted, session.State())
	assert.ErrorIs(t, rt.context(0).Err(), context.Canceled)
	assert.Equal(t, "thread-2", c.ThreadID())
	assert.Equal(t, []string{"x1"}, ids(c.Store().Current()))

	send(t, rt.stream(0), models.RunMessage{Message: textMessage("ai-1", models.RoleAI, "late")})
	send(t, rt.stream(0), models.RunEnd{})
	assert.Equal(t, 1, c.Store().Len())

	c.Reset()
	assert.Equal(t, "", c.ThreadID())
	assert.Equal(t, 0, c.Store().Len())
	assert.Equal(t, StateIdle, c.View().State)
}

func TestFinishedSessionsCancelTheirContext(t *testing.T) {
	rt := &fakeRuntime{}
	c := newTestController(rt)

	session, err := c.Submit(context.Background(), "Hello", testSettings())
	require.NoError(t, err)
	ch := rt.stream(0)
	send(t, ch, models.RunMessage{Message: textMessage("ai-1", models.RoleAI, "Hi")})
	send(t, ch, models.RunEnd{})
	close(ch)
	waitDone(t, session)
	require.Eventually(t, func() bool {
		return rt.context(0).Err() != nil
	}, time.Second, 10*time.Millisecond)

	session, err = c.Submit(context.Background(), "again", testSettings())
	require.NoError(t, err)
	send(t, rt.stream(1), models.RunError{Error: "status 500"})
	waitDone(t, session)
	require.Eventually(t, func() bool {
		return errors.Is(rt.context(1).Err(), context.Canceled)
	}, time.Second, 10*time.Millisecond)

	rt.mu.Lock()
	rt.err = errors.New("connection refused")
	rt.mu.Unlock()
	session, err = c.Submit(context.Background(), "third", testSettings())
	require.NoError(t, err)
	assert.Equal(t, StateErrored, session.State())
	assert.ErrorIs(t, rt.context(2).Err(), context.Canceled)
}
