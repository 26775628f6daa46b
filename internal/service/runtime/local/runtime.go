package local

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/zjregee/alterchat/internal/log"
	"github.com/zjregee/alterchat/internal/models"
	"github.com/zjregee/alterchat/internal/utils"
)

//go:embed assets/prompts/system.txt
var promptContent []byte

const eventBuffer = 16

// ModelSource resolves a model id to an eino chat model.
type ModelSource interface {
	ChatModel(ctx context.Context, modelID string) (model.BaseChatModel, error)
}

// ThreadStore persists transcripts produced by the local runtime.
type ThreadStore interface {
	GetThread(ctx context.Context, id string) (*models.Thread, error)
	SaveThread(ctx context.Context, thread *models.Thread) error
}

type Option func(*Runtime)

func WithStore(store ThreadStore) Option {
	return func(r *Runtime) {
		r.store = store
	}
}

func WithStreaming(streaming bool) Option {
	return func(r *Runtime) {
		r.streaming = streaming
	}
}

func WithSystemPrompt(prompt string) Option {
	return func(r *Runtime) {
		r.systemPrompt = prompt
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(r *Runtime) {
		r.logger = logger
	}
}

// Runtime answers runs in process with eino chat models.
type Runtime struct {
	models       ModelSource
	store        ThreadStore
	streaming    bool
	systemPrompt string
	logger       *slog.Logger
}

func New(source ModelSource, opts ...Option) *Runtime {
	r := &Runtime{
		models:       source,
		streaming:    true,
		systemPrompt: string(promptContent),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = log.NewModuleLogger("runtime", "local")
	}
	return r
}

func buildSystemPrompt(prompt string) string {
	return strings.ReplaceAll(prompt, "[SYSTEM_TIME]", time.Now().Format(time.RFC3339))
}

// Stream runs the model on the request transcript. The reply is emitted as a
// growing ai message with a stable id, followed by a values snapshot of the
// whole thread.
func (r *Runtime) Stream(ctx context.Context, req *models.RunRequest) (<-chan models.RunEvent, error) {
	chatModel, err := r.models.ChatModel(ctx, req.Context.Model)
	if err != nil {
		return nil, err
	}

	threadID := req.ThreadID
	if threadID == "" {
		threadID = utils.NewThreadID()
	}

	events := make(chan models.RunEvent, eventBuffer)
	go func() {
		defer close(events)
		r.run(ctx, chatModel, threadID, req, events)
	}()
	return events, nil
}

func (r *Runtime) run(ctx context.Context, chatModel model.BaseChatModel, threadID string, req *models.RunRequest, events chan<- models.RunEvent) {
	runID := "run-" + utils.GenerateUUID()
	if !emit(ctx, events, models.RunMetadata{ThreadID: threadID, RunID: runID}) {
		return
	}

	win, err := selectWindow(ctx, chatModel, req.Messages, req.Context)
	if err != nil {
		r.fail(ctx, events, threadID, err)
		return
	}

	input := make([]*schema.Message, 0, len(win.Messages)+2)
	if prompt := buildSystemPrompt(r.systemPrompt); strings.TrimSpace(prompt) != "" {
		input = append(input, schema.SystemMessage(prompt))
	}
	if win.Summary != "" {
		input = append(input, schema.SystemMessage("Summary of the earlier conversation: "+win.Summary))
	}
	input = append(input, toSchemaMessages(win.Messages)...)

	opts := []model.Option{
		model.WithTemperature(float32(req.Context.Temperature)),
		model.WithMaxTokens(req.Context.MaxTokens),
	}

	r.logger.Debug("running local model",
		"thread_id", threadID,
		"run_id", runID,
		"model", req.Context.Model,
		"strategy", req.Context.MessagesStrategy,
		"window", len(win.Messages),
		"transcript", len(req.Messages),
	)

	replyID := utils.NewMessageID()
	var reply *models.Message
	if r.streaming {
		reply, err = r.stream(ctx, chatModel, input, opts, replyID, events)
	} else {
		reply, err = r.generate(ctx, chatModel, input, opts, replyID, events)
	}
	if err != nil {
		if ctx.Err() != nil {
			r.logger.Info("local run cancelled", "thread_id", threadID, "run_id", runID)
			return
		}
		r.fail(ctx, events, threadID, err)
		return
	}

	transcript := append(models.CloneMessages(req.Messages), reply)
	r.persist(ctx, threadID, transcript)

	if emit(ctx, events, models.RunValues{Messages: transcript}) {
		emit(ctx, events, models.RunEnd{})
	}
}

func (r *Runtime) generate(ctx context.Context, chatModel model.BaseChatModel, input []*schema.Message, opts []model.Option, replyID string, events chan<- models.RunEvent) (*models.Message, error) {
	response, err := chatModel.Generate(ctx, input, opts...)
	if err != nil {
		return nil, fmt.Errorf("model generation failed: %w", err)
	}

	reply := fromSchemaMessage(replyID, response)
	emit(ctx, events, models.RunMessage{Message: reply})
	return reply, nil
}

func (r *Runtime) stream(ctx context.Context, chatModel model.BaseChatModel, input []*schema.Message, opts []model.Option, replyID string, events chan<- models.RunEvent) (*models.Message, error) {
	reader, err := chatModel.Stream(ctx, input, opts...)
	if err != nil {
		return nil, fmt.Errorf("model stream failed: %w", err)
	}
	defer reader.Close()

	var chunks []*schema.Message
	for {
		chunk, err := reader.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("model stream failed: %w", err)
		}
		if chunk == nil {
			continue
		}
		chunks = append(chunks, chunk)

		if chunk.Content == "" {
			continue
		}
		partial, err := schema.ConcatMessages(chunks)
		if err != nil {
			return nil, fmt.Errorf("failed to merge stream chunks: %w", err)
		}
		if !emit(ctx, events, models.RunMessage{Message: fromSchemaMessage(replyID, partial)}) {
			return nil, ctx.Err()
		}
	}

	if len(chunks) == 0 {
		return nil, fmt.Errorf("model returned an empty stream")
	}
	final, err := schema.ConcatMessages(chunks)
	if err != nil {
		return nil, fmt.Errorf("failed to merge stream chunks: %w", err)
	}

	reply := fromSchemaMessage(replyID, final)
	emit(ctx, events, models.RunMessage{Message: reply})
	return reply, nil
}

func (r *Runtime) persist(ctx context.Context, threadID string, transcript []*models.Message) {
	if r.store == nil {
		return
	}

	thread, err := r.store.GetThread(ctx, threadID)
	if err != nil || thread == nil {
		thread = &models.Thread{ID: threadID}
	}
	thread.Values.Messages = transcript

	if err := r.store.SaveThread(ctx, thread); err != nil {
		r.logger.Warn("failed to persist thread", "thread_id", threadID, "error", err)
	}
}

func (r *Runtime) fail(ctx context.Context, events chan<- models.RunEvent, threadID string, err error) {
	r.logger.Warn("local run failed", "thread_id", threadID, "error", err)
	emit(ctx, events, models.RunError{Error: err.Error()})
}

func emit(ctx context.Context, events chan<- models.RunEvent, event models.RunEvent) bool {
	select {
	case events <- event:
		return true
	case <-ctx.Done():
		return false
	}
}
