package runtime

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/tidwall/gjson"

	"github.com/zjregee/alterchat/internal/log"
	"github.com/zjregee/alterchat/internal/models"
)

const (
	defaultAssistantID = "agent"
	historyLimit       = 100
	eventBuffer        = 16
)

var ErrCheckpointNotResolved = errors.New("no runtime checkpoint for message")

type Option func(*Client)

func WithAssistantID(id string) Option {
	return func(c *Client) {
		if id != "" {
			c.assistantID = id
		}
	}
}

// WithStreaming selects SSE streaming (true) or a single-shot wait call.
func WithStreaming(streaming bool) Option {
	return func(c *Client) {
		c.streaming = streaming
	}
}

// WithTimeout bounds the non-streaming calls. Streams are only bounded by
// their context.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.timeout = timeout
	}
}

func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.httpClient = client
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// Client talks to a LangGraph style agent server.
type Client struct {
	baseURL     string
	assistantID string
	streaming   bool
	timeout     time.Duration
	httpClient  *http.Client
	logger      *slog.Logger
}

func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		assistantID: defaultAssistantID,
		streaming:   true,
		httpClient:  http.DefaultClient,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = log.NewModuleLogger("runtime", "client")
	}
	return c
}

type runInput struct {
	Messages []wireMessage `json:"messages"`
}

type checkpointRef struct {
	CheckpointID string `json:"checkpoint_id"`
}

type runPayload struct {
	AssistantID  string                   `json:"assistant_id"`
	Input        *runInput                `json:"input"`
	StreamMode   []string                 `json:"stream_mode,omitempty"`
	Context      models.GenerationContext `json:"context"`
	Checkpoint   *checkpointRef           `json:"checkpoint,omitempty"`
	OnDisconnect string                   `json:"on_disconnect,omitempty"`
}

// Stream starts a run on the request's thread, creating the thread first when
// there is none. Connection failures and non-2xx answers are returned
// directly; anything after that arrives as events.
func (c *Client) Stream(ctx context.Context, req *models.RunRequest) (<-chan models.RunEvent, error) {
	threadID := req.ThreadID
	input := req.NewMessages
	if threadID == "" {
		id, err := c.CreateThread(ctx)
		if err != nil {
			return nil, err
		}
		threadID = id
		// A fresh server thread knows nothing of the local transcript.
		input = req.Messages
	}

	payload := runPayload{
		AssistantID:  c.assistantID,
		Context:      req.Context,
		OnDisconnect: "cancel",
	}
	if req.Checkpoint == nil {
		payload.Input = &runInput{Messages: encodeMessages(input)}
	} else {
		checkpointID, err := c.resolveCheckpoint(ctx, threadID, *req.Checkpoint)
		if err != nil {
			return nil, err
		}
		payload.Checkpoint = &checkpointRef{CheckpointID: checkpointID}
	}

	runCtx, cancel := ctx, context.CancelFunc(func() {})
	path := "/threads/" + url.PathEscape(threadID) + "/runs/"
	accept := "text/event-stream"
	if c.streaming {
		path += "stream"
		payload.StreamMode = []string{"values"}
	} else {
		path += "wait"
		accept = "application/json"
		if c.timeout > 0 {
			runCtx, cancel = context.WithTimeout(ctx, c.timeout)
		}
	}

	c.logger.Debug("starting run",
		"thread_id", threadID,
		"path", path,
		"messages", len(input),
		"regenerate", req.Checkpoint != nil,
	)

	resp, err := c.post(runCtx, path, payload, accept)
	if err != nil {
		cancel()
		return nil, err
	}

	events := make(chan models.RunEvent, eventBuffer)
	go func() {
		defer close(events)
		defer cancel()
		defer resp.Body.Close()

		if !emit(ctx, events, models.RunMetadata{ThreadID: threadID}) {
			return
		}
		if c.streaming {
			c.readStream(ctx, threadID, resp.Body, events)
		} else {
			c.readWait(runCtx, resp.Body, events)
		}
	}()
	return events, nil
}

// CreateThread creates an empty server thread and returns its id.
func (c *Client) CreateThread(ctx context.Context) (string, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	resp, err := c.post(ctx, "/threads", map[string]any{
		"metadata": map[string]string{"graph_id": c.assistantID},
	}, "application/json")
	if err != nil {
		return "", errors.Wrap(err, "failed to create thread")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", errors.Wrap(err, "failed to read thread")
	}
	id := gjson.GetBytes(body, "thread_id").String()
	if id == "" {
		return "", errors.New("malformed thread response: missing thread_id")
	}

	c.logger.Info("thread created", "thread_id", id)
	return id, nil
}

// resolveCheckpoint finds the server checkpoint whose state ends with the
// checkpoint message.
func (c *Client) resolveCheckpoint(ctx context.Context, threadID string, checkpoint models.Checkpoint) (string, error) {
	if checkpoint.RuntimeID != "" {
		return checkpoint.RuntimeID, nil
	}

	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	resp, err := c.post(ctx, "/threads/"+url.PathEscape(threadID)+"/history",
		map[string]int{"limit": historyLimit}, "application/json")
	if err != nil {
		return "", errors.Wrap(err, "failed to fetch thread history")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", errors.Wrap(err, "failed to read thread history")
	}
	if !gjson.ValidBytes(body) {
		return "", errors.New("malformed thread history")
	}

	var found string
	gjson.ParseBytes(body).ForEach(func(_, state gjson.Result) bool {
		messages := DecodeMessages(state.Get("values.messages"))
		if len(messages) == 0 || messages[len(messages)-1].ID != checkpoint.MessageID {
			return true
		}
		found = state.Get("checkpoint.checkpoint_id").String()
		if found == "" {
			found = state.Get("checkpoint_id").String()
		}
		return found == ""
	})
	if found == "" {
		return "", errors.Wrapf(ErrCheckpointNotResolved, "thread %s message %s", threadID, checkpoint.MessageID)
	}
	return found, nil
}

func (c *Client) readStream(ctx context.Context, threadID string, body io.Reader, events chan<- models.RunEvent) {
	reader := NewSSEReader(body)
	for {
		event, data, err := reader.ReadEvent()
		if err == io.EOF {
			return
		}
		if err != nil {
			if ctx.Err() == nil {
				c.logger.Warn("stream interrupted", "thread_id", threadID, "error", err)
				emit(ctx, events, models.RunError{Error: errors.Wrap(err, "stream interrupted").Error()})
			}
			return
		}

		switch event {
		case "metadata":
			emit(ctx, events, models.RunMetadata{
				ThreadID: threadID,
				RunID:    gjson.GetBytes(data, "run_id").String(),
			})
		case "values":
			if !gjson.ValidBytes(data) {
				emit(ctx, events, models.RunError{Error: "malformed values payload"})
				return
			}
			values := gjson.ParseBytes(data)
			if !emit(ctx, events, models.RunValues{
				Messages:  DecodeMessages(values.Get("messages")),
				Interrupt: DecodeInterrupt(values),
			}) {
				return
			}
		case "error":
			emit(ctx, events, models.RunError{Error: runErrorMessage(data)})
			return
		case "end":
			emit(ctx, events, models.RunEnd{})
			return
		default:
			c.logger.Debug("ignoring stream event", "event", event)
		}
	}
}

func (c *Client) readWait(ctx context.Context, body io.Reader, events chan<- models.RunEvent) {
	data, err := io.ReadAll(body)
	if err != nil {
		if ctx.Err() == nil || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			emit(context.Background(), events, models.RunError{Error: errors.Wrap(err, "failed to read run result").Error()})
		}
		return
	}
	if !gjson.ValidBytes(data) {
		emit(ctx, events, models.RunError{Error: "malformed run result"})
		return
	}

	values := gjson.ParseBytes(data)
	if failure := values.Get("__error__"); failure.Exists() {
		emit(ctx, events, models.RunError{Error: runErrorMessage([]byte(failure.Raw))})
		return
	}
	if !values.Get("messages").IsArray() {
		emit(ctx, events, models.RunError{Error: "malformed run result: missing messages"})
		return
	}

	if emit(ctx, events, models.RunValues{
		Messages:  DecodeMessages(values.Get("messages")),
		Interrupt: DecodeInterrupt(values),
	}) {
		emit(ctx, events, models.RunEnd{})
	}
}

func (c *Client) post(ctx context.Context, path string, payload any, accept string) (*http.Response, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return nil, errors.Wrap(err, "failed to build request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", accept)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to reach agent runtime at %s", c.baseURL)
	}
	if err := CheckResponse(resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, c.timeout)
}

func runErrorMessage(data []byte) string {
	if detail := errorDetail(data); detail != "" {
		return detail
	}
	return "agent run failed"
}

// emit sends event unless ctx is done first.
func emit(ctx context.Context, events chan<- models.RunEvent, event models.RunEvent) bool {
	select {
	case events <- event:
		return true
	case <-ctx.Done():
		return false
	}
}
