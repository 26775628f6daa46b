package history

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
	"github.com/zjregee/alterchat/internal/service/runtime"
)

const defaultLimit = 100

type Option func(*Client)

func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.httpClient = client
	}
}

func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.timeout = timeout
	}
}

// WithGraphID restricts listings to threads created for one assistant graph.
func WithGraphID(graphID string) Option {
	return func(c *Client) {
		c.graphID = graphID
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// Client reads and deletes threads on the agent server.
type Client struct {
	baseURL    string
	graphID    string
	timeout    time.Duration
	httpClient *http.Client
	logger     *slog.Logger
}

func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		timeout:    30 * time.Second,
		httpClient: http.DefaultClient,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = log.NewModuleLogger("history", "client")
	}
	return c
}

type searchPayload struct {
	Limit     int               `json:"limit"`
	SortBy    string            `json:"sort_by"`
	SortOrder string            `json:"sort_order"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// ListThreads returns the most recently updated threads first.
func (c *Client) ListThreads(ctx context.Context) ([]*models.Thread, error) {
	payload := searchPayload{Limit: defaultLimit, SortBy: "updated_at", SortOrder: "desc"}
	if c.graphID != "" {
		payload.Metadata = map[string]string{"graph_id": c.graphID}
	}

	body, err := c.do(ctx, http.MethodPost, "/threads/search", payload)
	if err != nil {
		return nil, errors.Wrap(err, "failed to search threads")
	}
	if !gjson.ValidBytes(body) || !gjson.ParseBytes(body).IsArray() {
		return nil, errors.New("malformed thread list")
	}

	var threads []*models.Thread
	gjson.ParseBytes(body).ForEach(func(_, value gjson.Result) bool {
		if thread := runtime.DecodeThread(value); thread != nil {
			threads = append(threads, thread)
		}
		return true
	})

	c.logger.Debug("threads listed", "count", len(threads))
	return threads, nil
}

func (c *Client) GetThread(ctx context.Context, id string) (*models.Thread, error) {
	if id == "" {
		return nil, errors.New("thread id is required")
	}

	body, err := c.do(ctx, http.MethodGet, "/threads/"+url.PathEscape(id), nil)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get thread %s", id)
	}
	if !gjson.ValidBytes(body) {
		return nil, errors.Errorf("malformed thread %s", id)
	}

	thread := runtime.DecodeThread(gjson.ParseBytes(body))
	if thread == nil {
		return nil, errors.Errorf("malformed thread %s: missing thread_id", id)
	}
	return thread, nil
}

func (c *Client) DeleteThread(ctx context.Context, id string) error {
	if id == "" {
		return errors.New("thread id is required")
	}

	if _, err := c.do(ctx, http.MethodDelete, "/threads/"+url.PathEscape(id), nil); err != nil {
		return errors.Wrapf(err, "failed to delete thread %s", id)
	}

	c.logger.Info("thread deleted", "thread_id", id)
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, payload any) ([]byte, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	var reader io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, errors.Wrap(err, "failed to encode request")
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, errors.Wrap(err, "failed to build request")
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to reach history service at %s", c.baseURL)
	}
	if err := runtime.CheckResponse(resp); err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read response")
	}
	return body, nil
}
