package forum

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/marminbh/discourse-autoreply/internal/config"
	"github.com/marminbh/discourse-autoreply/internal/models"
)

var (
	// ErrTransport wraps network, DNS and TLS failures talking to the forum.
	ErrTransport = errors.New("forum transport failure")
	// ErrParse wraps response bodies that are not JSON or lack an expected field.
	ErrParse = errors.New("forum response parse failure")
)

const maxErrorBodySize = 500

// StatusError is returned when the forum answers with a non-2xx status.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("forum returned HTTP %d: %s", e.StatusCode, e.Body)
}

// Response is the outcome of a single forum call. Callers must check OK before
// trusting Body.
type Response struct {
	StatusCode int
	Body       []byte
	Latency    time.Duration
	Err        error
}

// OK reports a completed call with a 2xx status.
func (r *Response) OK() bool {
	return r.Err == nil && r.StatusCode >= 200 && r.StatusCode < 300
}

// Failure converts a non-OK response into an error, nil otherwise.
func (r *Response) Failure() error {
	if r.Err != nil {
		return r.Err
	}
	if r.OK() {
		return nil
	}
	body := string(r.Body)
	if len(body) > maxErrorBodySize {
		body = body[:maxErrorBodySize] + "..."
	}
	return &StatusError{StatusCode: r.StatusCode, Body: body}
}

// Client talks to the Discourse REST API with API-key authentication.
type Client struct {
	http    *resty.Client
	baseURL string
	logger  *zap.Logger
}

// NewClient creates a client for the configured forum.
func NewClient(cfg config.ForumConfig, logger *zap.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	httpClient := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Api-Key", cfg.APIKey).
		SetHeader("Api-Username", cfg.APIUsername)

	return &Client{
		http:    httpClient,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		logger:  logger,
	}
}

// Do performs one request. Transport failures come back in Response.Err rather
// than as a separate error; nothing is retried. GET requests never carry a body.
func (c *Client) Do(ctx context.Context, method, path string, body any) *Response {
	result := &Response{}

	req := c.http.R().SetContext(ctx)
	if method != http.MethodGet && body != nil {
		req.SetBody(body)
	}

	c.logger.Debug("Making forum request",
		zap.String("method", method),
		zap.String("path", path),
	)

	startTime := time.Now()
	resp, err := req.Execute(method, path)
	result.Latency = time.Since(startTime)
	if err != nil {
		result.Err = fmt.Errorf("%w: %s %s: %v", ErrTransport, method, path, err)
		return result
	}

	result.StatusCode = resp.StatusCode()
	result.Body = resp.Body()
	return result
}

// GetTopic fetches topic metadata, including its creator.
func (c *Client) GetTopic(ctx context.Context, topicID int) (*models.Topic, error) {
	resp := c.Do(ctx, http.MethodGet, fmt.Sprintf("/t/%d.json", topicID), nil)
	if err := resp.Failure(); err != nil {
		return nil, fmt.Errorf("fetch topic %d: %w", topicID, err)
	}

	var topic models.Topic
	if err := json.Unmarshal(resp.Body, &topic); err != nil {
		return nil, fmt.Errorf("%w: topic %d: %v", ErrParse, topicID, err)
	}
	return &topic, nil
}

// GetPost fetches a post including its raw markdown.
func (c *Client) GetPost(ctx context.Context, postID int) (*models.Post, error) {
	resp := c.Do(ctx, http.MethodGet, fmt.Sprintf("/posts/%d.json", postID), nil)
	if err := resp.Failure(); err != nil {
		return nil, fmt.Errorf("fetch post %d: %w", postID, err)
	}

	var post models.Post
	if err := json.Unmarshal(resp.Body, &post); err != nil {
		return nil, fmt.Errorf("%w: post %d: %v", ErrParse, postID, err)
	}
	if post.Raw == "" {
		return nil, fmt.Errorf("%w: post %d has no raw field", ErrParse, postID)
	}
	return &post, nil
}

// CreatePost submits a new post, private message or reply.
func (c *Client) CreatePost(ctx context.Context, payload any) error {
	resp := c.Do(ctx, http.MethodPost, "/posts.json", payload)
	if err := resp.Failure(); err != nil {
		return fmt.Errorf("create post: %w", err)
	}

	c.logger.Debug("Forum post created",
		zap.Int("status_code", resp.StatusCode),
		zap.Duration("latency", resp.Latency),
	)
	return nil
}

// TopicURL links to a specific post within a topic.
func (c *Client) TopicURL(topicID, postNumber int) string {
	return fmt.Sprintf("%s/t/%d/%d", c.baseURL, topicID, postNumber)
}
