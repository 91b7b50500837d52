// Package ltm is the HTTP client for the long-term-memory backend. It
// appends turn events to a thread's history, builds planner memory
// context, and requests chat completions grounded in that memory.
package ltm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Client talks to one memory backend. A nil Client is valid and makes
// every call report ErrDisabled, so embedders can run without memory.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// ErrDisabled is returned by every method on a nil client.
var ErrDisabled = fmt.Errorf("ltm: client not configured")

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

func New(baseURL, apiKey string, opts ...Option) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("ltm: base url is required")
	}
	c := &Client{
		baseURL:    baseURL,
		apiKey:     strings.TrimSpace(apiKey),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Message is one row of memory context, in chat-completion shape.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Chat asks the memory backend for a completion grounded in the
// thread's history.
func (c *Client) Chat(ctx context.Context, threadID, text string, shortTermLimit int) (string, error) {
	if c == nil {
		return "", ErrDisabled
	}
	payload := map[string]any{"text": text}
	if shortTermLimit > 0 {
		payload["short_term_limit"] = shortTermLimit
	}
	body, err := c.post(ctx, fmt.Sprintf("/v1/threads/%s/chat", threadID), payload)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(body)), nil
}

// CreateEvent appends an actor-tagged event to the thread's history and
// returns the new event id. One bounded retry is applied on failure;
// callers are expected to log and swallow a persistent error rather
// than block the turn's response.
func (c *Client) CreateEvent(ctx context.Context, threadID, actor, content string, meta map[string]any) (string, error) {
	if c == nil {
		return "", ErrDisabled
	}
	if meta == nil {
		meta = map[string]any{}
	}
	payload := map[string]any{
		"actor":   actor,
		"content": content,
		"meta":    meta,
	}

	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		body, err := c.post(ctx, fmt.Sprintf("/v1/threads/%s/events", threadID), payload)
		if err != nil {
			lastErr = err
			continue
		}
		var parsed struct {
			EventID string `json:"event_id"`
		}
		if err := json.Unmarshal(body, &parsed); err != nil {
			lastErr = fmt.Errorf("ltm: event create returned unexpected payload: %w", err)
			continue
		}
		if strings.TrimSpace(parsed.EventID) == "" {
			lastErr = fmt.Errorf("ltm: event create missing event_id")
			continue
		}
		return strings.TrimSpace(parsed.EventID), nil
	}
	return "", lastErr
}

// MemoryContext returns the thread's recent history shaped for a chat
// completion prompt. Malformed rows are skipped, not errors.
func (c *Client) MemoryContext(ctx context.Context, threadID, latestUserText string, shortTermLimit int) ([]Message, error) {
	if c == nil {
		return nil, ErrDisabled
	}
	payload := map[string]any{"latest_user_text": latestUserText}
	if shortTermLimit > 0 {
		payload["short_term_limit"] = shortTermLimit
	}
	body, err := c.post(ctx, fmt.Sprintf("/v1/threads/%s/memory-context", threadID), payload)
	if err != nil {
		return nil, err
	}

	var parsed struct {
		Messages []Message `json:"messages"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, nil
	}
	out := make([]Message, 0, len(parsed.Messages))
	for _, m := range parsed.Messages {
		if m.Role == "" || m.Content == "" {
			continue
		}
		out = append(out, m)
	}
	return out, nil
}

func (c *Client) post(ctx context.Context, path string, payload map[string]any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("ltm: encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("ltm: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("x-api-key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ltm: %s: %w", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("ltm: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := strings.TrimSpace(string(body))
		if len(msg) > 500 {
			msg = msg[:500]
		}
		if msg == "" {
			msg = "request failed"
		}
		return nil, fmt.Errorf("ltm: %s returned %d: %s", path, resp.StatusCode, msg)
	}
	return body, nil
}
