// Package rest is the client of the application's REST API, used for
// thread metadata, backfill after a reconnect and the send fallback.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/matheus3301/rentchat/internal/protocol"
)

const DefaultTimeout = 15 * time.Second

// APIError is a non-2xx response.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api: status %d", e.Status)
	}
	return fmt.Sprintf("api: status %d: %s", e.Status, e.Message)
}

// Thread is a conversation's metadata.
type Thread struct {
	ID             protocol.ID   `json:"id"`
	Title          string        `json:"title"`
	ParticipantIDs []protocol.ID `json:"participant_ids"`
}

type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.httpClient.Timeout = d }
}

// NewClient creates a client for baseURL authenticating with a bearer token.
func NewClient(baseURL, token string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: DefaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetThread fetches a conversation's metadata.
func (c *Client) GetThread(ctx context.Context, conv string) (*Thread, error) {
	var th Thread
	if err := c.do(ctx, http.MethodGet, "/conversations/"+url.PathEscape(conv), nil, nil, &th); err != nil {
		return nil, err
	}
	return &th, nil
}

// GetMessages lists a conversation's messages newer than since. A zero
// since returns the server's default page.
func (c *Client) GetMessages(ctx context.Context, conv string, since time.Time) ([]protocol.WireMessage, error) {
	q := url.Values{}
	if !since.IsZero() {
		q.Set("since", since.UTC().Format(time.RFC3339Nano))
	}
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodGet, "/conversations/"+url.PathEscape(conv)+"/messages", q, nil, &raw); err != nil {
		return nil, err
	}
	return decodeMessages(raw)
}

// decodeMessages accepts a bare array or {"messages": [...]}.
func decodeMessages(raw json.RawMessage) ([]protocol.WireMessage, error) {
	var msgs []protocol.WireMessage
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &msgs); err != nil {
			return nil, fmt.Errorf("decode messages: %w", err)
		}
		return msgs, nil
	}
	var page struct {
		Messages []protocol.WireMessage `json:"messages"`
	}
	if err := json.Unmarshal(trimmed, &page); err != nil {
		return nil, fmt.Errorf("decode messages: %w", err)
	}
	return page.Messages, nil
}

// CreateMessage stores a message through the REST API and returns the
// server's copy.
func (c *Client) CreateMessage(ctx context.Context, conv, content string) (*protocol.WireMessage, error) {
	var m protocol.WireMessage
	body := map[string]string{"content": content}
	if err := c.do(ctx, http.MethodPost, "/conversations/"+url.PathEscape(conv)+"/messages", nil, body, &m); err != nil {
		return nil, err
	}
	if m.ConversationID == "" {
		m.ConversationID = protocol.ID(conv)
	}
	return &m, nil
}

// NotifyRecipient asks the server to notify the other participants of a
// new message (push, email).
func (c *Client) NotifyRecipient(ctx context.Context, conv, content string) error {
	body := map[string]string{"content": content}
	return c.do(ctx, http.MethodPost, "/conversations/"+url.PathEscape(conv)+"/notify", nil, body, nil)
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var bodyReader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, bodyReader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{Status: resp.StatusCode, Message: errorMessage(data)}
	}
	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}
	return nil
}

func errorMessage(data []byte) string {
	var e struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if json.Unmarshal(data, &e) == nil {
		if e.Message != "" {
			return e.Message
		}
		if e.Error != "" {
			return e.Error
		}
	}
	return strings.TrimSpace(string(data))
}
