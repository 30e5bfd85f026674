package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/rs/zerolog"
)

// TokenSource yields the current bearer token at request time. The client
// never acquires or refreshes credentials itself.
type TokenSource interface {
	Token() string
}

// Client is the pull fallback for the community feed: single request/response
// fetch and send, no retries. The caller drives fetching on an interval.
type Client struct {
	base   string
	http   *http.Client
	tokens TokenSource
	page   int
	size   int
	log    *zerolog.Logger
}

// New builds a pull client against the REST base URL.
func New(base string, tokens TokenSource, pageSize int, logger *zerolog.Logger) *Client {
	return &Client{
		base:   base,
		http:   &http.Client{},
		tokens: tokens,
		page:   0,
		size:   pageSize,
		log:    logger,
	}
}

// envelope is the paginated response shape. Some deployments return a bare
// array instead; Fetch accepts both.
type envelope struct {
	Content []json.RawMessage `json:"content"`
}

// Fetch performs one poll cycle and returns the raw message records.
func (c *Client) Fetch(ctx context.Context) ([]json.RawMessage, error) {
	url := c.base + "/community/messages?page=" + strconv.Itoa(c.page) + "&size=" + strconv.Itoa(c.size)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build fetch request: %w", err)
	}
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch messages: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch messages: status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read fetch response: %w", err)
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err == nil && env.Content != nil {
		return env.Content, nil
	}

	var bare []json.RawMessage
	if err := json.Unmarshal(body, &bare); err != nil {
		return nil, fmt.Errorf("decode fetch response: %w", err)
	}
	c.log.Debug().Int("count", len(bare)).Msg("feed response was a bare array")
	return bare, nil
}

// Send posts one message and returns the raw record the server created.
func (c *Client) Send(ctx context.Context, content string) (json.RawMessage, error) {
	payload, err := json.Marshal(map[string]string{"content": content})
	if err != nil {
		return nil, fmt.Errorf("encode send payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/community/messages", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build send request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, fmt.Errorf("send message: status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read send response: %w", err)
	}
	return json.RawMessage(body), nil
}

func (c *Client) authorize(req *http.Request) {
	if token := c.tokens.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
}
