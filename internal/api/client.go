// Package api wraps the platform's REST surface outside the chat core:
// authentication, profile, plans, and notifications. Read-mostly responses go
// through the TTL cache.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/promoxa/community-client/internal/cache"
	"github.com/promoxa/community-client/internal/cred"
)

// Error is the typed failure a request produces.
type Error struct {
	Status  int
	Code    string
	Message string
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("api request failed with status %d", e.Status)
}

// errBanned is the backend's account-ban error code.
const errBanned = "USER_BANNED"

// Client talks to the platform REST API.
type Client struct {
	base  string
	http  *http.Client
	creds *cred.Store
	cache *cache.Cache
	log   *zerolog.Logger
}

// New builds a client against the REST base URL.
func New(base string, creds *cred.Store, responses *cache.Cache, logger *zerolog.Logger) *Client {
	return &Client{
		base:  base,
		http:  &http.Client{},
		creds: creds,
		cache: responses,
		log:   logger,
	}
}

// User is the authenticated account.
type User struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Balance  string `json:"balance"`
}

// Notification is one entry in the account's notification feed.
type Notification struct {
	ID        int64  `json:"id"`
	Type      string `json:"type"`
	Message   string `json:"message"`
	IsRead    bool   `json:"isRead"`
	CreatedAt string `json:"createdAt"`
}

// Plan is a purchasable earnings plan.
type Plan struct {
	ID            int64  `json:"id"`
	Name          string `json:"name"`
	Price         string `json:"price"`
	DailyEarnings string `json:"dailyEarnings"`
	DurationDays  int    `json:"durationDays"`
}

type loginResponse struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}

// Login authenticates and persists the returned bearer token.
func (c *Client) Login(ctx context.Context, username, password string) (*User, error) {
	body := map[string]string{"username": username, "password": password}

	var resp loginResponse
	if err := c.do(ctx, http.MethodPost, "/auth/login", body, &resp); err != nil {
		return nil, err
	}
	if err := c.creds.Save(resp.Token); err != nil {
		return nil, fmt.Errorf("store token: %w", err)
	}

	c.log.Info().Str("username", resp.User.Username).Msg("logged in")
	return &resp.User, nil
}

// Profile returns the authenticated account, cached for ten minutes.
func (c *Client) Profile(ctx context.Context) (*User, error) {
	const key = "user_profile"
	if cached, ok := c.cache.Get(key); ok {
		if user, ok := cached.(*User); ok {
			return user, nil
		}
	}

	var user User
	if err := c.do(ctx, http.MethodGet, "/profile", nil, &user); err != nil {
		return nil, err
	}
	c.cache.Set(key, &user, cache.TTLUserProfile)
	return &user, nil
}

// Notifications returns the account's notification feed, cached for a minute.
func (c *Client) Notifications(ctx context.Context) ([]Notification, error) {
	const key = "notifications"
	if cached, ok := c.cache.Get(key); ok {
		if list, ok := cached.([]Notification); ok {
			return list, nil
		}
	}

	var list []Notification
	if err := c.do(ctx, http.MethodGet, "/notifications", nil, &list); err != nil {
		return nil, err
	}
	c.cache.Set(key, list, cache.TTLNotifications)
	return list, nil
}

// Plans returns the available earnings plans, cached for thirty minutes.
func (c *Client) Plans(ctx context.Context) ([]Plan, error) {
	const key = "plans"
	if cached, ok := c.cache.Get(key); ok {
		if list, ok := cached.([]Plan); ok {
			return list, nil
		}
	}

	var list []Plan
	if err := c.do(ctx, http.MethodGet, "/plans", nil, &list); err != nil {
		return nil, err
	}
	c.cache.Set(key, list, cache.TTLPlans)
	return list, nil
}

// do runs one request, decoding a JSON success body into out when non-nil.
// Failure bodies are folded into *Error; a ban response additionally clears
// the stored credential so the client stops presenting a dead token.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token := c.creds.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &Error{Status: resp.StatusCode}
		var failure struct {
			Error   string `json:"error"`
			Message string `json:"message"`
		}
		if err := json.Unmarshal(data, &failure); err == nil {
			apiErr.Code = failure.Error
			apiErr.Message = failure.Message
			if apiErr.Message == "" {
				apiErr.Message = failure.Error
			}
		}

		if resp.StatusCode == http.StatusForbidden && apiErr.Code == errBanned {
			c.log.Warn().Msg("account banned, clearing stored credential")
			if clearErr := c.creds.Clear(); clearErr != nil {
				c.log.Warn().Err(clearErr).Msg("failed to clear credential")
			}
			c.cache.Clear()
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
