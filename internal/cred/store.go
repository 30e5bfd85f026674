// Package cred persists the platform bearer token the way the original app
// keeps it in device-local storage: one fixed key in one small file. Token
// acquisition and refresh belong to the API layer; this package only holds
// the current value.
package cred

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// storageKey matches the key the web client used in localStorage.
const storageKey = "auth_token"

// Claims are the token fields the client cares about. Signature verification
// is the backend's job; the client only inspects.
type Claims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// Store is a file-backed token store safe for concurrent use.
type Store struct {
	mu    sync.RWMutex
	path  string
	token string
}

// Open loads the store at path, creating parent directories lazily on the
// first Save. A missing file is an empty store, not an error.
func Open(path string) (*Store, error) {
	s := &Store{path: path}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read token store: %w", err)
	}

	var kv map[string]string
	if err := json.Unmarshal(data, &kv); err != nil {
		return nil, fmt.Errorf("decode token store: %w", err)
	}
	s.token = kv[storageKey]
	return s, nil
}

// Token returns the stored bearer token, empty when none is saved.
func (s *Store) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// Save persists a new token.
func (s *Store) Save(token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create token dir: %w", err)
	}
	data, err := json.Marshal(map[string]string{storageKey: token})
	if err != nil {
		return err
	}
	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		return fmt.Errorf("write token store: %w", err)
	}
	s.token = token
	return nil
}

// Clear removes the stored token, e.g. after the backend reports the account
// banned. Idempotent.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.token = ""
	err := os.Remove(s.path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove token store: %w", err)
	}
	return nil
}

// Inspect parses the stored token without verifying its signature and returns
// its claims.
func (s *Store) Inspect() (*Claims, error) {
	token := s.Token()
	if token == "" {
		return nil, errors.New("no token stored")
	}

	claims := &Claims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}
	return claims, nil
}

// Expired reports whether the stored token carries an exp claim in the past.
// Tokens without an exp claim are treated as live.
func (s *Store) Expired() bool {
	claims, err := s.Inspect()
	if err != nil || claims.ExpiresAt == nil {
		return false
	}
	return claims.ExpiresAt.Before(time.Now())
}
