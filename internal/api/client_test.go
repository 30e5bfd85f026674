package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/promoxa/community-client/internal/cache"
	"github.com/promoxa/community-client/internal/cred"
	"github.com/promoxa/community-client/internal/log"
)

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

func newTestClient(t *testing.T, handler http.Handler) (*Client, *cred.Store) {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	creds, err := cred.Open(filepath.Join(t.TempDir(), "tokens.json"))
	if err != nil {
		t.Fatalf("open cred store: %v", err)
	}

	logger := log.NewWithWriter("error", discardWriter{})
	return New(srv.URL, creds, cache.New(0), logger), creds
}

func TestLoginStoresToken(t *testing.T) {
	client, creds := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/auth/login" || r.Method != http.MethodPost {
			t.Errorf("%s %s", r.Method, r.URL.Path)
		}
		var body map[string]string
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode: %v", err)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"token": "tok-login",
			"user":  map[string]any{"id": 1, "username": body["username"]},
		})
	}))

	user, err := client.Login(context.Background(), "alice", "secret")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if user.Username != "alice" {
		t.Fatalf("user = %+v", user)
	}
	if creds.Token() != "tok-login" {
		t.Fatalf("stored token = %q", creds.Token())
	}
}

func TestProfileIsCached(t *testing.T) {
	var hits atomic.Int64
	client, creds := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("authorization = %q", got)
		}
		json.NewEncoder(w).Encode(map[string]any{"id": 1, "username": "alice"})
	}))
	if err := creds.Save("tok"); err != nil {
		t.Fatalf("save token: %v", err)
	}

	for i := 0; i < 3; i++ {
		user, err := client.Profile(context.Background())
		if err != nil {
			t.Fatalf("Profile: %v", err)
		}
		if user.Username != "alice" {
			t.Fatalf("user = %+v", user)
		}
	}
	if hits.Load() != 1 {
		t.Fatalf("backend hit %d times, want 1 (cached)", hits.Load())
	}
}

func TestErrorResponseBecomesTypedError(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(map[string]string{"message": "invalid credentials"})
	}))

	_, err := client.Login(context.Background(), "alice", "wrong")
	var apiErr *Error
	if !errors.As(err, &apiErr) {
		t.Fatalf("err = %v, want *Error", err)
	}
	if apiErr.Status != http.StatusUnauthorized || apiErr.Message != "invalid credentials" {
		t.Fatalf("apiErr = %+v", apiErr)
	}
}

func TestBanClearsCredential(t *testing.T) {
	client, creds := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		json.NewEncoder(w).Encode(map[string]string{"error": "USER_BANNED", "message": "account banned"})
	}))
	if err := creds.Save("tok"); err != nil {
		t.Fatalf("save token: %v", err)
	}

	_, err := client.Profile(context.Background())
	var apiErr *Error
	if !errors.As(err, &apiErr) || apiErr.Code != "USER_BANNED" {
		t.Fatalf("err = %v, want USER_BANNED", err)
	}
	if creds.Token() != "" {
		t.Fatal("credential survived ban response")
	}
}
