package rest

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/promoxa/community-client/internal/log"
)

type tokens struct{ token string }

func (t tokens) Token() string { return t.token }

func newClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	logger := log.NewWithWriter("error", discardWriter{})
	return New(srv.URL, tokens{token: "tok"}, 100, logger), srv
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

func TestFetchPaginatedEnvelope(t *testing.T) {
	client, _ := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/community/messages" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("authorization = %q", got)
		}
		if got := r.URL.Query().Get("size"); got != "100" {
			t.Errorf("size = %q", got)
		}
		w.Write([]byte(`{"content": [{"id": 1}, {"id": 2}]}`))
	}))

	records, err := client.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2", len(records))
	}
}

func TestFetchBareArray(t *testing.T) {
	client, _ := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"id": 3}]`))
	}))

	records, err := client.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("got %d records, want 1", len(records))
	}
}

func TestFetchErrorStatus(t *testing.T) {
	client, _ := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))

	if _, err := client.Fetch(context.Background()); err == nil {
		t.Fatal("expected error on 401")
	}
}

func TestSendPostsContent(t *testing.T) {
	client, _ := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s", r.Method)
		}
		var body map[string]string
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode body: %v", err)
		}
		if body["content"] != "hello" {
			t.Errorf("content = %q", body["content"])
		}
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"id": 9, "content": "hello"}`))
	}))

	record, err := client.Send(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Send: %v", err)
	}

	var rec struct {
		ID int64 `json:"id"`
	}
	if err := json.Unmarshal(record, &rec); err != nil || rec.ID != 9 {
		t.Fatalf("record = %s (err %v)", record, err)
	}
}
