package chat

import (
	"encoding/json"
	"testing"
	"time"
)

func TestNormalizeEmptyRecordDefaults(t *testing.T) {
	before := time.Now().UTC()
	msg, err := Normalize([]byte(`{}`))
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}

	if msg.ID != 0 {
		t.Errorf("id = %d, want 0", msg.ID)
	}
	if msg.Username != PlaceholderUsername {
		t.Errorf("username = %q, want placeholder", msg.Username)
	}
	if msg.Content != "" {
		t.Errorf("content = %q, want empty", msg.Content)
	}
	if msg.CreatedAt.Before(before) || msg.CreatedAt.After(time.Now().UTC().Add(time.Second)) {
		t.Errorf("createdAt = %v, want roughly now", msg.CreatedAt)
	}
	if msg.IsAdmin || msg.IsPinned {
		t.Errorf("flags = admin:%v pinned:%v, want false/false", msg.IsAdmin, msg.IsPinned)
	}
	if msg.Reactions == nil || len(msg.Reactions) != 0 {
		t.Errorf("reactions = %v, want empty slice", msg.Reactions)
	}
}

func TestNormalizeAcceptsBothTimestampFields(t *testing.T) {
	want := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

	for _, field := range []string{"createdAt", "created_at"} {
		raw := []byte(`{"id": 1, "` + field + `": "2024-01-02T03:04:05Z"}`)
		msg, err := Normalize(raw)
		if err != nil {
			t.Fatalf("Normalize(%s): %v", field, err)
		}
		if !msg.CreatedAt.Equal(want) {
			t.Errorf("%s: createdAt = %v, want %v", field, msg.CreatedAt, want)
		}
	}
}

func TestNormalizeAcceptsBothAdminFields(t *testing.T) {
	for _, raw := range []string{
		`{"id": 1, "isAdminMessage": true}`,
		`{"id": 1, "isAdmin": true}`,
	} {
		msg, err := Normalize([]byte(raw))
		if err != nil {
			t.Fatalf("Normalize(%s): %v", raw, err)
		}
		if !msg.IsAdmin {
			t.Errorf("%s: isAdmin = false, want true", raw)
		}
	}
}

func TestNormalizeStringID(t *testing.T) {
	msg, err := Normalize([]byte(`{"id": "42"}`))
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if msg.ID != 42 {
		t.Fatalf("id = %d, want 42", msg.ID)
	}
}

func TestNormalizeMalformedReactions(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"non-array reactions", `{"id": 1, "reactions": "nope"}`},
		{"null reactions", `{"id": 1, "reactions": null}`},
		{"absent reactions", `{"id": 1}`},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			msg, err := Normalize([]byte(tc.raw))
			if err != nil {
				t.Fatalf("Normalize: %v", err)
			}
			if len(msg.Reactions) != 0 {
				t.Fatalf("reactions = %v, want empty", msg.Reactions)
			}
		})
	}
}

func TestNormalizeReactionWithMalformedUsers(t *testing.T) {
	raw := []byte(`{"id": 1, "reactions": [{"emoji": "👍", "count": 3, "users": "bad"}, {"emoji": "🔥", "count": 1, "users": ["alice"]}]}`)
	msg, err := Normalize(raw)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}

	if len(msg.Reactions) != 2 {
		t.Fatalf("reactions = %v, want two entries", msg.Reactions)
	}
	if len(msg.Reactions[0].Users) != 0 {
		t.Errorf("malformed users should normalize to empty, got %v", msg.Reactions[0].Users)
	}
	if len(msg.Reactions[1].Users) != 1 || msg.Reactions[1].Users[0] != "alice" {
		t.Errorf("valid users mangled: %v", msg.Reactions[1].Users)
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	first, err := Normalize([]byte(`{"id": 7, "username": "alice", "content": "hi", "createdAt": "2024-01-01T00:00:00Z", "isAdminMessage": true, "isPinned": true, "reactions": [{"emoji": "👍", "count": 2, "users": ["bob"]}]}`))
	if err != nil {
		t.Fatalf("first Normalize: %v", err)
	}

	reencoded, err := json.Marshal(first)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	second, err := Normalize(reencoded)
	if err != nil {
		t.Fatalf("second Normalize: %v", err)
	}

	if second.ID != first.ID || second.Username != first.Username || second.Content != first.Content ||
		!second.CreatedAt.Equal(first.CreatedAt) || second.IsAdmin != first.IsAdmin || second.IsPinned != first.IsPinned {
		t.Fatalf("re-normalized message differs:\nfirst  %+v\nsecond %+v", first, second)
	}
	if len(second.Reactions) != 1 || second.Reactions[0].Emoji != "👍" || second.Reactions[0].Count != 2 {
		t.Fatalf("re-normalized reactions differ: %+v", second.Reactions)
	}
}

func TestNormalizeBatchDropsMalformed(t *testing.T) {
	raws := []json.RawMessage{
		json.RawMessage(`{"id": 1, "content": "ok"}`),
		json.RawMessage(`not json`),
		json.RawMessage(`{"id": 2, "content": "also ok"}`),
	}

	msgs := NormalizeBatch(raws)
	if len(msgs) != 2 {
		t.Fatalf("got %d messages, want 2", len(msgs))
	}
	if msgs[0].ID != 1 || msgs[1].ID != 2 {
		t.Fatalf("order not preserved: %+v", msgs)
	}
}
