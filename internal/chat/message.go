package chat

import (
	"encoding/json"
	"time"
)

// PlaceholderUsername substitutes for an absent author name. The platform's
// UI language is Arabic; this is the string its users already see.
const PlaceholderUsername = "مستخدم غير معروف"

// Reaction is an emoji reaction aggregated by the server.
type Reaction struct {
	Emoji string   `json:"emoji"`
	Count int      `json:"count"`
	Users []string `json:"users"`
}

// Message is a normalized community chat entry. ID is the sole deduplication
// identity; two messages with the same ID are the same logical message no
// matter which transport delivered them.
type Message struct {
	ID        int64      `json:"id"`
	Username  string     `json:"username"`
	Content   string     `json:"content"`
	CreatedAt time.Time  `json:"created_at"`
	IsAdmin   bool       `json:"isAdmin"`
	IsPinned  bool       `json:"isPinned"`
	Reactions []Reaction `json:"reactions"`
}

// rawRecord mirrors the wire shapes the backend has delivered over time. The
// timestamp and admin flag each exist under two names depending on which
// endpoint produced the record.
type rawRecord struct {
	ID             json.Number     `json:"id"`
	Username       string          `json:"username"`
	Content        string          `json:"content"`
	CreatedAt      string          `json:"createdAt"`
	CreatedAtSnake string          `json:"created_at"`
	IsAdminMessage *bool           `json:"isAdminMessage"`
	IsAdmin        *bool           `json:"isAdmin"`
	IsPinned       bool            `json:"isPinned"`
	Reactions      json.RawMessage `json:"reactions"`
}

type rawReaction struct {
	Emoji string          `json:"emoji"`
	Count int             `json:"count"`
	Users json.RawMessage `json:"users"`
}

// Normalize parses one raw message record into its canonical form. Missing
// fields degrade to safe defaults rather than failing; only an unparseable
// record returns an error, and callers drop such records without stopping
// ingestion.
func Normalize(raw []byte) (Message, error) {
	var rec rawRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return Message{}, err
	}
	return normalizeRecord(rec), nil
}

// NormalizeBatch parses a slice of raw records, dropping malformed entries.
func NormalizeBatch(raws []json.RawMessage) []Message {
	out := make([]Message, 0, len(raws))
	for _, raw := range raws {
		msg, err := Normalize(raw)
		if err != nil {
			continue
		}
		out = append(out, msg)
	}
	return out
}

func normalizeRecord(rec rawRecord) Message {
	msg := Message{
		Username: rec.Username,
		Content:  rec.Content,
		IsPinned: rec.IsPinned,
	}

	if id, err := rec.ID.Int64(); err == nil {
		msg.ID = id
	}

	if msg.Username == "" {
		msg.Username = PlaceholderUsername
	}

	msg.CreatedAt = parseTimestamp(rec.CreatedAt, rec.CreatedAtSnake)

	switch {
	case rec.IsAdminMessage != nil:
		msg.IsAdmin = *rec.IsAdminMessage
	case rec.IsAdmin != nil:
		msg.IsAdmin = *rec.IsAdmin
	}

	msg.Reactions = normalizeReactions(rec.Reactions)
	return msg
}

// parseTimestamp accepts either field spelling and falls back to now when
// both are absent or unparseable.
func parseTimestamp(camel, snake string) time.Time {
	for _, s := range []string{camel, snake} {
		if s == "" {
			continue
		}
		if ts, err := time.Parse(time.RFC3339, s); err == nil {
			return ts
		}
		if ts, err := time.Parse(time.RFC3339Nano, s); err == nil {
			return ts
		}
	}
	return time.Now().UTC()
}

func normalizeReactions(raw json.RawMessage) []Reaction {
	if len(raw) == 0 {
		return []Reaction{}
	}

	var entries []rawReaction
	if err := json.Unmarshal(raw, &entries); err != nil {
		return []Reaction{}
	}

	out := make([]Reaction, 0, len(entries))
	for _, e := range entries {
		r := Reaction{Emoji: e.Emoji, Count: e.Count, Users: []string{}}
		if r.Count < 0 {
			r.Count = 0
		}
		var users []string
		if err := json.Unmarshal(e.Users, &users); err == nil && users != nil {
			r.Users = users
		}
		out = append(out, r)
	}
	return out
}
