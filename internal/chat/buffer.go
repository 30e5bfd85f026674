package chat

import "sync"

// Buffer is the session-local deduplicated mirror of observed messages. Every
// ingestion path (push frame, poll cycle, local send echo) merges through it,
// so a message reaches listeners at most once per session.
type Buffer struct {
	mu    sync.Mutex
	seen  map[int64]struct{}
	order []Message
}

// NewBuffer returns an empty buffer.
func NewBuffer() *Buffer {
	return &Buffer{seen: make(map[int64]struct{})}
}

// Merge records the candidate if its ID has not been seen and reports whether
// it was net-new. First-seen wins: a later arrival with a known ID never
// overwrites any field of the stored entry. The optimistic echo of a send and
// the broadcast of the same message can land in either order, and both carry
// the same content, so keeping the first is safe.
func (b *Buffer) Merge(msg Message) (Message, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.mergeLocked(msg)
}

// MergeBatch merges candidates in input order and returns the net-new
// subsequence in that same order.
func (b *Buffer) MergeBatch(msgs []Message) []Message {
	b.mu.Lock()
	defer b.mu.Unlock()

	fresh := make([]Message, 0, len(msgs))
	for _, msg := range msgs {
		if merged, ok := b.mergeLocked(msg); ok {
			fresh = append(fresh, merged)
		}
	}
	return fresh
}

func (b *Buffer) mergeLocked(msg Message) (Message, bool) {
	if _, ok := b.seen[msg.ID]; ok {
		return Message{}, false
	}
	b.seen[msg.ID] = struct{}{}
	b.order = append(b.order, msg)
	return msg, true
}

// Snapshot returns all known messages in ingestion order. Chronological
// ordering, if wanted, is the display layer's concern.
func (b *Buffer) Snapshot() []Message {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]Message, len(b.order))
	copy(out, b.order)
	return out
}

// Len reports the number of distinct messages observed this session.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.order)
}

// Reset discards the mirror; called on disconnect so the next session starts
// clean.
func (b *Buffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.seen = make(map[int64]struct{})
	b.order = nil
}
