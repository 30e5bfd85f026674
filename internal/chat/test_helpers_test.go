package chat

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/promoxa/community-client/internal/log"
	"github.com/promoxa/community-client/internal/transport"
	"github.com/rs/zerolog"
)

func testLogger() *zerolog.Logger {
	return log.NewWithWriter("error", testWriter{})
}

type testWriter struct{}

func (testWriter) Write(p []byte) (int, error) { return len(p), nil }

type staticTokens struct{ token string }

func (s staticTokens) Token() string { return s.token }

// fakeChannel is an in-memory push channel the tests drive by hand.
type fakeChannel struct {
	mu        sync.Mutex
	handlers  map[string]transport.FrameHandler
	published []fakePublish
	done      chan struct{}
	closed    bool
	err       error
}

type fakePublish struct {
	destination string
	body        any
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{
		handlers: make(map[string]transport.FrameHandler),
		done:     make(chan struct{}),
	}
}

func (c *fakeChannel) Subscribe(topic string, h transport.FrameHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[topic] = h
}

func (c *fakeChannel) Publish(destination string, body any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return transport.ErrNotConnected
	}
	c.published = append(c.published, fakePublish{destination: destination, body: body})
	return nil
}

func (c *fakeChannel) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.done)
}

func (c *fakeChannel) fail(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.err = err
	close(c.done)
}

func (c *fakeChannel) Done() <-chan struct{} { return c.done }

func (c *fakeChannel) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// inject delivers a frame body to the handler subscribed on the destination.
func (c *fakeChannel) inject(t *testing.T, destination string, body []byte) {
	t.Helper()
	c.mu.Lock()
	h := c.handlers[destination]
	c.mu.Unlock()
	if h == nil {
		t.Fatalf("no handler subscribed on %s", destination)
	}
	h(body)
}

func (c *fakeChannel) publishCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.published)
}

// fakeDialer scripts dial outcomes and records attempt times.
type fakeDialer struct {
	mu         sync.Mutex
	err        error // returned on every dial when non-nil
	channelErr error // when non-nil, each dialed channel fails with it at once
	channels   []*fakeChannel
	attempts   []time.Time
}

func (d *fakeDialer) Dial(_ context.Context, _, _ string) (transport.PushChannel, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.attempts = append(d.attempts, time.Now())
	if d.err != nil {
		return nil, d.err
	}
	ch := newFakeChannel()
	if d.channelErr != nil {
		ch.fail(d.channelErr)
	}
	d.channels = append(d.channels, ch)
	return ch, nil
}

func (d *fakeDialer) attemptCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.attempts)
}

func (d *fakeDialer) attemptTimes() []time.Time {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]time.Time(nil), d.attempts...)
}

func (d *fakeDialer) lastChannel() *fakeChannel {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.channels) == 0 {
		return nil
	}
	return d.channels[len(d.channels)-1]
}

// fakeFetcher scripts the pull fallback.
type fakeFetcher struct {
	mu         sync.Mutex
	fetches    int
	sends      int
	fetchBody  []json.RawMessage
	fetchGate  chan struct{} // when non-nil, Fetch blocks until closed
	sendRecord json.RawMessage
	sendErr    error
	fetchErr   error
}

func (f *fakeFetcher) Fetch(ctx context.Context) ([]json.RawMessage, error) {
	f.mu.Lock()
	f.fetches++
	gate := f.fetchGate
	body := f.fetchBody
	err := f.fetchErr
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
		}
	}
	return body, err
}

func (f *fakeFetcher) Send(_ context.Context, _ string) (json.RawMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sends++
	return f.sendRecord, f.sendErr
}

func (f *fakeFetcher) sendCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sends
}

// collector records listener invocations.
type collector struct {
	mu   sync.Mutex
	msgs []Message
}

func (c *collector) listen(msg Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs = append(c.msgs, msg)
}

func (c *collector) messages() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Message(nil), c.msgs...)
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met: %s", msg)
}

func rawMsg(t *testing.T, id int64, username, content string) []byte {
	t.Helper()
	raw, err := json.Marshal(map[string]any{
		"id":        id,
		"username":  username,
		"content":   content,
		"createdAt": "2024-01-01T00:00:00Z",
	})
	if err != nil {
		t.Fatalf("marshal raw message: %v", err)
	}
	return raw
}
