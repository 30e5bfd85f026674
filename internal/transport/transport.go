// Package transport defines the duplex channel abstraction the chat client
// speaks through, independent of the mechanism underneath. The push form is a
// persistent websocket session with subscribe/publish framing; the pull form
// is a plain request/response client the caller drives on an interval.
package transport

import (
	"context"
	"errors"
)

// ErrNotConnected is returned by Publish when the channel is closed. Callers
// are responsible for falling back to the pull path.
var ErrNotConnected = errors.New("transport: not connected")

// FrameHandler receives the opaque body of one inbound frame on a subscribed
// topic. Bodies are JSON text the caller parses itself.
type FrameHandler func(body []byte)

// PushChannel is an established push session.
type PushChannel interface {
	// Subscribe registers a handler invoked once per inbound frame on the
	// topic. Registering again for the same topic replaces the handler.
	Subscribe(topic string, h FrameHandler)
	// Publish is a fire-and-forget send to an application destination.
	// Returns ErrNotConnected once the channel has closed.
	Publish(destination string, body any) error
	// Close tears the session down. Idempotent.
	Close()
	// Done is closed when the session ends, whether by Close or by failure.
	Done() <-chan struct{}
	// Err reports why the session ended; nil before Done and after a clean
	// Close.
	Err() error
}

// PushDialer establishes push sessions. Implementations report handshake
// failure through the returned error, never by panicking.
type PushDialer interface {
	Dial(ctx context.Context, endpoint, token string) (PushChannel, error)
}
