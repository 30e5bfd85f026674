package ws

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"

	"github.com/promoxa/community-client/internal/proto"
	"github.com/promoxa/community-client/internal/transport"
)

// Dialer establishes push sessions over websocket with the JSON frame
// protocol: dial, send a connect frame carrying the bearer credential, and
// wait for the broker's connected frame before handing the channel out.
type Dialer struct {
	log *zerolog.Logger
}

// NewDialer builds a websocket push dialer.
func NewDialer(logger *zerolog.Logger) *Dialer {
	return &Dialer{log: logger}
}

// Dial implements transport.PushDialer.
func (d *Dialer) Dial(ctx context.Context, endpoint, token string) (transport.PushChannel, error) {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)

	conn, _, err := websocket.Dial(ctx, endpoint, &websocket.DialOptions{HTTPHeader: header})
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", endpoint, err)
	}

	if err := wsjson.Write(ctx, conn, proto.ConnectFrame(token)); err != nil {
		conn.Close(websocket.StatusInternalError, "connect frame failed")
		return nil, fmt.Errorf("write connect frame: %w", err)
	}

	var reply proto.Frame
	if err := wsjson.Read(ctx, conn, &reply); err != nil {
		conn.Close(websocket.StatusInternalError, "no connected frame")
		return nil, fmt.Errorf("read connected frame: %w", err)
	}
	switch reply.Type {
	case proto.FrameConnected:
	case proto.FrameError:
		conn.Close(websocket.StatusNormalClosure, "rejected")
		if reply.Error != nil {
			return nil, fmt.Errorf("broker rejected connect: %s", reply.Error.Msg)
		}
		return nil, errors.New("broker rejected connect")
	default:
		conn.Close(websocket.StatusProtocolError, "unexpected frame")
		return nil, fmt.Errorf("unexpected frame %q during handshake", reply.Type)
	}

	readCtx, cancel := context.WithCancel(context.Background())
	ch := &Channel{
		conn:     conn,
		log:      d.log,
		handlers: make(map[string]transport.FrameHandler),
		done:     make(chan struct{}),
		ctx:      readCtx,
		cancel:   cancel,
	}
	go ch.readLoop()

	return ch, nil
}

// Channel is an established websocket push session.
type Channel struct {
	conn   *websocket.Conn
	log    *zerolog.Logger
	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	handlers map[string]transport.FrameHandler
	closed   bool
	err      error

	done     chan struct{}
	doneOnce sync.Once
}

// Subscribe registers the handler and asks the broker for the topic. Inbound
// message frames on the topic are dispatched to the handler from the read
// loop goroutine.
func (c *Channel) Subscribe(topic string, h transport.FrameHandler) {
	c.mu.Lock()
	c.handlers[topic] = h
	closed := c.closed
	c.mu.Unlock()

	if closed {
		return
	}
	if err := wsjson.Write(c.ctx, c.conn, proto.SubscribeFrame(topic)); err != nil {
		c.log.Warn().Err(err).Str("topic", topic).Msg("subscribe frame failed")
		c.finish(err)
	}
}

// Publish sends a frame to an application destination. Fire and forget: there
// is no delivery acknowledgment at this layer.
func (c *Channel) Publish(destination string, body any) error {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return transport.ErrNotConnected
	}

	frame, err := proto.SendFrame(destination, body)
	if err != nil {
		return fmt.Errorf("encode send frame: %w", err)
	}
	if err := wsjson.Write(c.ctx, c.conn, frame); err != nil {
		c.finish(err)
		return transport.ErrNotConnected
	}
	return nil
}

// Close is idempotent and safe on an already-failed channel.
func (c *Channel) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()

	c.cancel()
	_ = c.conn.Close(websocket.StatusNormalClosure, "bye")
	c.doneOnce.Do(func() { close(c.done) })
}

// Done reports session end.
func (c *Channel) Done() <-chan struct{} {
	return c.done
}

// Err reports why the session ended, nil for a clean Close.
func (c *Channel) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

func (c *Channel) readLoop() {
	for {
		var frame proto.Frame
		if err := wsjson.Read(c.ctx, c.conn, &frame); err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				err = nil
			}
			c.finish(err)
			return
		}

		switch frame.Type {
		case proto.FrameMessage:
			c.dispatch(frame)
		case proto.FrameError:
			if frame.Error != nil {
				c.log.Warn().Str("code", frame.Error.Code).Str("msg", frame.Error.Msg).Msg("broker error frame")
			}
		default:
			c.log.Debug().Str("type", frame.Type).Msg("ignoring frame")
		}
	}
}

func (c *Channel) dispatch(frame proto.Frame) {
	c.mu.Lock()
	h := c.handlers[frame.Destination]
	c.mu.Unlock()

	if h == nil {
		c.log.Debug().Str("destination", frame.Destination).Msg("frame for unsubscribed destination")
		return
	}
	h(frame.Body)
}

// finish marks the channel failed and wakes Done waiters. The first cause
// wins; later writes racing the read loop do not overwrite it.
func (c *Channel) finish(err error) {
	c.mu.Lock()
	if !c.closed {
		c.closed = true
		c.err = err
	}
	c.mu.Unlock()

	c.cancel()
	_ = c.conn.Close(websocket.StatusInternalError, "session ended")
	c.doneOnce.Do(func() { close(c.done) })
}
