package chat

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/promoxa/community-client/internal/proto"
)

// MessageListener receives each net-new message exactly once, in ingestion
// order. Listeners must not call back into the Service.
type MessageListener func(Message)

// Fetcher is the pull fallback surface the Service drives on an interval.
type Fetcher interface {
	Fetch(ctx context.Context) ([]json.RawMessage, error)
	Send(ctx context.Context, content string) (json.RawMessage, error)
}

// Options tunes a Service.
type Options struct {
	PollInterval   time.Duration
	ReceiptTimeout time.Duration
}

// Service is the community chat facade the application consumes. One Service
// covers one UI session; the composing application owns the instance and its
// teardown, there is no package-level shared client.
type Service struct {
	sup      *Supervisor
	rest     Fetcher
	log      *zerolog.Logger
	buffer   *Buffer
	interval time.Duration

	receiptTimeout time.Duration
	receipts       chan Message
	sendMu         sync.Mutex

	// dispatchMu serializes merge-then-notify against teardown so no
	// listener fires after Disconnect has cleared the list.
	dispatchMu sync.Mutex

	mu           sync.Mutex
	listeners    []MessageListener
	started      bool
	closed       bool
	cancel       context.CancelFunc
	pollInFlight bool
	pollActive   bool
}

// NewService wires a facade over the supervisor and pull client.
func NewService(sup *Supervisor, rest Fetcher, opts Options, logger *zerolog.Logger) *Service {
	if opts.PollInterval <= 0 {
		opts.PollInterval = time.Second
	}
	if opts.ReceiptTimeout <= 0 {
		opts.ReceiptTimeout = 5 * time.Second
	}

	s := &Service{
		sup:            sup,
		rest:           rest,
		log:            logger,
		buffer:         NewBuffer(),
		interval:       opts.PollInterval,
		receiptTimeout: opts.ReceiptTimeout,
		receipts:       make(chan Message, 4),
	}

	sup.Subscribe(proto.TopicCommunity, s.ingestFrame)
	sup.Subscribe(proto.DestCommunitySend, s.ingestReceipt)
	return s
}

// Connect registers the listener and starts delivery: the supervisor begins
// establishing the push channel and the poll loop starts as the fallback
// ingestion source. Listener registrations are additive; calling Connect
// again while running only adds the listener.
func (s *Service) Connect(ctx context.Context, identity string, onMessage MessageListener) error {
	s.mu.Lock()
	if s.closed {
		// a torn-down service can be connected again for a fresh session
		s.closed = false
	}
	if onMessage != nil {
		s.listeners = append(s.listeners, onMessage)
	}
	if s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = true
	sessionCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.pollActive = true
	s.mu.Unlock()

	s.log.Info().Str("identity", identity).Msg("connecting to community chat")

	if err := s.sup.Connect(sessionCtx); err != nil {
		if errors.Is(err, ErrNoCredential) {
			s.Disconnect()
			return clientError(ErrCodeNoCredential, "no credential available for community chat", err)
		}
		s.log.Warn().Err(err).Msg("push channel unavailable, continuing on poll fallback")
	}

	go s.pollLoop(sessionCtx)
	return nil
}

// OnConnectionChange registers a connectivity listener; additive.
func (s *Service) OnConnectionChange(fn func(bool)) {
	s.sup.OnConnectionChange(fn)
}

// Send delivers one message. The push channel is tried first when connected;
// any publish failure falls back to the pull path. Whichever path succeeds,
// the echoed record is merged and listeners are notified before Send returns,
// so the sender's own display updates without waiting for the broadcast.
//
// A receipt timeout after a successful publish is the one failure that does
// NOT fall back: the message may already be on the server, and a pull resend
// could post it twice. Callers see a send_failed error but should treat the
// outcome as unknown rather than certainly lost.
func (s *Service) Send(ctx context.Context, content string) (Message, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return Message{}, clientError(ErrCodeSendFailed, "message content is empty", nil)
	}

	if s.sup.IsConnected() {
		msg, err := s.sendPush(ctx, content)
		switch {
		case err == nil:
			return msg, nil
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			return Message{}, clientError(ErrCodeSendFailed, "send canceled", err)
		case errors.Is(err, errReceiptTimeout):
			// The publish was written; resending over REST could create a
			// second server-side message, so surface the failure instead.
			return Message{}, clientError(ErrCodeSendFailed, "no confirmation for sent message", err)
		default:
			s.log.Debug().Err(err).Msg("push send failed, using pull fallback")
		}
	}

	raw, err := s.rest.Send(ctx, content)
	if err != nil {
		return Message{}, clientError(ErrCodeSendFailed, "failed to send message", err)
	}
	msg, err := Normalize(raw)
	if err != nil {
		return Message{}, clientError(ErrCodeSendFailed, "malformed send response", err)
	}

	s.deliver([]Message{msg})
	return msg, nil
}

var errReceiptTimeout = errors.New("timed out waiting for send receipt")

func (s *Service) sendPush(ctx context.Context, content string) (Message, error) {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()

	// drop receipts from abandoned sends
	for {
		select {
		case <-s.receipts:
			continue
		default:
		}
		break
	}

	if err := s.sup.Publish(proto.DestCommunitySend, proto.SendBody{Content: content}); err != nil {
		return Message{}, err
	}

	timer := time.NewTimer(s.receiptTimeout)
	defer timer.Stop()
	select {
	case msg := <-s.receipts:
		s.deliver([]Message{msg})
		return msg, nil
	case <-timer.C:
		return Message{}, errReceiptTimeout
	case <-ctx.Done():
		return Message{}, ctx.Err()
	}
}

// Refresh forces one poll cycle outside the interval, e.g. behind a manual
// refresh control.
func (s *Service) Refresh(ctx context.Context) error {
	return s.pollOnce(ctx)
}

// Snapshot returns all messages observed this session in ingestion order.
func (s *Service) Snapshot() []Message {
	return s.buffer.Snapshot()
}

// State reports the push channel state for status displays.
func (s *Service) State() State {
	return s.sup.State()
}

// IsConnected is true when the push channel is up, or, while degraded to
// pull-only delivery, when the poll loop is running.
func (s *Service) IsConnected() bool {
	if s.sup.IsConnected() {
		return true
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pollActive && !s.closed
}

// Disconnect tears the session down: supervisor, poll loop, listeners, and
// the message mirror. Safe to call repeatedly and before any Connect.
func (s *Service) Disconnect() {
	s.dispatchMu.Lock()
	s.mu.Lock()
	s.closed = true
	s.started = false
	s.pollActive = false
	cancel := s.cancel
	s.cancel = nil
	s.listeners = nil
	s.mu.Unlock()
	s.dispatchMu.Unlock()

	if cancel != nil {
		cancel()
	}
	s.sup.Disconnect()
	s.buffer.Reset()
}

func (s *Service) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.pollOnce(ctx); err != nil {
				s.log.Debug().Err(err).Msg("poll cycle failed")
			}
		}
	}
}

// pollOnce runs a single fetch cycle. The in-flight guard keeps a slow
// network from stacking concurrent requests.
func (s *Service) pollOnce(ctx context.Context) error {
	s.mu.Lock()
	if s.pollInFlight || s.closed {
		s.mu.Unlock()
		return nil
	}
	s.pollInFlight = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.pollInFlight = false
		s.mu.Unlock()
	}()

	raws, err := s.rest.Fetch(ctx)
	if err != nil {
		return err
	}
	s.deliver(NormalizeBatch(raws))
	return nil
}

func (s *Service) ingestFrame(body []byte) {
	msg, err := Normalize(body)
	if err != nil {
		s.log.Debug().Err(err).Msg("dropping malformed push frame")
		return
	}
	s.deliver([]Message{msg})
}

func (s *Service) ingestReceipt(body []byte) {
	msg, err := Normalize(body)
	if err != nil {
		s.log.Debug().Err(err).Msg("dropping malformed send receipt")
		return
	}
	select {
	case s.receipts <- msg:
	default:
		// nobody waiting; the broadcast copy will still arrive on the topic
		s.deliver([]Message{msg})
	}
}

// deliver merges candidates and notifies listeners. Merge and notification
// happen under dispatchMu as one step: a second ingestion source cannot
// interleave its notifications inside this batch, and teardown cannot slip
// between the merge and the listener calls.
func (s *Service) deliver(msgs []Message) {
	if len(msgs) == 0 {
		return
	}

	s.dispatchMu.Lock()
	defer s.dispatchMu.Unlock()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	fresh := s.buffer.MergeBatch(msgs)
	listeners := append([]MessageListener(nil), s.listeners...)
	s.mu.Unlock()

	for _, msg := range fresh {
		for _, fn := range listeners {
			fn(msg)
		}
	}
}
