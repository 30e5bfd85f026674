package chat

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/promoxa/community-client/internal/transport"
)

// State is the push-channel connectivity state owned by the Supervisor.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

// TokenSource yields the current bearer token at connect time.
type TokenSource interface {
	Token() string
}

// SupervisorConfig tunes the reconnect policy.
type SupervisorConfig struct {
	Endpoint       string
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	MaxAttempts    int
}

type subscription struct {
	destination string
	handler     transport.FrameHandler
}

// Supervisor owns the push channel lifecycle: dial, resubscribe, watch for
// closure, back off, retry, and give up once the attempt budget is spent.
// Failures never escape as panics; connectivity listeners are the only
// upward surface.
type Supervisor struct {
	cfg    SupervisorConfig
	dialer transport.PushDialer
	tokens TokenSource
	log    *zerolog.Logger

	mu        sync.Mutex
	state     State
	reconnect bool
	channel   transport.PushChannel
	attempts  int
	delay     time.Duration
	subs      []subscription
	listeners []func(bool)
}

// NewSupervisor builds a supervisor in the Disconnected state.
func NewSupervisor(cfg SupervisorConfig, dialer transport.PushDialer, tokens TokenSource, logger *zerolog.Logger) *Supervisor {
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = time.Second
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 30 * time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 10
	}
	return &Supervisor{
		cfg:    cfg,
		dialer: dialer,
		tokens: tokens,
		log:    logger,
		delay:  cfg.InitialBackoff,
	}
}

// Subscribe registers a destination handler applied on every successful
// connect. Registrations are additive and survive reconnects.
func (s *Supervisor) Subscribe(destination string, h transport.FrameHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subs = append(s.subs, subscription{destination: destination, handler: h})
}

// OnConnectionChange registers a connectivity listener; additive.
func (s *Supervisor) OnConnectionChange(fn func(bool)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// Connect starts the connection loop. A no-op while already Connecting or
// Connected. A missing credential fails immediately without retrying: waiting
// will not produce a token, only caller action will.
func (s *Supervisor) Connect(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateDisconnected {
		s.mu.Unlock()
		return nil
	}
	if s.tokens.Token() == "" {
		s.mu.Unlock()
		s.log.Error().Msg("cannot connect push channel: no credential stored")
		return ErrNoCredential
	}
	s.state = StateConnecting
	s.reconnect = true
	s.attempts = 0
	s.delay = s.cfg.InitialBackoff
	s.mu.Unlock()

	go s.run(ctx)
	return nil
}

// run is the single goroutine driving dial/backoff/retry for one session.
func (s *Supervisor) run(ctx context.Context) {
	sessionID := uuid.NewString()
	logger := s.log.With().Str("session_id", sessionID).Logger()

	for {
		s.mu.Lock()
		if !s.reconnect {
			s.state = StateDisconnected
			s.mu.Unlock()
			return
		}
		token := s.tokens.Token()
		s.mu.Unlock()

		ch, err := s.dialer.Dial(ctx, s.cfg.Endpoint, token)
		if err != nil {
			logger.Warn().Err(err).Msg("push channel handshake failed")
			s.notify(false)
			if !s.scheduleRetry(ctx, &logger) {
				return
			}
			continue
		}

		s.mu.Lock()
		if !s.reconnect {
			s.mu.Unlock()
			ch.Close()
			return
		}
		s.channel = ch
		s.state = StateConnected
		subs := append([]subscription(nil), s.subs...)
		s.mu.Unlock()
		connectedAt := time.Now()

		for _, sub := range subs {
			ch.Subscribe(sub.destination, sub.handler)
		}
		logger.Info().Str("endpoint", s.cfg.Endpoint).Msg("push channel connected")
		s.notify(true)

		select {
		case <-ctx.Done():
			ch.Close()
			s.mu.Lock()
			s.channel = nil
			s.state = StateDisconnected
			s.mu.Unlock()
			return
		case <-ch.Done():
		}

		s.mu.Lock()
		s.channel = nil
		stopping := !s.reconnect
		if stopping {
			s.state = StateDisconnected
		} else {
			s.state = StateConnecting
			// only a connection that held for a while earns a fresh
			// retry budget; a flapping server does not
			if time.Since(connectedAt) >= s.cfg.MaxBackoff {
				s.attempts = 0
				s.delay = s.cfg.InitialBackoff
			}
		}
		s.mu.Unlock()

		s.notify(false)
		if stopping {
			return
		}
		logger.Warn().Err(ch.Err()).Msg("push channel closed, reconnecting")
		if !s.scheduleRetry(ctx, &logger) {
			return
		}
	}
}

// scheduleRetry applies the backoff policy after a failed attempt. It reports
// false when the budget is spent or the session was torn down, in which case
// the state is already Disconnected.
func (s *Supervisor) scheduleRetry(ctx context.Context, logger *zerolog.Logger) bool {
	s.mu.Lock()
	s.attempts++
	if s.attempts >= s.cfg.MaxAttempts || !s.reconnect {
		exhausted := s.reconnect
		s.state = StateDisconnected
		s.reconnect = false
		s.mu.Unlock()
		if exhausted {
			logger.Error().Int("attempts", s.cfg.MaxAttempts).Msg("push channel retry budget spent, giving up")
		}
		return false
	}
	wait := s.delay
	s.delay *= 2
	if s.delay > s.cfg.MaxBackoff {
		s.delay = s.cfg.MaxBackoff
	}
	s.mu.Unlock()

	logger.Info().Dur("wait", wait).Int("attempt", s.attempts).Msg("retrying push channel")
	select {
	case <-ctx.Done():
		s.mu.Lock()
		s.state = StateDisconnected
		s.mu.Unlock()
		return false
	case <-time.After(wait):
		return true
	}
}

// Publish sends to an application destination over the current channel.
func (s *Supervisor) Publish(destination string, body any) error {
	s.mu.Lock()
	ch := s.channel
	connected := s.state == StateConnected
	s.mu.Unlock()

	if !connected || ch == nil {
		return transport.ErrNotConnected
	}
	return ch.Publish(destination, body)
}

// State reports the current connectivity state.
func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// IsConnected is true only in the Connected state.
func (s *Supervisor) IsConnected() bool {
	return s.State() == StateConnected
}

// Disconnect stops reconnection, closes any open channel, clears listeners,
// and resets retry state. Idempotent.
func (s *Supervisor) Disconnect() {
	s.mu.Lock()
	s.reconnect = false
	ch := s.channel
	s.channel = nil
	s.state = StateDisconnected
	s.listeners = nil
	s.attempts = 0
	s.delay = s.cfg.InitialBackoff
	s.mu.Unlock()

	if ch != nil {
		ch.Close()
	}
}

func (s *Supervisor) notify(connected bool) {
	s.mu.Lock()
	listeners := append([]func(bool){}, s.listeners...)
	s.mu.Unlock()

	for _, fn := range listeners {
		fn(connected)
	}
}
