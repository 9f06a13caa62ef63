// ABOUTME: Session state machine driving discovery, connect, handshake and steady state
// ABOUTME: Loops back to discovery on every failure until its context is cancelled

package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/2389/kook-gateway/internal/heartbeat"
	"github.com/2389/kook-gateway/internal/metrics"
	"github.com/2389/kook-gateway/internal/wire"
)

// State is the engine's position in the connection lifecycle.
type State int32

const (
	StateDiscover State = iota
	StateConnect
	StateWaitHandshake
	StateEstablished
)

func (s State) String() string {
	switch s {
	case StateDiscover:
		return "discover"
	case StateConnect:
		return "connect"
	case StateWaitHandshake:
		return "wait_handshake"
	case StateEstablished:
		return "established"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Reasons a session ends and the engine returns to Discover.
var (
	ErrHandshakeRejected  = errors.New("gateway: handshake rejected")
	ErrHandshakeTimeout   = errors.New("gateway: handshake timed out")
	ErrReconnectRequested = errors.New("gateway: server requested reconnect")
	ErrHeartbeatTimeout   = errors.New("gateway: heartbeat timed out")
)

// TransitionFunc observes state changes. It runs on the engine goroutine and
// must not block.
type TransitionFunc func(from, to State)

// Option configures an Engine.
type Option func(*Engine)

func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

func WithMetrics(m *metrics.Collectors) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithTransitionHook registers fn to be called on every transition,
// including Discover to Discover retries.
func WithTransitionHook(fn TransitionFunc) Option {
	return func(e *Engine) { e.onTransition = fn }
}

// Engine is the gateway session state machine.
type Engine struct {
	cfg        Config
	discoverer Discoverer
	dialer     Dialer
	dispatcher Dispatcher

	logger       *slog.Logger
	metrics      *metrics.Collectors
	onTransition TransitionFunc

	state atomic.Int32
}

// New creates an engine. It does nothing until Run is called.
func New(cfg Config, discoverer Discoverer, dialer Dialer, dispatcher Dispatcher, opts ...Option) *Engine {
	e := &Engine{
		cfg:        cfg.withDefaults(),
		discoverer: discoverer,
		dialer:     dialer,
		dispatcher: dispatcher,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With("component", "gateway")
	return e
}

// State returns the current state. Safe to call from any goroutine.
func (e *Engine) State() State {
	return State(e.state.Load())
}

func (e *Engine) transition(to State) {
	from := State(e.state.Swap(int32(to)))
	e.logger.Debug("state transition", "from", from.String(), "to", to.String())
	e.metrics.SetState(int(to), from.String(), to.String())
	if e.onTransition != nil {
		e.onTransition(from, to)
	}
}

// reset returns to Discover unless already there.
func (e *Engine) reset() {
	if e.State() != StateDiscover {
		e.transition(StateDiscover)
	}
}

// Run drives the state machine until ctx is done and returns ctx.Err().
func (e *Engine) Run(ctx context.Context) error {
	defer e.reset()
	e.reset()
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := e.cycle(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		e.logger.Error("gateway session ended", "error", err)
		e.transition(StateDiscover)
	}
}

// cycle runs one Discover -> ... -> failure pass. It always returns non-nil.
func (e *Engine) cycle(ctx context.Context) error {
	url, err := e.discoverer.GatewayURL(ctx, e.cfg.Compress)
	if err != nil {
		return fmt.Errorf("discovering gateway: %w", err)
	}

	e.transition(StateConnect)
	e.logger.Info("connecting to gateway", "url", redactURL(url))
	conn, err := e.dialer.Dial(ctx, url)
	if err != nil {
		return fmt.Errorf("connecting to gateway: %w", err)
	}

	s := newSession(conn)
	defer s.close()

	e.transition(StateWaitHandshake)
	if err := e.awaitHello(ctx, s); err != nil {
		return err
	}

	e.transition(StateEstablished)
	e.logger.Info("gateway session established")
	return e.established(ctx, s)
}

func (e *Engine) awaitHello(ctx context.Context, s *session) error {
	timer := time.NewTimer(e.cfg.HandshakeTimeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			return fmt.Errorf("%w after %s", ErrHandshakeTimeout, e.cfg.HandshakeTimeout)
		case r := <-s.frames:
			msg, err := e.receive(r, false)
			if err != nil {
				return err
			}
			switch m := msg.(type) {
			case *wire.Hello:
				if m.Code != 0 {
					return fmt.Errorf("%w: code %d", ErrHandshakeRejected, m.Code)
				}
				if m.SessionID != nil {
					e.logger.Debug("handshake accepted", "session_id", *m.SessionID)
				}
				return nil
			case *wire.Reconnect:
				return e.reconnect(m)
			default:
				e.logger.Debug("ignoring frame before handshake", "kind", msg.Kind().String())
			}
		}
	}
}

func (e *Engine) established(ctx context.Context, s *session) error {
	ticker := time.NewTicker(e.cfg.HeartbeatInterval)
	defer ticker.Stop()

	if err := e.heartbeat(s); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := e.heartbeat(s); err != nil {
				return err
			}
		case r := <-s.frames:
			msg, err := e.receive(r, true)
			if err != nil {
				return err
			}
			switch m := msg.(type) {
			case nil:
			case *wire.EventFrame:
				e.metrics.SetMaxSequence(s.observe(m.Sequence))
				e.dispatcher.Dispatch(&m.Event)
			case *wire.Pong:
				s.beat.Pong()
			case *wire.Reconnect:
				return e.reconnect(m)
			default:
				e.logger.Debug("ignoring frame", "kind", msg.Kind().String())
			}
		}
	}
}

func (e *Engine) heartbeat(s *session) error {
	switch s.beat.Tick() {
	case heartbeat.SendPing:
		data, err := wire.Encode(&wire.Ping{Sequence: s.maxSeq})
		if err != nil {
			return fmt.Errorf("encoding ping: %w", err)
		}
		if err := s.conn.WriteFrame(data); err != nil {
			return fmt.Errorf("sending ping: %w", err)
		}
		e.metrics.PingSent()
		e.logger.Debug("ping sent", "sn", s.maxSeq)
	case heartbeat.Timeout:
		e.logger.Error("no pong from gateway", "interval", e.cfg.HeartbeatInterval)
		return ErrHeartbeatTimeout
	}
	return nil
}

// receive turns one read result into a message. With skipBad set, undecodable
// frames come back as (nil, nil) so the caller keeps reading. Without it they
// are fatal, the same as transport errors.
func (e *Engine) receive(r readResult, skipBad bool) (wire.Message, error) {
	if r.err != nil {
		if !errors.Is(r.err, ErrBadFrame) {
			return nil, fmt.Errorf("reading frame: %w", r.err)
		}
		e.metrics.DecodeError()
		if !skipBad {
			return nil, fmt.Errorf("awaiting hello: %w", r.err)
		}
		e.logger.Warn("skipping unreadable frame", "error", r.err)
		return nil, nil
	}

	msg, err := wire.Decode(r.data)
	if err != nil {
		e.metrics.DecodeError()
		if !skipBad {
			return nil, fmt.Errorf("awaiting hello: %w", err)
		}
		e.logger.Warn("skipping malformed frame", "error", err)
		return nil, nil
	}
	e.metrics.FrameReceived(msg.Kind().String())
	return msg, nil
}

func (e *Engine) reconnect(m *wire.Reconnect) error {
	e.logger.Error("gateway requested reconnect", "code", m.Code, "err", m.Err)
	return fmt.Errorf("%w: code %d: %s", ErrReconnectRequested, m.Code, m.Err)
}
