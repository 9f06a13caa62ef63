// ABOUTME: Bot orchestrator that wires identity, dispatcher, session engine and HTTP server
// ABOUTME: Runs everything under one errgroup until the context is cancelled

package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/2389/kook-gateway/internal/api"
	"github.com/2389/kook-gateway/internal/config"
	"github.com/2389/kook-gateway/internal/dedupe"
	"github.com/2389/kook-gateway/internal/dispatch"
	"github.com/2389/kook-gateway/internal/gateway"
	"github.com/2389/kook-gateway/internal/metrics"
)

// Bot runs one gateway session engine for one token.
type Bot struct {
	config  *config.Config
	client  *api.Client
	handler dispatch.Handler
	dialer  gateway.Dialer
	metrics *metrics.Collectors
	logger  *slog.Logger

	mu     sync.RWMutex
	self   *api.User
	engine *gateway.Engine

	// listening receives the bound HTTP address once the server is up.
	listening chan net.Addr
}

// Option configures a Bot.
type Option func(*Bot)

func WithLogger(logger *slog.Logger) Option {
	return func(b *Bot) { b.logger = logger }
}

// WithMetrics overrides the collectors created from config.
func WithMetrics(m *metrics.Collectors) Option {
	return func(b *Bot) { b.metrics = m }
}

// WithDialer replaces the websocket dialer.
func WithDialer(d gateway.Dialer) Option {
	return func(b *Bot) { b.dialer = d }
}

// WithClient replaces the REST client built from config.
func WithClient(c *api.Client) Option {
	return func(b *Bot) { b.client = c }
}

// New creates a bot for cfg that hands events to handler.
func New(cfg *config.Config, handler dispatch.Handler, opts ...Option) (*Bot, error) {
	b := &Bot{
		config:    cfg,
		handler:   handler,
		logger:    slog.Default(),
		listening: make(chan net.Addr, 1),
	}
	for _, opt := range opts {
		opt(b)
	}

	if b.client == nil {
		kind, err := api.ParseTokenKind(cfg.Bot.TokenType)
		if err != nil {
			return nil, fmt.Errorf("parsing token type: %w", err)
		}
		b.client = api.NewClient(cfg.Bot.APIBase, api.Token{Kind: kind, Value: cfg.Bot.Token},
			api.WithLogger(b.logger))
	}
	if b.dialer == nil {
		b.dialer = &gateway.WebsocketDialer{HandshakeTimeout: cfg.Gateway.HandshakeTimeout}
	}
	if b.metrics == nil && cfg.Metrics.Enabled {
		m, err := metrics.New()
		if err != nil {
			return nil, fmt.Errorf("creating metrics: %w", err)
		}
		b.metrics = m
	}
	return b, nil
}

// Client returns the REST client.
func (b *Bot) Client() *api.Client {
	return b.client
}

// Self returns the identity looked up by Run, or nil before that.
func (b *Bot) Self() *api.User {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.self
}

// Ready reports whether the gateway session is Established.
func (b *Bot) Ready() bool {
	b.mu.RLock()
	engine := b.engine
	b.mu.RUnlock()
	return engine != nil && engine.State() == gateway.StateEstablished
}

// Listening delivers the HTTP server's address once it is bound.
func (b *Bot) Listening() <-chan net.Addr {
	return b.listening
}

// Run looks up the bot identity and runs until ctx is cancelled. It returns
// nil on cancellation and an error only if startup fails.
func (b *Bot) Run(ctx context.Context) error {
	me, err := b.client.Me(ctx)
	if err != nil {
		return fmt.Errorf("looking up bot identity: %w", err)
	}
	b.logger.Info("bot identity", "id", me.ID, "username", me.Username+"#"+me.IdentifyNum)

	var cache *dedupe.Cache
	if ttl := b.config.Dispatch.DedupeTTL; ttl > 0 {
		cache = dedupe.New(ttl, b.config.Dispatch.DedupeSize, dedupe.WithSweepInterval(ttl))
		defer cache.Close()
	}

	dispatcher := dispatch.New(ctx, &dispatch.Session{Self: *me, Client: b.client}, b.handler, dispatch.Options{
		MaxInFlight: b.config.Dispatch.MaxInFlight,
		QueueSize:   b.config.Dispatch.QueueSize,
		Dedupe:      cache,
		Logger:      b.logger,
		Metrics:     b.metrics,
	})

	engine := gateway.New(gateway.Config{
		Compress:          b.config.Gateway.Compress,
		HandshakeTimeout:  b.config.Gateway.HandshakeTimeout,
		HeartbeatInterval: b.config.Gateway.HeartbeatInterval,
	}, b.client, b.dialer, dispatcher,
		gateway.WithLogger(b.logger),
		gateway.WithMetrics(b.metrics),
	)

	b.mu.Lock()
	b.self = me
	b.engine = engine
	b.mu.Unlock()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := engine.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("gateway engine: %w", err)
		}
		return nil
	})
	if addr := b.config.Server.HTTPAddr; addr != "" {
		g.Go(func() error { return b.serveHTTP(gctx, addr) })
	}

	err = g.Wait()
	dispatcher.Close()
	b.logger.Info("bot stopped")
	return err
}

// Handler returns the health and metrics routes.
func (b *Bot) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", b.handleHealth)
	mux.HandleFunc("GET /health/ready", b.handleReady)
	if b.metrics != nil && b.config.Metrics.Enabled {
		mux.Handle("GET "+b.config.Metrics.Path, b.metrics.Handler())
	}
	return mux
}

func (b *Bot) serveHTTP(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}
	srv := &http.Server{
		Handler:           b.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		b.logger.Info("HTTP server listening", "addr", ln.Addr().String())
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("HTTP server: %w", err)
		}
		close(errCh)
	}()
	select {
	case b.listening <- ln.Addr():
	default:
	}

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return err
	}

	// The run context is already cancelled, so shut down on a fresh one.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down HTTP server: %w", err)
	}
	return nil
}

func (b *Bot) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handleReady returns 200 OK only while the gateway session is established.
func (b *Bot) handleReady(w http.ResponseWriter, r *http.Request) {
	b.mu.RLock()
	engine := b.engine
	b.mu.RUnlock()

	if engine == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("starting"))
		return
	}
	state := engine.State()
	if state != gateway.StateEstablished {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(state.String()))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}
