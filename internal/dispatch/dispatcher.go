// ABOUTME: Event dispatcher applying the self-author and dedupe filters
// ABOUTME: Runs handlers off the receive loop and isolates their errors

package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/2389/kook-gateway/internal/api"
	"github.com/2389/kook-gateway/internal/dedupe"
	"github.com/2389/kook-gateway/internal/metrics"
	"github.com/2389/kook-gateway/internal/wire"
)

// ErrQueueFull is reported when a bounded dispatcher drops an event.
var ErrQueueFull = errors.New("dispatch: queue full, event dropped")

// ErrClosed is reported for events dispatched after Close.
var ErrClosed = errors.New("dispatch: dispatcher closed")

// HandlerError is what reporters receive when a handler fails or panics.
// DispatchID matches the dispatch_id on the handler's debug log lines.
type HandlerError struct {
	DispatchID string
	Err        error
}

func (e *HandlerError) Error() string {
	return fmt.Sprintf("dispatch %s: %v", e.DispatchID, e.Err)
}

func (e *HandlerError) Unwrap() error { return e.Err }

// Session is the read-only handle every invocation receives.
type Session struct {
	Self   api.User
	Client *api.Client
}

// Handler is user logic run for each event that passes the filters.
type Handler interface {
	HandleEvent(ctx context.Context, sess *Session, evt *wire.Event) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, sess *Session, evt *wire.Event) error

func (f HandlerFunc) HandleEvent(ctx context.Context, sess *Session, evt *wire.Event) error {
	return f(ctx, sess, evt)
}

// SelfAuthoredSkipper lets a handler opt in to its own messages.
type SelfAuthoredSkipper interface {
	SkipSelfAuthored() bool
}

// ErrorReporter receives handler failures.
type ErrorReporter interface {
	ReportError(evt *wire.Event, err error)
}

// Options configures a Dispatcher. The zero value dispatches every event in
// its own goroutine with no dedupe.
type Options struct {
	// MaxInFlight > 0 runs that many workers fed by a queue of QueueSize.
	MaxInFlight int
	QueueSize   int

	Dedupe   *dedupe.Cache
	Reporter ErrorReporter
	Logger   *slog.Logger
	Metrics  *metrics.Collectors
}

type job struct {
	id  string
	evt *wire.Event
}

// Dispatcher implements the event side of the gateway session.
type Dispatcher struct {
	ctx      context.Context
	session  *Session
	handler  Handler
	skipSelf bool
	reporter ErrorReporter
	dedupe   *dedupe.Cache
	logger   *slog.Logger
	metrics  *metrics.Collectors

	mu       sync.RWMutex
	closed   bool
	queue    chan job
	inFlight sync.WaitGroup
	workers  sync.WaitGroup
}

// New creates a dispatcher. ctx is the parent of every handler invocation; it
// is not cancelled by reconnects.
func New(ctx context.Context, sess *Session, handler Handler, opts Options) *Dispatcher {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "dispatch")

	d := &Dispatcher{
		ctx:      ctx,
		session:  sess,
		handler:  handler,
		skipSelf: true,
		reporter: opts.Reporter,
		dedupe:   opts.Dedupe,
		logger:   logger,
		metrics:  opts.Metrics,
	}
	if s, ok := handler.(SelfAuthoredSkipper); ok {
		d.skipSelf = s.SkipSelfAuthored()
	}
	if d.reporter == nil {
		if r, ok := handler.(ErrorReporter); ok {
			d.reporter = r
		} else {
			d.reporter = logReporter{logger: logger}
		}
	}

	if opts.MaxInFlight > 0 {
		size := opts.QueueSize
		if size <= 0 {
			size = opts.MaxInFlight
		}
		d.queue = make(chan job, size)
		for i := 0; i < opts.MaxInFlight; i++ {
			d.workers.Add(1)
			go d.worker()
		}
	}
	return d
}

// Dispatch filters evt and schedules the handler. It never blocks on handler
// work.
func (d *Dispatcher) Dispatch(evt *wire.Event) {
	if d.skipSelf && evt.AuthorID == d.session.Self.ID {
		d.metrics.Event(metrics.OutcomeSelf)
		return
	}
	if d.dedupe != nil && evt.MsgID != "" && d.dedupe.Seen(evt.MsgID) {
		d.logger.Debug("dropping duplicate event", "msg_id", evt.MsgID)
		d.metrics.Event(metrics.OutcomeDuplicate)
		return
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		d.reporter.ReportError(evt, ErrClosed)
		return
	}

	j := job{id: uuid.NewString(), evt: evt}
	if d.queue == nil {
		d.inFlight.Add(1)
		d.metrics.Event(metrics.OutcomeDispatched)
		go func() {
			defer d.inFlight.Done()
			d.invoke(j)
		}()
		return
	}

	d.inFlight.Add(1)
	select {
	case d.queue <- j:
		d.metrics.Event(metrics.OutcomeDispatched)
	default:
		d.inFlight.Done()
		d.metrics.Event(metrics.OutcomeDropped)
		d.reporter.ReportError(evt, ErrQueueFull)
	}
}

func (d *Dispatcher) worker() {
	defer d.workers.Done()
	for j := range d.queue {
		d.invoke(j)
		d.inFlight.Done()
	}
}

func (d *Dispatcher) invoke(j job) {
	done := d.metrics.HandlerStarted()
	err := d.call(j)
	done(err)

	if err != nil {
		d.reporter.ReportError(j.evt, &HandlerError{DispatchID: j.id, Err: err})
		return
	}
	d.logger.Debug("event handled",
		"dispatch_id", j.id,
		"msg_id", j.evt.MsgID,
		"type", j.evt.Type.String(),
	)
}

func (d *Dispatcher) call(j job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return d.handler.HandleEvent(d.ctx, d.session, j.evt)
}

// Wait blocks until every dispatched invocation has returned.
func (d *Dispatcher) Wait() {
	d.inFlight.Wait()
}

// Close stops accepting events, lets queued work finish, and stops workers.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	if d.queue != nil {
		close(d.queue)
	}
	d.mu.Unlock()

	d.workers.Wait()
	d.inFlight.Wait()
}

type logReporter struct {
	logger *slog.Logger
}

func (r logReporter) ReportError(evt *wire.Event, err error) {
	logger := r.logger
	var herr *HandlerError
	if errors.As(err, &herr) {
		logger = logger.With("dispatch_id", herr.DispatchID)
		err = herr.Err
	}
	logger.Error("handler failed",
		"msg_id", evt.MsgID,
		"author_id", evt.AuthorID,
		"error", err,
	)
}
