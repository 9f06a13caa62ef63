// ABOUTME: Tests for the event dispatcher
// ABOUTME: Covers the self filter, non-blocking dispatch, error isolation, dedupe and queue limits

package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/kook-gateway/internal/api"
	"github.com/2389/kook-gateway/internal/dedupe"
	"github.com/2389/kook-gateway/internal/wire"
)

const botID = "bot-1"

func testSession() *Session {
	return &Session{Self: api.User{ID: botID, Username: "bot", Bot: true}}
}

type recorder struct {
	mu     sync.Mutex
	events []*wire.Event
	errs   []error
}

func (r *recorder) HandleEvent(_ context.Context, _ *Session, evt *wire.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
	return nil
}

func (r *recorder) ReportError(_ *wire.Event, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs = append(r.errs, err)
}

func (r *recorder) handled() []*wire.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*wire.Event(nil), r.events...)
}

func (r *recorder) reported() []error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]error(nil), r.errs...)
}

// selfHandler opts in to its own messages.
type selfHandler struct {
	recorder
}

func (*selfHandler) SkipSelfAuthored() bool { return false }

func TestDispatch_SkipsSelfAuthoredByDefault(t *testing.T) {
	h := &recorder{}
	d := New(context.Background(), testSession(), h, Options{})

	d.Dispatch(&wire.Event{AuthorID: botID, MsgID: "m1"})
	d.Dispatch(&wire.Event{AuthorID: "user-2", MsgID: "m2"})
	d.Wait()

	got := h.handled()
	require.Len(t, got, 1)
	assert.Equal(t, "m2", got[0].MsgID)
}

func TestDispatch_SelfAuthoredWhenPolicyDisabled(t *testing.T) {
	h := &selfHandler{}
	d := New(context.Background(), testSession(), h, Options{})

	d.Dispatch(&wire.Event{AuthorID: botID, MsgID: "m1"})
	d.Wait()

	got := h.handled()
	require.Len(t, got, 1)
	assert.Equal(t, botID, got[0].AuthorID)
}

func TestDispatch_DoesNotWaitForHandler(t *testing.T) {
	release := make(chan struct{})
	started := make(chan string, 2)

	h := HandlerFunc(func(_ context.Context, _ *Session, evt *wire.Event) error {
		started <- evt.MsgID
		if evt.MsgID == "slow" {
			<-release
		}
		return nil
	})
	d := New(context.Background(), testSession(), h, Options{})

	returned := make(chan struct{})
	go func() {
		d.Dispatch(&wire.Event{AuthorID: "u", MsgID: "slow"})
		d.Dispatch(&wire.Event{AuthorID: "u", MsgID: "fast"})
		close(returned)
	}()

	select {
	case <-returned:
	case <-time.After(time.Second):
		t.Fatal("Dispatch blocked on a slow handler")
	}

	seen := map[string]bool{}
	for i := 0; i < 2; i++ {
		select {
		case id := <-started:
			seen[id] = true
		case <-time.After(time.Second):
			t.Fatal("handler not started")
		}
	}
	assert.True(t, seen["fast"])

	close(release)
	d.Wait()
}

func TestDispatch_HandlerErrorGoesToReporter(t *testing.T) {
	boom := errors.New("boom")
	r := &recorder{}
	h := HandlerFunc(func(context.Context, *Session, *wire.Event) error { return boom })

	d := New(context.Background(), testSession(), h, Options{Reporter: r})
	d.Dispatch(&wire.Event{AuthorID: "u", MsgID: "m1"})
	d.Wait()

	errs := r.reported()
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], boom)

	var herr *HandlerError
	require.ErrorAs(t, errs[0], &herr)
	assert.NotEmpty(t, herr.DispatchID)
}

func TestDispatch_FailureLogCarriesDispatchID(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	h := HandlerFunc(func(context.Context, *Session, *wire.Event) error { return errors.New("boom") })

	d := New(context.Background(), testSession(), h, Options{Logger: logger})
	d.Dispatch(&wire.Event{AuthorID: "u", MsgID: "m1"})
	d.Wait()

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "handler failed", line["msg"])
	assert.Equal(t, "m1", line["msg_id"])
	assert.Equal(t, "boom", line["error"])
	id, _ := line["dispatch_id"].(string)
	assert.NotEmpty(t, id)
}

func TestDispatch_HandlerAsOwnReporter(t *testing.T) {
	h := &failingReporter{}
	d := New(context.Background(), testSession(), h, Options{})

	d.Dispatch(&wire.Event{AuthorID: "u", MsgID: "m1"})
	d.Wait()

	assert.Equal(t, 1, h.count())
}

type failingReporter struct {
	mu   sync.Mutex
	errs int
}

func (*failingReporter) HandleEvent(context.Context, *Session, *wire.Event) error {
	return errors.New("nope")
}

func (f *failingReporter) ReportError(*wire.Event, error) {
	f.mu.Lock()
	f.errs++
	f.mu.Unlock()
}

func (f *failingReporter) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.errs
}

func TestDispatch_RecoversPanics(t *testing.T) {
	r := &recorder{}
	h := HandlerFunc(func(context.Context, *Session, *wire.Event) error { panic("kaboom") })

	d := New(context.Background(), testSession(), h, Options{Reporter: r})
	d.Dispatch(&wire.Event{AuthorID: "u", MsgID: "m1"})
	d.Wait()

	errs := r.reported()
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Error(), "kaboom")
}

func TestDispatch_DropsDuplicates(t *testing.T) {
	cache := dedupe.New(time.Minute, 16)
	defer cache.Close()

	h := &recorder{}
	d := New(context.Background(), testSession(), h, Options{Dedupe: cache})

	d.Dispatch(&wire.Event{AuthorID: "u", MsgID: "m1"})
	d.Dispatch(&wire.Event{AuthorID: "u", MsgID: "m1"})
	d.Dispatch(&wire.Event{AuthorID: "u", MsgID: "m2"})
	d.Wait()

	assert.Len(t, h.handled(), 2)
}

func TestDispatch_BoundedQueueFull(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{}, 4)
	r := &recorder{}

	h := HandlerFunc(func(context.Context, *Session, *wire.Event) error {
		started <- struct{}{}
		<-release
		return nil
	})
	d := New(context.Background(), testSession(), h, Options{
		MaxInFlight: 1,
		QueueSize:   1,
		Reporter:    r,
	})

	d.Dispatch(&wire.Event{AuthorID: "u", MsgID: "m1"})
	<-started // worker busy with m1

	d.Dispatch(&wire.Event{AuthorID: "u", MsgID: "m2"}) // queued
	d.Dispatch(&wire.Event{AuthorID: "u", MsgID: "m3"}) // dropped

	errs := r.reported()
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], ErrQueueFull)

	close(release)
	d.Close()
	assert.Len(t, started, 1)
}

func TestDispatch_AfterClose(t *testing.T) {
	r := &recorder{}
	d := New(context.Background(), testSession(), &recorder{}, Options{Reporter: r, MaxInFlight: 2})
	d.Close()
	d.Close()

	d.Dispatch(&wire.Event{AuthorID: "u", MsgID: "m1"})
	errs := r.reported()
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], ErrClosed)
}

func TestDispatch_PassesContextAndSession(t *testing.T) {
	type key struct{}
	ctx := context.WithValue(context.Background(), key{}, "v")
	sess := testSession()

	var (
		gotCtx  context.Context
		gotSess *Session
	)
	h := HandlerFunc(func(ctx context.Context, s *Session, _ *wire.Event) error {
		gotCtx, gotSess = ctx, s
		return nil
	})

	d := New(ctx, sess, h, Options{})
	d.Dispatch(&wire.Event{AuthorID: "u"})
	d.Wait()

	assert.Equal(t, "v", gotCtx.Value(key{}))
	assert.Same(t, sess, gotSess)
}
