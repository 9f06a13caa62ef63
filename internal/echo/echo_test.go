// ABOUTME: Tests for the echo handler
// ABOUTME: Runs against an httptest REST server and checks the replies it posts

package echo

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/kook-gateway/internal/api"
	"github.com/2389/kook-gateway/internal/dispatch"
	"github.com/2389/kook-gateway/internal/wire"
)

type sent struct {
	Path     string
	Type     int    `json:"type"`
	TargetID string `json:"target_id"`
	Content  string `json:"content"`
}

type fakeAPI struct {
	mu   sync.Mutex
	sent []sent
	code int
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var s sent
	_ = json.NewDecoder(r.Body).Decode(&s)
	s.Path = r.URL.Path

	f.mu.Lock()
	f.sent = append(f.sent, s)
	code := f.code
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if code != 0 {
		_ = json.NewEncoder(w).Encode(map[string]any{"code": code, "message": "no permission", "data": map[string]any{}})
		return
	}
	_ = json.NewEncoder(w).Encode(map[string]any{
		"code":    0,
		"message": "",
		"data":    map[string]any{"msg_id": "reply-1", "msg_timestamp": 1, "nonce": ""},
	})
}

func (f *fakeAPI) requests() []sent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sent(nil), f.sent...)
}

func setup(t *testing.T) (*fakeAPI, *dispatch.Session) {
	t.Helper()
	fake := &fakeAPI{}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	client := api.NewClient(srv.URL, api.BotToken("t"))
	return fake, &dispatch.Session{Self: api.User{ID: "bot"}, Client: client}
}

func TestHandleEvent_EchoesGroupMessage(t *testing.T) {
	fake, sess := setup(t)
	h := New(nil)

	err := h.HandleEvent(context.Background(), sess, &wire.Event{
		ChannelType: wire.ChannelGroup,
		Type:        wire.EventKMarkdown,
		TargetID:    "chan-1",
		AuthorID:    "u1",
		Content:     "**hi**",
		MsgID:       "m1",
	})
	require.NoError(t, err)

	reqs := fake.requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "/api/v3/message/create", reqs[0].Path)
	assert.Equal(t, 9, reqs[0].Type)
	assert.Equal(t, "chan-1", reqs[0].TargetID)
	assert.Equal(t, "**hi**", reqs[0].Content)
}

func TestHandleEvent_EchoesPrivateMessageToAuthor(t *testing.T) {
	fake, sess := setup(t)
	h := New(nil)

	err := h.HandleEvent(context.Background(), sess, &wire.Event{
		ChannelType: wire.ChannelPerson,
		Type:        wire.EventText,
		TargetID:    "bot",
		AuthorID:    "u1",
		Content:     "hello",
		MsgID:       "m2",
	})
	require.NoError(t, err)

	reqs := fake.requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "/api/v3/direct-message/create", reqs[0].Path)
	assert.Equal(t, 1, reqs[0].Type)
	assert.Equal(t, "u1", reqs[0].TargetID)
}

func TestHandleEvent_IgnoresOtherEvents(t *testing.T) {
	fake, sess := setup(t)
	h := New(nil)

	for _, evt := range []*wire.Event{
		{Type: wire.EventImage, Content: "https://img", AuthorID: "u1"},
		{Type: wire.EventSystem, AuthorID: "1"},
		{Type: wire.EventText, Content: "", AuthorID: "u1"},
	} {
		require.NoError(t, h.HandleEvent(context.Background(), sess, evt))
	}
	assert.Empty(t, fake.requests())
}

func TestHandleEvent_ReturnsAPIError(t *testing.T) {
	fake, sess := setup(t)
	fake.code = 40000
	h := New(nil)

	err := h.HandleEvent(context.Background(), sess, &wire.Event{
		Type: wire.EventText, TargetID: "c", AuthorID: "u1", Content: "x", MsgID: "m3",
	})
	require.Error(t, err)

	var apiErr *api.Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 40000, apiErr.Code)
}

func TestSkipSelfAuthored(t *testing.T) {
	h := New(nil)
	assert.True(t, h.SkipSelfAuthored())

	h.SkipSelf = false
	assert.False(t, h.SkipSelfAuthored())
}
