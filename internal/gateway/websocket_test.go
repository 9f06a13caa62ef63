// ABOUTME: End-to-end tests running the engine against an httptest websocket server
// ABOUTME: Covers plain and zlib-compressed frames over a real gorilla connection

package gateway

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/klauspost/compress/zlib"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/kook-gateway/internal/wire"
)

type staticDiscoverer string

func (d staticDiscoverer) GatewayURL(context.Context, bool) (string, error) {
	return string(d), nil
}

func compress(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	_, err := w.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf.Bytes()
}

// gatewayServer sends hello and one event, then answers pings with pongs.
func gatewayServer(t *testing.T, compressed bool, pings chan<- []byte) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		send := func(raw string) error {
			if compressed {
				return conn.WriteMessage(websocket.BinaryMessage, compress(t, []byte(raw)))
			}
			return conn.WriteMessage(websocket.TextMessage, []byte(raw))
		}

		if err := send(`{"s":1,"d":{"code":0,"session_id":"e2e"}}`); err != nil {
			return
		}
		if err := send(eventFrame(7, "u1", "e2e-msg")); err != nil {
			return
		}
		if compressed {
			// Corrupt payload: skipped by the client.
			if err := conn.WriteMessage(websocket.BinaryMessage, []byte("not zlib")); err != nil {
				return
			}
			if err := send(eventFrame(8, "u1", "after-corrupt")); err != nil {
				return
			}
		}

		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			select {
			case pings <- data:
			default:
			}
			if err := send(`{"s":3}`); err != nil {
				return
			}
		}
	}))
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/gateway?token=t"
}

func runAgainst(t *testing.T, srv *httptest.Server, cfg Config) (chan *wire.Event, *Engine) {
	t.Helper()
	events := make(chan *wire.Event, 8)
	engine := New(cfg, staticDiscoverer(wsURL(srv)), &WebsocketDialer{HandshakeTimeout: time.Second},
		DispatcherFunc(func(evt *wire.Event) { events <- evt }))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- engine.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(waitTimeout):
			t.Error("engine did not stop")
		}
	})
	return events, engine
}

func TestWebsocket_EndToEnd(t *testing.T) {
	pings := make(chan []byte, 4)
	srv := gatewayServer(t, false, pings)
	defer srv.Close()

	cfg := testConfig()
	cfg.HeartbeatInterval = 20 * time.Millisecond
	events, engine := runAgainst(t, srv, cfg)

	select {
	case evt := <-events:
		assert.Equal(t, "e2e-msg", evt.MsgID)
		assert.Equal(t, wire.EventText, evt.Type)
	case <-time.After(waitTimeout):
		t.Fatal("no event received")
	}
	assert.Equal(t, StateEstablished, engine.State())

	select {
	case data := <-pings:
		msg, err := wire.Decode(data)
		require.NoError(t, err)
		assert.Equal(t, &wire.Ping{Sequence: 7}, msg)
	case <-time.After(waitTimeout):
		t.Fatal("no ping received by server")
	}

	// The server answers every ping, so the session stays up past the
	// timeout window.
	time.Sleep(8 * cfg.HeartbeatInterval)
	assert.Equal(t, StateEstablished, engine.State())
}

func TestWebsocket_CompressedFrames(t *testing.T) {
	srv := gatewayServer(t, true, make(chan []byte, 4))
	defer srv.Close()

	cfg := testConfig()
	cfg.Compress = true
	events, engine := runAgainst(t, srv, cfg)

	var ids []string
	for i := 0; i < 2; i++ {
		select {
		case evt := <-events:
			ids = append(ids, evt.MsgID)
		case <-time.After(waitTimeout):
			t.Fatalf("got %v, want two events", ids)
		}
	}
	assert.Equal(t, []string{"e2e-msg", "after-corrupt"}, ids)
	assert.Equal(t, StateEstablished, engine.State())
}

func TestWebsocketDialer_BadHandshake(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	defer srv.Close()

	d := &WebsocketDialer{}
	_, err := d.Dial(context.Background(), wsURL(srv))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 403")
}

func TestInflate(t *testing.T) {
	out, err := inflate(compress(t, []byte(`{"s":3}`)))
	require.NoError(t, err)
	assert.Equal(t, `{"s":3}`, string(out))

	_, err = inflate([]byte("plain"))
	assert.Error(t, err)
}
