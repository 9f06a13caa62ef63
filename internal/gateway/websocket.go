// ABOUTME: Websocket transport for the gateway using gorilla/websocket
// ABOUTME: Inflates zlib-compressed binary frames before they reach the codec

package gateway

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/klauspost/compress/zlib"
)

// maxFrameSize bounds both raw and inflated frames.
const maxFrameSize = 16 << 20

// WebsocketDialer dials the gateway over websocket.
type WebsocketDialer struct {
	// HandshakeTimeout bounds the HTTP upgrade. Zero means no limit beyond ctx.
	HandshakeTimeout time.Duration
	Header           http.Header
}

func (d *WebsocketDialer) Dial(ctx context.Context, url string) (Conn, error) {
	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: d.HandshakeTimeout,
	}
	c, resp, err := dialer.DialContext(ctx, url, d.Header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dialing gateway: %w (status %d)", err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dialing gateway: %w", err)
	}
	c.SetReadLimit(maxFrameSize)
	return &wsConn{conn: c}, nil
}

type wsConn struct {
	conn *websocket.Conn
}

func (c *wsConn) ReadFrame() ([]byte, error) {
	typ, data, err := c.conn.ReadMessage()
	if err != nil {
		return nil, err
	}
	if typ != websocket.BinaryMessage {
		return data, nil
	}
	inflated, err := inflate(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadFrame, err)
	}
	return inflated, nil
}

func (c *wsConn) WriteFrame(data []byte) error {
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *wsConn) Close() error {
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	return c.conn.Close()
}

func inflate(data []byte) ([]byte, error) {
	r, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("opening zlib stream: %w", err)
	}
	defer r.Close()

	out, err := io.ReadAll(io.LimitReader(r, maxFrameSize+1))
	if err != nil {
		return nil, fmt.Errorf("inflating frame: %w", err)
	}
	if len(out) > maxFrameSize {
		return nil, fmt.Errorf("inflated frame exceeds %d bytes", maxFrameSize)
	}
	return out, nil
}
