// ABOUTME: Collaborator interfaces the session engine is built on
// ABOUTME: Discovery, dialing, frame transport and event dispatch

package gateway

import (
	"context"
	"errors"

	"github.com/2389/kook-gateway/internal/wire"
)

// ErrBadFrame marks a frame that arrived intact but could not be turned into
// bytes for the codec, such as a corrupt compressed frame. The connection
// stays usable.
var ErrBadFrame = errors.New("gateway: unreadable frame")

// Conn is one open gateway connection. ReadFrame and WriteFrame are each
// called from a single goroutine. Close unblocks a pending ReadFrame.
type Conn interface {
	ReadFrame() ([]byte, error)
	WriteFrame(data []byte) error
	Close() error
}

// Dialer opens connections to a gateway URL.
type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

// Discoverer returns the URL to connect to. *api.Client implements it.
type Discoverer interface {
	GatewayURL(ctx context.Context, compress bool) (string, error)
}

// Dispatcher receives decoded events. Dispatch must not block on handler
// work. *dispatch.Dispatcher implements it.
type Dispatcher interface {
	Dispatch(evt *wire.Event)
}

// DispatcherFunc adapts a function to Dispatcher.
type DispatcherFunc func(evt *wire.Event)

func (f DispatcherFunc) Dispatch(evt *wire.Event) {
	f(evt)
}
