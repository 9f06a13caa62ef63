// ABOUTME: Sample handler that sends text and KMarkdown messages back where they came from
// ABOUTME: Replies in the channel for group messages and by direct message for private ones

// Package echo is a minimal dispatch.Handler used by the serve command.
package echo

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/2389/kook-gateway/internal/api"
	"github.com/2389/kook-gateway/internal/dispatch"
	"github.com/2389/kook-gateway/internal/wire"
)

// Handler echoes text and KMarkdown messages. Other events are ignored.
type Handler struct {
	// SkipSelf filters the bot's own messages. Leave it on unless you want a loop.
	SkipSelf bool
	Logger   *slog.Logger
}

// New returns a handler that skips its own messages.
func New(logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{SkipSelf: true, Logger: logger.With("component", "echo")}
}

func (h *Handler) SkipSelfAuthored() bool {
	return h.SkipSelf
}

func (h *Handler) HandleEvent(ctx context.Context, sess *dispatch.Session, evt *wire.Event) error {
	var msgType api.MessageType
	switch evt.Type {
	case wire.EventText:
		msgType = api.MessageText
	case wire.EventKMarkdown:
		msgType = api.MessageKMarkdown
	default:
		return nil
	}
	if evt.Content == "" || sess.Client == nil {
		return nil
	}

	var (
		receipt *api.MessageReceipt
		err     error
	)
	if evt.IsPrivate() {
		receipt, err = sess.Client.CreateDirectMessage(ctx, msgType, evt.AuthorID, evt.Content)
	} else {
		receipt, err = sess.Client.CreateMessage(ctx, msgType, evt.TargetID, evt.Content)
	}
	if err != nil {
		return fmt.Errorf("echoing %s: %w", evt.MsgID, err)
	}

	h.logger().Debug("echoed message",
		"msg_id", evt.MsgID,
		"reply_id", receipt.MsgID,
		"private", evt.IsPrivate(),
	)
	return nil
}

func (h *Handler) logger() *slog.Logger {
	if h.Logger == nil {
		return slog.Default()
	}
	return h.Logger
}
