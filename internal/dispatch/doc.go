// Package dispatch hands decoded gateway events to user handler logic.
//
// # Overview
//
// The session engine calls Dispatch once per event frame from its receive
// loop. Dispatch never waits for the handler: each event runs in its own
// goroutine, or, when MaxInFlight is set, is queued to a fixed pool of
// workers. A full queue drops the event instead of blocking.
//
// # Filtering
//
// Before a handler runs, Dispatch drops:
//
//   - events authored by the bot itself, unless the handler implements
//     SelfAuthoredSkipper and returns false
//   - events whose msg_id was already seen, when a dedupe cache is set
//
// # Errors
//
// A handler error or panic is passed to the ErrorReporter (the handler itself
// if it implements one, otherwise a logger). It never reaches the session
// engine and never affects the connection.
//
// # Handler capability
//
//	type Handler interface {
//	    HandleEvent(ctx context.Context, sess *Session, evt *wire.Event) error
//	}
//
// Handlers must be safe for concurrent use: invocations overlap and complete
// in any order.
package dispatch
