// ABOUTME: Per-connection state rebuilt from nothing on every connect
// ABOUTME: Owns the frame reader goroutine, sequence high-water mark and heartbeat counter

package gateway

import (
	"errors"
	"net/url"

	"github.com/2389/kook-gateway/internal/heartbeat"
)

type readResult struct {
	data []byte
	err  error
}

type session struct {
	conn   Conn
	frames chan readResult
	done   chan struct{}
	exited chan struct{}

	maxSeq uint64
	beat   heartbeat.Policy
}

func newSession(conn Conn) *session {
	s := &session{
		conn:   conn,
		frames: make(chan readResult),
		done:   make(chan struct{}),
		exited: make(chan struct{}),
	}
	go s.read()
	return s
}

// read forwards frames until a fatal read error or close. Bad frames are
// forwarded and reading continues.
func (s *session) read() {
	defer close(s.exited)
	for {
		data, err := s.conn.ReadFrame()
		select {
		case s.frames <- readResult{data: data, err: err}:
		case <-s.done:
			return
		}
		if err != nil && !errors.Is(err, ErrBadFrame) {
			return
		}
	}
}

// observe raises the high-water mark and returns it. It never lowers it.
func (s *session) observe(seq uint64) uint64 {
	s.maxSeq = max(s.maxSeq, seq)
	return s.maxSeq
}

// close closes the connection and waits for the reader to exit.
func (s *session) close() {
	close(s.done)
	_ = s.conn.Close()
	<-s.exited
}

// redactURL drops the query string, which carries the session token.
func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "<invalid url>"
	}
	u.RawQuery = ""
	return u.String()
}
