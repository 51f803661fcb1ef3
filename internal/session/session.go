// ABOUTME: A single authenticated realtime connection and its outbound queue
// ABOUTME: Delivery never blocks and becomes a no-op once the session is closed

package session

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/2389/vision-gateway/internal/auth"
	"github.com/2389/vision-gateway/internal/protocol"
)

// Session is one admitted connection. Its identity never changes.
type Session struct {
	id          string
	identity    auth.Identity
	connectedAt time.Time

	// send is never closed; writers select on Done instead.
	send chan protocol.Envelope

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once

	dropped atomic.Int64
	onDrop  func()
}

func newSession(parent context.Context, id string, identity auth.Identity, queueSize int, now time.Time, onDrop func()) *Session {
	ctx, cancel := context.WithCancel(parent)
	return &Session{
		id:          id,
		identity:    identity,
		connectedAt: now,
		send:        make(chan protocol.Envelope, queueSize),
		ctx:         ctx,
		cancel:      cancel,
		onDrop:      onDrop,
	}
}

// ID returns the session's unique id.
func (s *Session) ID() string { return s.id }

// Identity returns the authenticated identity.
func (s *Session) Identity() auth.Identity { return s.identity }

// ConnectedAt returns when the session was admitted.
func (s *Session) ConnectedAt() time.Time { return s.connectedAt }

// Context is cancelled when the session closes. Work done on behalf of the
// session should be bound to it.
func (s *Session) Context() context.Context { return s.ctx }

// Done is closed when the session closes.
func (s *Session) Done() <-chan struct{} { return s.ctx.Done() }

// Outbound is the queue drained by the connection's writer.
func (s *Session) Outbound() <-chan protocol.Envelope { return s.send }

// Alive reports whether the session is still open.
func (s *Session) Alive() bool { return s.ctx.Err() == nil }

// Dropped returns how many frames were discarded for this session.
func (s *Session) Dropped() int64 { return s.dropped.Load() }

// Deliver enqueues env without blocking. It returns false if the session is
// closed or its queue is full.
func (s *Session) Deliver(env protocol.Envelope) bool {
	if !s.Alive() {
		return false
	}
	select {
	case s.send <- env:
		return true
	default:
		s.dropped.Add(1)
		if s.onDrop != nil {
			s.onDrop()
		}
		return false
	}
}

// close marks the session dead. Only the first call has any effect.
func (s *Session) close() bool {
	closed := false
	s.closeOnce.Do(func() {
		s.cancel()
		closed = true
	})
	return closed
}
