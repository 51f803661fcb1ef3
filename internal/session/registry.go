// ABOUTME: Registry of live sessions keyed by session id
// ABOUTME: Owns session creation and exactly-once teardown including channel purge

package session

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/2389/vision-gateway/internal/auth"
	"github.com/2389/vision-gateway/internal/channel"
	"github.com/2389/vision-gateway/internal/metrics"
	"github.com/2389/vision-gateway/internal/protocol"
)

// ErrRegistryClosed is returned by Open after CloseAll.
var ErrRegistryClosed = errors.New("session registry is closed")

// Info is a point-in-time description of a live session.
type Info struct {
	ID          string    `json:"id"`
	UserID      string    `json:"userId"`
	Email       string    `json:"email"`
	Tier        string    `json:"tier"`
	ConnectedAt time.Time `json:"connectedAt"`
	Channels    []string  `json:"channels"`
	Dropped     int64     `json:"droppedFrames"`
}

// Options tunes a Registry.
type Options struct {
	QueueSize int
	Logger    *slog.Logger
	Metrics   *metrics.Metrics
	Now       func() time.Time
}

// Registry tracks every live session.
type Registry struct {
	router    *channel.Router
	queueSize int
	logger    *slog.Logger
	metrics   *metrics.Metrics
	now       func() time.Time

	mu       sync.RWMutex
	sessions map[string]*Session
	closed   bool
}

// NewRegistry creates a registry whose sessions are routed through router.
func NewRegistry(router *channel.Router, opts Options) *Registry {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 64
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Registry{
		router:    router,
		queueSize: opts.QueueSize,
		logger:    opts.Logger.With("component", "sessions"),
		metrics:   opts.Metrics,
		now:       opts.Now,
		sessions:  make(map[string]*Session),
	}
}

// Open creates a session for an admitted identity and joins its private
// user channel. parent bounds the session's lifetime in addition to Close.
func (r *Registry) Open(parent context.Context, identity auth.Identity) (*Session, error) {
	s := newSession(parent, uuid.NewString(), identity, r.queueSize, r.now(), r.metrics.FrameDropped)

	// Memberships exist before the session is visible to Close, so a
	// concurrent teardown always finds everything it has to purge.
	r.router.Register(s)
	if err := r.router.Join(s, channel.User(identity.UserID)); err != nil {
		r.router.PurgeSession(s.id)
		s.close()
		return nil, err
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		r.router.PurgeSession(s.id)
		s.close()
		return nil, ErrRegistryClosed
	}
	r.sessions[s.id] = s
	total := len(r.sessions)
	r.mu.Unlock()

	r.metrics.SessionOpened()
	r.logger.Info("=== SESSION OPENED ===",
		"session_id", s.id,
		"user_id", identity.UserID,
		"email", identity.Email,
		"tier", identity.Tier,
		"active_sessions", total,
	)
	return s, nil
}

// Close tears down a session: it stops delivery, cancels in-flight work and
// purges every channel membership. It returns false if the session was
// already gone; teardown happens exactly once.
func (r *Registry) Close(id, reason string) bool {
	r.mu.Lock()
	s, ok := r.sessions[id]
	if ok {
		delete(r.sessions, id)
	}
	total := len(r.sessions)
	r.mu.Unlock()
	if !ok {
		return false
	}

	s.close()
	r.router.PurgeSession(id)
	r.metrics.SessionClosed()

	r.logger.Info("=== SESSION CLOSED ===",
		"session_id", id,
		"user_id", s.identity.UserID,
		"reason", reason,
		"duration", r.now().Sub(s.connectedAt).Round(time.Millisecond),
		"dropped_frames", s.Dropped(),
		"active_sessions", total,
	)
	return true
}

// CloseAll closes every session and refuses new ones.
func (r *Registry) CloseAll(reason string) int {
	r.mu.Lock()
	r.closed = true
	ids := lo.Keys(r.sessions)
	r.mu.Unlock()

	n := 0
	for _, id := range ids {
		if r.Close(id, reason) {
			n++
		}
	}
	return n
}

// Get returns a live session by id.
func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	return s, ok
}

// Count returns the number of live sessions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Snapshot describes every live session, oldest first.
func (r *Registry) Snapshot() []Info {
	r.mu.RLock()
	live := lo.Values(r.sessions)
	r.mu.RUnlock()

	infos := lo.Map(live, func(s *Session, _ int) Info {
		return Info{
			ID:          s.id,
			UserID:      s.identity.UserID,
			Email:       s.identity.Email,
			Tier:        s.identity.Tier,
			ConnectedAt: s.connectedAt,
			Channels:    r.router.ChannelsOf(s.id),
			Dropped:     s.Dropped(),
		}
	})
	sort.Slice(infos, func(i, j int) bool {
		if infos[i].ConnectedAt.Equal(infos[j].ConnectedAt) {
			return infos[i].ID < infos[j].ID
		}
		return infos[i].ConnectedAt.Before(infos[j].ConnectedAt)
	})
	return infos
}

// Broadcast delivers env to every live session and returns how many accepted it.
func (r *Registry) Broadcast(env protocol.Envelope) int {
	r.mu.RLock()
	targets := lo.Values(r.sessions)
	r.mu.RUnlock()

	delivered := 0
	for _, s := range targets {
		if s.Deliver(env) {
			delivered++
		}
	}
	return delivered
}
