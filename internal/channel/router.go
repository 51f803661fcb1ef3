// ABOUTME: Channel router mapping named broadcast channels to live session members
// ABOUTME: Per-channel and per-session locking, no router-wide lock on the hot path

package channel

import (
	"errors"
	"log/slog"
	"sort"
	"sync"

	"github.com/samber/lo"

	"github.com/2389/vision-gateway/internal/protocol"
)

// ErrUnknownMember is returned when joining with a session the router does not
// know about, or one that has already been purged.
var ErrUnknownMember = errors.New("unknown or purged member")

// Member is a session that can receive broadcast frames.
// Deliver must not block and must be a no-op once the member is closed.
type Member interface {
	ID() string
	Deliver(env protocol.Envelope) bool
}

// channelEntry holds the members of one channel. Once dead it has been removed
// from the index and must not be joined; joiners look it up again.
type channelEntry struct {
	name    string
	pinned  bool
	mu      sync.RWMutex
	members map[string]Member
	dead    bool
}

// membership is the inverse index for one session: the channels it belongs to.
// Holding mu serializes join, leave and purge for that session.
type membership struct {
	mu       sync.Mutex
	member   Member
	channels map[string]struct{}
	purged   bool
}

// Router tracks channel membership for every live session.
//
// Lock order is membership -> channel. The index locks (channelsMu,
// membersMu) are only held for map lookup, insert and delete, never while
// delivering.
type Router struct {
	channelsMu sync.RWMutex
	channels   map[string]*channelEntry

	membersMu   sync.RWMutex
	memberships map[string]*membership

	logger *slog.Logger
}

// NewRouter creates a router with the fixed feature channels pre-created.
// Pass nil logger for default.
func NewRouter(logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Router{
		channels:    make(map[string]*channelEntry),
		memberships: make(map[string]*membership),
		logger:      logger.With("component", "channel_router"),
	}
	for _, name := range FeatureChannels {
		r.channels[name] = &channelEntry{name: name, pinned: true, members: make(map[string]Member)}
	}
	return r
}

// Register makes a session known to the router. It must be called before Join.
// Registering an id twice returns the existing record untouched.
func (r *Router) Register(m Member) {
	r.membersMu.Lock()
	defer r.membersMu.Unlock()
	if _, ok := r.memberships[m.ID()]; ok {
		return
	}
	r.memberships[m.ID()] = &membership{member: m, channels: make(map[string]struct{})}
}

// Join adds the member to the named channel, creating it if needed.
// Joining a channel twice is a no-op.
func (r *Router) Join(m Member, name string) error {
	rec := r.membership(m.ID())
	if rec == nil {
		return ErrUnknownMember
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if rec.purged {
		return ErrUnknownMember
	}
	if _, ok := rec.channels[name]; ok {
		return nil
	}

	for {
		ch := r.getOrCreate(name)
		ch.mu.Lock()
		if ch.dead {
			// Dropped between lookup and lock; the next lookup creates a fresh entry.
			ch.mu.Unlock()
			continue
		}
		ch.members[rec.member.ID()] = rec.member
		ch.mu.Unlock()
		break
	}
	rec.channels[name] = struct{}{}

	r.logger.Debug("joined channel", "session_id", m.ID(), "channel", name)
	return nil
}

// Leave removes the session from the named channel. Leaving a channel the
// session is not in is a no-op.
func (r *Router) Leave(sessionID, name string) {
	rec := r.membership(sessionID)
	if rec == nil {
		return
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if rec.purged {
		return
	}
	if _, ok := rec.channels[name]; !ok {
		return
	}
	delete(rec.channels, name)
	r.removeFrom(name, sessionID)

	r.logger.Debug("left channel", "session_id", sessionID, "channel", name)
}

// PurgeSession removes the session from every channel it joined and forgets
// it. Only the first call for a given id does any work.
func (r *Router) PurgeSession(sessionID string) {
	r.membersMu.Lock()
	rec, ok := r.memberships[sessionID]
	if ok {
		delete(r.memberships, sessionID)
	}
	r.membersMu.Unlock()
	if !ok {
		return
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if rec.purged {
		return
	}
	rec.purged = true
	for name := range rec.channels {
		r.removeFrom(name, sessionID)
	}
	count := len(rec.channels)
	rec.channels = nil

	r.logger.Debug("purged session", "session_id", sessionID, "channels", count)
}

// Broadcast delivers env to every current member of the channel except
// excludeSessionID. It returns the number of members that accepted the frame.
// Broadcasting to a channel that does not exist is a no-op.
func (r *Router) Broadcast(name string, env protocol.Envelope, excludeSessionID string) int {
	r.channelsMu.RLock()
	ch, ok := r.channels[name]
	r.channelsMu.RUnlock()
	if !ok {
		return 0
	}

	// Copy targets under the channel read lock to avoid holding it during delivery.
	ch.mu.RLock()
	targets := make([]Member, 0, len(ch.members))
	for id, m := range ch.members {
		if excludeSessionID != "" && id == excludeSessionID {
			continue
		}
		targets = append(targets, m)
	}
	ch.mu.RUnlock()

	delivered := 0
	for _, m := range targets {
		if m.Deliver(env) {
			delivered++
			continue
		}
		r.logger.Debug("dropped frame for member",
			"channel", name,
			"session_id", m.ID(),
			"event", env.Event)
	}
	return delivered
}

// IsMember reports whether the session currently belongs to the channel.
func (r *Router) IsMember(sessionID, name string) bool {
	rec := r.membership(sessionID)
	if rec == nil {
		return false
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	_, ok := rec.channels[name]
	return ok
}

// ChannelsOf returns the sorted channel names the session belongs to.
func (r *Router) ChannelsOf(sessionID string) []string {
	rec := r.membership(sessionID)
	if rec == nil {
		return nil
	}
	rec.mu.Lock()
	names := lo.Keys(rec.channels)
	rec.mu.Unlock()
	sort.Strings(names)
	return names
}

// MemberCount returns the number of sessions in the channel.
func (r *Router) MemberCount(name string) int {
	r.channelsMu.RLock()
	ch, ok := r.channels[name]
	r.channelsMu.RUnlock()
	if !ok {
		return 0
	}
	ch.mu.RLock()
	defer ch.mu.RUnlock()
	return len(ch.members)
}

// ChannelCount returns the number of channels currently indexed, including
// the pinned feature channels.
func (r *Router) ChannelCount() int {
	r.channelsMu.RLock()
	defer r.channelsMu.RUnlock()
	return len(r.channels)
}

func (r *Router) membership(sessionID string) *membership {
	r.membersMu.RLock()
	defer r.membersMu.RUnlock()
	return r.memberships[sessionID]
}

func (r *Router) getOrCreate(name string) *channelEntry {
	r.channelsMu.RLock()
	ch, ok := r.channels[name]
	r.channelsMu.RUnlock()
	if ok {
		return ch
	}

	r.channelsMu.Lock()
	defer r.channelsMu.Unlock()
	if ch, ok := r.channels[name]; ok {
		return ch
	}
	ch = &channelEntry{name: name, members: make(map[string]Member)}
	r.channels[name] = ch
	r.logger.Debug("channel created", "channel", name)
	return ch
}

// removeFrom deletes a member from a channel and drops the channel once it is
// empty and not pinned. Callers hold the session's membership lock.
func (r *Router) removeFrom(name, sessionID string) {
	r.channelsMu.RLock()
	ch, ok := r.channels[name]
	r.channelsMu.RUnlock()
	if !ok {
		return
	}

	ch.mu.Lock()
	delete(ch.members, sessionID)
	empty := len(ch.members) == 0 && !ch.pinned
	ch.mu.Unlock()

	if empty {
		r.tryDrop(ch)
	}
}

// tryDrop removes an empty channel from the index. A join that raced in after
// the emptiness check keeps the channel alive.
func (r *Router) tryDrop(ch *channelEntry) {
	r.channelsMu.Lock()
	defer r.channelsMu.Unlock()

	ch.mu.Lock()
	defer ch.mu.Unlock()
	if len(ch.members) != 0 || ch.dead || r.channels[ch.name] != ch {
		return
	}
	ch.dead = true
	delete(r.channels, ch.name)
	r.logger.Debug("channel dropped", "channel", ch.name)
}
