// ABOUTME: Tests for the channel router
// ABOUTME: Covers idempotent join/leave, sender exclusion, purge, and concurrent churn

package channel

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/vision-gateway/internal/protocol"
)

type fakeMember struct {
	id     string
	mu     sync.Mutex
	frames []protocol.Envelope
	closed atomic.Bool
}

func newFakeMember(id string) *fakeMember {
	return &fakeMember{id: id}
}

func (f *fakeMember) ID() string { return f.id }

func (f *fakeMember) Deliver(env protocol.Envelope) bool {
	if f.closed.Load() {
		return false
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.frames = append(f.frames, env)
	return true
}

func (f *fakeMember) received() []protocol.Envelope {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]protocol.Envelope(nil), f.frames...)
}

func testEnvelope(t *testing.T, text string) protocol.Envelope {
	t.Helper()
	env, err := protocol.NewEnvelope(protocol.KindConversationMessage, protocol.Success(map[string]string{"message": text}))
	require.NoError(t, err)
	return env
}

func TestJoin_Idempotent(t *testing.T) {
	r := NewRouter(nil)
	m := newFakeMember("s1")
	r.Register(m)

	require.NoError(t, r.Join(m, Conversation("room1")))
	require.NoError(t, r.Join(m, Conversation("room1")))

	assert.Equal(t, 1, r.MemberCount(Conversation("room1")))
	assert.Equal(t, []string{Conversation("room1")}, r.ChannelsOf("s1"))

	delivered := r.Broadcast(Conversation("room1"), testEnvelope(t, "once"), "")
	assert.Equal(t, 1, delivered)
	assert.Len(t, m.received(), 1)
}

func TestJoin_UnregisteredMember(t *testing.T) {
	r := NewRouter(nil)
	err := r.Join(newFakeMember("ghost"), Translation)
	require.ErrorIs(t, err, ErrUnknownMember)
	assert.Equal(t, 0, r.MemberCount(Translation))
}

func TestBroadcast_ExcludesSender(t *testing.T) {
	r := NewRouter(nil)
	a, b, c := newFakeMember("a"), newFakeMember("b"), newFakeMember("c")
	for _, m := range []*fakeMember{a, b, c} {
		r.Register(m)
	}
	require.NoError(t, r.Join(a, Conversation("room1")))
	require.NoError(t, r.Join(b, Conversation("room1")))

	delivered := r.Broadcast(Conversation("room1"), testEnvelope(t, "hi"), "a")

	assert.Equal(t, 1, delivered)
	assert.Empty(t, a.received())
	assert.Len(t, b.received(), 1)
	assert.Empty(t, c.received())
}

func TestBroadcast_MissingChannelIsNoop(t *testing.T) {
	r := NewRouter(nil)
	assert.Equal(t, 0, r.Broadcast(Conversation("nobody"), testEnvelope(t, "hi"), ""))
	assert.Equal(t, len(FeatureChannels), r.ChannelCount())
}

func TestBroadcast_PreservesSenderOrder(t *testing.T) {
	r := NewRouter(nil)
	a, b := newFakeMember("a"), newFakeMember("b")
	r.Register(a)
	r.Register(b)
	require.NoError(t, r.Join(a, Translation))
	require.NoError(t, r.Join(b, Translation))

	for i := range 20 {
		r.Broadcast(Translation, testEnvelope(t, fmt.Sprintf("m%d", i)), "a")
	}

	got := b.received()
	require.Len(t, got, 20)
	for i, env := range got {
		assert.Contains(t, string(env.Data), fmt.Sprintf(`"m%d"`, i))
	}
}

func TestLeave_DropsEmptyConversation(t *testing.T) {
	r := NewRouter(nil)
	m := newFakeMember("s1")
	r.Register(m)
	require.NoError(t, r.Join(m, Conversation("room1")))
	require.NoError(t, r.Join(m, Translation))

	r.Leave("s1", Conversation("room1"))
	r.Leave("s1", Conversation("room1"))
	r.Leave("s1", Translation)

	assert.False(t, r.IsMember("s1", Conversation("room1")))
	assert.Equal(t, len(FeatureChannels), r.ChannelCount(), "conversation channel dropped, feature channels pinned")
}

func TestPurgeSession_RemovesEveryMembership(t *testing.T) {
	r := NewRouter(nil)
	m := newFakeMember("s1")
	other := newFakeMember("s2")
	r.Register(m)
	r.Register(other)

	channels := []string{Translation, Accessibility, User("u1"), Conversation("room1")}
	for _, name := range channels {
		require.NoError(t, r.Join(m, name))
	}
	require.NoError(t, r.Join(other, Conversation("room1")))

	r.PurgeSession("s1")
	r.PurgeSession("s1")

	for _, name := range channels {
		assert.False(t, r.IsMember("s1", name), name)
	}
	assert.Empty(t, r.ChannelsOf("s1"))
	assert.Equal(t, 0, r.MemberCount(Translation))
	assert.Equal(t, 1, r.MemberCount(Conversation("room1")))

	// Later broadcasts on every channel are a safe no-op for the purged session.
	for _, name := range channels {
		r.Broadcast(name, testEnvelope(t, "late"), "")
	}
	assert.Empty(t, m.received())

	// A purged session cannot be re-added behind the registry's back.
	require.ErrorIs(t, r.Join(m, Translation), ErrUnknownMember)
}

func TestConcurrentChurn(t *testing.T) {
	r := NewRouter(nil)
	const sessions = 50

	var wg sync.WaitGroup
	for i := range sessions {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			m := newFakeMember(fmt.Sprintf("s%d", i))
			r.Register(m)
			room := Conversation(fmt.Sprintf("room%d", i%5))
			for range 10 {
				_ = r.Join(m, room)
				_ = r.Join(m, Translation)
				r.Broadcast(room, protocol.Envelope{Event: protocol.KindConversationMessage}, m.ID())
				r.Leave(m.ID(), room)
			}
			_ = r.Join(m, room)
			m.closed.Store(true)
			r.PurgeSession(m.ID())
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 0, r.MemberCount(Translation))
	assert.Equal(t, len(FeatureChannels), r.ChannelCount())
}
