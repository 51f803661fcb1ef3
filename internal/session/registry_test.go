// ABOUTME: Tests for the session registry
// ABOUTME: Covers open/close lifecycle, exactly-once teardown, broadcast, and queue overflow

package session

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/vision-gateway/internal/auth"
	"github.com/2389/vision-gateway/internal/channel"
	"github.com/2389/vision-gateway/internal/protocol"
)

func newTestRegistry(t *testing.T, queue int) (*Registry, *channel.Router) {
	t.Helper()
	router := channel.NewRouter(nil)
	return NewRegistry(router, Options{QueueSize: queue}), router
}

var ana = auth.Identity{UserID: "user-1", Email: "ana@example.com", Tier: "premium"}

func TestOpen_JoinsUserChannel(t *testing.T) {
	reg, router := newTestRegistry(t, 8)

	s, err := reg.Open(t.Context(), ana)
	require.NoError(t, err)

	assert.NotEmpty(t, s.ID())
	assert.Equal(t, ana, s.Identity())
	assert.True(t, s.Alive())
	assert.Equal(t, 1, reg.Count())
	assert.True(t, router.IsMember(s.ID(), channel.User("user-1")))

	got, ok := reg.Get(s.ID())
	require.True(t, ok)
	assert.Same(t, s, got)
}

func TestOpen_UniqueIDs(t *testing.T) {
	reg, _ := newTestRegistry(t, 8)
	a, err := reg.Open(t.Context(), ana)
	require.NoError(t, err)
	b, err := reg.Open(t.Context(), ana)
	require.NoError(t, err)
	assert.NotEqual(t, a.ID(), b.ID())
	assert.Equal(t, 2, reg.Count())
}

func TestClose_ExactlyOnce(t *testing.T) {
	reg, router := newTestRegistry(t, 8)
	s, err := reg.Open(t.Context(), ana)
	require.NoError(t, err)
	require.NoError(t, router.Join(s, channel.Translation))
	require.NoError(t, router.Join(s, channel.Conversation("room1")))

	var wg sync.WaitGroup
	results := make(chan bool, 10)
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- reg.Close(s.ID(), "test")
		}()
	}
	wg.Wait()
	close(results)

	closed := 0
	for ok := range results {
		if ok {
			closed++
		}
	}
	assert.Equal(t, 1, closed)
	assert.Equal(t, 0, reg.Count())
	assert.False(t, s.Alive())
	assert.Empty(t, router.ChannelsOf(s.ID()))
	assert.Equal(t, 0, router.MemberCount(channel.Translation))
	assert.Equal(t, 0, router.MemberCount(channel.Conversation("room1")))

	// Delivery to a closed session is a no-op.
	assert.False(t, s.Deliver(protocol.Envelope{Event: protocol.KindSystemHeartbeat}))
	assert.Equal(t, 0, router.Broadcast(channel.Translation, protocol.Envelope{Event: protocol.KindTranslationResult}, ""))
}

func TestClose_ParentContextCancelsSession(t *testing.T) {
	reg, _ := newTestRegistry(t, 8)
	parent, cancel := context.WithCancel(t.Context())
	s, err := reg.Open(parent, ana)
	require.NoError(t, err)

	cancel()
	<-s.Done()
	assert.False(t, s.Alive())
}

func TestBroadcast_AllLiveSessions(t *testing.T) {
	reg, _ := newTestRegistry(t, 8)
	a, err := reg.Open(t.Context(), ana)
	require.NoError(t, err)
	b, err := reg.Open(t.Context(), auth.Identity{UserID: "user-2"})
	require.NoError(t, err)
	c, err := reg.Open(t.Context(), auth.Identity{UserID: "user-3"})
	require.NoError(t, err)
	reg.Close(c.ID(), "gone")

	delivered := reg.Broadcast(protocol.Envelope{Event: protocol.KindSystemHeartbeat})
	assert.Equal(t, 2, delivered)
	assert.Len(t, a.Outbound(), 1)
	assert.Len(t, b.Outbound(), 1)
	assert.Len(t, c.Outbound(), 0)
}

func TestDeliver_FullQueueDrops(t *testing.T) {
	reg, _ := newTestRegistry(t, 2)
	s, err := reg.Open(t.Context(), ana)
	require.NoError(t, err)

	env := protocol.Envelope{Event: protocol.KindSystemHeartbeat}
	assert.True(t, s.Deliver(env))
	assert.True(t, s.Deliver(env))
	assert.False(t, s.Deliver(env))
	assert.Equal(t, int64(1), s.Dropped())
}

func TestCloseAll_RefusesNewSessions(t *testing.T) {
	reg, _ := newTestRegistry(t, 8)
	for range 3 {
		_, err := reg.Open(t.Context(), ana)
		require.NoError(t, err)
	}

	assert.Equal(t, 3, reg.CloseAll("shutdown"))
	assert.Equal(t, 0, reg.Count())

	_, err := reg.Open(t.Context(), ana)
	require.ErrorIs(t, err, ErrRegistryClosed)
}

func TestSnapshot(t *testing.T) {
	reg, router := newTestRegistry(t, 8)
	s, err := reg.Open(t.Context(), ana)
	require.NoError(t, err)
	require.NoError(t, router.Join(s, channel.Translation))

	infos := reg.Snapshot()
	require.Len(t, infos, 1)
	assert.Equal(t, s.ID(), infos[0].ID)
	assert.Equal(t, "ana@example.com", infos[0].Email)
	assert.Equal(t, []string{channel.Translation, channel.User("user-1")}, infos[0].Channels)
}
