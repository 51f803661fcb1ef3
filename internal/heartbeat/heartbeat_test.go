// ABOUTME: Tests for the heartbeat broadcaster
// ABOUTME: Verifies a single ticker per process and that counts match live sessions

package heartbeat

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/vision-gateway/internal/auth"
	"github.com/2389/vision-gateway/internal/channel"
	"github.com/2389/vision-gateway/internal/protocol"
	"github.com/2389/vision-gateway/internal/session"
)

type countingSource struct {
	mu     sync.Mutex
	count  int
	frames []protocol.Envelope
}

func (c *countingSource) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.count
}

func (c *countingSource) Broadcast(env protocol.Envelope) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames = append(c.frames, env)
	return c.count
}

func (c *countingSource) sent() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.frames)
}

func TestStart_Idempotent(t *testing.T) {
	src := &countingSource{}
	b := New(src, time.Hour, nil, nil)

	assert.True(t, b.Start(t.Context()))
	assert.False(t, b.Start(t.Context()), "second start must not create another ticker")
	assert.True(t, b.Running())

	b.Stop()
	assert.False(t, b.Running())
	b.Stop()

	assert.True(t, b.Start(t.Context()), "restart after stop is allowed")
	b.Stop()
}

func TestTicker_EmitsOnInterval(t *testing.T) {
	src := &countingSource{count: 3}
	b := New(src, 10*time.Millisecond, nil, nil)
	require.True(t, b.Start(t.Context()))
	defer b.Stop()

	assert.Eventually(t, func() bool { return src.sent() >= 2 }, time.Second, 5*time.Millisecond)
}

func TestTick_CountMatchesLiveSessions(t *testing.T) {
	reg := session.NewRegistry(channel.NewRouter(nil), session.Options{QueueSize: 4})
	a, err := reg.Open(t.Context(), auth.Identity{UserID: "a"})
	require.NoError(t, err)
	b, err := reg.Open(t.Context(), auth.Identity{UserID: "b"})
	require.NoError(t, err)
	c, err := reg.Open(t.Context(), auth.Identity{UserID: "c"})
	require.NoError(t, err)
	reg.Close(c.ID(), "left")

	hb := New(reg, time.Hour, nil, nil)
	p := hb.Tick()
	assert.Equal(t, 2, p.ActiveConnections)

	for _, s := range []*session.Session{a, b} {
		require.Len(t, s.Outbound(), 1)
		env := <-s.Outbound()
		assert.Equal(t, protocol.KindSystemHeartbeat, env.Event)

		var got Payload
		require.NoError(t, json.Unmarshal(env.Data, &got))
		assert.Equal(t, 2, got.ActiveConnections)
		assert.False(t, got.Timestamp.IsZero())
	}
	assert.Len(t, c.Outbound(), 0)
}
