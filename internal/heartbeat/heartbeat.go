// ABOUTME: Process-wide heartbeat that tells every live session the gateway is up
// ABOUTME: One ticker per process regardless of how many connections come and go

package heartbeat

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/2389/vision-gateway/internal/metrics"
	"github.com/2389/vision-gateway/internal/protocol"
)

// Source is the set of live sessions a heartbeat is sent to.
type Source interface {
	Count() int
	Broadcast(env protocol.Envelope) int
}

// Payload is the data of a system:heartbeat frame.
type Payload struct {
	Timestamp         time.Time `json:"timestamp"`
	ActiveConnections int       `json:"activeConnections"`
}

// Broadcaster emits system:heartbeat on a fixed interval.
type Broadcaster struct {
	source   Source
	interval time.Duration
	logger   *slog.Logger
	metrics  *metrics.Metrics
	now      func() time.Time

	mu      sync.Mutex
	running bool
	stop    context.CancelFunc
	done    chan struct{}
}

// New creates a stopped broadcaster. Pass nil logger for default.
func New(source Source, interval time.Duration, logger *slog.Logger, m *metrics.Metrics) *Broadcaster {
	if logger == nil {
		logger = slog.Default()
	}
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Broadcaster{
		source:   source,
		interval: interval,
		logger:   logger.With("component", "heartbeat"),
		metrics:  m,
		now:      time.Now,
	}
}

// Start launches the ticker. Calling Start while it is already running does
// nothing and returns false.
func (b *Broadcaster) Start(ctx context.Context) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.running {
		return false
	}

	ctx, cancel := context.WithCancel(ctx)
	b.running = true
	b.stop = cancel
	b.done = make(chan struct{})

	go b.loop(ctx, b.done)

	b.logger.Info("heartbeat started", "interval", b.interval)
	return true
}

// Stop halts the ticker and waits for it to exit.
func (b *Broadcaster) Stop() {
	b.mu.Lock()
	if !b.running {
		b.mu.Unlock()
		return
	}
	stop, done := b.stop, b.done
	b.running = false
	b.mu.Unlock()

	stop()
	<-done
	b.logger.Info("heartbeat stopped")
}

// Running reports whether the ticker is active.
func (b *Broadcaster) Running() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.running
}

// Tick sends one heartbeat now and returns what was sent.
func (b *Broadcaster) Tick() Payload {
	p := Payload{
		Timestamp:         b.now().UTC(),
		ActiveConnections: b.source.Count(),
	}
	delivered := b.source.Broadcast(protocol.MustEnvelope(protocol.KindSystemHeartbeat, p))
	b.metrics.Heartbeat()
	b.logger.Debug("heartbeat", "active_connections", p.ActiveConnections, "delivered", delivered)
	return p
}

func (b *Broadcaster) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b.Tick()
		}
	}
}
