// ABOUTME: WebSocket endpoint: origin check, handshake auth, upgrade, and the per-connection loops
// ABOUTME: One writer goroutine drains the session queue; the read loop feeds the dispatcher

package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/2389/vision-gateway/internal/auth"
	"github.com/2389/vision-gateway/internal/protocol"
	"github.com/2389/vision-gateway/internal/session"
)

const (
	rejectOrigin   = "origin_not_allowed"
	msgInvalidJSON = "invalid JSON frame"
	msgRateLimited = "too many events, slow down"
)

// handleWebSocket admits and upgrades a client, then serves it until either
// side closes. No session exists until the handshake has been authenticated.
func (g *Gateway) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if err := g.origins.check(r); err != nil {
		g.logger.Warn("handshake rejected", "kind", rejectOrigin, "origin", r.Header.Get("Origin"), "remote_addr", r.RemoteAddr)
		g.metrics.HandshakeRejected(rejectOrigin)
		auth.WriteRejection(w, &auth.RejectionError{
			Kind:   rejectOrigin,
			Reason: "origin not allowed",
			Status: http.StatusForbidden,
		})
		return
	}

	identity, err := g.gatekeeper.Admit(r)
	if err != nil {
		var rej *auth.RejectionError
		if !errors.As(err, &rej) {
			g.logger.Error("handshake failed", "remote_addr", r.RemoteAddr, "error", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		g.metrics.HandshakeRejected(string(rej.Kind))
		auth.WriteRejection(w, rej)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns:     g.origins.patterns,
		InsecureSkipVerify: g.origins.allowAll,
	})
	if err != nil {
		g.logger.Warn("websocket accept failed", "user_id", identity.UserID, "remote_addr", r.RemoteAddr, "error", err)
		return
	}
	conn.SetReadLimit(g.config.Gateway.ReadLimit)

	// The request context ends when this handler returns, which is also when
	// the session must end.
	s, err := g.registry.Open(r.Context(), *identity)
	if err != nil {
		g.logger.Info("refusing session", "user_id", identity.UserID, "error", err)
		_ = conn.Close(websocket.StatusTryAgainLater, "server shutting down")
		return
	}

	c := &connection{
		gw:      g,
		conn:    conn,
		session: s,
		limiter: newRateLimiter(g.config.Gateway.RateLimit, g.config.Gateway.RateWindow),
		logger:  g.logger.With("session_id", s.ID(), "user_id", identity.UserID),
	}
	c.serve(r.Context())
}

// connection is the transport side of one session.
type connection struct {
	gw      *Gateway
	conn    *websocket.Conn
	session *session.Session
	limiter *rateLimiter
	logger  *slog.Logger

	closeOnce sync.Once
}

// close sends the close frame once; later calls keep the first status.
func (c *connection) close(code websocket.StatusCode, reason string) {
	c.closeOnce.Do(func() {
		_ = c.conn.Close(code, reason)
	})
}

func (c *connection) serve(ctx context.Context) {
	writerDone := make(chan struct{})
	go c.writeLoop(writerDone)

	readDone := make(chan struct{})
	watcherDone := make(chan struct{})
	go func() {
		defer close(watcherDone)
		c.watchSession(readDone)
	}()

	reason := c.readLoop(ctx)
	close(readDone)
	<-watcherDone

	c.gw.registry.Close(c.session.ID(), reason)
	c.close(websocket.StatusNormalClosure, reason)
	<-writerDone
}

// watchSession closes the connection with GoingAway when the session is
// closed from elsewhere (shutdown, write failure), which unblocks the read
// loop. Once readDone is closed serve owns the close status, so the watcher
// steps aside. It reports whether it closed the connection.
func (c *connection) watchSession(readDone <-chan struct{}) bool {
	select {
	case <-readDone:
		return false
	case <-c.session.Done():
		select {
		case <-readDone:
			return false
		default:
		}
		c.close(websocket.StatusGoingAway, "session closed")
		return true
	}
}

// readLoop runs until the connection fails or the client misbehaves and
// returns the reason the session ends.
func (c *connection) readLoop(ctx context.Context) string {
	for {
		_, data, err := c.conn.Read(ctx)
		if err != nil {
			if status := websocket.CloseStatus(err); status != -1 {
				c.logger.Debug("client closed connection", "status", status)
				return "client disconnected"
			}
			if !c.session.Alive() {
				return "session closed"
			}
			c.logger.Debug("read failed", "error", err)
			return "read failed"
		}

		if !c.limiter.Allow(time.Now()) {
			c.logger.Warn("rate limit exceeded, closing connection")
			c.writeDirect(ctx, protocol.MustEnvelope(protocol.KindSystemError, protocol.Failure(msgRateLimited)))
			c.close(websocket.StatusPolicyViolation, "rate limited")
			return "rate limited"
		}

		var env protocol.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			c.gw.metrics.Event("invalid_frame", "rejected")
			c.session.Deliver(protocol.MustEnvelope(protocol.KindSystemError, protocol.Failure(msgInvalidJSON)))
			continue
		}

		c.gw.dispatcher.Handle(c.session, env)
	}
}

// writeLoop drains the session's outbound queue until the session closes.
// The queue is never closed; the session's Done channel ends the loop.
func (c *connection) writeLoop(done chan<- struct{}) {
	defer close(done)
	for {
		select {
		case <-c.session.Done():
			return
		case env := <-c.session.Outbound():
			if err := c.write(c.session.Context(), env); err != nil {
				if c.session.Alive() {
					c.logger.Info("write failed, closing session", "error", err)
					c.gw.registry.Close(c.session.ID(), "write failed")
				}
				return
			}
		}
	}
}

// writeDirect bypasses the queue for the final frame before a forced close.
func (c *connection) writeDirect(ctx context.Context, env protocol.Envelope) {
	if err := c.write(ctx, env); err != nil {
		c.logger.Debug("final write failed", "error", err)
	}
}

func (c *connection) write(parent context.Context, env protocol.Envelope) error {
	ctx, cancel := context.WithTimeout(parent, c.gw.config.Gateway.WriteTimeout)
	defer cancel()

	b, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return c.conn.Write(ctx, websocket.MessageText, b)
}
