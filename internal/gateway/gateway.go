// ABOUTME: Gateway orchestrator that wires the realtime components and owns the servers
// ABOUTME: Manages the HTTP/WebSocket server, gRPC health server, heartbeat, and shutdown order

package gateway

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"tailscale.com/ipn/ipnstate"
	"tailscale.com/tsnet"

	"github.com/2389/vision-gateway/internal/auth"
	"github.com/2389/vision-gateway/internal/channel"
	"github.com/2389/vision-gateway/internal/config"
	"github.com/2389/vision-gateway/internal/dedupe"
	"github.com/2389/vision-gateway/internal/dispatch"
	"github.com/2389/vision-gateway/internal/heartbeat"
	"github.com/2389/vision-gateway/internal/metrics"
	"github.com/2389/vision-gateway/internal/moderation"
	"github.com/2389/vision-gateway/internal/processing"
	"github.com/2389/vision-gateway/internal/session"
	"github.com/2389/vision-gateway/internal/store"
)

// tailscaleGRPCPort is where the health service listens on the tailnet.
const tailscaleGRPCPort = ":50051"

// Gateway orchestrates the vision-gateway server components.
type Gateway struct {
	config     *config.Config
	store      store.Store
	router     *channel.Router
	registry   *session.Registry
	gatekeeper *auth.Gatekeeper
	verifier   *auth.JWTVerifier
	dispatcher *dispatch.Dispatcher
	heartbeat  *heartbeat.Broadcaster
	metrics    *metrics.Metrics
	origins    *originPolicy
	logger     *slog.Logger

	processingCloser io.Closer

	handler     http.Handler
	httpServer  *http.Server
	grpcServer  *grpc.Server
	health      *health.Server
	tsnetServer *tsnet.Server

	startedAt time.Time
}

// New opens the configured store and builds a gateway around it.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Gateway, error) {
	s, err := store.Open(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	gw, err := NewWithStore(ctx, cfg, s, logger)
	if err != nil {
		_ = s.Close()
		return nil, err
	}
	return gw, nil
}

// NewWithStore builds a gateway on an already opened store. The gateway owns
// s from here on and closes it on Shutdown.
func NewWithStore(ctx context.Context, cfg *config.Config, s store.Store, logger *slog.Logger) (*Gateway, error) {
	if logger == nil {
		logger = slog.Default()
	}

	verifier, err := auth.NewJWTVerifier([]byte(cfg.Auth.JWTSecret))
	if err != nil {
		return nil, fmt.Errorf("creating JWT verifier: %w", err)
	}

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New()
	}

	adapter, closer, err := processing.New(ctx, cfg.Processing, logger.With("component", "processing"), m)
	if err != nil {
		return nil, fmt.Errorf("creating processing adapter: %w", err)
	}

	moderator, err := moderation.New(cfg.Moderation.BlockedTerms, cfg.Moderation.Replacement)
	if err != nil {
		_ = closer.Close()
		return nil, err
	}

	router := channel.NewRouter(logger.With("component", "router"))
	registry := session.NewRegistry(router, session.Options{
		QueueSize: cfg.Gateway.SendQueue,
		Logger:    logger,
		Metrics:   m,
	})

	gw := &Gateway{
		config:     cfg,
		store:      s,
		router:     router,
		registry:   registry,
		gatekeeper: auth.NewGatekeeper(verifier, s, logger),
		verifier:   verifier,
		dispatcher: dispatch.New(dispatch.Options{
			Router:         router,
			Adapter:        adapter,
			Usage:          s,
			Moderator:      moderator,
			Dedupe:         dedupe.NewWindow(cfg.Gateway.DedupeTTL, 0),
			Pool:           dispatch.NewTaskPool(cfg.Gateway.MaxInflight),
			AnalyticsTiers: cfg.Gateway.AnalyticsTiers,
			Logger:         logger,
			Metrics:        m,
		}),
		heartbeat:        heartbeat.New(registry, cfg.Gateway.HeartbeatInterval, logger, m),
		metrics:          m,
		origins:          newOriginPolicy(cfg.Server.AllowedOrigins),
		logger:           logger.With("component", "gateway"),
		processingCloser: closer,
		startedAt:        time.Now(),
	}

	gw.handler = gw.routes()
	gw.httpServer = &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           gw.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	gw.grpcServer, gw.health = newGRPCServer()

	return gw, nil
}

// routes builds the HTTP surface.
func (g *Gateway) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/ws", g.handleWebSocket)
	r.Get("/health", g.handleHealth)
	if g.metrics != nil {
		r.Method(http.MethodGet, g.config.Metrics.Path, g.metrics.Handler())
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(auth.RequireAdminHTTP(g.verifier, g.config.Auth.AdminUserIDs, g.logger))
		r.Get("/sessions", g.handleListSessions)
		r.Get("/usage", g.handleUsageStats)
	})
	return r
}

// Handler exposes the HTTP surface, mostly for tests.
func (g *Gateway) Handler() http.Handler {
	return g.handler
}

// Sessions exposes the live session registry.
func (g *Gateway) Sessions() *session.Registry {
	return g.registry
}

// Start begins the process-wide heartbeat. Run calls it; tests serving
// Handler directly call it themselves.
func (g *Gateway) Start(ctx context.Context) {
	g.heartbeat.Start(ctx)
}

// setupTCPListeners creates standard TCP listeners. The gRPC listener is nil
// when no grpc_addr is configured.
func (g *Gateway) setupTCPListeners() (grpcLn, httpLn net.Listener, err error) {
	g.logger.Info("starting gateway",
		"http_addr", g.config.Server.HTTPAddr,
		"grpc_addr", g.config.Server.GRPCAddr,
	)

	httpLn, err = net.Listen("tcp", g.config.Server.HTTPAddr)
	if err != nil {
		return nil, nil, fmt.Errorf("listening on HTTP address: %w", err)
	}

	if g.config.Server.GRPCAddr != "" {
		grpcLn, err = net.Listen("tcp", g.config.Server.GRPCAddr)
		if err != nil {
			_ = httpLn.Close()
			return nil, nil, fmt.Errorf("listening on gRPC address: %w", err)
		}
	}
	return grpcLn, httpLn, nil
}

// setupListeners creates listeners based on configuration (Tailscale or TCP).
func (g *Gateway) setupListeners(ctx context.Context) (grpcLn, httpLn net.Listener, err error) {
	if g.config.Tailscale.Enabled {
		if g.config.Server.GRPCAddr != "" || g.config.Server.HTTPAddr != "" {
			g.logger.Warn("server.grpc_addr and server.http_addr are ignored when tailscale is enabled",
				"grpc_addr", g.config.Server.GRPCAddr,
				"http_addr", g.config.Server.HTTPAddr,
			)
		}
		return g.setupTailscaleListeners(ctx)
	}
	return g.setupTCPListeners()
}

// startServers starts the servers in goroutines, returning the error channel.
func (g *Gateway) startServers(grpcLn, httpLn net.Listener) chan error {
	errCh := make(chan error, 2)

	if grpcLn != nil {
		go func() {
			g.logger.Info("gRPC health server listening", "addr", grpcLn.Addr().String())
			if err := g.grpcServer.Serve(grpcLn); err != nil {
				errCh <- fmt.Errorf("gRPC server: %w", err)
			}
		}()
	}

	go func() {
		g.logger.Info("HTTP server listening", "addr", httpLn.Addr().String())
		if err := g.httpServer.Serve(httpLn); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server: %w", err)
		}
	}()

	return errCh
}

// Run starts the servers and the heartbeat and blocks until ctx is canceled.
// Returns nil on graceful shutdown, or the first server error.
func (g *Gateway) Run(ctx context.Context) error {
	grpcLn, httpLn, err := g.setupListeners(ctx)
	if err != nil {
		return err
	}

	g.Start(ctx)
	errCh := g.startServers(grpcLn, httpLn)

	var serverErr error
	select {
	case <-ctx.Done():
		g.logger.Info("context canceled, initiating shutdown")
	case serverErr = <-errCh:
		g.logger.Error("server error", "error", serverErr)
	}

	// The caller's context is already done; shutdown gets its own budget.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	shutdownErr := g.Shutdown(shutdownCtx)

	if serverErr != nil {
		return serverErr
	}
	return shutdownErr
}

// resolveTailscaleStateDir returns the state directory, using default if not configured.
func resolveTailscaleStateDir(configured string) (string, error) {
	if configured != "" {
		return configured, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory for tailscale state (set tailscale.state_dir explicitly): %w", err)
	}
	return filepath.Join(homeDir, ".local", "share", "vision-gateway", "tailscale"), nil
}

// resolveTailscaleAuthKey returns the auth key from config or environment.
func resolveTailscaleAuthKey(configured string) (string, error) {
	authKey := configured
	if authKey == "" {
		authKey = os.Getenv("TS_AUTHKEY")
	}
	if authKey == "" {
		return "", errors.New("tailscale auth key required: set auth_key in config or TS_AUTHKEY environment variable")
	}
	return authKey, nil
}

// setupTailscaleListeners joins the tailnet and listens there for both servers.
func (g *Gateway) setupTailscaleListeners(ctx context.Context) (grpcLn, httpLn net.Listener, err error) {
	tsCfg := g.config.Tailscale

	stateDir, err := resolveTailscaleStateDir(tsCfg.StateDir)
	if err != nil {
		return nil, nil, err
	}
	if err := os.MkdirAll(stateDir, 0700); err != nil {
		return nil, nil, fmt.Errorf("creating tailscale state dir: %w", err)
	}

	authKey, err := resolveTailscaleAuthKey(tsCfg.AuthKey)
	if err != nil {
		return nil, nil, err
	}

	g.tsnetServer = &tsnet.Server{
		Hostname:  tsCfg.Hostname,
		Dir:       stateDir,
		Ephemeral: tsCfg.Ephemeral,
		AuthKey:   authKey,
	}

	g.logger.Info("starting tailscale node", "hostname", tsCfg.Hostname, "state_dir", stateDir, "ephemeral", tsCfg.Ephemeral)
	status, err := g.tsnetServer.Up(ctx)
	if err != nil {
		_ = g.tsnetServer.Close()
		return nil, nil, fmt.Errorf("starting tailscale: %w", err)
	}
	g.logTailscaleStatus(tsCfg.Hostname, status)

	grpcLn, err = g.tsnetServer.Listen("tcp", tailscaleGRPCPort)
	if err != nil {
		_ = g.tsnetServer.Close()
		return nil, nil, fmt.Errorf("listening on tailscale gRPC port: %w", err)
	}

	httpLn, err = g.createTailscaleHTTPListener(tsCfg)
	if err != nil {
		_ = grpcLn.Close()
		_ = g.tsnetServer.Close()
		return nil, nil, err
	}
	return grpcLn, httpLn, nil
}

// logTailscaleStatus logs info about the tailscale node status.
func (g *Gateway) logTailscaleStatus(hostname string, status *ipnstate.Status) {
	var tsAddr, dnsName string
	if len(status.TailscaleIPs) > 0 {
		tsAddr = status.TailscaleIPs[0].String()
	} else {
		g.logger.Warn("tailscale node has no IP addresses assigned")
	}
	if status.Self != nil {
		dnsName = status.Self.DNSName
	}
	g.logger.Info("tailscale node ready", "hostname", hostname, "tailscale_ip", tsAddr, "dns_name", dnsName)
}

// createTailscaleHTTPListener picks plain HTTP, tailnet HTTPS, or public Funnel.
func (g *Gateway) createTailscaleHTTPListener(tsCfg config.TailscaleConfig) (net.Listener, error) {
	switch {
	case tsCfg.Funnel:
		g.logger.Info("enabling tailscale funnel (public HTTPS) on :443")
		ln, err := g.tsnetServer.ListenFunnel("tcp", ":443")
		if err != nil {
			return nil, fmt.Errorf("listening on tailscale funnel port: %w", err)
		}
		return ln, nil
	case tsCfg.HTTPS:
		g.logger.Info("enabling HTTPS with Tailscale certs on :443")
		ln, err := g.tsnetServer.Listen("tcp", ":443")
		if err != nil {
			return nil, fmt.Errorf("listening on tailscale HTTPS port: %w", err)
		}
		lc, err := g.tsnetServer.LocalClient()
		if err != nil {
			_ = ln.Close()
			return nil, fmt.Errorf("getting tailscale local client: %w", err)
		}
		return tls.NewListener(ln, &tls.Config{
			GetCertificate: lc.GetCertificate,
			MinVersion:     tls.VersionTLS12,
		}), nil
	default:
		ln, err := g.tsnetServer.Listen("tcp", ":80")
		if err != nil {
			return nil, fmt.Errorf("listening on tailscale HTTP port: %w", err)
		}
		return ln, nil
	}
}

// appendCloseError appends an error with label if err is non-nil.
func appendCloseError(errs []error, label string, err error) []error {
	if err != nil {
		return append(errs, fmt.Errorf("%s: %w", label, err))
	}
	return errs
}

// Shutdown stops accepting connections, closes every live session, drains
// in-flight processing, and releases resources.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.logger.Info("shutting down gateway")

	g.health.Shutdown()

	var errs []error
	errs = appendCloseError(errs, "HTTP shutdown", g.httpServer.Shutdown(ctx))

	// Hijacked WebSocket connections are not tracked by http.Server.
	closed := g.registry.CloseAll("server shutting down")
	g.logger.Info("closed sessions", "count", closed)

	g.heartbeat.Stop()
	g.dispatcher.Close()
	g.shutdownGRPCServer(ctx)

	if g.tsnetServer != nil {
		errs = appendCloseError(errs, "tailscale shutdown", g.tsnetServer.Close())
	}
	errs = appendCloseError(errs, "processing close", g.processingCloser.Close())
	errs = appendCloseError(errs, "store close", g.store.Close())

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %w", errors.Join(errs...))
	}
	return nil
}

// shutdownGRPCServer gracefully stops the gRPC server or force-stops on context cancel.
func (g *Gateway) shutdownGRPCServer(ctx context.Context) {
	stopped := make(chan struct{})
	go func() {
		g.grpcServer.GracefulStop()
		close(stopped)
	}()

	select {
	case <-stopped:
	case <-ctx.Done():
		g.grpcServer.Stop()
	}
}
