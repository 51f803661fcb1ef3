// ABOUTME: Builds the configured processing stack from config
// ABOUTME: backend -> translation cache -> timeout -> metrics, outermost last

package processing

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/2389/vision-gateway/internal/config"
	"github.com/2389/vision-gateway/internal/metrics"
)

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

// New assembles the Adapter described by cfg. The returned Closer releases
// the cache database and must be called on shutdown.
func New(ctx context.Context, cfg config.ProcessingConfig, logger *slog.Logger, m *metrics.Metrics) (Adapter, io.Closer, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var backend Adapter
	switch cfg.Backend {
	case "", "simulated":
		backend = NewSimulated(cfg.SimulatedLatency)
	case "http":
		backend = NewHTTPBackend(cfg.BaseURL, cfg.APIKey, nil)
	case "openai":
		backend = NewOpenAIBackend(cfg.APIKey, cfg.BaseURL, cfg.Model, cfg.TranscribeModel)
	case "gemini":
		g, err := NewGeminiBackend(ctx, cfg.APIKey, cfg.Model)
		if err != nil {
			return nil, nil, err
		}
		backend = g
	default:
		return nil, nil, fmt.Errorf("unknown processing backend %q", cfg.Backend)
	}

	closer := io.Closer(closerFunc(func() error { return nil }))
	if cfg.CacheEnabled {
		db, err := OpenCache(cfg.CachePath)
		if err != nil {
			return nil, nil, err
		}
		backend = NewCached(backend, db, cfg.CacheTTL, logger)
		closer = db
	}

	adapter := Instrumented(WithTimeout(backend, cfg.Timeout), m)

	logger.Info("processing backend ready",
		"backend", cfg.Backend,
		"timeout", cfg.Timeout,
		"cache", cfg.CacheEnabled,
	)
	return adapter, closer, nil
}
