// ABOUTME: Translation result cache backed by badger with per-entry TTL
// ABOUTME: Wraps an Adapter and only intercepts Translate; other features pass through

package processing

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"
)

const cacheKeyPrefix = "translation:"

// OpenCache opens the badger database used for cached results. An empty
// path keeps everything in memory.
func OpenCache(path string) (*badger.DB, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	if path == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open cache: %w", err)
	}
	return db, nil
}

// CachedAdapter serves repeated translations from badger.
type CachedAdapter struct {
	Adapter
	db     *badger.DB
	ttl    time.Duration
	logger *slog.Logger
}

// NewCached wraps next with a translation cache. Entries expire after ttl.
func NewCached(next Adapter, db *badger.DB, ttl time.Duration, logger *slog.Logger) *CachedAdapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &CachedAdapter{
		Adapter: next,
		db:      db,
		ttl:     ttl,
		logger:  logger.With("component", "translation_cache"),
	}
}

// Translate returns a cached result when one exists, otherwise calls through
// and stores a successful result. Cache failures never fail the request.
func (c *CachedAdapter) Translate(ctx context.Context, in TranslationInput) (*Translation, error) {
	key := translationKey(in)

	if hit, err := c.get(key); err == nil {
		hit.Cached = true
		return hit, nil
	} else if !errors.Is(err, badger.ErrKeyNotFound) {
		c.logger.Warn("cache read failed", "error", err)
	}

	res, err := c.Adapter.Translate(ctx, in)
	if err != nil {
		return nil, err
	}
	if err := c.put(key, res); err != nil {
		c.logger.Warn("cache write failed", "error", err)
	}
	return res, nil
}

func (c *CachedAdapter) get(key []byte) (*Translation, error) {
	var out Translation
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &out)
		})
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *CachedAdapter) put(key []byte, t *Translation) error {
	data, err := json.Marshal(t)
	if err != nil {
		return err
	}
	return c.db.Update(func(txn *badger.Txn) error {
		e := badger.NewEntry(key, data)
		if c.ttl > 0 {
			e = e.WithTTL(c.ttl)
		}
		return txn.SetEntry(e)
	})
}

func translationKey(in TranslationInput) []byte {
	sum := sha256.Sum256([]byte(in.SourceLanguage + "\x00" + in.TargetLanguage + "\x00" + in.Text))
	return []byte(cacheKeyPrefix + hex.EncodeToString(sum[:]))
}
