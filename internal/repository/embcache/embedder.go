// Package embcache keeps likes embeddings in the shared cache so re-saving a
// profile with unchanged likes does not call the provider again.
package embcache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/fuego-app/fuego/internal/db"
	"github.com/fuego-app/fuego/internal/db/postgres"
	"github.com/fuego-app/fuego/internal/domain"
)

// DefaultTTL bounds how long a cached embedding survives.
const DefaultTTL = 7 * 24 * time.Hour

const keySpace = domain.KeyPrefix + "embedding:"

// CachedEmbedder stores vectors as pgvector literals, the same text that is
// written to profiles.embedding.
type CachedEmbedder struct {
	inner      domain.Embedder
	store      db.KVStore
	model      string
	dimensions int
	ttl        time.Duration
	lookups    *prometheus.CounterVec
	logger     *zap.Logger
}

// Option configures a CachedEmbedder.
type Option func(*CachedEmbedder)

// WithTTL overrides DefaultTTL. Zero keeps entries forever.
func WithTTL(ttl time.Duration) Option {
	return func(c *CachedEmbedder) { c.ttl = ttl }
}

// WithModel namespaces keys by model so a model switch never serves old vectors.
func WithModel(model string) Option {
	return func(c *CachedEmbedder) { c.model = model }
}

// WithDimensions treats cached vectors of any other length as misses.
func WithDimensions(n int) Option {
	return func(c *CachedEmbedder) { c.dimensions = n }
}

// New wraps inner. lookups is labelled by result ("hit", "miss") and may be nil.
func New(inner domain.Embedder, store db.KVStore, lookups *prometheus.CounterVec, logger *zap.Logger, opts ...Option) *CachedEmbedder {
	c := &CachedEmbedder{
		inner:   inner,
		store:   store,
		ttl:     DefaultTTL,
		lookups: lookups,
		logger:  logger,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Embed serves from the cache when possible. Hits report zero tokens. Cache
// failures are logged and never fail the request.
func (c *CachedEmbedder) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	key := c.key(text)

	if vec, ok := c.lookup(ctx, key); ok {
		c.count("hit")
		return domain.EmbeddingResult{Embedding: vec}, nil
	}
	c.count("miss")

	res, err := c.inner.Embed(ctx, text)
	if err != nil {
		return domain.EmbeddingResult{}, fmt.Errorf("embed likes: %w", err)
	}

	if len(res.Embedding) > 0 {
		literal := postgres.VectorLiteral(res.Embedding)
		if err := c.store.SetWithTTL(ctx, key, []byte(literal), c.ttl); err != nil {
			c.logger.Warn("embedding cache write failed", zap.String("key", key), zap.Error(err))
		}
	}
	return res, nil
}

// HealthCheck reports the provider, not the cache; /health pings the cache separately.
func (c *CachedEmbedder) HealthCheck(ctx context.Context) error {
	if hc, ok := c.inner.(domain.HealthChecker); ok {
		return hc.HealthCheck(ctx) //nolint:wrapcheck // transparent decorator
	}
	return nil
}

func (c *CachedEmbedder) key(text string) string {
	sum := sha256.Sum256([]byte(text))
	model := c.model
	if model == "" {
		model = "default"
	}
	return keySpace + model + ":" + hex.EncodeToString(sum[:])
}

func (c *CachedEmbedder) lookup(ctx context.Context, key string) ([]float32, bool) {
	data, err := c.store.Get(ctx, key)
	if errors.Is(err, db.ErrKeyNotFound) {
		return nil, false
	}
	if err != nil {
		c.logger.Warn("embedding cache read failed", zap.String("key", key), zap.Error(err))
		return nil, false
	}

	vec, err := postgres.ParseVectorLiteral(string(data))
	if err != nil || len(vec) == 0 {
		c.logger.Warn("discarding unreadable cached embedding", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	if c.dimensions > 0 && len(vec) != c.dimensions {
		c.logger.Warn("discarding cached embedding of wrong size",
			zap.String("key", key), zap.Int("got", len(vec)), zap.Int("want", c.dimensions))
		return nil, false
	}
	return vec, true
}

func (c *CachedEmbedder) count(result string) {
	if c.lookups != nil {
		c.lookups.WithLabelValues(result).Inc()
	}
}
