// Package embedding holds the embedder decorators wired at the composition root.
package embedding

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/fuego-app/fuego/internal/domain"
	"github.com/fuego-app/fuego/internal/logger"
)

// DefaultSlowThreshold is how long a call may take before it is logged at warn.
const DefaultSlowThreshold = 2 * time.Second

// InstrumentedEmbedder writes one log entry per embedding call to the request
// logger. Provider metrics live in transport/openai.
type InstrumentedEmbedder struct {
	inner    domain.Embedder
	provider string
	model    string
	slow     time.Duration
}

// NewInstrumentedEmbedder wraps inner with request logging.
func NewInstrumentedEmbedder(inner domain.Embedder, provider, model string) *InstrumentedEmbedder {
	return &InstrumentedEmbedder{inner: inner, provider: provider, model: model, slow: DefaultSlowThreshold}
}

// Embed calls inner and logs failures at error, slow calls at warn and the rest at debug.
func (p *InstrumentedEmbedder) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	start := time.Now()
	res, err := p.inner.Embed(ctx, text)
	elapsed := time.Since(start)

	fields := []zap.Field{
		zap.String("provider", p.provider),
		zap.String("model", p.model),
		zap.Duration("duration", elapsed),
		zap.Int("likes_chars", len(text)),
	}
	log := logger.FromContext(ctx)

	if err != nil {
		log.Error("likes embedding failed", append(fields, zap.Error(err))...)
		return domain.EmbeddingResult{}, fmt.Errorf("embed: %w", err)
	}

	fields = append(fields, zap.Int("dimensions", len(res.Embedding)), zap.Int("total_tokens", res.TotalTokens))
	if elapsed >= p.slow {
		log.Warn("slow likes embedding", fields...)
	} else {
		log.Debug("likes embedded", fields...)
	}
	return res, nil
}

// HealthCheck forwards to inner when it can check itself.
func (p *InstrumentedEmbedder) HealthCheck(ctx context.Context) error {
	hc, ok := p.inner.(domain.HealthChecker)
	if !ok {
		return nil
	}
	if err := hc.HealthCheck(ctx); err != nil {
		return fmt.Errorf("embedding health check: %w", err)
	}
	return nil
}
