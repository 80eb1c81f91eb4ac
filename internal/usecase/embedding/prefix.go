package embedding

import (
	"context"

	"github.com/fuego-app/fuego/internal/domain"
)

// prefixedEmbedder prepends a model instruction such as "passage: " to the likes text.
type prefixedEmbedder struct {
	inner  domain.Embedder
	prefix string
}

// WithPrefix returns inner unchanged when prefix is empty. Wrap it around the
// cache so cached vectors are keyed by the prefixed text.
func WithPrefix(inner domain.Embedder, prefix string) domain.Embedder {
	if prefix == "" {
		return inner
	}
	return &prefixedEmbedder{inner: inner, prefix: prefix}
}

func (e *prefixedEmbedder) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	return e.inner.Embed(ctx, e.prefix+text) //nolint:wrapcheck // transparent decorator
}

func (e *prefixedEmbedder) HealthCheck(ctx context.Context) error {
	if hc, ok := e.inner.(domain.HealthChecker); ok {
		return hc.HealthCheck(ctx) //nolint:wrapcheck // transparent decorator
	}
	return nil
}
