package embedding

import (
	"context"
	"errors"
	"testing"

	"github.com/fuego-app/fuego/internal/domain"
)

// --- Mocks ---

type recordingEmbedder struct {
	got       string
	err       error
	healthErr error
}

func (r *recordingEmbedder) Embed(_ context.Context, text string) (domain.EmbeddingResult, error) {
	r.got = text
	if r.err != nil {
		return domain.EmbeddingResult{}, r.err
	}
	return domain.EmbeddingResult{Embedding: []float32{0.25, 0.75}}, nil
}

func (r *recordingEmbedder) HealthCheck(_ context.Context) error { return r.healthErr }

// --- Tests ---

func TestWithPrefix_PrependsToLikesText(t *testing.T) {
	inner := &recordingEmbedder{}
	emb := WithPrefix(inner, "passage: ")

	res, err := emb.Embed(context.Background(), "hiking\njazz")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if inner.got != "passage: hiking\njazz" {
		t.Errorf("inner got %q", inner.got)
	}
	if len(res.Embedding) != 2 {
		t.Errorf("expected the inner vector, got %v", res.Embedding)
	}
}

func TestWithPrefix_EmptyReturnsInner(t *testing.T) {
	inner := &recordingEmbedder{}
	if got := WithPrefix(inner, ""); got != domain.Embedder(inner) {
		t.Errorf("expected inner embedder back, got %T", got)
	}
}

func TestWithPrefix_PropagatesErrors(t *testing.T) {
	inner := &recordingEmbedder{err: domain.ErrEmbeddingProviderError}

	_, err := WithPrefix(inner, "passage: ").Embed(context.Background(), "chess")
	if !errors.Is(err, domain.ErrEmbeddingProviderError) {
		t.Fatalf("expected provider error, got %v", err)
	}
}

func TestWithPrefix_HealthCheck(t *testing.T) {
	down := errors.New("unreachable")
	checked := WithPrefix(&recordingEmbedder{healthErr: down}, "q: ").(domain.HealthChecker)
	if err := checked.HealthCheck(context.Background()); !errors.Is(err, down) {
		t.Errorf("expected inner health error, got %v", err)
	}

	unchecked := WithPrefix(plainEmbedder{}, "q: ").(domain.HealthChecker)
	if err := unchecked.HealthCheck(context.Background()); err != nil {
		t.Errorf("expected nil without inner checker, got %v", err)
	}
}
