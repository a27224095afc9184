package embedder

import (
	"context"
	"testing"
	"time"
)

type countingEmbedder struct {
	calls int
	dim   int
}

func (e *countingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	e.calls++
	return make([]float32, e.dim), nil
}

func (e *countingEmbedder) Dimension() int {
	return e.dim
}

func TestCachedEmbedder_HitsCache(t *testing.T) {
	inner := &countingEmbedder{dim: 3}
	cached, err := NewCachedEmbedder(inner, "test-model", time.Hour)
	if err != nil {
		t.Fatalf("failed to create cached embedder: %v", err)
	}
	defer cached.Close()

	ctx := context.Background()
	if _, err := cached.Embed(ctx, "hello"); err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
	cached.Wait()

	if _, err := cached.Embed(ctx, "hello"); err != nil {
		t.Fatalf("second Embed failed: %v", err)
	}
	if inner.calls != 1 {
		t.Errorf("inner calls = %d, want 1", inner.calls)
	}

	// 異なるテキストはキャッシュを共有しない
	if _, err := cached.Embed(ctx, "world"); err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
	if inner.calls != 2 {
		t.Errorf("inner calls = %d, want 2", inner.calls)
	}
}

func TestCachedEmbedder_KeyIncludesModel(t *testing.T) {
	a, err := NewCachedEmbedder(&countingEmbedder{dim: 3}, "model-a", time.Hour)
	if err != nil {
		t.Fatalf("failed to create cached embedder: %v", err)
	}
	defer a.Close()
	b, err := NewCachedEmbedder(&countingEmbedder{dim: 3}, "model-b", time.Hour)
	if err != nil {
		t.Fatalf("failed to create cached embedder: %v", err)
	}
	defer b.Close()

	if a.cacheKey("text") == b.cacheKey("text") {
		t.Error("cache keys must differ per model")
	}
}

func TestCachedEmbedder_Dimension(t *testing.T) {
	cached, err := NewCachedEmbedder(&countingEmbedder{dim: 768}, "m", 0)
	if err != nil {
		t.Fatalf("failed to create cached embedder: %v", err)
	}
	defer cached.Close()

	if cached.Dimension() != 768 {
		t.Errorf("Dimension() = %d, want 768", cached.Dimension())
	}
}
