package embedder

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/dgraph-io/ristretto"
)

// DefaultCacheTTL は埋め込みキャッシュの既定TTL
const DefaultCacheTTL = 24 * time.Hour

// CachedEmbedder は内側のEmbedderをristrettoキャッシュで包む
// 同一テキストの再埋め込みを省く。キャッシュの失敗は埋め込み自体を妨げない。
type CachedEmbedder struct {
	inner Embedder
	model string
	cache *ristretto.Cache
	ttl   time.Duration
}

// NewCachedEmbedder はCachedEmbedderを作成する
// modelはキャッシュキーの一部になる（モデル切り替えで古いベクトルを拾わないため）。
func NewCachedEmbedder(inner Embedder, model string, ttl time.Duration) (*CachedEmbedder, error) {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}

	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 100_000,
		MaxCost:     64 << 20, // 64MiB
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}

	return &CachedEmbedder{
		inner: inner,
		model: model,
		cache: cache,
		ttl:   ttl,
	}, nil
}

// Embed はキャッシュ済みベクトルがあればそれを返し、なければ内側へ委譲する
func (e *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	key := e.cacheKey(text)

	if v, ok := e.cache.Get(key); ok {
		if vec, ok := v.([]float32); ok {
			return vec, nil
		}
	}

	vec, err := e.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}

	// cost = 4バイト/要素。受け入れ拒否は無視する（劣化モード）
	e.cache.SetWithTTL(key, vec, int64(len(vec)*4), e.ttl)
	return vec, nil
}

// Dimension は内側のEmbedderの次元を返す
func (e *CachedEmbedder) Dimension() int {
	return e.inner.Dimension()
}

// Close はキャッシュを解放する
func (e *CachedEmbedder) Close() {
	e.cache.Close()
}

// Wait はキャッシュの書き込みバッファが掃けるまで待つ（テスト用）
func (e *CachedEmbedder) Wait() {
	e.cache.Wait()
}

func (e *CachedEmbedder) cacheKey(text string) string {
	h := sha256.Sum256([]byte(e.model + "\x00" + text))
	return hex.EncodeToString(h[:])
}
