// Package bootstrap provides common initialization logic for mnemox.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/mnemox/mnemox/internal/config"
	"github.com/mnemox/mnemox/internal/curator"
	"github.com/mnemox/mnemox/internal/embedder"
	"github.com/mnemox/mnemox/internal/memory"
	"github.com/mnemox/mnemox/internal/store"
)

// Services は初期化されたサービス群を保持
type Services struct {
	Memory   *memory.Service
	Embedder embedder.Embedder
	Config   *config.Config
}

// Initialize は設定を読み込み、必要なサービスを初期化する
func Initialize(ctx context.Context, configPath string, logger *slog.Logger) (*Services, func(), error) {
	if logger == nil {
		logger = slog.Default()
	}

	configManager, err := config.NewManager(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create config manager: %w", err)
	}
	if err := configManager.Load(); err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	cfg := configManager.GetConfig()

	// 1. Embedder初期化（キャッシュ付き）
	baseURL := ""
	if cfg.Embedding.BaseURL != nil {
		baseURL = *cfg.Embedding.BaseURL
	}
	inner, err := embedder.NewEmbedder(embedder.FactoryConfig{
		Provider: cfg.Embedding.Provider,
		APIKey:   config.GetOpenAIAPIKey(cfg),
		Model:    cfg.Embedding.Model,
		BaseURL:  baseURL,
		Dim:      cfg.Embedding.Dim,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create embedder: %w", err)
	}
	emb, err := embedder.NewCachedEmbedder(inner, cfg.Embedding.Model, embedder.DefaultCacheTTL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create embedding cache: %w", err)
	}

	// 2. MetadataStore初期化
	if err := config.EnsureDir(cfg.Paths.DataDir); err != nil {
		return nil, nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	meta, err := store.NewSQLiteStore(filepath.Join(cfg.Paths.DataDir, "mnemox.db"))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create metadata store: %w", err)
	}
	if err := meta.Initialize(ctx); err != nil {
		meta.Close()
		return nil, nil, fmt.Errorf("failed to initialize metadata store: %w", err)
	}

	// 3. VectorIndex初期化
	var index store.VectorIndex
	switch cfg.Storage.Backend {
	case config.BackendQdrant:
		index, err = store.NewQdrantIndex(cfg.Storage.QdrantURL, cfg.Embedding.Dim)
	case config.BackendChromem, "":
		index, err = store.NewChromemIndex(filepath.Join(cfg.Paths.DataDir, "vectors"), cfg.Embedding.Dim)
	default:
		err = fmt.Errorf("unknown storage backend: %q", cfg.Storage.Backend)
	}
	if err != nil {
		meta.Close()
		return nil, nil, fmt.Errorf("failed to create vector index: %w", err)
	}

	// 4. キュレーション（有効時のみ）
	opts := []memory.Option{memory.WithLogger(logger)}
	if cfg.Search.DefaultProjectID != "" {
		opts = append(opts, memory.WithDefaultProject(cfg.Search.DefaultProjectID))
	}
	if cfg.Curation.Enabled {
		apiKey := config.GetAnthropicAPIKey()
		if apiKey == "" {
			logger.Warn("curation enabled but no anthropic api key, curation disabled")
		} else {
			opts = append(opts, memory.WithCurator(curator.NewAnthropicCurator(apiKey, cfg.Curation.Model)))
		}
	}

	svc := memory.NewService(meta, index, opts...)

	cleanup := func() {
		emb.Close()
		index.Close()
		meta.Close()
	}

	return &Services{
		Memory:   svc,
		Embedder: emb,
		Config:   cfg,
	}, cleanup, nil
}
