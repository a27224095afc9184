// Package config はメモリストアの設定の読み書きを管理する。
package config

// ストレージバックエンド種別
const (
	BackendChromem = "chromem"
	BackendQdrant  = "qdrant"
)

// 既定値
const (
	DefaultEmbeddingProvider   = "openai"
	DefaultEmbeddingModel      = "text-embedding-3-small"
	DefaultEmbeddingDim        = 768
	DefaultQdrantURL           = "http://localhost:6334"
	DefaultMaxResults          = 50
	DefaultSimilarityThreshold = float32(0.6)
	DefaultCurationModel       = "claude-3-5-haiku-latest"
	DefaultCurationThreshold   = float32(0.4)
)

// Config は全体設定
type Config struct {
	Storage   StorageConfig   `json:"storage"`
	Embedding EmbeddingConfig `json:"embedding"`
	Search    SearchConfig    `json:"search"`
	Curation  CurationConfig  `json:"curation"`
	Paths     PathsConfig     `json:"paths"`
}

// StorageConfig は永続化バックエンドの設定
type StorageConfig struct {
	Backend   string `json:"backend"`   // "chromem" | "qdrant"
	QdrantURL string `json:"qdrantUrl"` // backend=qdrant のとき使用
}

// EmbeddingConfig は埋め込みプロバイダの設定
type EmbeddingConfig struct {
	Provider string  `json:"provider"`
	Model    string  `json:"model"`
	Dim      int     `json:"dim"`
	BaseURL  *string `json:"baseUrl,omitempty"`
	APIKey   *string `json:"apiKey,omitempty"` // 環境変数が優先される
}

// SearchConfig は検索の既定値
type SearchConfig struct {
	MaxResults          int     `json:"maxResults"`
	SimilarityThreshold float32 `json:"similarityThreshold"`
	DefaultProjectID    string  `json:"defaultProjectId,omitempty"`
}

// CurationConfig はリコール時キュレーションの設定
// SearchThresholdはキュレーション対象を広めに拾うため通常の閾値より低い。
type CurationConfig struct {
	Enabled         bool    `json:"enabled"`
	Model           string  `json:"model"`
	SearchThreshold float32 `json:"searchThreshold"`
}

// PathsConfig は設定とデータの配置
type PathsConfig struct {
	ConfigPath string `json:"configPath"`
	DataDir    string `json:"dataDir"`
}

// DefaultConfig はデフォルト設定を返す
func DefaultConfig(configPath, dataDir string) *Config {
	return &Config{
		Storage: StorageConfig{
			Backend:   BackendChromem,
			QdrantURL: DefaultQdrantURL,
		},
		Embedding: EmbeddingConfig{
			Provider: DefaultEmbeddingProvider,
			Model:    DefaultEmbeddingModel,
			Dim:      DefaultEmbeddingDim,
		},
		Search: SearchConfig{
			MaxResults:          DefaultMaxResults,
			SimilarityThreshold: DefaultSimilarityThreshold,
		},
		Curation: CurationConfig{
			Enabled:         false,
			Model:           DefaultCurationModel,
			SearchThreshold: DefaultCurationThreshold,
		},
		Paths: PathsConfig{
			ConfigPath: configPath,
			DataDir:    dataDir,
		},
	}
}
