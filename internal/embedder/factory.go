package embedder

// FactoryConfig はEmbedder構築の入力
type FactoryConfig struct {
	Provider string // "openai" のみサポート
	APIKey   string
	Model    string
	BaseURL  string
	Dim      int
}

// NewEmbedder はFactoryConfigからEmbedderを作成
func NewEmbedder(cfg FactoryConfig) (Embedder, error) {
	switch cfg.Provider {
	case "openai", "":
		opts := []OpenAIOption{}
		if cfg.BaseURL != "" {
			opts = append(opts, WithBaseURL(cfg.BaseURL))
		}
		if cfg.Model != "" {
			opts = append(opts, WithModel(cfg.Model))
		}
		return NewOpenAIEmbedder(cfg.APIKey, cfg.Dim, opts...)

	default:
		return nil, ErrUnknownProvider
	}
}
