package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Manager は設定の読み書きを管理する
type Manager struct {
	mu         sync.RWMutex
	config     *Config
	configPath string
}

// NewManager は新しいManagerを作成する
// configPathが空文字の場合、デフォルトパス（~/.mnemox/config.json）を使用
func NewManager(configPath string) (*Manager, error) {
	if configPath == "" {
		defaultPath, err := GetDefaultConfigPath()
		if err != nil {
			return nil, fmt.Errorf("failed to get default config path: %w", err)
		}
		configPath = defaultPath
	}

	dataDir, err := GetDefaultDataDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get default data dir: %w", err)
	}

	return &Manager{
		config:     DefaultConfig(configPath, dataDir),
		configPath: configPath,
	}, nil
}

// NewManagerWithConfig は指定した設定でManagerを作成する（テスト用）
func NewManagerWithConfig(cfg *Config) *Manager {
	return &Manager{config: cfg}
}

// Load は設定ファイルを読み込む
// ファイルが存在しない場合はデフォルト設定を使用（エラーなし）
func (m *Manager) Load() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, err := os.Stat(m.configPath); os.IsNotExist(err) {
		return nil
	}

	data, err := os.ReadFile(m.configPath)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := json.Unmarshal(data, &config); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	applyDefaults(&config, m.config)
	m.config = &config
	return nil
}

// Save は設定ファイルを保存する
func (m *Manager) Save() error {
	m.mu.RLock()
	config := m.config
	m.mu.RUnlock()

	configDir := filepath.Dir(m.configPath)
	if err := EnsureDir(configDir); err != nil {
		return err
	}

	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// 一時ファイルに書き込み（atomicな保存のため）
	tmpFile := m.configPath + ".tmp"
	if err := os.WriteFile(tmpFile, data, 0644); err != nil {
		return fmt.Errorf("failed to write temp config file: %w", err)
	}

	if err := os.Rename(tmpFile, m.configPath); err != nil {
		os.Remove(tmpFile)
		return fmt.Errorf("failed to rename config file: %w", err)
	}

	return nil
}

// GetConfig は現在の設定を返す
func (m *Manager) GetConfig() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config
}

// GetConfigPath は設定ファイルパスを返す
func (m *Manager) GetConfigPath() string {
	return m.configPath
}

// applyDefaults は読み込んだ設定の未指定フィールドを既定値で埋める
func applyDefaults(config, defaults *Config) {
	if config.Storage.Backend == "" {
		config.Storage.Backend = defaults.Storage.Backend
	}
	if config.Storage.QdrantURL == "" {
		config.Storage.QdrantURL = defaults.Storage.QdrantURL
	}
	if config.Embedding.Provider == "" {
		config.Embedding.Provider = defaults.Embedding.Provider
	}
	if config.Embedding.Model == "" {
		config.Embedding.Model = defaults.Embedding.Model
	}
	if config.Embedding.Dim == 0 {
		config.Embedding.Dim = defaults.Embedding.Dim
	}
	if config.Search.MaxResults == 0 {
		config.Search.MaxResults = defaults.Search.MaxResults
	}
	if config.Search.SimilarityThreshold == 0 {
		config.Search.SimilarityThreshold = defaults.Search.SimilarityThreshold
	}
	if config.Curation.Model == "" {
		config.Curation.Model = defaults.Curation.Model
	}
	if config.Curation.SearchThreshold == 0 {
		config.Curation.SearchThreshold = defaults.Curation.SearchThreshold
	}
	if config.Paths.ConfigPath == "" {
		config.Paths.ConfigPath = defaults.Paths.ConfigPath
	}
	if config.Paths.DataDir == "" {
		config.Paths.DataDir = defaults.Paths.DataDir
	}
}
