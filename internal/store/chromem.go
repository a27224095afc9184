package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	chromem "github.com/philippgille/chromem-go"
)

// ChromemIndex はchromem-goを使用した組み込み（サーバー不要）VectorIndex実装
// 各プロジェクトが独立したコレクションを持つ。
// chromemのメタデータフィルタは完全一致のみのため、絞り込みはGo側で行う。
type ChromemIndex struct {
	mu        sync.Mutex
	db        *chromem.DB
	vectorDim int
}

// NewChromemIndex は永続化モードのChromemIndexを作成する
func NewChromemIndex(path string, vectorDim int) (*ChromemIndex, error) {
	if vectorDim <= 0 {
		return nil, fmt.Errorf("invalid vector dimension: %d", vectorDim)
	}

	db, err := chromem.NewPersistentDB(path, false)
	if err != nil {
		return nil, fmt.Errorf("failed to open chromem db: %w", err)
	}

	return &ChromemIndex{
		db:        db,
		vectorDim: vectorDim,
	}, nil
}

// NewChromemIndexInMemory はテスト用のインメモリChromemIndexを作成する
func NewChromemIndexInMemory(vectorDim int) (*ChromemIndex, error) {
	if vectorDim <= 0 {
		return nil, fmt.Errorf("invalid vector dimension: %d", vectorDim)
	}
	return &ChromemIndex{
		db:        chromem.NewDB(),
		vectorDim: vectorDim,
	}, nil
}

// EnsureNamespace はプロジェクト用コレクションを冪等に作成する
func (s *ChromemIndex) EnsureNamespace(ctx context.Context, projectID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// 埋め込みは常にこちらで供給するためembedding funcは不要
	if _, err := s.db.GetOrCreateCollection(NamespaceName(projectID), nil, noEmbedding); err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}
	return nil
}

// DropNamespace はプロジェクト用コレクションを削除する（未存在はno-op）
func (s *ChromemIndex) DropNamespace(ctx context.Context, projectID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	name := NamespaceName(projectID)
	if s.db.GetCollection(name, noEmbedding) == nil {
		return nil
	}
	if err := s.db.DeleteCollection(name); err != nil {
		return fmt.Errorf("failed to delete collection: %w", err)
	}
	return nil
}

// Upsert はフラグメントのポイントを挿入または置換する
func (s *ChromemIndex) Upsert(ctx context.Context, projectID, fragmentID string, vector []float32, payload Payload) error {
	if len(vector) != s.vectorDim {
		return fmt.Errorf("vector has %d dimensions, namespace expects %d: %w",
			len(vector), s.vectorDim, ErrDimensionMismatch)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	col, err := s.db.GetOrCreateCollection(NamespaceName(projectID), nil, noEmbedding)
	if err != nil {
		return fmt.Errorf("failed to get collection: %w", err)
	}

	meta, err := encodeMetadata(payload)
	if err != nil {
		return err
	}

	doc := chromem.Document{
		ID:        fragmentID,
		Content:   payload.ContentPreview,
		Embedding: vector,
		Metadata:  meta,
	}

	// chromemのAddDocumentは同一IDを上書きする
	if err := col.AddDocument(ctx, doc); err != nil {
		return fmt.Errorf("failed to add document: %w", err)
	}

	return nil
}

// Query はベクトル検索を実行する
func (s *ChromemIndex) Query(ctx context.Context, projectID string, vector []float32, opts QueryOptions) ([]Hit, error) {
	if len(vector) != s.vectorDim {
		return nil, fmt.Errorf("query vector has %d dimensions, namespace expects %d: %w",
			len(vector), s.vectorDim, ErrDimensionMismatch)
	}

	// 件数の取得と検索の間に削除が割り込むとnResultsが件数超過でエラーになるため
	// ロックを保持したまま同一断面で実行する
	s.mu.Lock()
	defer s.mu.Unlock()

	col := s.db.GetCollection(NamespaceName(projectID), noEmbedding)
	if col == nil {
		return nil, nil
	}
	count := col.Count()
	if count == 0 {
		return nil, nil
	}

	topK := opts.TopK
	if topK <= 0 {
		topK = 10
	}

	// フィルタはGo側で適用するため全件取得してから絞り込む
	results, err := col.QueryEmbedding(ctx, vector, count, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("chromem query failed: %w", err)
	}

	var hits []Hit
	for _, result := range results {
		if result.Similarity < opts.ScoreThreshold {
			continue
		}
		if !matchMetadata(result.Metadata, opts) {
			continue
		}
		hits = append(hits, Hit{
			FragmentID: result.ID,
			Score:      result.Similarity,
		})
		if len(hits) >= topK {
			break
		}
	}

	return hits, nil
}

// Delete はフラグメントのポイントを削除する（未存在はno-op）
func (s *ChromemIndex) Delete(ctx context.Context, projectID, fragmentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	col := s.db.GetCollection(NamespaceName(projectID), noEmbedding)
	if col == nil {
		return nil
	}

	if err := col.Delete(ctx, nil, nil, fragmentID); err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	return nil
}

// Ping は疎通確認を行う（組み込みDBのため常に成功）
func (s *ChromemIndex) Ping(ctx context.Context) error {
	if s.db == nil {
		return ErrConnectionFailed
	}
	return nil
}

// Close はインデックスをクローズする
func (s *ChromemIndex) Close() error {
	return nil
}

// Helper functions

// noEmbedding は埋め込みを外部供給するコレクション用のダミーEmbeddingFunc
func noEmbedding(ctx context.Context, text string) ([]float32, error) {
	return nil, fmt.Errorf("embeddings must be supplied by the caller")
}

// encodeMetadata はPayloadをchromemの文字列メタデータへ変換する
// リスト/マップはJSONエンコードして保持する。
func encodeMetadata(p Payload) (map[string]string, error) {
	tagsJSON, err := json.Marshal(p.Tags)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal tags: %w", err)
	}

	meta := map[string]string{
		PayloadFragmentID: p.FragmentID,
		PayloadProjectID:  p.ProjectID,
		PayloadCategory:   p.Category,
		PayloadSource:     p.Source,
		PayloadTags:       string(tagsJSON),
		PayloadCreatedAt:  p.CreatedAt.UTC().Format(time.RFC3339),
	}

	if len(p.CustomFields) > 0 {
		custom := make(map[string]any, len(p.CustomFields))
		for key, value := range p.CustomFields {
			if IsReservedPayloadKey(key) {
				continue
			}
			custom[key] = value
		}
		customJSON, err := json.Marshal(custom)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal custom fields: %w", err)
		}
		meta["custom_fields"] = string(customJSON)
	}

	return meta, nil
}

// matchMetadata はメタデータがQueryOptionsのフィルタを満たすかを判定する
func matchMetadata(meta map[string]string, opts QueryOptions) bool {
	if len(opts.Categories) > 0 {
		if !ContainsString(opts.Categories, meta[PayloadCategory]) {
			return false
		}
	}

	if len(opts.Tags) > 0 {
		var tags []string
		if raw, ok := meta[PayloadTags]; ok {
			json.Unmarshal([]byte(raw), &tags)
		}
		if !ContainsAnyTag(tags, opts.Tags) {
			return false
		}
	}

	if len(opts.CustomFields) > 0 {
		var custom map[string]any
		if raw, ok := meta["custom_fields"]; ok {
			json.Unmarshal([]byte(raw), &custom)
		}
		for field, want := range opts.CustomFields {
			if IsReservedPayloadKey(field) {
				continue
			}
			got, ok := custom[field]
			if !ok {
				return false
			}
			// JSON経由の数値はfloat64になるため文字列表現で比較する
			if fmt.Sprintf("%v", got) != fmt.Sprintf("%v", want) {
				return false
			}
		}
	}

	return true
}
