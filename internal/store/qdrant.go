package store

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/qdrant/go-client/qdrant"
)

// HNSW構築パラメータ（中程度のrecall/latencyトレードオフ）
const (
	hnswM           = 16
	hnswEfConstruct = 100
)

// QdrantIndex はQdrantを使用したVectorIndex実装
// プロジェクトごとに1コレクションを持つ。
type QdrantIndex struct {
	client    *qdrant.Client
	url       string
	vectorDim uint64
}

// NewQdrantIndex はQdrantIndexを作成する
// vectorDimは全ネームスペース共通の埋め込み次元数。
func NewQdrantIndex(urlStr string, vectorDim int) (*QdrantIndex, error) {
	if vectorDim <= 0 {
		return nil, fmt.Errorf("invalid vector dimension: %d", vectorDim)
	}

	parsedURL, err := url.Parse(urlStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse URL: %w", err)
	}

	host := parsedURL.Hostname()
	portStr := parsedURL.Port()
	// Qdrant gRPCポートはデフォルト6334（HTTPは6333）
	port := 6334
	if portStr != "" {
		// HTTPポート指定の場合はgRPCポートに読み替える
		if p, err := strconv.Atoi(portStr); err == nil {
			if p == 6333 {
				port = 6334
			} else {
				port = p
			}
		}
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:                   host,
		Port:                   port,
		SkipCompatibilityCheck: true,
	})
	if err != nil {
		return nil, ErrConnectionFailed
	}

	// 接続確認
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := client.HealthCheck(ctx); err != nil {
		return nil, ErrConnectionFailed
	}

	return &QdrantIndex{
		client:    client,
		url:       urlStr,
		vectorDim: uint64(vectorDim),
	}, nil
}

// EnsureNamespace はプロジェクト用コレクションを冪等に作成する
func (s *QdrantIndex) EnsureNamespace(ctx context.Context, projectID string) error {
	collectionName := NamespaceName(projectID)

	exists, err := s.client.CollectionExists(ctx, collectionName)
	if err != nil {
		return fmt.Errorf("failed to check collection existence: %w", err)
	}
	if exists {
		return nil
	}

	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: collectionName,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     s.vectorDim,
			Distance: qdrant.Distance_Cosine,
		}),
		HnswConfig: &qdrant.HnswConfigDiff{
			M:           qdrant.PtrOf(uint64(hnswM)),
			EfConstruct: qdrant.PtrOf(uint64(hnswEfConstruct)),
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}

	return nil
}

// DropNamespace はプロジェクト用コレクションを削除する（未存在はno-op）
func (s *QdrantIndex) DropNamespace(ctx context.Context, projectID string) error {
	collectionName := NamespaceName(projectID)

	exists, err := s.client.CollectionExists(ctx, collectionName)
	if err != nil {
		return fmt.Errorf("failed to check collection existence: %w", err)
	}
	if !exists {
		return nil
	}

	if err := s.client.DeleteCollection(ctx, collectionName); err != nil {
		return fmt.Errorf("failed to delete collection: %w", err)
	}
	return nil
}

// Upsert はフラグメントのポイントを挿入または置換する
func (s *QdrantIndex) Upsert(ctx context.Context, projectID, fragmentID string, vector []float32, payload Payload) error {
	if uint64(len(vector)) != s.vectorDim {
		return fmt.Errorf("vector has %d dimensions, namespace expects %d: %w",
			len(vector), s.vectorDim, ErrDimensionMismatch)
	}

	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: NamespaceName(projectID),
		Wait:           qdrant.PtrOf(true),
		Points: []*qdrant.PointStruct{
			{
				Id:      qdrant.NewIDNum(pointID(fragmentID)),
				Vectors: qdrant.NewVectors(vector...),
				Payload: buildPayload(payload),
			},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to upsert point: %w", err)
	}

	return nil
}

// Query はベクトル検索を実行する
func (s *QdrantIndex) Query(ctx context.Context, projectID string, vector []float32, opts QueryOptions) ([]Hit, error) {
	if uint64(len(vector)) != s.vectorDim {
		return nil, fmt.Errorf("query vector has %d dimensions, namespace expects %d: %w",
			len(vector), s.vectorDim, ErrDimensionMismatch)
	}

	topK := opts.TopK
	if topK <= 0 {
		topK = 10
	}

	query := &qdrant.QueryPoints{
		CollectionName: NamespaceName(projectID),
		Query:          qdrant.NewQuery(vector...),
		Filter:         buildQueryFilter(opts),
		Limit:          qdrant.PtrOf(uint64(topK)),
		WithPayload:    qdrant.NewWithPayload(true),
	}
	if opts.ScoreThreshold > 0 {
		query.ScoreThreshold = qdrant.PtrOf(opts.ScoreThreshold)
	}

	queryResp, err := s.client.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query points: %w", err)
	}

	// Qdrantのcosineスコアは類似度そのもの（-1〜1）
	var hits []Hit
	for _, point := range queryResp {
		fragmentID := point.Payload[PayloadFragmentID].GetStringValue()
		if fragmentID == "" {
			continue
		}
		hits = append(hits, Hit{
			FragmentID: fragmentID,
			Score:      point.Score,
		})
	}

	return hits, nil
}

// Delete はフラグメントのポイントを削除する（未存在はno-op）
func (s *QdrantIndex) Delete(ctx context.Context, projectID, fragmentID string) error {
	collectionName := NamespaceName(projectID)

	exists, err := s.client.CollectionExists(ctx, collectionName)
	if err != nil {
		return fmt.Errorf("failed to check collection existence: %w", err)
	}
	if !exists {
		return nil
	}

	_, err = s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: collectionName,
		Points:         qdrant.NewPointsSelector(qdrant.NewIDNum(pointID(fragmentID))),
	})
	if err != nil {
		return fmt.Errorf("failed to delete point: %w", err)
	}

	return nil
}

// Ping は疎通確認を行う
func (s *QdrantIndex) Ping(ctx context.Context) error {
	if s.client == nil {
		return ErrConnectionFailed
	}
	if _, err := s.client.HealthCheck(ctx); err != nil {
		return fmt.Errorf("qdrant health check failed: %w", err)
	}
	return nil
}

// Close はクライアントをクローズする
func (s *QdrantIndex) Close() error {
	if s.client != nil {
		s.client.Close()
	}
	return nil
}

// Helper functions

// pointID はfragment UUIDを数値ポイントIDへ変換する
// SHA256ハッシュの先頭8バイトを使用する。
func pointID(fragmentID string) uint64 {
	h := sha256.Sum256([]byte(fragmentID))
	return binary.BigEndian.Uint64(h[:8])
}

// buildQueryFilter はQueryOptionsからQdrantのフィルタを構築する
func buildQueryFilter(opts QueryOptions) *qdrant.Filter {
	var conditions []*qdrant.Condition

	// categoryフィルタ（いずれかに一致）
	if len(opts.Categories) > 0 {
		conditions = append(conditions, qdrant.NewMatchKeywords(PayloadCategory, opts.Categories...))
	}

	// tagsフィルタ（積集合が非空）
	if len(opts.Tags) > 0 {
		conditions = append(conditions, qdrant.NewMatchKeywords(PayloadTags, opts.Tags...))
	}

	// custom fieldsフィルタ（完全一致、文字列/整数/真偽値のみ）
	for field, value := range opts.CustomFields {
		if IsReservedPayloadKey(field) {
			continue
		}
		switch v := value.(type) {
		case string:
			conditions = append(conditions, qdrant.NewMatch(field, v))
		case bool:
			conditions = append(conditions, qdrant.NewMatchBool(field, v))
		case int:
			conditions = append(conditions, qdrant.NewMatchInt(field, int64(v)))
		case int64:
			conditions = append(conditions, qdrant.NewMatchInt(field, v))
		}
	}

	if len(conditions) == 0 {
		return nil
	}
	return &qdrant.Filter{Must: conditions}
}

// buildPayload はPayloadからQdrantのpayloadを構築する
func buildPayload(p Payload) map[string]*qdrant.Value {
	payload := make(map[string]*qdrant.Value)

	payload[PayloadFragmentID], _ = qdrant.NewValue(p.FragmentID)
	payload[PayloadProjectID], _ = qdrant.NewValue(p.ProjectID)
	payload[PayloadCategory], _ = qdrant.NewValue(p.Category)
	payload[PayloadSource], _ = qdrant.NewValue(p.Source)
	payload[PayloadContentPreview], _ = qdrant.NewValue(p.ContentPreview)
	payload[PayloadCreatedAt], _ = qdrant.NewValue(p.CreatedAt.UTC().Format(time.RFC3339))
	payload[PayloadCreatedAtTS], _ = qdrant.NewValue(float64(p.CreatedAt.Unix()))

	tagValues := make([]*qdrant.Value, len(p.Tags))
	for i, tag := range p.Tags {
		tagValues[i], _ = qdrant.NewValue(tag)
	}
	payload[PayloadTags] = qdrant.NewValueList(&qdrant.ListValue{Values: tagValues})

	// custom fieldsはトップレベルへマージする（予約キーとの衝突は落とす）
	for key, value := range p.CustomFields {
		if IsReservedPayloadKey(key) {
			continue
		}
		// JSON経由でQdrantが扱える値へ正規化
		jsonBytes, err := json.Marshal(value)
		if err != nil {
			continue
		}
		var normalized any
		if err := json.Unmarshal(jsonBytes, &normalized); err != nil {
			continue
		}
		if v, err := qdrant.NewValue(normalized); err == nil {
			payload[key] = v
		}
	}

	return payload
}
