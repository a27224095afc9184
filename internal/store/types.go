package store

import (
	"errors"
	"time"
	"unicode/utf8"
)

// エラー定義
var (
	ErrNotInitialized    = errors.New("store not initialized")
	ErrConnectionFailed  = errors.New("failed to connect to store")
	ErrConflict          = errors.New("id already exists")
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
)

// 予約payloadキー
// custom_fieldsのキーがこれらと衝突した場合、そのキーはpayloadに反映されない。
const (
	PayloadFragmentID     = "fragment_id"
	PayloadProjectID      = "project_id"
	PayloadCategory       = "category"
	PayloadTags           = "tags"
	PayloadSource         = "source"
	PayloadContentPreview = "content_preview"
	PayloadCreatedAt      = "created_at"
	PayloadCreatedAtTS    = "created_at_ts"
)

// contentPreviewLen はpayloadに載せる本文プレビューの最大長
const contentPreviewLen = 200

// Payload はVectorIndexのポイントに付与するフィルタ可能な属性
// MetadataStoreへ往復せずに絞り込みできるよう非正規化して保持する。
type Payload struct {
	FragmentID     string
	ProjectID      string
	Category       string
	Tags           []string
	Source         string
	ContentPreview string
	CreatedAt      time.Time
	CustomFields   map[string]any
}

// QueryOptions はVectorIndex検索のオプション
type QueryOptions struct {
	TopK           int      // 取得件数上限
	ScoreThreshold float32  // これ未満の類似度は返さない
	Categories     []string // category ∈ set（空はフィルタなし）
	Tags           []string // tagsとの積集合が非空（空はフィルタなし）
	CustomFields   map[string]any // 完全一致（空はフィルタなし）
}

// Hit はベクトル検索結果の1件
type Hit struct {
	FragmentID string
	Score      float32 // コサイン類似度
}

// ProjectStats はプロジェクト単位のエンティティ件数
type ProjectStats struct {
	Fragments int `json:"fragments"`
	Contexts  int `json:"contexts"`
	Anchors   int `json:"anchors"`
}

// reservedPayloadKeys は予約キーの集合
var reservedPayloadKeys = map[string]bool{
	PayloadFragmentID:     true,
	PayloadProjectID:      true,
	PayloadCategory:       true,
	PayloadTags:           true,
	PayloadSource:         true,
	PayloadContentPreview: true,
	PayloadCreatedAt:      true,
	PayloadCreatedAtTS:    true,
}

// IsReservedPayloadKey は予約payloadキーかどうかを返す
func IsReservedPayloadKey(key string) bool {
	return reservedPayloadKeys[key]
}

// Preview は本文からpayload用プレビューを切り出す
// マルチバイト文字の途中で切らない（不正なUTF-8はprotobufのmarshalで弾かれる）。
func Preview(content string) string {
	if len(content) <= contentPreviewLen {
		return content
	}
	cut := contentPreviewLen
	for cut > 0 && !utf8.RuneStart(content[cut]) {
		cut--
	}
	return content[:cut]
}
