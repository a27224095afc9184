// Package memory はメタデータストアとベクトルインデックスを
// ひとつの論理ストアとして束ねるコーディネータを提供する。
package memory

import (
	"errors"
	"fmt"

	"github.com/mnemox/mnemox/internal/model"
)

// 検索デフォルト値
const (
	DefaultMaxResults          = 50
	DefaultSimilarityThreshold = float32(0.6)
)

var (
	// ErrProjectIDRequired はproject idが解決できないことを表す
	ErrProjectIDRequired = errors.New("project id is required")
	// ErrProjectNotFound は対象プロジェクトが存在しないことを表す
	ErrProjectNotFound = errors.New("project not found")
	// ErrContextNotFound は対象コンテキストが存在しないことを表す
	ErrContextNotFound = errors.New("context not found")
	// ErrFragmentNotFound は対象フラグメントが存在しないことを表す
	ErrFragmentNotFound = errors.New("fragment not found")
)

// InconsistentError はデュアルライトの補償削除自体が失敗し、
// 2つのバックエンドが分岐した可能性があることを表す。
// 修復スイープが対象を特定できるようentity idと操作名を保持する。
type InconsistentError struct {
	EntityID string
	Op       string
	Err      error
}

func (e *InconsistentError) Error() string {
	return fmt.Sprintf("store inconsistent after %s for %s: %v", e.Op, e.EntityID, e.Err)
}

func (e *InconsistentError) Unwrap() error {
	return e.Err
}

// SearchOptions はセマンティック検索の入力契約
type SearchOptions struct {
	ProjectID           string         // 空の場合はサービスのデフォルトプロジェクトを使用
	MaxResults          int            // <=0 はDefaultMaxResults
	SimilarityThreshold float32        // 0 はDefaultSimilarityThreshold（無閾値は負値を指定）
	Categories          []string       // category ∈ set
	Tags                []string       // tagsとの積集合が非空
	CustomFields        map[string]any // 完全一致
	ContextID           string         // 指定時はそのコンテキスト所属のみに絞る
}

// SearchResult は類似度と関連エンティティを付与した検索結果
type SearchResult struct {
	Fragment   *model.Fragment `json:"fragment"`
	Similarity float32         `json:"similarity"`
	Context    *model.Context  `json:"context,omitempty"` // 最初に参照されたコンテキスト
	Anchors    []*model.Anchor `json:"anchors,omitempty"` // 解決できたもののみ
}

// CurationReport はキュレーション適用結果の報告
type CurationReport struct {
	Applied          bool   `json:"applied"`
	RequestedDeletes int    `json:"requestedDeletes"`
	Deleted          int    `json:"deleted"`
	Reasoning        string `json:"reasoning,omitempty"`
}

// Health はバックエンドごとの疎通状態
type Health struct {
	Metadata bool `json:"metadata"`
	Index    bool `json:"index"`
}

// OK は両バックエンドが疎通可能かを返す
func (h Health) OK() bool {
	return h.Metadata && h.Index
}
