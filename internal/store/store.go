// Package store provides the two storage backends of the memory store:
// a relational metadata store and a per-project vector index.
package store

import (
	"context"

	"github.com/mnemox/mnemox/internal/model"
)

// MetadataStore はエンティティのメタデータを保持するリレーショナルストアの抽象インターフェース
// Get系は未存在を (nil, nil) で返す（未存在は正常系）。
// Delete系は削除できたかどうかをboolで返す。
type MetadataStore interface {
	// Project操作
	CreateProject(ctx context.Context, project *model.Project) (string, error)
	GetProject(ctx context.Context, id string) (*model.Project, error)
	ListProjects(ctx context.Context) ([]*model.Project, error)
	UpdateProject(ctx context.Context, project *model.Project) (bool, error)
	// DeleteProjectは所属するFragment/Context/Anchorへカスケードする
	DeleteProject(ctx context.Context, id string) (bool, error)

	// Fragment操作
	CreateFragment(ctx context.Context, fragment *model.Fragment) (string, error)
	GetFragment(ctx context.Context, id string) (*model.Fragment, error)
	ListFragmentsByProject(ctx context.Context, projectID string, limit int) ([]*model.Fragment, error)
	DeleteFragment(ctx context.Context, id string) (bool, error)

	// Context操作
	CreateContext(ctx context.Context, c *model.Context) (string, error)
	GetContext(ctx context.Context, id string) (*model.Context, error)
	ListContextsByProject(ctx context.Context, projectID string) ([]*model.Context, error)
	// ContextsByFragmentは指定Fragmentを含むContextを作成日時の昇順で返す
	ContextsByFragment(ctx context.Context, fragmentID string) ([]*model.Context, error)
	// UpdateContextFragmentsはリストとfragment_countを単一の書き込みで更新する
	UpdateContextFragments(ctx context.Context, contextID string, fragmentIDs []string) (bool, error)

	// Anchor操作
	CreateAnchor(ctx context.Context, anchor *model.Anchor) (string, error)
	GetAnchor(ctx context.Context, id string) (*model.Anchor, error)
	ListAnchorsByProject(ctx context.Context, projectID string) ([]*model.Anchor, error)
	// TouchAnchorはaccess_countをインクリメントしlast_accessedを更新する
	TouchAnchor(ctx context.Context, id string) (bool, error)

	// Statsはプロジェクト単位の件数を返す
	Stats(ctx context.Context, projectID string) (*ProjectStats, error)

	// 初期化・終了
	Initialize(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}

// VectorIndex はプロジェクトごとのネームスペースに分割された類似度インデックスの抽象インターフェース
// 類似度はコサイン類似度（-1〜1、正規化済み埋め込みでは実質0〜1）。
type VectorIndex interface {
	// EnsureNamespaceは冪等なcreate-if-absent
	EnsureNamespace(ctx context.Context, projectID string) error
	// DropNamespaceはネームスペース全体を削除する（未存在はno-op）
	DropNamespace(ctx context.Context, projectID string) error

	// Upsertはfragment idのポイントを挿入または置換する
	// ベクトル長がネームスペースの次元と一致しない場合はErrDimensionMismatchを返す
	Upsert(ctx context.Context, projectID, fragmentID string, vector []float32, payload Payload) error
	// Queryは類似度降順の (fragment_id, score) 列を返す
	Query(ctx context.Context, projectID string, vector []float32, opts QueryOptions) ([]Hit, error)
	// Deleteはポイントを削除する（未存在はno-op）
	Delete(ctx context.Context, projectID, fragmentID string) error

	Ping(ctx context.Context) error
	Close() error
}
