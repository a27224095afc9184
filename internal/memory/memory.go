package memory

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/mnemox/mnemox/internal/curator"
	"github.com/mnemox/mnemox/internal/model"
	"github.com/mnemox/mnemox/internal/store"
)

// Service はメタデータストアとベクトルインデックスを束ねるコーディネータ
// デュアルライト/デュアルデリートのプロトコルを所有する。
// 同一fragment idへの並行store+deleteは未定義（呼び出し側で直列化する）。
type Service struct {
	meta   store.MetadataStore
	index  store.VectorIndex
	cur    curator.Curator // nilの場合キュレーションはパススルー
	logger *slog.Logger

	defaultProjectID string
}

// Option はServiceの構成オプション
type Option func(*Service)

// WithCurator はキュレーション判断機能を設定する
func WithCurator(c curator.Curator) Option {
	return func(s *Service) { s.cur = c }
}

// WithDefaultProject は検索時のデフォルトプロジェクトidを設定する
// パッケージグローバルではなく、呼び出し側（bootstrap）が明示的に渡す。
func WithDefaultProject(projectID string) Option {
	return func(s *Service) { s.defaultProjectID = projectID }
}

// WithLogger はロガーを設定する
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// NewService はServiceを作成する
func NewService(meta store.MetadataStore, index store.VectorIndex, opts ...Option) *Service {
	s := &Service{
		meta:   meta,
		index:  index,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Project operations

// CreateProject はプロジェクトを作成し、ベクトルネームスペースを確保する
func (s *Service) CreateProject(ctx context.Context, name, description string) (*model.Project, error) {
	now := time.Now().UTC()
	project := &model.Project{
		ID:          uuid.NewString(),
		Name:        name,
		Description: description,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := project.Validate(); err != nil {
		return nil, err
	}

	if _, err := s.meta.CreateProject(ctx, project); err != nil {
		return nil, fmt.Errorf("failed to create project: %w", err)
	}

	if err := s.index.EnsureNamespace(ctx, project.ID); err != nil {
		// メタデータ行を補償削除して作成失敗として返す
		if _, delErr := s.meta.DeleteProject(ctx, project.ID); delErr != nil {
			return nil, &InconsistentError{EntityID: project.ID, Op: "create_project", Err: delErr}
		}
		return nil, fmt.Errorf("failed to create vector namespace: %w", err)
	}

	return project, nil
}

// GetProject はプロジェクトを取得する（不在はnil）
func (s *Service) GetProject(ctx context.Context, id string) (*model.Project, error) {
	return s.meta.GetProject(ctx, id)
}

// ListProjects は全プロジェクトを返す
func (s *Service) ListProjects(ctx context.Context) ([]*model.Project, error) {
	return s.meta.ListProjects(ctx)
}

// DeleteProject はプロジェクトと所有エンティティ、ベクトルネームスペースを削除する
// メタデータのカスケード削除後にネームスペースを丸ごと落とす
// （ポイント単位ではなくネームスペース単位の方がインデックス側から見て原子的）。
func (s *Service) DeleteProject(ctx context.Context, id string) (bool, error) {
	deleted, err := s.meta.DeleteProject(ctx, id)
	if err != nil {
		return false, fmt.Errorf("failed to delete project metadata: %w", err)
	}
	if !deleted {
		return false, nil
	}

	if err := s.index.DropNamespace(ctx, id); err != nil {
		// メタデータは消えている。残ったネームスペースは回収可能なゴミとして報告する
		s.logger.Warn("project deleted but namespace drop failed",
			"project_id", id, "error", err)
		return true, fmt.Errorf("project metadata deleted but namespace drop failed for %s: %w", id, err)
	}
	return true, nil
}

// Fragment operations

// StoreFragment はフラグメントを両バックエンドへ書き込む
// メタデータ行を先に書き、ベクトル書き込みが失敗した場合は補償削除で巻き戻す。
// 補償削除自体の失敗はInconsistentErrorとして報告し、修復パスが拾えるようにする。
func (s *Service) StoreFragment(ctx context.Context, fragment *model.Fragment, embedding []float32) (string, error) {
	if fragment.ID == "" {
		fragment.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if fragment.CreatedAt.IsZero() {
		fragment.CreatedAt = now
	}
	fragment.UpdatedAt = now
	fragment.Normalize()
	if err := fragment.Validate(); err != nil {
		return "", err
	}

	if _, err := s.meta.CreateFragment(ctx, fragment); err != nil {
		return "", fmt.Errorf("failed to create fragment metadata: %w", err)
	}

	if err := s.index.EnsureNamespace(ctx, fragment.ProjectID); err != nil {
		return "", s.compensateFragment(ctx, fragment.ID, fmt.Errorf("failed to ensure namespace: %w", err))
	}

	payload := store.Payload{
		FragmentID:     fragment.ID,
		ProjectID:      fragment.ProjectID,
		Category:       fragment.Category,
		Tags:           fragment.Tags,
		Source:         fragment.Source,
		ContentPreview: store.Preview(fragment.Content),
		CreatedAt:      fragment.CreatedAt,
		CustomFields:   fragment.CustomFields,
	}
	if err := s.index.Upsert(ctx, fragment.ProjectID, fragment.ID, embedding, payload); err != nil {
		return "", s.compensateFragment(ctx, fragment.ID, fmt.Errorf("failed to upsert vector: %w", err))
	}

	return fragment.ID, nil
}

// compensateFragment はベクトル書き込み失敗後のメタデータ行を巻き戻す
func (s *Service) compensateFragment(ctx context.Context, fragmentID string, cause error) error {
	if _, delErr := s.meta.DeleteFragment(ctx, fragmentID); delErr != nil {
		s.logger.Error("compensating delete failed, store may be inconsistent",
			"fragment_id", fragmentID, "cause", cause, "error", delErr)
		return &InconsistentError{EntityID: fragmentID, Op: "store_fragment", Err: delErr}
	}
	return cause
}

// GetFragment はフラグメントを取得する（不在はnil）
func (s *Service) GetFragment(ctx context.Context, id string) (*model.Fragment, error) {
	return s.meta.GetFragment(ctx, id)
}

// ListFragments はプロジェクトのフラグメントを新しい順に返す
func (s *Service) ListFragments(ctx context.Context, projectID string, limit int) ([]*model.Fragment, error) {
	return s.meta.ListFragmentsByProject(ctx, projectID, limit)
}

// DeleteFragment はフラグメントを両バックエンドから削除する
// メタデータ行が不在の場合はインデックスに触れず (false, nil) を返す。
// メタデータ削除後のベクトル削除失敗は (true, err)：フラグメントは消えたとみなし、
// 残ったポイントは回収可能なゴミとして扱う。
func (s *Service) DeleteFragment(ctx context.Context, id string) (bool, error) {
	fragment, err := s.meta.GetFragment(ctx, id)
	if err != nil {
		return false, fmt.Errorf("failed to look up fragment: %w", err)
	}
	if fragment == nil {
		return false, nil
	}

	deleted, err := s.meta.DeleteFragment(ctx, id)
	if err != nil {
		return false, fmt.Errorf("failed to delete fragment metadata: %w", err)
	}
	if !deleted {
		return false, nil
	}

	if err := s.index.Delete(ctx, fragment.ProjectID, id); err != nil {
		s.logger.Warn("fragment deleted but vector point remains",
			"fragment_id", id, "project_id", fragment.ProjectID, "error", err)
		return true, fmt.Errorf("fragment %s deleted but vector delete failed: %w", id, err)
	}
	return true, nil
}

// Context operations

// CreateContext はコンテキストを作成する
func (s *Service) CreateContext(ctx context.Context, c *model.Context) (string, error) {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = now
	c.Normalize()
	if err := c.Validate(); err != nil {
		return "", err
	}
	return s.meta.CreateContext(ctx, c)
}

// GetContext はコンテキストを取得する（不在はnil）
func (s *Service) GetContext(ctx context.Context, id string) (*model.Context, error) {
	return s.meta.GetContext(ctx, id)
}

// ListContexts はプロジェクトのコンテキストを新しい順に返す
func (s *Service) ListContexts(ctx context.Context, projectID string) ([]*model.Context, error) {
	return s.meta.ListContextsByProject(ctx, projectID)
}

// AddFragmentToContext はフラグメントをコンテキストの所属リストへ追加する
// 所属はContext側のリストが唯一の真実で、fragment_countは同一書き込みで更新される。
func (s *Service) AddFragmentToContext(ctx context.Context, contextID, fragmentID string) error {
	c, err := s.meta.GetContext(ctx, contextID)
	if err != nil {
		return err
	}
	if c == nil {
		return fmt.Errorf("%w: %s", ErrContextNotFound, contextID)
	}

	fragment, err := s.meta.GetFragment(ctx, fragmentID)
	if err != nil {
		return err
	}
	if fragment == nil {
		return fmt.Errorf("%w: %s", ErrFragmentNotFound, fragmentID)
	}

	if store.ContainsString(c.FragmentIDs, fragmentID) {
		return nil
	}

	updated := append(append([]string{}, c.FragmentIDs...), fragmentID)
	if _, err := s.meta.UpdateContextFragments(ctx, contextID, updated); err != nil {
		return fmt.Errorf("failed to update context membership: %w", err)
	}
	return nil
}

// RemoveFragmentFromContext はフラグメントを所属リストから外す（非所属はno-op）
func (s *Service) RemoveFragmentFromContext(ctx context.Context, contextID, fragmentID string) error {
	c, err := s.meta.GetContext(ctx, contextID)
	if err != nil {
		return err
	}
	if c == nil {
		return fmt.Errorf("%w: %s", ErrContextNotFound, contextID)
	}

	updated := make([]string, 0, len(c.FragmentIDs))
	for _, id := range c.FragmentIDs {
		if id != fragmentID {
			updated = append(updated, id)
		}
	}
	if len(updated) == len(c.FragmentIDs) {
		return nil
	}

	if _, err := s.meta.UpdateContextFragments(ctx, contextID, updated); err != nil {
		return fmt.Errorf("failed to update context membership: %w", err)
	}
	return nil
}

// SetContextFragments は所属リストを丸ごと置き換える
func (s *Service) SetContextFragments(ctx context.Context, contextID string, fragmentIDs []string) error {
	ok, err := s.meta.UpdateContextFragments(ctx, contextID, fragmentIDs)
	if err != nil {
		return fmt.Errorf("failed to update context membership: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrContextNotFound, contextID)
	}
	return nil
}

// Anchor operations

// CreateAnchor はアンカーを作成する
func (s *Service) CreateAnchor(ctx context.Context, anchor *model.Anchor) (string, error) {
	if anchor.ID == "" {
		anchor.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if anchor.CreatedAt.IsZero() {
		anchor.CreatedAt = now
	}
	anchor.UpdatedAt = now
	anchor.Normalize()
	if err := anchor.Validate(); err != nil {
		return "", err
	}
	return s.meta.CreateAnchor(ctx, anchor)
}

// GetAnchor はアンカーを取得する（不在はnil）
// touchが真の場合はアクセスカウンタを進める。
func (s *Service) GetAnchor(ctx context.Context, id string, touch bool) (*model.Anchor, error) {
	anchor, err := s.meta.GetAnchor(ctx, id)
	if err != nil || anchor == nil {
		return anchor, err
	}

	if touch {
		if _, err := s.meta.TouchAnchor(ctx, id); err != nil {
			return nil, fmt.Errorf("failed to touch anchor: %w", err)
		}
		anchor.AccessCount++
		anchor.LastAccessed = time.Now().UTC()
	}
	return anchor, nil
}

// ListAnchors はプロジェクトのアンカーを新しい順に返す
func (s *Service) ListAnchors(ctx context.Context, projectID string) ([]*model.Anchor, error) {
	return s.meta.ListAnchorsByProject(ctx, projectID)
}

// Observability

// Stats はプロジェクトのエンティティ件数を返す
func (s *Service) Stats(ctx context.Context, projectID string) (*store.ProjectStats, error) {
	return s.meta.Stats(ctx, projectID)
}

// HealthCheck は両バックエンドの疎通状態を返す
func (s *Service) HealthCheck(ctx context.Context) Health {
	var h Health
	if err := s.meta.Ping(ctx); err == nil {
		h.Metadata = true
	} else {
		s.logger.Warn("metadata store unreachable", "error", err)
	}
	if err := s.index.Ping(ctx); err == nil {
		h.Index = true
	} else {
		s.logger.Warn("vector index unreachable", "error", err)
	}
	return h
}

// DefaultProjectID は構成されたデフォルトプロジェクトidを返す
func (s *Service) DefaultProjectID() string {
	return s.defaultProjectID
}
