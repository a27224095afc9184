package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mnemox/mnemox/internal/model"
	"modernc.org/sqlite"
)

// timeLayout は時刻カラムの保存形式（固定幅、UTC、辞書順=時刻順）
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// SQLiteStore はSQLiteを使用したMetadataStore実装
type SQLiteStore struct {
	mu          sync.RWMutex
	db          *sql.DB
	dbPath      string
	initialized bool
}

// NewSQLiteStore はSQLiteStoreを作成する
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// 外部キー制約は接続単位のPRAGMAのため、コネクションを1本に固定する
	db.SetMaxOpenConns(1)

	// WALモードを有効化
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}

	// ON DELETE CASCADEに必要
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	return &SQLiteStore{
		db:     db,
		dbPath: dbPath,
	}, nil
}

// Initialize はテーブルを作成する
func (s *SQLiteStore) Initialize(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	schema := `
	CREATE TABLE IF NOT EXISTS projects (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		description TEXT,
		created_at TEXT,
		updated_at TEXT
	);

	CREATE TABLE IF NOT EXISTS fragments (
		id TEXT PRIMARY KEY,
		project_id TEXT NOT NULL,
		content TEXT NOT NULL,
		category TEXT DEFAULT 'general',
		tags TEXT,
		source TEXT DEFAULT 'user',
		anchor_ids TEXT,
		custom_fields TEXT,
		created_at TEXT,
		updated_at TEXT,
		FOREIGN KEY (project_id) REFERENCES projects (id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS contexts (
		id TEXT PRIMARY KEY,
		project_id TEXT NOT NULL,
		name TEXT NOT NULL,
		description TEXT,
		fragment_ids TEXT,
		parent_context_id TEXT,
		child_context_ids TEXT,
		custom_fields TEXT,
		fragment_count INTEGER DEFAULT 0,
		created_at TEXT,
		updated_at TEXT,
		FOREIGN KEY (project_id) REFERENCES projects (id) ON DELETE CASCADE,
		FOREIGN KEY (parent_context_id) REFERENCES contexts (id) ON DELETE SET NULL
	);

	CREATE TABLE IF NOT EXISTS anchors (
		id TEXT PRIMARY KEY,
		project_id TEXT NOT NULL,
		title TEXT NOT NULL,
		description TEXT,
		priority TEXT DEFAULT 'medium',
		fragment_ids TEXT,
		context_ids TEXT,
		tags TEXT,
		access_count INTEGER DEFAULT 0,
		custom_fields TEXT,
		created_at TEXT,
		updated_at TEXT,
		last_accessed TEXT,
		FOREIGN KEY (project_id) REFERENCES projects (id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_fragments_project ON fragments (project_id, created_at);
	CREATE INDEX IF NOT EXISTS idx_fragments_category ON fragments (category);
	CREATE INDEX IF NOT EXISTS idx_contexts_project ON contexts (project_id, created_at);
	CREATE INDEX IF NOT EXISTS idx_anchors_project ON anchors (project_id, created_at);
	`

	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create tables: %w", err)
	}

	s.initialized = true
	return nil
}

// Ping は疎通確認を行う
func (s *SQLiteStore) Ping(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.initialized {
		return ErrNotInitialized
	}
	return s.db.PingContext(ctx)
}

// Close はストアをクローズする
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.initialized = false
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// isConflict はPRIMARY KEY違反かどうかを判定する
func isConflict(err error) bool {
	var serr *sqlite.Error
	if errors.As(err, &serr) {
		// SQLITE_CONSTRAINT_PRIMARYKEY (1555) / SQLITE_CONSTRAINT_UNIQUE (2067)
		return serr.Code() == 1555 || serr.Code() == 2067
	}
	return false
}

// Project操作

// CreateProject はプロジェクトを作成する
func (s *SQLiteStore) CreateProject(ctx context.Context, project *model.Project) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return "", ErrNotInitialized
	}
	if err := project.Validate(); err != nil {
		return "", err
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO projects (id, name, description, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
	`, project.ID, project.Name, project.Description,
		formatTime(project.CreatedAt), formatTime(project.UpdatedAt))

	if err != nil {
		if isConflict(err) {
			return "", fmt.Errorf("project %s: %w", project.ID, ErrConflict)
		}
		return "", fmt.Errorf("failed to insert project: %w", err)
	}

	return project.ID, nil
}

// GetProject はIDでプロジェクトを取得する（未存在は nil, nil）
func (s *SQLiteStore) GetProject(ctx context.Context, id string) (*model.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.initialized {
		return nil, ErrNotInitialized
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, description, created_at, updated_at
		FROM projects WHERE id = ?
	`, id)

	project, err := scanProject(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get project: %w", err)
	}

	return project, nil
}

// ListProjects は全プロジェクトを作成日時の降順で返す
func (s *SQLiteStore) ListProjects(ctx context.Context) ([]*model.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.initialized {
		return nil, ErrNotInitialized
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, description, created_at, updated_at
		FROM projects ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query projects: %w", err)
	}
	defer rows.Close()

	var projects []*model.Project
	for rows.Next() {
		project, err := scanProject(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan project: %w", err)
		}
		projects = append(projects, project)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating projects: %w", err)
	}

	return projects, nil
}

// UpdateProject は名前と説明を更新する
func (s *SQLiteStore) UpdateProject(ctx context.Context, project *model.Project) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return false, ErrNotInitialized
	}
	if err := project.Validate(); err != nil {
		return false, err
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE projects SET name = ?, description = ?, updated_at = ?
		WHERE id = ?
	`, project.Name, project.Description, formatTime(time.Now().UTC()), project.ID)
	if err != nil {
		return false, fmt.Errorf("failed to update project: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return affected > 0, nil
}

// DeleteProject はプロジェクトと所属エンティティを削除する
// fragments/contexts/anchorsは外部キーのON DELETE CASCADEで巻き込まれる。
func (s *SQLiteStore) DeleteProject(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return false, ErrNotInitialized
	}

	result, err := s.db.ExecContext(ctx, `DELETE FROM projects WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("failed to delete project: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return affected > 0, nil
}

// Fragment操作

// CreateFragment はフラグメントを追加する
func (s *SQLiteStore) CreateFragment(ctx context.Context, fragment *model.Fragment) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return "", ErrNotInitialized
	}
	if err := fragment.Validate(); err != nil {
		return "", err
	}

	tagsJSON, err := json.Marshal(fragment.Tags)
	if err != nil {
		return "", fmt.Errorf("failed to marshal tags: %w", err)
	}
	anchorsJSON, err := json.Marshal(fragment.AnchorIDs)
	if err != nil {
		return "", fmt.Errorf("failed to marshal anchor ids: %w", err)
	}
	customJSON, err := marshalCustomFields(fragment.CustomFields)
	if err != nil {
		return "", err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO fragments (id, project_id, content, category, tags, source,
			anchor_ids, custom_fields, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, fragment.ID, fragment.ProjectID, fragment.Content, fragment.Category,
		string(tagsJSON), fragment.Source, string(anchorsJSON), customJSON,
		formatTime(fragment.CreatedAt), formatTime(fragment.UpdatedAt))

	if err != nil {
		if isConflict(err) {
			return "", fmt.Errorf("fragment %s: %w", fragment.ID, ErrConflict)
		}
		return "", fmt.Errorf("failed to insert fragment: %w", err)
	}

	return fragment.ID, nil
}

// GetFragment はIDでフラグメントを取得する（未存在は nil, nil）
func (s *SQLiteStore) GetFragment(ctx context.Context, id string) (*model.Fragment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.initialized {
		return nil, ErrNotInitialized
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT id, project_id, content, category, tags, source,
			anchor_ids, custom_fields, created_at, updated_at
		FROM fragments WHERE id = ?
	`, id)

	fragment, err := scanFragment(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get fragment: %w", err)
	}

	return fragment, nil
}

// ListFragmentsByProject はプロジェクトのフラグメントを作成日時の降順で返す
func (s *SQLiteStore) ListFragmentsByProject(ctx context.Context, projectID string, limit int) ([]*model.Fragment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.initialized {
		return nil, ErrNotInitialized
	}

	if limit <= 0 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, project_id, content, category, tags, source,
			anchor_ids, custom_fields, created_at, updated_at
		FROM fragments WHERE project_id = ?
		ORDER BY created_at DESC LIMIT ?
	`, projectID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query fragments: %w", err)
	}
	defer rows.Close()

	var fragments []*model.Fragment
	for rows.Next() {
		fragment, err := scanFragment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan fragment: %w", err)
		}
		fragments = append(fragments, fragment)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating fragments: %w", err)
	}

	return fragments, nil
}

// DeleteFragment はフラグメントを削除する
func (s *SQLiteStore) DeleteFragment(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return false, ErrNotInitialized
	}

	result, err := s.db.ExecContext(ctx, `DELETE FROM fragments WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("failed to delete fragment: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return affected > 0, nil
}

// Context操作

// CreateContext はコンテキストを作成する
func (s *SQLiteStore) CreateContext(ctx context.Context, c *model.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return "", ErrNotInitialized
	}
	if err := c.Validate(); err != nil {
		return "", err
	}

	fragmentsJSON, err := json.Marshal(c.FragmentIDs)
	if err != nil {
		return "", fmt.Errorf("failed to marshal fragment ids: %w", err)
	}
	childrenJSON, err := json.Marshal(c.ChildContextIDs)
	if err != nil {
		return "", fmt.Errorf("failed to marshal child context ids: %w", err)
	}
	customJSON, err := marshalCustomFields(c.CustomFields)
	if err != nil {
		return "", err
	}

	var parent sql.NullString
	if c.ParentContextID != nil {
		parent = sql.NullString{String: *c.ParentContextID, Valid: true}
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO contexts (id, project_id, name, description, fragment_ids,
			parent_context_id, child_context_ids, custom_fields, fragment_count,
			created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, c.ID, c.ProjectID, c.Name, c.Description, string(fragmentsJSON),
		parent, string(childrenJSON), customJSON, len(c.FragmentIDs),
		formatTime(c.CreatedAt), formatTime(c.UpdatedAt))

	if err != nil {
		if isConflict(err) {
			return "", fmt.Errorf("context %s: %w", c.ID, ErrConflict)
		}
		return "", fmt.Errorf("failed to insert context: %w", err)
	}

	return c.ID, nil
}

// GetContext はIDでコンテキストを取得する（未存在は nil, nil）
func (s *SQLiteStore) GetContext(ctx context.Context, id string) (*model.Context, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.initialized {
		return nil, ErrNotInitialized
	}

	row := s.db.QueryRowContext(ctx, contextSelect+` WHERE id = ?`, id)

	c, err := scanContext(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get context: %w", err)
	}

	return c, nil
}

// ListContextsByProject はプロジェクトのコンテキストを作成日時の降順で返す
func (s *SQLiteStore) ListContextsByProject(ctx context.Context, projectID string) ([]*model.Context, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.initialized {
		return nil, ErrNotInitialized
	}

	rows, err := s.db.QueryContext(ctx, contextSelect+`
		WHERE project_id = ? ORDER BY created_at DESC
	`, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to query contexts: %w", err)
	}
	defer rows.Close()

	return collectContexts(rows)
}

// ContextsByFragment は指定フラグメントを含むコンテキストを作成日時の昇順で返す
// fragment_idsはJSON配列カラムのため、LIKEで粗く絞ってからGo側で正確に確認する。
func (s *SQLiteStore) ContextsByFragment(ctx context.Context, fragmentID string) ([]*model.Context, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.initialized {
		return nil, ErrNotInitialized
	}

	rows, err := s.db.QueryContext(ctx, contextSelect+`
		WHERE fragment_ids LIKE ? ORDER BY created_at ASC
	`, `%"`+fragmentID+`"%`)
	if err != nil {
		return nil, fmt.Errorf("failed to query contexts by fragment: %w", err)
	}
	defer rows.Close()

	candidates, err := collectContexts(rows)
	if err != nil {
		return nil, err
	}

	var contexts []*model.Context
	for _, c := range candidates {
		if ContainsString(c.FragmentIDs, fragmentID) {
			contexts = append(contexts, c)
		}
	}
	return contexts, nil
}

// UpdateContextFragments はフラグメントリストを書き換える
// fragment_countはリストと同一のUPDATE文で更新されるため、両者が食い違うことはない。
func (s *SQLiteStore) UpdateContextFragments(ctx context.Context, contextID string, fragmentIDs []string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return false, ErrNotInitialized
	}

	if fragmentIDs == nil {
		fragmentIDs = []string{}
	}
	fragmentsJSON, err := json.Marshal(fragmentIDs)
	if err != nil {
		return false, fmt.Errorf("failed to marshal fragment ids: %w", err)
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE contexts
		SET fragment_ids = ?, fragment_count = ?, updated_at = ?
		WHERE id = ?
	`, string(fragmentsJSON), len(fragmentIDs), formatTime(time.Now().UTC()), contextID)
	if err != nil {
		return false, fmt.Errorf("failed to update context fragments: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return affected > 0, nil
}

// Anchor操作

// CreateAnchor はアンカーを作成する
func (s *SQLiteStore) CreateAnchor(ctx context.Context, anchor *model.Anchor) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return "", ErrNotInitialized
	}
	if err := anchor.Validate(); err != nil {
		return "", err
	}

	fragmentsJSON, err := json.Marshal(anchor.FragmentIDs)
	if err != nil {
		return "", fmt.Errorf("failed to marshal fragment ids: %w", err)
	}
	contextsJSON, err := json.Marshal(anchor.ContextIDs)
	if err != nil {
		return "", fmt.Errorf("failed to marshal context ids: %w", err)
	}
	tagsJSON, err := json.Marshal(anchor.Tags)
	if err != nil {
		return "", fmt.Errorf("failed to marshal tags: %w", err)
	}
	customJSON, err := marshalCustomFields(anchor.CustomFields)
	if err != nil {
		return "", err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO anchors (id, project_id, title, description, priority,
			fragment_ids, context_ids, tags, access_count, custom_fields,
			created_at, updated_at, last_accessed)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, anchor.ID, anchor.ProjectID, anchor.Title, anchor.Description,
		string(anchor.Priority), string(fragmentsJSON), string(contextsJSON),
		string(tagsJSON), anchor.AccessCount, customJSON,
		formatTime(anchor.CreatedAt), formatTime(anchor.UpdatedAt),
		formatTime(anchor.LastAccessed))

	if err != nil {
		if isConflict(err) {
			return "", fmt.Errorf("anchor %s: %w", anchor.ID, ErrConflict)
		}
		return "", fmt.Errorf("failed to insert anchor: %w", err)
	}

	return anchor.ID, nil
}

// GetAnchor はIDでアンカーを取得する（未存在は nil, nil）
func (s *SQLiteStore) GetAnchor(ctx context.Context, id string) (*model.Anchor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.initialized {
		return nil, ErrNotInitialized
	}

	row := s.db.QueryRowContext(ctx, anchorSelect+` WHERE id = ?`, id)

	anchor, err := scanAnchor(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get anchor: %w", err)
	}

	return anchor, nil
}

// ListAnchorsByProject はプロジェクトのアンカーを作成日時の降順で返す
func (s *SQLiteStore) ListAnchorsByProject(ctx context.Context, projectID string) ([]*model.Anchor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.initialized {
		return nil, ErrNotInitialized
	}

	rows, err := s.db.QueryContext(ctx, anchorSelect+`
		WHERE project_id = ? ORDER BY created_at DESC
	`, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to query anchors: %w", err)
	}
	defer rows.Close()

	var anchors []*model.Anchor
	for rows.Next() {
		anchor, err := scanAnchor(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan anchor: %w", err)
		}
		anchors = append(anchors, anchor)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating anchors: %w", err)
	}

	return anchors, nil
}

// TouchAnchor はaccess_countをインクリメントしlast_accessedを更新する
func (s *SQLiteStore) TouchAnchor(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return false, ErrNotInitialized
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE anchors
		SET access_count = access_count + 1, last_accessed = ?
		WHERE id = ?
	`, formatTime(time.Now().UTC()), id)
	if err != nil {
		return false, fmt.Errorf("failed to touch anchor: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return affected > 0, nil
}

// Stats はプロジェクト単位のエンティティ件数を返す
func (s *SQLiteStore) Stats(ctx context.Context, projectID string) (*ProjectStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.initialized {
		return nil, ErrNotInitialized
	}

	stats := &ProjectStats{}
	queries := []struct {
		query string
		dest  *int
	}{
		{`SELECT COUNT(*) FROM fragments WHERE project_id = ?`, &stats.Fragments},
		{`SELECT COUNT(*) FROM contexts WHERE project_id = ?`, &stats.Contexts},
		{`SELECT COUNT(*) FROM anchors WHERE project_id = ?`, &stats.Anchors},
	}
	for _, q := range queries {
		if err := s.db.QueryRowContext(ctx, q.query, projectID).Scan(q.dest); err != nil {
			return nil, fmt.Errorf("failed to count entities: %w", err)
		}
	}

	return stats, nil
}

// Helper functions

const contextSelect = `
	SELECT id, project_id, name, description, fragment_ids,
		parent_context_id, child_context_ids, custom_fields, fragment_count,
		created_at, updated_at
	FROM contexts`

const anchorSelect = `
	SELECT id, project_id, title, description, priority,
		fragment_ids, context_ids, tags, access_count, custom_fields,
		created_at, updated_at, last_accessed
	FROM anchors`

// rowScanner は*sql.Rowと*sql.Rowsの共通部分
type rowScanner interface {
	Scan(dest ...any) error
}

func scanProject(row rowScanner) (*model.Project, error) {
	var (
		id, name             string
		description          sql.NullString
		createdAt, updatedAt sql.NullString
	)
	if err := row.Scan(&id, &name, &description, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	return &model.Project{
		ID:          id,
		Name:        name,
		Description: description.String,
		CreatedAt:   parseTime(createdAt),
		UpdatedAt:   parseTime(updatedAt),
	}, nil
}

func scanFragment(row rowScanner) (*model.Fragment, error) {
	var (
		id, projectID, content    string
		category, source          sql.NullString
		tagsJSON, anchorsJSON     sql.NullString
		customJSON                sql.NullString
		createdAt, updatedAt      sql.NullString
	)
	if err := row.Scan(&id, &projectID, &content, &category, &tagsJSON, &source,
		&anchorsJSON, &customJSON, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	fragment := &model.Fragment{
		ID:        id,
		ProjectID: projectID,
		Content:   content,
		Category:  category.String,
		Source:    source.String,
		CreatedAt: parseTime(createdAt),
		UpdatedAt: parseTime(updatedAt),
	}

	if tagsJSON.Valid {
		json.Unmarshal([]byte(tagsJSON.String), &fragment.Tags)
	}
	if anchorsJSON.Valid {
		json.Unmarshal([]byte(anchorsJSON.String), &fragment.AnchorIDs)
	}
	if customJSON.Valid && customJSON.String != "" {
		json.Unmarshal([]byte(customJSON.String), &fragment.CustomFields)
	}
	fragment.Normalize()

	return fragment, nil
}

func scanContext(row rowScanner) (*model.Context, error) {
	var (
		id, projectID, name      string
		description              sql.NullString
		fragmentsJSON            sql.NullString
		parent                   sql.NullString
		childrenJSON, customJSON sql.NullString
		fragmentCount            int
		createdAt, updatedAt     sql.NullString
	)
	if err := row.Scan(&id, &projectID, &name, &description, &fragmentsJSON,
		&parent, &childrenJSON, &customJSON, &fragmentCount,
		&createdAt, &updatedAt); err != nil {
		return nil, err
	}

	c := &model.Context{
		ID:            id,
		ProjectID:     projectID,
		Name:          name,
		Description:   description.String,
		FragmentCount: fragmentCount,
		CreatedAt:     parseTime(createdAt),
		UpdatedAt:     parseTime(updatedAt),
	}

	if parent.Valid {
		p := parent.String
		c.ParentContextID = &p
	}
	if fragmentsJSON.Valid {
		json.Unmarshal([]byte(fragmentsJSON.String), &c.FragmentIDs)
	}
	if childrenJSON.Valid {
		json.Unmarshal([]byte(childrenJSON.String), &c.ChildContextIDs)
	}
	if customJSON.Valid && customJSON.String != "" {
		json.Unmarshal([]byte(customJSON.String), &c.CustomFields)
	}
	if c.FragmentIDs == nil {
		c.FragmentIDs = []string{}
	}
	if c.ChildContextIDs == nil {
		c.ChildContextIDs = []string{}
	}

	return c, nil
}

func scanAnchor(row rowScanner) (*model.Anchor, error) {
	var (
		id, projectID, title       string
		description, priority      sql.NullString
		fragmentsJSON, ctxJSON     sql.NullString
		tagsJSON, customJSON       sql.NullString
		accessCount                int
		createdAt, updatedAt       sql.NullString
		lastAccessed               sql.NullString
	)
	if err := row.Scan(&id, &projectID, &title, &description, &priority,
		&fragmentsJSON, &ctxJSON, &tagsJSON, &accessCount, &customJSON,
		&createdAt, &updatedAt, &lastAccessed); err != nil {
		return nil, err
	}

	anchor := &model.Anchor{
		ID:           id,
		ProjectID:    projectID,
		Title:        title,
		Description:  description.String,
		Priority:     model.Priority(priority.String),
		AccessCount:  accessCount,
		CreatedAt:    parseTime(createdAt),
		UpdatedAt:    parseTime(updatedAt),
		LastAccessed: parseTime(lastAccessed),
	}

	if fragmentsJSON.Valid {
		json.Unmarshal([]byte(fragmentsJSON.String), &anchor.FragmentIDs)
	}
	if ctxJSON.Valid {
		json.Unmarshal([]byte(ctxJSON.String), &anchor.ContextIDs)
	}
	if tagsJSON.Valid {
		json.Unmarshal([]byte(tagsJSON.String), &anchor.Tags)
	}
	if customJSON.Valid && customJSON.String != "" {
		json.Unmarshal([]byte(customJSON.String), &anchor.CustomFields)
	}
	anchor.Normalize()

	return anchor, nil
}

func collectContexts(rows *sql.Rows) ([]*model.Context, error) {
	var contexts []*model.Context
	for rows.Next() {
		c, err := scanContext(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan context: %w", err)
		}
		contexts = append(contexts, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating contexts: %w", err)
	}
	return contexts, nil
}

func marshalCustomFields(fields map[string]any) (string, error) {
	if fields == nil {
		return "", nil
	}
	data, err := json.Marshal(fields)
	if err != nil {
		return "", fmt.Errorf("failed to marshal custom fields: %w", err)
	}
	return string(data), nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		t = time.Now().UTC()
	}
	return t.UTC().Format(timeLayout)
}

func parseTime(v sql.NullString) time.Time {
	if !v.Valid || v.String == "" {
		return time.Time{}
	}
	if t, err := time.Parse(timeLayout, v.String); err == nil {
		return t
	}
	if t, err := time.Parse(time.RFC3339, v.String); err == nil {
		return t
	}
	return time.Time{}
}
