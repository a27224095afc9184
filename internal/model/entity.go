// Package model はメモリストアの内部データモデルを定義する。
package model

import (
	"errors"
	"fmt"
	"time"
)

// ErrValidation は必須フィールド欠落などの入力不備を表す
var ErrValidation = errors.New("validation failed")

// Priority はAnchorの重要度
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// Valid は既知の重要度かどうかを返す
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical:
		return true
	}
	return false
}

// Project はセマンティックメモリの分離境界を表す
// 1プロジェクト = 1ベクトルネームスペース
type Project struct {
	ID          string    `json:"id"`          // UUID形式
	Name        string    `json:"name"`        // 必須
	Description string    `json:"description"` // 空文字列可
	CreatedAt   time.Time `json:"createdAt"`   // UTC
	UpdatedAt   time.Time `json:"updatedAt"`   // UTC
}

// Validate はProjectのバリデーションを実行する
func (p *Project) Validate() error {
	if p.ID == "" {
		return fmt.Errorf("%w: project id must not be empty", ErrValidation)
	}
	if p.Name == "" {
		return fmt.Errorf("%w: project name must not be empty", ErrValidation)
	}
	return nil
}

// Fragment はメモリの最小単位を表す
// 埋め込みベクトルはFragment自体には持たず、VectorIndex側にfragment id をキーとして保存する。
// contentは作成後に編集しない（修正はdelete+recreate）。
// Contextへの所属はContext.FragmentIDsが唯一の真実であり、Fragmentは保持しない。
type Fragment struct {
	ID           string         `json:"id"`                     // UUID形式
	ProjectID    string         `json:"projectId"`              // 必須
	Content      string         `json:"content"`                // 必須、非空
	Category     string         `json:"category"`               // デフォルト "general"
	Tags         []string       `json:"tags"`                   // 空配列可
	Source       string         `json:"source"`                 // デフォルト "user"
	AnchorIDs    []string       `json:"anchorIds"`              // 参照のみ（所有ではない）
	CustomFields map[string]any `json:"customFields,omitempty"` // 自由形式メタデータ
	CreatedAt    time.Time      `json:"createdAt"`              // UTC
	UpdatedAt    time.Time      `json:"updatedAt"`              // UTC
}

// Validate はFragmentのバリデーションを実行する
func (f *Fragment) Validate() error {
	if f.ID == "" {
		return fmt.Errorf("%w: fragment id must not be empty", ErrValidation)
	}
	if f.ProjectID == "" {
		return fmt.Errorf("%w: fragment projectId must not be empty", ErrValidation)
	}
	if f.Content == "" {
		return fmt.Errorf("%w: fragment content must not be empty", ErrValidation)
	}
	return nil
}

// Normalize はデフォルト値を適用する
func (f *Fragment) Normalize() {
	if f.Category == "" {
		f.Category = "general"
	}
	if f.Source == "" {
		f.Source = "user"
	}
	if f.Tags == nil {
		f.Tags = []string{}
	}
	if f.AnchorIDs == nil {
		f.AnchorIDs = []string{}
	}
}

// Context は関連するFragmentのテーマ的なまとまりを表す
// FragmentCountはFragmentIDsの件数の非正規化キャッシュで、
// リスト書き換えと同一の書き込みで常に更新される。
type Context struct {
	ID              string         `json:"id"`        // UUID形式
	ProjectID       string         `json:"projectId"` // 必須
	Name            string         `json:"name"`      // 必須
	Description     string         `json:"description"`
	FragmentIDs     []string       `json:"fragmentIds"`     // 所属の唯一の真実
	ParentContextID *string        `json:"parentContextId"` // nullable、階層用の逆参照
	ChildContextIDs []string       `json:"childContextIds"`
	CustomFields    map[string]any `json:"customFields,omitempty"`
	FragmentCount   int            `json:"fragmentCount"` // len(FragmentIDs) のキャッシュ
	CreatedAt       time.Time      `json:"createdAt"`     // UTC
	UpdatedAt       time.Time      `json:"updatedAt"`     // UTC
}

// Validate はContextのバリデーションを実行する
func (c *Context) Validate() error {
	if c.ID == "" {
		return fmt.Errorf("%w: context id must not be empty", ErrValidation)
	}
	if c.ProjectID == "" {
		return fmt.Errorf("%w: context projectId must not be empty", ErrValidation)
	}
	if c.Name == "" {
		return fmt.Errorf("%w: context name must not be empty", ErrValidation)
	}
	return nil
}

// Normalize はデフォルト値を適用し、FragmentCountを再計算する
func (c *Context) Normalize() {
	if c.FragmentIDs == nil {
		c.FragmentIDs = []string{}
	}
	if c.ChildContextIDs == nil {
		c.ChildContextIDs = []string{}
	}
	c.FragmentCount = len(c.FragmentIDs)
}

// Anchor は高優先度の参照点を表す
// AccessCountは明示アクセスごとに単調増加する。
type Anchor struct {
	ID           string         `json:"id"`        // UUID形式
	ProjectID    string         `json:"projectId"` // 必須
	Title        string         `json:"title"`     // 必須
	Description  string         `json:"description"`
	Priority     Priority       `json:"priority"` // デフォルト "medium"
	FragmentIDs  []string       `json:"fragmentIds"`
	ContextIDs   []string       `json:"contextIds"`
	Tags         []string       `json:"tags"`
	AccessCount  int            `json:"accessCount"`
	CustomFields map[string]any `json:"customFields,omitempty"`
	CreatedAt    time.Time      `json:"createdAt"`    // UTC
	UpdatedAt    time.Time      `json:"updatedAt"`    // UTC
	LastAccessed time.Time      `json:"lastAccessed"` // UTC
}

// Validate はAnchorのバリデーションを実行する
func (a *Anchor) Validate() error {
	if a.ID == "" {
		return fmt.Errorf("%w: anchor id must not be empty", ErrValidation)
	}
	if a.ProjectID == "" {
		return fmt.Errorf("%w: anchor projectId must not be empty", ErrValidation)
	}
	if a.Title == "" {
		return fmt.Errorf("%w: anchor title must not be empty", ErrValidation)
	}
	if a.Priority != "" && !a.Priority.Valid() {
		return fmt.Errorf("%w: unknown priority %q", ErrValidation, a.Priority)
	}
	return nil
}

// Normalize はデフォルト値を適用する
func (a *Anchor) Normalize() {
	if a.Priority == "" {
		a.Priority = PriorityMedium
	}
	if a.FragmentIDs == nil {
		a.FragmentIDs = []string{}
	}
	if a.ContextIDs == nil {
		a.ContextIDs = []string{}
	}
	if a.Tags == nil {
		a.Tags = []string{}
	}
}
