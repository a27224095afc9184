// Package curator は検索結果の重複・矛盾を判定する外部判断機能への
// インターフェースを提供する。
package curator

import (
	"context"
	"errors"
	"time"
)

// ErrMalformedDecision は判断結果がパース不能であることを表す
var ErrMalformedDecision = errors.New("curator returned malformed decision")

// Candidate はキュレーション対象の検索結果1件
type Candidate struct {
	ID         string
	Content    string
	Category   string
	Similarity float32
	CreatedAt  time.Time
}

// Decision はキュレーションの keep/delete 判断
// KeepにもDeleteにも現れないidの扱いは呼び出し側が決める（保守的にkeep）。
type Decision struct {
	KeepIDs              []string `json:"fragments_to_keep"`
	DeleteIDs            []string `json:"fragments_to_delete"`
	Reasoning            string   `json:"reasoning"`
	ConflictsDetected    bool     `json:"conflicts_detected"`
	RedundanciesDetected bool     `json:"redundancies_detected"`
}

// Curator は検索結果に対するkeep/delete判断を下す
type Curator interface {
	Curate(ctx context.Context, query string, candidates []Candidate) (*Decision, error)
}
