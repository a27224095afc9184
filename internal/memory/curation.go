package memory

import (
	"context"

	"github.com/mnemox/mnemox/internal/curator"
)

// CuratedSearch は検索後にキュレーション判断を適用する
// 判断が「削除」としたフラグメントをストアから消し、生き残った結果のみを返す。
// キュレーション失敗は決して致命ではなく、元の結果をそのまま返す。
func (s *Service) CuratedSearch(ctx context.Context, query string, queryEmbedding []float32, opts SearchOptions) ([]SearchResult, *CurationReport, error) {
	results, err := s.Search(ctx, queryEmbedding, opts)
	if err != nil {
		return nil, nil, err
	}

	// 結果1件以下はキュレーション対象外。外部判断は呼ばない
	if len(results) <= 1 || s.cur == nil {
		return results, &CurationReport{Applied: false}, nil
	}

	candidates := make([]curator.Candidate, len(results))
	for i, r := range results {
		candidates[i] = curator.Candidate{
			ID:         r.Fragment.ID,
			Content:    r.Fragment.Content,
			Category:   r.Fragment.Category,
			Similarity: r.Similarity,
			CreatedAt:  r.Fragment.CreatedAt,
		}
	}

	decision, err := s.cur.Curate(ctx, query, candidates)
	if err != nil {
		s.logger.Warn("curation skipped", "query", query, "error", err)
		return results, &CurationReport{Applied: false}, nil
	}

	// keep ∪ delete = 元の集合。どちらにも現れないidは保守的にkeep扱い
	// keepとdeleteの両方に現れたidもkeepが勝つ
	keepSet := make(map[string]bool, len(decision.KeepIDs))
	for _, id := range decision.KeepIDs {
		keepSet[id] = true
	}
	inResults := make(map[string]bool, len(results))
	for _, r := range results {
		inResults[r.Fragment.ID] = true
	}

	var toDelete []string
	for _, id := range decision.DeleteIDs {
		if !inResults[id] || keepSet[id] {
			continue
		}
		toDelete = append(toDelete, id)
	}

	// 削除はベストエフォートかつ独立。1件の失敗が他をブロックしない
	deletedSet := make(map[string]bool, len(toDelete))
	for _, id := range toDelete {
		deleted, err := s.DeleteFragment(ctx, id)
		if err != nil {
			s.logger.Warn("curation delete failed", "fragment_id", id, "error", err)
		}
		if deleted {
			deletedSet[id] = true
		}
	}

	// 最終結果は判断のkeep集合ではなく「元の集合 − 実際に消えたもの」
	kept := make([]SearchResult, 0, len(results))
	for _, r := range results {
		if !deletedSet[r.Fragment.ID] {
			kept = append(kept, r)
		}
	}

	return kept, &CurationReport{
		Applied:          true,
		RequestedDeletes: len(toDelete),
		Deleted:          len(deletedSet),
		Reasoning:        decision.Reasoning,
	}, nil
}
