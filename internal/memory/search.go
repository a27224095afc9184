package memory

import (
	"context"
	"fmt"

	"github.com/mnemox/mnemox/internal/model"
	"github.com/mnemox/mnemox/internal/store"
)

// Search はクエリ埋め込みに対する類似検索を実行し、
// フラグメントに関連コンテキストとアンカーを付与して返す。
// 結果順はインデックスが返した類似度降順をそのまま保つ。
func (s *Service) Search(ctx context.Context, queryEmbedding []float32, opts SearchOptions) ([]SearchResult, error) {
	projectID := opts.ProjectID
	if projectID == "" {
		projectID = s.defaultProjectID
	}
	if projectID == "" {
		return nil, ErrProjectIDRequired
	}

	maxResults := opts.MaxResults
	if maxResults <= 0 {
		maxResults = DefaultMaxResults
	}
	threshold := opts.SimilarityThreshold
	if threshold == 0 {
		threshold = DefaultSimilarityThreshold
	}
	if threshold < 0 {
		// 負値は閾値なし。コサイン類似度の下限まで受け入れる
		threshold = -1
	}

	// context絞り込みは所属リストを先に解決しておく
	var contextFilter *model.Context
	if opts.ContextID != "" {
		c, err := s.meta.GetContext(ctx, opts.ContextID)
		if err != nil {
			return nil, err
		}
		if c == nil {
			return nil, fmt.Errorf("%w: %s", ErrContextNotFound, opts.ContextID)
		}
		contextFilter = c
	}

	hits, err := s.index.Query(ctx, projectID, queryEmbedding, store.QueryOptions{
		TopK:           maxResults,
		ScoreThreshold: threshold,
		Categories:     opts.Categories,
		Tags:           opts.Tags,
		CustomFields:   opts.CustomFields,
	})
	if err != nil {
		return nil, fmt.Errorf("vector query failed: %w", err)
	}

	var results []SearchResult
	for _, hit := range hits {
		if hit.Score < threshold {
			continue
		}
		if contextFilter != nil && !store.ContainsString(contextFilter.FragmentIDs, hit.FragmentID) {
			continue
		}

		fragment, err := s.meta.GetFragment(ctx, hit.FragmentID)
		if err != nil {
			return nil, fmt.Errorf("failed to hydrate fragment %s: %w", hit.FragmentID, err)
		}
		if fragment == nil {
			// インデックスにだけ残った古いポイント。エラーにせず読み飛ばす
			s.logger.Warn("skipping stale vector point",
				"fragment_id", hit.FragmentID, "project_id", projectID)
			continue
		}

		result := SearchResult{
			Fragment:   fragment,
			Similarity: hit.Score,
		}

		if contextFilter != nil {
			result.Context = contextFilter
		} else {
			result.Context = s.firstContext(ctx, fragment.ID)
		}
		result.Anchors = s.resolveAnchors(ctx, fragment.AnchorIDs)

		results = append(results, result)
	}

	return results, nil
}

// firstContext はフラグメントを参照する最初の（最古の）コンテキストを返す
func (s *Service) firstContext(ctx context.Context, fragmentID string) *model.Context {
	contexts, err := s.meta.ContextsByFragment(ctx, fragmentID)
	if err != nil {
		s.logger.Warn("failed to resolve contexts", "fragment_id", fragmentID, "error", err)
		return nil
	}
	if len(contexts) == 0 {
		return nil
	}
	return contexts[0]
}

// resolveAnchors は解決できたアンカーのみを返す（ダングリング参照は黙って落とす）
func (s *Service) resolveAnchors(ctx context.Context, anchorIDs []string) []*model.Anchor {
	var anchors []*model.Anchor
	for _, id := range anchorIDs {
		anchor, err := s.meta.GetAnchor(ctx, id)
		if err != nil {
			s.logger.Warn("failed to resolve anchor", "anchor_id", id, "error", err)
			continue
		}
		if anchor == nil {
			continue
		}
		anchors = append(anchors, anchor)
	}
	return anchors
}
