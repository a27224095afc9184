package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// MemIndex はテスト用のインメモリVectorIndex実装
type MemIndex struct {
	mu         sync.RWMutex
	vectorDim  int
	namespaces map[string]map[string]memPoint
}

type memPoint struct {
	vector  []float32
	payload Payload
}

// NewMemIndex はMemIndexを作成する
func NewMemIndex(vectorDim int) *MemIndex {
	return &MemIndex{
		vectorDim:  vectorDim,
		namespaces: make(map[string]map[string]memPoint),
	}
}

func (s *MemIndex) EnsureNamespace(ctx context.Context, projectID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	name := NamespaceName(projectID)
	if _, ok := s.namespaces[name]; !ok {
		s.namespaces[name] = make(map[string]memPoint)
	}
	return nil
}

func (s *MemIndex) DropNamespace(ctx context.Context, projectID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.namespaces, NamespaceName(projectID))
	return nil
}

func (s *MemIndex) Upsert(ctx context.Context, projectID, fragmentID string, vector []float32, payload Payload) error {
	if len(vector) != s.vectorDim {
		return fmt.Errorf("vector has %d dimensions, namespace expects %d: %w",
			len(vector), s.vectorDim, ErrDimensionMismatch)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	name := NamespaceName(projectID)
	ns, ok := s.namespaces[name]
	if !ok {
		ns = make(map[string]memPoint)
		s.namespaces[name] = ns
	}

	copied := make([]float32, len(vector))
	copy(copied, vector)
	ns[fragmentID] = memPoint{vector: copied, payload: payload}
	return nil
}

func (s *MemIndex) Query(ctx context.Context, projectID string, vector []float32, opts QueryOptions) ([]Hit, error) {
	if len(vector) != s.vectorDim {
		return nil, fmt.Errorf("query vector has %d dimensions, namespace expects %d: %w",
			len(vector), s.vectorDim, ErrDimensionMismatch)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	ns, ok := s.namespaces[NamespaceName(projectID)]
	if !ok {
		return nil, nil
	}

	topK := opts.TopK
	if topK <= 0 {
		topK = 10
	}

	var hits []Hit
	for id, point := range ns {
		if !matchPayload(point.payload, opts) {
			continue
		}
		score := CosineSimilarity(vector, point.vector)
		if score < opts.ScoreThreshold {
			continue
		}
		hits = append(hits, Hit{FragmentID: id, Score: score})
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].FragmentID < hits[j].FragmentID
	})

	if len(hits) > topK {
		hits = hits[:topK]
	}
	return hits, nil
}

func (s *MemIndex) Delete(ctx context.Context, projectID, fragmentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ns, ok := s.namespaces[NamespaceName(projectID)]; ok {
		delete(ns, fragmentID)
	}
	return nil
}

func (s *MemIndex) Ping(ctx context.Context) error {
	return nil
}

func (s *MemIndex) Close() error {
	return nil
}

// HasNamespace はテスト検証用（名前空間の存在確認）
func (s *MemIndex) HasNamespace(projectID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.namespaces[NamespaceName(projectID)]
	return ok
}

// Count はテスト検証用（名前空間内のポイント数）
func (s *MemIndex) Count(projectID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.namespaces[NamespaceName(projectID)])
}

// matchPayload はPayloadがQueryOptionsのフィルタを満たすかを判定する
func matchPayload(p Payload, opts QueryOptions) bool {
	if len(opts.Categories) > 0 && !ContainsString(opts.Categories, p.Category) {
		return false
	}
	if len(opts.Tags) > 0 && !ContainsAnyTag(p.Tags, opts.Tags) {
		return false
	}
	for field, want := range opts.CustomFields {
		if IsReservedPayloadKey(field) {
			continue
		}
		got, ok := p.CustomFields[field]
		if !ok {
			return false
		}
		if fmt.Sprintf("%v", got) != fmt.Sprintf("%v", want) {
			return false
		}
	}
	return true
}
