package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

func newTestChromemIndex(t *testing.T) *ChromemIndex {
	t.Helper()

	idx, err := NewChromemIndexInMemory(3)
	if err != nil {
		t.Fatalf("failed to create index: %v", err)
	}
	t.Cleanup(func() { idx.Close() })
	return idx
}

func TestChromemIndex_UpsertAndQuery(t *testing.T) {
	idx := newTestChromemIndex(t)
	ctx := context.Background()

	if err := idx.EnsureNamespace(ctx, "p1"); err != nil {
		t.Fatalf("EnsureNamespace failed: %v", err)
	}

	payload := Payload{
		FragmentID:     "f1",
		ProjectID:      "p1",
		Category:       "decision",
		Tags:           []string{"deploy"},
		Source:         "user",
		ContentPreview: "blue-green switching",
		CreatedAt:      time.Now().UTC(),
	}
	if err := idx.Upsert(ctx, "p1", "f1", []float32{1, 0, 0}, payload); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	hits, err := idx.Query(ctx, "p1", []float32{1, 0, 0}, QueryOptions{TopK: 5, ScoreThreshold: 0.5})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(hits) != 1 || hits[0].FragmentID != "f1" {
		t.Fatalf("unexpected hits: %+v", hits)
	}
	if hits[0].Score < 0.99 {
		t.Errorf("score = %v, want ~1", hits[0].Score)
	}
}

func TestChromemIndex_Filters(t *testing.T) {
	idx := newTestChromemIndex(t)
	ctx := context.Background()

	p1 := Payload{
		FragmentID: "f1", ProjectID: "p1", Category: "decision",
		Tags: []string{"deploy"}, Source: "user",
		ContentPreview: "a", CreatedAt: time.Now().UTC(),
	}
	p2 := Payload{
		FragmentID: "f2", ProjectID: "p1", Category: "general",
		Tags: []string{"notes"}, Source: "user",
		ContentPreview: "b", CreatedAt: time.Now().UTC(),
		CustomFields: map[string]any{"ticket": "OPS-42"},
	}

	if err := idx.Upsert(ctx, "p1", "f1", []float32{1, 0, 0}, p1); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	if err := idx.Upsert(ctx, "p1", "f2", []float32{1, 0, 0}, p2); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	hits, err := idx.Query(ctx, "p1", []float32{1, 0, 0}, QueryOptions{
		TopK:       10,
		Categories: []string{"decision"},
	})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(hits) != 1 || hits[0].FragmentID != "f1" {
		t.Errorf("category filter: unexpected hits %+v", hits)
	}

	hits, err = idx.Query(ctx, "p1", []float32{1, 0, 0}, QueryOptions{
		TopK: 10,
		Tags: []string{"notes"},
	})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(hits) != 1 || hits[0].FragmentID != "f2" {
		t.Errorf("tag filter: unexpected hits %+v", hits)
	}

	hits, err = idx.Query(ctx, "p1", []float32{1, 0, 0}, QueryOptions{
		TopK:         10,
		CustomFields: map[string]any{"ticket": "OPS-42"},
	})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(hits) != 1 || hits[0].FragmentID != "f2" {
		t.Errorf("custom field filter: unexpected hits %+v", hits)
	}
}

func TestChromemIndex_DimensionMismatch(t *testing.T) {
	idx := newTestChromemIndex(t)
	ctx := context.Background()

	payload := Payload{FragmentID: "f1", ProjectID: "p1", CreatedAt: time.Now().UTC()}
	err := idx.Upsert(ctx, "p1", "f1", []float32{1, 0}, payload)
	if !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("expected ErrDimensionMismatch, got %v", err)
	}
}

func TestChromemIndex_QueryMissingNamespace(t *testing.T) {
	idx := newTestChromemIndex(t)

	hits, err := idx.Query(context.Background(), "nope", []float32{1, 0, 0}, QueryOptions{TopK: 5})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(hits) != 0 {
		t.Errorf("expected no hits, got %+v", hits)
	}
}

func TestChromemIndex_ConcurrentQueryAndDelete(t *testing.T) {
	idx := newTestChromemIndex(t)
	ctx := context.Background()

	for i := 0; i < 20; i++ {
		id := fmt.Sprintf("f%d", i)
		payload := Payload{FragmentID: id, ProjectID: "p1", ContentPreview: "x", CreatedAt: time.Now().UTC()}
		if err := idx.Upsert(ctx, "p1", id, []float32{1, 0, 0}, payload); err != nil {
			t.Fatalf("Upsert failed: %v", err)
		}
	}

	// 削除と並行しても件数超過のnResultsでQueryが失敗しないこと
	var wg sync.WaitGroup
	errCh := make(chan error, 40)
	for i := 0; i < 20; i++ {
		id := fmt.Sprintf("f%d", i)
		wg.Add(2)
		go func() {
			defer wg.Done()
			errCh <- idx.Delete(ctx, "p1", id)
		}()
		go func() {
			defer wg.Done()
			_, err := idx.Query(ctx, "p1", []float32{1, 0, 0}, QueryOptions{TopK: 20})
			errCh <- err
		}()
	}
	wg.Wait()
	close(errCh)

	for err := range errCh {
		if err != nil {
			t.Errorf("concurrent operation failed: %v", err)
		}
	}
}

func TestChromemIndex_DeleteAndDrop(t *testing.T) {
	idx := newTestChromemIndex(t)
	ctx := context.Background()

	payload := Payload{FragmentID: "f1", ProjectID: "p1", ContentPreview: "x", CreatedAt: time.Now().UTC()}
	if err := idx.Upsert(ctx, "p1", "f1", []float32{1, 0, 0}, payload); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	if err := idx.Delete(ctx, "p1", "f1"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	hits, err := idx.Query(ctx, "p1", []float32{1, 0, 0}, QueryOptions{TopK: 5})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(hits) != 0 {
		t.Errorf("expected no hits after delete, got %+v", hits)
	}

	if err := idx.DropNamespace(ctx, "p1"); err != nil {
		t.Fatalf("DropNamespace failed: %v", err)
	}
	// 冪等
	if err := idx.DropNamespace(ctx, "p1"); err != nil {
		t.Fatalf("second DropNamespace failed: %v", err)
	}
}
