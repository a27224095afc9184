package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/mnemox/mnemox/internal/model"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	if err := s.Initialize(context.Background()); err != nil {
		t.Fatalf("failed to initialize store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testProject(id string) *model.Project {
	now := time.Now().UTC()
	return &model.Project{
		ID:          id,
		Name:        "test project",
		Description: "for tests",
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func testFragment(id, projectID string) *model.Fragment {
	now := time.Now().UTC()
	f := &model.Fragment{
		ID:        id,
		ProjectID: projectID,
		Content:   "the deploy pipeline uses blue-green switching",
		Category:  "decision",
		Tags:      []string{"deploy", "infra"},
		Source:    "user",
		CreatedAt: now,
		UpdatedAt: now,
	}
	f.Normalize()
	return f
}

func TestSQLiteStore_NotInitialized(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	defer s.Close()

	_, err = s.GetProject(context.Background(), "p1")
	if !errors.Is(err, ErrNotInitialized) {
		t.Errorf("expected ErrNotInitialized, got %v", err)
	}
}

func TestSQLiteStore_ProjectCRUD(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, err := s.CreateProject(ctx, testProject("p1"))
	if err != nil {
		t.Fatalf("CreateProject failed: %v", err)
	}
	if id != "p1" {
		t.Errorf("id = %q, want p1", id)
	}

	got, err := s.GetProject(ctx, "p1")
	if err != nil {
		t.Fatalf("GetProject failed: %v", err)
	}
	if got == nil || got.Name != "test project" {
		t.Errorf("unexpected project: %+v", got)
	}

	// 不在はエラーではなくnil
	missing, err := s.GetProject(ctx, "nope")
	if err != nil {
		t.Fatalf("GetProject for missing id failed: %v", err)
	}
	if missing != nil {
		t.Errorf("expected nil for missing project, got %+v", missing)
	}

	got.Description = "updated"
	ok, err := s.UpdateProject(ctx, got)
	if err != nil || !ok {
		t.Fatalf("UpdateProject = (%v, %v)", ok, err)
	}

	list, err := s.ListProjects(ctx)
	if err != nil {
		t.Fatalf("ListProjects failed: %v", err)
	}
	if len(list) != 1 || list[0].Description != "updated" {
		t.Errorf("unexpected list: %+v", list)
	}

	deleted, err := s.DeleteProject(ctx, "p1")
	if err != nil || !deleted {
		t.Fatalf("DeleteProject = (%v, %v)", deleted, err)
	}
	deleted, err = s.DeleteProject(ctx, "p1")
	if err != nil {
		t.Fatalf("second DeleteProject failed: %v", err)
	}
	if deleted {
		t.Error("second delete should report false")
	}
}

func TestSQLiteStore_ProjectConflict(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.CreateProject(ctx, testProject("p1")); err != nil {
		t.Fatalf("CreateProject failed: %v", err)
	}
	_, err := s.CreateProject(ctx, testProject("p1"))
	if !errors.Is(err, ErrConflict) {
		t.Errorf("expected ErrConflict, got %v", err)
	}
}

func TestSQLiteStore_FragmentCRUD(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.CreateProject(ctx, testProject("p1")); err != nil {
		t.Fatalf("CreateProject failed: %v", err)
	}

	f := testFragment("f1", "p1")
	f.CustomFields = map[string]any{"ticket": "OPS-42"}
	if _, err := s.CreateFragment(ctx, f); err != nil {
		t.Fatalf("CreateFragment failed: %v", err)
	}

	got, err := s.GetFragment(ctx, "f1")
	if err != nil {
		t.Fatalf("GetFragment failed: %v", err)
	}
	if got == nil {
		t.Fatal("fragment not found")
	}
	if got.Category != "decision" {
		t.Errorf("category = %q, want decision", got.Category)
	}
	if len(got.Tags) != 2 || got.Tags[0] != "deploy" {
		t.Errorf("unexpected tags: %v", got.Tags)
	}
	if got.CustomFields["ticket"] != "OPS-42" {
		t.Errorf("unexpected custom fields: %v", got.CustomFields)
	}

	deleted, err := s.DeleteFragment(ctx, "f1")
	if err != nil || !deleted {
		t.Fatalf("DeleteFragment = (%v, %v)", deleted, err)
	}
	deleted, err = s.DeleteFragment(ctx, "f1")
	if err != nil {
		t.Fatalf("second DeleteFragment failed: %v", err)
	}
	if deleted {
		t.Error("second delete should report false")
	}
}

func TestSQLiteStore_ListFragmentsOrderAndLimit(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.CreateProject(ctx, testProject("p1")); err != nil {
		t.Fatalf("CreateProject failed: %v", err)
	}

	base := time.Now().UTC()
	for i, id := range []string{"f1", "f2", "f3"} {
		f := testFragment(id, "p1")
		f.CreatedAt = base.Add(time.Duration(i) * time.Second)
		f.UpdatedAt = f.CreatedAt
		if _, err := s.CreateFragment(ctx, f); err != nil {
			t.Fatalf("CreateFragment %s failed: %v", id, err)
		}
	}

	list, err := s.ListFragmentsByProject(ctx, "p1", 2)
	if err != nil {
		t.Fatalf("ListFragmentsByProject failed: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("len = %d, want 2", len(list))
	}
	// 新しい順
	if list[0].ID != "f3" || list[1].ID != "f2" {
		t.Errorf("unexpected order: %s, %s", list[0].ID, list[1].ID)
	}
}

func TestSQLiteStore_CascadeDelete(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.CreateProject(ctx, testProject("p1")); err != nil {
		t.Fatalf("CreateProject failed: %v", err)
	}
	if _, err := s.CreateFragment(ctx, testFragment("f1", "p1")); err != nil {
		t.Fatalf("CreateFragment failed: %v", err)
	}

	if _, err := s.DeleteProject(ctx, "p1"); err != nil {
		t.Fatalf("DeleteProject failed: %v", err)
	}

	got, err := s.GetFragment(ctx, "f1")
	if err != nil {
		t.Fatalf("GetFragment failed: %v", err)
	}
	if got != nil {
		t.Error("fragment should be cascade-deleted with its project")
	}
}

func TestSQLiteStore_ContextMembership(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.CreateProject(ctx, testProject("p1")); err != nil {
		t.Fatalf("CreateProject failed: %v", err)
	}
	if _, err := s.CreateFragment(ctx, testFragment("f1", "p1")); err != nil {
		t.Fatalf("CreateFragment failed: %v", err)
	}

	now := time.Now().UTC()
	c := &model.Context{
		ID:        "c1",
		ProjectID: "p1",
		Name:      "deployment",
		CreatedAt: now,
		UpdatedAt: now,
	}
	c.Normalize()
	if _, err := s.CreateContext(ctx, c); err != nil {
		t.Fatalf("CreateContext failed: %v", err)
	}

	ok, err := s.UpdateContextFragments(ctx, "c1", []string{"f1"})
	if err != nil || !ok {
		t.Fatalf("UpdateContextFragments = (%v, %v)", ok, err)
	}

	got, err := s.GetContext(ctx, "c1")
	if err != nil {
		t.Fatalf("GetContext failed: %v", err)
	}
	if got == nil {
		t.Fatal("context not found")
	}
	if len(got.FragmentIDs) != 1 || got.FragmentIDs[0] != "f1" {
		t.Errorf("unexpected fragment ids: %v", got.FragmentIDs)
	}
	// fragment_countはリストと同一書き込みで更新される
	if got.FragmentCount != 1 {
		t.Errorf("fragment count = %d, want 1", got.FragmentCount)
	}

	refs, err := s.ContextsByFragment(ctx, "f1")
	if err != nil {
		t.Fatalf("ContextsByFragment failed: %v", err)
	}
	if len(refs) != 1 || refs[0].ID != "c1" {
		t.Errorf("unexpected contexts: %+v", refs)
	}

	// 取り外すと参照も消える
	if _, err := s.UpdateContextFragments(ctx, "c1", []string{}); err != nil {
		t.Fatalf("UpdateContextFragments failed: %v", err)
	}
	refs, err = s.ContextsByFragment(ctx, "f1")
	if err != nil {
		t.Fatalf("ContextsByFragment failed: %v", err)
	}
	if len(refs) != 0 {
		t.Errorf("expected no contexts, got %+v", refs)
	}
}

func TestSQLiteStore_ContextsByFragmentNoFalsePositive(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.CreateProject(ctx, testProject("p1")); err != nil {
		t.Fatalf("CreateProject failed: %v", err)
	}

	now := time.Now().UTC()
	c := &model.Context{
		ID:          "c1",
		ProjectID:   "p1",
		Name:        "notes",
		FragmentIDs: []string{"f12"},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	c.Normalize()
	if _, err := s.CreateContext(ctx, c); err != nil {
		t.Fatalf("CreateContext failed: %v", err)
	}

	// "f1" は "f12" の部分文字列だが一致してはならない
	refs, err := s.ContextsByFragment(ctx, "f1")
	if err != nil {
		t.Fatalf("ContextsByFragment failed: %v", err)
	}
	if len(refs) != 0 {
		t.Errorf("substring id must not match, got %+v", refs)
	}
}

func TestSQLiteStore_AnchorTouch(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.CreateProject(ctx, testProject("p1")); err != nil {
		t.Fatalf("CreateProject failed: %v", err)
	}

	now := time.Now().UTC()
	a := &model.Anchor{
		ID:        "a1",
		ProjectID: "p1",
		Title:     "release checklist",
		Priority:  model.PriorityHigh,
		CreatedAt: now,
		UpdatedAt: now,
	}
	a.Normalize()
	if _, err := s.CreateAnchor(ctx, a); err != nil {
		t.Fatalf("CreateAnchor failed: %v", err)
	}

	for i := 0; i < 3; i++ {
		ok, err := s.TouchAnchor(ctx, "a1")
		if err != nil || !ok {
			t.Fatalf("TouchAnchor = (%v, %v)", ok, err)
		}
	}

	got, err := s.GetAnchor(ctx, "a1")
	if err != nil {
		t.Fatalf("GetAnchor failed: %v", err)
	}
	if got.AccessCount != 3 {
		t.Errorf("access count = %d, want 3", got.AccessCount)
	}
	if got.LastAccessed.IsZero() {
		t.Error("last accessed should be set")
	}
}

func TestSQLiteStore_Stats(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.CreateProject(ctx, testProject("p1")); err != nil {
		t.Fatalf("CreateProject failed: %v", err)
	}
	if _, err := s.CreateFragment(ctx, testFragment("f1", "p1")); err != nil {
		t.Fatalf("CreateFragment failed: %v", err)
	}
	if _, err := s.CreateFragment(ctx, testFragment("f2", "p1")); err != nil {
		t.Fatalf("CreateFragment failed: %v", err)
	}

	stats, err := s.Stats(ctx, "p1")
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.Fragments != 2 || stats.Contexts != 0 || stats.Anchors != 0 {
		t.Errorf("unexpected stats: %+v", stats)
	}
}
