package model

import (
	"errors"
	"testing"
)

func TestPriority_Valid(t *testing.T) {
	for _, p := range []Priority{PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical} {
		if !p.Valid() {
			t.Errorf("%q should be valid", p)
		}
	}
	if Priority("urgent").Valid() {
		t.Error("unknown priority should be invalid")
	}
}

func TestProject_Validate(t *testing.T) {
	p := &Project{ID: "p1", Name: "test"}
	if err := p.Validate(); err != nil {
		t.Errorf("valid project rejected: %v", err)
	}

	for _, broken := range []*Project{
		{Name: "no id"},
		{ID: "p1"},
	} {
		if err := broken.Validate(); !errors.Is(err, ErrValidation) {
			t.Errorf("expected ErrValidation for %+v, got %v", broken, err)
		}
	}
}

func TestFragment_Validate(t *testing.T) {
	f := &Fragment{ID: "f1", ProjectID: "p1", Content: "x"}
	if err := f.Validate(); err != nil {
		t.Errorf("valid fragment rejected: %v", err)
	}

	for _, broken := range []*Fragment{
		{ProjectID: "p1", Content: "x"},
		{ID: "f1", Content: "x"},
		{ID: "f1", ProjectID: "p1"},
	} {
		if err := broken.Validate(); !errors.Is(err, ErrValidation) {
			t.Errorf("expected ErrValidation for %+v, got %v", broken, err)
		}
	}
}

func TestFragment_Normalize(t *testing.T) {
	f := &Fragment{ID: "f1", ProjectID: "p1", Content: "x"}
	f.Normalize()

	if f.Category != "general" {
		t.Errorf("category = %q, want general", f.Category)
	}
	if f.Source != "user" {
		t.Errorf("source = %q, want user", f.Source)
	}
	if f.Tags == nil || f.AnchorIDs == nil {
		t.Error("nil slices should be replaced with empty slices")
	}

	// 既存の値は上書きしない
	f2 := &Fragment{ID: "f2", ProjectID: "p1", Content: "x", Category: "decision", Source: "import"}
	f2.Normalize()
	if f2.Category != "decision" || f2.Source != "import" {
		t.Errorf("explicit values must be kept: %+v", f2)
	}
}

func TestContext_Normalize(t *testing.T) {
	c := &Context{ID: "c1", ProjectID: "p1", Name: "n", FragmentIDs: []string{"f1", "f2"}}
	c.Normalize()

	if c.FragmentCount != 2 {
		t.Errorf("fragment count = %d, want 2", c.FragmentCount)
	}
	if c.ChildContextIDs == nil {
		t.Error("nil child list should be replaced")
	}

	c.FragmentIDs = []string{"f1"}
	c.Normalize()
	if c.FragmentCount != 1 {
		t.Errorf("fragment count = %d, want 1", c.FragmentCount)
	}
}

func TestAnchor_ValidateAndNormalize(t *testing.T) {
	a := &Anchor{ID: "a1", ProjectID: "p1", Title: "t"}
	a.Normalize()
	if a.Priority != PriorityMedium {
		t.Errorf("priority = %q, want medium", a.Priority)
	}
	if err := a.Validate(); err != nil {
		t.Errorf("valid anchor rejected: %v", err)
	}

	bad := &Anchor{ID: "a2", ProjectID: "p1", Title: "t", Priority: "urgent"}
	if err := bad.Validate(); !errors.Is(err, ErrValidation) {
		t.Errorf("expected ErrValidation for unknown priority, got %v", err)
	}
}
