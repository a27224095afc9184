package store

import (
	"testing"
	"time"
)

func TestPointID(t *testing.T) {
	a := pointID("550e8400-e29b-41d4-a716-446655440000")
	b := pointID("550e8400-e29b-41d4-a716-446655440000")
	c := pointID("660e8400-e29b-41d4-a716-446655440000")

	if a != b {
		t.Error("pointID must be deterministic")
	}
	if a == c {
		t.Error("different fragment ids should map to different point ids")
	}
}

func TestBuildQueryFilter(t *testing.T) {
	if f := buildQueryFilter(QueryOptions{}); f != nil {
		t.Errorf("empty options should produce nil filter, got %+v", f)
	}

	f := buildQueryFilter(QueryOptions{
		Categories: []string{"decision", "learning"},
		Tags:       []string{"deploy"},
		CustomFields: map[string]any{
			"ticket":      "OPS-42",
			"reviewed":    true,
			"iteration":   3,
			"fragment_id": "must-be-skipped", // 予約キー
		},
	})
	if f == nil {
		t.Fatal("expected a filter")
	}
	// category + tags + 3つのcustom field（予約キーは除外）
	if len(f.Must) != 5 {
		t.Errorf("len(Must) = %d, want 5", len(f.Must))
	}
}

func TestBuildPayload(t *testing.T) {
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	p := Payload{
		FragmentID:     "f1",
		ProjectID:      "p1",
		Category:       "decision",
		Tags:           []string{"deploy", "infra"},
		Source:         "user",
		ContentPreview: "preview",
		CreatedAt:      created,
		CustomFields: map[string]any{
			"ticket":     "OPS-42",
			"project_id": "spoofed", // 予約キーはマージしない
		},
	}

	payload := buildPayload(p)

	if got := payload[PayloadFragmentID].GetStringValue(); got != "f1" {
		t.Errorf("fragment_id = %q, want f1", got)
	}
	if got := payload[PayloadCategory].GetStringValue(); got != "decision" {
		t.Errorf("category = %q, want decision", got)
	}
	if got := payload[PayloadProjectID].GetStringValue(); got != "p1" {
		t.Errorf("project_id = %q, want p1 (custom field must not overwrite)", got)
	}
	if got := payload["ticket"].GetStringValue(); got != "OPS-42" {
		t.Errorf("ticket = %q, want OPS-42", got)
	}

	tags := payload[PayloadTags].GetListValue()
	if tags == nil || len(tags.Values) != 2 {
		t.Fatalf("unexpected tags payload: %+v", tags)
	}
	if tags.Values[0].GetStringValue() != "deploy" {
		t.Errorf("first tag = %q, want deploy", tags.Values[0].GetStringValue())
	}

	if got := payload[PayloadCreatedAtTS].GetDoubleValue(); got != float64(created.Unix()) {
		t.Errorf("created_at_ts = %v, want %v", got, float64(created.Unix()))
	}
}
