package main

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/mnemox/mnemox/internal/memory"
	"github.com/mnemox/mnemox/internal/model"
)

func TestParseRememberFlags(t *testing.T) {
	opts, err := parseRememberFlags([]string{"-p", "proj-1", "--category", "decision", "--tags", "a, b", "hello", "world"})
	if err != nil {
		t.Fatalf("parseRememberFlags failed: %v", err)
	}
	if opts.ProjectID != "proj-1" {
		t.Errorf("project = %q", opts.ProjectID)
	}
	if opts.Category != "decision" {
		t.Errorf("category = %q", opts.Category)
	}
	if opts.Content != "hello world" {
		t.Errorf("content = %q", opts.Content)
	}

	if _, err := parseRememberFlags([]string{"content without project"}); err == nil {
		t.Error("expected error for missing project")
	}
	if _, err := parseRememberFlags([]string{"-p", "proj-1"}); err == nil {
		t.Error("expected error for missing content")
	}
	// stdin指定時はコンテンツ省略可
	if _, err := parseRememberFlags([]string{"-p", "proj-1", "--stdin"}); err != nil {
		t.Errorf("stdin mode should not require content: %v", err)
	}
}

func TestParseRecallFlags(t *testing.T) {
	opts, err := parseRecallFlags([]string{"-p", "proj-1", "-k", "10", "--threshold", "0.3", "--curate", "deploy", "strategy"})
	if err != nil {
		t.Fatalf("parseRecallFlags failed: %v", err)
	}
	if opts.ProjectID != "proj-1" || opts.TopK != 10 || opts.Threshold != 0.3 || !opts.Curate {
		t.Errorf("unexpected opts: %+v", opts)
	}
	if opts.Query != "deploy strategy" {
		t.Errorf("query = %q", opts.Query)
	}

	if _, err := parseRecallFlags([]string{"-p", "proj-1"}); err == nil {
		t.Error("expected error for missing query")
	}
	if _, err := parseRecallFlags([]string{"-p", "proj-1", "--threshold", "1.5", "q"}); err == nil {
		t.Error("expected error for out-of-range threshold")
	}
	if _, err := parseRecallFlags([]string{"-p", "proj-1", "-f", "xml", "q"}); err == nil {
		t.Error("expected error for invalid format")
	}
}

func TestParseCommaList(t *testing.T) {
	got := parseCommaList(" a, b ,, c ")
	if len(got) != 3 || got[0] != "a" || got[1] != "b" || got[2] != "c" {
		t.Errorf("parseCommaList() = %v", got)
	}
	if parseCommaList("") != nil {
		t.Error("empty input should yield nil")
	}
}

func TestTruncateText(t *testing.T) {
	if got := truncateText("short", 10); got != "short" {
		t.Errorf("truncateText() = %q", got)
	}
	if got := truncateText("a\nb", 10); got != "a b" {
		t.Errorf("newlines should be flattened, got %q", got)
	}
	long := strings.Repeat("x", 20)
	if got := truncateText(long, 10); got != strings.Repeat("x", 10)+"..." {
		t.Errorf("truncateText() = %q", got)
	}
}

func sampleResults() []memory.SearchResult {
	return []memory.SearchResult{
		{
			Fragment: &model.Fragment{
				ID:       "f1",
				Content:  "we deploy blue-green",
				Category: "decision",
				Tags:     []string{"deploy"},
			},
			Similarity: 0.91,
			Context:    &model.Context{ID: "c1", Name: "deployment"},
		},
	}
}

func TestFormatTextOutput(t *testing.T) {
	var buf bytes.Buffer
	formatTextOutput(&buf, sampleResults(), &memory.CurationReport{
		Applied:          true,
		RequestedDeletes: 1,
		Deleted:          1,
		Reasoning:        "duplicate removed",
	})

	out := buf.String()
	for _, want := range []string{"we deploy blue-green", "similarity: 0.91", "context: deployment", "deleted 1 of 1", "duplicate removed"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}

	buf.Reset()
	formatTextOutput(&buf, nil, nil)
	if !strings.Contains(buf.String(), "No results found.") {
		t.Errorf("unexpected empty output: %q", buf.String())
	}
}

func TestFormatJSONOutput(t *testing.T) {
	var buf bytes.Buffer
	if err := formatJSONOutput(&buf, sampleResults(), nil); err != nil {
		t.Fatalf("formatJSONOutput failed: %v", err)
	}

	var out JSONOutput
	if err := json.Unmarshal(buf.Bytes(), &out); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if len(out.Results) != 1 || out.Results[0].ID != "f1" || out.Results[0].Context != "deployment" {
		t.Errorf("unexpected output: %+v", out)
	}
	if out.Curation != nil {
		t.Error("curation should be omitted when no report")
	}
}
