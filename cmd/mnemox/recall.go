package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mnemox/mnemox/internal/bootstrap"
	"github.com/mnemox/mnemox/internal/memory"
)

// RecallOptions holds parsed recall command options
type RecallOptions struct {
	ProjectID  string
	TopK       int
	Threshold  float64
	Categories string
	Tags       string
	ContextID  string
	Curate     bool
	Format     string
	ConfigPath string
	UseStdin   bool
	Query      string
}

// JSONOutput represents the JSON output format
type JSONOutput struct {
	Results  []JSONResult `json:"results"`
	Curation *JSONReport  `json:"curation,omitempty"`
}

// JSONResult represents a single result in JSON output
type JSONResult struct {
	ID         string   `json:"id"`
	Content    string   `json:"content"`
	Category   string   `json:"category"`
	Similarity float32  `json:"similarity"`
	Tags       []string `json:"tags,omitempty"`
	Context    string   `json:"context,omitempty"`
}

// JSONReport represents the curation report in JSON output
type JSONReport struct {
	Applied          bool   `json:"applied"`
	RequestedDeletes int    `json:"requestedDeletes"`
	Deleted          int    `json:"deleted"`
	Reasoning        string `json:"reasoning,omitempty"`
}

// parseRecallFlags parses command line arguments for recall command
func parseRecallFlags(args []string) (*RecallOptions, error) {
	fs := flag.NewFlagSet("recall", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	opts := &RecallOptions{}

	fs.StringVar(&opts.ProjectID, "project", "", "Project ID")
	fs.StringVar(&opts.ProjectID, "p", "", "Project ID")
	fs.IntVar(&opts.TopK, "top-k", 0, "Number of results")
	fs.IntVar(&opts.TopK, "k", 0, "Number of results")
	fs.Float64Var(&opts.Threshold, "threshold", 0, "Minimum similarity")
	fs.StringVar(&opts.Categories, "categories", "", "Category filter (comma-separated)")
	fs.StringVar(&opts.Tags, "tags", "", "Tag filter (comma-separated)")
	fs.StringVar(&opts.ContextID, "context", "", "Restrict to a context ID")
	fs.BoolVar(&opts.Curate, "curate", false, "Apply recall-time curation")
	fs.StringVar(&opts.Format, "format", "text", "Output format: text|json")
	fs.StringVar(&opts.Format, "f", "text", "Output format: text|json")
	fs.StringVar(&opts.ConfigPath, "config", "", "Config file path")
	fs.StringVar(&opts.ConfigPath, "c", "", "Config file path")
	fs.BoolVar(&opts.UseStdin, "stdin", false, "Read query from stdin")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if opts.Format == "" {
		opts.Format = "text"
	}
	opts.Query = strings.Join(fs.Args(), " ")

	if !opts.UseStdin && opts.Query == "" {
		return nil, fmt.Errorf("query is required (or use --stdin)")
	}
	if opts.TopK < 0 {
		return nil, fmt.Errorf("top-k must not be negative")
	}
	if opts.Threshold < 0 || opts.Threshold > 1 {
		return nil, fmt.Errorf("threshold must be in [0,1]")
	}
	if opts.Format != "text" && opts.Format != "json" {
		return nil, fmt.Errorf("invalid format: %s (must be text or json)", opts.Format)
	}

	return opts, nil
}

// runRecallCmd is the entry point for recall command
func runRecallCmd(args []string) error {
	opts, err := parseRecallFlags(args)
	if err != nil {
		return err
	}

	if opts.UseStdin {
		query, err := readLineFromStdin()
		if err != nil {
			return fmt.Errorf("failed to read query from stdin: %w", err)
		}
		opts.Query = query
	}
	if opts.Query == "" {
		return fmt.Errorf("query is empty")
	}

	ctx, cancel := setupSignalHandler()
	defer cancel()

	services, cleanup, err := bootstrap.Initialize(ctx, opts.ConfigPath, newLogger())
	if err != nil {
		return fmt.Errorf("failed to initialize: %w", err)
	}
	defer cleanup()

	embedding, err := services.Embedder.Embed(ctx, opts.Query)
	if err != nil {
		return fmt.Errorf("failed to embed query: %w", err)
	}

	searchOpts := memory.SearchOptions{
		ProjectID:           opts.ProjectID,
		MaxResults:          opts.TopK,
		SimilarityThreshold: float32(opts.Threshold),
		Categories:          parseCommaList(opts.Categories),
		Tags:                parseCommaList(opts.Tags),
		ContextID:           opts.ContextID,
	}
	if searchOpts.MaxResults == 0 {
		searchOpts.MaxResults = services.Config.Search.MaxResults
	}
	if searchOpts.SimilarityThreshold == 0 {
		searchOpts.SimilarityThreshold = services.Config.Search.SimilarityThreshold
	}

	var results []memory.SearchResult
	var report *memory.CurationReport

	if opts.Curate {
		// キュレーション時は候補を広めに拾う
		if opts.Threshold == 0 {
			searchOpts.SimilarityThreshold = services.Config.Curation.SearchThreshold
		}
		results, report, err = services.Memory.CuratedSearch(ctx, opts.Query, embedding, searchOpts)
	} else {
		results, err = services.Memory.Search(ctx, embedding, searchOpts)
	}
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	switch opts.Format {
	case "json":
		if err := formatJSONOutput(os.Stdout, results, report); err != nil {
			return fmt.Errorf("failed to format output: %w", err)
		}
	default:
		formatTextOutput(os.Stdout, results, report)
	}

	return nil
}

// formatTextOutput outputs results in human-readable text format
func formatTextOutput(w io.Writer, results []memory.SearchResult, report *memory.CurationReport) {
	if len(results) == 0 {
		fmt.Fprintln(w, "No results found.")
		return
	}

	for i, r := range results {
		fmt.Fprintf(w, "[%d] %s (similarity: %.2f)\n", i+1, truncateText(r.Fragment.Content, 60), r.Similarity)
		fmt.Fprintf(w, "    id: %s  category: %s\n", r.Fragment.ID, r.Fragment.Category)
		if len(r.Fragment.Tags) > 0 {
			fmt.Fprintf(w, "    tags: %s\n", strings.Join(r.Fragment.Tags, ", "))
		}
		if r.Context != nil {
			fmt.Fprintf(w, "    context: %s\n", r.Context.Name)
		}
	}

	if report != nil && report.Applied {
		fmt.Fprintf(w, "\ncuration: deleted %d of %d requested\n", report.Deleted, report.RequestedDeletes)
		if report.Reasoning != "" {
			fmt.Fprintf(w, "reasoning: %s\n", report.Reasoning)
		}
	}
}

// formatJSONOutput outputs results in JSON format
func formatJSONOutput(w io.Writer, results []memory.SearchResult, report *memory.CurationReport) error {
	out := JSONOutput{Results: make([]JSONResult, 0, len(results))}
	for _, r := range results {
		jr := JSONResult{
			ID:         r.Fragment.ID,
			Content:    r.Fragment.Content,
			Category:   r.Fragment.Category,
			Similarity: r.Similarity,
			Tags:       r.Fragment.Tags,
		}
		if r.Context != nil {
			jr.Context = r.Context.Name
		}
		out.Results = append(out.Results, jr)
	}
	if report != nil {
		out.Curation = &JSONReport{
			Applied:          report.Applied,
			RequestedDeletes: report.RequestedDeletes,
			Deleted:          report.Deleted,
			Reasoning:        report.Reasoning,
		}
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

// truncateText truncates text to maxLen runes, appending "..." when cut
func truncateText(text string, maxLen int) string {
	text = strings.ReplaceAll(text, "\n", " ")
	runes := []rune(text)
	if len(runes) <= maxLen {
		return text
	}
	return string(runes[:maxLen]) + "..."
}
