package main

import (
	"bufio"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mnemox/mnemox/internal/bootstrap"
	"github.com/mnemox/mnemox/internal/model"
)

// RememberOptions holds parsed remember command options
type RememberOptions struct {
	ProjectID  string
	Category   string
	Tags       string
	Source     string
	ConfigPath string
	UseStdin   bool
	Content    string
}

// parseRememberFlags parses command line arguments for remember command
func parseRememberFlags(args []string) (*RememberOptions, error) {
	fs := flag.NewFlagSet("remember", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	opts := &RememberOptions{}

	fs.StringVar(&opts.ProjectID, "project", "", "Project ID (required)")
	fs.StringVar(&opts.ProjectID, "p", "", "Project ID (required)")
	fs.StringVar(&opts.Category, "category", "", "Fragment category")
	fs.StringVar(&opts.Tags, "tags", "", "Tags (comma-separated)")
	fs.StringVar(&opts.Source, "source", "", "Fragment source")
	fs.StringVar(&opts.ConfigPath, "config", "", "Config file path")
	fs.StringVar(&opts.ConfigPath, "c", "", "Config file path")
	fs.BoolVar(&opts.UseStdin, "stdin", false, "Read content from stdin")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	opts.Content = strings.Join(fs.Args(), " ")

	if opts.ProjectID == "" {
		return nil, fmt.Errorf("project ID is required (-p or --project)")
	}
	if !opts.UseStdin && opts.Content == "" {
		return nil, fmt.Errorf("content is required (or use --stdin)")
	}

	return opts, nil
}

// runRememberCmd is the entry point for remember command
func runRememberCmd(args []string) error {
	opts, err := parseRememberFlags(args)
	if err != nil {
		return err
	}

	if opts.UseStdin {
		content, err := readLineFromStdin()
		if err != nil {
			return fmt.Errorf("failed to read content from stdin: %w", err)
		}
		opts.Content = content
	}
	if opts.Content == "" {
		return fmt.Errorf("content is empty")
	}

	ctx, cancel := setupSignalHandler()
	defer cancel()

	services, cleanup, err := bootstrap.Initialize(ctx, opts.ConfigPath, newLogger())
	if err != nil {
		return fmt.Errorf("failed to initialize: %w", err)
	}
	defer cleanup()

	embedding, err := services.Embedder.Embed(ctx, opts.Content)
	if err != nil {
		return fmt.Errorf("failed to embed content: %w", err)
	}

	fragment := &model.Fragment{
		ProjectID: opts.ProjectID,
		Content:   opts.Content,
		Category:  opts.Category,
		Tags:      parseCommaList(opts.Tags),
		Source:    opts.Source,
	}

	id, err := services.Memory.StoreFragment(ctx, fragment, embedding)
	if err != nil {
		return fmt.Errorf("failed to store fragment: %w", err)
	}

	fmt.Printf("stored fragment %s\n", id)
	return nil
}

// readLineFromStdin reads a single line from stdin
func readLineFromStdin() (string, error) {
	scanner := bufio.NewScanner(os.Stdin)
	if scanner.Scan() {
		return strings.TrimSpace(scanner.Text()), nil
	}
	if err := scanner.Err(); err != nil {
		return "", err
	}
	return "", fmt.Errorf("no input received")
}

// parseCommaList parses a comma-separated list into a slice
func parseCommaList(s string) []string {
	if s == "" {
		return nil
	}

	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		trimmed := strings.TrimSpace(p)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
