package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
)

// ビルド時変数（-ldflags で変更可能）
var version = "dev"

func main() {
	var err error

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "remember":
		err = runRememberCmd(os.Args[2:])
	case "recall":
		err = runRecallCmd(os.Args[2:])
	case "projects":
		err = runProjectsCmd(os.Args[2:])
	case "stats":
		err = runStatsCmd(os.Args[2:])
	case "version", "-v", "--version":
		printVersion()
		return
	case "help", "-h", "--help":
		printUsage()
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// printUsage prints the usage information
func printUsage() {
	fmt.Println(`mnemox - Semantic Memory Store

Usage:
  mnemox <command> [options]

Commands:
  remember  Store a text fragment (oneshot command)
  recall    Search fragments by semantic similarity
  projects  List or create projects
  stats     Print entity counts for a project
  version   Print version information
  help      Print this help message

Remember Options:
  -p, --project string     Project ID (required)
  --category string        Fragment category (default: general)
  --tags string            Tags (comma-separated)
  --source string          Fragment source (default: user)
  -c, --config string      Config file path
  --stdin                  Read content from stdin

Recall Options:
  -p, --project string     Project ID (required unless a default is configured)
  -k, --top-k int          Number of results (default: 50)
  --threshold float        Minimum similarity (default: 0.6)
  --categories string      Category filter (comma-separated)
  --tags string            Tag filter (comma-separated)
  --context string         Restrict to a context ID
  --curate                 Apply recall-time curation
  -f, --format string      Output format: text, json (default: text)
  -c, --config string      Config file path
  --stdin                  Read query from stdin

Examples:
  mnemox projects create -n "my project"
  mnemox remember -p <project-id> --category decision "we deploy blue-green"
  mnemox recall -p <project-id> -k 10 "deployment strategy"
  mnemox recall -p <project-id> --curate "deployment strategy"
  echo "query" | mnemox recall -p <project-id> --stdin`)
}

// printVersion prints the version information
func printVersion() {
	fmt.Printf("mnemox version %s\n", version)
}

// setupSignalHandler はSIGINT/SIGTERMを受けてcontextをキャンセルする
func setupSignalHandler() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		cancel()
	}()

	return ctx, cancel
}

// newLogger はCLI用のロガーを作成する（stderrへ出力）
func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	}))
}
