package main

import (
	"flag"
	"fmt"
	"io"

	"github.com/mnemox/mnemox/internal/bootstrap"
)

// runProjectsCmd is the entry point for projects command
// subcommands: list (default), create
func runProjectsCmd(args []string) error {
	sub := "list"
	if len(args) > 0 && args[0] == "create" {
		sub = "create"
		args = args[1:]
	} else if len(args) > 0 && args[0] == "list" {
		args = args[1:]
	}

	fs := flag.NewFlagSet("projects", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var name, description, configPath string
	fs.StringVar(&name, "name", "", "Project name (create)")
	fs.StringVar(&name, "n", "", "Project name (create)")
	fs.StringVar(&description, "description", "", "Project description (create)")
	fs.StringVar(&description, "d", "", "Project description (create)")
	fs.StringVar(&configPath, "config", "", "Config file path")
	fs.StringVar(&configPath, "c", "", "Config file path")

	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx, cancel := setupSignalHandler()
	defer cancel()

	services, cleanup, err := bootstrap.Initialize(ctx, configPath, newLogger())
	if err != nil {
		return fmt.Errorf("failed to initialize: %w", err)
	}
	defer cleanup()

	switch sub {
	case "create":
		if name == "" {
			return fmt.Errorf("project name is required (-n or --name)")
		}
		project, err := services.Memory.CreateProject(ctx, name, description)
		if err != nil {
			return fmt.Errorf("failed to create project: %w", err)
		}
		fmt.Printf("created project %s (%s)\n", project.ID, project.Name)
		return nil

	default:
		projects, err := services.Memory.ListProjects(ctx)
		if err != nil {
			return fmt.Errorf("failed to list projects: %w", err)
		}
		if len(projects) == 0 {
			fmt.Println("No projects.")
			return nil
		}
		for _, p := range projects {
			fmt.Printf("%s  %s\n", p.ID, p.Name)
		}
		return nil
	}
}

// runStatsCmd is the entry point for stats command
func runStatsCmd(args []string) error {
	fs := flag.NewFlagSet("stats", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var projectID, configPath string
	fs.StringVar(&projectID, "project", "", "Project ID (required)")
	fs.StringVar(&projectID, "p", "", "Project ID (required)")
	fs.StringVar(&configPath, "config", "", "Config file path")
	fs.StringVar(&configPath, "c", "", "Config file path")

	if err := fs.Parse(args); err != nil {
		return err
	}
	if projectID == "" {
		return fmt.Errorf("project ID is required (-p or --project)")
	}

	ctx, cancel := setupSignalHandler()
	defer cancel()

	services, cleanup, err := bootstrap.Initialize(ctx, configPath, newLogger())
	if err != nil {
		return fmt.Errorf("failed to initialize: %w", err)
	}
	defer cleanup()

	stats, err := services.Memory.Stats(ctx, projectID)
	if err != nil {
		return fmt.Errorf("failed to get stats: %w", err)
	}

	health := services.Memory.HealthCheck(ctx)
	fmt.Printf("fragments: %d\ncontexts:  %d\nanchors:   %d\n",
		stats.Fragments, stats.Contexts, stats.Anchors)
	fmt.Printf("metadata store: %s\nvector index:  %s\n",
		healthWord(health.Metadata), healthWord(health.Index))
	return nil
}

func healthWord(ok bool) string {
	if ok {
		return "ok"
	}
	return "unreachable"
}
