package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/flowforge/flowforge/internal/cache"
	"github.com/flowforge/flowforge/internal/rpc"
	"github.com/flowforge/flowforge/internal/sync"
	"github.com/flowforge/flowforge/internal/transport"
)

// discoverProjects walks the configured projects base for marker files,
// the same convention internal/rpc's list_projects handler uses.
func discoverProjects(ctx context.Context, t transport.Transport) ([]sync.Project, error) {
	base := ""
	if cliCfg != nil {
		base = cliCfg.ProjectsBase
	}
	if base == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, err
		}
		base = cwd
	}

	res := t.Run(ctx, []string{"find", base, "-maxdepth", "2", "-name", ".flowforge-project"}, "", nil)
	if !res.Succeeded() {
		return nil, fmt.Errorf("discover projects under %s: %s", base, res.Stderr)
	}

	var projects []sync.Project
	for _, line := range strings.Split(strings.TrimSpace(res.Stdout), "\n") {
		if line == "" {
			continue
		}
		dir := strings.TrimSuffix(line, "/.flowforge-project")
		projects = append(projects, sync.Project{
			Name:         filepath.Base(dir),
			Path:         dir,
			RegistryPath: filepath.Join(dir, "registry.json"),
			ConfigPath:   filepath.Join(dir, ".flowforge", "config.json"),
		})
	}
	return projects, nil
}

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run one offline-cache drain cycle now",
	RunE: func(cmd *cobra.Command, args []string) error {
		t, err := buildTransport()
		if err != nil {
			return err
		}
		store, err := cache.Open(cacheDBPath())
		if err != nil {
			return err
		}
		defer store.Close()

		projects, err := discoverProjects(cmd.Context(), t)
		if err != nil {
			return err
		}

		engine := sync.NewEngine(t, store)
		errs := engine.SyncAll(cmd.Context(), projects)
		for name, err := range errs {
			logger.Warn("sync project failed", "project", name, "error", err)
		}
		return printResult(rpc.Result{
			Success: true,
			Data:    map[string]any{"projects_synced": len(projects), "failures": len(errs)},
		})
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the health probe and sync loop continuously until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		t, err := buildTransport()
		if err != nil {
			return err
		}
		store, err := cache.Open(cacheDBPath())
		if err != nil {
			return err
		}
		defer store.Close()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		probe := sync.NewHealthProbe(t, func(reachable bool) {
			logger.Info("workstation reachability changed", "reachable", reachable)
		})
		engine := sync.NewEngine(t, store)

		loop := sync.NewLoop(probe, engine, func() []sync.Project {
			projects, err := discoverProjects(ctx, t)
			if err != nil {
				logger.Warn("discover projects failed", "error", err)
				return nil
			}
			return projects
		}, logger)

		go probe.Run(ctx)
		loop.Run(ctx)
		return nil
	},
}
