package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/flowforge/flowforge/internal/cache"
	"github.com/flowforge/flowforge/internal/rpc"
	"github.com/flowforge/flowforge/internal/sync"
	"github.com/flowforge/flowforge/internal/transport"
)

// buildTransport returns a LocalTransport unless --ssh-host was given, in
// which case it dials the workstation over SSH. FLOWFORGE_RATE_LIMIT (calls
// per second) wraps either one in transport.RateLimited when set.
func buildTransport() (transport.Transport, error) {
	var t transport.Transport = transport.LocalTransport{}

	if sshHost != "" {
		opts := transport.Options{}
		if sshKeyFile != "" {
			s, err := transport.LoadSignerFromFile(sshKeyFile)
			if err != nil {
				return nil, fmt.Errorf("load ssh key: %w", err)
			}
			t = transport.NewSSHGoTransport(sshHost, sshPort, sshUser, s, opts)
		} else {
			t = transport.NewSSHGoTransport(sshHost, sshPort, sshUser, nil, opts)
		}
	}

	if rl := os.Getenv("FLOWFORGE_RATE_LIMIT"); rl != "" {
		var perSecond float64
		if _, err := fmt.Sscanf(rl, "%f", &perSecond); err == nil && perSecond > 0 {
			t = transport.NewRateLimited(t, perSecond, 1)
		}
	}
	return t, nil
}

func cacheDBPath() string {
	if cliCfg != nil && cliCfg.CacheDBPath != "" {
		if filepath.IsAbs(cliCfg.CacheDBPath) {
			return cliCfg.CacheDBPath
		}
		home, err := os.UserHomeDir()
		if err == nil {
			return filepath.Join(home, cliCfg.CacheDBPath)
		}
		return cliCfg.CacheDBPath
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "flowforge.db"
	}
	return filepath.Join(home, ".flowforge-cache", "flowforge.db")
}

// dispatcherDeps bundles everything a CLI command needs to call into the
// RPC dispatch table and, if offline, queue the mutation instead.
type dispatcherDeps struct {
	dispatcher *rpc.OfflineAware
	store      *cache.Store
	probe      *sync.HealthProbe
	close      func()
}

func buildDispatcher() (*dispatcherDeps, error) {
	t, err := buildTransport()
	if err != nil {
		return nil, err
	}

	store, err := cache.Open(cacheDBPath())
	if err != nil {
		return nil, fmt.Errorf("open cache: %w", err)
	}

	projectsBase := ""
	if cliCfg != nil {
		projectsBase = cliCfg.ProjectsBase
	}
	base := rpc.New(rpc.Config{
		Transport:        t,
		ProjectsBase:     projectsBase,
		AssistantCommand: []string{"claude"},
	})

	probe := sync.NewHealthProbe(t, func(reachable bool) {
		if logger != nil {
			logger.Info("workstation reachability changed", "reachable", reachable)
		}
	})

	offline := &rpc.OfflineAware{Inner: base, Health: probe, Cache: store}

	return &dispatcherDeps{
		dispatcher: offline,
		store:      store,
		probe:      probe,
		close:      func() { _ = store.Close() },
	}, nil
}

func projectPath(arg string) (string, error) {
	if arg == "" {
		return os.Getwd()
	}
	abs, err := filepath.Abs(arg)
	if err != nil {
		return "", err
	}
	return abs, nil
}
