// Package config holds two independent configuration surfaces: the
// per-project config.json the registry/workspace/executor machinery
// reads (ProjectConfig, spec.md §6), and a layered YAML loader for the
// CLI shim's own preferences (output format, verbosity), adapted from
// the teacher's internal/config/config.go.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/renameio/v2"
)

// CurrentProjectConfigVersion is the schema version this package writes.
const CurrentProjectConfigVersion = "1.0.0"

// ProjectConfig is the on-disk shape of <project>/.flowforge/config.json.
type ProjectConfig struct {
	Version string        `json:"version"`
	Project ProjectFields `json:"project"`
}

// ProjectFields are the per-project settings spec.md §6 names.
type ProjectFields struct {
	Name           string   `json:"name"`
	MainBranch     string   `json:"main_branch"`
	ClaudeMDPath   string   `json:"claude_md_path,omitempty"`
	BuildCommand   string   `json:"build_command,omitempty"`
	TestCommand    string   `json:"test_command,omitempty"`
	WorktreeBase   string   `json:"worktree_base,omitempty"`
	DefaultPersona string   `json:"default_persona,omitempty"`
	ClaudeCommand  string   `json:"claude_command,omitempty"`
	ClaudeFlags    []string `json:"claude_flags,omitempty"`

	// MacPath is set only in the pi-local registry variant (spec.md §6):
	// the workstation path this local copy mirrors.
	MacPath string `json:"mac_path,omitempty"`
}

// DefaultProjectConfig returns the reference defaults for a new project.
func DefaultProjectConfig(name string) ProjectConfig {
	return ProjectConfig{
		Version: CurrentProjectConfigVersion,
		Project: ProjectFields{
			Name:          name,
			MainBranch:    "main",
			WorktreeBase:  ".flowforge-worktrees",
			ClaudeCommand: "claude",
		},
	}
}

// ProjectConfigPath returns the canonical config.json path under a
// project root.
func ProjectConfigPath(projectRoot string) string {
	return filepath.Join(projectRoot, ".flowforge", "config.json")
}

// LoadProjectConfig reads path, returning DefaultProjectConfig(name) if
// the file does not exist yet.
func LoadProjectConfig(path, projectName string) (ProjectConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultProjectConfig(projectName), nil
		}
		return ProjectConfig{}, fmt.Errorf("read project config %s: %w", path, err)
	}

	var cfg ProjectConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return ProjectConfig{}, fmt.Errorf("parse project config %s: %w", path, err)
	}
	if cfg.Version == "" {
		cfg.Version = CurrentProjectConfigVersion
	}
	return cfg, nil
}

// SaveProjectConfig atomically rewrites path with cfg, creating the
// parent .flowforge directory if needed.
func SaveProjectConfig(path string, cfg ProjectConfig) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return renameio.WriteFile(path, data, 0o644)
}
