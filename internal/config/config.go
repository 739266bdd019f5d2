package config

import (
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// CLIConfig holds the ambient CLI shim's own preferences — output format,
// verbosity, and the base paths spec.md §6 names as environment
// variables — layered the way the teacher's internal/config resolves
// AgentOps settings: defaults, then ~/.flowforge/config.yaml, then
// <project>/.flowforge/config.yaml, then environment variables, then
// explicit flag overrides. This is deliberately separate from
// ProjectConfig (config.json): that file is read by the registry and
// workspace machinery itself and is never touched by this loader.
type CLIConfig struct {
	// Output controls the default CLI output format: "table" prints a
	// table, any other value prints JSON.
	Output string `yaml:"output" json:"output"`

	// Verbose enables verbose CLI output.
	Verbose bool `yaml:"verbose" json:"verbose"`

	// RegistryPathOverride is FLOWFORGE_REGISTRY_PATH: the base directory
	// for the pi-local registry variant (spec.md §6), default
	// /var/flowforge/registries.
	RegistryPathOverride string `yaml:"registry_path" json:"registry_path"`

	// ProjectsBase is FORGE_PROJECTS_PATH: the local base directory
	// list_projects walks when no workstation is configured.
	ProjectsBase string `yaml:"projects_base" json:"projects_base"`

	// MacProjectsBase is FORGE_MAC_PROJECTS_PATH: the workstation's own
	// projects base directory, used when a workstation transport is
	// configured.
	MacProjectsBase string `yaml:"mac_projects_base" json:"mac_projects_base"`

	// CacheDBPath overrides the embedded cache database location,
	// default ~/.flowforge-cache/flowforge.db.
	CacheDBPath string `yaml:"cache_db_path" json:"cache_db_path"`
}

const (
	defaultOutput               = "table"
	defaultRegistryPathOverride = "/var/flowforge/registries"
	defaultCacheDBPath          = ".flowforge-cache/flowforge.db"
)

// DefaultCLIConfig returns the reference CLI preferences.
func DefaultCLIConfig() *CLIConfig {
	return &CLIConfig{
		Output:               defaultOutput,
		Verbose:              false,
		RegistryPathOverride: defaultRegistryPathOverride,
		CacheDBPath:          defaultCacheDBPath,
	}
}

// LoadCLIConfig resolves CLIConfig with precedence flags > env > project >
// home > defaults, matching the teacher's internal/config.Load shape.
func LoadCLIConfig(flagOverrides *CLIConfig) (*CLIConfig, error) {
	cfg := DefaultCLIConfig()

	if home, _ := loadCLIConfigFromPath(homeCLIConfigPath()); home != nil {
		cfg = mergeCLIConfig(cfg, home)
	}
	if project, _ := loadCLIConfigFromPath(projectCLIConfigPath()); project != nil {
		cfg = mergeCLIConfig(cfg, project)
	}

	cfg = applyCLIEnv(cfg)

	if flagOverrides != nil {
		cfg = mergeCLIConfig(cfg, flagOverrides)
	}
	return cfg, nil
}

func homeCLIConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".flowforge", "config.yaml")
}

func projectCLIConfigPath() string {
	if override := strings.TrimSpace(os.Getenv("FLOWFORGE_CONFIG")); override != "" {
		return override
	}
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}
	return filepath.Join(cwd, ".flowforge", "config.yaml")
}

func loadCLIConfigFromPath(path string) (*CLIConfig, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg CLIConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyCLIEnv(cfg *CLIConfig) *CLIConfig {
	if v := os.Getenv("FLOWFORGE_OUTPUT"); v != "" {
		cfg.Output = v
	}
	if v := os.Getenv("FLOWFORGE_VERBOSE"); v == "true" || v == "1" {
		cfg.Verbose = true
	}
	if v := os.Getenv("FLOWFORGE_REGISTRY_PATH"); v != "" {
		cfg.RegistryPathOverride = v
	}
	if v := os.Getenv("FORGE_PROJECTS_PATH"); v != "" {
		cfg.ProjectsBase = v
	}
	if v := os.Getenv("FORGE_MAC_PROJECTS_PATH"); v != "" {
		cfg.MacProjectsBase = v
	}
	return cfg
}

// mergeCLIConfig merges src into dst, with non-zero src fields winning.
func mergeCLIConfig(dst, src *CLIConfig) *CLIConfig {
	if src.Output != "" {
		dst.Output = src.Output
	}
	if src.Verbose {
		dst.Verbose = true
	}
	if src.RegistryPathOverride != "" {
		dst.RegistryPathOverride = src.RegistryPathOverride
	}
	if src.ProjectsBase != "" {
		dst.ProjectsBase = src.ProjectsBase
	}
	if src.MacProjectsBase != "" {
		dst.MacProjectsBase = src.MacProjectsBase
	}
	if src.CacheDBPath != "" {
		dst.CacheDBPath = src.CacheDBPath
	}
	return dst
}
