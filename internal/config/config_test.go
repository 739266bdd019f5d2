package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultCLIConfig(t *testing.T) {
	cfg := DefaultCLIConfig()

	if cfg.Output != "table" {
		t.Errorf("DefaultCLIConfig Output = %q, want %q", cfg.Output, "table")
	}
	if cfg.Verbose {
		t.Error("DefaultCLIConfig Verbose = true, want false")
	}
	if cfg.RegistryPathOverride != defaultRegistryPathOverride {
		t.Errorf("DefaultCLIConfig RegistryPathOverride = %q, want %q", cfg.RegistryPathOverride, defaultRegistryPathOverride)
	}
}

func TestMergeCLIConfig(t *testing.T) {
	dst := DefaultCLIConfig()
	src := &CLIConfig{Output: "json", ProjectsBase: "/custom/path"}

	result := mergeCLIConfig(dst, src)

	if result.Output != "json" {
		t.Errorf("mergeCLIConfig Output = %q, want %q", result.Output, "json")
	}
	if result.ProjectsBase != "/custom/path" {
		t.Errorf("mergeCLIConfig ProjectsBase = %q, want %q", result.ProjectsBase, "/custom/path")
	}
	if result.RegistryPathOverride != defaultRegistryPathOverride {
		t.Errorf("mergeCLIConfig preserved RegistryPathOverride = %q, want %q", result.RegistryPathOverride, defaultRegistryPathOverride)
	}
}

func TestMergeCLIConfigVerboseOnlySetsTrue(t *testing.T) {
	dst := DefaultCLIConfig()
	src := &CLIConfig{}

	result := mergeCLIConfig(dst, src)
	if result.Verbose {
		t.Error("mergeCLIConfig with unset src.Verbose should not flip dst to true")
	}

	src.Verbose = true
	result = mergeCLIConfig(dst, src)
	if !result.Verbose {
		t.Error("mergeCLIConfig should set Verbose when src.Verbose is true")
	}
}

func TestLoadCLIConfigFromPathMissingFileReturnsNil(t *testing.T) {
	cfg, err := loadCLIConfigFromPath(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil {
		t.Fatal("expected an error reading a missing file")
	}
	if cfg != nil {
		t.Error("expected nil config on read error")
	}
}

func TestLoadCLIConfigFromPathParsesYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("output: json\nverbose: true\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := loadCLIConfigFromPath(path)
	if err != nil {
		t.Fatalf("loadCLIConfigFromPath returned error: %v", err)
	}
	if cfg.Output != "json" {
		t.Errorf("parsed Output = %q, want %q", cfg.Output, "json")
	}
	if !cfg.Verbose {
		t.Error("parsed Verbose = false, want true")
	}
}

func TestApplyCLIEnvOverridesFields(t *testing.T) {
	t.Setenv("FLOWFORGE_OUTPUT", "yaml")
	t.Setenv("FLOWFORGE_VERBOSE", "1")
	t.Setenv("FORGE_PROJECTS_PATH", "/projects")
	t.Setenv("FORGE_MAC_PROJECTS_PATH", "/mac/projects")

	cfg := applyCLIEnv(DefaultCLIConfig())

	if cfg.Output != "yaml" {
		t.Errorf("Output = %q, want %q", cfg.Output, "yaml")
	}
	if !cfg.Verbose {
		t.Error("Verbose = false, want true")
	}
	if cfg.ProjectsBase != "/projects" {
		t.Errorf("ProjectsBase = %q, want %q", cfg.ProjectsBase, "/projects")
	}
	if cfg.MacProjectsBase != "/mac/projects" {
		t.Errorf("MacProjectsBase = %q, want %q", cfg.MacProjectsBase, "/mac/projects")
	}
}

func TestLoadProjectConfigDefaultsWhenMissing(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".flowforge", "config.json")

	cfg, err := LoadProjectConfig(path, "widgets")
	if err != nil {
		t.Fatalf("LoadProjectConfig returned error: %v", err)
	}
	if cfg.Project.Name != "widgets" {
		t.Errorf("Project.Name = %q, want %q", cfg.Project.Name, "widgets")
	}
	if cfg.Project.MainBranch != "main" {
		t.Errorf("Project.MainBranch = %q, want %q", cfg.Project.MainBranch, "main")
	}
}

func TestSaveThenLoadProjectConfigRoundTrips(t *testing.T) {
	path := ProjectConfigPath(t.TempDir())
	cfg := DefaultProjectConfig("widgets")
	cfg.Project.BuildCommand = "make build"
	cfg.Project.ClaudeFlags = []string{"--dangerously-skip-permissions"}

	if err := SaveProjectConfig(path, cfg); err != nil {
		t.Fatalf("SaveProjectConfig returned error: %v", err)
	}

	loaded, err := LoadProjectConfig(path, "widgets")
	if err != nil {
		t.Fatalf("LoadProjectConfig returned error: %v", err)
	}
	if loaded.Project.BuildCommand != "make build" {
		t.Errorf("Project.BuildCommand = %q, want %q", loaded.Project.BuildCommand, "make build")
	}
	if len(loaded.Project.ClaudeFlags) != 1 || loaded.Project.ClaudeFlags[0] != "--dangerously-skip-permissions" {
		t.Errorf("Project.ClaudeFlags = %v, want one flag", loaded.Project.ClaudeFlags)
	}
}
