package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/flowforge/flowforge/internal/config"
)

var (
	verbose    bool
	output     string
	cfgFile    string
	sshHost    string
	sshUser    string
	sshPort    int
	sshKeyFile string

	cliCfg *config.CLIConfig
	logger *slog.Logger
)

// rootCmd is the base command when flowforge is called without a
// subcommand.
var rootCmd = &cobra.Command{
	Use:   "flowforge",
	Short: "FlowForge parallel feature development orchestrator",
	Long: `flowforge drives several Claude coding agents at once, each in its
own git worktree, against a shared feature registry.

Core Commands:
  projects        List known projects
  features        List a project's features
  add-feature     Queue a new feature
  start-feature   Launch an agent on a feature
  stop-feature    Send a feature to review
  merge           Merge a feature's branch back to main
  sync            Run one offline-cache drain cycle now
  serve           Run the health probe and sync loop continuously
  brainstorm      Hold a tool-less chat with the assistant`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return initConfigAndLogger()
	},
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVarP(&output, "output", "o", "", "Output format: table, or json (any other value also prints JSON)")
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "CLI preferences file read after ~/.flowforge/config.yaml (default: <cwd>/.flowforge/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&sshHost, "ssh-host", "", "Workstation hostname; empty runs commands on this machine")
	rootCmd.PersistentFlags().StringVar(&sshUser, "ssh-user", "", "Workstation SSH user")
	rootCmd.PersistentFlags().IntVar(&sshPort, "ssh-port", 22, "Workstation SSH port")
	rootCmd.PersistentFlags().StringVar(&sshKeyFile, "ssh-key", "", "Path to an SSH private key for the workstation transport")
}

func initConfigAndLogger() error {
	if strings.TrimSpace(cfgFile) != "" {
		_ = os.Setenv("FLOWFORGE_CONFIG", cfgFile)
	}

	flagOverrides := &config.CLIConfig{Output: output, Verbose: verbose}
	cfg, err := config.LoadCLIConfig(flagOverrides)
	if err != nil {
		return fmt.Errorf("load CLI config: %w", err)
	}
	cliCfg = cfg

	level := slog.LevelInfo
	if cliCfg.Verbose {
		level = slog.LevelDebug
	}
	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	return nil
}
