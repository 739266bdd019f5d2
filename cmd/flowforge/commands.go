package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/flowforge/flowforge/internal/formatter"
	"github.com/flowforge/flowforge/internal/registry"
	"github.com/flowforge/flowforge/internal/rpc"
)

// printResult renders a dispatcher Result either as indented JSON or, for
// the list-shaped results, as a table — whichever --output asked for.
func printResult(res rpc.Result) error {
	if outputFormat() == "table" {
		if data, ok := res.Data.(map[string]any); ok {
			if features, ok := data["features"].([]*registry.Feature); ok {
				return printFeatureTable(features)
			}
			if projects, ok := data["projects"].([]string); ok {
				return printProjectTable(projects)
			}
		}
	}
	enc, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(enc))
	return nil
}

func outputFormat() string {
	if cliCfg != nil && cliCfg.Output != "" {
		return cliCfg.Output
	}
	return "table"
}

func printFeatureTable(features []*registry.Feature) error {
	tbl := formatter.NewTable(os.Stdout, "ID", "TITLE", "STATUS", "PRIORITY", "BRANCH")
	tbl.SetMaxWidth(1, 40)
	for _, f := range features {
		tbl.AddRow(f.ID, f.Title, string(f.Status), fmt.Sprintf("%d", f.Priority), f.Branch)
	}
	return tbl.Render()
}

func printProjectTable(projects []string) error {
	tbl := formatter.NewTable(os.Stdout, "PATH")
	for _, p := range projects {
		tbl.AddRow(p)
	}
	return tbl.Render()
}

func withDispatcher(run func(deps *dispatcherDeps) error) error {
	deps, err := buildDispatcher()
	if err != nil {
		return err
	}
	defer deps.close()
	return run(deps)
}

var projectsCmd = &cobra.Command{
	Use:   "projects",
	Short: "List known projects",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDispatcher(func(deps *dispatcherDeps) error {
			res, err := deps.dispatcher.Dispatch(cmd.Context(), "list_projects", map[string]any{})
			if err != nil {
				return err
			}
			return printResult(res)
		})
	},
}

var featuresCmd = &cobra.Command{
	Use:   "features [project]",
	Short: "List a project's features",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := projectPath(firstArg(args))
		if err != nil {
			return err
		}
		return withDispatcher(func(deps *dispatcherDeps) error {
			res, err := deps.dispatcher.Dispatch(cmd.Context(), "list_features", map[string]any{"project": path})
			if err != nil {
				return err
			}
			return printResult(res)
		})
	},
}

var (
	addFeatureDescription string
	addFeaturePriority    int
	addFeatureTags        []string
	addFeatureParent      string
)

var addFeatureCmd = &cobra.Command{
	Use:   "add-feature <title>",
	Short: "Queue a new feature",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := projectPath("")
		if err != nil {
			return err
		}
		callArgs := map[string]any{
			"project":     path,
			"title":       args[0],
			"description": addFeatureDescription,
			"priority":    addFeaturePriority,
			"tags":        addFeatureTags,
		}
		if addFeatureParent != "" {
			callArgs["parent_id"] = addFeatureParent
		}
		return withDispatcher(func(deps *dispatcherDeps) error {
			res, err := deps.dispatcher.Dispatch(cmd.Context(), "add_feature", callArgs)
			if err != nil {
				return err
			}
			return printResult(res)
		})
	},
}

var startFeatureCmd = &cobra.Command{
	Use:   "start-feature <id>",
	Short: "Launch an agent on a feature",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := projectPath("")
		if err != nil {
			return err
		}
		return withDispatcher(func(deps *dispatcherDeps) error {
			res, err := deps.dispatcher.Dispatch(cmd.Context(), "start_feature", map[string]any{"project": path, "id": args[0]})
			if err != nil {
				return err
			}
			return printResult(res)
		})
	},
}

var stopFeatureCmd = &cobra.Command{
	Use:   "stop-feature <id>",
	Short: "Send a feature to review",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := projectPath("")
		if err != nil {
			return err
		}
		return withDispatcher(func(deps *dispatcherDeps) error {
			res, err := deps.dispatcher.Dispatch(cmd.Context(), "stop_feature", map[string]any{"project": path, "id": args[0]})
			if err != nil {
				return err
			}
			return printResult(res)
		})
	},
}

var (
	mergeValidate bool
	mergeAll      bool
	mergeNoClean  bool
)

var mergeCmd = &cobra.Command{
	Use:   "merge [id]",
	Short: "Merge a feature's branch back to main",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := projectPath("")
		if err != nil {
			return err
		}
		callArgs := map[string]any{
			"project":    path,
			"validate":   mergeValidate,
			"no_cleanup": mergeNoClean,
		}
		if mergeAll {
			callArgs["all"] = true
		} else {
			if len(args) != 1 {
				return fmt.Errorf("merge requires a feature id, or --all")
			}
			callArgs["id"] = args[0]
		}
		return withDispatcher(func(deps *dispatcherDeps) error {
			res, err := deps.dispatcher.Dispatch(cmd.Context(), "merge", callArgs)
			if err != nil {
				return err
			}
			return printResult(res)
		})
	},
}

func firstArg(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[0]
}

func init() {
	addFeatureCmd.Flags().StringVar(&addFeatureDescription, "description", "", "Feature description")
	addFeatureCmd.Flags().IntVar(&addFeaturePriority, "priority", 3, "Feature priority (1-5)")
	addFeatureCmd.Flags().StringSliceVar(&addFeatureTags, "tag", nil, "Feature tag (repeatable)")
	addFeatureCmd.Flags().StringVar(&addFeatureParent, "parent", "", "Parent feature id")

	mergeCmd.Flags().BoolVar(&mergeValidate, "validate", false, "Run the project's build/test command before merging")
	mergeCmd.Flags().BoolVar(&mergeAll, "all", false, "Merge every feature in review, in dependency order")
	mergeCmd.Flags().BoolVar(&mergeNoClean, "no-cleanup", false, "Keep the worktree and branch after a successful merge")

	rootCmd.AddCommand(projectsCmd, featuresCmd, addFeatureCmd, startFeatureCmd, stopFeatureCmd, mergeCmd, syncCmd, serveCmd)
}
