package rpc

import (
	"context"
	"errors"
	"strings"

	"github.com/flowforge/flowforge/internal/merge"
	"github.com/flowforge/flowforge/internal/registry"
)

func handleListProjects(ctx context.Context, d *Dispatcher, args map[string]any) (Result, error) {
	base := d.cfg.ProjectsBase
	if base == "" {
		return fail("no projects base directory configured", nil)
	}

	res := d.cfg.Transport.Run(ctx, []string{
		"find", base, "-maxdepth", "2", "-name", d.cfg.markerFile(),
	}, "", nil)
	if !res.Succeeded() {
		return fail("failed to enumerate projects: "+res.Stderr, nil)
	}

	var paths []string
	for _, line := range strings.Split(strings.TrimSpace(res.Stdout), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		paths = append(paths, strings.TrimSuffix(line, "/"+d.cfg.markerFile()))
	}
	return ok("", map[string]any{"projects": paths})
}

func handleListFeatures(ctx context.Context, d *Dispatcher, args map[string]any) (Result, error) {
	path, err := stringArg(args, "project")
	if err != nil {
		return Result{}, err
	}
	e, err := d.entry(path)
	if err != nil {
		return Result{}, err
	}

	filter := registry.ListFilter{
		Status: normalizeStatus(optionalString(args, "status")),
		Parent: optionalString(args, "parent"),
		Tag:    optionalString(args, "tag"),
	}
	return ok("", map[string]any{"features": e.registry.List(filter)})
}

func handleStatus(ctx context.Context, d *Dispatcher, args map[string]any) (Result, error) {
	path, err := stringArg(args, "project")
	if err != nil {
		return Result{}, err
	}
	featureID, err := stringArg(args, "id")
	if err != nil {
		return Result{}, err
	}
	e, err := d.entry(path)
	if err != nil {
		return Result{}, err
	}

	f, err := e.registry.Get(featureID)
	if err != nil {
		return fail(err.Error(), nil)
	}

	wsStatus, err := e.workspaces.Status(ctx, featureID)
	if err != nil {
		return fail(err.Error(), nil)
	}

	return ok("", map[string]any{
		"feature":   f,
		"workspace": wsStatus,
		"history":   e.executor.History(featureID),
	})
}

func handleStartFeature(ctx context.Context, d *Dispatcher, args map[string]any) (Result, error) {
	path, err := stringArg(args, "project")
	if err != nil {
		return Result{}, err
	}
	featureID, err := stringArg(args, "id")
	if err != nil {
		return Result{}, err
	}
	spec := optionalString(args, "spec")
	baseBranch := optionalString(args, "base_branch")
	if baseBranch == "" {
		baseBranch = d.cfg.trunkBranch()
	}

	e, err := d.entry(path)
	if err != nil {
		return Result{}, err
	}

	if _, err := e.registry.Get(featureID); err != nil {
		return fail(err.Error(), nil)
	}

	wsPath, branch, err := e.workspaces.Create(ctx, featureID, baseBranch)
	if err != nil {
		return fail("create workspace: "+err.Error(), nil)
	}

	status := registry.StatusInProgress
	if _, err := e.registry.Update(featureID, registry.Patch{
		Status:        &status,
		Branch:        &branch,
		WorkspacePath: &wsPath,
	}); err != nil {
		return fail("update registry: "+err.Error(), nil)
	}

	progress := e.executor.ExecuteFeature(ctx, featureID, spec, path, baseBranch)
	go func() {
		for range progress {
		}
	}()

	return ok("feature started", map[string]any{
		"id":             featureID,
		"branch":         branch,
		"workspace_path": wsPath,
	})
}

func handleStopFeature(ctx context.Context, d *Dispatcher, args map[string]any) (Result, error) {
	path, err := stringArg(args, "project")
	if err != nil {
		return Result{}, err
	}
	featureID, err := stringArg(args, "id")
	if err != nil {
		return Result{}, err
	}
	e, err := d.entry(path)
	if err != nil {
		return Result{}, err
	}

	// Cancel is best-effort: the feature may already have finished
	// (nothing active or queued to cancel), which is not an error here.
	_ = e.executor.Cancel(featureID)

	status := registry.StatusReview
	f, err := e.registry.Update(featureID, registry.Patch{Status: &status})
	if err != nil {
		return fail(err.Error(), nil)
	}
	return ok("feature stopped", map[string]any{"feature": f})
}

func handleMergeCheck(ctx context.Context, d *Dispatcher, args map[string]any) (Result, error) {
	path, err := stringArg(args, "project")
	if err != nil {
		return Result{}, err
	}
	e, err := d.entry(path)
	if err != nil {
		return Result{}, err
	}

	if id := optionalString(args, "id"); id != "" {
		check, err := e.merge.CheckConflicts(ctx, id)
		if err != nil {
			return fail(err.Error(), nil)
		}
		return ok("", map[string]any{"id": id, "check": check})
	}

	order, orderErr := e.merge.ComputeMergeOrder()
	results := map[string]merge.ConflictCheck{}
	for _, id := range order {
		check, err := e.merge.CheckConflicts(ctx, id)
		if err != nil {
			return fail(err.Error(), nil)
		}
		results[id] = check
	}
	data := map[string]any{"order": order, "checks": results}
	if orderErr != nil {
		return fail(orderErr.Error(), data)
	}
	return ok("", data)
}

func handleMerge(ctx context.Context, d *Dispatcher, args map[string]any) (Result, error) {
	path, err := stringArg(args, "project")
	if err != nil {
		return Result{}, err
	}
	e, err := d.entry(path)
	if err != nil {
		return Result{}, err
	}
	validate := optionalBool(args, "validate")
	autoCleanup := !optionalBool(args, "no_cleanup")

	defer d.invalidate(path)

	if optionalBool(args, "all") {
		results, err := e.merge.MergeAllSafe(ctx, validate)
		if err != nil {
			return fail(err.Error(), map[string]any{"results": results})
		}
		return ok("", map[string]any{"results": results})
	}

	id, err := stringArg(args, "id")
	if err != nil {
		return Result{}, err
	}
	res, err := e.merge.Merge(ctx, id, validate, autoCleanup)
	if err != nil {
		if errors.Is(err, merge.ErrConflicts) || errors.Is(err, merge.ErrValidationFailed) || errors.Is(err, merge.ErrNotReview) {
			return fail(err.Error(), map[string]any{"result": res})
		}
		return Result{}, err
	}
	return ok("merged", map[string]any{"result": res})
}

func handleAddFeature(ctx context.Context, d *Dispatcher, args map[string]any) (Result, error) {
	path, err := stringArg(args, "project")
	if err != nil {
		return Result{}, err
	}
	title, err := stringArg(args, "title")
	if err != nil {
		return Result{}, err
	}
	e, err := d.entry(path)
	if err != nil {
		return Result{}, err
	}

	in := registry.AddInput{
		Title:       title,
		Description: optionalString(args, "description"),
		Priority:    optionalInt(args, "priority"),
		Complexity:  registry.Complexity(optionalString(args, "complexity")),
		ParentID:    optionalString(args, "parent_id"),
		DependsOn:   optionalStringSlice(args, "depends_on"),
		Tags:        optionalStringSlice(args, "tags"),
	}

	f, err := e.registry.Add(in)
	if err != nil {
		var capErr *registry.PlannedCapError
		if errors.As(err, &capErr) {
			return fail("planned feature cap exceeded", map[string]any{
				"constraint":     "max_planned_features",
				"limit":          capErr.Limit,
				"planned_titles": capErr.PlannedTitles,
			})
		}
		return fail(err.Error(), nil)
	}
	return ok("feature added", map[string]any{"feature": f})
}

func handleUpdateFeature(ctx context.Context, d *Dispatcher, args map[string]any) (Result, error) {
	path, err := stringArg(args, "project")
	if err != nil {
		return Result{}, err
	}
	featureID, err := stringArg(args, "id")
	if err != nil {
		return Result{}, err
	}
	e, err := d.entry(path)
	if err != nil {
		return Result{}, err
	}

	patch := registry.Patch{}
	if v, ok := args["title"].(string); ok {
		patch.Title = &v
	}
	if v, ok := args["description"].(string); ok {
		patch.Description = &v
	}
	if v, ok := args["status"].(string); ok {
		status := normalizeStatus(v)
		patch.Status = &status
	}
	if v, ok := args["priority"]; ok {
		p := optionalInt(map[string]any{"priority": v}, "priority")
		patch.Priority = &p
	}
	if _, ok := args["tags"]; ok {
		tags := optionalStringSlice(args, "tags")
		patch.Tags = &tags
	}
	if _, ok := args["depends_on"]; ok {
		deps := optionalStringSlice(args, "depends_on")
		patch.DependsOn = &deps
	}

	f, err := e.registry.Update(featureID, patch)
	if err != nil {
		return fail(err.Error(), nil)
	}
	return ok("feature updated", map[string]any{"feature": f})
}

func handleDeleteFeature(ctx context.Context, d *Dispatcher, args map[string]any) (Result, error) {
	path, err := stringArg(args, "project")
	if err != nil {
		return Result{}, err
	}
	featureID, err := stringArg(args, "id")
	if err != nil {
		return Result{}, err
	}
	e, err := d.entry(path)
	if err != nil {
		return Result{}, err
	}

	force := optionalBool(args, "force")
	if err := e.registry.Remove(featureID, force); err != nil {
		return fail(err.Error(), nil)
	}
	return ok("feature deleted", nil)
}
