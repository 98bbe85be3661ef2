// Package shelltask is a reference implementation of core.Task: a task that
// runs a shell command, content-addresses its declared inputs with
// core.FileScanner and core.ComputeInputVersion, and memoizes results in a
// core.TreeCache. It stands in for the plugin/provider layer that a real
// orchestrator would supply, giving the solver one concrete, testable task
// kind to drive through status and process.
package shelltask

import (
	"context"
	"fmt"
	"path/filepath"

	"graphsolver/internal/core"
)

// Spec declares one shell task's identity, command, and dependency shape.
type Spec struct {
	KindName    string
	TaskName    string
	ForceRun    bool
	WorkingDir  string
	Command     string
	Env         map[string]string
	Inputs      []string
	Outputs     []string
	StatusLimit int
	ProcessLimit int
	StatusDeps  []core.Task
	ProcessDeps []core.Task
}

// Task implements core.Task by shelling out to Spec.Command.
type Task struct {
	spec       Spec
	scanner    core.FileScanner
	cache      core.TreeCache
	normalizer OutputNormalizer
}

// New builds a shelltask.Task. scanner and cache are the external
// collaborators described in SPEC_FULL §7; normalizer may be nil, in which
// case artifact content is cached raw.
func New(spec Spec, scanner core.FileScanner, cache core.TreeCache, normalizer OutputNormalizer) *Task {
	if spec.StatusLimit <= 0 {
		spec.StatusLimit = 1
	}
	if spec.ProcessLimit <= 0 {
		spec.ProcessLimit = 1
	}
	return &Task{spec: spec, scanner: scanner, cache: cache, normalizer: normalizer}
}

func (t *Task) Kind() string                   { return t.spec.KindName }
func (t *Task) Name() string                   { return t.spec.TaskName }
func (t *Task) Force() bool                    { return t.spec.ForceRun }
func (t *Task) StatusConcurrencyLimit() int    { return t.spec.StatusLimit }
func (t *Task) ProcessConcurrencyLimit() int   { return t.spec.ProcessLimit }

func (t *Task) StatusDependencies(ctx context.Context) ([]core.Task, error) {
	return t.spec.StatusDeps, nil
}

func (t *Task) ProcessDependencies(ctx context.Context, status *core.StatusResult) ([]core.Task, error) {
	return t.spec.ProcessDeps, nil
}

// InputVersion combines the declared command/env/outputs config, a content
// hash over Inputs, and the versions of this task's process dependencies.
// Files matching a declared output path are left out of the content hash, so
// running Process does not change the version it cached its result under.
func (t *Task) InputVersion(ctx context.Context) (string, error) {
	tree, err := t.scanner.GetTreeVersion(ctx, core.TreeVersionRequest{
		Root:       t.spec.WorkingDir,
		ConfigPath: "",
		Include:    t.spec.Inputs,
		Exclude:    t.spec.Outputs,
	})
	if err != nil {
		return "", fmt.Errorf("shelltask %s: computing tree version: %w", t.Key(), err)
	}

	depVersions := make([]core.DependencyVersion, 0, len(t.spec.ProcessDeps))
	for _, dep := range t.spec.ProcessDeps {
		v, err := dep.InputVersion(ctx)
		if err != nil {
			return "", fmt.Errorf("shelltask %s: dependency %s version: %w", t.Key(), core.Key(dep), err)
		}
		depVersions = append(depVersions, core.DependencyVersion{Name: core.Key(dep), VersionString: v})
	}

	cfg := core.ModuleConfig{
		"command": t.spec.Command,
		"env":     t.spec.Env,
		"outputs": t.spec.Outputs,
	}
	return core.ComputeInputVersion(cfg, tree.ContentHash, depVersions)
}

// Key mirrors core.Key(t) for error messages without requiring an
// already-constructed core.Task value.
func (t *Task) Key() string { return t.spec.KindName + "." + t.spec.TaskName }

// GetStatus reports StateReady when a cache entry exists for this task's
// current inputVersion, StateNotReady otherwise.
func (t *Task) GetStatus(ctx context.Context, depResults *core.GraphResults) (*core.StatusResult, error) {
	version, err := t.InputVersion(ctx)
	if err != nil {
		return nil, err
	}

	_, hit, err := t.cache.Get(ctx, nil, version)
	if err != nil {
		return nil, fmt.Errorf("shelltask %s: checking cache: %w", t.Key(), err)
	}
	if hit {
		result := core.NewStatusResult(core.StateReady, map[string]any{"inputVersion": version})
		result.CacheInfo = &core.CacheInfo{Key: version, Tags: []string{"kind:" + t.spec.KindName}}
		return result, nil
	}
	return core.NewStatusResult(core.StateNotReady, map[string]any{"inputVersion": version}), nil
}

// Process runs the shell command, harvests declared outputs, and stores the
// result keyed by this task's current inputVersion.
func (t *Task) Process(ctx context.Context, params core.ProcessParams) (*core.ProcessResult, error) {
	version, err := t.InputVersion(ctx)
	if err != nil {
		return nil, err
	}

	exec, err := run(ctx, t.spec.WorkingDir, t.spec.Command, t.spec.Env)
	if err != nil {
		return nil, fmt.Errorf("shelltask %s: %w", t.Key(), err)
	}
	if exec.ExitCode != 0 {
		return nil, fmt.Errorf("shelltask %s: command exited %d: %s", t.Key(), exec.ExitCode, exec.Stderr)
	}

	artifacts, err := harvest(t.spec.WorkingDir, t.spec.Outputs, t.normalizer)
	if err != nil {
		return nil, fmt.Errorf("shelltask %s: harvesting outputs: %w", t.Key(), err)
	}

	payload := encodeArtifacts(artifacts)
	if err := t.cache.Set(ctx, nil, version, payload, []string{"kind:" + t.spec.KindName}); err != nil {
		return nil, fmt.Errorf("shelltask %s: caching result: %w", t.Key(), err)
	}

	outputs := map[string]any{
		"inputVersion": version,
		"exitCode":     exec.ExitCode,
		"stdout":       string(exec.Stdout),
		"artifactCount": len(artifacts),
	}
	result := core.NewProcessResult(core.StateReady, outputs)
	result.CacheInfo = &core.CacheInfo{Key: version, Tags: []string{"kind:" + t.spec.KindName}}
	return result, nil
}

// WorkingDirJoin resolves a task-relative path against the task's working
// directory, mirroring how declared outputs are interpreted during harvest.
func (t *Task) WorkingDirJoin(rel string) string {
	if filepath.IsAbs(rel) {
		return rel
	}
	return filepath.Join(t.spec.WorkingDir, rel)
}
