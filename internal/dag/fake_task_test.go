package dag

import (
	"context"

	"graphsolver/internal/core"
)

// fakeTask is a minimal, fully-scriptable core.Task for exercising the
// solver without a real task implementation (shelltask exists for that;
// these tests isolate scheduling behavior from shell execution).
type fakeTask struct {
	kind         string
	name         string
	force        bool
	version      string
	statusLimit  int
	processLimit int
	statusDeps   []core.Task
	processDeps  []core.Task

	status  func(ctx context.Context, deps *core.GraphResults) (*core.StatusResult, error)
	process func(ctx context.Context, params core.ProcessParams) (*core.ProcessResult, error)
}

func (t *fakeTask) Kind() string { return t.kind }
func (t *fakeTask) Name() string { return t.name }
func (t *fakeTask) Force() bool  { return t.force }

func (t *fakeTask) InputVersion(ctx context.Context) (string, error) {
	return t.version, nil
}

func (t *fakeTask) StatusConcurrencyLimit() int {
	if t.statusLimit <= 0 {
		return 1
	}
	return t.statusLimit
}

func (t *fakeTask) ProcessConcurrencyLimit() int {
	if t.processLimit <= 0 {
		return 1
	}
	return t.processLimit
}

func (t *fakeTask) StatusDependencies(ctx context.Context) ([]core.Task, error) {
	return t.statusDeps, nil
}

func (t *fakeTask) ProcessDependencies(ctx context.Context, status *core.StatusResult) ([]core.Task, error) {
	return t.processDeps, nil
}

func (t *fakeTask) GetStatus(ctx context.Context, deps *core.GraphResults) (*core.StatusResult, error) {
	if t.status != nil {
		return t.status(ctx, deps)
	}
	return core.NewStatusResult(core.StateNotReady, nil), nil
}

func (t *fakeTask) Process(ctx context.Context, params core.ProcessParams) (*core.ProcessResult, error) {
	if t.process != nil {
		return t.process(ctx, params)
	}
	return core.NewProcessResult(core.StateReady, nil), nil
}
