package dag

import (
	"context"

	"graphsolver/internal/core"
)

// ProcessNode wraps Task.Process. It depends first on its own task's Status
// node (it cannot decide whether to run without a status), and once that
// resolves, on the Process nodes of the task's process dependencies.
type ProcessNode struct {
	baseNode
	solver *Solver
}

func newProcessNode(key string, task core.Task, solver *Solver) *ProcessNode {
	b := newBaseNode(key, task, core.NodeProcess, solver.log)
	return &ProcessNode{baseNode: b, solver: solver}
}

func (n *ProcessNode) statusNode() *StatusNode {
	return n.solver.getOrCreateStatus(n.task)
}

func (n *ProcessNode) Dependencies(ctx context.Context) ([]Node, error) {
	status := n.statusNode()
	if status.Result() == nil {
		return []Node{status}, nil
	}
	deps, err := n.task.ProcessDependencies(ctx, statusResultOf(status.Result()))
	if err != nil {
		return nil, err
	}
	nodes := make([]Node, 0, len(deps))
	for _, dep := range deps {
		nodes = append(nodes, n.solver.getOrCreateProcess(dep))
	}
	return nodes, nil
}

func (n *ProcessNode) RemainingDependencies(ctx context.Context) ([]Node, error) {
	deps, err := n.Dependencies(ctx)
	if err != nil {
		return nil, err
	}
	return remainingOf(deps), nil
}

func (n *ProcessNode) DependencyResults(ctx context.Context) (*core.GraphResults, error) {
	deps, err := n.Dependencies(ctx)
	if err != nil {
		return nil, err
	}
	return dependencyResultsFor(deps), nil
}

func (n *ProcessNode) ConcurrencyGroup() string {
	return "process-" + n.task.Kind() + "-" + itoa(n.task.ProcessConcurrencyLimit())
}

func (n *ProcessNode) ConcurrencyLimit() int {
	return n.task.ProcessConcurrencyLimit()
}

// statusResultOf reconstructs a *core.StatusResult from a completed status
// node's GraphResult. The solver never calls Execute on a ProcessNode before
// its status dependency has a result, so Outcome is always non-nil here.
func statusResultOf(r *core.GraphResult) *core.StatusResult {
	if r == nil || r.Outcome == nil {
		return &core.StatusResult{Outcome: core.Outcome{State: core.StateUnknown}}
	}
	return &core.StatusResult{Outcome: *r.Outcome}
}

func (n *ProcessNode) Execute(ctx context.Context) (*ExecuteResult, error) {
	statusResult := n.statusNode().Result()
	if statusResult == nil {
		return nil, core.NewGraphError(core.ErrorInternal, "process node executed before its status resolved: "+n.key, nil)
	}
	status := statusResultOf(statusResult)

	if !n.task.Force() && status.State == core.StateReady {
		outcome := status.Outcome
		return &ExecuteResult{Outcome: &outcome, DidRun: false}, nil
	}

	depResults, err := n.DependencyResults(ctx)
	if err != nil {
		return nil, err
	}

	processed, err := n.task.Process(ctx, core.ProcessParams{
		Status:            status,
		DependencyResults: depResults,
		StatusOnly:        false,
	})
	if err != nil {
		return nil, classifyTaskError(err)
	}

	if processed.CacheInfo == nil {
		processed.CacheInfo = status.CacheInfo
	}
	processed.DidRun = true
	return &ExecuteResult{Outcome: &processed.Outcome, DidRun: true, DependencyResults: depResults}, nil
}
