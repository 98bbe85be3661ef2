package dag

import (
	"context"

	"graphsolver/internal/core"
)

// StatusNode wraps Task.GetStatus. Its dependencies are deliberately the
// Process nodes of the task's status dependencies, not their Status nodes:
// a status check needs to see whether its dependencies actually ran, so it
// can decide whether its own cached status is still trustworthy.
type StatusNode struct {
	baseNode
	solver *Solver
}

func newStatusNode(key string, task core.Task, solver *Solver) *StatusNode {
	b := newBaseNode(key, task, core.NodeStatus, solver.log)
	return &StatusNode{baseNode: b, solver: solver}
}

func (n *StatusNode) Dependencies(ctx context.Context) ([]Node, error) {
	deps, err := n.task.StatusDependencies(ctx)
	if err != nil {
		return nil, err
	}
	nodes := make([]Node, 0, len(deps))
	for _, dep := range deps {
		nodes = append(nodes, n.solver.getOrCreateProcess(dep))
	}
	return nodes, nil
}

func (n *StatusNode) RemainingDependencies(ctx context.Context) ([]Node, error) {
	deps, err := n.Dependencies(ctx)
	if err != nil {
		return nil, err
	}
	return remainingOf(deps), nil
}

func (n *StatusNode) DependencyResults(ctx context.Context) (*core.GraphResults, error) {
	deps, err := n.Dependencies(ctx)
	if err != nil {
		return nil, err
	}
	return dependencyResultsFor(deps), nil
}

// ConcurrencyGroup intentionally keys on the task's process concurrency
// limit, not its status limit: a burst of status checks for tasks sharing a
// process pool is throttled together so process dispatch for the same pool
// isn't starved once those tasks move on to Process nodes.
func (n *StatusNode) ConcurrencyGroup() string {
	return "status-" + n.task.Kind() + "-" + itoa(n.task.ProcessConcurrencyLimit())
}

func (n *StatusNode) ConcurrencyLimit() int {
	return n.task.StatusConcurrencyLimit()
}

func (n *StatusNode) Execute(ctx context.Context) (*ExecuteResult, error) {
	depResults, err := n.DependencyResults(ctx)
	if err != nil {
		return nil, err
	}
	status, err := n.task.GetStatus(ctx, depResults)
	if err != nil {
		return nil, classifyTaskError(err)
	}
	return &ExecuteResult{Outcome: &status.Outcome, DependencyResults: depResults}, nil
}
