package dag

import (
	"context"
	"sync"

	"graphsolver/internal/core"
)

// RequestNode is the batch's public face for one requested task: it never
// runs a task body itself, it only waits on the task's Status node (for a
// status-only request) or Process node (for a full request) and forwards
// that result to whoever called Solve, exactly once.
type RequestNode struct {
	baseNode
	solver          *Solver
	statusOnly      bool
	completeHandler func(*core.GraphResult)
	handlerOnce     sync.Once
}

func newRequestNode(key string, task core.Task, solver *Solver, statusOnly bool, handler func(*core.GraphResult)) *RequestNode {
	b := newBaseNode(key, task, core.NodeRequest, solver.log)
	return &RequestNode{baseNode: b, solver: solver, statusOnly: statusOnly, completeHandler: handler}
}

func (n *RequestNode) Dependencies(ctx context.Context) ([]Node, error) {
	if n.statusOnly {
		return []Node{n.solver.getOrCreateStatus(n.task)}, nil
	}
	return []Node{n.solver.getOrCreateProcess(n.task)}, nil
}

func (n *RequestNode) RemainingDependencies(ctx context.Context) ([]Node, error) {
	deps, err := n.Dependencies(ctx)
	if err != nil {
		return nil, err
	}
	return remainingOf(deps), nil
}

func (n *RequestNode) DependencyResults(ctx context.Context) (*core.GraphResults, error) {
	deps, err := n.Dependencies(ctx)
	if err != nil {
		return nil, err
	}
	return dependencyResultsFor(deps), nil
}

// ConcurrencyGroup and ConcurrencyLimit are nominal: a Request node is never
// itself admitted into execution (see evaluateRequests, which resolves it
// directly from its dependency's result), but it must satisfy Node.
func (n *RequestNode) ConcurrencyGroup() string { return "request" }
func (n *RequestNode) ConcurrencyLimit() int    { return n.solver.hardConcurrencyLimit }

// Execute is never called on a Request node by the solver loop; it exists
// only to satisfy Node.
func (n *RequestNode) Execute(ctx context.Context) (*ExecuteResult, error) {
	return nil, core.NewGraphError(core.ErrorInternal, "request node has no execution body: "+n.key, nil)
}

// Complete overrides baseNode.Complete to invoke completeHandler exactly
// once, after the underlying result has been recorded. A Request's own
// variant (core.NodeRequest) never appears in a batch-visible GraphResult:
// the Request node is just the solver's internal bookkeeping for "the
// caller wants this task's Process (or Status, if statusOnly) result," so
// the result it publishes always reports the variant of what was actually
// resolved for the caller, regardless of which path (short-circuit or real
// execution) produced it.
func (n *RequestNode) Complete(params CompleteParams) *core.GraphResult {
	if n.statusOnly {
		params.Type = core.NodeStatus
	} else {
		params.Type = core.NodeProcess
	}
	result := n.baseNode.Complete(params)
	n.handlerOnce.Do(func() {
		if n.completeHandler != nil {
			n.completeHandler(result)
		}
	})
	return result
}
