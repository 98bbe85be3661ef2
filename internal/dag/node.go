// Package dag implements the three TaskNode variants (Request, Status,
// Process) and the GraphSolver cooperative scheduler that drives them. This
// is a tagged-variant translation of an inheritance hierarchy: Node is the
// shared behavior interface, and each variant supplies its own Dependencies/
// Execute while sharing completion, dependant tracking, and idempotence
// through baseNode.
package dag

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"graphsolver/internal/core"
)

// ExecuteResult is what a node's Execute returns on success: the raw task
// outcome, whether a Process node actually ran its body (vs. short-
// circuited), and the dependency results view used for that execution.
type ExecuteResult struct {
	Outcome           *core.Outcome
	DidRun            bool
	DependencyResults *core.GraphResults
}

// CompleteParams carries everything baseNode.Complete needs to build a
// GraphResult.
type CompleteParams struct {
	StartedAt         time.Time
	CompletedAt       time.Time
	Outcome           *core.Outcome
	DependencyResults *core.GraphResults
	DidRun            bool
	Error             error
	Aborted           bool
	InputVersion      string
	// Type overrides the GraphResult's reported variant; zero value means
	// "use the node's own variant" (the case for Status/Process nodes).
	// RequestNode always supplies this, since a Request's batch-visible
	// result must report the variant of what it actually resolved to
	// (Process, or Status for a statusOnly request), never NodeRequest
	// itself. See RequestNode.Complete.
	Type core.NodeType
}

// Node is the shared behavior interface for Request, Status, and Process
// nodes. Request does not participate in Execute; see RequestNode.Execute.
type Node interface {
	Key() string
	Variant() core.NodeType
	Task() core.Task
	Dependencies(ctx context.Context) ([]Node, error)
	RemainingDependencies(ctx context.Context) ([]Node, error)
	DependencyResults(ctx context.Context) (*core.GraphResults, error)
	AddDependant(n Node)
	Result() *core.GraphResult
	Complete(params CompleteParams) *core.GraphResult
	Execute(ctx context.Context) (*ExecuteResult, error)
	ConcurrencyGroup() string
	ConcurrencyLimit() int
}

// baseNode implements everything common to all three variants: identity,
// dependant tracking, idempotent completion, and the abort cascade.
// Dependants are held as a map of Node values, never as owning references —
// a node's lifetime is governed entirely by the solver's node arena.
type baseNode struct {
	mu         sync.Mutex
	key        string
	task       core.Task
	variant    core.NodeType
	dependants map[string]Node
	result     *core.GraphResult
	log        *slog.Logger
}

func newBaseNode(key string, task core.Task, variant core.NodeType, log *slog.Logger) baseNode {
	return baseNode{key: key, task: task, variant: variant, dependants: make(map[string]Node), log: log}
}

func (n *baseNode) Key() string            { return n.key }
func (n *baseNode) Variant() core.NodeType { return n.variant }
func (n *baseNode) Task() core.Task        { return n.task }

func (n *baseNode) Result() *core.GraphResult {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.result
}

// AddDependant records d as depending on n's completion. Idempotent by key.
// Dependants are frequently discovered lazily, only once their own earlier
// dependencies resolve — so n may already have finished (successfully or
// not) by the time d registers. When n already failed, d is propagated the
// same failure cascadeAbort would have given it had it registered in time.
func (n *baseNode) AddDependant(d Node) {
	n.mu.Lock()
	if _, ok := n.dependants[d.Key()]; ok {
		n.mu.Unlock()
		return
	}
	n.dependants[d.Key()] = d
	result := n.result
	task := n.task
	key := n.key
	n.mu.Unlock()

	if result != nil && !result.Success {
		propagateFailure(key, task, result, d)
	}
}

// Complete is idempotent: the first call builds and stores the GraphResult
// and (on failure) cascades to dependants; later calls return the stored
// result unchanged. The idempotence check below (n.result != nil) is also
// what gives the spec's "each aborted key logged once" guarantee for free: a
// node reached via more than one dependency path only ever runs this body —
// and therefore only ever logs — on the first of those paths to arrive.
func (n *baseNode) Complete(params CompleteParams) *core.GraphResult {
	n.mu.Lock()
	if n.result != nil {
		existing := n.result
		n.mu.Unlock()
		return existing
	}

	resultType := n.variant
	if params.Type != "" {
		resultType = params.Type
	}

	success := params.Error == nil && !params.Aborted
	result := &core.GraphResult{
		Type:              resultType,
		Description:       n.key,
		Key:               n.key,
		Name:              n.task.Name(),
		DependencyResults: params.DependencyResults,
		Aborted:           params.Aborted,
		StartedAt:         params.StartedAt,
		CompletedAt:       params.CompletedAt,
		Error:             params.Error,
		InputVersion:      params.InputVersion,
		Success:           success,
		Processed:         resultType == core.NodeProcess,
	}
	if params.Outcome != nil {
		result.Outcome = params.Outcome
		result.Outputs = params.Outcome.Outputs
		result.CacheInfo = params.Outcome.CacheInfo
		result.Attached = params.Outcome.Attached
		result.RunReason = params.Outcome.RunReason
	}
	result.DidRun = params.DidRun

	n.result = result
	dependants := make([]Node, 0, len(n.dependants))
	for _, d := range n.dependants {
		dependants = append(dependants, d)
	}
	log := n.log
	n.mu.Unlock()

	if !success {
		if params.Aborted && log != nil {
			log.Debug("graphsolver: node aborted", "node", n.key)
		}
		n.cascadeAbort(dependants, result)
	}

	return result
}

// cascadeAbort propagates a failure to every dependant registered so far.
// Dependants registered afterward go through the same propagateFailure path
// from AddDependant instead.
func (n *baseNode) cascadeAbort(dependants []Node, result *core.GraphResult) {
	for _, d := range dependants {
		propagateFailure(n.key, n.task, result, d)
	}
}

// propagateFailure completes d as the result of sourceTask/sourceKey having
// finished with result: a dependant that is the Request node for the same
// task and the failure is a real error (not already an abort) receives the
// wrapped original error; everything else is marked aborted with no error.
func propagateFailure(sourceKey string, sourceTask core.Task, result *core.GraphResult, d Node) {
	if result.Error != nil && isRequestForTask(d, sourceTask) {
		d.Complete(CompleteParams{
			StartedAt:   result.StartedAt,
			CompletedAt: result.CompletedAt,
			Error:       core.NewGraphNodeError(sourceKey, result.Error),
			Aborted:     false,
		})
		return
	}
	d.Complete(CompleteParams{
		StartedAt:   result.StartedAt,
		CompletedAt: result.CompletedAt,
		Aborted:     true,
	})
}

func isRequestForTask(n Node, task core.Task) bool {
	rn, ok := n.(*RequestNode)
	return ok && core.Key(rn.Task()) == core.Key(task)
}

// dependencyResultsFor builds a core.GraphResults keyed by the *tasks* that
// deps represent (not the internal node keys), populated with whatever
// results are already available.
func dependencyResultsFor(deps []Node) *core.GraphResults {
	tasks := make([]core.Task, 0, len(deps))
	for _, d := range deps {
		tasks = append(tasks, d.Task())
	}
	results := core.NewGraphResults(tasks)
	for _, d := range deps {
		if r := d.Result(); r != nil {
			_ = results.SetResult(d.Task(), r)
		}
	}
	return results
}

func remainingOf(deps []Node) []Node {
	var remaining []Node
	for _, d := range deps {
		if d.Result() == nil {
			remaining = append(remaining, d)
		}
	}
	return remaining
}
