package dag

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"graphsolver/internal/core"
	"graphsolver/internal/events"
	"graphsolver/internal/graph"

	"golang.org/x/sync/errgroup"
)

// GraphSolverConfig is the constructor-time option struct that replaces
// process-wide environment parsing (spec.md §9 Design Notes): a single,
// explicitly enumerated field rather than ad-hoc os.Getenv calls scattered
// through the scheduler.
type GraphSolverConfig struct {
	// HardConcurrencyLimit bounds total in-flight nodes across every
	// concurrency group. Zero means "use the default" (see obs.DefaultHardConcurrencyLimit).
	HardConcurrencyLimit uint16
}

// Option configures a Solver at construction time.
type Option func(*Solver)

// WithLogger overrides the solver's diagnostic logger (default: slog.Default()).
func WithLogger(log *slog.Logger) Option {
	return func(s *Solver) { s.log = log }
}

// WithClock overrides the solver's time source. Tests use this to freeze
// startedAt/completedAt for deterministic assertions (spec.md §8, S1).
func WithClock(now func() time.Time) Option {
	return func(s *Solver) { s.now = now }
}

// Solver is the single-threaded cooperative scheduler (spec.md §4.E): it
// owns every Status/Process node ever created in its lifetime, lazily
// expands the dependency DAG of a batch's requests, and enforces per-group
// and hard concurrency caps while dispatching admitted nodes concurrently.
//
// The solve lock (mu) serializes whole batches; everything else here is
// mutated only from the cooperative loop or a node's Complete callback,
// both of which run on the loop's single logical thread of control, so
// nodesMu exists only to let the async dispatch goroutines observe/update
// inProgress/pendingNodes/nodes safely, not to allow concurrent solving.
type Solver struct {
	mu sync.Mutex

	nodesMu        sync.Mutex
	nodes          map[string]Node
	pendingNodes   map[string]Node
	inProgress     map[string]Node
	inLoop         bool
	loopDirty      bool
	requestedTasks map[string]map[string]*RequestNode
	activeBatch    string

	hardConcurrencyLimit int
	bus                  *events.Bus
	log                  *slog.Logger
	now                  func() time.Time
}

// NewSolver constructs a Solver. A zero HardConcurrencyLimit falls back to
// the package default (50, see obs.DefaultHardConcurrencyLimit — callers
// typically pass obs.ConcurrencyLimitFromEnv() here).
func NewSolver(cfg GraphSolverConfig, opts ...Option) *Solver {
	limit := int(cfg.HardConcurrencyLimit)
	if limit <= 0 {
		limit = 50
	}
	s := &Solver{
		nodes:                make(map[string]Node),
		pendingNodes:         make(map[string]Node),
		inProgress:           make(map[string]Node),
		requestedTasks:       make(map[string]map[string]*RequestNode),
		hardConcurrencyLimit: limit,
		bus:                  events.NewBus(),
		log:                  slog.Default(),
		now:                  time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Events exposes the solver's event bus for observation (tests, UI).
func (s *Solver) Events() *events.Bus { return s.bus }

// ClearCache is intentionally a no-op. spec.md §9 Design Notes, open
// question 2: the source carries an empty clearCache() method; this
// preserves that signature rather than guessing at behavior never observed.
func (s *Solver) ClearCache() {}

func (s *Solver) getOrCreateStatus(task core.Task) *StatusNode {
	key := core.Key(task) + ":status"
	s.nodesMu.Lock()
	defer s.nodesMu.Unlock()
	if n, ok := s.nodes[key]; ok {
		return n.(*StatusNode)
	}
	n := newStatusNode(key, task, s)
	s.nodes[key] = n
	return n
}

func (s *Solver) getOrCreateProcess(task core.Task) *ProcessNode {
	key := core.Key(task) + ":process"
	s.nodesMu.Lock()
	defer s.nodesMu.Unlock()
	if n, ok := s.nodes[key]; ok {
		return n.(*ProcessNode)
	}
	n := newProcessNode(key, task, s)
	s.nodes[key] = n
	return n
}

// ensurePendingNode is the first-time insertion of a node into pendingNodes;
// it always registers dependant as the node's dependant, idempotently.
func (s *Solver) ensurePendingNode(n Node, dependant Node) {
	s.nodesMu.Lock()
	if _, exists := s.pendingNodes[n.Key()]; !exists {
		s.pendingNodes[n.Key()] = n
	}
	s.nodesMu.Unlock()
	n.AddDependant(dependant)
}

// pendingSnapshot returns every still-pending node, in deterministic key
// order. A node can finish without ever going through completeTask — a
// failure cascade (baseNode.cascadeAbort / AddDependant's retroactive
// propagation) completes a dependant directly — so this also prunes any
// pendingNodes entry that already has a Result(), rather than assuming only
// completeTask ever resolves one.
func (s *Solver) pendingSnapshot() []Node {
	s.nodesMu.Lock()
	defer s.nodesMu.Unlock()
	keys := make([]string, 0, len(s.pendingNodes))
	for k := range s.pendingNodes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	nodes := make([]Node, 0, len(keys))
	for _, k := range keys {
		n := s.pendingNodes[k]
		if n.Result() != nil {
			delete(s.pendingNodes, k)
			delete(s.inProgress, k)
			continue
		}
		nodes = append(nodes, n)
	}
	return nodes
}

func (s *Solver) isPending(key string) bool {
	s.nodesMu.Lock()
	defer s.nodesMu.Unlock()
	_, ok := s.pendingNodes[key]
	return ok
}

// loop is the scheduler's single synchronous, non-suspending pass, guarded
// by inLoop against reentrancy. It is triggered by Start, by every node
// completion, and (harmlessly, via the same guard) by its own dispatches.
//
// Node completions run concurrently (runPass fans admitted nodes out via
// errgroup, and each dispatchNode independently re-enters loop from
// completeTask), so a completion arriving while another pass is already
// running the common case, not a rare race, once more than one node is
// in flight at once. Rather than dropping that completion's re-trigger on
// the floor, it sets loopDirty; the pass that currently holds inLoop
// checks loopDirty after it finishes and runs again before releasing the
// guard, so no completion that narrowed the pending set is ever lost.
func (s *Solver) loop(ctx context.Context) {
	s.nodesMu.Lock()
	if s.inLoop {
		s.loopDirty = true
		s.nodesMu.Unlock()
		return
	}
	s.inLoop = true
	s.nodesMu.Unlock()

	for {
		s.runPass(ctx)

		s.nodesMu.Lock()
		if !s.loopDirty {
			s.inLoop = false
			s.nodesMu.Unlock()
			return
		}
		s.loopDirty = false
		s.nodesMu.Unlock()
	}
}

// runPass is one evaluate/expand/order/admit/dispatch cycle. Factored out of
// loop so the dirty-retrigger above can rerun it without re-entering the
// inLoop guard.
func (s *Solver) runPass(ctx context.Context) {
	if err := s.evaluateRequests(ctx); err != nil {
		s.emitAbort(core.NewGraphError(core.ErrorInternal, "evaluating requests", err))
		return
	}
	if err := s.expandPending(ctx); err != nil {
		s.emitAbort(core.NewGraphError(core.ErrorInternal, "expanding dependencies", err))
		return
	}

	g, err := s.buildPendingGraph(ctx)
	if err != nil {
		s.emitAbort(core.NewGraphError(core.ErrorInternal, "building dependency graph", err))
		return
	}
	if g.Size() == 0 {
		return
	}

	leaves, err := g.OverallOrder(true)
	if err != nil {
		var cycleErr *graph.CircularDependenciesError
		if errors.As(err, &cycleErr) {
			s.emitAbort(core.NewGraphError(core.ErrorCircularDependencies, cycleErr.Error(), cycleErr))
		} else {
			s.emitAbort(core.NewGraphError(core.ErrorInternal, "graph ordering failed", err))
		}
		return
	}

	admitted := s.admit(leaves)
	if len(admitted) == 0 {
		return
	}

	s.nodesMu.Lock()
	startedAt := s.now()
	nodesToRun := make([]Node, 0, len(admitted))
	for _, k := range admitted {
		n := s.pendingNodes[k]
		s.inProgress[k] = n
		nodesToRun = append(nodesToRun, n)
	}
	total := len(s.inProgress)
	s.nodesMu.Unlock()

	s.bus.Emit(events.Process, events.ProcessPayload{Keys: admitted, InProgress: total})

	eg, egCtx := errgroup.WithContext(ctx)
	for _, n := range nodesToRun {
		n := n
		eg.Go(func() error {
			s.dispatchNode(egCtx, n, startedAt)
			return nil
		})
	}
	// The loop body must not suspend waiting on task bodies; errgroup here
	// only fans admitted nodes out concurrently within this pass. Each
	// dispatch re-enters the loop on completion, independent of Wait.
	go func() { _ = eg.Wait() }()
}

// evaluateRequests implements spec.md §4.E step 2: for every not-yet-complete
// Request in the active batch, resolve it directly where possible, or mark
// its dependency pending.
func (s *Solver) evaluateRequests(ctx context.Context) error {
	s.nodesMu.Lock()
	batch := s.activeBatch
	reqsByKey := s.requestedTasks[batch]
	keys := make([]string, 0, len(reqsByKey))
	for k := range reqsByKey {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	reqs := make([]*RequestNode, 0, len(keys))
	for _, k := range keys {
		reqs = append(reqs, reqsByKey[k])
	}
	s.nodesMu.Unlock()

	for _, req := range reqs {
		if req.Result() != nil {
			continue
		}
		task := req.Task()
		status := s.getOrCreateStatus(task)
		statusResult := status.Result()

		switch {
		case statusResult != nil && (statusResult.Aborted || statusResult.Error != nil):
			req.Complete(CompleteParams{
				StartedAt:   statusResult.StartedAt,
				CompletedAt: statusResult.CompletedAt,
				Aborted:     statusResult.Aborted,
				Error:       statusResult.Error,
			})
		case req.statusOnly && statusResult != nil:
			req.Complete(CompleteParams{
				StartedAt:    statusResult.StartedAt,
				CompletedAt:  statusResult.CompletedAt,
				Outcome:      statusResult.Outcome,
				InputVersion: statusResult.InputVersion,
			})
		case statusResult == nil:
			s.ensurePendingNode(status, req)
		case statusResult.Outcome != nil && statusResult.Outcome.State == core.StateReady && !task.Force():
			req.Complete(CompleteParams{
				StartedAt:    statusResult.StartedAt,
				CompletedAt:  statusResult.CompletedAt,
				Outcome:      statusResult.Outcome,
				InputVersion: statusResult.InputVersion,
			})
		default:
			proc := s.getOrCreateProcess(task)
			if pr := proc.Result(); pr != nil {
				req.Complete(CompleteParams{
					StartedAt:    pr.StartedAt,
					CompletedAt:  pr.CompletedAt,
					Outcome:      pr.Outcome,
					DidRun:       pr.DidRun,
					InputVersion: pr.InputVersion,
				})
			} else {
				s.ensurePendingNode(proc, req)
			}
		}
	}
	return nil
}

// expandPending implements step 3: for every pending node, for every
// remaining dependency, ensure that dependency is itself pending. Runs to a
// fixpoint since discovering a new pending node can reveal further
// dependencies once its own Dependencies() is consulted.
func (s *Solver) expandPending(ctx context.Context) error {
	seen := make(map[string]bool)
	queue := s.pendingSnapshot()
	for i := 0; i < len(queue); i++ {
		n := queue[i]
		if seen[n.Key()] {
			continue
		}
		seen[n.Key()] = true

		deps, err := n.RemainingDependencies(ctx)
		if err != nil {
			return err
		}
		for _, d := range deps {
			s.ensurePendingNode(d, n)
			if !seen[d.Key()] {
				queue = append(queue, d)
			}
		}
	}
	return nil
}

// buildPendingGraph implements step 4: a graph.Graph over every pending
// node, with edges only between nodes that are both still pending.
func (s *Solver) buildPendingGraph(ctx context.Context) (*graph.Graph[string], error) {
	nodes := s.pendingSnapshot()
	g := graph.New[string]()
	for _, n := range nodes {
		g.AddNode(n.Key())
	}
	for _, n := range nodes {
		deps, err := n.RemainingDependencies(ctx)
		if err != nil {
			return nil, err
		}
		for _, d := range deps {
			if s.isPending(d.Key()) {
				_ = g.AddDependency(n.Key(), d.Key())
			}
		}
	}
	return g, nil
}

// admit implements steps 6-7: group leaves by concurrency group, take the
// first (groupLimit - inProgressInGroup) of each, then cap by the hard
// global limit. Leaf order (and therefore admission order within and
// across groups) is the graph's deterministic insertion order.
func (s *Solver) admit(leaves []string) []string {
	s.nodesMu.Lock()
	defer s.nodesMu.Unlock()

	groupInProgress := make(map[string]int)
	for _, n := range s.inProgress {
		groupInProgress[n.ConcurrencyGroup()]++
	}
	groupLimit := make(map[string]int)
	groupTaken := make(map[string]int)

	var admitted []string
	for _, k := range leaves {
		if _, busy := s.inProgress[k]; busy {
			continue
		}
		n, ok := s.pendingNodes[k]
		if !ok || n.Result() != nil {
			continue
		}
		gk := n.ConcurrencyGroup()
		limit, known := groupLimit[gk]
		if !known {
			limit = n.ConcurrencyLimit()
			groupLimit[gk] = limit
		}
		allowed := limit - groupInProgress[gk]
		if groupTaken[gk] >= allowed {
			continue
		}
		groupTaken[gk]++
		admitted = append(admitted, k)
	}

	hardAllowed := s.hardConcurrencyLimit - len(s.inProgress)
	if hardAllowed < 0 {
		hardAllowed = 0
	}
	if len(admitted) > hardAllowed {
		admitted = admitted[:hardAllowed]
	}
	return admitted
}

// isInternalError reports whether err is a scheduler bug (ErrorInternal) as
// opposed to a classified task-body failure. Only the former aborts the
// batch from dispatchNode; the latter completes the node with the error
// attached, exactly like any other task failure.
func isInternalError(err error) bool {
	var ge *core.GraphError
	if errors.As(err, &ge) {
		return ge.Type == core.ErrorInternal
	}
	return false
}

// dispatchNode is processNode(node, startedAt) from spec.md §4.E: execute
// the node's body, then route success or failure to completeTask. An
// internal error (a scheduler invariant violation, not a task failure)
// aborts the whole batch instead.
func (s *Solver) dispatchNode(ctx context.Context, n Node, startedAt time.Time) {
	if n.Variant() == core.NodeStatus {
		s.bus.Emit(events.StatusStart, events.TaskPayload{Key: n.Key()})
	} else {
		s.bus.Emit(events.TaskStart, events.TaskPayload{Key: n.Key()})
	}

	result, err := n.Execute(ctx)
	if err != nil && isInternalError(err) {
		s.nodesMu.Lock()
		delete(s.inProgress, n.Key())
		s.nodesMu.Unlock()
		n.Complete(CompleteParams{StartedAt: startedAt, CompletedAt: s.now(), Aborted: true})
		s.log.Error("graphsolver: internal scheduler error", "node", n.Key(), "error", err)
		s.emitAbort(err)
		return
	}

	s.bus.Emit(events.Loop, events.LoopPayload{})
	s.completeTask(ctx, n, startedAt, result, err)
}

// completeTask implements spec.md §4.E completeTask: record the node's
// result, drop it from inProgress/pendingNodes, emit the matching lifecycle
// event, and re-enter the loop so the next pass picks up whatever this
// completion unblocked.
func (s *Solver) completeTask(ctx context.Context, n Node, startedAt time.Time, result *ExecuteResult, taskErr error) {
	completedAt := s.now()

	s.nodesMu.Lock()
	delete(s.inProgress, n.Key())
	delete(s.pendingNodes, n.Key())
	s.nodesMu.Unlock()

	params := CompleteParams{StartedAt: startedAt, CompletedAt: completedAt}
	if taskErr != nil {
		params.Error = taskErr
	} else if result != nil {
		params.Outcome = result.Outcome
		params.DidRun = result.DidRun
		params.DependencyResults = result.DependencyResults
	}
	if iv, ivErr := n.Task().InputVersion(ctx); ivErr == nil {
		params.InputVersion = iv
	}

	res := n.Complete(params)

	switch n.Variant() {
	case core.NodeStatus:
		s.bus.Emit(events.StatusComplete, events.TaskPayload{Key: n.Key(), Result: res})
	case core.NodeProcess:
		kind := events.TaskComplete
		if res.Error != nil {
			kind = events.TaskError
		}
		s.bus.Emit(kind, events.TaskPayload{Key: n.Key(), Result: res})
		if res.Success {
			s.bus.Emit(events.TaskProcessed, events.TaskPayload{Key: n.Key(), Result: res})
		}
		if res.Success && res.Outcome != nil && res.Outcome.State == core.StateReady {
			s.bus.Emit(events.TaskReady, events.TaskPayload{Key: core.Key(n.Task()), Result: res})
		}
	}

	s.loop(ctx)
}

func (s *Solver) emitAbort(err error) {
	s.bus.Emit(events.Abort, events.AbortPayload{Error: err})
}
