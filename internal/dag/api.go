package dag

import (
	"context"
	"sync"

	"graphsolver/internal/core"
	"graphsolver/internal/events"

	"github.com/google/uuid"
)

// SolveRequest is one task a caller wants driven through the batch (spec.md
// §3 Batch/Request). StatusOnly mirrors a request whose only dependency is
// the task's Status node rather than its Process node.
type SolveRequest struct {
	Task       core.Task
	StatusOnly bool
}

// SolveOptions controls a batch's failure policy.
type SolveOptions struct {
	// ThrowOnError causes Solve to reject the moment the first Request
	// completes with a real error, rather than waiting for the whole batch
	// and aggregating every failure.
	ThrowOnError bool
}

// Solve is the PublicAPI (spec.md §4.F): submit a batch of requests, drive
// every task (and transitive dependency) through status then process, and
// return every request's result. Batches are serialized one at a time by
// the solver's single solve lock; nodes created for a prior batch are
// cleared once it resolves (spec.md §9 open question 1: conservative,
// cross-batch memoization left for a later relaxation).
func (s *Solver) Solve(ctx context.Context, requests []SolveRequest, opts SolveOptions) (*core.GraphResults, error) {
	if len(requests) == 0 {
		return core.NewGraphResults(nil), nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	batchID := uuid.NewString()
	tasks := make([]core.Task, 0, len(requests))
	for _, r := range requests {
		tasks = append(tasks, r.Task)
	}
	results := core.NewGraphResults(tasks)

	type outcome struct {
		results *core.GraphResults
		err     error
	}
	done := make(chan outcome, 1)
	var finishOnce sync.Once
	var abortMu sync.Mutex
	aborted := false

	finish := func(err error) {
		finishOnce.Do(func() {
			s.nodesMu.Lock()
			delete(s.requestedTasks, batchID)
			s.nodesMu.Unlock()
			done <- outcome{results: results, err: err}
		})
	}

	abortSub := s.bus.On(events.Abort, func(payload any) {
		p, _ := payload.(events.AbortPayload)
		abortMu.Lock()
		if aborted {
			abortMu.Unlock()
			return
		}
		aborted = true
		abortMu.Unlock()
		finish(p.Error)
	})
	defer s.bus.Off(events.Abort, abortSub)

	batchReqs := make(map[string]*RequestNode, len(requests))
	for _, r := range requests {
		reqKey := core.Key(r.Task) + ":request:" + batchID
		rn := newRequestNode(reqKey, r.Task, s, r.StatusOnly, func(result *core.GraphResult) {
			abortMu.Lock()
			isAborted := aborted
			abortMu.Unlock()
			if isAborted {
				return
			}

			if err := results.SetResult(r.Task, result); err != nil {
				finish(err)
				return
			}

			if opts.ThrowOnError && result.Error != nil {
				abortMu.Lock()
				aborted = true
				abortMu.Unlock()
				finish(newGraphResultError(batchID, results, []*core.GraphResult{result}))
				return
			}

			if len(results.GetMissing()) != 0 {
				return
			}

			var failures []*core.GraphResult
			for _, t := range tasks {
				if r := results.GetResult(t); r != nil && (r.Error != nil || r.Aborted) {
					failures = append(failures, r)
				}
			}
			if len(failures) > 0 {
				finish(newGraphResultError(batchID, results, failures))
				return
			}
			finish(nil)
		})
		batchReqs[reqKey] = rn
	}

	s.nodesMu.Lock()
	s.requestedTasks[batchID] = batchReqs
	s.activeBatch = batchID
	s.nodesMu.Unlock()

	s.bus.Emit(events.Start, events.StartPayload{BatchID: batchID})
	s.loop(ctx)

	out := <-done

	s.nodesMu.Lock()
	s.nodes = make(map[string]Node)
	s.pendingNodes = make(map[string]Node)
	if s.activeBatch == batchID {
		s.activeBatch = ""
	}
	s.nodesMu.Unlock()

	return out.results, out.err
}
