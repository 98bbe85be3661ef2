package dag

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"graphsolver/internal/core"
	"graphsolver/internal/events"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func notReady(context.Context, *core.GraphResults) (*core.StatusResult, error) {
	return core.NewStatusResult(core.StateNotReady, nil), nil
}

// S1: single task, no dependencies.
func TestSolve_SingleTask(t *testing.T) {
	frozen := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s := NewSolver(GraphSolverConfig{}, WithClock(func() time.Time { return frozen }))

	a := &fakeTask{kind: "test", name: "a", version: "v-aaaaaaaaaa", status: notReady,
		process: func(ctx context.Context, p core.ProcessParams) (*core.ProcessResult, error) {
			return core.NewProcessResult(core.StateReady, map[string]any{"processed": true}), nil
		},
	}

	results, err := s.Solve(context.Background(), []SolveRequest{{Task: a}}, SolveOptions{})
	require.NoError(t, err)

	res := results.GetResult(a)
	require.NotNil(t, res)
	assert.True(t, res.Success)
	assert.Equal(t, core.NodeProcess, res.Type)
	assert.True(t, res.Processed)
	assert.True(t, res.DidRun)
	assert.Equal(t, true, res.Outputs["processed"])
	assert.Equal(t, "v-aaaaaaaaaa", res.InputVersion)
	assert.Equal(t, frozen, res.StartedAt)
	assert.Equal(t, frozen, res.CompletedAt)
}

// S2: ready status without force short-circuits Process.
func TestSolve_StatusShortCircuit(t *testing.T) {
	s := NewSolver(GraphSolverConfig{})

	a := &fakeTask{kind: "test", name: "a", version: "v-bbbbbbbbbb",
		status: func(context.Context, *core.GraphResults) (*core.StatusResult, error) {
			return core.NewStatusResult(core.StateReady, map[string]any{"processed": false}), nil
		},
	}

	results, err := s.Solve(context.Background(), []SolveRequest{{Task: a}}, SolveOptions{})
	require.NoError(t, err)

	res := results.GetResult(a)
	require.NotNil(t, res)
	assert.True(t, res.Success)
	assert.Equal(t, core.NodeProcess, res.Type)
	assert.True(t, res.Processed)
	assert.False(t, res.DidRun)
	assert.Equal(t, false, res.Outputs["processed"])
}

// S2 (force variant): ready status with force=true runs the process body.
func TestSolve_ForceOverridesReadyStatus(t *testing.T) {
	s := NewSolver(GraphSolverConfig{})

	ran := false
	a := &fakeTask{kind: "test", name: "a", version: "v-cccccccccc", force: true,
		status: func(context.Context, *core.GraphResults) (*core.StatusResult, error) {
			return core.NewStatusResult(core.StateReady, map[string]any{"processed": false}), nil
		},
		process: func(ctx context.Context, p core.ProcessParams) (*core.ProcessResult, error) {
			ran = true
			return core.NewProcessResult(core.StateReady, map[string]any{"processed": true}), nil
		},
	}

	results, err := s.Solve(context.Background(), []SolveRequest{{Task: a}}, SolveOptions{})
	require.NoError(t, err)
	require.True(t, ran)

	res := results.GetResult(a)
	require.NotNil(t, res)
	assert.True(t, res.DidRun)
	assert.Equal(t, true, res.Outputs["processed"])
}

// S3: b depends on a's process result.
func TestSolve_ProcessDependencyOrdering(t *testing.T) {
	s := NewSolver(GraphSolverConfig{})

	a := &fakeTask{kind: "test", name: "a", version: "v-dddddddddd", status: notReady,
		process: func(ctx context.Context, p core.ProcessParams) (*core.ProcessResult, error) {
			return core.NewProcessResult(core.StateReady, map[string]any{"id": "A1"}), nil
		},
	}
	var b *fakeTask
	b = &fakeTask{kind: "test", name: "b", version: "v-eeeeeeeeee", status: notReady, processDeps: []core.Task{a},
		process: func(ctx context.Context, p core.ProcessParams) (*core.ProcessResult, error) {
			aRes := p.DependencyResults.GetResult(a)
			return core.NewProcessResult(core.StateReady, map[string]any{"callbackResult": aRes.Outputs["id"]}), nil
		},
	}

	results, err := s.Solve(context.Background(), []SolveRequest{{Task: b}}, SolveOptions{})
	require.NoError(t, err)

	resB := results.GetResult(b)
	require.NotNil(t, resB)
	assert.Equal(t, "A1", resB.Outputs["callbackResult"])
}

// S4: a fails, b depends on a, c depends on b; every task is requested
// directly so each's own GraphResult is inspectable from the batch.
func TestSolve_CascadingFailure(t *testing.T) {
	s := NewSolver(GraphSolverConfig{})

	boom := errors.New("boom")
	a := &fakeTask{kind: "test", name: "a", version: "v-ffffffffff", status: notReady,
		process: func(context.Context, core.ProcessParams) (*core.ProcessResult, error) {
			return nil, boom
		},
	}
	b := &fakeTask{kind: "test", name: "b", version: "v-1111111111", status: notReady, processDeps: []core.Task{a}}
	c := &fakeTask{kind: "test", name: "c", version: "v-2222222222", status: notReady, processDeps: []core.Task{b}}

	results, err := s.Solve(context.Background(), []SolveRequest{{Task: a}, {Task: b}, {Task: c}}, SolveOptions{})
	var batchErr *GraphResultError
	require.ErrorAs(t, err, &batchErr)

	resA := results.GetResult(a)
	require.NotNil(t, resA)
	assert.False(t, resA.Aborted)
	assert.Equal(t, core.NodeProcess, resA.Type)
	require.Error(t, resA.Error)
	var nodeErr *core.GraphNodeError
	require.True(t, errors.As(resA.Error, &nodeErr))
	var graphErr *core.GraphError
	require.True(t, errors.As(nodeErr.Err, &graphErr))
	assert.Equal(t, core.ErrorGraph, graphErr.Type)

	resB := results.GetResult(b)
	require.NotNil(t, resB)
	assert.True(t, resB.Aborted)
	assert.Equal(t, core.NodeProcess, resB.Type)
	assert.NoError(t, resB.Error)

	resC := results.GetResult(c)
	require.NotNil(t, resC)
	assert.True(t, resC.Aborted)
	assert.Equal(t, core.NodeProcess, resC.Type)
	assert.NoError(t, resC.Error)
}

// S5: throwOnError rejects the whole solve at the first failing request.
func TestSolve_ThrowOnError(t *testing.T) {
	s := NewSolver(GraphSolverConfig{})

	boom := errors.New("boom")
	a := &fakeTask{kind: "test", name: "a", version: "v-3333333333", status: notReady,
		process: func(context.Context, core.ProcessParams) (*core.ProcessResult, error) {
			return nil, boom
		},
	}

	_, err := s.Solve(context.Background(), []SolveRequest{{Task: a}}, SolveOptions{ThrowOnError: true})
	require.Error(t, err)
	assert.True(t, strings.HasPrefix(err.Error(), "Failed to"), "got: %s", err.Error())
	assert.Contains(t, err.Error(), "boom")

	var rerr *GraphResultError
	require.True(t, errors.As(err, &rerr))
	require.NotEmpty(t, rerr.WrappedErrors)
}

// S6: per-kind concurrency caps on the status group are honored in the
// first admitted batch.
func TestSolve_PerKindConcurrency(t *testing.T) {
	s := NewSolver(GraphSolverConfig{})

	var firstBatch []string
	sub := s.Events().On(events.Process, func(payload any) {
		if firstBatch == nil {
			p := payload.(events.ProcessPayload)
			firstBatch = append([]string(nil), p.Keys...)
		}
	})
	defer s.Events().Off(events.Process, sub)

	var requests []SolveRequest
	for i := 0; i < 3; i++ {
		requests = append(requests, SolveRequest{Task: &fakeTask{
			kind: "A", name: fmt.Sprintf("task%d", i), version: "v-a", statusLimit: 2, processLimit: 1, status: notReady,
		}})
	}
	for i := 0; i < 3; i++ {
		requests = append(requests, SolveRequest{Task: &fakeTask{
			kind: "B", name: fmt.Sprintf("task%d", i), version: "v-b", statusLimit: 3, processLimit: 2, status: notReady,
		}})
	}

	_, err := s.Solve(context.Background(), requests, SolveOptions{})
	require.NoError(t, err)

	require.NotNil(t, firstBatch)
	sort.Strings(firstBatch)

	expected := []string{
		"A.task0:status", "A.task1:status",
		"B.task0:status", "B.task1:status", "B.task2:status",
	}
	assert.Equal(t, expected, firstBatch)
}

// Invariant 7 (empty batch): solve([]) returns immediately with empty results and a
// nil error.
func TestSolve_EmptyBatch(t *testing.T) {
	s := NewSolver(GraphSolverConfig{})
	results, err := s.Solve(context.Background(), nil, SolveOptions{})
	require.NoError(t, err)
	require.NotNil(t, results)
	assert.Empty(t, results.GetMap())
}

// Coverage: every task in the batch has exactly one entry in results, and
// there are no extra entries.
func TestSolve_ResultsCoverExactlyTheBatch(t *testing.T) {
	s := NewSolver(GraphSolverConfig{})

	a := &fakeTask{kind: "test", name: "a", version: "v-4444444444", status: notReady}
	b := &fakeTask{kind: "test", name: "b", version: "v-5555555555", status: notReady}

	results, err := s.Solve(context.Background(), []SolveRequest{{Task: a}, {Task: b}}, SolveOptions{})
	require.NoError(t, err)

	m := results.GetMap()
	assert.Len(t, m, 2)
	assert.NotNil(t, m[core.Key(a)])
	assert.NotNil(t, m[core.Key(b)])
}

// Cycle detection: a depends on b, b depends on a; solve reports a
// circular-dependencies error rather than hanging.
func TestSolve_CircularDependency(t *testing.T) {
	s := NewSolver(GraphSolverConfig{})

	var a, b *fakeTask
	a = &fakeTask{kind: "test", name: "a", version: "v-6666666666", status: notReady}
	b = &fakeTask{kind: "test", name: "b", version: "v-7777777777", status: notReady}
	a.processDeps = []core.Task{b}
	b.processDeps = []core.Task{a}

	_, err := s.Solve(context.Background(), []SolveRequest{{Task: a}}, SolveOptions{})
	require.Error(t, err)

	var graphErr *core.GraphError
	require.True(t, errors.As(err, &graphErr))
	assert.Equal(t, core.ErrorCircularDependencies, graphErr.Type)
}

// Status-only requests resolve from the Status node, never creating a
// Process node.
func TestSolve_StatusOnlyRequest(t *testing.T) {
	s := NewSolver(GraphSolverConfig{})

	processCalled := false
	a := &fakeTask{kind: "test", name: "a", version: "v-8888888888",
		status: func(context.Context, *core.GraphResults) (*core.StatusResult, error) {
			return core.NewStatusResult(core.StateNotReady, map[string]any{"checked": true}), nil
		},
		process: func(context.Context, core.ProcessParams) (*core.ProcessResult, error) {
			processCalled = true
			return core.NewProcessResult(core.StateReady, nil), nil
		},
	}

	results, err := s.Solve(context.Background(), []SolveRequest{{Task: a, StatusOnly: true}}, SolveOptions{})
	require.NoError(t, err)
	assert.False(t, processCalled)

	res := results.GetResult(a)
	require.NotNil(t, res)
	assert.Equal(t, core.NodeStatus, res.Type)
	assert.False(t, res.Processed)
	assert.Equal(t, true, res.Outputs["checked"])
}

// Regression: siblings admitted into the same pass complete on independent
// errgroup goroutines, each calling back into loop() on its own. Before the
// loopDirty retrigger, whichever completion found inLoop already held by
// another in-flight completion was silently dropped; if that was the
// trigger that would have resolved the last pending Request, Solve hung
// forever. This barriers every process body so all n complete within the
// same instant, forcing that contention on every run.
func TestSolve_ConcurrentSiblingCompletionsDoNotHang(t *testing.T) {
	s := NewSolver(GraphSolverConfig{})

	const n = 8
	start := make(chan struct{})
	var ready sync.WaitGroup
	ready.Add(n)

	requests := make([]SolveRequest, 0, n)
	for i := 0; i < n; i++ {
		requests = append(requests, SolveRequest{Task: &fakeTask{
			kind: "race", name: fmt.Sprintf("task%d", i), version: "v-race",
			statusLimit: n, processLimit: n, status: notReady,
			process: func(ctx context.Context, p core.ProcessParams) (*core.ProcessResult, error) {
				ready.Done()
				<-start
				return core.NewProcessResult(core.StateReady, nil), nil
			},
		}})
	}

	go func() {
		ready.Wait()
		close(start)
	}()

	done := make(chan struct{})
	var results *core.GraphResults
	var err error
	go func() {
		results, err = s.Solve(context.Background(), requests, SolveOptions{})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Solve did not return: a concurrent completion's loop re-trigger was dropped")
	}

	require.NoError(t, err)
	for _, r := range requests {
		res := results.GetResult(r.Task)
		require.NotNil(t, res)
		assert.True(t, res.Success)
	}
}
