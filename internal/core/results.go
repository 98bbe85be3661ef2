package core

import (
	"fmt"
	"sync"
	"time"
)

// NodeType tags which node variant produced a GraphResult.
type NodeType string

const (
	NodeRequest NodeType = "request"
	NodeStatus  NodeType = "status"
	NodeProcess NodeType = "process"
)

// GraphResult is the immutable record describing one node's completion.
//
// Invariants (enforced by the dag package, not here): DidRun implies
// Type==NodeProcess; Success is equivalent to !error && !aborted; Processed
// is equivalent to Type==NodeProcess.
type GraphResult struct {
	Type              NodeType
	Description       string
	Key               string
	Name              string
	Outcome           *Outcome
	DependencyResults *GraphResults
	Aborted           bool
	DidRun            bool
	CacheInfo         *CacheInfo
	StartedAt         time.Time
	CompletedAt       time.Time
	Error             error
	InputVersion      string
	Outputs           map[string]any
	Success           bool
	Attached          bool
	RunReason         string
	Processed         bool
}

// GraphResults is a per-batch, keyed result collector: task.Key() ->
// *GraphResult, initialized to all-nil from the batch's task set. It is also
// the type passed to Task.GetStatus/Task.Process as the dependency result
// view.
type GraphResults struct {
	mu      sync.Mutex
	tasks   map[string]Task
	results map[string]*GraphResult
	order   []string
}

// NewGraphResults creates a results collector pre-populated with nil entries
// for every task in the batch.
func NewGraphResults(tasks []Task) *GraphResults {
	r := &GraphResults{
		tasks:   make(map[string]Task, len(tasks)),
		results: make(map[string]*GraphResult, len(tasks)),
		order:   make([]string, 0, len(tasks)),
	}
	for _, t := range tasks {
		k := Key(t)
		if _, ok := r.tasks[k]; ok {
			continue
		}
		r.tasks[k] = t
		r.results[k] = nil
		r.order = append(r.order, k)
	}
	return r
}

// SetResult records a task's result. It rejects keys outside the batch.
func (r *GraphResults) SetResult(t Task, result *GraphResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := Key(t)
	if _, ok := r.tasks[k]; !ok {
		return NewGraphError(ErrorInternal, fmt.Sprintf("setResult: %q is not in this batch", k), nil)
	}
	r.results[k] = result
	return nil
}

// GetResult returns the result for t, or nil if not yet set.
func (r *GraphResults) GetResult(t Task) *GraphResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.results[Key(t)]
}

// GetResultByKey is GetResult without requiring the Task value.
func (r *GraphResults) GetResultByKey(key string) *GraphResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.results[key]
}

// GetMissing returns, in batch order, every task whose result is still nil.
func (r *GraphResults) GetMissing() []Task {
	r.mu.Lock()
	defer r.mu.Unlock()
	var missing []Task
	for _, k := range r.order {
		if r.results[k] == nil {
			missing = append(missing, r.tasks[k])
		}
	}
	return missing
}

// GetMap returns the full key->result mapping, including nil entries.
func (r *GraphResults) GetMap() map[string]*GraphResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]*GraphResult, len(r.results))
	for k, v := range r.results {
		out[k] = v
	}
	return out
}

// Export is an alias for GetMap, for external consumers of a finished batch.
func (r *GraphResults) Export() map[string]*GraphResult {
	return r.GetMap()
}
