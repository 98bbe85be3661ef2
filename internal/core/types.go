package core

// State is a task's reported readiness, returned by GetStatus and echoed by
// a short-circuited Process.
type State string

const (
	StateReady      State = "ready"
	StateNotReady   State = "not-ready"
	StateProcessing State = "processing"
	StateUnknown    State = "unknown"
)

// CacheInfo describes the cache entry a task's status resolved to, if any. It
// is opaque to the solver and passed through unchanged from status to a
// short-circuited process result.
type CacheInfo struct {
	Key  string
	Tags []string
}

// Outcome holds the fields common to a status check and a process run. It is
// embedded by StatusResult and ProcessResult, and is also the type the dag
// package's Node.Execute returns, since a Status node and a Process node
// otherwise share nothing about their return shape except these fields.
type Outcome struct {
	State     State
	Outputs   map[string]any
	CacheInfo *CacheInfo
	Attached  bool
	RunReason string
}

// StatusResult is the return value of Task.GetStatus.
type StatusResult struct {
	Outcome
}

// ProcessResult is the return value of Task.Process. DidRun is set by the
// solver, not the caller: a caller-returned ProcessResult always has DidRun
// left false, and the dag.ProcessNode sets it to true unless the result came
// from the ready short-circuit.
type ProcessResult struct {
	Outcome
	DidRun bool
}

// NewStatusResult constructs a StatusResult with the given state and
// optional outputs.
func NewStatusResult(state State, outputs map[string]any) *StatusResult {
	return &StatusResult{Outcome: Outcome{State: state, Outputs: outputs}}
}

// NewProcessResult constructs a ProcessResult with the given state and
// optional outputs. DidRun is always false here; the solver sets it.
func NewProcessResult(state State, outputs map[string]any) *ProcessResult {
	return &ProcessResult{Outcome: Outcome{State: state, Outputs: outputs}}
}

// ProcessParams is passed to Task.Process.
type ProcessParams struct {
	Status            *StatusResult
	DependencyResults *GraphResults
	StatusOnly        bool
}
