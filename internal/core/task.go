// Package core defines the contracts a caller implements to plug a unit of
// work into the graph solver, plus the result types the solver hands back.
//
// Task is the only type a caller must implement. Everything else in this
// package — State, StatusResult, ProcessResult, GraphResult, GraphResults —
// is produced or consumed by the solver on the caller's behalf.
package core

import "context"

// Task is an opaque, user-supplied unit of work. The solver never inspects a
// task's internals; it only calls these methods, in the order described by
// the Status/Process node contracts.
type Task interface {
	// Kind is a short tag ("build", "deploy", "run", "test", ...) that drives
	// the task's concurrency group.
	Kind() string

	// Name is unique within a batch.
	Name() string

	// Force, when true, causes Process to run even when GetStatus reports
	// StateReady.
	Force() bool

	// InputVersion returns the task's content-addressed fingerprint, typically
	// produced by ComputeInputVersion (see version.go).
	InputVersion(ctx context.Context) (string, error)

	// StatusConcurrencyLimit and ProcessConcurrencyLimit bound how many tasks
	// sharing this task's concurrency group may run status/process at once.
	// Both must be positive.
	StatusConcurrencyLimit() int
	ProcessConcurrencyLimit() int

	// StatusDependencies lists the tasks whose Process phase must complete
	// before this task's status can be evaluated.
	StatusDependencies(ctx context.Context) ([]Task, error)

	// ProcessDependencies lists the tasks whose Process phase must complete
	// before this task's process can run. It may inspect the resolved status
	// to make dependencies status-conditional.
	ProcessDependencies(ctx context.Context, status *StatusResult) ([]Task, error)

	// GetStatus reports the task's current state given the results of its
	// status dependencies.
	GetStatus(ctx context.Context, depResults *GraphResults) (*StatusResult, error)

	// Process performs the task's work.
	Process(ctx context.Context, params ProcessParams) (*ProcessResult, error)
}

// Key returns a task's identity within a batch: "<kind>.<name>".
func Key(t Task) string {
	return t.Kind() + "." + t.Name()
}
