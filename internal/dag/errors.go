package dag

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"graphsolver/internal/core"

	multierror "github.com/hashicorp/go-multierror"
)

// classifyTaskError wraps an error returned from a task body. An error that
// is already a *core.GraphError is assumed to carry its own domain tag and
// is re-wrapped one level deep as a "graph"-typed failure; anything else is
// an unexpected task-body failure and is tagged "crash" before that same
// wrapping. The original error's message is kept in the wrapper's message.
// Internal scheduler errors raised by the nodes themselves are not routed
// through here; Solver.dispatchNode handles those.
func classifyTaskError(err error) error {
	if err == nil {
		return nil
	}
	var ge *core.GraphError
	if errors.As(err, &ge) {
		return core.NewGraphError(core.ErrorGraph, "task failed: "+err.Error(), err)
	}
	crash := core.NewGraphError(core.ErrorCrash, err.Error(), err)
	return core.NewGraphError(core.ErrorGraph, "task crashed: "+err.Error(), crash)
}

// GraphResultError aggregates every failed or aborted result at the end of a
// batch (one line per failure: description + message, or "[ABORTED]" for an
// aborted-with-no-error node), and separately preserves the raw, un-rendered
// errors (WrappedErrors) so callers can errors.Is/As into the original
// task-body failure rather than parsing the rendered message. It carries the
// "graph" wire type (core.ErrorGraph): a GraphResultError is always a
// scheduler-level report about the batch, never a task's own domain error.
type GraphResultError struct {
	BatchID       string
	Type          core.ErrorType
	Results       *core.GraphResults
	WrappedErrors []error
	merr          *multierror.Error
}

func newGraphResultError(batchID string, results *core.GraphResults, failures []*core.GraphResult) *GraphResultError {
	merr := &multierror.Error{}
	wrapped := make([]error, 0, len(failures))
	for _, f := range failures {
		merr = multierror.Append(merr, fmt.Errorf(" ↳ %s: %s", f.Description, failureMessage(f)))
		if f.Error != nil {
			wrapped = append(wrapped, f.Error)
		}
	}
	return &GraphResultError{BatchID: batchID, Type: core.ErrorGraph, Results: results, WrappedErrors: wrapped, merr: merr}
}

func failureMessage(r *core.GraphResult) string {
	if r.Error != nil {
		return r.Error.Error()
	}
	return "[ABORTED]"
}

func (e *GraphResultError) Error() string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("Failed to complete batch %s:\n", e.BatchID))
	for _, line := range e.merr.Errors {
		b.WriteString(line.Error())
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

// Unwrap exposes every wrapped task-body error for errors.Is/As, in the same
// order as WrappedErrors.
func (e *GraphResultError) Unwrap() []error {
	return e.WrappedErrors
}

func itoa(n int) string {
	return strconv.Itoa(n)
}
