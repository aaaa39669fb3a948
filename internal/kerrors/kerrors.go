// Package kerrors implements the three error kinds from spec.md §7:
// allocation/construction failures (typed, returned), invariant violations
// (fatal, panic through Fatal), and boot-time failures (aggregated with
// go-multierror before being reported).
package kerrors

import (
	"fmt"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"

	"github.com/cascadekernel/core/internal/klog"
)

// ConstructionError is returned by construction APIs (Kernel.CreateKernel,
// Kernel.CreateProcess, Process.CreateUserTask) when the requested object
// could not be built. Callers unwind
// partially constructed state and propagate this value; it is never panicked.
type ConstructionError struct {
	Resource string
	cause    error
}

func (e *ConstructionError) Error() string {
	return fmt.Sprintf("allocate %s: %v", e.Resource, e.cause)
}

func (e *ConstructionError) Unwrap() error { return e.cause }

// NewConstructionError wraps cause with the name of the resource that could
// not be allocated.
func NewConstructionError(resource string, cause error) *ConstructionError {
	return &ConstructionError{Resource: resource, cause: errors.Wrap(cause, resource)}
}

// InvariantViolation is the panic value used by Fatal. Invariant violations
// are never recovered from within the core; the stop-the-world step of
// spec.md §7(b) is the OnFatal hook, run before the panic, and the panic
// itself propagates to whatever caller (if any) recovers it.
type InvariantViolation struct {
	ExecutorID int
	Message    string
}

func (p *InvariantViolation) Error() string {
	return fmt.Sprintf("executor %d: invariant violation: %s", p.ExecutorID, p.Message)
}

// OnFatal, if non-nil, is called with the detecting executor's id before
// Fatal panics. Kernel.New installs this to broadcast a halt to every
// other executor (spec.md §7(b)'s stop-the-world report) before the stack
// unwinds; this package cannot reference kernel directly without an import
// cycle, so the hook is the seam between them.
var OnFatal func(executorID int)

// Fatal panics with an *InvariantViolation after logging it. executorID
// identifies the executor that detected the violation (double-unlock,
// unlock-by-non-holder, recursive mutex acquire, double cleanup-queueing,
// counter underflow, etc). Fatal never returns.
func Fatal(executorID int, format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	klog.Warningf("fatal on executor %d: %s", executorID, msg)
	if OnFatal != nil {
		OnFatal(executorID)
	}
	panic(&InvariantViolation{ExecutorID: executorID, Message: msg})
}

// BootError aggregates one or more boot-time failures (no memory map, no SMP
// info, no reference counter, a secondary executor's Stage 2 failing) into a
// single reported error, per spec.md §7.
type BootError struct {
	merr *multierror.Error
}

// Append starts (or continues) aggregating boot failures. A nil
// receiver is valid and simply starts a fresh aggregation.
func (b *BootError) Append(err error) *BootError {
	if err == nil {
		return b
	}
	if b == nil {
		b = &BootError{}
	}
	b.merr = multierror.Append(b.merr, err)
	return b
}

// ErrorOrNil returns nil if no failures were appended, or an error
// summarizing all of them otherwise.
func (b *BootError) ErrorOrNil() error {
	if b == nil || b.merr == nil {
		return nil
	}
	return b.merr.ErrorOrNil()
}
