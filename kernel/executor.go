package kernel

import (
	"fmt"
	"sync/atomic"
	"time"
)

// Executor is one hardware thread capable of running exactly one task at a
// time (spec.md §3). It is created once during bring-up and never
// destroyed.
type Executor struct {
	id int

	// current is the task presently in state Running(this executor). It is
	// mutated only while the scheduler lock is held.
	current *Task

	// schedulerTask is this executor's dedicated idle/switch-owner task
	// (spec.md's "scheduler task"). Deferred actions run on its goroutine.
	schedulerTask *Task

	// ready is this executor's ready queue (spec.md §9's resolved Open
	// Question: per-executor rather than global).
	ready *readyQueue

	// tickPending is set by this executor's periodic-tick goroutine
	// (spec.md §4.K's "enable the periodic tick") and consumed the next
	// time a task resumes on this executor, simulating a timer IPI that
	// arrived while interrupts were disabled and fires the instant they
	// are re-enabled.
	tickPending atomic.Bool
	ticker      *time.Ticker
}

// ID returns the executor's identity, stable for its lifetime.
func (e *Executor) ID() int { return e.id }

func (e *Executor) String() string { return fmt.Sprintf("executor(%d)", e.id) }

// CurrentTask returns the task this executor is presently running.
func (e *Executor) CurrentTask() *Task { return e.current }
