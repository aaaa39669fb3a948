package kernel

import (
	"container/list"
	"fmt"
	"sync/atomic"

	"github.com/cascadekernel/core/internal/kerrors"
	"github.com/cascadekernel/core/internal/klog"
)

// TaskKind distinguishes kernel tasks from user tasks (spec.md §3).
type TaskKind int8

const (
	KernelTask TaskKind = iota
	UserTask
)

func (k TaskKind) String() string {
	if k == UserTask {
		return "user"
	}
	return "kernel"
}

// TaskState is one of {ready, running, blocked, dropped} from spec.md §3.
type TaskState int32

const (
	TaskReady TaskState = iota
	TaskRunning
	TaskBlocked
	TaskDropped
)

func (s TaskState) String() string {
	switch s {
	case TaskReady:
		return "ready"
	case TaskRunning:
		return "running"
	case TaskBlocked:
		return "blocked"
	case TaskDropped:
		return "dropped"
	default:
		return "unknown"
	}
}

// queueLocation enforces the "a task is in at most one such list" invariant
// (spec.md §3): a task sits on the ready queue, a wait queue, the cleanup
// queue, or none of them, never more than one at a time.
type queueLocation int32

const (
	notQueued queueLocation = iota
	onReadyQueue
	onWaitQueue
	onCleanupQueue
)

// Task is the schedulable unit (spec.md §3). Its "register context" is the
// goroutine CreateKernel or CreateUserTask starts for it; switching into a Task means sending
// on resumeCh, switching out of one means receiving from it, which blocks
// the goroutine exactly where the Go runtime would save it.
type Task struct {
	k *Kernel

	name    string
	kind    TaskKind
	process *Process // nil for kernel tasks
	stack   *Stack

	refCount atomic.Int32

	// state, runningOn, and schedulerLocked are mutated only while the
	// scheduler lock is held, or (state only, for the blocked transition)
	// while the external spinlock the task is queued under is held, per
	// spec.md §5. knownExecutor is set and cleared by the task's own
	// TicketSpinLock acquire/release bookkeeping, for any spinlock.
	state         TaskState
	runningOn     *Executor
	knownExecutor *Executor

	interruptDisableCount atomic.Int32
	spinlocksHeld         atomic.Int32
	schedulerLocked       bool
	isSchedulerTask       bool

	// userMemAccessCount is the recursive-enable counter for user-memory
	// access (spec.md §3, user tasks only): code that needs to touch a
	// user task's own address space from kernel context bumps this around
	// the access instead of toggling the hardware bit directly, so nested
	// callers compose correctly. savedUserMemAccessCount is where an
	// interrupt stashes the prior value while it runs with access forced
	// off (spec.md §4.J).
	userMemAccessCount      atomic.Int32
	savedUserMemAccessCount atomic.Int32
	preemptionPending       atomic.Bool

	location    atomic.Int32 // queueLocation
	readyElem   *list.Element
	waitElem    *list.Element
	cleanupNext *Task // unused: the cleanup inbox is CleanupService.incoming

	queuedForCleanup atomic.Bool

	resumeCh   chan struct{}
	deferredCh chan func() // non-nil only for a scheduler task

	entry func(*Task)
}

func newTask(k *Kernel, name string, kind TaskKind, isSchedulerTask bool) *Task {
	t := &Task{
		k:               k,
		name:            name,
		kind:            kind,
		stack:           newStack(name),
		state:           TaskReady,
		isSchedulerTask: isSchedulerTask,
		resumeCh:        make(chan struct{}, 1),
	}
	t.refCount.Store(1)
	if isSchedulerTask {
		t.deferredCh = make(chan func(), 8)
	}
	return t
}

// CreateKernel creates a kernel task and queues it ready to run. It
// implements spec.md §4.F / §6's Task.create_kernel.
func (k *Kernel) CreateKernel(name string, entry func(*Task)) (*Task, error) {
	if entry == nil {
		return nil, kerrors.NewConstructionError("kernel task "+name, fmt.Errorf("nil entry"))
	}
	t := newTask(k, name, KernelTask, false)
	t.entry = entry
	k.registerTask(t)

	ex := k.pickExecutor()
	caller := k.callerOrForeign()
	acquired := k.lockSchedulerIfNeeded(caller)
	ex.ready.pushBack(t)
	if acquired {
		k.unlockSchedulerAs(caller)
	}

	go t.runLoop()
	klog.WithFields(map[string]interface{}{"task": name, "kind": "kernel"}).Debugf("task created")
	return t, nil
}

// runLoop is the goroutine started for every non-scheduler task. It blocks
// until first switched in, then runs the task-entry trampoline described in
// spec.md §4.F.
func (t *Task) runLoop() {
	<-t.resumeCh
	t.k.onResumed(t)
	taskEntry(t)
}

// taskEntry is the language-agnostic trampoline from spec.md §4.F: it
// releases the scheduler lock the switching engine implicitly handed this
// task, runs the caller-supplied entry, and on return drops the task.
func taskEntry(t *Task) {
	t.k.unlockSchedulerAs(t)
	t.entry(t)
	t.k.Drop(t)
}

// Name returns the task's bounded display name.
func (t *Task) Name() string { return t.name }

// Kind reports whether this is a kernel or user task.
func (t *Task) Kind() TaskKind { return t.kind }

// State reports the task's current scheduling state. Intended for
// diagnostics; callers needing to act on the result must do so under the
// appropriate lock themselves.
func (t *Task) State() TaskState { return t.state }

// Process returns the owning process, or nil for a kernel task.
func (t *Task) Process() *Process { return t.process }

func (t *Task) setLocation(loc queueLocation) {
	t.location.Store(int32(loc))
}

func (t *Task) locationOf() queueLocation {
	return queueLocation(t.location.Load())
}

// setSchedulerHeld updates the bookkeeping a task carries while it is
// considered the current holder of the scheduler lock (spec.md §3's
// scheduler_locked, spinlocks_held, interrupt_disable_count).
func (t *Task) setSchedulerHeld(held bool) {
	if held {
		t.spinlocksHeld.Add(1)
		t.interruptDisableCount.Add(1)
		t.schedulerLocked = true
	} else {
		t.spinlocksHeld.Add(-1)
		t.interruptDisableCount.Add(-1)
		t.schedulerLocked = false
	}
}

// EnableUserMemoryAccess records one more reason t's own address space
// must be reachable from kernel context, arming the hardware bit on the
// 0->1 edge. Only meaningful for user tasks; calling it for a kernel task
// is a fatal invariant violation, since kernel tasks have no user_mem_access
// counter to recurse on.
func (t *Task) EnableUserMemoryAccess() {
	if t.kind != UserTask {
		kerrors.Fatal(t.k.currentExecutorID(), "EnableUserMemoryAccess on kernel task %q", t.name)
	}
	if t.userMemAccessCount.Add(1) == 1 {
		t.k.arch.EnableUserMemoryAccess()
	}
}

// DisableUserMemoryAccess releases one reason recorded by
// EnableUserMemoryAccess, disarming the hardware bit on the 1->0 edge. It is
// a fatal invariant violation to call it more times than Enable was called.
func (t *Task) DisableUserMemoryAccess() {
	if t.userMemAccessCount.Add(-1) < 0 {
		kerrors.Fatal(t.k.currentExecutorID(), "user_mem_access_count underflow on %q", t.name)
	}
	if t.userMemAccessCount.Load() == 0 {
		t.k.arch.DisableUserMemoryAccess()
	}
}

// IncRef increments the task's reference count (spec.md §4.F).
func (t *Task) IncRef() {
	t.refCount.Add(1)
}

// DecRef decrements the task's reference count and, if it reaches zero,
// queues the task for cleanup. It must never be called on the current task
// (use Kernel.Drop instead).
func (t *Task) DecRef(current *Task) {
	if t == current {
		kerrors.Fatal(t.k.currentExecutorID(), "DecRef called on the current task; use Drop")
	}
	if t.refCount.Add(-1) == 0 {
		t.k.cleanup.enqueue(t)
	}
}

// DebugSnapshot is a read-only copy of a task's identity and counters for
// the debug/log layer (spec.md §1's "passive consumer of task identity").
type DebugSnapshot struct {
	Name                  string
	Kind                  TaskKind
	State                 TaskState
	SpinlocksHeld         int32
	InterruptDisableCount int32
	RefCount              int32
}

// DebugSnapshot returns a point-in-time copy of the task's observable
// state.
func (t *Task) DebugSnapshot() DebugSnapshot {
	return DebugSnapshot{
		Name:                  t.name,
		Kind:                  t.kind,
		State:                 t.state,
		SpinlocksHeld:         t.spinlocksHeld.Load(),
		InterruptDisableCount: t.interruptDisableCount.Load(),
		RefCount:              t.refCount.Load(),
	}
}
