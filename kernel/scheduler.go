package kernel

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/cascadekernel/core/arch"
	"github.com/cascadekernel/core/internal/goid"
	"github.com/cascadekernel/core/internal/kerrors"
	"github.com/cascadekernel/core/internal/klog"
)

// Kernel owns the global scheduler lock, the set of executors, and the
// cleanup service; it is the handle every task-synchronisation primitive
// in this package is built against.
type Kernel struct {
	arch            arch.Arch
	kernelPageTable arch.PageTable

	// tickPeriod is the configured periodic-tick interval (spec.md §4.K).
	// Zero disables the timer entirely, leaving only cooperative Yield to
	// drive rescheduling.
	tickPeriod time.Duration

	schedulerLock *TicketSpinLock

	executorsMu sync.Mutex
	executors   []*Executor

	placementCounter atomic.Uint64

	cleanup *CleanupService

	byGoroutine sync.Map // uint64 goroutine id -> *Task

	tasksMu sync.Mutex
	tasks   map[*Task]struct{}

	// foreign is a bookkeeping identity for scheduler-lock and RwLock
	// acquisitions made from a goroutine that is not itself running as any
	// task — boot, tests, or a driver program's own main goroutine calling
	// into the kernel after bring-up. It never runs a goroutine of its
	// own; it exists only so TicketSpinLock/RwLock have somewhere to keep
	// per-holder counters.
	foreign *Task

	// panicking is set once any executor has called kerrors.Fatal. Every
	// other executor's scheduler task notices it at the top of its
	// dispatch loop and halts rather than continuing to make scheduling
	// decisions, approximating the halt-IPI broadcast a real stop-the-world
	// panic report sends to every other CPU (spec.md §7(b)).
	panicking atomic.Bool
}

// New builds a Kernel against the given architecture, with a periodic tick
// of the given period (zero disables it). Executors must be added with
// CreateExecutor before any task can run.
func New(a arch.Arch, kernelPageTable arch.PageTable, tickPeriod time.Duration) *Kernel {
	k := &Kernel{
		arch:            a,
		kernelPageTable: kernelPageTable,
		tickPeriod:      tickPeriod,
		tasks:           make(map[*Task]struct{}),
	}
	k.schedulerLock = newTicketSpinLock(k)
	k.cleanup = newCleanupService(k)
	k.foreign = newTask(k, "external-caller", KernelTask, false)
	kerrors.OnFatal = k.broadcastHalt
	return k
}

// broadcastHalt marks every executor for halt once one of them has hit a
// fatal invariant violation. It is installed as kerrors.OnFatal.
func (k *Kernel) broadcastHalt(executorID int) {
	k.panicking.Store(true)
	klog.WithFields(map[string]interface{}{"executor": executorID}).Warningf("broadcasting halt to all executors")
}

// callerOrForeign returns the calling goroutine's bound task, or the
// kernel's foreign-caller sentinel if it has none.
func (k *Kernel) callerOrForeign() *Task {
	if t := k.CurrentTaskOrNil(); t != nil {
		return t
	}
	return k.foreign
}

// Executors returns a snapshot of the currently registered executors.
func (k *Kernel) Executors() []*Executor {
	k.executorsMu.Lock()
	defer k.executorsMu.Unlock()
	out := make([]*Executor, len(k.executors))
	copy(out, k.executors)
	return out
}

// CreateExecutor brings one hardware thread online: it allocates its ready
// queue and starts its permanent scheduler/idle task (spec.md §3, §4.G).
// The scheduler task immediately contends for the global scheduler lock,
// so the first executor created is also the first to start dispatching.
func (k *Kernel) CreateExecutor(id int) *Executor {
	ex := &Executor{id: id, ready: newReadyQueue()}
	sched := newTask(k, schedTaskName(id), KernelTask, true)
	sched.runningOn = ex
	sched.state = TaskRunning
	ex.schedulerTask = sched
	ex.current = sched

	k.registerTask(sched)

	k.executorsMu.Lock()
	k.executors = append(k.executors, ex)
	k.executorsMu.Unlock()

	go k.runSchedulerTask(ex, sched)

	if k.tickPeriod > 0 {
		ex.ticker = time.NewTicker(k.tickPeriod)
		go func() {
			for range ex.ticker.C {
				ex.tickPending.Store(true)
			}
		}()
	}

	klog.WithFields(map[string]interface{}{"executor": id}).Infof("executor online")
	return ex
}

func schedTaskName(id int) string {
	return "sched/" + itoa(id)
}

func itoa(i int) string {
	if i == 0 {
		return "0"
	}
	neg := i < 0
	if neg {
		i = -i
	}
	var buf [20]byte
	p := len(buf)
	for i > 0 {
		p--
		buf[p] = byte('0' + i%10)
		i /= 10
	}
	if neg {
		p--
		buf[p] = '-'
	}
	return string(buf[p:])
}

func (k *Kernel) registerTask(t *Task) {
	k.tasksMu.Lock()
	k.tasks[t] = struct{}{}
	k.tasksMu.Unlock()
}

func (k *Kernel) unregisterTask(t *Task) {
	k.tasksMu.Lock()
	delete(k.tasks, t)
	k.tasksMu.Unlock()
}

// TaskCount returns the number of live (not yet reaped) tasks, for tests
// and diagnostics.
func (k *Kernel) TaskCount() int {
	k.tasksMu.Lock()
	defer k.tasksMu.Unlock()
	return len(k.tasks)
}

func (k *Kernel) pickExecutor() *Executor {
	k.executorsMu.Lock()
	defer k.executorsMu.Unlock()
	if len(k.executors) == 0 {
		kerrors.Fatal(-1, "no executors registered")
	}
	i := k.placementCounter.Add(1) - 1
	return k.executors[i%uint64(len(k.executors))]
}

// runSchedulerTask is the body of an executor's permanent idle task: drain
// any deferred actions queued against it, dispatch the next ready task if
// there is one, or halt until the next interrupt (spec.md §4.G).
func (k *Kernel) runSchedulerTask(ex *Executor, sched *Task) {
	k.bindCurrent(sched)
	k.schedulerLock.Lock(sched)
	for {
		if k.panicking.Load() {
			k.schedulerLock.Unlock(sched)
			for {
				k.arch.Halt()
			}
		}
		k.drainDeferred(sched)
		next := ex.ready.popFront()
		if next == nil {
			k.schedulerLock.Unlock(sched)
			k.arch.Halt()
			k.schedulerLock.Lock(sched)
			continue
		}
		k.switchTo(sched, next, false)
		// sched has resumed here with the scheduler lock already marked
		// held again, handed back by whoever switched into us.
	}
}

func (k *Kernel) drainDeferred(sched *Task) {
	for {
		select {
		case action := <-sched.deferredCh:
			action()
		default:
			return
		}
	}
}

// bindCurrent records which task the calling goroutine is now running as.
func (k *Kernel) bindCurrent(t *Task) {
	k.byGoroutine.Store(goid.Get(), t)
}

// CurrentTask returns the task bound to the calling goroutine. It is a
// fatal invariant violation to call it from a goroutine with no bound
// task, mirroring a hardware read of a per-CPU "current task" register
// that was never initialised.
func (k *Kernel) CurrentTask() *Task {
	t := k.CurrentTaskOrNil()
	if t == nil {
		kerrors.Fatal(-1, "CurrentTask: calling goroutine has no bound task")
	}
	return t
}

// CurrentTaskOrNil is CurrentTask without the fatal guard, for bootstrap
// code that may run before any task exists.
func (k *Kernel) CurrentTaskOrNil() *Task {
	v, ok := k.byGoroutine.Load(goid.Get())
	if !ok {
		return nil
	}
	return v.(*Task)
}

// CurrentExecutor returns the executor the calling goroutine's task is
// running on.
func (k *Kernel) CurrentExecutor() *Executor {
	return k.CurrentTask().runningOn
}

func (k *Kernel) currentExecutorID() int {
	t := k.CurrentTaskOrNil()
	if t == nil || t.runningOn == nil {
		return -1
	}
	return t.runningOn.id
}

// reconcileInterrupts syncs hardware interrupt-enable state to the
// resuming task's interrupt_disable_count, exactly as an interrupt-exit
// path would (spec.md §4.J), applied uniformly at every resume point since
// each resume swaps in a different goroutine's (and so a different
// simulated CPU flags register's) state.
func (k *Kernel) reconcileInterrupts(t *Task) {
	if t.interruptDisableCount.Load() > 0 {
		k.arch.DisableInterrupts()
	} else {
		k.arch.EnableInterrupts()
	}
}

func (k *Kernel) resume(t *Task) {
	select {
	case t.resumeCh <- struct{}{}:
	default:
		kerrors.Fatal(k.currentExecutorID(), "resume of already-runnable task %q", t.name)
	}
}

func (k *Kernel) park(t *Task) {
	<-t.resumeCh
	k.onResumed(t)
}

// onResumed is run on a task's own goroutine the instant it is dispatched
// onto an executor, whether this is its very first run (runLoop) or a
// resumption after having been switched out (park). It binds the
// goroutine's current-task identity, reconciles hardware interrupt state
// to what the task was left with, and delivers a periodic tick that
// arrived for this executor while nothing was there to receive it —
// exactly as a real timer IPI, pending while interrupts were disabled,
// fires the instant they are re-enabled.
func (k *Kernel) onResumed(t *Task) {
	k.bindCurrent(t)
	k.reconcileInterrupts(t)
	if t.runningOn != nil && t.runningOn.tickPending.CompareAndSwap(true, false) {
		k.PeriodicTick()
	}
}

// lockSchedulerIfNeeded acquires the scheduler lock unless t already holds
// it, returning whether a fresh acquisition happened. It exists for code
// paths that may run either from ordinary task context or reentrantly from
// within a section that already holds the lock (e.g. executor bring-up).
func (k *Kernel) lockSchedulerIfNeeded(t *Task) bool {
	if t != nil && k.schedulerLock.IsLockedByCurrent(t) {
		return false
	}
	k.schedulerLock.Lock(t)
	return true
}

func (k *Kernel) unlockSchedulerAs(t *Task) {
	k.schedulerLock.Unlock(t)
}

// requeueReady moves t onto its executor's ready queue, taking the
// scheduler lock around the mutation unless caller already holds it.
// Outside the switching engine, code touches a readyQueue only through
// this or, as CreateKernel and CreateUserTask do, after taking the
// scheduler lock itself, since container/list gives no safety of its own.
func (k *Kernel) requeueReady(caller *Task, t *Task) {
	acquired := k.lockSchedulerIfNeeded(caller)
	t.state = TaskReady
	t.runningOn.ready.pushBack(t)
	if acquired {
		k.unlockSchedulerAs(caller)
	}
}

// beforeSwitchTask applies the kernel/user transition table from spec.md
// §4.H: which page table is resident and whether user-memory access is
// armed both depend on the old and new task's kind, not just the new one.
func (k *Kernel) beforeSwitchTask(self, target *Task) {
	switch {
	case self.kind == KernelTask && target.kind == KernelTask:
		// Page table unchanged; user_mem_access_count is 0 on both sides.

	case self.kind == KernelTask && target.kind == UserTask:
		target.process.pageTable.Load()
		if target.userMemAccessCount.Load() > 0 {
			k.arch.EnableUserMemoryAccess()
		}

	case self.kind == UserTask && target.kind == KernelTask:
		k.kernelPageTable.Load()
		if self.userMemAccessCount.Load() > 0 {
			k.arch.DisableUserMemoryAccess()
		}

	case self.kind == UserTask && target.kind == UserTask:
		if self.process != target.process {
			target.process.pageTable.Load()
		}
		oldCount := self.userMemAccessCount.Load()
		newCount := target.userMemAccessCount.Load()
		if oldCount != newCount {
			if newCount > 0 {
				k.arch.EnableUserMemoryAccess()
			} else {
				k.arch.DisableUserMemoryAccess()
			}
		}
	}
}

// switchTo is the one primitive that moves control from self to target. It
// hands off the scheduler lock's holder bookkeeping (never releasing the
// underlying ticket), resumes target, and parks self until it is itself
// switched back into. autoUnlockSelfOnResume controls what self does the
// moment it resumes: an ordinary task releases the scheduler lock
// immediately (spec.md §4.F's task-entry trampoline, generalised to every
// resume); the scheduler task keeps holding it so it can keep making
// dispatch decisions (spec.md §4.G).
func (k *Kernel) switchTo(self, target *Task, autoUnlockSelfOnResume bool) {
	k.beforeSwitchTask(self, target)

	ex := self.runningOn
	target.runningOn = ex
	target.state = TaskRunning
	ex.current = target

	k.schedulerLock.RebindHolder(self, target)
	k.resume(target)
	k.park(self)

	if autoUnlockSelfOnResume {
		k.schedulerLock.Unlock(self)
	}
}

// Yield voluntarily gives up the calling task's executor: it always
// requeues itself ready first, then dispatches whatever is now at the
// front of the queue. If nothing else was ready, that is the caller
// itself, which switchTo handles as a harmless self-switch — the
// alternative of skipping the requeue when the queue is momentarily empty
// would strand the task off every queue with no way to be dispatched
// again (spec.md §4.B).
func (k *Kernel) Yield(t *Task) {
	k.schedulerLock.Lock(t)
	ex := t.runningOn

	t.state = TaskReady
	ex.ready.pushBack(t)
	next := ex.ready.popFront()

	k.switchTo(t, next, true)
}

// DropWithDeferredAction switches the calling task off its own stack onto
// its executor's scheduler task, which then runs action before looking for
// more work. It is the only safe way to mutate a task's own queue
// membership/state, since the task itself is guaranteed not to be
// executing while action runs (spec.md §4.H).
func (k *Kernel) DropWithDeferredAction(t *Task, action func()) {
	k.schedulerLock.Lock(t)
	ex := t.runningOn
	sched := ex.schedulerTask

	select {
	case sched.deferredCh <- action:
	default:
		kerrors.Fatal(ex.id, "deferred action queue full on %s", sched.name)
	}

	t.state = TaskBlocked
	k.switchTo(t, sched, false)
}

// Drop ends the calling task permanently: marks it dropped and releases its
// own reference, from the scheduler task's context so the task is never
// mutated while it might still be running (spec.md §4.F). The actual
// teardown — freeing the stack, unregistering it, decrementing the owning
// process — is off-critical-path work the cleanup service does once the
// task is fully reaped (spec.md §4.I), not the switching engine.
func (k *Kernel) Drop(t *Task) {
	k.DropWithDeferredAction(t, func() {
		t.state = TaskDropped
		t.refCount.Add(-1)
		if t.refCount.Load() == 0 {
			k.cleanup.enqueue(t)
		}
	})
}
