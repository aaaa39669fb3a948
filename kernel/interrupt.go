package kernel

// OnInterruptEntry marks that a hardware interrupt has begun on the
// calling executor (spec.md §4.J): the current task's
// interrupt_disable_count is bumped for the handler's duration, mirroring
// the fact that a real CPU does not accept a second interrupt while one
// is already being serviced. It also captures and zeros the current
// user_mem_access_count, disabling user-memory access at the hardware
// level for the handler's duration if it was armed — a handler runs with
// its own idea of whose memory is reachable, not the interrupted task's.
func (k *Kernel) OnInterruptEntry() *Task {
	t := k.CurrentTask()
	prev := t.userMemAccessCount.Swap(0)
	t.savedUserMemAccessCount.Store(prev)
	if prev > 0 {
		k.arch.DisableUserMemoryAccess()
	}
	t.interruptDisableCount.Add(1)
	return t
}

// OnInterruptExit closes the scope opened by OnInterruptEntry: it
// decrements the disable count, restores user_mem_access_count and
// reconciles hardware user-memory-access state to the restored value,
// reconciles hardware interrupt-enable state against the restored
// interrupt_disable_count, and preempts the current task if one was
// requested and it is now safe to do so.
func (k *Kernel) OnInterruptExit(t *Task) {
	t.interruptDisableCount.Add(-1)
	restored := t.savedUserMemAccessCount.Load()
	t.userMemAccessCount.Store(restored)
	if restored > 0 {
		k.arch.EnableUserMemoryAccess()
	} else {
		k.arch.DisableUserMemoryAccess()
	}
	k.reconcileInterrupts(t)
	k.maybePreempt(t)
}

// maybePreempt yields t if preemption was requested and no spinlock is
// held. Preempting a task mid-critical-section would hand the executor to
// something that might immediately contend for the very lock t still
// holds, so the request is deferred (left pending) until the next safe
// exit instead.
func (k *Kernel) maybePreempt(t *Task) {
	if !t.preemptionPending.CompareAndSwap(true, false) {
		return
	}
	if t.spinlocksHeld.Load() > 0 {
		t.preemptionPending.Store(true)
		return
	}
	k.Yield(t)
}

// RequestPreemption marks t to be yielded at its next safe interrupt exit.
func (k *Kernel) RequestPreemption(t *Task) {
	t.preemptionPending.Store(true)
}

// PeriodicTick is invoked by Kernel.onResumed when the executor's periodic
// ticker (started by CreateExecutor) has fired since the last resume. A
// tick is treated exactly like any other interrupt, including requesting
// preemption for time-slicing.
func (k *Kernel) PeriodicTick() {
	t := k.OnInterruptEntry()
	k.RequestPreemption(t)
	k.OnInterruptExit(t)
}
