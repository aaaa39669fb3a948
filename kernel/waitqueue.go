package kernel

import "container/list"

// WaitQueue is an intrusive FIFO of blocked tasks, always paired with an
// external spinlock that protects whatever predicate the waiters are
// blocked on (spec.md §4.C). WaitQueue never takes that lock itself; the
// caller holds it across the check-and-wait, and Wait releases it as part
// of the same atomic step that puts the task to sleep.
type WaitQueue struct {
	l *list.List
}

// NewWaitQueue returns an empty wait queue.
func NewWaitQueue() *WaitQueue {
	return &WaitQueue{l: list.New()}
}

// Empty reports whether any task is currently waiting. Callers must hold
// the external lock to trust the result.
func (q *WaitQueue) Empty() bool {
	return q.l.Len() == 0
}

// Wait enqueues the calling task and blocks it, releasing external as part
// of the same deferred action that marks the task blocked. This closes the
// classic wait race: no wakeup between the predicate check and the block
// can be missed, because external stays held until the task is already off
// its own stack and on the queue.
//
// The deferred action runs on the scheduler task's goroutine, not t's, so
// it cannot call external.Unlock(t): that would run Unlock's bookkeeping
// (and, on the last release, EnableInterrupts) keyed to the scheduler
// task's goroutine id instead of t's. Instead it adjusts t's counters
// itself, exactly as Unlock would have on t's behalf, and releases the
// lock with UnsafeUnlock, which touches no counters and enables nothing.
func (q *WaitQueue) Wait(k *Kernel, t *Task, external *TicketSpinLock) {
	k.DropWithDeferredAction(t, func() {
		t.waitElem = q.l.PushBack(t)
		t.setLocation(onWaitQueue)
		t.state = TaskBlocked
		t.spinlocksHeld.Add(-1)
		if t.interruptDisableCount.Add(-1) == 0 {
			t.knownExecutor = nil
		}
		external.UnsafeUnlock()
	})
}

func (q *WaitQueue) popFirst() *Task {
	e := q.l.Front()
	if e == nil {
		return nil
	}
	q.l.Remove(e)
	t := e.Value.(*Task)
	t.waitElem = nil
	t.setLocation(notQueued)
	return t
}

// TakeFirst removes and returns the longest-waiting task without waking
// or requeuing it, for callers that hand off ownership directly rather
// than making the waiter re-contend (Mutex's unlock path). The caller
// must hold external and is responsible for getting the task running
// again.
func (q *WaitQueue) TakeFirst() *Task {
	return q.popFirst()
}

// WakeOne wakes the longest-waiting task, if any, requeuing it ready on
// the executor it last ran on. The caller must hold external. Returns
// whether a task was woken.
func (q *WaitQueue) WakeOne(k *Kernel, external *TicketSpinLock) bool {
	t := q.popFirst()
	if t == nil {
		return false
	}
	k.requeueReady(k.callerOrForeign(), t)
	return true
}

// WakeAll wakes every currently waiting task and returns how many.
func (q *WaitQueue) WakeAll(k *Kernel, external *TicketSpinLock) int {
	n := 0
	for q.WakeOne(k, external) {
		n++
	}
	return n
}
