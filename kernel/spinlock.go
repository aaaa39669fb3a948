package kernel

import (
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff"

	"github.com/cascadekernel/core/internal/kerrors"
)

// TicketSpinLock is a ticket (bakery) spinlock: waiters are served in the
// order they arrived, never later than any task that arrived after them
// (spec.md §4.A). It is built for nested acquisition by the same task
// (recursive spinlocks_held/interrupt_disable_count bookkeeping) and for
// the scheduler lock's holder-rebind-without-release handoff used by the
// switching engine.
type TicketSpinLock struct {
	k *Kernel

	nextTicket    atomic.Uint64
	servingTicket atomic.Uint64

	holder atomic.Pointer[Task]
}

func newTicketSpinLock(k *Kernel) *TicketSpinLock {
	return &TicketSpinLock{k: k}
}

// Lock acquires the lock on behalf of t, spinning until t's ticket is being
// served. Re-entrant in the sense that the same task can hold several
// distinct TicketSpinLocks nested, never the same one twice (that deadlocks
// against its own ticket exactly as it would on real hardware).
func (l *TicketSpinLock) Lock(t *Task) {
	my := l.nextTicket.Add(1) - 1

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 50 * time.Microsecond
	b.MaxInterval = 2 * time.Millisecond
	b.MaxElapsedTime = 0 // never give up; a spinlock always eventually serves its ticket

	for l.servingTicket.Load() != my {
		l.k.arch.SpinLoopHint()
		time.Sleep(b.NextBackOff())
	}
	l.acquireBookkeeping(t)
}

// TryLock acquires the lock only if it is immediately free for the next
// ticket, never spinning. Nothing in this package calls it; Mutex.TryLock
// takes its guard with Lock.
func (l *TicketSpinLock) TryLock(t *Task) bool {
	for {
		serving := l.servingTicket.Load()
		next := l.nextTicket.Load()
		if serving != next {
			return false
		}
		if l.nextTicket.CompareAndSwap(next, next+1) {
			l.acquireBookkeeping(t)
			return true
		}
	}
}

func (l *TicketSpinLock) acquireBookkeeping(t *Task) {
	if t.interruptDisableCount.Load() == 0 {
		l.k.arch.DisableInterrupts()
	}
	t.spinlocksHeld.Add(1)
	t.interruptDisableCount.Add(1)
	t.knownExecutor = t.runningOn
	l.holder.Store(t)
}

// Unlock releases the lock. t must be the current holder; unlocking twice
// or unlocking from a task that never acquired the lock is a fatal
// invariant violation, not a recoverable error (spec.md §4.A).
func (l *TicketSpinLock) Unlock(t *Task) {
	h := l.holder.Load()
	if h == nil {
		kerrors.Fatal(l.k.currentExecutorID(), "double unlock of spinlock held by %q", t.name)
	}
	if h != t {
		kerrors.Fatal(l.k.currentExecutorID(), "spinlock unlocked by %q, held by %q", t.name, h.name)
	}
	l.releaseBookkeeping(t)
	l.servingTicket.Add(1)
}

func (l *TicketSpinLock) releaseBookkeeping(t *Task) {
	t.spinlocksHeld.Add(-1)
	t.interruptDisableCount.Add(-1)
	if t.interruptDisableCount.Load() == 0 {
		l.k.arch.EnableInterrupts()
		t.knownExecutor = nil
	}
	l.holder.Store(nil)
}

// UnsafeUnlock releases the lock without touching the holder's counters.
// It exists for the cleanup/deferred-action path, where the counters were
// already adjusted by the caller against a different task than the one
// physically running the unlock (spec.md §4.H).
func (l *TicketSpinLock) UnsafeUnlock() {
	l.holder.Store(nil)
	l.servingTicket.Add(1)
}

// IsLockedByCurrent reports whether t is the lock's current holder. Used by
// lockSchedulerIfNeeded to make scheduler-lock acquisition idempotent for a
// task that already holds it.
func (l *TicketSpinLock) IsLockedByCurrent(t *Task) bool {
	return l.holder.Load() == t
}

// RebindHolder transfers holder bookkeeping from one task to another
// without releasing or re-acquiring a ticket: the underlying mutual
// exclusion was never given up, only the identity of which task's counters
// account for it changes. This is exactly the switching engine's scheduler-
// lock handoff (spec.md §4.G): the outgoing task's hold ends and the
// incoming task's hold begins in the same instant, with no window in which
// neither (or both) show it held.
func (l *TicketSpinLock) RebindHolder(from, to *Task) {
	h := l.holder.Load()
	if h != from {
		kerrors.Fatal(l.k.currentExecutorID(), "scheduler lock rebind from non-holder %q", from.name)
	}
	from.setSchedulerHeld(false)
	to.setSchedulerHeld(true)
	l.holder.Store(to)
}
