package kernel

import (
	"sync/atomic"

	"github.com/cascadekernel/core/internal/kerrors"
)

// unlockType distinguishes a mutex that is free for anyone to take from one
// that has been handed directly to a specific waiter (spec.md §4.D): only
// in the latter case may the named task's own Lock call succeed without
// having raced anyone for it.
type unlockType int8

const (
	unlocked unlockType = iota
	passedToWaiter
)

// Mutex is a hand-off mutex (spec.md's description of Mutex): on unlock,
// ownership transfers directly to the longest-waiting blocked task, if
// any, instead of merely waking it to re-contend for the lock. Without
// the handoff, a woken waiter can lose a fresh race to an unrelated task
// that happened to call Lock in the meantime, and starve indefinitely
// under enough contention; with it, whoever Unlock names is guaranteed to
// get the lock next.
type Mutex struct {
	guard   *TicketSpinLock
	waiters *WaitQueue

	lockedBy   atomic.Pointer[Task]
	unlockType unlockType
}

// NewMutex returns an unlocked Mutex.
func NewMutex(k *Kernel) *Mutex {
	return &Mutex{guard: newTicketSpinLock(k), waiters: NewWaitQueue()}
}

// TryLock acquires the mutex only if it is immediately free, never
// blocking.
func (m *Mutex) TryLock(t *Task) bool {
	m.guard.Lock(t)
	defer m.guard.Unlock(t)
	if m.lockedBy.Load() == nil {
		m.lockedBy.Store(t)
		m.unlockType = unlocked
		return true
	}
	return false
}

// Lock blocks until the mutex is held by t, either by acquiring it free
// or by being handed it directly by a concurrent Unlock. Calling Lock
// again from a task that already holds the mutex outright (unlockType
// still unlocked) is a genuine recursive acquire, not a hand-off, and is a
// fatal invariant violation (spec.md §4.D, §7).
func (m *Mutex) Lock(k *Kernel, t *Task) {
	m.guard.Lock(t)
	for {
		cur := m.lockedBy.Load()
		if cur == nil {
			m.lockedBy.Store(t)
			m.unlockType = unlocked
			m.guard.Unlock(t)
			return
		}
		if cur == t {
			if m.unlockType != passedToWaiter {
				kerrors.Fatal(k.currentExecutorID(), "recursive mutex acquire by %q", t.name)
			}
			// Unlock handed us direct ownership while we were waiting;
			// nothing left to contend for. Consume the hand-off so a
			// later genuine recursive Lock from t is still caught.
			m.unlockType = unlocked
			m.guard.Unlock(t)
			return
		}
		m.waiters.Wait(k, t, m.guard)
		m.guard.Lock(t)
	}
}

// Unlock releases the mutex, handing it directly to the longest-waiting
// task if one exists. t must be the current owner.
func (m *Mutex) Unlock(k *Kernel, t *Task) {
	m.guard.Lock(t)
	if m.lockedBy.Load() != t {
		kerrors.Fatal(k.currentExecutorID(), "mutex unlocked by non-owner %q", t.name)
	}
	next := m.waiters.TakeFirst()
	if next == nil {
		m.lockedBy.Store(nil)
		m.unlockType = unlocked
		m.guard.Unlock(t)
		return
	}
	m.lockedBy.Store(next)
	m.unlockType = passedToWaiter
	k.requeueReady(t, next)
	m.guard.Unlock(t)
}
