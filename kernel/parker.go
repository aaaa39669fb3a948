package kernel

import "sync/atomic"

// Parker is a single-slot, one-shot blocking primitive (spec.md §4.E): at
// most one pending wakeup is remembered at a time, and any number of
// Unpark calls that race ahead of a matching Park coalesce into that one
// slot rather than queuing. A successful Park may also return spuriously;
// callers must always re-check their own condition afterward.
type Parker struct {
	permit atomic.Bool
	waiter atomic.Pointer[Task]

	unparkAttempts atomic.Uint64
}

// NewParker returns an unparked Parker with no pending permit.
func NewParker() *Parker {
	return &Parker{}
}

// UnparkAttempts returns the number of Unpark calls observed so far,
// including ones that coalesced with an already-pending permit. Exposed
// for tests asserting coalescing behaviour.
func (p *Parker) UnparkAttempts() uint64 {
	return p.unparkAttempts.Load()
}

// Park blocks t until a matching Unpark, unless a permit is already
// pending, in which case it consumes it and returns immediately.
func (p *Parker) Park(k *Kernel, t *Task) {
	if p.permit.CompareAndSwap(true, false) {
		return
	}
	p.waiter.Store(t)
	k.DropWithDeferredAction(t, func() {
		// This closure runs on t's executor's scheduler task, which is the
		// one actually holding the scheduler lock at this point; t itself
		// gave it up the instant it switched off. requeueReady must be
		// told that, or it will try to acquire a ticket t no longer needs
		// and spin against the lock its own executor is already holding.
		sched := t.runningOn.schedulerTask
		// An Unpark may have landed between our failed CompareAndSwap
		// above and this deferred action running; re-check before
		// committing to sleep so that wakeup is never lost.
		if p.permit.CompareAndSwap(true, false) {
			p.waiter.CompareAndSwap(t, nil)
			k.requeueReady(sched, t)
			return
		}
		t.state = TaskBlocked
	})
}

// Unpark deposits one permit, waking the current waiter if there is one.
// A permit deposited with nobody parked is remembered for the next Park.
func (p *Parker) Unpark(k *Kernel) {
	p.unparkAttempts.Add(1)
	if !p.permit.CompareAndSwap(false, true) {
		return // already a pending permit; this call coalesces with it
	}
	w := p.waiter.Load()
	if w == nil {
		return // nobody parked yet; the permit waits for the next Park
	}
	if !p.permit.CompareAndSwap(true, false) {
		return // Park's own re-check already consumed it
	}
	if !p.waiter.CompareAndSwap(w, nil) {
		p.permit.Store(true) // lost the race for w; leave the permit pending
		return
	}
	k.requeueReady(k.callerOrForeign(), w)
}
