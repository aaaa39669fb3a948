package kernel

import (
	"testing"
	"time"

	"gotest.tools/v3/assert"
)

// TestPreemptionDeferredWhileSpinlockHeld checks the central invariant of
// maybePreempt: a tick arriving while the current task holds a spinlock
// must not yield it there and then, only leave the request pending for
// the next safe exit.
func TestPreemptionDeferredWhileSpinlockHeld(t *testing.T) {
	k, _ := newTestKernel(t, 1)
	lock := newTicketSpinLock(k)

	var order []string
	done := make(chan struct{})

	_, err := k.CreateKernel("holder", func(self *Task) {
		lock.Lock(self)

		// A tick arrives mid-critical-section.
		entry := k.OnInterruptEntry()
		k.RequestPreemption(entry)
		k.OnInterruptExit(entry)

		// Still running: the request must have been deferred rather
		// than acted on immediately.
		assert.Assert(t, self.preemptionPending.Load())
		order = append(order, "holder-after-tick")

		lock.Unlock(self)

		// Now that no spinlock is held, the next safe exit must
		// actually yield.
		entry = k.OnInterruptEntry()
		k.OnInterruptExit(entry) // no new request; the earlier one is still pending
		order = append(order, "holder-after-unlock")
		close(done)
	})
	assert.NilError(t, err)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("holder task never finished")
	}

	assert.DeepEqual(t, order, []string{"holder-after-tick", "holder-after-unlock"})
}

// TestPeriodicTickYieldsWithNoLocksHeld checks that PeriodicTick's
// entry/request/exit sequence actually round-trips through Yield when
// nothing prevents it, by observing a second ready task run in between a
// tick and the ticked task's own continuation.
func TestPeriodicTickYieldsWithNoLocksHeld(t *testing.T) {
	k, _ := newTestKernel(t, 1)

	var order []string
	otherDone := make(chan struct{})
	tickedDone := make(chan struct{})

	_, err := k.CreateKernel("ticked", func(self *Task) {
		order = append(order, "ticked-before")
		_, err := k.CreateKernel("other", func(other *Task) {
			order = append(order, "other")
			close(otherDone)
		})
		assert.NilError(t, err)

		k.PeriodicTick() // must yield to "other", queued ahead of self
		order = append(order, "ticked-after")
		close(tickedDone)
	})
	assert.NilError(t, err)

	select {
	case <-otherDone:
	case <-time.After(2 * time.Second):
		t.Fatal("second task never ran after the first ticked")
	}
	select {
	case <-tickedDone:
	case <-time.After(2 * time.Second):
		t.Fatal("ticked task never resumed after yielding")
	}

	assert.DeepEqual(t, order, []string{"ticked-before", "other", "ticked-after"})
}
