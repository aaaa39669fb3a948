package kernel

import (
	"testing"
	"time"

	"gotest.tools/v3/assert"
)

// TestMutexHandsOffDirectlyToWaiter exercises the property that makes this
// a hand-off mutex rather than a plain wake-and-race one: once a second
// task is blocked waiting, Unlock must name it the new owner outright, so
// a third task that calls Lock afterward can never jump the queue ahead
// of it.
func TestMutexHandsOffDirectlyToWaiter(t *testing.T) {
	// Two executors so the waiter can genuinely run concurrently with the
	// holder and actually block on the mutex, instead of only starting
	// once the holder cooperatively yields or finishes.
	k, _ := newTestKernel(t, 2)
	m := NewMutex(k)

	var order []string
	done := make(chan struct{})

	_, err := k.CreateKernel("holder", func(self *Task) {
		m.Lock(k, self)
		time.Sleep(5 * time.Millisecond) // give waiter time to block
		order = append(order, "holder")
		m.Unlock(k, self)
	})
	assert.NilError(t, err)

	_, err = k.CreateKernel("waiter", func(self *Task) {
		m.Lock(k, self)
		order = append(order, "waiter")
		m.Unlock(k, self)
		close(done)
	})
	assert.NilError(t, err)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for mutex handoff test to finish")
	}
	assert.DeepEqual(t, order, []string{"holder", "waiter"})
}

func TestMutexTryLockFailsWhileHeld(t *testing.T) {
	k, _ := newTestKernel(t, 1)
	m := NewMutex(k)
	a := newTask(k, "a", KernelTask, false)
	b := newTask(k, "b", KernelTask, false)

	assert.Assert(t, m.TryLock(a))
	assert.Assert(t, !m.TryLock(b))
	m.Unlock(k, a)
	assert.Assert(t, m.TryLock(b))
}

// TestMutexRecursiveLockIsFatal exercises that a task calling Lock a second
// time while it already holds the mutex outright (no intervening Unlock
// handing it back off) is a genuine recursive acquire, which spec.md §4.D
// and §7 both require to be a fatal invariant violation rather than a
// silent no-op success.
func TestMutexRecursiveLockIsFatal(t *testing.T) {
	k, _ := newTestKernel(t, 1)
	m := NewMutex(k)
	a := newTask(k, "a", KernelTask, false)

	assert.Assert(t, m.TryLock(a))

	defer func() {
		r := recover()
		assert.Assert(t, r != nil, "expected a fatal panic on recursive acquire")
		if _, ok := r.(interface{ Error() string }); !ok {
			t.Fatalf("panic value %v does not implement error", r)
		}
	}()
	m.Lock(k, a)
}
