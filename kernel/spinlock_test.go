package kernel

import (
	"testing"

	"gotest.tools/v3/assert"

	"github.com/cascadekernel/core/arch/simarch"
)

func newTestKernel(t *testing.T, executors int) (*Kernel, []*Executor) {
	t.Helper()
	k := New(simarch.New(), simarch.NewPageTable("test"), 0)
	var exs []*Executor
	for i := 0; i < executors; i++ {
		exs = append(exs, k.CreateExecutor(i))
	}
	return k, exs
}

func TestTicketSpinLockBlocksSecondLockerUntilUnlock(t *testing.T) {
	k, _ := newTestKernel(t, 1)
	lock := newTicketSpinLock(k)

	a := newTask(k, "a", KernelTask, false)
	b := newTask(k, "b", KernelTask, false)

	lock.Lock(a)
	assert.Assert(t, lock.IsLockedByCurrent(a))
	assert.Assert(t, !lock.IsLockedByCurrent(b))

	done := make(chan struct{})
	go func() {
		lock.Lock(b) // must block until a unlocks
		close(done)
		lock.Unlock(b)
	}()

	select {
	case <-done:
		t.Fatal("b acquired the lock while a still held it")
	default:
	}

	lock.Unlock(a)
	<-done
}

func TestTicketSpinLockUnlockByNonHolderIsFatal(t *testing.T) {
	k, _ := newTestKernel(t, 1)
	lock := newTicketSpinLock(k)
	a := newTask(k, "a", KernelTask, false)
	b := newTask(k, "b", KernelTask, false)

	lock.Lock(a)

	defer func() {
		r := recover()
		assert.Assert(t, r != nil, "expected a fatal panic")
		if _, ok := r.(interface{ Error() string }); !ok {
			t.Fatalf("panic value %v does not implement error", r)
		}
	}()
	lock.Unlock(b)
}

func TestTicketSpinLockDoubleUnlockIsFatal(t *testing.T) {
	k, _ := newTestKernel(t, 1)
	lock := newTicketSpinLock(k)
	a := newTask(k, "a", KernelTask, false)

	lock.Lock(a)
	lock.Unlock(a)

	defer func() {
		r := recover()
		assert.Assert(t, r != nil, "expected a fatal panic on double unlock")
	}()
	lock.Unlock(a)
}

func TestTicketSpinLockNestedAcquisitionTracksCounts(t *testing.T) {
	k, _ := newTestKernel(t, 1)
	outer := newTicketSpinLock(k)
	inner := newTicketSpinLock(k)
	a := newTask(k, "a", KernelTask, false)

	outer.Lock(a)
	assert.Equal(t, a.spinlocksHeld.Load(), int32(1))
	assert.Equal(t, a.interruptDisableCount.Load(), int32(1))

	inner.Lock(a)
	assert.Equal(t, a.spinlocksHeld.Load(), int32(2))
	assert.Equal(t, a.interruptDisableCount.Load(), int32(2))

	inner.Unlock(a)
	assert.Equal(t, a.spinlocksHeld.Load(), int32(1))

	outer.Unlock(a)
	assert.Equal(t, a.spinlocksHeld.Load(), int32(0))
}
