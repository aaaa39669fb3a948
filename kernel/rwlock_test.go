package kernel

import (
	"testing"
	"time"

	"gotest.tools/v3/assert"
)

func TestRwLockExcludesWriterFromReaders(t *testing.T) {
	k, _ := newTestKernel(t, 2)
	l := NewRwLock(k)

	readerHolding := make(chan struct{})
	release := make(chan struct{})
	_, err := k.CreateKernel("reader", func(self *Task) {
		l.RLock(k, self)
		close(readerHolding)
		<-release
		l.RUnlock(k, self)
	})
	assert.NilError(t, err)

	<-readerHolding
	assert.Equal(t, l.readerCount(), uint64(1))
	assert.Assert(t, !l.writerActive())

	writerDone := make(chan struct{})
	_, err = k.CreateKernel("writer", func(self *Task) {
		l.Lock(k, self) // must block until the reader releases
		close(writerDone)
		l.Unlock(k, self)
	})
	assert.NilError(t, err)

	time.Sleep(20 * time.Millisecond)
	select {
	case <-writerDone:
		t.Fatal("writer acquired the lock while a reader still held it")
	default:
	}

	close(release)
	select {
	case <-writerDone:
	case <-time.After(2 * time.Second):
		t.Fatal("writer never acquired the lock after the reader released")
	}
}

func TestRwLockTryUpgradeRequiresSoleReader(t *testing.T) {
	k, _ := newTestKernel(t, 1)
	l := NewRwLock(k)
	a := newTask(k, "a", KernelTask, false)
	b := newTask(k, "b", KernelTask, false)

	l.RLock(k, a)
	assert.Assert(t, l.TryUpgrade(a))
	l.Unlock(k, a) // now holding exclusively

	l.RLock(k, b)
	l.state++ // simulate a second concurrent reader without a second task
	assert.Assert(t, !l.TryUpgrade(b))
	l.state--
	l.RUnlock(k, b)
}
