package kernel

import (
	"testing"
	"time"

	"gotest.tools/v3/assert"

	"github.com/cascadekernel/core/arch/simarch"
)

func TestProcessCreateUserTaskRunsAndRegionsSnapshotIsIndependent(t *testing.T) {
	k, _ := newTestKernel(t, 1)
	k.StartCleanup()

	p, err := k.CreateProcess("init", simarch.NewPageTable("init"))
	assert.NilError(t, err)

	p.AddRegion(k.foreign, Region{Name: "text", Base: 0x1000, Length: 0x2000})

	done := make(chan struct{})
	_, err = p.CreateUserTask("main", func(self *Task) {
		snap := p.SnapshotRegions(self)
		assert.Equal(t, len(snap), 1)
		snap["text"] = Region{Name: "text", Base: 0xdead, Length: 1}
		close(done)
	})
	assert.NilError(t, err)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("user task never ran")
	}

	// Mutating the snapshot returned above must not affect the process's
	// own region map.
	original := p.SnapshotRegions(k.foreign)
	assert.Equal(t, original["text"].Base, uint64(0x1000))
}

func TestProcessDecRefOnLastTaskForgotten(t *testing.T) {
	k, _ := newTestKernel(t, 1)
	k.StartCleanup()

	p, err := k.CreateProcess("solo", simarch.NewPageTable("solo"))
	assert.NilError(t, err)
	assert.Equal(t, p.refCount.Load(), int32(1))

	done := make(chan struct{})
	_, err = p.CreateUserTask("only", func(self *Task) {
		close(done)
	})
	assert.NilError(t, err)
	assert.Equal(t, p.refCount.Load(), int32(2))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("user task never ran")
	}

	deadline := time.Now().Add(2 * time.Second)
	for p.refCount.Load() > 1 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	assert.Equal(t, p.refCount.Load(), int32(1))
}
