package kernel

import (
	"fmt"
	"sync/atomic"

	"github.com/mohae/deepcopy"

	"github.com/cascadekernel/core/arch"
	"github.com/cascadekernel/core/internal/kerrors"
	"github.com/cascadekernel/core/internal/klog"
)

// Region describes one mapped range of a process's address space. The
// memory-management layer that actually backs these mappings is out of
// scope (spec.md Non-goals); Process only owns the bookkeeping a task
// switch needs: which page table to load and which task set to account
// against.
type Region struct {
	Name   string
	Base   uint64
	Length uint64
}

// Process owns one address space and the set of user tasks running in it
// (spec.md §3's process/task-set relationship). The task set is guarded
// by an RwLock since lookups (e.g. signal delivery, debug enumeration)
// vastly outnumber membership changes.
type Process struct {
	k *Kernel

	name      string
	pageTable arch.PageTable

	refCount atomic.Int32

	tasksLock *RwLock
	tasks     map[*Task]struct{}

	regionsLock *RwLock
	regions     map[string]Region
}

// CreateProcess builds a new process with its own page table and an empty task
// set. It implements spec.md §6's Process.create.
func (k *Kernel) CreateProcess(name string, pageTable arch.PageTable) (*Process, error) {
	if pageTable == nil {
		return nil, kerrors.NewConstructionError("process "+name, fmt.Errorf("nil page table"))
	}
	p := &Process{
		k:           k,
		name:        name,
		pageTable:   pageTable,
		tasksLock:   NewRwLock(k),
		tasks:       make(map[*Task]struct{}),
		regionsLock: NewRwLock(k),
		regions:     make(map[string]Region),
	}
	p.refCount.Store(1)
	return p, nil
}

// Name returns the process's display name.
func (p *Process) Name() string { return p.name }

// AddRegion records a mapped address-space range.
func (p *Process) AddRegion(current *Task, r Region) {
	p.regionsLock.Lock(p.k, current)
	p.regions[r.Name] = r
	p.regionsLock.Unlock(p.k, current)
}

// SnapshotRegions returns a deep copy of the process's region map, safe
// for the caller to inspect or mutate without affecting the process
// itself (used by the debug/introspection layer, which must never see a
// map that changes under it mid-read).
func (p *Process) SnapshotRegions(current *Task) map[string]Region {
	p.regionsLock.RLock(p.k, current)
	defer p.regionsLock.RUnlock(p.k, current)
	return deepcopy.Copy(p.regions).(map[string]Region)
}

// CreateUserTask creates a user task belonging to this process and queues
// it ready to run (spec.md §6's Task.create_user).
func (p *Process) CreateUserTask(name string, entry func(*Task)) (*Task, error) {
	if entry == nil {
		return nil, kerrors.NewConstructionError("user task "+name, fmt.Errorf("nil entry"))
	}
	k := p.k
	t := newTask(k, name, UserTask, false)
	t.entry = entry
	t.process = p
	p.IncRef()
	k.registerTask(t)

	caller := k.callerOrForeign()

	p.tasksLock.Lock(k, caller)
	p.tasks[t] = struct{}{}
	p.tasksLock.Unlock(k, caller)

	ex := k.pickExecutor()
	acquired := k.lockSchedulerIfNeeded(caller)
	ex.ready.pushBack(t)
	if acquired {
		k.unlockSchedulerAs(caller)
	}

	go t.runLoop()
	klog.WithFields(map[string]interface{}{"task": name, "kind": "user", "process": p.name}).Debugf("task created")
	return t, nil
}

func (p *Process) forgetTask(t *Task) {
	caller := p.k.callerOrForeign()
	p.tasksLock.Lock(p.k, caller)
	delete(p.tasks, t)
	p.tasksLock.Unlock(p.k, caller)
	p.DecRef()
}

// IncRef increments the process's reference count.
func (p *Process) IncRef() { p.refCount.Add(1) }

// DecRef decrements the process's reference count, logging the release of
// its address space once the last task and the last external reference are
// both gone. The page table itself is not touched.
func (p *Process) DecRef() {
	if p.refCount.Add(-1) == 0 {
		klog.WithFields(map[string]interface{}{"process": p.name}).Infof("process address space released")
	}
}
