// Package simarch is the one concrete arch.Arch this module ships: a
// goroutine-hosted simulation of a multi-executor machine, standing in for
// the real IDT/GDT/APIC bring-up and assembly primitives that are explicitly
// out of scope for the scheduling core (spec.md §1). Interrupt-enable state
// is tracked per goroutine (the closest Go analog to a per-CPU flags
// register) using the goid registry, following the same pattern gVisor's
// own pkg/goid is used for in pkg/sentry/kernel/task_run.go.
package simarch

import (
	"runtime"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"github.com/cascadekernel/core/internal/goid"
)

// Arch is a goroutine-backed arch.Arch.
type Arch struct {
	interrupts sync.Map // goroutine id (uint64) -> bool (enabled)
}

// New returns a fresh simulated architecture. One Arch is shared by every
// Executor in a Kernel.
func New() *Arch {
	return &Arch{}
}

func (a *Arch) DisableInterrupts() {
	a.interrupts.Store(goid.Get(), false)
}

func (a *Arch) EnableInterrupts() {
	a.interrupts.Store(goid.Get(), true)
}

func (a *Arch) InterruptsEnabled() bool {
	v, ok := a.interrupts.Load(goid.Get())
	if !ok {
		// A goroutine that has never touched interrupt state is, by
		// convention, running with interrupts enabled (matching a freshly
		// booted executor before Stage 2 first disables them).
		return true
	}
	return v.(bool)
}

// Halt waits for the next simulated interrupt (the periodic tick, or an
// IPI). A short nanosleep stands in for the real "hlt" instruction's wait;
// unlike a busy spin it actually yields the OS thread.
func (a *Arch) Halt() {
	req := unix.NsecToTimespec((2 * time.Millisecond).Nanoseconds())
	_ = unix.Nanosleep(&req, nil)
}

// SpinLoopHint yields the processor for one scheduling quantum, the
// simulated analog of a "pause"/"yield" instruction inside a spin loop.
func (a *Arch) SpinLoopHint() {
	runtime.Gosched()
}

// NumCPU stands in for ACPI/MADT enumeration of hardware threads.
func (a *Arch) NumCPU() int {
	return runtime.NumCPU()
}

func (a *Arch) EnableUserMemoryAccess()  {}
func (a *Arch) DisableUserMemoryAccess() {}

// PageTable is a named, otherwise-inert arch.PageTable: the simulation
// has no real address-space backing to load, only the identity a task
// switch needs to compare against.
type PageTable struct {
	id string
}

// NewPageTable returns a PageTable identified by id.
func NewPageTable(id string) *PageTable { return &PageTable{id: id} }

func (p *PageTable) ID() string { return p.id }

func (p *PageTable) Load() {}
