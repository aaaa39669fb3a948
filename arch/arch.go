// Package arch defines the boundary the scheduling core consumes from the
// architecture layer (spec.md §6): interrupt masking, halting, the
// spin-loop hint, and the page-table/user-memory-access hooks that fire on
// kernel/user transitions. It deliberately does not cover task context
// switching: on bare metal that is a handful of assembly primitives that
// save/restore registers, but in this Go module the "register set" a task
// owns is its own goroutine stack, which the Go runtime already saves and
// restores whenever the goroutine blocks. The kernel package therefore
// implements switch_task/switch_task_no_save/call_on_stack directly as
// goroutine park/resume handshakes on Task and the per-executor scheduler
// task, the same way gVisor's own Task.run() relies on the Go scheduler
// for the mechanics of suspending and resuming a task instead of routing
// through its platform.Platform abstraction (which, like this package,
// only covers address spaces, interrupts, and privilege transitions).
package arch

// Kind distinguishes kernel and user execution contexts for the
// beforeSwitchTask transition table in spec.md §4.H.
type Kind int

const (
	KernelKind Kind = iota
	UserKind
)

func (k Kind) String() string {
	if k == UserKind {
		return "user"
	}
	return "kernel"
}

// Transition describes a kernel/user crossing around a task switch.
type Transition struct {
	Old, New Kind
}

// PageTable is the architecture's handle for a process's (or the core
// kernel's) address space. The memory layer is an external collaborator
// (spec.md §1); this interface is the only surface the core touches.
type PageTable interface {
	// ID distinguishes page tables for the "iff process differs" checks in
	// the beforeSwitchTask transition table.
	ID() string
	Load()
}

// Arch is the set of primitives the scheduling core consumes from the
// architecture layer, per spec.md §6.
type Arch interface {
	// DisableInterrupts, EnableInterrupts, and InterruptsEnabled operate on
	// whatever hardware thread is backing the calling goroutine at the
	// moment of the call.
	DisableInterrupts()
	EnableInterrupts()
	InterruptsEnabled() bool

	// Halt waits for the next interrupt. Called by the idle loop between
	// ready-queue checks.
	Halt()

	// SpinLoopHint is issued once per iteration of a TicketSpinLock's spin
	// loop.
	SpinLoopHint()

	// NumCPU returns the number of executors to bring up during Stage 1,
	// standing in for ACPI/MADT/device-tree enumeration.
	NumCPU() int

	// EnableUserMemoryAccess and DisableUserMemoryAccess toggle the
	// hardware's user-memory access bit (e.g. SMAP) for the calling
	// hardware thread.
	EnableUserMemoryAccess()
	DisableUserMemoryAccess()
}
