package kernel

import "sync/atomic"

var stackIDs atomic.Uint64

// Stack stands in for the kernel-stack arena a real switch_task would
// pivot onto; address-space/slab allocation is explicitly out of scope
// (spec.md Non-goals), so this is identity and bookkeeping only.
type Stack struct {
	id    uint64
	owner string
	freed atomic.Bool
}

func newStack(owner string) *Stack {
	return &Stack{id: stackIDs.Add(1), owner: owner}
}

// Free marks the stack as released. Calling it twice is a bug in the
// caller, not a recoverable condition: it would otherwise silently hide a
// double-free of the memory a real stack occupies.
func (s *Stack) Free() {
	if !s.freed.CompareAndSwap(false, true) {
		panic("double free of task stack for " + s.owner)
	}
}
