// Package kernel implements the scheduling and task-synchronisation core:
// the lifecycle of schedulable tasks, the switching engine that moves
// execution between them on each of several hardware executors, and the
// blocking primitives (TicketSpinLock, Mutex, RwLock, WaitQueue, Parker)
// every other kernel subsystem composes upon.
//
// A Task's "register context" in this module is the Go goroutine backing
// it: the Go runtime already saves and restores a blocked goroutine's
// state, which is exactly what switch_task/switch_task_no_save/
// call_on_stack do on real hardware. Kernel.park and Kernel.resume are the
// only two primitives that move control between goroutines; everything
// else in this package (ready queues, the scheduler lock, deferred
// actions, the cleanup service) is built on top of that handshake.
package kernel
