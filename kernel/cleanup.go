package kernel

import (
	"github.com/cascadekernel/core/internal/kerrors"
	"github.com/cascadekernel/core/internal/klog"
)

// CleanupService reaps tasks whose reference count has dropped to zero.
// Queueing is a send on a buffered channel (spec.md §4.I): any task or
// interrupt path can enqueue without contending for the scheduler lock,
// and a dedicated kernel task drains the channel and runs each task's final
// teardown.
type CleanupService struct {
	k *Kernel

	incoming chan *Task
	worker   *Task
}

func newCleanupService(k *Kernel) *CleanupService {
	return &CleanupService{
		k:        k,
		incoming: make(chan *Task, 256),
	}
}

// StartCleanup creates the cleanup worker task. Called once during boot,
// after at least one executor exists.
func (k *Kernel) StartCleanup() {
	k.cleanup.start()
}

func (c *CleanupService) start() {
	t, err := c.k.CreateKernel("cleanup", c.run)
	if err != nil {
		panic(err) // construction cannot fail here: entry is never nil
	}
	c.worker = t
}

func (c *CleanupService) enqueue(t *Task) {
	if !t.queuedForCleanup.CompareAndSwap(false, true) {
		kerrors.Fatal(c.k.currentExecutorID(), "task %q queued for cleanup twice", t.name)
	}
	c.incoming <- t
}

// run drains the incoming list and performs each dead task's full teardown:
// freeing its stack, removing it from the kernel's task registry and (for
// user tasks) the owning process's task set, off the switching engine's
// critical path (spec.md §4.I).
func (c *CleanupService) run(self *Task) {
	for {
		select {
		case dead := <-c.incoming:
			klog.WithFields(map[string]interface{}{"task": dead.name}).Debugf("reaping task")
			dead.stack.Free()
			c.k.unregisterTask(dead)
			if dead.process != nil {
				dead.process.forgetTask(dead)
			}
		default:
			// Nothing to reap: hand the executor to whatever else is ready
			// instead of blocking on the channel while still running on it.
			c.k.arch.Halt()
			c.k.Yield(self)
		}
	}
}
