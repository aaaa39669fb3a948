package boot

import (
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff"
)

// Barrier is Stage 3 of bring-up: every executor must arrive before Wait
// lets bring-up proceed past it. The completion flag is a release:
// once it flips, every Arrive that happened-before it is visible to every
// Wait that observes it, matching spec.md's acquire/release framing for
// SMP bring-up.
type Barrier struct {
	n     int32
	count atomic.Int32
	done  atomic.Bool
}

// NewBarrier returns a barrier that releases once n executors have
// arrived.
func NewBarrier(n int) *Barrier {
	return &Barrier{n: int32(n)}
}

// Arrive records that the calling executor has reached the barrier.
func (b *Barrier) Arrive() {
	if b.count.Add(1) == b.n {
		b.done.Store(true)
	}
}

// Wait blocks until every executor has arrived.
func (b *Barrier) Wait() {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 100 * time.Microsecond
	bo.MaxInterval = 5 * time.Millisecond
	bo.MaxElapsedTime = 0
	for !b.done.Load() {
		time.Sleep(bo.NextBackOff())
	}
}
