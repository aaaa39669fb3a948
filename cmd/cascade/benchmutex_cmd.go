package main

import (
	"context"
	"flag"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/subcommands"

	"github.com/cascadekernel/core/boot"
	"github.com/cascadekernel/core/config"
	"github.com/cascadekernel/core/kernel"
)

// benchMutexCommand hammers a single Mutex from several kernel tasks to
// give a feel for hand-off fairness under contention.
type benchMutexCommand struct {
	contenders int
	iterations int
}

func (*benchMutexCommand) Name() string     { return "bench-mutex" }
func (*benchMutexCommand) Synopsis() string { return "contend a Mutex from several tasks" }
func (*benchMutexCommand) Usage() string {
	return `bench-mutex [flags] - boots a machine and reports mutex acquisition counts per task.
`
}

func (c *benchMutexCommand) SetFlags(f *flag.FlagSet) {
	f.IntVar(&c.contenders, "contenders", 4, "number of tasks contending for the mutex")
	f.IntVar(&c.iterations, "iterations", 1000, "acquisitions per task")
}

func (c *benchMutexCommand) Execute(_ context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	cfg := config.Default()

	counts := make([]atomic.Int32, c.contenders)
	done := make(chan struct{})
	var remaining atomic.Int32
	remaining.Store(int32(c.contenders))

	res, err := boot.Boot(cfg, func(init *kernel.Task) {})
	if err != nil {
		fmt.Println("boot failed:", err)
		return subcommands.ExitFailure
	}

	m := kernel.NewMutex(res.Kernel)
	for i := 0; i < c.contenders; i++ {
		i := i
		_, err := res.Kernel.CreateKernel(fmt.Sprintf("contender-%d", i), func(t *kernel.Task) {
			for j := 0; j < c.iterations; j++ {
				m.Lock(res.Kernel, t)
				counts[i].Add(1)
				m.Unlock(res.Kernel, t)
				res.Kernel.Yield(t)
			}
			if remaining.Add(-1) == 0 {
				close(done)
			}
		})
		if err != nil {
			fmt.Println("failed to create contender:", err)
			return subcommands.ExitFailure
		}
	}

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		fmt.Println("timed out waiting for contenders")
		return subcommands.ExitFailure
	}

	for i := range counts {
		fmt.Printf("contender-%d: %d acquisitions\n", i, counts[i].Load())
	}
	return subcommands.ExitSuccess
}
