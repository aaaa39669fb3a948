package main

import (
	"context"
	"flag"
	"fmt"
	"time"

	"github.com/google/subcommands"

	"github.com/cascadekernel/core/boot"
	"github.com/cascadekernel/core/config"
	"github.com/cascadekernel/core/kernel"
)

// bootCommand implements subcommands.Command for "boot": it brings up a
// simulated machine, runs a trivial init task, and reports what came up.
type bootCommand struct {
	executorCount int
	tickMillis    int
	runFor        time.Duration
}

func (*bootCommand) Name() string     { return "boot" }
func (*bootCommand) Synopsis() string { return "bring up a simulated machine and report on it" }
func (*bootCommand) Usage() string {
	return `boot [flags] - runs the four-stage SMP bring-up and exits once init has run.
`
}

func (c *bootCommand) SetFlags(f *flag.FlagSet) {
	f.IntVar(&c.executorCount, "executors", 0, "number of executors to bring up (0 = detect)")
	f.IntVar(&c.tickMillis, "tick-millis", 10, "periodic tick period in milliseconds")
	f.DurationVar(&c.runFor, "run-for", 100*time.Millisecond, "longest time to wait for init to run before exiting")
}

func (c *bootCommand) Execute(_ context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	cfg := config.Default()
	cfg.ExecutorCount = c.executorCount
	cfg.TickPeriodMillis = c.tickMillis
	if err := cfg.Validate(); err != nil {
		fmt.Println("invalid configuration:", err)
		return subcommands.ExitUsageError
	}

	done := make(chan struct{})
	res, err := boot.Boot(cfg, func(t *kernel.Task) {
		fmt.Printf("init task %q running on an executor\n", t.Name())
		close(done)
	})
	if err != nil {
		fmt.Println("boot failed:", err)
		return subcommands.ExitFailure
	}

	select {
	case <-done:
	case <-time.After(c.runFor):
	}
	fmt.Printf("brought up %d executors with a %s time source\n", len(res.Executors), res.TimeSource.Kind)
	return subcommands.ExitSuccess
}
