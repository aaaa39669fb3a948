// Package boot drives the four-stage SMP bring-up described in spec.md:
// detect how many executors there are, bring all of them up concurrently,
// barrier until all of them have reported in, then select a time source
// and hand off to the init task.
package boot

import (
	"golang.org/x/sync/errgroup"

	"github.com/cascadekernel/core/arch"
	"github.com/cascadekernel/core/arch/simarch"
	"github.com/cascadekernel/core/config"
	"github.com/cascadekernel/core/internal/kerrors"
	"github.com/cascadekernel/core/internal/klog"
	"github.com/cascadekernel/core/kernel"
)

// Result is everything a caller needs after a successful boot.
type Result struct {
	Kernel     *kernel.Kernel
	Arch       arch.Arch
	TimeSource *TimeSource
	Executors  []*kernel.Executor
}

// Boot runs all four bring-up stages and returns a running Kernel with its
// init task already scheduled, or an error aggregated through
// kerrors.BootError describing whatever went wrong. init runs as a kernel
// task created once Stage 4 has started the cleanup service.
func Boot(cfg *config.Config, init func(*kernel.Task)) (*Result, error) {
	a := simarch.New()
	numCPU := cfg.ExecutorCountOr(a.NumCPU())
	if numCPU < 1 {
		return nil, (&kerrors.BootError{}).Append(errNoExecutors()).ErrorOrNil()
	}

	k := kernel.New(a, simarch.NewPageTable("kernel"), cfg.TickPeriod())
	klog.WithFields(map[string]interface{}{"executors": numCPU}).Infof("stage 1: boot executor detected %d hardware threads", numCPU)

	// Stage 2: bring up every executor concurrently.
	barrier := NewBarrier(numCPU)
	executors := make([]*kernel.Executor, numCPU)
	var eg errgroup.Group
	for i := 0; i < numCPU; i++ {
		i := i
		eg.Go(func() error {
			executors[i] = k.CreateExecutor(i)
			barrier.Arrive()
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, (&kerrors.BootError{}).Append(err).ErrorOrNil()
	}

	// Stage 3: nobody proceeds past this point until every executor from
	// Stage 2 has reported in.
	barrier.Wait()
	klog.Infof("stage 3: all %d executors synchronised", numCPU)

	// Stage 4: calibrate the chosen time source, start the cleanup
	// service, and hand off to init.
	ts := SelectTimeSource(cfg.TickPeriod())
	drift := ts.Calibrate()
	klog.WithFields(map[string]interface{}{
		"time_source": ts.Kind.String(),
		"tick_period": ts.TickPeriod,
		"drift":       drift,
	}).Infof("stage 4: time source calibrated")

	k.StartCleanup()

	if init != nil {
		if _, err := k.CreateKernel("init", init); err != nil {
			return nil, (&kerrors.BootError{}).Append(err).ErrorOrNil()
		}
	}

	return &Result{Kernel: k, Arch: a, TimeSource: ts, Executors: executors}, nil
}

type bootError string

func (e bootError) Error() string { return string(e) }

func errNoExecutors() error {
	return bootError("stage 1: architecture reported zero usable hardware threads")
}
