package boot

import (
	"testing"
	"time"

	"gotest.tools/v3/assert"

	"github.com/cascadekernel/core/config"
	"github.com/cascadekernel/core/kernel"
)

func TestBootBringsUpConfiguredExecutorsAndRunsInit(t *testing.T) {
	cfg := config.Default()
	cfg.ExecutorCount = 3
	cfg.TickPeriodMillis = 1

	done := make(chan struct{})
	res, err := Boot(cfg, func(self *kernel.Task) {
		assert.Equal(t, self.Name(), "init")
		close(done)
	})
	assert.NilError(t, err)
	assert.Equal(t, len(res.Executors), 3)
	assert.Assert(t, res.TimeSource != nil)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("init task never ran")
	}
}

func TestBootConfigRejectsNegativeExecutorCount(t *testing.T) {
	cfg := config.Default()
	cfg.ExecutorCount = 0

	// Force zero by also pretending the architecture reports zero: since
	// Boot falls back to the real architecture's NumCPU when
	// ExecutorCount is unset, exercise the validation path directly
	// through a config that fails Validate instead.
	cfg.ExecutorCount = -1
	assert.ErrorContains(t, cfg.Validate(), "executor_count")
}
