package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"gotest.tools/v3/assert"
)

func TestDefaultIsValid(t *testing.T) {
	assert.NilError(t, Default().Validate())
	assert.Equal(t, Default().TickPeriod(), 10*time.Millisecond)
}

func TestLoadOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cascade.toml")
	contents := "tick_period_millis = 5\nexecutor_count = 4\nready_queue_discipline = \"fifo\"\n"
	assert.NilError(t, os.WriteFile(path, []byte(contents), 0o644))

	cfg, err := Load(path)
	assert.NilError(t, err)
	assert.Equal(t, cfg.TickPeriodMillis, 5)
	assert.Equal(t, cfg.ExecutorCountOr(99), 4)
	assert.Equal(t, cfg.ReadyQueue, FIFO)
}

func TestValidateAggregatesEveryProblem(t *testing.T) {
	cfg := &Config{TickPeriodMillis: -1, ExecutorCount: -1, ReadyQueue: "bogus"}
	err := cfg.Validate()
	assert.ErrorContains(t, err, "tick_period_millis")
	assert.ErrorContains(t, err, "executor_count")
	assert.ErrorContains(t, err, "ready_queue_discipline")
}

func TestExecutorCountOrFallsBackWhenUnset(t *testing.T) {
	cfg := Default()
	assert.Equal(t, cfg.ExecutorCountOr(8), 8)
}
