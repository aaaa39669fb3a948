// Package config loads the kernel's bring-up configuration from TOML, the
// same format and library (BurntSushi/toml) the rest of the corpus uses
// for its own on-disk configuration.
package config

import (
	"fmt"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/hashicorp/go-multierror"
)

// ReadyQueueDiscipline selects how an executor's ready queue orders
// tasks. FIFO is the only one the scheduling core itself implements
// (spec.md §9); the others are accepted as configuration so a future
// discipline can be wired in without another format migration.
type ReadyQueueDiscipline string

const (
	FIFO          ReadyQueueDiscipline = "fifo"
	RoundRobinPri ReadyQueueDiscipline = "round_robin_priority"
)

// Config is the kernel's bring-up configuration.
type Config struct {
	// TickPeriodMillis is the period of the periodic timer interrupt that
	// drives preemption. Zero disables preemptive time-slicing entirely,
	// leaving only cooperative Yield.
	TickPeriodMillis int `toml:"tick_period_millis"`

	// ExecutorCount overrides the architecture's own CPU count when
	// positive; zero means "ask the architecture".
	ExecutorCount int `toml:"executor_count"`

	// ReadyQueue selects the ready-queue discipline.
	ReadyQueue ReadyQueueDiscipline `toml:"ready_queue_discipline"`
}

// Default returns the configuration boot falls back to when no file is
// supplied: a 10ms tick, architecture-detected executor count, FIFO ready
// queues.
func Default() *Config {
	return &Config{
		TickPeriodMillis: 10,
		ExecutorCount:    0,
		ReadyQueue:       FIFO,
	}
}

// Load reads and validates a TOML configuration file.
func Load(path string) (*Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for internally inconsistent values,
// aggregating every problem found rather than stopping at the first.
func (c *Config) Validate() error {
	var errs *multierror.Error
	if c.TickPeriodMillis < 0 {
		errs = multierror.Append(errs, errInvalid("tick_period_millis must be >= 0"))
	}
	if c.ExecutorCount < 0 {
		errs = multierror.Append(errs, errInvalid("executor_count must be >= 0"))
	}
	switch c.ReadyQueue {
	case "", FIFO, RoundRobinPri:
	default:
		errs = multierror.Append(errs, errInvalid("unknown ready_queue_discipline %q", c.ReadyQueue))
	}
	return errs.ErrorOrNil()
}

// TickPeriod returns the configured tick period as a time.Duration.
func (c *Config) TickPeriod() time.Duration {
	return time.Duration(c.TickPeriodMillis) * time.Millisecond
}

// ExecutorCountOr returns the configured executor count, or fallback if
// none was configured.
func (c *Config) ExecutorCountOr(fallback int) int {
	if c.ExecutorCount > 0 {
		return c.ExecutorCount
	}
	return fallback
}

type validationError struct{ msg string }

func (e *validationError) Error() string { return e.msg }

func errInvalid(format string, args ...interface{}) error {
	return &validationError{msg: fmt.Sprintf(format, args...)}
}
