package boot

import (
	"time"

	"golang.org/x/sys/unix"
)

// TimeSourceKind ranks the time-keeping capabilities bring-up selects
// among, highest priority first: a free-running reference counter is
// cheapest to read and needs no calibration against wallclock drift, and
// wallclock is the universal fallback. The periodic tick that drives
// preemptive time-slicing is not a TimeSourceKind; it is only carried as
// TimeSource.TickPeriod.
type TimeSourceKind int

const (
	ReferenceCounter TimeSourceKind = iota
	Wallclock
)

func (k TimeSourceKind) String() string {
	if k == Wallclock {
		return "wallclock"
	}
	return "reference_counter"
}

// TimeSource is the calibrated result of Stage 4's capability selection.
type TimeSource struct {
	Kind       TimeSourceKind
	TickPeriod time.Duration
}

// SelectTimeSource picks the highest-priority source available and
// attaches the configured tick period. The simulated platform always
// offers a monotonic reference counter (time.Now()'s monotonic reading);
// on real hardware this capability would be probed via CPUID/ACPI and
// might be absent, falling back to Wallclock.
func SelectTimeSource(tickPeriod time.Duration) *TimeSource {
	return &TimeSource{Kind: ReferenceCounter, TickPeriod: tickPeriod}
}

// Calibrate measures the reference counter's observed rate against a
// known sleep duration, the same role a real boot's TSC-vs-PIT
// calibration loop plays.
func (ts *TimeSource) Calibrate() time.Duration {
	const probe = 10 * time.Millisecond
	start := time.Now()
	req := unix.NsecToTimespec(probe.Nanoseconds())
	_ = unix.Nanosleep(&req, nil)
	return time.Since(start) - probe
}
