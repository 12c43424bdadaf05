package status

import (
	"context"
	"time"
)

// Monitor drives the heartbeat-timeout sweep on a fixed tick.
type Monitor struct {
	tracker  *Tracker
	interval time.Duration
}

// NewMonitor creates a monitor sweeping tracker every interval.
func NewMonitor(tracker *Tracker, interval time.Duration) *Monitor {
	if interval == 0 {
		interval = time.Second
	}
	return &Monitor{tracker: tracker, interval: interval}
}

// Run ticks until ctx is cancelled. Each tick sweeps a snapshot of working
// sessions; no lock is held across the whole sweep.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.tracker.SweepHeartbeats()
		}
	}
}
