package status

import (
	"context"
	"log"
	"time"

	"github.com/asheshgoplani/agent-relay/internal/session"
)

// Capturer is the slice of the tmux backend the poller needs.
type Capturer interface {
	ListSessions() (map[string]int64, error)
	CapturePaneHistory(ctx context.Context, name string, lines int) (string, error)
}

// Poller periodically samples pane output of live sessions and feeds the
// heuristic classifier. It is the fallback tier for agents without hook
// integration; the tracker ignores its signal while a fresh hook status
// holds.
type Poller struct {
	tracker  *Tracker
	capturer Capturer
	interval time.Duration
	lines    int
}

func NewPoller(tracker *Tracker, capturer Capturer, interval time.Duration) *Poller {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return &Poller{
		tracker:  tracker,
		capturer: capturer,
		interval: interval,
		lines:    20,
	}
}

// Run samples until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.sample(ctx)
		}
	}
}

func (p *Poller) sample(ctx context.Context) {
	live, err := p.capturer.ListSessions()
	if err != nil {
		log.Printf("status: list sessions: %v", err)
		return
	}

	for name := range live {
		if !session.ValidName(name) {
			continue
		}
		captureCtx, cancel := context.WithTimeout(ctx, p.interval)
		output, err := p.capturer.CapturePaneHistory(captureCtx, name, p.lines)
		cancel()
		if err != nil {
			continue
		}

		observed, ok := ClassifyOutput(output)
		if !ok {
			continue
		}
		if err := p.tracker.ApplyHeuristic(name, observed); err != nil {
			log.Printf("status: heuristic %s: %v", name, err)
		}
	}
}
