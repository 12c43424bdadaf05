package status

import (
	"time"

	"github.com/asheshgoplani/agent-relay/internal/session"
)

// HeartbeatState describes heartbeat recency for one session at resolution
// time. Seen is false for sessions that never sent a heartbeat; such
// sessions are exempt from the timeout rule entirely.
type HeartbeatState struct {
	Seen bool
	Age  time.Duration
}

// Resolve is the single precedence function deciding which status should
// stand for a session. Rules, in order:
//
//  1. A fresh hook-sourced status outranks any heuristic candidate.
//  2. needs_attention is sticky: neither heuristics nor heartbeat staleness
//     move a session out of it. Only an explicit hook event does.
//  3. An available heuristic candidate applies once hooks are stale.
//  4. A working session whose heartbeat was seen but is older than timeout
//     resolves to idle. Hook freshness does NOT shield against this rule:
//     heartbeats stop meaning the work stopped, however recent the last
//     hook was.
//  5. Otherwise the current status stands.
func Resolve(current session.Status, hookFresh bool, heuristic *session.Status, hb HeartbeatState, timeout time.Duration) session.Status {
	if current == session.StatusNeedsAttention {
		return current
	}
	if heuristic != nil && !hookFresh {
		return *heuristic
	}
	if current == session.StatusWorking && hb.Seen && hb.Age >= timeout {
		return session.StatusIdle
	}
	return current
}
