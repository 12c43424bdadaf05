// Package status derives a canonical session status from three signal
// sources: structured hook events pushed by the agent process, periodic
// heartbeats, and output heuristics as fallback. It owns the transition
// rules and the staleness timeouts.
package status

import (
	"log"
	"sync"
	"time"

	"github.com/asheshgoplani/agent-relay/internal/session"
)

// Store is the slice of the persistence layer the classifier writes through.
// Satisfied by *store.Store.
type Store interface {
	GetSession(name string) (*session.Session, error)
	UpsertSession(*session.Session) error
	AppendHistory(*session.HistoryEntry) error
	ListSessions() ([]*session.Session, error)
}

// Broadcaster receives committed status changes for fan-out to connected
// clients. Broadcast happens only after the store write succeeds, so clients
// never observe a status ahead of persisted state.
type Broadcaster interface {
	BroadcastStatus(sess *session.Session)
}

// HookEvent is one structured lifecycle message from the agent process.
type HookEvent struct {
	SessionName string                  `json:"sessionName"`
	Event       string                  `json:"event"`
	Reason      session.AttentionReason `json:"reason,omitempty"`
	Telemetry   *session.Telemetry      `json:"telemetry,omitempty"`
}

// Options configures a Tracker.
type Options struct {
	// HookFreshness is how long a hook-sourced status outranks heuristics.
	HookFreshness time.Duration
	// HeartbeatTimeout is how stale a heartbeat may be before a working
	// session is idled by the monitor.
	HeartbeatTimeout time.Duration
	// Now is the clock; nil means time.Now. Tests inject a fake.
	Now func() time.Time
}

// Tracker is the status classifier. All signal state (heartbeats, hook
// recency) lives here behind accessors rather than in package-level maps, so
// it can be constructed per process and faked in tests.
type Tracker struct {
	store     Store
	broadcast Broadcaster
	now       func() time.Time

	hookFreshness    time.Duration
	heartbeatTimeout time.Duration

	mu            sync.Mutex
	lastHeartbeat map[string]time.Time
	lastHookAt    map[string]time.Time
}

// NewTracker creates a classifier writing through st and announcing committed
// transitions on b. b may be nil (no fan-out, used in tests).
func NewTracker(st Store, b Broadcaster, opts Options) *Tracker {
	if opts.HookFreshness == 0 {
		opts.HookFreshness = 30 * time.Second
	}
	if opts.HeartbeatTimeout == 0 {
		opts.HeartbeatTimeout = 3 * time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Tracker{
		store:            st,
		broadcast:        b,
		now:              opts.Now,
		hookFreshness:    opts.HookFreshness,
		heartbeatTimeout: opts.HeartbeatTimeout,
		lastHeartbeat:    map[string]time.Time{},
		lastHookAt:       map[string]time.Time{},
	}
}

// statusForHookEvent maps a hook event to the status it sets. The second
// return is false for informational events (Stop, SessionEnd and anything
// unrecognized): those update last_event and activity but never move the
// status; working->idle belongs to the heartbeat monitor alone.
func statusForHookEvent(ev HookEvent) (session.Status, session.AttentionReason, bool) {
	switch ev.Event {
	case session.EventSessionStart, session.EventPreToolUse, session.EventPostToolUse:
		return session.StatusWorking, "", true
	case session.EventPermissionRequest:
		reason := ev.Reason
		if reason == "" {
			reason = session.ReasonPermission
		}
		return session.StatusNeedsAttention, reason, true
	case session.EventNotification:
		reason := ev.Reason
		if reason == "" {
			reason = session.ReasonInput
		}
		return session.StatusNeedsAttention, reason, true
	default:
		return "", "", false
	}
}

// ApplyHook ingests one hook event: records hook recency, refreshes activity
// and last_event, applies telemetry, and commits a status transition when the
// event maps to one. The store write happens before any broadcast.
func (t *Tracker) ApplyHook(ev HookEvent) error {
	now := t.now()

	t.mu.Lock()
	t.lastHookAt[ev.SessionName] = now
	t.mu.Unlock()

	sess, err := t.store.GetSession(ev.SessionName)
	if err != nil {
		// Hooks can arrive for sessions tmux knows but the store does not
		// yet (agent started before the registry reconciled). Create the
		// record rather than dropping the signal.
		sess = newSessionRecord(ev.SessionName, now)
	}

	sess.LastEvent = ev.Event
	sess.LastActivity = now
	sess.UpdatedAt = now
	if ev.Telemetry != nil {
		applyTelemetry(sess, ev.Telemetry)
	}

	newStatus, reason, transitions := statusForHookEvent(ev)
	changed := false
	if transitions && (sess.Status != newStatus || sess.AttentionReason != reason || sess.StatusSource != session.SourceHook) {
		sess.Status = newStatus
		sess.AttentionReason = reason
		sess.StatusSource = session.SourceHook
		sess.LastStatusChange = now
		changed = true
	}

	if err := t.store.UpsertSession(sess); err != nil {
		return err
	}
	if changed {
		if err := t.store.AppendHistory(&session.HistoryEntry{
			SessionName:     sess.Name,
			Status:          sess.Status,
			AttentionReason: sess.AttentionReason,
			Event:           ev.Event,
			CreatedAt:       now,
		}); err != nil {
			return err
		}
		t.announce(sess)
	}
	return nil
}

// Heartbeat records a liveness ping. It never changes status; it refreshes
// last_activity and feeds the timeout monitor.
func (t *Tracker) Heartbeat(name string) error {
	now := t.now()

	t.mu.Lock()
	t.lastHeartbeat[name] = now
	t.mu.Unlock()

	sess, err := t.store.GetSession(name)
	if err != nil {
		// Unknown session: remember the heartbeat, skip the row update.
		return nil
	}
	sess.LastActivity = now
	sess.UpdatedAt = now
	return t.store.UpsertSession(sess)
}

// LastHeartbeat returns the most recent heartbeat for a session and whether
// one was ever recorded.
func (t *Tracker) LastHeartbeat(name string) (time.Time, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	hb, ok := t.lastHeartbeat[name]
	return hb, ok
}

// ForgetSession drops a session's signal state. Called when the registry
// kills or sweeps a session.
func (t *Tracker) ForgetSession(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.lastHeartbeat, name)
	delete(t.lastHookAt, name)
}

// hookFresh reports whether a hook signal for the session is recent enough
// to outrank heuristics, evaluated at application time.
func (t *Tracker) hookFresh(name string, now time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	at, ok := t.lastHookAt[name]
	return ok && now.Sub(at) < t.hookFreshness
}

func (t *Tracker) heartbeatState(name string, now time.Time) HeartbeatState {
	hb, ok := t.LastHeartbeat(name)
	if !ok {
		return HeartbeatState{}
	}
	return HeartbeatState{Seen: true, Age: now.Sub(hb)}
}

// ApplyHeuristic ingests a raw-output classification for a session that has
// no hook integration (or whose hooks have gone stale). Precedence is decided
// by Resolve: a fresh hook-sourced status always wins, and needs_attention is
// never cleared by a heuristic.
func (t *Tracker) ApplyHeuristic(name string, observed session.Status) error {
	now := t.now()

	sess, err := t.store.GetSession(name)
	if err != nil {
		return nil
	}

	next := Resolve(sess.Status, t.hookFresh(name, now), &observed, t.heartbeatState(name, now), t.heartbeatTimeout)
	if next != observed {
		return nil
	}
	if sess.Status == observed && sess.StatusSource == session.SourceHeuristic {
		return nil
	}

	sess.Status = observed
	sess.StatusSource = session.SourceHeuristic
	sess.AttentionReason = ""
	sess.LastStatusChange = now
	sess.LastActivity = now
	sess.UpdatedAt = now

	if err := t.store.UpsertSession(sess); err != nil {
		return err
	}
	if err := t.store.AppendHistory(&session.HistoryEntry{
		SessionName: name,
		Status:      observed,
		Event:       "Heuristic",
		CreatedAt:   now,
	}); err != nil {
		return err
	}
	t.announce(sess)
	return nil
}

// SweepHeartbeats performs one monitor tick: every working session whose
// last heartbeat is older than the timeout transitions to idle with event
// HeartbeatTimeout. Sessions that never sent a heartbeat, and sessions in
// any status other than working, are never touched. Telemetry and the other
// non-status fields are carried through unchanged.
func (t *Tracker) SweepHeartbeats() {
	now := t.now()

	sessions, err := t.store.ListSessions()
	if err != nil {
		log.Printf("status: heartbeat sweep list failed: %v", err)
		return
	}

	for _, sess := range sessions {
		if sess.Status != session.StatusWorking {
			continue
		}
		hb, ok := t.LastHeartbeat(sess.Name)
		if !ok || now.Sub(hb) < t.heartbeatTimeout {
			continue
		}
		if err := t.idleTransition(sess.Name, now); err != nil {
			// One session's failure must not stop the sweep.
			log.Printf("status: idle transition for %s failed: %v", sess.Name, err)
		}
	}
}

// idleTransition re-reads the session inside the critical section so a hook
// event that landed after the sweep snapshot wins over the timeout.
func (t *Tracker) idleTransition(name string, now time.Time) error {
	sess, err := t.store.GetSession(name)
	if err != nil {
		return nil
	}
	next := Resolve(sess.Status, false, nil, t.heartbeatState(name, now), t.heartbeatTimeout)
	if sess.Status != session.StatusWorking || next != session.StatusIdle {
		return nil
	}

	sess.Status = session.StatusIdle
	sess.AttentionReason = ""
	sess.LastEvent = session.EventHeartbeatTimeout
	sess.LastStatusChange = now
	sess.UpdatedAt = now

	if err := t.store.UpsertSession(sess); err != nil {
		return err
	}
	if err := t.store.AppendHistory(&session.HistoryEntry{
		SessionName: name,
		Status:      session.StatusIdle,
		Event:       session.EventHeartbeatTimeout,
		CreatedAt:   now,
	}); err != nil {
		return err
	}
	t.announce(sess)
	return nil
}

func (t *Tracker) announce(sess *session.Session) {
	if t.broadcast != nil {
		t.broadcast.BroadcastStatus(sess)
	}
}

func applyTelemetry(sess *session.Session, tel *session.Telemetry) {
	if tel.Model != "" {
		sess.Model = tel.Model
	}
	if tel.CostUSD != 0 {
		sess.CostUSD = tel.CostUSD
	}
	if tel.ContextUsage != 0 {
		sess.ContextUsage = tel.ContextUsage
	}
	if tel.LinesAdded != 0 {
		sess.LinesAdded = tel.LinesAdded
	}
	if tel.LinesRemoved != 0 {
		sess.LinesRemoved = tel.LinesRemoved
	}
}

func newSessionRecord(name string, now time.Time) *session.Session {
	return &session.Session{
		Name:             name,
		Project:          session.ProjectOf(name),
		Status:           session.StatusInit,
		StatusSource:     session.SourceNone,
		CreatedAt:        now,
		UpdatedAt:        now,
		LastActivity:     now,
		LastStatusChange: now,
	}
}
