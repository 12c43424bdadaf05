package status

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asheshgoplani/agent-relay/internal/session"
)

// memStore is an in-memory Store for classifier tests.
type memStore struct {
	sessions map[string]*session.Session
	history  []*session.HistoryEntry
}

func newMemStore() *memStore {
	return &memStore{sessions: map[string]*session.Session{}}
}

func (m *memStore) GetSession(name string) (*session.Session, error) {
	sess, ok := m.sessions[name]
	if !ok {
		return nil, errNotFound
	}
	copied := *sess
	return &copied, nil
}

func (m *memStore) UpsertSession(sess *session.Session) error {
	copied := *sess
	m.sessions[sess.Name] = &copied
	return nil
}

func (m *memStore) AppendHistory(entry *session.HistoryEntry) error {
	m.history = append(m.history, entry)
	return nil
}

func (m *memStore) ListSessions() ([]*session.Session, error) {
	out := []*session.Session{}
	for _, sess := range m.sessions {
		copied := *sess
		out = append(out, &copied)
	}
	return out, nil
}

var errNotFound = assert.AnError

// recorder counts broadcasts per session.
type recorder struct {
	broadcasts []*session.Session
}

func (r *recorder) BroadcastStatus(sess *session.Session) {
	copied := *sess
	r.broadcasts = append(r.broadcasts, &copied)
}

// fakeClock is an adjustable clock for timeout tests.
type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestTracker() (*Tracker, *memStore, *recorder, *fakeClock) {
	st := newMemStore()
	rec := &recorder{}
	clock := &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	tracker := NewTracker(st, rec, Options{
		HookFreshness:    30 * time.Second,
		HeartbeatTimeout: 3 * time.Second,
		Now:              clock.now,
	})
	return tracker, st, rec, clock
}

func TestApplyHookCreatesUnknownSession(t *testing.T) {
	tracker, st, rec, _ := newTestTracker()

	require.NoError(t, tracker.ApplyHook(HookEvent{
		SessionName: "proj--brave-lion-1",
		Event:       session.EventSessionStart,
	}))

	sess := st.sessions["proj--brave-lion-1"]
	require.NotNil(t, sess)
	assert.Equal(t, session.StatusWorking, sess.Status)
	assert.Equal(t, session.SourceHook, sess.StatusSource)
	assert.Equal(t, "proj", sess.Project)
	assert.Len(t, rec.broadcasts, 1)
	assert.Len(t, st.history, 1)
}

func TestApplyHookAttentionReasons(t *testing.T) {
	tracker, st, _, _ := newTestTracker()

	require.NoError(t, tracker.ApplyHook(HookEvent{
		SessionName: "proj--brave-lion-1",
		Event:       session.EventPermissionRequest,
	}))
	assert.Equal(t, session.ReasonPermission, st.sessions["proj--brave-lion-1"].AttentionReason)

	require.NoError(t, tracker.ApplyHook(HookEvent{
		SessionName: "proj--quick-fox-2",
		Event:       session.EventNotification,
		Reason:      session.ReasonPlanApproval,
	}))
	sess := st.sessions["proj--quick-fox-2"]
	assert.Equal(t, session.StatusNeedsAttention, sess.Status)
	assert.Equal(t, session.ReasonPlanApproval, sess.AttentionReason)
}

func TestStopEventIsInformational(t *testing.T) {
	tracker, st, rec, _ := newTestTracker()

	require.NoError(t, tracker.ApplyHook(HookEvent{
		SessionName: "proj--brave-lion-1",
		Event:       session.EventPreToolUse,
	}))
	require.Len(t, rec.broadcasts, 1)

	require.NoError(t, tracker.ApplyHook(HookEvent{
		SessionName: "proj--brave-lion-1",
		Event:       session.EventStop,
	}))

	sess := st.sessions["proj--brave-lion-1"]
	assert.Equal(t, session.StatusWorking, sess.Status, "Stop must not move the status")
	assert.Equal(t, session.EventStop, sess.LastEvent)
	assert.Len(t, rec.broadcasts, 1, "informational events never broadcast")
}

func TestHookTelemetryApplied(t *testing.T) {
	tracker, st, _, _ := newTestTracker()

	require.NoError(t, tracker.ApplyHook(HookEvent{
		SessionName: "proj--brave-lion-1",
		Event:       session.EventPreToolUse,
		Telemetry: &session.Telemetry{
			Model:      "opus",
			CostUSD:    0.42,
			LinesAdded: 7,
		},
	}))

	sess := st.sessions["proj--brave-lion-1"]
	assert.Equal(t, "opus", sess.Model)
	assert.Equal(t, 0.42, sess.CostUSD)
	assert.Equal(t, 7, sess.LinesAdded)
}

func TestHeartbeatRefreshesActivityOnly(t *testing.T) {
	tracker, st, rec, clock := newTestTracker()

	require.NoError(t, tracker.ApplyHook(HookEvent{
		SessionName: "proj--brave-lion-1",
		Event:       session.EventPreToolUse,
	}))
	clock.advance(time.Second)
	require.NoError(t, tracker.Heartbeat("proj--brave-lion-1"))

	sess := st.sessions["proj--brave-lion-1"]
	assert.Equal(t, session.StatusWorking, sess.Status)
	assert.Equal(t, clock.t, sess.LastActivity)
	assert.Len(t, rec.broadcasts, 1, "heartbeats never broadcast")

	hb, ok := tracker.LastHeartbeat("proj--brave-lion-1")
	require.True(t, ok)
	assert.Equal(t, clock.t, hb)
}

func TestHeartbeatTimeoutTransition(t *testing.T) {
	tracker, st, rec, clock := newTestTracker()

	require.NoError(t, tracker.ApplyHook(HookEvent{
		SessionName: "proj--brave-lion-1",
		Event:       session.EventPreToolUse,
		Telemetry:   &session.Telemetry{Model: "opus", CostUSD: 1.5, LinesAdded: 3},
	}))
	require.NoError(t, tracker.Heartbeat("proj--brave-lion-1"))
	require.Len(t, rec.broadcasts, 1)

	// Heartbeat still fresh: sweep is a no-op.
	clock.advance(2 * time.Second)
	tracker.SweepHeartbeats()
	assert.Equal(t, session.StatusWorking, st.sessions["proj--brave-lion-1"].Status)

	// 4s past the heartbeat: working -> idle, telemetry untouched.
	clock.advance(2 * time.Second)
	tracker.SweepHeartbeats()

	sess := st.sessions["proj--brave-lion-1"]
	assert.Equal(t, session.StatusIdle, sess.Status)
	assert.Equal(t, session.EventHeartbeatTimeout, sess.LastEvent)
	assert.Equal(t, "opus", sess.Model)
	assert.Equal(t, 1.5, sess.CostUSD)
	assert.Equal(t, 3, sess.LinesAdded)
	require.Len(t, rec.broadcasts, 2)

	// Repeated ticks must not re-fire the transition.
	clock.advance(time.Second)
	tracker.SweepHeartbeats()
	assert.Len(t, rec.broadcasts, 2, "idle transition must happen exactly once")
}

func TestSweepNeverTouchesNeedsAttention(t *testing.T) {
	tracker, st, _, clock := newTestTracker()

	require.NoError(t, tracker.ApplyHook(HookEvent{
		SessionName: "proj--brave-lion-1",
		Event:       session.EventPermissionRequest,
	}))
	require.NoError(t, tracker.Heartbeat("proj--brave-lion-1"))

	clock.advance(time.Hour)
	tracker.SweepHeartbeats()

	assert.Equal(t, session.StatusNeedsAttention, st.sessions["proj--brave-lion-1"].Status)
}

func TestSweepSkipsSessionsWithoutHeartbeat(t *testing.T) {
	tracker, st, _, clock := newTestTracker()

	require.NoError(t, tracker.ApplyHook(HookEvent{
		SessionName: "proj--brave-lion-1",
		Event:       session.EventPreToolUse,
	}))

	clock.advance(time.Hour)
	tracker.SweepHeartbeats()

	assert.Equal(t, session.StatusWorking, st.sessions["proj--brave-lion-1"].Status)
}

func TestHeuristicYieldsToFreshHook(t *testing.T) {
	tracker, st, _, clock := newTestTracker()

	require.NoError(t, tracker.ApplyHook(HookEvent{
		SessionName: "proj--brave-lion-1",
		Event:       session.EventPreToolUse,
	}))

	require.NoError(t, tracker.ApplyHeuristic("proj--brave-lion-1", session.StatusIdle))
	assert.Equal(t, session.StatusWorking, st.sessions["proj--brave-lion-1"].Status)

	// Hook gone stale: the heuristic now applies.
	clock.advance(time.Minute)
	require.NoError(t, tracker.ApplyHeuristic("proj--brave-lion-1", session.StatusIdle))
	sess := st.sessions["proj--brave-lion-1"]
	assert.Equal(t, session.StatusIdle, sess.Status)
	assert.Equal(t, session.SourceHeuristic, sess.StatusSource)
}

func TestHeuristicNeverClearsNeedsAttention(t *testing.T) {
	tracker, st, _, clock := newTestTracker()

	require.NoError(t, tracker.ApplyHook(HookEvent{
		SessionName: "proj--brave-lion-1",
		Event:       session.EventNotification,
	}))

	clock.advance(time.Minute)
	require.NoError(t, tracker.ApplyHeuristic("proj--brave-lion-1", session.StatusIdle))

	assert.Equal(t, session.StatusNeedsAttention, st.sessions["proj--brave-lion-1"].Status)
}

func TestForgetSessionDropsSignalState(t *testing.T) {
	tracker, _, _, _ := newTestTracker()

	require.NoError(t, tracker.Heartbeat("proj--brave-lion-1"))
	_, ok := tracker.LastHeartbeat("proj--brave-lion-1")
	require.True(t, ok)

	tracker.ForgetSession("proj--brave-lion-1")
	_, ok = tracker.LastHeartbeat("proj--brave-lion-1")
	assert.False(t, ok)
}
