// Package registry is the single source of truth reconciling persisted
// session records with the live set of tmux sessions. It owns creation,
// archival, kills and the retention sweep.
package registry

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/asheshgoplani/agent-relay/internal/session"
	"github.com/asheshgoplani/agent-relay/internal/store"
	"github.com/asheshgoplani/agent-relay/internal/tmux"
)

// SignalState is the slice of the status tracker the registry notifies when
// a session ceases to exist.
type SignalState interface {
	ForgetSession(name string)
}

// Options configures a Registry.
type Options struct {
	SessionMaxAge     time.Duration
	ArchivedMaxAge    time.Duration
	HistoryMaxAge     time.Duration
	CleanupInterval   time.Duration
	ReconcileInterval time.Duration
	Now               func() time.Time
}

// Registry reconciles the session table against tmux.
type Registry struct {
	store    *store.Store
	executor tmux.Executor
	signals  SignalState
	now      func() time.Time
	opts     Options

	// mu serializes create/kill/archive for a given name against the
	// reconcile loop. Coarse but sufficient: all operations are short.
	mu sync.Mutex
}

// New creates a registry over st and executor. signals may be nil.
func New(st *store.Store, executor tmux.Executor, signals SignalState, opts Options) *Registry {
	if opts.SessionMaxAge == 0 {
		opts.SessionMaxAge = 24 * time.Hour
	}
	if opts.ArchivedMaxAge == 0 {
		opts.ArchivedMaxAge = 30 * 24 * time.Hour
	}
	if opts.HistoryMaxAge == 0 {
		opts.HistoryMaxAge = 7 * 24 * time.Hour
	}
	if opts.CleanupInterval == 0 {
		opts.CleanupInterval = time.Hour
	}
	if opts.ReconcileInterval == 0 {
		opts.ReconcileInterval = 30 * time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Registry{
		store:    st,
		executor: executor,
		signals:  signals,
		now:      opts.Now,
		opts:     opts,
	}
}

// Ensure returns the session record for name, creating it in init status if
// the store does not know it yet. A concurrent creator racing on the same
// name is an expected, benign outcome: the upsert converges on one row.
func (r *Registry) Ensure(name, project string) (*session.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if sess, err := r.store.GetSession(name); err == nil {
		if sess.Archived() {
			// Reattaching revives an archived session.
			sess.ArchivedAt = nil
			sess.UpdatedAt = r.now()
			if err := r.store.UpsertSession(sess); err != nil {
				return nil, err
			}
		}
		return sess, nil
	}

	now := r.now()
	sess := &session.Session{
		Name:             name,
		Project:          project,
		Status:           session.StatusInit,
		StatusSource:     session.SourceNone,
		CreatedAt:        now,
		UpdatedAt:        now,
		LastActivity:     now,
		LastStatusChange: now,
	}
	if err := r.store.UpsertSession(sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// Get returns a session by name.
func (r *Registry) Get(name string) (*session.Session, error) {
	return r.store.GetSession(name)
}

// ListActive returns non-archived sessions, newest activity first.
func (r *Registry) ListActive() ([]*session.Session, error) {
	return r.store.ListSessions()
}

// ListArchived returns archived sessions.
func (r *Registry) ListArchived() ([]*session.Session, error) {
	return r.store.ListArchivedSessions()
}

// ListLive returns the names of sessions tmux currently knows, limited to
// names this server generated. Returns an empty map, not an error, when the
// tmux server is unreachable.
func (r *Registry) ListLive() map[string]int64 {
	live, err := r.executor.ListSessions()
	if err != nil {
		return map[string]int64{}
	}
	ours := make(map[string]int64, len(live))
	for name, activity := range live {
		if session.ValidName(name) {
			ours[name] = activity
		}
	}
	return ours
}

// Archive soft-deletes the session. The tmux session, if live, keeps
// running; archive is a bookkeeping operation.
func (r *Registry) Archive(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.store.ArchiveSession(name, r.now())
}

// Kill terminates the tmux session and hard-deletes the record. Killing a
// session that is already gone is a no-op.
func (r *Registry) Kill(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.executor.KillSession(name); err != nil {
		log.Printf("registry: kill tmux session %s: %v", name, err)
	}
	if err := r.store.DeleteSession(name); err != nil {
		return err
	}
	if r.signals != nil {
		r.signals.ForgetSession(name)
	}
	return nil
}

// Reconcile aligns the store with the live tmux session list: live sessions
// unknown to the store get rows, known sessions that are no longer live get
// archived. Runs at startup and periodically.
func (r *Registry) Reconcile() error {
	live := r.ListLive()

	for name := range live {
		if _, err := r.store.GetSession(name); err != nil {
			if _, err := r.Ensure(name, session.ProjectOf(name)); err != nil {
				log.Printf("registry: reconcile create %s: %v", name, err)
			}
		}
	}

	known, err := r.store.ListSessions()
	if err != nil {
		return err
	}
	now := r.now()
	for _, sess := range known {
		if _, ok := live[sess.Name]; ok {
			continue
		}
		// Grace period: a session created moments ago may not have its
		// tmux session yet (registry row lands before the terminal spawn).
		if now.Sub(sess.LastActivity) < 2*r.opts.ReconcileInterval {
			continue
		}
		if err := r.Archive(sess.Name); err != nil {
			log.Printf("registry: reconcile archive %s: %v", sess.Name, err)
		}
	}
	return nil
}

// Sweep hard-deletes sessions past their retention windows and prunes old
// history rows.
func (r *Registry) Sweep() {
	now := r.now()

	removed, err := r.store.SweepSessions(
		now.Add(-r.opts.SessionMaxAge),
		now.Add(-r.opts.ArchivedMaxAge),
	)
	if err != nil {
		log.Printf("registry: session sweep failed: %v", err)
	}
	for _, name := range removed {
		if r.signals != nil {
			r.signals.ForgetSession(name)
		}
	}
	if len(removed) > 0 {
		log.Printf("registry: swept %d expired sessions", len(removed))
	}

	if n, err := r.store.SweepHistory(now.Add(-r.opts.HistoryMaxAge)); err != nil {
		log.Printf("registry: history sweep failed: %v", err)
	} else if n > 0 {
		log.Printf("registry: pruned %d history rows", n)
	}
}

// Run reconciles immediately, then keeps reconciling and sweeping on their
// intervals until ctx is cancelled.
func (r *Registry) Run(ctx context.Context) {
	if err := r.Reconcile(); err != nil {
		log.Printf("registry: startup reconcile failed: %v", err)
	}

	reconcile := time.NewTicker(r.opts.ReconcileInterval)
	cleanup := time.NewTicker(r.opts.CleanupInterval)
	defer reconcile.Stop()
	defer cleanup.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-reconcile.C:
			if err := r.Reconcile(); err != nil {
				log.Printf("registry: reconcile failed: %v", err)
			}
		case <-cleanup.C:
			r.Sweep()
		}
	}
}
