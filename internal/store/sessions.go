package store

import (
	"database/sql"
	"time"

	"github.com/rotisserie/eris"

	"github.com/asheshgoplani/agent-relay/internal/session"
)

// ErrNotFound is returned when a session lookup matches no row.
var ErrNotFound = eris.New("session not found")

const sessionColumns = `name, project, status, status_source, attention_reason,
	last_event, model, cost_usd, context_usage, lines_added, lines_removed,
	environment_id, created_at, updated_at, last_activity, last_status_change,
	archived_at`

// UpsertSession inserts the session or, if a row with the same name exists,
// overwrites its mutable columns. This is the single serialized write path
// for session state: concurrent creators racing on the same name converge on
// an update instead of a constraint failure.
func (s *Store) UpsertSession(sess *session.Session) error {
	_, err := s.db.Exec(`
		INSERT INTO sessions (`+sessionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			project = excluded.project,
			status = excluded.status,
			status_source = excluded.status_source,
			attention_reason = excluded.attention_reason,
			last_event = excluded.last_event,
			model = excluded.model,
			cost_usd = excluded.cost_usd,
			context_usage = excluded.context_usage,
			lines_added = excluded.lines_added,
			lines_removed = excluded.lines_removed,
			environment_id = excluded.environment_id,
			updated_at = excluded.updated_at,
			last_activity = excluded.last_activity,
			last_status_change = excluded.last_status_change,
			archived_at = excluded.archived_at`,
		sess.Name, sess.Project, string(sess.Status), string(sess.StatusSource),
		nullString(string(sess.AttentionReason)), nullString(sess.LastEvent),
		nullString(sess.Model), nullFloat(sess.CostUSD), nullFloat(sess.ContextUsage),
		nullInt(sess.LinesAdded), nullInt(sess.LinesRemoved),
		nullString(sess.EnvironmentID),
		sess.CreatedAt, sess.UpdatedAt, sess.LastActivity, sess.LastStatusChange,
		nullTime(sess.ArchivedAt),
	)
	if err != nil {
		return eris.Wrapf(err, "failed to upsert session %s", sess.Name)
	}
	return nil
}

// GetSession returns the session with the given name, archived or not.
func (s *Store) GetSession(name string) (*session.Session, error) {
	row := s.db.QueryRow("SELECT "+sessionColumns+" FROM sessions WHERE name = ?", name)
	sess, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrapf(err, "failed to query session %s", name)
	}
	return sess, nil
}

// ListSessions returns all non-archived sessions, newest activity first.
func (s *Store) ListSessions() ([]*session.Session, error) {
	return s.querySessions("SELECT " + sessionColumns + ` FROM sessions
		WHERE archived_at IS NULL ORDER BY last_activity DESC`)
}

// ListArchivedSessions returns all archived sessions, most recently archived
// first.
func (s *Store) ListArchivedSessions() ([]*session.Session, error) {
	return s.querySessions("SELECT " + sessionColumns + ` FROM sessions
		WHERE archived_at IS NOT NULL ORDER BY archived_at DESC`)
}

// ArchiveSession soft-deletes the session by setting archived_at. Archiving
// an already archived session is a no-op.
func (s *Store) ArchiveSession(name string, at time.Time) error {
	res, err := s.db.Exec(
		"UPDATE sessions SET archived_at = ?, updated_at = ? WHERE name = ? AND archived_at IS NULL",
		at, at, name,
	)
	if err != nil {
		return eris.Wrapf(err, "failed to archive session %s", name)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		// Either unknown or already archived; both are benign.
		return nil
	}
	return nil
}

// DeleteSession hard-deletes the session row and its history. Deleting an
// unknown session is a no-op.
func (s *Store) DeleteSession(name string) error {
	if _, err := s.db.Exec("DELETE FROM status_history WHERE session_name = ?", name); err != nil {
		return eris.Wrapf(err, "failed to delete history for %s", name)
	}
	if _, err := s.db.Exec("DELETE FROM sessions WHERE name = ?", name); err != nil {
		return eris.Wrapf(err, "failed to delete session %s", name)
	}
	return nil
}

// SweepSessions hard-deletes active sessions whose last activity predates
// activeCutoff and archived sessions archived before archivedCutoff. Returns
// the names removed so the registry can drop in-memory state.
func (s *Store) SweepSessions(activeCutoff, archivedCutoff time.Time) ([]string, error) {
	rows, err := s.db.Query(`
		SELECT name FROM sessions
		WHERE (archived_at IS NULL AND last_activity < ?)
		   OR (archived_at IS NOT NULL AND archived_at < ?)`,
		activeCutoff, archivedCutoff,
	)
	if err != nil {
		return nil, eris.Wrap(err, "failed to query expired sessions")
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, eris.Wrap(err, "failed to scan expired session")
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "error iterating expired sessions")
	}

	for _, name := range names {
		if err := s.DeleteSession(name); err != nil {
			return names, err
		}
	}
	return names, nil
}

// ClearEnvironmentRefs detaches every session referencing the environment.
// Called before an environment is deleted so the sessions survive it.
func (s *Store) ClearEnvironmentRefs(environmentID string) error {
	_, err := s.db.Exec("UPDATE sessions SET environment_id = NULL WHERE environment_id = ?", environmentID)
	if err != nil {
		return eris.Wrapf(err, "failed to clear environment refs for %s", environmentID)
	}
	return nil
}

func (s *Store) querySessions(query string, args ...any) ([]*session.Session, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "failed to query sessions")
	}
	defer rows.Close()

	sessions := []*session.Session{}
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, eris.Wrap(err, "failed to scan session row")
		}
		sessions = append(sessions, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "error iterating session rows")
	}
	return sessions, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*session.Session, error) {
	var (
		sess            session.Session
		status, source  string
		attentionReason sql.NullString
		lastEvent       sql.NullString
		model           sql.NullString
		costUSD         sql.NullFloat64
		contextUsage    sql.NullFloat64
		linesAdded      sql.NullInt64
		linesRemoved    sql.NullInt64
		environmentID   sql.NullString
		archivedAt      sql.NullTime
	)

	err := row.Scan(
		&sess.Name, &sess.Project, &status, &source, &attentionReason,
		&lastEvent, &model, &costUSD, &contextUsage, &linesAdded, &linesRemoved,
		&environmentID, &sess.CreatedAt, &sess.UpdatedAt, &sess.LastActivity,
		&sess.LastStatusChange, &archivedAt,
	)
	if err != nil {
		return nil, err
	}

	sess.Status = session.Status(status)
	sess.StatusSource = session.Source(source)
	sess.AttentionReason = session.AttentionReason(attentionReason.String)
	sess.LastEvent = lastEvent.String
	sess.Model = model.String
	sess.CostUSD = costUSD.Float64
	sess.ContextUsage = contextUsage.Float64
	sess.LinesAdded = int(linesAdded.Int64)
	sess.LinesRemoved = int(linesRemoved.Int64)
	sess.EnvironmentID = environmentID.String
	if archivedAt.Valid {
		t := archivedAt.Time
		sess.ArchivedAt = &t
	}

	return &sess, nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullFloat(f float64) any {
	if f == 0 {
		return nil
	}
	return f
}

func nullInt(n int) any {
	if n == 0 {
		return nil
	}
	return n
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}
