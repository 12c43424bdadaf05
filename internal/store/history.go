package store

import (
	"database/sql"
	"time"

	"github.com/rotisserie/eris"

	"github.com/asheshgoplani/agent-relay/internal/session"
)

// AppendHistory records one status transition. History rows are append-only;
// nothing ever updates them.
func (s *Store) AppendHistory(entry *session.HistoryEntry) error {
	res, err := s.db.Exec(`
		INSERT INTO status_history (session_name, status, attention_reason, event, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		entry.SessionName, string(entry.Status),
		nullString(string(entry.AttentionReason)), entry.Event, entry.CreatedAt,
	)
	if err != nil {
		return eris.Wrapf(err, "failed to append history for %s", entry.SessionName)
	}
	if id, err := res.LastInsertId(); err == nil {
		entry.ID = id
	}
	return nil
}

// History returns the transition log for a session, oldest first, bounded by
// limit (0 means no bound).
func (s *Store) History(sessionName string, limit int) ([]*session.HistoryEntry, error) {
	query := `SELECT id, session_name, status, attention_reason, event, created_at
		FROM status_history WHERE session_name = ? ORDER BY id`
	args := []any{sessionName}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, eris.Wrapf(err, "failed to query history for %s", sessionName)
	}
	defer rows.Close()

	entries := []*session.HistoryEntry{}
	for rows.Next() {
		var (
			entry  session.HistoryEntry
			status string
			reason sql.NullString
		)
		if err := rows.Scan(&entry.ID, &entry.SessionName, &status, &reason, &entry.Event, &entry.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "failed to scan history row")
		}
		entry.Status = session.Status(status)
		entry.AttentionReason = session.AttentionReason(reason.String)
		entries = append(entries, &entry)
	}
	return entries, rows.Err()
}

// SweepHistory prunes history rows older than cutoff. Returns the number of
// rows removed.
func (s *Store) SweepHistory(cutoff time.Time) (int64, error) {
	res, err := s.db.Exec("DELETE FROM status_history WHERE created_at < ?", cutoff)
	if err != nil {
		return 0, eris.Wrap(err, "failed to sweep history")
	}
	n, _ := res.RowsAffected()
	return n, nil
}
