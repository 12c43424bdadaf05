package store

import (
	_ "embed"
	"time"

	"github.com/rotisserie/eris"
)

//go:embed migrations/001_initial_schema.sql
var migration001 string

//go:embed migrations/002_environments.sql
var migration002 string

// migrations lists every schema migration in order. Versions are monotonic;
// Migrate applies each at most once.
var migrations = []struct {
	version int
	sql     string
}{
	{version: 1, sql: migration001},
	{version: 2, sql: migration002},
}

// SchemaVersion is the version a fully migrated database reports.
const SchemaVersion = 2

// Migrate applies all pending migrations. Safe to call repeatedly: applied
// versions are recorded in schema_version and skipped on later runs.
func (s *Store) Migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_version (
			version    INTEGER PRIMARY KEY,
			applied_at DATETIME NOT NULL
		)
	`)
	if err != nil {
		return eris.Wrap(err, "failed to create schema_version table")
	}

	for _, m := range migrations {
		applied, err := s.migrationApplied(m.version)
		if err != nil {
			return eris.Wrapf(err, "failed to check migration %d", m.version)
		}
		if applied {
			continue
		}

		tx, err := s.db.Begin()
		if err != nil {
			return eris.Wrapf(err, "failed to begin transaction for migration %d", m.version)
		}

		if _, err := tx.Exec(m.sql); err != nil {
			//nolint:errcheck // Rollback in error path
			tx.Rollback()
			return eris.Wrapf(err, "failed to execute migration %d", m.version)
		}

		if _, err := tx.Exec(
			"INSERT INTO schema_version (version, applied_at) VALUES (?, ?)",
			m.version, time.Now().UTC(),
		); err != nil {
			//nolint:errcheck // Rollback in error path
			tx.Rollback()
			return eris.Wrapf(err, "failed to record migration %d", m.version)
		}

		if err := tx.Commit(); err != nil {
			return eris.Wrapf(err, "failed to commit migration %d", m.version)
		}
	}

	return nil
}

// AppliedVersions returns every recorded schema version in ascending order.
func (s *Store) AppliedVersions() ([]int, error) {
	rows, err := s.db.Query("SELECT version FROM schema_version ORDER BY version")
	if err != nil {
		return nil, eris.Wrap(err, "failed to query schema_version")
	}
	defer rows.Close()

	var versions []int
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, eris.Wrap(err, "failed to scan version row")
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

func (s *Store) migrationApplied(version int) (bool, error) {
	var count int
	err := s.db.QueryRow("SELECT COUNT(*) FROM schema_version WHERE version = ?", version).Scan(&count)
	if err != nil {
		return false, eris.Wrap(err, "failed to query schema_version")
	}
	return count > 0, nil
}
