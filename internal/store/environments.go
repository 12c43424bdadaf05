package store

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/asheshgoplani/agent-relay/internal/session"
)

// ErrEnvironmentNotFound is returned when an environment lookup matches no row.
var ErrEnvironmentNotFound = eris.New("environment not found")

// CreateEnvironment inserts a new environment with its variable bundle.
// A generated uuid is assigned if env.ID is empty. If env.IsDefault is set,
// any previous default is cleared first (at most one default).
func (s *Store) CreateEnvironment(env *session.Environment) error {
	if env.ID == "" {
		env.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	env.CreatedAt = now
	env.UpdatedAt = now

	tx, err := s.db.Begin()
	if err != nil {
		return eris.Wrap(err, "failed to begin transaction")
	}

	if env.IsDefault {
		if _, err := tx.Exec("UPDATE environments SET is_default = 0 WHERE is_default = 1"); err != nil {
			//nolint:errcheck // Rollback in error path
			tx.Rollback()
			return eris.Wrap(err, "failed to clear previous default")
		}
	}

	if _, err := tx.Exec(`
		INSERT INTO environments (id, name, provider, is_default, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		env.ID, env.Name, string(env.Provider), boolInt(env.IsDefault), env.CreatedAt, env.UpdatedAt,
	); err != nil {
		//nolint:errcheck // Rollback in error path
		tx.Rollback()
		return eris.Wrapf(err, "failed to insert environment %s", env.Name)
	}

	if err := replaceVariables(tx, env.ID, env.Variables); err != nil {
		//nolint:errcheck // Rollback in error path
		tx.Rollback()
		return err
	}

	return eris.Wrap(tx.Commit(), "failed to commit environment insert")
}

// UpdateEnvironment overwrites an environment's name, provider, default flag
// and variable bundle.
func (s *Store) UpdateEnvironment(env *session.Environment) error {
	env.UpdatedAt = time.Now().UTC()

	tx, err := s.db.Begin()
	if err != nil {
		return eris.Wrap(err, "failed to begin transaction")
	}

	if env.IsDefault {
		if _, err := tx.Exec("UPDATE environments SET is_default = 0 WHERE is_default = 1 AND id != ?", env.ID); err != nil {
			//nolint:errcheck // Rollback in error path
			tx.Rollback()
			return eris.Wrap(err, "failed to clear previous default")
		}
	}

	res, err := tx.Exec(`
		UPDATE environments SET name = ?, provider = ?, is_default = ?, updated_at = ?
		WHERE id = ?`,
		env.Name, string(env.Provider), boolInt(env.IsDefault), env.UpdatedAt, env.ID,
	)
	if err != nil {
		//nolint:errcheck // Rollback in error path
		tx.Rollback()
		return eris.Wrapf(err, "failed to update environment %s", env.ID)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		//nolint:errcheck // Rollback in error path
		tx.Rollback()
		return ErrEnvironmentNotFound
	}

	if err := replaceVariables(tx, env.ID, env.Variables); err != nil {
		//nolint:errcheck // Rollback in error path
		tx.Rollback()
		return err
	}

	return eris.Wrap(tx.Commit(), "failed to commit environment update")
}

// DeleteEnvironment removes the environment and its variables. Sessions
// referencing it keep running; their reference is cleared, not cascaded.
func (s *Store) DeleteEnvironment(id string) error {
	if err := s.ClearEnvironmentRefs(id); err != nil {
		return err
	}
	res, err := s.db.Exec("DELETE FROM environments WHERE id = ?", id)
	if err != nil {
		return eris.Wrapf(err, "failed to delete environment %s", id)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrEnvironmentNotFound
	}
	return nil
}

// SetDefaultEnvironment marks the given environment as the default, clearing
// any previous default.
func (s *Store) SetDefaultEnvironment(id string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return eris.Wrap(err, "failed to begin transaction")
	}
	if _, err := tx.Exec("UPDATE environments SET is_default = 0 WHERE is_default = 1"); err != nil {
		//nolint:errcheck // Rollback in error path
		tx.Rollback()
		return eris.Wrap(err, "failed to clear previous default")
	}
	res, err := tx.Exec("UPDATE environments SET is_default = 1, updated_at = ? WHERE id = ?", time.Now().UTC(), id)
	if err != nil {
		//nolint:errcheck // Rollback in error path
		tx.Rollback()
		return eris.Wrapf(err, "failed to set default environment %s", id)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		//nolint:errcheck // Rollback in error path
		tx.Rollback()
		return ErrEnvironmentNotFound
	}
	return eris.Wrap(tx.Commit(), "failed to commit default change")
}

// GetEnvironment returns one environment with its variables.
func (s *Store) GetEnvironment(id string) (*session.Environment, error) {
	env, err := s.scanEnvironment(s.db.QueryRow(`
		SELECT id, name, provider, is_default, created_at, updated_at
		FROM environments WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, ErrEnvironmentNotFound
	}
	if err != nil {
		return nil, eris.Wrapf(err, "failed to query environment %s", id)
	}
	return env, nil
}

// DefaultEnvironment returns the default environment, or nil if none is set.
func (s *Store) DefaultEnvironment() (*session.Environment, error) {
	env, err := s.scanEnvironment(s.db.QueryRow(`
		SELECT id, name, provider, is_default, created_at, updated_at
		FROM environments WHERE is_default = 1`))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "failed to query default environment")
	}
	return env, nil
}

// ListEnvironments returns all environments, default first then by name.
func (s *Store) ListEnvironments() ([]*session.Environment, error) {
	rows, err := s.db.Query(`
		SELECT id, name, provider, is_default, created_at, updated_at
		FROM environments ORDER BY is_default DESC, name`)
	if err != nil {
		return nil, eris.Wrap(err, "failed to query environments")
	}
	defer rows.Close()

	envs := []*session.Environment{}
	for rows.Next() {
		env, err := s.scanEnvironment(rows)
		if err != nil {
			return nil, eris.Wrap(err, "failed to scan environment row")
		}
		envs = append(envs, env)
	}
	return envs, rows.Err()
}

func (s *Store) scanEnvironment(row rowScanner) (*session.Environment, error) {
	var (
		env       session.Environment
		provider  string
		isDefault int
	)
	if err := row.Scan(&env.ID, &env.Name, &provider, &isDefault, &env.CreatedAt, &env.UpdatedAt); err != nil {
		return nil, err
	}
	env.Provider = session.Provider(provider)
	env.IsDefault = isDefault != 0

	vars, err := s.environmentVariables(env.ID)
	if err != nil {
		return nil, err
	}
	env.Variables = vars
	return &env, nil
}

func (s *Store) environmentVariables(environmentID string) (map[string]string, error) {
	rows, err := s.db.Query("SELECT key, value FROM session_environments WHERE environment_id = ?", environmentID)
	if err != nil {
		return nil, eris.Wrapf(err, "failed to query variables for %s", environmentID)
	}
	defer rows.Close()

	vars := map[string]string{}
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, eris.Wrap(err, "failed to scan variable row")
		}
		vars[k] = v
	}
	return vars, rows.Err()
}

func replaceVariables(tx *sql.Tx, environmentID string, vars map[string]string) error {
	if _, err := tx.Exec("DELETE FROM session_environments WHERE environment_id = ?", environmentID); err != nil {
		return eris.Wrapf(err, "failed to clear variables for %s", environmentID)
	}
	for k, v := range vars {
		if _, err := tx.Exec(
			"INSERT INTO session_environments (environment_id, key, value) VALUES (?, ?, ?)",
			environmentID, k, v,
		); err != nil {
			return eris.Wrapf(err, "failed to insert variable %s", k)
		}
	}
	return nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
