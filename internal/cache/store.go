package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// schemaSQL is a linear list of idempotent table/index definitions, run
// once at Open. No migration framework: spec.md's cache schema is fixed,
// and the teacher's own persistence code (internal/storage) favors small
// dependency-free logic over an ORM or migration tool.
const schemaSQL = `
CREATE TABLE IF NOT EXISTS projects (
	name TEXT PRIMARY KEY,
	path TEXT NOT NULL,
	cached_at DATETIME NOT NULL,
	config_json TEXT NOT NULL,
	registry_json TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS features (
	id TEXT NOT NULL,
	project_name TEXT NOT NULL,
	data_json TEXT NOT NULL,
	cached_at DATETIME NOT NULL,
	PRIMARY KEY (id, project_name)
);

CREATE TABLE IF NOT EXISTS pending_operations (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	project_name TEXT NOT NULL,
	operation TEXT NOT NULL,
	payload_json TEXT NOT NULL,
	created_at DATETIME NOT NULL,
	status TEXT NOT NULL,
	error_message TEXT
);

CREATE TABLE IF NOT EXISTS sync_state (
	project_name TEXT PRIMARY KEY,
	last_sync DATETIME,
	last_workstation_registry_hash TEXT,
	sync_status TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_pending_by_status ON pending_operations(status);
CREATE INDEX IF NOT EXISTS idx_pending_by_project ON pending_operations(project_name, created_at);
CREATE INDEX IF NOT EXISTS idx_features_by_project ON features(project_name);
`

// Store wraps the embedded cache database.
type Store struct {
	db *sql.DB
}

// Open opens (creating if necessary) the cache database at dbPath and
// applies schemaSQL.
func Open(dbPath string) (*Store, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create cache directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", "file:"+dbPath)
	if err != nil {
		return nil, fmt.Errorf("open cache database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize cache schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// CacheProject replaces a project's cached row and rebuilds its per-feature
// rows from the features map (feature id to feature JSON) in one
// transaction, per spec.md §4.G's
// denormalized-projection invariant.
func (s *Store) CacheProject(ctx context.Context, name, path string, configJSON, registryJSON []byte, features map[string][]byte) error {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO projects (name, path, cached_at, config_json, registry_json)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			path = excluded.path,
			cached_at = excluded.cached_at,
			config_json = excluded.config_json,
			registry_json = excluded.registry_json
	`, name, path, now, string(configJSON), string(registryJSON)); err != nil {
		return fmt.Errorf("upsert project row: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM features WHERE project_name = ?`, name); err != nil {
		return fmt.Errorf("clear stale feature rows: %w", err)
	}
	for id, data := range features {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO features (id, project_name, data_json, cached_at) VALUES (?, ?, ?, ?)
		`, id, name, string(data), now); err != nil {
			return fmt.Errorf("insert feature row %s: %w", id, err)
		}
	}

	return tx.Commit()
}

// GetProject returns the cached row for name, or sql.ErrNoRows if absent.
func (s *Store) GetProject(ctx context.Context, name string) (ProjectRow, error) {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return ProjectRow{}, err
	}
	defer conn.Close()

	var row ProjectRow
	var configJSON, registryJSON string
	err = conn.QueryRowContext(ctx, `
		SELECT name, path, cached_at, config_json, registry_json FROM projects WHERE name = ?
	`, name).Scan(&row.Name, &row.Path, &row.CachedAt, &configJSON, &registryJSON)
	if err != nil {
		return ProjectRow{}, err
	}
	row.ConfigJSON = []byte(configJSON)
	row.RegistryJSON = []byte(registryJSON)
	return row, nil
}

// QueueOperation appends a pending operation and returns its assigned id.
func (s *Store) QueueOperation(ctx context.Context, project string, op OperationKind, payload map[string]any) (int64, error) {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return 0, err
	}
	defer conn.Close()

	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return 0, err
	}

	res, err := conn.ExecContext(ctx, `
		INSERT INTO pending_operations (project_name, operation, payload_json, created_at, status)
		VALUES (?, ?, ?, ?, ?)
	`, project, string(op), string(payloadJSON), time.Now().UTC(), string(OpPending))
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// GetPending returns queued operations ordered by creation time, oldest
// first. project filters to one project when non-empty.
func (s *Store) GetPending(ctx context.Context, project string) ([]PendingOperation, error) {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	query := `SELECT id, project_name, operation, payload_json, created_at, status, error_message FROM pending_operations`
	args := []any{}
	if project != "" {
		query += ` WHERE project_name = ?`
		args = append(args, project)
	}
	query += ` ORDER BY created_at ASC, id ASC`

	rows, err := conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ops []PendingOperation
	for rows.Next() {
		var op PendingOperation
		var payloadJSON string
		var errMsg sql.NullString
		if err := rows.Scan(&op.ID, &op.ProjectName, &op.Operation, &payloadJSON, &op.CreatedAt, &op.Status, &errMsg); err != nil {
			return nil, err
		}
		if payloadJSON != "" {
			if err := json.Unmarshal([]byte(payloadJSON), &op.Payload); err != nil {
				return nil, err
			}
		}
		op.ErrorMessage = errMsg.String
		ops = append(ops, op)
	}
	return ops, rows.Err()
}

// MarkOperationSyncing, MarkOperationCompleted, MarkOperationFailed
// transition a pending operation's status.
func (s *Store) MarkOperationSyncing(ctx context.Context, id int64) error {
	return s.setOperationStatus(ctx, id, OpSyncing, "")
}

func (s *Store) MarkOperationCompleted(ctx context.Context, id int64) error {
	return s.setOperationStatus(ctx, id, OpCompleted, "")
}

func (s *Store) MarkOperationFailed(ctx context.Context, id int64, errMsg string) error {
	return s.setOperationStatus(ctx, id, OpFailed, errMsg)
}

func (s *Store) setOperationStatus(ctx context.Context, id int64, status OperationStatus, errMsg string) error {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	_, err = conn.ExecContext(ctx, `
		UPDATE pending_operations SET status = ?, error_message = ? WHERE id = ?
	`, string(status), sql.NullString{String: errMsg, Valid: errMsg != ""}, id)
	return err
}

// ClearCompleted deletes completed operations for project (all projects
// when empty).
func (s *Store) ClearCompleted(ctx context.Context, project string) error {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	query := `DELETE FROM pending_operations WHERE status = ?`
	args := []any{string(OpCompleted)}
	if project != "" {
		query += ` AND project_name = ?`
		args = append(args, project)
	}
	_, err = conn.ExecContext(ctx, query, args...)
	return err
}

// GetSyncState returns project's sync state, or the zero value with
// status "pending" if none is recorded yet.
func (s *Store) GetSyncState(ctx context.Context, project string) (SyncState, error) {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return SyncState{}, err
	}
	defer conn.Close()

	var st SyncState
	var lastSync sql.NullTime
	var hash sql.NullString
	err = conn.QueryRowContext(ctx, `
		SELECT project_name, last_sync, last_workstation_registry_hash, sync_status
		FROM sync_state WHERE project_name = ?
	`, project).Scan(&st.ProjectName, &lastSync, &hash, &st.Status)
	if err == sql.ErrNoRows {
		return SyncState{ProjectName: project, Status: SyncPending}, nil
	}
	if err != nil {
		return SyncState{}, err
	}
	st.LastSync = lastSync.Time
	st.LastRegistryHash = hash.String
	return st, nil
}

// UpdateSyncState upserts project's sync state.
func (s *Store) UpdateSyncState(ctx context.Context, project string, lastSync time.Time, registryHash string, status SyncStatus) error {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	_, err = conn.ExecContext(ctx, `
		INSERT INTO sync_state (project_name, last_sync, last_workstation_registry_hash, sync_status)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(project_name) DO UPDATE SET
			last_sync = excluded.last_sync,
			last_workstation_registry_hash = excluded.last_workstation_registry_hash,
			sync_status = excluded.sync_status
	`, project, lastSync, registryHash, string(status))
	return err
}

// Stats reports cache-wide counts for diagnostics.
func (s *Store) Stats(ctx context.Context) (map[string]any, error) {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	stats := map[string]any{}

	var projectCount int
	if err := conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM projects`).Scan(&projectCount); err != nil {
		return nil, err
	}
	stats["projects"] = projectCount

	rows, err := conn.QueryContext(ctx, `SELECT status, COUNT(*) FROM pending_operations GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	pendingByStatus := map[string]int{}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		pendingByStatus[status] = count
	}
	stats["pending_operations_by_status"] = pendingByStatus

	return stats, rows.Err()
}
