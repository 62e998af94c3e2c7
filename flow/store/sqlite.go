package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore persists snapshots in a single-file SQLite database.
//
// Zero-setup durability for local and single-host workflows: the file is
// created on first use, the schema is migrated automatically, and WAL mode
// keeps reads concurrent with the single writer. Use ":memory:" for an
// ephemeral database in tests.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (creating if necessary) the database at path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	// SQLite supports one writer at a time.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	ctx := context.Background()
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("configure sqlite: %w", err)
		}
	}

	s := &SQLiteStore{db: db}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) migrate(ctx context.Context) error {
	schema := `
		CREATE TABLE IF NOT EXISTS workflow_checkpoints (
			exec_id TEXT PRIMARY KEY,
			workflow TEXT NOT NULL,
			checkpoint TEXT NOT NULL,
			snapshot TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL
		)
	`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create workflow_checkpoints table: %w", err)
	}
	if _, err := s.db.ExecContext(ctx,
		"CREATE INDEX IF NOT EXISTS idx_checkpoints_workflow ON workflow_checkpoints(workflow)"); err != nil {
		return fmt.Errorf("create workflow index: %w", err)
	}
	return nil
}

// Save upserts the snapshot for execID.
func (s *SQLiteStore) Save(ctx context.Context, execID string, snap Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO workflow_checkpoints (exec_id, workflow, checkpoint, snapshot, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(exec_id) DO UPDATE SET
			workflow = excluded.workflow,
			checkpoint = excluded.checkpoint,
			snapshot = excluded.snapshot,
			created_at = excluded.created_at
	`, execID, snap.Workflow, snap.Checkpoint, string(data), snap.Timestamp.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}

// Load retrieves the snapshot for execID.
func (s *SQLiteStore) Load(ctx context.Context, execID string) (Snapshot, error) {
	var data string
	err := s.db.QueryRowContext(ctx,
		"SELECT snapshot FROM workflow_checkpoints WHERE exec_id = ?", execID).Scan(&data)
	if err == sql.ErrNoRows {
		return Snapshot{}, ErrNotFound
	}
	if err != nil {
		return Snapshot{}, fmt.Errorf("load snapshot: %w", err)
	}
	var snap Snapshot
	if err := json.Unmarshal([]byte(data), &snap); err != nil {
		return Snapshot{}, fmt.Errorf("decode snapshot: %w", err)
	}
	return snap, nil
}

// Delete removes the snapshot for execID.
func (s *SQLiteStore) Delete(ctx context.Context, execID string) error {
	_, err := s.db.ExecContext(ctx,
		"DELETE FROM workflow_checkpoints WHERE exec_id = ?", execID)
	return err
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
