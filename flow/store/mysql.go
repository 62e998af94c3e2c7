package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
)

// MySQLStore persists snapshots in a MySQL database shared across hosts.
//
// DSN format follows the go-sql-driver convention, e.g.
// "user:pass@tcp(localhost:3306)/flow?parseTime=true". The schema is
// migrated on first use.
type MySQLStore struct {
	db *sql.DB
}

// NewMySQLStore connects to dsn and prepares the schema.
func NewMySQLStore(dsn string) (*MySQLStore, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("open mysql connection: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping mysql: %w", err)
	}

	s := &MySQLStore{db: db}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *MySQLStore) migrate(ctx context.Context) error {
	schema := `
		CREATE TABLE IF NOT EXISTS workflow_checkpoints (
			exec_id VARCHAR(64) PRIMARY KEY,
			workflow VARCHAR(255) NOT NULL,
			checkpoint VARCHAR(255) NOT NULL,
			snapshot JSON NOT NULL,
			created_at TIMESTAMP(6) NOT NULL,
			INDEX idx_checkpoints_workflow (workflow)
		)
	`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create workflow_checkpoints table: %w", err)
	}
	return nil
}

// Save upserts the snapshot for execID.
func (s *MySQLStore) Save(ctx context.Context, execID string, snap Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO workflow_checkpoints (exec_id, workflow, checkpoint, snapshot, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			workflow = VALUES(workflow),
			checkpoint = VALUES(checkpoint),
			snapshot = VALUES(snapshot),
			created_at = VALUES(created_at)
	`, execID, snap.Workflow, snap.Checkpoint, string(data), snap.Timestamp.UTC())
	if err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}

// Load retrieves the snapshot for execID.
func (s *MySQLStore) Load(ctx context.Context, execID string) (Snapshot, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx,
		"SELECT snapshot FROM workflow_checkpoints WHERE exec_id = ?", execID).Scan(&data)
	if err == sql.ErrNoRows {
		return Snapshot{}, ErrNotFound
	}
	if err != nil {
		return Snapshot{}, fmt.Errorf("load snapshot: %w", err)
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return Snapshot{}, fmt.Errorf("decode snapshot: %w", err)
	}
	return snap, nil
}

// Delete removes the snapshot for execID.
func (s *MySQLStore) Delete(ctx context.Context, execID string) error {
	_, err := s.db.ExecContext(ctx,
		"DELETE FROM workflow_checkpoints WHERE exec_id = ?", execID)
	return err
}

// Close releases the connection pool.
func (s *MySQLStore) Close() error {
	return s.db.Close()
}
