package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

const sqliteOpTimeout = 3 * time.Second

// SQLiteStore persists snapshots in a local sqlite file so reconnection
// survives process restarts.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the session database at path.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("session store mkdir: %w", err)
	}
	dsn := "file:" + path + "?_pragma=busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("session store open: %w", err)
	}
	db.SetMaxOpenConns(1)
	ctx, cancel := context.WithTimeout(context.Background(), sqliteOpTimeout)
	defer cancel()
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS sync_sessions(
		client_id TEXT PRIMARY KEY,
		snapshot TEXT NOT NULL,
		updated_at INTEGER NOT NULL
	)`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("session store schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Save upserts the snapshot for a client.
func (s *SQLiteStore) Save(clientID string, snapshot Snapshot) error {
	payload, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("encode session snapshot: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), sqliteOpTimeout)
	defer cancel()
	_, err = s.db.ExecContext(ctx, `INSERT INTO sync_sessions(client_id, snapshot, updated_at)
		VALUES(?, ?, ?)
		ON CONFLICT(client_id) DO UPDATE SET snapshot=excluded.snapshot, updated_at=excluded.updated_at`,
		clientID, string(payload), time.Now().Unix())
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// Load returns the snapshot for a client. Rows that no longer decode are
// cleared and reported as absent.
func (s *SQLiteStore) Load(clientID string) (Snapshot, bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), sqliteOpTimeout)
	defer cancel()
	var payload string
	err := s.db.QueryRowContext(ctx, `SELECT snapshot FROM sync_sessions WHERE client_id=?`, clientID).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return Snapshot{}, false, nil
	}
	if err != nil {
		return Snapshot{}, false, fmt.Errorf("load session: %w", err)
	}
	var snapshot Snapshot
	if err := json.Unmarshal([]byte(payload), &snapshot); err != nil || snapshot.CorrelationID == "" {
		_ = s.Clear(clientID)
		return Snapshot{}, false, nil
	}
	return snapshot, true, nil
}

// Clear removes the snapshot for a client.
func (s *SQLiteStore) Clear(clientID string) error {
	ctx, cancel := context.WithTimeout(context.Background(), sqliteOpTimeout)
	defer cancel()
	if _, err := s.db.ExecContext(ctx, `DELETE FROM sync_sessions WHERE client_id=?`, clientID); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	return nil
}
