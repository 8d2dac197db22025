// Package history keeps a local DuckDB record of finished sync runs so
// operators can review past runs without querying the platform.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"
)

const schemaDDL = `CREATE TABLE IF NOT EXISTS sync_runs (
	correlation_id VARCHAR PRIMARY KEY,
	client_id VARCHAR NOT NULL,
	entity_type VARCHAR NOT NULL,
	source_of_truth VARCHAR NOT NULL,
	target_platform VARCHAR,
	status VARCHAR NOT NULL,
	error_message VARCHAR,
	started_at TIMESTAMP,
	ended_at TIMESTAMP,
	record_count BIGINT,
	rule_match_count BIGINT,
	rule_error_count BIGINT,
	stats_json VARCHAR
)`

// Entry is one recorded terminal run.
type Entry struct {
	CorrelationID  string
	ClientID       string
	EntityType     string
	SourceOfTruth  string
	TargetPlatform string
	Status         string
	ErrorMessage   string
	StartedAt      time.Time
	EndedAt        time.Time
	RecordCount    int64
	RuleMatchCount int64
	RuleErrorCount int64
	StatsJSON      string
}

// Store records and lists run history.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the history database at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("history store mkdir: %w", err)
	}
	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, fmt.Errorf("history store open: %w", err)
	}
	if _, err := db.Exec(schemaDDL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("history store schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Record upserts a terminal run. Stats may be nil.
func (s *Store) Record(ctx context.Context, entry Entry) error {
	if ctx == nil {
		return errors.New("history: context is nil")
	}
	if entry.CorrelationID == "" {
		return errors.New("history: correlation id is required")
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO sync_runs (
			correlation_id, client_id, entity_type, source_of_truth, target_platform,
			status, error_message, started_at, ended_at,
			record_count, rule_match_count, rule_error_count, stats_json
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (correlation_id) DO UPDATE SET
			status=excluded.status,
			error_message=excluded.error_message,
			ended_at=excluded.ended_at,
			record_count=excluded.record_count,
			rule_match_count=excluded.rule_match_count,
			rule_error_count=excluded.rule_error_count,
			stats_json=excluded.stats_json`,
		entry.CorrelationID, entry.ClientID, entry.EntityType, entry.SourceOfTruth, entry.TargetPlatform,
		entry.Status, entry.ErrorMessage, nullableTime(entry.StartedAt), nullableTime(entry.EndedAt),
		entry.RecordCount, entry.RuleMatchCount, entry.RuleErrorCount, entry.StatsJSON,
	)
	if err != nil {
		return fmt.Errorf("record run: %w", err)
	}
	return nil
}

// Recent lists up to limit runs, most recently ended first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `SELECT
			correlation_id, client_id, entity_type, source_of_truth,
			COALESCE(target_platform, ''), status, COALESCE(error_message, ''),
			started_at, ended_at,
			COALESCE(record_count, 0), COALESCE(rule_match_count, 0),
			COALESCE(rule_error_count, 0), COALESCE(stats_json, '')
		FROM sync_runs ORDER BY ended_at DESC NULLS LAST LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var entry Entry
		var started, ended sql.NullTime
		if err := rows.Scan(
			&entry.CorrelationID, &entry.ClientID, &entry.EntityType, &entry.SourceOfTruth,
			&entry.TargetPlatform, &entry.Status, &entry.ErrorMessage,
			&started, &ended,
			&entry.RecordCount, &entry.RuleMatchCount, &entry.RuleErrorCount, &entry.StatsJSON,
		); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		entry.StartedAt = started.Time
		entry.EndedAt = ended.Time
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	return entries, nil
}

// EntryFromStats builds the numeric columns from a stats view. Counts the
// stats do not carry stay zero.
func EntryFromStats(entry Entry, sync map[string]any, rules map[string]any) Entry {
	entry.RecordCount = asInt64(sync["RecordCount"])
	entry.RuleMatchCount = asInt64(rules["RuleMatchCount"])
	entry.RuleErrorCount = asInt64(rules["RuleErrorCount"])
	if len(sync) > 0 || len(rules) > 0 {
		if payload, err := json.Marshal(map[string]any{"sync": sync, "rules": rules}); err == nil {
			entry.StatsJSON = string(payload)
		}
	}
	return entry
}

func asInt64(v any) int64 {
	switch typed := v.(type) {
	case float64:
		return int64(typed)
	case int64:
		return typed
	case int:
		return int64(typed)
	case json.Number:
		n, _ := typed.Int64()
		return n
	default:
		return 0
	}
}

func nullableTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
