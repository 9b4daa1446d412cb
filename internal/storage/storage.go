// Package storage provides SQLite-backed persistence for the rolling volume
// windows.
package storage

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

// Storage wraps a SQLite database holding the volume history table.
type Storage struct {
	db  *sql.DB
	now func() time.Time
}

// New opens or creates the SQLite database at dbPath.
// An empty dbPath defaults to $TMPDIR/mercsync/cache.db.
func New(dbPath string) (*Storage, error) {
	if dbPath == "" {
		dbPath = filepath.Join(os.TempDir(), "mercsync", "cache.db")
	}
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1) // single writer; WAL allows concurrent readers
	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		db.Close() //nolint:errcheck
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}
	s := &Storage{db: db, now: time.Now}
	if err := s.createTables(); err != nil {
		db.Close() //nolint:errcheck
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Storage) Close() error {
	return s.db.Close()
}

func (s *Storage) createTables() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS volume_history (
			key        TEXT PRIMARY KEY,
			volumes    TEXT NOT NULL DEFAULT '[]',
			updated_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_volume_history_updated_at ON volume_history(updated_at)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// LoadVolumes returns every stored window keyed by its composite key.
func (s *Storage) LoadVolumes(ctx context.Context) (map[string][]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, volumes FROM volume_history`)
	if err != nil {
		return nil, fmt.Errorf("failed to query volume history: %w", err)
	}
	defer rows.Close()

	windows := make(map[string][]int)
	for rows.Next() {
		var key, volumesJSON string
		if err := rows.Scan(&key, &volumesJSON); err != nil {
			return nil, fmt.Errorf("failed to scan volume history: %w", err)
		}
		var volumes []int
		if err := json.Unmarshal([]byte(volumesJSON), &volumes); err != nil {
			return nil, fmt.Errorf("failed to unmarshal volumes for %s: %w", key, err)
		}
		windows[key] = volumes
	}
	return windows, rows.Err()
}

// SaveVolumes upserts the given windows in a single transaction.
func (s *Storage) SaveVolumes(ctx context.Context, windows map[string][]int) error {
	if len(windows) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO volume_history (key, volumes, updated_at)
		VALUES (?,?,?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare volume upsert: %w", err)
	}
	defer stmt.Close()

	updatedAt := s.now().UnixNano()
	for key, volumes := range windows {
		if volumes == nil {
			volumes = []int{}
		}
		volumesJSON, err := json.Marshal(volumes)
		if err != nil {
			return fmt.Errorf("failed to marshal volumes for %s: %w", key, err)
		}
		if _, err := stmt.ExecContext(ctx, key, string(volumesJSON), updatedAt); err != nil {
			return fmt.Errorf("failed to save volumes for %s: %w", key, err)
		}
	}
	return tx.Commit()
}

// CountVolumes reports how many windows are stored.
func (s *Storage) CountVolumes(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM volume_history`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count volume history: %w", err)
	}
	return n, nil
}
