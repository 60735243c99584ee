// Package snapshot keeps submitted datasets in a local SQLite database.
//
// Accepted datasets are written before synchronization starts, so a
// warehouse outage leaves a pending snapshot that can be replayed later.
// Rejected datasets are kept with their error list for inspection.
package snapshot

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/JonMunkholm/orcado/internal/core"
)

//go:embed schema.sql
var schemaSQL string

// timeLayout is how timestamps are stored; it sorts lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// Store is a core.SnapshotStore backed by SQLite in WAL mode.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

var _ core.SnapshotStore = (*Store)(nil)

// Open creates or opens the database at path, creating parent directories.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create snapshot directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open snapshot database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to snapshot database: %w", err)
	}

	// One writer at a time avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply snapshot schema: %w", err)
	}

	return &Store{db: db, now: time.Now}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Save inserts snap. CreatedAt and UpdatedAt are set when zero.
func (s *Store) Save(ctx context.Context, snap core.Snapshot) error {
	if snap.ID == "" {
		return errors.New("save snapshot: empty id")
	}
	dataset, err := json.Marshal(snap.Dataset)
	if err != nil {
		return fmt.Errorf("encode snapshot %s: %w", snap.ID, err)
	}

	now := s.now().UTC()
	if snap.CreatedAt.IsZero() {
		snap.CreatedAt = now
	}
	if snap.UpdatedAt.IsZero() {
		snap.UpdatedAt = snap.CreatedAt
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO snapshots (id, job_id, source_file, checksum, versao, status,
			row_count, error_count, dataset, error, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		snap.ID, snap.JobID, snap.SourceFile, snap.Checksum, snap.Versao, string(snap.Status),
		len(snap.Dataset.Rows), len(snap.Dataset.Errors), string(dataset), snap.Error,
		snap.CreatedAt.UTC().Format(timeLayout), snap.UpdatedAt.UTC().Format(timeLayout))
	if err != nil {
		return fmt.Errorf("insert snapshot %s: %w", snap.ID, err)
	}
	return nil
}

const selectColumns = `id, job_id, source_file, checksum, versao, status, dataset, error, created_at, updated_at`

// Get loads one snapshot with its dataset.
func (s *Store) Get(ctx context.Context, id string) (core.Snapshot, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+selectColumns+" FROM snapshots WHERE id = ?", id)
	snap, err := scanSnapshot(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Snapshot{}, core.ErrSnapshotNotFound
	}
	if err != nil {
		return core.Snapshot{}, fmt.Errorf("get snapshot %s: %w", id, err)
	}
	return snap, nil
}

// List returns snapshots oldest first. An empty status matches all and a
// non-positive limit returns everything.
func (s *Store) List(ctx context.Context, status core.SnapshotStatus, limit int) ([]core.Snapshot, error) {
	q := "SELECT " + selectColumns + " FROM snapshots"
	var args []any
	if status != "" {
		q += " WHERE status = ?"
		args = append(args, string(status))
	}
	q += " ORDER BY seq"
	if limit > 0 {
		q += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	defer rows.Close()

	var out []core.Snapshot
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		out = append(out, snap)
	}
	return out, rows.Err()
}

// SetStatus moves a snapshot to status and records errMsg.
func (s *Store) SetStatus(ctx context.Context, id string, status core.SnapshotStatus, errMsg string) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE snapshots SET status = ?, error = ?, updated_at = ? WHERE id = ?",
		string(status), errMsg, s.now().UTC().Format(timeLayout), id)
	if err != nil {
		return fmt.Errorf("update snapshot %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update snapshot %s: %w", id, err)
	}
	if n == 0 {
		return core.ErrSnapshotNotFound
	}
	return nil
}

// Purge deletes snapshots in status last updated before cutoff and returns
// how many were removed.
func (s *Store) Purge(ctx context.Context, status core.SnapshotStatus, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM snapshots WHERE status = ? AND updated_at < ?",
		string(status), cutoff.UTC().Format(timeLayout))
	if err != nil {
		return 0, fmt.Errorf("purge snapshots: %w", err)
	}
	return res.RowsAffected()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSnapshot(sc scanner) (core.Snapshot, error) {
	var (
		snap                 core.Snapshot
		status, dataset      string
		createdAt, updatedAt string
	)
	err := sc.Scan(&snap.ID, &snap.JobID, &snap.SourceFile, &snap.Checksum, &snap.Versao,
		&status, &dataset, &snap.Error, &createdAt, &updatedAt)
	if err != nil {
		return core.Snapshot{}, err
	}
	snap.Status = core.SnapshotStatus(status)

	if err := json.Unmarshal([]byte(dataset), &snap.Dataset); err != nil {
		return core.Snapshot{}, fmt.Errorf("decode dataset of %s: %w", snap.ID, err)
	}
	if snap.CreatedAt, err = time.Parse(timeLayout, createdAt); err != nil {
		return core.Snapshot{}, fmt.Errorf("parse created_at of %s: %w", snap.ID, err)
	}
	if snap.UpdatedAt, err = time.Parse(timeLayout, updatedAt); err != nil {
		return core.Snapshot{}, fmt.Errorf("parse updated_at of %s: %w", snap.ID, err)
	}
	return snap, nil
}
