package core

import (
	"context"
	"errors"
	"time"
)

// ErrSnapshotNotFound is returned for unknown snapshot IDs.
var ErrSnapshotNotFound = errors.New("snapshot not found")

// ErrSnapshotNotReplayable is returned when replaying a synced or rejected snapshot.
var ErrSnapshotNotReplayable = errors.New("snapshot not replayable")

// SnapshotStatus tracks a locally kept dataset.
type SnapshotStatus string

const (
	SnapshotValidated SnapshotStatus = "validated" // accepted, sync in progress
	SnapshotPending   SnapshotStatus = "pending"   // warehouse unreachable, awaiting replay
	SnapshotSynced    SnapshotStatus = "synced"
	SnapshotFailed    SnapshotStatus = "failed" // reconciliation error
	SnapshotCancelled SnapshotStatus = "cancelled"
	SnapshotRejected  SnapshotStatus = "rejected" // kept for inspection, never replayed
)

// Replayable reports whether a snapshot in this status may be synchronized again.
func (s SnapshotStatus) Replayable() bool {
	switch s {
	case SnapshotPending, SnapshotFailed, SnapshotCancelled, SnapshotValidated:
		return true
	}
	return false
}

// Snapshot is a validated (or rejected) dataset kept on local disk so a
// warehouse outage never loses a submission.
type Snapshot struct {
	ID         string            `json:"id"`
	JobID      string            `json:"job_id"`
	SourceFile string            `json:"source_file"`
	Checksum   string            `json:"checksum"`
	Versao     string            `json:"versao"`
	Status     SnapshotStatus    `json:"status"`
	Dataset    NormalizedDataset `json:"dataset"`
	Error      string            `json:"error,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
	UpdatedAt  time.Time         `json:"updated_at"`
}

// SnapshotStore persists snapshots. internal/snapshot implements it on SQLite.
type SnapshotStore interface {
	Save(ctx context.Context, snap Snapshot) error
	Get(ctx context.Context, id string) (Snapshot, error)
	List(ctx context.Context, status SnapshotStatus, limit int) ([]Snapshot, error)
	SetStatus(ctx context.Context, id string, status SnapshotStatus, errMsg string) error
	// Purge deletes snapshots in status last updated before cutoff.
	Purge(ctx context.Context, status SnapshotStatus, cutoff time.Time) (int64, error)
}
