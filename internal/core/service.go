package core

// service.go wires validation, synchronization, the job registry and the
// local snapshot store into the import workflow used by the HTTP server and
// the CLI.
//
// An import is validated synchronously so the caller gets the full error
// list at once. Accepted datasets are snapshotted and synchronized in the
// background; the caller polls or waits on the returned job ID.

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// ServiceConfig tunes the import workflow.
type ServiceConfig struct {
	MaxConcurrent     int
	MaxWait           time.Duration
	Timeout           time.Duration // Upper bound for one job, validation included
	ValidationWorkers int
	JobRetention      time.Duration
	SystemVersion     string
	KeepRejected      bool          // Snapshot rejected datasets for inspection
	SnapshotRetention time.Duration // Age after which synced and rejected snapshots are purged, 0 keeps them
}

// DefaultImportTimeout is used when ServiceConfig.Timeout is zero.
const DefaultImportTimeout = 10 * time.Minute

// Service provides the import and administration operations.
type Service struct {
	wh        Warehouse
	snapshots SnapshotStore // nil disables the local fallback
	validator *Validator
	sync      *Synchronizer
	audit     *AuditLog
	jobs      *JobRegistry
	limiter   *ImportLimiter
	cfg       ServiceConfig
}

// NewService creates a Service. snapshots may be nil.
func NewService(wh Warehouse, snapshots SnapshotStore, cfg ServiceConfig) *Service {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultImportTimeout
	}
	audit := NewAuditLog(wh, cfg.SystemVersion)
	return &Service{
		wh:        wh,
		snapshots: snapshots,
		validator: NewValidator(cfg.ValidationWorkers),
		sync:      NewSynchronizer(wh, nil, audit),
		audit:     audit,
		jobs:      NewJobRegistry(),
		limiter:   NewImportLimiter(cfg.MaxConcurrent, cfg.MaxWait),
		cfg:       cfg,
	}
}

// Jobs exposes the job registry.
func (s *Service) Jobs() *JobRegistry {
	return s.jobs
}

// Audit exposes the audit log.
func (s *Service) Audit() *AuditLog {
	return s.audit
}

// LimiterStatus reports import slot usage.
func (s *Service) LimiterStatus() ImportLimiterStatus {
	return s.limiter.Status()
}

// Ping checks the warehouse.
func (s *Service) Ping(ctx context.Context) error {
	return s.wh.Ping(ctx)
}

// Validate runs validation only. Nothing is written anywhere.
func (s *Service) Validate(ctx context.Context, raw RawDataset) (NormalizedDataset, error) {
	return s.validator.Validate(ctx, raw)
}

// StartImport validates raw and, when accepted, synchronizes it in the
// background. The job ID is returned in every case where a job was created.
// A rejected dataset returns ErrDatasetRejected together with the
// normalized dataset carrying every error.
func (s *Service) StartImport(ctx context.Context, raw RawDataset) (string, NormalizedDataset, error) {
	if err := s.limiter.Acquire(ctx); err != nil {
		return "", NormalizedDataset{}, err
	}
	release := true
	defer func() {
		if release {
			s.limiter.Release()
		}
	}()

	jobCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.Timeout)
	id := s.jobs.Create(raw.SourceFile, cancel)
	log := slog.With("job_id", id, "file", raw.SourceFile)

	s.jobs.SetPhase(id, PhaseValidating)
	ds, err := s.validator.Validate(jobCtx, raw)
	if err != nil {
		s.jobs.Finish(id, JobResult{Phase: PhaseCancelled, Error: err.Error()})
		return id, NormalizedDataset{}, err
	}
	s.jobs.Update(id, func(p *JobProgress) {
		p.Rows = len(ds.Rows)
		p.Versao = ds.Versao()
	})

	if !ds.Accepted() {
		snapID := ""
		if s.cfg.KeepRejected {
			snapID = s.saveSnapshot(jobCtx, id, ds, SnapshotRejected, ErrDatasetRejected.Error())
		}
		log.Info("dataset rejected", "rows", len(ds.Rows), "errors", len(ds.Errors))
		s.jobs.Finish(id, JobResult{
			Phase:      PhaseRejected,
			Rows:       len(ds.Rows),
			Errors:     ds.Errors,
			SnapshotID: snapID,
			Error:      ErrDatasetRejected.Error(),
		})
		return id, ds, fmt.Errorf("%w: %d errors", ErrDatasetRejected, len(ds.Errors))
	}

	if vs := ds.Versions(); len(vs) > 1 {
		log.Warn("dataset spans several versions; partition key is the first row", "versions", vs)
	}

	snapID := s.saveSnapshot(jobCtx, id, ds, SnapshotValidated, "")

	release = false
	go func() {
		result := s.runSync(jobCtx, id, ds, snapID, ActionImport)
		s.limiter.Release()
		s.jobs.Finish(id, result)
	}()

	return id, ds, nil
}

// Import runs StartImport and waits for the job to finish.
func (s *Service) Import(ctx context.Context, raw RawDataset) (JobResult, error) {
	id, _, err := s.StartImport(ctx, raw)
	if id == "" {
		return JobResult{}, err
	}
	res, werr := s.jobs.Wait(ctx, id)
	if werr != nil {
		return JobResult{}, werr
	}
	if err != nil {
		return res, err
	}
	return res, jobError(res)
}

// Replay re-runs the sync phase for a kept snapshot and returns the new job ID.
func (s *Service) Replay(ctx context.Context, snapshotID string) (string, error) {
	if s.snapshots == nil {
		return "", fmt.Errorf("replay %s: %w", snapshotID, ErrSnapshotNotFound)
	}
	snap, err := s.snapshots.Get(ctx, snapshotID)
	if err != nil {
		return "", fmt.Errorf("replay %s: %w", snapshotID, err)
	}
	if !snap.Status.Replayable() {
		return "", fmt.Errorf("replay %s: %w: status %s", snapshotID, ErrSnapshotNotReplayable, snap.Status)
	}
	if err := s.limiter.Acquire(ctx); err != nil {
		return "", err
	}

	jobCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.Timeout)
	id := s.jobs.Create(snap.SourceFile, cancel)
	s.jobs.Update(id, func(p *JobProgress) {
		p.Rows = len(snap.Dataset.Rows)
		p.Versao = snap.Versao
	})

	go func() {
		result := s.runSync(jobCtx, id, snap.Dataset, snap.ID, ActionReplay)
		s.limiter.Release()
		s.jobs.Finish(id, result)
	}()
	return id, nil
}

// ReplayPending replays every snapshot left pending by a warehouse outage,
// one at a time, and returns the finished jobs.
func (s *Service) ReplayPending(ctx context.Context) ([]JobResult, error) {
	if s.snapshots == nil {
		return nil, nil
	}
	pending, err := s.snapshots.List(ctx, SnapshotPending, 0)
	if err != nil {
		return nil, fmt.Errorf("list pending snapshots: %w", err)
	}

	var results []JobResult
	for _, snap := range pending {
		id, err := s.Replay(ctx, snap.ID)
		if err != nil {
			return results, err
		}
		res, err := s.jobs.Wait(ctx, id)
		if err != nil {
			return results, err
		}
		results = append(results, res)
		if res.Phase == PhaseSnapshotted {
			// Still unreachable; the rest would fail the same way.
			break
		}
	}
	return results, nil
}

// Snapshots lists kept snapshots with the given status.
func (s *Service) Snapshots(ctx context.Context, status SnapshotStatus, limit int) ([]Snapshot, error) {
	if s.snapshots == nil {
		return nil, nil
	}
	return s.snapshots.List(ctx, status, limit)
}

// Snapshot loads one kept snapshot with its dataset.
func (s *Service) Snapshot(ctx context.Context, id string) (Snapshot, error) {
	if s.snapshots == nil {
		return Snapshot{}, ErrSnapshotNotFound
	}
	return s.snapshots.Get(ctx, id)
}

// runSync synchronizes ds and records the outcome on its snapshot.
func (s *Service) runSync(ctx context.Context, id string, ds NormalizedDataset, snapID string, action AuditAction) JobResult {
	res, err := s.sync.Sync(ctx, SyncRequest{
		JobID:    id,
		Dataset:  ds,
		Action:   action,
		Progress: func(p JobPhase) { s.jobs.SetPhase(id, p) },
	})
	s.jobs.Update(id, func(p *JobProgress) { p.Mode = res.Mode })

	result := JobResult{Rows: len(ds.Rows), Sync: &res, SnapshotID: snapID}
	status := SnapshotSynced
	switch {
	case err == nil:
		result.Phase = PhaseComplete
	case errors.Is(err, ErrSyncCancelled):
		result.Phase = PhaseCancelled
		status = SnapshotCancelled
	case IsConnectivity(err) && snapID != "":
		result.Phase = PhaseSnapshotted
		status = SnapshotPending
	default:
		result.Phase = PhaseFailed
		status = SnapshotFailed
	}
	if err != nil {
		result.Error = err.Error()
	}

	if snapID != "" {
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), CleanupTimeout)
		if serr := s.snapshots.SetStatus(sctx, snapID, status, result.Error); serr != nil {
			slog.Error("update snapshot status", "job_id", id, "snapshot_id", snapID, "error", serr)
		}
		cancel()
	}
	return result
}

// saveSnapshot keeps ds locally and returns its ID, or "" when snapshots are
// disabled or the store failed.
func (s *Service) saveSnapshot(ctx context.Context, jobID string, ds NormalizedDataset, status SnapshotStatus, errMsg string) string {
	if s.snapshots == nil {
		return ""
	}
	snap := Snapshot{
		ID:         uuid.New().String(),
		JobID:      jobID,
		SourceFile: ds.SourceFile,
		Checksum:   ds.Checksum,
		Versao:     ds.Versao(),
		Status:     status,
		Dataset:    ds,
		Error:      errMsg,
	}
	if err := s.snapshots.Save(ctx, snap); err != nil {
		slog.Error("save snapshot", "job_id", jobID, "error", err)
		return ""
	}
	return snap.ID
}

// CancelJob requests cancellation of a running job.
func (s *Service) CancelJob(id string) error {
	return s.jobs.Cancel(id)
}

// WaitForImports blocks until every import slot is free or ctx is done.
func (s *Service) WaitForImports(ctx context.Context) error {
	return s.limiter.WaitForDrain(ctx)
}

// jobError turns a finished job into the error a synchronous caller expects.
func jobError(res JobResult) error {
	switch res.Phase {
	case PhaseComplete:
		return nil
	case PhaseRejected:
		return ErrDatasetRejected
	case PhaseCancelled:
		return fmt.Errorf("%w: %s", ErrSyncCancelled, res.Error)
	case PhaseSnapshotted:
		return fmt.Errorf("%w: %s (snapshot %s)", ErrWarehouseUnavailable, res.Error, res.SnapshotID)
	default:
		return errors.New(res.Error)
	}
}
