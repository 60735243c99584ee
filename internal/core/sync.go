package core

// sync.go reconciles an accepted dataset into the warehouse.
//
// One call handles one VERSAO partition. Every VERSAO present in the file is
// locked first, in process and in the warehouse, because the merge touches
// all of them:
//
//	lock -> probe -> schema evolution -> [cancel checkpoint] -> staging -> reconcile -> cleanup -> audit
//
// The probe picks FULL_REPLACE for an empty partition and INCREMENTAL_MERGE
// otherwise. Once the staging table exists the caller's cancellation is
// ignored and the work runs to completion. The staging table is dropped on
// every path that created it, and exactly one audit record is appended after
// cleanup.

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/JonMunkholm/orcado/internal/logging"
)

// CleanupTimeout bounds the staging drop and the audit append, which run
// detached from the caller's context.
var CleanupTimeout = 30 * time.Second

// SyncRequest is one synchronization attempt.
type SyncRequest struct {
	JobID    string
	Dataset  NormalizedDataset
	Action   AuditAction // ActionImport when empty
	Progress ProgressFunc
}

// Synchronizer writes validated datasets to a Warehouse.
type Synchronizer struct {
	wh    Warehouse
	locks *PartitionLocks
	audit *AuditLog
	now   func() time.Time
}

// NewSynchronizer creates a synchronizer. A nil locks gets a private table.
func NewSynchronizer(wh Warehouse, locks *PartitionLocks, audit *AuditLog) *Synchronizer {
	if locks == nil {
		locks = NewPartitionLocks()
	}
	return &Synchronizer{
		wh:    wh,
		locks: locks,
		audit: audit,
		now:   time.Now,
	}
}

// Sync reconciles req.Dataset. A rejected dataset returns ErrDatasetRejected
// without touching the warehouse. Failures after that are audited and
// returned as *SyncError, or as ErrSyncCancelled when the context ended
// before staging.
func (s *Synchronizer) Sync(ctx context.Context, req SyncRequest) (SyncResult, error) {
	ds := req.Dataset
	if !ds.Accepted() {
		return SyncResult{}, fmt.Errorf("%w: %d errors", ErrDatasetRejected, len(ds.Errors))
	}
	if len(ds.Rows) == 0 {
		return SyncResult{}, fmt.Errorf("%w: no rows", ErrDatasetRejected)
	}

	res := SyncResult{
		JobID:  req.JobID,
		Versao: ds.Versao(),
		Rows:   len(ds.Rows),
	}
	start := s.now()
	log := logging.WithFields(ctx, "job_id", req.JobID, "versao", res.Versao, "rows", res.Rows)

	versions := ds.Versions()
	unlock, err := s.lockPartitions(ctx, res.Versao, versions)
	if err != nil {
		return s.finish(ctx, req, res, start, err)
	}
	defer unlock()
	log.Debug("partitions locked", "versions", versions, "held", s.locks.Held())

	err = s.run(ctx, req, &res, log)
	return s.finish(ctx, req, res, start, err)
}

// lockPartitions takes the in-process locks and then the warehouse locks
// for versions. The returned func releases both.
func (s *Synchronizer) lockPartitions(ctx context.Context, versao string, versions []string) (func(), error) {
	local, err := s.locks.LockAll(ctx, versions)
	if err != nil {
		return nil, fmt.Errorf("%w: waiting for partition lock: %v", ErrSyncCancelled, err)
	}
	remote, err := s.wh.LockPartitions(ctx, versions)
	if err != nil {
		local()
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: waiting for warehouse lock: %v", ErrSyncCancelled, ctx.Err())
		}
		return nil, newSyncError(StageLock, versao, err)
	}
	return func() {
		remote()
		local()
	}, nil
}

func (s *Synchronizer) run(ctx context.Context, req SyncRequest, res *SyncResult, log *slog.Logger) error {
	versao := res.Versao
	report := func(p JobPhase) {
		if req.Progress != nil {
			req.Progress(p)
		}
	}
	// Errors before staging caused by the caller giving up are cancellations.
	preStaging := func(stage SyncStage, err error) error {
		if ctx.Err() != nil {
			return fmt.Errorf("%w: %v", ErrSyncCancelled, ctx.Err())
		}
		return newSyncError(stage, versao, err)
	}

	report(PhaseProbing)
	existing, err := s.wh.CountVersion(ctx, versao)
	if err != nil {
		return preStaging(StageProbe, err)
	}
	res.Mode = ModeIncrementalMerge
	if existing == 0 {
		res.Mode = ModeFullReplace
	}
	log.Debug("partition probed", "existing", existing, "mode", res.Mode)

	report(PhaseEvolving)
	added, err := s.wh.EnsureOptionalColumns(ctx)
	if err != nil {
		return preStaging(StageEvolve, err)
	}
	if len(added) > 0 {
		log.Info("warehouse columns added", "columns", added)
	}

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrSyncCancelled, err)
	}

	work := context.WithoutCancel(ctx)

	report(PhaseStaging)
	staging, err := s.wh.CreateStaging(work)
	if err != nil {
		return newSyncError(StageStaging, versao, err)
	}
	res.StagingTable = staging
	defer func() {
		report(PhaseCleanup)
		cctx, cancel := context.WithTimeout(work, CleanupTimeout)
		defer cancel()
		if err := s.wh.DropStaging(cctx, staging); err != nil {
			log.Error("drop staging table", "staging", staging, "error", err)
			return
		}
		log.Debug("staging table dropped", "staging", staging)
	}()

	loaded, err := s.wh.LoadStaging(work, staging, req.Dataset.Rows)
	if err != nil {
		return newSyncError(StageStaging, versao, err)
	}
	log.Debug("staging loaded", "staging", staging, "rows", loaded)

	report(PhaseReconciling)
	var stats ReconcileStats
	if res.Mode == ModeFullReplace {
		stats, err = s.wh.ReplacePartition(work, staging, versao)
	} else {
		stats, err = s.wh.MergePartition(work, staging)
	}
	if err != nil {
		return newSyncError(StageReconcile, versao, err)
	}
	res.Inserted = stats.Inserted
	res.Updated = stats.Updated
	res.Deleted = stats.Deleted
	return nil
}

// finish stamps the outcome and appends the audit record.
func (s *Synchronizer) finish(ctx context.Context, req SyncRequest, res SyncResult, start time.Time, err error) (SyncResult, error) {
	res.Duration = s.now().Sub(start)
	res.Status = StatusSuccess
	if err != nil {
		res.Status = StatusFailure
		res.Error = err.Error()
	}

	if req.Progress != nil {
		req.Progress(PhaseAuditing)
	}

	action := req.Action
	if action == "" {
		action = ActionImport
	}
	rec := AuditRecord{
		ArquivoOrigem:  req.Dataset.SourceFile,
		TotalRegistros: res.Rows,
		Status:         res.Status,
		Detalhes: AuditDetails{
			Action:       action,
			JobID:        res.JobID,
			Mode:         res.Mode,
			Versao:       res.Versao,
			Inserted:     res.Inserted,
			Updated:      res.Updated,
			Deleted:      res.Deleted,
			Checksum:     req.Dataset.Checksum,
			Total:        FormatBRL(req.Dataset.TotalValor()),
			StagingTable: res.StagingTable,
			Error:        res.Error,
		},
	}

	actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), CleanupTimeout)
	defer cancel()
	if aerr := s.audit.Append(actx, rec); aerr != nil {
		slog.Error("audit append failed", "job_id", res.JobID, "versao", res.Versao, "error", aerr)
	}

	attrs := []any{
		"job_id", res.JobID,
		"versao", res.Versao,
		"mode", res.Mode,
		"rows", res.Rows,
		"inserted", res.Inserted,
		"updated", res.Updated,
		"deleted", res.Deleted,
		"duration_ms", res.Duration.Milliseconds(),
	}
	switch {
	case err == nil:
		slog.Info("sync completed", attrs...)
	case errors.Is(err, ErrSyncCancelled):
		slog.Warn("sync cancelled", append(attrs, "error", err)...)
	default:
		slog.Error("sync failed", append(attrs, "error", err)...)
	}
	return res, err
}
