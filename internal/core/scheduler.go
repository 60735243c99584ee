package core

// scheduler.go runs background maintenance for the import service.
//
// The job janitor drops finished jobs from the registry once they are older
// than the retention window, so pollers can still fetch a result for a while
// after it is produced without the registry growing forever. On the same tick
// it purges synced and rejected snapshots older than the snapshot retention.
// Pending, failed and cancelled snapshots stay until they are replayed.

import (
	"context"
	"log/slog"
	"time"
)

// Janitor defaults, used when the configured values are zero.
const (
	DefaultJobRetention    = 30 * time.Minute
	DefaultJanitorInterval = time.Minute
)

// StartJobJanitor sweeps the job registry every interval until ctx is done.
// It blocks; run it in its own goroutine.
func (s *Service) StartJobJanitor(ctx context.Context, interval time.Duration) {
	retention := s.cfg.JobRetention
	if retention <= 0 {
		retention = DefaultJobRetention
	}
	if interval <= 0 {
		interval = DefaultJanitorInterval
	}
	slog.Info("job janitor started",
		"retention", retention,
		"snapshot_retention", s.cfg.SnapshotRetention,
		"interval", interval,
	)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("job janitor stopped", "active_jobs", s.jobs.Active())
			return
		case now := <-ticker.C:
			s.sweepJobs(retention)
			s.purgeSnapshots(ctx, now)
		}
	}
}

func (s *Service) sweepJobs(retention time.Duration) {
	start := time.Now()
	removed := s.jobs.Sweep(retention)
	if removed > 0 {
		slog.Info("expired jobs removed",
			"removed", removed,
			"remaining", s.jobs.Len(),
			"active", s.jobs.Active(),
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}
}

// purgedStatuses are the snapshot states nobody replays.
var purgedStatuses = []SnapshotStatus{SnapshotSynced, SnapshotRejected}

func (s *Service) purgeSnapshots(ctx context.Context, now time.Time) {
	if s.snapshots == nil || s.cfg.SnapshotRetention <= 0 {
		return
	}
	cutoff := now.Add(-s.cfg.SnapshotRetention)
	for _, status := range purgedStatuses {
		n, err := s.snapshots.Purge(ctx, status, cutoff)
		if err != nil {
			slog.Error("purge snapshots", "status", status, "error", err)
			continue
		}
		if n > 0 {
			slog.Info("expired snapshots purged", "status", status, "removed", n, "cutoff", cutoff)
		}
	}
}
