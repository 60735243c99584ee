// Package application assembles the warehouse, the local snapshot store and
// the import service from configuration. The HTTP server and the CLI share it.
package application

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JonMunkholm/orcado/internal/config"
	"github.com/JonMunkholm/orcado/internal/core"
	"github.com/JonMunkholm/orcado/internal/snapshot"
	"github.com/JonMunkholm/orcado/internal/warehouse"
)

// DefaultRecoverInterval is how often an offline server retries the warehouse.
const DefaultRecoverInterval = 30 * time.Second

// App holds the wired components.
type App struct {
	Config    *config.Config
	Pool      *pgxpool.Pool
	Warehouse *warehouse.Store
	Snapshots *snapshot.Store // nil when disabled
	Service   *core.Service
}

// Open builds the App. The pool connects lazily, so Open succeeds while the
// warehouse is down; call Bootstrap before the first sync.
func Open(ctx context.Context, cfg *config.Config) (*App, error) {
	pool, err := warehouse.NewPool(ctx, cfg.Database.URL, warehouse.PoolOptions{
		MaxConns:        int32(cfg.Database.MaxConns),
		MinConns:        int32(cfg.Database.MinConns),
		MaxConnLifetime: cfg.Database.MaxConnLifetime,
		MaxConnIdleTime: cfg.Database.MaxConnIdleTime,
		ConnectTimeout:  cfg.Database.ConnectTimeout,
	})
	if err != nil {
		return nil, err
	}

	app := &App{
		Config: cfg,
		Pool:   pool,
		Warehouse: warehouse.New(pool, warehouse.Options{
			Schema:        cfg.Warehouse.Schema,
			Table:         cfg.Warehouse.Table,
			AuditTable:    cfg.Warehouse.AuditTable,
			StagingPrefix: cfg.Warehouse.StagingPrefix,
		}),
	}

	var snaps core.SnapshotStore
	if cfg.Snapshot.Enabled {
		app.Snapshots, err = snapshot.Open(cfg.Snapshot.Path)
		if err != nil {
			pool.Close()
			return nil, err
		}
		snaps = app.Snapshots
	}

	app.Service = core.NewService(app.Warehouse, snaps, ServiceConfig(cfg))
	return app, nil
}

// ServiceConfig maps configuration onto the import service settings.
func ServiceConfig(cfg *config.Config) core.ServiceConfig {
	return core.ServiceConfig{
		MaxConcurrent:     cfg.Import.MaxConcurrent,
		MaxWait:           cfg.Import.MaxWaitTime,
		Timeout:           cfg.Import.Timeout,
		ValidationWorkers: cfg.Import.ValidationWorkers,
		JobRetention:      cfg.Import.JobRetention,
		SystemVersion:     cfg.Import.SystemVersion,
		KeepRejected:      cfg.Snapshot.Enabled && cfg.Snapshot.KeepRejected,
		SnapshotRetention: cfg.Snapshot.Retention,
	}
}

// Bootstrap pings the warehouse and creates its tables when missing.
func (a *App) Bootstrap(ctx context.Context) error {
	pctx := ctx
	if t := a.Config.Database.ConnectTimeout; t > 0 {
		var cancel context.CancelFunc
		pctx, cancel = context.WithTimeout(ctx, t)
		defer cancel()
	}
	if err := a.Warehouse.Ping(pctx); err != nil {
		return fmt.Errorf("%w: %v", core.ErrWarehouseUnavailable, err)
	}
	return a.Warehouse.Bootstrap(ctx)
}

// Recover retries Bootstrap every interval until it succeeds or ctx ends,
// then replays the snapshots left pending by the outage.
func (a *App) Recover(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultRecoverInterval
	}
	for {
		err := a.Bootstrap(ctx)
		if err == nil {
			break
		}
		slog.Warn("warehouse not ready, retrying", "in", interval, "error", err)
		select {
		case <-ctx.Done():
			return
		case <-time.After(interval):
		}
	}

	results, err := a.Service.ReplayPending(ctx)
	if err != nil {
		slog.Error("replay pending snapshots", "error", err)
	}
	for _, res := range results {
		slog.Info("pending snapshot replayed", "snapshot_id", res.SnapshotID, "job_id", res.JobID, "phase", res.Phase)
	}
}

// Close releases the pool and the snapshot database.
func (a *App) Close() {
	if a.Snapshots != nil {
		if err := a.Snapshots.Close(); err != nil {
			slog.Error("close snapshot store", "error", err)
		}
	}
	a.Pool.Close()
}
