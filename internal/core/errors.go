package core

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrDatasetRejected is returned when a sync is requested for a dataset with errors.
	ErrDatasetRejected = errors.New("dataset rejected: validation errors present")

	// ErrSyncCancelled is returned when a job is cancelled before staging starts.
	ErrSyncCancelled = errors.New("sync cancelled before staging")

	// ErrWarehouseUnavailable marks connectivity and credential failures.
	ErrWarehouseUnavailable = errors.New("warehouse unavailable")

	// ErrEmptyFilter refuses a filtered delete with no criteria.
	ErrEmptyFilter = errors.New("empty filter: refusing to delete every record")

	// ErrRecordNotFound is returned when an edit targets a missing key.
	ErrRecordNotFound = errors.New("record not found")

	// ErrJobNotFound is returned for unknown or expired job IDs.
	ErrJobNotFound = errors.New("job not found")
)

// ErrorCategory separates failures the caller handles differently.
type ErrorCategory string

const (
	CategoryConnectivity   ErrorCategory = "connectivity"
	CategoryReconciliation ErrorCategory = "reconciliation"
)

// SyncStage names the synchronizer step that failed.
type SyncStage string

const (
	StageLock      SyncStage = "lock"
	StageProbe     SyncStage = "probe"
	StageEvolve    SyncStage = "schema_evolution"
	StageStaging   SyncStage = "staging"
	StageReconcile SyncStage = "reconcile"
)

// SyncError is a synchronization failure. Validation problems are never
// SyncErrors; they live in NormalizedDataset.Errors.
type SyncError struct {
	Category ErrorCategory
	Stage    SyncStage
	Versao   string
	Err      error
}

func (e *SyncError) Error() string {
	return fmt.Sprintf("sync %s failed at %s (versao %q): %v", e.Category, e.Stage, e.Versao, e.Err)
}

func (e *SyncError) Unwrap() error {
	return e.Err
}

// Is lets errors.Is(err, ErrWarehouseUnavailable) match connectivity failures.
func (e *SyncError) Is(target error) bool {
	return target == ErrWarehouseUnavailable && e.Category == CategoryConnectivity
}

// IsConnectivity reports whether err means the warehouse could not be reached.
func IsConnectivity(err error) bool {
	var se *SyncError
	if errors.As(err, &se) {
		return se.Category == CategoryConnectivity
	}
	return false
}

// IsReconciliation reports whether err is a failure after validation succeeded
// that was not caused by connectivity.
func IsReconciliation(err error) bool {
	var se *SyncError
	if errors.As(err, &se) {
		return se.Category == CategoryReconciliation
	}
	return false
}

// newSyncError classifies err into a SyncError for stage.
func newSyncError(stage SyncStage, versao string, err error) *SyncError {
	cat := CategoryReconciliation
	if isConnectivityErr(err) {
		cat = CategoryConnectivity
	}
	return &SyncError{Category: cat, Stage: stage, Versao: versao, Err: err}
}

// isConnectivityErr recognizes network, authentication and pool errors.
func isConnectivityErr(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrWarehouseUnavailable) {
		return true
	}
	if errors.Is(err, context.Canceled) {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	var connectErr *pgconn.ConnectError
	if errors.As(err, &connectErr) {
		return true
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// Class 08 connection exception, class 28 invalid authorization,
		// 57P01-57P03 server shutting down or unavailable.
		return strings.HasPrefix(pgErr.Code, "08") ||
			strings.HasPrefix(pgErr.Code, "28") ||
			pgErr.Code == "57P01" || pgErr.Code == "57P02" || pgErr.Code == "57P03"
	}

	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "no such host") ||
		strings.Contains(msg, "failed to connect")
}
