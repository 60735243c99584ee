package core

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newTestSynchronizer(wh Warehouse) *Synchronizer {
	return NewSynchronizer(wh, NewPartitionLocks(), NewAuditLog(wh, "test"))
}

func TestSync_FullReplaceScenario(t *testing.T) {
	wh := newFakeWarehouse()
	s := newTestSynchronizer(wh)

	ds := accepted("orcado_2024.csv",
		budgetRow(11111111, nil, "01/01/2024", "2024 - V1", 100),
		budgetRow(22222222, int64Ptr(123456789), "01/01/2024", "2024 - V1", 200.5),
		budgetRow(22222222, int64Ptr(123456789), "01/02/2024", "2024 - V1", 300),
	)

	var phases []JobPhase
	res, err := s.Sync(context.Background(), SyncRequest{
		JobID:    "job-1",
		Dataset:  ds,
		Progress: func(p JobPhase) { phases = append(phases, p) },
	})
	require.NoError(t, err)

	assert.Equal(t, ModeFullReplace, res.Mode)
	assert.Equal(t, StatusSuccess, res.Status)
	assert.Equal(t, int64(3), res.Inserted)
	assert.Equal(t, 3, res.Rows)
	assert.Len(t, wh.state(), 3)

	audit := wh.lastAudit()
	assert.Equal(t, StatusSuccess, audit.Status)
	assert.Equal(t, 3, audit.TotalRegistros)
	assert.Equal(t, "orcado_2024.csv", audit.ArquivoOrigem)
	assert.Equal(t, "test", audit.VersaoSistema)
	assert.Equal(t, ModeFullReplace, audit.Detalhes.Mode)
	assert.Equal(t, ActionImport, audit.Detalhes.Action)
	assert.Equal(t, "abc123", audit.Detalhes.Checksum)
	assert.Equal(t, "R$600,50", audit.Detalhes.Total)
	assert.NotEmpty(t, audit.Usuario)
	assert.NotEmpty(t, audit.SistemaOperacional)

	assert.Equal(t, 0, wh.openStaging(), "staging dropped")
	assert.Equal(t, []JobPhase{
		PhaseProbing, PhaseEvolving, PhaseStaging, PhaseReconciling, PhaseCleanup, PhaseAuditing,
	}, phases)
}

func TestSync_IncrementalUpdate(t *testing.T) {
	wh := newFakeWarehouse()
	s := newTestSynchronizer(wh)
	ctx := context.Background()

	_, err := s.Sync(ctx, SyncRequest{Dataset: accepted("v1.csv",
		budgetRow(11111111, nil, "01/01/2024", "2024 - V1", 100),
		budgetRow(22222222, int64Ptr(123456789), "01/01/2024", "2024 - V1", 200),
	)})
	require.NoError(t, err)

	res, err := s.Sync(ctx, SyncRequest{Dataset: accepted("v1b.csv",
		budgetRow(11111111, nil, "01/01/2024", "2024 - V1", 150),
		budgetRow(33333333, int64Ptr(987654321), "01/03/2024", "2024 - V1", 50),
	)})
	require.NoError(t, err)

	assert.Equal(t, ModeIncrementalMerge, res.Mode)
	assert.Equal(t, int64(1), res.Updated)
	assert.Equal(t, int64(1), res.Inserted)

	state := wh.state()
	require.Len(t, state, 3, "unmatched record of the same versao is untouched")
	byConta := map[int64]float64{}
	for _, r := range state {
		byConta[r.NConta] = r.Valor
	}
	assert.Equal(t, 150.0, byConta[11111111])
	assert.Equal(t, 200.0, byConta[22222222])
	assert.Equal(t, 50.0, byConta[33333333])
}

func TestSync_Idempotent(t *testing.T) {
	wh := newFakeWarehouse()
	s := newTestSynchronizer(wh)
	ctx := context.Background()
	ds := accepted("a.csv",
		budgetRow(11111111, nil, "01/01/2024", "2024 - V1", 10),
		budgetRow(22222222, int64Ptr(123456789), "15/01/2024", "2024 - V1", 20),
	)

	_, err := s.Sync(ctx, SyncRequest{Dataset: ds})
	require.NoError(t, err)
	first := wh.state()

	res, err := s.Sync(ctx, SyncRequest{Dataset: ds})
	require.NoError(t, err)
	assert.Equal(t, first, wh.state())
	assert.Equal(t, ModeIncrementalMerge, res.Mode)
	assert.Equal(t, int64(0), res.Inserted)
	assert.Equal(t, int64(2), res.Updated)
	assert.Len(t, wh.audit, 2, "one audit record per attempt")
}

func TestSync_PartitionIsolation(t *testing.T) {
	wh := newFakeWarehouse()
	s := newTestSynchronizer(wh)
	ctx := context.Background()

	_, err := s.Sync(ctx, SyncRequest{Dataset: accepted("v2.csv",
		budgetRow(11111111, nil, "01/01/2024", "2024 - V2", 1),
		budgetRow(22222222, int64Ptr(123456789), "01/01/2024", "2024 - V2", 2),
	)})
	require.NoError(t, err)

	_, err = s.Sync(ctx, SyncRequest{Dataset: accepted("v1.csv",
		budgetRow(11111111, nil, "01/01/2024", "2024 - V1", 99),
	)})
	require.NoError(t, err)

	var v2 []NormalizedRow
	for _, r := range wh.state() {
		if r.Versao == "2024 - V2" {
			v2 = append(v2, r)
		}
	}
	require.Len(t, v2, 2)
	for _, r := range v2 {
		assert.NotEqual(t, 99.0, r.Valor)
	}
}

func TestSync_KeyUniqueness(t *testing.T) {
	wh := newFakeWarehouse()
	s := newTestSynchronizer(wh)

	ds := accepted("dup.csv",
		budgetRow(11111111, nil, "01/01/2024", "2024 - V1", 1),
		budgetRow(11111111, nil, "01/01/2024", "2024 - V1", 2),
		budgetRow(22222222, int64Ptr(123456789), "01/01/2024", "2024 - V1", 3),
		budgetRow(22222222, int64Ptr(123456789), "01/01/2024", "2024 - V1", 4),
	)
	_, err := s.Sync(context.Background(), SyncRequest{Dataset: ds})
	require.NoError(t, err)

	state := wh.state()
	require.Len(t, state, 2)
	seen := map[string]bool{}
	for _, r := range state {
		k := r.Key().String()
		assert.False(t, seen[k], "duplicate key %s", k)
		seen[k] = true
	}
	for _, r := range state {
		if r.NConta == 11111111 {
			assert.Equal(t, 2.0, r.Valor, "last staged row wins")
		}
	}
}

func TestSync_CleanupOnMergeFailure(t *testing.T) {
	wh := newFakeWarehouse()
	s := newTestSynchronizer(wh)
	ctx := context.Background()

	_, err := s.Sync(ctx, SyncRequest{Dataset: accepted("a.csv",
		budgetRow(11111111, nil, "01/01/2024", "2024 - V1", 1),
	)})
	require.NoError(t, err)
	before := wh.state()

	wh.failOn["MergePartition"] = errors.New(`ERROR: column "x" does not exist`)
	res, err := s.Sync(ctx, SyncRequest{Dataset: accepted("b.csv",
		budgetRow(11111111, nil, "01/01/2024", "2024 - V1", 2),
	)})
	require.Error(t, err)

	var se *SyncError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, CategoryReconciliation, se.Category)
	assert.Equal(t, StageReconcile, se.Stage)
	assert.True(t, IsReconciliation(err))
	assert.False(t, IsConnectivity(err))

	assert.Equal(t, StatusFailure, res.Status)
	assert.Equal(t, 0, wh.openStaging(), "staging dropped after failure")
	assert.Contains(t, wh.dropped, res.StagingTable)
	assert.Equal(t, before, wh.state(), "warehouse unchanged")

	audit := wh.lastAudit()
	assert.Equal(t, StatusFailure, audit.Status)
	assert.Contains(t, audit.Detalhes.Error, "does not exist")
}

func TestSync_CancelBeforeStaging(t *testing.T) {
	wh := newFakeWarehouse()
	s := newTestSynchronizer(wh)

	ctx, cancel := context.WithCancel(context.Background())
	wh.onEvolve = cancel

	res, err := s.Sync(ctx, SyncRequest{Dataset: accepted("a.csv",
		budgetRow(11111111, nil, "01/01/2024", "2024 - V1", 1),
	)})
	require.ErrorIs(t, err, ErrSyncCancelled)
	assert.Empty(t, wh.created, "no staging table was created")
	assert.Empty(t, wh.state())
	assert.Equal(t, StatusFailure, res.Status)
	assert.Equal(t, StatusFailure, wh.lastAudit().Status, "cancellation is audited")
}

func TestSync_CancelledContextBeforeStart(t *testing.T) {
	wh := newFakeWarehouse()
	s := newTestSynchronizer(wh)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Sync(ctx, SyncRequest{Dataset: accepted("a.csv",
		budgetRow(11111111, nil, "01/01/2024", "2024 - V1", 1),
	)})
	require.ErrorIs(t, err, ErrSyncCancelled)
	assert.Empty(t, wh.created)
}

func TestSync_ConnectivityFailure(t *testing.T) {
	wh := &mockWarehouse{}
	wh.On("LockPartitions", mock.Anything, []string{"2024 - V1"}).Return(func() {}, nil)
	wh.On("CountVersion", mock.Anything, "2024 - V1").
		Return(int64(0), errors.New("failed to connect to `host=db`: dial tcp 10.0.0.1:5432: connect: connection refused"))
	wh.On("AppendAudit", mock.Anything, mock.MatchedBy(func(r AuditRecord) bool {
		return r.Status == StatusFailure
	})).Return(errors.New("connection refused"))

	s := newTestSynchronizer(wh)
	_, err := s.Sync(context.Background(), SyncRequest{Dataset: accepted("a.csv",
		budgetRow(11111111, nil, "01/01/2024", "2024 - V1", 1),
	)})

	require.Error(t, err)
	assert.True(t, IsConnectivity(err))
	assert.ErrorIs(t, err, ErrWarehouseUnavailable)
	var se *SyncError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, StageProbe, se.Stage)

	wh.AssertNotCalled(t, "CreateStaging", mock.Anything)
	wh.AssertExpectations(t)
}

func TestSync_StagingDroppedWithDetachedContext(t *testing.T) {
	wh := &mockWarehouse{}
	rows := []NormalizedRow{budgetRow(11111111, nil, "01/01/2024", "2024 - V1", 1)}

	wh.On("LockPartitions", mock.Anything, []string{"2024 - V1"}).Return(func() {}, nil)
	wh.On("CountVersion", mock.Anything, "2024 - V1").Return(int64(5), nil)
	wh.On("EnsureOptionalColumns", mock.Anything).Return([]string(nil), nil)
	wh.On("CreateStaging", mock.Anything).Return("orcado_staging_x", nil)
	wh.On("LoadStaging", mock.Anything, "orcado_staging_x", mock.Anything).Return(int64(1), nil)
	wh.On("MergePartition", mock.Anything, "orcado_staging_x").
		Return(ReconcileStats{}, errors.New("deadlock detected"))
	wh.On("DropStaging", mock.MatchedBy(func(ctx context.Context) bool {
		return ctx.Err() == nil
	}), "orcado_staging_x").Return(nil).Once()
	wh.On("AppendAudit", mock.Anything, mock.Anything).Return(nil)

	s := newTestSynchronizer(wh)
	_, err := s.Sync(context.Background(), SyncRequest{Dataset: accepted("a.csv", rows...)})
	require.Error(t, err)
	assert.True(t, IsReconciliation(err))
	wh.AssertExpectations(t)
}

func TestSync_RejectedDatasetHasNoSideEffects(t *testing.T) {
	wh := &mockWarehouse{}
	s := newTestSynchronizer(wh)

	ds := accepted("bad.csv", budgetRow(11111111, nil, "01/01/2024", "2024 - V1", 1))
	ds.Errors = []FieldError{{RowIndex: 0, Field: ColNConta, Message: "invalid n_conta"}}

	_, err := s.Sync(context.Background(), SyncRequest{Dataset: ds})
	assert.ErrorIs(t, err, ErrDatasetRejected)
	wh.AssertNotCalled(t, "CountVersion", mock.Anything, mock.Anything)
	wh.AssertNotCalled(t, "AppendAudit", mock.Anything, mock.Anything)
}

func TestSync_SameVersaoSerialized(t *testing.T) {
	wh := newFakeWarehouse()
	s := newTestSynchronizer(wh)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(v float64) {
			defer wg.Done()
			_, err := s.Sync(context.Background(), SyncRequest{Dataset: accepted("c.csv",
				budgetRow(11111111, nil, "01/01/2024", "2024 - V1", v),
			)})
			assert.NoError(t, err)
		}(float64(i))
	}
	wg.Wait()

	assert.Len(t, wh.state(), 1)
	assert.Equal(t, 0, wh.openStaging())

	full := 0
	for _, a := range wh.audit {
		if a.Detalhes.Mode == ModeFullReplace {
			full++
		}
	}
	assert.Equal(t, 1, full, "only the first sync sees an empty partition")
}

func TestSync_TakesWarehouseLockForEveryVersao(t *testing.T) {
	wh := newFakeWarehouse()
	s := newTestSynchronizer(wh)

	_, err := s.Sync(context.Background(), SyncRequest{Dataset: accepted("mixed.csv",
		budgetRow(11111111, nil, "01/01/2024", "2024 - V1", 1),
		budgetRow(22222222, nil, "01/01/2024", "2024 - V2", 2),
	)})
	require.NoError(t, err)

	assert.Equal(t, [][]string{{"2024 - V1", "2024 - V2"}}, wh.locked)
	assert.Equal(t, 1, wh.unlocked)
	assert.Equal(t, 0, s.locks.Held())
}

func TestSync_WarehouseLockFailure(t *testing.T) {
	wh := newFakeWarehouse()
	wh.failOn["LockPartitions"] = errors.New("failed to connect to `host=db`: dial tcp 10.0.0.1:5432: connect: connection refused")
	s := newTestSynchronizer(wh)

	_, err := s.Sync(context.Background(), SyncRequest{Dataset: accepted("a.csv",
		budgetRow(11111111, nil, "01/01/2024", "2024 - V1", 1),
	)})
	require.Error(t, err)
	assert.True(t, IsConnectivity(err))
	var se *SyncError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, StageLock, se.Stage)

	assert.Empty(t, wh.created)
	assert.Equal(t, StatusFailure, wh.lastAudit().Status)
	assert.Equal(t, 0, s.locks.Held(), "in-process locks are released")
}

func TestSync_MixedVersionsWaitForEveryPartition(t *testing.T) {
	wh := newFakeWarehouse()
	s := newTestSynchronizer(wh)

	// An admin edit holds the second VERSAO.
	held, err := s.locks.Lock(context.Background(), "2024 - V2")
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := s.Sync(context.Background(), SyncRequest{Dataset: accepted("mixed.csv",
			budgetRow(11111111, nil, "01/01/2024", "2024 - V1", 1),
			budgetRow(22222222, nil, "01/01/2024", "2024 - V2", 2),
		)})
		done <- err
	}()

	select {
	case err := <-done:
		t.Fatalf("sync finished while 2024 - V2 was locked: %v", err)
	case <-time.After(50 * time.Millisecond):
	}
	assert.Empty(t, wh.created)

	held()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("sync did not resume after the lock was released")
	}
	assert.Len(t, wh.state(), 2)
}
