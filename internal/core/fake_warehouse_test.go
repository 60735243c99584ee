package core

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"
)

// fakeWarehouse is an in-memory Warehouse with the same reconciliation
// semantics as the Postgres store: last staged row wins per key, FULL_REPLACE
// drops the partition first, MERGE leaves unmatched rows alone.
type fakeWarehouse struct {
	mu       sync.Mutex
	records  map[string]WarehouseRecord
	staging  map[string][]NormalizedRow
	created  []string
	dropped  []string
	columns  map[string]bool
	audit    []AuditRecord
	seq      int
	failOn   map[string]error
	onEvolve func()
	locked   [][]string // versions per LockPartitions call
	unlocked int
	now      func() time.Time
}

func newFakeWarehouse() *fakeWarehouse {
	return &fakeWarehouse{
		records: make(map[string]WarehouseRecord),
		staging: make(map[string][]NormalizedRow),
		columns: make(map[string]bool),
		failOn:  make(map[string]error),
		now:     func() time.Time { return time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC) },
	}
}

func (f *fakeWarehouse) fail(op string) error {
	return f.failOn[op]
}

func (f *fakeWarehouse) Ping(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fail("Ping")
}

func (f *fakeWarehouse) CountVersion(ctx context.Context, versao string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail("CountVersion"); err != nil {
		return 0, err
	}
	var n int64
	for _, r := range f.records {
		if r.Versao == versao {
			n++
		}
	}
	return n, nil
}

func (f *fakeWarehouse) EnsureOptionalColumns(ctx context.Context) ([]string, error) {
	if f.onEvolve != nil {
		f.onEvolve()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail("EnsureOptionalColumns"); err != nil {
		return nil, err
	}
	var added []string
	for _, c := range append(OptionalDBColumns(), "data_atualizacao") {
		if !f.columns[c] {
			f.columns[c] = true
			added = append(added, c)
		}
	}
	return added, nil
}

func (f *fakeWarehouse) CreateStaging(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail("CreateStaging"); err != nil {
		return "", err
	}
	f.seq++
	name := fmt.Sprintf("orcado_staging_%d", f.seq)
	f.staging[name] = nil
	f.created = append(f.created, name)
	return name, nil
}

func (f *fakeWarehouse) LoadStaging(ctx context.Context, staging string, rows []NormalizedRow) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail("LoadStaging"); err != nil {
		return 0, err
	}
	if _, ok := f.staging[staging]; !ok {
		return 0, fmt.Errorf("relation %q does not exist", staging)
	}
	f.staging[staging] = append(f.staging[staging], rows...)
	return int64(len(rows)), nil
}

// dedup keeps the last staged row per key.
func dedup(rows []NormalizedRow) map[string]NormalizedRow {
	out := make(map[string]NormalizedRow, len(rows))
	for _, r := range rows {
		out[r.Key().String()] = r
	}
	return out
}

func (f *fakeWarehouse) ReplacePartition(ctx context.Context, staging, versao string) (ReconcileStats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail("ReplacePartition"); err != nil {
		return ReconcileStats{}, err
	}
	var stats ReconcileStats
	for k, r := range f.records {
		if r.Versao == versao {
			delete(f.records, k)
			stats.Deleted++
		}
	}
	for k, r := range dedup(f.staging[staging]) {
		f.records[k] = WarehouseRecord{NormalizedRow: r, DataAtualizacao: f.now()}
		stats.Inserted++
	}
	return stats, nil
}

func (f *fakeWarehouse) MergePartition(ctx context.Context, staging string) (ReconcileStats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail("MergePartition"); err != nil {
		return ReconcileStats{}, err
	}
	var stats ReconcileStats
	for k, r := range dedup(f.staging[staging]) {
		if _, ok := f.records[k]; ok {
			stats.Updated++
		} else {
			stats.Inserted++
		}
		f.records[k] = WarehouseRecord{NormalizedRow: r, DataAtualizacao: f.now()}
	}
	return stats, nil
}

func (f *fakeWarehouse) DropStaging(ctx context.Context, staging string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail("DropStaging"); err != nil {
		return err
	}
	delete(f.staging, staging)
	f.dropped = append(f.dropped, staging)
	return nil
}

func (f *fakeWarehouse) AppendAudit(ctx context.Context, rec AuditRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail("AppendAudit"); err != nil {
		return err
	}
	rec.ID = int64(len(f.audit) + 1)
	f.audit = append(f.audit, rec)
	return nil
}

func (f *fakeWarehouse) ListAudit(ctx context.Context, limit, offset int) ([]AuditRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []AuditRecord
	for i := len(f.audit) - 1 - offset; i >= 0 && len(out) < limit; i-- {
		out = append(out, f.audit[i])
	}
	return out, nil
}

func (f *fakeWarehouse) DeleteWhere(ctx context.Context, flt RecordFilter) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail("DeleteWhere"); err != nil {
		return 0, err
	}
	var n int64
	for k, r := range f.records {
		if matchesFilter(r, flt) {
			delete(f.records, k)
			n++
		}
	}
	return n, nil
}

func matchesFilter(r WarehouseRecord, f RecordFilter) bool {
	if f.Versao != "" && r.Versao != f.Versao {
		return false
	}
	if f.Filial != "" && r.Filial != f.Filial {
		return false
	}
	if f.NConta != nil && r.NConta != *f.NConta {
		return false
	}
	if f.NCentroCusto != nil && (r.NCentroCusto == nil || *r.NCentroCusto != *f.NCentroCusto) {
		return false
	}
	if f.DataFrom != nil || f.DataTo != nil {
		d, err := r.Date()
		if err != nil {
			return false
		}
		if f.DataFrom != nil && d.Before(*f.DataFrom) {
			return false
		}
		if f.DataTo != nil && d.After(*f.DataTo) {
			return false
		}
	}
	return true
}

func (f *fakeWarehouse) GetRecord(ctx context.Context, key RecordKey) (WarehouseRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.records[key.String()]
	if !ok {
		return WarehouseRecord{}, ErrRecordNotFound
	}
	return r, nil
}

func (f *fakeWarehouse) UpdateRecord(ctx context.Context, key RecordKey, changes map[string]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail("UpdateRecord"); err != nil {
		return err
	}
	r, ok := f.records[key.String()]
	if !ok {
		return ErrRecordNotFound
	}
	for col, v := range changes {
		switch col {
		case "filial":
			r.Filial = v.(string)
		case "descricao":
			r.Descricao = v.(string)
		case "valor":
			r.Valor = v.(float64)
		case "operacao":
			r.Operacao = v.(string)
		case "rateio":
			r.Rateio = v.(string)
		case "origem":
			r.Origem = v.(string)
		case "tipo":
			r.Tipo = v.(string)
		default:
			return fmt.Errorf("column %q is not editable", col)
		}
	}
	r.DataAtualizacao = f.now()
	f.records[key.String()] = r
	return nil
}

func (f *fakeWarehouse) LockPartitions(ctx context.Context, versions []string) (func(), error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail("LockPartitions"); err != nil {
		return nil, err
	}
	f.locked = append(f.locked, append([]string(nil), versions...))
	var once sync.Once
	return func() {
		once.Do(func() {
			f.mu.Lock()
			f.unlocked++
			f.mu.Unlock()
		})
	}, nil
}

// state returns the records sorted by key with timestamps cleared.
func (f *fakeWarehouse) state() []NormalizedRow {
	f.mu.Lock()
	defer f.mu.Unlock()
	keys := make([]string, 0, len(f.records))
	for k := range f.records {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]NormalizedRow, len(keys))
	for i, k := range keys {
		r := f.records[k].NormalizedRow
		r.Index = 0
		out[i] = r
	}
	return out
}

func (f *fakeWarehouse) lastAudit() AuditRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.audit) == 0 {
		return AuditRecord{}
	}
	return f.audit[len(f.audit)-1]
}

func (f *fakeWarehouse) openStaging() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.staging)
}

// mockWarehouse is a testify mock for call-level assertions.
type mockWarehouse struct {
	mock.Mock
}

func (m *mockWarehouse) Ping(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *mockWarehouse) CountVersion(ctx context.Context, versao string) (int64, error) {
	args := m.Called(ctx, versao)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockWarehouse) EnsureOptionalColumns(ctx context.Context) ([]string, error) {
	args := m.Called(ctx)
	cols, _ := args.Get(0).([]string)
	return cols, args.Error(1)
}

func (m *mockWarehouse) CreateStaging(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

func (m *mockWarehouse) LoadStaging(ctx context.Context, staging string, rows []NormalizedRow) (int64, error) {
	args := m.Called(ctx, staging, rows)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockWarehouse) ReplacePartition(ctx context.Context, staging, versao string) (ReconcileStats, error) {
	args := m.Called(ctx, staging, versao)
	return args.Get(0).(ReconcileStats), args.Error(1)
}

func (m *mockWarehouse) MergePartition(ctx context.Context, staging string) (ReconcileStats, error) {
	args := m.Called(ctx, staging)
	return args.Get(0).(ReconcileStats), args.Error(1)
}

func (m *mockWarehouse) DropStaging(ctx context.Context, staging string) error {
	return m.Called(ctx, staging).Error(0)
}

func (m *mockWarehouse) AppendAudit(ctx context.Context, rec AuditRecord) error {
	return m.Called(ctx, rec).Error(0)
}

func (m *mockWarehouse) ListAudit(ctx context.Context, limit, offset int) ([]AuditRecord, error) {
	args := m.Called(ctx, limit, offset)
	recs, _ := args.Get(0).([]AuditRecord)
	return recs, args.Error(1)
}

func (m *mockWarehouse) DeleteWhere(ctx context.Context, f RecordFilter) (int64, error) {
	args := m.Called(ctx, f)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockWarehouse) GetRecord(ctx context.Context, key RecordKey) (WarehouseRecord, error) {
	args := m.Called(ctx, key)
	return args.Get(0).(WarehouseRecord), args.Error(1)
}

func (m *mockWarehouse) UpdateRecord(ctx context.Context, key RecordKey, changes map[string]any) error {
	return m.Called(ctx, key, changes).Error(0)
}

func (m *mockWarehouse) LockPartitions(ctx context.Context, versions []string) (func(), error) {
	args := m.Called(ctx, versions)
	unlock, _ := args.Get(0).(func())
	return unlock, args.Error(1)
}

// budgetRow builds a valid normalized row.
func budgetRow(conta int64, centro *int64, data, versao string, valor float64) NormalizedRow {
	return NormalizedRow{
		Filial:       "0101",
		NConta:       conta,
		NCentroCusto: centro,
		Descricao:    "DESPESA",
		Valor:        valor,
		Data:         data,
		Versao:       versao,
		Tipo:         DefaultTipo,
	}
}

func accepted(name string, rows ...NormalizedRow) NormalizedDataset {
	for i := range rows {
		rows[i].Index = i
	}
	return NormalizedDataset{Rows: rows, SourceFile: name, Checksum: "abc123"}
}
