package web

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/JonMunkholm/orcado/internal/core"
)

// memWarehouse is a minimal in-memory core.Warehouse for handler tests.
type memWarehouse struct {
	mu      sync.Mutex
	records map[string]core.WarehouseRecord
	staging map[string][]core.NormalizedRow
	audit   []core.AuditRecord
	seq     int
	pingErr error
}

func newMemWarehouse() *memWarehouse {
	return &memWarehouse{
		records: make(map[string]core.WarehouseRecord),
		staging: make(map[string][]core.NormalizedRow),
	}
}

func (m *memWarehouse) Ping(ctx context.Context) error { return m.pingErr }

func (m *memWarehouse) CountVersion(ctx context.Context, versao string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, r := range m.records {
		if r.Versao == versao {
			n++
		}
	}
	return n, nil
}

func (m *memWarehouse) EnsureOptionalColumns(ctx context.Context) ([]string, error) {
	return nil, nil
}

func (m *memWarehouse) CreateStaging(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	name := fmt.Sprintf("orcado_staging_%d", m.seq)
	m.staging[name] = nil
	return name, nil
}

func (m *memWarehouse) LoadStaging(ctx context.Context, staging string, rows []core.NormalizedRow) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.staging[staging] = append(m.staging[staging], rows...)
	return int64(len(rows)), nil
}

func (m *memWarehouse) ReplacePartition(ctx context.Context, staging, versao string) (core.ReconcileStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var stats core.ReconcileStats
	for k, r := range m.records {
		if r.Versao == versao {
			delete(m.records, k)
			stats.Deleted++
		}
	}
	ins, upd := m.upsert(staging)
	stats.Inserted, stats.Updated = ins, upd
	return stats, nil
}

func (m *memWarehouse) MergePartition(ctx context.Context, staging string) (core.ReconcileStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ins, upd := m.upsert(staging)
	return core.ReconcileStats{Inserted: ins, Updated: upd}, nil
}

func (m *memWarehouse) upsert(staging string) (inserted, updated int64) {
	for _, row := range m.staging[staging] {
		k := row.Key().String()
		if _, ok := m.records[k]; ok {
			updated++
		} else {
			inserted++
		}
		m.records[k] = core.WarehouseRecord{NormalizedRow: row, DataAtualizacao: time.Now()}
	}
	return inserted, updated
}

func (m *memWarehouse) DropStaging(ctx context.Context, staging string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.staging, staging)
	return nil
}

func (m *memWarehouse) AppendAudit(ctx context.Context, rec core.AuditRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec.ID = int64(len(m.audit) + 1)
	m.audit = append(m.audit, rec)
	return nil
}

func (m *memWarehouse) ListAudit(ctx context.Context, limit, offset int) ([]core.AuditRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []core.AuditRecord
	for i := len(m.audit) - 1 - offset; i >= 0 && len(out) < limit; i-- {
		out = append(out, m.audit[i])
	}
	return out, nil
}

func (m *memWarehouse) DeleteWhere(ctx context.Context, f core.RecordFilter) (int64, error) {
	if f.IsEmpty() {
		return 0, core.ErrEmptyFilter
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for k, r := range m.records {
		if f.Versao != "" && r.Versao != f.Versao {
			continue
		}
		if f.Filial != "" && r.Filial != f.Filial {
			continue
		}
		if f.NConta != nil && r.NConta != *f.NConta {
			continue
		}
		delete(m.records, k)
		n++
	}
	return n, nil
}

func (m *memWarehouse) GetRecord(ctx context.Context, key core.RecordKey) (core.WarehouseRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.records[key.String()]
	if !ok {
		return core.WarehouseRecord{}, core.ErrRecordNotFound
	}
	return r, nil
}

func (m *memWarehouse) UpdateRecord(ctx context.Context, key core.RecordKey, changes map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.records[key.String()]
	if !ok {
		return core.ErrRecordNotFound
	}
	for col, v := range changes {
		switch col {
		case "valor":
			r.Valor = v.(float64)
		case "filial":
			r.Filial = v.(string)
		case "descricao":
			r.Descricao = v.(string)
		case "tipo":
			r.Tipo = v.(string)
		}
	}
	m.records[key.String()] = r
	return nil
}

func (m *memWarehouse) auditRecords() []core.AuditRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]core.AuditRecord(nil), m.audit...)
}

func (m *memWarehouse) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}

func (m *memWarehouse) LockPartitions(ctx context.Context, versions []string) (func(), error) {
	return func() {}, nil
}
