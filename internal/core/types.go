package core

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// RawRow is one parsed input row keyed by column name.
// Values are the cell text exactly as read; empty string means empty cell.
type RawRow map[string]string

// Get returns the value for col, or "" when the column is absent.
func (r RawRow) Get(col string) string {
	if r == nil {
		return ""
	}
	return r[col]
}

// RawDataset is what the parsing collaborator hands to the validator.
type RawDataset struct {
	Columns    []string // Header names in file order
	Rows       []RawRow
	SourceFile string // Base name of the submitted file
	Checksum   string // xxhash of the file bytes, hex encoded
}

// StructuralRow is the RowIndex of a dataset-level error.
const StructuralRow = -1

// FieldError describes one failing field in one row, or a structural
// problem when RowIndex is StructuralRow.
type FieldError struct {
	RowIndex int    `json:"row_index"`
	Field    string `json:"field"`
	RawValue string `json:"raw_value"`
	Message  string `json:"message"`
}

// Line returns the spreadsheet line of the row, counting the header as line 1.
func (e FieldError) Line() int {
	if e.RowIndex == StructuralRow {
		return 0
	}
	return e.RowIndex + 2
}

func (e FieldError) Error() string {
	if e.RowIndex == StructuralRow {
		return e.Message
	}
	return fmt.Sprintf("line %d: %s: %s (value found: %q)", e.Line(), e.Field, e.Message, e.RawValue)
}

// IsStructural reports whether the error aborted validation before any row was read.
func (e FieldError) IsStructural() bool {
	return e.RowIndex == StructuralRow
}

// NormalizedRow holds the canonical value of every field of one row.
// Fields that failed validation keep their zero value here and their raw
// text in Raw so callers can still show what was submitted.
type NormalizedRow struct {
	Index        int               `json:"index"`
	Filial       string            `json:"filial"`
	NConta       int64             `json:"n_conta"`
	NCentroCusto *int64            `json:"n_centro_custo"`
	Descricao    string            `json:"descricao"`
	Valor        float64           `json:"valor"`
	Data         string            `json:"data"` // DD/MM/YYYY
	Versao       string            `json:"versao"`
	Operacao     string            `json:"operacao"`
	Rateio       string            `json:"rateio"`
	Origem       string            `json:"origem"`
	Tipo         string            `json:"tipo"`
	Raw          map[string]string `json:"raw,omitempty"`
}

// Key returns the composite natural key of the row.
func (r NormalizedRow) Key() RecordKey {
	return RecordKey{
		NConta:       r.NConta,
		NCentroCusto: r.NCentroCusto,
		Data:         r.Data,
		Versao:       r.Versao,
	}
}

// Date parses Data back into a time.Time.
func (r NormalizedRow) Date() (time.Time, error) {
	return time.Parse(CanonicalDateLayout, r.Data)
}

// RecordKey is the warehouse composite key (N_CONTA, N_CENTRO_CUSTO, DATA, VERSAO).
// A nil NCentroCusto is a null cost centre and equals another null.
type RecordKey struct {
	NConta       int64  `json:"n_conta"`
	NCentroCusto *int64 `json:"n_centro_custo"`
	Data         string `json:"data"`
	Versao       string `json:"versao"`
}

// String renders the key as "conta|centro|data|versao" with an empty centro for null.
func (k RecordKey) String() string {
	centro := ""
	if k.NCentroCusto != nil {
		centro = fmt.Sprintf("%d", *k.NCentroCusto)
	}
	return fmt.Sprintf("%d|%s|%s|%s", k.NConta, centro, k.Data, k.Versao)
}

// NormalizedDataset is the validator's output. A non-empty Errors list
// rejects the whole dataset.
type NormalizedDataset struct {
	Rows       []NormalizedRow `json:"rows"`
	Errors     []FieldError    `json:"errors"`
	SourceFile string          `json:"source_file"`
	Checksum   string          `json:"checksum"`
}

// Accepted reports whether the dataset may be synchronized.
func (d NormalizedDataset) Accepted() bool {
	return len(d.Errors) == 0
}

// Versao returns the partition key of the dataset, read from the first row.
func (d NormalizedDataset) Versao() string {
	if len(d.Rows) == 0 {
		return ""
	}
	return d.Rows[0].Versao
}

// Versions returns the distinct VERSAO values in row order.
func (d NormalizedDataset) Versions() []string {
	seen := make(map[string]bool)
	var out []string
	for _, r := range d.Rows {
		if r.Versao == "" || seen[r.Versao] {
			continue
		}
		seen[r.Versao] = true
		out = append(out, r.Versao)
	}
	return out
}

// TotalValor sums VALOR over all rows without float drift.
func (d NormalizedDataset) TotalValor() decimal.Decimal {
	total := decimal.Zero
	for _, r := range d.Rows {
		total = total.Add(decimal.NewFromFloat(r.Valor))
	}
	return total
}

// ErrorsByField groups errors by field name, preserving row order within each group.
func (d NormalizedDataset) ErrorsByField() map[string][]FieldError {
	out := make(map[string][]FieldError)
	for _, e := range d.Errors {
		out[e.Field] = append(out[e.Field], e)
	}
	return out
}

// SyncMode is the reconciliation strategy chosen by the partition probe.
type SyncMode string

const (
	ModeFullReplace      SyncMode = "FULL_REPLACE"
	ModeIncrementalMerge SyncMode = "INCREMENTAL_MERGE"
)

// Audit statuses.
const (
	StatusSuccess = "SUCESSO"
	StatusFailure = "FALHA"
)

// SyncResult summarizes one synchronization attempt.
type SyncResult struct {
	JobID        string        `json:"job_id"`
	Versao       string        `json:"versao"`
	Mode         SyncMode      `json:"mode"`
	Rows         int           `json:"rows"`
	Inserted     int64         `json:"inserted"`
	Updated      int64         `json:"updated"`
	Deleted      int64         `json:"deleted"`
	Status       string        `json:"status"`
	StagingTable string        `json:"staging_table,omitempty"`
	Duration     time.Duration `json:"duration"`
	Error        string        `json:"error,omitempty"`
}

// Succeeded reports whether reconciliation committed.
func (r SyncResult) Succeeded() bool {
	return r.Status == StatusSuccess
}

// ProgressFunc receives stage transitions from long-running operations.
type ProgressFunc func(phase JobPhase)

// Warehouse is the persistence contract the synchronizer and the
// administrative operations depend on. internal/warehouse implements it
// on PostgreSQL.
type Warehouse interface {
	// Ping reports whether the warehouse is reachable.
	Ping(ctx context.Context) error
	// CountVersion counts records whose VERSAO equals versao.
	CountVersion(ctx context.Context, versao string) (int64, error)
	// EnsureOptionalColumns adds missing nullable optional columns. It never drops.
	EnsureOptionalColumns(ctx context.Context) ([]string, error)
	// CreateStaging creates a uniquely named staging table and returns its name.
	CreateStaging(ctx context.Context) (string, error)
	// LoadStaging bulk loads rows into the staging table.
	LoadStaging(ctx context.Context, staging string, rows []NormalizedRow) (int64, error)
	// ReplacePartition deletes versao and inserts the staged rows in one transaction.
	ReplacePartition(ctx context.Context, staging, versao string) (ReconcileStats, error)
	// MergePartition upserts staged rows by composite key in one statement.
	MergePartition(ctx context.Context, staging string) (ReconcileStats, error)
	// DropStaging removes the staging table if it exists.
	DropStaging(ctx context.Context, staging string) error
	// AppendAudit inserts one audit record.
	AppendAudit(ctx context.Context, rec AuditRecord) error
	// ListAudit returns audit records newest first.
	ListAudit(ctx context.Context, limit, offset int) ([]AuditRecord, error)
	// DeleteWhere deletes records matching the filter and returns the count.
	DeleteWhere(ctx context.Context, f RecordFilter) (int64, error)
	// GetRecord loads a single record by key.
	GetRecord(ctx context.Context, key RecordKey) (WarehouseRecord, error)
	// UpdateRecord applies changed attributes to one record and refreshes DATA_ATUALIZACAO.
	UpdateRecord(ctx context.Context, key RecordKey, changes map[string]any) error
	// LockPartitions blocks until every listed VERSAO is locked across
	// processes. The returned func releases them.
	LockPartitions(ctx context.Context, versions []string) (func(), error)
}

// ReconcileStats counts the effect of a reconciliation statement.
type ReconcileStats struct {
	Inserted int64
	Updated  int64
	Deleted  int64
}

// WarehouseRecord is a persisted budget line.
type WarehouseRecord struct {
	NormalizedRow
	DataAtualizacao time.Time `json:"data_atualizacao"`
}

// RecordFilter selects warehouse records for bulk deletion. Set fields are
// combined with AND.
type RecordFilter struct {
	Versao       string     `json:"versao,omitempty"`
	Filial       string     `json:"filial,omitempty"`
	NConta       *int64     `json:"n_conta,omitempty"`
	NCentroCusto *int64     `json:"n_centro_custo,omitempty"`
	DataFrom     *time.Time `json:"data_from,omitempty"`
	DataTo       *time.Time `json:"data_to,omitempty"`
}

// IsEmpty reports whether no criterion is set.
func (f RecordFilter) IsEmpty() bool {
	return f.Versao == "" && f.Filial == "" && f.NConta == nil &&
		f.NCentroCusto == nil && f.DataFrom == nil && f.DataTo == nil
}
