package core

// audit.go writes the append-only audit trail of imports and administrative
// actions. Every synchronization attempt and every admin operation produces
// exactly one AuditRecord, successful or not.

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os/user"
	"runtime"
	"strconv"
	"time"

	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

// AuditAction represents the type of action being audited.
type AuditAction string

const (
	ActionImport        AuditAction = "import"
	ActionReplay        AuditAction = "replay"
	ActionDeleteVersion AuditAction = "delete_version"
	ActionDeleteFilial  AuditAction = "delete_filial"
	ActionDeleteFilter  AuditAction = "delete_filter"
	ActionEditRecord    AuditAction = "edit_record"
)

// Audit list bounds.
const (
	DefaultAuditLimit = 50
	MaxAuditLimit     = 500
)

// AuditRecord is one row of the audit table.
type AuditRecord struct {
	ID                 int64        `json:"id,omitempty"`
	DataImportacao     time.Time    `json:"data_importacao"`
	Usuario            string       `json:"usuario"`
	SistemaOperacional string       `json:"sistema_operacional"`
	VersaoSistema      string       `json:"versao_sistema"`
	ArquivoOrigem      string       `json:"arquivo_origem"`
	TotalRegistros     int          `json:"total_registros"`
	Status             string       `json:"status"`
	Detalhes           AuditDetails `json:"detalhes"`
}

// AuditDetails is stored as a JSON document next to the fixed audit columns.
type AuditDetails struct {
	Action       AuditAction            `json:"action"`
	JobID        string                 `json:"job_id,omitempty"`
	Mode         SyncMode               `json:"mode,omitempty"`
	Versao       string                 `json:"versao,omitempty"`
	Filial       string                 `json:"filial,omitempty"`
	Inserted     int64                  `json:"inserted,omitempty"`
	Updated      int64                  `json:"updated,omitempty"`
	Deleted      int64                  `json:"deleted,omitempty"`
	Checksum     string                 `json:"checksum,omitempty"`
	Total        string                 `json:"total,omitempty"`
	StagingTable string                 `json:"staging_table,omitempty"`
	SnapshotID   string                 `json:"snapshot_id,omitempty"`
	IPAddress    string                 `json:"ip_address,omitempty"`
	Filter       *RecordFilter          `json:"filter,omitempty"`
	Key          *RecordKey             `json:"key,omitempty"`
	Diff         map[string]FieldChange `json:"diff,omitempty"`
	Error        string                 `json:"error,omitempty"`
}

// FieldChange is one entry of an edit diff.
type FieldChange struct {
	Old any `json:"old"`
	New any `json:"new"`
}

// AuditFilter pages through the audit log.
type AuditFilter struct {
	Limit  int
	Offset int
}

// AuditLog appends and lists audit records through the warehouse.
type AuditLog struct {
	wh      Warehouse
	version string
	now     func() time.Time
}

// NewAuditLog creates an audit log that stamps records with systemVersion.
func NewAuditLog(wh Warehouse, systemVersion string) *AuditLog {
	return &AuditLog{
		wh:      wh,
		version: systemVersion,
		now:     time.Now,
	}
}

// Append fills the operator and system columns and inserts rec.
func (a *AuditLog) Append(ctx context.Context, rec AuditRecord) error {
	if rec.DataImportacao.IsZero() {
		rec.DataImportacao = a.now().UTC()
	}
	op, _ := OperatorFromContext(ctx)
	if rec.Usuario == "" {
		rec.Usuario = op.User
	}
	if rec.Usuario == "" {
		rec.Usuario = processUser()
	}
	if rec.Detalhes.IPAddress == "" {
		rec.Detalhes.IPAddress = op.IPAddress
	}
	if rec.SistemaOperacional == "" {
		rec.SistemaOperacional = runtime.GOOS + "/" + runtime.GOARCH
	}
	if rec.VersaoSistema == "" {
		rec.VersaoSistema = a.version
	}

	if err := a.wh.AppendAudit(ctx, rec); err != nil {
		return fmt.Errorf("append audit record: %w", err)
	}
	return nil
}

// List returns audit records newest first.
func (a *AuditLog) List(ctx context.Context, f AuditFilter) ([]AuditRecord, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = DefaultAuditLimit
	}
	if limit > MaxAuditLimit {
		limit = MaxAuditLimit
	}
	offset := f.Offset
	if offset < 0 {
		offset = 0
	}
	return a.wh.ListAudit(ctx, limit, offset)
}

// ExportCSV writes up to MaxAuditLimit records as CSV, newest first.
func (a *AuditLog) ExportCSV(ctx context.Context, w io.Writer, f AuditFilter) error {
	if f.Limit <= 0 {
		f.Limit = MaxAuditLimit
	}
	recs, err := a.List(ctx, f)
	if err != nil {
		return err
	}

	cw := csv.NewWriter(w)
	cw.Comma = ';'
	header := []string{
		"DATA_IMPORTACAO", "USUARIO", "SISTEMA_OPERACIONAL", "VERSAO_SISTEMA",
		"ARQUIVO_ORIGEM", "TOTAL_REGISTROS", "STATUS", "ACAO", "VERSAO", "MODO", "ERRO",
	}
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, r := range recs {
		err := cw.Write([]string{
			r.DataImportacao.Format(time.RFC3339),
			r.Usuario,
			r.SistemaOperacional,
			r.VersaoSistema,
			r.ArquivoOrigem,
			strconv.Itoa(r.TotalRegistros),
			r.Status,
			string(r.Detalhes.Action),
			r.Detalhes.Versao,
			string(r.Detalhes.Mode),
			r.Detalhes.Error,
		})
		if err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func processUser() string {
	u, err := user.Current()
	if err != nil || u.Username == "" {
		return "unknown"
	}
	return u.Username
}

// FormatBRL renders an amount in Brazilian reais, e.g. "R$1.234,56".
func FormatBRL(amount decimal.Decimal) string {
	cents := amount.Shift(2).Round(0).IntPart()
	return money.New(cents, money.BRL).Display()
}
