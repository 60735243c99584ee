// Package warehouse implements core.Warehouse on PostgreSQL with pgx.
//
// Every synchronization loads its batch into its own UNLOGGED staging table
// through the COPY protocol and reconciles it into the fact table with a
// single statement: DELETE plus INSERT for a full replace, MERGE for an
// incremental update. Staged rows are deduplicated by key first, so a file
// that repeats a key can never create duplicate records.
package warehouse

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JonMunkholm/orcado/internal/core"
)

// Options names the warehouse objects.
type Options struct {
	Schema        string
	Table         string
	AuditTable    string
	StagingPrefix string
}

func (o *Options) defaults() {
	if o.Schema == "" {
		o.Schema = "public"
	}
	if o.Table == "" {
		o.Table = "orcado"
	}
	if o.AuditTable == "" {
		o.AuditTable = o.Table + "_metadata"
	}
	if o.StagingPrefix == "" {
		o.StagingPrefix = o.Table + "_staging"
	}
}

// PoolOptions sizes the connection pool.
type PoolOptions struct {
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
	ConnectTimeout  time.Duration
}

// NewPool creates a pool without connecting. Connections are opened on
// first use, so a server can start while the warehouse is down.
func NewPool(ctx context.Context, url string, opts PoolOptions) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	if opts.MaxConns > 0 {
		cfg.MaxConns = opts.MaxConns
	}
	if opts.MinConns > 0 {
		cfg.MinConns = opts.MinConns
	}
	if opts.MaxConnLifetime > 0 {
		cfg.MaxConnLifetime = opts.MaxConnLifetime
	}
	if opts.MaxConnIdleTime > 0 {
		cfg.MaxConnIdleTime = opts.MaxConnIdleTime
	}
	if opts.ConnectTimeout > 0 {
		cfg.ConnConfig.ConnectTimeout = opts.ConnectTimeout
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}
	return pool, nil
}

// Connect creates a pool and pings it.
func Connect(ctx context.Context, url string, opts PoolOptions) (*pgxpool.Pool, error) {
	pool, err := NewPool(ctx, url, opts)
	if err != nil {
		return nil, err
	}

	pingCtx := ctx
	if opts.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		pingCtx, cancel = context.WithTimeout(ctx, opts.ConnectTimeout)
		defer cancel()
	}
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

// Store is the PostgreSQL warehouse.
type Store struct {
	pool   *pgxpool.Pool
	names  tableNames
	prefix string
}

var _ core.Warehouse = (*Store)(nil)

// New creates a Store on pool.
func New(pool *pgxpool.Pool, opts Options) *Store {
	opts.defaults()
	return &Store{
		pool:   pool,
		names:  newTableNames(opts.Schema, opts.Table, opts.AuditTable),
		prefix: opts.StagingPrefix,
	}
}

// Bootstrap creates the fact table, its indexes and the audit table when missing.
func (s *Store) Bootstrap(ctx context.Context) error {
	stmts := []string{
		createTableSQL(s.names),
		createKeyIndexSQL(s.names),
		createVersaoIndexSQL(s.names),
		createAuditTableSQL(s.names),
	}
	for _, q := range stmts {
		if _, err := s.pool.Exec(ctx, q); err != nil {
			return fmt.Errorf("bootstrap warehouse: %w", err)
		}
	}
	return nil
}

// Ping reports whether the warehouse is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// CountVersion counts the records of one VERSAO.
func (s *Store) CountVersion(ctx context.Context, versao string) (int64, error) {
	var n int64
	q := fmt.Sprintf("SELECT count(*) FROM %s WHERE versao = $1", s.names.table)
	if err := s.pool.QueryRow(ctx, q, versao).Scan(&n); err != nil {
		return 0, fmt.Errorf("count versao %s: %w", versao, err)
	}
	return n, nil
}

// EnsureOptionalColumns adds the nullable columns missing from the fact table.
func (s *Store) EnsureOptionalColumns(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT column_name FROM information_schema.columns WHERE table_schema = $1 AND table_name = $2`,
		s.names.schema, s.names.rawTable)
	if err != nil {
		return nil, fmt.Errorf("read columns: %w", err)
	}
	existing, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("read columns: %w", err)
	}
	have := make(map[string]bool, len(existing))
	for _, c := range existing {
		have[c] = true
	}

	var added []string
	for _, c := range evolvableColumns() {
		if have[c] {
			continue
		}
		if _, err := s.pool.Exec(ctx, addColumnSQL(s.names, c)); err != nil {
			return added, fmt.Errorf("add column %s: %w", c, err)
		}
		slog.Info("warehouse column added", "table", s.names.table, "column", c)
		added = append(added, c)
	}
	return added, nil
}

// CreateStaging creates an empty staging table with a unique name.
func (s *Store) CreateStaging(ctx context.Context) (string, error) {
	name := s.prefix + "_" + strings.ReplaceAll(uuid.New().String(), "-", "")
	if _, err := s.pool.Exec(ctx, createStagingSQL(s.names.stagingIdent(name))); err != nil {
		return "", fmt.Errorf("create staging table %s: %w", name, err)
	}
	return name, nil
}

// LoadStaging copies rows into the staging table in file order.
func (s *Store) LoadStaging(ctx context.Context, staging string, rows []core.NormalizedRow) (int64, error) {
	values, err := copyValues(rows)
	if err != nil {
		return 0, err
	}
	cols := append([]string{"seq"}, dataColumnNames()...)
	n, err := s.pool.CopyFrom(ctx, pgx.Identifier{s.names.schema, staging}, cols, pgx.CopyFromRows(values))
	if err != nil {
		return n, fmt.Errorf("copy into %s: %w", staging, err)
	}
	return n, nil
}

// copyValues lays rows out in staging column order.
func copyValues(rows []core.NormalizedRow) ([][]any, error) {
	out := make([][]any, len(rows))
	for i, r := range rows {
		d, err := r.Date()
		if err != nil {
			return nil, fmt.Errorf("row %d: invalid date %q: %w", r.Index, r.Data, err)
		}
		out[i] = []any{
			int64(i),
			r.NConta,
			r.NCentroCusto,
			d,
			r.Versao,
			r.Filial,
			r.Descricao,
			r.Valor,
			nullIfEmpty(r.Operacao),
			nullIfEmpty(r.Rateio),
			nullIfEmpty(r.Origem),
			nullIfEmpty(r.Tipo),
		}
	}
	return out, nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// ReplacePartition deletes versao and inserts the staged rows in one transaction.
func (s *Store) ReplacePartition(ctx context.Context, staging, versao string) (core.ReconcileStats, error) {
	var stats core.ReconcileStats
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, deletePartitionSQL(s.names), versao)
		if err != nil {
			return fmt.Errorf("delete partition: %w", err)
		}
		stats.Deleted = tag.RowsAffected()

		q := upsertFromStagingSQL(s.names, s.names.stagingIdent(staging))
		if err := tx.QueryRow(ctx, q).Scan(&stats.Inserted, &stats.Updated); err != nil {
			return fmt.Errorf("insert from staging: %w", err)
		}
		return nil
	})
	if err != nil {
		return core.ReconcileStats{}, err
	}
	return stats, nil
}

// MergePartition upserts the staged rows by composite key.
func (s *Store) MergePartition(ctx context.Context, staging string) (core.ReconcileStats, error) {
	var stats core.ReconcileStats
	ident := s.names.stagingIdent(staging)
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		var matched int64
		if err := tx.QueryRow(ctx, countMatchedSQL(s.names, ident)).Scan(&matched); err != nil {
			return fmt.Errorf("count matched keys: %w", err)
		}
		tag, err := tx.Exec(ctx, mergeSQL(s.names, ident))
		if err != nil {
			return fmt.Errorf("merge: %w", err)
		}
		stats.Updated = matched
		stats.Inserted = tag.RowsAffected() - matched
		return nil
	})
	if err != nil {
		return core.ReconcileStats{}, err
	}
	return stats, nil
}

// DropStaging removes a staging table if it exists.
func (s *Store) DropStaging(ctx context.Context, staging string) error {
	q := fmt.Sprintf("DROP TABLE IF EXISTS %s", s.names.stagingIdent(staging))
	if _, err := s.pool.Exec(ctx, q); err != nil {
		return fmt.Errorf("drop staging table %s: %w", staging, err)
	}
	return nil
}

// AppendAudit inserts one audit record.
func (s *Store) AppendAudit(ctx context.Context, rec core.AuditRecord) error {
	details, err := json.Marshal(rec.Detalhes)
	if err != nil {
		return fmt.Errorf("encode audit details: %w", err)
	}
	q := fmt.Sprintf(`INSERT INTO %s (data_importacao, usuario, sistema_operacional, versao_sistema,
	arquivo_origem, total_registros, status, detalhes) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`, s.names.audit)
	_, err = s.pool.Exec(ctx, q,
		rec.DataImportacao, rec.Usuario, rec.SistemaOperacional, rec.VersaoSistema,
		rec.ArquivoOrigem, rec.TotalRegistros, rec.Status, details)
	if err != nil {
		return fmt.Errorf("insert audit record: %w", err)
	}
	return nil
}

// ListAudit returns audit records newest first.
func (s *Store) ListAudit(ctx context.Context, limit, offset int) ([]core.AuditRecord, error) {
	q := fmt.Sprintf(`SELECT id, data_importacao, usuario, sistema_operacional, versao_sistema,
	arquivo_origem, total_registros, status, detalhes
	FROM %s ORDER BY data_importacao DESC, id DESC LIMIT $1 OFFSET $2`, s.names.audit)

	rows, err := s.pool.Query(ctx, q, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list audit: %w", err)
	}
	defer rows.Close()

	var out []core.AuditRecord
	for rows.Next() {
		var (
			rec     core.AuditRecord
			details []byte
		)
		err := rows.Scan(&rec.ID, &rec.DataImportacao, &rec.Usuario, &rec.SistemaOperacional,
			&rec.VersaoSistema, &rec.ArquivoOrigem, &rec.TotalRegistros, &rec.Status, &details)
		if err != nil {
			return nil, fmt.Errorf("scan audit record: %w", err)
		}
		if len(details) > 0 {
			if err := json.Unmarshal(details, &rec.Detalhes); err != nil {
				return nil, fmt.Errorf("decode audit details %d: %w", rec.ID, err)
			}
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// DeleteWhere deletes the records matching f. An empty filter is refused.
func (s *Store) DeleteWhere(ctx context.Context, f core.RecordFilter) (int64, error) {
	where, args := filterWhere(f)
	if where == "" {
		return 0, core.ErrEmptyFilter
	}
	tag, err := s.pool.Exec(ctx, "DELETE FROM "+s.names.table+where, args...)
	if err != nil {
		return 0, fmt.Errorf("delete records: %w", err)
	}
	return tag.RowsAffected(), nil
}

// recordColumns is the SELECT list read back into a WarehouseRecord.
const recordColumns = `n_conta, n_centro_custo, data, versao, filial, descricao, valor,
	COALESCE(operacao, ''), COALESCE(rateio, ''), COALESCE(origem, ''), COALESCE(tipo, ''),
	COALESCE(data_atualizacao, 'epoch'::timestamptz)`

// GetRecord loads one record by key.
func (s *Store) GetRecord(ctx context.Context, key core.RecordKey) (core.WarehouseRecord, error) {
	d, err := keyDate(key)
	if err != nil {
		return core.WarehouseRecord{}, err
	}
	wb := newWhereBuilder()
	wb.addKey(key, d)
	where, args := wb.build()

	var (
		rec  core.WarehouseRecord
		data time.Time
	)
	err = s.pool.QueryRow(ctx, "SELECT "+recordColumns+" FROM "+s.names.table+where, args...).Scan(
		&rec.NConta, &rec.NCentroCusto, &data, &rec.Versao, &rec.Filial, &rec.Descricao, &rec.Valor,
		&rec.Operacao, &rec.Rateio, &rec.Origem, &rec.Tipo, &rec.DataAtualizacao)
	if errors.Is(err, pgx.ErrNoRows) {
		return core.WarehouseRecord{}, core.ErrRecordNotFound
	}
	if err != nil {
		return core.WarehouseRecord{}, fmt.Errorf("get record %s: %w", key, err)
	}
	rec.Data = data.Format(core.CanonicalDateLayout)
	return rec, nil
}

// UpdateRecord sets the changed mutable columns of one record and stamps
// data_atualizacao.
func (s *Store) UpdateRecord(ctx context.Context, key core.RecordKey, changes map[string]any) error {
	q, args, err := updateRecordSQL(s.names, key, changes)
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("update record %s: %w", key, err)
	}
	if tag.RowsAffected() == 0 {
		return core.ErrRecordNotFound
	}
	return nil
}

// updateRecordSQL builds the UPDATE for UpdateRecord with columns in sorted order.
func updateRecordSQL(t tableNames, key core.RecordKey, changes map[string]any) (string, []any, error) {
	if len(changes) == 0 {
		return "", nil, core.ErrNothingToUpdate
	}
	d, err := keyDate(key)
	if err != nil {
		return "", nil, err
	}

	cols := make([]string, 0, len(changes))
	for c := range changes {
		spec, ok := core.LookupField(c)
		if !ok || spec.DBColumn != c || !spec.Mutable {
			return "", nil, fmt.Errorf("column %q is not editable", c)
		}
		cols = append(cols, c)
	}
	sort.Strings(cols)

	sets := make([]string, 0, len(cols)+1)
	args := make([]any, 0, len(cols)+4)
	for i, c := range cols {
		sets = append(sets, fmt.Sprintf("%s = $%d", c, i+1))
		v := changes[c]
		if str, ok := v.(string); ok && fieldSpec(c).Optional {
			v = nullIfEmpty(str)
		}
		args = append(args, v)
	}
	sets = append(sets, "data_atualizacao = now()")

	wb := newWhereBuilder()
	wb.argIndex = len(cols) + 1
	wb.addKey(key, d)
	where, keyArgs := wb.build()

	q := fmt.Sprintf("UPDATE %s SET %s%s", t.table, strings.Join(sets, ", "), where)
	return q, append(args, keyArgs...), nil
}

func fieldSpec(dbColumn string) core.FieldSpec {
	f, _ := core.LookupField(dbColumn)
	return f
}
