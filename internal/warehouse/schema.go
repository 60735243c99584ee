package warehouse

import (
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/JonMunkholm/orcado/internal/core"
)

// column is one warehouse column with its SQL type.
type column struct {
	name    string
	sqlType string
}

// dataColumns are the loaded columns in core.Fields order.
var dataColumns = []column{
	{"n_conta", "BIGINT NOT NULL"},
	{"n_centro_custo", "BIGINT"},
	{"data", "DATE NOT NULL"},
	{"versao", "TEXT NOT NULL"},
	{"filial", "TEXT NOT NULL"},
	{"descricao", "TEXT NOT NULL"},
	{"valor", "DOUBLE PRECISION NOT NULL"},
	{"operacao", "TEXT"},
	{"rateio", "TEXT"},
	{"origem", "TEXT"},
	{"tipo", "TEXT"},
}

// evolvedColumns may be missing from tables created by older releases.
var evolvedColumns = map[string]string{
	"operacao":         "TEXT",
	"rateio":           "TEXT",
	"origem":           "TEXT",
	"tipo":             "TEXT",
	"data_atualizacao": "TIMESTAMPTZ",
}

// keyExpr is the unique index expression. Null cost centres collapse to -1
// so two null keys collide.
const keyExpr = "n_conta, COALESCE(n_centro_custo, -1), data, versao"

// conflictTarget matches the unique index for ON CONFLICT.
const conflictTarget = "(n_conta, (COALESCE(n_centro_custo, -1)), data, versao)"

func dataColumnNames() []string {
	names := make([]string, len(dataColumns))
	for i, c := range dataColumns {
		names[i] = c.name
	}
	return names
}

// evolvableColumns returns the nullable columns in a stable order.
func evolvableColumns() []string {
	return append(core.OptionalDBColumns(), "data_atualizacao")
}

// stagingIdent returns the sanitized staging table name in the warehouse schema.
func (t tableNames) stagingIdent(name string) string {
	return pgx.Identifier{t.schema, name}.Sanitize()
}

// tableNames holds the sanitized identifiers of the warehouse objects.
type tableNames struct {
	schema   string
	rawTable string
	table    string
	audit    string
	index    string
	byVer    string
}

func newTableNames(schema, table, audit string) tableNames {
	return tableNames{
		schema:   schema,
		rawTable: table,
		table:    pgx.Identifier{schema, table}.Sanitize(),
		audit:    pgx.Identifier{schema, audit}.Sanitize(),
		index:    pgx.Identifier{table + "_key_uidx"}.Sanitize(),
		byVer:    pgx.Identifier{table + "_versao_idx"}.Sanitize(),
	}
}

func createTableSQL(t tableNames) string {
	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE IF NOT EXISTS %s (\n", t.table)
	for _, c := range dataColumns {
		fmt.Fprintf(&b, "\t%s %s,\n", c.name, c.sqlType)
	}
	b.WriteString("\tdata_atualizacao TIMESTAMPTZ\n)")
	return b.String()
}

func createKeyIndexSQL(t tableNames) string {
	return fmt.Sprintf("CREATE UNIQUE INDEX IF NOT EXISTS %s ON %s (%s)", t.index, t.table, keyExpr)
}

func createVersaoIndexSQL(t tableNames) string {
	return fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s (versao)", t.byVer, t.table)
}

func createAuditTableSQL(t tableNames) string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id BIGSERIAL PRIMARY KEY,
	data_importacao TIMESTAMPTZ NOT NULL DEFAULT now(),
	usuario TEXT NOT NULL,
	sistema_operacional TEXT NOT NULL,
	versao_sistema TEXT NOT NULL,
	arquivo_origem TEXT NOT NULL,
	total_registros INTEGER NOT NULL,
	status TEXT NOT NULL,
	detalhes JSONB
)`, t.audit)
}

func addColumnSQL(t tableNames, name string) string {
	return fmt.Sprintf("ALTER TABLE %s ADD COLUMN IF NOT EXISTS %s %s", t.table, name, evolvedColumns[name])
}

// createStagingSQL builds the per-call staging table. seq keeps file order
// so deduplication can prefer the last row of a repeated key.
func createStagingSQL(staging string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "CREATE UNLOGGED TABLE %s (\n\tseq BIGINT NOT NULL", staging)
	for _, c := range dataColumns {
		typ, _, _ := strings.Cut(c.sqlType, " NOT NULL")
		fmt.Fprintf(&b, ",\n\t%s %s", c.name, typ)
	}
	b.WriteString("\n)")
	return b.String()
}
