package core

import "strings"

// Canonical column names of a budget sheet.
const (
	ColFilial       = "FILIAL"
	ColNConta       = "N_CONTA"
	ColNCentroCusto = "N_CENTRO_CUSTO"
	ColDescricao    = "DESCRICAO"
	ColValor        = "VALOR"
	ColData         = "DATA"
	ColVersao       = "VERSAO"
	ColOperacao     = "OPERACAO"
	ColRateio       = "RATEIO"
	ColOrigem       = "ORIGEM"
	ColTipo         = "TIPO"

	// ColDataAtualizacao is maintained by the warehouse, never read from a sheet.
	ColDataAtualizacao = "DATA_ATUALIZACAO"
)

// FieldSpec describes one column of the fixed budget schema.
type FieldSpec struct {
	Name     string // Canonical header name
	DBColumn string // Warehouse column (lower-case)
	Required bool   // Column must exist in the header
	Optional bool   // Warehouse column is nullable and added by schema evolution
	Mutable  bool   // Updated on merge and editable by administrators
}

// Fields is the fixed schema in warehouse column order.
var Fields = []FieldSpec{
	{Name: ColNConta, DBColumn: "n_conta", Required: true},
	{Name: ColNCentroCusto, DBColumn: "n_centro_custo", Required: true},
	{Name: ColData, DBColumn: "data", Required: true},
	{Name: ColVersao, DBColumn: "versao", Required: true},
	{Name: ColFilial, DBColumn: "filial", Required: true, Mutable: true},
	{Name: ColDescricao, DBColumn: "descricao", Required: true, Mutable: true},
	{Name: ColValor, DBColumn: "valor", Required: true, Mutable: true},
	{Name: ColOperacao, DBColumn: "operacao", Optional: true, Mutable: true},
	{Name: ColRateio, DBColumn: "rateio", Optional: true, Mutable: true},
	{Name: ColOrigem, DBColumn: "origem", Optional: true, Mutable: true},
	{Name: ColTipo, DBColumn: "tipo", Optional: true, Mutable: true},
}

// KeyColumns are the warehouse columns of the composite key.
var KeyColumns = []string{"n_conta", "n_centro_custo", "data", "versao"}

// columnAliases maps normalized header spellings to canonical names.
var columnAliases = map[string]string{
	"N CONTA":           ColNConta,
	"NUMERO CONTA":      ColNConta,
	"CONTA":             ColNConta,
	"N CENTRO CUSTO":    ColNCentroCusto,
	"N CENTRO DE CUSTO": ColNCentroCusto,
	"CENTRO CUSTO":      ColNCentroCusto,
	"CENTRO DE CUSTO":   ColNCentroCusto,
}

// RequiredColumns returns the canonical names every sheet must carry.
func RequiredColumns() []string {
	var cols []string
	for _, f := range Fields {
		if f.Required {
			cols = append(cols, f.Name)
		}
	}
	return cols
}

// OptionalDBColumns returns the nullable columns schema evolution may add.
func OptionalDBColumns() []string {
	var cols []string
	for _, f := range Fields {
		if f.Optional {
			cols = append(cols, f.DBColumn)
		}
	}
	return cols
}

// LookupField returns the FieldSpec for a canonical or DB column name.
func LookupField(name string) (FieldSpec, bool) {
	canon := CanonicalColumn(name)
	for _, f := range Fields {
		if f.Name == canon || f.DBColumn == name {
			return f, true
		}
	}
	return FieldSpec{}, false
}

// CanonicalColumn normalizes a header cell: accents folded, uppercased,
// whitespace and dots collapsed, known aliases resolved.
//
//	CanonicalColumn("Nº Conta")       == "N_CONTA"
//	CanonicalColumn("n centro custo") == "N_CENTRO_CUSTO"
//	CanonicalColumn("Versão")         == "VERSAO"
func CanonicalColumn(name string) string {
	s := strings.TrimPrefix(CleanCell(name), "\ufeff")
	s = strings.NewReplacer("º", "", "°", "", ".", " ", "_", " ").Replace(s)
	s = NormalizeText(s)
	if canon, ok := columnAliases[s]; ok {
		return canon
	}
	return strings.ReplaceAll(s, " ", "_")
}
