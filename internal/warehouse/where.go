package warehouse

import (
	"fmt"
	"strings"
	"time"

	"github.com/JonMunkholm/orcado/internal/core"
)

// whereBuilder accumulates AND-ed conditions with positional arguments.
type whereBuilder struct {
	conditions []string
	args       []any
	argIndex   int
}

func newWhereBuilder() *whereBuilder {
	return &whereBuilder{argIndex: 1}
}

// add appends "col = $n". Empty strings are skipped.
func (wb *whereBuilder) add(col string, value any) {
	if s, ok := value.(string); ok && s == "" {
		return
	}
	wb.addExpr(col+" = $%d", value)
}

// addExpr appends a condition whose single placeholder is written as %d.
func (wb *whereBuilder) addExpr(format string, value any) {
	wb.conditions = append(wb.conditions, fmt.Sprintf(format, wb.argIndex))
	wb.args = append(wb.args, value)
	wb.argIndex++
}

// addDateRange bounds col inclusively on each set side.
func (wb *whereBuilder) addDateRange(col string, from, to *time.Time) {
	if from != nil {
		wb.addExpr(col+" >= $%d", *from)
	}
	if to != nil {
		wb.addExpr(col+" <= $%d", *to)
	}
}

// addKey matches one record by composite key, a null cost centre included.
func (wb *whereBuilder) addKey(key core.RecordKey, data time.Time) {
	wb.addExpr("n_conta = $%d", key.NConta)
	wb.addExpr("n_centro_custo IS NOT DISTINCT FROM $%d", key.NCentroCusto)
	wb.addExpr("data = $%d", data)
	wb.addExpr("versao = $%d", key.Versao)
}

// build returns " WHERE ..." and its arguments, or "" and nil.
func (wb *whereBuilder) build() (string, []any) {
	if len(wb.conditions) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(wb.conditions, " AND "), wb.args
}

// filterWhere translates a record filter.
func filterWhere(f core.RecordFilter) (string, []any) {
	wb := newWhereBuilder()
	wb.add("versao", f.Versao)
	wb.add("filial", f.Filial)
	if f.NConta != nil {
		wb.add("n_conta", *f.NConta)
	}
	if f.NCentroCusto != nil {
		wb.add("n_centro_custo", *f.NCentroCusto)
	}
	wb.addDateRange("data", f.DataFrom, f.DataTo)
	return wb.build()
}

// keyDate parses a record key's DATA.
func keyDate(key core.RecordKey) (time.Time, error) {
	d, err := time.Parse(core.CanonicalDateLayout, key.Data)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date in key %s: %w", key, err)
	}
	return d, nil
}
