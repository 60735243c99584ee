package core

// validation.go validates budget sheets before anything touches the warehouse.
//
// Validation happens at two levels:
//  1. Header validation: all required columns must be present, otherwise a
//     single structural error is returned and no row is read
//  2. Row validation: every field of every row goes through its normalizer;
//     a failing field does not stop the others
//
// Rows are independent, so Validator spreads them over a bounded pool of
// goroutines. Each row writes into its own slot and errors are concatenated
// by row index afterwards, so the output is identical for any pool size.

import (
	"context"
	"fmt"
	"runtime"
	"strings"

	"golang.org/x/sync/errgroup"
)

// HeaderIndex maps canonical column names to the header cell they were read from.
type HeaderIndex map[string]string

// project re-keys a raw row by canonical column name.
func (h HeaderIndex) project(row RawRow) RawRow {
	out := make(RawRow, len(h))
	for canon, orig := range h {
		out[canon] = row[orig]
	}
	return out
}

// ValidateHeaders canonicalizes the header and checks the required columns.
// When two header cells normalize to the same column the first one wins.
func ValidateHeaders(headers []string) (HeaderIndex, error) {
	idx := make(HeaderIndex, len(headers))
	for _, h := range headers {
		canon := CanonicalColumn(h)
		if canon == "" {
			continue
		}
		if _, dup := idx[canon]; !dup {
			idx[canon] = h
		}
	}

	var missing []string
	for _, col := range RequiredColumns() {
		if _, ok := idx[col]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("missing required columns: %s", strings.Join(missing, ", "))
	}
	return idx, nil
}

// ValidateRow applies every field normalizer to one canonical row.
// Invalid text fields keep the submitted value; every invalid field is
// also recorded in NormalizedRow.Raw.
func ValidateRow(index int, row RawRow) (NormalizedRow, []FieldError) {
	out := NormalizedRow{Index: index}
	var errs []FieldError

	fail := func(field string, err error) {
		raw := row.Get(field)
		errs = append(errs, FieldError{
			RowIndex: index,
			Field:    field,
			RawValue: raw,
			Message:  err.Error(),
		})
		if out.Raw == nil {
			out.Raw = make(map[string]string)
		}
		out.Raw[field] = raw
	}
	text := func(field string, fn func(string) (string, error), dst *string) {
		v, err := fn(row.Get(field))
		if err != nil {
			fail(field, err)
			*dst = row.Get(field)
			return
		}
		*dst = v
	}

	text(ColFilial, NormalizeFilial, &out.Filial)

	if n, err := NormalizeNConta(row.Get(ColNConta)); err != nil {
		fail(ColNConta, err)
	} else {
		out.NConta = n
	}

	if cc, err := NormalizeCentroCusto(row.Get(ColNCentroCusto), row.Get(ColNConta)); err != nil {
		fail(ColNCentroCusto, err)
	} else {
		out.NCentroCusto = cc
	}

	text(ColData, NormalizeData, &out.Data)

	if v, err := NormalizeValor(row.Get(ColValor)); err != nil {
		fail(ColValor, err)
	} else {
		out.Valor = v
	}

	text(ColDescricao, NormalizeDescricao, &out.Descricao)
	text(ColVersao, NormalizeVersao, &out.Versao)
	text(ColOperacao, NormalizeOperacao, &out.Operacao)
	text(ColRateio, NormalizeRateio, &out.Rateio)
	text(ColOrigem, NormalizeOrigem, &out.Origem)
	text(ColTipo, NormalizeTipo, &out.Tipo)

	return out, errs
}

// Validator runs header and row validation over whole datasets.
type Validator struct {
	workers int
}

// NewValidator creates a validator using at most workers goroutines.
// Zero or a negative count uses one goroutine per CPU.
func NewValidator(workers int) *Validator {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &Validator{workers: workers}
}

// Workers returns the pool size.
func (v *Validator) Workers() int {
	return v.workers
}

type rowResult struct {
	row  NormalizedRow
	errs []FieldError
}

// Validate checks ds and returns the normalized rows with every error found.
// A missing required column or an empty sheet yields exactly one structural
// error. The returned error is non-nil only when ctx is cancelled.
func (v *Validator) Validate(ctx context.Context, ds RawDataset) (NormalizedDataset, error) {
	out := NormalizedDataset{
		SourceFile: ds.SourceFile,
		Checksum:   ds.Checksum,
	}

	idx, err := ValidateHeaders(ds.Columns)
	if err != nil {
		out.Errors = []FieldError{{
			RowIndex: StructuralRow,
			Field:    "*",
			RawValue: strings.Join(ds.Columns, ", "),
			Message:  err.Error(),
		}}
		return out, nil
	}

	n := len(ds.Rows)
	if n == 0 {
		out.Errors = []FieldError{{
			RowIndex: StructuralRow,
			Field:    "*",
			Message:  "empty file: no data rows",
		}}
		return out, nil
	}

	results := make([]rowResult, n)
	workers := min(v.workers, n)
	chunk := (n + workers - 1) / workers

	g, gctx := errgroup.WithContext(ctx)
	for start := 0; start < n; start += chunk {
		lo, hi := start, min(start+chunk, n)
		g.Go(func() error {
			for i := lo; i < hi; i++ {
				if (i-lo)%256 == 0 {
					if err := gctx.Err(); err != nil {
						return err
					}
				}
				results[i].row, results[i].errs = ValidateRow(i, idx.project(ds.Rows[i]))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return NormalizedDataset{}, fmt.Errorf("validation cancelled: %w", err)
	}

	out.Rows = make([]NormalizedRow, n)
	for i, r := range results {
		out.Rows[i] = r.row
		out.Errors = append(out.Errors, r.errs...)
	}
	return out, nil
}
