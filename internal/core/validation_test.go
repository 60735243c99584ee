package core

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var sheetColumns = []string{"FILIAL", "N_CONTA", "N_CENTRO_CUSTO", "DESCRICAO", "VALOR", "DATA", "VERSAO", "OPERACAO", "RATEIO", "ORIGEM", "TIPO"}

func validRaw() RawRow {
	return RawRow{
		"FILIAL":         "101",
		"N_CONTA":        "31101001",
		"N_CENTRO_CUSTO": "101010101",
		"DESCRICAO":      "Energia elétrica",
		"VALOR":          "1.500,00",
		"DATA":           "2024-01-31",
		"VERSAO":         "2024 - V1",
		"OPERACAO":       "desp",
		"RATEIO":         "nao",
		"ORIGEM":         "planilha",
		"TIPO":           "",
	}
}

func TestValidateHeaders(t *testing.T) {
	idx, err := ValidateHeaders([]string{"Filial", "N Conta", "N Centro Custo", "Descrição", "Valor", "Data", "Versão"})
	require.NoError(t, err)
	assert.Equal(t, "N Conta", idx[ColNConta])
	assert.Equal(t, "N Centro Custo", idx[ColNCentroCusto])
	assert.Equal(t, "Versão", idx[ColVersao])

	_, err = ValidateHeaders([]string{"FILIAL", "DATA", "VALOR"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing required columns")
	assert.Contains(t, err.Error(), "N_CONTA")
	assert.Contains(t, err.Error(), "VERSAO")
}

func TestValidateRow_Valid(t *testing.T) {
	row, errs := ValidateRow(0, validRaw())
	require.Empty(t, errs)

	assert.Equal(t, "0101", row.Filial)
	assert.Equal(t, int64(31101001), row.NConta)
	require.NotNil(t, row.NCentroCusto)
	assert.Equal(t, int64(101010101), *row.NCentroCusto)
	assert.Equal(t, "ENERGIA ELETRICA", row.Descricao)
	assert.InDelta(t, 1500.0, row.Valor, 1e-9)
	assert.Equal(t, "31/01/2024", row.Data)
	assert.Equal(t, "2024 - V1", row.Versao)
	assert.Equal(t, "DESP", row.Operacao)
	assert.Equal(t, "NAO", row.Rateio)
	assert.Equal(t, "PLANILHA", row.Origem)
	assert.Equal(t, DefaultTipo, row.Tipo)
	assert.Nil(t, row.Raw)
}

func TestValidateRow_DegradesFieldByField(t *testing.T) {
	raw := validRaw()
	raw["N_CONTA"] = "1234567"
	raw["RATEIO"] = "talvez"

	row, errs := ValidateRow(3, raw)
	require.Len(t, errs, 2)

	assert.Equal(t, ColNConta, errs[0].Field)
	assert.Equal(t, ColRateio, errs[1].Field)
	for _, e := range errs {
		assert.Equal(t, 3, e.RowIndex)
	}

	assert.Equal(t, "talvez", row.Rateio, "invalid text keeps raw value")
	assert.Equal(t, "1234567", row.Raw[ColNConta])
	assert.Equal(t, "0101", row.Filial, "valid fields still normalized")
	assert.Equal(t, "ENERGIA ELETRICA", row.Descricao)
}

func TestValidateRow_OptionalColumnsAbsent(t *testing.T) {
	raw := validRaw()
	delete(raw, "OPERACAO")
	delete(raw, "RATEIO")
	delete(raw, "ORIGEM")
	delete(raw, "TIPO")

	row, errs := ValidateRow(0, raw)
	require.Empty(t, errs)
	assert.Equal(t, "", row.Operacao)
	assert.Equal(t, "", row.Rateio)
	assert.Equal(t, "", row.Origem)
	assert.Equal(t, DefaultTipo, row.Tipo)
}

func TestValidateRow_NullCentroCustoForExemptAccount(t *testing.T) {
	raw := validRaw()
	raw["N_CONTA"] = "11101001"
	raw["N_CENTRO_CUSTO"] = ""

	row, errs := ValidateRow(0, raw)
	require.Empty(t, errs)
	assert.Nil(t, row.NCentroCusto)
}

func TestValidator_StructuralErrorShortCircuits(t *testing.T) {
	ds := RawDataset{
		Columns: []string{"FILIAL", "DATA", "VALOR"},
		Rows:    []RawRow{{"FILIAL": "bad"}},
	}

	out, err := NewValidator(2).Validate(context.Background(), ds)
	require.NoError(t, err)
	require.Len(t, out.Errors, 1)
	assert.True(t, out.Errors[0].IsStructural())
	assert.Empty(t, out.Rows, "no row validation after a structural error")
	assert.False(t, out.Accepted())
}

func TestValidator_EmptySheet(t *testing.T) {
	out, err := NewValidator(1).Validate(context.Background(), RawDataset{Columns: sheetColumns})
	require.NoError(t, err)
	require.Len(t, out.Errors, 1)
	assert.Contains(t, out.Errors[0].Message, "no data rows")
}

func TestValidator_AllOrNothing(t *testing.T) {
	rows := make([]RawRow, 10)
	for i := range rows {
		rows[i] = validRaw()
	}
	rows[7]["VALOR"] = "abc"

	out, err := NewValidator(4).Validate(context.Background(), RawDataset{Columns: sheetColumns, Rows: rows})
	require.NoError(t, err)
	assert.False(t, out.Accepted())
	require.Len(t, out.Errors, 1)
	assert.Equal(t, 7, out.Errors[0].RowIndex)
	assert.Equal(t, 9, out.Errors[0].Line())
	assert.Len(t, out.Rows, 10, "rejected datasets keep every row for inspection")
}

func TestValidator_DeterministicErrorOrder(t *testing.T) {
	rows := make([]RawRow, 500)
	for i := range rows {
		rows[i] = validRaw()
		if i%3 == 0 {
			rows[i]["FILIAL"] = fmt.Sprintf("X%d", i*100000)
			rows[i]["VERSAO"] = "bad"
		}
	}
	ds := RawDataset{Columns: sheetColumns, Rows: rows}

	serial, err := NewValidator(1).Validate(context.Background(), ds)
	require.NoError(t, err)

	for _, workers := range []int{2, 7, 64} {
		parallel, err := NewValidator(workers).Validate(context.Background(), ds)
		require.NoError(t, err)
		assert.Equal(t, serial.Errors, parallel.Errors, "workers=%d", workers)
	}

	for i := 1; i < len(serial.Errors); i++ {
		assert.LessOrEqual(t, serial.Errors[i-1].RowIndex, serial.Errors[i].RowIndex)
	}
	assert.Len(t, serial.Errors, 2*167)
}

func TestValidator_AcceptsAliasHeaders(t *testing.T) {
	ds := RawDataset{
		Columns: []string{"Filial", "N Conta", "N Centro Custo", "Descricao", "Valor", "Data", "Versão"},
		Rows: []RawRow{{
			"Filial":         "102",
			"N Conta":        "31101001",
			"N Centro Custo": "101010101",
			"Descricao":      "aluguel",
			"Valor":          "10",
			"Data":           "01/02/2024",
			"Versão":         "2024 - V2",
		}},
	}

	out, err := NewValidator(0).Validate(context.Background(), ds)
	require.NoError(t, err)
	require.True(t, out.Accepted(), "errors: %v", out.Errors)
	assert.Equal(t, "2024 - V2", out.Versao())
	assert.Equal(t, "0102", out.Rows[0].Filial)
}

func TestValidator_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rows := []RawRow{validRaw(), validRaw()}
	_, err := NewValidator(2).Validate(ctx, RawDataset{Columns: sheetColumns, Rows: rows})
	assert.ErrorIs(t, err, context.Canceled)
}
