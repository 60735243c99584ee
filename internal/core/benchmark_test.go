package core

import (
	"context"
	"fmt"
	"testing"
)

// ============================================================================
// Normalizer Benchmarks
// ============================================================================

// BenchmarkNormalizeValor covers the Brazilian and plain decimal layouts.
// This is a hot path: every row carries a VALOR.
func BenchmarkNormalizeValor(b *testing.B) {
	testCases := []string{
		"1234",
		"-456,78",
		"1.234,56",
		"R$ 1.234.567,89",
		"  999,99  ",
		"1234.56",
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		for _, tc := range testCases {
			NormalizeValor(tc)
		}
	}
}

// BenchmarkNormalizeData benchmarks date parsing across accepted layouts.
func BenchmarkNormalizeData(b *testing.B) {
	testCases := []string{
		"05/01/2024",
		"2024-01-05",
		"5/1/2024",
		"05/01/2024 00:00:00",
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		for _, tc := range testCases {
			NormalizeData(tc)
		}
	}
}

// BenchmarkNormalizeText benchmarks uppercase folding with diacritics.
func BenchmarkNormalizeText(b *testing.B) {
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		NormalizeText("  Manutenção   de Equipamentos  ")
	}
}

// BenchmarkCleanCell benchmarks cell cleanup of spreadsheet artifacts.
func BenchmarkCleanCell(b *testing.B) {
	testCases := []string{
		"normal value",
		"  whitespace  ",
		`="0101"`,
		" nbsp ",
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		for _, tc := range testCases {
			CleanCell(tc)
		}
	}
}

// ============================================================================
// Validation Benchmarks
// ============================================================================

func BenchmarkValidateRow(b *testing.B) {
	row := benchRow(0)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		ValidateRow(i, row)
	}
}

// BenchmarkValidator_Workers compares pool sizes on a large dataset.
func BenchmarkValidator_Workers(b *testing.B) {
	ds := benchDataset(50000)

	for _, workers := range []int{1, 4, 0} {
		b.Run(fmt.Sprintf("workers=%d", workers), func(b *testing.B) {
			v := NewValidator(workers)
			b.ReportAllocs()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				if _, err := v.Validate(context.Background(), ds); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

func benchRow(i int) RawRow {
	return RawRow{
		ColFilial:       "101",
		ColNConta:       fmt.Sprintf("%08d", 31100000+i%1000),
		ColNCentroCusto: "123456789",
		ColDescricao:    "Despesa operacional",
		ColValor:        fmt.Sprintf("%d,%02d", i, i%100),
		ColData:         fmt.Sprintf("01/%02d/2024", i%12+1),
		ColVersao:       "2024 - V1",
	}
}

func benchDataset(rows int) RawDataset {
	ds := RawDataset{
		Columns:    RequiredColumns(),
		Rows:       make([]RawRow, rows),
		SourceFile: "bench.csv",
	}
	for i := range ds.Rows {
		ds.Rows[i] = benchRow(i)
	}
	return ds
}
