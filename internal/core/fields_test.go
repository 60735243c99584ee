package core

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeFilial(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"101", "0101", false},
		{"1", "0001", false},
		{"0101", "0101", false},
		{" 0102 ", "0102", false},
		{"01-02", "0102", false},
		{"F0103", "0103", false},
		{"12345", "", true},
		{"F-12", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		got, err := NormalizeFilial(tt.in)
		if tt.wantErr {
			assert.Error(t, err, "NormalizeFilial(%q)", tt.in)
			continue
		}
		require.NoError(t, err, "NormalizeFilial(%q)", tt.in)
		assert.Equal(t, tt.want, got, "NormalizeFilial(%q)", tt.in)
	}
}

func TestNormalizeNConta(t *testing.T) {
	got, err := NormalizeNConta("31101001")
	require.NoError(t, err)
	assert.Equal(t, int64(31101001), got)

	got, err = NormalizeNConta("3.1101.001")
	require.NoError(t, err)
	assert.Equal(t, int64(31101001), got)

	_, err = NormalizeNConta("1234567")
	assert.ErrorContains(t, err, "8 digits")

	_, err = NormalizeNConta("123456789")
	assert.Error(t, err)

	_, err = NormalizeNConta("")
	assert.ErrorIs(t, err, errRequired)
}

func TestNormalizeCentroCusto(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		nConta  string
		want    *int64
		wantErr string
	}{
		{"valid", "101010101", "31101001", int64Ptr(101010101), ""},
		{"formatted", "101.010.101", "31101001", int64Ptr(101010101), ""},
		{"empty exempt account", "", "11101001", nil, ""},
		{"empty exempt formatted account", "  ", "1.110.1001", nil, ""},
		{"empty non-exempt account", "", "31101001", nil, "required field"},
		{"exempt account with value", "101010101", "11101001", int64Ptr(101010101), ""},
		{"exempt account with bad value", "123", "11101001", nil, "9 digits"},
		{"short", "12345678", "31101001", nil, "9 digits"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeCentroCusto(tt.raw, tt.nConta)
			if tt.wantErr != "" {
				assert.ErrorContains(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNormalizeData(t *testing.T) {
	got, err := NormalizeData("2025-01-05")
	require.NoError(t, err)
	assert.Equal(t, "05/01/2025", got)

	got, err = NormalizeData("05/01/2025")
	require.NoError(t, err)
	assert.Equal(t, "05/01/2025", got)

	_, err = NormalizeData("2025-13-40")
	assert.ErrorContains(t, err, "invalid date")

	_, err = NormalizeData("")
	assert.ErrorIs(t, err, errRequired)
}

func TestNormalizeValor(t *testing.T) {
	got, err := NormalizeValor("R$ 1.234,56")
	require.NoError(t, err)
	assert.InDelta(t, 1234.56, got, 1e-9)

	got, err = NormalizeValor("-10,5")
	require.NoError(t, err)
	assert.InDelta(t, -10.5, got, 1e-9)

	_, err = NormalizeValor("12R3")
	assert.Error(t, err)

	_, err = NormalizeValor("dez reais")
	assert.ErrorContains(t, err, "invalid number")

	_, err = NormalizeValor("")
	assert.ErrorIs(t, err, errRequired)
}

func TestNormalizeDescricao(t *testing.T) {
	got, err := NormalizeDescricao("  Manutenção   predial ")
	require.NoError(t, err)
	assert.Equal(t, "MANUTENCAO PREDIAL", got)

	long := strings.Repeat("a", 150)
	got, err = NormalizeDescricao(long)
	require.NoError(t, err)
	assert.Len(t, got, MaxDescricaoLen)

	_, err = NormalizeDescricao("   ")
	assert.ErrorIs(t, err, errRequired)
}

func TestNormalizeVersao(t *testing.T) {
	got, err := NormalizeVersao("2025 - V1")
	require.NoError(t, err)
	assert.Equal(t, "2025 - V1", got)

	got, err = NormalizeVersao(" 2025  -  v12 ")
	require.NoError(t, err)
	assert.Equal(t, "2025 - V12", got)

	for _, bad := range []string{"2025-V1", "25 - V1", "2025 - 1", "2025 - V", "VERSAO 1"} {
		_, err := NormalizeVersao(bad)
		assert.Error(t, err, "NormalizeVersao(%q)", bad)
	}

	_, err = NormalizeVersao("")
	assert.ErrorIs(t, err, errRequired)
}

func TestNormalizeOperacao(t *testing.T) {
	got, err := NormalizeOperacao(" compra ")
	require.NoError(t, err)
	assert.Equal(t, "COMPRA", got)

	got, err = NormalizeOperacao("")
	require.NoError(t, err)
	assert.Equal(t, "", got)

	got, err = NormalizeOperacao("abcdefghij")
	require.NoError(t, err)
	assert.Equal(t, "ABCDEFGHIJ", got)

	_, err = NormalizeOperacao("abcdefghijk")
	assert.Error(t, err)
}

func TestNormalizeRateio(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"SIM", "SIM", false},
		{"sim", "SIM", false},
		{"nao", "NAO", false},
		{"NAO", "NAO", false},
		{"NÃO", "NAO", false},
		{"não", "NAO", false},
		{"", "", false},
		{"talvez", "", true},
		{"S", "", true},
		{"yes", "", true},
	}
	for _, tt := range tests {
		got, err := NormalizeRateio(tt.in)
		if tt.wantErr {
			assert.Error(t, err, "NormalizeRateio(%q)", tt.in)
			continue
		}
		require.NoError(t, err, "NormalizeRateio(%q)", tt.in)
		assert.Equal(t, tt.want, got, "NormalizeRateio(%q)", tt.in)
	}
}

func TestNormalizeOrigem(t *testing.T) {
	got, err := NormalizeOrigem("planejamento  orçamentário")
	require.NoError(t, err)
	assert.Equal(t, "PLANEJAMENTO ORCAMENTARIO", got)

	_, err = NormalizeOrigem(strings.Repeat("x", 60))
	assert.NoError(t, err)

	_, err = NormalizeOrigem(strings.Repeat("x", 61))
	assert.ErrorContains(t, err, "60")
}

func TestNormalizeTipo(t *testing.T) {
	got, err := NormalizeTipo("")
	require.NoError(t, err)
	assert.Equal(t, DefaultTipo, got)

	got, err = NormalizeTipo(" realizado ")
	require.NoError(t, err)
	assert.Equal(t, "REALIZADO", got)
}

func int64Ptr(v int64) *int64 {
	return &v
}
