package warehouse

import (
	"testing"
	"time"

	"github.com/JonMunkholm/orcado/internal/core"
)

func TestNewWhereBuilder(t *testing.T) {
	wb := newWhereBuilder()

	if wb.argIndex != 1 {
		t.Errorf("expected argIndex to be 1, got %d", wb.argIndex)
	}
	if len(wb.conditions) != 0 {
		t.Errorf("expected empty conditions, got %d", len(wb.conditions))
	}
}

func TestWhereBuilder_Build_Empty(t *testing.T) {
	whereClause, args := newWhereBuilder().build()

	if whereClause != "" {
		t.Errorf("expected empty string for no conditions, got %q", whereClause)
	}
	if args != nil {
		t.Errorf("expected nil args for no conditions, got %v", args)
	}
}

func TestWhereBuilder_Add_EmptyValue_Skipped(t *testing.T) {
	wb := newWhereBuilder()
	wb.add("versao", "")
	wb.add("filial", "0101")

	whereClause, args := wb.build()

	if want := " WHERE filial = $1"; whereClause != want {
		t.Errorf("expected %q, got %q", want, whereClause)
	}
	if len(args) != 1 || args[0] != "0101" {
		t.Errorf("expected args [0101], got %v", args)
	}
}

func TestWhereBuilder_PlaceholderNumbering(t *testing.T) {
	wb := newWhereBuilder()
	wb.add("versao", "2024 - V1")

	from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	wb.addDateRange("data", &from, &from)
	wb.add("filial", "0101")

	whereClause, args := wb.build()
	want := " WHERE versao = $1 AND data >= $2 AND data <= $3 AND filial = $4"
	if whereClause != want {
		t.Errorf("expected %q, got %q", want, whereClause)
	}
	if len(args) != 4 {
		t.Errorf("expected 4 args, got %d", len(args))
	}
}

func TestFilterWhere(t *testing.T) {
	conta := int64(31101001)
	centro := int64(123456789)
	from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 6, 30, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		filter    core.RecordFilter
		wantWhere string
		wantArgs  int
	}{
		{
			name:      "empty",
			filter:    core.RecordFilter{},
			wantWhere: "",
		},
		{
			name:      "versao only",
			filter:    core.RecordFilter{Versao: "2024 - V1"},
			wantWhere: " WHERE versao = $1",
			wantArgs:  1,
		},
		{
			name:      "filial and conta",
			filter:    core.RecordFilter{Filial: "0101", NConta: &conta},
			wantWhere: " WHERE filial = $1 AND n_conta = $2",
			wantArgs:  2,
		},
		{
			name: "everything",
			filter: core.RecordFilter{
				Versao: "2024 - V1", Filial: "0101", NConta: &conta, NCentroCusto: &centro,
				DataFrom: &from, DataTo: &to,
			},
			wantWhere: " WHERE versao = $1 AND filial = $2 AND n_conta = $3 AND n_centro_custo = $4 AND data >= $5 AND data <= $6",
			wantArgs:  6,
		},
		{
			name:      "open ended range",
			filter:    core.RecordFilter{DataTo: &to},
			wantWhere: " WHERE data <= $1",
			wantArgs:  1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			where, args := filterWhere(tt.filter)
			if where != tt.wantWhere {
				t.Errorf("where = %q, want %q", where, tt.wantWhere)
			}
			if len(args) != tt.wantArgs {
				t.Errorf("got %d args, want %d", len(args), tt.wantArgs)
			}
		})
	}
}

func TestWhereBuilder_AddKey(t *testing.T) {
	d := time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC)
	wb := newWhereBuilder()
	wb.addKey(core.RecordKey{NConta: 11111111, Data: "05/01/2024", Versao: "2024 - V1"}, d)

	where, args := wb.build()
	want := " WHERE n_conta = $1 AND n_centro_custo IS NOT DISTINCT FROM $2 AND data = $3 AND versao = $4"
	if where != want {
		t.Errorf("where = %q, want %q", where, want)
	}
	if args[1].(*int64) != nil {
		t.Errorf("expected a nil cost centre argument, got %v", args[1])
	}
}

func TestKeyDate(t *testing.T) {
	d, err := keyDate(core.RecordKey{Data: "31/12/2024"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !d.Equal(time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("got %v", d)
	}

	if _, err := keyDate(core.RecordKey{Data: "2024-12-31"}); err == nil {
		t.Error("expected an error for a non-canonical date")
	}
}
