package core

import (
	"errors"
	"fmt"
	"testing"
)

func TestMapError(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		wantCode    string
		wantMessage string
	}{
		{
			name:        "nil error returns empty",
			err:         nil,
			wantCode:    "",
			wantMessage: "",
		},
		{
			name:        "invalid date maps correctly",
			err:         errors.New("invalid date: use DD/MM/YYYY"),
			wantCode:    "VAL001",
			wantMessage: "Invalid date format detected",
		},
		{
			name:        "field error line prefix does not matter",
			err:         FieldError{RowIndex: 3, Field: ColNConta, RawValue: "12", Message: "invalid n_conta: must have 8 digits"},
			wantCode:    "VAL005",
			wantMessage: "Account number is invalid",
		},
		{
			name:        "missing header column",
			err:         errors.New("missing required columns: VERSAO"),
			wantCode:    "VAL004",
			wantMessage: "Required column is missing from the file",
		},
		{
			name:        "rejected dataset",
			err:         fmt.Errorf("job x: %w", ErrDatasetRejected),
			wantCode:    "VAL011",
			wantMessage: "The file was rejected because some rows are invalid",
		},
		{
			name:        "busy limiter",
			err:         ErrTooManyImports,
			wantCode:    "IMP006",
			wantMessage: "System is busy processing other imports",
		},
		{
			name:        "unreadable workbook",
			err:         errors.New("invalid workbook: orcado.xlsx: zip: not a valid zip file"),
			wantCode:    "IMP007",
			wantMessage: "File is not a valid Excel workbook",
		},
		{
			name:        "cancel before staging",
			err:         ErrSyncCancelled,
			wantCode:    "SYNC001",
			wantMessage: "Import was cancelled before any data was written",
		},
		{
			name: "connectivity sync error wins over raw connection pattern",
			err: &SyncError{
				Category: CategoryConnectivity,
				Stage:    StageProbe,
				Versao:   "2024 - V1",
				Err:      errors.New("dial tcp: connection refused"),
			},
			wantCode:    "SYNC002",
			wantMessage: "The warehouse could not be reached",
		},
		{
			name: "database detail wins over reconciliation catch-all",
			err: &SyncError{
				Category: CategoryReconciliation,
				Stage:    StageReconcile,
				Err:      errors.New("ERROR: duplicate key value violates unique constraint"),
			},
			wantCode:    "DB001",
			wantMessage: "A record with this key already exists",
		},
		{
			name: "reconciliation catch-all",
			err: &SyncError{
				Category: CategoryReconciliation,
				Stage:    StageReconcile,
				Err:      errors.New("column \"x\" does not exist"),
			},
			wantCode:    "SYNC006",
			wantMessage: "Writing to the warehouse failed and was rolled back",
		},
		{
			name:        "empty filter",
			err:         ErrEmptyFilter,
			wantCode:    "SYNC004",
			wantMessage: "Refusing to delete without a filter",
		},
		{
			name:        "connection refused maps correctly",
			err:         errors.New("dial tcp: connection refused"),
			wantCode:    "DB003",
			wantMessage: "Unable to connect to database",
		},
		{
			name:        "unknown error returns default",
			err:         errors.New("some random internal error"),
			wantCode:    "ERR000",
			wantMessage: "An unexpected error occurred",
		},
		{
			name:        "case insensitive matching",
			err:         errors.New("DUPLICATE KEY value violates"),
			wantCode:    "DB001",
			wantMessage: "A record with this key already exists",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MapError(tt.err)
			if got.Code != tt.wantCode {
				t.Errorf("MapError() code = %q, want %q", got.Code, tt.wantCode)
			}
			if got.Message != tt.wantMessage {
				t.Errorf("MapError() message = %q, want %q", got.Message, tt.wantMessage)
			}
		})
	}
}

func TestFormatUserError(t *testing.T) {
	result := FormatUserError(errors.New("invalid versao: must follow 'YYYY - VN'"))

	expected := "Budget version is invalid (Code: VAL007). VERSAO must look like '2024 - V1'"
	if result != expected {
		t.Errorf("FormatUserError() = %q, want %q", result, expected)
	}
	if FormatUserError(nil) != "" {
		t.Error("FormatUserError(nil) should be empty")
	}
}

func TestIsUserFacing(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil error is not user facing", err: nil, want: false},
		{name: "known error is user facing", err: ErrRecordNotFound, want: true},
		{name: "unknown error is not user facing", err: errors.New("random internal error xyz"), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsUserFacing(tt.err); got != tt.want {
				t.Errorf("IsUserFacing() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNewUserError(t *testing.T) {
	t.Run("nil error returns nil", func(t *testing.T) {
		if got := NewUserError(nil); got != nil {
			t.Errorf("NewUserError(nil) = %v, want nil", got)
		}
	})

	t.Run("wraps technical error with user message", func(t *testing.T) {
		techErr := fmt.Errorf("edit: %w", ErrRecordNotFound)
		userErr := NewUserError(techErr)

		if userErr.Error() != "Record not found" {
			t.Errorf("Error() = %q, want user message", userErr.Error())
		}
		if !errors.Is(userErr, ErrRecordNotFound) {
			t.Error("Unwrap() should expose the original error")
		}
	})
}
