package core

// error_messages.go maps technical errors to messages an operator can act on.
//
// Each message carries a support code. Codes are grouped by category:
//
// # Validation Errors (VAL001-VAL011)
//
// These errors occur when a cell or the header does not match the budget layout.
//
//	VAL001 - Invalid date format detected
//	         Action: Use DD/MM/YYYY, for example 31/01/2024
//	         Patterns: "invalid date"
//
//	VAL002 - Invalid number format detected
//	         Action: Use digits with comma or dot as decimal separator
//	         Patterns: "invalid number"
//
//	VAL003 - Required field is empty
//	         Action: Fill every required column on every row
//	         Patterns: "required field"
//
//	VAL004 - Required column is missing from the file
//	         Action: Check the header against the budget template
//	         Patterns: "missing required column"
//
//	VAL005 - Account number is invalid
//	         Action: N_CONTA must have exactly 8 digits
//	         Patterns: "invalid n_conta"
//
//	VAL006 - Cost center is invalid
//	         Action: N_CENTRO_CUSTO must have exactly 9 digits
//	         Patterns: "invalid centro de custo"
//
//	VAL007 - Budget version is invalid
//	         Action: VERSAO must look like '2024 - V1'
//	         Patterns: "invalid versao"
//
//	VAL008 - Branch code is invalid
//	         Action: FILIAL must have 4 digits
//	         Patterns: "invalid filial"
//
//	VAL009 - Value is not in the allowed list
//	         Action: Check the allowed values for this field
//	         Patterns: "invalid enum"
//
//	VAL010 - Text field is too long
//	         Action: Shorten OPERACAO
//	         Patterns: "invalid operacao", "invalid origem"
//
//	VAL011 - The file was rejected because some rows are invalid
//	         Action: Fix every listed row and submit the file again
//	         Patterns: "dataset rejected"
//
// # Import Errors (IMP001-IMP007)
//
// These errors occur while receiving and parsing the file.
//
//	IMP001 - File exceeds maximum size limit
//	         Action: Split the file by VERSAO or FILIAL
//	         Patterns: "file too large"
//
//	IMP002 - File is not a valid CSV
//	         Action: Save the sheet as CSV separated by ';' or ','
//	         Patterns: "invalid csv"
//
//	IMP003 - File contains invalid characters
//	         Action: Save the file as UTF-8
//	         Patterns: "encoding error"
//
//	IMP004 - No file was selected
//	         Action: Please select a CSV file to import
//	         Patterns: "no file provided"
//
//	IMP005 - The file has no data rows
//	         Action: Please import a CSV file with data rows
//	         Patterns: "empty file"
//
//	IMP006 - System is busy processing other imports
//	         Action: Please wait a moment and try again
//	         Patterns: "too many imports"
//
//	IMP007 - File is not a valid Excel workbook
//	         Action: Save the sheet as .xlsx or export it as CSV
//	         Patterns: "invalid workbook"
//
// # Sync Errors (SYNC001-SYNC008)
//
// These errors occur after validation, while writing to the warehouse.
//
//	SYNC001 - Import was cancelled before any data was written
//	          Action: Submit the file again when ready
//	          Patterns: "sync cancelled before staging", "validation cancelled"
//
//	SYNC002 - The warehouse could not be reached
//	          Action: The file was kept locally and can be replayed later
//	          Patterns: "sync connectivity", "warehouse unavailable"
//
//	SYNC003 - Import job not found
//	          Action: The job may have expired. Check the audit log for its outcome
//	          Patterns: "job not found"
//
//	SYNC004 - Refusing to delete without a filter
//	          Action: Provide at least one filter field
//	          Patterns: "empty filter"
//
//	SYNC005 - Record not found
//	          Action: Check N_CONTA, N_CENTRO_CUSTO, DATA and VERSAO
//	          Patterns: "record not found"
//
//	SYNC006 - Writing to the warehouse failed and was rolled back
//	          Action: Nothing was changed. Check the logs with the support code
//	          Patterns: "sync reconciliation"
//
//	SYNC007 - Local snapshot not found
//	          Action: List the kept snapshots and use one of their IDs
//	          Patterns: "snapshot not found"
//
//	SYNC008 - This snapshot cannot be replayed
//	          Action: Only pending, failed or cancelled snapshots are replayed
//	          Patterns: "snapshot not replayable"
//
// # Database Errors (DB001-DB007)
//
// These errors come from the warehouse itself.
//
//	DB001 - A record with this key already exists
//	        Action: Remove repeated N_CONTA/N_CENTRO_CUSTO/DATA rows
//	        Patterns: "duplicate key"
//
//	DB002 - A duplicate value was found
//	        Action: Review your data for duplicate key values
//	        Patterns: "violates unique", "unique constraint"
//
//	DB003 - Unable to connect to database
//	        Action: Please try again in a few moments
//	        Patterns: "connection refused"
//
//	DB004 - Database connection was interrupted
//	        Action: Please try again
//	        Patterns: "connection reset"
//
//	DB005 - Operation timed out
//	        Action: Try again later or import a smaller file
//	        Patterns: "timeout"
//
//	DB006 - Database was busy with conflicting operations
//	        Action: Please try again
//	        Patterns: "deadlock"
//
//	DB007 - The warehouse user lacks a required privilege
//	        Action: Ask an administrator to grant access to the budget tables
//	        Patterns: "permission denied"
//
//	ERR000 - An unexpected error occurred
//	          Action: Please try again or contact support
//
// Patterns are matched case-insensitively with strings.Contains and the first
// match wins, so specific patterns come before general ones.

import (
	"fmt"
	"strings"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string `json:"message"` // What happened
	Action  string `json:"action"`  // What to do about it
	Code    string `json:"code"`    // Support reference
}

type errorPattern struct {
	pattern string
	msg     UserMessage
}

// errorPatterns is ordered: sync connectivity precedes the raw connection
// patterns, and the reconciliation catch-all comes last so database
// details win over it.
var errorPatterns = []errorPattern{
	// Validation Errors (VAL001-VAL011)
	{pattern: "invalid date", msg: UserMessage{Message: "Invalid date format detected", Action: "Use DD/MM/YYYY, for example 31/01/2024", Code: "VAL001"}},
	{pattern: "invalid number", msg: UserMessage{Message: "Invalid number format detected", Action: "Use digits with comma or dot as decimal separator", Code: "VAL002"}},
	{pattern: "required field", msg: UserMessage{Message: "Required field is empty", Action: "Fill every required column on every row", Code: "VAL003"}},
	{pattern: "missing required column", msg: UserMessage{Message: "Required column is missing from the file", Action: "Check the header against the budget template", Code: "VAL004"}},
	{pattern: "invalid n_conta", msg: UserMessage{Message: "Account number is invalid", Action: "N_CONTA must have exactly 8 digits", Code: "VAL005"}},
	{pattern: "invalid centro de custo", msg: UserMessage{Message: "Cost center is invalid", Action: "N_CENTRO_CUSTO must have exactly 9 digits", Code: "VAL006"}},
	{pattern: "invalid versao", msg: UserMessage{Message: "Budget version is invalid", Action: "VERSAO must look like '2024 - V1'", Code: "VAL007"}},
	{pattern: "invalid filial", msg: UserMessage{Message: "Branch code is invalid", Action: "FILIAL must have 4 digits", Code: "VAL008"}},
	{pattern: "invalid enum", msg: UserMessage{Message: "Value is not in the allowed list", Action: "Check the allowed values for this field", Code: "VAL009"}},
	{pattern: "invalid operacao", msg: UserMessage{Message: "Text field is too long", Action: "Shorten OPERACAO", Code: "VAL010"}},
	{pattern: "invalid origem", msg: UserMessage{Message: "Text field is too long", Action: "Shorten ORIGEM", Code: "VAL010"}},
	{pattern: "dataset rejected", msg: UserMessage{Message: "The file was rejected because some rows are invalid", Action: "Fix every listed row and submit the file again", Code: "VAL011"}},

	// Import Errors (IMP001-IMP007)
	{pattern: "file too large", msg: UserMessage{Message: "File exceeds maximum size limit", Action: "Split the file by VERSAO or FILIAL", Code: "IMP001"}},
	{pattern: "invalid csv", msg: UserMessage{Message: "File is not a valid CSV", Action: "Save the sheet as CSV separated by ';' or ','", Code: "IMP002"}},
	{pattern: "encoding error", msg: UserMessage{Message: "File contains invalid characters", Action: "Save the file as UTF-8", Code: "IMP003"}},
	{pattern: "no file provided", msg: UserMessage{Message: "No file was selected", Action: "Please select a CSV file to import", Code: "IMP004"}},
	{pattern: "empty file", msg: UserMessage{Message: "The file has no data rows", Action: "Please import a CSV file with data rows", Code: "IMP005"}},
	{pattern: "too many imports", msg: UserMessage{Message: "System is busy processing other imports", Action: "Please wait a moment and try again", Code: "IMP006"}},
	{pattern: "invalid workbook", msg: UserMessage{Message: "File is not a valid Excel workbook", Action: "Save the sheet as .xlsx or export it as CSV", Code: "IMP007"}},

	// Sync Errors (SYNC001-SYNC008)
	{pattern: "sync cancelled before staging", msg: UserMessage{Message: "Import was cancelled before any data was written", Action: "Submit the file again when ready", Code: "SYNC001"}},
	{pattern: "validation cancelled", msg: UserMessage{Message: "Import was cancelled during validation", Action: "Submit the file again when ready", Code: "SYNC001"}},
	{pattern: "sync connectivity", msg: UserMessage{Message: "The warehouse could not be reached", Action: "The file was kept locally and can be replayed later", Code: "SYNC002"}},
	{pattern: "warehouse unavailable", msg: UserMessage{Message: "The warehouse could not be reached", Action: "The file was kept locally and can be replayed later", Code: "SYNC002"}},
	{pattern: "job not found", msg: UserMessage{Message: "Import job not found", Action: "The job may have expired. Check the audit log for its outcome", Code: "SYNC003"}},
	{pattern: "empty filter", msg: UserMessage{Message: "Refusing to delete without a filter", Action: "Provide at least one filter field", Code: "SYNC004"}},
	{pattern: "record not found", msg: UserMessage{Message: "Record not found", Action: "Check N_CONTA, N_CENTRO_CUSTO, DATA and VERSAO", Code: "SYNC005"}},
	{pattern: "snapshot not found", msg: UserMessage{Message: "Local snapshot not found", Action: "List the kept snapshots and use one of their IDs", Code: "SYNC007"}},
	{pattern: "snapshot not replayable", msg: UserMessage{Message: "This snapshot cannot be replayed", Action: "Only pending, failed or cancelled snapshots are replayed", Code: "SYNC008"}},

	// Database Errors (DB001-DB007)
	{pattern: "duplicate key", msg: UserMessage{Message: "A record with this key already exists", Action: "Remove repeated N_CONTA/N_CENTRO_CUSTO/DATA rows", Code: "DB001"}},
	{pattern: "violates unique", msg: UserMessage{Message: "A duplicate value was found", Action: "Review your data for duplicate key values", Code: "DB002"}},
	{pattern: "unique constraint", msg: UserMessage{Message: "This value must be unique but already exists", Action: "Check for duplicate entries in your CSV", Code: "DB002"}},
	{pattern: "connection refused", msg: UserMessage{Message: "Unable to connect to database", Action: "Please try again in a few moments", Code: "DB003"}},
	{pattern: "connection reset", msg: UserMessage{Message: "Database connection was interrupted", Action: "Please try again", Code: "DB004"}},
	{pattern: "timeout", msg: UserMessage{Message: "Operation timed out", Action: "Try again later or import a smaller file", Code: "DB005"}},
	{pattern: "deadlock", msg: UserMessage{Message: "Database was busy with conflicting operations", Action: "Please try again", Code: "DB006"}},
	{pattern: "permission denied", msg: UserMessage{Message: "The warehouse user lacks a required privilege", Action: "Ask an administrator to grant access to the budget tables", Code: "DB007"}},

	// Request Errors
	{pattern: "context canceled", msg: UserMessage{Message: "Request was cancelled", Action: "Please try again", Code: "SYNC001"}},
	{pattern: "context deadline exceeded", msg: UserMessage{Message: "Request timed out", Action: "Try again later or import a smaller file", Code: "DB005"}},

	// Reconciliation catch-all
	{pattern: "sync reconciliation", msg: UserMessage{Message: "Writing to the warehouse failed and was rolled back", Action: "Nothing was changed. Check the logs with the support code", Code: "SYNC006"}},
}

var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-friendly message. Unknown
// errors map to ERR000.
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	errStr := strings.ToLower(err.Error())
	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}
	return defaultMessage
}

// FormatUserError renders err as "Message (Code: XXX). Action".
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing reports whether err matched a specific pattern.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}

// UserError pairs a technical error, kept for logs, with its user message.
type UserError struct {
	Technical error
	User      UserMessage
}

func (e *UserError) Error() string {
	return e.User.Message
}

func (e *UserError) Unwrap() error {
	return e.Technical
}

// NewUserError maps err. It returns nil for a nil err.
func NewUserError(err error) *UserError {
	if err == nil {
		return nil
	}
	return &UserError{
		Technical: err,
		User:      MapError(err),
	}
}
