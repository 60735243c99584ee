// Package core provides the business logic for budget ("orçado") imports.
//
// This package has no transport dependencies and is used by the HTTP server,
// the CLI and tests alike.
//
// # Pipeline
//
// A submission flows strictly downward:
//
//  1. The parsing collaborator produces a [RawDataset].
//  2. [Validator.Validate] checks the header, runs [ValidateRow] on every row
//     in parallel and returns a [NormalizedDataset]. Any error rejects the
//     whole dataset.
//  3. [Synchronizer.Sync] reconciles an accepted dataset into the warehouse
//     under a per-VERSAO lock, choosing FULL_REPLACE or INCREMENTAL_MERGE from
//     the partition probe, staging through a uniquely named table that is
//     always dropped, and appending one audit record per attempt.
//
// [Service] ties the steps together behind a [JobRegistry] so callers can
// poll progress and cancel work before staging starts.
//
// # Error Handling
//
// Field errors are data ([FieldError]), never Go errors. Sync failures are
// returned as [*SyncError] whose Category separates connectivity problems
// from reconciliation failures. [MapError] turns any error into a
// [UserMessage] with a support code:
//
//   - VAL001-VAL011: field and structural validation
//   - SYNC001-SYNC008: synchronization stages and job handling
//   - DB001-DB007: database errors
//   - IMP001-IMP007: file and import session errors
package core
