// Package ingest turns uploaded budget sheets into core.RawDataset values.
//
// The reader copes with what spreadsheet exports actually look like: a UTF-8
// BOM, Windows-1252 text, semicolon or comma separators, title lines above
// the header and blank rows in between. Files named .xlsx are read as Excel
// workbooks instead. It does no validation of its own;
// the header and every cell are handed to the core validator unchanged.
package ingest

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/cespare/xxhash/v2"

	"github.com/JonMunkholm/orcado/internal/core"
)

// DefaultMaxBytes is the default upload size limit (100MB).
const DefaultMaxBytes int64 = 100 * 1024 * 1024

// MaxHeaderSearchRows is how many leading rows are scanned for the header.
const MaxHeaderSearchRows = 20

// minHeaderMatches is how many known columns a row needs to count as the header.
const minHeaderMatches = 3

var (
	ErrFileTooLarge = errors.New("file too large")
	ErrEmptyFile    = errors.New("empty file")
	ErrInvalidCSV   = errors.New("invalid csv")

	ErrInvalidWorkbook = errors.New("invalid workbook")
)

// Options tunes Read.
type Options struct {
	MaxBytes  int64 // Zero uses DefaultMaxBytes
	Delimiter rune  // Zero sniffs the leading lines
}

// Info describes how a file was read.
type Info struct {
	Bytes     int64
	Encoding  string // "xlsx" for workbooks
	Delimiter rune   // Zero for workbooks
	HeaderRow int    // 0-based record index of the header
	Skipped   int    // Blank rows dropped
}

// Read parses r into a raw dataset named after name. The checksum is taken
// over the bytes exactly as received.
func Read(r io.Reader, name string, opts Options) (core.RawDataset, Info, error) {
	limit := opts.MaxBytes
	if limit <= 0 {
		limit = DefaultMaxBytes
	}

	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return core.RawDataset{}, Info{}, fmt.Errorf("read %s: %w", name, err)
	}
	if int64(len(data)) > limit {
		return core.RawDataset{}, Info{}, fmt.Errorf("%w: %s exceeds %d bytes", ErrFileTooLarge, name, limit)
	}
	return Parse(data, name, opts)
}

// ReadFile opens path and reads it with Read.
func ReadFile(path string, opts Options) (core.RawDataset, Info, error) {
	f, err := os.Open(path)
	if err != nil {
		return core.RawDataset{}, Info{}, err
	}
	defer f.Close()
	return Read(f, filepath.Base(path), opts)
}

// Parse converts file bytes into a raw dataset. The extension of name picks
// the format.
func Parse(data []byte, name string, opts Options) (core.RawDataset, Info, error) {
	info := Info{Bytes: int64(len(data))}
	ds := core.RawDataset{
		SourceFile: filepath.Base(name),
		Checksum:   Checksum(data),
	}
	if IsWorkbook(name) {
		return parseWorkbook(data, ds, info)
	}

	text, enc, err := decodeText(data)
	if err != nil {
		return ds, info, err
	}
	info.Encoding = enc
	if len(bytes.TrimSpace(text)) == 0 {
		return ds, info, ErrEmptyFile
	}

	info.Delimiter = opts.Delimiter
	if info.Delimiter == 0 {
		info.Delimiter = sniffDelimiter(text)
	}

	cr := csv.NewReader(bytes.NewReader(text))
	cr.Comma = info.Delimiter
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	records, err := cr.ReadAll()
	if err != nil {
		return ds, info, fmt.Errorf("%w: %v", ErrInvalidCSV, err)
	}

	return fromRecords(ds, info, records)
}

// fromRecords locates the header among records and keys every following
// non-blank record by it.
func fromRecords(ds core.RawDataset, info Info, records [][]string) (core.RawDataset, Info, error) {
	info.HeaderRow = findHeader(records)
	header := records[info.HeaderRow]
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}
	ds.Columns = header

	for _, rec := range records[info.HeaderRow+1:] {
		if isEmptyRow(rec) {
			info.Skipped++
			continue
		}
		ds.Rows = append(ds.Rows, toRawRow(header, rec))
	}
	return ds, info, nil
}

// Checksum returns the hex xxhash64 of data.
func Checksum(data []byte) string {
	return fmt.Sprintf("%016x", xxhash.Sum64(data))
}

// findHeader returns the first of the leading records naming enough known
// columns, or the first non-empty record when none does. The validator then
// reports the missing columns.
func findHeader(records [][]string) int {
	limit := min(len(records), MaxHeaderSearchRows)
	first := -1
	for i := 0; i < limit; i++ {
		if isEmptyRow(records[i]) {
			continue
		}
		if first < 0 {
			first = i
		}
		if knownColumns(records[i]) >= minHeaderMatches {
			return i
		}
	}
	if first < 0 {
		return 0
	}
	return first
}

func knownColumns(row []string) int {
	n := 0
	for _, cell := range row {
		if _, ok := core.LookupField(cell); ok {
			n++
		}
	}
	return n
}

// toRawRow keys rec by header cell. Missing trailing cells read as empty
// and cells beyond the header are dropped. The first of two equal header
// cells wins.
func toRawRow(header, rec []string) core.RawRow {
	row := make(core.RawRow, len(header))
	for i, h := range header {
		if h == "" {
			continue
		}
		if _, dup := row[h]; dup {
			continue
		}
		if i < len(rec) {
			row[h] = rec[i]
		} else {
			row[h] = ""
		}
	}
	return row
}

func isEmptyRow(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
