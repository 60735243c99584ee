package ingest

// xlsx.go reads budget sheets saved as Excel workbooks. Cells are read
// without their number format so amounts keep full precision. Date cells in
// the DATA column hold serial numbers and are rendered DD/MM/YYYY before the
// validator sees them.

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/JonMunkholm/orcado/internal/core"
)

// workbookEncoding is reported in Info.Encoding for workbooks.
const workbookEncoding = "xlsx"

// IsWorkbook reports whether name is read as an Excel workbook.
func IsWorkbook(name string) bool {
	return strings.EqualFold(filepath.Ext(name), ".xlsx")
}

// parseWorkbook reads the first worksheet that carries the header, or the
// first worksheet when none does.
func parseWorkbook(data []byte, ds core.RawDataset, info Info) (core.RawDataset, Info, error) {
	info.Encoding = workbookEncoding

	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return ds, info, fmt.Errorf("%w: %s: %v", ErrInvalidWorkbook, ds.SourceFile, err)
	}
	defer f.Close()

	date1904 := false
	if props, err := f.GetWorkbookProps(); err == nil && props.Date1904 != nil {
		date1904 = *props.Date1904
	}

	var records [][]string
	for i, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
		if err != nil {
			return ds, info, fmt.Errorf("%w: sheet %q: %v", ErrInvalidWorkbook, sheet, err)
		}
		if i == 0 {
			records = rows
		}
		if len(rows) > 0 && knownColumns(rows[findHeader(rows)]) >= minHeaderMatches {
			records = rows
			break
		}
	}
	if allEmpty(records) {
		return ds, info, ErrEmptyFile
	}

	ds, info, err = fromRecords(ds, info, records)
	if err != nil {
		return ds, info, err
	}
	convertSerialDates(ds, date1904)
	return ds, info, nil
}

// convertSerialDates rewrites numeric DATA cells as DD/MM/YYYY.
func convertSerialDates(ds core.RawDataset, date1904 bool) {
	var col string
	for _, h := range ds.Columns {
		if spec, ok := core.LookupField(h); ok && spec.Name == core.ColData {
			col = h
			break
		}
	}
	if col == "" {
		return
	}
	for _, row := range ds.Rows {
		if s, ok := serialDate(row[col], date1904); ok {
			row[col] = s
		}
	}
}

// maxSerialDigits bounds the integer part of a serial date (99999 is 2173),
// so compact text dates such as 05012024 are left alone.
const maxSerialDigits = 5

// serialDate formats an Excel serial date number. Anything else is left
// to the date parser.
func serialDate(v string, date1904 bool) (string, bool) {
	v = strings.TrimSpace(v)
	whole, _, _ := strings.Cut(v, ".")
	if whole == "" || len(whole) > maxSerialDigits {
		return "", false
	}
	serial, err := strconv.ParseFloat(v, 64)
	if err != nil || serial <= 0 {
		return "", false
	}
	t, err := excelize.ExcelDateToTime(serial, date1904)
	if err != nil {
		return "", false
	}
	return t.Round(time.Second).Format(core.CanonicalDateLayout), true
}

func allEmpty(records [][]string) bool {
	for _, rec := range records {
		if !isEmptyRow(rec) {
			return false
		}
	}
	return true
}
