package ingest

import (
	"bytes"
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Encoding names reported by decodeText.
const (
	EncodingUTF8        = "utf-8"
	EncodingWindows1252 = "windows-1252"
)

// stripBOM removes a leading UTF-8 byte order mark, commonly added by Excel
// on Windows.
func stripBOM(data []byte) []byte {
	return bytes.TrimPrefix(data, utf8BOM)
}

// decodeText returns data as UTF-8. Input that is not valid UTF-8 is read as
// Windows-1252, the code page Excel uses for CSV exports on Portuguese
// Windows installs.
func decodeText(data []byte) ([]byte, string, error) {
	data = stripBOM(data)
	if utf8.Valid(data) {
		return data, EncodingUTF8, nil
	}
	out, err := charmap.Windows1252.NewDecoder().Bytes(data)
	if err != nil {
		return nil, "", fmt.Errorf("encoding error: %w", err)
	}
	return out, EncodingWindows1252, nil
}

// sniffDelimiter picks the separator of the header line. Each of the first
// MaxHeaderSearchRows non-empty lines is split on its most frequent
// separator, and the first line naming enough known columns decides. When
// none does, the line with the most separators decides, so a bare title
// line above the header does not force a comma. Semicolon wins ties because
// spreadsheets in comma-decimal locales export with it.
func sniffDelimiter(data []byte) rune {
	best, bestN := ',', 0
	for _, line := range leadingLines(data, MaxHeaderSearchRows) {
		delim, n := lineDelimiter(line)
		if n == 0 {
			continue
		}
		if knownColumns(splitLine(line, delim)) >= minHeaderMatches {
			return delim
		}
		if n > bestN {
			best, bestN = delim, n
		}
	}
	return best
}

// lineDelimiter returns the separator occurring most often outside quotes
// in line and its count.
func lineDelimiter(line []byte) (rune, int) {
	counts := map[rune]int{}
	inQuotes := false
	for _, r := range string(line) {
		switch {
		case r == '"':
			inQuotes = !inQuotes
		case inQuotes:
		case r == ';', r == ',', r == '\t':
			counts[r]++
		}
	}

	best, bestN := ',', 0
	for _, r := range []rune{';', ',', '\t'} {
		if counts[r] > bestN {
			best, bestN = r, counts[r]
		}
	}
	return best, bestN
}

// splitLine splits a header candidate on delim, trimming quotes and spaces.
func splitLine(line []byte, delim rune) []string {
	cells := strings.Split(string(line), string(delim))
	for i, c := range cells {
		cells[i] = strings.Trim(strings.TrimSpace(c), `"`)
	}
	return cells
}

// leadingLines returns up to n non-empty lines from the start of data.
func leadingLines(data []byte, n int) [][]byte {
	var lines [][]byte
	for len(data) > 0 && len(lines) < n {
		i := bytes.IndexByte(data, '\n')
		var line []byte
		if i < 0 {
			line, data = data, nil
		} else {
			line, data = data[:i], data[i+1:]
		}
		line = bytes.TrimRight(line, "\r")
		if len(bytes.TrimSpace(line)) > 0 {
			lines = append(lines, line)
		}
	}
	return lines
}
