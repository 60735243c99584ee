package core

// convert.go provides the low-level conversions behind the field normalizers.
//
// These functions handle the messy reality of spreadsheet exports:
//   - Accented text typed in Portuguese
//   - Several date layouts, always read day-first
//   - Currency symbols, thousand separators and comma decimals
//   - Excel formula prefixes (="value") and stray quotes

import (
	"errors"
	"regexp"
	"strings"
	"time"
	"unicode"

	"github.com/shopspring/decimal"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// CanonicalDateLayout is the output layout of every DATA value.
const CanonicalDateLayout = "02/01/2006"

// dateLayouts are tried in order. Single-digit day and month are accepted by
// the "2" and "1" verbs, so "5/1/2025" parses like "05/01/2025".
var dateLayouts = []string{
	"2/1/2006",
	"2006-1-2",
	"2006/1/2",
	"2-1-2006",
	"2.1.2006",
}

// numericRegex validates an unsigned decimal literal after separators are resolved.
var numericRegex = regexp.MustCompile(`^(\d+(\.\d*)?|\.\d+)$`)

var (
	errInvalidDate   = errors.New("invalid date")
	errInvalidNumber = errors.New("invalid number")
)

// NormalizeText folds diacritics to their base letters, uppercases, collapses
// whitespace runs to a single space and trims.
//
//	NormalizeText("  Descrição   de  serviço ") == "DESCRICAO DE SERVICO"
func NormalizeText(s string) string {
	if s == "" {
		return ""
	}
	return strings.Join(strings.Fields(strings.ToUpper(foldDiacritics(s))), " ")
}

// foldDiacritics decomposes s and drops combining marks. The transformer
// chain is stateful, so one is built per call.
func foldDiacritics(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// CleanCell removes common spreadsheet artifacts from a cell value:
// - Trims whitespace, including non-breaking spaces
// - Removes Excel formula prefix (="...")
// - Removes surrounding quotes
func CleanCell(s string) string {
	s = strings.TrimSpace(strings.ReplaceAll(s, "\u00a0", " "))

	if strings.HasPrefix(s, "=\"") && strings.HasSuffix(s, "\"") {
		s = s[2 : len(s)-1]
	} else if strings.HasPrefix(s, "=") {
		s = s[1:]
	}

	return strings.TrimSpace(strings.Trim(s, `"'`))
}

// digitsOnly returns the ASCII digits of s in order.
func digitsOnly(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if s[i] >= '0' && s[i] <= '9' {
			b.WriteByte(s[i])
		}
	}
	return b.String()
}

// isDigits reports whether s is non-empty and made only of ASCII digits.
func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// ParseDate reads s day-first and returns the date at midnight UTC.
// A trailing time component ("2025-01-05 00:00:00", "2025-01-05T00:00:00")
// is ignored.
func ParseDate(s string) (time.Time, error) {
	s = CleanCell(s)
	if i := strings.IndexAny(s, " T"); i > 0 {
		s = s[:i]
	}
	if s == "" {
		return time.Time{}, errInvalidDate
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, errInvalidDate
}

// ParseDecimal converts a money-formatted literal into a decimal.
//
// A currency symbol is accepted only before or after the amount. Spaces are
// removed and accounting parentheses mean a
// negative amount. When both '.' and ',' appear, the right-most one is the
// decimal separator. A separator that appears more than once is a thousands
// separator. A lone ',' is a decimal comma.
func ParseDecimal(s string) (decimal.Decimal, error) {
	s = CleanCell(s)
	if s == "" {
		return decimal.Zero, errInvalidNumber
	}

	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = s[1 : len(s)-1]
	}

	s = strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, stripCurrency(s))

	if strings.HasPrefix(s, "-") {
		negative = !negative
		s = s[1:]
	} else if strings.HasPrefix(s, "+") {
		s = s[1:]
	}

	s = resolveSeparators(s)
	if !numericRegex.MatchString(s) {
		return decimal.Zero, errInvalidNumber
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, errInvalidNumber
	}
	if negative {
		d = d.Neg()
	}
	return d, nil
}

// currencySymbols lists the accepted currency tokens, longest first.
var currencySymbols = []string{"R$", "$", "€", "£"}

// stripCurrency removes a single currency token, either at the start of s
// after an optional sign or at the end.
func stripCurrency(s string) string {
	s = strings.TrimSpace(s)
	sign := ""
	if strings.HasPrefix(s, "-") || strings.HasPrefix(s, "+") {
		sign, s = s[:1], strings.TrimSpace(s[1:])
	}
	for _, sym := range currencySymbols {
		if strings.HasPrefix(s, sym) {
			return sign + strings.TrimSpace(s[len(sym):])
		}
	}
	for _, sym := range currencySymbols {
		if strings.HasSuffix(s, sym) {
			return sign + strings.TrimSpace(s[:len(s)-len(sym)])
		}
	}
	return sign + s
}

// resolveSeparators rewrites s so that '.' is the only, optional, decimal point.
func resolveSeparators(s string) string {
	dot := strings.LastIndex(s, ".")
	comma := strings.LastIndex(s, ",")

	switch {
	case dot >= 0 && comma >= 0:
		if comma > dot {
			s = strings.ReplaceAll(s, ".", "")
			return strings.Replace(s, ",", ".", 1)
		}
		return strings.ReplaceAll(s, ",", "")
	case comma >= 0:
		if strings.Count(s, ",") > 1 {
			return strings.ReplaceAll(s, ",", "")
		}
		return strings.Replace(s, ",", ".", 1)
	case dot >= 0:
		if strings.Count(s, ".") > 1 {
			return strings.ReplaceAll(s, ".", "")
		}
	}
	return s
}
