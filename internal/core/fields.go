package core

// fields.go holds one normalizer per budget column. Each is a pure function
// returning the canonical value or an error whose text is shown to the user.

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"
)

// Field length limits.
const (
	MaxDescricaoLen = 100
	MaxOperacaoLen  = 10
	MaxOrigemLen    = 60
)

// DefaultTipo is stored when TIPO is absent or empty.
const DefaultTipo = "ORCADO"

// versaoRegex is the "<year> - V<n>" partition tag.
var versaoRegex = regexp.MustCompile(`^\d{4} - V\d+$`)

var errRequired = errors.New("required field is empty")

// NormalizeFilial returns the 4-digit branch code. Purely numeric values of
// up to four digits are zero-padded ("101" becomes "0101"); anything else is
// stripped to its digits, which must then be exactly four.
func NormalizeFilial(raw string) (string, error) {
	s := CleanCell(raw)
	if s == "" {
		return "", errRequired
	}
	if isDigits(s) && len(s) <= 4 {
		return strings.Repeat("0", 4-len(s)) + s, nil
	}
	d := digitsOnly(s)
	if len(d) != 4 {
		return "", errors.New("invalid filial: must have 4 digits")
	}
	return d, nil
}

// NormalizeNConta returns the 8-digit account number.
func NormalizeNConta(raw string) (int64, error) {
	s := CleanCell(raw)
	if s == "" {
		return 0, errRequired
	}
	d := digitsOnly(s)
	if len(d) != 8 {
		return 0, errors.New("invalid n_conta: must have 8 digits")
	}
	n, err := strconv.ParseInt(d, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid n_conta: %w", err)
	}
	return n, nil
}

// ExemptsCentroCusto reports whether an account allows a null cost centre.
// Accounts whose number starts with '1' are balance-sheet lines without one.
func ExemptsCentroCusto(rawNConta string) bool {
	return strings.HasPrefix(digitsOnly(CleanCell(rawNConta)), "1")
}

// NormalizeCentroCusto returns the 9-digit cost centre, or nil when the row's
// account is exempt and the cell is empty.
func NormalizeCentroCusto(raw, rawNConta string) (*int64, error) {
	s := CleanCell(raw)
	if s == "" {
		if ExemptsCentroCusto(rawNConta) {
			return nil, nil
		}
		return nil, errRequired
	}
	d := digitsOnly(s)
	if len(d) != 9 {
		return nil, errors.New("invalid centro de custo: must have 9 digits")
	}
	n, err := strconv.ParseInt(d, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid centro de custo: %w", err)
	}
	return &n, nil
}

// NormalizeData returns the date in DD/MM/YYYY.
func NormalizeData(raw string) (string, error) {
	if CleanCell(raw) == "" {
		return "", errRequired
	}
	t, err := ParseDate(raw)
	if err != nil {
		return "", errors.New("invalid date: use DD/MM/YYYY")
	}
	return t.Format(CanonicalDateLayout), nil
}

// NormalizeValor returns the amount as a float.
func NormalizeValor(raw string) (float64, error) {
	if CleanCell(raw) == "" {
		return 0, errRequired
	}
	d, err := ParseDecimal(raw)
	if err != nil {
		return 0, errors.New("invalid number: not a monetary value")
	}
	return d.InexactFloat64(), nil
}

// NormalizeDescricao returns the folded description, cut to MaxDescricaoLen runes.
func NormalizeDescricao(raw string) (string, error) {
	s := NormalizeText(CleanCell(raw))
	if s == "" {
		return "", errRequired
	}
	return truncateRunes(s, MaxDescricaoLen), nil
}

// NormalizeVersao returns the partition tag, which must read "YYYY - VN".
func NormalizeVersao(raw string) (string, error) {
	s := NormalizeText(CleanCell(raw))
	if s == "" {
		return "", errRequired
	}
	if !versaoRegex.MatchString(s) {
		return "", errors.New("invalid versao: must follow 'YYYY - VN'")
	}
	return s, nil
}

// NormalizeOperacao returns the trimmed, uppercased operation code.
func NormalizeOperacao(raw string) (string, error) {
	s := strings.ToUpper(CleanCell(raw))
	if utf8.RuneCountInString(s) > MaxOperacaoLen {
		return "", fmt.Errorf("invalid operacao: at most %d characters", MaxOperacaoLen)
	}
	return s, nil
}

// NormalizeRateio accepts SIM, NAO and NÃO in any case and folds NÃO to NAO.
func NormalizeRateio(raw string) (string, error) {
	s := strings.ToUpper(CleanCell(raw))
	switch s {
	case "":
		return "", nil
	case "SIM":
		return "SIM", nil
	case "NAO", "NÃO":
		return "NAO", nil
	}
	return "", errors.New("invalid enum: rateio must be SIM or NAO")
}

// NormalizeOrigem returns the folded origin label.
func NormalizeOrigem(raw string) (string, error) {
	s := NormalizeText(CleanCell(raw))
	if utf8.RuneCountInString(s) > MaxOrigemLen {
		return "", fmt.Errorf("invalid origem: at most %d characters", MaxOrigemLen)
	}
	return s, nil
}

// NormalizeTipo returns the folded type, DefaultTipo when empty.
func NormalizeTipo(raw string) (string, error) {
	s := NormalizeText(CleanCell(raw))
	if s == "" {
		return DefaultTipo, nil
	}
	return s, nil
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return strings.TrimSpace(string(r[:n]))
}
