package normalize

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
)

var moneyJunkRe = regexp.MustCompile(`(?i)[€\s]|eur(o)?`)

// ParseMoney converts a raw extracted amount into euros. Numeric inputs pass
// through; strings are stripped of currency symbols and resolved against the
// Italian/English separator ambiguity:
//   - both "," and "." present: the right-most separator is the decimal point
//   - only ",": decimal comma
//   - only ".": thousands separator when the trailing group has three digits
//     and every group is numeric, decimal point otherwise
//
// A value containing "TBD" and anything unparseable returns ok=false, never
// an error and never zero-by-accident.
func ParseMoney(v any) (float64, bool) {
	switch val := v.(type) {
	case nil:
		return 0, false
	case float64:
		return val, true
	case float32:
		return float64(val), true
	case int:
		return float64(val), true
	case int64:
		return float64(val), true
	case json.Number:
		f, err := val.Float64()
		return f, err == nil
	case string:
		return parseMoneyString(val)
	default:
		return 0, false
	}
}

func parseMoneyString(s string) (float64, bool) {
	text := strings.TrimSpace(s)
	if text == "" || strings.Contains(strings.ToUpper(text), "TBD") {
		return 0, false
	}
	cleaned := moneyJunkRe.ReplaceAllString(text, "")
	if cleaned == "" {
		return 0, false
	}
	hasComma := strings.Contains(cleaned, ",")
	hasDot := strings.Contains(cleaned, ".")
	switch {
	case hasComma && hasDot:
		if strings.LastIndex(cleaned, ",") > strings.LastIndex(cleaned, ".") {
			cleaned = strings.ReplaceAll(cleaned, ".", "")
			cleaned = strings.ReplaceAll(cleaned, ",", ".")
		} else {
			cleaned = strings.ReplaceAll(cleaned, ",", "")
		}
	case hasComma:
		cleaned = strings.ReplaceAll(cleaned, ",", ".")
	case hasDot:
		parts := strings.Split(cleaned, ".")
		if len(parts) > 1 && allDigits(parts) && len(parts[len(parts)-1]) == 3 {
			cleaned = strings.Join(parts, "")
		}
	}
	f, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

func allDigits(parts []string) bool {
	for _, p := range parts {
		if p == "" {
			return false
		}
		for _, r := range p {
			if r < '0' || r > '9' {
				return false
			}
		}
	}
	return true
}

// FormatEuro renders the canonical display form "€ X.XXX,XX": thousands
// separated by dots, two decimals after a comma.
func FormatEuro(v float64) string {
	neg := v < 0
	if neg {
		v = -v
	}
	s := strconv.FormatFloat(v, 'f', 2, 64)
	intPart, decPart, _ := strings.Cut(s, ".")
	var b strings.Builder
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte('.')
		}
		b.WriteRune(r)
	}
	out := "€ " + b.String() + "," + decPart
	if neg {
		out = "€ -" + b.String() + "," + decPart
	}
	return out
}
