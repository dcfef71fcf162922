package normalize

import "strings"

var riskLabels = map[string]string{
	"LOW_RISK":    "RISCHIO BASSO",
	"MEDIUM_RISK": "RISCHIO MEDIO",
	"HIGH_RISK":   "RISCHIO ALTO",
	"LOW":         "RISCHIO BASSO",
	"MEDIUM":      "RISCHIO MEDIO",
	"HIGH":        "RISCHIO ALTO",
	"GREEN":       "RISCHIO BASSO",
	"AMBER":       "RISCHIO MEDIO",
	"RED":         "RISCHIO ALTO",
}

// RiskLabelIT maps engine-internal risk tokens and their colour-coded
// equivalents to the localized label. Unknown tokens pass through unchanged
// so new upstream levels never break rendering.
func RiskLabelIT(v string) string {
	key := strings.ToUpper(strings.TrimSpace(v))
	if label, ok := riskLabels[key]; ok {
		return label
	}
	return strings.TrimSpace(v)
}
