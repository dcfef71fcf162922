// Package normalize holds the deterministic rules that are too brittle to
// leave to a generative step: placeholder collapsing, lot-label parsing,
// Italian money parsing/formatting and risk-label mapping. Every consumer
// (classification, cross-validation, rendering, tests) calls these same pure
// functions so the rule as checked is always the rule as implemented.
package normalize

import (
	"fmt"
	"strings"
)

// Customer-facing sentinels. Raw extractor placeholders must never reach a
// rendered surface; they collapse to one of these two strings.
const (
	Unspecified       = "NON SPECIFICATO IN PERIZIA"
	NeedsVerification = "DA VERIFICARE"
)

// lowConfidenceMarker prefixes values the extractor was unsure about,
// e.g. "LOW_CONFIDENCE: Via Roma 1".
const lowConfidenceMarker = "LOW_CONFIDENCE"

// addressParts is the fixed subfield order used when a structured address has
// no usable "full" value.
var addressParts = []string{"street", "number", "city", "province", "postal_code", "cap"}

// IsPlaceholder reports whether s is one of the raw extractor placeholders
// that stand for "the document does not say".
func IsPlaceholder(s string) bool {
	t := strings.ToUpper(strings.TrimSpace(s))
	switch t {
	case "", "NONE", "N/A", "UNKNOWN":
		return true
	}
	return strings.HasPrefix(t, "NOT_SPECIFIED")
}

// IsLowConfidence reports whether s carries the extractor's low-confidence
// marker.
func IsLowConfidence(s string) bool {
	return strings.HasPrefix(strings.ToUpper(strings.TrimSpace(s)), lowConfidenceMarker)
}

// Collapse converts any extractor-shaped value into its customer-safe display
// string. It is total: unknown shapes stringify, placeholders collapse to
// Unspecified, low-confidence values collapse to NeedsVerification.
// Recognized shapes are scalars, {"value": ...} wrappers, structured
// addresses ({"full": ...} plus subfields) and lists.
func Collapse(v any) string {
	switch val := v.(type) {
	case nil:
		return Unspecified
	case string:
		if IsPlaceholder(val) {
			return Unspecified
		}
		if IsLowConfidence(val) {
			return NeedsVerification
		}
		return strings.TrimSpace(val)
	case map[string]any:
		if inner, ok := val["value"]; ok {
			return Collapse(inner)
		}
		if full, ok := val["full"].(string); ok && full != "" && !IsLowConfidence(full) {
			return Collapse(full)
		}
		parts := make([]string, 0, len(addressParts))
		for _, k := range addressParts {
			raw, ok := val[k]
			if !ok {
				continue
			}
			s := Collapse(raw)
			if s != Unspecified && s != NeedsVerification {
				parts = append(parts, s)
			}
		}
		if len(parts) == 0 {
			return Unspecified
		}
		return strings.Join(parts, " ")
	case []any:
		parts := make([]string, 0, len(val))
		for _, item := range val {
			s := Collapse(item)
			if s != Unspecified {
				parts = append(parts, s)
			}
		}
		if len(parts) == 0 {
			return Unspecified
		}
		return strings.Join(parts, ", ")
	case float64:
		return trimFloat(val)
	case int:
		return fmt.Sprintf("%d", val)
	default:
		return Collapse(fmt.Sprintf("%v", val))
	}
}

func trimFloat(f float64) string {
	s := fmt.Sprintf("%.2f", f)
	s = strings.TrimRight(s, "0")
	s = strings.TrimRight(s, ".")
	return s
}
