// Package crossval checks relationships between classified entities: lot
// values against their own citations, monetary figures against their claimed
// sources, legal-killer verdicts against the evidence lock. Violations are
// typed and collected rather than returned as errors, so a malformed
// extraction stays observable and correctable. The one exception is the
// structural check: a result missing a required field-state key cannot be
// validated at all.
package crossval

import (
	"fmt"
	"strings"

	"github.com/nexodify/periscan/internal/evidence"
	"github.com/nexodify/periscan/internal/fieldstate"
	"github.com/nexodify/periscan/internal/normalize"
	"github.com/nexodify/periscan/internal/report"
)

// Violation is one recorded cross-validation failure.
type Violation interface {
	error
	Code() string
}

// StructuralViolation reports required field-state keys missing from the
// result. It is fatal for the QA gate and is returned as an error, not
// collected.
type StructuralViolation struct {
	Missing []string
}

func (v *StructuralViolation) Code() string { return "StructuralViolation" }
func (v *StructuralViolation) Error() string {
	return fmt.Sprintf("missing required field-state keys: %s", strings.Join(v.Missing, ", "))
}

// LotConsistencyViolation reports a lot value whose normalized label
// disagrees with the normalized label of its own evidence quote.
type LotConsistencyViolation struct {
	Key       string
	Value     string
	Quote     string
	NormValue string
	NormQuote string
}

func (v *LotConsistencyViolation) Code() string { return "LotConsistencyViolation" }
func (v *LotConsistencyViolation) Error() string {
	return fmt.Sprintf("%s: value normalizes to %q but evidence quote normalizes to %q",
		v.Key, v.NormValue, v.NormQuote)
}

// LotUnicoMismatch reports evidence literally citing "lotto unico" for a
// value that does not say so.
type LotUnicoMismatch struct {
	Key   string
	Value string
	Quote string
}

func (v *LotUnicoMismatch) Code() string { return "LotUnicoMismatch" }
func (v *LotUnicoMismatch) Error() string {
	return fmt.Sprintf("%s: evidence cites 'lotto unico' but value is %q", v.Key, v.Value)
}

// MoneyBoxHonestyViolation reports a monetary figure presented as sourced
// from the document without any grounding.
type MoneyBoxHonestyViolation struct {
	ItemCode string
	Estimate float64
}

func (v *MoneyBoxHonestyViolation) Code() string { return "MoneyBoxHonestyViolation" }
func (v *MoneyBoxHonestyViolation) Error() string {
	return fmt.Sprintf("money box item %s: estimate %s has unspecified source and no estimate marker",
		v.ItemCode, normalize.FormatEuro(v.Estimate))
}

// LegalKillerEvidenceViolation reports a definitive killer verdict asserted
// without a well-formed citation.
type LegalKillerEvidenceViolation struct {
	Key    string
	Status report.LegalKillerStatus
	Reason string
}

func (v *LegalKillerEvidenceViolation) Code() string { return "LegalKillerEvidenceViolation" }
func (v *LegalKillerEvidenceViolation) Error() string {
	return fmt.Sprintf("legal killer %s: status %s without valid evidence (%s)", v.Key, v.Status, v.Reason)
}

// estimateMarkers flag a note as declaring an internal estimate, which
// exempts the line from the source-honesty rule.
var estimateMarkers = []string{"ESTIMATE", "TBD", "STIMA INTERNA"}

func noteMarksEstimate(note string) bool {
	up := strings.ToUpper(note)
	for _, m := range estimateMarkers {
		if strings.Contains(up, m) {
			return true
		}
	}
	return false
}

// Run validates a fully classified result. The returned violations become QA
// check entries; the error is non-nil only for a StructuralViolation.
func Run(res *report.Result) ([]Violation, error) {
	if missing := missingKeys(res.FieldStates); len(missing) > 0 {
		return nil, &StructuralViolation{Missing: missing}
	}
	var out []Violation
	out = append(out, checkLotField(res)...)
	out = append(out, checkLots(res)...)
	out = append(out, checkMoneyBox(res)...)
	out = append(out, checkLegalKillers(res)...)
	return out, nil
}

func missingKeys(states map[string]fieldstate.FieldState) []string {
	var missing []string
	for _, key := range fieldstate.RequiredKeys() {
		if _, ok := states[key]; !ok {
			missing = append(missing, key)
		}
	}
	return missing
}

func checkLotField(res *report.Result) []Violation {
	fs, ok := res.FieldStates["lotto"]
	if !ok || fs.Status != fieldstate.Found || len(fs.Evidence) == 0 {
		return nil
	}
	value := normalize.Collapse(fs.Value)
	return compareLotLabels("field_states.lotto", value, fs.Evidence[0].Quote)
}

func checkLots(res *report.Result) []Violation {
	var out []Violation
	for i, lot := range res.Lots {
		evs := lot.Evidence["lotto"]
		if lot.LotNumber == "" || len(evs) == 0 {
			continue
		}
		key := fmt.Sprintf("lots[%d]", i)
		out = append(out, compareLotLabels(key, lot.LotNumber, evs[0].Quote)...)
	}
	return out
}

// compareLotLabels applies the two lot rules: normalized labels must agree
// when both resolve, and a literal "lotto unico" citation locks the value to
// the unico form. A text with no lot keyword normalizes to nothing and is
// treated as "cannot verify".
func compareLotLabels(key, value, quote string) []Violation {
	var out []Violation
	normVal, okVal := normalize.ParseLotLabel(value)
	normQuote, okQuote := normalize.ParseLotLabel(quote)
	if okVal && okQuote && !normVal.Equal(normQuote) {
		out = append(out, &LotConsistencyViolation{
			Key:       key,
			Value:     value,
			Quote:     quote,
			NormValue: normVal.String(),
			NormQuote: normQuote.String(),
		})
	}
	if strings.Contains(strings.ToLower(quote), "lotto unico") &&
		!strings.Contains(strings.ToLower(value), "unico") {
		out = append(out, &LotUnicoMismatch{Key: key, Value: value, Quote: quote})
	}
	return out
}

func checkMoneyBox(res *report.Result) []Violation {
	var out []Violation
	for _, item := range res.MoneyBox.Items {
		est, ok := normalize.ParseMoney(item.Estimate)
		if !ok || est == 0 {
			continue
		}
		sourceUnspecified := normalize.Collapse(item.Source.Value) == normalize.Unspecified
		sourceUngrounded := len(item.Source.Evidence) == 0
		if (sourceUnspecified || sourceUngrounded) && !noteMarksEstimate(item.Note) {
			out = append(out, &MoneyBoxHonestyViolation{ItemCode: item.Code, Estimate: est})
		}
	}
	return out
}

func checkLegalKillers(res *report.Result) []Violation {
	var out []Violation
	for _, item := range res.LegalKillers {
		if item.Status != report.KillerYes && item.Status != report.KillerNo {
			continue
		}
		if len(item.Evidence) == 0 {
			out = append(out, &LegalKillerEvidenceViolation{
				Key: item.Key, Status: item.Status, Reason: "no evidence entries",
			})
			continue
		}
		for i, ev := range item.Evidence {
			if !ev.WellFormed() || ev.OffsetMode != evidence.PageLocal {
				out = append(out, &LegalKillerEvidenceViolation{
					Key:    item.Key,
					Status: item.Status,
					Reason: fmt.Sprintf("evidence[%d] malformed or not PAGE_LOCAL", i),
				})
				break
			}
		}
	}
	return out
}
