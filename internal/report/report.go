// Package report defines the assembled analysis result: the field-state map,
// lots, money box, legal killers and QA verdict for one perizia document,
// with the stable JSON contract clients and regression checks consume.
//
// Header views are derived from the field states on every read. A logical
// fact lives in exactly one FieldState; nothing mirrors it into a second
// copy that could go stale after an override.
package report

import (
	"encoding/json"
	"time"

	"github.com/nexodify/periscan/internal/evidence"
	"github.com/nexodify/periscan/internal/fieldstate"
	"github.com/nexodify/periscan/internal/normalize"
)

// SchemaVersion identifies the result contract.
const SchemaVersion = "periscan_perizia_v1"

// Run carries the identity and lineage of one analysis run.
type Run struct {
	RunID          string    `json:"run_id"`
	CaseID         string    `json:"case_id"`
	GeneratedAtUTC time.Time `json:"generated_at_utc"`
	Revision       int       `json:"revision"`
}

// Lot is one auction lot with per-field citations.
type Lot struct {
	LotNumber string                         `json:"lot_number"`
	Price     any                            `json:"prezzo_base_eur"`
	Location  string                         `json:"ubicazione"`
	Area      any                            `json:"superficie_mq"`
	RealRight string                         `json:"diritto_reale"`
	Evidence  map[string][]evidence.Evidence `json:"evidence"`
}

// SourceRef ties a claimed document source to its citations.
type SourceRef struct {
	Value    any                 `json:"value"`
	Evidence []evidence.Evidence `json:"evidence"`
}

// MoneyBoxItem is one itemized deduction or estimate applied to the
// property's valuation. Estimate is nil, a number, or the literal "TBD".
type MoneyBoxItem struct {
	Code     string    `json:"code"`
	Label    string    `json:"voce"`
	Estimate any       `json:"stima_euro"`
	Source   SourceRef `json:"fonte_perizia"`
	Note     string    `json:"stima_nota"`
}

// MoneyBox is the itemized cost list plus its honesty-preserving total.
type MoneyBox struct {
	Items []MoneyBoxItem `json:"items"`
}

// Total renders the grand total: the sum of all parseable estimates in the
// canonical euro format, or "TBD" when any line is missing or unparseable.
// A partial sum must never be presented as complete.
func (m MoneyBox) Total() string {
	if len(m.Items) == 0 {
		return normalize.Unspecified
	}
	var sum float64
	for _, it := range m.Items {
		v, ok := normalize.ParseMoney(it.Estimate)
		if !ok {
			return "TBD"
		}
		sum += v
	}
	return normalize.FormatEuro(sum)
}

// LegalKillerStatus is the tri-state verdict for a legally disqualifying
// condition.
type LegalKillerStatus string

const (
	KillerYes    LegalKillerStatus = "SI"
	KillerNo     LegalKillerStatus = "NO"
	KillerVerify LegalKillerStatus = "DA_VERIFICARE"
)

// KillerStatusIT localizes a killer status for rendering.
func KillerStatusIT(s LegalKillerStatus) string {
	switch s {
	case KillerYes:
		return "SÌ"
	case KillerNo:
		return "NO"
	case KillerVerify:
		return "DA VERIFICARE"
	}
	return string(s)
}

// LegalKillerItem is one checklist verdict. A definitive SI/NO must carry
// well-formed evidence; DA_VERIFICARE carries searched_in proof instead.
type LegalKillerItem struct {
	Key        string              `json:"killer"`
	Status     LegalKillerStatus   `json:"status"`
	StatusIT   string              `json:"status_it"`
	Reason     string              `json:"reason_it"`
	Evidence   []evidence.Evidence `json:"evidence"`
	SearchedIn []evidence.Evidence `json:"searched_in"`
}

// AssistantAnswer is an assistant-style answer attached to a result when the
// user asked a question about the case.
type AssistantAnswer struct {
	AnswerIT     string              `json:"answer_it"`
	AnswerEN     string              `json:"answer_en"`
	Confidence   string              `json:"confidence"`
	HadContext   bool                `json:"had_context"`
	Sources      []evidence.Evidence `json:"sources"`
	DisclaimerIT string              `json:"safe_disclaimer_it"`
	DisclaimerEN string              `json:"safe_disclaimer_en"`
}

// ImageFinding is one observation from the image forensics collaborator.
type ImageFinding struct {
	FindingID string `json:"finding_id"`
	TitleIT   string `json:"title_it"`
	Severity  string `json:"severity"`
	Detail    string `json:"detail"`
}

// ImageReport summarizes an image forensics pass.
type ImageReport struct {
	ImageCount int            `json:"image_count"`
	Findings   []ImageFinding `json:"findings"`
}

// QAStatus is the aggregate gate verdict.
type QAStatus string

const (
	QAPass QAStatus = "PASS"
	QAWarn QAStatus = "WARN"
	QAFail QAStatus = "FAIL"
)

// QACheckResult is the outcome of one named check.
type QACheckResult string

const (
	CheckOK   QACheckResult = "OK"
	CheckWarn QACheckResult = "WARN"
	CheckFail QACheckResult = "FAIL"
)

// QACheck is one entry of the gate's per-check report.
type QACheck struct {
	Code   string        `json:"code"`
	Result QACheckResult `json:"result"`
	Detail string        `json:"detail"`
}

// QAReport is the gate's verdict over a fully assembled result.
type QAReport struct {
	Status QAStatus  `json:"status"`
	Checks []QACheck `json:"checks"`
}

// Result is the complete analysis of one document.
type Result struct {
	SchemaVersion   string                           `json:"schema_version"`
	Run             Run                              `json:"run"`
	FileName        string                           `json:"file_name,omitempty"`
	OffsetMode      evidence.OffsetMode              `json:"offset_mode"`
	PageCount       int                              `json:"page_count"`
	PageCoverageLog []int                            `json:"page_coverage_log"`
	FieldStates     map[string]fieldstate.FieldState `json:"field_states"`
	Lots            []Lot                            `json:"lots"`
	MoneyBox        MoneyBox                         `json:"money_box"`
	LegalKillers    []LegalKillerItem                `json:"legal_killers"`
	Assistant       *AssistantAnswer                 `json:"assistant,omitempty"`
	Images          *ImageReport                     `json:"images,omitempty"`
	QA              QAReport                         `json:"qa"`
}

// PageCoverage is the fraction of pages that contributed usable text.
func (r *Result) PageCoverage() float64 {
	if r.PageCount == 0 {
		return 0
	}
	return float64(len(r.PageCoverageLog)) / float64(r.PageCount)
}

// HeaderField is one derived header entry: the customer-safe display value
// plus the citations of the underlying field state.
type HeaderField struct {
	Value    string              `json:"value"`
	Evidence []evidence.Evidence `json:"evidence"`
}

// CaseHeader derives the flat headline view from the field states. Values
// are customer-safe strings; internal placeholders never leak.
func (r *Result) CaseHeader() map[string]string {
	return map[string]string{
		"procedure_id": r.displayValue("procedura"),
		"tribunale":    r.displayValue("tribunale"),
		"lotto":        r.displayValue("lotto"),
		"address":      r.displayValue("address"),
	}
}

// ReportHeader derives the cited headline view: the same logical facts as
// CaseHeader, each with its evidence.
func (r *Result) ReportHeader() map[string]HeaderField {
	out := make(map[string]HeaderField, 4)
	names := map[string]string{
		"procedure": "procedura",
		"tribunale": "tribunale",
		"lotto":     "lotto",
		"address":   "address",
	}
	for viewKey, stateKey := range names {
		fs := r.FieldStates[stateKey]
		evs := fs.Evidence
		if evs == nil {
			evs = []evidence.Evidence{}
		}
		out[viewKey] = HeaderField{Value: r.displayValue(stateKey), Evidence: evs}
	}
	return out
}

func (r *Result) displayValue(key string) string {
	fs, ok := r.FieldStates[key]
	if !ok {
		return normalize.Unspecified
	}
	if fs.Status == fieldstate.LowConfidence {
		return normalize.NeedsVerification
	}
	return normalize.Collapse(fs.Value)
}

// MarshalJSON injects the derived header views and the money-box total so
// the wire shape always reflects the current field states.
func (r *Result) MarshalJSON() ([]byte, error) {
	type alias Result
	return json.Marshal(struct {
		*alias
		CaseHeader   map[string]string      `json:"case_header"`
		ReportHeader map[string]HeaderField `json:"report_header"`
		MoneyTotal   string                 `json:"money_box_total"`
	}{
		alias:        (*alias)(r),
		CaseHeader:   r.CaseHeader(),
		ReportHeader: r.ReportHeader(),
		MoneyTotal:   r.MoneyBox.Total(),
	})
}
