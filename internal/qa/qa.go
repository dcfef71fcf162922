// Package qa runs the fixed validation battery over an assembled result and
// produces the gate verdict. Every check is independent and side-effect-free;
// the battery composition never varies by input, so two results can always be
// compared check by check.
package qa

import (
	"fmt"
	"sort"
	"strings"

	"github.com/nexodify/periscan/internal/crossval"
	"github.com/nexodify/periscan/internal/fieldstate"
	"github.com/nexodify/periscan/internal/normalize"
	"github.com/nexodify/periscan/internal/report"
)

// Check codes, in battery order.
const (
	CheckFieldStateKeys     = "QA-FieldStateKeys"
	CheckPageCoverage       = "QA-PageCoverage"
	CheckMoneyBoxHonesty    = "QA-MoneyBox-Honesty"
	CheckLegalKillerEvid    = "QA-LegalKiller-Evidence"
	CheckHasContext         = "QA-HasContext"
	CheckConfidenceHonesty  = "QA-ConfidenceHonesty"
	CheckSourcesProvided    = "QA-SourcesProvided"
	CheckDisclaimerIncluded = "QA-DisclaimerIncluded"
	CheckEvidenceLocked     = "QA-EvidenceLocked"
	CheckNoHallucination    = "QA-NoHallucination"
	CheckImageCount         = "QA-ImageCount"
)

// Thresholds tunes the gate without changing the battery itself.
type Thresholds struct {
	// PageCoverage is the minimum fraction of pages that must contribute
	// usable text.
	PageCoverage float64 `yaml:"page_coverage"`
	// MinPageChars is the character count at which a page counts as usable.
	// The pipeline applies it while building the coverage log; it is carried
	// here so one config block owns both knobs.
	MinPageChars int `yaml:"min_page_chars"`
	// WarnOnUnverifiableLot escalates a lot citation that contains no lot
	// keyword at all from silent acceptance to a WARN.
	WarnOnUnverifiableLot bool `yaml:"warn_on_unverifiable_lot"`
}

// DefaultThresholds returns the production gate settings.
func DefaultThresholds() Thresholds {
	return Thresholds{PageCoverage: 0.95, MinPageChars: 200}
}

// Gate evaluates the battery. It holds no mutable state and is safe for
// concurrent use.
type Gate struct {
	Thresholds Thresholds
}

// NewGate returns a gate with the given thresholds.
func NewGate(t Thresholds) *Gate { return &Gate{Thresholds: t} }

// Run evaluates every check against res and aggregates the verdict. A result
// missing required field-state keys short-circuits: no downstream check runs
// on a structurally incomplete document.
func (g *Gate) Run(res *report.Result) report.QAReport {
	violations, err := crossval.Run(res)
	if err != nil {
		return report.QAReport{
			Status: report.QAFail,
			Checks: []report.QACheck{{
				Code:   CheckFieldStateKeys,
				Result: report.CheckFail,
				Detail: err.Error(),
			}},
		}
	}

	checks := []report.QACheck{
		g.checkFieldStates(res),
		g.checkPageCoverage(res),
		checkFromViolations(CheckMoneyBoxHonesty, violations, "MoneyBoxHonestyViolation",
			"all money box items are sourced or marked as estimates"),
		checkFromViolations(CheckLegalKillerEvid, violations, "LegalKillerEvidenceViolation",
			"all definitive killer verdicts carry well-formed evidence"),
		g.checkHasContext(res),
		g.checkConfidenceHonesty(res),
		g.checkSourcesProvided(res),
		g.checkDisclaimer(res),
		g.checkEvidenceLocked(res),
		g.checkNoHallucination(res, violations),
		g.checkImageCount(res),
	}
	return report.QAReport{Status: aggregate(checks), Checks: checks}
}

func aggregate(checks []report.QACheck) report.QAStatus {
	status := report.QAPass
	for _, c := range checks {
		switch c.Result {
		case report.CheckFail:
			return report.QAFail
		case report.CheckWarn:
			status = report.QAWarn
		}
	}
	return status
}

// checkFieldStates verifies per-state invariants. Missing keys are already
// excluded by the structural short-circuit; this catches states whose status
// and provenance disagree.
func (g *Gate) checkFieldStates(res *report.Result) report.QACheck {
	keys := make([]string, 0, len(res.FieldStates))
	for k := range res.FieldStates {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fs := res.FieldStates[k]
		if err := fs.Validate(); err != nil {
			return fail(CheckFieldStateKeys, fmt.Sprintf("field %s: %v", k, err))
		}
	}
	return ok(CheckFieldStateKeys, fmt.Sprintf("%d field states present and consistent", len(keys)))
}

func (g *Gate) checkPageCoverage(res *report.Result) report.QACheck {
	if res.PageCount == 0 {
		return fail(CheckPageCoverage, "document has no pages")
	}
	cov := res.PageCoverage()
	detail := fmt.Sprintf("%d/%d pages usable (%.2f, threshold %.2f)",
		len(res.PageCoverageLog), res.PageCount, cov, g.Thresholds.PageCoverage)
	if cov < g.Thresholds.PageCoverage {
		return warn(CheckPageCoverage, detail)
	}
	return ok(CheckPageCoverage, detail)
}

// checkFromViolations projects one crossval violation class onto one check.
func checkFromViolations(code string, violations []crossval.Violation, violationCode, okDetail string) report.QACheck {
	var details []string
	for _, v := range violations {
		if v.Code() == violationCode {
			details = append(details, v.Error())
		}
	}
	if len(details) > 0 {
		return fail(code, strings.Join(details, "; "))
	}
	return ok(code, okDetail)
}

func (g *Gate) checkHasContext(res *report.Result) report.QACheck {
	if res.Assistant == nil {
		return ok(CheckHasContext, "no assistant answer attached")
	}
	if !res.Assistant.HadContext {
		return warn(CheckHasContext, "assistant answered without supporting document context")
	}
	return ok(CheckHasContext, "assistant answer grounded in document context")
}

func (g *Gate) checkConfidenceHonesty(res *report.Result) report.QACheck {
	if res.Assistant == nil {
		return ok(CheckConfidenceHonesty, "no assistant answer attached")
	}
	conf := strings.ToUpper(strings.TrimSpace(res.Assistant.Confidence))
	if (conf == "HIGH" || conf == "MEDIUM") && len(res.Assistant.Sources) == 0 {
		return fail(CheckConfidenceHonesty,
			fmt.Sprintf("confidence %s claimed with zero supporting sources", conf))
	}
	return ok(CheckConfidenceHonesty, "reported confidence matches available sources")
}

func (g *Gate) checkSourcesProvided(res *report.Result) report.QACheck {
	if res.Assistant == nil {
		return ok(CheckSourcesProvided, "no assistant answer attached")
	}
	if res.Assistant.HadContext && len(res.Assistant.Sources) == 0 {
		return fail(CheckSourcesProvided, "context was available but no sources were cited")
	}
	return ok(CheckSourcesProvided, fmt.Sprintf("%d sources cited", len(res.Assistant.Sources)))
}

func (g *Gate) checkDisclaimer(res *report.Result) report.QACheck {
	if res.Assistant == nil {
		return ok(CheckDisclaimerIncluded, "no assistant answer attached")
	}
	if strings.TrimSpace(res.Assistant.DisclaimerIT) == "" {
		return fail(CheckDisclaimerIncluded, "assistant answer is missing the Italian disclaimer")
	}
	return ok(CheckDisclaimerIncluded, "disclaimer present")
}

// checkEvidenceLocked verifies every evidence entry anywhere in the result is
// well formed and uses the document's declared offset mode.
func (g *Gate) checkEvidenceLocked(res *report.Result) report.QACheck {
	var bad []string

	keys := make([]string, 0, len(res.FieldStates))
	for k := range res.FieldStates {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fs := res.FieldStates[k]
		for i, ev := range fs.Evidence {
			if !ev.WellFormed() || ev.OffsetMode != res.OffsetMode {
				bad = append(bad, fmt.Sprintf("field_states.%s.evidence[%d]", k, i))
			}
		}
	}
	for li, lot := range res.Lots {
		for field, evs := range lot.Evidence {
			for i, ev := range evs {
				if !ev.WellFormed() || ev.OffsetMode != res.OffsetMode {
					bad = append(bad, fmt.Sprintf("lots[%d].%s[%d]", li, field, i))
				}
			}
		}
	}
	for _, item := range res.LegalKillers {
		for i, ev := range item.Evidence {
			if !ev.WellFormed() || ev.OffsetMode != res.OffsetMode {
				bad = append(bad, fmt.Sprintf("legal_killers.%s.evidence[%d]", item.Key, i))
			}
		}
	}
	if len(bad) > 0 {
		sort.Strings(bad)
		return fail(CheckEvidenceLocked, "malformed or mixed-mode evidence: "+strings.Join(bad, ", "))
	}
	return ok(CheckEvidenceLocked, fmt.Sprintf("all evidence well formed in mode %s", res.OffsetMode))
}

// checkNoHallucination surfaces values that contradict their own citations.
// Lot disagreements come from cross-validation; an unverifiable lot citation
// (no lot keyword in the quote) is accepted, or escalated to WARN when the
// gate is configured to flag it.
func (g *Gate) checkNoHallucination(res *report.Result, violations []crossval.Violation) report.QACheck {
	var details []string
	for _, v := range violations {
		switch v.Code() {
		case "LotConsistencyViolation", "LotUnicoMismatch":
			details = append(details, v.Error())
		}
	}
	if len(details) > 0 {
		return fail(CheckNoHallucination, strings.Join(details, "; "))
	}
	if g.Thresholds.WarnOnUnverifiableLot {
		if fs, found := res.FieldStates["lotto"]; found &&
			fs.Status == fieldstate.Found && len(fs.Evidence) > 0 {
			if _, parsed := normalize.ParseLotLabel(fs.Evidence[0].Quote); !parsed {
				return warn(CheckNoHallucination,
					"lot evidence quote contains no lot keyword; value cannot be verified")
			}
		}
	}
	return ok(CheckNoHallucination, "no value contradicts its citations")
}

func (g *Gate) checkImageCount(res *report.Result) report.QACheck {
	if res.Images == nil {
		return ok(CheckImageCount, "no image report attached")
	}
	if res.Images.ImageCount < 0 {
		return fail(CheckImageCount, fmt.Sprintf("negative image count %d", res.Images.ImageCount))
	}
	if len(res.Images.Findings) > 0 && res.Images.ImageCount == 0 {
		return fail(CheckImageCount,
			fmt.Sprintf("%d findings reported against zero images", len(res.Images.Findings)))
	}
	return ok(CheckImageCount, fmt.Sprintf("%d images, %d findings",
		res.Images.ImageCount, len(res.Images.Findings)))
}

func ok(code, detail string) report.QACheck {
	return report.QACheck{Code: code, Result: report.CheckOK, Detail: detail}
}

func warn(code, detail string) report.QACheck {
	return report.QACheck{Code: code, Result: report.CheckWarn, Detail: detail}
}

func fail(code, detail string) report.QACheck {
	return report.QACheck{Code: code, Result: report.CheckFail, Detail: detail}
}
