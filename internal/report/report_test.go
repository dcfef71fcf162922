package report

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/nexodify/periscan/internal/evidence"
	"github.com/nexodify/periscan/internal/fieldstate"
	"github.com/nexodify/periscan/internal/normalize"
)

const page1 = "TRIBUNALE DI MANTOVA Esecuzione Immobiliare n. 123/2024 LOTTO UNICO appartamento in Via Test 123, Mantova (MN)"

func mustEvidence(t *testing.T, quote string) evidence.Evidence {
	t.Helper()
	ev, err := evidence.New(1, quote, page1, evidence.PageLocal)
	if err != nil {
		t.Fatalf("evidence.New(%q): %v", quote, err)
	}
	return ev
}

func testResult(t *testing.T) *Result {
	t.Helper()
	empty := []evidence.Evidence{}
	proof := []evidence.Evidence{mustEvidence(t, "TRIBUNALE DI MANTOVA")}
	states := map[string]fieldstate.FieldState{}
	for _, key := range fieldstate.RequiredKeys() {
		states[key] = fieldstate.FieldState{
			Status: fieldstate.NotFound, Evidence: empty, SearchedIn: proof,
		}
	}
	states["tribunale"] = fieldstate.FieldState{
		Status:   fieldstate.Found,
		Value:    "Tribunale di Mantova",
		Evidence: []evidence.Evidence{mustEvidence(t, "TRIBUNALE DI MANTOVA")},
		SearchedIn: empty,
	}
	states["lotto"] = fieldstate.FieldState{
		Status:     fieldstate.LowConfidence,
		Value:      "Lotto Unico",
		Evidence:   empty,
		SearchedIn: proof,
	}
	return &Result{
		SchemaVersion: SchemaVersion,
		Run: Run{
			RunID: "run-1", CaseID: "case-1",
			GeneratedAtUTC: time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC),
			Revision:       1,
		},
		OffsetMode:      evidence.PageLocal,
		PageCount:       2,
		PageCoverageLog: []int{1, 2},
		FieldStates:     states,
	}
}

func TestCaseHeaderDerivation(t *testing.T) {
	res := testResult(t)
	hdr := res.CaseHeader()
	if hdr["tribunale"] != "Tribunale di Mantova" {
		t.Fatalf("tribunale = %q", hdr["tribunale"])
	}
	if hdr["lotto"] != normalize.NeedsVerification {
		t.Fatalf("low-confidence lotto must display %q, got %q", normalize.NeedsVerification, hdr["lotto"])
	}
	if hdr["address"] != normalize.Unspecified {
		t.Fatalf("address = %q", hdr["address"])
	}
}

// Header views are derived on read: an override is visible immediately, with
// no stale mirrored copy anywhere.
func TestHeaderMirrorsOverride(t *testing.T) {
	res := testResult(t)
	if err := fieldstate.ApplyOverride(res.FieldStates, "address", "Via Test 123, Mantova (MN)"); err != nil {
		t.Fatalf("ApplyOverride: %v", err)
	}
	if got := res.CaseHeader()["address"]; got != "Via Test 123, Mantova (MN)" {
		t.Fatalf("case header address = %q", got)
	}
	rh := res.ReportHeader()["address"]
	if rh.Value != "Via Test 123, Mantova (MN)" {
		t.Fatalf("report header address = %q", rh.Value)
	}
	if len(rh.Evidence) != 0 {
		t.Fatal("user-provided field must show no evidence")
	}
}

func TestMoneyBoxTotal(t *testing.T) {
	empty := MoneyBox{}
	if got := empty.Total(); got != normalize.Unspecified {
		t.Fatalf("empty total = %q", got)
	}

	sum := MoneyBox{Items: []MoneyBoxItem{
		{Code: "spese_condominiali", Estimate: 1000.5},
		{Code: "oneri", Estimate: "234,06"},
	}}
	if got := sum.Total(); got != "€ 1.234,56" {
		t.Fatalf("total = %q", got)
	}

	poisoned := MoneyBox{Items: []MoneyBoxItem{
		{Code: "spese_condominiali", Estimate: 1000.5},
		{Code: "oneri", Estimate: "TBD"},
	}}
	if got := poisoned.Total(); got != "TBD" {
		t.Fatalf("poisoned total = %q, want TBD", got)
	}
}

func TestPageCoverage(t *testing.T) {
	res := testResult(t)
	if got := res.PageCoverage(); got != 1.0 {
		t.Fatalf("coverage = %v", got)
	}
	res.PageCoverageLog = []int{1}
	if got := res.PageCoverage(); got != 0.5 {
		t.Fatalf("coverage = %v", got)
	}
	res.PageCount = 0
	if got := res.PageCoverage(); got != 0 {
		t.Fatalf("coverage with no pages = %v", got)
	}
}

func TestMarshalInjectsDerivedViews(t *testing.T) {
	res := testResult(t)
	raw, err := json.Marshal(res)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	s := string(raw)
	for _, want := range []string{
		`"case_header"`,
		`"report_header"`,
		`"money_box_total":"NON SPECIFICATO IN PERIZIA"`,
		`"schema_version":"periscan_perizia_v1"`,
	} {
		if !strings.Contains(s, want) {
			t.Fatalf("marshaled result missing %s:\n%s", want, s)
		}
	}
	if strings.Contains(s, `"evidence":null`) || strings.Contains(s, `"searched_in":null`) {
		t.Fatal("provenance arrays must marshal as [], never null")
	}

	var back map[string]any
	if err := json.Unmarshal(raw, &back); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	hdr, ok := back["case_header"].(map[string]any)
	if !ok || hdr["tribunale"] != "Tribunale di Mantova" {
		t.Fatalf("case_header wrong: %v", back["case_header"])
	}
}

func TestKillerStatusIT(t *testing.T) {
	cases := []struct {
		in   LegalKillerStatus
		want string
	}{
		{KillerYes, "SÌ"},
		{KillerNo, "NO"},
		{KillerVerify, "DA VERIFICARE"},
		{LegalKillerStatus("ALTRO"), "ALTRO"},
	}
	for _, tc := range cases {
		if got := KillerStatusIT(tc.in); got != tc.want {
			t.Errorf("KillerStatusIT(%s) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
