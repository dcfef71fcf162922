// Package fieldstate implements the per-field status lifecycle that turns
// untrusted extraction candidates into provenance-tagged facts. Every field
// in a result is FOUND with citations, NOT_FOUND or LOW_CONFIDENCE with proof
// of where the engine looked, or USER_PROVIDED after an override.
package fieldstate

import (
	"fmt"
	"strings"

	"github.com/nexodify/periscan/internal/evidence"
)

// Status is the lifecycle state of one extracted field.
type Status string

const (
	Found         Status = "FOUND"
	NotFound      Status = "NOT_FOUND"
	LowConfidence Status = "LOW_CONFIDENCE"
	UserProvided  Status = "USER_PROVIDED"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case Found, NotFound, LowConfidence, UserProvided:
		return true
	}
	return false
}

// FieldState is the provenance-tagged record for one extracted fact.
//
// Invariants, enforced by Validate and preserved by every constructor:
//   - FOUND: at least one evidence entry, searched_in empty
//   - NOT_FOUND / LOW_CONFIDENCE: at least one searched_in entry
//   - USER_PROVIDED: evidence and searched_in both empty; the value's
//     authority is the user, not the document
type FieldState struct {
	Status     Status              `json:"status"`
	Value      any                 `json:"value"`
	Evidence   []evidence.Evidence `json:"evidence"`
	SearchedIn []evidence.Evidence `json:"searched_in"`
}

// Validate checks the status/provenance shape contract for one field.
func (f FieldState) Validate() error {
	if !f.Status.Valid() {
		return fmt.Errorf("field state: invalid status %q", f.Status)
	}
	switch f.Status {
	case Found:
		if len(f.Evidence) == 0 {
			return fmt.Errorf("field state: FOUND without evidence")
		}
		if len(f.SearchedIn) != 0 {
			return fmt.Errorf("field state: FOUND must have empty searched_in")
		}
	case NotFound, LowConfidence:
		if len(f.SearchedIn) == 0 {
			return fmt.Errorf("field state: %s without searched_in proof", f.Status)
		}
	case UserProvided:
		if len(f.Evidence) != 0 || len(f.SearchedIn) != 0 {
			return fmt.Errorf("field state: USER_PROVIDED must carry no document provenance")
		}
	}
	for i, ev := range f.Evidence {
		if !ev.WellFormed() {
			return fmt.Errorf("field state: evidence[%d] malformed", i)
		}
	}
	for i, ev := range f.SearchedIn {
		if !ev.WellFormed() {
			return fmt.Errorf("field state: searched_in[%d] malformed", i)
		}
	}
	return nil
}

// HeadlineKeys are the case-header fields every result must carry.
var HeadlineKeys = []string{"tribunale", "procedura", "lotto", "address"}

// DecisionKeys are the decision-grade fields every result must carry.
var DecisionKeys = []string{
	"prezzo_base_asta",
	"superficie",
	"diritto_reale",
	"stato_occupativo",
	"regolarita_urbanistica",
	"conformita_catastale",
	"spese_condominiali_arretrate",
	"formalita_pregiudizievoli",
}

// RequiredKeys is the full registry of field-state keys that must exist in
// every result document. A missing key is a structural violation.
func RequiredKeys() []string {
	out := make([]string, 0, len(HeadlineKeys)+len(DecisionKeys))
	out = append(out, HeadlineKeys...)
	out = append(out, DecisionKeys...)
	return out
}

// KnownKey reports whether key belongs to the registry.
func KnownKey(key string) bool {
	for _, k := range RequiredKeys() {
		if k == key {
			return true
		}
	}
	return false
}

// Page is one page of already-acquired document text. The engine never
// performs OCR itself; pages arrive fully materialized.
type Page struct {
	Number int    `json:"page_number"`
	Text   string `json:"text"`
}

// maxSearchProofPages caps how many pages a searched_in proof cites.
const maxSearchProofPages = 3

// searchProofQuoteLen is how much page text a searched_in entry quotes.
const searchProofQuoteLen = 80

// SearchProof builds the searched_in entries recorded when a field resolves
// to NOT_FOUND or LOW_CONFIDENCE: a short quote from the head of each page
// the engine scanned, proving where it looked. Pages with no usable text are
// skipped.
func SearchProof(pages []Page, mode evidence.OffsetMode, docText string) []evidence.Evidence {
	out := make([]evidence.Evidence, 0, maxSearchProofPages)
	for _, p := range pages {
		if len(out) >= maxSearchProofPages {
			break
		}
		nt := evidence.NormalizeText(p.Text)
		if nt == "" {
			continue
		}
		quote := nt
		if len(quote) > searchProofQuoteLen {
			quote = truncateOnSpace(quote, searchProofQuoteLen)
		}
		ground := p.Text
		if mode == evidence.DocGlobal {
			ground = docText
		}
		ev, err := evidence.New(p.Number, quote, ground, mode)
		if err != nil {
			continue
		}
		out = append(out, ev)
	}
	return out
}

func truncateOnSpace(s string, n int) string {
	if len(s) <= n {
		return s
	}
	cut := s[:n]
	if i := strings.LastIndexByte(cut, ' '); i > n/2 {
		cut = cut[:i]
	}
	return cut
}
