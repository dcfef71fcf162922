package fieldstate

import (
	"fmt"
	"strings"

	"github.com/nexodify/periscan/internal/evidence"
	"github.com/nexodify/periscan/internal/normalize"
)

// moneyKeys lists the registry fields whose values are monetary amounts.
var moneyKeys = map[string]bool{
	"prezzo_base_asta":             true,
	"spese_condominiali_arretrate": true,
}

// Classifier grounds extractor candidates against the materialized page
// texts and assigns each field its lifecycle status. It holds no mutable
// state after construction and is safe to share across goroutines.
type Classifier struct {
	pages   []Page
	byPage  map[int]string
	mode    evidence.OffsetMode
	docText string
	proof   []evidence.Evidence
}

// NewClassifier prepares a classifier for one document. mode applies to
// every evidence entry the classifier constructs.
func NewClassifier(pages []Page, mode evidence.OffsetMode) *Classifier {
	byPage := make(map[int]string, len(pages))
	parts := make([]string, 0, len(pages))
	for _, p := range pages {
		byPage[p.Number] = p.Text
		parts = append(parts, p.Text)
	}
	c := &Classifier{
		pages:   pages,
		byPage:  byPage,
		mode:    mode,
		docText: strings.Join(parts, "\n"),
	}
	c.proof = SearchProof(pages, mode, c.docText)
	return c
}

// Mode returns the offset mode the classifier stamps on evidence.
func (c *Classifier) Mode() evidence.OffsetMode { return c.mode }

// DocText returns the concatenated document text used for DOC_GLOBAL offsets.
func (c *Classifier) DocText() string { return c.docText }

// Proof returns the precomputed searched_in entries that document where the
// engine looked when a fact was not found.
func (c *Classifier) Proof() []evidence.Evidence { return c.proof }

// Ground locates one anchor in its cited page and returns the immutable
// evidence entry. It fails with *evidence.GroundingError when the quote is
// not present, and with a plain error when the page was never extracted.
func (c *Classifier) Ground(a Anchor) (evidence.Evidence, error) {
	text, ok := c.byPage[a.Page]
	if !ok {
		return evidence.Evidence{}, fmt.Errorf("anchor cites unknown page %d", a.Page)
	}
	if c.mode == evidence.DocGlobal {
		text = c.docText
	}
	return evidence.New(a.Page, a.Quote, text, c.mode)
}

// GroundAll grounds every anchor or fails on the first bad one.
func (c *Classifier) GroundAll(anchors []Anchor) ([]evidence.Evidence, error) {
	out := make([]evidence.Evidence, 0, len(anchors))
	for _, a := range anchors {
		ev, err := c.Ground(a)
		if err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, nil
}

// Classify turns one candidate into a field state. The decision ladder:
//
//	nil / placeholder / unknown shape  -> NOT_FOUND with search proof
//	any anchor fails grounding         -> NOT_FOUND (never accept a fact
//	                                      whose citation does not hold)
//	no anchors, or low-confidence      -> LOW_CONFIDENCE
//	grounded anchors, confident value  -> FOUND
func (c *Classifier) Classify(key string, cand *Candidate) FieldState {
	if cand == nil {
		return c.notFound()
	}
	value, ok := canonicalValue(key, cand.Value)
	if !ok {
		return c.notFound()
	}
	collapsed := normalize.Collapse(value)
	if collapsed == normalize.Unspecified {
		return c.notFound()
	}
	grounded, err := c.GroundAll(cand.Evidence)
	if err != nil {
		return c.notFound()
	}
	lowConf := collapsed == normalize.NeedsVerification ||
		strings.EqualFold(strings.TrimSpace(cand.Confidence), "low")
	if len(grounded) == 0 || lowConf {
		searched := c.proof
		if len(grounded) > 0 {
			searched = grounded
		}
		return FieldState{
			Status:     LowConfidence,
			Value:      value,
			Evidence:   []evidence.Evidence{},
			SearchedIn: searched,
		}
	}
	return FieldState{
		Status:     Found,
		Value:      value,
		Evidence:   grounded,
		SearchedIn: []evidence.Evidence{},
	}
}

// ClassifyAll classifies every registry key, producing the complete
// field-state map a result document requires. Keys with no candidate resolve
// to NOT_FOUND with search proof.
func (c *Classifier) ClassifyAll(cands map[string]*Candidate) map[string]FieldState {
	out := make(map[string]FieldState, len(RequiredKeys()))
	for _, key := range RequiredKeys() {
		out[key] = c.Classify(key, cands[key])
	}
	return out
}

func (c *Classifier) notFound() FieldState {
	return FieldState{
		Status:     NotFound,
		Value:      nil,
		Evidence:   []evidence.Evidence{},
		SearchedIn: c.proof,
	}
}

// canonicalValue resolves the tagged union of candidate value shapes into a
// canonical typed value. ok is false for shapes outside the known union.
func canonicalValue(key string, raw any) (any, bool) {
	switch v := raw.(type) {
	case nil:
		return nil, true
	case string:
		return canonicalScalar(key, v), true
	case float64, float32, int, int64, bool:
		return v, true
	case map[string]any:
		if inner, ok := v["value"]; ok {
			return canonicalValue(key, inner)
		}
		if isAddressShape(v) {
			return normalize.Collapse(v), true
		}
		return nil, false
	case []any:
		for _, item := range v {
			switch item.(type) {
			case string, float64, float32, int, int64, bool, nil:
			default:
				return nil, false
			}
		}
		return normalize.Collapse(v), true
	default:
		return nil, false
	}
}

func canonicalScalar(key, s string) any {
	if key == "lotto" {
		if label, ok := normalize.ParseLotLabel(s); ok {
			return label.String()
		}
		return strings.TrimSpace(s)
	}
	if moneyKeys[key] {
		if f, ok := normalize.ParseMoney(s); ok {
			return f
		}
	}
	return strings.TrimSpace(s)
}

var addressKeys = []string{"full", "street", "number", "city", "province", "postal_code", "cap"}

func isAddressShape(m map[string]any) bool {
	for _, k := range addressKeys {
		if _, ok := m[k]; ok {
			return true
		}
	}
	return false
}
