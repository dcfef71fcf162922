package fieldstate

import (
	"strings"
	"testing"

	"github.com/nexodify/periscan/internal/evidence"
	"github.com/nexodify/periscan/internal/normalize"
)

var testPages = []Page{
	{Number: 1, Text: "TRIBUNALE DI MANTOVA Esecuzione Immobiliare n. 123/2024 promossa da Banca Esempio"},
	{Number: 2, Text: "Il presente LOTTO UNICO comprende un appartamento sito in Via Test 123, Mantova (MN) con prezzo base d'asta di € 85.000,00"},
	{Number: 3, Text: "La superficie commerciale complessiva ammonta a 95 mq, diritto di piena proprietà"},
}

func newTestClassifier(t *testing.T) *Classifier {
	t.Helper()
	return NewClassifier(testPages, evidence.PageLocal)
}

func TestClassifyFound(t *testing.T) {
	c := newTestClassifier(t)
	cand := &Candidate{
		Value:    "Tribunale di Mantova",
		Evidence: []Anchor{{Page: 1, Quote: "TRIBUNALE DI MANTOVA"}},
	}
	fs := c.Classify("tribunale", cand)
	if fs.Status != Found {
		t.Fatalf("status = %s, want FOUND", fs.Status)
	}
	if len(fs.Evidence) != 1 || len(fs.SearchedIn) != 0 {
		t.Fatalf("provenance shape wrong: %d evidence, %d searched_in", len(fs.Evidence), len(fs.SearchedIn))
	}
	if err := fs.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestClassifyNilAndPlaceholder(t *testing.T) {
	c := newTestClassifier(t)
	for name, cand := range map[string]*Candidate{
		"nil candidate": nil,
		"nil value":     {Value: nil},
		"placeholder":   {Value: "N/A"},
		"unknown shape": {Value: map[string]any{"weird": true}},
	} {
		fs := c.Classify("tribunale", cand)
		if fs.Status != NotFound {
			t.Fatalf("%s: status = %s, want NOT_FOUND", name, fs.Status)
		}
		if len(fs.SearchedIn) == 0 {
			t.Fatalf("%s: NOT_FOUND must carry searched_in proof", name)
		}
		if err := fs.Validate(); err != nil {
			t.Fatalf("%s: Validate: %v", name, err)
		}
	}
}

// A candidate whose citation does not hold is downgraded entirely: a fact
// with a broken citation is not a fact.
func TestClassifyFailedGrounding(t *testing.T) {
	c := newTestClassifier(t)
	cand := &Candidate{
		Value:    "Tribunale di Roma",
		Evidence: []Anchor{{Page: 1, Quote: "TRIBUNALE DI ROMA"}},
	}
	fs := c.Classify("tribunale", cand)
	if fs.Status != NotFound {
		t.Fatalf("status = %s, want NOT_FOUND", fs.Status)
	}
	if fs.Value != nil {
		t.Fatalf("ungrounded value must not be kept, got %v", fs.Value)
	}
}

func TestClassifyLowConfidence(t *testing.T) {
	c := newTestClassifier(t)

	noAnchors := c.Classify("address", &Candidate{Value: "Via Test 123, Mantova (MN)"})
	if noAnchors.Status != LowConfidence {
		t.Fatalf("no anchors: status = %s, want LOW_CONFIDENCE", noAnchors.Status)
	}
	if len(noAnchors.Evidence) != 0 || len(noAnchors.SearchedIn) == 0 {
		t.Fatal("low-confidence state must carry searched_in, not evidence")
	}

	lowConf := c.Classify("address", &Candidate{
		Value:      "Via Test 123, Mantova (MN)",
		Confidence: "low",
		Evidence:   []Anchor{{Page: 2, Quote: "Via Test 123, Mantova (MN)"}},
	})
	if lowConf.Status != LowConfidence {
		t.Fatalf("low confidence: status = %s", lowConf.Status)
	}
	if err := lowConf.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestClassifyCanonicalizesLotAndMoney(t *testing.T) {
	c := newTestClassifier(t)

	lot := c.Classify("lotto", &Candidate{
		Value:    "il presente LOTTO UNICO comprende",
		Evidence: []Anchor{{Page: 2, Quote: "LOTTO UNICO"}},
	})
	if lot.Value != "Lotto Unico" {
		t.Fatalf("lot value = %v, want Lotto Unico", lot.Value)
	}

	price := c.Classify("prezzo_base_asta", &Candidate{
		Value:    "€ 85.000,00",
		Evidence: []Anchor{{Page: 2, Quote: "prezzo base d'asta di € 85.000,00"}},
	})
	if got, ok := price.Value.(float64); !ok || got != 85000 {
		t.Fatalf("price value = %v, want 85000", price.Value)
	}
}

func TestClassifyAllCoversRegistry(t *testing.T) {
	c := newTestClassifier(t)
	states := c.ClassifyAll(map[string]*Candidate{
		"tribunale": {Value: "Tribunale di Mantova", Evidence: []Anchor{{Page: 1, Quote: "TRIBUNALE DI MANTOVA"}}},
	})
	if len(states) != len(RequiredKeys()) {
		t.Fatalf("got %d states, want %d", len(states), len(RequiredKeys()))
	}
	for _, key := range RequiredKeys() {
		fs, ok := states[key]
		if !ok {
			t.Fatalf("missing key %s", key)
		}
		if err := fs.Validate(); err != nil {
			t.Fatalf("%s: %v", key, err)
		}
	}
	if states["tribunale"].Status != Found {
		t.Fatal("cited field should be FOUND")
	}
	if states["superficie"].Status != NotFound {
		t.Fatal("uncited field should be NOT_FOUND")
	}
}

func TestSearchProof(t *testing.T) {
	proof := SearchProof(testPages, evidence.PageLocal, "")
	if len(proof) == 0 || len(proof) > 3 {
		t.Fatalf("proof size = %d", len(proof))
	}
	for i, ev := range proof {
		if !ev.WellFormed() {
			t.Fatalf("proof[%d] malformed: %+v", i, ev)
		}
		if len(ev.Quote) > 80 {
			t.Fatalf("proof[%d] quote too long: %d", i, len(ev.Quote))
		}
	}
	if proof[0].Page != 1 {
		t.Fatalf("proof starts at page %d", proof[0].Page)
	}
	if !strings.HasPrefix(proof[0].Quote, "TRIBUNALE DI MANTOVA") {
		t.Fatalf("proof quote = %q", proof[0].Quote)
	}
}

func TestCollapseMatchesClassifier(t *testing.T) {
	c := newTestClassifier(t)
	fs := c.Classify("diritto_reale", &Candidate{
		Value:    map[string]any{"value": "piena proprietà"},
		Evidence: []Anchor{{Page: 3, Quote: "piena proprietà"}},
	})
	if fs.Status != Found {
		t.Fatalf("status = %s", fs.Status)
	}
	if got := normalize.Collapse(fs.Value); got != "piena proprietà" {
		t.Fatalf("collapsed value = %q", got)
	}
}
