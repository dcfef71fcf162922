package evidence

import (
	"errors"
	"strings"
	"testing"
)

const pageText = "TRIBUNALE DI MANTOVA\nEsecuzione Immobiliare n. 123/2024\nLOTTO UNICO: appartamento in Via Test 123, Mantova (MN)"

func TestNewGroundsQuote(t *testing.T) {
	ev, err := New(1, "TRIBUNALE DI MANTOVA", pageText, PageLocal)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if ev.Page != 1 || ev.OffsetMode != PageLocal {
		t.Fatalf("unexpected entry: %+v", ev)
	}
	if ev.StartOffset != 0 || ev.EndOffset != len("TRIBUNALE DI MANTOVA") {
		t.Fatalf("offsets = %d..%d", ev.StartOffset, ev.EndOffset)
	}
	if ev.PageTextHash == "" {
		t.Fatal("PAGE_LOCAL evidence must carry page_text_hash")
	}
	if ev.PageTextHash != HashText(pageText) {
		t.Fatal("hash must be computed over the cited page text")
	}
	norm := NormalizeText(pageText)
	if norm[ev.StartOffset:ev.EndOffset] != ev.Quote {
		t.Fatalf("offsets do not slice back to quote: %q", norm[ev.StartOffset:ev.EndOffset])
	}
	if !ev.WellFormed() {
		t.Fatal("constructed evidence must be well formed")
	}
}

// Whitespace differences between the quote and the page must not break
// grounding: both sides are normalized before the substring check.
func TestNewNormalizesWhitespace(t *testing.T) {
	ev, err := New(1, "Esecuzione   Immobiliare\nn. 123/2024", pageText, PageLocal)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if ev.Quote != "Esecuzione Immobiliare n. 123/2024" {
		t.Fatalf("quote not normalized: %q", ev.Quote)
	}
}

func TestNewRejectsUnsupportedQuote(t *testing.T) {
	_, err := New(1, "Tribunale di Roma", pageText, PageLocal)
	var ge *GroundingError
	if !errors.As(err, &ge) {
		t.Fatalf("want GroundingError, got %v", err)
	}
	if ge.Page != 1 || !strings.Contains(ge.Error(), "Tribunale di Roma") {
		t.Fatalf("unexpected error: %v", ge)
	}
}

func TestNewArgumentChecks(t *testing.T) {
	if _, err := New(0, "x", "x", PageLocal); err == nil {
		t.Fatal("page 0 must be rejected")
	}
	if _, err := New(1, "  ", pageText, PageLocal); err == nil {
		t.Fatal("empty quote must be rejected")
	}
	if _, err := New(1, "x", "x", OffsetMode("BOGUS")); err == nil {
		t.Fatal("unknown mode must be rejected")
	}
}

func TestDocGlobalSkipsHash(t *testing.T) {
	ev, err := New(2, "LOTTO UNICO", pageText, DocGlobal)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if ev.PageTextHash != "" {
		t.Fatal("DOC_GLOBAL evidence must not carry a page text hash")
	}
	if !ev.WellFormed() {
		t.Fatal("doc-global evidence must be well formed")
	}
}

func TestWellFormed(t *testing.T) {
	good, _ := New(1, "LOTTO UNICO", pageText, PageLocal)
	cases := []struct {
		name string
		ev   Evidence
		want bool
	}{
		{name: "constructed", ev: good, want: true},
		{name: "zero value", ev: Evidence{}, want: false},
		{name: "missing hash", ev: Evidence{Page: 1, Quote: "q", OffsetMode: PageLocal}, want: false},
		{name: "reversed offsets", ev: Evidence{Page: 1, Quote: "q", StartOffset: 5, EndOffset: 2, OffsetMode: DocGlobal}, want: false},
		{name: "bad mode", ev: Evidence{Page: 1, Quote: "q", OffsetMode: "BOGUS"}, want: false},
	}
	for _, tc := range cases {
		if got := tc.ev.WellFormed(); got != tc.want {
			t.Errorf("%s: WellFormed = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestHashTextStableUnderReflow(t *testing.T) {
	a := HashText("Via Test 123,\nMantova (MN)")
	b := HashText("Via  Test 123, Mantova (MN)")
	if a != b {
		t.Fatal("hash must be stable under whitespace reflow")
	}
}
