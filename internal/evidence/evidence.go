package evidence

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// OffsetMode selects the text the evidence offsets are relative to. A result
// document uses exactly one mode for every evidence entry it carries.
type OffsetMode string

const (
	// PageLocal offsets are relative to the cited page's own text.
	PageLocal OffsetMode = "PAGE_LOCAL"
	// DocGlobal offsets are relative to the concatenated document text.
	DocGlobal OffsetMode = "DOC_GLOBAL"
)

// Valid reports whether m is one of the two known modes.
func (m OffsetMode) Valid() bool { return m == PageLocal || m == DocGlobal }

// Evidence is the provenance primitive attached to any claim: a page number,
// the verbatim quote backing the claim, and where in the page (or document)
// text the quote sits. For PAGE_LOCAL entries PageTextHash pins the page text
// the offsets were computed against, so later re-extraction drift is
// detectable. Evidence is immutable once constructed.
type Evidence struct {
	Page         int        `json:"page"`
	Quote        string     `json:"quote"`
	StartOffset  int        `json:"start_offset"`
	EndOffset    int        `json:"end_offset"`
	OffsetMode   OffsetMode `json:"offset_mode"`
	PageTextHash string     `json:"page_text_hash,omitempty"`
}

// GroundingError reports a quote that could not be located in the text it
// cites, even after whitespace normalization. A candidate fact carrying such
// an entry must be downgraded, never accepted.
type GroundingError struct {
	Page  int
	Quote string
}

func (e *GroundingError) Error() string {
	q := e.Quote
	if len(q) > 80 {
		q = q[:77] + "..."
	}
	return fmt.Sprintf("evidence grounding: quote %q not found in page %d text", q, e.Page)
}

// NormalizeText collapses all whitespace runs to single spaces, trims, and
// applies Unicode NFC so that OCR re-encoding differences (combining accents,
// line wrapping) do not break substring checks.
func NormalizeText(s string) string {
	return norm.NFC.String(strings.Join(strings.Fields(s), " "))
}

// HashText returns the stable hex digest used for page_text_hash. The digest
// is computed over the normalized text, matching the offset space.
func HashText(s string) string {
	sum := sha256.Sum256([]byte(NormalizeText(s)))
	return hex.EncodeToString(sum[:])
}

// New grounds quote against text and constructs an Evidence entry. text is
// the page text for PAGE_LOCAL and the full document text for DOC_GLOBAL.
// Offsets are byte offsets into the normalized form of text. It fails with
// *GroundingError when the normalized quote is not a substring of the
// normalized text, and with a plain error on malformed arguments.
func New(page int, quote, text string, mode OffsetMode) (Evidence, error) {
	if page < 1 {
		return Evidence{}, fmt.Errorf("evidence: page must be >= 1, got %d", page)
	}
	if !mode.Valid() {
		return Evidence{}, fmt.Errorf("evidence: unknown offset mode %q", mode)
	}
	nq := NormalizeText(quote)
	if nq == "" {
		return Evidence{}, fmt.Errorf("evidence: empty quote for page %d", page)
	}
	nt := NormalizeText(text)
	start := strings.Index(nt, nq)
	if start < 0 {
		return Evidence{}, &GroundingError{Page: page, Quote: quote}
	}
	ev := Evidence{
		Page:        page,
		Quote:       nq,
		StartOffset: start,
		EndOffset:   start + len(nq),
		OffsetMode:  mode,
	}
	if mode == PageLocal {
		ev.PageTextHash = HashText(text)
	}
	return ev, nil
}

// WellFormed reports whether the entry satisfies the structural contract:
// 1-based page, non-empty quote, ordered offsets, a known mode, and a page
// text hash whenever the mode is PAGE_LOCAL.
func (e Evidence) WellFormed() bool {
	if e.Page < 1 || strings.TrimSpace(e.Quote) == "" {
		return false
	}
	if e.StartOffset < 0 || e.EndOffset < e.StartOffset {
		return false
	}
	if !e.OffsetMode.Valid() {
		return false
	}
	if e.OffsetMode == PageLocal && e.PageTextHash == "" {
		return false
	}
	return true
}
