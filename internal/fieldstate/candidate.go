package fieldstate

// Candidate shapes mirror the JSON the extractor collaborator emits. The
// extractor is an untrusted producer: nothing here is believed until the
// classifier grounds it against the page texts.

// Anchor is an ungrounded citation proposed by the extractor: a page number
// and a quote that still has to be located in that page's text.
type Anchor struct {
	Page  int    `json:"page"`
	Quote string `json:"quote"`
}

// Candidate is one proposed field value. Value is a tagged union of the
// known shapes: a scalar, a {"value": ...} wrapper, a structured address
// object, or a list of scalars. Anything else is rejected during
// classification rather than best-effort introspected.
type Candidate struct {
	Value      any      `json:"value"`
	Confidence string   `json:"confidence,omitempty"`
	Evidence   []Anchor `json:"evidence,omitempty"`
	SearchedIn []Anchor `json:"searched_in,omitempty"`
}

// SourceCandidate is the proposed document source for a monetary figure.
type SourceCandidate struct {
	Value    any      `json:"value"`
	Evidence []Anchor `json:"evidence,omitempty"`
}

// LotCandidate is one proposed auction lot with per-field citations.
type LotCandidate struct {
	LotNumber string              `json:"lot_number"`
	Price     any                 `json:"prezzo_base_eur"`
	Location  any                 `json:"ubicazione"`
	Area      any                 `json:"superficie_mq"`
	RealRight any                 `json:"diritto_reale"`
	Evidence  map[string][]Anchor `json:"evidence,omitempty"`
}

// MoneyCandidate is one proposed money-box line.
type MoneyCandidate struct {
	Code     string          `json:"code"`
	Label    string          `json:"voce"`
	Estimate any             `json:"stima_euro"`
	Source   SourceCandidate `json:"fonte_perizia"`
	Note     string          `json:"stima_nota"`
}

// KillerCandidate is one proposed legal-killer verdict.
type KillerCandidate struct {
	Key        string   `json:"killer"`
	Status     string   `json:"status"`
	Reason     string   `json:"reason_it"`
	Evidence   []Anchor `json:"evidence,omitempty"`
	SearchedIn []Anchor `json:"searched_in,omitempty"`
}

// CandidateSet is the full extractor payload for one document.
type CandidateSet struct {
	Fields       map[string]*Candidate `json:"fields"`
	Lots         []LotCandidate        `json:"lots,omitempty"`
	MoneyBox     []MoneyCandidate      `json:"money_box,omitempty"`
	LegalKillers []KillerCandidate     `json:"legal_killers,omitempty"`
}
