package app

import "time"

// Config holds runtime configuration for the analysis service.
type Config struct {
	// LLM
	LLMBaseURL string
	LLMModel   string
	LLMAPIKey  string

	// OCR service
	OCRBaseURL string
	OCRTimeout time.Duration

	// Persistence
	StorePath string

	// Cache
	CacheDir         string
	CacheMaxAge      time.Duration
	CacheStrictPerms bool

	// QA gate
	PageCoverageThreshold float64
	MinPageChars          int
	WarnOnUnverifiableLot bool

	// Evidence offsets: "PAGE_LOCAL" or "DOC_GLOBAL".
	OffsetMode string

	// HTTP API
	ListenAddr string

	// Behavior
	DryRun  bool
	Verbose bool
}
