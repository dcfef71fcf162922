package app

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	yaml "gopkg.in/yaml.v3"

	"github.com/nexodify/periscan/internal/evidence"
)

// FileConfig represents the single-file configuration schema. Nested sections
// map naturally to flags and environment variables.
type FileConfig struct {
	LLM struct {
		BaseURL string `yaml:"base" json:"base"`
		Model   string `yaml:"model" json:"model"`
		APIKey  string `yaml:"key" json:"key"`
	} `yaml:"llm" json:"llm"`

	OCR struct {
		BaseURL string        `yaml:"base" json:"base"`
		Timeout time.Duration `yaml:"timeout" json:"timeout"`
	} `yaml:"ocr" json:"ocr"`

	Store struct {
		Path string `yaml:"path" json:"path"`
	} `yaml:"store" json:"store"`

	Cache struct {
		Dir         string        `yaml:"dir" json:"dir"`
		MaxAge      time.Duration `yaml:"maxAge" json:"maxAge"`
		StrictPerms bool          `yaml:"strictPerms" json:"strictPerms"`
	} `yaml:"cache" json:"cache"`

	QA struct {
		PageCoverage          float64 `yaml:"pageCoverage" json:"pageCoverage"`
		MinPageChars          int     `yaml:"minPageChars" json:"minPageChars"`
		WarnOnUnverifiableLot bool    `yaml:"warnOnUnverifiableLot" json:"warnOnUnverifiableLot"`
	} `yaml:"qa" json:"qa"`

	OffsetMode string `yaml:"offsetMode" json:"offsetMode"`
	Listen     string `yaml:"listen" json:"listen"`
	DryRun     bool   `yaml:"dryRun" json:"dryRun"`
	Verbose    bool   `yaml:"verbose" json:"verbose"`
}

// LoadConfigFile reads YAML or JSON into FileConfig.
func LoadConfigFile(path string) (FileConfig, error) {
	var fc FileConfig
	b, err := os.ReadFile(path)
	if err != nil {
		return fc, err
	}
	switch filepath.Ext(path) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &fc); err != nil {
			return fc, fmt.Errorf("parse yaml: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(b, &fc); err != nil {
			return fc, fmt.Errorf("parse json: %w", err)
		}
	default:
		if err := yaml.Unmarshal(b, &fc); err != nil {
			if jerr := json.Unmarshal(b, &fc); jerr != nil {
				return fc, fmt.Errorf("parse config: %v (yaml) / %v (json)", err, jerr)
			}
		}
	}
	return fc, nil
}

// ApplyFileConfig overlays values from FileConfig into cfg for any fields
// that are currently unset in cfg. Flags should already have been parsed;
// this lets file config supply defaults while preserving explicit flags.
func ApplyFileConfig(cfg *Config, fc FileConfig) {
	if cfg == nil {
		return
	}
	if cfg.LLMBaseURL == "" && fc.LLM.BaseURL != "" {
		cfg.LLMBaseURL = fc.LLM.BaseURL
	}
	if cfg.LLMModel == "" && fc.LLM.Model != "" {
		cfg.LLMModel = fc.LLM.Model
	}
	if cfg.LLMAPIKey == "" && fc.LLM.APIKey != "" {
		cfg.LLMAPIKey = fc.LLM.APIKey
	}
	if cfg.OCRBaseURL == "" && fc.OCR.BaseURL != "" {
		cfg.OCRBaseURL = fc.OCR.BaseURL
	}
	if cfg.OCRTimeout == 0 && fc.OCR.Timeout > 0 {
		cfg.OCRTimeout = fc.OCR.Timeout
	}
	if cfg.StorePath == "" && fc.Store.Path != "" {
		cfg.StorePath = fc.Store.Path
	}
	if cfg.CacheDir == "" && fc.Cache.Dir != "" {
		cfg.CacheDir = fc.Cache.Dir
	}
	if cfg.CacheMaxAge == 0 && fc.Cache.MaxAge > 0 {
		cfg.CacheMaxAge = fc.Cache.MaxAge
	}
	if !cfg.CacheStrictPerms && fc.Cache.StrictPerms {
		cfg.CacheStrictPerms = true
	}
	if cfg.PageCoverageThreshold == 0 && fc.QA.PageCoverage > 0 {
		cfg.PageCoverageThreshold = fc.QA.PageCoverage
	}
	if cfg.MinPageChars == 0 && fc.QA.MinPageChars > 0 {
		cfg.MinPageChars = fc.QA.MinPageChars
	}
	if !cfg.WarnOnUnverifiableLot && fc.QA.WarnOnUnverifiableLot {
		cfg.WarnOnUnverifiableLot = true
	}
	if cfg.OffsetMode == "" && fc.OffsetMode != "" {
		cfg.OffsetMode = fc.OffsetMode
	}
	if cfg.ListenAddr == "" && fc.Listen != "" {
		cfg.ListenAddr = fc.Listen
	}
	if !cfg.DryRun && fc.DryRun {
		cfg.DryRun = true
	}
	if !cfg.Verbose && fc.Verbose {
		cfg.Verbose = true
	}
}

// ApplyEnv overlays environment variables into unset fields. Explicit flags
// and file config win over the environment for everything except secrets,
// which the environment may always supply.
func ApplyEnv(cfg *Config) {
	if cfg == nil {
		return
	}
	if v := os.Getenv("PERISCAN_LLM_API_KEY"); v != "" && cfg.LLMAPIKey == "" {
		cfg.LLMAPIKey = v
	}
	if v := os.Getenv("PERISCAN_LLM_BASE_URL"); v != "" && cfg.LLMBaseURL == "" {
		cfg.LLMBaseURL = v
	}
	if v := os.Getenv("PERISCAN_LLM_MODEL"); v != "" && cfg.LLMModel == "" {
		cfg.LLMModel = v
	}
	if v := os.Getenv("PERISCAN_OCR_BASE_URL"); v != "" && cfg.OCRBaseURL == "" {
		cfg.OCRBaseURL = v
	}
}

// ValidateConfig performs minimal schema validation for required settings.
// For dry-run, LLM settings may be omitted.
func ValidateConfig(cfg Config) error {
	if !cfg.DryRun && cfg.LLMModel == "" {
		return errors.New("config: llm.model is required (or set PERISCAN_LLM_MODEL)")
	}
	if cfg.PageCoverageThreshold < 0 || cfg.PageCoverageThreshold > 1 {
		return errors.New("config: qa.pageCoverage must be within [0,1]")
	}
	if cfg.MinPageChars < 0 {
		return errors.New("config: qa.minPageChars must not be negative")
	}
	if cfg.OffsetMode != "" && !evidence.OffsetMode(cfg.OffsetMode).Valid() {
		return fmt.Errorf("config: unknown offset mode %q", cfg.OffsetMode)
	}
	return nil
}
