// Package app wires the collaborators into the document analysis pipeline:
// OCR, candidate extraction, field classification, cross-validation and the
// QA gate. Each Analyze call is a self-contained sequential run over its own
// result document, so one Analyzer serves concurrent requests.
package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/nexodify/periscan/internal/cache"
	"github.com/nexodify/periscan/internal/evidence"
	"github.com/nexodify/periscan/internal/extractor"
	"github.com/nexodify/periscan/internal/fieldstate"
	"github.com/nexodify/periscan/internal/llm"
	"github.com/nexodify/periscan/internal/normalize"
	"github.com/nexodify/periscan/internal/ocr"
	"github.com/nexodify/periscan/internal/qa"
	"github.com/nexodify/periscan/internal/report"
)

// Analyzer runs the analysis pipeline.
type Analyzer struct {
	cfg  Config
	ocr  *ocr.Client
	ext  *extractor.Extractor
	gate *qa.Gate
	log  zerolog.Logger
}

// New builds an analyzer from configuration. client may be nil for dry runs;
// the pipeline then classifies with no candidate input.
func New(cfg Config, client llm.Client, log zerolog.Logger) *Analyzer {
	a := &Analyzer{cfg: cfg, log: log}

	thresholds := qa.DefaultThresholds()
	if cfg.PageCoverageThreshold > 0 {
		thresholds.PageCoverage = cfg.PageCoverageThreshold
	}
	if cfg.MinPageChars > 0 {
		thresholds.MinPageChars = cfg.MinPageChars
	}
	thresholds.WarnOnUnverifiableLot = cfg.WarnOnUnverifiableLot
	a.gate = qa.NewGate(thresholds)

	if cfg.OCRBaseURL != "" {
		a.ocr = &ocr.Client{
			BaseURL:           cfg.OCRBaseURL,
			UserAgent:         "periscan/1.0",
			MaxAttempts:       3,
			PerRequestTimeout: cfg.OCRTimeout,
		}
	}
	if client != nil {
		var c *cache.Cache
		if cfg.CacheDir != "" {
			c = &cache.Cache{Dir: cfg.CacheDir, StrictPerms: cfg.CacheStrictPerms}
			if err := c.PurgeOlderThan(cfg.CacheMaxAge); err != nil {
				log.Warn().Err(err).Msg("cache purge failed")
			}
		}
		a.ext = &extractor.Extractor{
			Client: client,
			Cache:  c,
			Model:  cfg.LLMModel,
			Log:    log,
		}
	}
	return a
}

// OffsetMode resolves the configured evidence offset mode.
func (a *Analyzer) OffsetMode() evidence.OffsetMode {
	if m := evidence.OffsetMode(a.cfg.OffsetMode); m.Valid() {
		return m
	}
	return evidence.PageLocal
}

// AnalyzePDF runs OCR on the document bytes and analyzes the resulting pages.
func (a *Analyzer) AnalyzePDF(ctx context.Context, fileName string, pdf []byte) (*report.Result, error) {
	if a.ocr == nil {
		return nil, fmt.Errorf("analyze: no OCR service configured")
	}
	pages, err := a.ocr.Recognize(ctx, pdf)
	if err != nil {
		return nil, fmt.Errorf("analyze: ocr: %w", err)
	}
	return a.AnalyzePages(ctx, fileName, pages)
}

// AnalyzePages analyzes already-materialized page texts. Extraction failure
// is not fatal: the pipeline proceeds with no candidates and every field
// honestly reports NOT_FOUND with search proof.
func (a *Analyzer) AnalyzePages(ctx context.Context, fileName string, pages []fieldstate.Page) (*report.Result, error) {
	if len(pages) == 0 {
		return nil, fmt.Errorf("analyze: document has no pages")
	}
	mode := a.OffsetMode()
	classifier := fieldstate.NewClassifier(pages, mode)

	var cands fieldstate.CandidateSet
	if a.ext != nil && !a.cfg.DryRun {
		set, err := a.ext.Extract(ctx, pages)
		if err != nil {
			a.log.Warn().Err(err).Str("file", fileName).
				Msg("extraction failed; classifying with no candidates")
		} else {
			cands = set
		}
	}

	res := &report.Result{
		SchemaVersion: report.SchemaVersion,
		Run: report.Run{
			RunID:          uuid.New().String(),
			CaseID:         uuid.New().String(),
			GeneratedAtUTC: time.Now().UTC(),
			Revision:       1,
		},
		FileName:        fileName,
		OffsetMode:      mode,
		PageCount:       len(pages),
		PageCoverageLog: a.coverageLog(pages),
		FieldStates:     classifier.ClassifyAll(cands.Fields),
		Lots:            a.assembleLots(classifier, cands.Lots),
		MoneyBox:        a.assembleMoneyBox(classifier, cands.MoneyBox),
		LegalKillers:    a.assembleKillers(classifier, cands.LegalKillers),
	}
	res.QA = a.gate.Run(res)

	a.log.Info().
		Str("file", fileName).
		Str("run_id", res.Run.RunID).
		Int("pages", res.PageCount).
		Int("usable_pages", len(res.PageCoverageLog)).
		Str("qa", string(res.QA.Status)).
		Msg("analysis completed")
	return res, nil
}

// ApplyOverrides applies a patch of field overrides and re-runs the gate so
// the stored verdict always matches the current field states.
func (a *Analyzer) ApplyOverrides(res *report.Result, patch map[string]any) error {
	if len(patch) == 0 {
		return fmt.Errorf("override: empty patch")
	}
	for key, value := range patch {
		if err := fieldstate.ApplyOverride(res.FieldStates, key, value); err != nil {
			return err
		}
	}
	res.QA = a.gate.Run(res)
	return nil
}

// coverageLog lists the pages contributing usable text.
func (a *Analyzer) coverageLog(pages []fieldstate.Page) []int {
	min := a.gate.Thresholds.MinPageChars
	log := make([]int, 0, len(pages))
	for _, p := range pages {
		if len(strings.TrimSpace(p.Text)) >= min {
			log = append(log, p.Number)
		}
	}
	return log
}

func (a *Analyzer) assembleLots(c *fieldstate.Classifier, cands []fieldstate.LotCandidate) []report.Lot {
	lots := make([]report.Lot, 0, len(cands))
	for _, lc := range cands {
		lot := report.Lot{
			LotNumber: canonicalLot(lc.LotNumber),
			Price:     lc.Price,
			Location:  strings.TrimSpace(fmt.Sprint(orEmpty(lc.Location))),
			Area:      lc.Area,
			RealRight: strings.TrimSpace(fmt.Sprint(orEmpty(lc.RealRight))),
			Evidence:  map[string][]evidence.Evidence{},
		}
		for field, anchors := range lc.Evidence {
			grounded, err := c.GroundAll(anchors)
			if err != nil {
				// An anchor that does not hold is dropped, never presented.
				a.log.Warn().Err(err).Str("lot", lot.LotNumber).Str("field", field).
					Msg("lot evidence failed grounding")
				continue
			}
			lot.Evidence[field] = grounded
		}
		lots = append(lots, lot)
	}
	return lots
}

func (a *Analyzer) assembleMoneyBox(c *fieldstate.Classifier, cands []fieldstate.MoneyCandidate) report.MoneyBox {
	box := report.MoneyBox{Items: make([]report.MoneyBoxItem, 0, len(cands))}
	for _, mc := range cands {
		item := report.MoneyBoxItem{
			Code:     mc.Code,
			Label:    mc.Label,
			Estimate: mc.Estimate,
			Note:     mc.Note,
			Source: report.SourceRef{
				Value:    mc.Source.Value,
				Evidence: []evidence.Evidence{},
			},
		}
		grounded, err := c.GroundAll(mc.Source.Evidence)
		if err != nil {
			a.log.Warn().Err(err).Str("item", mc.Code).
				Msg("money box source evidence failed grounding")
		} else {
			item.Source.Evidence = grounded
		}
		box.Items = append(box.Items, item)
	}
	return box
}

// assembleKillers grounds each verdict's citations. A definitive SI/NO whose
// evidence does not hold is downgraded to DA_VERIFICARE rather than asserted
// without proof.
func (a *Analyzer) assembleKillers(c *fieldstate.Classifier, cands []fieldstate.KillerCandidate) []report.LegalKillerItem {
	items := make([]report.LegalKillerItem, 0, len(cands))
	for _, kc := range cands {
		status := parseKillerStatus(kc.Status)
		item := report.LegalKillerItem{
			Key:        kc.Key,
			Status:     status,
			Reason:     kc.Reason,
			Evidence:   []evidence.Evidence{},
			SearchedIn: []evidence.Evidence{},
		}
		grounded, err := c.GroundAll(kc.Evidence)
		switch {
		case err != nil && (status == report.KillerYes || status == report.KillerNo):
			a.log.Warn().Err(err).Str("killer", kc.Key).
				Msg("killer evidence failed grounding; downgrading to DA_VERIFICARE")
			item.Status = report.KillerVerify
		case err == nil:
			item.Evidence = grounded
		}
		if item.Status == report.KillerVerify {
			item.Evidence = []evidence.Evidence{}
			searched, err := c.GroundAll(kc.SearchedIn)
			if err != nil || len(searched) == 0 {
				searched = c.Proof()
			}
			item.SearchedIn = searched
		}
		item.StatusIT = report.KillerStatusIT(item.Status)
		items = append(items, item)
	}
	return items
}

func parseKillerStatus(s string) report.LegalKillerStatus {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "SI", "SÌ", "YES":
		return report.KillerYes
	case "NO":
		return report.KillerNo
	}
	return report.KillerVerify
}

func canonicalLot(s string) string {
	if label, ok := normalize.ParseLotLabel(s); ok {
		return label.String()
	}
	return strings.TrimSpace(s)
}

func orEmpty(v any) any {
	if v == nil {
		return ""
	}
	return v
}
