package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/nexodify/periscan/internal/app"
	"github.com/nexodify/periscan/internal/fieldstate"
	"github.com/nexodify/periscan/internal/llm"
	"github.com/nexodify/periscan/internal/ocr"
	"github.com/nexodify/periscan/internal/pdfreport"
	"github.com/nexodify/periscan/internal/report"
)

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	var (
		inputPath   string
		outputPath  string
		outputPDF   string
		configPath  string
		llmBaseURL  string
		llmModel    string
		llmKey      string
		ocrBaseURL  string
		offsetMode  string
		cacheDir    string
		cacheMaxAge time.Duration
		cacheStrict bool
		coverage    float64
		minChars    int
		warnLot     bool
		dryRun      bool
		verbose     bool
	)

	flag.StringVar(&inputPath, "input", "", "Path to input document: a PDF (sent to OCR), an hOCR file, or a pages JSON file")
	flag.StringVar(&outputPath, "output", "result.json", "Path to write the analysis result JSON")
	flag.StringVar(&outputPDF, "output.pdf", "", "Optional path to also write a PDF fact sheet")
	flag.StringVar(&configPath, "config", "", "Optional YAML/JSON config file")
	flag.StringVar(&llmBaseURL, "llm.base", os.Getenv("PERISCAN_LLM_BASE_URL"), "OpenAI-compatible base URL")
	flag.StringVar(&llmModel, "llm.model", os.Getenv("PERISCAN_LLM_MODEL"), "Model name")
	flag.StringVar(&llmKey, "llm.key", os.Getenv("PERISCAN_LLM_API_KEY"), "API key for OpenAI-compatible server")
	flag.StringVar(&ocrBaseURL, "ocr.base", os.Getenv("PERISCAN_OCR_BASE_URL"), "OCR service base URL (required for PDF input)")
	flag.StringVar(&offsetMode, "offset.mode", "", "Evidence offset mode: PAGE_LOCAL (default) or DOC_GLOBAL")
	flag.StringVar(&cacheDir, "cache.dir", ".periscan-cache", "Cache directory for extractor responses")
	flag.DurationVar(&cacheMaxAge, "cache.maxAge", 0, "Max age for cache entries before purge (e.g. 24h); 0 disables")
	flag.BoolVar(&cacheStrict, "cache.strictPerms", false, "Restrict cache permissions (0700 dirs, 0600 files)")
	flag.Float64Var(&coverage, "qa.pageCoverage", 0, "Minimum usable page coverage fraction (default 0.95)")
	flag.IntVar(&minChars, "qa.minPageChars", 0, "Characters for a page to count as usable (default 200)")
	flag.BoolVar(&warnLot, "qa.warnUnverifiableLot", false, "WARN when a lot citation contains no lot keyword")
	flag.BoolVar(&dryRun, "dry-run", false, "Classify without calling the model")
	flag.BoolVar(&verbose, "v", false, "Verbose logging")
	flag.Parse()

	if verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	cfg := app.Config{
		LLMBaseURL:            llmBaseURL,
		LLMModel:              llmModel,
		LLMAPIKey:             llmKey,
		OCRBaseURL:            ocrBaseURL,
		CacheDir:              cacheDir,
		CacheMaxAge:           cacheMaxAge,
		CacheStrictPerms:      cacheStrict,
		PageCoverageThreshold: coverage,
		MinPageChars:          minChars,
		WarnOnUnverifiableLot: warnLot,
		OffsetMode:            offsetMode,
		DryRun:                dryRun,
		Verbose:               verbose,
	}
	if configPath != "" {
		fc, err := app.LoadConfigFile(configPath)
		if err != nil {
			log.Fatal().Err(err).Str("path", configPath).Msg("load config file")
		}
		app.ApplyFileConfig(&cfg, fc)
	}
	app.ApplyEnv(&cfg)
	if err := app.ValidateConfig(cfg); err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	if inputPath == "" {
		log.Fatal().Msg("missing -input")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var client llm.Client
	if !cfg.DryRun {
		client = llm.New(cfg.LLMAPIKey, cfg.LLMBaseURL)
	}
	analyzer := app.New(cfg, client, log.Logger)

	res, err := analyze(ctx, analyzer, inputPath)
	if err != nil {
		log.Fatal().Err(err).Msg("analysis failed")
	}

	raw, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		log.Fatal().Err(err).Msg("encode result")
	}
	if err := os.WriteFile(outputPath, raw, 0o644); err != nil {
		log.Fatal().Err(err).Str("path", outputPath).Msg("write result")
	}
	log.Info().Str("path", outputPath).Str("qa", string(res.QA.Status)).Msg("result written")

	if outputPDF != "" {
		if err := pdfreport.WriteFactSheet(res, outputPDF); err != nil {
			log.Fatal().Err(err).Str("path", outputPDF).Msg("write fact sheet")
		}
		log.Info().Str("path", outputPDF).Msg("fact sheet written")
	}

	if res.QA.Status == report.QAFail {
		os.Exit(1)
	}
}

func analyze(ctx context.Context, analyzer *app.Analyzer, inputPath string) (*report.Result, error) {
	name := filepath.Base(inputPath)
	switch strings.ToLower(filepath.Ext(inputPath)) {
	case ".pdf":
		pdf, err := os.ReadFile(inputPath)
		if err != nil {
			return nil, fmt.Errorf("read input: %w", err)
		}
		return analyzer.AnalyzePDF(ctx, name, pdf)
	case ".hocr", ".html":
		f, err := os.Open(inputPath)
		if err != nil {
			return nil, fmt.Errorf("open input: %w", err)
		}
		defer f.Close()
		pages, err := ocr.ParseHOCR(f)
		if err != nil {
			return nil, err
		}
		return analyzer.AnalyzePages(ctx, name, pages)
	default:
		raw, err := os.ReadFile(inputPath)
		if err != nil {
			return nil, fmt.Errorf("read input: %w", err)
		}
		var pages []fieldstate.Page
		if err := json.Unmarshal(raw, &pages); err != nil {
			return nil, fmt.Errorf("input is not a pages JSON array: %w", err)
		}
		return analyzer.AnalyzePages(ctx, name, pages)
	}
}
