package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/nexodify/periscan/internal/app"
	"github.com/nexodify/periscan/internal/httpapi"
	"github.com/nexodify/periscan/internal/llm"
	"github.com/nexodify/periscan/internal/store"
)

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	var (
		listenAddr string
		configPath string
		storePath  string
		llmBaseURL string
		llmModel   string
		llmKey     string
		ocrBaseURL string
		cacheDir   string
		verbose    bool
	)
	flag.StringVar(&listenAddr, "listen", ":8085", "HTTP listen address")
	flag.StringVar(&configPath, "config", "", "Optional YAML/JSON config file")
	flag.StringVar(&storePath, "store.path", "periscan.db", "SQLite database path")
	flag.StringVar(&llmBaseURL, "llm.base", os.Getenv("PERISCAN_LLM_BASE_URL"), "OpenAI-compatible base URL")
	flag.StringVar(&llmModel, "llm.model", os.Getenv("PERISCAN_LLM_MODEL"), "Model name")
	flag.StringVar(&llmKey, "llm.key", os.Getenv("PERISCAN_LLM_API_KEY"), "API key for OpenAI-compatible server")
	flag.StringVar(&ocrBaseURL, "ocr.base", os.Getenv("PERISCAN_OCR_BASE_URL"), "OCR service base URL")
	flag.StringVar(&cacheDir, "cache.dir", ".periscan-cache", "Cache directory for extractor responses")
	flag.BoolVar(&verbose, "v", false, "Verbose logging")
	flag.Parse()

	if verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	cfg := app.Config{
		LLMBaseURL: llmBaseURL,
		LLMModel:   llmModel,
		LLMAPIKey:  llmKey,
		OCRBaseURL: ocrBaseURL,
		StorePath:  storePath,
		CacheDir:   cacheDir,
		ListenAddr: listenAddr,
		Verbose:    verbose,
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

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := store.Open(ctx, cfg.StorePath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.StorePath).Msg("open store")
	}
	defer db.Close()

	analyzer := app.New(cfg, llm.New(cfg.LLMAPIKey, cfg.LLMBaseURL), log.Logger)
	server := &httpapi.Server{Analyzer: analyzer, Store: db, Log: log.Logger}

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Info().Str("addr", cfg.ListenAddr).Msg("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("http server")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("shutdown")
	}
}
