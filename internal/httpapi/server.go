// Package httpapi exposes the analysis pipeline over HTTP. Identity is taken
// from the X-User-ID header; history and overrides are scoped to it.
package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/nexodify/periscan/internal/app"
	"github.com/nexodify/periscan/internal/fieldstate"
	"github.com/nexodify/periscan/internal/pdfreport"
	"github.com/nexodify/periscan/internal/report"
	"github.com/nexodify/periscan/internal/store"
)

// maxUploadBytes caps a PDF upload.
const maxUploadBytes = 64 << 20

// Server handles the REST surface.
type Server struct {
	Analyzer *app.Analyzer
	Store    *store.Store
	Log      zerolog.Logger
}

// Router builds the chi router with all routes registered.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(5 * time.Minute))
	r.Use(s.requestLogger)

	r.Get("/api/health", s.handleHealth)
	r.Route("/api/analysis/perizia", func(r chi.Router) {
		r.Post("/", s.handleAnalyze)
		r.Get("/{id}", s.handleGet)
		r.Get("/{id}/pdf", s.handlePDF)
		r.Patch("/{id}/overrides", s.handleOverrides)
	})
	r.Get("/api/history/perizia", s.handleHistory)
	return r
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.Log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("elapsed", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("request")
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// analyzeRequest is the JSON body for pre-materialized page texts. Raw PDF
// uploads use Content-Type application/pdf instead and go through OCR.
type analyzeRequest struct {
	FileName string            `json:"file_name"`
	Pages    []fieldstate.Page `json:"pages"`
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	userID := r.Header.Get("X-User-ID")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "missing X-User-ID header")
		return
	}
	ct := r.Header.Get("Content-Type")

	var (
		fileName string
		pages    []fieldstate.Page
		pdf      []byte
	)
	switch {
	case ct == "application/pdf":
		body, err := io.ReadAll(io.LimitReader(r.Body, maxUploadBytes))
		if err != nil {
			writeError(w, http.StatusBadRequest, "read body: "+err.Error())
			return
		}
		pdf = body
		fileName = r.Header.Get("X-File-Name")
	default:
		var req analyzeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "decode request: "+err.Error())
			return
		}
		fileName = req.FileName
		pages = req.Pages
	}

	var (
		res *report.Result
		err error
	)
	if pdf != nil {
		res, err = s.Analyzer.AnalyzePDF(r.Context(), fileName, pdf)
	} else {
		res, err = s.Analyzer.AnalyzePages(r.Context(), fileName, pages)
	}
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	rec, err := s.Store.SaveAnalysis(r.Context(), userID, fileName, res)
	if err != nil {
		s.Log.Error().Err(err).Msg("save analysis")
		writeError(w, http.StatusInternalServerError, "persist analysis failed")
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	rec, ok := s.loadAnalysis(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handlePDF(w http.ResponseWriter, r *http.Request) {
	rec, ok := s.loadAnalysis(w, r)
	if !ok {
		return
	}
	tmp, err := pdfreport.FactSheetBytes(rec.Result)
	if err != nil {
		s.Log.Error().Err(err).Str("id", rec.ID).Msg("render fact sheet")
		writeError(w, http.StatusInternalServerError, "render failed")
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(tmp)
}

func (s *Server) handleOverrides(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var patch map[string]any
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeError(w, http.StatusBadRequest, "decode patch: "+err.Error())
		return
	}
	rec, err := s.Store.UpdateResult(r.Context(), id, func(res *report.Result) error {
		return s.Analyzer.ApplyOverrides(res, patch)
	})
	if err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			writeError(w, http.StatusNotFound, "analysis not found")
		case errors.Is(err, fieldstate.ErrUnknownField):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			s.Log.Error().Err(err).Str("id", id).Msg("apply overrides")
			writeError(w, http.StatusInternalServerError, "apply overrides failed")
		}
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	userID := r.Header.Get("X-User-ID")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "missing X-User-ID header")
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	list, err := s.Store.ListAnalyses(r.Context(), store.Filter{
		UserID: userID, Limit: limit, Offset: offset,
	})
	if err != nil {
		s.Log.Error().Err(err).Msg("list analyses")
		writeError(w, http.StatusInternalServerError, "list failed")
		return
	}
	if list == nil {
		list = []store.Analysis{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) loadAnalysis(w http.ResponseWriter, r *http.Request) (*store.Analysis, bool) {
	id := chi.URLParam(r, "id")
	rec, err := s.Store.GetAnalysis(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "analysis not found")
		} else {
			s.Log.Error().Err(err).Str("id", id).Msg("load analysis")
			writeError(w, http.StatusInternalServerError, "load failed")
		}
		return nil, false
	}
	return rec, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
