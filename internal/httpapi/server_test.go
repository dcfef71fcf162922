package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"github.com/nexodify/periscan/internal/app"
	"github.com/nexodify/periscan/internal/fieldstate"
	"github.com/nexodify/periscan/internal/report"
	"github.com/nexodify/periscan/internal/store"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	db, err := store.Open(context.Background(), filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	analyzer := app.New(app.Config{DryRun: true}, nil, zerolog.Nop())
	return &Server{Analyzer: analyzer, Store: db, Log: zerolog.Nop()}
}

func pageText(seed string) string {
	for len(seed) < 250 {
		seed += " Il fabbricato insiste su un terreno pianeggiante."
	}
	return seed
}

func analyzeBody(t *testing.T) *bytes.Buffer {
	t.Helper()
	req := analyzeRequest{
		FileName: "perizia.pdf",
		Pages: []fieldstate.Page{
			{Number: 1, Text: pageText("TRIBUNALE DI MANTOVA Esecuzione Immobiliare n. 123/2024")},
			{Number: 2, Text: pageText("LOTTO UNICO in Via Test 123, Mantova (MN)")},
		},
	}
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(req); err != nil {
		t.Fatalf("encode: %v", err)
	}
	return &buf
}

func TestHealth(t *testing.T) {
	srv := httptest.NewServer(newTestServer(t).Router())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/health")
	if err != nil {
		t.Fatalf("GET health: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}

func TestAnalyzeGetPatchFlow(t *testing.T) {
	srv := httptest.NewServer(newTestServer(t).Router())
	defer srv.Close()
	client := srv.Client()

	// Analyze.
	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/api/analysis/perizia", analyzeBody(t))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-User-ID", "user-1")
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("POST analyze: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("analyze status = %d", resp.StatusCode)
	}
	var rec store.Analysis
	if err := json.NewDecoder(resp.Body).Decode(&rec); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if rec.ID == "" || rec.Result == nil {
		t.Fatalf("record = %+v", rec)
	}

	// Read back.
	getResp, err := client.Get(srv.URL + "/api/analysis/perizia/" + rec.ID)
	if err != nil {
		t.Fatalf("GET analysis: %v", err)
	}
	defer getResp.Body.Close()
	if getResp.StatusCode != http.StatusOK {
		t.Fatalf("get status = %d", getResp.StatusCode)
	}

	// Patch an override and verify the transition and the revision bump.
	patch := bytes.NewBufferString(`{"address":"Via Test 123, Mantova (MN)"}`)
	patchReq, _ := http.NewRequest(http.MethodPatch, srv.URL+"/api/analysis/perizia/"+rec.ID+"/overrides", patch)
	patchReq.Header.Set("Content-Type", "application/json")
	patchResp, err := client.Do(patchReq)
	if err != nil {
		t.Fatalf("PATCH overrides: %v", err)
	}
	defer patchResp.Body.Close()
	if patchResp.StatusCode != http.StatusOK {
		t.Fatalf("patch status = %d", patchResp.StatusCode)
	}
	var patched store.Analysis
	if err := json.NewDecoder(patchResp.Body).Decode(&patched); err != nil {
		t.Fatalf("decode patch: %v", err)
	}
	if patched.Revision != 2 {
		t.Fatalf("revision = %d", patched.Revision)
	}
	fs := patched.Result.FieldStates["address"]
	if fs.Status != fieldstate.UserProvided || fs.Value != "Via Test 123, Mantova (MN)" {
		t.Fatalf("address state = %+v", fs)
	}

	// History for the user.
	histReq, _ := http.NewRequest(http.MethodGet, srv.URL+"/api/history/perizia", nil)
	histReq.Header.Set("X-User-ID", "user-1")
	histResp, err := client.Do(histReq)
	if err != nil {
		t.Fatalf("GET history: %v", err)
	}
	defer histResp.Body.Close()
	var list []store.Analysis
	if err := json.NewDecoder(histResp.Body).Decode(&list); err != nil {
		t.Fatalf("decode history: %v", err)
	}
	if len(list) != 1 || list[0].ID != rec.ID {
		t.Fatalf("history = %+v", list)
	}
}

func TestAnalyzeRequiresUser(t *testing.T) {
	srv := httptest.NewServer(newTestServer(t).Router())
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/api/analysis/perizia", "application/json", analyzeBody(t))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestPatchUnknownFieldRejected(t *testing.T) {
	ts := newTestServer(t)
	srv := httptest.NewServer(ts.Router())
	defer srv.Close()

	rec, err := ts.Store.SaveAnalysis(context.Background(), "user-1", "a.pdf", mustAnalyze(t, ts))
	if err != nil {
		t.Fatalf("SaveAnalysis: %v", err)
	}
	patch := bytes.NewBufferString(`{"colore_preferito":"blu"}`)
	req, _ := http.NewRequest(http.MethodPatch, srv.URL+"/api/analysis/perizia/"+rec.ID+"/overrides", patch)
	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("PATCH: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestGetMissingAnalysis(t *testing.T) {
	srv := httptest.NewServer(newTestServer(t).Router())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/analysis/perizia/does-not-exist")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
}

func mustAnalyze(t *testing.T, s *Server) *report.Result {
	t.Helper()
	res, err := s.Analyzer.AnalyzePages(context.Background(), "a.pdf", []fieldstate.Page{
		{Number: 1, Text: pageText("TRIBUNALE DI MANTOVA")},
	})
	if err != nil {
		t.Fatalf("AnalyzePages: %v", err)
	}
	return res
}
