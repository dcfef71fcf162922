package ocr

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestRecognizeJSONResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/ocr" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/pdf" {
			t.Errorf("content type = %q", ct)
		}
		w.Header().Set("Content-Type", "application/json")
		// Out of order and sparse: the client renumbers densely.
		_, _ = w.Write([]byte(`{"pages":[{"page":5,"text":"second"},{"page":2,"text":"first"}]}`))
	}))
	defer srv.Close()

	c := &Client{BaseURL: srv.URL, MaxAttempts: 1}
	pages, err := c.Recognize(context.Background(), []byte("%PDF-1.4"))
	if err != nil {
		t.Fatalf("Recognize: %v", err)
	}
	if len(pages) != 2 {
		t.Fatalf("got %d pages", len(pages))
	}
	if pages[0].Number != 1 || pages[0].Text != "first" {
		t.Fatalf("page 1 = %+v", pages[0])
	}
	if pages[1].Number != 2 || pages[1].Text != "second" {
		t.Fatalf("page 2 = %+v", pages[1])
	}
}

func TestRecognizeHOCRResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<html><body><div class="ocr_page"><span class="ocrx_line">ciao</span></div></body></html>`))
	}))
	defer srv.Close()

	c := &Client{BaseURL: srv.URL}
	pages, err := c.Recognize(context.Background(), []byte("%PDF-1.4"))
	if err != nil {
		t.Fatalf("Recognize: %v", err)
	}
	if len(pages) != 1 || pages[0].Text != "ciao" {
		t.Fatalf("pages = %+v", pages)
	}
}

func TestRecognizeRetriesTransient(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"pages":[{"page":1,"text":"ok"}]}`))
	}))
	defer srv.Close()

	c := &Client{BaseURL: srv.URL, MaxAttempts: 3}
	pages, err := c.Recognize(context.Background(), nil)
	if err != nil {
		t.Fatalf("Recognize: %v", err)
	}
	if calls != 2 {
		t.Fatalf("calls = %d, want 2", calls)
	}
	if pages[0].Text != "ok" {
		t.Fatalf("pages = %+v", pages)
	}
}

func TestRecognizeClientErrorNotRetried(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	c := &Client{BaseURL: srv.URL, MaxAttempts: 3}
	if _, err := c.Recognize(context.Background(), nil); err == nil {
		t.Fatal("want error")
	}
	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
}

func TestRecognizeRequiresBaseURL(t *testing.T) {
	c := &Client{}
	if _, err := c.Recognize(context.Background(), nil); err == nil {
		t.Fatal("want error for missing base URL")
	}
}
