package ocr

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/nexodify/periscan/internal/fieldstate"
)

// Client talks to an OCR service that turns an uploaded PDF into per-page
// text. The service may answer with a JSON page list or with an hOCR
// document; both are accepted.
type Client struct {
	HTTPClient *http.Client
	BaseURL    string
	UserAgent  string
	// MaxAttempts includes the initial attempt. Minimum 1.
	MaxAttempts int
	// PerRequestTimeout bounds each request.
	PerRequestTimeout time.Duration
}

type jsonPage struct {
	Page int    `json:"page"`
	Text string `json:"text"`
}

type jsonResponse struct {
	Pages []jsonPage `json:"pages"`
}

// Recognize uploads the document bytes and returns the materialized pages,
// sorted and numbered from 1. Transient failures are retried with a short
// linear backoff.
func (c *Client) Recognize(ctx context.Context, pdf []byte) ([]fieldstate.Page, error) {
	if c.BaseURL == "" {
		return nil, errors.New("ocr: base URL not configured")
	}
	attempts := c.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	var lastErr error
	for i := 0; i < attempts; i++ {
		pages, err := c.tryOnce(ctx, pdf)
		if err == nil {
			return pages, nil
		}
		if !isTransient(err) || i == attempts-1 {
			return nil, err
		}
		lastErr = err
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Duration(i+1) * 200 * time.Millisecond):
		}
	}
	return nil, lastErr
}

func (c *Client) tryOnce(ctx context.Context, pdf []byte) ([]fieldstate.Page, error) {
	if c.PerRequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.PerRequestTimeout)
		defer cancel()
	}
	url := strings.TrimRight(c.BaseURL, "/") + "/ocr"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(pdf))
	if err != nil {
		return nil, fmt.Errorf("ocr: new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/pdf")
	if c.UserAgent != "" {
		req.Header.Set("User-Agent", c.UserAgent)
	}
	client := c.HTTPClient
	if client == nil {
		client = &http.Client{}
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ocr: request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, &statusError{Code: resp.StatusCode}
	}
	ct := resp.Header.Get("Content-Type")
	if strings.Contains(ct, "html") {
		return ParseHOCR(resp.Body)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("ocr: read response: %w", err)
	}
	var parsed jsonResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("ocr: decode response: %w", err)
	}
	return normalizePages(parsed.Pages)
}

// normalizePages sorts by page number and renumbers densely from 1 so a
// service that skips blank pages still yields a contiguous document.
func normalizePages(in []jsonPage) ([]fieldstate.Page, error) {
	if len(in) == 0 {
		return nil, errors.New("ocr: service returned no pages")
	}
	sort.Slice(in, func(i, j int) bool { return in[i].Page < in[j].Page })
	out := make([]fieldstate.Page, 0, len(in))
	for i, p := range in {
		out = append(out, fieldstate.Page{Number: i + 1, Text: p.Text})
	}
	return out, nil
}

type statusError struct {
	Code int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("ocr: service returned status %d", e.Code)
}

func isTransient(err error) bool {
	var se *statusError
	if errors.As(err, &se) {
		return se.Code == http.StatusTooManyRequests || se.Code >= 500
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	return errors.Is(err, io.ErrUnexpectedEOF)
}
