package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// noiseSelector lists elements dropped before conversion
const noiseSelector = "nav, footer, header, script, style, noscript, aside, form, iframe"

// contentSelectors are tried in order; the first match is converted
var contentSelectors = []string{"article", "main", "[role='main']", "body"}

type crawlRequest struct {
	URL string `json:"url"`
}

type crawlResponse struct {
	URL      string `json:"url,omitempty"`
	Markdown string `json:"markdown,omitempty"`
	Error    string `json:"error,omitempty"`
	Success  bool   `json:"success"`
}

// ExtractionServer is a local stand-in for the crawling service: it fetches a
// page and answers with its main content as markdown
type ExtractionServer struct {
	client   *http.Client
	timeout  time.Duration
	maxBytes int64
}

// NewExtractionServer creates a server whose upstream fetches are bounded by
// timeout and maxBytes
func NewExtractionServer(timeout time.Duration, maxBytes int64) *ExtractionServer {
	return &ExtractionServer{
		client:   &http.Client{},
		timeout:  timeout,
		maxBytes: maxBytes,
	}
}

// Routes returns the HTTP handler serving /crawl and /health
func (s *ExtractionServer) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	if debugEnabled {
		r.Use(middleware.Logger)
	}

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Post("/crawl", s.handleCrawl)

	return r
}

func (s *ExtractionServer) handleCrawl(w http.ResponseWriter, r *http.Request) {
	var req crawlRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 64*1024)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, crawlResponse{Error: "invalid JSON body: " + err.Error()})
		return
	}

	pageURL, err := parsePageURL(req.URL)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, crawlResponse{URL: req.URL, Error: err.Error()})
		return
	}

	markdown, err := s.Extract(r.Context(), pageURL)
	if err != nil {
		log.Printf("✗ Extraction failed for %s: %v", req.URL, err)
		writeJSON(w, http.StatusBadGateway, crawlResponse{URL: req.URL, Error: err.Error()})
		return
	}

	debugLog("extracted %s (%d chars)", req.URL, len(markdown))
	writeJSON(w, http.StatusOK, crawlResponse{URL: req.URL, Markdown: markdown, Success: true})
}

// Extract fetches pageURL and converts its main content to markdown
func (s *ExtractionServer) Extract(ctx context.Context, pageURL *url.URL) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL.String(), nil)
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", "news-collector/1.0 (+extraction)")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetching %s: %w", pageURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", &HTTPError{StatusCode: resp.StatusCode, URL: pageURL.String()}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, s.maxBytes))
	if err != nil {
		return "", fmt.Errorf("reading response body: %w", err)
	}

	return extractMarkdown(body, pageURL.Host)
}

// extractMarkdown strips noise from an HTML document and converts the first
// matching content container to markdown. Relative links resolve against domain.
func extractMarkdown(html []byte, domain string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return "", fmt.Errorf("parsing HTML: %w", err)
	}

	doc.Find(noiseSelector).Remove()

	selection := doc.Selection
	for _, selector := range contentSelectors {
		if found := doc.Find(selector); found.Length() > 0 {
			selection = found.First()
			break
		}
	}

	converter := md.NewConverter(domain, true, nil)
	return strings.TrimSpace(converter.Convert(selection)), nil
}

func parsePageURL(raw string) (*url.URL, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, fmt.Errorf("url is required")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid url: unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("invalid url: missing host")
	}
	return u, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		debugLog("writing response: %v", err)
	}
}
