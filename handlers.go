package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"mime"
	"net"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/net/html/charset"
)

// HTTPError represents an HTTP error with status code
type HTTPError struct {
	StatusCode int
	URL        string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d for %s", e.StatusCode, e.URL)
}

// DecodeError reports a response body that could not be interpreted
type DecodeError struct {
	URL   string
	Cause error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decoding response from %s: %v", e.URL, e.Cause)
}

func (e *DecodeError) Unwrap() error {
	return e.Cause
}

// SourceHandler fetches the text of the sources it accepts
type SourceHandler interface {
	CanHandle(src Source) bool
	Handle(ctx context.Context, client *http.Client, src Source) (string, error)
}

var debugEnabled bool

// SetDebugMode enables or disables debug logging
func SetDebugMode(enabled bool) {
	debugEnabled = enabled
}

func debugLog(format string, args ...interface{}) {
	if debugEnabled {
		log.Printf("[DEBUG] "+format, args...)
	}
}

// FeedHandler fetches feed sources with a direct GET and keeps the raw body
type FeedHandler struct {
	Timeout  time.Duration
	MaxChars int
	MaxBytes int64
}

func (h *FeedHandler) CanHandle(src Source) bool {
	return src.Kind == KindFeed
}

// Handle returns the first MaxChars characters of the body. The status code
// is not inspected: whatever the server answered is the payload.
func (h *FeedHandler) Handle(ctx context.Context, client *http.Client, src Source) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, h.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src.URL, nil)
	if err != nil {
		return "", fmt.Errorf("creating request for %s: %w", src.URL, err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	debugLog("%s: status=%d content-type=%q", src.Name, resp.StatusCode, resp.Header.Get("Content-Type"))

	// MaxChars characters never take more than MaxChars*UTFMax bytes.
	limit := int64(h.MaxChars) * utf8.UTFMax
	if h.MaxBytes > 0 && limit > h.MaxBytes {
		limit = h.MaxBytes
	}
	// Bodies are converted to UTF-8 from the declared or sniffed charset
	// before counting characters.
	body, err := charset.NewReader(io.LimitReader(resp.Body, limit), resp.Header.Get("Content-Type"))
	if err != nil {
		return "", fmt.Errorf("reading response body: %w", err)
	}
	text, err := io.ReadAll(body)
	if err != nil {
		return "", fmt.Errorf("reading response body: %w", err)
	}

	return truncateChars(string(text), h.MaxChars), nil
}

// PageHandler delegates page sources to the extraction service
type PageHandler struct {
	Endpoint     string
	ContentField string
	Timeout      time.Duration
	MaxChars     int
	MaxBytes     int64
}

func (h *PageHandler) CanHandle(src Source) bool {
	return src.Kind == KindPage
}

// Handle posts {"url": ...} to the extraction endpoint and returns the first
// MaxChars characters of the content field. A missing field is empty content;
// a null one is a decode failure, as is a response that is not JSON.
func (h *PageHandler) Handle(ctx context.Context, client *http.Client, src Source) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, h.Timeout)
	defer cancel()

	payload, err := json.Marshal(map[string]string{"url": src.URL})
	if err != nil {
		return "", fmt.Errorf("encoding extraction request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("creating extraction request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	debugLog("%s: extraction status=%d", src.Name, resp.StatusCode)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &HTTPError{StatusCode: resp.StatusCode, URL: h.Endpoint}
	}

	if ct := resp.Header.Get("Content-Type"); !isJSONContentType(ct) {
		return "", &DecodeError{URL: h.Endpoint, Cause: fmt.Errorf("unexpected content type %q", ct)}
	}

	var data map[string]json.RawMessage
	dec := json.NewDecoder(io.LimitReader(resp.Body, h.maxBytes()))
	if err := dec.Decode(&data); err != nil {
		return "", decodeFailure(h.Endpoint, err)
	}

	raw, ok := data[h.ContentField]
	if !ok {
		return "", nil
	}
	if string(raw) == "null" {
		return "", &DecodeError{URL: h.Endpoint, Cause: fmt.Errorf("field %q is null", h.ContentField)}
	}

	var content string
	if err := json.Unmarshal(raw, &content); err != nil {
		return "", &DecodeError{URL: h.Endpoint, Cause: fmt.Errorf("field %q: %w", h.ContentField, err)}
	}

	return truncateChars(content, h.MaxChars), nil
}

func (h *PageHandler) maxBytes() int64 {
	if h.MaxBytes > 0 {
		return h.MaxBytes
	}
	return 10 * 1024 * 1024
}

// isJSONContentType accepts application/json and application/*+json
func isJSONContentType(ct string) bool {
	mediaType, _, err := mime.ParseMediaType(ct)
	if err != nil {
		return false
	}
	sub, ok := strings.CutPrefix(mediaType, "application/")
	return ok && (sub == "json" || strings.HasSuffix(sub, "+json"))
}

// decodeFailure keeps deadline errors hit while reading the body as such
func decodeFailure(url string, err error) error {
	if isTimeout(err) {
		return err
	}
	return &DecodeError{URL: url, Cause: err}
}

// truncateChars returns the first n characters (code points) of s
func truncateChars(s string, n int) string {
	if n <= 0 {
		return ""
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// classifyError maps a handler error to its failure reason
func classifyError(err error) FailureReason {
	var httpErr *HTTPError
	var decodeErr *DecodeError
	switch {
	case isTimeout(err):
		return ReasonTimeout
	case errors.As(err, &httpErr):
		return ReasonHTTPStatus
	case errors.As(err, &decodeErr):
		return ReasonDecode
	default:
		return ReasonTransport
	}
}
