package main

import (
	"bytes"
	"encoding/json"
)

// SourceKind selects how a source is fetched
type SourceKind string

const (
	KindFeed SourceKind = "feed" // direct HTTP GET
	KindPage SourceKind = "page" // delegated to the extraction service
)

// Source describes one configured news source
type Source struct {
	Name string     `yaml:"name" validate:"required"`
	URL  string     `yaml:"url" validate:"required,url"`
	Kind SourceKind `yaml:"kind" validate:"required,oneof=feed page"`
}

// FetchStatus represents the outcome status of fetching a source
type FetchStatus string

const (
	StatusSuccess FetchStatus = "success"
	StatusFailed  FetchStatus = "failed"
	StatusSkipped FetchStatus = "skipped"
)

// FailureReason classifies why a fetch failed
type FailureReason string

const (
	ReasonTimeout    FailureReason = "timeout"
	ReasonTransport  FailureReason = "transport"
	ReasonHTTPStatus FailureReason = "http_status"
	ReasonDecode     FailureReason = "decode"
	ReasonNoHandler  FailureReason = "no_handler"
)

// FetchResult tracks the outcome of fetching each source. Raw is only
// meaningful when Status is StatusSuccess, and may legitimately be empty.
type FetchResult struct {
	Source string
	Status FetchStatus
	Raw    string
	Error  string
	Reason FailureReason
	Err    error
}

// MarshalJSON writes the result in the shape the downstream consumer reads:
// "raw" only on success, "error" and "reason" only on failure.
func (r FetchResult) MarshalJSON() ([]byte, error) {
	out := struct {
		Source string        `json:"source"`
		Raw    *string       `json:"raw,omitempty"`
		Error  string        `json:"error,omitempty"`
		Reason FailureReason `json:"reason,omitempty"`
		Status FetchStatus   `json:"status"`
	}{
		Source: r.Source,
		Status: r.Status,
	}

	switch r.Status {
	case StatusSuccess:
		raw := r.Raw
		out.Raw = &raw
	case StatusFailed:
		out.Error = r.Error
		out.Reason = r.Reason
	}

	// json.Marshal would escape <, > and & in feed markup, and the outer
	// encoder cannot undo that for a custom marshaler.
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(out); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// RunSummary is what a collection run reports back to the caller
type RunSummary struct {
	Attempted  int
	Succeeded  int
	Failed     int
	Skipped    int
	OutputPath string
}
