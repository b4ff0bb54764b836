package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// ResultWriter persists a run's results as one JSON array
type ResultWriter struct {
	path string
}

// NewResultWriter creates a writer targeting path
func NewResultWriter(path string) *ResultWriter {
	return &ResultWriter{path: path}
}

// Path returns the output file path
func (w *ResultWriter) Path() string {
	return w.path
}

// Write replaces the output file with results. The file is written in place,
// so a concurrent reader may observe a partial document.
func (w *ResultWriter) Write(results []FetchResult) error {
	if dir := filepath.Dir(w.path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("creating output directory: %w", err)
		}
	}

	data, err := encodeResults(results)
	if err != nil {
		return err
	}

	if err := os.WriteFile(w.path, data, 0644); err != nil {
		return fmt.Errorf("writing %s: %w", w.path, err)
	}
	return nil
}

// encodeResults renders results without HTML escaping so feed markup stays
// readable in the output file
func encodeResults(results []FetchResult) ([]byte, error) {
	if results == nil {
		results = []FetchResult{}
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(results); err != nil {
		return nil, fmt.Errorf("encoding results: %w", err)
	}
	return buf.Bytes(), nil
}
