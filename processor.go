// processor.go
package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
)

// ArchiveChecker reports whether a URL has already been archived
type ArchiveChecker interface {
	Exists(ctx context.Context, url string) bool
}

// Collector handles the main workflow: filter, dispatch, write, report
type Collector struct {
	settings   *Settings
	dispatcher *Dispatcher
	writer     *ResultWriter
	archive    ArchiveChecker
	closer     io.Closer
	out        io.Writer
}

// NewCollector creates a collector from settings. The archive is only opened
// when archived sources are to be skipped.
func NewCollector(settings *Settings) (*Collector, error) {
	c := &Collector{
		settings:   settings,
		dispatcher: NewDispatcher(settings),
		writer:     NewResultWriter(settings.OutputPath),
		out:        os.Stdout,
	}

	if settings.SkipArchived {
		if settings.ArchivePath == "" {
			return nil, fmt.Errorf("skip_archived is set but archive_path is empty")
		}
		archive, err := OpenArchive(settings.ArchivePath)
		if err != nil {
			return nil, fmt.Errorf("opening archive: %w", err)
		}
		c.archive = archive
		c.closer = archive
	}

	return c, nil
}

// Close releases the archive, if one was opened
func (c *Collector) Close() error {
	if c.closer != nil {
		return c.closer.Close()
	}
	return nil
}

// Run fetches every configured source and writes the results. Only a write
// failure is returned as an error; fetch failures are recorded per source.
func (c *Collector) Run(ctx context.Context) (*RunSummary, error) {
	sources := c.settings.Sources
	log.Printf("Collecting %d sources...", len(sources))

	results := make([]FetchResult, len(sources))
	pending := c.filterArchived(ctx, sources, results)

	batch := make([]Source, len(pending))
	for j, i := range pending {
		batch[j] = sources[i]
	}
	for j, result := range c.dispatcher.Dispatch(ctx, batch) {
		results[pending[j]] = result
	}

	summary := &RunSummary{
		Attempted:  len(results),
		OutputPath: c.writer.Path(),
	}
	for _, result := range results {
		switch result.Status {
		case StatusSuccess:
			summary.Succeeded++
			debugLog("✓ %s (%d chars)", result.Source, len([]rune(result.Raw)))
		case StatusFailed:
			summary.Failed++
			log.Printf("✗ Failed %s: %s", result.Source, result.Error)
		case StatusSkipped:
			summary.Skipped++
		}
	}

	if err := c.writer.Write(results); err != nil {
		return summary, fmt.Errorf("writing results: %w", err)
	}

	log.Printf("Wrote %s: %d succeeded, %d failed, %d skipped",
		summary.OutputPath, summary.Succeeded, summary.Failed, summary.Skipped)
	fmt.Fprintf(c.out, "Engine Run Completed. Total sources attempted: %d\n", summary.Attempted)

	return summary, nil
}

// filterArchived fills results with a skipped entry for every archived source
// and returns the indices that still need fetching
func (c *Collector) filterArchived(ctx context.Context, sources []Source, results []FetchResult) []int {
	pending := make([]int, 0, len(sources))
	for i, src := range sources {
		if c.archive != nil && c.archive.Exists(ctx, src.URL) {
			log.Printf("Skipping %s: already archived (%s)", src.Name, src.URL)
			results[i] = FetchResult{Source: src.Name, Status: StatusSkipped}
			continue
		}
		pending = append(pending, i)
	}
	return pending
}
