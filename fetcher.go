package main

import (
	"context"
	"fmt"
	"net/http"

	"golang.org/x/sync/errgroup"
)

// Dispatcher fetches every configured source concurrently over one client
type Dispatcher struct {
	handlers []SourceHandler
	client   *http.Client
}

// NewDispatcher creates a dispatcher with the feed and page handlers
// configured from settings
func NewDispatcher(settings *Settings) *Dispatcher {
	d := &Dispatcher{
		client: &http.Client{},
	}

	d.AddHandler(&FeedHandler{
		Timeout:  settings.Limits.FeedTimeout,
		MaxChars: settings.Limits.FeedMaxChars,
		MaxBytes: settings.Limits.MaxResponseBytes,
	})
	d.AddHandler(&PageHandler{
		Endpoint:     settings.Extraction.Endpoint,
		ContentField: settings.Extraction.ContentField,
		Timeout:      settings.Limits.PageTimeout,
		MaxChars:     settings.Limits.PageMaxChars,
		MaxBytes:     settings.Limits.MaxResponseBytes,
	})

	return d
}

// AddHandler adds a source handler to the chain
func (d *Dispatcher) AddHandler(handler SourceHandler) {
	d.handlers = append(d.handlers, handler)
}

// Dispatch fetches all sources concurrently and returns one result per
// source, at the source's index. It returns once every fetch has resolved.
func (d *Dispatcher) Dispatch(ctx context.Context, sources []Source) []FetchResult {
	results := make([]FetchResult, len(sources))

	var g errgroup.Group
	for i, src := range sources {
		i, src := i, src
		g.Go(func() error {
			results[i] = d.FetchSource(ctx, src)
			return nil
		})
	}
	// Fetch goroutines never return an error.
	_ = g.Wait()

	return results
}

// FetchSource runs the first matching handler for src and records the outcome
func (d *Dispatcher) FetchSource(ctx context.Context, src Source) FetchResult {
	for _, handler := range d.handlers {
		if !handler.CanHandle(src) {
			continue
		}

		raw, err := handler.Handle(ctx, d.client, src)
		if err != nil {
			return FetchResult{
				Source: src.Name,
				Status: StatusFailed,
				Error:  err.Error(),
				Reason: classifyError(err),
				Err:    err,
			}
		}
		return FetchResult{
			Source: src.Name,
			Status: StatusSuccess,
			Raw:    raw,
		}
	}

	err := fmt.Errorf("no handler found for %s (kind %q)", src.Name, src.Kind)
	return FetchResult{
		Source: src.Name,
		Status: StatusFailed,
		Error:  err.Error(),
		Reason: ReasonNoHandler,
		Err:    err,
	}
}
