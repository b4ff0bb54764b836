package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeArchive map[string]bool

func (f fakeArchive) Exists(ctx context.Context, url string) bool {
	return f[url]
}

// newTestCollector wires a collector around settings without touching the
// real archive, printing the summary into out
func newTestCollector(settings *Settings, archive ArchiveChecker, out io.Writer) *Collector {
	return &Collector{
		settings:   settings,
		dispatcher: NewDispatcher(settings),
		writer:     NewResultWriter(settings.OutputPath),
		archive:    archive,
		out:        out,
	}
}

func newSourceServers(t *testing.T) (feeds, crawler *httptest.Server) {
	t.Helper()

	feeds = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/hello":
			io.WriteString(w, "hello world")
		case "/slow":
			slowHandler(5*time.Second)(w, r)
		default:
			io.WriteString(w, "feed "+r.URL.Path)
		}
	}))
	crawler = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"markdown":"doc text"}`)
	}))
	t.Cleanup(func() {
		feeds.Close()
		crawler.Close()
	})
	return feeds, crawler
}

func TestCollectorRun(t *testing.T) {
	feeds, crawler := newSourceServers(t)

	settings := testSettings(crawler.URL + "/crawl")
	settings.OutputPath = filepath.Join(t.TempDir(), "data", "raw_news.json")
	settings.Sources = []Source{
		{Name: "Hello", URL: feeds.URL + "/hello", Kind: KindFeed},
		{Name: "Slow", URL: feeds.URL + "/slow", Kind: KindFeed},
		{Name: "Page", URL: "https://openai.com/news", Kind: KindPage},
	}

	var out bytes.Buffer
	summary, err := newTestCollector(settings, nil, &out).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, &RunSummary{
		Attempted:  3,
		Succeeded:  2,
		Failed:     1,
		OutputPath: settings.OutputPath,
	}, summary)
	assert.Equal(t, "Engine Run Completed. Total sources attempted: 3\n", out.String())

	data, err := os.ReadFile(settings.OutputPath)
	require.NoError(t, err)

	var written []map[string]string
	require.NoError(t, json.Unmarshal(data, &written))
	require.Len(t, written, 3)

	assert.Equal(t, map[string]string{"source": "Hello", "raw": "hello world", "status": "success"}, written[0])
	assert.Equal(t, "Slow", written[1]["source"])
	assert.Equal(t, "failed", written[1]["status"])
	assert.Equal(t, "timeout", written[1]["reason"])
	assert.NotEmpty(t, written[1]["error"])
	_, hasRaw := written[1]["raw"]
	assert.False(t, hasRaw, "failed result must not carry a payload")
	assert.Equal(t, map[string]string{"source": "Page", "raw": "doc text", "status": "success"}, written[2])
}

func TestCollectorRunSkipsArchived(t *testing.T) {
	feeds, crawler := newSourceServers(t)

	settings := testSettings(crawler.URL + "/crawl")
	settings.OutputPath = filepath.Join(t.TempDir(), "raw_news.json")
	settings.Sources = []Source{
		{Name: "A", URL: feeds.URL + "/a", Kind: KindFeed},
		{Name: "B", URL: feeds.URL + "/b", Kind: KindFeed},
		{Name: "C", URL: "https://anthropic.com/research", Kind: KindPage},
		{Name: "D", URL: feeds.URL + "/d", Kind: KindFeed},
	}
	archive := fakeArchive{
		feeds.URL + "/b":                  true,
		"https://anthropic.com/research": true,
	}

	summary, err := newTestCollector(settings, archive, io.Discard).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, summary.Attempted)
	assert.Equal(t, 2, summary.Succeeded)
	assert.Equal(t, 2, summary.Skipped)

	data, err := os.ReadFile(settings.OutputPath)
	require.NoError(t, err)
	var written []map[string]string
	require.NoError(t, json.Unmarshal(data, &written))

	require.Len(t, written, 4)
	assert.Equal(t, map[string]string{"source": "A", "raw": "feed /a", "status": "success"}, written[0])
	assert.Equal(t, map[string]string{"source": "B", "status": "skipped"}, written[1])
	assert.Equal(t, map[string]string{"source": "C", "status": "skipped"}, written[2])
	assert.Equal(t, map[string]string{"source": "D", "raw": "feed /d", "status": "success"}, written[3])
}

func TestCollectorRunWriteFailure(t *testing.T) {
	feeds, crawler := newSourceServers(t)

	settings := testSettings(crawler.URL + "/crawl")
	settings.OutputPath = t.TempDir() // a directory cannot be written as a file
	settings.Sources = []Source{{Name: "A", URL: feeds.URL + "/a", Kind: KindFeed}}

	var out bytes.Buffer
	_, err := newTestCollector(settings, nil, &out).Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "writing results")
	assert.Empty(t, out.String(), "no completion line after a failed write")
}

func TestNewCollectorArchive(t *testing.T) {
	settings := testSettings("http://127.0.0.1:8000/crawl")
	settings.SkipArchived = true

	_, err := NewCollector(settings)
	assert.Error(t, err, "skip_archived without archive_path")

	settings.ArchivePath = filepath.Join(t.TempDir(), "news_archive.db")
	createArchive(t, settings.ArchivePath, "https://openai.com/news")

	collector, err := NewCollector(settings)
	require.NoError(t, err)
	defer collector.Close()

	require.NotNil(t, collector.archive)
	assert.True(t, collector.archive.Exists(context.Background(), "https://openai.com/news"))
}

func TestNewCollectorWithoutArchive(t *testing.T) {
	collector, err := NewCollector(testSettings("http://127.0.0.1:8000/crawl"))
	require.NoError(t, err)
	assert.Nil(t, collector.archive)
	assert.NoError(t, collector.Close())
}
