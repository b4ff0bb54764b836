package main

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// createArchive builds an archive database at path containing urls
func createArchive(t *testing.T, path string, urls ...string) {
	t.Helper()

	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	defer db.Close()

	_, err = db.Exec(`CREATE TABLE articles (id INTEGER PRIMARY KEY, url TEXT NOT NULL, added_at TEXT NOT NULL DEFAULT '')`)
	require.NoError(t, err)
	for _, u := range urls {
		_, err = db.Exec(`INSERT INTO articles (url) VALUES (?)`, u)
		require.NoError(t, err)
	}
}

func TestArchiveExists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "news_archive.db")
	createArchive(t, path, "https://openai.com/news", "https://blog.cloudflare.com/rss/")

	archive, err := OpenArchive(path)
	require.NoError(t, err)
	defer archive.Close()

	ctx := context.Background()
	assert.True(t, archive.Exists(ctx, "https://openai.com/news"))
	assert.True(t, archive.Exists(ctx, "https://blog.cloudflare.com/rss/"))
	assert.False(t, archive.Exists(ctx, "https://stability.ai/news"))
}

func TestArchiveExistsMissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.db")

	archive, err := OpenArchive(path)
	require.NoError(t, err)
	defer archive.Close()

	assert.False(t, archive.Exists(context.Background(), "https://openai.com/news"))
	assert.NoFileExists(t, path)
}

func TestArchiveExistsMissingTable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.db")
	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	_, err = db.Exec(`CREATE TABLE other (x INTEGER)`)
	require.NoError(t, err)
	db.Close()

	archive, err := OpenArchive(path)
	require.NoError(t, err)
	defer archive.Close()

	assert.False(t, archive.Exists(context.Background(), "https://openai.com/news"))
}
