package main

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// Archive answers whether a URL was already stored by a previous pipeline
type Archive struct {
	db *sql.DB
}

// OpenArchive opens the sqlite archive at path read-only. A missing file is
// not an error here; lookups against it simply report false.
func OpenArchive(path string) (*Archive, error) {
	dsn := "file:" + path + "?mode=ro&_pragma=busy_timeout(5000)"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening archive %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	return &Archive{db: db}, nil
}

// Exists reports whether an article with this URL is in the archive. Query
// failures are reported as absence.
func (a *Archive) Exists(ctx context.Context, articleURL string) bool {
	var one int
	err := a.db.QueryRowContext(ctx, `SELECT 1 FROM articles WHERE url = ? LIMIT 1`, articleURL).Scan(&one)
	if err == sql.ErrNoRows {
		return false
	}
	if err != nil {
		debugLog("archive lookup for %s failed: %v", articleURL, err)
		return false
	}
	return true
}

// Close releases the database handle
func (a *Archive) Close() error {
	return a.db.Close()
}
