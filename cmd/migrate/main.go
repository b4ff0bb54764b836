package main

import (
	"bufio"
	"database/sql"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

const archiveSchema = `
CREATE TABLE IF NOT EXISTS articles (
	id       INTEGER PRIMARY KEY AUTOINCREMENT,
	url      TEXT NOT NULL,
	added_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_articles_url ON articles(url);
`

func main() {
	if len(os.Args) < 3 {
		log.Fatal("Usage: migrate <init|add-urls|remove-duplicates> <archive-db> [urls-file]")
	}

	command := os.Args[1]
	dbPath := os.Args[2]

	db, err := openArchive(dbPath)
	if err != nil {
		log.Fatal(err)
	}
	defer db.Close()

	switch command {
	case "init":
		log.Printf("Archive schema ready in %s", dbPath)
	case "add-urls":
		if len(os.Args) < 4 {
			log.Fatal("Usage: migrate add-urls <archive-db> <urls-file>")
		}
		f, err := os.Open(os.Args[3])
		if err != nil {
			log.Fatal(err)
		}
		defer f.Close()
		added, err := addURLs(db, f)
		if err != nil {
			log.Fatal(err)
		}
		log.Printf("Added %d URLs", added)
	case "remove-duplicates":
		removed, err := removeDuplicates(db, os.Stdin, os.Stdout)
		if err != nil {
			log.Fatal(err)
		}
		fmt.Printf("\nRemoved %d duplicate rows\n", removed)
	default:
		log.Fatalf("Unknown command %q", command)
	}
}

// openArchive opens (creating if needed) the archive and applies the schema
func openArchive(path string) (*sql.DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("creating archive directory: %w", err)
	}

	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("opening archive %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(archiveSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("applying archive schema: %w", err)
	}
	return db, nil
}

// addURLs inserts one URL per line, skipping blanks, # comments and URLs
// already archived
func addURLs(db *sql.DB, r io.Reader) (int, error) {
	scanner := bufio.NewScanner(r)
	now := time.Now().UTC().Format(time.RFC3339)
	added := 0

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		res, err := db.Exec(`INSERT INTO articles (url, added_at)
			SELECT ?, ? WHERE NOT EXISTS (SELECT 1 FROM articles WHERE url = ?)`, line, now, line)
		if err != nil {
			return added, fmt.Errorf("inserting %s: %w", line, err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			added++
		} else {
			log.Printf("URL %s already archived, skipping", line)
		}
	}
	if err := scanner.Err(); err != nil {
		return added, fmt.Errorf("reading URLs: %w", err)
	}
	return added, nil
}

// removeDuplicates keeps the oldest row of every URL stored more than once and
// asks before deleting each of the others
func removeDuplicates(db *sql.DB, in io.Reader, out io.Writer) (int, error) {
	rows, err := db.Query(`SELECT id, url FROM articles
		WHERE url IN (SELECT url FROM articles GROUP BY url HAVING COUNT(*) > 1)
		ORDER BY url, id`)
	if err != nil {
		return 0, fmt.Errorf("listing duplicates: %w", err)
	}

	urlToIDs := make(map[string][]int64)
	var urls []string
	for rows.Next() {
		var id int64
		var url string
		if err := rows.Scan(&id, &url); err != nil {
			rows.Close()
			return 0, fmt.Errorf("scanning row: %w", err)
		}
		if _, seen := urlToIDs[url]; !seen {
			urls = append(urls, url)
		}
		urlToIDs[url] = append(urlToIDs[url], id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("listing duplicates: %w", err)
	}

	reader := bufio.NewReader(in)
	totalRemoved := 0
	for _, url := range urls {
		ids := urlToIDs[url]
		fmt.Fprintf(out, "\nFound %d rows for %s:\n", len(ids), url)
		for i, id := range ids {
			if i == 0 {
				fmt.Fprintf(out, "  KEEP: #%d\n", id)
				continue
			}

			if !confirmDelete(reader, out, id) {
				fmt.Fprintf(out, "  SKIP: #%d\n", id)
				continue
			}
			if _, err := db.Exec(`DELETE FROM articles WHERE id = ?`, id); err != nil {
				log.Printf("Error removing #%d: %v", id, err)
				continue
			}
			totalRemoved++
			fmt.Fprintf(out, "  REMOVED: #%d\n", id)
		}
	}

	return totalRemoved, nil
}

func confirmDelete(reader *bufio.Reader, out io.Writer, id int64) bool {
	for {
		fmt.Fprintf(out, "  DELETE #%d? [y/N]: ", id)
		input, err := reader.ReadString('\n')
		if err != nil && input == "" {
			if err != io.EOF {
				log.Printf("Error reading input: %v", err)
			}
			return false
		}
		response := strings.ToLower(strings.TrimSpace(input))
		switch response {
		case "y", "yes":
			return true
		case "", "n", "no":
			return false
		default:
			fmt.Fprintln(out, "  Please enter y or n.")
			if err != nil {
				return false
			}
		}
	}
}
