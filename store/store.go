// Package store keeps a sqlite index of library folder/image
// membership. The index backs the folder-listing peer operation and
// folder counts; slideshow playlists always read the filesystem
// directly so playback order is never a cache artifact.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

type Index struct {
	db *sql.DB
}

func Open(dbPath string) (*Index, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create index directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open index: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping index: %w", err)
	}

	idx := &Index{db: db}
	if err := idx.createTable(); err != nil {
		return nil, fmt.Errorf("failed to create table: %w", err)
	}
	return idx, nil
}

func (i *Index) createTable() error {
	query := `
	CREATE TABLE IF NOT EXISTS images (
		folder TEXT NOT NULL,
		name   TEXT NOT NULL,
		PRIMARY KEY (folder, name)
	);
	CREATE INDEX IF NOT EXISTS idx_images_folder ON images(folder);
	`
	_, err := i.db.Exec(query)
	return err
}

func (i *Index) Close() error {
	return i.db.Close()
}

func (i *Index) Upsert(folder, name string) error {
	query := `INSERT OR IGNORE INTO images (folder, name) VALUES (?, ?)`
	if _, err := i.db.Exec(query, folder, name); err != nil {
		return fmt.Errorf("failed to upsert image: %w", err)
	}
	return nil
}

func (i *Index) Remove(folder, name string) error {
	query := `DELETE FROM images WHERE folder = ? AND name = ?`
	if _, err := i.db.Exec(query, folder, name); err != nil {
		return fmt.Errorf("failed to remove image: %w", err)
	}
	return nil
}

// Folders returns the distinct non-root folder names, sorted.
func (i *Index) Folders() ([]string, error) {
	query := `SELECT DISTINCT folder FROM images WHERE folder != '' ORDER BY folder ASC`
	rows, err := i.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to query folders: %w", err)
	}
	defer rows.Close()

	var folders []string
	for rows.Next() {
		var f string
		if err := rows.Scan(&f); err != nil {
			return nil, fmt.Errorf("failed to scan folder: %w", err)
		}
		folders = append(folders, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return folders, nil
}

func (i *Index) Count(folder string) (int, error) {
	query := `SELECT COUNT(*) FROM images WHERE folder = ?`
	var n int
	if err := i.db.QueryRow(query, folder).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count images: %w", err)
	}
	return n, nil
}

// Entries returns every folder/name pair as "folder/name" keys
// ("name" alone for root images), used by the scanner diff.
func (i *Index) Entries() ([]string, error) {
	query := `SELECT folder, name FROM images`
	rows, err := i.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to query images: %w", err)
	}
	defer rows.Close()

	var entries []string
	for rows.Next() {
		var folder, name string
		if err := rows.Scan(&folder, &name); err != nil {
			return nil, fmt.Errorf("failed to scan image: %w", err)
		}
		entries = append(entries, entryKey(folder, name))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return entries, nil
}
