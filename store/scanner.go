package store

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/aouyang1/displaywall/util"
)

// Scanner keeps the index in sync with the image directory: top-level
// image files land in the root folder "", each subdirectory is one
// folder. Runs an initial scan, then one per interval.
type Scanner struct {
	index    *Index
	imageDir string
	interval time.Duration
}

func NewScanner(index *Index, imageDir string, interval time.Duration) *Scanner {
	if interval <= 0 {
		interval = time.Hour
	}
	return &Scanner{
		index:    index,
		imageDir: imageDir,
		interval: interval,
	}
}

func (s *Scanner) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.Scan()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Scan()
		}
	}
}

// Scan diffs filesystem truth against the index and applies the
// difference. Filesystem errors degrade to a skipped scan.
func (s *Scanner) Scan() {
	current, err := s.currentEntries()
	if err != nil {
		slog.Warn("unable to scan image directory", "path", s.imageDir, "error", err)
		return
	}

	indexed, err := s.index.Entries()
	if err != nil {
		slog.Warn("unable to read index entries", "error", err)
		return
	}
	indexedSet := mapset.NewSet(indexed...)

	toAdd := current.Difference(indexedSet).ToSlice()
	toRemove := indexedSet.Difference(current).ToSlice()

	for _, key := range toAdd {
		folder, name := splitEntryKey(key)
		if err := s.index.Upsert(folder, name); err != nil {
			slog.Warn("unable to index image", "folder", folder, "name", name, "error", err)
		}
	}
	for _, key := range toRemove {
		folder, name := splitEntryKey(key)
		if err := s.index.Remove(folder, name); err != nil {
			slog.Warn("unable to deindex image", "folder", folder, "name", name, "error", err)
		}
	}

	if len(toAdd) > 0 || len(toRemove) > 0 {
		slog.Info("library index updated", "added", len(toAdd), "removed", len(toRemove))
	}
}

func (s *Scanner) currentEntries() (mapset.Set[string], error) {
	entries := mapset.NewSet[string]()

	dirs, err := os.ReadDir(s.imageDir)
	if err != nil {
		return nil, err
	}
	for _, entry := range dirs {
		if !entry.IsDir() {
			if util.IsImage(entry.Name()) {
				entries.Add(entryKey("", entry.Name()))
			}
			continue
		}

		folder := entry.Name()
		files, err := os.ReadDir(filepath.Join(s.imageDir, folder))
		if err != nil {
			slog.Warn("unable to read folder", "folder", folder, "error", err)
			continue
		}
		for _, f := range files {
			if f.IsDir() || !util.IsImage(f.Name()) {
				continue
			}
			entries.Add(entryKey(folder, f.Name()))
		}
	}
	return entries, nil
}

func entryKey(folder, name string) string {
	if folder == "" {
		return name
	}
	return folder + "/" + name
}

func splitEntryKey(key string) (string, string) {
	if folder, name, ok := strings.Cut(key, "/"); ok {
		return folder, name
	}
	return "", key
}
