package store

import (
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"testing"
)

func openTestIndex(t *testing.T) *Index {
	t.Helper()
	idx, err := Open(filepath.Join(t.TempDir(), "library.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { idx.Close() })
	return idx
}

func TestIndexUpsertAndFolders(t *testing.T) {
	idx := openTestIndex(t)

	seed := []struct{ folder, name string }{
		{"Nature", "a.jpg"},
		{"Nature", "b.jpg"},
		{"Cities", "z.png"},
		{"", "root.png"},
	}
	for _, e := range seed {
		if err := idx.Upsert(e.folder, e.name); err != nil {
			t.Fatalf("Upsert(%s, %s): %v", e.folder, e.name, err)
		}
	}
	// duplicate upsert is a no-op
	if err := idx.Upsert("Nature", "a.jpg"); err != nil {
		t.Fatalf("duplicate Upsert: %v", err)
	}

	folders, err := idx.Folders()
	if err != nil {
		t.Fatalf("Folders: %v", err)
	}
	if want := []string{"Cities", "Nature"}; !reflect.DeepEqual(folders, want) {
		t.Errorf("Folders = %v, want %v", folders, want)
	}

	n, err := idx.Count("Nature")
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 2 {
		t.Errorf("Count(Nature) = %d, want 2", n)
	}
}

func TestIndexRemove(t *testing.T) {
	idx := openTestIndex(t)

	idx.Upsert("Nature", "a.jpg")
	if err := idx.Remove("Nature", "a.jpg"); err != nil {
		t.Fatalf("Remove: %v", err)
	}

	n, err := idx.Count("Nature")
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 0 {
		t.Errorf("Count = %d after remove, want 0", n)
	}
}

func TestIndexEntries(t *testing.T) {
	idx := openTestIndex(t)

	idx.Upsert("Nature", "a.jpg")
	idx.Upsert("", "root.png")

	entries, err := idx.Entries()
	if err != nil {
		t.Fatalf("Entries: %v", err)
	}
	sort.Strings(entries)
	if want := []string{"Nature/a.jpg", "root.png"}; !reflect.DeepEqual(entries, want) {
		t.Errorf("Entries = %v, want %v", entries, want)
	}
}

func TestEntryKeyRoundTrip(t *testing.T) {
	tests := []struct{ folder, name string }{
		{"Nature", "a.jpg"},
		{"", "root.png"},
	}
	for _, tt := range tests {
		folder, name := splitEntryKey(entryKey(tt.folder, tt.name))
		if folder != tt.folder || name != tt.name {
			t.Errorf("round trip (%q, %q) = (%q, %q)", tt.folder, tt.name, folder, name)
		}
	}
}

func TestScannerSyncsIndexWithFilesystem(t *testing.T) {
	idx := openTestIndex(t)
	imageDir := t.TempDir()

	mustWrite := func(rel string) {
		t.Helper()
		path := filepath.Join(imageDir, rel)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(path, []byte("img"), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	mustWrite("Nature/a.jpg")
	mustWrite("Nature/b.jpg")
	mustWrite("root.png")
	mustWrite("Nature/ignore.txt")

	s := NewScanner(idx, imageDir, 0)
	s.Scan()

	entries, err := idx.Entries()
	if err != nil {
		t.Fatalf("Entries: %v", err)
	}
	sort.Strings(entries)
	want := []string{"Nature/a.jpg", "Nature/b.jpg", "root.png"}
	if !reflect.DeepEqual(entries, want) {
		t.Fatalf("after first scan Entries = %v, want %v", entries, want)
	}

	// removal and addition in one pass
	if err := os.Remove(filepath.Join(imageDir, "Nature", "b.jpg")); err != nil {
		t.Fatalf("remove: %v", err)
	}
	mustWrite("Cities/z.png")
	s.Scan()

	entries, err = idx.Entries()
	if err != nil {
		t.Fatalf("Entries: %v", err)
	}
	sort.Strings(entries)
	want = []string{"Cities/z.png", "Nature/a.jpg", "root.png"}
	if !reflect.DeepEqual(entries, want) {
		t.Errorf("after second scan Entries = %v, want %v", entries, want)
	}
}

func TestScannerMissingDirectorySkipsScan(t *testing.T) {
	idx := openTestIndex(t)
	idx.Upsert("Nature", "a.jpg")

	s := NewScanner(idx, filepath.Join(t.TempDir(), "absent"), 0)
	s.Scan()

	// existing entries survive a failed scan
	n, err := idx.Count("Nature")
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 1 {
		t.Errorf("Count = %d, want 1", n)
	}
}
