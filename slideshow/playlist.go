// Package slideshow drives one external renderer per display through
// its control channel, rebuilding playback state whenever the owning
// display configuration changes.
package slideshow

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/aouyang1/displaywall/util"
)

// ListCategory returns the image files of one category folder as
// paths relative to imageDir, lexicographically sorted. An empty
// category lists the entire library recursively. A missing folder
// yields nil.
func ListCategory(imageDir, category string) []string {
	if category == "" {
		return listAll(imageDir)
	}

	entries, err := os.ReadDir(filepath.Join(imageDir, category))
	if err != nil {
		return nil
	}

	var out []string
	for _, entry := range entries {
		if entry.IsDir() || !util.IsImage(entry.Name()) {
			continue
		}
		out = append(out, filepath.Join(category, entry.Name()))
	}
	sort.Strings(out)
	return out
}

func listAll(imageDir string) []string {
	var out []string
	filepath.WalkDir(imageDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() || !util.IsImage(d.Name()) {
			return nil
		}
		rel, err := filepath.Rel(imageDir, path)
		if err != nil {
			return nil
		}
		out = append(out, rel)
		return nil
	})
	sort.Strings(out)
	return out
}

// ListMixed concatenates each folder's sorted listing in the folder
// order given. Folder order affects inclusion only; there is no
// global re-sort and no de-duplication across folders.
func ListMixed(imageDir string, folders []string) []string {
	var out []string
	for _, folder := range folders {
		out = append(out, ListCategory(imageDir, folder)...)
	}
	return out
}
