// Package util is a set of utility variables or methods
package util

import (
	"path/filepath"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"
)

var SupportedExt = mapset.NewSet(
	".jpeg", ".jpg",
	".png",
	".gif",
)

// IsImage reports whether the filename carries a supported image
// extension. Comparison is case-insensitive.
func IsImage(name string) bool {
	return SupportedExt.Contains(strings.ToLower(filepath.Ext(name)))
}
