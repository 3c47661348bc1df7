// Package fsutil implements the case-insensitive directory-entry lookup
// the repository façade and the mapping-generation selector both need to
// discover the four CIM repository files by name.
package fsutil

import (
	"os"
	"path/filepath"
	"strings"
)

// FindCaseInsensitive returns the path of the entry in dir whose name
// matches want ignoring case, or "" if none is found.
func FindCaseInsensitive(dir, want string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", err
	}
	wantLower := strings.ToLower(want)
	for _, e := range entries {
		if strings.ToLower(e.Name()) == wantLower {
			return filepath.Join(dir, e.Name()), nil
		}
	}
	return "", nil
}
