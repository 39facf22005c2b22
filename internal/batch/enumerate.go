package batch

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/tphakala/boxlabel/internal/format"
)

// Enumerate lists the images in dir, sorted by path. Subdirectories are
// walked when recursive is set.
func Enumerate(dir string, recursive bool) ([]string, error) {
	var paths []string
	if !recursive {
		entries, err := os.ReadDir(dir)
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			if !e.IsDir() && format.IsImageFile(e.Name()) {
				paths = append(paths, filepath.Join(dir, e.Name()))
			}
		}
		return paths, nil
	}

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && format.IsImageFile(d.Name()) {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)
	return paths, nil
}
