package dataset

import (
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/tphakala/boxlabel/internal/format"
)

// Pair is an image and its VOC annotation sharing a stem.
type Pair struct {
	Stem       string
	ImagePath  string
	XMLPath    string
	annotation *format.Annotation
}

// Discover lists every .xml file in dir that has a sibling image, sorted by
// stem.
func Discover(dir string) ([]Pair, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	images := make(map[string]string)
	var xmls []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		ext := filepath.Ext(name)
		stem := strings.TrimSuffix(name, ext)
		switch {
		case strings.EqualFold(ext, format.ExtVOC):
			xmls = append(xmls, name)
		case format.IsImageFile(name):
			// first image extension in directory order wins
			if _, seen := images[stem]; !seen {
				images[stem] = name
			}
		}
	}

	pairs := make([]Pair, 0, len(xmls))
	for _, x := range xmls {
		stem := strings.TrimSuffix(x, filepath.Ext(x))
		img, ok := images[stem]
		if !ok {
			continue
		}
		pairs = append(pairs, Pair{
			Stem:      stem,
			ImagePath: filepath.Join(dir, img),
			XMLPath:   filepath.Join(dir, x),
		})
	}
	slices.SortFunc(pairs, func(a, b Pair) int { return strings.Compare(a.Stem, b.Stem) })
	return pairs, nil
}
