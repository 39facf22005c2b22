package format

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"  // register decoder
	_ "image/jpeg" // register decoder
	_ "image/png"  // register decoder
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	_ "golang.org/x/image/bmp"  // register decoder
	_ "golang.org/x/image/tiff" // register decoder
	_ "golang.org/x/image/webp" // register decoder
)

// ImageExtensions are the image suffixes recognized when pairing images with
// annotation files and when enumerating batch input.
var ImageExtensions = []string{".jpg", ".jpeg", ".png", ".bmp", ".gif", ".tif", ".tiff", ".webp"}

// Size cache entries expire so edited images are eventually re-probed even
// when their modification time is not updated.
const (
	sizeCacheTTL     = 30 * time.Minute
	sizeCacheCleanup = 10 * time.Minute
)

var sizeCache = cache.New(sizeCacheTTL, sizeCacheCleanup)

type imageSize struct {
	width, height int
}

// IsImageFile reports whether name has a recognized image suffix.
func IsImageFile(name string) bool {
	return slices.Contains(ImageExtensions, strings.ToLower(filepath.Ext(name)))
}

// FindImageForStem looks for <dir>/<stem><ext> over ImageExtensions, trying
// both lower and upper case suffixes.
func FindImageForStem(dir, stem string) (string, bool) {
	for _, ext := range ImageExtensions {
		for _, candidate := range []string{stem + ext, stem + strings.ToUpper(ext)} {
			p := filepath.Join(dir, candidate)
			if info, err := os.Stat(p); err == nil && info.Mode().IsRegular() {
				return p, true
			}
		}
	}
	return "", false
}

// ImageSize decodes only the header of the image at path. Results are cached
// by path, size and modification time.
func ImageSize(path string) (width, height int, err error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, 0, err
	}
	key := fmt.Sprintf("%s|%d|%d", path, info.Size(), info.ModTime().UnixNano())
	if v, ok := sizeCache.Get(key); ok {
		if sz, ok := v.(imageSize); ok {
			return sz.width, sz.height, nil
		}
	}

	f, err := os.Open(path)
	if err != nil {
		return 0, 0, err
	}
	defer func() { _ = f.Close() }()

	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return 0, 0, fmt.Errorf("decode image header %s: %w", path, err)
	}
	sizeCache.Set(key, imageSize{cfg.Width, cfg.Height}, cache.DefaultExpiration)
	return cfg.Width, cfg.Height, nil
}

// ImageSizeFromBytes decodes the header of an in-memory image.
func ImageSizeFromBytes(data []byte) (width, height int, err error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return 0, 0, err
	}
	return cfg.Width, cfg.Height, nil
}
