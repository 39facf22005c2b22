package history

import (
	"os"
	"path/filepath"

	"github.com/tphakala/boxlabel/internal/errors"
	"github.com/tphakala/boxlabel/internal/fsutil"
	"github.com/tphakala/boxlabel/internal/logger"
)

// Stage creates a temporary directory holding a link, or a copy when links
// are refused, for every file in files. Files are placed by base name. The
// returned cleanup removes the directory.
func Stage(files []string) (dir string, cleanup func() error, err error) {
	dir, err = os.MkdirTemp("", "boxlabel-stage-*")
	if err != nil {
		return "", nil, errors.New(err).
			Component("history").
			Category(errors.CategoryFileIO).
			Context("operation", "create_staging_dir").
			Build()
	}
	cleanup = func() error { return os.RemoveAll(dir) }

	copied := 0
	for _, f := range files {
		linked, err := fsutil.LinkOrCopy(f, filepath.Join(dir, filepath.Base(f)))
		if err != nil {
			_ = cleanup()
			return "", nil, errors.New(err).
				Component("history").
				Category(errors.CategoryFileIO).
				Context("operation", "stage_file").
				FileContext(f, 0).
				Build()
		}
		if !linked {
			copied++
		}
	}

	GetLogger().Debug("Staged untrained files",
		logger.String("dir", dir),
		logger.Int("files", len(files)),
		logger.Int("copied", copied))
	return dir, cleanup, nil
}
