package format

import (
	"fmt"
	"strings"

	"github.com/tphakala/boxlabel/internal/errors"
)

// Sentinel errors. Returned errors wrap these so errors.Is matches them.
var (
	ErrMalformedFile     = errors.NewStd("malformed annotation file")
	ErrUnsupportedFormat = errors.NewStd("unsupported annotation format")
	ErrMissingImageSize  = errors.NewStd("image size is required")
	ErrUnknownClass      = errors.NewStd("unknown class")
)

// UnknownClassError lists the labels a writer skipped because the class
// registry did not know them and auto-insert was disabled. The file itself
// was still written.
type UnknownClassError struct {
	Path   string
	Labels []string
}

func (e *UnknownClassError) Error() string {
	return fmt.Sprintf("%s: %d objects skipped, unknown classes: %s", e.Path, len(e.Labels), strings.Join(e.Labels, ", "))
}

// Unwrap lets errors.Is match ErrUnknownClass.
func (e *UnknownClassError) Unwrap() error {
	return ErrUnknownClass
}

func malformed(path string, cause error) error {
	return errors.New(fmt.Errorf("%w: %s: %w", ErrMalformedFile, path, cause)).
		Component("format").
		Category(errors.CategoryFileParsing).
		FileContext(path, 0).
		Build()
}

func fileIO(path, operation string, cause error) error {
	return errors.New(fmt.Errorf("%s %s: %w", operation, path, cause)).
		Component("format").
		Category(errors.CategoryFileIO).
		Context("operation", operation).
		FileContext(path, 0).
		Build()
}

func missingSize(path string) error {
	return errors.New(fmt.Errorf("%w: %s", ErrMissingImageSize, path)).
		Component("format").
		Category(errors.CategoryValidation).
		FileContext(path, 0).
		Build()
}

func unsupported(path string) error {
	return errors.New(fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)).
		Component("format").
		Category(errors.CategoryValidation).
		FileContext(path, 0).
		Build()
}
