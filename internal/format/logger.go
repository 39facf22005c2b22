package format

import "github.com/tphakala/boxlabel/internal/logger"

// GetLogger returns the format package logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("format")
}
