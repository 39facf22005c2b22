package batch

import "github.com/tphakala/boxlabel/internal/logger"

// GetLogger returns the batch package logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("batch")
}
