package history

import "github.com/tphakala/boxlabel/internal/logger"

// GetLogger returns the history package logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("history")
}
