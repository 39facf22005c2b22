package predefined

import "github.com/tphakala/boxlabel/internal/logger"

// GetLogger returns the predefined package logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("predefined")
}
