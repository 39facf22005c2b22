package confidence

import "github.com/tphakala/boxlabel/internal/logger"

// GetLogger returns the confidence package logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("confidence")
}
