package classes

import "github.com/tphakala/boxlabel/internal/logger"

// GetLogger returns the classes package logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("classes")
}
