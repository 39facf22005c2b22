package app

import "github.com/tphakala/boxlabel/internal/logger"

// GetLogger returns the application logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("app")
}
