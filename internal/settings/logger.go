package settings

import "github.com/tphakala/boxlabel/internal/logger"

// GetLogger returns the settings logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("settings")
}
