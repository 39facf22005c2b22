package workspace

import "github.com/tphakala/boxlabel/internal/logger"

// GetLogger returns the workspace logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("workspace")
}
