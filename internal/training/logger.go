package training

import "github.com/tphakala/boxlabel/internal/logger"

// GetLogger returns the training preferences logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("training")
}
