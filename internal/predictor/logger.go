package predictor

import "github.com/tphakala/boxlabel/internal/logger"

// GetLogger returns the predictor package logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("predictor")
}
