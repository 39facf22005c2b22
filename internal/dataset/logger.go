package dataset

import "github.com/tphakala/boxlabel/internal/logger"

// GetLogger returns the dataset package logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("dataset")
}
