package conf

import "github.com/tphakala/fragring/internal/logger"

// GetLogger returns the config package logger, fetched from the global
// logger on each call so it follows SetGlobal.
func GetLogger() logger.Logger {
	return logger.Global().Module("config")
}
