package acquisition

import "github.com/tphakala/biosignal-go/internal/logger"

// GetLogger returns the acquisition module logger from the current global logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("acquisition")
}
