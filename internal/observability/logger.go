// Package observability serves Prometheus metrics for biosignal-go.
package observability

import "github.com/tphakala/biosignal-go/internal/logger"

// GetLogger returns the telemetry module logger
func GetLogger() logger.Logger {
	return logger.Global().Module("telemetry")
}
