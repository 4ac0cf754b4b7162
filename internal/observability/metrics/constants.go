// Package metrics provides Prometheus collectors for biosignal-go components.
package metrics

import "time"

const (
	// Namespace prefixes every metric name.
	Namespace = "biosignal"

	// ShutdownTimeout is the timeout for graceful shutdown operations.
	ShutdownTimeout = 5 * time.Second
)

// Label names
const (
	LabelDevice = "device_id"
	LabelFrom   = "from"
	LabelTo     = "to"
	LabelState  = "state"
	LabelStatus = "status"
)
