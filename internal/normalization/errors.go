package normalization

import "fmt"

// ValidationError rejects an ingest request before anything is
// persisted. Field names the offending request field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// ConflictError is returned when a series already holds a measurement
// at the same timestamp with different content. The stored point wins;
// the caller decides whether to surface or escalate.
type ConflictError struct {
	DeviceID   string
	MetricType string
	Timestamp  string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("series point conflict: device %s metric %s already has a different reading at %s",
		e.DeviceID, e.MetricType, e.Timestamp)
}
