package domain

import "time"

// NormalizedMeasurement is the canonical, queryable form of a reading.
// Corresponds to the normalized_measurements table. Unique per
// (device_id, metric_type, timestamp). DeltaValue and QualityFlags are
// the only fields mutated after insert, and only by out-of-order repair.
type NormalizedMeasurement struct {
	ID           string // row id (uuid)
	RawEventID   string // back-reference to the originating RawEvent
	DeviceID     string
	BuildingID   string
	Timestamp    time.Time // UTC
	MetricType   MetricType
	Value        float64  // normalized into the standard unit
	Unit         string   // standard unit for the metric type
	DeltaValue   *float64 // nil for first readings and counter resets
	QualityFlags QualityFlags
	CreatedAt    time.Time
}
