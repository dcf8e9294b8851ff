package domain

import (
	"encoding/json"
	"time"
)

// RawEvent is the immutable audit record of an accepted ingest call.
// Corresponds to the raw_events table. Written once by the pipeline,
// never mutated or deleted.
type RawEvent struct {
	ID         string          // row id (uuid)
	EventID    string          // deterministic SHA-256 content hash, UNIQUE
	DeviceID   string
	BuildingID string
	Timestamp  time.Time       // normalized UTC instant
	MetricType MetricType
	Value      float64         // value as received, original unit
	Unit       string          // unit as received
	Payload    json.RawMessage // original request body
	CreatedAt  time.Time
}
