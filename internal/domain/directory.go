package domain

import "time"

// Building is a thin directory row, auto-created on first ingest for an
// unknown building_id.
type Building struct {
	BuildingID string
	Name       string
	Address    string
	CreatedAt  time.Time
}

// Device is a thin directory row, auto-created on first ingest for an
// unknown device_id.
type Device struct {
	DeviceID   string
	BuildingID string
	Name       string
	CreatedAt  time.Time
}

// BuildingSummary is a Building with its device count, as returned by
// the directory listing.
type BuildingSummary struct {
	Building
	DeviceCount int
}
