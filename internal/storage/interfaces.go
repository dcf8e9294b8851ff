// Package storage defines the series-store contract the normalization
// core depends on: ordered lookup and unique insertion of measurements
// keyed by device, metric and time.
package storage

import (
	"context"
	"time"

	"cenems-telemetry/internal/domain"
)

// RawEventStore provides access to the immutable raw event audit log.
type RawEventStore interface {
	// Insert adds a raw event. Returns ErrDuplicateKey if event_id exists.
	Insert(ctx context.Context, e *domain.RawEvent) error

	// GetByEventID retrieves a raw event by its content-hash id.
	// Returns ErrNotFound if not exists.
	GetByEventID(ctx context.Context, eventID string) (*domain.RawEvent, error)
}

// MeasurementStore provides ordered access to normalized measurements
// per (device, metric) series.
type MeasurementStore interface {
	// Insert adds a measurement. Returns ErrDuplicateKey if
	// (device_id, metric_type, timestamp) exists.
	Insert(ctx context.Context, m *domain.NormalizedMeasurement) error

	// Latest retrieves the measurement with the greatest timestamp for
	// the series. Returns ErrNotFound when the series is empty.
	Latest(ctx context.Context, deviceID string, metricType domain.MetricType) (*domain.NormalizedMeasurement, error)

	// FindBefore retrieves the measurement with the greatest timestamp
	// strictly less than ts. Returns ErrNotFound when none exists.
	FindBefore(ctx context.Context, deviceID string, metricType domain.MetricType, ts time.Time) (*domain.NormalizedMeasurement, error)

	// FindAfter retrieves the measurement with the smallest timestamp
	// strictly greater than ts. Returns ErrNotFound when none exists.
	FindAfter(ctx context.Context, deviceID string, metricType domain.MetricType, ts time.Time) (*domain.NormalizedMeasurement, error)

	// UpdateDelta rewrites a measurement's delta and flags in place.
	// Only out-of-order repair calls this; flags must already be the
	// merged (existing ∪ new) set.
	UpdateDelta(ctx context.Context, id string, delta *float64, flags domain.QualityFlags) error

	// GetByTimeRange retrieves measurements within [start, end]
	// (inclusive), ordered by timestamp ASC.
	GetByTimeRange(ctx context.Context, deviceID string, metricType domain.MetricType, start, end time.Time) ([]*domain.NormalizedMeasurement, error)
}

// BuildingStore provides access to the building directory.
type BuildingStore interface {
	// Upsert creates the building if absent; existing rows are left as is.
	Upsert(ctx context.Context, b *domain.Building) error

	// List retrieves all buildings with their device counts.
	List(ctx context.Context) ([]*domain.BuildingSummary, error)
}

// DeviceStore provides access to the device directory.
type DeviceStore interface {
	// Upsert creates the device if absent; existing rows are left as is.
	Upsert(ctx context.Context, d *domain.Device) error

	// List retrieves devices, filtered by building when buildingID is
	// non-empty.
	List(ctx context.Context, buildingID string) ([]*domain.Device, error)
}

// Stores bundles the individual store interfaces behind one access
// point, so a transaction can hand out transactional views of each.
type Stores interface {
	RawEvents() RawEventStore
	Measurements() MeasurementStore
	Buildings() BuildingStore
	Devices() DeviceStore
}

// TxRunner executes a function inside one atomic unit of work. The
// function receives transactional store views; any error rolls back
// everything written through them. Partial writes are never observable.
type TxRunner interface {
	RunInTx(ctx context.Context, fn func(tx Stores) error) error
}

// Backend is a full storage backend: direct store access plus the
// transactional runner.
type Backend interface {
	Stores
	TxRunner
}
