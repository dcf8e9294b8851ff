package postgres

import (
	"context"
	"fmt"

	"cenems-telemetry/internal/domain"
	"cenems-telemetry/internal/storage"
)

// RawEventStore implements storage.RawEventStore using PostgreSQL.
type RawEventStore struct {
	q Querier
}

// Compile-time interface check.
var _ storage.RawEventStore = (*RawEventStore)(nil)

// Insert adds a raw event. Returns ErrDuplicateKey if event_id exists.
func (s *RawEventStore) Insert(ctx context.Context, e *domain.RawEvent) error {
	query := `
		INSERT INTO raw_events (
			id, event_id, device_id, building_id, ts, metric_type, value, unit, payload
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9::jsonb)
	`

	payload := "null"
	if len(e.Payload) > 0 {
		payload = string(e.Payload)
	}

	_, err := s.q.Exec(ctx, query,
		e.ID,
		e.EventID,
		e.DeviceID,
		e.BuildingID,
		e.Timestamp,
		string(e.MetricType),
		e.Value,
		e.Unit,
		payload,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert raw event: %w", err)
	}
	return nil
}

// GetByEventID retrieves a raw event by its content-hash id.
func (s *RawEventStore) GetByEventID(ctx context.Context, eventID string) (*domain.RawEvent, error) {
	query := `
		SELECT id, event_id, device_id, building_id, ts, metric_type, value, unit, payload, created_at
		FROM raw_events
		WHERE event_id = $1
	`

	var e domain.RawEvent
	var metricType string
	err := s.q.QueryRow(ctx, query, eventID).Scan(
		&e.ID,
		&e.EventID,
		&e.DeviceID,
		&e.BuildingID,
		&e.Timestamp,
		&metricType,
		&e.Value,
		&e.Unit,
		&e.Payload,
		&e.CreatedAt,
	)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get raw event by event id: %w", err)
	}

	e.MetricType = domain.MetricType(metricType)
	e.Timestamp = e.Timestamp.UTC()
	return &e, nil
}
