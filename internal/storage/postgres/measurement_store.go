package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"cenems-telemetry/internal/domain"
	"cenems-telemetry/internal/storage"
)

const measurementColumns = `
	id, raw_event_id, device_id, building_id, ts, metric_type,
	value, unit, delta_value, quality_flags, created_at
`

// MeasurementStore implements storage.MeasurementStore using PostgreSQL.
type MeasurementStore struct {
	q Querier
}

// Compile-time interface check.
var _ storage.MeasurementStore = (*MeasurementStore)(nil)

// Insert adds a measurement. Returns ErrDuplicateKey when the
// (device_id, metric_type, ts) constraint fires.
func (s *MeasurementStore) Insert(ctx context.Context, m *domain.NormalizedMeasurement) error {
	query := `
		INSERT INTO normalized_measurements (
			id, raw_event_id, device_id, building_id, ts, metric_type,
			value, unit, delta_value, quality_flags
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err := s.q.Exec(ctx, query,
		m.ID,
		m.RawEventID,
		m.DeviceID,
		m.BuildingID,
		m.Timestamp,
		string(m.MetricType),
		m.Value,
		m.Unit,
		m.DeltaValue,
		[]string(m.QualityFlags),
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert measurement: %w", err)
	}
	return nil
}

// Latest retrieves the measurement with the greatest timestamp.
func (s *MeasurementStore) Latest(ctx context.Context, deviceID string, metricType domain.MetricType) (*domain.NormalizedMeasurement, error) {
	query := `
		SELECT ` + measurementColumns + `
		FROM normalized_measurements
		WHERE device_id = $1 AND metric_type = $2
		ORDER BY ts DESC
		LIMIT 1
	`

	m, err := scanMeasurement(s.q.QueryRow(ctx, query, deviceID, string(metricType)))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get latest measurement: %w", err)
	}
	return m, nil
}

// FindBefore retrieves the measurement with the greatest timestamp
// strictly less than ts.
func (s *MeasurementStore) FindBefore(ctx context.Context, deviceID string, metricType domain.MetricType, ts time.Time) (*domain.NormalizedMeasurement, error) {
	query := `
		SELECT ` + measurementColumns + `
		FROM normalized_measurements
		WHERE device_id = $1 AND metric_type = $2 AND ts < $3
		ORDER BY ts DESC
		LIMIT 1
	`

	m, err := scanMeasurement(s.q.QueryRow(ctx, query, deviceID, string(metricType), ts))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("find measurement before: %w", err)
	}
	return m, nil
}

// FindAfter retrieves the measurement with the smallest timestamp
// strictly greater than ts.
func (s *MeasurementStore) FindAfter(ctx context.Context, deviceID string, metricType domain.MetricType, ts time.Time) (*domain.NormalizedMeasurement, error) {
	query := `
		SELECT ` + measurementColumns + `
		FROM normalized_measurements
		WHERE device_id = $1 AND metric_type = $2 AND ts > $3
		ORDER BY ts ASC
		LIMIT 1
	`

	m, err := scanMeasurement(s.q.QueryRow(ctx, query, deviceID, string(metricType), ts))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("find measurement after: %w", err)
	}
	return m, nil
}

// UpdateDelta rewrites delta_value and quality_flags in place.
func (s *MeasurementStore) UpdateDelta(ctx context.Context, id string, delta *float64, flags domain.QualityFlags) error {
	query := `
		UPDATE normalized_measurements
		SET delta_value = $2, quality_flags = $3
		WHERE id = $1
	`

	tag, err := s.q.Exec(ctx, query, id, delta, []string(flags))
	if err != nil {
		return fmt.Errorf("update measurement delta: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// GetByTimeRange retrieves measurements within [start, end] inclusive,
// ordered by timestamp ASC.
func (s *MeasurementStore) GetByTimeRange(ctx context.Context, deviceID string, metricType domain.MetricType, start, end time.Time) ([]*domain.NormalizedMeasurement, error) {
	query := `
		SELECT ` + measurementColumns + `
		FROM normalized_measurements
		WHERE device_id = $1 AND metric_type = $2 AND ts >= $3 AND ts <= $4
		ORDER BY ts ASC
	`

	rows, err := s.q.Query(ctx, query, deviceID, string(metricType), start, end)
	if err != nil {
		return nil, fmt.Errorf("get measurements by time range: %w", err)
	}
	defer rows.Close()

	var result []*domain.NormalizedMeasurement
	for rows.Next() {
		m, err := scanMeasurement(rows)
		if err != nil {
			return nil, fmt.Errorf("scan measurement row: %w", err)
		}
		result = append(result, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate measurement rows: %w", err)
	}
	return result, nil
}

// scanMeasurement scans a single row into a NormalizedMeasurement.
func scanMeasurement(row pgx.Row) (*domain.NormalizedMeasurement, error) {
	var m domain.NormalizedMeasurement
	var metricType string
	var flags []string

	err := row.Scan(
		&m.ID,
		&m.RawEventID,
		&m.DeviceID,
		&m.BuildingID,
		&m.Timestamp,
		&metricType,
		&m.Value,
		&m.Unit,
		&m.DeltaValue,
		&flags,
		&m.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	m.MetricType = domain.MetricType(metricType)
	m.Timestamp = m.Timestamp.UTC()
	m.QualityFlags = domain.NewQualityFlags(flags...)
	return &m, nil
}
