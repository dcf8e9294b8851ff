package clickhouse

import (
	"context"
	"fmt"
	"time"

	"cenems-telemetry/internal/domain"
)

// ArchiveStore implements the measurement archive using ClickHouse.
type ArchiveStore struct {
	conn *Conn
}

// NewArchiveStore creates a new ArchiveStore.
func NewArchiveStore(conn *Conn) *ArchiveStore {
	return &ArchiveStore{conn: conn}
}

// InsertBatch appends a batch of measurements to the archive. The
// MergeTree table does not enforce uniqueness; the archiver only feeds
// it rows that passed the ingest idempotency boundary.
func (s *ArchiveStore) InsertBatch(ctx context.Context, measurements []*domain.NormalizedMeasurement) error {
	if len(measurements) == 0 {
		return nil
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO measurement_archive (
			measurement_id, device_id, building_id, ts, metric_type,
			value, unit, delta_value, quality_flags
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, m := range measurements {
		err = batch.Append(
			m.ID, m.DeviceID, m.BuildingID, m.Timestamp, string(m.MetricType),
			m.Value, m.Unit, m.DeltaValue, []string(m.QualityFlags),
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}

	return nil
}

// GetByTimeRange retrieves archived rows for a device and metric within
// [start, end] inclusive, ordered by timestamp ASC.
func (s *ArchiveStore) GetByTimeRange(ctx context.Context, deviceID string, metricType domain.MetricType, start, end time.Time) ([]*domain.NormalizedMeasurement, error) {
	query := `
		SELECT measurement_id, device_id, building_id, ts, metric_type,
		       value, unit, delta_value, quality_flags
		FROM measurement_archive
		WHERE device_id = ? AND metric_type = ? AND ts >= ? AND ts <= ?
		ORDER BY ts ASC
	`

	rows, err := s.conn.Query(ctx, query, deviceID, string(metricType), start, end)
	if err != nil {
		return nil, fmt.Errorf("query archive by time range: %w", err)
	}
	defer rows.Close()

	var result []*domain.NormalizedMeasurement
	for rows.Next() {
		var m domain.NormalizedMeasurement
		var metricType string
		var flags []string

		err := rows.Scan(
			&m.ID, &m.DeviceID, &m.BuildingID, &m.Timestamp, &metricType,
			&m.Value, &m.Unit, &m.DeltaValue, &flags,
		)
		if err != nil {
			return nil, fmt.Errorf("scan archive row: %w", err)
		}

		m.MetricType = domain.MetricType(metricType)
		m.Timestamp = m.Timestamp.UTC()
		m.QualityFlags = domain.NewQualityFlags(flags...)
		result = append(result, &m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate archive rows: %w", err)
	}

	return result, nil
}
