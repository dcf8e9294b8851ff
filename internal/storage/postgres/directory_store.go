package postgres

import (
	"context"
	"fmt"

	"cenems-telemetry/internal/domain"
	"cenems-telemetry/internal/storage"
)

// BuildingStore implements storage.BuildingStore using PostgreSQL.
type BuildingStore struct {
	q Querier
}

// Compile-time interface check.
var _ storage.BuildingStore = (*BuildingStore)(nil)

// Upsert creates the building if absent; existing rows are untouched.
func (s *BuildingStore) Upsert(ctx context.Context, b *domain.Building) error {
	query := `
		INSERT INTO buildings (building_id, name, address)
		VALUES ($1, $2, $3)
		ON CONFLICT (building_id) DO NOTHING
	`

	if _, err := s.q.Exec(ctx, query, b.BuildingID, b.Name, b.Address); err != nil {
		return fmt.Errorf("upsert building: %w", err)
	}
	return nil
}

// List retrieves all buildings with their device counts.
func (s *BuildingStore) List(ctx context.Context) ([]*domain.BuildingSummary, error) {
	query := `
		SELECT b.building_id, b.name, b.address, b.created_at, COUNT(d.device_id)
		FROM buildings b
		LEFT JOIN devices d ON d.building_id = b.building_id
		GROUP BY b.building_id, b.name, b.address, b.created_at
		ORDER BY b.building_id ASC
	`

	rows, err := s.q.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list buildings: %w", err)
	}
	defer rows.Close()

	var result []*domain.BuildingSummary
	for rows.Next() {
		var b domain.BuildingSummary
		if err := rows.Scan(&b.BuildingID, &b.Name, &b.Address, &b.CreatedAt, &b.DeviceCount); err != nil {
			return nil, fmt.Errorf("scan building row: %w", err)
		}
		result = append(result, &b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate building rows: %w", err)
	}
	return result, nil
}

// DeviceStore implements storage.DeviceStore using PostgreSQL.
type DeviceStore struct {
	q Querier
}

// Compile-time interface check.
var _ storage.DeviceStore = (*DeviceStore)(nil)

// Upsert creates the device if absent; existing rows are untouched.
func (s *DeviceStore) Upsert(ctx context.Context, d *domain.Device) error {
	query := `
		INSERT INTO devices (device_id, building_id, name)
		VALUES ($1, $2, $3)
		ON CONFLICT (device_id) DO NOTHING
	`

	if _, err := s.q.Exec(ctx, query, d.DeviceID, d.BuildingID, d.Name); err != nil {
		return fmt.Errorf("upsert device: %w", err)
	}
	return nil
}

// List retrieves devices, filtered by building when buildingID is set.
func (s *DeviceStore) List(ctx context.Context, buildingID string) ([]*domain.Device, error) {
	query := `
		SELECT device_id, building_id, name, created_at
		FROM devices
		WHERE $1 = '' OR building_id = $1
		ORDER BY device_id ASC
	`

	rows, err := s.q.Query(ctx, query, buildingID)
	if err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}
	defer rows.Close()

	var result []*domain.Device
	for rows.Next() {
		var d domain.Device
		if err := rows.Scan(&d.DeviceID, &d.BuildingID, &d.Name, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan device row: %w", err)
		}
		result = append(result, &d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate device rows: %w", err)
	}
	return result, nil
}
