package postgres

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cenems-telemetry/internal/domain"
)

func TestBuildingStore_UpsertIsCreateIfAbsent(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := &BuildingStore{q: pool}
	ctx := context.Background()

	err := store.Upsert(ctx, &domain.Building{BuildingID: "building-a", Name: "Main Hall"})
	require.NoError(t, err)

	// Second upsert with different attributes leaves the row untouched
	err = store.Upsert(ctx, &domain.Building{BuildingID: "building-a", Name: "Renamed"})
	require.NoError(t, err)

	buildings, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, buildings, 1)
	assert.Equal(t, "building-a", buildings[0].BuildingID)
	assert.Equal(t, "Main Hall", buildings[0].Name)
	assert.NotZero(t, buildings[0].CreatedAt)
}

func TestBuildingStore_ListWithDeviceCounts(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	buildings := &BuildingStore{q: pool}
	devices := &DeviceStore{q: pool}
	ctx := context.Background()

	require.NoError(t, buildings.Upsert(ctx, &domain.Building{BuildingID: "building-a"}))
	require.NoError(t, buildings.Upsert(ctx, &domain.Building{BuildingID: "building-b"}))

	require.NoError(t, devices.Upsert(ctx, &domain.Device{DeviceID: "meter-001", BuildingID: "building-a"}))
	require.NoError(t, devices.Upsert(ctx, &domain.Device{DeviceID: "meter-002", BuildingID: "building-a"}))

	result, err := buildings.List(ctx)
	require.NoError(t, err)
	require.Len(t, result, 2)

	assert.Equal(t, "building-a", result[0].BuildingID)
	assert.Equal(t, 2, result[0].DeviceCount)
	assert.Equal(t, "building-b", result[1].BuildingID)
	assert.Equal(t, 0, result[1].DeviceCount)
}

func TestDeviceStore_ListFilterByBuilding(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	buildings := &BuildingStore{q: pool}
	devices := &DeviceStore{q: pool}
	ctx := context.Background()

	require.NoError(t, buildings.Upsert(ctx, &domain.Building{BuildingID: "building-a"}))
	require.NoError(t, buildings.Upsert(ctx, &domain.Building{BuildingID: "building-b"}))

	require.NoError(t, devices.Upsert(ctx, &domain.Device{DeviceID: "meter-001", BuildingID: "building-a"}))
	require.NoError(t, devices.Upsert(ctx, &domain.Device{DeviceID: "meter-002", BuildingID: "building-b"}))

	// Upsert on an existing device is a no-op
	require.NoError(t, devices.Upsert(ctx, &domain.Device{DeviceID: "meter-001", BuildingID: "building-a", Name: "changed"}))

	all, err := devices.List(ctx, "")
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "meter-001", all[0].DeviceID)
	assert.Empty(t, all[0].Name)

	onlyB, err := devices.List(ctx, "building-b")
	require.NoError(t, err)
	require.Len(t, onlyB, 1)
	assert.Equal(t, "meter-002", onlyB[0].DeviceID)
}
