package memory

import (
	"context"
	"sort"
	"time"

	"cenems-telemetry/internal/domain"
	"cenems-telemetry/internal/storage"
)

// buildingView implements storage.BuildingStore over a Store.
type buildingView struct {
	s       *Store
	locking bool
}

var _ storage.BuildingStore = buildingView{}

func (v buildingView) Upsert(_ context.Context, b *domain.Building) error {
	if b == nil || b.BuildingID == "" {
		return storage.ErrInvalidInput
	}
	if v.locking {
		v.s.mu.Lock()
		defer v.s.mu.Unlock()
	}
	if _, exists := v.s.buildings[b.BuildingID]; exists {
		return nil
	}
	c := *b
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	v.s.buildings[b.BuildingID] = &c
	return nil
}

func (v buildingView) List(_ context.Context) ([]*domain.BuildingSummary, error) {
	if v.locking {
		v.s.mu.RLock()
		defer v.s.mu.RUnlock()
	}

	counts := make(map[string]int, len(v.s.buildings))
	for _, d := range v.s.devices {
		counts[d.BuildingID]++
	}

	result := make([]*domain.BuildingSummary, 0, len(v.s.buildings))
	for _, b := range v.s.buildings {
		result = append(result, &domain.BuildingSummary{
			Building:    *b,
			DeviceCount: counts[b.BuildingID],
		})
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].BuildingID < result[j].BuildingID
	})
	return result, nil
}

// deviceView implements storage.DeviceStore over a Store.
type deviceView struct {
	s       *Store
	locking bool
}

var _ storage.DeviceStore = deviceView{}

func (v deviceView) Upsert(_ context.Context, d *domain.Device) error {
	if d == nil || d.DeviceID == "" {
		return storage.ErrInvalidInput
	}
	if v.locking {
		v.s.mu.Lock()
		defer v.s.mu.Unlock()
	}
	if _, exists := v.s.devices[d.DeviceID]; exists {
		return nil
	}
	c := *d
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	v.s.devices[d.DeviceID] = &c
	return nil
}

func (v deviceView) List(_ context.Context, buildingID string) ([]*domain.Device, error) {
	if v.locking {
		v.s.mu.RLock()
		defer v.s.mu.RUnlock()
	}

	var result []*domain.Device
	for _, d := range v.s.devices {
		if buildingID != "" && d.BuildingID != buildingID {
			continue
		}
		c := *d
		result = append(result, &c)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].DeviceID < result[j].DeviceID
	})
	return result, nil
}
