package memory

import (
	"context"
	"sort"
	"time"

	"cenems-telemetry/internal/domain"
	"cenems-telemetry/internal/storage"
)

// measurementView implements storage.MeasurementStore over a Store.
type measurementView struct {
	s       *Store
	locking bool
}

var _ storage.MeasurementStore = measurementView{}

func (v measurementView) Insert(_ context.Context, m *domain.NormalizedMeasurement) error {
	if m == nil || m.ID == "" || m.DeviceID == "" {
		return storage.ErrInvalidInput
	}
	if v.locking {
		v.s.mu.Lock()
		defer v.s.mu.Unlock()
	}
	return v.s.insertMeasurement(m)
}

func (v measurementView) Latest(_ context.Context, deviceID string, metricType domain.MetricType) (*domain.NormalizedMeasurement, error) {
	if v.locking {
		v.s.mu.RLock()
		defer v.s.mu.RUnlock()
	}

	var latest *domain.NormalizedMeasurement
	for _, m := range v.s.measurements {
		if m.DeviceID != deviceID || m.MetricType != metricType {
			continue
		}
		if latest == nil || m.Timestamp.After(latest.Timestamp) {
			latest = m
		}
	}
	if latest == nil {
		return nil, storage.ErrNotFound
	}
	return copyMeasurement(latest), nil
}

func (v measurementView) FindBefore(_ context.Context, deviceID string, metricType domain.MetricType, ts time.Time) (*domain.NormalizedMeasurement, error) {
	if v.locking {
		v.s.mu.RLock()
		defer v.s.mu.RUnlock()
	}

	var best *domain.NormalizedMeasurement
	for _, m := range v.s.measurements {
		if m.DeviceID != deviceID || m.MetricType != metricType {
			continue
		}
		if !m.Timestamp.Before(ts) {
			continue
		}
		if best == nil || m.Timestamp.After(best.Timestamp) {
			best = m
		}
	}
	if best == nil {
		return nil, storage.ErrNotFound
	}
	return copyMeasurement(best), nil
}

func (v measurementView) FindAfter(_ context.Context, deviceID string, metricType domain.MetricType, ts time.Time) (*domain.NormalizedMeasurement, error) {
	if v.locking {
		v.s.mu.RLock()
		defer v.s.mu.RUnlock()
	}

	var best *domain.NormalizedMeasurement
	for _, m := range v.s.measurements {
		if m.DeviceID != deviceID || m.MetricType != metricType {
			continue
		}
		if !m.Timestamp.After(ts) {
			continue
		}
		if best == nil || m.Timestamp.Before(best.Timestamp) {
			best = m
		}
	}
	if best == nil {
		return nil, storage.ErrNotFound
	}
	return copyMeasurement(best), nil
}

func (v measurementView) UpdateDelta(_ context.Context, id string, delta *float64, flags domain.QualityFlags) error {
	if v.locking {
		v.s.mu.Lock()
		defer v.s.mu.Unlock()
	}

	m, exists := v.s.measurements[id]
	if !exists {
		return storage.ErrNotFound
	}
	if delta != nil {
		d := *delta
		m.DeltaValue = &d
	} else {
		m.DeltaValue = nil
	}
	m.QualityFlags = append(domain.QualityFlags(nil), flags...)
	return nil
}

func (v measurementView) GetByTimeRange(_ context.Context, deviceID string, metricType domain.MetricType, start, end time.Time) ([]*domain.NormalizedMeasurement, error) {
	if v.locking {
		v.s.mu.RLock()
		defer v.s.mu.RUnlock()
	}

	var result []*domain.NormalizedMeasurement
	for _, m := range v.s.measurements {
		if m.DeviceID != deviceID || m.MetricType != metricType {
			continue
		}
		if m.Timestamp.Before(start) || m.Timestamp.After(end) {
			continue
		}
		result = append(result, copyMeasurement(m))
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Timestamp.Before(result[j].Timestamp)
	})
	return result, nil
}

func (s *Store) insertMeasurement(m *domain.NormalizedMeasurement) error {
	key := seriesKey(m.DeviceID, m.MetricType, m.Timestamp)
	if _, exists := s.seriesIndex[key]; exists {
		return storage.ErrDuplicateKey
	}
	if _, exists := s.measurements[m.ID]; exists {
		return storage.ErrDuplicateKey
	}
	c := copyMeasurement(m)
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	s.measurements[m.ID] = c
	s.seriesIndex[key] = m.ID
	return nil
}
