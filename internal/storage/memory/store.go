// Package memory provides an in-memory storage backend. It mirrors the
// semantics of the postgres backend (uniqueness, ordered lookups,
// all-or-nothing transactions) and serves tests and the --use-memory
// server mode.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"cenems-telemetry/internal/domain"
	"cenems-telemetry/internal/storage"
)

// Store is an in-memory implementation of storage.Backend.
//
// Transactions take the store-wide lock, snapshot the maps, and restore
// the snapshot when the transaction function fails. With the pipeline's
// per-key serialization on top, this gives the same observable
// atomicity as a database transaction.
type Store struct {
	mu           sync.RWMutex
	rawEvents    map[string]*domain.RawEvent              // keyed by event_id
	measurements map[string]*domain.NormalizedMeasurement // keyed by row id
	seriesIndex  map[string]string                        // series key -> row id
	buildings    map[string]*domain.Building              // keyed by building_id
	devices      map[string]*domain.Device                // keyed by device_id
}

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{
		rawEvents:    make(map[string]*domain.RawEvent),
		measurements: make(map[string]*domain.NormalizedMeasurement),
		seriesIndex:  make(map[string]string),
		buildings:    make(map[string]*domain.Building),
		devices:      make(map[string]*domain.Device),
	}
}

// Compile-time interface check.
var _ storage.Backend = (*Store)(nil)

// seriesKey generates the uniqueness key for a measurement.
func seriesKey(deviceID string, metricType domain.MetricType, ts time.Time) string {
	return fmt.Sprintf("%s|%s|%d", deviceID, metricType, ts.UnixNano())
}

// RawEvents returns a self-locking raw event store view.
func (s *Store) RawEvents() storage.RawEventStore {
	return rawEventView{s: s, locking: true}
}

// Measurements returns a self-locking measurement store view.
func (s *Store) Measurements() storage.MeasurementStore {
	return measurementView{s: s, locking: true}
}

// Buildings returns a self-locking building store view.
func (s *Store) Buildings() storage.BuildingStore {
	return buildingView{s: s, locking: true}
}

// Devices returns a self-locking device store view.
func (s *Store) Devices() storage.DeviceStore {
	return deviceView{s: s, locking: true}
}

// RunInTx executes fn atomically. The store-wide lock is held for the
// duration; fn receives non-locking views. A pre-transaction snapshot
// is restored when fn fails, so a failed unit of work leaves no partial
// writes behind.
func (s *Store) RunInTx(_ context.Context, fn func(tx storage.Stores) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.snapshot()
	if err := fn(txStores{s: s}); err != nil {
		s.restore(snap)
		return err
	}
	return nil
}

// txStores hands out non-locking views inside a transaction.
type txStores struct {
	s *Store
}

func (t txStores) RawEvents() storage.RawEventStore       { return rawEventView{s: t.s} }
func (t txStores) Measurements() storage.MeasurementStore { return measurementView{s: t.s} }
func (t txStores) Buildings() storage.BuildingStore       { return buildingView{s: t.s} }
func (t txStores) Devices() storage.DeviceStore           { return deviceView{s: t.s} }

// snapshot captures the current map state. Values are copied so
// post-snapshot updates cannot leak into it.
type storeSnapshot struct {
	rawEvents    map[string]*domain.RawEvent
	measurements map[string]*domain.NormalizedMeasurement
	seriesIndex  map[string]string
	buildings    map[string]*domain.Building
	devices      map[string]*domain.Device
}

func (s *Store) snapshot() storeSnapshot {
	snap := storeSnapshot{
		rawEvents:    make(map[string]*domain.RawEvent, len(s.rawEvents)),
		measurements: make(map[string]*domain.NormalizedMeasurement, len(s.measurements)),
		seriesIndex:  make(map[string]string, len(s.seriesIndex)),
		buildings:    make(map[string]*domain.Building, len(s.buildings)),
		devices:      make(map[string]*domain.Device, len(s.devices)),
	}
	for k, v := range s.rawEvents {
		snap.rawEvents[k] = copyRawEvent(v)
	}
	for k, v := range s.measurements {
		snap.measurements[k] = copyMeasurement(v)
	}
	for k, v := range s.seriesIndex {
		snap.seriesIndex[k] = v
	}
	for k, v := range s.buildings {
		b := *v
		snap.buildings[k] = &b
	}
	for k, v := range s.devices {
		d := *v
		snap.devices[k] = &d
	}
	return snap
}

func (s *Store) restore(snap storeSnapshot) {
	s.rawEvents = snap.rawEvents
	s.measurements = snap.measurements
	s.seriesIndex = snap.seriesIndex
	s.buildings = snap.buildings
	s.devices = snap.devices
}

func copyRawEvent(e *domain.RawEvent) *domain.RawEvent {
	c := *e
	if e.Payload != nil {
		c.Payload = append([]byte(nil), e.Payload...)
	}
	return &c
}

func copyMeasurement(m *domain.NormalizedMeasurement) *domain.NormalizedMeasurement {
	c := *m
	if m.DeltaValue != nil {
		d := *m.DeltaValue
		c.DeltaValue = &d
	}
	if m.QualityFlags != nil {
		c.QualityFlags = append(domain.QualityFlags(nil), m.QualityFlags...)
	}
	return &c
}
