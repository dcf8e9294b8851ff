// Package postgres implements the storage contract on PostgreSQL via
// pgx. Uniqueness constraints back the ingest idempotency boundary;
// RunInTx maps the pipeline's unit of work onto a real transaction.
package postgres

import (
	"context"
	"fmt"

	"cenems-telemetry/internal/storage"
)

// DB is the PostgreSQL implementation of storage.Backend.
type DB struct {
	pool *Pool
}

// NewDB creates a DB over an established pool.
func NewDB(pool *Pool) *DB {
	return &DB{pool: pool}
}

// Compile-time interface check.
var _ storage.Backend = (*DB)(nil)

// RawEvents returns a raw event store executing against the pool.
func (d *DB) RawEvents() storage.RawEventStore {
	return &RawEventStore{q: d.pool}
}

// Measurements returns a measurement store executing against the pool.
func (d *DB) Measurements() storage.MeasurementStore {
	return &MeasurementStore{q: d.pool}
}

// Buildings returns a building store executing against the pool.
func (d *DB) Buildings() storage.BuildingStore {
	return &BuildingStore{q: d.pool}
}

// Devices returns a device store executing against the pool.
func (d *DB) Devices() storage.DeviceStore {
	return &DeviceStore{q: d.pool}
}

// RunInTx runs fn inside a database transaction. Any error from fn (or
// from commit) rolls the whole unit of work back.
func (d *DB) RunInTx(ctx context.Context, fn func(tx storage.Stores) error) error {
	tx, err := d.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(txStores{q: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// txStores hands out store views bound to one transaction.
type txStores struct {
	q Querier
}

func (t txStores) RawEvents() storage.RawEventStore       { return &RawEventStore{q: t.q} }
func (t txStores) Measurements() storage.MeasurementStore { return &MeasurementStore{q: t.q} }
func (t txStores) Buildings() storage.BuildingStore       { return &BuildingStore{q: t.q} }
func (t txStores) Devices() storage.DeviceStore           { return &DeviceStore{q: t.q} }
