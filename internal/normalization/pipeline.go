// Package normalization implements the ingest pipeline: validation,
// deduplication, unit and timestamp normalization, delta computation
// and out-of-order repair, all inside one storage transaction per
// event.
package normalization

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"cenems-telemetry/internal/delta"
	"cenems-telemetry/internal/domain"
	"cenems-telemetry/internal/idhash"
	"cenems-telemetry/internal/keylock"
	"cenems-telemetry/internal/observability"
	"cenems-telemetry/internal/storage"
	"cenems-telemetry/internal/timeutil"
	"cenems-telemetry/internal/units"
)

// Ingest outcomes.
const (
	StatusIngested  = "ingested"
	StatusDuplicate = "duplicate"
)

// maxIdentifierLen bounds device_id and building_id.
const maxIdentifierLen = 100

// errDuplicateEvent aborts the transaction when the event hash is
// already stored. The rollback discards the directory upserts, which
// is safe: a duplicate event implies an earlier ingest already created
// them.
var errDuplicateEvent = errors.New("duplicate event")

// Options holds pipeline configuration.
type Options struct {
	// SuspiciousThreshold is the delta magnitude above which the
	// suspicious_jump flag is assigned. Non-positive selects the default.
	SuspiciousThreshold float64

	// CascadeRepair extends out-of-order repair beyond the immediate
	// successor, walking forward until a recomputation changes nothing.
	// Off by default: a single insert only changes the immediate
	// successor's predecessor.
	CascadeRepair bool
}

// IngestRequest is one meter reading as received on the wire. Timestamp
// stays a string until the pipeline normalizes it; the raw form also
// feeds the event hash. EventID is the optional client-supplied dedup
// id; when empty the pipeline derives one from the reading's content.
type IngestRequest struct {
	EventID    string
	DeviceID   string
	BuildingID string
	Timestamp  string
	MetricType string
	Value      float64
	Unit       string
	Payload    json.RawMessage
}

// Result reports the outcome of one ingest call.
type Result struct {
	Status      string
	EventID     string
	Measurement *domain.NormalizedMeasurement
}

// Pipeline normalizes and persists meter readings. Safe for concurrent
// use; ingests for the same (device, metric) series are serialized.
type Pipeline struct {
	backend storage.Backend
	locks   *keylock.KeyMutex
	units   *units.Converter
	engine  *delta.Engine
	opts    Options
}

// NewPipeline creates a Pipeline over the storage backend.
func NewPipeline(backend storage.Backend, opts Options) *Pipeline {
	return &Pipeline{
		backend: backend,
		locks:   keylock.New(),
		units:   units.NewConverter(),
		engine:  delta.NewEngine(opts.SuspiciousThreshold),
		opts:    opts,
	}
}

// Ingest runs one reading through the full pipeline. Validation
// failures return *ValidationError with nothing persisted; resubmission
// of a known event returns StatusDuplicate; a same-timestamp reading
// with different content returns *ConflictError.
func (p *Pipeline) Ingest(ctx context.Context, req *IngestRequest) (*Result, error) {
	start := time.Now()

	metricType, ts, normValue, err := p.validate(req)
	if err != nil {
		return nil, err
	}

	eventID := req.EventID
	if eventID == "" {
		eventID = idhash.ComputeEventID(
			req.DeviceID, req.Timestamp, string(metricType), idhash.FormatValue(req.Value))
	}

	// Serialize the read-then-write sequence per series. Events for
	// other devices and metrics proceed in parallel.
	seriesKey := req.DeviceID + "|" + string(metricType)
	p.locks.Lock(seriesKey)
	defer p.locks.Unlock(seriesKey)

	var measurement *domain.NormalizedMeasurement
	txErr := p.backend.RunInTx(ctx, func(tx storage.Stores) error {
		raw := &domain.RawEvent{
			ID:         uuid.NewString(),
			EventID:    eventID,
			DeviceID:   req.DeviceID,
			BuildingID: req.BuildingID,
			Timestamp:  ts,
			MetricType: metricType,
			Value:      req.Value,
			Unit:       req.Unit,
			Payload:    req.Payload,
		}
		if err := tx.RawEvents().Insert(ctx, raw); err != nil {
			if errors.Is(err, storage.ErrDuplicateKey) {
				return errDuplicateEvent
			}
			return fmt.Errorf("insert raw event: %w", err)
		}

		if err := p.registerDirectory(ctx, tx, req); err != nil {
			return err
		}

		m, err := p.normalize(ctx, tx, raw, normValue)
		if err != nil {
			return err
		}
		measurement = m
		return nil
	})

	switch {
	case errors.Is(txErr, errDuplicateEvent):
		observability.RecordIngest(StatusDuplicate, time.Since(start).Seconds())
		return &Result{Status: StatusDuplicate, EventID: eventID}, nil
	case txErr != nil:
		var conflict *ConflictError
		if errors.As(txErr, &conflict) {
			observability.RecordConflict()
		}
		return nil, txErr
	}

	observability.RecordIngest(StatusIngested, time.Since(start).Seconds())
	observability.RecordQualityFlags(measurement.QualityFlags)
	observability.DefaultMetrics.LastSuccessfulIngest.SetToCurrentTime()

	return &Result{Status: StatusIngested, EventID: eventID, Measurement: measurement}, nil
}

// validate checks the request and resolves its normalized parts.
func (p *Pipeline) validate(req *IngestRequest) (domain.MetricType, time.Time, float64, error) {
	fail := func(field, reason string) (domain.MetricType, time.Time, float64, error) {
		observability.RecordValidationError(field)
		return "", time.Time{}, 0, &ValidationError{Field: field, Reason: reason}
	}

	if req.DeviceID == "" {
		return fail("device_id", "must not be empty")
	}
	if len(req.DeviceID) > maxIdentifierLen {
		return fail("device_id", fmt.Sprintf("must be at most %d characters", maxIdentifierLen))
	}
	if req.BuildingID == "" {
		return fail("building_id", "must not be empty")
	}
	if len(req.BuildingID) > maxIdentifierLen {
		return fail("building_id", fmt.Sprintf("must be at most %d characters", maxIdentifierLen))
	}

	// Metric type is free-form; only the unit table gates what actually
	// converts. Unknown types normalize with StandardUnit "unknown".
	metricType := domain.MetricType(req.MetricType)
	if metricType == "" {
		return fail("metric_type", "must not be empty")
	}

	if math.IsNaN(req.Value) || math.IsInf(req.Value, 0) {
		return fail("value", "must be a finite number")
	}

	ts, err := timeutil.Normalize(req.Timestamp)
	if err != nil {
		return fail("timestamp", err.Error())
	}

	normValue, err := p.units.Normalize(req.Value, req.Unit, metricType)
	if err != nil {
		return fail("unit", err.Error())
	}

	return metricType, ts, normValue, nil
}

// registerDirectory auto-creates the building and device rows on first
// contact. Existing rows are never modified.
func (p *Pipeline) registerDirectory(ctx context.Context, tx storage.Stores, req *IngestRequest) error {
	if err := tx.Buildings().Upsert(ctx, &domain.Building{BuildingID: req.BuildingID}); err != nil {
		return fmt.Errorf("upsert building: %w", err)
	}
	if err := tx.Devices().Upsert(ctx, &domain.Device{DeviceID: req.DeviceID, BuildingID: req.BuildingID}); err != nil {
		return fmt.Errorf("upsert device: %w", err)
	}
	return nil
}

// normalize computes the measurement for an accepted raw event and
// repairs successors when the event arrived out of order.
func (p *Pipeline) normalize(ctx context.Context, tx storage.Stores, raw *domain.RawEvent, normValue float64) (*domain.NormalizedMeasurement, error) {
	measurements := tx.Measurements()

	outOfOrder := false
	latest, err := measurements.Latest(ctx, raw.DeviceID, raw.MetricType)
	switch {
	case err == nil:
		outOfOrder = timeutil.IsOutOfOrder(raw.Timestamp, latest.Timestamp)
	case errors.Is(err, storage.ErrNotFound):
		// empty series
	default:
		return nil, fmt.Errorf("get latest measurement: %w", err)
	}

	var prevValue *float64
	predecessor, err := measurements.FindBefore(ctx, raw.DeviceID, raw.MetricType, raw.Timestamp)
	switch {
	case err == nil:
		prevValue = &predecessor.Value
	case errors.Is(err, storage.ErrNotFound):
		// no chronological predecessor
	default:
		return nil, fmt.Errorf("find predecessor: %w", err)
	}

	deltaValue, flags := p.engine.Compute(normValue, prevValue)
	if outOfOrder {
		flags = flags.Union([]string{domain.FlagOutOfOrder})
	}

	m := &domain.NormalizedMeasurement{
		ID:           uuid.NewString(),
		RawEventID:   raw.ID,
		DeviceID:     raw.DeviceID,
		BuildingID:   raw.BuildingID,
		Timestamp:    raw.Timestamp,
		MetricType:   raw.MetricType,
		Value:        normValue,
		Unit:         p.units.StandardUnit(raw.MetricType),
		DeltaValue:   deltaValue,
		QualityFlags: flags,
	}
	if err := measurements.Insert(ctx, m); err != nil {
		if errors.Is(err, storage.ErrDuplicateKey) {
			return nil, &ConflictError{
				DeviceID:   raw.DeviceID,
				MetricType: string(raw.MetricType),
				Timestamp:  raw.Timestamp.Format(time.RFC3339),
			}
		}
		return nil, fmt.Errorf("insert measurement: %w", err)
	}

	if outOfOrder {
		if err := p.repairSuccessors(ctx, measurements, m); err != nil {
			return nil, err
		}
	}

	return m, nil
}

// repairSuccessors recomputes the delta of the measurement following an
// out-of-order insert, whose chronological predecessor just changed.
// Flags merge: repair adds flags but never removes the ones already
// assigned. Cascade mode keeps walking forward until a recomputation
// leaves a successor unchanged.
func (p *Pipeline) repairSuccessors(ctx context.Context, measurements storage.MeasurementStore, inserted *domain.NormalizedMeasurement) error {
	current := inserted
	for {
		successor, err := measurements.FindAfter(ctx, current.DeviceID, current.MetricType, current.Timestamp)
		if errors.Is(err, storage.ErrNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("find successor: %w", err)
		}

		newDelta, newFlags := p.engine.Compute(successor.Value, &current.Value)
		merged := successor.QualityFlags.Union(newFlags)

		if deltasEqual(successor.DeltaValue, newDelta) && merged.Equal(successor.QualityFlags) {
			return nil
		}

		if err := measurements.UpdateDelta(ctx, successor.ID, newDelta, merged); err != nil {
			return fmt.Errorf("update successor delta: %w", err)
		}
		observability.RecordRepair()

		if !p.opts.CascadeRepair {
			return nil
		}
		successor.DeltaValue = newDelta
		successor.QualityFlags = merged
		current = successor
	}
}

func deltasEqual(a, b *float64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
