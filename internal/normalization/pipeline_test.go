package normalization

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cenems-telemetry/internal/domain"
	"cenems-telemetry/internal/idhash"
	"cenems-telemetry/internal/storage"
	"cenems-telemetry/internal/storage/memory"
)

func newTestPipeline(opts Options) (*Pipeline, *memory.Store) {
	store := memory.NewStore()
	return NewPipeline(store, opts), store
}

func energyRequest(ts string, value float64) *IngestRequest {
	return &IngestRequest{
		DeviceID:   "meter-001",
		BuildingID: "building-a",
		Timestamp:  ts,
		MetricType: "energy",
		Value:      value,
		Unit:       "kWh",
		Payload:    json.RawMessage(fmt.Sprintf(`{"value":%v}`, value)),
	}
}

func TestPipeline_FirstReading(t *testing.T) {
	p, _ := newTestPipeline(Options{})
	ctx := context.Background()

	res, err := p.Ingest(ctx, energyRequest("2026-01-01T10:00:00Z", 100))
	require.NoError(t, err)

	assert.Equal(t, StatusIngested, res.Status)
	assert.Len(t, res.EventID, 64)

	m := res.Measurement
	require.NotNil(t, m)
	assert.Nil(t, m.DeltaValue)
	assert.True(t, m.QualityFlags.Equal(domain.NewQualityFlags(domain.FlagFirstReading)))
	assert.Equal(t, 100.0, m.Value)
	assert.Equal(t, "kWh", m.Unit)
}

func TestPipeline_SequentialDelta(t *testing.T) {
	p, _ := newTestPipeline(Options{})
	ctx := context.Background()

	_, err := p.Ingest(ctx, energyRequest("2026-01-01T10:00:00Z", 100))
	require.NoError(t, err)

	res, err := p.Ingest(ctx, energyRequest("2026-01-01T11:00:00Z", 150))
	require.NoError(t, err)

	m := res.Measurement
	require.NotNil(t, m.DeltaValue)
	assert.Equal(t, 50.0, *m.DeltaValue)
	assert.Empty(t, m.QualityFlags)
}

func TestPipeline_UnitNormalization(t *testing.T) {
	p, _ := newTestPipeline(Options{})
	ctx := context.Background()

	req := energyRequest("2026-01-01T10:00:00Z", 1500000)
	req.Unit = "Wh"

	res, err := p.Ingest(ctx, req)
	require.NoError(t, err)

	assert.Equal(t, 1500.0, res.Measurement.Value)
	assert.Equal(t, "kWh", res.Measurement.Unit)
}

func TestPipeline_TimestampNormalizedToUTC(t *testing.T) {
	p, _ := newTestPipeline(Options{})
	ctx := context.Background()

	res, err := p.Ingest(ctx, energyRequest("2026-01-01T10:00:00+05:00", 100))
	require.NoError(t, err)

	assert.Equal(t, "2026-01-01T05:00:00Z", res.Measurement.Timestamp.Format("2006-01-02T15:04:05Z07:00"))
}

func TestPipeline_CounterReset(t *testing.T) {
	p, _ := newTestPipeline(Options{})
	ctx := context.Background()

	_, err := p.Ingest(ctx, energyRequest("2026-01-01T10:00:00Z", 100))
	require.NoError(t, err)

	res, err := p.Ingest(ctx, energyRequest("2026-01-01T11:00:00Z", 40))
	require.NoError(t, err)

	m := res.Measurement
	assert.Nil(t, m.DeltaValue)
	assert.True(t, m.QualityFlags.Contains(domain.FlagCounterReset))
}

func TestPipeline_SuspiciousJump(t *testing.T) {
	p, _ := newTestPipeline(Options{SuspiciousThreshold: 1000})
	ctx := context.Background()

	_, err := p.Ingest(ctx, energyRequest("2026-01-01T10:00:00Z", 100))
	require.NoError(t, err)

	res, err := p.Ingest(ctx, energyRequest("2026-01-01T11:00:00Z", 5100))
	require.NoError(t, err)

	m := res.Measurement
	require.NotNil(t, m.DeltaValue)
	assert.Equal(t, 5000.0, *m.DeltaValue)
	assert.True(t, m.QualityFlags.Contains(domain.FlagSuspiciousJump))
}

func TestPipeline_OutOfOrderRepairsSuccessor(t *testing.T) {
	p, store := newTestPipeline(Options{})
	ctx := context.Background()

	// A then B arrive in order, then C arrives late between them
	resA, err := p.Ingest(ctx, energyRequest("2026-01-01T10:00:00Z", 100))
	require.NoError(t, err)

	resB, err := p.Ingest(ctx, energyRequest("2026-01-01T11:00:00Z", 150))
	require.NoError(t, err)
	require.Equal(t, 50.0, *resB.Measurement.DeltaValue)

	resC, err := p.Ingest(ctx, energyRequest("2026-01-01T10:30:00Z", 125))
	require.NoError(t, err)

	// C computes against A and carries the out_of_order flag
	c := resC.Measurement
	require.NotNil(t, c.DeltaValue)
	assert.Equal(t, 25.0, *c.DeltaValue)
	assert.True(t, c.QualityFlags.Contains(domain.FlagOutOfOrder))
	assert.False(t, c.QualityFlags.Contains(domain.FlagFirstReading))

	// B's delta is repaired to count from C
	b, err := store.Measurements().Latest(ctx, "meter-001", domain.MetricEnergy)
	require.NoError(t, err)
	require.Equal(t, resB.Measurement.ID, b.ID)
	require.NotNil(t, b.DeltaValue)
	assert.Equal(t, 25.0, *b.DeltaValue)

	// A is untouched
	a, err := store.Measurements().FindBefore(ctx, "meter-001", domain.MetricEnergy, c.Timestamp)
	require.NoError(t, err)
	require.Equal(t, resA.Measurement.ID, a.ID)
	assert.Nil(t, a.DeltaValue)
	assert.True(t, a.QualityFlags.Contains(domain.FlagFirstReading))
}

func TestPipeline_OutOfOrderEarliestBecomesFirstReading(t *testing.T) {
	p, store := newTestPipeline(Options{})
	ctx := context.Background()

	_, err := p.Ingest(ctx, energyRequest("2026-01-01T11:00:00Z", 150))
	require.NoError(t, err)

	// Arrives late and earlier than everything in the series
	res, err := p.Ingest(ctx, energyRequest("2026-01-01T10:00:00Z", 100))
	require.NoError(t, err)

	m := res.Measurement
	assert.Nil(t, m.DeltaValue)
	assert.True(t, m.QualityFlags.Contains(domain.FlagFirstReading))
	assert.True(t, m.QualityFlags.Contains(domain.FlagOutOfOrder))

	// The old head now computes against the new point and loses its nil
	// delta but keeps first_reading: flags are never removed
	head, err := store.Measurements().Latest(ctx, "meter-001", domain.MetricEnergy)
	require.NoError(t, err)
	require.NotNil(t, head.DeltaValue)
	assert.Equal(t, 50.0, *head.DeltaValue)
	assert.True(t, head.QualityFlags.Contains(domain.FlagFirstReading))
}

func TestPipeline_DuplicateResubmission(t *testing.T) {
	p, store := newTestPipeline(Options{})
	ctx := context.Background()

	first, err := p.Ingest(ctx, energyRequest("2026-01-01T10:00:00Z", 100))
	require.NoError(t, err)

	second, err := p.Ingest(ctx, energyRequest("2026-01-01T10:00:00Z", 100))
	require.NoError(t, err)

	assert.Equal(t, StatusDuplicate, second.Status)
	assert.Equal(t, first.EventID, second.EventID)
	assert.Nil(t, second.Measurement)

	// Still exactly one measurement in the series
	all, err := store.Measurements().GetByTimeRange(ctx, "meter-001", domain.MetricEnergy,
		first.Measurement.Timestamp, first.Measurement.Timestamp)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestPipeline_ClientEventIDUsedForDedup(t *testing.T) {
	p, store := newTestPipeline(Options{})
	ctx := context.Background()

	req := energyRequest("2026-01-01T10:00:00Z", 100)
	req.EventID = "client-evt-42"

	first, err := p.Ingest(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, StatusIngested, first.Status)
	assert.Equal(t, "client-evt-42", first.EventID)

	raw, err := store.RawEvents().GetByEventID(ctx, "client-evt-42")
	require.NoError(t, err)
	assert.Equal(t, "meter-001", raw.DeviceID)

	// Resubmission under the same id is a duplicate even when the
	// content differs, so no content hash is computed
	retry := energyRequest("2026-01-01T11:00:00Z", 999)
	retry.EventID = "client-evt-42"
	second, err := p.Ingest(ctx, retry)
	require.NoError(t, err)
	assert.Equal(t, StatusDuplicate, second.Status)
	assert.Equal(t, "client-evt-42", second.EventID)
	assert.Nil(t, second.Measurement)
}

func TestPipeline_IdentifiersAtMaxLengthAccepted(t *testing.T) {
	p, _ := newTestPipeline(Options{})
	ctx := context.Background()

	req := energyRequest("2026-01-01T10:00:00Z", 100)
	req.DeviceID = strings.Repeat("m", 100)
	req.BuildingID = strings.Repeat("b", 100)

	res, err := p.Ingest(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, StatusIngested, res.Status)
}

func TestPipeline_FreeFormMetricTypes(t *testing.T) {
	p, _ := newTestPipeline(Options{})
	ctx := context.Background()

	// Temperature has a standard unit but no conversion factors of its
	// own; a factor-table unit still passes through
	tempReq := &IngestRequest{
		DeviceID:   "sensor-001",
		BuildingID: "building-a",
		Timestamp:  "2026-01-01T10:00:00Z",
		MetricType: "temperature",
		Value:      21.5,
		Unit:       "kWh",
	}
	res, err := p.Ingest(ctx, tempReq)
	require.NoError(t, err)
	assert.Equal(t, "°C", res.Measurement.Unit)
	assert.Equal(t, 21.5, res.Measurement.Value)

	// A metric type with no standard unit normalizes to "unknown"
	humReq := &IngestRequest{
		DeviceID:   "sensor-002",
		BuildingID: "building-a",
		Timestamp:  "2026-01-01T10:00:00Z",
		MetricType: "humidity",
		Value:      55,
		Unit:       "kWh",
	}
	res, err = p.Ingest(ctx, humReq)
	require.NoError(t, err)
	assert.Equal(t, "unknown", res.Measurement.Unit)

	// The unit table still gates units regardless of metric type
	badReq := &IngestRequest{
		DeviceID:   "sensor-003",
		BuildingID: "building-a",
		Timestamp:  "2026-01-01T10:00:00Z",
		MetricType: "temperature",
		Value:      21.5,
		Unit:       "°F",
	}
	_, err = p.Ingest(ctx, badReq)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "unit", verr.Field)
}

func TestPipeline_SeriesPointConflict(t *testing.T) {
	p, store := newTestPipeline(Options{})
	ctx := context.Background()

	_, err := p.Ingest(ctx, energyRequest("2026-01-01T10:00:00Z", 100))
	require.NoError(t, err)

	// Same device, metric and timestamp, different value: new event
	// hash, occupied series slot
	_, err = p.Ingest(ctx, energyRequest("2026-01-01T10:00:00Z", 999))
	var conflict *ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, "meter-001", conflict.DeviceID)

	// The conflicting raw event was rolled back with the transaction
	rejectedID := idhash.ComputeEventID("meter-001", "2026-01-01T10:00:00Z", "energy", idhash.FormatValue(999))
	_, err = store.RawEvents().GetByEventID(ctx, rejectedID)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func mustTS(t *testing.T, s string) time.Time {
	t.Helper()
	ts, err := time.Parse(time.RFC3339, s)
	require.NoError(t, err)
	return ts.UTC()
}

func TestPipeline_ValidationRejectsBeforePersisting(t *testing.T) {
	p, store := newTestPipeline(Options{})
	ctx := context.Background()

	cases := []struct {
		name  string
		mut   func(*IngestRequest)
		field string
	}{
		{"empty device", func(r *IngestRequest) { r.DeviceID = "" }, "device_id"},
		{"overlong device", func(r *IngestRequest) { r.DeviceID = strings.Repeat("m", 150) }, "device_id"},
		{"empty building", func(r *IngestRequest) { r.BuildingID = "" }, "building_id"},
		{"overlong building", func(r *IngestRequest) { r.BuildingID = strings.Repeat("b", 101) }, "building_id"},
		{"empty metric", func(r *IngestRequest) { r.MetricType = "" }, "metric_type"},
		{"unknown unit", func(r *IngestRequest) { r.Unit = "BTU" }, "unit"},
		{"naive timestamp", func(r *IngestRequest) { r.Timestamp = "2026-01-01T10:00:00" }, "timestamp"},
		{"malformed timestamp", func(r *IngestRequest) { r.Timestamp = "January 1st" }, "timestamp"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := energyRequest("2026-01-01T10:00:00Z", 100)
			tc.mut(req)

			_, err := p.Ingest(ctx, req)
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tc.field, verr.Field)
		})
	}

	// Nothing was persisted by any rejected request
	_, err := store.Measurements().Latest(ctx, "meter-001", domain.MetricEnergy)
	assert.ErrorIs(t, err, storage.ErrNotFound)
	buildings, err := store.Buildings().List(ctx)
	require.NoError(t, err)
	assert.Empty(t, buildings)
}

func TestPipeline_DirectoryAutoCreated(t *testing.T) {
	p, store := newTestPipeline(Options{})
	ctx := context.Background()

	_, err := p.Ingest(ctx, energyRequest("2026-01-01T10:00:00Z", 100))
	require.NoError(t, err)

	buildings, err := store.Buildings().List(ctx)
	require.NoError(t, err)
	require.Len(t, buildings, 1)
	assert.Equal(t, "building-a", buildings[0].BuildingID)
	assert.Equal(t, 1, buildings[0].DeviceCount)

	devices, err := store.Devices().List(ctx, "building-a")
	require.NoError(t, err)
	require.Len(t, devices, 1)
	assert.Equal(t, "meter-001", devices[0].DeviceID)
}

func TestPipeline_CascadeRepair(t *testing.T) {
	p, store := newTestPipeline(Options{CascadeRepair: true})
	ctx := context.Background()

	// Build a series with a gap, then fill the gap late
	_, err := p.Ingest(ctx, energyRequest("2026-01-01T10:00:00Z", 100))
	require.NoError(t, err)
	_, err = p.Ingest(ctx, energyRequest("2026-01-01T12:00:00Z", 150))
	require.NoError(t, err)
	_, err = p.Ingest(ctx, energyRequest("2026-01-01T13:00:00Z", 175))
	require.NoError(t, err)

	_, err = p.Ingest(ctx, energyRequest("2026-01-01T11:00:00Z", 120))
	require.NoError(t, err)

	points, err := store.Measurements().GetByTimeRange(ctx, "meter-001", domain.MetricEnergy,
		mustTS(t, "2026-01-01T10:00:00Z"), mustTS(t, "2026-01-01T13:00:00Z"))
	require.NoError(t, err)
	require.Len(t, points, 4)

	// 12:00 now counts from 11:00; 13:00 recomputes to the same delta
	// it already had, which stops the walk
	require.NotNil(t, points[2].DeltaValue)
	assert.Equal(t, 30.0, *points[2].DeltaValue)
	require.NotNil(t, points[3].DeltaValue)
	assert.Equal(t, 25.0, *points[3].DeltaValue)
}

func TestPipeline_ConcurrentSameSeriesSerialized(t *testing.T) {
	p, store := newTestPipeline(Options{})
	ctx := context.Background()

	const n = 20
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ts := fmt.Sprintf("2026-01-01T10:%02d:00Z", i)
			_, err := p.Ingest(ctx, energyRequest(ts, float64(100+i)))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	points, err := store.Measurements().GetByTimeRange(ctx, "meter-001", domain.MetricEnergy,
		mustTS(t, "2026-01-01T10:00:00Z"), mustTS(t, "2026-01-01T10:59:00Z"))
	require.NoError(t, err)
	assert.Len(t, points, n)
}
