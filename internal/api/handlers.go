package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"cenems-telemetry/internal/domain"
	"cenems-telemetry/internal/normalization"
	"cenems-telemetry/internal/storage"
)

// Handlers groups the HTTP endpoint implementations.
type Handlers struct {
	pipeline *normalization.Pipeline
	backend  storage.Backend
	hub      broadcaster
	archiver enqueuer
	logger   *log.Logger
}

// broadcaster pushes an encoded message to stream subscribers.
type broadcaster interface {
	Broadcast(payload []byte)
}

// enqueuer hands a measurement to the archive writer.
type enqueuer interface {
	Enqueue(m *domain.NormalizedMeasurement)
}

// NewHandlers creates the endpoint set. hub and archiver may be nil;
// the corresponding fan-out is then skipped.
func NewHandlers(pipeline *normalization.Pipeline, backend storage.Backend, hub broadcaster, archiver enqueuer, logger *log.Logger) *Handlers {
	if logger == nil {
		logger = log.New(log.Writer(), "[api] ", log.LstdFlags)
	}
	return &Handlers{
		pipeline: pipeline,
		backend:  backend,
		hub:      hub,
		archiver: archiver,
		logger:   logger,
	}
}

// Ingest handles POST /api/v1/ingest.
func (h *Handlers) Ingest(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot read request body"})
		return
	}

	var req ingestRequest
	if err := json.Unmarshal(body, &req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json", "details": err.Error()})
		return
	}

	result, err := h.pipeline.Ingest(c.Request.Context(), &normalization.IngestRequest{
		EventID:    req.EventID,
		DeviceID:   req.DeviceID,
		BuildingID: req.BuildingID,
		Timestamp:  req.Timestamp,
		MetricType: req.MetricType,
		Value:      req.Value,
		Unit:       req.Unit,
		Payload:    json.RawMessage(body),
	})
	if err != nil {
		var verr *normalization.ValidationError
		if errors.As(err, &verr) {
			c.JSON(http.StatusBadRequest, gin.H{"error": verr.Error(), "field": verr.Field})
			return
		}
		var conflict *normalization.ConflictError
		if errors.As(err, &conflict) {
			c.JSON(http.StatusConflict, gin.H{"error": conflict.Error()})
			return
		}
		h.logger.Printf("ingest failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	if result.Status == normalization.StatusDuplicate {
		c.JSON(http.StatusOK, gin.H{
			"status":                    result.Status,
			"event_id":                  result.EventID,
			"raw_event_id":              nil,
			"normalized_measurement_id": nil,
		})
		return
	}

	if h.archiver != nil {
		h.archiver.Enqueue(result.Measurement)
	}
	if h.hub != nil {
		h.hub.Broadcast(encodeStreamMessage(result.Measurement))
	}

	c.JSON(http.StatusCreated, gin.H{
		"status":                    result.Status,
		"event_id":                  result.EventID,
		"raw_event_id":              result.Measurement.RawEventID,
		"normalized_measurement_id": result.Measurement.ID,
		"measurement":               toMeasurementResponse(result.Measurement),
	})
}

// Latest handles GET /api/v1/latest?device_id=&metric_type=.
func (h *Handlers) Latest(c *gin.Context) {
	deviceID := c.Query("device_id")
	metricType := c.Query("metric_type")
	if deviceID == "" || metricType == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "device_id and metric_type are required"})
		return
	}

	m, err := h.backend.Measurements().Latest(c.Request.Context(), deviceID, domain.MetricType(metricType))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "no measurements for series"})
			return
		}
		h.logger.Printf("latest lookup failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	c.JSON(http.StatusOK, toMeasurementResponse(m))
}

// Timeseries handles GET /api/v1/timeseries?device_id=&metric_type=&start=&end=.
func (h *Handlers) Timeseries(c *gin.Context) {
	deviceID := c.Query("device_id")
	metricType := c.Query("metric_type")
	if deviceID == "" || metricType == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "device_id and metric_type are required"})
		return
	}

	start, err := time.Parse(time.RFC3339, c.Query("start"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid start: expected RFC 3339"})
		return
	}
	end, err := time.Parse(time.RFC3339, c.Query("end"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid end: expected RFC 3339"})
		return
	}
	if !start.Before(end) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "start must be before end"})
		return
	}

	measurements, err := h.backend.Measurements().GetByTimeRange(
		c.Request.Context(), deviceID, domain.MetricType(metricType), start.UTC(), end.UTC())
	if err != nil {
		h.logger.Printf("timeseries lookup failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	result := make([]measurementResponse, 0, len(measurements))
	for _, m := range measurements {
		result = append(result, toMeasurementResponse(m))
	}
	c.JSON(http.StatusOK, gin.H{"measurements": result, "count": len(result)})
}

// Buildings handles GET /api/v1/buildings.
func (h *Handlers) Buildings(c *gin.Context) {
	buildings, err := h.backend.Buildings().List(c.Request.Context())
	if err != nil {
		h.logger.Printf("building list failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	result := make([]buildingResponse, 0, len(buildings))
	for _, b := range buildings {
		result = append(result, buildingResponse{
			BuildingID:  b.BuildingID,
			Name:        b.Name,
			Address:     b.Address,
			DeviceCount: b.DeviceCount,
		})
	}
	c.JSON(http.StatusOK, gin.H{"buildings": result, "count": len(result)})
}

// Devices handles GET /api/v1/devices?building_id=.
func (h *Handlers) Devices(c *gin.Context) {
	devices, err := h.backend.Devices().List(c.Request.Context(), c.Query("building_id"))
	if err != nil {
		h.logger.Printf("device list failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	result := make([]deviceResponse, 0, len(devices))
	for _, d := range devices {
		result = append(result, deviceResponse{
			DeviceID:   d.DeviceID,
			BuildingID: d.BuildingID,
			Name:       d.Name,
		})
	}
	c.JSON(http.StatusOK, gin.H{"devices": result, "count": len(result)})
}

// Health handles GET /health.
func (h *Handlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "OK"})
}
