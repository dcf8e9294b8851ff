package api

import (
	"encoding/json"
	"time"

	"cenems-telemetry/internal/domain"
)

// ingestRequest is the wire form of one meter reading. EventID is
// optional; when absent the pipeline derives a content hash.
type ingestRequest struct {
	EventID    string  `json:"event_id"`
	DeviceID   string  `json:"device_id"`
	BuildingID string  `json:"building_id"`
	Timestamp  string  `json:"timestamp"`
	MetricType string  `json:"metric_type"`
	Value      float64 `json:"value"`
	Unit       string  `json:"unit"`
}

// measurementResponse is the wire form of a normalized measurement.
type measurementResponse struct {
	ID           string   `json:"id"`
	DeviceID     string   `json:"device_id"`
	BuildingID   string   `json:"building_id"`
	Timestamp    string   `json:"timestamp"`
	MetricType   string   `json:"metric_type"`
	Value        float64  `json:"value"`
	Unit         string   `json:"unit"`
	DeltaValue   *float64 `json:"delta_value"`
	QualityFlags []string `json:"quality_flags"`
}

func toMeasurementResponse(m *domain.NormalizedMeasurement) measurementResponse {
	flags := []string(m.QualityFlags)
	if flags == nil {
		flags = []string{}
	}
	return measurementResponse{
		ID:           m.ID,
		DeviceID:     m.DeviceID,
		BuildingID:   m.BuildingID,
		Timestamp:    m.Timestamp.Format(time.RFC3339),
		MetricType:   string(m.MetricType),
		Value:        m.Value,
		Unit:         m.Unit,
		DeltaValue:   m.DeltaValue,
		QualityFlags: flags,
	}
}

// buildingResponse is the wire form of a building directory row.
type buildingResponse struct {
	BuildingID  string `json:"building_id"`
	Name        string `json:"name"`
	Address     string `json:"address"`
	DeviceCount int    `json:"device_count"`
}

// deviceResponse is the wire form of a device directory row.
type deviceResponse struct {
	DeviceID   string `json:"device_id"`
	BuildingID string `json:"building_id"`
	Name       string `json:"name"`
}

// streamMessage is the websocket broadcast envelope.
type streamMessage struct {
	Type        string              `json:"type"`
	Measurement measurementResponse `json:"measurement"`
}

func encodeStreamMessage(m *domain.NormalizedMeasurement) []byte {
	b, _ := json.Marshal(streamMessage{Type: "measurement", Measurement: toMeasurementResponse(m)})
	return b
}
