package domain

// MetricType identifies the kind of cumulative counter a device reports.
// The ingest contract treats it as a free-form string; only the known
// types have a canonical standard unit.
type MetricType string

const (
	MetricEnergy      MetricType = "energy"
	MetricPower       MetricType = "power"
	MetricTemperature MetricType = "temperature"
)
