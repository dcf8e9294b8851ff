// Package units normalizes measurement values into the standard unit of
// their metric type (kWh for energy, kW for power).
package units

import (
	"fmt"
	"sort"
	"strings"

	"cenems-telemetry/internal/domain"
)

// UnsupportedUnitError is returned when no conversion factor exists for
// a unit. It names the offending unit and the supported set.
type UnsupportedUnitError struct {
	Unit      string
	Supported []string
}

func (e *UnsupportedUnitError) Error() string {
	return fmt.Sprintf("unsupported unit: %s (supported: %s)",
		e.Unit, strings.Join(e.Supported, ", "))
}

// Converter maps values into standard units by linear scaling.
// The factor table is per-instance configuration, not a package global.
type Converter struct {
	factors  map[string]float64
	standard map[domain.MetricType]string
}

// NewConverter creates a Converter with the default factor table.
func NewConverter() *Converter {
	return &Converter{
		factors: map[string]float64{
			// Energy units (to kWh)
			"kWh": 1.0,
			"Wh":  0.001,
			"MWh": 1000.0,
			"GWh": 1000000.0,

			// Power units (to kW)
			"kW": 1.0,
			"W":  0.001,
			"MW": 1000.0,
			"GW": 1000000.0,
		},
		standard: map[domain.MetricType]string{
			domain.MetricEnergy:      "kWh",
			domain.MetricPower:       "kW",
			domain.MetricTemperature: "°C",
		},
	}
}

// Normalize converts value from unit into the standard unit of the
// metric type. Returns UnsupportedUnitError for unknown units.
func (c *Converter) Normalize(value float64, unit string, metricType domain.MetricType) (float64, error) {
	factor, ok := c.factors[unit]
	if !ok {
		return 0, &UnsupportedUnitError{Unit: unit, Supported: c.supportedUnits()}
	}
	_ = metricType // conversion is unit-driven; the metric type only selects the standard unit
	return value * factor, nil
}

// StandardUnit returns the canonical unit string for a metric type.
// Unknown metric types return "unknown" rather than an error; callers
// downstream do not correct this.
func (c *Converter) StandardUnit(metricType domain.MetricType) string {
	if u, ok := c.standard[metricType]; ok {
		return u
	}
	return "unknown"
}

func (c *Converter) supportedUnits() []string {
	supported := make([]string, 0, len(c.factors))
	for u := range c.factors {
		supported = append(supported, u)
	}
	sort.Strings(supported)
	return supported
}
