// Package delta computes consumption deltas between consecutive
// cumulative-counter readings and assigns quality flags.
package delta

import "cenems-telemetry/internal/domain"

// DefaultSuspiciousThreshold is the fallback jump threshold in standard
// energy units (kWh).
const DefaultSuspiciousThreshold = 10000.0

// Engine computes deltas with counter-reset detection. It is a pure
// function over its inputs; the threshold is explicit configuration,
// not a package-level constant.
type Engine struct {
	suspiciousThreshold float64
}

// NewEngine creates an Engine. A non-positive threshold selects
// DefaultSuspiciousThreshold.
func NewEngine(suspiciousThreshold float64) *Engine {
	if suspiciousThreshold <= 0 {
		suspiciousThreshold = DefaultSuspiciousThreshold
	}
	return &Engine{suspiciousThreshold: suspiciousThreshold}
}

// Compute returns the consumption delta between the current normalized
// value and its chronological predecessor, plus the quality flags for
// the interval.
//
//   - previous nil: no delta, first_reading
//   - negative delta: no delta, counter_reset. The interval's
//     consumption is unknown and is never clamped or corrected.
//   - delta above the threshold: delta still reported, suspicious_jump
//     added as advisory
//   - zero delta: valid and flag-free
func (e *Engine) Compute(current float64, previous *float64) (*float64, domain.QualityFlags) {
	if previous == nil {
		return nil, domain.NewQualityFlags(domain.FlagFirstReading)
	}

	d := current - *previous
	if d < 0 {
		return nil, domain.NewQualityFlags(domain.FlagCounterReset)
	}

	var flags domain.QualityFlags
	if d > e.suspiciousThreshold {
		flags = domain.NewQualityFlags(domain.FlagSuspiciousJump)
	}
	return &d, flags
}
