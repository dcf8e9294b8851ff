// Package timeutil parses and validates event timestamps, converting
// them to canonical UTC instants.
package timeutil

import (
	"fmt"
	"time"
)

// InvalidTimestampError is returned when the input cannot be parsed as
// ISO-8601 at all.
type InvalidTimestampError struct {
	Input string
}

func (e *InvalidTimestampError) Error() string {
	return fmt.Sprintf("invalid timestamp format: %q (expected ISO 8601 with timezone, e.g. 2026-01-01T10:00:00Z)", e.Input)
}

// NaiveTimestampError is returned when the input parses but carries no
// timezone offset. Ambiguous local time is never guessed.
type NaiveTimestampError struct {
	Input string
}

func (e *NaiveTimestampError) Error() string {
	return fmt.Sprintf("timestamp %q has no timezone offset: append Z or an explicit offset", e.Input)
}

// Layouts accepted as timezone-less timestamps. Matching one of these
// classifies the input as naive rather than malformed.
var naiveLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// Normalize parses an ISO-8601 timestamp with an explicit zone and
// converts it to UTC, preserving the absolute instant
// (10:00+05:00 becomes 05:00Z).
func Normalize(input string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, input); err == nil {
		return t.UTC(), nil
	}

	for _, layout := range naiveLayouts {
		if _, err := time.Parse(layout, input); err == nil {
			return time.Time{}, &NaiveTimestampError{Input: input}
		}
	}

	return time.Time{}, &InvalidTimestampError{Input: input}
}

// IsOutOfOrder reports whether candidate strictly precedes the latest
// known timestamp for the same device and metric.
func IsOutOfOrder(candidate, latest time.Time) bool {
	return candidate.Before(latest)
}
