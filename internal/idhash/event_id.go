package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
)

// ComputeEventID computes a deterministic event_id using SHA256.
// Formula: SHA256(device_id|timestamp|metric_type|value)
// Returns hex-encoded hash (64 characters).
//
// The timestamp is hashed as received, before normalization, and the
// value in its canonical decimal rendering. Exactly these four fields
// participate: unit, building and any extra payload fields do not, so
// resubmissions of the same reading dedupe regardless of envelope.
func ComputeEventID(deviceID, timestamp, metricType, value string) string {
	data := fmt.Sprintf("%s|%s|%s|%s",
		deviceID,
		timestamp,
		metricType,
		value,
	)

	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}

// FormatValue renders a reading value into the canonical string used in
// the event_id hash. Equal values always render identically.
func FormatValue(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
