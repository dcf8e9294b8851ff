package domain

import "sort"

// Quality flag values assigned during normalization.
const (
	FlagFirstReading   = "first_reading"
	FlagCounterReset   = "counter_reset"
	FlagOutOfOrder     = "out_of_order"
	FlagSuspiciousJump = "suspicious_jump"
)

// QualityFlags is a set of quality flag strings, kept sorted and
// deduplicated. Order is irrelevant for equality; the sorted form makes
// storage and comparison deterministic.
type QualityFlags []string

// NewQualityFlags builds a flag set from the given values.
func NewQualityFlags(flags ...string) QualityFlags {
	return QualityFlags(nil).Union(flags)
}

// Contains reports whether the set includes flag.
func (f QualityFlags) Contains(flag string) bool {
	for _, v := range f {
		if v == flag {
			return true
		}
	}
	return false
}

// Union returns a new set holding every flag in f and other.
// Recomputation merges flags this way: existing flags are never removed.
func (f QualityFlags) Union(other []string) QualityFlags {
	seen := make(map[string]struct{}, len(f)+len(other))
	merged := make(QualityFlags, 0, len(f)+len(other))
	for _, src := range [][]string{f, other} {
		for _, v := range src {
			if _, ok := seen[v]; ok {
				continue
			}
			seen[v] = struct{}{}
			merged = append(merged, v)
		}
	}
	sort.Strings(merged)
	return merged
}

// Equal reports whether two sets hold the same flags.
func (f QualityFlags) Equal(other QualityFlags) bool {
	if len(f) != len(other) {
		return false
	}
	for i := range f {
		if f[i] != other[i] {
			return false
		}
	}
	return true
}
