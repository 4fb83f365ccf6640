package mwob

import (
	"math"
	"time"
)

// macEpochOffset is the number of seconds between the classic Mac OS
// epoch (1904-01-01T00:00:00Z) and the Unix epoch.
const macEpochOffset = 2082844800

// FromMacTime converts a classic Mac OS timestamp to UTC wall time.
func FromMacTime(v uint32) time.Time {
	return time.Unix(int64(v)-macEpochOffset, 0).UTC()
}

// ToMacTime converts wall time to a classic Mac OS timestamp. Times
// outside the representable range clamp to the nearest bound.
func ToMacTime(t time.Time) uint32 {
	s := t.Unix() + macEpochOffset
	if s < 0 {
		return 0
	}
	if s > math.MaxUint32 {
		return math.MaxUint32
	}
	return uint32(s)
}
