package v1alpha1

import (
	"math"
	"time"
)

// Epoch is an instant encoded as fractional seconds since the Unix epoch.
// Execution times are expressed in synchronized time, every other timestamp
// in the sender's wall clock.
type Epoch float64

// NewEpoch converts t to an Epoch with microsecond resolution.
func NewEpoch(t time.Time) Epoch {
	return Epoch(float64(t.UnixMicro()) / 1e6)
}

// Time converts e back to a time.Time in UTC.
func (e Epoch) Time() time.Time {
	sec, frac := math.Modf(float64(e))
	return time.Unix(int64(sec), int64(math.Round(frac*1e9))).UTC()
}

// IsZero reports whether e is unset.
func (e Epoch) IsZero() bool {
	return e == 0
}

// Seconds converts a duration to the fractional seconds used in payloads.
func Seconds(d time.Duration) float64 {
	return d.Seconds()
}

// Duration converts fractional seconds from a payload to a time.Duration.
func Duration(seconds float64) time.Duration {
	return time.Duration(seconds * float64(time.Second))
}
