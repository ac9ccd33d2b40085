package util

import "time"

// Clock supplies the current time. Verification code paths take a Clock
// so expiry windows can be exercised in tests.
type Clock interface {
	Now() time.Time
}

// SystemClock reports wall-clock time in UTC
type SystemClock struct{}

func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}

// StartOfDay returns midnight of t's calendar day in loc
func StartOfDay(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	local := t.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
}
