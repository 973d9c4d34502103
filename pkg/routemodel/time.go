package routemodel

import "time"

// SecondsIntoDay returns t as seconds since local midnight.
func SecondsIntoDay(t time.Time) int {
	return secondsIntoDay(t)
}

// EpochForSecondsIntoDay converts a schedule time (seconds into the day)
// into the absolute time closest to ref. Handles trips that span midnight
// by also considering the previous and next service day.
func EpochForSecondsIntoDay(secs int, ref time.Time) time.Time {
	year, month, day := ref.Date()
	midnight := time.Date(year, month, day, 0, 0, 0, 0, ref.Location())
	candidate := midnight.Add(time.Duration(secs) * time.Second)

	best := candidate
	bestDelta := absDuration(ref.Sub(candidate))
	for _, shift := range []time.Duration{-24 * time.Hour, 24 * time.Hour} {
		c := candidate.Add(shift)
		if d := absDuration(ref.Sub(c)); d < bestDelta {
			best = c
			bestDelta = d
		}
	}
	return best
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
