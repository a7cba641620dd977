package consultation

import (
	"fmt"
	"time"
	_ "time/tzdata"
)

// NextOccurrence advances t by one step of f, reading calendar fields in loc so
// wall-clock times hold across offset changes. Monthly and yearly steps clamp
// to the last day of the target month (Jan 31 -> Feb 28, Feb 29 -> Feb 28).
// The result is in UTC.
func NextOccurrence(t time.Time, f Frequency, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	local := t.In(loc)

	var next time.Time
	switch f {
	case FrequencyDaily:
		next = local.AddDate(0, 0, 1)
	case FrequencyWeekly:
		next = local.AddDate(0, 0, 7)
	case FrequencyMonthly:
		next = addMonthsClamped(local, 1)
	case FrequencyYearly:
		next = addMonthsClamped(local, 12)
	default:
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidFrequency, f)
	}

	return next.UTC(), nil
}

func addMonthsClamped(t time.Time, months int) time.Time {
	y, m, d := t.Date()
	hh, mm, ss := t.Clock()

	first := time.Date(y, m+time.Month(months), 1, 0, 0, 0, 0, t.Location())
	if last := daysIn(first.Year(), first.Month()); d > last {
		d = last
	}

	return time.Date(first.Year(), first.Month(), d, hh, mm, ss, t.Nanosecond(), t.Location())
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// rollForward steps next past now. Used when a paused series resumes so the
// occurrences missed while paused are skipped rather than backfilled.
func rollForward(next, now time.Time, f Frequency, loc *time.Location) (time.Time, error) {
	for !next.After(now) {
		n, err := NextOccurrence(next, f, loc)
		if err != nil {
			return time.Time{}, err
		}
		next = n
	}
	return next, nil
}
