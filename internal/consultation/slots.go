package consultation

import "time"

// GenerateSlots partitions [start, end] into back-to-back slots of durationMinutes.
// A trailing interval shorter than the duration is dropped. Non-positive
// durations and empty windows produce no slots.
func GenerateSlots(start, end time.Time, durationMinutes int) []Slot {
	if durationMinutes <= 0 || !end.After(start) {
		return nil
	}

	d := time.Duration(durationMinutes) * time.Minute
	var slots []Slot
	for cur := start; !cur.Add(d).After(end); cur = cur.Add(d) {
		slots = append(slots, Slot{
			Index:     len(slots),
			StartTime: cur,
			EndTime:   cur.Add(d),
		})
	}
	return slots
}
