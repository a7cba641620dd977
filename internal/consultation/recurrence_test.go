package consultation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNextOccurrence(t *testing.T) {
	ist, err := time.LoadLocation("Asia/Kolkata")
	require.NoError(t, err)

	tests := []struct {
		name string
		from time.Time
		freq Frequency
		want time.Time
	}{
		{"daily", time.Date(2025, 3, 10, 9, 0, 0, 0, ist), FrequencyDaily, time.Date(2025, 3, 11, 9, 0, 0, 0, ist)},
		{"weekly", time.Date(2025, 3, 10, 9, 0, 0, 0, ist), FrequencyWeekly, time.Date(2025, 3, 17, 9, 0, 0, 0, ist)},
		{"monthly", time.Date(2025, 3, 10, 9, 0, 0, 0, ist), FrequencyMonthly, time.Date(2025, 4, 10, 9, 0, 0, 0, ist)},
		{"monthly clamps to short month", time.Date(2025, 1, 31, 9, 0, 0, 0, ist), FrequencyMonthly, time.Date(2025, 2, 28, 9, 0, 0, 0, ist)},
		{"monthly clamps in leap year", time.Date(2024, 1, 31, 9, 0, 0, 0, ist), FrequencyMonthly, time.Date(2024, 2, 29, 9, 0, 0, 0, ist)},
		{"monthly across year end", time.Date(2025, 12, 15, 9, 0, 0, 0, ist), FrequencyMonthly, time.Date(2026, 1, 15, 9, 0, 0, 0, ist)},
		{"yearly", time.Date(2025, 6, 1, 9, 0, 0, 0, ist), FrequencyYearly, time.Date(2026, 6, 1, 9, 0, 0, 0, ist)},
		{"yearly from leap day", time.Date(2024, 2, 29, 9, 0, 0, 0, ist), FrequencyYearly, time.Date(2025, 2, 28, 9, 0, 0, 0, ist)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NextOccurrence(tt.from.UTC(), tt.freq, ist)
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got), "want %s got %s", tt.want, got)
			assert.Equal(t, time.UTC, got.Location())
			assert.True(t, got.After(tt.from))
		})
	}
}

func TestNextOccurrenceUsesReferenceZoneCalendar(t *testing.T) {
	ist, err := time.LoadLocation("Asia/Kolkata")
	require.NoError(t, err)

	// 2025-01-31 20:00 UTC is already Feb 1 in IST, so a monthly step lands on Mar 1 IST.
	from := time.Date(2025, 1, 31, 20, 0, 0, 0, time.UTC)
	got, err := NextOccurrence(from, FrequencyMonthly, ist)
	require.NoError(t, err)
	assert.True(t, time.Date(2025, 3, 1, 1, 30, 0, 0, ist).Equal(got), "got %s", got.In(ist))
}

func TestNextOccurrenceRejectsUnknownFrequency(t *testing.T) {
	_, err := NextOccurrence(time.Now(), Frequency("hourly"), time.UTC)
	assert.ErrorIs(t, err, ErrInvalidFrequency)
}

func TestParseFrequency(t *testing.T) {
	f, err := ParseFrequency(" Weekly ")
	require.NoError(t, err)
	assert.Equal(t, FrequencyWeekly, f)

	_, err = ParseFrequency("fortnightly")
	assert.ErrorIs(t, err, ErrInvalidFrequency)
}

func TestRollForwardSkipsMissedOccurrences(t *testing.T) {
	next := time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)
	now := time.Date(2025, 1, 4, 12, 0, 0, 0, time.UTC)

	got, err := rollForward(next, now, FrequencyDaily, time.UTC)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 1, 5, 9, 0, 0, 0, time.UTC), got)

	same, err := rollForward(got, now, FrequencyDaily, time.UTC)
	require.NoError(t, err)
	assert.Equal(t, got, same)
}
