package consultation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateSlotsDropsTrailingPartial(t *testing.T) {
	slots := GenerateSlots(at(9, 0), at(10, 5), 30)

	require.Len(t, slots, 2)
	assert.Equal(t, at(9, 0), slots[0].StartTime)
	assert.Equal(t, at(9, 30), slots[0].EndTime)
	assert.Equal(t, at(9, 30), slots[1].StartTime)
	assert.Equal(t, at(10, 0), slots[1].EndTime)

	for i, s := range slots {
		assert.Equal(t, i, s.Index)
		assert.False(t, s.Notified)
		assert.False(t, s.Elapsed)
		assert.Zero(t, s.OnlineCount)
		assert.Empty(t, s.Users)
	}
}

func TestGenerateSlotsIsDeterministic(t *testing.T) {
	a := GenerateSlots(at(8, 0), at(12, 17), 25)
	b := GenerateSlots(at(8, 0), at(12, 17), 25)
	assert.Equal(t, a, b)

	for _, s := range a {
		assert.False(t, s.EndTime.After(at(12, 17)))
	}
	for i := 1; i < len(a); i++ {
		assert.Equal(t, a[i-1].EndTime, a[i].StartTime)
	}
}

func TestGenerateSlotsExactFit(t *testing.T) {
	assert.Len(t, GenerateSlots(at(9, 0), at(10, 0), 30), 2)
	assert.Len(t, GenerateSlots(at(9, 0), at(9, 30), 30), 1)
}

func TestGenerateSlotsDegenerateInput(t *testing.T) {
	assert.Empty(t, GenerateSlots(at(9, 0), at(10, 0), 0))
	assert.Empty(t, GenerateSlots(at(9, 0), at(10, 0), -15))
	assert.Empty(t, GenerateSlots(at(10, 0), at(9, 0), 30))
	assert.Empty(t, GenerateSlots(at(9, 0), at(9, 0), 30))
	assert.Empty(t, GenerateSlots(at(9, 0), at(9, 0).Add(29*time.Minute), 30))
}
