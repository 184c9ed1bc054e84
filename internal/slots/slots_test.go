package slots

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/mmeshcher/petcare-system/internal/model"
)

func TestAllSkipsLunch(t *testing.T) {
	all := All()
	assert.Len(t, all, 9)
	assert.Equal(t, model.TimeSlot("08:00-09:00"), all[0])
	assert.Equal(t, model.TimeSlot("17:00-18:00"), all[len(all)-1])
	assert.NotContains(t, all, model.TimeSlot("12:00-13:00"))
}

func TestValid(t *testing.T) {
	tests := []struct {
		slot  model.TimeSlot
		valid bool
	}{
		{"09:00-10:00", true},
		{"13:00-14:00", true},
		{"12:00-13:00", false},
		{"07:00-08:00", false},
		{"18:00-19:00", false},
		{"09:00-11:00", false},
		{"9:00-10:00", false},
		{"09:30-10:30", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(string(tt.slot), func(t *testing.T) {
			assert.Equal(t, tt.valid, Valid(tt.slot))
		})
	}
}

func TestAvailable(t *testing.T) {
	date := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	now := time.Date(2025, 6, 1, 10, 30, 0, 0, time.UTC)

	got := Available(date, []model.TimeSlot{"13:00-14:00"}, now)

	assert.Equal(t, []model.TimeSlot{"11:00-12:00", "14:00-15:00", "15:00-16:00", "16:00-17:00", "17:00-18:00"}, got)

	future := Available(date.AddDate(0, 0, 1), nil, now)
	assert.Len(t, future, 9)
}
