package schedule

import (
	"testing"
	"time"

	"github.com/pocketops/checkin-bridge/internal/checkins"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTimeOfDay(t *testing.T) {
	tests := []struct {
		input   string
		want    TimeOfDay
		wantErr bool
	}{
		{"08:30", TimeOfDay{8, 30}, false},
		{"00:00", TimeOfDay{0, 0}, false},
		{"23:59", TimeOfDay{23, 59}, false},
		{"24:00", TimeOfDay{}, true},
		{"12:60", TimeOfDay{}, true},
		{"-1:30", TimeOfDay{}, true},
		{"08:30:59", TimeOfDay{}, true},
		{"08:30junk", TimeOfDay{}, true},
		{"noon", TimeOfDay{}, true},
		{"", TimeOfDay{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseTimeOfDay(tt.input)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidTimeOfDay)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestConfigValidate(t *testing.T) {
	cfg := DefaultConfig()
	assert.NoError(t, cfg.Validate())

	cfg.MorningTime = "25:00"
	assert.ErrorIs(t, cfg.Validate(), ErrInvalidTimeOfDay)

	cfg = DefaultConfig()
	cfg.RandomDelayMax = -5
	assert.ErrorIs(t, cfg.Validate(), ErrInvalidDelay)
}

func TestJitterBounds(t *testing.T) {
	max := 15 * time.Minute
	for i := 0; i < 1000; i++ {
		d := Jitter(max)
		assert.GreaterOrEqual(t, d, time.Duration(0))
		assert.LessOrEqual(t, d, max)
	}
}

// The distribution is biased toward zero: well over half of the draws must
// land in the lower half of the range.
func TestJitterBiasedTowardZero(t *testing.T) {
	max := 15 * time.Minute
	low := 0
	const n = 2000
	for i := 0; i < n; i++ {
		if Jitter(max) < max/2 {
			low++
		}
	}
	assert.Greater(t, low, n*6/10)
}

func TestJitterZeroMax(t *testing.T) {
	assert.Equal(t, time.Duration(0), Jitter(0))
	assert.Equal(t, time.Duration(0), Jitter(-time.Second))
}

func TestCalendar(t *testing.T) {
	cal := NewCalendar(
		[]string{"2026-10-01", "2026-10-02"},
		[]string{"2026-09-26"},
	)

	holiday := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	assert.True(t, cal.IsHoliday(holiday))
	assert.False(t, cal.IsHoliday(holiday.AddDate(0, 0, 5)))

	override := time.Date(2026, 9, 26, 0, 0, 0, 0, time.UTC) // a Saturday
	assert.True(t, cal.IsWorkdayOverride(override))
	assert.False(t, cal.IsWorkdayOverride(override.AddDate(0, 0, 7)))
}

func TestPlanDay(t *testing.T) {
	loc := time.UTC
	cfg := Config{
		MorningTime:    "08:30",
		EveningTime:    "18:30",
		RandomDelayMax: 900,
		SkipWeekends:   true,
		SkipHolidays:   true,
	}
	cal := NewCalendar([]string{"2026-10-01"}, []string{"2026-09-26"})

	t.Run("regular workday", func(t *testing.T) {
		day := time.Date(2026, 9, 28, 0, 0, 0, 0, loc) // Monday
		plan, err := PlanDay(cfg, cal, day, loc)
		require.NoError(t, err)
		require.Len(t, plan.Slots, 2)

		morning, ok := plan.Slot(checkins.ActionMorning)
		require.True(t, ok)
		assert.False(t, morning.Skipped)
		assert.Equal(t, time.Date(2026, 9, 28, 8, 30, 0, 0, loc), morning.Base)
		assert.False(t, morning.FireAt.Before(morning.Base))
		assert.LessOrEqual(t, morning.FireAt.Sub(morning.Base), 900*time.Second)

		evening, ok := plan.Slot(checkins.ActionEvening)
		require.True(t, ok)
		assert.Equal(t, time.Date(2026, 9, 28, 18, 30, 0, 0, loc), evening.Base)
	})

	t.Run("weekend skipped", func(t *testing.T) {
		day := time.Date(2026, 9, 27, 0, 0, 0, 0, loc) // Sunday
		plan, err := PlanDay(cfg, cal, day, loc)
		require.NoError(t, err)
		for _, slot := range plan.Slots {
			assert.True(t, slot.Skipped)
			assert.Equal(t, "weekend", slot.SkipReason)
		}
	})

	t.Run("workday override fires on a Saturday", func(t *testing.T) {
		day := time.Date(2026, 9, 26, 0, 0, 0, 0, loc) // Saturday, overridden
		plan, err := PlanDay(cfg, cal, day, loc)
		require.NoError(t, err)
		for _, slot := range plan.Slots {
			assert.False(t, slot.Skipped)
		}
	})

	t.Run("holiday skipped", func(t *testing.T) {
		day := time.Date(2026, 10, 1, 0, 0, 0, 0, loc) // Thursday, holiday
		plan, err := PlanDay(cfg, cal, day, loc)
		require.NoError(t, err)
		for _, slot := range plan.Slots {
			assert.True(t, slot.Skipped)
			assert.Equal(t, "holiday", slot.SkipReason)
		}
	})

	t.Run("weekend wins over holiday flag", func(t *testing.T) {
		noWeekends := cfg
		noWeekends.SkipHolidays = false
		day := time.Date(2026, 9, 27, 0, 0, 0, 0, loc)
		plan, err := PlanDay(noWeekends, cal, day, loc)
		require.NoError(t, err)
		for _, slot := range plan.Slots {
			assert.True(t, slot.Skipped)
		}
	})

	t.Run("invalid config rejected", func(t *testing.T) {
		bad := cfg
		bad.EveningTime = "99:99"
		_, err := PlanDay(bad, cal, time.Now(), loc)
		assert.ErrorIs(t, err, ErrInvalidTimeOfDay)
	})
}
