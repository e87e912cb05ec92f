package schedule

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrInvalidTimeOfDay = errors.New("invalid time of day, expected HH:MM")
	ErrInvalidDelay     = errors.New("random delay must be >= 0")
)

// Config is the declarative weekly check-in schedule. It is owned by the
// server, pushed to the agent on change, and cached by the agent for offline
// operation. Updates always replace the whole object.
type Config struct {
	MorningTime    string    `json:"morning_time" mapstructure:"morning_time"`
	EveningTime    string    `json:"evening_time" mapstructure:"evening_time"`
	RandomDelayMax int       `json:"random_delay_max" mapstructure:"random_delay_max"`
	SkipWeekends   bool      `json:"skip_weekends" mapstructure:"skip_weekends"`
	SkipHolidays   bool      `json:"skip_holidays" mapstructure:"skip_holidays"`
	UpdatedAt      time.Time `json:"updated_at,omitempty" mapstructure:"-"`
}

// DefaultConfig matches the seed row created by the migrations.
func DefaultConfig() Config {
	return Config{
		MorningTime:    "08:30",
		EveningTime:    "18:30",
		RandomDelayMax: 900,
		SkipWeekends:   true,
		SkipHolidays:   true,
	}
}

func (c Config) Validate() error {
	if _, err := ParseTimeOfDay(c.MorningTime); err != nil {
		return fmt.Errorf("morning_time: %w", err)
	}
	if _, err := ParseTimeOfDay(c.EveningTime); err != nil {
		return fmt.Errorf("evening_time: %w", err)
	}
	if c.RandomDelayMax < 0 {
		return ErrInvalidDelay
	}
	return nil
}

// TimeOfDay is a wall-clock time within a day, independent of date.
type TimeOfDay struct {
	Hour   int
	Minute int
}

// ParseTimeOfDay parses an HH:MM wall-clock time. The whole string must
// match: trailing input such as seconds is rejected, not truncated.
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	parsed, err := time.Parse("15:04", s)
	if err != nil {
		return TimeOfDay{}, fmt.Errorf("%w: %q", ErrInvalidTimeOfDay, s)
	}
	return TimeOfDay{Hour: parsed.Hour(), Minute: parsed.Minute()}, nil
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

// On anchors the time of day to a concrete date in the given location.
func (t TimeOfDay) On(day time.Time, loc *time.Location) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), t.Hour, t.Minute, 0, 0, loc)
}
