package schedule

import (
	"fmt"
	"time"

	"github.com/pocketops/checkin-bridge/internal/checkins"
)

// Slot is one planned action for a given day.
type Slot struct {
	Kind       checkins.ActionKind
	Base       time.Time
	FireAt     time.Time
	Skipped    bool
	SkipReason string
}

// DayPlan holds the computed fire times for one calendar day.
type DayPlan struct {
	Day   time.Time
	Slots []Slot
}

// Slot returns the plan entry for the kind, if present.
func (p DayPlan) Slot(kind checkins.ActionKind) (Slot, bool) {
	for _, s := range p.Slots {
		if s.Kind == kind {
			return s, true
		}
	}
	return Slot{}, false
}

// PlanDay computes fire times for both action kinds on the given day. The
// whole day is skipped when it falls on a weekend (unless overridden as a
// working day) or on a holiday, per the config flags. Each non-skipped slot
// fires at its configured base time plus an independent jitter draw.
func PlanDay(cfg Config, cal *Calendar, day time.Time, loc *time.Location) (DayPlan, error) {
	morning, err := ParseTimeOfDay(cfg.MorningTime)
	if err != nil {
		return DayPlan{}, fmt.Errorf("plan day: %w", err)
	}
	evening, err := ParseTimeOfDay(cfg.EveningTime)
	if err != nil {
		return DayPlan{}, fmt.Errorf("plan day: %w", err)
	}

	skipReason := ""
	if cfg.SkipWeekends && isWeekend(day) && !cal.IsWorkdayOverride(day) {
		skipReason = "weekend"
	} else if cfg.SkipHolidays && cal.IsHoliday(day) {
		skipReason = "holiday"
	}

	maxDelay := time.Duration(cfg.RandomDelayMax) * time.Second
	plan := DayPlan{Day: day}
	for _, entry := range []struct {
		kind checkins.ActionKind
		tod  TimeOfDay
	}{
		{checkins.ActionMorning, morning},
		{checkins.ActionEvening, evening},
	} {
		slot := Slot{Kind: entry.kind, Base: entry.tod.On(day, loc)}
		if skipReason != "" {
			slot.Skipped = true
			slot.SkipReason = skipReason
		} else {
			slot.FireAt = slot.Base.Add(Jitter(maxDelay))
		}
		plan.Slots = append(plan.Slots, slot)
	}
	return plan, nil
}
