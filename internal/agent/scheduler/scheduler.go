// Package scheduler decides when the daily check-in actions fire: base times
// from the schedule config, an exponential jitter draw, calendar skips, and
// dedup against already-recorded scheduled runs so a restart never
// double-fires.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/pocketops/checkin-bridge/internal/checkins"
	"github.com/pocketops/checkin-bridge/internal/schedule"
)

const dateLayout = "2006-01-02"

// CompletionSource answers whether a scheduled run was already recorded for
// a (day, kind) pair. Queried before every scheduled fire. Manual runs are
// not reported here: they never consume the slot.
type CompletionSource interface {
	Attempted(ctx context.Context, day time.Time, kind checkins.ActionKind) (bool, error)
}

// FireFunc executes one scheduled action. Invoked in its own goroutine so a
// long-running automation flow never stalls the timing loop.
type FireFunc func(ctx context.Context, kind checkins.ActionKind)

type Scheduler struct {
	cal        *schedule.Calendar
	loc        *time.Location
	completion CompletionSource
	fire       FireFunc

	mu        sync.Mutex
	cfg       schedule.Config
	plan      schedule.DayPlan
	planDay   string
	attempted map[string]bool

	recompute chan struct{}
}

func New(cfg schedule.Config, cal *schedule.Calendar, loc *time.Location, completion CompletionSource, fire FireFunc) *Scheduler {
	if loc == nil {
		loc = time.Local
	}
	return &Scheduler{
		cal:        cal,
		loc:        loc,
		completion: completion,
		fire:       fire,
		cfg:        cfg,
		attempted:  make(map[string]bool),
		recompute:  make(chan struct{}, 1),
	}
}

// UpdateConfig replaces the schedule config. Today's not-yet-fired slots are
// recomputed immediately; already-attempted slots stay consumed.
func (s *Scheduler) UpdateConfig(cfg schedule.Config) {
	s.mu.Lock()
	s.cfg = cfg
	s.planDay = ""
	s.mu.Unlock()

	select {
	case s.recompute <- struct{}{}:
	default:
	}
	slog.Info("Schedule config updated",
		"morning", cfg.MorningTime,
		"evening", cfg.EveningTime,
		"max_delay_s", cfg.RandomDelayMax)
}

// Config returns the current schedule config.
func (s *Scheduler) Config() schedule.Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

// Run drives the timing loop until the context is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	for {
		now := time.Now().In(s.loc)
		s.ensurePlan(now)

		kind, wait := s.nextEvent(now)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-s.recompute:
			timer.Stop()
			continue
		case <-timer.C:
			if kind == "" {
				// Midnight rollover; the next iteration plans the new day.
				continue
			}
			s.fireSlot(ctx, kind)
		}
	}
}

// ensurePlan computes the plan for the current day if the stored one is
// stale, resetting per-day attempt tracking on a date change.
func (s *Scheduler) ensurePlan(now time.Time) {
	day := now.Format(dateLayout)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.planDay == day {
		return
	}
	if s.plan.Day.Format(dateLayout) != day {
		s.attempted = make(map[string]bool)
	}

	plan, err := schedule.PlanDay(s.cfg, s.cal, now, s.loc)
	if err != nil {
		slog.Error("Failed to plan day, keeping previous plan", "error", err)
		s.planDay = day
		return
	}
	s.plan = plan
	s.planDay = day

	for _, slot := range plan.Slots {
		if slot.Skipped {
			slog.Info("Slot skipped", "kind", slot.Kind, "reason", slot.SkipReason)
		} else {
			slog.Info("Slot planned", "kind", slot.Kind, "fire_at", slot.FireAt.Format(time.RFC3339))
		}
	}
}

// nextEvent returns the earliest due slot and how long to wait for it. A
// slot whose fire time already passed (process restart mid-day) is due
// immediately; the completion check decides whether it still runs. With no
// slots left, the wait stretches to the next local midnight.
func (s *Scheduler) nextEvent(now time.Time) (checkins.ActionKind, time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var dueKind checkins.ActionKind
	var dueAt time.Time
	for _, slot := range s.plan.Slots {
		if slot.Skipped || s.attempted[slotKey(s.plan.Day, slot.Kind)] {
			continue
		}
		if dueKind == "" || slot.FireAt.Before(dueAt) {
			dueKind = slot.Kind
			dueAt = slot.FireAt
		}
	}

	if dueKind == "" {
		midnight := time.Date(now.Year(), now.Month(), now.Day()+1, 0, 0, 0, 0, s.loc)
		return "", midnight.Sub(now)
	}

	wait := dueAt.Sub(now)
	if wait < 0 {
		wait = 0
	}
	return dueKind, wait
}

// fireSlot consumes the slot and, unless a scheduled record already exists
// for it, runs the action. The slot is consumed even when execution fails: retries
// are a human decision, made through the manual trigger.
func (s *Scheduler) fireSlot(ctx context.Context, kind checkins.ActionKind) {
	s.mu.Lock()
	key := slotKey(s.plan.Day, kind)
	if s.attempted[key] {
		s.mu.Unlock()
		return
	}
	s.attempted[key] = true
	day := s.plan.Day
	s.mu.Unlock()

	done, err := s.completion.Attempted(ctx, day, kind)
	if err != nil {
		slog.Warn("Completion check failed, firing anyway", "kind", kind, "error", err)
	} else if done {
		slog.Info("Slot already satisfied, skipping", "kind", kind)
		return
	}

	slog.Info("Firing scheduled action", "kind", kind)
	go s.fire(ctx, kind)
}

func slotKey(day time.Time, kind checkins.ActionKind) string {
	return day.Format(dateLayout) + "/" + string(kind)
}
