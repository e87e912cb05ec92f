package checkins

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func rec(kind ActionKind, success bool, at time.Time) Record {
	return Record{Kind: kind, Success: success, ExecutedAt: at}
}

func TestTodayApply(t *testing.T) {
	now := time.Now()

	t.Run("failure then success", func(t *testing.T) {
		var today Today
		today.Apply(rec(ActionMorning, false, now))
		assert.True(t, today.Attempted(ActionMorning))
		assert.False(t, today.Done(ActionMorning))

		today.Apply(rec(ActionMorning, true, now.Add(time.Minute)))
		assert.True(t, today.Done(ActionMorning))
	})

	t.Run("later failure keeps a succeeded slot", func(t *testing.T) {
		var today Today
		today.Apply(rec(ActionMorning, true, now))
		today.Apply(rec(ActionMorning, false, now.Add(time.Minute)))

		assert.True(t, today.Done(ActionMorning))
		assert.Equal(t, now, *today.Morning.Time)
	})

	t.Run("kinds are independent", func(t *testing.T) {
		var today Today
		today.Apply(rec(ActionEvening, true, now))
		assert.True(t, today.Done(ActionEvening))
		assert.False(t, today.Attempted(ActionMorning))
	})

	t.Run("manual run leaves the scheduled slot open", func(t *testing.T) {
		var today Today
		today.Apply(Record{Kind: ActionMorning, Success: true, Trigger: TriggerManual, ExecutedAt: now})

		assert.True(t, today.Attempted(ActionMorning))
		assert.False(t, today.ScheduledAttempted(ActionMorning))
	})

	t.Run("failed scheduled run consumes the slot", func(t *testing.T) {
		var today Today
		today.Apply(Record{Kind: ActionEvening, Success: false, Trigger: TriggerScheduled, ExecutedAt: now})

		assert.True(t, today.ScheduledAttempted(ActionEvening))
		assert.False(t, today.Done(ActionEvening))
	})

	t.Run("scheduled marker sticks when a manual success takes the slot", func(t *testing.T) {
		var today Today
		today.Apply(Record{Kind: ActionMorning, Success: false, Trigger: TriggerScheduled, ExecutedAt: now})
		today.Apply(Record{Kind: ActionMorning, Success: true, Trigger: TriggerManual, ExecutedAt: now.Add(time.Hour)})

		assert.True(t, today.ScheduledAttempted(ActionMorning))
		assert.True(t, today.Done(ActionMorning))
	})
}

func TestTodayFromRecords(t *testing.T) {
	now := time.Now()

	// Newest first, the way the store returns them.
	records := []Record{
		rec(ActionMorning, true, now),
		rec(ActionMorning, false, now.Add(-time.Hour)),
	}

	today := TodayFromRecords(records)
	assert.True(t, today.Done(ActionMorning))
	assert.Equal(t, now, *today.Morning.Time)
	assert.Nil(t, today.Evening)
}

func TestActionKind(t *testing.T) {
	assert.True(t, ActionMorning.Valid())
	assert.True(t, ActionEvening.Valid())
	assert.False(t, ActionKind("noon").Valid())

	assert.Equal(t, "check-in start", ActionMorning.Operation())
	assert.Equal(t, "check-in end", ActionEvening.Operation())
}
