package checkins

import "time"

// ActionKind names one of the two daily check-in actions.
type ActionKind string

const (
	ActionMorning ActionKind = "morning"
	ActionEvening ActionKind = "evening"
)

func (k ActionKind) Valid() bool {
	return k == ActionMorning || k == ActionEvening
}

// Operation is the name of the external operation the kind maps to.
func (k ActionKind) Operation() string {
	switch k {
	case ActionMorning:
		return "check-in start"
	case ActionEvening:
		return "check-in end"
	default:
		return "unknown"
	}
}

// Trigger records how an action came to run.
type Trigger string

const (
	TriggerScheduled Trigger = "scheduled"
	TriggerManual    Trigger = "manual"
)

// Record is one completed check-in attempt. Immutable once created; appended
// to history by the server when the agent reports the result.
type Record struct {
	ID          int64
	Kind        ActionKind
	TriggeredAt time.Time
	ExecutedAt  time.Time
	Success     bool
	Trigger     Trigger
	Message     string
	ArtifactRef string
	CreatedAt   time.Time
}

// SlotStatus is the per-kind entry of the derived today view.
type SlotStatus struct {
	Done    bool       `json:"done"`
	Time    *time.Time `json:"time,omitempty"`
	Message string     `json:"message,omitempty"`
}

// Today is the derived view of the current calendar day: whether a morning
// and an evening record exist and when they ran. The scheduled markers are
// sticky per kind: the slot pointers track the record that currently
// represents the slot, which a manual run can own, while the markers remember
// that a scheduled run happened at all.
type Today struct {
	Morning *SlotStatus `json:"morning"`
	Evening *SlotStatus `json:"evening"`

	MorningScheduled bool `json:"morning_scheduled_attempted"`
	EveningScheduled bool `json:"evening_scheduled_attempted"`
}

// Attempted reports whether any record for the kind exists today, successful
// or not, regardless of trigger.
func (t Today) Attempted(kind ActionKind) bool {
	switch kind {
	case ActionMorning:
		return t.Morning != nil
	case ActionEvening:
		return t.Evening != nil
	}
	return false
}

// ScheduledAttempted reports whether a scheduled record for the kind exists
// today, successful or not. A failed scheduled attempt still counts: it
// consumes the slot for the rest of the day. Manual runs never count; they
// run outside the schedule and leave the slot open.
func (t Today) ScheduledAttempted(kind ActionKind) bool {
	switch kind {
	case ActionMorning:
		return t.MorningScheduled
	case ActionEvening:
		return t.EveningScheduled
	}
	return false
}

// Done reports whether a successful record for the kind exists today.
func (t Today) Done(kind ActionKind) bool {
	switch kind {
	case ActionMorning:
		return t.Morning != nil && t.Morning.Done
	case ActionEvening:
		return t.Evening != nil && t.Evening.Done
	}
	return false
}

// Apply folds a new record into the view. A later failed attempt does not
// clear a slot that already succeeded.
func (t *Today) Apply(rec Record) {
	if rec.Trigger == TriggerScheduled {
		switch rec.Kind {
		case ActionMorning:
			t.MorningScheduled = true
		case ActionEvening:
			t.EveningScheduled = true
		}
	}

	st := &SlotStatus{Done: rec.Success, Message: rec.Message}
	executed := rec.ExecutedAt
	st.Time = &executed

	switch rec.Kind {
	case ActionMorning:
		if t.Morning == nil || !t.Morning.Done || rec.Success {
			t.Morning = st
		}
	case ActionEvening:
		if t.Evening == nil || !t.Evening.Done || rec.Success {
			t.Evening = st
		}
	}
}
