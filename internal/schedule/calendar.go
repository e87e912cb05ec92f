package schedule

import "time"

const dateLayout = "2006-01-02"

// Calendar is an immutable set of holiday dates plus the weekend days that
// are working days regardless (shifted working weekends). Lookups only, no
// runtime mutation.
type Calendar struct {
	holidays map[string]struct{}
	workdays map[string]struct{}
}

func NewCalendar(holidays, workdayOverrides []string) *Calendar {
	c := &Calendar{
		holidays: make(map[string]struct{}, len(holidays)),
		workdays: make(map[string]struct{}, len(workdayOverrides)),
	}
	for _, d := range holidays {
		c.holidays[d] = struct{}{}
	}
	for _, d := range workdayOverrides {
		c.workdays[d] = struct{}{}
	}
	return c
}

func (c *Calendar) IsHoliday(day time.Time) bool {
	_, ok := c.holidays[day.Format(dateLayout)]
	return ok
}

// IsWorkdayOverride reports whether the date must be worked even though it
// falls on a weekend.
func (c *Calendar) IsWorkdayOverride(day time.Time) bool {
	_, ok := c.workdays[day.Format(dateLayout)]
	return ok
}

func isWeekend(day time.Time) bool {
	wd := day.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}
