package api

import (
	"time"

	"github.com/ball-and-four/newwons/schedule"
)

func withoutWeekends(events []schedule.Event, loc *time.Location) []schedule.Event {
	kept := make([]schedule.Event, 0, len(events))
	for _, ev := range events {
		if !weekendOnly(ev, loc) {
			kept = append(kept, ev)
		}
	}
	return kept
}

// weekendOnly reports whether every day ev touches in loc is a Saturday or Sunday.
func weekendOnly(ev schedule.Event, loc *time.Location) bool {
	start, end := ev.Start.In(loc), ev.End.In(loc)
	if ev.AllDay && end.After(start) {
		// all-day ends are exclusive
		end = end.Add(-time.Nanosecond)
	}
	if end.Sub(start) >= 48*time.Hour {
		return false
	}
	day := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, loc)
	for !day.After(end) {
		if wd := day.Weekday(); wd != time.Saturday && wd != time.Sunday {
			return false
		}
		day = day.AddDate(0, 0, 1)
	}
	return true
}
