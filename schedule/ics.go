package schedule

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/emersion/go-ical"
)

// ErrNothingToExport is returned by WriteICS for an empty event list.
var ErrNothingToExport = errors.New("no events to export")

const (
	propColor       = "COLOR" // RFC 7986
	paramCommonName = "CN"
)

// WriteICS encodes events as an iCalendar feed. Display colors are carried in
// the COLOR property and authors as ORGANIZER.
func WriteICS(w io.Writer, events []Event, now time.Time) error {
	if len(events) == 0 {
		return ErrNothingToExport
	}

	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropVersion, "2.0")
	cal.Props.SetText(ical.PropProductID, "-//ball-and-four//newwons shared calendar//EN")

	for _, ev := range events {
		cal.Children = append(cal.Children, toICalEvent(ev, now).Component)
	}

	if err := ical.NewEncoder(w).Encode(cal); err != nil {
		return fmt.Errorf("failed to encode calendar: %w", err)
	}
	return nil
}

func toICalEvent(ev Event, now time.Time) *ical.Event {
	event := ical.NewEvent()
	event.Props.SetText(ical.PropUID, ev.ID)
	event.Props.SetDateTime(ical.PropDateTimeStamp, now.UTC())
	event.Props.SetText(ical.PropSummary, ev.Title)

	if ev.AllDay {
		end := ev.End
		// DTEND is exclusive; a zero-length all-day event still covers its day
		if !end.After(ev.Start) {
			end = ev.Start.AddDate(0, 0, 1)
		}
		event.Props.SetDate(ical.PropDateTimeStart, ev.Start)
		event.Props.SetDate(ical.PropDateTimeEnd, end)
	} else {
		event.Props.SetDateTime(ical.PropDateTimeStart, ev.Start.UTC())
		event.Props.SetDateTime(ical.PropDateTimeEnd, ev.End.UTC())
	}

	if email, ok := ev.AuthorEmail.Get(); ok {
		organizer := ical.NewProp(ical.PropOrganizer)
		organizer.Value = "mailto:" + email
		if name, ok := ev.Author.Get(); ok {
			organizer.Params.Set(paramCommonName, name)
		}
		event.Props.Add(organizer)
	}
	if ev.DisplayColor != "" {
		event.Props.SetText(propColor, ev.DisplayColor)
	}
	return event
}
