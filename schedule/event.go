package schedule

import (
	"fmt"
	"time"

	"github.com/ball-and-four/newwons/storage"
	"github.com/google/uuid"
	"github.com/samber/mo"
)

const (
	dateLayout    = "2006-01-02"
	instantLayout = "2006-01-02T15:04:05.000Z07:00"
)

// Layouts accepted when reading timestamps back from the store or from clients.
var timestampLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	dateLayout,
}

// Event is a single schedulable calendar item.
type Event struct {
	ID          string            `json:"id"`
	Title       string            `json:"title"`
	Start       time.Time         `json:"start"`
	End         time.Time         `json:"end"`
	AllDay      bool              `json:"allDay"`
	Author      mo.Option[string] `json:"author"`
	AuthorEmail mo.Option[string] `json:"authorEmail"`
	// DisplayColor is derived from the color directory and never trusted from the store.
	DisplayColor string `json:"backgroundColor"`
	// Unsaved is set when the last remote write for this event failed.
	Unsaved bool `json:"unsaved,omitempty"`
}

// Range is a selected span on the calendar.
type Range struct {
	Start  time.Time
	End    time.Time
	AllDay bool
}

// Validate checks the start <= end invariant.
func (r Range) Validate() error {
	if r.End.Before(r.Start) {
		return &ValidationError{Field: "range", Err: ErrInvertedRange}
	}
	return nil
}

// NewEventID returns a time-ordered identifier.
func NewEventID() string {
	return uuid.Must(uuid.NewV7()).String()
}

// ParseTimestamp reads an ISO-8601 timestamp. Forms without a zone are taken in loc.
func ParseTimestamp(s string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t.In(loc), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

// FormatTimestamp renders t the way records are persisted: a bare date for
// all-day values, a UTC instant with milliseconds otherwise.
func FormatTimestamp(t time.Time, allDay bool) string {
	if allDay {
		return t.Format(dateLayout)
	}
	return t.UTC().Format(instantLayout)
}

func optionalString(s string) mo.Option[string] {
	if s == "" {
		return mo.None[string]()
	}
	return mo.Some(s)
}

func (e Event) fields() storage.Fields {
	f := storage.Fields{
		"id":              e.ID,
		"title":           e.Title,
		"start":           FormatTimestamp(e.Start, e.AllDay),
		"end":             FormatTimestamp(e.End, e.AllDay),
		"allDay":          e.AllDay,
		"author":          nil,
		"authorEmail":     nil,
		"backgroundColor": e.DisplayColor,
	}
	if v, ok := e.Author.Get(); ok {
		f["author"] = v
	}
	if v, ok := e.AuthorEmail.Get(); ok {
		f["authorEmail"] = v
	}
	return f
}

// eventFromFields decodes a calendar record. Records without an id are not events.
func eventFromFields(f storage.Fields, loc *time.Location) (Event, bool, error) {
	id := f.String("id")
	if id == "" {
		return Event{}, false, nil
	}
	start, err := ParseTimestamp(f.String("start"), loc)
	if err != nil {
		return Event{}, false, fmt.Errorf("event %s start: %w", id, err)
	}
	end, err := ParseTimestamp(f.String("end"), loc)
	if err != nil {
		// an open-ended record spans nothing
		end = start
	}
	return Event{
		ID:          id,
		Title:       f.String("title"),
		Start:       start,
		End:         end,
		AllDay:      f.Bool("allDay"),
		Author:      optionalString(f.String("author")),
		AuthorEmail: optionalString(f.String("authorEmail")),
	}, true, nil
}
