package schedule

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/ball-and-four/newwons/storage"
)

const eventsCollection = "calendar"

// Record pairs a decoded event with the storage handle of its record.
type Record struct {
	Handle string
	Event  Event
}

// EventStore is the remote event collection.
//
// The storage handle of a record is independent of the event id stored in it,
// so the *ByMatchID/UpdateSchedule variants read the whole collection and scan
// for matching ids. The *At variants act on a known handle directly.
type EventStore struct {
	docs   storage.DocumentStore
	loc    *time.Location
	logger *slog.Logger
}

// NewEventStore reads and writes events in the calendar collection of docs.
// Zoneless timestamps are read in loc.
func NewEventStore(docs storage.DocumentStore, loc *time.Location, logger *slog.Logger) *EventStore {
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &EventStore{docs: docs, loc: loc, logger: logger}
}

// Create stores ev and returns the handle of the new record.
func (s *EventStore) Create(ctx context.Context, ev Event) (string, error) {
	handle, err := s.docs.Add(ctx, eventsCollection, ev.fields())
	if err != nil {
		return "", storeErr("create event", err)
	}
	return handle, nil
}

// ListAll reads every event record. Records without an id are skipped.
func (s *EventStore) ListAll(ctx context.Context) ([]Record, error) {
	docs, err := s.docs.List(ctx, eventsCollection)
	if err != nil {
		return nil, storeErr("list events", err)
	}
	records := make([]Record, 0, len(docs))
	for _, doc := range docs {
		ev, ok, err := eventFromFields(doc.Fields, s.loc)
		if err != nil {
			s.logger.Warn("skipping unreadable event record",
				"handle", doc.Handle,
				"error", err)
			continue
		}
		if !ok {
			continue
		}
		records = append(records, Record{Handle: doc.Handle, Event: ev})
	}
	return records, nil
}

// matching returns every record whose stored id equals matchID.
func (s *EventStore) matching(ctx context.Context, matchID string) ([]storage.Document, error) {
	docs, err := s.docs.List(ctx, eventsCollection)
	if err != nil {
		return nil, storeErr("list events", err)
	}
	var matched []storage.Document
	for _, doc := range docs {
		if doc.Fields.String("id") == matchID {
			matched = append(matched, doc)
		}
	}
	return matched, nil
}

// scheduleFields keeps the stored format of the record: dates for all-day
// events, UTC instants otherwise.
func scheduleFields(start, end time.Time, allDay bool) storage.Fields {
	return storage.Fields{
		"start": FormatTimestamp(start, allDay),
		"end":   FormatTimestamp(end, allDay),
	}
}

// UpdateSchedule sets start and end on every record carrying matchID, each
// in the format its own allDay flag calls for. No matching record is not an
// error.
func (s *EventStore) UpdateSchedule(ctx context.Context, matchID string, start, end time.Time) error {
	docs, err := s.matching(ctx, matchID)
	if err != nil {
		return err
	}
	if len(docs) == 0 {
		s.logger.Debug("no record to reschedule", "event_id", matchID)
	}
	var errs []error
	for _, doc := range docs {
		errs = append(errs, s.UpdateScheduleAt(ctx, doc.Handle, start, end, doc.Fields.Bool("allDay")))
	}
	return errors.Join(errs...)
}

// UpdateScheduleAt sets start and end on the record at handle.
// A handle that no longer exists is not an error.
func (s *EventStore) UpdateScheduleAt(ctx context.Context, handle string, start, end time.Time, allDay bool) error {
	err := s.docs.Update(ctx, eventsCollection, handle, scheduleFields(start, end, allDay))
	if errors.Is(err, storage.ErrNotFound) {
		s.logger.Debug("record vanished before reschedule", "handle", handle)
		return nil
	}
	return storeErr("update event", err)
}

// DeleteByMatchID removes every record carrying matchID.
// No matching record is not an error.
func (s *EventStore) DeleteByMatchID(ctx context.Context, matchID string) error {
	docs, err := s.matching(ctx, matchID)
	if err != nil {
		return err
	}
	if len(docs) == 0 {
		s.logger.Debug("no record to delete", "event_id", matchID)
	}
	var errs []error
	for _, doc := range docs {
		errs = append(errs, s.DeleteAt(ctx, doc.Handle))
	}
	return errors.Join(errs...)
}

// DeleteAt removes the record at handle. A handle that no longer exists is not an error.
func (s *EventStore) DeleteAt(ctx context.Context, handle string) error {
	err := s.docs.Delete(ctx, eventsCollection, handle)
	if errors.Is(err, storage.ErrNotFound) {
		s.logger.Debug("record already gone", "handle", handle)
		return nil
	}
	return storeErr("delete event", err)
}
