package schedule

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"
)

// EventLister reads the full remote event collection.
type EventLister interface {
	ListAll(ctx context.Context) ([]Record, error)
}

// EventCache is the render-ready projection of all events.
//
// It may be discarded and rebuilt at any time. Besides the events it keeps an
// index from event id to storage handle so that mutations can address a record
// without scanning the collection.
type EventCache struct {
	source EventLister
	logger *slog.Logger

	mu          sync.RWMutex
	events      []Event
	handles     map[string]string
	refreshedAt time.Time
}

// NewEventCache returns an empty projection that refreshes from source.
func NewEventCache(source EventLister, logger *slog.Logger) *EventCache {
	if logger == nil {
		logger = slog.Default()
	}
	return &EventCache{
		source:  source,
		logger:  logger,
		handles: make(map[string]string),
	}
}

// Refresh replaces the projection with the remote collection, coloring every
// event from dir. Stored colors are ignored. On failure the previous
// projection is kept.
func (c *EventCache) Refresh(ctx context.Context, dir Directory) ([]Event, error) {
	records, err := c.source.ListAll(ctx)
	if err != nil {
		c.logger.Error("failed to refresh events", "error", err)
		return nil, err
	}

	events := make([]Event, 0, len(records))
	handles := make(map[string]string, len(records))
	for _, rec := range records {
		ev := rec.Event
		ev.DisplayColor = ColorFor(dir, ResolveUserKey(ev.AuthorEmail))
		ev.Unsaved = false
		if _, dup := handles[ev.ID]; dup {
			c.logger.Warn("duplicate event id in store", "event_id", ev.ID, "handle", rec.Handle)
		} else {
			handles[ev.ID] = rec.Handle
		}
		events = append(events, ev)
	}

	c.mu.Lock()
	c.events = events
	c.handles = handles
	c.refreshedAt = time.Now()
	c.mu.Unlock()

	c.logger.Debug("events refreshed", "count", len(events))
	return slices.Clone(events), nil
}

// Events returns a copy of the projection.
func (c *EventCache) Events() []Event {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.events)
}

// Len returns the number of events in the projection.
func (c *EventCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.events)
}

// RefreshedAt returns when the last successful refresh happened.
func (c *EventCache) RefreshedAt() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.refreshedAt
}

// Get returns the event with id.
func (c *EventCache) Get(id string) (Event, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	i := c.indexOf(id)
	if i < 0 {
		return Event{}, false
	}
	return c.events[i], true
}

func (c *EventCache) indexOf(id string) int {
	return slices.IndexFunc(c.events, func(ev Event) bool { return ev.ID == id })
}

// Add inserts ev, replacing an event with the same id.
func (c *EventCache) Add(ev Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if i := c.indexOf(ev.ID); i >= 0 {
		c.events[i] = ev
		return
	}
	c.events = append(c.events, ev)
}

// Remove drops the event with id and returns its storage handle if known.
func (c *EventCache) Remove(id string) (handle string, known bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if i := c.indexOf(id); i >= 0 {
		c.events = slices.Delete(c.events, i, i+1)
	}
	handle, known = c.handles[id]
	delete(c.handles, id)
	return handle, known
}

// Reschedule moves the event with id. It reports whether the event was present.
func (c *EventCache) Reschedule(id string, start, end time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	i := c.indexOf(id)
	if i < 0 {
		return false
	}
	c.events[i].Start = start
	c.events[i].End = end
	return true
}

// Bind records the storage handle of the event with id.
func (c *EventCache) Bind(id, handle string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handles[id] = handle
}

// Handle returns the storage handle of the event with id.
func (c *EventCache) Handle(id string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	h, ok := c.handles[id]
	return h, ok
}

// Unbind drops and returns the storage handle of the event with id.
func (c *EventCache) Unbind(id string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	h, ok := c.handles[id]
	delete(c.handles, id)
	return h, ok
}

// MarkUnsaved flags the event with id as diverged from the store.
func (c *EventCache) MarkUnsaved(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if i := c.indexOf(id); i >= 0 {
		c.events[i].Unsaved = true
	}
}
