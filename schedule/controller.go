package schedule

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// EventWriter performs the remote event mutations.
type EventWriter interface {
	Create(ctx context.Context, ev Event) (string, error)
	UpdateSchedule(ctx context.Context, matchID string, start, end time.Time) error
	UpdateScheduleAt(ctx context.Context, handle string, start, end time.Time, allDay bool) error
	DeleteByMatchID(ctx context.Context, matchID string) error
	DeleteAt(ctx context.Context, handle string) error
}

// Pending yields the outcome of a single remote write once it has settled.
// Callers may drop it; the write completes regardless.
type Pending <-chan error

// Controller applies calendar mutations.
//
// Every mutation is applied to the cache immediately and written to the store
// in the background. A failed write is logged and reported on the returned
// Pending but never rolled back locally; the projection converges again on
// the next refresh.
//
// Writes for an event whose create is still in flight wait for that create
// to settle, so they address the new record instead of missing it.
type Controller struct {
	store     EventWriter
	cache     *EventCache
	logger    *slog.Logger
	newID     func() string
	reconcile func(ctx context.Context)

	mu       sync.Mutex
	creating map[string]chan struct{}

	wg sync.WaitGroup
}

// ControllerOption configures a Controller.
type ControllerOption func(*Controller)

// WithLogger sets the controller's logger.
func WithLogger(logger *slog.Logger) ControllerOption {
	return func(c *Controller) { c.logger = logger }
}

// WithIDGenerator replaces NewEventID.
func WithIDGenerator(gen func() string) ControllerOption {
	return func(c *Controller) { c.newID = gen }
}

// WithReconciler runs fn after every failed write, typically a cache refresh.
func WithReconciler(fn func(ctx context.Context)) ControllerOption {
	return func(c *Controller) { c.reconcile = fn }
}

// NewController returns a controller writing to store and projecting into cache.
func NewController(store EventWriter, cache *EventCache, opts ...ControllerOption) *Controller {
	c := &Controller{
		store:    store,
		cache:    cache,
		newID:    NewEventID,
		creating: make(map[string]chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	return c
}

// dispatch runs write in the background, detached from ctx cancellation.
func (c *Controller) dispatch(ctx context.Context, op, eventID string, write func(ctx context.Context) error) Pending {
	done := make(chan error, 1)
	ctx = context.WithoutCancel(ctx)

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer close(done)

		err := write(ctx)
		if err != nil {
			c.logger.Error("remote write failed",
				"op", op,
				"event_id", eventID,
				"error", err)
			if c.reconcile != nil {
				c.reconcile(ctx)
			}
		} else {
			c.logger.Debug("remote write settled",
				"op", op,
				"event_id", eventID)
		}
		done <- err
	}()
	return done
}

// trackCreate registers an in-flight create for id. The returned func marks
// it settled.
func (c *Controller) trackCreate(id string) func() {
	done := make(chan struct{})
	c.mu.Lock()
	c.creating[id] = done
	c.mu.Unlock()
	return func() {
		c.mu.Lock()
		if c.creating[id] == done {
			delete(c.creating, id)
		}
		c.mu.Unlock()
		close(done)
	}
}

// pendingCreate returns a channel closed once the create for id settles, or
// nil when no create is in flight.
func (c *Controller) pendingCreate(id string) <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	if done, ok := c.creating[id]; ok {
		return done
	}
	return nil
}

func awaitCreate(ctx context.Context, created <-chan struct{}) error {
	if created == nil {
		return nil
	}
	select {
	case <-created:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Wait blocks until every dispatched write has settled.
func (c *Controller) Wait() {
	c.wg.Wait()
}

// CreateEvent adds a new event for session over rng. An empty title or an
// inverted range is rejected without touching the cache or the store.
// The returned event's color comes from dir at creation time only.
func (c *Controller) CreateEvent(ctx context.Context, rng Range, title string, session SessionContext, dir Directory) (Event, Pending, error) {
	if title == "" {
		return Event{}, nil, &ValidationError{Field: "title", Err: ErrEmptyTitle}
	}
	if err := rng.Validate(); err != nil {
		return Event{}, nil, err
	}

	ev := Event{
		ID:           c.newID(),
		Title:        title,
		Start:        rng.Start,
		End:          rng.End,
		AllDay:       rng.AllDay,
		Author:       optionalString(session.DisplayName),
		AuthorEmail:  session.Email,
		DisplayColor: ColorFor(dir, session.UserKey),
	}
	c.cache.Add(ev)
	c.logger.Info("event created",
		"event_id", ev.ID,
		"user_key", session.UserKey)

	settled := c.trackCreate(ev.ID)
	pending := c.dispatch(ctx, "create", ev.ID, func(ctx context.Context) error {
		defer settled()
		handle, err := c.store.Create(ctx, ev)
		if err != nil {
			c.cache.MarkUnsaved(ev.ID)
			return err
		}
		c.cache.Bind(ev.ID, handle)
		return nil
	})
	return ev, pending, nil
}

// DeleteEvent removes the event with id. Confirmation is the caller's concern.
func (c *Controller) DeleteEvent(ctx context.Context, id string) Pending {
	created := c.pendingCreate(id)
	handle, known := c.cache.Remove(id)
	c.logger.Info("event deleted", "event_id", id)

	return c.dispatch(ctx, "delete", id, func(ctx context.Context) error {
		if err := awaitCreate(ctx, created); err != nil {
			return err
		}
		if !known {
			// a create that landed meanwhile bound its handle after the removal
			handle, known = c.cache.Unbind(id)
		}
		if known {
			return c.store.DeleteAt(ctx, handle)
		}
		return c.store.DeleteByMatchID(ctx, id)
	})
}

// MoveEvent places the event with id at a new position.
func (c *Controller) MoveEvent(ctx context.Context, id string, start, end time.Time) (Pending, error) {
	return c.reschedule(ctx, "move", id, start, end)
}

// ResizeEvent changes the span of the event with id.
func (c *Controller) ResizeEvent(ctx context.Context, id string, start, end time.Time) (Pending, error) {
	return c.reschedule(ctx, "resize", id, start, end)
}

func (c *Controller) reschedule(ctx context.Context, op, id string, start, end time.Time) (Pending, error) {
	if err := (Range{Start: start, End: end}).Validate(); err != nil {
		return nil, err
	}
	created := c.pendingCreate(id)
	ev, cached := c.cache.Get(id)
	if cached {
		c.cache.Reschedule(id, start, end)
	} else {
		c.logger.Debug("rescheduling event missing from cache", "event_id", id)
	}
	c.logger.Info("event rescheduled",
		"op", op,
		"event_id", id)

	return c.dispatch(ctx, op, id, func(ctx context.Context) error {
		err := awaitCreate(ctx, created)
		if err == nil {
			if handle, ok := c.cache.Handle(id); ok && cached {
				err = c.store.UpdateScheduleAt(ctx, handle, start, end, ev.AllDay)
			} else {
				err = c.store.UpdateSchedule(ctx, id, start, end)
			}
		}
		if err != nil {
			c.cache.MarkUnsaved(id)
		}
		return err
	}), nil
}
