package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/ball-and-four/newwons/schedule"
	"github.com/gin-gonic/gin"
)

// Handler serves the calendar view's intents over HTTP.
type Handler struct {
	Colors     *schedule.ColorAssignments
	Cache      *schedule.EventCache
	Controller *schedule.Controller
	Refresher  *schedule.Refresher
	Location   *time.Location
	Logger     *slog.Logger
	Now        func() time.Time

	mu    sync.Mutex
	gates map[string]*schedule.Gate
}

// NewHandler wires the calendar services into HTTP handlers. A nil loc means UTC.
func NewHandler(colors *schedule.ColorAssignments, cache *schedule.EventCache, controller *schedule.Controller, refresher *schedule.Refresher, loc *time.Location, logger *slog.Logger) *Handler {
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		Colors:     colors,
		Cache:      cache,
		Controller: controller,
		Refresher:  refresher,
		Location:   loc,
		Logger:     logger,
		Now:        time.Now,
		gates:      make(map[string]*schedule.Gate),
	}
}

// gateFor returns the onboarding gate of session. Gates of identified users
// are kept so that a Ready gate stays Ready for the process lifetime; the map
// grows with the number of distinct user keys and is never trimmed.
// A kept gate only uses the user key of the session it was created with.
// Display names and emails are read from the current request by the handlers.
func (h *Handler) gateFor(session schedule.SessionContext) *schedule.Gate {
	if session.UserKey == "" {
		return schedule.NewGate(session, h.Colors, h.Logger)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	g, ok := h.gates[session.UserKey]
	if !ok {
		g = schedule.NewGate(session, h.Colors, h.Logger)
		h.gates[session.UserKey] = g
	}
	return g
}

// evaluate re-reads the directory unless the gate is already Ready.
func (h *Handler) evaluate(ctx context.Context, g *schedule.Gate) schedule.GateState {
	if state := g.State(); state == schedule.GateReady {
		return state
	}
	return g.Evaluate(ctx)
}

// requireReady aborts with 428 unless the caller has picked a color.
func (h *Handler) requireReady(c *gin.Context) (schedule.SessionContext, *schedule.Gate, bool) {
	session := SessionFrom(c)
	gate := h.gateFor(session)
	switch state := h.evaluate(c.Request.Context(), gate); state {
	case schedule.GateReady:
		return session, gate, true
	case schedule.GateLoading:
		writeError(c, gate.Err())
	default:
		c.JSON(http.StatusPreconditionRequired, gin.H{
			"error": "pick a color before editing the calendar",
			"state": state,
		})
	}
	return session, nil, false
}

// projection refreshes the cache and returns it. When the store cannot be
// read the last good projection is returned and stale is set.
func (h *Handler) projection(ctx context.Context) (events []schedule.Event, stale bool) {
	events, _, err := h.Refresher.RefreshNow(ctx)
	if err != nil {
		h.Logger.Warn("serving stale projection", "error", err)
		return h.Cache.Events(), true
	}
	return events, false
}

// writeError maps err onto a status code and a JSON body.
func writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	var (
		ve *schedule.ValidationError
		se *schedule.StoreError
	)
	switch {
	case err == nil:
		err = errors.New("unknown error")
	case errors.Is(err, schedule.ErrNoUserKey):
		status = http.StatusUnauthorized
	case errors.Is(err, schedule.ErrColorTaken):
		status = http.StatusConflict
	case errors.As(err, &ve):
		status = http.StatusBadRequest
	case errors.Is(err, schedule.ErrDirectoryNotLoaded):
		status = http.StatusServiceUnavailable
	case errors.As(err, &se):
		status = http.StatusBadGateway
	}
	c.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
}

// Health reports liveness and the age of the projection.
func (h *Handler) Health(c *gin.Context) {
	body := gin.H{"status": "ok", "events": h.Cache.Len()}
	if at := h.Cache.RefreshedAt(); !at.IsZero() {
		body["refreshed_at"] = at
	}
	c.JSON(http.StatusOK, body)
}
