package api

import (
	"bytes"
	"context"
	"net/http"
	"time"

	"github.com/ball-and-four/newwons/schedule"
	"github.com/gin-gonic/gin"
)

type createEventRequest struct {
	Title  string `json:"title"`
	Start  string `json:"start" binding:"required"`
	End    string `json:"end" binding:"required"`
	AllDay bool   `json:"allDay"`
}

type scheduleRequest struct {
	Start string `json:"start" binding:"required"`
	End   string `json:"end" binding:"required"`
}

type eventsResponse struct {
	Events []schedule.Event `json:"events"`
	Stale  bool             `json:"stale,omitempty"`
}

func (h *Handler) parseRange(start, end string, allDay bool) (schedule.Range, error) {
	s, err := schedule.ParseTimestamp(start, h.Location)
	if err != nil {
		return schedule.Range{}, &schedule.ValidationError{Field: "start", Err: err}
	}
	e, err := schedule.ParseTimestamp(end, h.Location)
	if err != nil {
		return schedule.Range{}, &schedule.ValidationError{Field: "end", Err: err}
	}
	return schedule.Range{Start: s, End: e, AllDay: allDay}, nil
}

// ListEvents refreshes and returns the render-ready projection.
// weekends=false hides events that lie entirely on a Saturday or Sunday.
func (h *Handler) ListEvents(c *gin.Context) {
	events, stale := h.projection(c.Request.Context())
	if c.Query("weekends") == "false" {
		events = withoutWeekends(events, h.Location)
	}
	if events == nil {
		events = []schedule.Event{}
	}
	c.JSON(http.StatusOK, eventsResponse{Events: events, Stale: stale})
}

// CreateEvent handles a completed range selection.
func (h *Handler) CreateEvent(c *gin.Context) {
	session, gate, ok := h.requireReady(c)
	if !ok {
		return
	}
	var req createEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	rng, err := h.parseRange(req.Start, req.End, req.AllDay)
	if err != nil {
		writeError(c, err)
		return
	}

	ev, _, err := h.Controller.CreateEvent(c.Request.Context(), rng, req.Title, session, gate.Directory())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, ev)
}

// MoveEvent handles a drag-and-drop.
func (h *Handler) MoveEvent(c *gin.Context) {
	h.reschedule(c, h.Controller.MoveEvent)
}

// ResizeEvent handles a resize.
func (h *Handler) ResizeEvent(c *gin.Context) {
	h.reschedule(c, h.Controller.ResizeEvent)
}

type rescheduleFunc func(ctx context.Context, id string, start, end time.Time) (schedule.Pending, error)

func (h *Handler) reschedule(c *gin.Context, apply rescheduleFunc) {
	if _, _, ok := h.requireReady(c); !ok {
		return
	}
	id := c.Param("id")
	var req scheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	rng, err := h.parseRange(req.Start, req.End, false)
	if err != nil {
		writeError(c, err)
		return
	}
	if _, err := apply(c.Request.Context(), id, rng.Start, rng.End); err != nil {
		writeError(c, err)
		return
	}

	if ev, ok := h.Cache.Get(id); ok {
		c.JSON(http.StatusAccepted, ev)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"id": id})
}

// DeleteEvent removes an event once the user has confirmed. Unlike the
// other mutations it waits for the remote write so the outcome can be shown.
func (h *Handler) DeleteEvent(c *gin.Context) {
	if _, _, ok := h.requireReady(c); !ok {
		return
	}
	id := c.Param("id")
	if c.Query("confirm") != "true" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "delete requires confirm=true"})
		return
	}

	pending := h.Controller.DeleteEvent(c.Request.Context(), id)
	select {
	case err := <-pending:
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"deleted": id})
	case <-c.Request.Context().Done():
		// client went away; the write still settles in the background
	}
}

// ExportICS serves the projection as an iCalendar feed.
func (h *Handler) ExportICS(c *gin.Context) {
	events, _ := h.projection(c.Request.Context())
	if len(events) == 0 {
		c.Status(http.StatusNoContent)
		return
	}
	var buf bytes.Buffer
	if err := schedule.WriteICS(&buf, events, h.Now()); err != nil {
		h.Logger.Error("ics export failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to export calendar"})
		return
	}
	c.Header("Content-Disposition", `attachment; filename="newwons.ics"`)
	c.Data(http.StatusOK, "text/calendar; charset=utf-8", buf.Bytes())
}
