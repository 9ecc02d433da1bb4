package api

import (
	"net/http"

	"github.com/ball-and-four/newwons/schedule"
	"github.com/gin-gonic/gin"
)

type onboardingResponse struct {
	State schedule.GateState `json:"state"`
	Color string             `json:"color,omitempty"`
}

type colorRequest struct {
	Color string `json:"color" binding:"required"`
}

func (h *Handler) identifiedGate(c *gin.Context) (schedule.SessionContext, *schedule.Gate, bool) {
	session := SessionFrom(c)
	if session.UserKey == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": schedule.ErrNoUserKey.Error()})
		return session, nil, false
	}
	return session, h.gateFor(session), true
}

// Onboarding reports whether the caller still has to pick a color.
func (h *Handler) Onboarding(c *gin.Context) {
	session, gate, ok := h.identifiedGate(c)
	if !ok {
		return
	}
	state := h.evaluate(c.Request.Context(), gate)
	if state == schedule.GateLoading {
		writeError(c, gate.Err())
		return
	}
	c.JSON(http.StatusOK, onboardingResponse{
		State: state,
		Color: schedule.ColorFor(gate.Directory(), session.UserKey),
	})
}

// ChooseColor records the color picked in the onboarding dialog. The gate
// only opens once the directory write is confirmed.
func (h *Handler) ChooseColor(c *gin.Context) {
	session, gate, ok := h.identifiedGate(c)
	if !ok {
		return
	}
	var req colorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()
	if gate.State() == schedule.GateLoading {
		gate.Evaluate(ctx)
	}
	if err := gate.Complete(ctx, req.Color); err != nil {
		h.Logger.Warn("color selection failed",
			"user_key", session.UserKey,
			"request_id", GetRequestID(c),
			"error", err)
		writeError(c, err)
		return
	}

	// recolor the projection with the new assignment
	h.Refresher.Reconcile(ctx)

	c.JSON(http.StatusOK, onboardingResponse{
		State: gate.State(),
		Color: schedule.ColorFor(gate.Directory(), session.UserKey),
	})
}
