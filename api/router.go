package api

import (
	"github.com/gin-gonic/gin"
)

// NewRouter creates and configures the Gin router.
func NewRouter(h *Handler) *gin.Engine {
	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(RequestID())
	r.Use(AccessLog(h.Logger))

	r.GET("/health", h.Health)

	v := r.Group("/api", Identity())

	// Onboarding
	v.GET("/onboarding", h.Onboarding)
	v.POST("/onboarding/color", h.ChooseColor)

	// Calendar
	v.GET("/events", h.ListEvents)
	v.POST("/events", h.CreateEvent)
	v.PATCH("/events/:id/move", h.MoveEvent)
	v.PATCH("/events/:id/resize", h.ResizeEvent)
	v.DELETE("/events/:id", h.DeleteEvent)
	v.GET("/calendar.ics", h.ExportICS)

	return r
}
