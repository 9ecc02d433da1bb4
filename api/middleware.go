package api

import (
	"log/slog"
	"strings"
	"time"

	"github.com/ball-and-four/newwons/schedule"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/samber/mo"
)

const (
	// Identity headers set by the authenticating proxy in front of the API.
	HeaderEmail = "X-Auth-Email"
	HeaderName  = "X-Auth-Name"

	RequestIDHeader = "X-Request-ID"

	requestIDKey = "request_id"
	sessionKey   = "session"
)

// RequestID extracts or generates a request id and echoes it back.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" {
			id = uuid.New().String()
		}
		c.Set(requestIDKey, id)
		c.Header(RequestIDHeader, id)
		c.Next()
	}
}

// GetRequestID returns the id assigned by RequestID, or "" outside it.
func GetRequestID(c *gin.Context) string {
	return c.GetString(requestIDKey)
}

// AccessLog writes one structured line per request.
func AccessLog(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		level := slog.LevelInfo
		if c.Writer.Status() >= 500 {
			level = slog.LevelError
		}
		logger.Log(c.Request.Context(), level, "request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start),
			"request_id", GetRequestID(c))
	}
}

// Identity turns the proxy's identity headers into a session. A request
// without an email gets an anonymous session with an empty user key.
func Identity() gin.HandlerFunc {
	return func(c *gin.Context) {
		email := mo.None[string]()
		if v := strings.TrimSpace(c.GetHeader(HeaderEmail)); v != "" {
			email = mo.Some(v)
		}
		name := strings.TrimSpace(c.GetHeader(HeaderName))
		c.Set(sessionKey, schedule.NewSession(name, email))
		c.Next()
	}
}

// SessionFrom returns the session attached by Identity.
func SessionFrom(c *gin.Context) schedule.SessionContext {
	if v, ok := c.Get(sessionKey); ok {
		if s, ok := v.(schedule.SessionContext); ok {
			return s
		}
	}
	return schedule.NewSession("", mo.None[string]())
}
