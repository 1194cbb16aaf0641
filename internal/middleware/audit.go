package middleware

import (
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v3"
)

const sessionKey = "session_id"

// SetSessionID records the session a request worked on for the access log.
func SetSessionID(c fiber.Ctx, sessionID string) {
	c.Locals(sessionKey, sessionID)
}

// GetSessionID returns the session recorded by SetSessionID, or "".
func GetSessionID(c fiber.Ctx) string {
	sid, _ := c.Locals(sessionKey).(string)
	return sid
}

// AccessLog emits one structured record per API call.
func AccessLog() fiber.Handler {
	return func(c fiber.Ctx) error {
		start := time.Now()

		// Capture request data BEFORE handler execution (Fiber reuses context objects)
		method := c.Method()
		path := c.Path()
		ip := c.IP()

		err := c.Next()

		attrs := []any{
			"method", method,
			"path", path,
			"status", c.Response().StatusCode(),
			"duration_ms", time.Since(start).Milliseconds(),
			"ip", ip,
		}
		if sid := GetSessionID(c); sid != "" {
			attrs = append(attrs, "session_id", sid)
		}
		if err != nil {
			attrs = append(attrs, "error", err)
		}
		slog.Info("api request", attrs...)

		return err
	}
}
