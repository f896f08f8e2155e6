package server

import (
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

const (
	// RequestIDHeader propagates request IDs across hops.
	RequestIDHeader = "X-Request-ID"
	// UserIDHeader carries the caller identity. Upstream auth is expected to
	// set it; handlers only parse and scope by it.
	UserIDHeader = "X-User-ID"

	requestIDLocalKey = "request_id"
)

// RequestID ensures every request has an ID: incoming X-Request-ID is kept,
// a missing one gets a fresh UUID. The ID lands in context locals and on the
// response header.
func RequestID() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Get(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Locals(requestIDLocalKey, id)
		c.Set(RequestIDHeader, id)
		return c.Next()
	}
}

// RequestLogger logs one line per request after the handler ran, so the
// final status is captured.
func RequestLogger(logger *slog.Logger) fiber.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		rid, _ := c.Locals(requestIDLocalKey).(string)
		logger.Info("http.request",
			"request_id", rid,
			"method", c.Method(),
			"path", c.Path(),
			"status", c.Response().StatusCode(),
			"latency_ms", float64(time.Since(start).Microseconds())/1000.0,
		)
		return err
	}
}

func requestIDFromCtx(c *fiber.Ctx) string {
	if v, ok := c.Locals(requestIDLocalKey).(string); ok {
		return v
	}
	return ""
}

// userIDFromHeader parses the caller identity header.
func userIDFromHeader(c *fiber.Ctx) (uuid.UUID, error) {
	return uuid.Parse(c.Get(UserIDHeader))
}
