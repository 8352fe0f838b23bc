package httpapi

import (
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/hbeckert/covault/internal/platform/logger"
	"github.com/hbeckert/covault/internal/storage"
)

const (
	headerCallerID       = "X-Caller-Id"
	headerRequestID      = "X-Request-Id"
	headerIdempotencyKey = "Idempotency-Key"
	headerIdempotentHit  = "X-Idempotent-Replay"

	localCallerID = "caller_id"
)

// RequestID tags every request with a correlation id, honoring one supplied
// by the client.
func RequestID() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Get(headerRequestID)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(headerRequestID, id)
		return c.Next()
	}
}

// RequireCaller extracts the authenticated caller identity from the
// X-Caller-Id header. Authentication itself happens upstream; this service
// only consumes the identity.
func RequireCaller() fiber.Handler {
	return func(c *fiber.Ctx) error {
		caller := c.Get(headerCallerID)
		if caller == "" {
			return c.Status(http.StatusUnauthorized).JSON(fiber.Map{
				"error": "missing " + headerCallerID + " header",
			})
		}
		c.Locals(localCallerID, caller)
		return c.Next()
	}
}

// Idempotency replays a cached response when the client repeats a request
// with the same Idempotency-Key. Requests without the header pass through.
func Idempotency(store storage.IdempotencyStore, log *logger.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		key := c.Get(headerIdempotencyKey)
		if key == "" {
			return c.Next()
		}

		cached, err := store.GetResponse(c.Context(), key)
		if err == nil {
			log.Debug("idempotent replay", "key", key, "status", cached.Status)
			c.Set(headerIdempotentHit, "true")
			c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
			return c.Status(cached.Status).Send(cached.Body)
		}

		if err := c.Next(); err != nil {
			return err
		}

		// Only committed outcomes are worth replaying; a failed attempt may
		// succeed on retry and must not be pinned to the key.
		status := c.Response().StatusCode()
		if status < 200 || status >= 300 {
			return nil
		}
		body := make([]byte, len(c.Response().Body()))
		copy(body, c.Response().Body())
		if err := store.PutResponse(c.Context(), key, storage.IdempotentResponse{Status: status, Body: body}); err != nil {
			log.Error("cache idempotent response", "key", key, "error", err)
		}
		return nil
	}
}
