package logging

import (
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
)

// RequestLogger attaches a request-scoped logger to the fiber user context
// and logs one line per completed request.
func RequestLogger(base *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		l := base.With(
			"method", c.Method(),
			"path", c.Path(),
			"remote_ip", c.IP(),
			"user_agent", c.Get(fiber.HeaderUserAgent),
		)
		if rid := c.Get(fiber.HeaderXRequestID); rid != "" {
			l = l.With("request_id", rid)
			c.Set(fiber.HeaderXRequestID, rid)
		}
		c.SetUserContext(IntoContext(c.UserContext(), l))

		start := time.Now()
		err := c.Next()
		if err != nil {
			if herr := c.App().ErrorHandler(c, err); herr != nil {
				_ = c.SendStatus(fiber.StatusInternalServerError)
			}
		}
		dur := time.Since(start)
		status := c.Response().StatusCode()

		switch {
		case err != nil || status >= 500:
			l.Error("request completed", "status", status, "duration_ms", dur.Milliseconds(), "error", errString(err))
		case status >= 400:
			l.Warn("request completed", "status", status, "duration_ms", dur.Milliseconds())
		default:
			l.Info("request completed", "status", status, "duration_ms", dur.Milliseconds(), "bytes", len(c.Response().Body()))
		}
		return nil
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
