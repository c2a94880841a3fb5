package middleware

import (
	"time"

	applogger "BarFeed/pkg/logger"

	"github.com/labstack/echo/v4"
)

// RequestLogging logs every request at debug level, 5xx responses as
// errors and requests slower than slow (when positive) as warnings.
func RequestLogging(l *applogger.Logger, slow time.Duration) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			if err := next(c); err != nil {
				c.Error(err)
			}
			elapsed := time.Since(start)

			res := c.Response()
			fields := []applogger.Field{
				applogger.String("method", c.Request().Method),
				applogger.String("route", routeOf(c)),
				applogger.String("remote", c.RealIP()),
				applogger.Int("status", res.Status),
				applogger.Duration("duration_ms", elapsed),
				applogger.Int64("bytes", res.Size),
			}
			switch {
			case res.Status >= 500:
				l.Error("http request failed", fields...)
			case slow > 0 && elapsed >= slow:
				l.Warn("http request slow", fields...)
			default:
				l.Debug("http request", fields...)
			}
			return nil
		}
	}
}

// routeOf prefers the registered route template to keep label and log
// cardinality bounded.
func routeOf(c echo.Context) string {
	if p := c.Path(); p != "" {
		return p
	}
	return "unmatched"
}
