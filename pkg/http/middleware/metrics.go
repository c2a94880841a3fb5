package middleware

import (
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
)

// HTTPRecorder receives per-request measurements.
type HTTPRecorder interface {
	HTTPStarted(route, method string)
	HTTPFinished(route, method, status, class string, seconds float64, bytes int64)
}

// Metrics records in-flight count, latency and response size per route.
func Metrics(rec HTTPRecorder) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			route := routeOf(c)
			method := c.Request().Method

			rec.HTTPStarted(route, method)
			start := time.Now()

			if err := next(c); err != nil {
				c.Error(err)
			}

			res := c.Response()
			rec.HTTPFinished(route, method, strconv.Itoa(res.Status), statusClass(res.Status),
				time.Since(start).Seconds(), res.Size)
			return nil
		}
	}
}

func statusClass(code int) string {
	switch {
	case code >= 100 && code < 200:
		return "1xx"
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	default:
		return "5xx"
	}
}
