package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	applogger "BarFeed/pkg/logger"

	"github.com/labstack/echo/v4"
)

// Recover turns a handler panic into a 500 response and logs the stack.
func Recover(l *applogger.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) (err error) {
			defer func() {
				r := recover()
				if r == nil {
					return
				}
				if r == http.ErrAbortHandler {
					panic(r)
				}
				perr, ok := r.(error)
				if !ok {
					perr = fmt.Errorf("%v", r)
				}
				l.Error("http handler panic",
					applogger.String("route", routeOf(c)),
					applogger.Error(perr),
					applogger.String("stack", string(debug.Stack())),
				)
				if c.Response().Committed {
					return
				}
				err = c.JSON(http.StatusInternalServerError, map[string]interface{}{
					"status":  http.StatusInternalServerError,
					"message": "Internal Server Error",
				})
			}()
			return next(c)
		}
	}
}
