package api

import (
	"context"
	"net/http"
	"time"

	xhttp "BarFeed/pkg/http"

	"github.com/labstack/echo/v4"
)

type HealthChecker interface {
	Health(ctx context.Context) error
}

type HealthHandler struct {
	store HealthChecker
}

func NewHealthHandler(store HealthChecker) *HealthHandler {
	return &HealthHandler{store: store}
}

func (h *HealthHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/health", h.Health)
}

// Health reports 503 when the store does not answer within two seconds.
func (h *HealthHandler) Health(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
	defer cancel()
	if err := h.store.Health(ctx); err != nil {
		return xhttp.AppErrorResponse(c, xhttp.NewAppError("ERR_STORE_UNAVAILABLE", "", err.Error(), http.StatusServiceUnavailable))
	}
	return xhttp.SuccessResponse(c, map[string]string{"status": "ok"})
}
