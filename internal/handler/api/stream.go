package api

import (
	"context"
	"net/http"

	"BarFeed/internal/domain/models"
	"BarFeed/internal/usecase"
	xhttp "BarFeed/pkg/http"
	applogger "BarFeed/pkg/logger"

	"github.com/labstack/echo/v4"
)

// StreamControl is the engine surface the stream routes drive.
type StreamControl interface {
	Subscribe(sub models.Subscription) (models.SubscriptionKey, error)
	Unsubscribe(sub models.Subscription) bool
	Start() bool
	Stop() bool
	Tick(ctx context.Context)
	Status() usecase.StreamStatus
	Registry() *usecase.SubscriptionRegistry
}

type StreamHandler struct {
	engine StreamControl
	hub    *Hub
	log    *applogger.Logger
}

// NewStreamHandler serves subscription management and, when hub is not
// nil, the WebSocket endpoint.
func NewStreamHandler(engine StreamControl, hub *Hub, log *applogger.Logger) *StreamHandler {
	if log == nil {
		log = applogger.Nop()
	}
	return &StreamHandler{engine: engine, hub: hub, log: log}
}

func (h *StreamHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api/stream")
	g.GET("/subscriptions", h.List)
	g.POST("/subscriptions", h.Subscribe)
	g.DELETE("/subscriptions", h.Unsubscribe)
	g.GET("/status", h.Status)
	g.POST("/start", h.Start)
	g.POST("/stop", h.Stop)
	g.POST("/tick", h.Tick)
	if h.hub != nil {
		g.GET("/ws", h.hub.Serve)
	}
}

type subscriptionView struct {
	Key          string              `json:"key"`
	Subscription models.Subscription `json:"subscription"`
}

func (h *StreamHandler) List(c echo.Context) error {
	entries := h.engine.Registry().Entries()
	rows := make([]subscriptionView, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, subscriptionView{Key: e.Key.String(), Subscription: e.Subscription})
	}
	return xhttp.ListResponse(c, rows, int64(len(rows)))
}

func (h *StreamHandler) Subscribe(c echo.Context) error {
	req := &models.SubscriptionRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	sub := req.Subscription()
	key, err := h.engine.Subscribe(sub)
	if err != nil {
		return errorResponse(c, err)
	}
	stored, _ := h.engine.Registry().Get(key)
	return xhttp.CreatedResponse(c, subscriptionView{Key: key.String(), Subscription: stored})
}

func (h *StreamHandler) Unsubscribe(c echo.Context) error {
	req := &models.SubscriptionRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	sub := req.Subscription()
	if !h.engine.Unsubscribe(sub) {
		return xhttp.AppErrorResponse(c, xhttp.NotFoundError("subscription not found").
			WithParam("key", models.KeyOf(sub).String()))
	}
	return xhttp.SuccessResponse(c, map[string]string{"key": models.KeyOf(sub).String()})
}

func (h *StreamHandler) Status(c echo.Context) error {
	return xhttp.SuccessResponse(c, h.engine.Status())
}

func (h *StreamHandler) Start(c echo.Context) error {
	started := h.engine.Start()
	return xhttp.DataResponse(c, http.StatusOK, map[string]bool{"changed": started, "streaming": true})
}

func (h *StreamHandler) Stop(c echo.Context) error {
	stopped := h.engine.Stop()
	return xhttp.DataResponse(c, http.StatusOK, map[string]bool{"changed": stopped, "streaming": false})
}

// Tick polls every subscription once, whether or not the loop is running,
// and returns the status afterwards.
func (h *StreamHandler) Tick(c echo.Context) error {
	h.engine.Tick(c.Request().Context())
	return xhttp.SuccessResponse(c, h.engine.Status())
}
