package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"BarFeed/internal/domain/models"
	domrepo "BarFeed/internal/domain/repository"
	icache "BarFeed/internal/service/cache"
	"BarFeed/internal/service/ratelimit"
	"BarFeed/internal/usecase"
	xhttp "BarFeed/pkg/http"
	applogger "BarFeed/pkg/logger"
	"BarFeed/pkg/util"

	"github.com/labstack/echo/v4"
)

// WindowSource loads chart windows.
type WindowSource interface {
	LoadWindow(ctx context.Context, req usecase.WindowRequest) ([]models.Bar, error)
}

// ChartResponse is the data of GET /api/bars.
type ChartResponse struct {
	Symbol        string       `json:"symbol"`
	Interval      int          `json:"interval"`
	Direction     string       `json:"direction"`
	ReferenceTime time.Time    `json:"reference_time"`
	Count         int          `json:"count"`
	ViewSize      *int         `json:"view_size,omitempty"`
	Bars          []models.Bar `json:"bars"`
}

type ChartOption func(*ChartHandler)

// WithWindowCache caches responses of windows with explicit from/to bounds.
// Open-ended windows move with new data and are never cached.
func WithWindowCache(c icache.BytesCache, ttl time.Duration) ChartOption {
	return func(h *ChartHandler) {
		h.cache = c
		h.ttl = ttl
	}
}

func WithRateLimiter(l *ratelimit.Limiter) ChartOption {
	return func(h *ChartHandler) { h.rl = l }
}

// WithLimits sets the default and maximum candle count.
func WithLimits(def, max int) ChartOption {
	return func(h *ChartHandler) {
		if def > 0 {
			h.defLimit = def
		}
		if max >= h.defLimit {
			h.maxLimit = max
		}
	}
}

func WithChartClock(now func() time.Time) ChartOption {
	return func(h *ChartHandler) { h.now = now }
}

// ChartHandler serves directional candle windows.
type ChartHandler struct {
	windows  WindowSource
	log      *applogger.Logger
	metrics  domrepo.Metrics
	cache    icache.BytesCache
	ttl      time.Duration
	rl       *ratelimit.Limiter
	defLimit int
	maxLimit int
	now      func() time.Time
}

func NewChartHandler(windows WindowSource, metrics domrepo.Metrics, log *applogger.Logger, opts ...ChartOption) *ChartHandler {
	if metrics == nil {
		metrics = domrepo.NopMetrics{}
	}
	if log == nil {
		log = applogger.Nop()
	}
	h := &ChartHandler{
		windows:  windows,
		log:      log,
		metrics:  metrics,
		cache:    icache.NopCache{},
		defLimit: 500,
		maxLimit: 5000,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *ChartHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/api/bars", h.Bars)
}

func (h *ChartHandler) Bars(c echo.Context) error {
	if !h.rl.Allow(c.RealIP()) {
		h.metrics.RecordError("rate_limited")
		return xhttp.AppErrorResponse(c, xhttp.TooManyRequestsError("too many chart requests"))
	}

	req := &models.ChartRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	q := c.QueryParams()
	for _, name := range []string{"limit", "view_size", "interval"} {
		if explicitNonPositive(q, name) {
			return xhttp.AppErrorResponse(c, xhttp.BadRequestErrorf(name, "%s must be positive", name))
		}
	}

	wr, viewSize, err := h.windowRequest(req)
	if err != nil {
		return errorResponse(c, err)
	}

	var key string
	if wr.From != nil || wr.To != nil {
		key = windowKey(wr)
		if resp, ok := h.cached(c.Request().Context(), key); ok {
			c.Response().Header().Set("X-Cache", "HIT")
			return xhttp.SuccessResponse(c, h.present(resp, req.ViewBasedLoading, viewSize))
		}
		c.Response().Header().Set("X-Cache", "MISS")
	}

	bars, err := h.windows.LoadWindow(c.Request().Context(), wr)
	if err != nil {
		h.log.Warn("chart window failed",
			applogger.String("symbol", wr.Symbol),
			applogger.String("direction", string(wr.Direction)),
			applogger.Error(err),
		)
		return errorResponse(c, err)
	}

	resp := ChartResponse{
		Symbol:        wr.Symbol,
		Interval:      int(wr.Interval),
		Direction:     string(wr.Direction),
		ReferenceTime: wr.ReferenceTime,
		Count:         len(bars),
		Bars:          bars,
	}
	if key != "" {
		h.store(c.Request().Context(), key, resp)
	}
	return xhttp.SuccessResponse(c, h.present(resp, req.ViewBasedLoading, viewSize))
}

func (h *ChartHandler) windowRequest(req *models.ChartRequest) (usecase.WindowRequest, int, error) {
	limit := req.Limit
	if limit == 0 {
		limit = h.defLimit
	}
	if limit > h.maxLimit {
		limit = h.maxLimit
	}
	viewSize := req.ViewSize
	if viewSize == 0 {
		viewSize = limit
	}

	ref := h.now().UTC()
	if req.StartTime != "" {
		t, ok := util.ParseTime(req.StartTime)
		if !ok {
			return usecase.WindowRequest{}, 0, models.NewValidationError("start_time", "unparsable time %q", req.StartTime)
		}
		ref = t
	}
	from, err := optionalTime("from", req.From)
	if err != nil {
		return usecase.WindowRequest{}, 0, err
	}
	to, err := optionalTime("to", req.To)
	if err != nil {
		return usecase.WindowRequest{}, 0, err
	}

	return usecase.WindowRequest{
		Symbol:        strings.ToUpper(strings.TrimSpace(req.Symbol)),
		ReferenceTime: ref,
		Direction:     usecase.Direction(req.Direction),
		Count:         limit,
		Interval:      domrepo.AggregationInterval(req.Interval),
		From:          from,
		To:            to,
	}, viewSize, nil
}

func (h *ChartHandler) present(resp ChartResponse, viewBased bool, viewSize int) ChartResponse {
	if viewBased {
		resp.ViewSize = &viewSize
	} else {
		resp.ViewSize = nil
	}
	if resp.Bars == nil {
		resp.Bars = []models.Bar{}
	}
	return resp
}

func (h *ChartHandler) cached(ctx context.Context, key string) (ChartResponse, bool) {
	b, ok, err := h.cache.GetBytes(ctx, key)
	if err != nil {
		h.log.Warn("chart cache get failed", applogger.String("key", key), applogger.Error(err))
		return ChartResponse{}, false
	}
	if !ok {
		return ChartResponse{}, false
	}
	var resp ChartResponse
	if err := json.Unmarshal(b, &resp); err != nil {
		h.log.Warn("chart cache entry corrupt", applogger.String("key", key), applogger.Error(err))
		return ChartResponse{}, false
	}
	return resp, true
}

func (h *ChartHandler) store(ctx context.Context, key string, resp ChartResponse) {
	b, err := json.Marshal(resp)
	if err != nil {
		return
	}
	if err := h.cache.SetBytes(ctx, key, b, h.ttl); err != nil {
		h.log.Warn("chart cache set failed", applogger.String("key", key), applogger.Error(err))
	}
}

func windowKey(r usecase.WindowRequest) string {
	return fmt.Sprintf("bars:%s:%s:%d:%d:%d:%s:%s",
		r.Symbol, r.Direction, r.Interval, r.Count, r.ReferenceTime.UnixMilli(), millis(r.From), millis(r.To))
}

func millis(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return strconv.FormatInt(t.UnixMilli(), 10)
}

func optionalTime(field, s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, ok := util.ParseTime(s)
	if !ok {
		return nil, models.NewValidationError(field, "unparsable time %q", s)
	}
	return &t, nil
}

// explicitNonPositive reports a numeric parameter the client sent as zero
// or below, which defaults would otherwise paper over.
func explicitNonPositive(q url.Values, name string) bool {
	if !q.Has(name) {
		return false
	}
	n, err := strconv.Atoi(q.Get(name))
	return err == nil && n <= 0
}
