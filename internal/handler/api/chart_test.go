package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"BarFeed/internal/domain/models"
	icache "BarFeed/internal/service/cache"
	"BarFeed/internal/service/ratelimit"
	"BarFeed/internal/usecase"

	"github.com/labstack/echo/v4"
)

type chartBody struct {
	Status int `json:"status"`
	Data   struct {
		Symbol        string       `json:"symbol"`
		Interval      int          `json:"interval"`
		Direction     string       `json:"direction"`
		ReferenceTime time.Time    `json:"reference_time"`
		Count         int          `json:"count"`
		ViewSize      *int         `json:"view_size"`
		Bars          []models.Bar `json:"bars"`
	} `json:"data"`
}

func newChartServer(w *fakeWindows, opts ...ChartOption) *echo.Echo {
	opts = append([]ChartOption{WithChartClock(func() time.Time { return refTime })}, opts...)
	e := echo.New()
	NewChartHandler(w, nil, nil, opts...).RegisterRoutes(e)
	return e
}

func get(e *echo.Echo, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestBarsDefaults(t *testing.T) {
	w := &fakeWindows{bars: []models.Bar{{Symbol: "AAPL", Timestamp: refTime, Close: 1}}}
	e := newChartServer(w, WithLimits(300, 1000))

	rec := get(e, "/api/bars?symbol=aapl")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
	}
	req := w.last()
	if req.Symbol != "AAPL" || req.Direction != usecase.DirectionPast || req.Interval != 1 || req.Count != 300 {
		t.Fatalf("request = %+v", req)
	}
	if !req.ReferenceTime.Equal(refTime) || req.From != nil || req.To != nil {
		t.Fatalf("request times = %+v", req)
	}

	var body chartBody
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Data.Symbol != "AAPL" || body.Data.Count != 1 || len(body.Data.Bars) != 1 || body.Data.ViewSize != nil {
		t.Fatalf("body = %s", rec.Body.String())
	}
}

func TestBarsClampsLimitAndEchoesViewSize(t *testing.T) {
	w := &fakeWindows{}
	e := newChartServer(w, WithLimits(100, 500))

	rec := get(e, "/api/bars?symbol=MSFT&limit=9000&view_based_loading=true&direction=centered&interval=60&start_time=2024-03-01T10:00:00Z")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
	}
	req := w.last()
	if req.Count != 500 || req.Direction != usecase.DirectionCentered || req.Interval != 60 {
		t.Fatalf("request = %+v", req)
	}
	if !req.ReferenceTime.Equal(time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)) {
		t.Fatalf("reference = %v", req.ReferenceTime)
	}

	var body chartBody
	_ = json.Unmarshal(rec.Body.Bytes(), &body)
	if body.Data.ViewSize == nil || *body.Data.ViewSize != 500 {
		t.Fatalf("view_size = %v", body.Data.ViewSize)
	}
	if body.Data.Bars == nil {
		t.Fatalf("bars must be an empty array, got null")
	}
}

func TestBarsRejectsBadInput(t *testing.T) {
	cases := []string{
		"/api/bars",
		"/api/bars?symbol=A&direction=sideways",
		"/api/bars?symbol=A&interval=7",
		"/api/bars?symbol=A&interval=0",
		"/api/bars?symbol=A&limit=0",
		"/api/bars?symbol=A&limit=-3",
		"/api/bars?symbol=A&view_size=0",
		"/api/bars?symbol=A&start_time=tomorrow",
		"/api/bars?symbol=A&from=nope",
		"/api/bars?symbol=A&limit=abc",
	}
	for _, target := range cases {
		w := &fakeWindows{}
		rec := get(newChartServer(w), target)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("%s: status = %d body=%s", target, rec.Code, rec.Body.String())
		}
		if w.calls != 0 {
			t.Fatalf("%s: loader called", target)
		}
	}
}

func TestBarsErrorMapping(t *testing.T) {
	cases := []struct {
		err  error
		code int
	}{
		{&models.StoreQueryError{Op: "query_bars", Err: errors.New("timeout")}, http.StatusBadGateway},
		{models.NewValidationError("from", "must not be after to"), http.StatusBadRequest},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		rec := get(newChartServer(&fakeWindows{err: tc.err}), "/api/bars?symbol=A")
		if rec.Code != tc.code {
			t.Fatalf("%v: status = %d", tc.err, rec.Code)
		}
	}
}

func TestBarsCachesExplicitWindows(t *testing.T) {
	w := &fakeWindows{bars: []models.Bar{{Symbol: "A", Timestamp: refTime, Close: 2}}}
	e := newChartServer(w, WithWindowCache(icache.NewTTLCache(), time.Minute))

	target := "/api/bars?symbol=A&from=2024-03-01T00:00:00Z&to=2024-03-02T00:00:00Z"
	first := get(e, target)
	second := get(e, target)
	if first.Header().Get("X-Cache") != "MISS" || second.Header().Get("X-Cache") != "HIT" {
		t.Fatalf("cache headers = %q, %q", first.Header().Get("X-Cache"), second.Header().Get("X-Cache"))
	}
	if w.calls != 1 {
		t.Fatalf("loader calls = %d", w.calls)
	}
	if first.Body.String() != second.Body.String() {
		t.Fatalf("cached body differs:\n%s\n%s", first.Body.String(), second.Body.String())
	}

	get(e, "/api/bars?symbol=A")
	get(e, "/api/bars?symbol=A")
	if w.calls != 3 {
		t.Fatalf("open-ended windows must not be cached, calls = %d", w.calls)
	}
}

func TestBarsRateLimited(t *testing.T) {
	w := &fakeWindows{}
	e := newChartServer(w, WithRateLimiter(ratelimit.New(1, 1)))
	if rec := get(e, "/api/bars?symbol=A"); rec.Code != http.StatusOK {
		t.Fatalf("first status = %d", rec.Code)
	}
	if rec := get(e, "/api/bars?symbol=A"); rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second status = %d", rec.Code)
	}
}

func TestHealth(t *testing.T) {
	e := echo.New()
	NewHealthHandler(emptyStore{}).RegisterRoutes(e)
	if rec := get(e, "/health"); rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	e = echo.New()
	NewHealthHandler(emptyStore{healthErr: errors.New("down")}).RegisterRoutes(e)
	if rec := get(e, "/health"); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d", rec.Code)
	}
}
