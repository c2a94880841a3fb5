package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"BarFeed/internal/usecase"

	"github.com/labstack/echo/v4"
)

func newStreamServer() (*echo.Echo, *usecase.StreamEngine) {
	engine := usecase.NewStreamEngine(emptyStore{}, nil, nil, nil)
	e := echo.New()
	NewStreamHandler(engine, nil, nil).RegisterRoutes(e)
	return e, engine
}

func send(e *echo.Echo, method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestSubscriptionLifecycle(t *testing.T) {
	e, engine := newStreamServer()

	rec := send(e, http.MethodPost, "/api/stream/subscriptions", `{"type":"stock_trades","symbol":"aapl","filters":{"min_size":100}}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("subscribe status = %d body=%s", rec.Code, rec.Body.String())
	}
	if engine.Registry().Len() != 1 {
		t.Fatalf("registry len = %d", engine.Registry().Len())
	}

	rec = send(e, http.MethodGet, "/api/stream/subscriptions", "")
	var list struct {
		Data struct {
			Rows []struct {
				Key string `json:"key"`
			} `json:"rows"`
			Total int `json:"total"`
		} `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if list.Data.Total != 1 || list.Data.Rows[0].Key != "stock_trades:AAPL::" {
		t.Fatalf("list = %s", rec.Body.String())
	}

	rec = send(e, http.MethodDelete, "/api/stream/subscriptions", `{"type":"stock_trades","symbol":"AAPL"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("unsubscribe status = %d body=%s", rec.Code, rec.Body.String())
	}
	rec = send(e, http.MethodDelete, "/api/stream/subscriptions", `{"type":"stock_trades","symbol":"AAPL"}`)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("second unsubscribe status = %d", rec.Code)
	}
}

func TestSubscribeRejectsInvalid(t *testing.T) {
	e, engine := newStreamServer()
	for _, body := range []string{
		`{"type":"bogus","symbol":"A"}`,
		`{"type":"stock_trades"}`,
		`{"type":"option_quotes","symbol":"A"}`,
		`{"type":"stock_trades","symbol":"A","filters":{"min_price":5,"max_price":1}}`,
	} {
		rec := send(e, http.MethodPost, "/api/stream/subscriptions", body)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("%s: status = %d body=%s", body, rec.Code, rec.Body.String())
		}
	}
	if engine.Registry().Len() != 0 {
		t.Fatalf("invalid subscriptions registered")
	}
}

func TestStartStopStatus(t *testing.T) {
	e, engine := newStreamServer()
	defer engine.Stop()

	rec := send(e, http.MethodPost, "/api/stream/start", "")
	if rec.Code != http.StatusOK || !engine.IsStreaming() {
		t.Fatalf("start status = %d", rec.Code)
	}
	var body struct {
		Data map[string]bool `json:"data"`
	}
	_ = json.Unmarshal(rec.Body.Bytes(), &body)
	if !body.Data["changed"] {
		t.Fatalf("first start should change state: %s", rec.Body.String())
	}
	rec = send(e, http.MethodPost, "/api/stream/start", "")
	_ = json.Unmarshal(rec.Body.Bytes(), &body)
	if body.Data["changed"] {
		t.Fatalf("second start should not change state")
	}

	rec = send(e, http.MethodGet, "/api/stream/status", "")
	if !strings.Contains(rec.Body.String(), `"streaming":true`) {
		t.Fatalf("status = %s", rec.Body.String())
	}

	send(e, http.MethodPost, "/api/stream/stop", "")
	if engine.IsStreaming() {
		t.Fatalf("engine still streaming")
	}
}

func TestTickPollsOnDemand(t *testing.T) {
	e, engine := newStreamServer()
	send(e, http.MethodPost, "/api/stream/subscriptions", `{"type":"stock_aggregates","symbol":"AAPL"}`)

	rec := send(e, http.MethodPost, "/api/stream/tick", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("tick status = %d body=%s", rec.Code, rec.Body.String())
	}
	var body struct {
		Data usecase.StreamStatus `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Data.Ticks != 1 || body.Data.Streaming || body.Data.Subscriptions != 1 {
		t.Fatalf("unexpected status %+v", body.Data)
	}
	if engine.Status().Ticks != 1 {
		t.Fatalf("engine ticks = %d", engine.Status().Ticks)
	}
}
