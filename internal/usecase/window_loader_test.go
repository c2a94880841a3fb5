package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"BarFeed/internal/domain/models"
	domrepo "BarFeed/internal/domain/repository"
)

func minuteBar(symbol string, min int, close float64, vol int64) models.Bar {
	return models.Bar{
		Symbol:           symbol,
		Timestamp:        at(min),
		Open:             close,
		High:             close + 1,
		Low:              close - 1,
		Close:            close,
		Volume:           vol,
		TransactionCount: 1,
		VWAP:             close,
	}
}

func timestamps(bars []models.Bar) []time.Time {
	out := make([]time.Time, len(bars))
	for i, b := range bars {
		out[i] = b.Timestamp
	}
	return out
}

func assertTimes(t *testing.T, got []models.Bar, want ...time.Time) {
	t.Helper()
	ts := timestamps(got)
	if len(ts) != len(want) {
		t.Fatalf("got %d bars %v, want %v", len(ts), ts, want)
	}
	for i := range want {
		if !ts[i].Equal(want[i]) {
			t.Fatalf("bar %d at %s, want %s (all: %v)", i, ts[i], want[i], ts)
		}
	}
}

func TestLoadWindowPast(t *testing.T) {
	store := newMemStore()
	for m := -3; m <= 0; m++ {
		store.addBars(minuteBar("AAPL", m, 100+float64(m), 10))
	}
	l := NewWindowLoader(store, nil, nil)

	bars, err := l.LoadWindow(context.Background(), WindowRequest{
		Symbol: "aapl", ReferenceTime: at(0), Direction: DirectionPast, Count: 2, Interval: domrepo.Interval1m,
	})
	if err != nil {
		t.Fatalf("LoadWindow: %v", err)
	}
	assertTimes(t, bars, at(-1), at(0))
}

func TestLoadWindowFutureIncludesReference(t *testing.T) {
	store := newMemStore()
	for m := -2; m <= 3; m++ {
		store.addBars(minuteBar("AAPL", m, 100, 10))
	}
	l := NewWindowLoader(store, nil, nil)

	bars, err := l.LoadWindow(context.Background(), WindowRequest{
		Symbol: "AAPL", ReferenceTime: at(0), Direction: DirectionFuture, Count: 3, Interval: domrepo.Interval1m,
	})
	if err != nil {
		t.Fatalf("LoadWindow: %v", err)
	}
	assertTimes(t, bars, at(0), at(1), at(2))
}

func TestLoadWindowCenteredQueriesEachSideWithFullCount(t *testing.T) {
	store := newMemStore()
	for m := -2; m <= 2; m++ {
		store.addBars(minuteBar("AAPL", m, 100, 10))
	}
	l := NewWindowLoader(store, nil, nil)

	bars, err := l.LoadWindow(context.Background(), WindowRequest{
		Symbol: "AAPL", ReferenceTime: at(0), Direction: DirectionCentered, Count: 2, Interval: domrepo.Interval1m,
	})
	if err != nil {
		t.Fatalf("LoadWindow: %v", err)
	}
	assertTimes(t, bars, at(-1), at(0), at(1), at(2))

	qs := store.recorded()
	if len(qs) != 2 {
		t.Fatalf("expected 2 queries, got %d", len(qs))
	}
	for i, q := range qs {
		if q.Limit != 2 {
			t.Fatalf("query %d limit %d, want full count 2", i, q.Limit)
		}
	}
	if qs[0].OrderDir != domrepo.Desc || qs[1].OrderDir != domrepo.Asc {
		t.Fatalf("unexpected ordering %v / %v", qs[0].OrderDir, qs[1].OrderDir)
	}
}

func TestLoadWindowCenteredUnevenSides(t *testing.T) {
	store := newMemStore()
	store.addBars(minuteBar("AAPL", 0, 100, 1))
	for m := 1; m <= 5; m++ {
		store.addBars(minuteBar("AAPL", m, 100, 1))
	}
	l := NewWindowLoader(store, nil, nil)

	bars, err := l.LoadWindow(context.Background(), WindowRequest{
		Symbol: "AAPL", ReferenceTime: at(0), Direction: DirectionCentered, Count: 3, Interval: domrepo.Interval1m,
	})
	if err != nil {
		t.Fatalf("LoadWindow: %v", err)
	}
	assertTimes(t, bars, at(0), at(1), at(2), at(3))
}

func TestLoadWindowFallbackWhenEmpty(t *testing.T) {
	store := newMemStore()
	// Stale symbol: nothing near the reference, history a week earlier.
	old := t0.Add(-7 * 24 * time.Hour)
	for i := 0; i < 5; i++ {
		b := minuteBar("IBM", 0, 50, 5)
		b.Timestamp = old.Add(time.Duration(i) * time.Minute)
		store.addBars(b)
	}
	l := NewWindowLoader(store, nil, nil)

	bars, err := l.LoadWindow(context.Background(), WindowRequest{
		Symbol: "IBM", ReferenceTime: old.Add(-time.Hour), Direction: DirectionPast, Count: 3, Interval: domrepo.Interval1m,
	})
	if err != nil {
		t.Fatalf("LoadWindow: %v", err)
	}
	assertTimes(t, bars, old.Add(2*time.Minute), old.Add(3*time.Minute), old.Add(4*time.Minute))

	qs := store.recorded()
	if len(qs) != 2 {
		t.Fatalf("expected primary and fallback queries, got %d", len(qs))
	}
	fb := qs[1]
	if fb.Start != nil || fb.End != nil || fb.OrderDir != domrepo.Desc || fb.Limit != 3 {
		t.Fatalf("unexpected fallback query %+v", fb)
	}
}

func TestLoadWindowExplicitBoundsSkipFallback(t *testing.T) {
	store := newMemStore()
	store.addBars(minuteBar("IBM", -500, 50, 5))
	l := NewWindowLoader(store, nil, nil)

	from := at(-10)
	bars, err := l.LoadWindow(context.Background(), WindowRequest{
		Symbol: "IBM", ReferenceTime: at(0), Direction: DirectionPast, Count: 3, Interval: domrepo.Interval1m, From: &from,
	})
	if err != nil {
		t.Fatalf("LoadWindow: %v", err)
	}
	if len(bars) != 0 {
		t.Fatalf("expected empty window, got %v", timestamps(bars))
	}
	if n := len(store.recorded()); n != 1 {
		t.Fatalf("expected a single query, got %d", n)
	}
}

func TestLoadWindowAggregatesAndDedupes(t *testing.T) {
	store := newMemStore()
	for m := -59; m <= 0; m++ {
		store.addBars(minuteBar("MSFT", m, 300, 10))
	}
	// Duplicate of the last minute.
	store.addBars(minuteBar("MSFT", 0, 301, 5))
	l := NewWindowLoader(store, nil, nil)

	bars, err := l.LoadWindow(context.Background(), WindowRequest{
		Symbol: "MSFT", ReferenceTime: at(0), Direction: DirectionPast, Count: 2, Interval: domrepo.Interval30m,
	})
	if err != nil {
		t.Fatalf("LoadWindow: %v", err)
	}
	if q := store.recorded()[0]; q.Limit != 60 {
		t.Fatalf("expected 60 raw rows requested, got %d", q.Limit)
	}
	// The limit keeps both rows at minute 0 and drops minute -59; dedupe
	// merges the pair, leaving 59 minutes: -58..-29 and -28..0.
	assertTimes(t, bars, at(-58), at(-28))
	if bars[0].Volume != 300 {
		t.Fatalf("first bucket volume %d, want 300", bars[0].Volume)
	}
	if bars[1].Volume != 295 || bars[1].Close != 300 {
		t.Fatalf("second bucket volume %d close %v, want 295 and 300", bars[1].Volume, bars[1].Close)
	}
}

func TestLoadWindowRawLimitCapped(t *testing.T) {
	store := newMemStore()
	store.addBars(minuteBar("MSFT", 0, 300, 10))
	l := NewWindowLoader(store, nil, nil, WithMaxRawRows(1000))

	if _, err := l.LoadWindow(context.Background(), WindowRequest{
		Symbol: "MSFT", ReferenceTime: at(0), Direction: DirectionPast, Count: 500, Interval: domrepo.Interval1d,
	}); err != nil {
		t.Fatalf("LoadWindow: %v", err)
	}
	if q := store.recorded()[0]; q.Limit != 1000 {
		t.Fatalf("expected capped limit 1000, got %d", q.Limit)
	}
}

func TestLoadWindowStoreErrorPropagates(t *testing.T) {
	store := newMemStore()
	store.barErr = errors.New("connection refused")
	l := NewWindowLoader(store, nil, nil)

	_, err := l.LoadWindow(context.Background(), WindowRequest{
		Symbol: "AAPL", ReferenceTime: at(0), Direction: DirectionPast, Count: 5, Interval: domrepo.Interval1m,
	})
	var se *models.StoreQueryError
	if !errors.As(err, &se) {
		t.Fatalf("expected StoreQueryError, got %v", err)
	}
	if se.Err.Error() != "connection refused" {
		t.Fatalf("underlying error lost: %v", se.Err)
	}
	if n := len(store.recorded()); n != 1 {
		t.Fatalf("store failure must not trigger fallback, got %d queries", n)
	}
}

func TestLoadWindowValidation(t *testing.T) {
	l := NewWindowLoader(newMemStore(), nil, nil)
	from, to := at(5), at(0)
	tests := []struct {
		name  string
		req   WindowRequest
		field string
	}{
		{"missing symbol", WindowRequest{Direction: DirectionPast, Count: 1, Interval: 1}, "symbol"},
		{"bad direction", WindowRequest{Symbol: "A", Direction: "sideways", Count: 1, Interval: 1}, "direction"},
		{"bad interval", WindowRequest{Symbol: "A", Direction: DirectionPast, Count: 1, Interval: 7}, "interval"},
		{"zero count", WindowRequest{Symbol: "A", Direction: DirectionPast, Count: 0, Interval: 1}, "limit"},
		{"inverted bounds", WindowRequest{Symbol: "A", Direction: DirectionPast, Count: 1, Interval: 1, From: &from, To: &to}, "from"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := l.LoadWindow(context.Background(), tt.req)
			var ve *models.ValidationError
			if !errors.As(err, &ve) || ve.Field != tt.field {
				t.Fatalf("expected validation error on %s, got %v", tt.field, err)
			}
		})
	}
}
