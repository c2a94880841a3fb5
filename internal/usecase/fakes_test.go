package usecase

import (
	"context"
	"sort"
	"sync"
	"time"

	"BarFeed/internal/domain/models"
	domrepo "BarFeed/internal/domain/repository"
)

// memStore is an in-memory MarketStore honouring RangeQuery semantics.
type memStore struct {
	mu      sync.Mutex
	bars    map[string][]models.Bar
	trades  []models.Trade
	quotes  []models.Quote
	queries []domrepo.RangeQuery
	barErr  error
	failFor map[string]error // ticker -> error for tick queries
	panicOn string
}

func newMemStore() *memStore {
	return &memStore{bars: map[string][]models.Bar{}, failFor: map[string]error{}}
}

func (s *memStore) addBars(bars ...models.Bar) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, b := range bars {
		s.bars[b.Symbol] = append(s.bars[b.Symbol], b)
	}
}

func (s *memStore) addTrades(trades ...models.Trade) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.trades = append(s.trades, trades...)
}

func (s *memStore) addQuotes(quotes ...models.Quote) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.quotes = append(s.quotes, quotes...)
}

func (s *memStore) recorded() []domrepo.RangeQuery {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domrepo.RangeQuery, len(s.queries))
	copy(out, s.queries)
	return out
}

func selectRange[T models.Record](rows []T, q domrepo.RangeQuery) []T {
	var out []T
	for _, r := range rows {
		ts := r.EventTime()
		if q.Start != nil {
			if q.StartExclusive && !ts.After(*q.Start) {
				continue
			}
			if !q.StartExclusive && ts.Before(*q.Start) {
				continue
			}
		}
		if q.End != nil && ts.After(*q.End) {
			continue
		}
		out = append(out, r)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if q.OrderDir == domrepo.Desc {
			return out[i].EventTime().After(out[j].EventTime())
		}
		return out[i].EventTime().Before(out[j].EventTime())
	})
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out
}

func (s *memStore) QueryBars(_ context.Context, symbol string, q domrepo.RangeQuery) ([]models.Bar, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queries = append(s.queries, q)
	if s.barErr != nil {
		return nil, s.barErr
	}
	if s.panicOn == symbol {
		panic("store exploded")
	}
	return selectRange(s.bars[symbol], q), nil
}

func (s *memStore) QueryTrades(_ context.Context, asset models.AssetClass, sel models.TickSelector, q domrepo.RangeQuery) ([]models.Trade, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queries = append(s.queries, q)
	if err := s.failFor[sel.Ticker+sel.UnderlyingTicker]; err != nil {
		return nil, err
	}
	var rows []models.Trade
	for _, t := range s.trades {
		isOption := t.UnderlyingTicker != ""
		if isOption != (asset == models.AssetOption) {
			continue
		}
		if matches(sel, t.Ticker, t.UnderlyingTicker) {
			rows = append(rows, t)
		}
	}
	return selectRange(rows, q), nil
}

func (s *memStore) QueryQuotes(_ context.Context, sel models.TickSelector, q domrepo.RangeQuery) ([]models.Quote, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queries = append(s.queries, q)
	var rows []models.Quote
	for _, r := range s.quotes {
		if matches(sel, r.Ticker, r.UnderlyingTicker) {
			rows = append(rows, r)
		}
	}
	return selectRange(rows, q), nil
}

func matches(sel models.TickSelector, ticker, underlying string) bool {
	if sel.Ticker != "" && sel.Ticker != ticker {
		return false
	}
	if sel.UnderlyingTicker != "" && sel.UnderlyingTicker != underlying {
		return false
	}
	return true
}

func (s *memStore) Health(context.Context) error { return nil }
func (s *memStore) Close() error                 { return nil }

// eventLog collects events delivered to a listener.
type eventLog struct {
	mu     sync.Mutex
	events []models.StreamEvent
}

func (l *eventLog) listen(ev models.StreamEvent) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev)
}

func (l *eventLog) ofType(t models.EventType) []models.StreamEvent {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []models.StreamEvent
	for _, ev := range l.events {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

func (l *eventLog) reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = nil
}

var t0 = time.Date(2024, 6, 3, 15, 0, 0, 0, time.UTC)

func at(min int) time.Time { return t0.Add(time.Duration(min) * time.Minute) }

func ptr[T any](v T) *T { return &v }
