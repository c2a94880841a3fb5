package api

import (
	"context"
	"sync"
	"time"

	"BarFeed/internal/domain/models"
	domrepo "BarFeed/internal/domain/repository"
	"BarFeed/internal/usecase"
)

type fakeWindows struct {
	mu    sync.Mutex
	reqs  []usecase.WindowRequest
	bars  []models.Bar
	err   error
	calls int
}

func (f *fakeWindows) LoadWindow(_ context.Context, req usecase.WindowRequest) ([]models.Bar, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.reqs = append(f.reqs, req)
	return f.bars, f.err
}

func (f *fakeWindows) last() usecase.WindowRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reqs[len(f.reqs)-1]
}

// emptyStore answers every query with no rows.
type emptyStore struct {
	healthErr error
}

func (emptyStore) QueryBars(context.Context, string, domrepo.RangeQuery) ([]models.Bar, error) {
	return nil, nil
}

func (emptyStore) QueryTrades(context.Context, models.AssetClass, models.TickSelector, domrepo.RangeQuery) ([]models.Trade, error) {
	return nil, nil
}

func (emptyStore) QueryQuotes(context.Context, models.TickSelector, domrepo.RangeQuery) ([]models.Quote, error) {
	return nil, nil
}

func (s emptyStore) Health(context.Context) error { return s.healthErr }
func (emptyStore) Close() error                   { return nil }

var refTime = time.Date(2024, 3, 4, 15, 0, 0, 0, time.UTC)
