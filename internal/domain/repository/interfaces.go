package repository

import (
	"context"
	"time"

	"BarFeed/internal/domain/models"
)

// SortDir orders rows by timestamp.
type SortDir string

const (
	Asc  SortDir = "ASC"
	Desc SortDir = "DESC"
)

// RangeQuery bounds a timestamp-ordered read. Nil bounds are open.
type RangeQuery struct {
	Start          *time.Time
	StartExclusive bool
	End            *time.Time
	Limit          int
	OrderDir       SortDir
}

// MarketStore provides read-only access to stored bars and ticks.
type MarketStore interface {
	QueryBars(ctx context.Context, symbol string, q RangeQuery) ([]models.Bar, error)
	QueryTrades(ctx context.Context, asset models.AssetClass, sel models.TickSelector, q RangeQuery) ([]models.Trade, error)
	QueryQuotes(ctx context.Context, sel models.TickSelector, q RangeQuery) ([]models.Quote, error)
	Health(ctx context.Context) error
	Close() error
}

type Metrics interface {
	RecordPoll(subType string)
	RecordPollError(subType string)
	RecordEvents(eventType string, n int)
	RecordWatermarkLag(subType string, seconds float64)
	SetActiveSubscriptions(n int)
	RecordError(kind string)
	RecordLatency(op string, seconds float64)
}

// NopMetrics discards everything.
type NopMetrics struct{}

func (NopMetrics) RecordPoll(string)                  {}
func (NopMetrics) RecordPollError(string)             {}
func (NopMetrics) RecordEvents(string, int)           {}
func (NopMetrics) RecordWatermarkLag(string, float64) {}
func (NopMetrics) SetActiveSubscriptions(int)         {}
func (NopMetrics) RecordError(string)                 {}
func (NopMetrics) RecordLatency(string, float64)      {}
