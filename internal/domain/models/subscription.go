package models

import (
	"fmt"
	"strings"
)

// SubscriptionType names the feed a subscription follows.
type SubscriptionType string

const (
	SubStockTrades     SubscriptionType = "stock_trades"
	SubOptionTrades    SubscriptionType = "option_trades"
	SubOptionQuotes    SubscriptionType = "option_quotes"
	SubStockAggregates SubscriptionType = "stock_aggregates"
)

// IsValid reports whether t is a supported feed.
func (t SubscriptionType) IsValid() bool {
	switch t {
	case SubStockTrades, SubOptionTrades, SubOptionQuotes, SubStockAggregates:
		return true
	default:
		return false
	}
}

// EventType returns the data event type emitted for rows of this feed.
func (t SubscriptionType) EventType() EventType {
	switch t {
	case SubStockTrades:
		return EventStockTrade
	case SubOptionTrades:
		return EventOptionTrade
	case SubOptionQuotes:
		return EventOptionQuote
	default:
		return EventStockAggregate
	}
}

// Filters bound the rows a subscription receives. A nil bound means no constraint.
type Filters struct {
	MinPrice *float64 `json:"min_price,omitempty"`
	MaxPrice *float64 `json:"max_price,omitempty"`
	MinSize  *float64 `json:"min_size,omitempty"`
	MaxSize  *float64 `json:"max_size,omitempty"`
}

// Match reports whether r passes every configured bound.
func (f *Filters) Match(r Record) bool {
	if f == nil {
		return true
	}
	p, s := r.FilterPrice(), r.FilterSize()
	if f.MinPrice != nil && p < *f.MinPrice {
		return false
	}
	if f.MaxPrice != nil && p > *f.MaxPrice {
		return false
	}
	if f.MinSize != nil && s < *f.MinSize {
		return false
	}
	if f.MaxSize != nil && s > *f.MaxSize {
		return false
	}
	return true
}

// Subscription describes one live feed.
type Subscription struct {
	Type             SubscriptionType `json:"type"`
	Symbol           string           `json:"symbol,omitempty"`
	Ticker           string           `json:"ticker,omitempty"`
	UnderlyingTicker string           `json:"underlying_ticker,omitempty"`
	Filters          *Filters         `json:"filters,omitempty"`
}

// Normalize trims and upper-cases the identifying fields.
func (s Subscription) Normalize() Subscription {
	s.Type = SubscriptionType(strings.ToLower(strings.TrimSpace(string(s.Type))))
	s.Symbol = normSymbol(s.Symbol)
	s.Ticker = normSymbol(s.Ticker)
	s.UnderlyingTicker = normSymbol(s.UnderlyingTicker)
	return s
}

// Validate checks that the subscription names a feed it can be polled on.
func (s Subscription) Validate() error {
	if !s.Type.IsValid() {
		return fmt.Errorf("%w: unknown type %q", ErrInvalidSubscription, s.Type)
	}
	switch s.Type {
	case SubStockTrades, SubStockAggregates:
		if s.Symbol == "" {
			return fmt.Errorf("%w: %s requires symbol", ErrInvalidSubscription, s.Type)
		}
	case SubOptionTrades, SubOptionQuotes:
		if s.Ticker == "" && s.UnderlyingTicker == "" {
			return fmt.Errorf("%w: %s requires ticker or underlying_ticker", ErrInvalidSubscription, s.Type)
		}
	}
	if f := s.Filters; f != nil {
		if f.MinPrice != nil && f.MaxPrice != nil && *f.MinPrice > *f.MaxPrice {
			return fmt.Errorf("%w: min_price > max_price", ErrInvalidSubscription)
		}
		if f.MinSize != nil && f.MaxSize != nil && *f.MinSize > *f.MaxSize {
			return fmt.Errorf("%w: min_size > max_size", ErrInvalidSubscription)
		}
	}
	return nil
}

// SubscriptionKey is the identity of a subscription. Absent fields are empty
// strings, so two descriptions of the same feed compare equal.
type SubscriptionKey struct {
	Type             SubscriptionType
	Symbol           string
	UnderlyingTicker string
	Ticker           string
}

// KeyOf derives the registry key of s.
func KeyOf(s Subscription) SubscriptionKey {
	n := s.Normalize()
	return SubscriptionKey{
		Type:             n.Type,
		Symbol:           n.Symbol,
		UnderlyingTicker: n.UnderlyingTicker,
		Ticker:           n.Ticker,
	}
}

// String renders the key for logs and metrics labels.
func (k SubscriptionKey) String() string {
	return fmt.Sprintf("%s:%s:%s:%s", k.Type, k.Symbol, k.UnderlyingTicker, k.Ticker)
}

func normSymbol(s string) string { return strings.ToUpper(strings.TrimSpace(s)) }
