package models

import "time"

// EventType is the "type" field of a streamed event.
type EventType string

const (
	EventStockTrade     EventType = "stock_trade"
	EventOptionTrade    EventType = "option_trade"
	EventOptionQuote    EventType = "option_quote"
	EventStockAggregate EventType = "stock_aggregate"

	EventConnected               EventType = "connected"
	EventDisconnected            EventType = "disconnected"
	EventError                   EventType = "error"
	EventSubscriptionConfirmed   EventType = "subscription_confirmed"
	EventUnsubscriptionConfirmed EventType = "unsubscription_confirmed"
)

// IsData reports whether the event carries a market data row.
func (t EventType) IsData() bool {
	switch t {
	case EventStockTrade, EventOptionTrade, EventOptionQuote, EventStockAggregate:
		return true
	default:
		return false
	}
}

// StreamEvent is what listeners receive.
type StreamEvent struct {
	Type             EventType        `json:"type"`
	Data             any              `json:"data,omitempty"`
	Timestamp        string           `json:"timestamp"`
	Symbol           string           `json:"symbol,omitempty"`
	UnderlyingTicker string           `json:"underlying_ticker,omitempty"`
	Key              *SubscriptionKey `json:"-"`
}

// EventTimestamp formats now the way every event carries it.
func EventTimestamp(now time.Time) string {
	return now.UTC().Format(time.RFC3339Nano)
}
