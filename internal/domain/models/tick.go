package models

import "time"

// AssetClass selects which tick table a query reads from.
type AssetClass string

const (
	AssetStock  AssetClass = "stock"
	AssetOption AssetClass = "option"
)

// TickSelector identifies the ticks of one instrument or of every contract
// written on an underlying. At least one field must be set.
type TickSelector struct {
	Ticker           string
	UnderlyingTicker string
}

// Trade is a single executed trade tick.
type Trade struct {
	Ticker           string    `json:"ticker"`
	UnderlyingTicker string    `json:"underlying_ticker,omitempty"`
	Timestamp        time.Time `json:"timestamp"`
	Price            float64   `json:"price"`
	Size             float64   `json:"size"`
	SequenceNumber   int64     `json:"sequence_number"`
}

func (t Trade) EventTime() time.Time { return t.Timestamp }
func (t Trade) FilterPrice() float64 { return t.Price }
func (t Trade) FilterSize() float64  { return t.Size }

// Quote is a top-of-book quote tick.
type Quote struct {
	Ticker           string    `json:"ticker"`
	UnderlyingTicker string    `json:"underlying_ticker,omitempty"`
	Timestamp        time.Time `json:"timestamp"`
	BidPrice         float64   `json:"bid_price"`
	AskPrice         float64   `json:"ask_price"`
	BidSize          float64   `json:"bid_size"`
	AskSize          float64   `json:"ask_size"`
	SequenceNumber   int64     `json:"sequence_number"`
}

func (q Quote) EventTime() time.Time { return q.Timestamp }

// FilterPrice uses the bid/ask midpoint.
func (q Quote) FilterPrice() float64 { return (q.BidPrice + q.AskPrice) / 2 }

// FilterSize uses the displayed size on both sides.
func (q Quote) FilterSize() float64 { return q.BidSize + q.AskSize }

// Record is a streamed row as seen by the polling engine.
type Record interface {
	EventTime() time.Time
	FilterPrice() float64
	FilterSize() float64
}
