package models

import "time"

// Bar is one OHLCV record for a fixed time bucket.
type Bar struct {
	Symbol           string    `json:"-"`
	Timestamp        time.Time `json:"t"`
	Open             float64   `json:"o"`
	High             float64   `json:"h"`
	Low              float64   `json:"l"`
	Close            float64   `json:"c"`
	Volume           int64     `json:"v"`
	TransactionCount int64     `json:"n"`
	VWAP             float64   `json:"vw"`
}

// EventTime implements Record.
func (b Bar) EventTime() time.Time { return b.Timestamp }

// FilterPrice implements Record. Bars are filtered on their close.
func (b Bar) FilterPrice() float64 { return b.Close }

// FilterSize implements Record.
func (b Bar) FilterSize() float64 { return float64(b.Volume) }
