package models

// Requests for the chart and stream HTTP endpoints.

type ChartRequest struct {
	Symbol           string `query:"symbol" json:"symbol" validate:"required,max=32"`
	StartTime        string `query:"start_time" json:"start_time"`
	Direction        string `query:"direction" json:"direction" default:"past" validate:"oneof=past future centered"`
	Interval         int    `query:"interval" json:"interval" default:"1" validate:"oneof=1 15 30 60 120 240 1440"`
	Limit            int    `query:"limit" json:"limit" validate:"gte=0"`
	ViewBasedLoading bool   `query:"view_based_loading" json:"view_based_loading"`
	ViewSize         int    `query:"view_size" json:"view_size" validate:"gte=0"`
	From             string `query:"from" json:"from"`
	To               string `query:"to" json:"to"`
}

type SubscriptionRequest struct {
	Type             string   `query:"type" json:"type" validate:"required,oneof=stock_trades option_trades option_quotes stock_aggregates"`
	Symbol           string   `query:"symbol" json:"symbol"`
	Ticker           string   `query:"ticker" json:"ticker"`
	UnderlyingTicker string   `query:"underlying_ticker" json:"underlying_ticker"`
	Filters          *Filters `json:"filters"`
}

// Subscription converts the request into a normalized domain subscription.
func (r *SubscriptionRequest) Subscription() Subscription {
	return Subscription{
		Type:             SubscriptionType(r.Type),
		Symbol:           r.Symbol,
		Ticker:           r.Ticker,
		UnderlyingTicker: r.UnderlyingTicker,
		Filters:          r.Filters,
	}.Normalize()
}
