package repository

import (
	"fmt"
	"time"
)

// Dialect adapts the market store queries to one SQL backend.
type Dialect struct {
	Name         string
	BarsTable    string
	StockTrades  string
	OptionTrades string
	OptionQuotes string
	// MillisTime stores timestamps as integer epoch milliseconds instead of
	// native datetime columns.
	MillisTime bool
}

// ClickHouseDialect reads DateTime64 columns through clickhouse-go.
func ClickHouseDialect(database string) Dialect {
	prefix := ""
	if database != "" {
		prefix = database + "."
	}
	return Dialect{
		Name:         "clickhouse",
		BarsTable:    prefix + "bars_1m",
		StockTrades:  prefix + "stock_trades",
		OptionTrades: prefix + "option_trades",
		OptionQuotes: prefix + "option_quotes",
	}
}

// SQLiteDialect stores timestamps as INTEGER milliseconds.
func SQLiteDialect() Dialect {
	return Dialect{
		Name:         "sqlite",
		BarsTable:    "bars_1m",
		StockTrades:  "stock_trades",
		OptionTrades: "option_trades",
		OptionQuotes: "option_quotes",
		MillisTime:   true,
	}
}

// timeBound returns the placeholder and argument for a timestamp bound.
// clickhouse-go renders a positional time.Time at second precision, so
// ClickHouse bounds go over the wire as epoch nanoseconds.
func (d Dialect) timeBound(t time.Time) (string, any) {
	if d.MillisTime {
		return "?", t.UnixMilli()
	}
	return "fromUnixTimestamp64Nano(?)", t.UnixNano()
}

// tsColumn scans a timestamp in either representation.
type tsColumn struct {
	millis bool
	t      time.Time
	ms     int64
}

func (d Dialect) newTS() *tsColumn { return &tsColumn{millis: d.MillisTime} }

func (c *tsColumn) dest() any {
	if c.millis {
		return &c.ms
	}
	return &c.t
}

func (c *tsColumn) value() time.Time {
	if c.millis {
		return time.UnixMilli(c.ms).UTC()
	}
	return c.t.UTC()
}

// Schema returns the DDL for the dialect's tables.
func (d Dialect) Schema() []string {
	if d.MillisTime {
		return []string{
			fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
				symbol TEXT NOT NULL,
				ts INTEGER NOT NULL,
				open REAL, high REAL, low REAL, close REAL,
				volume INTEGER NOT NULL DEFAULT 0,
				transactions INTEGER NOT NULL DEFAULT 0,
				vwap REAL
			)`, d.BarsTable),
			fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_symbol_ts ON %s(symbol, ts)`, d.BarsTable, d.BarsTable),
			fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
				ticker TEXT NOT NULL,
				ts INTEGER NOT NULL,
				price REAL, size REAL,
				sequence_number INTEGER NOT NULL DEFAULT 0
			)`, d.StockTrades),
			fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_ticker_ts ON %s(ticker, ts)`, d.StockTrades, d.StockTrades),
			fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
				ticker TEXT NOT NULL,
				underlying_ticker TEXT NOT NULL,
				ts INTEGER NOT NULL,
				price REAL, size REAL,
				sequence_number INTEGER NOT NULL DEFAULT 0
			)`, d.OptionTrades),
			fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_underlying_ts ON %s(underlying_ticker, ts)`, d.OptionTrades, d.OptionTrades),
			fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
				ticker TEXT NOT NULL,
				underlying_ticker TEXT NOT NULL,
				ts INTEGER NOT NULL,
				bid_price REAL, ask_price REAL, bid_size REAL, ask_size REAL,
				sequence_number INTEGER NOT NULL DEFAULT 0
			)`, d.OptionQuotes),
			fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_underlying_ts ON %s(underlying_ticker, ts)`, d.OptionQuotes, d.OptionQuotes),
		}
	}
	return []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			symbol LowCardinality(String),
			ts DateTime64(3, 'UTC'),
			open Float64, high Float64, low Float64, close Float64,
			volume Int64, transactions Int64, vwap Float64
		) ENGINE = ReplacingMergeTree ORDER BY (symbol, ts)`, d.BarsTable),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			ticker LowCardinality(String),
			ts DateTime64(9, 'UTC'),
			price Float64, size Float64,
			sequence_number Int64
		) ENGINE = MergeTree ORDER BY (ticker, ts, sequence_number)`, d.StockTrades),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			ticker String,
			underlying_ticker LowCardinality(String),
			ts DateTime64(9, 'UTC'),
			price Float64, size Float64,
			sequence_number Int64
		) ENGINE = MergeTree ORDER BY (underlying_ticker, ts, sequence_number)`, d.OptionTrades),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			ticker String,
			underlying_ticker LowCardinality(String),
			ts DateTime64(9, 'UTC'),
			bid_price Float64, ask_price Float64, bid_size Float64, ask_size Float64,
			sequence_number Int64
		) ENGINE = MergeTree ORDER BY (underlying_ticker, ts, sequence_number)`, d.OptionQuotes),
	}
}
