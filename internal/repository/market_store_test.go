package repository

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"BarFeed/internal/domain/models"
	domrepo "BarFeed/internal/domain/repository"
	"BarFeed/pkg/sqlite"
)

var base = time.Date(2024, 6, 3, 13, 30, 0, 0, time.UTC)

func newTestStore(t *testing.T) *SQLMarketStore {
	t.Helper()
	ctx := context.Background()
	client, err := sqlite.NewClient(ctx, sqlite.WithPath(":memory:"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	d := SQLiteDialect()
	if err := client.InitSchema(ctx, d.Schema()); err != nil {
		t.Fatalf("schema: %v", err)
	}
	store := NewSQLMarketStore(client.DB(), d, client, nil, nil)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func seedBars(t *testing.T, s *SQLMarketStore, symbol string, minutes ...int) {
	t.Helper()
	for _, m := range minutes {
		ts := base.Add(time.Duration(m) * time.Minute)
		_, err := s.db.Exec(`INSERT INTO bars_1m (symbol, ts, open, high, low, close, volume, transactions, vwap)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`, symbol, ts.UnixMilli(), 10.0, 11.0, 9.0, 10.5+float64(m), 100, 3, 10.2)
		if err != nil {
			t.Fatalf("seed bar: %v", err)
		}
	}
}

func minutesOf(bars []models.Bar) []int {
	out := make([]int, len(bars))
	for i, b := range bars {
		out[i] = int(b.Timestamp.Sub(base) / time.Minute)
	}
	return out
}

func equalInts(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestQueryBarsRange(t *testing.T) {
	s := newTestStore(t)
	seedBars(t, s, "AAPL", 0, 1, 2, 3, 4, 5)
	seedBars(t, s, "MSFT", 2)
	ctx := context.Background()

	start, end := base.Add(2*time.Minute), base.Add(4*time.Minute)
	tests := []struct {
		name string
		q    domrepo.RangeQuery
		want []int
	}{
		{"closed range asc", domrepo.RangeQuery{Start: &start, End: &end, OrderDir: domrepo.Asc}, []int{2, 3, 4}},
		{"exclusive start", domrepo.RangeQuery{Start: &start, StartExclusive: true, End: &end, OrderDir: domrepo.Asc}, []int{3, 4}},
		{"latest two", domrepo.RangeQuery{End: &end, Limit: 2, OrderDir: domrepo.Desc}, []int{4, 3}},
		{"unbounded desc", domrepo.RangeQuery{Limit: 1, OrderDir: domrepo.Desc}, []int{5}},
		{"open end", domrepo.RangeQuery{Start: &end, OrderDir: domrepo.Asc}, []int{4, 5}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bars, err := s.QueryBars(ctx, "AAPL", tt.q)
			if err != nil {
				t.Fatalf("QueryBars: %v", err)
			}
			if got := minutesOf(bars); !equalInts(got, tt.want) {
				t.Fatalf("got minutes %v, want %v", got, tt.want)
			}
		})
	}
}

func TestQueryBarsScansColumns(t *testing.T) {
	s := newTestStore(t)
	seedBars(t, s, "AAPL", 7)

	bars, err := s.QueryBars(context.Background(), "AAPL", domrepo.RangeQuery{})
	if err != nil {
		t.Fatalf("QueryBars: %v", err)
	}
	if len(bars) != 1 {
		t.Fatalf("expected 1 bar, got %d", len(bars))
	}
	b := bars[0]
	if b.Symbol != "AAPL" || !b.Timestamp.Equal(base.Add(7*time.Minute)) || b.Close != 17.5 || b.Volume != 100 || b.TransactionCount != 3 || b.VWAP != 10.2 {
		t.Fatalf("unexpected bar %+v", b)
	}
}

func TestQueryTicks(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	ms := func(sec int) int64 { return base.Add(time.Duration(sec) * time.Second).UnixMilli() }

	mustExec := func(q string, args ...any) {
		if _, err := s.db.Exec(q, args...); err != nil {
			t.Fatalf("exec: %v", err)
		}
	}
	mustExec(`INSERT INTO stock_trades (ticker, ts, price, size, sequence_number) VALUES (?, ?, ?, ?, ?), (?, ?, ?, ?, ?)`,
		"AAPL", ms(1), 190.0, 10.0, 1, "AAPL", ms(1), 190.5, 5.0, 2)
	mustExec(`INSERT INTO option_trades (ticker, underlying_ticker, ts, price, size, sequence_number) VALUES (?, ?, ?, ?, ?, ?), (?, ?, ?, ?, ?, ?)`,
		"O:AAPL1", "AAPL", ms(2), 3.1, 1.0, 1, "O:AAPL2", "AAPL", ms(3), 1.2, 4.0, 2)
	mustExec(`INSERT INTO option_quotes (ticker, underlying_ticker, ts, bid_price, ask_price, bid_size, ask_size, sequence_number) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		"O:AAPL1", "AAPL", ms(4), 3.0, 3.2, 10.0, 12.0, 9)

	trades, err := s.QueryTrades(ctx, models.AssetStock, models.TickSelector{Ticker: "AAPL"}, domrepo.RangeQuery{OrderDir: domrepo.Asc})
	if err != nil {
		t.Fatalf("stock trades: %v", err)
	}
	if len(trades) != 2 || trades[0].SequenceNumber != 1 || trades[1].Price != 190.5 || trades[0].UnderlyingTicker != "" {
		t.Fatalf("unexpected stock trades %+v", trades)
	}

	opts, err := s.QueryTrades(ctx, models.AssetOption, models.TickSelector{UnderlyingTicker: "AAPL"}, domrepo.RangeQuery{Limit: 1, OrderDir: domrepo.Desc})
	if err != nil {
		t.Fatalf("option trades: %v", err)
	}
	if len(opts) != 1 || opts[0].Ticker != "O:AAPL2" {
		t.Fatalf("unexpected option trades %+v", opts)
	}

	quotes, err := s.QueryQuotes(ctx, models.TickSelector{Ticker: "O:AAPL1"}, domrepo.RangeQuery{})
	if err != nil {
		t.Fatalf("quotes: %v", err)
	}
	if len(quotes) != 1 || quotes[0].AskSize != 12 || !quotes[0].Timestamp.Equal(base.Add(4*time.Second)) {
		t.Fatalf("unexpected quotes %+v", quotes)
	}
}

func TestQueryTicksRequiresSelector(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.QueryQuotes(context.Background(), models.TickSelector{}, domrepo.RangeQuery{}); err == nil {
		t.Fatalf("expected error for empty selector")
	}
}

func TestQueryErrorIsStoreQueryError(t *testing.T) {
	s := newTestStore(t)
	s.dialect.BarsTable = "missing_table"
	_, err := s.QueryBars(context.Background(), "AAPL", domrepo.RangeQuery{})
	var se *models.StoreQueryError
	if !errors.As(err, &se) || se.Op != "query_bars" {
		t.Fatalf("expected StoreQueryError, got %v", err)
	}
}

func TestRangeQuerySQL(t *testing.T) {
	s := NewSQLMarketStore(nil, ClickHouseDialect("market"), nil, nil, nil)
	start := base
	q, args := s.rangeQuery(barColumns, s.dialect.BarsTable, []string{"symbol = ?"}, []any{"AAPL"},
		domrepo.RangeQuery{Start: &start, StartExclusive: true, Limit: 5, OrderDir: domrepo.Desc}, "")
	want := "SELECT " + barColumns + " FROM market.bars_1m WHERE symbol = ? AND ts > fromUnixTimestamp64Nano(?) ORDER BY ts DESC LIMIT ?"
	if q != want {
		t.Fatalf("got  %s\nwant %s", q, want)
	}
	if len(args) != 3 || args[2] != 5 {
		t.Fatalf("unexpected args %v", args)
	}
	if ns, ok := args[1].(int64); !ok || ns != base.UnixNano() {
		t.Fatalf("start bound = %v (%T)", args[1], args[1])
	}
}

func TestRangeQuerySQLKeepsSubSecondBounds(t *testing.T) {
	start := base.Add(500 * time.Millisecond)
	end := base.Add(1500*time.Millisecond + 250*time.Nanosecond)
	rq := domrepo.RangeQuery{Start: &start, StartExclusive: true, End: &end}

	tests := []struct {
		name      string
		dialect   Dialect
		wantWhere string
		wantArgs  []any
	}{
		{
			name:      "clickhouse",
			dialect:   ClickHouseDialect("market"),
			wantWhere: "ticker = ? AND ts > fromUnixTimestamp64Nano(?) AND ts <= fromUnixTimestamp64Nano(?)",
			wantArgs:  []any{"AAPL", start.UnixNano(), end.UnixNano()},
		},
		{
			name:      "sqlite",
			dialect:   SQLiteDialect(),
			wantWhere: "ticker = ? AND ts > ? AND ts <= ?",
			wantArgs:  []any{"AAPL", start.UnixMilli(), end.UnixMilli()},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewSQLMarketStore(nil, tt.dialect, nil, nil, nil)
			q, args := s.rangeQuery("ts", s.dialect.StockTrades, []string{"ticker = ?"}, []any{"AAPL"}, rq, "sequence_number")
			if !strings.Contains(q, " WHERE "+tt.wantWhere+" ORDER BY ") {
				t.Fatalf("unexpected sql %s", q)
			}
			if len(args) != len(tt.wantArgs) {
				t.Fatalf("args = %v", args)
			}
			for i := range args {
				if args[i] != tt.wantArgs[i] {
					t.Fatalf("arg %d = %v (%T), want %v", i, args[i], args[i], tt.wantArgs[i])
				}
			}
		})
	}
}
