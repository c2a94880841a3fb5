package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"BarFeed/internal/domain/models"
	domrepo "BarFeed/internal/domain/repository"
	applogger "BarFeed/pkg/logger"
)

// SQLMarketStore implements MarketStore over database/sql. ClickHouse and
// SQLite differ only in their Dialect.
type SQLMarketStore struct {
	db      *sql.DB
	dialect Dialect
	owner   io.Closer
	metrics domrepo.Metrics
	l       *applogger.Logger
}

// NewSQLMarketStore reads from db. owner, if non-nil, is closed by Close.
func NewSQLMarketStore(db *sql.DB, dialect Dialect, owner io.Closer, metrics domrepo.Metrics, l *applogger.Logger) *SQLMarketStore {
	if metrics == nil {
		metrics = domrepo.NopMetrics{}
	}
	if l == nil {
		l = applogger.Nop()
	}
	return &SQLMarketStore{db: db, dialect: dialect, owner: owner, metrics: metrics, l: l}
}

const barColumns = "symbol, ts, open, high, low, close, volume, transactions, vwap"

func (s *SQLMarketStore) QueryBars(ctx context.Context, symbol string, q domrepo.RangeQuery) ([]models.Bar, error) {
	query, args := s.rangeQuery(barColumns, s.dialect.BarsTable, []string{"symbol = ?"}, []any{symbol}, q, "")

	out := make([]models.Bar, 0, capHint(q.Limit))
	err := s.run(ctx, "query_bars", symbol, query, args, func(rows *sql.Rows) error {
		var b models.Bar
		ts := s.dialect.newTS()
		if err := rows.Scan(&b.Symbol, ts.dest(), &b.Open, &b.High, &b.Low, &b.Close, &b.Volume, &b.TransactionCount, &b.VWAP); err != nil {
			return err
		}
		b.Timestamp = ts.value()
		out = append(out, b)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *SQLMarketStore) QueryTrades(ctx context.Context, asset models.AssetClass, sel models.TickSelector, q domrepo.RangeQuery) ([]models.Trade, error) {
	var (
		table string
		cols  string
	)
	switch asset {
	case models.AssetStock:
		table = s.dialect.StockTrades
		cols = "ticker, '' AS underlying_ticker, ts, price, size, sequence_number"
		if sel.UnderlyingTicker != "" {
			return nil, fmt.Errorf("stock trades have no underlying ticker")
		}
	case models.AssetOption:
		table = s.dialect.OptionTrades
		cols = "ticker, underlying_ticker, ts, price, size, sequence_number"
	default:
		return nil, fmt.Errorf("unknown asset class %q", asset)
	}
	where, args, err := selectorFilter(sel)
	if err != nil {
		return nil, err
	}
	query, args := s.rangeQuery(cols, table, where, args, q, "sequence_number")

	out := make([]models.Trade, 0, capHint(q.Limit))
	err = s.run(ctx, "query_trades", sel.Ticker+sel.UnderlyingTicker, query, args, func(rows *sql.Rows) error {
		var t models.Trade
		ts := s.dialect.newTS()
		if err := rows.Scan(&t.Ticker, &t.UnderlyingTicker, ts.dest(), &t.Price, &t.Size, &t.SequenceNumber); err != nil {
			return err
		}
		t.Timestamp = ts.value()
		out = append(out, t)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *SQLMarketStore) QueryQuotes(ctx context.Context, sel models.TickSelector, q domrepo.RangeQuery) ([]models.Quote, error) {
	where, args, err := selectorFilter(sel)
	if err != nil {
		return nil, err
	}
	const cols = "ticker, underlying_ticker, ts, bid_price, ask_price, bid_size, ask_size, sequence_number"
	query, args := s.rangeQuery(cols, s.dialect.OptionQuotes, where, args, q, "sequence_number")

	out := make([]models.Quote, 0, capHint(q.Limit))
	err = s.run(ctx, "query_quotes", sel.Ticker+sel.UnderlyingTicker, query, args, func(rows *sql.Rows) error {
		var r models.Quote
		ts := s.dialect.newTS()
		if err := rows.Scan(&r.Ticker, &r.UnderlyingTicker, ts.dest(), &r.BidPrice, &r.AskPrice, &r.BidSize, &r.AskSize, &r.SequenceNumber); err != nil {
			return err
		}
		r.Timestamp = ts.value()
		out = append(out, r)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *SQLMarketStore) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLMarketStore) Close() error {
	if s.owner != nil {
		return s.owner.Close()
	}
	return nil
}

func selectorFilter(sel models.TickSelector) ([]string, []any, error) {
	var (
		where []string
		args  []any
	)
	if sel.Ticker != "" {
		where = append(where, "ticker = ?")
		args = append(args, sel.Ticker)
	}
	if sel.UnderlyingTicker != "" {
		where = append(where, "underlying_ticker = ?")
		args = append(args, sel.UnderlyingTicker)
	}
	if len(where) == 0 {
		return nil, nil, errors.New("ticker or underlying ticker required")
	}
	return where, args, nil
}

// rangeQuery appends the timestamp bounds, ordering and limit of q.
// tiebreak orders rows sharing a timestamp.
func (s *SQLMarketStore) rangeQuery(cols, table string, where []string, args []any, q domrepo.RangeQuery, tiebreak string) (string, []any) {
	if q.Start != nil {
		op := ">="
		if q.StartExclusive {
			op = ">"
		}
		ph, arg := s.dialect.timeBound(*q.Start)
		where = append(where, "ts "+op+" "+ph)
		args = append(args, arg)
	}
	if q.End != nil {
		ph, arg := s.dialect.timeBound(*q.End)
		where = append(where, "ts <= "+ph)
		args = append(args, arg)
	}

	dir := "ASC"
	if q.OrderDir == domrepo.Desc {
		dir = "DESC"
	}
	order := "ts " + dir
	if tiebreak != "" {
		order += ", " + tiebreak + " " + dir
	}

	var b strings.Builder
	fmt.Fprintf(&b, "SELECT %s FROM %s WHERE %s ORDER BY %s", cols, table, strings.Join(where, " AND "), order)
	if q.Limit > 0 {
		b.WriteString(" LIMIT ?")
		args = append(args, q.Limit)
	}
	return b.String(), args
}

func (s *SQLMarketStore) run(ctx context.Context, op, subject, query string, args []any, scan func(*sql.Rows) error) error {
	start := time.Now()
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return s.fail(op, subject, err)
	}
	defer rows.Close()

	n := 0
	for rows.Next() {
		if err := scan(rows); err != nil {
			return s.fail(op, subject, fmt.Errorf("scan: %w", err))
		}
		n++
	}
	if err := rows.Err(); err != nil {
		return s.fail(op, subject, fmt.Errorf("rows: %w", err))
	}

	took := time.Since(start)
	s.metrics.RecordLatency(s.dialect.Name+"_"+op, took.Seconds())
	s.l.Debug(s.dialect.Name+" "+op+" ok",
		applogger.String("subject", subject),
		applogger.Int("rows", n),
		applogger.Duration("duration_ms", took),
	)
	return nil
}

func (s *SQLMarketStore) fail(op, subject string, err error) error {
	s.metrics.RecordError(s.dialect.Name + "_" + op)
	s.l.Error(s.dialect.Name+" "+op+" failed",
		applogger.String("subject", subject),
		applogger.Error(err),
	)
	return &models.StoreQueryError{Op: op, Err: err}
}

func capHint(limit int) int {
	if limit > 0 && limit < 4096 {
		return limit
	}
	return 64
}

var _ domrepo.MarketStore = (*SQLMarketStore)(nil)
