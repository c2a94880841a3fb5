package usecase

import (
	"context"
	"errors"
	"strings"
	"time"

	"BarFeed/internal/domain/models"
	domrepo "BarFeed/internal/domain/repository"
	"BarFeed/internal/services/aggregation"
	applogger "BarFeed/pkg/logger"
)

// Direction places a window relative to its reference time.
type Direction string

const (
	DirectionPast     Direction = "past"
	DirectionFuture   Direction = "future"
	DirectionCentered Direction = "centered"
)

func (d Direction) IsValid() bool {
	switch d {
	case DirectionPast, DirectionFuture, DirectionCentered:
		return true
	default:
		return false
	}
}

// WindowRequest asks for Count candles of Interval around ReferenceTime.
// From and To are optional explicit bounds; when either is set an empty
// result is final and no fallback query runs.
type WindowRequest struct {
	Symbol        string
	ReferenceTime time.Time
	Direction     Direction
	Count         int
	Interval      domrepo.AggregationInterval
	From          *time.Time
	To            *time.Time
}

func (r WindowRequest) explicit() bool { return r.From != nil || r.To != nil }

// DefaultMaxRawRows caps a single bar query.
const DefaultMaxRawRows = 50000

// WindowLoader resolves directional chart windows against the bar store.
type WindowLoader struct {
	store      domrepo.MarketStore
	metrics    domrepo.Metrics
	log        *applogger.Logger
	maxRawRows int
}

type WindowLoaderOption func(*WindowLoader)

func WithMaxRawRows(n int) WindowLoaderOption {
	return func(l *WindowLoader) {
		if n > 0 {
			l.maxRawRows = n
		}
	}
}

func NewWindowLoader(store domrepo.MarketStore, metrics domrepo.Metrics, log *applogger.Logger, opts ...WindowLoaderOption) *WindowLoader {
	if metrics == nil {
		metrics = domrepo.NopMetrics{}
	}
	if log == nil {
		log = applogger.Nop()
	}
	l := &WindowLoader{store: store, metrics: metrics, log: log, maxRawRows: DefaultMaxRawRows}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// LoadWindow returns ascending candles for the request. Store failures come
// back as *models.StoreQueryError; bad requests as *models.ValidationError.
func (l *WindowLoader) LoadWindow(ctx context.Context, req WindowRequest) ([]models.Bar, error) {
	req.Symbol = strings.ToUpper(strings.TrimSpace(req.Symbol))
	if err := validateWindow(req); err != nil {
		return nil, err
	}

	start := time.Now()
	raw := l.rawLimit(req.Count, req.Interval)

	rows, err := l.fetch(ctx, req, raw)
	if err != nil {
		l.metrics.RecordError("store_query")
		return nil, err
	}

	if len(rows) == 0 && !req.explicit() {
		l.log.Debug("window empty, loading latest available bars",
			applogger.String("symbol", req.Symbol),
			applogger.String("direction", string(req.Direction)),
			applogger.Time("reference", req.ReferenceTime),
		)
		rows, err = l.latest(ctx, req.Symbol, raw)
		if err != nil {
			l.metrics.RecordError("store_query")
			return nil, err
		}
	}

	rows = aggregation.Dedupe(rows)
	if req.Interval != domrepo.FinestInterval {
		maxPoints := req.Count
		if req.Direction == DirectionCentered {
			maxPoints = 2 * req.Count
		}
		rows, err = aggregation.Aggregate(rows, req.Interval.Duration(), maxPoints)
		if err != nil {
			l.metrics.RecordError("aggregation")
			return nil, err
		}
	}

	l.metrics.RecordLatency("load_window", time.Since(start).Seconds())
	return rows, nil
}

func validateWindow(req WindowRequest) error {
	switch {
	case req.Symbol == "":
		return models.NewValidationError("symbol", "is required")
	case !req.Direction.IsValid():
		return models.NewValidationError("direction", "unsupported direction %q", req.Direction)
	case !domrepo.IsValidInterval(req.Interval):
		return models.NewValidationError("interval", "unsupported interval %d", int(req.Interval))
	case req.Count <= 0:
		return models.NewValidationError("limit", "must be positive, got %d", req.Count)
	case req.From != nil && req.To != nil && req.From.After(*req.To):
		return models.NewValidationError("from", "must not be after to")
	}
	return nil
}

// rawLimit is how many finest-granularity rows fill count buckets.
func (l *WindowLoader) rawLimit(count int, iv domrepo.AggregationInterval) int {
	per := iv.RowsPerBucket()
	if count > l.maxRawRows/per {
		return l.maxRawRows
	}
	return count * per
}

func (l *WindowLoader) fetch(ctx context.Context, req WindowRequest, raw int) ([]models.Bar, error) {
	switch req.Direction {
	case DirectionPast:
		return l.past(ctx, req, raw)
	case DirectionFuture:
		return l.future(ctx, req, raw, false)
	default:
		// Each half gets the full count. The reference row belongs to the past half.
		past, err := l.past(ctx, req, raw)
		if err != nil {
			return nil, err
		}
		future, err := l.future(ctx, req, raw, true)
		if err != nil {
			return nil, err
		}
		return append(past, future...), nil
	}
}

// past reads rows at or before the reference, newest first, and returns
// them ascending.
func (l *WindowLoader) past(ctx context.Context, req WindowRequest, raw int) ([]models.Bar, error) {
	end := req.ReferenceTime
	if req.To != nil && req.To.Before(end) {
		end = *req.To
	}
	q := domrepo.RangeQuery{Start: req.From, End: &end, Limit: raw, OrderDir: domrepo.Desc}
	rows, err := l.query(ctx, "window_past", req.Symbol, q)
	if err != nil {
		return nil, err
	}
	reverse(rows)
	return rows, nil
}

func (l *WindowLoader) future(ctx context.Context, req WindowRequest, raw int, exclusive bool) ([]models.Bar, error) {
	begin := req.ReferenceTime
	if req.From != nil && req.From.After(begin) {
		begin = *req.From
		exclusive = false
	}
	q := domrepo.RangeQuery{Start: &begin, StartExclusive: exclusive, End: req.To, Limit: raw, OrderDir: domrepo.Asc}
	return l.query(ctx, "window_future", req.Symbol, q)
}

func (l *WindowLoader) latest(ctx context.Context, symbol string, raw int) ([]models.Bar, error) {
	rows, err := l.query(ctx, "window_fallback", symbol, domrepo.RangeQuery{Limit: raw, OrderDir: domrepo.Desc})
	if err != nil {
		return nil, err
	}
	reverse(rows)
	return rows, nil
}

func (l *WindowLoader) query(ctx context.Context, op, symbol string, q domrepo.RangeQuery) ([]models.Bar, error) {
	rows, err := l.store.QueryBars(ctx, symbol, q)
	if err != nil {
		l.log.Error("bar query failed",
			applogger.String("op", op),
			applogger.String("symbol", symbol),
			applogger.Error(err),
		)
		return nil, asStoreError(op, err)
	}
	return rows, nil
}

func asStoreError(op string, err error) error {
	var se *models.StoreQueryError
	if errors.As(err, &se) {
		return err
	}
	return &models.StoreQueryError{Op: op, Err: err}
}

func reverse[T any](s []T) {
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}
}
