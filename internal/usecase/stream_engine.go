package usecase

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"BarFeed/internal/domain/models"
	domrepo "BarFeed/internal/domain/repository"
	applogger "BarFeed/pkg/logger"
)

const (
	MinPollInterval     = 500 * time.Millisecond
	DefaultPollInterval = time.Second
)

// Listener receives stream events. Calls are never concurrent.
type Listener func(models.StreamEvent)

// StreamStatus is a point-in-time view of the engine.
type StreamStatus struct {
	Streaming     bool          `json:"streaming"`
	Subscriptions int           `json:"subscriptions"`
	PollInterval  time.Duration `json:"poll_interval_ns"`
	Ticks         uint64        `json:"ticks"`
}

// StreamEngine polls the store for rows newer than each subscription's
// watermark and pushes them to listeners.
type StreamEngine struct {
	store        domrepo.MarketStore
	registry     *SubscriptionRegistry
	metrics      domrepo.Metrics
	log          *applogger.Logger
	interval     time.Duration
	queryTimeout time.Duration
	now          func() time.Time

	stateMu sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}

	tickMu sync.Mutex
	ticks  atomic.Uint64

	listenerMu sync.RWMutex
	listeners  []listenerSlot
	nextID     uint64
	dispatchMu sync.Mutex
}

type listenerSlot struct {
	id uint64
	fn Listener
}

type StreamOption func(*StreamEngine)

// WithPollInterval sets the tick period. Values under MinPollInterval are
// raised to it.
func WithPollInterval(d time.Duration) StreamOption {
	return func(e *StreamEngine) { e.interval = d }
}

// WithQueryTimeout bounds each subscription query. Zero means no bound.
func WithQueryTimeout(d time.Duration) StreamOption {
	return func(e *StreamEngine) { e.queryTimeout = d }
}

func WithClock(now func() time.Time) StreamOption {
	return func(e *StreamEngine) { e.now = now }
}

func NewStreamEngine(store domrepo.MarketStore, registry *SubscriptionRegistry, metrics domrepo.Metrics, log *applogger.Logger, opts ...StreamOption) *StreamEngine {
	if metrics == nil {
		metrics = domrepo.NopMetrics{}
	}
	if log == nil {
		log = applogger.Nop()
	}
	if registry == nil {
		registry = NewSubscriptionRegistry()
	}
	e := &StreamEngine{
		store:    store,
		registry: registry,
		metrics:  metrics,
		log:      log,
		interval: DefaultPollInterval,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.interval < MinPollInterval {
		e.interval = MinPollInterval
	}
	return e
}

func (e *StreamEngine) Registry() *SubscriptionRegistry { return e.registry }

func (e *StreamEngine) PollInterval() time.Duration { return e.interval }

// AddListener registers fn and returns a function that removes it.
func (e *StreamEngine) AddListener(fn Listener) (remove func()) {
	e.listenerMu.Lock()
	e.nextID++
	id := e.nextID
	e.listeners = append(e.listeners, listenerSlot{id: id, fn: fn})
	e.listenerMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			e.listenerMu.Lock()
			defer e.listenerMu.Unlock()
			for i, l := range e.listeners {
				if l.id == id {
					e.listeners = append(e.listeners[:i:i], e.listeners[i+1:]...)
					return
				}
			}
		})
	}
}

// Subscribe registers sub and confirms it to listeners.
func (e *StreamEngine) Subscribe(sub models.Subscription) (models.SubscriptionKey, error) {
	key, created, err := e.registry.Subscribe(sub)
	if err != nil {
		return key, err
	}
	e.metrics.SetActiveSubscriptions(e.registry.Len())
	e.log.Info("subscription registered",
		applogger.String("key", key.String()),
		applogger.Bool("created", created),
	)
	stored, _ := e.registry.Get(key)
	e.emit(e.controlEvent(models.EventSubscriptionConfirmed, stored, &key))
	return key, nil
}

// Unsubscribe drops sub and its watermark. It reports false, and emits
// nothing, when sub was not registered.
func (e *StreamEngine) Unsubscribe(sub models.Subscription) bool {
	key, ok := e.registry.Unsubscribe(sub)
	if !ok {
		return false
	}
	e.metrics.SetActiveSubscriptions(e.registry.Len())
	e.log.Info("subscription removed", applogger.String("key", key.String()))
	e.emit(e.controlEvent(models.EventUnsubscriptionConfirmed, sub.Normalize(), &key))
	return true
}

func (e *StreamEngine) IsStreaming() bool {
	e.stateMu.Lock()
	defer e.stateMu.Unlock()
	return e.cancel != nil
}

func (e *StreamEngine) Status() StreamStatus {
	return StreamStatus{
		Streaming:     e.IsStreaming(),
		Subscriptions: e.registry.Len(),
		PollInterval:  e.interval,
		Ticks:         e.ticks.Load(),
	}
}

// Start begins polling. It returns false if the engine was already streaming.
func (e *StreamEngine) Start() bool {
	e.stateMu.Lock()
	if e.cancel != nil {
		e.stateMu.Unlock()
		return false
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	e.cancel, e.done = cancel, done
	go e.loop(ctx, done)
	e.stateMu.Unlock()

	e.log.Info("stream started", applogger.Duration("poll_interval_ms", e.interval))
	e.emit(e.controlEvent(models.EventConnected, nil, nil))
	return true
}

// Stop prevents further ticks and waits for an in-flight tick to finish.
// It returns false, emitting nothing, if the engine was not streaming.
// Stop must not be called from a Listener.
func (e *StreamEngine) Stop() bool {
	e.stateMu.Lock()
	cancel, done := e.cancel, e.done
	e.cancel, e.done = nil, nil
	e.stateMu.Unlock()
	if cancel == nil {
		return false
	}

	cancel()
	<-done
	e.log.Info("stream stopped")
	e.emit(e.controlEvent(models.EventDisconnected, nil, nil))
	return true
}

func (e *StreamEngine) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	timer := time.NewTimer(e.interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			if ctx.Err() != nil {
				return
			}
			// Stop cancels ctx; the tick itself is allowed to finish.
			e.Tick(context.WithoutCancel(ctx))
			timer.Reset(e.interval)
		}
	}
}

// Tick polls every registered subscription once. Concurrent calls are
// serialized so ticks never overlap.
func (e *StreamEngine) Tick(ctx context.Context) {
	e.tickMu.Lock()
	defer e.tickMu.Unlock()
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("stream tick panic: %v", r)
			e.log.Error("stream tick failed", applogger.Error(err))
			e.metrics.RecordError("stream_tick")
			e.emit(models.StreamEvent{
				Type:      models.EventError,
				Data:      map[string]string{"message": err.Error()},
				Timestamp: models.EventTimestamp(time.Now()),
			})
		}
	}()

	started := time.Now()
	e.ticks.Add(1)
	now := e.now()
	entries := e.registry.Entries()

	var wg sync.WaitGroup
	for _, entry := range entries {
		wg.Add(1)
		go func(entry SubscriptionEntry) {
			defer wg.Done()
			e.poll(ctx, entry, now)
		}(entry)
	}
	wg.Wait()

	e.metrics.RecordLatency("stream_tick", time.Since(started).Seconds())
}

func (e *StreamEngine) poll(ctx context.Context, entry SubscriptionEntry, now time.Time) {
	sub := entry.Subscription
	log := e.log.With(applogger.String("key", entry.Key.String()))
	defer func() {
		if r := recover(); r != nil {
			log.Error("subscription poll panicked", applogger.Any("panic", fmt.Sprint(r)))
			e.metrics.RecordPollError(string(sub.Type))
		}
	}()

	e.metrics.RecordPoll(string(sub.Type))

	q := e.pollQuery(entry.Key, now)

	if e.queryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.queryTimeout)
		defer cancel()
	}

	rows, err := e.fetch(ctx, sub, q)
	if err != nil {
		log.Error("subscription poll failed", applogger.Error(err))
		e.metrics.RecordPollError(string(sub.Type))
		return
	}
	if q.OrderDir == domrepo.Desc {
		reverse(rows)
	}

	events := make([]models.StreamEvent, 0, len(rows))
	var last, newest time.Time
	for _, row := range rows {
		if ts := row.EventTime(); ts.After(newest) {
			newest = ts
		}
		if !sub.Filters.Match(row) {
			continue
		}
		events = append(events, e.dataEvent(entry, row, now))
		last = row.EventTime()
	}
	if !e.registry.MarkScanned(entry.Key, newest) {
		if _, ok := e.registry.Get(entry.Key); !ok {
			// Unsubscribed while the query was running.
			return
		}
	}
	if len(events) == 0 {
		return
	}

	e.emit(events...)
	e.registry.Advance(entry.Key, last)
	e.metrics.RecordEvents(string(sub.Type.EventType()), len(events))
	e.metrics.RecordWatermarkLag(string(sub.Type), now.Sub(last).Seconds())
	log.Debug("subscription polled", applogger.Int("events", len(events)), applogger.Time("watermark", last))
}

// pollQuery bounds the next read for key. The very first poll of a key
// fetches only its most recent row. Later polls read everything after the
// newer of the watermark and the scan cursor, so rows dropped by filters are
// not fetched again and rows appended behind them are not skipped.
func (e *StreamEngine) pollQuery(key models.SubscriptionKey, now time.Time) domrepo.RangeQuery {
	q := domrepo.RangeQuery{End: &now, OrderDir: domrepo.Asc}
	wm, hasWM := e.registry.Watermark(key)
	cur, scanned := e.registry.Cursor(key)
	if !hasWM && !scanned {
		q.Limit = 1
		q.OrderDir = domrepo.Desc
		return q
	}

	var start time.Time
	if hasWM {
		start = wm
	}
	if cur.After(start) {
		start = cur
	}
	if !start.IsZero() {
		q.Start = &start
		q.StartExclusive = true
	}
	return q
}

func (e *StreamEngine) fetch(ctx context.Context, sub models.Subscription, q domrepo.RangeQuery) ([]models.Record, error) {
	switch sub.Type {
	case models.SubStockAggregates:
		bars, err := e.store.QueryBars(ctx, sub.Symbol, q)
		if err != nil {
			return nil, asStoreError("poll_bars", err)
		}
		return toRecords(bars), nil
	case models.SubStockTrades:
		trades, err := e.store.QueryTrades(ctx, models.AssetStock, models.TickSelector{Ticker: sub.Symbol}, q)
		if err != nil {
			return nil, asStoreError("poll_stock_trades", err)
		}
		return toRecords(trades), nil
	case models.SubOptionTrades:
		trades, err := e.store.QueryTrades(ctx, models.AssetOption, selector(sub), q)
		if err != nil {
			return nil, asStoreError("poll_option_trades", err)
		}
		return toRecords(trades), nil
	case models.SubOptionQuotes:
		quotes, err := e.store.QueryQuotes(ctx, selector(sub), q)
		if err != nil {
			return nil, asStoreError("poll_option_quotes", err)
		}
		return toRecords(quotes), nil
	default:
		return nil, fmt.Errorf("%w: unknown type %q", models.ErrInvalidSubscription, sub.Type)
	}
}

func selector(sub models.Subscription) models.TickSelector {
	return models.TickSelector{Ticker: sub.Ticker, UnderlyingTicker: sub.UnderlyingTicker}
}

func toRecords[T models.Record](rows []T) []models.Record {
	out := make([]models.Record, len(rows))
	for i, r := range rows {
		out[i] = r
	}
	return out
}

func (e *StreamEngine) dataEvent(entry SubscriptionEntry, row models.Record, now time.Time) models.StreamEvent {
	key := entry.Key
	ev := models.StreamEvent{
		Type:             entry.Subscription.Type.EventType(),
		Data:             row,
		Timestamp:        models.EventTimestamp(now),
		Symbol:           entry.Subscription.Symbol,
		UnderlyingTicker: entry.Subscription.UnderlyingTicker,
		Key:              &key,
	}
	var ticker, underlying string
	switch r := row.(type) {
	case models.Trade:
		ticker, underlying = r.Ticker, r.UnderlyingTicker
	case models.Quote:
		ticker, underlying = r.Ticker, r.UnderlyingTicker
	}
	if ev.Symbol == "" {
		ev.Symbol = ticker
	}
	if underlying != "" {
		ev.UnderlyingTicker = underlying
	}
	return ev
}

func (e *StreamEngine) controlEvent(t models.EventType, data any, key *models.SubscriptionKey) models.StreamEvent {
	ev := models.StreamEvent{Type: t, Data: data, Timestamp: models.EventTimestamp(e.now()), Key: key}
	if sub, ok := data.(models.Subscription); ok {
		ev.Symbol = sub.Symbol
		if ev.Symbol == "" {
			ev.Symbol = sub.Ticker
		}
		ev.UnderlyingTicker = sub.UnderlyingTicker
	}
	return ev
}

// emit delivers events to every listener in order. Listener panics are
// logged and do not stop delivery to the others.
func (e *StreamEngine) emit(events ...models.StreamEvent) {
	e.listenerMu.RLock()
	listeners := make([]listenerSlot, len(e.listeners))
	copy(listeners, e.listeners)
	e.listenerMu.RUnlock()
	if len(listeners) == 0 {
		return
	}

	e.dispatchMu.Lock()
	defer e.dispatchMu.Unlock()
	for _, ev := range events {
		for _, l := range listeners {
			e.deliver(l.fn, ev)
		}
	}
}

func (e *StreamEngine) deliver(fn Listener, ev models.StreamEvent) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Error("stream listener panicked",
				applogger.String("event", string(ev.Type)),
				applogger.Any("panic", fmt.Sprint(r)),
			)
			e.metrics.RecordError("stream_listener")
		}
	}()
	fn(ev)
}
