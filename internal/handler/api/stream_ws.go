package api

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"BarFeed/internal/domain/models"
	domrepo "BarFeed/internal/domain/repository"
	"BarFeed/internal/usecase"
	applogger "BarFeed/pkg/logger"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

const maxFrameSize = 64 * 1024

// EventSource is the engine as seen by the hub.
type EventSource interface {
	usecase.SubscriptionController
	AddListener(fn usecase.Listener) (remove func())
}

type HubOption func(*Hub)

// WithSendBuffer sets how many frames may queue per connection before the
// connection is dropped.
func WithSendBuffer(n int) HubOption {
	return func(h *Hub) {
		if n > 0 {
			h.sendBuf = n
		}
	}
}

func WithWriteTimeout(d time.Duration) HubOption {
	return func(h *Hub) {
		if d > 0 {
			h.writeWait = d
		}
	}
}

func WithPingInterval(d time.Duration) HubOption {
	return func(h *Hub) {
		if d > 0 {
			h.pingPeriod = d
		}
	}
}

// WithAllowedOrigins restricts upgrades to the given origins. "*" or no
// origins allow all.
func WithAllowedOrigins(origins []string) HubOption {
	return func(h *Hub) {
		allowed := make(map[string]bool, len(origins))
		for _, o := range origins {
			if o == "*" {
				return
			}
			allowed[o] = true
		}
		if len(allowed) == 0 {
			return
		}
		h.upgrader.CheckOrigin = func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || allowed[origin]
		}
	}
}

// Hub fans engine events out to WebSocket connections. A connection gets
// control events and the events of keys it subscribed to. Subscriptions
// made through the hub are reference counted across connections and
// removed from the engine when the last holder leaves.
type Hub struct {
	src      EventSource
	metrics  domrepo.Metrics
	log      *applogger.Logger
	upgrader websocket.Upgrader

	sendBuf    int
	writeWait  time.Duration
	pingPeriod time.Duration

	mu      sync.Mutex
	clients map[*wsClient]struct{}
	refs    map[models.SubscriptionKey]int
	remove  func()
}

type wsClient struct {
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	keys   map[models.SubscriptionKey]struct{}
	closed bool
}

func NewHub(src EventSource, metrics domrepo.Metrics, log *applogger.Logger, opts ...HubOption) *Hub {
	if metrics == nil {
		metrics = domrepo.NopMetrics{}
	}
	if log == nil {
		log = applogger.Nop()
	}
	h := &Hub{
		src:     src,
		metrics: metrics,
		log:     log.With(applogger.String("component", "ws_hub")),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		sendBuf:    256,
		writeWait:  10 * time.Second,
		pingPeriod: 30 * time.Second,
		clients:    make(map[*wsClient]struct{}),
		refs:       make(map[models.SubscriptionKey]int),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.remove = src.AddListener(h.dispatch)
	return h
}

// Serve upgrades the request and runs the connection until it closes.
func (h *Hub) Serve(c echo.Context) error {
	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", applogger.Error(err))
		return nil
	}
	cl := &wsClient{
		hub:  h,
		conn: conn,
		send: make(chan []byte, h.sendBuf),
		keys: make(map[models.SubscriptionKey]struct{}),
	}
	h.mu.Lock()
	h.clients[cl] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	h.log.Debug("websocket connected", applogger.String("remote", c.RealIP()), applogger.Int("clients", n))

	go cl.writePump()
	cl.readPump()
	return nil
}

// Clients is the number of open connections.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close detaches from the engine and closes every connection.
func (h *Hub) Close() {
	if h.remove != nil {
		h.remove()
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for cl := range h.clients {
		h.dropLocked(cl)
	}
}

func (h *Hub) dispatch(ev models.StreamEvent) {
	var frame []byte
	h.mu.Lock()
	defer h.mu.Unlock()
	for cl := range h.clients {
		if cl.closed {
			continue
		}
		if ev.Key != nil {
			if _, ok := cl.keys[*ev.Key]; !ok {
				continue
			}
		}
		if frame == nil {
			b, err := json.Marshal(ev)
			if err != nil {
				h.log.Error("encode stream event failed", applogger.String("type", string(ev.Type)), applogger.Error(err))
				return
			}
			frame = b
		}
		select {
		case cl.send <- frame:
		default:
			h.log.Warn("dropping slow websocket client", applogger.Int("buffer", cap(cl.send)))
			h.metrics.RecordError("ws_slow_client")
			h.dropLocked(cl)
		}
	}
}

// dropLocked closes cl's send queue; the write pump then closes the socket.
// Subscriptions are released by unregister once the read pump ends.
func (h *Hub) dropLocked(cl *wsClient) {
	if cl.closed {
		return
	}
	cl.closed = true
	close(cl.send)
}

func (h *Hub) unregister(cl *wsClient) {
	h.mu.Lock()
	h.dropLocked(cl)
	delete(h.clients, cl)
	var orphaned []models.SubscriptionKey
	for k := range cl.keys {
		if h.releaseLocked(cl, k) {
			orphaned = append(orphaned, k)
		}
	}
	h.mu.Unlock()

	for _, k := range orphaned {
		h.src.Unsubscribe(subscriptionOf(k))
	}
}

// acquire marks key as held by cl.
func (h *Hub) acquire(cl *wsClient, key models.SubscriptionKey) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := cl.keys[key]; ok {
		return
	}
	cl.keys[key] = struct{}{}
	h.refs[key]++
}

// releaseLocked drops cl's hold on key and reports whether it was the last.
func (h *Hub) releaseLocked(cl *wsClient, key models.SubscriptionKey) bool {
	if _, ok := cl.keys[key]; !ok {
		return false
	}
	delete(cl.keys, key)
	h.refs[key]--
	if h.refs[key] > 0 {
		return false
	}
	delete(h.refs, key)
	return true
}

func (h *Hub) holds(cl *wsClient, key models.SubscriptionKey) (held, last bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, held = cl.keys[key]
	return held, held && h.refs[key] == 1
}

func (h *Hub) handleFrame(cl *wsClient, msg []byte) {
	var cmd usecase.SubscriptionCommand
	if err := json.Unmarshal(msg, &cmd); err != nil {
		cl.direct(models.EventError, map[string]string{"message": "invalid command: " + err.Error()})
		return
	}
	sub := cmd.Subscription.Normalize()
	key := models.KeyOf(sub)

	switch strings.ToLower(strings.TrimSpace(cmd.Action)) {
	case usecase.ActionSubscribe:
		if err := sub.Validate(); err != nil {
			cl.direct(models.EventError, map[string]string{"message": err.Error()})
			return
		}
		// Hold the key first so the confirmation reaches this connection.
		h.acquire(cl, key)
		if _, err := h.src.Subscribe(sub); err != nil {
			h.mu.Lock()
			h.releaseLocked(cl, key)
			h.mu.Unlock()
			cl.direct(models.EventError, map[string]string{"message": err.Error()})
		}
	case usecase.ActionUnsubscribe:
		held, last := h.holds(cl, key)
		if !held {
			cl.direct(models.EventError, map[string]string{"message": "not subscribed: " + key.String()})
			return
		}
		if last {
			h.src.Unsubscribe(sub)
		} else {
			cl.direct(models.EventUnsubscriptionConfirmed, sub)
		}
		h.mu.Lock()
		h.releaseLocked(cl, key)
		h.mu.Unlock()
	default:
		cl.direct(models.EventError, map[string]string{"message": "unsupported action " + cmd.Action})
	}
}

// direct queues an event for this connection only.
func (cl *wsClient) direct(t models.EventType, data any) {
	ev := models.StreamEvent{Type: t, Data: data, Timestamp: models.EventTimestamp(time.Now())}
	if sub, ok := data.(models.Subscription); ok {
		ev.Symbol = sub.Symbol
		ev.UnderlyingTicker = sub.UnderlyingTicker
	}
	b, err := json.Marshal(ev)
	if err != nil {
		return
	}
	cl.hub.mu.Lock()
	defer cl.hub.mu.Unlock()
	if cl.closed {
		return
	}
	select {
	case cl.send <- b:
	default:
		cl.hub.dropLocked(cl)
	}
}

func (cl *wsClient) readPump() {
	h := cl.hub
	defer func() {
		h.unregister(cl)
		_ = cl.conn.Close()
	}()

	pongWait := 2 * h.pingPeriod
	cl.conn.SetReadLimit(maxFrameSize)
	_ = cl.conn.SetReadDeadline(time.Now().Add(pongWait))
	cl.conn.SetPongHandler(func(string) error {
		return cl.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, msg, err := cl.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				h.log.Debug("websocket read failed", applogger.Error(err))
			}
			return
		}
		h.handleFrame(cl, msg)
	}
}

func (cl *wsClient) writePump() {
	h := cl.hub
	ticker := time.NewTicker(h.pingPeriod)
	defer func() {
		ticker.Stop()
		_ = cl.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-cl.send:
			_ = cl.conn.SetWriteDeadline(time.Now().Add(h.writeWait))
			if !ok {
				_ = cl.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := cl.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			_ = cl.conn.SetWriteDeadline(time.Now().Add(h.writeWait))
			if err := cl.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func subscriptionOf(k models.SubscriptionKey) models.Subscription {
	return models.Subscription{
		Type:             k.Type,
		Symbol:           k.Symbol,
		Ticker:           k.Ticker,
		UnderlyingTicker: k.UnderlyingTicker,
	}
}
