package kafka

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	applogger "BarFeed/pkg/logger"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/segmentio/kafka-go"
)

// MessageHandler handles messages from a specific topic.
type MessageHandler interface {
	Topic() string
	Handle(context.Context, []byte) error
}

// Consumer reads registered topics and feeds a worker pool. Messages of
// one partition are handled one at a time, in order.
type Consumer struct {
	cfg      *ConsumerConfig
	log      *applogger.Logger
	readers  map[string]*kafka.Reader
	handlers map[string]MessageHandler
	msgChan  chan kafka.Message
	dlq      messageWriter
	metrics  *consumerMetrics

	partMu    sync.Mutex
	partLocks map[string]map[int]*sync.Mutex

	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func NewConsumer(opts ...ConsumerOption) (*Consumer, error) {
	cfg := &ConsumerConfig{
		GroupID:     "barfeed",
		WorkerCount: 1,
		BufferSize:  64,
		RetryMax:    3,
		BackoffMin:  50 * time.Millisecond,
		BackoffMax:  2 * time.Second,
		MinBytes:    1,
		MaxBytes:    10e6,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("brokers are required")
	}

	c := newConsumer(cfg)
	if cfg.DLQTopic != "" {
		c.dlq = &kafka.Writer{Addr: kafka.TCP(cfg.Brokers...), Balancer: &kafka.LeastBytes{}}
	}
	return c, nil
}

func newConsumer(cfg *ConsumerConfig) *Consumer {
	log := cfg.Logger
	if log == nil {
		log = applogger.Nop()
	}
	return &Consumer{
		cfg:       cfg,
		log:       log.With(applogger.String("component", "kafka_consumer")),
		readers:   make(map[string]*kafka.Reader),
		handlers:  make(map[string]MessageHandler),
		msgChan:   make(chan kafka.Message, cfg.BufferSize),
		metrics:   newConsumerMetrics(cfg.Registerer),
		partLocks: make(map[string]map[int]*sync.Mutex),
		stopChan:  make(chan struct{}),
	}
}

// RegisterHandler binds handler to its topic. Must be called before Start.
func (c *Consumer) RegisterHandler(handler MessageHandler) {
	topic := handler.Topic()
	if _, ok := c.handlers[topic]; ok {
		c.log.Warn("handler already registered", applogger.String("topic", topic))
		return
	}
	c.handlers[topic] = handler
}

func (c *Consumer) Start() error {
	if len(c.handlers) == 0 {
		return errors.New("no handlers registered")
	}
	for topic := range c.handlers {
		c.readers[topic] = kafka.NewReader(kafka.ReaderConfig{
			Brokers:  c.cfg.Brokers,
			Topic:    topic,
			GroupID:  c.cfg.GroupID,
			MinBytes: c.cfg.MinBytes,
			MaxBytes: c.cfg.MaxBytes,
		})
	}

	for i := 0; i < c.cfg.WorkerCount; i++ {
		c.wg.Add(1)
		go c.worker()
	}
	for topic, reader := range c.readers {
		c.wg.Add(1)
		go c.read(topic, reader)
	}

	c.log.Info("kafka consumer started",
		applogger.Int("workers", c.cfg.WorkerCount),
		applogger.Int("topics", len(c.readers)),
	)
	return nil
}

// Stop halts reading, drains workers and closes readers. It gives up
// waiting when ctx ends.
func (c *Consumer) Stop(ctx context.Context) error {
	var stopErr error
	c.stopOnce.Do(func() {
		close(c.stopChan)

		done := make(chan struct{})
		go func() {
			c.wg.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-ctx.Done():
			stopErr = fmt.Errorf("timeout waiting for consumer to stop: %w", ctx.Err())
		}

		for topic, reader := range c.readers {
			if err := reader.Close(); err != nil {
				c.log.Warn("close reader failed", applogger.String("topic", topic), applogger.Error(err))
			}
		}
		if c.dlq != nil {
			if err := c.dlq.Close(); err != nil {
				c.log.Warn("close dlq writer failed", applogger.Error(err))
			}
		}
		if stopErr == nil {
			c.log.Info("kafka consumer stopped")
		}
	})
	return stopErr
}

func (c *Consumer) read(topic string, reader *kafka.Reader) {
	defer c.wg.Done()
	for {
		select {
		case <-c.stopChan:
			return
		default:
		}

		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		msg, err := reader.FetchMessage(ctx)
		cancel()
		if err != nil {
			if !errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, context.Canceled) {
				c.log.Warn("fetch message failed", applogger.String("topic", topic), applogger.Error(err))
			}
			continue
		}

		select {
		case c.msgChan <- msg:
			c.metrics.queueDepth.WithLabelValues(topic).Set(float64(len(c.msgChan)))
		case <-c.stopChan:
			return
		}
	}
}

func (c *Consumer) worker() {
	defer c.wg.Done()
	for {
		select {
		case <-c.stopChan:
			return
		case msg := <-c.msgChan:
			c.process(msg)
		}
	}
}

func (c *Consumer) process(msg kafka.Message) {
	handler, ok := c.handlers[msg.Topic]
	if !ok {
		return
	}
	pl := c.partitionLock(msg.Topic, msg.Partition)
	pl.Lock()
	defer pl.Unlock()

	start := time.Now()
	attempts, err := c.handle(handler, msg.Value)
	c.metrics.latency.WithLabelValues(msg.Topic).Observe(time.Since(start).Seconds())

	if err != nil {
		c.metrics.failures.WithLabelValues(msg.Topic).Inc()
		c.log.Error("message handling failed",
			applogger.String("topic", msg.Topic),
			applogger.Int("partition", msg.Partition),
			applogger.Int64("offset", msg.Offset),
			applogger.Int("attempts", attempts),
			applogger.Error(err),
		)
		c.deadLetter(msg, err)
	}

	// Failed messages are committed too; redelivering a bad command would
	// block the partition forever.
	if reader := c.readers[msg.Topic]; reader != nil {
		c.commit(reader, msg)
	}
}

// handle runs handler with exponential backoff. Permanent errors are not
// retried. It returns the number of attempts made.
func (c *Consumer) handle(handler MessageHandler, data []byte) (int, error) {
	attempts := 0
	for {
		attempts++
		err := safeHandle(handler, data)
		if err == nil || IsPermanent(err) || attempts > c.cfg.RetryMax {
			return attempts, err
		}
		select {
		case <-time.After(backoffWithJitter(c.cfg.BackoffMin, c.cfg.BackoffMax, attempts)):
		case <-c.stopChan:
			return attempts, err
		}
	}
}

func safeHandle(handler MessageHandler, data []byte) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = Permanent(fmt.Errorf("handler panic: %v", r))
		}
	}()
	return handler.Handle(context.Background(), data)
}

func (c *Consumer) deadLetter(msg kafka.Message, cause error) {
	if c.dlq == nil || c.cfg.DLQTopic == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := c.dlq.WriteMessages(ctx, kafka.Message{
		Topic: c.cfg.DLQTopic,
		Key:   msg.Key,
		Value: msg.Value,
		Time:  time.Now(),
		Headers: []kafka.Header{
			{Key: "source_topic", Value: []byte(msg.Topic)},
			{Key: "error", Value: []byte(cause.Error())},
		},
	})
	if err != nil {
		c.log.Error("dlq write failed", applogger.String("topic", c.cfg.DLQTopic), applogger.Error(err))
	}
}

func (c *Consumer) commit(reader *kafka.Reader, msg kafka.Message) {
	var err error
	for attempt := 1; attempt <= 3; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		err = reader.CommitMessages(ctx, msg)
		cancel()
		if err == nil {
			return
		}
		time.Sleep(backoffWithJitter(50*time.Millisecond, 500*time.Millisecond, attempt))
	}
	c.log.Error("commit failed", applogger.String("topic", msg.Topic), applogger.Error(err))
}

func (c *Consumer) partitionLock(topic string, partition int) *sync.Mutex {
	c.partMu.Lock()
	defer c.partMu.Unlock()
	m, ok := c.partLocks[topic]
	if !ok {
		m = make(map[int]*sync.Mutex)
		c.partLocks[topic] = m
	}
	l, ok := m[partition]
	if !ok {
		l = &sync.Mutex{}
		m[partition] = l
	}
	return l
}

func backoffWithJitter(min, max time.Duration, attempt int) time.Duration {
	if min <= 0 {
		min = 50 * time.Millisecond
	}
	if max < min {
		max = min
	}
	if attempt < 1 {
		attempt = 1
	}
	exp := max
	if attempt <= 30 {
		if d := min * time.Duration(1<<uint(attempt-1)); d > 0 && d < max {
			exp = d
		}
	}
	// up to 50% jitter
	jitter := time.Duration(rand.Int63n(int64(exp)/2 + 1))
	return exp - jitter
}

type consumerMetrics struct {
	queueDepth *prometheus.GaugeVec
	latency    *prometheus.HistogramVec
	failures   *prometheus.CounterVec
}

func newConsumerMetrics(reg prometheus.Registerer) *consumerMetrics {
	f := promauto.With(reg)
	return &consumerMetrics{
		queueDepth: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "barfeed",
			Name:      "kafka_consumer_queue_depth",
			Help:      "Messages waiting in the consumer queue.",
		}, []string{"topic"}),
		latency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "barfeed",
			Name:      "kafka_consumer_handle_seconds",
			Help:      "Handling time per message, retries included.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"topic"}),
		failures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "barfeed",
			Name:      "kafka_consumer_failures_total",
			Help:      "Messages whose handling failed after retries.",
		}, []string{"topic"}),
	}
}
