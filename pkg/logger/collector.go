package logger

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"os"
	"sync"
	"time"
)

// Publisher ships aggregated log batches to a topic.
type Publisher interface {
	PublishMessage(ctx context.Context, topic string, payload interface{}) error
}

type CollectionConfig struct {
	TimeInterval   time.Duration // flush interval
	CountThreshold int           // distinct entries that force a flush
	Topic          string
	Publisher      Publisher
	PublishTimeout time.Duration
}

// AggregatedLogEntry is one distinct log line and how often it repeated
// since the last flush.
type AggregatedLogEntry struct {
	Level     string                 `json:"level"`
	Message   string                 `json:"message"`
	Fields    map[string]interface{} `json:"fields"`
	Caller    string                 `json:"caller"`
	Count     int                    `json:"count"`
	FirstSeen time.Time              `json:"first_seen"`
	LastSeen  time.Time              `json:"last_seen"`
}

// LogCollector folds repeated entries together so a failing feed polled
// every second produces one record per flush instead of a flood.
type LogCollector struct {
	config  *CollectionConfig
	mu      sync.Mutex
	entries map[uint64]*AggregatedLogEntry
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func NewLogCollector(config *CollectionConfig) *LogCollector {
	if config.TimeInterval <= 0 {
		config.TimeInterval = 30 * time.Second
	}
	if config.CountThreshold <= 0 {
		config.CountThreshold = 100
	}
	if config.PublishTimeout <= 0 {
		config.PublishTimeout = 10 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	c := &LogCollector{
		config:  config,
		entries: make(map[uint64]*AggregatedLogEntry),
		ctx:     ctx,
		cancel:  cancel,
	}
	c.wg.Add(1)
	go c.loop()
	return c
}

func (c *LogCollector) AddLog(level, message string, fields map[string]interface{}, caller string) {
	now := time.Now()
	key := entryKey(level, message, fields, caller)

	c.mu.Lock()
	if e, ok := c.entries[key]; ok {
		e.Count++
		e.LastSeen = now
	} else {
		c.entries[key] = &AggregatedLogEntry{
			Level:     level,
			Message:   message,
			Fields:    fields,
			Caller:    caller,
			Count:     1,
			FirstSeen: now,
			LastSeen:  now,
		}
	}
	var batch []AggregatedLogEntry
	if len(c.entries) >= c.config.CountThreshold {
		batch = c.drainLocked()
	}
	c.mu.Unlock()

	if batch != nil {
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			c.publish(batch)
		}()
	}
}

func entryKey(level, message string, fields map[string]interface{}, caller string) uint64 {
	// json.Marshal sorts map keys, so equal field sets hash equally.
	raw, _ := json.Marshal(fields)
	h := fnv.New64a()
	fmt.Fprintf(h, "%s\x00%s\x00%s\x00", level, message, caller)
	h.Write(raw)
	return h.Sum64()
}

func (c *LogCollector) loop() {
	defer c.wg.Done()
	ticker := time.NewTicker(c.config.TimeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.Flush()
		case <-c.ctx.Done():
			c.Flush()
			return
		}
	}
}

// Flush publishes everything collected so far and waits for the publisher.
func (c *LogCollector) Flush() {
	c.mu.Lock()
	batch := c.drainLocked()
	c.mu.Unlock()
	if batch != nil {
		c.publish(batch)
	}
}

func (c *LogCollector) drainLocked() []AggregatedLogEntry {
	if len(c.entries) == 0 {
		return nil
	}
	batch := make([]AggregatedLogEntry, 0, len(c.entries))
	for _, e := range c.entries {
		batch = append(batch, *e)
	}
	c.entries = make(map[uint64]*AggregatedLogEntry)
	return batch
}

func (c *LogCollector) publish(batch []AggregatedLogEntry) {
	if c.config.Publisher == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), c.config.PublishTimeout)
	defer cancel()
	if err := c.config.Publisher.PublishMessage(ctx, c.config.Topic, batch); err != nil {
		fmt.Fprintf(os.Stderr, "failed to publish aggregated logs: %v\n", err)
	}
}

// Close stops the flush loop after a final flush.
func (c *LogCollector) Close() {
	c.cancel()
	c.wg.Wait()
}
