package usecase

import (
	"sort"
	"sync"
	"time"

	"BarFeed/internal/domain/models"
)

// SubscriptionEntry pairs a registered subscription with its key.
type SubscriptionEntry struct {
	Key          models.SubscriptionKey
	Subscription models.Subscription
}

// SubscriptionRegistry holds active subscriptions, their watermarks and
// scan cursors. It is safe for concurrent use.
//
// The watermark is the last emitted timestamp. The cursor is the newest
// timestamp fetched, emitted or not, and is present once a key has been
// polled at least once (zero time when that poll found nothing).
type SubscriptionRegistry struct {
	mu         sync.RWMutex
	subs       map[models.SubscriptionKey]models.Subscription
	watermarks map[models.SubscriptionKey]time.Time
	cursors    map[models.SubscriptionKey]time.Time
}

func NewSubscriptionRegistry() *SubscriptionRegistry {
	return &SubscriptionRegistry{
		subs:       make(map[models.SubscriptionKey]models.Subscription),
		watermarks: make(map[models.SubscriptionKey]time.Time),
		cursors:    make(map[models.SubscriptionKey]time.Time),
	}
}

func (r *SubscriptionRegistry) KeyOf(sub models.Subscription) models.SubscriptionKey {
	return models.KeyOf(sub)
}

// Subscribe registers sub, or replaces the descriptor under the same key
// while keeping its watermark. created is false on replacement.
func (r *SubscriptionRegistry) Subscribe(sub models.Subscription) (key models.SubscriptionKey, created bool, err error) {
	sub = sub.Normalize()
	if err := sub.Validate(); err != nil {
		return models.SubscriptionKey{}, false, err
	}
	key = models.KeyOf(sub)

	r.mu.Lock()
	defer r.mu.Unlock()
	_, exists := r.subs[key]
	r.subs[key] = sub
	return key, !exists, nil
}

// Unsubscribe removes sub with its watermark and cursor.
func (r *SubscriptionRegistry) Unsubscribe(sub models.Subscription) (models.SubscriptionKey, bool) {
	key := models.KeyOf(sub)
	return key, r.Remove(key)
}

func (r *SubscriptionRegistry) Remove(key models.SubscriptionKey) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.subs[key]; !ok {
		return false
	}
	delete(r.subs, key)
	delete(r.watermarks, key)
	delete(r.cursors, key)
	return true
}

func (r *SubscriptionRegistry) Get(key models.SubscriptionKey) (models.Subscription, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.subs[key]
	return s, ok
}

// List returns the registered subscriptions ordered by key.
func (r *SubscriptionRegistry) List() []models.Subscription {
	entries := r.Entries()
	out := make([]models.Subscription, len(entries))
	for i, e := range entries {
		out[i] = e.Subscription
	}
	return out
}

// Entries is a snapshot of the registry ordered by key.
func (r *SubscriptionRegistry) Entries() []SubscriptionEntry {
	r.mu.RLock()
	out := make([]SubscriptionEntry, 0, len(r.subs))
	for k, s := range r.subs {
		out = append(out, SubscriptionEntry{Key: k, Subscription: s})
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Key.String() < out[j].Key.String() })
	return out
}

func (r *SubscriptionRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.subs)
}

// Watermark returns the last delivered timestamp for key, if any.
func (r *SubscriptionRegistry) Watermark(key models.SubscriptionKey) (time.Time, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ts, ok := r.watermarks[key]
	return ts, ok
}

// Advance moves the watermark of key forward to ts. It never moves it back
// and does nothing for a key that is no longer registered.
func (r *SubscriptionRegistry) Advance(key models.SubscriptionKey, ts time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.subs[key]; !ok {
		return false
	}
	if cur, ok := r.watermarks[key]; ok && !ts.After(cur) {
		return false
	}
	r.watermarks[key] = ts
	return true
}

// Cursor returns the newest fetched timestamp for key. ok is false until the
// key has been polled once.
func (r *SubscriptionRegistry) Cursor(key models.SubscriptionKey) (ts time.Time, ok bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ts, ok = r.cursors[key]
	return ts, ok
}

// MarkScanned records that key was polled and moves its cursor forward to
// ts. A zero ts only marks the key as polled. Removed keys are ignored.
func (r *SubscriptionRegistry) MarkScanned(key models.SubscriptionKey, ts time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.subs[key]; !ok {
		return false
	}
	if cur, ok := r.cursors[key]; ok && !ts.After(cur) {
		return false
	}
	r.cursors[key] = ts
	return true
}
