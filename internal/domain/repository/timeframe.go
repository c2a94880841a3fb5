package repository

import (
	"strconv"
	"time"
)

// AggregationInterval is a candle width in minutes.
type AggregationInterval int

const (
	Interval1m  AggregationInterval = 1
	Interval15m AggregationInterval = 15
	Interval30m AggregationInterval = 30
	Interval1h  AggregationInterval = 60
	Interval2h  AggregationInterval = 120
	Interval4h  AggregationInterval = 240
	Interval1d  AggregationInterval = 1440
)

// FinestInterval is the granularity rows are stored at.
const FinestInterval = Interval1m

// IsValidInterval returns true if iv is a supported interval.
func IsValidInterval(iv AggregationInterval) bool {
	switch iv {
	case Interval1m, Interval15m, Interval30m, Interval1h, Interval2h, Interval4h, Interval1d:
		return true
	default:
		return false
	}
}

// DefaultInterval returns the default interval.
func DefaultInterval() AggregationInterval { return FinestInterval }

// Duration is the bucket width.
func (iv AggregationInterval) Duration() time.Duration {
	return time.Duration(iv) * time.Minute
}

// RowsPerBucket is how many finest-granularity rows fill one bucket.
func (iv AggregationInterval) RowsPerBucket() int {
	if iv <= FinestInterval {
		return 1
	}
	return int(iv / FinestInterval)
}

func (iv AggregationInterval) String() string {
	switch {
	case iv >= Interval1d && iv%Interval1d == 0:
		return strconv.Itoa(int(iv/Interval1d)) + "d"
	case iv >= Interval1h && iv%Interval1h == 0:
		return strconv.Itoa(int(iv/Interval1h)) + "h"
	default:
		return strconv.Itoa(int(iv)) + "m"
	}
}
