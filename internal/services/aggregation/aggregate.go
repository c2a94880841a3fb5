package aggregation

import (
	"fmt"
	"sort"
	"time"

	"BarFeed/internal/domain/models"
)

// Aggregate merges finest-granularity bars of one symbol into buckets of the
// given width. A bucket starts at its first row and absorbs every following
// row less than interval after it. The result is ascending and, when
// maxPoints > 0, holds only the most recent maxPoints buckets.
func Aggregate(rows []models.Bar, interval time.Duration, maxPoints int) ([]models.Bar, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("%w: interval must be positive, got %s", models.ErrAggregation, interval)
	}
	if len(rows) == 0 {
		return []models.Bar{}, nil
	}
	if err := checkRows(rows); err != nil {
		return nil, err
	}

	sorted := make([]models.Bar, len(rows))
	copy(sorted, rows)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})

	out := make([]models.Bar, 0, len(sorted))
	start := 0
	for i := 1; i <= len(sorted); i++ {
		if i < len(sorted) && sorted[i].Timestamp.Sub(sorted[start].Timestamp) < interval {
			continue
		}
		out = append(out, mergeBucket(sorted[start:i]))
		start = i
	}

	if maxPoints > 0 && len(out) > maxPoints {
		out = out[len(out)-maxPoints:]
	}
	return out, nil
}

// mergeBucket folds an ascending run of bars into one bar stamped with the
// first row's timestamp.
func mergeBucket(bucket []models.Bar) models.Bar {
	if len(bucket) == 1 {
		return bucket[0]
	}
	first, last := bucket[0], bucket[len(bucket)-1]
	merged := models.Bar{
		Symbol:    first.Symbol,
		Timestamp: first.Timestamp,
		Open:      first.Open,
		High:      first.High,
		Low:       first.Low,
		Close:     last.Close,
	}
	var pv float64
	for _, b := range bucket {
		if b.High > merged.High {
			merged.High = b.High
		}
		if b.Low < merged.Low {
			merged.Low = b.Low
		}
		merged.Volume += b.Volume
		merged.TransactionCount += b.TransactionCount
		pv += b.VWAP * float64(b.Volume)
	}
	merged.VWAP = weightedVWAP(pv, merged.Volume, merged.Close)
	return merged
}

// weightedVWAP falls back to close when nothing traded.
func weightedVWAP(priceVolume float64, volume int64, close float64) float64 {
	if volume == 0 {
		return close
	}
	return priceVolume / float64(volume)
}

func checkRows(rows []models.Bar) error {
	symbol := rows[0].Symbol
	for i, b := range rows {
		if b.Symbol != symbol {
			return fmt.Errorf("%w: mixed symbols %q and %q", models.ErrAggregation, symbol, b.Symbol)
		}
		if b.Volume < 0 || b.TransactionCount < 0 {
			return fmt.Errorf("%w: row %d has negative volume or transaction count", models.ErrAggregation, i)
		}
	}
	return nil
}
