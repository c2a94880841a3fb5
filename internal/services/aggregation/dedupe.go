package aggregation

import "BarFeed/internal/domain/models"

// Dedupe collapses bars sharing an exact timestamp. Open comes from the first
// row seen, close from the last, and the output keeps first-occurrence order.
func Dedupe(rows []models.Bar) []models.Bar {
	if len(rows) == 0 {
		return []models.Bar{}
	}

	type group struct {
		bar models.Bar
		pv  float64
		n   int
	}
	index := make(map[int64]int, len(rows))
	groups := make([]group, 0, len(rows))

	for _, b := range rows {
		key := b.Timestamp.UnixNano()
		i, ok := index[key]
		if !ok {
			index[key] = len(groups)
			groups = append(groups, group{bar: b, pv: b.VWAP * float64(b.Volume), n: 1})
			continue
		}
		g := &groups[i]
		if b.High > g.bar.High {
			g.bar.High = b.High
		}
		if b.Low < g.bar.Low {
			g.bar.Low = b.Low
		}
		g.bar.Close = b.Close
		g.bar.Volume += b.Volume
		g.bar.TransactionCount += b.TransactionCount
		g.pv += b.VWAP * float64(b.Volume)
		g.n++
	}

	out := make([]models.Bar, len(groups))
	for i, g := range groups {
		if g.n > 1 {
			g.bar.VWAP = weightedVWAP(g.pv, g.bar.Volume, g.bar.Close)
		}
		out[i] = g.bar
	}
	return out
}
