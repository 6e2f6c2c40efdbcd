// Package candles aggregates equity prints into fixed-interval OHLCV bars.
package candles

import (
	"sort"

	"github.com/sawpanic/flowrun/internal/domain"
)

type bar struct {
	underlying string
	bucketTS   int64
	open       float64
	high       float64
	low        float64
	close_     float64
	volume     float64
	trades     int

	sourceTS int64
	ingestTS int64
	seq      int64
}

// Aggregator builds one open bar per underlying. Owned by the pipeline
// coordinator; not safe for concurrent use.
type Aggregator struct {
	intervalMs int64
	open       map[string]*bar
}

// NewAggregator creates a candle aggregator with the given bar interval.
func NewAggregator(intervalMs int64) *Aggregator {
	return &Aggregator{intervalMs: intervalMs, open: make(map[string]*bar)}
}

// Apply folds p into its underlying's open bar. When p starts a new bucket
// the previous bar closes and is returned.
func (a *Aggregator) Apply(p domain.EquityPrint) (domain.EquityCandle, bool) {
	bucket := p.TS - p.TS%a.intervalMs
	b, ok := a.open[p.UnderlyingID]

	var closed domain.EquityCandle
	emitted := false
	if ok && bucket > b.bucketTS {
		closed = a.finish(b)
		emitted = true
		ok = false
	}
	if !ok {
		b = &bar{
			underlying: p.UnderlyingID,
			bucketTS:   bucket,
			open:       p.Price,
			high:       p.Price,
			low:        p.Price,
			sourceTS:   p.SourceTS,
		}
		a.open[p.UnderlyingID] = b
	}
	if p.Price > b.high {
		b.high = p.Price
	}
	if p.Price < b.low {
		b.low = p.Price
	}
	b.close_ = p.Price
	b.volume += p.Size
	b.trades++
	b.ingestTS = p.IngestTS
	b.seq = p.Seq
	return closed, emitted
}

// FlushAll closes every open bar, ordered by bucket then underlying.
func (a *Aggregator) FlushAll() []domain.EquityCandle {
	bars := make([]*bar, 0, len(a.open))
	for _, b := range a.open {
		bars = append(bars, b)
	}
	sort.Slice(bars, func(i, j int) bool {
		if bars[i].bucketTS != bars[j].bucketTS {
			return bars[i].bucketTS < bars[j].bucketTS
		}
		return bars[i].underlying < bars[j].underlying
	})
	a.open = make(map[string]*bar)
	out := make([]domain.EquityCandle, 0, len(bars))
	for _, b := range bars {
		out = append(out, a.finish(b))
	}
	return out
}

func (a *Aggregator) finish(b *bar) domain.EquityCandle {
	delete(a.open, b.underlying)
	c := domain.EquityCandle{
		TS:           b.bucketTS,
		UnderlyingID: b.underlying,
		IntervalMs:   a.intervalMs,
		Open:         b.open,
		High:         b.high,
		Low:          b.low,
		Close:        b.close_,
		Volume:       b.volume,
		TradeCount:   b.trades,
	}
	c.SourceTS = b.sourceTS
	c.IngestTS = b.ingestTS
	c.Seq = b.seq
	c.TraceID = candleTraceID(b.underlying, b.bucketTS, a.intervalMs)
	return c
}
