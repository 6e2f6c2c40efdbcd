// Package dark joins equity prints to the latest equity quote and infers
// off-exchange activity: absorbed blocks, stealth accumulation and
// distribution. State is owned by the pipeline coordinator.
package dark

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/sawpanic/flowrun/internal/domain"
	"github.com/sawpanic/flowrun/internal/domain/placement"
	"github.com/sawpanic/flowrun/internal/quotes"
)

// Config holds the inference thresholds.
type Config struct {
	MinBlockSize float64 // absorbed_block minimum print size
	MinPrintSize float64 // aggressive-print window minimum size
	MinCount     int     // accumulation/distribution minimum print count
	MinSize      float64 // accumulation/distribution minimum cumulative size
	WindowMs     int64   // sliding window over off-exchange aggressive prints
	CooldownMs   int64   // per-(underlying,type) re-emission suppression
	MaxSpreadPct float64 // quote-quality gate: spread/mid ceiling
	MaxEvidence  int     // evidence refs carried by aggregate rules
}

type flowPrint struct {
	ts     int64
	size   float64
	joinID string
}

type flowWindow struct {
	buys  []flowPrint
	sells []flowPrint
}

// Engine runs the join and the inference rules.
type Engine struct {
	cfg     Config
	book    *quotes.EquityBook
	windows map[string]*flowWindow
	last    map[string]int64 // (underlying|type) -> last emission ts
	newID   func() string
}

// NewEngine creates a dark-inference engine reading quotes from book.
func NewEngine(cfg Config, book *quotes.EquityBook) *Engine {
	return &Engine{
		cfg:     cfg,
		book:    book,
		windows: make(map[string]*flowWindow),
		last:    make(map[string]int64),
		newID:   func() string { return "equityjoin:" + uuid.NewString() },
	}
}

// Process joins p against the quote cache and evaluates the inference rules.
// The join is always returned; dark events only when a rule fires outside
// its cooldown.
func (e *Engine) Process(p domain.EquityPrint) (domain.EquityPrintJoin, []domain.InferredDark) {
	q, l := e.book.Lookup(p.UnderlyingID, p.TS)

	join := domain.EquityPrintJoin{
		ID:           e.newID(),
		TS:           p.TS,
		UnderlyingID: p.UnderlyingID,
		Price:        p.Price,
		Size:         p.Size,
		OffExchange:  p.OffExchange,
	}
	join.SourceTS = p.SourceTS
	join.IngestTS = p.IngestTS
	join.Seq = p.Seq
	join.TraceID = join.ID

	pl := placement.Classify(p.Price, placement.Quote{
		Bid:     q.Bid,
		Ask:     q.Ask,
		Stale:   l.Stale,
		Missing: !l.OK,
	})
	join.Placement = string(pl)

	var mid, spread float64
	fresh := l.OK && !l.Stale
	if !l.OK {
		join.QuoteMissing = true
	} else {
		join.QuoteAgeMs = l.AgeMs
		join.QuoteStale = l.Stale
		if fresh {
			mid = (q.Bid + q.Ask) / 2
			spread = q.Ask - q.Bid
			if spread < 0 {
				spread = 0
			}
			join.Bid = q.Bid
			join.Ask = q.Ask
			join.Mid = mid
			join.Spread = spread
		}
	}

	if !fresh || mid <= 0 {
		return join, nil
	}
	spreadPct := spread / mid
	if spreadPct > e.cfg.MaxSpreadPct {
		return join, nil
	}

	var events []domain.InferredDark

	if p.OffExchange && pl == placement.Mid && p.Size >= e.cfg.MinBlockSize {
		conf := clip01(0.35 +
			0.45*min1(p.Size/(2*e.cfg.MinBlockSize)) +
			0.20*(1-spreadPct/e.cfg.MaxSpreadPct))
		if ev, ok := e.emit(p, domain.DarkAbsorbedBlock, conf, []string{join.ID}); ok {
			events = append(events, ev)
		}
	}

	w := e.windows[p.UnderlyingID]
	if w == nil {
		w = &flowWindow{}
		e.windows[p.UnderlyingID] = w
	}
	if p.OffExchange && p.Size >= e.cfg.MinPrintSize {
		fp := flowPrint{ts: p.TS, size: p.Size, joinID: join.ID}
		switch {
		case placement.BuySide(pl):
			w.buys = append(w.buys, fp)
		case placement.SellSide(pl):
			w.sells = append(w.sells, fp)
		}
	}
	w.buys = trim(w.buys, p.TS-e.cfg.WindowMs)
	w.sells = trim(w.sells, p.TS-e.cfg.WindowMs)

	if count, size := tally(w.buys); count >= e.cfg.MinCount && size >= e.cfg.MinSize {
		conf := aggregateConfidence(count, size, e.cfg)
		if ev, ok := e.emit(p, domain.DarkStealthAccumulation, conf, lastIDs(w.buys, e.cfg.MaxEvidence)); ok {
			events = append(events, ev)
		}
	}
	if count, size := tally(w.sells); count >= e.cfg.MinCount && size >= e.cfg.MinSize {
		conf := aggregateConfidence(count, size, e.cfg)
		if ev, ok := e.emit(p, domain.DarkDistribution, conf, lastIDs(w.sells, e.cfg.MaxEvidence)); ok {
			events = append(events, ev)
		}
	}
	return join, events
}

func (e *Engine) emit(p domain.EquityPrint, kind string, confidence float64, evidence []string) (domain.InferredDark, bool) {
	key := p.UnderlyingID + "|" + kind
	if last, ok := e.last[key]; ok && p.TS-last < e.cfg.CooldownMs {
		return domain.InferredDark{}, false
	}
	e.last[key] = p.TS

	ev := domain.InferredDark{
		Type:         kind,
		UnderlyingID: p.UnderlyingID,
		Confidence:   confidence,
		EvidenceRefs: evidence,
	}
	ev.SourceTS = p.SourceTS
	ev.IngestTS = p.IngestTS
	ev.Seq = p.Seq
	ev.TraceID = fmt.Sprintf("inferreddark:%s:%s:%d", kind, p.UnderlyingID, p.TS)
	return ev, true
}

func aggregateConfidence(count int, size float64, cfg Config) float64 {
	return clip01(0.30 +
		0.40*min1(float64(count)/(2*float64(cfg.MinCount))) +
		0.30*min1(size/(2*cfg.MinSize)))
}

func trim(prints []flowPrint, cutoff int64) []flowPrint {
	i := 0
	for i < len(prints) && prints[i].ts < cutoff {
		i++
	}
	return prints[i:]
}

func tally(prints []flowPrint) (int, float64) {
	var size float64
	for _, p := range prints {
		size += p.size
	}
	return len(prints), size
}

func lastIDs(prints []flowPrint, max int) []string {
	start := 0
	if len(prints) > max {
		start = len(prints) - max
	}
	ids := make([]string, 0, len(prints)-start)
	for _, p := range prints[start:] {
		ids = append(ids, p.joinID)
	}
	return ids
}

func clip01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func min1(v float64) float64 {
	if v > 1 {
		return 1
	}
	return v
}
