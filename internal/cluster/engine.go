// Package cluster groups rapid bursts of option prints on the same contract
// into time-windowed clusters. The engine is owned exclusively by the
// pipeline coordinator; it is not safe for concurrent use.
package cluster

import (
	"sort"

	"github.com/rs/zerolog/log"

	"github.com/sawpanic/flowrun/internal/domain"
	"github.com/sawpanic/flowrun/internal/domain/placement"
	"github.com/sawpanic/flowrun/internal/quotes"
)

// Placements counts members per placement bucket.
type Placements struct {
	AA      int `json:"aa"`
	A       int `json:"a"`
	B       int `json:"b"`
	BB      int `json:"bb"`
	Mid     int `json:"mid"`
	Missing int `json:"missing"`
	Stale   int `json:"stale"`
}

// Add increments the counter for b.
func (p *Placements) Add(b placement.Bucket) {
	switch b {
	case placement.AboveAsk:
		p.AA++
	case placement.AtAsk:
		p.A++
	case placement.AtBid:
		p.B++
	case placement.BelowBid:
		p.BB++
	case placement.Mid:
		p.Mid++
	case placement.Stale:
		p.Stale++
	default:
		p.Missing++
	}
}

// Covered returns the count of members with a usable placement.
func (p Placements) Covered() int { return p.AA + p.A + p.B + p.BB + p.Mid }

// Aggressive returns the count of non-mid classified members.
func (p Placements) Aggressive() int { return p.AA + p.A + p.B + p.BB }

// Total returns the count across every bucket.
func (p Placements) Total() int { return p.Covered() + p.Missing + p.Stale }

// Cluster is the transient accumulation for one contract. It is created on
// the first print, mutated only by the engine, and destroyed on flush.
type Cluster struct {
	ContractID    string
	StartTS       int64
	EndTS         int64
	Members       []string // trace ids, first-seen order
	TotalSize     float64
	TotalPremium  float64 // sum of price*size
	FirstPrice    float64
	LastPrice     float64
	Placements    Placements
	StartSourceTS int64
	EndIngestTS   int64
	EndSeq        int64
}

// FlushFunc receives a closed cluster. The engine has already removed it
// from the live map when the callback runs.
type FlushFunc func(c *Cluster)

// Engine holds the live cluster map and the window bound.
type Engine struct {
	windowMs int64
	book     *quotes.OptionBook
	onFlush  FlushFunc
	clusters map[string]*Cluster
}

// NewEngine creates a cluster engine with window windowMs, classifying each
// print's placement against book.
func NewEngine(windowMs int64, book *quotes.OptionBook, onFlush FlushFunc) *Engine {
	return &Engine{
		windowMs: windowMs,
		book:     book,
		onFlush:  onFlush,
		clusters: make(map[string]*Cluster),
	}
}

// Open returns the number of live clusters.
func (e *Engine) Open() int { return len(e.clusters) }

// OpenClusters returns the live clusters, excluding the one for skipID.
// Callers must not mutate the results.
func (e *Engine) OpenClusters(skipID string) []*Cluster {
	out := make([]*Cluster, 0, len(e.clusters))
	for id, c := range e.clusters {
		if id == skipID {
			continue
		}
		out = append(out, c)
	}
	return out
}

// Ingest processes one option print. Clusters on other contracts whose
// window has lapsed relative to p.TS flush first, so their packets always
// carry end timestamps strictly below p.TS. Same-contract prints must arrive
// in order.
func (e *Engine) Ingest(p domain.OptionPrint) {
	e.flushLapsed(p.TS, p.ContractID)

	c, ok := e.clusters[p.ContractID]
	if ok && p.TS-c.StartTS > e.windowMs {
		// Stale cluster on the same contract: close it and start over.
		delete(e.clusters, p.ContractID)
		e.flush(c)
		ok = false
	}
	if !ok {
		c = &Cluster{
			ContractID:    p.ContractID,
			StartTS:       p.TS,
			EndTS:         p.TS,
			FirstPrice:    p.Price,
			LastPrice:     p.Price,
			StartSourceTS: p.SourceTS,
			EndIngestTS:   p.IngestTS,
			EndSeq:        p.Seq,
		}
		e.clusters[p.ContractID] = c
	}

	if p.TS > c.EndTS {
		c.EndTS = p.TS
	}
	if p.IngestTS > c.EndIngestTS {
		c.EndIngestTS = p.IngestTS
	}
	if p.Seq > c.EndSeq {
		c.EndSeq = p.Seq
	}
	c.Members = append(c.Members, p.TraceID)
	c.TotalSize += p.Size
	c.TotalPremium += p.Price * p.Size
	c.LastPrice = p.Price

	q, l := e.book.Lookup(p.ContractID, p.TS)
	c.Placements.Add(placement.Classify(p.Price, placement.Quote{
		Bid:     q.Bid,
		Ask:     q.Ask,
		Stale:   l.Stale,
		Missing: !l.OK,
	}))
}

// FlushAll closes every live cluster, oldest end first. Called on shutdown.
func (e *Engine) FlushAll() {
	open := make([]*Cluster, 0, len(e.clusters))
	for _, c := range e.clusters {
		open = append(open, c)
	}
	sort.Slice(open, func(i, j int) bool {
		if open[i].EndTS != open[j].EndTS {
			return open[i].EndTS < open[j].EndTS
		}
		return open[i].ContractID < open[j].ContractID
	})
	e.clusters = make(map[string]*Cluster)
	for _, c := range open {
		e.flush(c)
	}
}

// flushLapsed closes every cluster except keepID whose window has lapsed
// relative to ts. Deterministic order keeps replays byte-identical.
func (e *Engine) flushLapsed(ts int64, keepID string) {
	var lapsed []*Cluster
	for id, c := range e.clusters {
		if id == keepID {
			continue
		}
		if ts-c.EndTS > e.windowMs {
			lapsed = append(lapsed, c)
		}
	}
	sort.Slice(lapsed, func(i, j int) bool {
		if lapsed[i].EndTS != lapsed[j].EndTS {
			return lapsed[i].EndTS < lapsed[j].EndTS
		}
		return lapsed[i].ContractID < lapsed[j].ContractID
	})
	for _, c := range lapsed {
		delete(e.clusters, c.ContractID)
		e.flush(c)
	}
}

func (e *Engine) flush(c *Cluster) {
	if c.EndTS-c.StartTS > e.windowMs {
		log.Error().
			Str("contract_id", c.ContractID).
			Int64("start_ts", c.StartTS).
			Int64("end_ts", c.EndTS).
			Int64("window_ms", e.windowMs).
			Msg("dropping cluster with violated window bounds")
		return
	}
	e.onFlush(c)
}
