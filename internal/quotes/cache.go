// Package quotes holds the latest-quote caches for option contracts and
// underlyings. Both caches are process-wide shared state: concurrent reads,
// exclusive writes by the stream worker that owns them.
package quotes

import (
	"sync"

	"github.com/sawpanic/flowrun/internal/domain"
)

// Lookup is the freshness judgment attached to a cache read.
type Lookup struct {
	OK    bool  // a quote exists for the key
	AgeMs int64 // |atTs - quote.ts|
	Stale bool  // AgeMs > max age
}

func judge(quoteTS, atTS, maxAgeMs int64) Lookup {
	age := atTS - quoteTS
	if age < 0 {
		age = -age
	}
	return Lookup{OK: true, AgeMs: age, Stale: age > maxAgeMs}
}

// supersedes reports whether (ts,seq) is at or beyond (oldTS,oldSeq).
func supersedes(ts, seq, oldTS, oldSeq int64) bool {
	if ts != oldTS {
		return ts > oldTS
	}
	return seq >= oldSeq
}

// OptionBook caches the latest NBBO per option contract.
type OptionBook struct {
	mu       sync.RWMutex
	maxAgeMs int64
	quotes   map[string]domain.OptionNBBO
}

// NewOptionBook creates an NBBO cache with the given freshness horizon.
func NewOptionBook(maxAgeMs int64) *OptionBook {
	return &OptionBook{maxAgeMs: maxAgeMs, quotes: make(map[string]domain.OptionNBBO)}
}

// Absorb stores q if its (ts,seq) is at or beyond the cached quote's.
// It reports whether the cache changed.
func (b *OptionBook) Absorb(q domain.OptionNBBO) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	old, ok := b.quotes[q.ContractID]
	if ok && !supersedes(q.TS, q.Seq, old.TS, old.Seq) {
		return false
	}
	b.quotes[q.ContractID] = q
	return true
}

// Lookup returns the cached NBBO for contractID with freshness judged
// against atTS.
func (b *OptionBook) Lookup(contractID string, atTS int64) (domain.OptionNBBO, Lookup) {
	b.mu.RLock()
	q, ok := b.quotes[contractID]
	b.mu.RUnlock()
	if !ok {
		return domain.OptionNBBO{}, Lookup{}
	}
	return q, judge(q.TS, atTS, b.maxAgeMs)
}

// Len returns the number of cached contracts.
func (b *OptionBook) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.quotes)
}

// EquityBook caches the latest quote per underlying.
type EquityBook struct {
	mu       sync.RWMutex
	maxAgeMs int64
	quotes   map[string]domain.EquityQuote
}

// NewEquityBook creates an equity quote cache with the given freshness horizon.
func NewEquityBook(maxAgeMs int64) *EquityBook {
	return &EquityBook{maxAgeMs: maxAgeMs, quotes: make(map[string]domain.EquityQuote)}
}

// Absorb stores q if its (ts,seq) is at or beyond the cached quote's.
func (b *EquityBook) Absorb(q domain.EquityQuote) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	old, ok := b.quotes[q.UnderlyingID]
	if ok && !supersedes(q.TS, q.Seq, old.TS, old.Seq) {
		return false
	}
	b.quotes[q.UnderlyingID] = q
	return true
}

// Lookup returns the cached quote for underlyingID judged against atTS.
func (b *EquityBook) Lookup(underlyingID string, atTS int64) (domain.EquityQuote, Lookup) {
	b.mu.RLock()
	q, ok := b.quotes[underlyingID]
	b.mu.RUnlock()
	if !ok {
		return domain.EquityQuote{}, Lookup{}
	}
	return q, judge(q.TS, atTS, b.maxAgeMs)
}

// Len returns the number of cached underlyings.
func (b *EquityBook) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.quotes)
}
