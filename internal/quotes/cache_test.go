package quotes

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sawpanic/flowrun/internal/domain"
)

func nbbo(contractID string, ts, seq int64, bid, ask float64) domain.OptionNBBO {
	q := domain.OptionNBBO{TS: ts, ContractID: contractID, Bid: bid, Ask: ask}
	q.Seq = seq
	return q
}

func TestOptionBookAbsorbSupersession(t *testing.T) {
	b := NewOptionBook(5000)

	assert.True(t, b.Absorb(nbbo("C1", 1000, 1, 0.99, 1.02)))

	// Older ts loses regardless of seq.
	assert.False(t, b.Absorb(nbbo("C1", 900, 99, 0.50, 0.60)))

	// Same ts, lower seq loses; same ts, equal or higher seq wins.
	assert.False(t, b.Absorb(nbbo("C1", 1000, 0, 0.50, 0.60)))
	assert.True(t, b.Absorb(nbbo("C1", 1000, 1, 0.98, 1.01)))
	assert.True(t, b.Absorb(nbbo("C1", 1000, 2, 0.97, 1.00)))

	q, l := b.Lookup("C1", 1000)
	assert.True(t, l.OK)
	assert.Equal(t, 0.97, q.Bid)
}

func TestOptionBookFreshness(t *testing.T) {
	b := NewOptionBook(5000)
	b.Absorb(nbbo("C1", 10_000, 1, 0.99, 1.02))

	_, l := b.Lookup("C1", 14_000)
	assert.True(t, l.OK)
	assert.False(t, l.Stale)
	assert.Equal(t, int64(4000), l.AgeMs)

	_, l = b.Lookup("C1", 15_001)
	assert.True(t, l.OK)
	assert.True(t, l.Stale)

	// Quote from the future counts by absolute age.
	_, l = b.Lookup("C1", 5_000)
	assert.True(t, l.Stale)
	assert.Equal(t, int64(5000), l.AgeMs)
}

func TestOptionBookMissing(t *testing.T) {
	b := NewOptionBook(5000)
	_, l := b.Lookup("NOPE", 1000)
	assert.False(t, l.OK)
	assert.Equal(t, 0, b.Len())
}

func TestEquityBookAbsorbAndLookup(t *testing.T) {
	b := NewEquityBook(5000)

	q1 := domain.EquityQuote{TS: 1000, UnderlyingID: "AAPL", Bid: 199.98, Ask: 200.02}
	q1.Seq = 1
	assert.True(t, b.Absorb(q1))

	stale := domain.EquityQuote{TS: 500, UnderlyingID: "AAPL", Bid: 1, Ask: 2}
	stale.Seq = 2
	assert.False(t, b.Absorb(stale))

	got, l := b.Lookup("AAPL", 2000)
	assert.True(t, l.OK)
	assert.False(t, l.Stale)
	assert.Equal(t, 199.98, got.Bid)
	assert.Equal(t, 1, b.Len())
}
