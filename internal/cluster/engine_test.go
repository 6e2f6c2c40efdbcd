package cluster

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/flowrun/internal/domain"
	"github.com/sawpanic/flowrun/internal/quotes"
)

func print(contractID string, ts, seq int64, price, size float64) domain.OptionPrint {
	p := domain.OptionPrint{TS: ts, ContractID: contractID, Price: price, Size: size}
	p.SourceTS = ts
	p.IngestTS = ts + 1
	p.Seq = seq
	p.TraceID = contractID + "-" + string(rune('a'+seq))
	return p
}

func collector() (*[]*Cluster, FlushFunc) {
	var flushed []*Cluster
	return &flushed, func(c *Cluster) { flushed = append(flushed, c) }
}

func TestIngestAccumulatesWithinWindow(t *testing.T) {
	flushed, onFlush := collector()
	e := NewEngine(500, quotes.NewOptionBook(5000), onFlush)

	e.Ingest(print("C1", 1000, 1, 1.00, 10))
	e.Ingest(print("C1", 1200, 2, 1.10, 20))
	e.Ingest(print("C1", 1400, 3, 1.20, 5))

	assert.Empty(t, *flushed)
	assert.Equal(t, 1, e.Open())

	e.FlushAll()
	require.Len(t, *flushed, 1)
	c := (*flushed)[0]
	assert.Equal(t, int64(1000), c.StartTS)
	assert.Equal(t, int64(1400), c.EndTS)
	assert.Len(t, c.Members, 3)
	assert.Equal(t, 35.0, c.TotalSize)
	assert.InDelta(t, 1.00*10+1.10*20+1.20*5, c.TotalPremium, 1e-9)
	assert.Equal(t, 1.00, c.FirstPrice)
	assert.Equal(t, 1.20, c.LastPrice)
	assert.Equal(t, int64(1000), c.StartSourceTS)
	assert.Equal(t, int64(1401), c.EndIngestTS)
	assert.Equal(t, int64(3), c.EndSeq)
}

func TestSameContractWindowBreakStartsNewCluster(t *testing.T) {
	flushed, onFlush := collector()
	e := NewEngine(500, quotes.NewOptionBook(5000), onFlush)

	e.Ingest(print("C1", 1000, 1, 1.00, 10))
	e.Ingest(print("C1", 1600, 2, 1.10, 20)) // 600ms after start: new cluster

	require.Len(t, *flushed, 1)
	assert.Equal(t, int64(1000), (*flushed)[0].EndTS)
	assert.Equal(t, 1, e.Open())

	e.FlushAll()
	require.Len(t, *flushed, 2)
	assert.Equal(t, int64(1600), (*flushed)[1].StartTS)
}

func TestOtherContractLapsedFlushesFirst(t *testing.T) {
	flushed, onFlush := collector()
	e := NewEngine(500, quotes.NewOptionBook(5000), onFlush)

	e.Ingest(print("C1", 1000, 1, 1.00, 10))
	e.Ingest(print("C2", 1100, 2, 2.00, 5))
	// 900ms after C1's end: C1 lapses, C2 (at 1100, 600ms old) lapses too.
	e.Ingest(print("C3", 2000, 3, 3.00, 1))

	require.Len(t, *flushed, 2)
	assert.Equal(t, "C1", (*flushed)[0].ContractID)
	assert.Equal(t, "C2", (*flushed)[1].ContractID)
	assert.Equal(t, 1, e.Open())
}

func TestFlushAllDeterministicOrder(t *testing.T) {
	flushed, onFlush := collector()
	e := NewEngine(500, quotes.NewOptionBook(5000), onFlush)

	e.Ingest(print("B", 1000, 1, 1, 1))
	e.Ingest(print("A", 1000, 2, 1, 1))
	e.Ingest(print("C", 900, 3, 1, 1))

	e.FlushAll()
	require.Len(t, *flushed, 3)
	assert.Equal(t, "C", (*flushed)[0].ContractID)
	assert.Equal(t, "A", (*flushed)[1].ContractID)
	assert.Equal(t, "B", (*flushed)[2].ContractID)
	assert.Equal(t, 0, e.Open())
}

func TestPlacementCountsAgainstBook(t *testing.T) {
	book := quotes.NewOptionBook(5000)
	q := domain.OptionNBBO{TS: 900, ContractID: "C1", Bid: 0.99, Ask: 1.02}
	q.Seq = 1
	book.Absorb(q)

	flushed, onFlush := collector()
	e := NewEngine(500, book, onFlush)

	e.Ingest(print("C1", 1000, 1, 0.99, 100)) // B
	e.Ingest(print("C1", 1050, 2, 1.02, 200)) // A
	e.Ingest(print("C1", 1100, 3, 1.04, 300)) // AA
	e.Ingest(print("C1", 1150, 4, 1.005, 50)) // MID
	e.Ingest(print("C2", 1150, 5, 1.00, 10))  // no quote: MISSING

	e.FlushAll()
	require.Len(t, *flushed, 2)
	c1 := (*flushed)[0]
	assert.Equal(t, "C1", c1.ContractID)
	assert.Equal(t, 1, c1.Placements.B)
	assert.Equal(t, 1, c1.Placements.A)
	assert.Equal(t, 1, c1.Placements.AA)
	assert.Equal(t, 1, c1.Placements.Mid)
	assert.Equal(t, 4, c1.Placements.Covered())
	assert.Equal(t, 3, c1.Placements.Aggressive())

	c2 := (*flushed)[1]
	assert.Equal(t, 1, c2.Placements.Missing)
}

func TestOpenClustersSkipsAnchor(t *testing.T) {
	_, onFlush := collector()
	e := NewEngine(500, quotes.NewOptionBook(5000), onFlush)

	e.Ingest(print("C1", 1000, 1, 1, 1))
	e.Ingest(print("C2", 1100, 2, 1, 1))

	open := e.OpenClusters("C1")
	require.Len(t, open, 1)
	assert.Equal(t, "C2", open[0].ContractID)
}
