package enrich

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/flowrun/internal/cluster"
	"github.com/sawpanic/flowrun/internal/domain"
	"github.com/sawpanic/flowrun/internal/domain/contract"
	"github.com/sawpanic/flowrun/internal/quotes"
	"github.com/sawpanic/flowrun/internal/stats"
	"github.com/sawpanic/flowrun/internal/structure"
)

const testContract = "AAPL-2026-09-18-200-C"

func testBooks() (*quotes.OptionBook, *quotes.EquityBook) {
	optBook := quotes.NewOptionBook(5000)
	nq := domain.OptionNBBO{TS: 900, ContractID: testContract, Bid: 1.00, Ask: 1.10, BidSize: 40, AskSize: 60}
	nq.Seq = 1
	optBook.Absorb(nq)

	eqBook := quotes.NewEquityBook(5000)
	eq := domain.EquityQuote{TS: 900, UnderlyingID: "AAPL", Bid: 199.98, Ask: 200.02}
	eq.Seq = 1
	eqBook.Absorb(eq)
	return optBook, eqBook
}

func testCluster() *cluster.Cluster {
	return &cluster.Cluster{
		ContractID:   testContract,
		StartTS:      1000,
		EndTS:        1400,
		Members:      []string{"t1", "t2", "t3", "t4"},
		TotalSize:    380,
		TotalPremium: 410.5,
		FirstPrice:   1.05,
		LastPrice:    1.10,
		Placements:   cluster.Placements{AA: 1, A: 1, B: 1, Mid: 1},

		StartSourceTS: 1000,
		EndIngestTS:   1401,
		EndSeq:        9,
	}
}

func TestEnrichBuildsContractPacket(t *testing.T) {
	optBook, eqBook := testBooks()
	rolling := stats.NewMemoryStore(50, time.Hour)
	e := NewEnricher(500, optBook, eqBook, rolling)

	pkt, sp := e.Enrich(context.Background(), testCluster(), nil)
	require.NotNil(t, pkt)
	assert.Nil(t, sp)

	assert.Equal(t, "flowpacket:AAPL-2026-09-18-200-C:1000:1400", pkt.ID)
	assert.Equal(t, pkt.ID, pkt.TraceID)
	assert.Equal(t, domain.PacketKindContract, pkt.Kind)
	assert.Equal(t, []string{"t1", "t2", "t3", "t4"}, pkt.Members)
	assert.Equal(t, int64(1000), pkt.SourceTS)
	assert.Equal(t, int64(1401), pkt.IngestTS)
	assert.Equal(t, int64(9), pkt.Seq)

	f := pkt.Features
	assert.Equal(t, testContract, f["option_contract_id"])
	assert.Equal(t, float64(1000), f["start_ts"])
	assert.Equal(t, float64(1400), f["end_ts"])
	assert.Equal(t, float64(500), f["window_ms"])
	assert.Equal(t, float64(4), f["count"])
	assert.Equal(t, 380.0, f["total_size"])
	assert.Equal(t, 410.5, f["total_premium"])
	assert.Equal(t, 41050.0, f["total_notional"])

	// Placement ratios: covered 4, aggressive 3.
	assert.Equal(t, 1.0, f["nbbo_coverage_ratio"])
	assert.InDelta(t, 0.6667, f["nbbo_aggressive_buy_ratio"].(float64), 1e-9)
	assert.InDelta(t, 0.3333, f["nbbo_aggressive_sell_ratio"].(float64), 1e-9)
	assert.Equal(t, 0.25, f["nbbo_inside_ratio"])
	assert.Equal(t, 0.75, f["nbbo_aggressive_ratio"])

	// NBBO snapshot at cluster close.
	assert.Equal(t, 1.00, f["nbbo_bid"])
	assert.Equal(t, 1.10, f["nbbo_ask"])
	assert.Equal(t, 1.05, f["nbbo_mid"])
	assert.InDelta(t, 0.10, f["nbbo_spread"].(float64), 1e-9)
	assert.Equal(t, float64(500), pkt.JoinQuality["nbbo_age_ms"])

	// Underlying context.
	assert.Equal(t, "AAPL", f["underlying_id"])
	assert.Equal(t, 200.0, f["underlying_mid"])
	assert.Equal(t, 0.04, f["underlying_spread"])
	assert.Equal(t, float64(500), pkt.JoinQuality["underlying_quote_age_ms"])

	// First observation: empty pre-insert baselines.
	assert.Equal(t, float64(0), f["premium_baseline_n"])
	assert.Equal(t, 0.0, f["premium_z"])
	assert.Equal(t, float64(0), f["size_baseline_n"])
	assert.Equal(t, float64(0), f["spread_baseline_n"])
}

func TestEnrichMissingNBBO(t *testing.T) {
	_, eqBook := testBooks()
	e := NewEnricher(500, quotes.NewOptionBook(5000), eqBook, stats.NewMemoryStore(50, time.Hour))

	pkt, _ := e.Enrich(context.Background(), testCluster(), nil)
	require.NotNil(t, pkt)
	assert.Equal(t, 1, pkt.JoinQuality["nbbo_missing"])
	assert.NotContains(t, pkt.Features, "nbbo_bid")
	assert.NotContains(t, pkt.Features, "spread_z", "no spread baseline without a fresh quote")
}

func TestEnrichStaleUnderlyingQuote(t *testing.T) {
	optBook, _ := testBooks()
	eqBook := quotes.NewEquityBook(5000)
	q := domain.EquityQuote{TS: 900, UnderlyingID: "AAPL", Bid: 199.98, Ask: 200.02}
	q.Seq = 1
	eqBook.Absorb(q)
	e := NewEnricher(500, optBook, eqBook, stats.NewMemoryStore(50, time.Hour))

	c := testCluster()
	c.EndTS = 20_000 // equity quote is 19.1s old
	pkt, _ := e.Enrich(context.Background(), c, nil)
	assert.Equal(t, 1, pkt.JoinQuality["underlying_quote_stale"])
	assert.NotContains(t, pkt.Features, "underlying_mid")
	assert.Equal(t, "AAPL", pkt.Features["underlying_id"])
}

type failingStore struct{}

func (failingStore) Update(context.Context, string, float64) (stats.Snapshot, error) {
	return stats.Snapshot{}, errors.New("redis down")
}
func (failingStore) Close() error { return nil }

func TestEnrichDegradesOnRollingStoreError(t *testing.T) {
	optBook, eqBook := testBooks()
	e := NewEnricher(500, optBook, eqBook, failingStore{})

	pkt, _ := e.Enrich(context.Background(), testCluster(), nil)
	require.NotNil(t, pkt)
	assert.Equal(t, 0.0, pkt.Features["premium_z"])
	assert.Equal(t, float64(0), pkt.Features["premium_baseline_n"])
	assert.Equal(t, 0.0, pkt.Features["size_mean"])
}

func TestEnrichBaselineIsPreInsert(t *testing.T) {
	optBook, eqBook := testBooks()
	rolling := stats.NewMemoryStore(50, time.Hour)
	e := NewEnricher(500, optBook, eqBook, rolling)
	ctx := context.Background()

	e.Enrich(ctx, testCluster(), nil)
	pkt, _ := e.Enrich(ctx, testCluster(), nil)
	f := pkt.Features
	assert.Equal(t, float64(1), f["premium_baseline_n"])
	assert.Equal(t, 410.5, f["premium_mean"])
	assert.Equal(t, 0.0, f["premium_z"], "zero std never divides")
}

func TestEnrichEmitsStructurePacket(t *testing.T) {
	optBook, eqBook := testBooks()
	e := NewEnricher(500, optBook, eqBook, stats.NewMemoryStore(50, time.Hour))

	legs := []structure.Leg{
		{ContractID: testContract, Root: "AAPL", Expiry: "2026-09-18", Strike: 200, Right: contract.Call, EndTS: 1400},
		{ContractID: "AAPL-2026-09-18-200-P", Root: "AAPL", Expiry: "2026-09-18", Strike: 200, Right: contract.Put, EndTS: 1300},
	}
	pkt, sp := e.Enrich(context.Background(), testCluster(), legs)
	require.NotNil(t, pkt)
	require.NotNil(t, sp)

	assert.Equal(t, structure.TypeStraddle, pkt.Features["structure_type"])
	assert.Equal(t, float64(2), pkt.Features["structure_legs"])
	assert.Equal(t, "C/P", pkt.Features["structure_rights"])
	assert.Equal(t, "AAPL-2026-09-18-200-C,AAPL-2026-09-18-200-P", pkt.Features["structure_contract_ids"])

	assert.Equal(t, "flowpacket:structure:AAPL:1000:1400", sp.ID)
	assert.Equal(t, domain.PacketKindStructure, sp.Kind)
	assert.Equal(t, pkt.Members, sp.Members)
	assert.Equal(t, "AAPL", sp.Features["option_root"])
	assert.Equal(t, pkt.Features["total_premium"], sp.Features["total_premium"])
	assert.Equal(t, pkt.SourceTS, sp.SourceTS)
}

func TestEnrichUnparseableContract(t *testing.T) {
	optBook, eqBook := testBooks()
	e := NewEnricher(500, optBook, eqBook, stats.NewMemoryStore(50, time.Hour))

	c := testCluster()
	c.ContractID = "not-a-contract"
	pkt, sp := e.Enrich(context.Background(), c, nil)
	require.NotNil(t, pkt)
	assert.Nil(t, sp)
	assert.NotContains(t, pkt.Features, "underlying_id")
}
