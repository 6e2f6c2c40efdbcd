package classify

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/flowrun/internal/domain"
)

// 2026-08-20 00:00 UTC. The September contract is 29 days out.
const augTS = float64(1_787_184_000_000)

func contractPacket(features map[string]interface{}) *domain.FlowPacket {
	return &domain.FlowPacket{ID: "pkt-1", Kind: domain.PacketKindContract, Features: features}
}

func structurePacket(features map[string]interface{}) *domain.FlowPacket {
	return &domain.FlowPacket{ID: "pkt-s", Kind: domain.PacketKindStructure, Features: features}
}

func sweepFeatures(contractID string) map[string]interface{} {
	return map[string]interface{}{
		"option_contract_id":         contractID,
		"count":                      float64(4),
		"total_size":                 float64(220),
		"total_premium":              float64(1200),
		"end_ts":                     augTS,
		"nbbo_coverage_ratio":        1.0,
		"nbbo_aggressive_ratio":      0.75,
		"nbbo_aggressive_buy_ratio":  0.8,
		"nbbo_aggressive_sell_ratio": 0.2,
		"premium_baseline_n":         float64(0),
	}
}

func byID(hits []domain.ClassifierHit) map[string]domain.ClassifierHit {
	m := make(map[string]domain.ClassifierHit, len(hits))
	for _, h := range hits {
		m[h.ClassifierID] = h
	}
	return m
}

func TestCallSweep(t *testing.T) {
	b := NewBank(DefaultConfig())

	hits := b.Evaluate(contractPacket(sweepFeatures("AAPL-2026-09-18-200-C")))
	require.Len(t, hits, 1)
	h := hits[0]
	assert.Equal(t, IDCallSweep, h.ClassifierID)
	assert.Equal(t, domain.DirectionBullish, h.Direction)
	assert.InDelta(t, 0.55, h.Confidence, 1e-9)
	require.Len(t, h.Explanations, 4)
	assert.Equal(t, "Likely aggressive call buying: 4 prints swept 220 contracts for $1200.00 premium on AAPL-2026-09-18-200-C.", h.Explanations[0])
	assert.Equal(t, "Threshold: count 4 >= 3 and premium $1200.00 >= $1000.00.", h.Explanations[1])
	assert.Equal(t, "Baseline unavailable (0 samples, need 20).", h.Explanations[2])
	assert.Equal(t, "Aggressor: coverage 100%, buy ratio 80%.", h.Explanations[3])
}

func TestPutSweepQualifiesOnReadyBaseline(t *testing.T) {
	b := NewBank(DefaultConfig())

	f := sweepFeatures("AAPL-2026-09-18-200-P")
	f["total_premium"] = float64(500) // under the absolute gate
	f["premium_z"] = 2.5
	f["premium_baseline_n"] = float64(25)

	hits := b.Evaluate(contractPacket(f))
	require.Len(t, hits, 1)
	h := hits[0]
	assert.Equal(t, IDPutSweep, h.ClassifierID)
	assert.Equal(t, domain.DirectionBearish, h.Direction)
	assert.InDelta(t, 0.55, h.Confidence, 1e-9)
	assert.Equal(t, "Threshold: count 4 >= 3 and premium z 2.50 >= 2.00 on a ready baseline.", h.Explanations[1])
	assert.Equal(t, "Baseline z-score 2.50 over 25 samples.", h.Explanations[2])
}

func TestNothingFiresBelowGates(t *testing.T) {
	b := NewBank(DefaultConfig())

	f := sweepFeatures("AAPL-2026-09-18-200-C")
	f["count"] = float64(2)
	f["total_premium"] = float64(5000)

	assert.Empty(t, b.Evaluate(contractPacket(f)))
}

func TestContractSpikeWithoutContractID(t *testing.T) {
	b := NewBank(DefaultConfig())

	hits := b.Evaluate(contractPacket(map[string]interface{}{
		"count":         float64(5),
		"total_size":    float64(600),
		"total_premium": float64(30000),
		"end_ts":        augTS,
	}))
	require.Len(t, hits, 1)
	h := hits[0]
	assert.Equal(t, IDContractSpike, h.ClassifierID)
	assert.Equal(t, domain.DirectionNeutral, h.Direction)
	assert.InDelta(t, 0.45, h.Confidence, 1e-9)
	assert.Equal(t, "Aggressor data unavailable (no NBBO coverage).", h.Explanations[3])
}

func TestCallOverwrite(t *testing.T) {
	b := NewBank(DefaultConfig())

	f := sweepFeatures("AAPL-2026-09-18-200-C")
	f["count"] = float64(5)
	f["total_size"] = float64(600)
	f["total_premium"] = float64(30000)
	f["nbbo_coverage_ratio"] = 0.9
	f["nbbo_aggressive_ratio"] = 0.85
	f["nbbo_aggressive_buy_ratio"] = 0.1
	f["nbbo_aggressive_sell_ratio"] = 0.9

	hits := byID(b.Evaluate(contractPacket(f)))
	require.Contains(t, hits, IDCallOverwrite)
	h := hits[IDCallOverwrite]
	assert.Equal(t, domain.DirectionBearish, h.Direction)
	assert.InDelta(t, 0.55, h.Confidence, 1e-9)
	assert.Equal(t, "Likely call overwriting: 600 calls sold for $30000.00 premium on AAPL-2026-09-18-200-C.", h.Explanations[0])

	// The sweep still fires bullish on the same packet; the disagreement is
	// left for alert scoring to weigh.
	require.Contains(t, hits, IDCallSweep)
	assert.InDelta(t, 0.55, hits[IDCallSweep].Confidence, 1e-9)
	require.Contains(t, hits, IDContractSpike)
	assert.InDelta(t, 0.50, hits[IDContractSpike].Confidence, 1e-9)
	assert.NotContains(t, hits, IDFarDated, "29 DTE is inside the far-dated bound")
}

func TestPutWrite(t *testing.T) {
	b := NewBank(DefaultConfig())

	f := sweepFeatures("AAPL-2026-09-18-200-P")
	f["total_size"] = float64(600)
	f["total_premium"] = float64(30000)
	f["nbbo_aggressive_buy_ratio"] = 0.1
	f["nbbo_aggressive_sell_ratio"] = 0.9

	hits := byID(b.Evaluate(contractPacket(f)))
	require.Contains(t, hits, IDPutWrite)
	assert.Equal(t, domain.DirectionBullish, hits[IDPutWrite].Direction)
}

func TestFarDatedConviction(t *testing.T) {
	b := NewBank(DefaultConfig())

	f := sweepFeatures("AAPL-2026-12-18-200-C")
	f["total_size"] = float64(600)
	f["total_premium"] = float64(30000)

	hits := byID(b.Evaluate(contractPacket(f)))
	require.Contains(t, hits, IDFarDated)
	h := hits[IDFarDated]
	assert.Equal(t, domain.DirectionBullish, h.Direction)
	// 0.50 + 0.05 (>=120 DTE) + 0.05 (buy-dominant flow)
	assert.InDelta(t, 0.60, h.Confidence, 1e-9)
	assert.Equal(t, "Threshold: size 600 >= 500 and premium $30000.00 >= $25000.00. DTE 120 >= 60.", h.Explanations[1])
}

func TestZeroDTE(t *testing.T) {
	b := NewBank(DefaultConfig())

	f := sweepFeatures("AAPL-2026-08-20-200-C")
	f["count"] = float64(3)
	f["total_size"] = float64(150)
	f["total_premium"] = float64(400)
	f["underlying_mid"] = 200.5

	hits := b.Evaluate(contractPacket(f))
	require.Len(t, hits, 1)
	h := hits[0]
	assert.Equal(t, IDZeroDTE, h.ClassifierID)
	assert.Equal(t, domain.DirectionBullish, h.Direction)
	// 0.55 + 0.05 (inside half the ATM band) + 0.05 (buy-dominant flow)
	assert.InDelta(t, 0.65, h.Confidence, 1e-9)
}

func TestZeroDTERejectsFarFromSpot(t *testing.T) {
	b := NewBank(DefaultConfig())

	f := sweepFeatures("AAPL-2026-08-20-210-C")
	f["count"] = float64(3)
	f["total_size"] = float64(150)
	f["total_premium"] = float64(400)
	f["underlying_mid"] = 200.5

	assert.Empty(t, b.Evaluate(contractPacket(f)))
}

func structureFeatures(structType, rights string, legs, strikes int, span float64) map[string]interface{} {
	return map[string]interface{}{
		"structure_type":             structType,
		"structure_legs":             float64(legs),
		"structure_strikes":          float64(strikes),
		"structure_strike_span":      span,
		"structure_rights":           rights,
		"total_premium":              float64(30000),
		"total_size":                 float64(600),
		"nbbo_coverage_ratio":        0.9,
		"nbbo_aggressive_ratio":      0.85,
		"nbbo_aggressive_buy_ratio":  0.5,
		"nbbo_aggressive_sell_ratio": 0.35,
		"premium_baseline_n":         float64(0),
	}
}

func TestStraddleClassifier(t *testing.T) {
	b := NewBank(DefaultConfig())

	hits := b.Evaluate(structurePacket(structureFeatures("straddle", "C/P", 2, 1, 0)))
	require.Len(t, hits, 1)
	h := hits[0]
	assert.Equal(t, IDStraddle, h.ClassifierID)
	assert.Equal(t, domain.DirectionNeutral, h.Direction)
	assert.InDelta(t, 0.60, h.Confidence, 1e-9)
	assert.Equal(t, "Likely straddle: 2 legs across 1 strike(s), rights C/P.", h.Explanations[0])
	assert.Equal(t, "Flow is balanced between bid and offer.", h.Explanations[3])
}

func TestStrangleClassifier(t *testing.T) {
	b := NewBank(DefaultConfig())

	hits := b.Evaluate(structurePacket(structureFeatures("strangle", "C/P", 2, 2, 20)))
	require.Len(t, hits, 1)
	assert.Equal(t, IDStrangle, hits[0].ClassifierID)
}

func TestVerticalSpreadDirectionFollowsFlow(t *testing.T) {
	b := NewBank(DefaultConfig())

	f := structureFeatures("vertical", "C", 2, 2, 10)
	f["nbbo_aggressive_buy_ratio"] = 0.7
	hits := b.Evaluate(structurePacket(f))
	require.Len(t, hits, 1)
	h := hits[0]
	assert.Equal(t, IDVerticalSpread, h.ClassifierID)
	assert.Equal(t, domain.DirectionBullish, h.Direction)
	assert.InDelta(t, 0.60, h.Confidence, 1e-9)

	f = structureFeatures("vertical", "P", 2, 2, 10)
	f["nbbo_aggressive_sell_ratio"] = 0.7
	hits = b.Evaluate(structurePacket(f))
	require.Len(t, hits, 1)
	assert.Equal(t, domain.DirectionBullish, hits[0].Direction, "selling puts leans bullish")
}

func TestLadderAccumulation(t *testing.T) {
	b := NewBank(DefaultConfig())

	f := structureFeatures("ladder", "C", 4, 4, 30)
	f["nbbo_aggressive_buy_ratio"] = 0.7
	hits := b.Evaluate(structurePacket(f))
	require.Len(t, hits, 1)
	h := hits[0]
	assert.Equal(t, IDLadder, h.ClassifierID)
	assert.Equal(t, domain.DirectionBullish, h.Direction)
	// 0.50 + 0.05 (one strike past three) + 0.05 (buy-dominant flow)
	assert.InDelta(t, 0.60, h.Confidence, 1e-9)
}

func TestStructurePacketSkipsContractClassifiers(t *testing.T) {
	b := NewBank(DefaultConfig())

	f := sweepFeatures("AAPL-2026-09-18-200-C")
	f["total_premium"] = float64(30000)
	f["total_size"] = float64(600)
	p := structurePacket(f)

	assert.Empty(t, b.Evaluate(p), "contract classifiers never run on structure packets")
}
