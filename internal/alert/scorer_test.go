package alert

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/flowrun/internal/domain"
)

func hit(id string, conf float64) domain.ClassifierHit {
	return domain.ClassifierHit{ClassifierID: id, Confidence: conf, Direction: domain.DirectionBullish}
}

func TestScoreComponents(t *testing.T) {
	// 64 premium + round(0.75*20)=15 confidence + 2 hits * 5
	score, severity := Score(64_000, []domain.ClassifierHit{hit("a", 0.55), hit("b", 0.75)})
	assert.Equal(t, 89, score)
	assert.Equal(t, domain.SeverityHigh, severity)
}

func TestScorePremiumCap(t *testing.T) {
	score, _ := Score(5_000_000, []domain.ClassifierHit{hit("a", 0.5)})
	assert.Equal(t, 70+10+5, score)
}

func TestScoreHitCap(t *testing.T) {
	hits := make([]domain.ClassifierHit, 6)
	for i := range hits {
		hits[i] = hit("a", 0.5)
	}
	score, _ := Score(0, hits)
	assert.Equal(t, 10+20, score, "hit component caps at 20")
}

func TestScoreTotalCap(t *testing.T) {
	hits := make([]domain.ClassifierHit, 5)
	for i := range hits {
		hits[i] = hit("a", 0.95)
	}
	score, severity := Score(70_000, hits)
	assert.Equal(t, 100, score)
	assert.Equal(t, domain.SeverityHigh, severity)
}

func TestSeverityBoundaries(t *testing.T) {
	// 44000 -> 44: low. No hits contribute nothing.
	score, severity := Score(44_000, nil)
	assert.Equal(t, 44, score)
	assert.Equal(t, domain.SeverityLow, severity)

	score, severity = Score(45_000, nil)
	assert.Equal(t, 45, score)
	assert.Equal(t, domain.SeverityMedium, severity)

	// 70 premium + round(0.45*20)=9 confidence + 5 = 79: still medium.
	score, severity = Score(70_000, []domain.ClassifierHit{hit("a", 0.45)})
	assert.Equal(t, 79, score)
	assert.Equal(t, domain.SeverityMedium, severity)

	// One more confidence point crosses into high.
	score, severity = Score(70_000, []domain.ClassifierHit{hit("a", 0.50)})
	assert.Equal(t, 80, score)
	assert.Equal(t, domain.SeverityHigh, severity)
}

func TestBuildAlert(t *testing.T) {
	p := &domain.FlowPacket{
		ID:      "flowpacket:AAPL-2026-09-18-200-C:1000:1400",
		Kind:    domain.PacketKindContract,
		Members: []string{"t1", "t2"},
		Features: map[string]interface{}{
			"total_premium":  410.5,
			"total_notional": 41050.0,
		},
	}
	p.SourceTS = 1000
	p.IngestTS = 1401
	p.Seq = 9

	hits := []domain.ClassifierHit{hit("large_bullish_call_sweep", 0.55)}
	ev := Build(p, hits)
	require.NotNil(t, ev)

	// 41 premium + 11 confidence + 5 hits
	assert.Equal(t, 57, ev.Score)
	assert.Equal(t, domain.SeverityMedium, ev.Severity)
	assert.Equal(t, hits, ev.Hits)
	assert.Equal(t, []string{p.ID, "t1", "t2"}, ev.EvidenceRefs)
	assert.Equal(t, "alert:"+p.ID, ev.TraceID)
	assert.Equal(t, int64(1000), ev.SourceTS)
	assert.Equal(t, int64(1401), ev.IngestTS)
	assert.Equal(t, int64(9), ev.Seq)
}

func TestBuildFallsBackToPremium(t *testing.T) {
	p := &domain.FlowPacket{
		ID:       "pkt",
		Features: map[string]interface{}{"total_premium": 50_000.0},
	}
	ev := Build(p, []domain.ClassifierHit{hit("a", 0.5)})
	assert.Equal(t, 50+10+5, ev.Score)
}

func TestHitEvent(t *testing.T) {
	p := &domain.FlowPacket{ID: "pkt-1"}
	p.SourceTS = 1000
	p.Seq = 3

	h := hit("straddle", 0.6)
	ev := HitEvent(p, h)
	assert.Equal(t, "pkt-1", ev.PacketID)
	assert.Equal(t, h, ev.ClassifierHit)
	assert.Equal(t, "classifier:straddle:pkt-1", ev.TraceID)
	assert.Equal(t, int64(1000), ev.SourceTS)
	assert.Equal(t, int64(3), ev.Seq)
}
