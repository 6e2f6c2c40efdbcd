// Package alert scores a packet's classifier hits into a 0-100 alert.
package alert

import (
	"fmt"
	"math"

	"github.com/sawpanic/flowrun/internal/domain"
)

// Score combines premium dollars, hit count and max confidence.
// premiumDollars is the money actually traded: option packets pass their
// total notional.
func Score(premiumDollars float64, hits []domain.ClassifierHit) (int, string) {
	premiumScore := int(math.Round(premiumDollars / 1000))
	if premiumScore > 70 {
		premiumScore = 70
	}
	if premiumScore < 0 {
		premiumScore = 0
	}

	maxConf := 0.0
	for _, h := range hits {
		if h.Confidence > maxConf {
			maxConf = h.Confidence
		}
	}
	confidenceScore := int(math.Round(maxConf * 20))

	hitScore := len(hits) * 5
	if hitScore > 20 {
		hitScore = 20
	}

	score := premiumScore + confidenceScore + hitScore
	if score > 100 {
		score = 100
	}
	if score < 0 {
		score = 0
	}

	severity := domain.SeverityLow
	switch {
	case score >= 80:
		severity = domain.SeverityHigh
	case score >= 45:
		severity = domain.SeverityMedium
	}
	return score, severity
}

// Build assembles the alert event for a packet and its non-empty hit list.
// Evidence is the packet id followed by its member trace ids.
func Build(p *domain.FlowPacket, hits []domain.ClassifierHit) *domain.AlertEvent {
	notional, ok := p.Feature("total_notional")
	if !ok {
		notional, _ = p.Feature("total_premium")
	}
	score, severity := Score(notional, hits)

	refs := make([]string, 0, 1+len(p.Members))
	refs = append(refs, p.ID)
	refs = append(refs, p.Members...)

	ev := &domain.AlertEvent{
		Score:        score,
		Severity:     severity,
		Hits:         hits,
		EvidenceRefs: refs,
	}
	ev.SourceTS = p.SourceTS
	ev.IngestTS = p.IngestTS
	ev.Seq = p.Seq
	ev.TraceID = fmt.Sprintf("alert:%s", p.ID)
	return ev
}

// HitEvent wraps a hit in its published envelope.
func HitEvent(p *domain.FlowPacket, hit domain.ClassifierHit) *domain.ClassifierHitEvent {
	ev := &domain.ClassifierHitEvent{ClassifierHit: hit, PacketID: p.ID}
	ev.SourceTS = p.SourceTS
	ev.IngestTS = p.IngestTS
	ev.Seq = p.Seq
	ev.TraceID = fmt.Sprintf("classifier:%s:%s", hit.ClassifierID, p.ID)
	return ev
}
