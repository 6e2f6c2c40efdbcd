// Package enrich turns closed clusters into flow packets: quote context,
// placement ratios, rolling baselines and structure tags.
package enrich

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/sawpanic/flowrun/internal/cluster"
	"github.com/sawpanic/flowrun/internal/domain"
	"github.com/sawpanic/flowrun/internal/domain/contract"
	"github.com/sawpanic/flowrun/internal/quotes"
	"github.com/sawpanic/flowrun/internal/stats"
	"github.com/sawpanic/flowrun/internal/structure"
)

// Enricher assembles flow packets from closed clusters.
type Enricher struct {
	windowMs int64
	optBook  *quotes.OptionBook
	eqBook   *quotes.EquityBook
	rolling  stats.RollingStore
}

// NewEnricher wires the enricher to its quote caches and rolling store.
func NewEnricher(windowMs int64, optBook *quotes.OptionBook, eqBook *quotes.EquityBook, rolling stats.RollingStore) *Enricher {
	return &Enricher{windowMs: windowMs, optBook: optBook, eqBook: eqBook, rolling: rolling}
}

// PacketID builds the deterministic packet id for a cluster.
func PacketID(contractID string, startTS, endTS int64) string {
	return fmt.Sprintf("flowpacket:%s:%d:%d", contractID, startTS, endTS)
}

// StructurePacketID builds the deterministic id of a companion structure
// packet anchored at the given cluster bounds.
func StructurePacketID(root string, startTS, endTS int64) string {
	return fmt.Sprintf("flowpacket:structure:%s:%d:%d", root, startTS, endTS)
}

// Enrich builds the per-contract packet for c. legs are the candidate
// structure legs near c's close (registry hits plus open clusters, anchor
// included); when they form a structure the packet is tagged and a companion
// structure packet is returned as well.
func (e *Enricher) Enrich(ctx context.Context, c *cluster.Cluster, legs []structure.Leg) (*domain.FlowPacket, *domain.FlowPacket) {
	f := NewFeatures()
	jq := make(map[string]interface{})

	count := len(c.Members)
	f.SetString("option_contract_id", c.ContractID)
	f.SetInt64("start_ts", c.StartTS)
	f.SetInt64("end_ts", c.EndTS)
	f.SetInt64("window_ms", e.windowMs)
	f.SetInt("count", count)
	f.SetFloat("total_size", c.TotalSize, 4)
	f.SetFloat("total_premium", c.TotalPremium, 4)
	f.SetFloat("total_notional", c.TotalPremium*100, 2)
	f.SetFloat("first_price", c.FirstPrice, 4)
	f.SetFloat("last_price", c.LastPrice, 4)

	ct, err := contract.Parse(c.ContractID)
	hasContract := err == nil
	if hasContract {
		e.underlyingContext(f, jq, ct.Root, c.EndTS)
	}

	e.placementAggregates(f, c, count)
	nbboSpread, haveSpread := e.nbboSnapshot(f, jq, c.ContractID, c.EndTS)

	e.baseline(ctx, f, "premium", "premium:"+c.ContractID, c.TotalPremium)
	e.baseline(ctx, f, "size", "size:"+c.ContractID, c.TotalSize)
	if haveSpread {
		e.baseline(ctx, f, "spread", "spread:"+c.ContractID, nbboSpread)
	}

	pkt := &domain.FlowPacket{
		ID:          PacketID(c.ContractID, c.StartTS, c.EndTS),
		Kind:        domain.PacketKindContract,
		Members:     append([]string(nil), c.Members...),
		Features:    f.Map(),
		JoinQuality: jq,
	}
	pkt.SourceTS = c.StartSourceTS
	pkt.IngestTS = c.EndIngestTS
	pkt.Seq = c.EndSeq
	pkt.TraceID = pkt.ID

	if !hasContract {
		return pkt, nil
	}

	summary, ok := structure.Summarize(legs)
	if !ok {
		return pkt, nil
	}
	setStructureTags(f, summary)

	sp := e.structurePacket(pkt, ct.Root, c, summary)
	return pkt, sp
}

// structurePacket materializes the companion structure packet: the anchor's
// flow features plus the structure tags, under packet_kind=structure.
func (e *Enricher) structurePacket(anchor *domain.FlowPacket, root string, c *cluster.Cluster, s structure.Summary) *domain.FlowPacket {
	features := make(map[string]interface{}, len(anchor.Features)+2)
	for k, v := range anchor.Features {
		features[k] = v
	}
	features["option_root"] = root

	jq := make(map[string]interface{}, len(anchor.JoinQuality))
	for k, v := range anchor.JoinQuality {
		jq[k] = v
	}

	sp := &domain.FlowPacket{
		ID:          StructurePacketID(root, c.StartTS, c.EndTS),
		Kind:        domain.PacketKindStructure,
		Members:     append([]string(nil), anchor.Members...),
		Features:    features,
		JoinQuality: jq,
	}
	sp.SourceTS = anchor.SourceTS
	sp.IngestTS = anchor.IngestTS
	sp.Seq = anchor.Seq
	sp.TraceID = sp.ID
	return sp
}

func setStructureTags(f *Features, s structure.Summary) {
	f.SetString("structure_type", s.Type)
	f.SetInt("structure_legs", s.Legs)
	f.SetInt("structure_strikes", s.Strikes)
	f.SetFloat("structure_strike_span", s.StrikeSpan, 4)
	f.SetString("structure_rights", s.Rights)
	f.SetInt("structure_expiries", s.Expiries)
	ids := ""
	for i, id := range s.ContractIDs {
		if i > 0 {
			ids += ","
		}
		ids += id
	}
	f.SetString("structure_contract_ids", ids)
}

func (e *Enricher) underlyingContext(f *Features, jq map[string]interface{}, root string, endTS int64) {
	f.SetString("underlying_id", root)
	q, l := e.eqBook.Lookup(root, endTS)
	if !l.OK {
		jq["underlying_quote_missing"] = 1
		return
	}
	if l.Stale {
		jq["underlying_quote_stale"] = 1
		return
	}
	spread := q.Ask - q.Bid
	if spread < 0 {
		spread = 0
	}
	f.SetFloat("underlying_bid", q.Bid, 4)
	f.SetFloat("underlying_ask", q.Ask, 4)
	f.SetFloat("underlying_mid", (q.Bid+q.Ask)/2, 4)
	f.SetFloat("underlying_spread", spread, 4)
	jq["underlying_quote_age_ms"] = float64(l.AgeMs)
}

func (e *Enricher) placementAggregates(f *Features, c *cluster.Cluster, count int) {
	p := c.Placements
	f.SetInt("placement_aa", p.AA)
	f.SetInt("placement_a", p.A)
	f.SetInt("placement_b", p.B)
	f.SetInt("placement_bb", p.BB)
	f.SetInt("placement_mid", p.Mid)
	f.SetInt("placement_missing", p.Missing)
	f.SetInt("placement_stale", p.Stale)

	covered := p.Covered()
	aggressive := p.Aggressive()
	f.SetFloat("nbbo_coverage_ratio", ratio(covered, count), 4)
	f.SetFloat("nbbo_aggressive_buy_ratio", ratio(p.AA+p.A, aggressive), 4)
	f.SetFloat("nbbo_aggressive_sell_ratio", ratio(p.BB+p.B, aggressive), 4)
	f.SetFloat("nbbo_inside_ratio", ratio(p.Mid, covered), 4)
	f.SetFloat("nbbo_aggressive_ratio", ratio(aggressive, covered), 4)
}

func (e *Enricher) nbboSnapshot(f *Features, jq map[string]interface{}, contractID string, endTS int64) (float64, bool) {
	q, l := e.optBook.Lookup(contractID, endTS)
	if !l.OK {
		jq["nbbo_missing"] = 1
		return 0, false
	}
	if l.Stale {
		jq["nbbo_stale"] = 1
		return 0, false
	}
	spread := q.Ask - q.Bid
	if spread < 0 {
		spread = 0
	}
	f.SetFloat("nbbo_bid", q.Bid, 4)
	f.SetFloat("nbbo_ask", q.Ask, 4)
	f.SetFloat("nbbo_mid", (q.Bid+q.Ask)/2, 4)
	f.SetFloat("nbbo_spread", spread, 4)
	f.SetFloat("nbbo_bid_size", q.BidSize, 4)
	f.SetFloat("nbbo_ask_size", q.AskSize, 4)
	jq["nbbo_age_ms"] = float64(l.AgeMs)
	return spread, true
}

// baseline updates the rolling store and attaches the pre-insert statistics.
// A failing store degrades the feature to z=0/n=0; the packet is never
// dropped.
func (e *Enricher) baseline(ctx context.Context, f *Features, name, key string, value float64) {
	snap, err := e.rolling.Update(ctx, key, value)
	if err != nil {
		log.Warn().Err(err).Str("key", key).Msg("rolling store unavailable, degrading baseline")
		snap = stats.Snapshot{}
	}
	f.SetFloat(name+"_mean", snap.Mean, 6)
	f.SetFloat(name+"_std", snap.Std, 6)
	f.SetFloat(name+"_z", snap.Z, 4)
	f.SetInt(name+"_baseline_n", snap.N)
}

func ratio(num, den int) float64 {
	if den == 0 {
		return 0
	}
	return float64(num) / float64(den)
}
