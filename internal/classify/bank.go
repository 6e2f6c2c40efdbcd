// Package classify evaluates flow packets against the classifier bank. Each
// classifier returns at most one hit with a confidence, a direction and the
// explanation set that makes the decision auditable.
package classify

import (
	"fmt"
	"math"

	"github.com/rs/zerolog/log"

	"github.com/sawpanic/flowrun/internal/domain"
	"github.com/sawpanic/flowrun/internal/domain/contract"
)

// Classifier ids.
const (
	IDCallSweep       = "large_bullish_call_sweep"
	IDPutSweep        = "large_bearish_put_sweep"
	IDContractSpike   = "unusual_contract_spike"
	IDCallOverwrite   = "large_call_sell_overwrite"
	IDPutWrite        = "large_put_sell_write"
	IDStraddle        = "straddle"
	IDStrangle        = "strangle"
	IDVerticalSpread  = "vertical_spread"
	IDLadder          = "ladder_accumulation"
	IDFarDated        = "far_dated_conviction"
	IDZeroDTE         = "zero_dte_gamma_punch"
)

// Config holds the classifier thresholds.
type Config struct {
	SweepMinCount     int
	SweepMinPremium   float64
	SweepMinZ         float64
	ZMinSamples       int
	SpikeMinSize      float64
	SpikeMinPremium   float64
	SpikeMinZ         float64
	SizeMinZ          float64
	MinCoverage       float64
	MinAggRatio       float64
	FarDTEDays        int
	ZeroDTEMaxATMPct  float64
	ZeroDTEMinSize    float64
	ZeroDTEMinPremium float64
}

// DefaultConfig returns the documented threshold defaults.
func DefaultConfig() Config {
	return Config{
		SweepMinCount:     3,
		SweepMinPremium:   1000,
		SweepMinZ:         2.0,
		ZMinSamples:       20,
		SpikeMinSize:      500,
		SpikeMinPremium:   25000,
		SpikeMinZ:         3.0,
		SizeMinZ:          3.0,
		MinCoverage:       0.6,
		MinAggRatio:       0.65,
		FarDTEDays:        60,
		ZeroDTEMaxATMPct:  0.01,
		ZeroDTEMinSize:    100,
		ZeroDTEMinPremium: 250,
	}
}

// Bank runs the classifiers relevant to a packet's kind.
type Bank struct {
	cfg Config
}

// NewBank creates a classifier bank.
func NewBank(cfg Config) *Bank {
	return &Bank{cfg: cfg}
}

type evaluator func(*view) (domain.ClassifierHit, bool)

// Evaluate runs every applicable classifier over p. A classifier that panics
// is logged and skipped; the packet is never dropped.
func (b *Bank) Evaluate(p *domain.FlowPacket) []domain.ClassifierHit {
	v := newView(p, b.cfg)

	var evaluators []evaluator
	if p.Kind == domain.PacketKindStructure {
		evaluators = []evaluator{
			b.straddle,
			b.strangle,
			b.verticalSpread,
			b.ladderAccumulation,
		}
	} else {
		evaluators = []evaluator{
			b.callSweep,
			b.putSweep,
			b.contractSpike,
			b.callOverwrite,
			b.putWrite,
			b.farDated,
			b.zeroDTE,
		}
	}

	var hits []domain.ClassifierHit
	for _, eval := range evaluators {
		if hit, ok := b.safeEval(eval, v, p.ID); ok {
			hits = append(hits, hit)
		}
	}
	return hits
}

func (b *Bank) safeEval(eval evaluator, v *view, packetID string) (hit domain.ClassifierHit, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Str("packet_id", packetID).Interface("panic", r).
				Msg("classifier panicked, suppressing its decoration")
			ok = false
		}
	}()
	return eval(v)
}

// view is the decoded form of a packet that classifiers consume.
type view struct {
	p   *domain.FlowPacket
	cfg Config

	contract    contract.Contract
	hasContract bool

	count     int
	size      float64
	premium   float64
	endTS     int64
	coverage  float64
	aggRatio  float64
	buyRatio  float64
	sellRatio float64

	premiumZ float64
	premiumN int
	sizeZ    float64
	sizeN    int

	underlyingMid    float64
	hasUnderlyingMid bool

	structType    string
	structLegs    int
	structStrikes int
	structSpan    float64
	structRights  string
}

func newView(p *domain.FlowPacket, cfg Config) *view {
	v := &view{p: p, cfg: cfg}
	if id, ok := p.FeatureString("option_contract_id"); ok {
		if c, err := contract.Parse(id); err == nil {
			v.contract = c
			v.hasContract = true
		}
	}
	v.count = int(feat(p, "count"))
	v.size = feat(p, "total_size")
	v.premium = feat(p, "total_premium")
	v.endTS = int64(feat(p, "end_ts"))
	v.coverage = feat(p, "nbbo_coverage_ratio")
	v.aggRatio = feat(p, "nbbo_aggressive_ratio")
	v.buyRatio = feat(p, "nbbo_aggressive_buy_ratio")
	v.sellRatio = feat(p, "nbbo_aggressive_sell_ratio")
	v.premiumZ = feat(p, "premium_z")
	v.premiumN = int(feat(p, "premium_baseline_n"))
	v.sizeZ = feat(p, "size_z")
	v.sizeN = int(feat(p, "size_baseline_n"))
	v.underlyingMid, v.hasUnderlyingMid = p.Feature("underlying_mid")
	v.structType, _ = p.FeatureString("structure_type")
	v.structLegs = int(feat(p, "structure_legs"))
	v.structStrikes = int(feat(p, "structure_strikes"))
	v.structSpan = feat(p, "structure_strike_span")
	v.structRights, _ = p.FeatureString("structure_rights")
	return v
}

func feat(p *domain.FlowPacket, name string) float64 {
	f, _ := p.Feature(name)
	return f
}

// premiumZReady reports whether the premium baseline can gate decisions.
func (v *view) premiumZReady() bool { return v.premiumN >= v.cfg.ZMinSamples }

// sizeZReady reports whether the size baseline can gate decisions.
func (v *view) sizeZReady() bool { return v.sizeN >= v.cfg.ZMinSamples }

// baselineNote renders the mandatory baseline explanation.
func (v *view) baselineNote() string {
	if v.premiumZReady() {
		return fmt.Sprintf("Baseline z-score %.2f over %d samples.", v.premiumZ, v.premiumN)
	}
	return fmt.Sprintf("Baseline unavailable (%d samples, need %d).", v.premiumN, v.cfg.ZMinSamples)
}

// aggressorNote renders coverage and the given ratio as integer percents.
func (v *view) aggressorNote(label string, r float64) string {
	if v.coverage == 0 {
		return "Aggressor data unavailable (no NBBO coverage)."
	}
	return fmt.Sprintf("Aggressor: coverage %d%%, %s ratio %d%%.", pct(v.coverage), label, pct(r))
}

// adjustAggressor applies the common aggressor adjustment to conf. r is the
// ratio relevant to the classifier; sideSpecific controls the no-coverage
// penalty.
func (v *view) adjustAggressor(conf float64, r float64, sideSpecific bool) float64 {
	if v.coverage >= v.cfg.MinCoverage {
		if r >= v.cfg.MinAggRatio {
			return conf + 0.05
		}
		return conf - 0.10
	}
	if v.coverage == 0 && sideSpecific {
		return conf - 0.15
	}
	return conf
}

func clamp(conf float64) float64 {
	if conf < 0 {
		return 0
	}
	if conf > 0.95 {
		return 0.95
	}
	return conf
}

func pct(v float64) int {
	return int(math.Round(v * 100))
}
