package classify

import (
	"fmt"

	"github.com/sawpanic/flowrun/internal/domain"
	"github.com/sawpanic/flowrun/internal/domain/contract"
)

// sweepQualifies implements the shared sweep gate: enough prints, and either
// absolute premium or a ready baseline z over threshold.
func (b *Bank) sweepQualifies(v *view) (bool, string) {
	if v.count < b.cfg.SweepMinCount {
		return false, ""
	}
	if v.premium >= b.cfg.SweepMinPremium {
		return true, fmt.Sprintf("Threshold: count %d >= %d and premium $%.2f >= $%.2f.",
			v.count, b.cfg.SweepMinCount, v.premium, b.cfg.SweepMinPremium)
	}
	if v.premiumZReady() && v.premiumZ >= b.cfg.SweepMinZ {
		return true, fmt.Sprintf("Threshold: count %d >= %d and premium z %.2f >= %.2f on a ready baseline.",
			v.count, b.cfg.SweepMinCount, v.premiumZ, b.cfg.SweepMinZ)
	}
	return false, ""
}

func (b *Bank) sweepConfidence(v *view) float64 {
	conf := 0.50
	if v.premium >= 2*b.cfg.SweepMinPremium {
		conf += 0.15
	}
	if v.premiumZReady() && v.premiumZ >= b.cfg.SweepMinZ+1 {
		conf += 0.05
	}
	if v.count >= 2*b.cfg.SweepMinCount {
		conf += 0.05
	}
	// Sweeps are buy-side aggressive by construction.
	conf = v.adjustAggressor(conf, v.buyRatio, true)
	return clamp(conf)
}

func (b *Bank) callSweep(v *view) (domain.ClassifierHit, bool) {
	if !v.hasContract || v.contract.Right != contract.Call {
		return domain.ClassifierHit{}, false
	}
	ok, threshold := b.sweepQualifies(v)
	if !ok {
		return domain.ClassifierHit{}, false
	}
	return domain.ClassifierHit{
		ClassifierID: IDCallSweep,
		Confidence:   b.sweepConfidence(v),
		Direction:    domain.DirectionBullish,
		Explanations: []string{
			fmt.Sprintf("Likely aggressive call buying: %d prints swept %.0f contracts for $%.2f premium on %s.",
				v.count, v.size, v.premium, v.contract.ID),
			threshold,
			v.baselineNote(),
			v.aggressorNote("buy", v.buyRatio),
		},
	}, true
}

func (b *Bank) putSweep(v *view) (domain.ClassifierHit, bool) {
	if !v.hasContract || v.contract.Right != contract.Put {
		return domain.ClassifierHit{}, false
	}
	ok, threshold := b.sweepQualifies(v)
	if !ok {
		return domain.ClassifierHit{}, false
	}
	return domain.ClassifierHit{
		ClassifierID: IDPutSweep,
		Confidence:   b.sweepConfidence(v),
		Direction:    domain.DirectionBearish,
		Explanations: []string{
			fmt.Sprintf("Likely aggressive put buying: %d prints swept %.0f contracts for $%.2f premium on %s.",
				v.count, v.size, v.premium, v.contract.ID),
			threshold,
			v.baselineNote(),
			v.aggressorNote("buy", v.buyRatio),
		},
	}, true
}
