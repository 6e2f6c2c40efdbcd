package classify

import (
	"fmt"

	"github.com/sawpanic/flowrun/internal/domain"
	"github.com/sawpanic/flowrun/internal/domain/contract"
)

// spikeQualifies implements the shared spike gate: absolute size+premium, or
// a ready baseline z on premium or size.
func (b *Bank) spikeQualifies(v *view) (bool, string) {
	if v.size >= b.cfg.SpikeMinSize && v.premium >= b.cfg.SpikeMinPremium {
		return true, fmt.Sprintf("Threshold: size %.0f >= %.0f and premium $%.2f >= $%.2f.",
			v.size, b.cfg.SpikeMinSize, v.premium, b.cfg.SpikeMinPremium)
	}
	if v.premiumZReady() && v.premiumZ >= b.cfg.SpikeMinZ {
		return true, fmt.Sprintf("Threshold: premium z %.2f >= %.2f on a ready baseline.",
			v.premiumZ, b.cfg.SpikeMinZ)
	}
	if v.sizeZReady() && v.sizeZ >= b.cfg.SizeMinZ {
		return true, fmt.Sprintf("Threshold: size z %.2f >= %.2f on a ready baseline.",
			v.sizeZ, b.cfg.SizeMinZ)
	}
	return false, ""
}

func (b *Bank) spikeConfidence(v *view, base float64, sideRatio float64, sideSpecific bool) float64 {
	conf := base
	if v.premium >= 2*b.cfg.SpikeMinPremium {
		conf += 0.10
	}
	if (v.premiumZReady() && v.premiumZ >= b.cfg.SpikeMinZ+1) ||
		(v.sizeZReady() && v.sizeZ >= b.cfg.SizeMinZ+1) {
		conf += 0.05
	}
	conf = v.adjustAggressor(conf, sideRatio, sideSpecific)
	return clamp(conf)
}

func (b *Bank) contractSpike(v *view) (domain.ClassifierHit, bool) {
	ok, threshold := b.spikeQualifies(v)
	if !ok {
		return domain.ClassifierHit{}, false
	}
	id, _ := v.p.FeatureString("option_contract_id")
	return domain.ClassifierHit{
		ClassifierID: IDContractSpike,
		Confidence:   b.spikeConfidence(v, 0.45, v.aggRatio, false),
		Direction:    domain.DirectionNeutral,
		Explanations: []string{
			fmt.Sprintf("Likely unusual activity: %.0f contracts for $%.2f premium across %d prints on %s.",
				v.size, v.premium, v.count, id),
			threshold,
			v.baselineNote(),
			v.aggressorNote("aggressive", v.aggRatio),
		},
	}, true
}

// sellFlowDominant gates the overwrite/write variants: spike-grade flow that
// printed mostly at or through the bid.
func (b *Bank) sellFlowDominant(v *view) bool {
	return v.coverage >= b.cfg.MinCoverage && v.sellRatio >= b.cfg.MinAggRatio
}

func (b *Bank) callOverwrite(v *view) (domain.ClassifierHit, bool) {
	if !v.hasContract || v.contract.Right != contract.Call {
		return domain.ClassifierHit{}, false
	}
	ok, threshold := b.spikeQualifies(v)
	if !ok || !b.sellFlowDominant(v) {
		return domain.ClassifierHit{}, false
	}
	conf := b.spikeConfidence(v, 0.50, v.sellRatio, true)
	return domain.ClassifierHit{
		ClassifierID: IDCallOverwrite,
		Confidence:   conf,
		Direction:    domain.DirectionBearish,
		Explanations: []string{
			fmt.Sprintf("Likely call overwriting: %.0f calls sold for $%.2f premium on %s.",
				v.size, v.premium, v.contract.ID),
			threshold,
			v.baselineNote(),
			v.aggressorNote("sell", v.sellRatio),
		},
	}, true
}

func (b *Bank) putWrite(v *view) (domain.ClassifierHit, bool) {
	if !v.hasContract || v.contract.Right != contract.Put {
		return domain.ClassifierHit{}, false
	}
	ok, threshold := b.spikeQualifies(v)
	if !ok || !b.sellFlowDominant(v) {
		return domain.ClassifierHit{}, false
	}
	conf := b.spikeConfidence(v, 0.50, v.sellRatio, true)
	return domain.ClassifierHit{
		ClassifierID: IDPutWrite,
		Confidence:   conf,
		Direction:    domain.DirectionBullish,
		Explanations: []string{
			fmt.Sprintf("Likely put writing: %.0f puts sold for $%.2f premium on %s.",
				v.size, v.premium, v.contract.ID),
			threshold,
			v.baselineNote(),
			v.aggressorNote("sell", v.sellRatio),
		},
	}, true
}
