package classify

import (
	"fmt"
	"math"

	"github.com/sawpanic/flowrun/internal/domain"
	"github.com/sawpanic/flowrun/internal/domain/contract"
)

func directionForRight(r contract.Right) domain.Direction {
	if r == contract.Call {
		return domain.DirectionBullish
	}
	return domain.DirectionBearish
}

func (b *Bank) farDated(v *view) (domain.ClassifierHit, bool) {
	if !v.hasContract {
		return domain.ClassifierHit{}, false
	}
	dte := v.contract.DaysToExpiry(v.endTS)
	if dte < b.cfg.FarDTEDays {
		return domain.ClassifierHit{}, false
	}
	ok, threshold := b.spikeQualifies(v)
	if !ok {
		return domain.ClassifierHit{}, false
	}
	conf := 0.50
	if dte >= 2*b.cfg.FarDTEDays {
		conf += 0.05
	}
	if v.premium >= 2*b.cfg.SpikeMinPremium {
		conf += 0.10
	}
	conf = clamp(v.adjustAggressor(conf, v.buyRatio, true))

	side := "call"
	if v.contract.Right == contract.Put {
		side = "put"
	}
	return domain.ClassifierHit{
		ClassifierID: IDFarDated,
		Confidence:   conf,
		Direction:    directionForRight(v.contract.Right),
		Explanations: []string{
			fmt.Sprintf("Likely long-horizon conviction: %.0f %ss bought %d days out on %s for $%.2f premium.",
				v.size, side, dte, v.contract.ID, v.premium),
			fmt.Sprintf("%s DTE %d >= %d.", threshold, dte, b.cfg.FarDTEDays),
			v.baselineNote(),
			v.aggressorNote("buy", v.buyRatio),
		},
	}, true
}

func (b *Bank) zeroDTE(v *view) (domain.ClassifierHit, bool) {
	if !v.hasContract || !v.contract.ExpiresOn(v.endTS) {
		return domain.ClassifierHit{}, false
	}
	if !v.hasUnderlyingMid || v.underlyingMid <= 0 {
		return domain.ClassifierHit{}, false
	}
	atmPct := math.Abs(v.contract.Strike-v.underlyingMid) / v.underlyingMid
	if atmPct > b.cfg.ZeroDTEMaxATMPct {
		return domain.ClassifierHit{}, false
	}
	if v.size < b.cfg.ZeroDTEMinSize || v.premium < b.cfg.ZeroDTEMinPremium {
		return domain.ClassifierHit{}, false
	}

	conf := 0.55
	if atmPct <= b.cfg.ZeroDTEMaxATMPct/2 {
		conf += 0.05
	}
	conf = clamp(v.adjustAggressor(conf, v.buyRatio, true))

	side := "call"
	if v.contract.Right == contract.Put {
		side = "put"
	}
	return domain.ClassifierHit{
		ClassifierID: IDZeroDTE,
		Confidence:   conf,
		Direction:    directionForRight(v.contract.Right),
		Explanations: []string{
			fmt.Sprintf("Likely same-day gamma play: %.0f %ss expiring today at strike %.2f, %.2f%% from spot.",
				v.size, side, v.contract.Strike, atmPct*100),
			fmt.Sprintf("Threshold: ATM distance %.2f%% <= %.2f%%, size %.0f >= %.0f, premium $%.2f >= $%.2f.",
				atmPct*100, b.cfg.ZeroDTEMaxATMPct*100, v.size, b.cfg.ZeroDTEMinSize, v.premium, b.cfg.ZeroDTEMinPremium),
			v.baselineNote(),
			v.aggressorNote("buy", v.buyRatio),
		},
	}, true
}
