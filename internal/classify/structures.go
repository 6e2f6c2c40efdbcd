package classify

import (
	"fmt"

	"github.com/sawpanic/flowrun/internal/domain"
	"github.com/sawpanic/flowrun/internal/structure"
)

// skewNote colors a neutral structure hit with the flow's buy/sell lean.
func (v *view) skewNote() string {
	if v.coverage < v.cfg.MinCoverage {
		return "Flow skew unknown (insufficient NBBO coverage)."
	}
	switch {
	case v.buyRatio >= v.cfg.MinAggRatio:
		return fmt.Sprintf("Flow is buy-skewed (%d%% of aggressive prints lifted the offer).", pct(v.buyRatio))
	case v.sellRatio >= v.cfg.MinAggRatio:
		return fmt.Sprintf("Flow is sell-skewed (%d%% of aggressive prints hit the bid).", pct(v.sellRatio))
	default:
		return "Flow is balanced between bid and offer."
	}
}

func (b *Bank) twoSidedStructure(v *view, id, structType, name string) (domain.ClassifierHit, bool) {
	if v.structType != structType {
		return domain.ClassifierHit{}, false
	}
	conf := 0.55
	if v.structLegs > 2 {
		conf += 0.05
	}
	conf = clamp(v.adjustAggressor(conf, v.aggRatio, false))
	return domain.ClassifierHit{
		ClassifierID: id,
		Confidence:   conf,
		Direction:    domain.DirectionNeutral,
		Explanations: []string{
			fmt.Sprintf("Likely %s: %d legs across %d strike(s), rights %s.",
				name, v.structLegs, v.structStrikes, v.structRights),
			fmt.Sprintf("Threshold: structure type %s with %d contemporaneous legs.", structType, v.structLegs),
			v.baselineNote(),
			v.skewNote(),
		},
	}, true
}

func (b *Bank) straddle(v *view) (domain.ClassifierHit, bool) {
	return b.twoSidedStructure(v, IDStraddle, structure.TypeStraddle, "straddle")
}

func (b *Bank) strangle(v *view) (domain.ClassifierHit, bool) {
	return b.twoSidedStructure(v, IDStrangle, structure.TypeStrangle, "strangle")
}

func (b *Bank) verticalSpread(v *view) (domain.ClassifierHit, bool) {
	if v.structType != structure.TypeVertical {
		return domain.ClassifierHit{}, false
	}
	isCall := v.structRights == "C"

	direction := domain.DirectionNeutral
	lean := "balanced"
	if v.coverage >= b.cfg.MinCoverage {
		switch {
		case v.buyRatio >= b.cfg.MinAggRatio:
			lean = "buy-dominant"
			if isCall {
				direction = domain.DirectionBullish
			} else {
				direction = domain.DirectionBearish
			}
		case v.sellRatio >= b.cfg.MinAggRatio:
			lean = "sell-dominant"
			if isCall {
				direction = domain.DirectionBearish
			} else {
				direction = domain.DirectionBullish
			}
		}
	}

	conf := 0.50
	if direction != domain.DirectionNeutral {
		conf += 0.05
	}
	conf = clamp(v.adjustAggressor(conf, v.aggRatio, false))
	return domain.ClassifierHit{
		ClassifierID: IDVerticalSpread,
		Confidence:   conf,
		Direction:    direction,
		Explanations: []string{
			fmt.Sprintf("Likely vertical spread: 2 strikes %.2f apart, rights %s, %s flow.",
				v.structSpan, v.structRights, lean),
			fmt.Sprintf("Threshold: structure type %s with a single right.", structure.TypeVertical),
			v.baselineNote(),
			v.aggressorNote("aggressive", v.aggRatio),
		},
	}, true
}

func (b *Bank) ladderAccumulation(v *view) (domain.ClassifierHit, bool) {
	if v.structType != structure.TypeLadder || v.structStrikes < 3 {
		return domain.ClassifierHit{}, false
	}
	qualifies := v.premium >= b.cfg.SpikeMinPremium ||
		v.size >= b.cfg.SpikeMinSize ||
		(v.premiumZReady() && v.premiumZ >= b.cfg.SweepMinZ)
	if !qualifies {
		return domain.ClassifierHit{}, false
	}

	direction := domain.DirectionBullish
	side := "call"
	if v.structRights == "P" {
		direction = domain.DirectionBearish
		side = "put"
	}

	conf := 0.50
	extra := v.structStrikes - 3
	if extra > 2 {
		extra = 2
	}
	conf += 0.05 * float64(extra)
	conf = clamp(v.adjustAggressor(conf, v.buyRatio, true))
	return domain.ClassifierHit{
		ClassifierID: IDLadder,
		Confidence:   conf,
		Direction:    direction,
		Explanations: []string{
			fmt.Sprintf("Likely %s ladder: %d strikes spanning %.2f with $%.2f premium.",
				side, v.structStrikes, v.structSpan, v.premium),
			fmt.Sprintf("Threshold: structure type %s with %d strikes and qualifying premium/size/z.",
				structure.TypeLadder, v.structStrikes),
			v.baselineNote(),
			v.aggressorNote("buy", v.buyRatio),
		},
	}, true
}
