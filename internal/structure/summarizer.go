// Package structure detects multi-leg option structures from contemporaneous
// legs on a single root.
package structure

import (
	"sort"

	"github.com/sawpanic/flowrun/internal/domain/contract"
)

// Structure types.
const (
	TypeStraddle = "straddle"
	TypeStrangle = "strangle"
	TypeVertical = "vertical"
	TypeLadder   = "ladder"
	TypeRoll     = "roll"
	TypeMultiLeg = "multi_leg"
)

// Leg is one side of a candidate structure: a closed or currently open
// cluster on a parsable contract.
type Leg struct {
	ContractID string
	Root       string
	Expiry     string // YYYY-MM-DD
	Strike     float64
	Right      contract.Right
	EndTS      int64
}

// Summary describes a detected structure.
type Summary struct {
	Type        string
	Legs        int
	Strikes     int
	StrikeSpan  float64
	Rights      string // "C", "P" or "C/P"
	Expiries    int
	ContractIDs []string // sorted
}

// Summarize classifies legs into a structure. It returns false when fewer
// than two distinct contracts are present. Single root assumed.
func Summarize(legs []Leg) (Summary, bool) {
	byContract := make(map[string]Leg, len(legs))
	for _, l := range legs {
		if prev, ok := byContract[l.ContractID]; !ok || l.EndTS > prev.EndTS {
			byContract[l.ContractID] = l
		}
	}
	if len(byContract) < 2 {
		return Summary{}, false
	}

	expiries := make(map[string]struct{})
	rights := make(map[contract.Right]struct{})
	strikes := make(map[float64]struct{})
	ids := make([]string, 0, len(byContract))
	minStrike, maxStrike := 0.0, 0.0
	first := true
	for _, l := range byContract {
		expiries[l.Expiry] = struct{}{}
		rights[l.Right] = struct{}{}
		strikes[l.Strike] = struct{}{}
		ids = append(ids, l.ContractID)
		if first || l.Strike < minStrike {
			minStrike = l.Strike
		}
		if first || l.Strike > maxStrike {
			maxStrike = l.Strike
		}
		first = false
	}
	sort.Strings(ids)

	s := Summary{
		Legs:        len(byContract),
		Strikes:     len(strikes),
		StrikeSpan:  maxStrike - minStrike,
		Expiries:    len(expiries),
		ContractIDs: ids,
	}
	_, hasCall := rights[contract.Call]
	_, hasPut := rights[contract.Put]
	switch {
	case hasCall && hasPut:
		s.Rights = "C/P"
	case hasCall:
		s.Rights = "C"
	default:
		s.Rights = "P"
	}

	nEx, nRt, nSt := len(expiries), len(rights), len(strikes)
	switch {
	case nEx == 1 && nRt == 2 && nSt == 1:
		s.Type = TypeStraddle
	case nEx == 1 && nRt == 2 && nSt >= 2:
		s.Type = TypeStrangle
	case nEx == 1 && nRt == 1 && nSt == 2:
		s.Type = TypeVertical
	case nEx == 1 && nRt == 1 && nSt >= 3:
		s.Type = TypeLadder
	case nRt == 1 && nEx == 2:
		s.Type = TypeRoll
	default:
		s.Type = TypeMultiLeg
	}
	return s, true
}

// Registry remembers recently closed legs per root so structures spanning
// adjacent clusters stay detectable. Entries are capped per root and purged
// by the anchor-window filter on every lookup.
type Registry struct {
	windowMs int64
	capacity int
	byRoot   map[string][]Leg
}

// NewRegistry creates a legs registry. windowMs is the eligibility window
// around an anchor; capacity bounds retained legs per root.
func NewRegistry(windowMs int64, capacity int) *Registry {
	return &Registry{windowMs: windowMs, capacity: capacity, byRoot: make(map[string][]Leg)}
}

// Record stores a closed leg, evicting the oldest once the root is at
// capacity.
func (r *Registry) Record(leg Leg) {
	legs := append(r.byRoot[leg.Root], leg)
	if len(legs) > r.capacity {
		legs = legs[len(legs)-r.capacity:]
	}
	r.byRoot[leg.Root] = legs
}

// LegsNear returns the recorded legs on root whose endTs lies within the
// window around anchorEndTS, merged with extra (open-cluster legs supplied by
// the caller). Recorded legs older than the window are purged.
func (r *Registry) LegsNear(root string, anchorEndTS int64, extra []Leg) []Leg {
	kept := r.byRoot[root][:0]
	var out []Leg
	for _, l := range r.byRoot[root] {
		if anchorEndTS-l.EndTS > r.windowMs {
			continue // too old, drop from the registry
		}
		kept = append(kept, l)
		if within(l.EndTS, anchorEndTS, r.windowMs) {
			out = append(out, l)
		}
	}
	if len(kept) == 0 {
		delete(r.byRoot, root)
	} else {
		r.byRoot[root] = kept
	}
	for _, l := range extra {
		if l.Root == root && within(l.EndTS, anchorEndTS, r.windowMs) {
			out = append(out, l)
		}
	}
	return out
}

func within(ts, anchor, window int64) bool {
	d := ts - anchor
	if d < 0 {
		d = -d
	}
	return d <= window
}
