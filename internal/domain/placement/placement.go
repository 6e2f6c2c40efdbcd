// Package placement buckets a trade price against the posted market.
package placement

// Bucket identifies which side of the posted market a trade printed on.
type Bucket string

const (
	AboveAsk Bucket = "AA"
	AtAsk    Bucket = "A"
	Mid      Bucket = "MID"
	AtBid    Bucket = "B"
	BelowBid Bucket = "BB"
	Stale    Bucket = "STALE"
	Missing  Bucket = "MISSING"
)

// Quote is the minimal quote view the classifier needs.
type Quote struct {
	Bid     float64
	Ask     float64
	Stale   bool
	Missing bool
}

// Classify assigns the placement bucket for price against q. The epsilon
// guard keeps ticks at the inside from being mis-bucketed as aggressive.
func Classify(price float64, q Quote) Bucket {
	if q.Missing || q.Ask <= 0 {
		return Missing
	}
	if q.Stale {
		return Stale
	}
	spread := q.Ask - q.Bid
	if spread < 0 {
		spread = 0
	}
	eps := spread * 0.05
	if eps < 0.01 {
		eps = 0.01
	}
	switch {
	case price > q.Ask+eps:
		return AboveAsk
	case price >= q.Ask-eps:
		return AtAsk
	case price < q.Bid-eps:
		return BelowBid
	case price <= q.Bid+eps:
		return AtBid
	default:
		return Mid
	}
}

// Aggressive reports whether b is a non-mid classified placement.
func Aggressive(b Bucket) bool {
	switch b {
	case AboveAsk, AtAsk, AtBid, BelowBid:
		return true
	}
	return false
}

// BuySide reports whether b printed at or above the ask.
func BuySide(b Bucket) bool { return b == AboveAsk || b == AtAsk }

// SellSide reports whether b printed at or below the bid.
func SellSide(b Bucket) bool { return b == AtBid || b == BelowBid }
