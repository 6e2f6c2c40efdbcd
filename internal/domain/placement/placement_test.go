package placement

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyBuckets(t *testing.T) {
	// Spread 0.03 keeps epsilon at the 0.01 floor.
	q := Quote{Bid: 0.99, Ask: 1.02}

	tests := []struct {
		name  string
		price float64
		want  Bucket
	}{
		{"well above ask", 1.04, AboveAsk},
		{"just above ask within eps", 1.03, AtAsk},
		{"at ask", 1.02, AtAsk},
		{"ask minus eps", 1.01, AtAsk},
		{"inside market", 1.005, Mid},
		{"at bid", 0.99, AtBid},
		{"bid plus eps", 1.00, AtBid},
		{"below bid", 0.97, BelowBid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.price, q))
		})
	}
}

func TestClassifyWideSpreadEpsilon(t *testing.T) {
	// Spread 2.00 gives eps 0.10, wider than the floor.
	q := Quote{Bid: 10.00, Ask: 12.00}
	assert.Equal(t, AtAsk, Classify(11.91, q))
	assert.Equal(t, Mid, Classify(11.89, q))
	assert.Equal(t, AtBid, Classify(10.09, q))
	assert.Equal(t, Mid, Classify(10.11, q))
}

func TestClassifyMissingAndStale(t *testing.T) {
	assert.Equal(t, Missing, Classify(1.0, Quote{Missing: true, Bid: 0.99, Ask: 1.02}))
	assert.Equal(t, Missing, Classify(1.0, Quote{Bid: 0.99, Ask: 0}))
	assert.Equal(t, Stale, Classify(1.0, Quote{Bid: 0.99, Ask: 1.02, Stale: true}))
}

func TestSideHelpers(t *testing.T) {
	assert.True(t, Aggressive(AboveAsk))
	assert.True(t, Aggressive(AtBid))
	assert.False(t, Aggressive(Mid))
	assert.False(t, Aggressive(Stale))

	assert.True(t, BuySide(AtAsk))
	assert.False(t, BuySide(AtBid))
	assert.True(t, SellSide(BelowBid))
	assert.False(t, SellSide(AtAsk))
}
