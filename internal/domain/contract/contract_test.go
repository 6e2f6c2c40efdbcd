package contract

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDashed(t *testing.T) {
	c, err := Parse("AAPL-2026-09-18-200-C")
	require.NoError(t, err)
	assert.Equal(t, "AAPL", c.Root)
	assert.Equal(t, Call, c.Right)
	assert.Equal(t, 200.0, c.Strike)
	assert.Equal(t, time.Date(2026, 9, 18, 0, 0, 0, 0, time.UTC), c.Expiry)
}

func TestParseDashedRootWithDashes(t *testing.T) {
	c, err := Parse("BRK-B-2026-01-16-450.5-P")
	require.NoError(t, err)
	assert.Equal(t, "BRK-B", c.Root)
	assert.Equal(t, Put, c.Right)
	assert.Equal(t, 450.5, c.Strike)
}

func TestParseOCC(t *testing.T) {
	c, err := Parse("SPY   260918C00200000")
	require.NoError(t, err)
	assert.Equal(t, "SPY", c.Root)
	assert.Equal(t, Call, c.Right)
	assert.Equal(t, 200.0, c.Strike)
	assert.Equal(t, time.Date(2026, 9, 18, 0, 0, 0, 0, time.UTC), c.Expiry)
}

func TestParseOCCFractionalStrike(t *testing.T) {
	c, err := Parse("XYZ260130P00012500")
	require.NoError(t, err)
	assert.Equal(t, "XYZ", c.Root)
	assert.Equal(t, 12.5, c.Strike)
	assert.Equal(t, Put, c.Right)
}

func TestParseRejectsNonContracts(t *testing.T) {
	for _, id := range []string{
		"",
		"AAPL",
		"AAPL-2026-09-18",         // too few parts
		"AAPL-2026-13-18-200-C",   // bad month
		"AAPL-2026-09-18-200-X",   // bad right
		"AAPL-2026-09-18--5-C",    // non-positive strike
		"-2026-09-18-200-C",       // empty root
		"260918C00200000",         // OCC tail with no root
	} {
		_, err := Parse(id)
		assert.ErrorIs(t, err, ErrNotContract, "id %q", id)
	}
}

func TestDaysToExpiry(t *testing.T) {
	c, err := Parse("AAPL-2026-09-18-200-C")
	require.NoError(t, err)

	at := time.Date(2026, 9, 8, 15, 30, 0, 0, time.UTC).UnixMilli()
	assert.Equal(t, 10, c.DaysToExpiry(at))

	after := time.Date(2026, 9, 20, 0, 0, 0, 0, time.UTC).UnixMilli()
	assert.Equal(t, -2, c.DaysToExpiry(after))
}

func TestExpiresOn(t *testing.T) {
	c, err := Parse("AAPL-2026-09-18-200-C")
	require.NoError(t, err)

	sameDay := time.Date(2026, 9, 18, 20, 59, 0, 0, time.UTC).UnixMilli()
	assert.True(t, c.ExpiresOn(sameDay))

	dayBefore := time.Date(2026, 9, 17, 20, 59, 0, 0, time.UTC).UnixMilli()
	assert.False(t, c.ExpiresOn(dayBefore))
}

func TestExpiryKey(t *testing.T) {
	c, err := Parse("AAPL-2026-09-18-200-C")
	require.NoError(t, err)
	assert.Equal(t, "2026-09-18", c.ExpiryKey())
}
