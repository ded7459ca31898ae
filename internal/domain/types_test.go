package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBalanceSnapshot_TotalEquity(t *testing.T) {
	snap := BalanceSnapshot{
		ByVenue: map[Venue]BalanceEntry{
			VenueSpot:        {Equity: 1000},
			VenueDerivatives: {Equity: 500},
		},
	}
	assert.InDelta(t, 1500, snap.TotalEquity(), 0.001)
}

func TestPosition_IsFlat(t *testing.T) {
	assert.True(t, Position{Side: PositionFlat, Size: 0}.IsFlat())
	assert.True(t, Position{Side: PositionLong, Size: 0}.IsFlat())
	assert.False(t, Position{Side: PositionLong, Size: 1.5}.IsFlat())
}
