package sim

import (
	"context"
	"testing"

	"github.com/LuizEdCard/binance-grid-bot-RL-sub001/internal/domain"
	"github.com/LuizEdCard/binance-grid-bot-RL-sub001/internal/exchange"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAdapter() *Adapter {
	return New(Config{
		Symbols: []domain.SymbolInfo{
			{Symbol: "BTCUSDT", Venue: domain.VenueSpot, TickSize: 0.01, StepSize: 0.0001, MinNotional: 10},
		},
		StartingPrice: map[string]float64{"BTCUSDT": 50000},
		SeedBalance:   10000,
	})
}

func TestAdapter_Capabilities_AdvertisesTradeStream(t *testing.T) {
	a := newTestAdapter()
	assert.True(t, a.Capabilities().TradeStream)
}

func TestAdapter_Balance_SplitsEvenlyAcrossVenues(t *testing.T) {
	a := newTestAdapter()
	ctx := context.Background()

	spot, err := a.Balance(ctx, domain.VenueSpot)
	require.NoError(t, err)
	deriv, err := a.Balance(ctx, domain.VenueDerivatives)
	require.NoError(t, err)

	assert.InDelta(t, 5000, spot[0].Equity, 0.01)
	assert.InDelta(t, 5000, deriv[0].Equity, 0.01)
}

func TestAdapter_Place_RejectsBelowMinNotional(t *testing.T) {
	a := newTestAdapter()
	ctx := context.Background()

	price := 50000.0
	_, err := a.Place(ctx, domain.OrderSpec{
		Symbol:   "BTCUSDT",
		Side:     domain.SideBuy,
		Type:     domain.OrderTypeLimit,
		Quantity: 0.0001, // 0.0001 * 50000 = 5, below min_notional=10
		Price:    &price,
	}, domain.VenueSpot)

	require.Error(t, err)
	assert.True(t, exchange.IsPermanent(err))
}

func TestAdapter_Place_MarketOrderFillsImmediately(t *testing.T) {
	a := newTestAdapter()
	ctx := context.Background()

	ack, err := a.Place(ctx, domain.OrderSpec{
		Symbol:   "BTCUSDT",
		Side:     domain.SideBuy,
		Type:     domain.OrderTypeMarket,
		Quantity: 0.001,
	}, domain.VenueSpot)

	require.NoError(t, err)
	assert.Equal(t, "filled", ack.Status)
}

func TestAdapter_Place_LimitOrderRestsUntilCancelled(t *testing.T) {
	a := newTestAdapter()
	ctx := context.Background()

	price := 49000.0
	ack, err := a.Place(ctx, domain.OrderSpec{
		Symbol:   "BTCUSDT",
		Side:     domain.SideBuy,
		Type:     domain.OrderTypeLimit,
		Quantity: 0.001,
		Price:    &price,
	}, domain.VenueSpot)
	require.NoError(t, err)
	assert.Equal(t, "open", ack.Status)

	open, err := a.OpenOrders(ctx, "BTCUSDT", domain.VenueSpot)
	require.NoError(t, err)
	assert.Len(t, open, 1)

	require.NoError(t, a.Cancel(ctx, "BTCUSDT", ack.OrderID, domain.VenueSpot))

	open, err = a.OpenOrders(ctx, "BTCUSDT", domain.VenueSpot)
	require.NoError(t, err)
	assert.Len(t, open, 0)
}

func TestAdapter_Transfer_MovesBalanceBetweenVenues(t *testing.T) {
	a := newTestAdapter()
	ctx := context.Background()

	require.NoError(t, a.Transfer(ctx, "USDT", 1000, exchange.TransferSpotToDerivatives))

	spot, _ := a.Balance(ctx, domain.VenueSpot)
	deriv, _ := a.Balance(ctx, domain.VenueDerivatives)

	assert.InDelta(t, 4000, spot[0].Free, 0.01)
	assert.InDelta(t, 6000, deriv[0].Free, 0.01)
}

func TestAdapter_Transfer_RejectsInsufficientBalance(t *testing.T) {
	a := newTestAdapter()
	ctx := context.Background()

	err := a.Transfer(ctx, "USDT", 1_000_000, exchange.TransferSpotToDerivatives)
	require.Error(t, err)
	assert.True(t, exchange.IsPermanent(err))
}

func TestAdapter_Cancel_UnknownOrderIsPermanentError(t *testing.T) {
	a := newTestAdapter()
	ctx := context.Background()

	err := a.Cancel(ctx, "BTCUSDT", "does-not-exist", domain.VenueSpot)
	require.Error(t, err)
	assert.True(t, exchange.IsPermanent(err))
}
